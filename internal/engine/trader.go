package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/rayfire/sniper/internal/config"
	"github.com/rayfire/sniper/internal/jito"
	"github.com/rayfire/sniper/internal/oracle"
	"github.com/rayfire/sniper/internal/raydium"
	"github.com/rayfire/sniper/internal/safety"
)

const tokenAccountSize = 165

// Trader is the chain-facing Executor: it resolves pools, applies the
// safety gate, prices swaps and lands the transactions.
type Trader struct {
	cfg      config.SniperConfig
	rpc      *rpc.Client
	resolver *raydium.Resolver
	oracle   *oracle.Client
	relay    *jito.Client
	signer   solana.PrivateKey
	logger   *slog.Logger
}

func NewTrader(cfg config.SniperConfig, logger *slog.Logger) *Trader {
	client := rpc.New(cfg.RPCURL)
	t := &Trader{
		cfg:      cfg,
		rpc:      client,
		resolver: raydium.NewResolver(raydium.NewRPCFetcher(client, cfg.Commitment), cfg.AmmProgramID),
		oracle:   oracle.New(cfg.TokenMetadataURL, cfg.NativePriceURL, cfg.HeliusAPIKey, cfg.OracleRequestTimeout),
		signer:   cfg.Signer,
		logger:   logger,
	}
	if cfg.UseBundle {
		t.relay = jito.New(cfg.BundleEndpoint, cfg.TxTimeout)
	}
	return t
}

// Evaluate runs resolution, the safety gate and the buy quote. Errors
// wrapping the safety sentinels are deliberate rejections; everything
// else is an infrastructure failure.
func (t *Trader) Evaluate(ctx context.Context, event PoolEvent) (*TradePlan, error) {
	keys, err := t.resolver.Resolve(ctx, event.PoolID, event.Mint)
	if err != nil {
		return nil, err
	}

	reserves, err := t.poolReserves(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", raydium.ErrPoolResolution, err)
	}

	flags, err := t.oracle.TokenFlags(ctx, event.Mint.String())
	if err != nil {
		return nil, fmt.Errorf("token safety lookup: %w", err)
	}
	price, err := t.oracle.NativePriceUSD(ctx)
	if err != nil {
		return nil, fmt.Errorf("native price lookup: %w", err)
	}

	quoteSide := t.quoteSideReserves(keys, reserves)
	if err := safety.Evaluate(quoteSide, flags, price, t.cfg.MinQuoteLiquidityUSD); err != nil {
		return nil, err
	}

	// Buying the traded mint with WSOL: input reserve is the WSOL side.
	reserveIn, reserveOut := t.swapReserves(keys, reserves, event.Mint)
	quote, err := raydium.ComputeAmountOut(reserveIn, reserveOut, t.cfg.BuySpendLamports, t.cfg.BuySlippageBps)
	if err != nil {
		return nil, fmt.Errorf("quote buy: %w", err)
	}

	t.logger.Info("buy quoted",
		slog.String("mint", event.Mint.String()),
		slog.Uint64("amount_in", quote.AmountIn),
		slog.Uint64("min_amount_out", quote.MinAmountOut),
		slog.Float64("price_impact", quote.PriceImpact))

	return &TradePlan{Event: event, Keys: keys, Quote: quote}, nil
}

// ExecuteBuy wraps the spend into a throwaway WSOL account, swaps into
// a fresh ATA for the mint, and unwraps the leftover in one atomic
// transaction.
func (t *Trader) ExecuteBuy(ctx context.Context, plan *TradePlan) (*BuyOutcome, error) {
	owner := t.signer.PublicKey()

	ata, _, err := solana.FindAssociatedTokenAddress(owner, plan.Event.Mint)
	if err != nil {
		return nil, fmt.Errorf("derive token account: %w", err)
	}

	wsolAccount := solana.NewWallet()
	instructions, err := t.prefixInstructions(ctx, wsolAccount.PublicKey(), plan.Quote.AmountIn)
	if err != nil {
		return nil, err
	}

	instructions = append(instructions,
		associatedtokenaccount.NewCreateInstruction(owner, owner, plan.Event.Mint).Build(),
		raydium.NewSwapBaseInInstruction(plan.Keys, wsolAccount.PublicKey(), ata, owner, plan.Quote.AmountIn, plan.Quote.MinAmountOut),
		token.NewCloseAccountInstruction(wsolAccount.PublicKey(), owner, owner, nil).Build(),
	)

	sig, err := t.sendAndConfirm(ctx, instructions, []solana.PrivateKey{wsolAccount.PrivateKey})
	if err != nil {
		return nil, err
	}

	return &BuyOutcome{Signature: sig, TokenAccount: ata}, nil
}

// ExecuteSell drains the whole position back into native SOL. A zero
// balance means there is nothing left to sell and counts as done.
func (t *Trader) ExecuteSell(ctx context.Context, pos Position) (solana.Signature, error) {
	held, err := t.tokenBalance(ctx, pos.TokenAccount)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("fetch held balance: %w", err)
	}
	if held == 0 {
		t.logger.Info("position already empty", slog.String("mint", pos.Mint.String()))
		return solana.Signature{}, nil
	}

	reserves, err := t.poolReserves(ctx, pos.Keys)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("fetch reserves: %w", err)
	}

	// Selling the mint for WSOL: input reserve is the token side.
	reserveOut, reserveIn := t.swapReserves(pos.Keys, reserves, pos.Mint)
	quote, err := raydium.ComputeAmountOut(reserveIn, reserveOut, held, t.cfg.SellSlippageBps)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("quote sell: %w", err)
	}

	owner := t.signer.PublicKey()
	wsolAccount := solana.NewWallet()
	instructions, err := t.prefixInstructions(ctx, wsolAccount.PublicKey(), 0)
	if err != nil {
		return solana.Signature{}, err
	}

	instructions = append(instructions,
		raydium.NewSwapBaseInInstruction(pos.Keys, pos.TokenAccount, wsolAccount.PublicKey(), owner, held, quote.MinAmountOut),
		token.NewCloseAccountInstruction(wsolAccount.PublicKey(), owner, owner, nil).Build(),
	)

	sig, err := t.sendAndConfirm(ctx, instructions, []solana.PrivateKey{wsolAccount.PrivateKey})
	if err != nil {
		return solana.Signature{}, err
	}

	t.logger.Info("position sold",
		slog.String("mint", pos.Mint.String()),
		slog.Uint64("amount_in", held),
		slog.String("signature", sig.String()))
	return sig, nil
}

// prefixInstructions builds the shared transaction preamble: compute
// budget hints and a rent-exempt temporary WSOL account funded with
// wrapLamports on top of rent.
func (t *Trader) prefixInstructions(ctx context.Context, wsolAccount solana.PublicKey, wrapLamports uint64) ([]solana.Instruction, error) {
	var instructions []solana.Instruction

	if t.cfg.ComputeUnitLimit > 0 {
		ix, err := computebudget.NewSetComputeUnitLimitInstruction(t.cfg.ComputeUnitLimit).ValidateAndBuild()
		if err != nil {
			return nil, fmt.Errorf("build compute unit limit: %w", err)
		}
		instructions = append(instructions, ix)
	}
	if t.cfg.PriorityFeeMicroLamports > 0 {
		ix, err := computebudget.NewSetComputeUnitPriceInstruction(t.cfg.PriorityFeeMicroLamports).ValidateAndBuild()
		if err != nil {
			return nil, fmt.Errorf("build compute unit price: %w", err)
		}
		instructions = append(instructions, ix)
	}

	rent, err := t.rpc.GetMinimumBalanceForRentExemption(ctx, tokenAccountSize, t.cfg.Commitment)
	if err != nil {
		return nil, fmt.Errorf("fetch rent exemption: %w", err)
	}

	owner := t.signer.PublicKey()
	instructions = append(instructions,
		system.NewCreateAccountInstruction(
			rent+wrapLamports,
			tokenAccountSize,
			solana.TokenProgramID,
			owner,
			wsolAccount,
		).Build(),
		token.NewInitializeAccountInstruction(wsolAccount, raydium.WSOLMint, owner, solana.SysVarRentPubkey).Build(),
	)

	return instructions, nil
}

func (t *Trader) sendAndConfirm(ctx context.Context, instructions []solana.Instruction, extraSigners []solana.PrivateKey) (solana.Signature, error) {
	owner := t.signer.PublicKey()

	if t.cfg.UseBundle && t.cfg.TipLamports > 0 {
		instructions = append(instructions, jito.NewTipInstruction(owner, t.cfg.TipLamports))
	}

	recent, err := t.rpc.GetLatestBlockhash(ctx, t.cfg.Commitment)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("%w: get latest blockhash: %v", ErrSubmissionFailed, err)
	}

	tx, err := solana.NewTransaction(
		instructions,
		recent.Value.Blockhash,
		solana.TransactionPayer(owner),
	)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("%w: build transaction: %v", ErrSubmissionFailed, err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if owner.Equals(key) {
			return &t.signer
		}
		for i := range extraSigners {
			if extraSigners[i].PublicKey().Equals(key) {
				return &extraSigners[i]
			}
		}
		return nil
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("%w: sign transaction: %v", ErrSubmissionFailed, err)
	}

	sig := tx.Signatures[0]

	if t.cfg.UseBundle {
		bundleID, sendErr := t.relay.SendBundle(ctx, []*solana.Transaction{tx})
		if sendErr != nil {
			return solana.Signature{}, fmt.Errorf("%w: %v", ErrSubmissionFailed, sendErr)
		}
		t.logger.Info("bundle submitted",
			slog.String("bundle_id", bundleID),
			slog.String("signature", sig.String()))
	} else {
		sent, sendErr := t.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
			SkipPreflight:       t.cfg.SkipPreflight,
			PreflightCommitment: t.cfg.Commitment,
		})
		if sendErr != nil {
			return solana.Signature{}, fmt.Errorf("%w: %v", ErrSubmissionFailed, sendErr)
		}
		sig = sent
	}

	if err := t.waitForConfirmation(ctx, sig); err != nil {
		return solana.Signature{}, err
	}
	return sig, nil
}

func (t *Trader) waitForConfirmation(ctx context.Context, sig solana.Signature) error {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.TxTimeout)
	defer cancel()

	ticker := time.NewTicker(t.cfg.ConfirmPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s", ErrConfirmationTimeout, sig)
		case <-ticker.C:
			result, err := t.rpc.GetSignatureStatuses(ctx, true, sig)
			if err != nil {
				continue
			}
			if len(result.Value) == 0 || result.Value[0] == nil {
				continue
			}
			status := result.Value[0]
			if status.Err != nil {
				return fmt.Errorf("%w: %v", ErrOnChainRejected, status.Err)
			}
			if status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
				status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return nil
			}
		}
	}
}

func (t *Trader) poolReserves(ctx context.Context, keys *raydium.PoolKeys) (safety.Reserves, error) {
	base, err := t.tokenBalance(ctx, keys.BaseVault)
	if err != nil {
		return safety.Reserves{}, fmt.Errorf("fetch base vault balance: %w", err)
	}
	quote, err := t.tokenBalance(ctx, keys.QuoteVault)
	if err != nil {
		return safety.Reserves{}, fmt.Errorf("fetch quote vault balance: %w", err)
	}
	return safety.Reserves{Base: base, Quote: quote}, nil
}

func (t *Trader) tokenBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	resp, err := t.rpc.GetTokenAccountBalance(ctx, account, t.cfg.Commitment)
	if err != nil {
		return 0, err
	}
	if resp == nil || resp.Value == nil {
		return 0, fmt.Errorf("empty balance response for %s", account)
	}
	amount, err := strconv.ParseUint(resp.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse balance %q: %w", resp.Value.Amount, err)
	}
	return amount, nil
}

// quoteSideReserves normalizes reserves so the gate always sees WSOL
// on the quote side, whichever vault it actually sits in.
func (t *Trader) quoteSideReserves(keys *raydium.PoolKeys, reserves safety.Reserves) safety.Reserves {
	if keys.BaseMint.Equals(raydium.WSOLMint) {
		return safety.Reserves{Base: reserves.Quote, Quote: reserves.Base}
	}
	return reserves
}

// swapReserves orients the pool for buying mint with WSOL: returns
// (WSOL-side reserve, mint-side reserve).
func (t *Trader) swapReserves(keys *raydium.PoolKeys, reserves safety.Reserves, mint solana.PublicKey) (reserveIn, reserveOut uint64) {
	if keys.BaseMint.Equals(mint) {
		return reserves.Quote, reserves.Base
	}
	return reserves.Base, reserves.Quote
}
