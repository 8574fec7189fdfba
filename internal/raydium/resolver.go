package raydium

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// ErrPoolResolution marks any failure between receiving a pool id and
// assembling a complete descriptor. Callers never see a partial result.
var ErrPoolResolution = errors.New("pool resolution failed")

// PoolKeys is the full set of addresses needed to build a swap against
// one AMM V4 pool. Immutable once assembled.
type PoolKeys struct {
	ID            solana.PublicKey
	BaseMint      solana.PublicKey
	QuoteMint     solana.PublicKey
	LpMint        solana.PublicKey
	BaseDecimals  uint8
	QuoteDecimals uint8

	AmmProgramID solana.PublicKey
	Authority    solana.PublicKey
	OpenOrders   solana.PublicKey
	TargetOrders solana.PublicKey
	BaseVault    solana.PublicKey
	QuoteVault   solana.PublicKey

	MarketProgramID  solana.PublicKey
	MarketID         solana.PublicKey
	MarketAuthority  solana.PublicKey
	MarketBaseVault  solana.PublicKey
	MarketQuoteVault solana.PublicKey
	MarketBids       solana.PublicKey
	MarketAsks       solana.PublicKey
	MarketEventQueue solana.PublicKey
}

// AccountFetcher reads raw account bytes plus the owning program.
type AccountFetcher interface {
	AccountData(ctx context.Context, address solana.PublicKey) (data []byte, owner solana.PublicKey, err error)
}

type rpcFetcher struct {
	client     *rpc.Client
	commitment rpc.CommitmentType
}

func NewRPCFetcher(client *rpc.Client, commitment rpc.CommitmentType) AccountFetcher {
	return &rpcFetcher{client: client, commitment: commitment}
}

func (f *rpcFetcher) AccountData(ctx context.Context, address solana.PublicKey) ([]byte, solana.PublicKey, error) {
	resp, err := f.client.GetAccountInfoWithOpts(ctx, address, &rpc.GetAccountInfoOpts{Commitment: f.commitment})
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	if resp == nil || resp.Value == nil {
		return nil, solana.PublicKey{}, fmt.Errorf("account %s not found", address)
	}
	return resp.Value.Data.GetBinary(), resp.Value.Owner, nil
}

type Resolver struct {
	fetcher      AccountFetcher
	ammProgramID solana.PublicKey
}

func NewResolver(fetcher AccountFetcher, ammProgramID solana.PublicKey) *Resolver {
	return &Resolver{fetcher: fetcher, ammProgramID: ammProgramID}
}

// Resolve fetches and decodes the pool and its order-book market and
// derives both program authorities.
func (r *Resolver) Resolve(ctx context.Context, poolID, tradedMint solana.PublicKey) (*PoolKeys, error) {
	poolData, _, err := r.fetcher.AccountData(ctx, poolID)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch pool account %s: %v", ErrPoolResolution, poolID, err)
	}

	pool, err := DecodeLiquidityStateV4(poolData)
	if err != nil {
		return nil, fmt.Errorf("%w: pool %s: %v", ErrPoolResolution, poolID, err)
	}

	if !tradedMint.Equals(pool.BaseMint) && !tradedMint.Equals(pool.QuoteMint) {
		return nil, fmt.Errorf("%w: mint %s is not traded by pool %s", ErrPoolResolution, tradedMint, poolID)
	}
	if !pool.BaseMint.Equals(WSOLMint) && !pool.QuoteMint.Equals(WSOLMint) {
		return nil, fmt.Errorf("%w: pool %s does not pair against the wrapped native token", ErrPoolResolution, poolID)
	}

	marketData, marketProgramID, err := r.fetcher.AccountData(ctx, pool.MarketID)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch market account %s: %v", ErrPoolResolution, pool.MarketID, err)
	}

	market, err := DecodeMarketStateV3(marketData)
	if err != nil {
		return nil, fmt.Errorf("%w: market %s: %v", ErrPoolResolution, pool.MarketID, err)
	}

	authority, _, err := DeriveAmmAuthority(r.ammProgramID)
	if err != nil {
		return nil, fmt.Errorf("%w: derive amm authority: %v", ErrPoolResolution, err)
	}
	marketAuthority, err := DeriveMarketVaultSigner(marketProgramID, market.OwnAddress, market.VaultSignerNonce)
	if err != nil {
		return nil, fmt.Errorf("%w: derive market vault signer for %s: %v", ErrPoolResolution, market.OwnAddress, err)
	}

	return &PoolKeys{
		ID:               poolID,
		BaseMint:         pool.BaseMint,
		QuoteMint:        pool.QuoteMint,
		LpMint:           pool.LpMint,
		BaseDecimals:     uint8(pool.BaseDecimal),
		QuoteDecimals:    uint8(pool.QuoteDecimal),
		AmmProgramID:     r.ammProgramID,
		Authority:        authority,
		OpenOrders:       pool.OpenOrders,
		TargetOrders:     pool.TargetOrders,
		BaseVault:        pool.BaseVault,
		QuoteVault:       pool.QuoteVault,
		MarketProgramID:  marketProgramID,
		MarketID:         pool.MarketID,
		MarketAuthority:  marketAuthority,
		MarketBaseVault:  market.BaseVault,
		MarketQuoteVault: market.QuoteVault,
		MarketBids:       market.Bids,
		MarketAsks:       market.Asks,
		MarketEventQueue: market.EventQueue,
	}, nil
}
