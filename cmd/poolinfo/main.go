// Command poolinfo inspects one AMM V4 pool: it resolves the full key
// set, reads live reserves and prices a sample buy, the same code path
// the sniper runs on a webhook event.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/jedib0t/go-pretty/v6/table"
	_ "github.com/joho/godotenv/autoload"

	"github.com/rayfire/sniper/internal/raydium"
)

func main() {
	poolAddr := flag.String("pool", "", "pool account address (required)")
	mintAddr := flag.String("mint", "", "traded mint; defaults to the non-WSOL side of the pool")
	rpcURL := flag.String("rpc", "https://api.mainnet-beta.solana.com", "RPC endpoint")
	spendSOL := flag.Float64("spend", 0.01, "buy size in SOL for the sample quote")
	slippageBps := flag.Uint64("slippage-bps", 1000, "slippage tolerance in basis points")
	flag.Parse()

	if *poolAddr == "" {
		fmt.Fprintln(os.Stderr, "usage: poolinfo -pool <address> [-mint <address>] [-rpc <url>]")
		os.Exit(2)
	}

	poolID, err := solana.PublicKeyFromBase58(*poolAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid pool address: %v\n", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := rpc.New(*rpcURL)
	fetcher := raydium.NewRPCFetcher(client, rpc.CommitmentConfirmed)

	ammProgramID, err := ammProgramFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid RAYDIUM_AMM_PROGRAM_ID: %v\n", err)
		os.Exit(2)
	}
	resolver := raydium.NewResolver(fetcher, ammProgramID)

	mint, err := resolveTradedMint(ctx, fetcher, poolID, *mintAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "resolve traded mint: %v\n", err)
		os.Exit(1)
	}

	keys, err := resolver.Resolve(ctx, poolID, mint)
	if err != nil {
		fmt.Fprintf(os.Stderr, "resolve pool: %v\n", err)
		os.Exit(1)
	}

	baseReserve, err := vaultBalance(ctx, client, keys.BaseVault)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fetch base reserve: %v\n", err)
		os.Exit(1)
	}
	quoteReserve, err := vaultBalance(ctx, client, keys.QuoteVault)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fetch quote reserve: %v\n", err)
		os.Exit(1)
	}

	spendLamports := uint64(*spendSOL * float64(solana.LAMPORTS_PER_SOL))
	reserveIn, reserveOut := quoteReserve, baseReserve
	if keys.BaseMint.Equals(raydium.WSOLMint) {
		reserveIn, reserveOut = baseReserve, quoteReserve
	}
	quote, err := raydium.ComputeAmountOut(reserveIn, reserveOut, spendLamports, *slippageBps)
	if err != nil {
		fmt.Fprintf(os.Stderr, "quote: %v\n", err)
		os.Exit(1)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(poolID.String())
	t.SetCaption("Raydium AMM V4 pool")
	t.AppendHeader(table.Row{"", "Base", "Quote"})
	t.AppendRow(table.Row{"Mint", keys.BaseMint.String(), keys.QuoteMint.String()})
	t.AppendRow(table.Row{"Decimals", keys.BaseDecimals, keys.QuoteDecimals})
	t.AppendRow(table.Row{"Vault", keys.BaseVault.String(), keys.QuoteVault.String()})
	t.AppendRow(table.Row{"Reserve", baseReserve, quoteReserve})
	t.AppendSeparator()
	t.AppendRow(table.Row{"Authority", keys.Authority.String(), ""})
	t.AppendRow(table.Row{"Open Orders", keys.OpenOrders.String(), ""})
	t.AppendRow(table.Row{"Market", keys.MarketID.String(), keys.MarketProgramID.String()})
	t.AppendRow(table.Row{"Market Authority", keys.MarketAuthority.String(), ""})
	t.AppendSeparator()
	t.AppendRow(table.Row{"Sample Spend", fmt.Sprintf("%.4f SOL", *spendSOL), ""})
	t.AppendRow(table.Row{"Amount Out", quote.AmountOut, ""})
	t.AppendRow(table.Row{"Min Amount Out", quote.MinAmountOut, ""})
	t.AppendRow(table.Row{"Price Impact", fmt.Sprintf("%.4f%%", quote.PriceImpact*100), ""})
	t.Render()
}

func ammProgramFromEnv() (solana.PublicKey, error) {
	if raw := os.Getenv("RAYDIUM_AMM_PROGRAM_ID"); raw != "" {
		return solana.PublicKeyFromBase58(raw)
	}
	return solana.MustPublicKeyFromBase58("675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"), nil
}

// resolveTradedMint decodes just the pool state to find the non-WSOL
// side when no mint was given explicitly.
func resolveTradedMint(ctx context.Context, fetcher raydium.AccountFetcher, poolID solana.PublicKey, explicit string) (solana.PublicKey, error) {
	if explicit != "" {
		return solana.PublicKeyFromBase58(explicit)
	}

	data, _, err := fetcher.AccountData(ctx, poolID)
	if err != nil {
		return solana.PublicKey{}, err
	}
	pool, err := raydium.DecodeLiquidityStateV4(data)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if pool.BaseMint.Equals(raydium.WSOLMint) {
		return pool.QuoteMint, nil
	}
	return pool.BaseMint, nil
}

func vaultBalance(ctx context.Context, client *rpc.Client, vault solana.PublicKey) (uint64, error) {
	resp, err := client.GetTokenAccountBalance(ctx, vault, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, err
	}
	if resp == nil || resp.Value == nil {
		return 0, fmt.Errorf("empty balance response for %s", vault)
	}
	return strconv.ParseUint(resp.Value.Amount, 10, 64)
}
