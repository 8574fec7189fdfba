package raydium

import (
	"fmt"
	"math/big"
)

const (
	// Raydium V4 swap fee: 0.25% taken from the input amount.
	SwapFeeNumerator   = 25
	SwapFeeDenominator = 10_000

	bpsDenom = uint64(10_000)
)

// Quote is recomputed per attempt from fresh reserves; it is never
// cached across events.
type Quote struct {
	AmountIn     uint64
	AmountOut    uint64
	MinAmountOut uint64
	Fee          uint64

	// Reporting only. On-chain amounts above are the source of truth.
	CurrentPrice   float64
	ExecutionPrice float64
	PriceImpact    float64
}

// ComputeAmountOut prices a constant-product swap of amountIn against
// the (reserveIn, reserveOut) pair. Every division truncates: the
// minimum acceptable output must never be overstated, or the program
// rejects the swap as slippage even when the fill was fine.
func ComputeAmountOut(reserveIn, reserveOut, amountIn, slippageBps uint64) (Quote, error) {
	if reserveIn == 0 || reserveOut == 0 {
		return Quote{}, fmt.Errorf("compute amount out: empty reserves (in=%d out=%d)", reserveIn, reserveOut)
	}
	if amountIn == 0 {
		return Quote{}, fmt.Errorf("compute amount out: zero input amount")
	}
	if slippageBps >= bpsDenom {
		return Quote{}, fmt.Errorf("compute amount out: slippage %d bps out of range", slippageBps)
	}

	fee, err := mulDivFloor(amountIn, SwapFeeNumerator, SwapFeeDenominator)
	if err != nil {
		return Quote{}, fmt.Errorf("compute amount out: %w", err)
	}
	effectiveIn := amountIn - fee

	// out = reserveOut * effectiveIn / (reserveIn + effectiveIn)
	numerator := new(big.Int).Mul(new(big.Int).SetUint64(reserveOut), new(big.Int).SetUint64(effectiveIn))
	denominator := new(big.Int).Add(new(big.Int).SetUint64(reserveIn), new(big.Int).SetUint64(effectiveIn))
	outBig := new(big.Int).Div(numerator, denominator)
	if !outBig.IsUint64() {
		return Quote{}, fmt.Errorf("compute amount out: output overflow")
	}
	amountOut := outBig.Uint64()

	minAmountOut, err := mulDivFloor(amountOut, bpsDenom-slippageBps, bpsDenom)
	if err != nil {
		return Quote{}, fmt.Errorf("compute amount out: %w", err)
	}

	currentPrice := float64(reserveIn) / float64(reserveOut)
	var executionPrice, priceImpact float64
	if amountOut > 0 {
		executionPrice = float64(amountIn) / float64(amountOut)
		priceImpact = (executionPrice - currentPrice) / currentPrice
	}

	return Quote{
		AmountIn:       amountIn,
		AmountOut:      amountOut,
		MinAmountOut:   minAmountOut,
		Fee:            fee,
		CurrentPrice:   currentPrice,
		ExecutionPrice: executionPrice,
		PriceImpact:    priceImpact,
	}, nil
}

func mulDivFloor(a, b, denominator uint64) (uint64, error) {
	if denominator == 0 {
		return 0, fmt.Errorf("division by zero")
	}
	out := new(big.Int).SetUint64(a)
	out.Mul(out, new(big.Int).SetUint64(b))
	out.Div(out, new(big.Int).SetUint64(denominator))
	if !out.IsUint64() {
		return 0, fmt.Errorf("mulDiv overflow")
	}
	return out.Uint64(), nil
}
