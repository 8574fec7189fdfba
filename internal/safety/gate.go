// Package safety decides whether a freshly discovered pool is worth
// touching at all. The checks are ordered; the first failure wins and
// nothing downstream (quoting, transaction building) runs.
package safety

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrUnsafeToken           = errors.New("unsafe token")
	ErrLiquidityTooLow       = errors.New("liquidity below floor")
)

// Reserves are live vault balances, fetched fresh per evaluation.
type Reserves struct {
	Base  uint64
	Quote uint64
}

// TokenFlags are the mutability properties that make a mint dangerous:
// a freeze authority can lock bought tokens, mutable metadata is a
// common rug precursor.
type TokenFlags struct {
	Freezable       bool
	MetadataMutable bool
}

// Evaluate applies the rejection rules in order. quoteLamports is the
// WSOL-side reserve; its USD value is reserve * nativePriceUSD / 1e9.
func Evaluate(reserves Reserves, flags TokenFlags, nativePriceUSD, floorUSD float64) error {
	if reserves.Base == 0 || reserves.Quote == 0 {
		return fmt.Errorf("%w: base=%d quote=%d", ErrInsufficientLiquidity, reserves.Base, reserves.Quote)
	}

	if flags.Freezable {
		return fmt.Errorf("%w: freeze authority present", ErrUnsafeToken)
	}
	if flags.MetadataMutable {
		return fmt.Errorf("%w: metadata is mutable", ErrUnsafeToken)
	}

	quoteValueUSD := float64(reserves.Quote) / 1e9 * nativePriceUSD
	if quoteValueUSD < floorUSD {
		return fmt.Errorf("%w: quote side worth $%.2f, floor $%.2f", ErrLiquidityTooLow, quoteValueUSD, floorUSD)
	}

	return nil
}
