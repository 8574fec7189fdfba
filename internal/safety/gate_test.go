package safety

import (
	"errors"
	"testing"
)

func TestEvaluate_Passes(t *testing.T) {
	reserves := Reserves{Base: 1_000_000_000, Quote: 50_000_000_000} // 50 SOL
	err := Evaluate(reserves, TokenFlags{}, 200, 1000)
	if err != nil {
		t.Fatalf("expected pass, got %v", err)
	}
}

func TestEvaluate_EmptyReserves(t *testing.T) {
	cases := []Reserves{
		{Base: 0, Quote: 1_000_000},
		{Base: 1_000_000, Quote: 0},
		{},
	}
	for _, reserves := range cases {
		err := Evaluate(reserves, TokenFlags{}, 200, 1000)
		if !errors.Is(err, ErrInsufficientLiquidity) {
			t.Errorf("reserves %+v: expected ErrInsufficientLiquidity, got %v", reserves, err)
		}
	}
}

func TestEvaluate_UnsafeToken(t *testing.T) {
	reserves := Reserves{Base: 1_000_000_000, Quote: 50_000_000_000}

	err := Evaluate(reserves, TokenFlags{Freezable: true}, 200, 1000)
	if !errors.Is(err, ErrUnsafeToken) {
		t.Errorf("freezable: expected ErrUnsafeToken, got %v", err)
	}

	err = Evaluate(reserves, TokenFlags{MetadataMutable: true}, 200, 1000)
	if !errors.Is(err, ErrUnsafeToken) {
		t.Errorf("mutable metadata: expected ErrUnsafeToken, got %v", err)
	}
}

func TestEvaluate_LiquidityFloor(t *testing.T) {
	// 4 SOL at $200 = $800, below a $1000 floor.
	err := Evaluate(Reserves{Base: 1_000_000_000, Quote: 4_000_000_000}, TokenFlags{}, 200, 1000)
	if !errors.Is(err, ErrLiquidityTooLow) {
		t.Errorf("expected ErrLiquidityTooLow, got %v", err)
	}

	// Exactly at the floor passes: the rule rejects strictly below.
	err = Evaluate(Reserves{Base: 1_000_000_000, Quote: 5_000_000_000}, TokenFlags{}, 200, 1000)
	if err != nil {
		t.Errorf("expected pass at exact floor, got %v", err)
	}
}

func TestEvaluate_OrderFirstFailureWins(t *testing.T) {
	// Empty reserves and a freezable token: the liquidity check fires
	// first, so the error identifies the liquidity rule.
	err := Evaluate(Reserves{}, TokenFlags{Freezable: true}, 200, 1000)
	if !errors.Is(err, ErrInsufficientLiquidity) {
		t.Errorf("expected ErrInsufficientLiquidity first, got %v", err)
	}

	// Freezable beats the floor check.
	err = Evaluate(Reserves{Base: 1, Quote: 1}, TokenFlags{Freezable: true}, 200, 1000)
	if !errors.Is(err, ErrUnsafeToken) {
		t.Errorf("expected ErrUnsafeToken before floor, got %v", err)
	}
}
