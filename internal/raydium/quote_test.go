package raydium

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeAmountOut_KnownVector(t *testing.T) {
	// 10_000 in against 1_000_000/500_000 at 10% slippage:
	// fee = 25, effective in = 9975,
	// out = floor(500000*9975/1009975) = 4938,
	// min out = floor(4938*9000/10000) = 4444.
	quote, err := ComputeAmountOut(1_000_000, 500_000, 10_000, 1000)
	require.NoError(t, err)

	require.Equal(t, uint64(10_000), quote.AmountIn)
	require.Equal(t, uint64(25), quote.Fee)
	require.Equal(t, uint64(4938), quote.AmountOut)
	require.Equal(t, uint64(4444), quote.MinAmountOut)
}

func TestComputeAmountOut_FeeTruncatesToZero(t *testing.T) {
	// 39 * 25 / 10000 floors to zero: the full input trades.
	quote, err := ComputeAmountOut(1_000_000, 1_000_000, 39, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(0), quote.Fee)
	require.Equal(t, uint64(38), quote.AmountOut)
	require.Equal(t, quote.AmountOut, quote.MinAmountOut)
}

func TestComputeAmountOut_MinNeverExceedsOut(t *testing.T) {
	for _, slippage := range []uint64{0, 1, 500, 9999} {
		quote, err := ComputeAmountOut(5_000_000, 3_000_000, 123_456, slippage)
		require.NoError(t, err)
		require.LessOrEqual(t, quote.MinAmountOut, quote.AmountOut, "slippage %d bps", slippage)
	}
}

func TestComputeAmountOut_OutputBelowReserve(t *testing.T) {
	// Even an input dwarfing the pool cannot drain the output reserve.
	quote, err := ComputeAmountOut(1_000, 1_000, 1_000_000_000, 0)
	require.NoError(t, err)
	require.Less(t, quote.AmountOut, uint64(1_000))
}

func TestComputeAmountOut_Rejections(t *testing.T) {
	_, err := ComputeAmountOut(0, 500_000, 10_000, 1000)
	require.Error(t, err)

	_, err = ComputeAmountOut(1_000_000, 0, 10_000, 1000)
	require.Error(t, err)

	_, err = ComputeAmountOut(1_000_000, 500_000, 0, 1000)
	require.Error(t, err)

	_, err = ComputeAmountOut(1_000_000, 500_000, 10_000, 10_000)
	require.Error(t, err)
}

func TestMulDivFloor(t *testing.T) {
	out, err := mulDivFloor(7, 3, 2)
	require.NoError(t, err)
	require.Equal(t, uint64(10), out)

	// Intermediate product exceeds 64 bits but the result fits.
	out, err = mulDivFloor(1<<63, 4, 8)
	require.NoError(t, err)
	require.Equal(t, uint64(1<<62), out)

	_, err = mulDivFloor(1, 1, 0)
	require.Error(t, err)

	_, err = mulDivFloor(1<<63, 4, 1)
	require.Error(t, err)
}
