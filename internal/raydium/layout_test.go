package raydium

import (
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

func putU64(buf []byte, off int, v uint64) {
	binary.LittleEndian.PutUint64(buf[off:off+8], v)
}

func putKey(buf []byte, off int, key solana.PublicKey) {
	copy(buf[off:off+32], key[:])
}

// Field offsets are what matters here: a one-field drift in the layout
// silently points every downstream instruction at the wrong accounts.
func TestDecodeLiquidityStateV4_Offsets(t *testing.T) {
	baseVault := solana.NewWallet().PublicKey()
	quoteVault := solana.NewWallet().PublicKey()
	baseMint := solana.NewWallet().PublicKey()
	quoteMint := solana.NewWallet().PublicKey()
	lpMint := solana.NewWallet().PublicKey()
	openOrders := solana.NewWallet().PublicKey()
	marketID := solana.NewWallet().PublicKey()
	marketProgram := solana.NewWallet().PublicKey()
	targetOrders := solana.NewWallet().PublicKey()

	buf := make([]byte, LiquidityStateV4Size)
	putU64(buf, 0, 6)      // status
	putU64(buf, 32, 9)     // base decimals
	putU64(buf, 40, 6)     // quote decimals
	putKey(buf, 336, baseVault)
	putKey(buf, 368, quoteVault)
	putKey(buf, 400, baseMint)
	putKey(buf, 432, quoteMint)
	putKey(buf, 464, lpMint)
	putKey(buf, 496, openOrders)
	putKey(buf, 528, marketID)
	putKey(buf, 560, marketProgram)
	putKey(buf, 592, targetOrders)
	putU64(buf, 720, 12345) // lp reserve

	state, err := DecodeLiquidityStateV4(buf)
	require.NoError(t, err)

	require.Equal(t, uint64(6), state.Status)
	require.Equal(t, uint64(9), state.BaseDecimal)
	require.Equal(t, uint64(6), state.QuoteDecimal)
	require.Equal(t, baseVault, state.BaseVault)
	require.Equal(t, quoteVault, state.QuoteVault)
	require.Equal(t, baseMint, state.BaseMint)
	require.Equal(t, quoteMint, state.QuoteMint)
	require.Equal(t, lpMint, state.LpMint)
	require.Equal(t, openOrders, state.OpenOrders)
	require.Equal(t, marketID, state.MarketID)
	require.Equal(t, marketProgram, state.MarketProgramID)
	require.Equal(t, targetOrders, state.TargetOrders)
	require.Equal(t, uint64(12345), state.LpReserve)
}

func TestDecodeLiquidityStateV4_SizeMismatch(t *testing.T) {
	for _, size := range []int{0, 751, 753, 2208} {
		_, err := DecodeLiquidityStateV4(make([]byte, size))
		require.Error(t, err, "size %d", size)
	}
}

func TestDecodeMarketStateV3_Offsets(t *testing.T) {
	ownAddress := solana.NewWallet().PublicKey()
	baseVault := solana.NewWallet().PublicKey()
	quoteVault := solana.NewWallet().PublicKey()
	requestQueue := solana.NewWallet().PublicKey()
	eventQueue := solana.NewWallet().PublicKey()
	bids := solana.NewWallet().PublicKey()
	asks := solana.NewWallet().PublicKey()

	buf := make([]byte, MarketStateV3Size)
	copy(buf[0:5], "serum")
	putU64(buf, 5, 3)       // account flags
	putKey(buf, 13, ownAddress)
	putU64(buf, 45, 1)      // vault signer nonce
	putKey(buf, 117, baseVault)
	putKey(buf, 165, quoteVault)
	putKey(buf, 221, requestQueue)
	putKey(buf, 253, eventQueue)
	putKey(buf, 285, bids)
	putKey(buf, 317, asks)
	copy(buf[381:388], "padding")

	state, err := DecodeMarketStateV3(buf)
	require.NoError(t, err)

	require.Equal(t, "serum", string(state.SerumPadding[:]))
	require.Equal(t, ownAddress, state.OwnAddress)
	require.Equal(t, uint64(1), state.VaultSignerNonce)
	require.Equal(t, baseVault, state.BaseVault)
	require.Equal(t, quoteVault, state.QuoteVault)
	require.Equal(t, requestQueue, state.RequestQueue)
	require.Equal(t, eventQueue, state.EventQueue)
	require.Equal(t, bids, state.Bids)
	require.Equal(t, asks, state.Asks)
}

func TestDecodeMarketStateV3_SizeMismatch(t *testing.T) {
	for _, size := range []int{0, 387, 389} {
		_, err := DecodeMarketStateV3(make([]byte, size))
		require.Error(t, err, "size %d", size)
	}
}
