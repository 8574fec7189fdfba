package raydium

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"
)

// swapBaseIn: fixed-side-in swap, instruction tag 9 on the AMM program.
const swapBaseInTag = uint8(9)

// NewSwapBaseInInstruction builds the 18-account swap instruction. The
// direction (base→quote or quote→base) is fixed entirely by which user
// token accounts are passed as source and destination.
func NewSwapBaseInInstruction(
	keys *PoolKeys,
	userSource solana.PublicKey,
	userDestination solana.PublicKey,
	owner solana.PublicKey,
	amountIn uint64,
	minAmountOut uint64,
) solana.Instruction {
	data := make([]byte, 17)
	data[0] = swapBaseInTag
	binary.LittleEndian.PutUint64(data[1:9], amountIn)
	binary.LittleEndian.PutUint64(data[9:17], minAmountOut)

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(keys.ID, true, false),
		solana.NewAccountMeta(keys.Authority, false, false),
		solana.NewAccountMeta(keys.OpenOrders, true, false),
		solana.NewAccountMeta(keys.TargetOrders, true, false),
		solana.NewAccountMeta(keys.BaseVault, true, false),
		solana.NewAccountMeta(keys.QuoteVault, true, false),
		solana.NewAccountMeta(keys.MarketProgramID, false, false),
		solana.NewAccountMeta(keys.MarketID, true, false),
		solana.NewAccountMeta(keys.MarketBids, true, false),
		solana.NewAccountMeta(keys.MarketAsks, true, false),
		solana.NewAccountMeta(keys.MarketEventQueue, true, false),
		solana.NewAccountMeta(keys.MarketBaseVault, true, false),
		solana.NewAccountMeta(keys.MarketQuoteVault, true, false),
		solana.NewAccountMeta(keys.MarketAuthority, false, false),
		solana.NewAccountMeta(userSource, true, false),
		solana.NewAccountMeta(userDestination, true, false),
		solana.NewAccountMeta(owner, false, true),
	}

	return solana.NewInstruction(keys.AmmProgramID, accounts, data)
}
