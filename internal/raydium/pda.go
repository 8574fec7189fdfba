package raydium

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"
)

// WSOLMint is the wrapped native token; every pool discovered through
// the webhook pipeline pairs against it.
var WSOLMint = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")

var ammAuthoritySeed = []byte("amm authority")

// DeriveAmmAuthority returns the program-derived vault authority shared
// by every pool of one AMM program.
func DeriveAmmAuthority(ammProgramID solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{ammAuthoritySeed}, ammProgramID)
}

// DeriveMarketVaultSigner rebuilds the market's vault signer from the
// nonce stored in the market state. The derivation is pure: nothing is
// fetched, so it is bit-exact across runs.
func DeriveMarketVaultSigner(marketProgramID, marketID solana.PublicKey, vaultSignerNonce uint64) (solana.PublicKey, error) {
	return solana.CreateProgramAddress([][]byte{marketID.Bytes(), u64LE(vaultSignerNonce)}, marketProgramID)
}

func u64LE(value uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, value)
	return buf
}
