// Package solana implements the escrow client port against the on-chain
// hash-time-locked escrow program: PDA/ATA derivation, instruction
// building, transaction submission and account-state decoding.
package solana

import (
	"github.com/gagliardetto/solana-go"

	"github.com/satsbridge/swapd/internal/core/ports"
)

var (
	escrowSeedPrefix = []byte("escrow")
	configSeedPrefix = []byte("config")
)

// Client implements ports.EscrowClient against a configured program ID and
// RPC endpoint.
type Client struct {
	programID solana.PublicKey
	rpc       rpcClient
	signer    solana.PrivateKey
}

// DeriveEscrowPDA derives the escrow account address for paymentHash under
// the configured program, per the program's ("escrow", payment_hash) seeds.
func (c *Client) DeriveEscrowPDA(paymentHash [32]byte) ([32]byte, uint8) {
	pda, bump, err := solana.FindProgramAddress([][]byte{escrowSeedPrefix, paymentHash[:]}, c.programID)
	if err != nil {
		// Seed derivation only fails if the seeds are malformed, which
		// cannot happen with fixed-length inputs; a panic here would
		// indicate a programming error in the seed constants above.
		panic("solana: escrow pda derivation failed: " + err.Error())
	}
	return pda, bump
}

// DeriveConfigPDA derives the singleton config account address, per the
// program's ("config",) seeds.
func (c *Client) DeriveConfigPDA() ([32]byte, uint8) {
	pda, bump, err := solana.FindProgramAddress([][]byte{configSeedPrefix}, c.programID)
	if err != nil {
		panic("solana: config pda derivation failed: " + err.Error())
	}
	return pda, bump
}

// DeriveVaultATA derives owner's associated token account under mint. Used
// both for the escrow PDA's vault and, with the config PDA as owner, for
// the program's fee vault.
func (c *Client) DeriveVaultATA(owner, mint [32]byte) [32]byte {
	ata, _, err := solana.FindAssociatedTokenAddress(
		solana.PublicKeyFromBytes(owner[:]), solana.PublicKeyFromBytes(mint[:]))
	if err != nil {
		panic("solana: vault ata derivation failed: " + err.Error())
	}
	return ata
}

var _ ports.EscrowClient = (*Client)(nil)
