package solana

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

func testClient() *Client {
	programID := solana.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	return &Client{programID: programID}
}

func TestDeriveEscrowPDADeterministic(t *testing.T) {
	c := testClient()
	var hash [32]byte
	copy(hash[:], []byte("0123456789abcdef0123456789abcde"))

	pda1, bump1 := c.DeriveEscrowPDA(hash)
	pda2, bump2 := c.DeriveEscrowPDA(hash)

	require.Equal(t, pda1, pda2)
	require.Equal(t, bump1, bump2)
	require.NotEqual(t, [32]byte{}, pda1)
}

func TestDeriveEscrowPDADiffersByPaymentHash(t *testing.T) {
	c := testClient()
	var h1, h2 [32]byte
	copy(h1[:], []byte("0123456789abcdef0123456789abcde"))
	copy(h2[:], []byte("fedcba9876543210fedcba9876543210"))

	pda1, _ := c.DeriveEscrowPDA(h1)
	pda2, _ := c.DeriveEscrowPDA(h2)

	require.NotEqual(t, pda1, pda2)
}

func TestDeriveConfigPDADeterministic(t *testing.T) {
	c := testClient()

	pda1, bump1 := c.DeriveConfigPDA()
	pda2, bump2 := c.DeriveConfigPDA()

	require.Equal(t, pda1, pda2)
	require.Equal(t, bump1, bump2)
}

func TestDeriveVaultATADeterministic(t *testing.T) {
	c := testClient()
	var hash [32]byte
	copy(hash[:], []byte("0123456789abcdef0123456789abcde"))
	escrowPDA, _ := c.DeriveEscrowPDA(hash)

	mint := solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	var mintArr [32]byte
	copy(mintArr[:], mint.Bytes())

	ata1 := c.DeriveVaultATA(escrowPDA, mintArr)
	ata2 := c.DeriveVaultATA(escrowPDA, mintArr)

	require.Equal(t, ata1, ata2)
	require.NotEqual(t, [32]byte{}, ata1)
	require.NotEqual(t, escrowPDA, ata1)
}
