package ports

import "context"

// EscrowAccount is the decoded on-chain escrow layout (v2), independent of
// the binary encoding used to store it.
type EscrowAccount struct {
	Version         uint8
	Status          uint8 // 0=active, 1=claimed, 2=refunded
	PaymentHash     [32]byte
	Recipient       [32]byte
	Refund          [32]byte
	RefundAfterUnix int64
	Mint            [32]byte
	NetAmount       uint64
	FeeAmount       uint64
	FeeBps          uint16
	FeeCollector    [32]byte
	Vault           [32]byte
	Bump            uint8
}

const (
	EscrowStatusActive   uint8 = 0
	EscrowStatusClaimed  uint8 = 1
	EscrowStatusRefunded uint8 = 2
)

// EscrowClient is the on-chain settlement contract: derive the program's
// deterministic addresses, build/submit the three trade instructions, and
// decode account state for the taker's pre-payment guard.
type EscrowClient interface {
	DeriveEscrowPDA(paymentHash [32]byte) (pda [32]byte, bump uint8)
	DeriveConfigPDA() (pda [32]byte, bump uint8)
	DeriveVaultATA(owner, mint [32]byte) [32]byte

	// ProgramID is the base58 address of the escrow program this client is
	// configured against, so a peer can check a counterparty's claimed
	// program_id before trusting anything else about an escrow.
	ProgramID() string

	CreateEscrow(ctx context.Context, req CreateEscrowRequest) (txSig string, err error)
	ClaimEscrow(ctx context.Context, req ClaimEscrowRequest) (txSig string, err error)
	RefundEscrow(ctx context.Context, req RefundEscrowRequest) (txSig string, err error)

	GetEscrowState(ctx context.Context, paymentHash [32]byte) (*EscrowAccount, error)

	// VaultBalance reads the SPL token balance currently held by vaultATA,
	// so the taker can confirm the vault actually holds the locked funds
	// before paying the Lightning leg of the swap.
	VaultBalance(ctx context.Context, vaultATA [32]byte) (uint64, error)
}

// CreateEscrowRequest carries every parameter create_escrow_tx needs, per
// the escrow program's externally visible ABI. The program derives its own
// fee (from the on-chain config account's single fee_bps/fee_collector) and
// is not handed a fee amount or fee collector by the caller.
type CreateEscrowRequest struct {
	Payer             string
	PayerTokenAccount string
	Mint              string
	PaymentHash       [32]byte
	Recipient         string
	Refund            string
	RefundAfterUnix   int64
	NetAmount         uint64
}

// ClaimEscrowRequest carries every parameter claim_escrow_tx needs. The fee
// vault is the program's deterministic ATA of the config PDA, derived by
// the client itself rather than supplied by the caller.
type ClaimEscrowRequest struct {
	RecipientSigner       string
	RecipientTokenAccount string
	Mint                  string
	PaymentHash           [32]byte
	Preimage              [32]byte
}

// RefundEscrowRequest carries every parameter refund_escrow_tx needs.
type RefundEscrowRequest struct {
	RefundSigner      string
	RefundTokenAccount string
	Mint              string
	PaymentHash       [32]byte
}
