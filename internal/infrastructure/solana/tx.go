package solana

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/satsbridge/swapd/internal/core/ports"
)

// initInstructionData matches the program's Init parser exactly:
// tag(1) || payment_hash(32) || recipient(32) || refund(32) ||
// refund_after(8, i64 LE) || amount(8, u64 LE) — 113 bytes. The program
// reads its own fee_bps out of the on-chain config account, so no fee
// parameter is ever part of this instruction's data.
func initInstructionData(paymentHash, recipient, refund [32]byte, refundAfterUnix int64, netAmount uint64) []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(instrInit)
	buf.Write(paymentHash[:])
	buf.Write(recipient[:])
	buf.Write(refund[:])
	binary.Write(buf, binary.LittleEndian, refundAfterUnix)
	binary.Write(buf, binary.LittleEndian, netAmount)
	return buf.Bytes()
}

func claimInstructionData(preimage [32]byte) []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(instrClaim)
	buf.Write(preimage[:])
	return buf.Bytes()
}

func refundInstructionData() []byte {
	return []byte{instrRefund}
}

// customInstruction builds a solana.Instruction against the escrow program
// with the given accounts and pre-built instruction data. The program's ABI
// is fixed-layout, not IDL/Borsh-generic, so there is no generated client
// to delegate to here.
func customInstruction(programID solana.PublicKey, accounts solana.AccountMetaSlice, data []byte) solana.Instruction {
	return solana.NewInstruction(programID, accounts, data)
}

// CreateEscrow submits the program's Init instruction. Account order is
// fixed by the program: payer, payer_token, escrow, vault, mint,
// system_program, token_program, ata_program, rent_sysvar, config,
// fee_vault — the fee_vault is the config PDA's associated token account,
// which the program creates on first use if it does not already exist.
func (c *Client) CreateEscrow(ctx context.Context, req ports.CreateEscrowRequest) (string, error) {
	mint := solana.MustPublicKeyFromBase58(req.Mint)
	payer := solana.MustPublicKeyFromBase58(req.Payer)
	payerTokenAccount := solana.MustPublicKeyFromBase58(req.PayerTokenAccount)
	recipient := solana.MustPublicKeyFromBase58(req.Recipient)
	refund := solana.MustPublicKeyFromBase58(req.Refund)

	var mintArr, recipientArr, refundArr [32]byte
	copy(mintArr[:], mint.Bytes())
	copy(recipientArr[:], recipient.Bytes())
	copy(refundArr[:], refund.Bytes())

	escrowPDA, _ := c.DeriveEscrowPDA(req.PaymentHash)
	vaultATA := c.DeriveVaultATA(escrowPDA, mintArr)
	configPDA, _ := c.DeriveConfigPDA()
	feeVaultATA := c.DeriveVaultATA(configPDA, mintArr)

	data := initInstructionData(req.PaymentHash, recipientArr, refundArr, req.RefundAfterUnix, req.NetAmount)

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(payer, true, true),
		solana.NewAccountMeta(payerTokenAccount, true, false),
		solana.NewAccountMeta(solana.PublicKeyFromBytes(escrowPDA[:]), true, false),
		solana.NewAccountMeta(solana.PublicKeyFromBytes(vaultATA[:]), true, false),
		solana.NewAccountMeta(mint, false, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(solana.SPLAssociatedTokenAccountProgramID, false, false),
		solana.NewAccountMeta(solana.SysVarRentPubkey, false, false),
		solana.NewAccountMeta(solana.PublicKeyFromBytes(configPDA[:]), false, false),
		solana.NewAccountMeta(solana.PublicKeyFromBytes(feeVaultATA[:]), true, false),
	}

	ix := customInstruction(c.programID, accounts, data)
	return c.sendInstruction(ctx, ix, req.Payer)
}

// ClaimEscrow submits the program's Claim instruction. Account order:
// recipient (signer), escrow, vault, recipient_token, fee_vault,
// token_program. The program transfers net_amount to recipient_token and,
// if fee_amount > 0, fee_amount to fee_vault, both signed by the escrow
// PDA's own seeds.
func (c *Client) ClaimEscrow(ctx context.Context, req ports.ClaimEscrowRequest) (string, error) {
	recipientSigner := solana.MustPublicKeyFromBase58(req.RecipientSigner)
	recipientTokenAccount := solana.MustPublicKeyFromBase58(req.RecipientTokenAccount)

	var mintArr [32]byte
	copy(mintArr[:], solana.MustPublicKeyFromBase58(req.Mint).Bytes())

	escrowPDA, _ := c.DeriveEscrowPDA(req.PaymentHash)
	vaultATA := c.DeriveVaultATA(escrowPDA, mintArr)
	configPDA, _ := c.DeriveConfigPDA()
	feeVaultATA := c.DeriveVaultATA(configPDA, mintArr)

	data := claimInstructionData(req.Preimage)

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(recipientSigner, true, true),
		solana.NewAccountMeta(solana.PublicKeyFromBytes(escrowPDA[:]), true, false),
		solana.NewAccountMeta(solana.PublicKeyFromBytes(vaultATA[:]), true, false),
		solana.NewAccountMeta(recipientTokenAccount, true, false),
		solana.NewAccountMeta(solana.PublicKeyFromBytes(feeVaultATA[:]), true, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
	}

	ix := customInstruction(c.programID, accounts, data)
	return c.sendInstruction(ctx, ix, req.RecipientSigner)
}

// RefundEscrow submits the program's Refund instruction. Account order:
// refund (signer), escrow, vault, refund_token, token_program,
// clock_sysvar — the program reads Clock off the sysvar account to check
// the refund window has actually elapsed before releasing net_amount plus
// fee_amount back to refund_token.
func (c *Client) RefundEscrow(ctx context.Context, req ports.RefundEscrowRequest) (string, error) {
	refundSigner := solana.MustPublicKeyFromBase58(req.RefundSigner)
	refundTokenAccount := solana.MustPublicKeyFromBase58(req.RefundTokenAccount)

	var mintArr [32]byte
	copy(mintArr[:], solana.MustPublicKeyFromBase58(req.Mint).Bytes())

	escrowPDA, _ := c.DeriveEscrowPDA(req.PaymentHash)
	vaultATA := c.DeriveVaultATA(escrowPDA, mintArr)

	data := refundInstructionData()

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(refundSigner, true, true),
		solana.NewAccountMeta(solana.PublicKeyFromBytes(escrowPDA[:]), true, false),
		solana.NewAccountMeta(solana.PublicKeyFromBytes(vaultATA[:]), true, false),
		solana.NewAccountMeta(refundTokenAccount, true, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(solana.SysVarClockPubkey, false, false),
	}

	ix := customInstruction(c.programID, accounts, data)
	return c.sendInstruction(ctx, ix, req.RefundSigner)
}

func (c *Client) GetEscrowState(ctx context.Context, paymentHash [32]byte) (*ports.EscrowAccount, error) {
	escrowPDA, _ := c.DeriveEscrowPDA(paymentHash)
	data, err := c.rpc.GetAccountData(ctx, solana.PublicKeyFromBytes(escrowPDA[:]))
	if err != nil {
		return nil, fmt.Errorf("solana: fetch escrow account: %w", err)
	}
	return decodeEscrowAccountV2(data)
}
