package solana

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// ConfigAccount is the decoded singleton program config, in the
// base58-addressed shape escrowctl works with.
type ConfigAccount struct {
	Authority    string
	FeeCollector string
	FeeBps       uint16
	Bump         uint8
}

func (c *configAccount) toPublic() *ConfigAccount {
	return &ConfigAccount{
		Authority:    solana.PublicKeyFromBytes(c.Authority[:]).String(),
		FeeCollector: solana.PublicKeyFromBytes(c.FeeCollector[:]).String(),
		FeeBps:       c.FeeBps,
		Bump:         c.Bump,
	}
}

func initConfigInstructionData(feeCollector [32]byte, feeBps uint16) []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(instrInitConfig)
	buf.Write(feeCollector[:])
	binary.Write(buf, binary.LittleEndian, feeBps)
	return buf.Bytes()
}

func setConfigInstructionData(feeCollector [32]byte, feeBps uint16) []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(instrSetConfig)
	buf.Write(feeCollector[:])
	binary.Write(buf, binary.LittleEndian, feeBps)
	return buf.Bytes()
}

func withdrawFeesInstructionData(amount uint64) []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(instrWithdrawFees)
	binary.Write(buf, binary.LittleEndian, amount)
	return buf.Bytes()
}

// InitConfig submits the program's one-time config bootstrap, setting the
// platform fee collector and rate. authority becomes the only signer able
// to SetConfig/WithdrawFees afterward.
func (c *Client) InitConfig(ctx context.Context, authority, feeCollector string, feeBps uint16) (string, error) {
	authorityKey := solana.MustPublicKeyFromBase58(authority)
	feeCollectorKey := solana.MustPublicKeyFromBase58(feeCollector)
	var feeCollectorArr [32]byte
	copy(feeCollectorArr[:], feeCollectorKey.Bytes())

	configPDA, _ := c.DeriveConfigPDA()
	data := initConfigInstructionData(feeCollectorArr, feeBps)

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(authorityKey, true, true),
		solana.NewAccountMeta(solana.PublicKeyFromBytes(configPDA[:]), true, false),
		solana.NewAccountMeta(feeCollectorKey, false, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	}

	ix := customInstruction(c.programID, accounts, data)
	return c.sendInstruction(ctx, ix, authority)
}

// SetConfig updates the platform fee collector and rate. Only the config's
// current authority can submit this successfully; the program itself
// enforces that, this call just builds and sends the instruction.
func (c *Client) SetConfig(ctx context.Context, authority, newFeeCollector string, newFeeBps uint16) (string, error) {
	authorityKey := solana.MustPublicKeyFromBase58(authority)
	feeCollectorKey := solana.MustPublicKeyFromBase58(newFeeCollector)
	var feeCollectorArr [32]byte
	copy(feeCollectorArr[:], feeCollectorKey.Bytes())

	configPDA, _ := c.DeriveConfigPDA()
	data := setConfigInstructionData(feeCollectorArr, newFeeBps)

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(authorityKey, true, true),
		solana.NewAccountMeta(solana.PublicKeyFromBytes(configPDA[:]), true, false),
		solana.NewAccountMeta(feeCollectorKey, false, false),
	}

	ix := customInstruction(c.programID, accounts, data)
	return c.sendInstruction(ctx, ix, authority)
}

// GetConfig fetches and decodes the singleton program config account.
func (c *Client) GetConfig(ctx context.Context) (*ConfigAccount, error) {
	configPDA, _ := c.DeriveConfigPDA()
	data, err := c.rpc.GetAccountData(ctx, solana.PublicKeyFromBytes(configPDA[:]))
	if err != nil {
		return nil, fmt.Errorf("solana: fetch config account: %w", err)
	}
	cfg, err := decodeConfigAccountV1(data)
	if err != nil {
		return nil, err
	}
	return cfg.toPublic(), nil
}

// FeesBalance returns the SPL token balance held by feeCollectorTokenAccount.
func (c *Client) FeesBalance(ctx context.Context, feeCollectorTokenAccount string) (uint64, error) {
	account := solana.MustPublicKeyFromBase58(feeCollectorTokenAccount)
	return c.rpc.GetTokenAccountBalance(ctx, account)
}

// WithdrawFees moves amount out of feeCollectorTokenAccount to
// destinationTokenAccount, signed by the config's authority.
func (c *Client) WithdrawFees(ctx context.Context, authority, feeCollectorTokenAccount, destinationTokenAccount string, amount uint64) (string, error) {
	authorityKey := solana.MustPublicKeyFromBase58(authority)
	feeCollectorTA := solana.MustPublicKeyFromBase58(feeCollectorTokenAccount)
	destinationTA := solana.MustPublicKeyFromBase58(destinationTokenAccount)

	configPDA, _ := c.DeriveConfigPDA()
	data := withdrawFeesInstructionData(amount)

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(authorityKey, true, true),
		solana.NewAccountMeta(solana.PublicKeyFromBytes(configPDA[:]), true, false),
		solana.NewAccountMeta(feeCollectorTA, true, false),
		solana.NewAccountMeta(destinationTA, true, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
	}

	ix := customInstruction(c.programID, accounts, data)
	return c.sendInstruction(ctx, ix, authority)
}
