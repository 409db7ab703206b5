package solana

import (
	"context"
	"fmt"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// rpcClient is the thin slice of the Solana RPC surface the escrow client
// needs, narrowed from *rpc.Client so client.go stays testable against a
// fake.
type rpcClient interface {
	GetAccountData(ctx context.Context, account solana.PublicKey) ([]byte, error)
	GetLatestBlockhash(ctx context.Context) (solana.Hash, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey) (uint64, error)
}

type realRPC struct {
	inner *rpc.Client
}

func (r realRPC) GetAccountData(ctx context.Context, account solana.PublicKey) ([]byte, error) {
	out, err := r.inner.GetAccountInfo(ctx, account)
	if err != nil {
		return nil, err
	}
	if out == nil || out.Value == nil {
		return nil, fmt.Errorf("account %s not found", account)
	}
	return out.Value.Data.GetBinary(), nil
}

func (r realRPC) GetLatestBlockhash(ctx context.Context) (solana.Hash, error) {
	out, err := r.inner.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return solana.Hash{}, err
	}
	return out.Value.Blockhash, nil
}

func (r realRPC) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	return r.inner.SendTransaction(ctx, tx)
}

func (r realRPC) GetTokenAccountBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	out, err := r.inner.GetTokenAccountBalance(ctx, account, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, err
	}
	if out == nil || out.Value == nil {
		return 0, fmt.Errorf("token account %s not found", account)
	}
	amount, err := strconv.ParseUint(out.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse token balance: %w", err)
	}
	return amount, nil
}

// ProgramID returns the base58 address of the escrow program this client
// is configured against.
func (c *Client) ProgramID() string {
	return c.programID.String()
}

// VaultBalance reads the SPL token balance held by vaultATA.
func (c *Client) VaultBalance(ctx context.Context, vaultATA [32]byte) (uint64, error) {
	balance, err := c.rpc.GetTokenAccountBalance(ctx, solana.PublicKeyFromBytes(vaultATA[:]))
	if err != nil {
		return 0, fmt.Errorf("solana: fetch vault balance: %w", err)
	}
	return balance, nil
}

// NewClient returns a ports.EscrowClient talking to rpcEndpoint, signing
// every submitted transaction with signer and addressing the escrow program
// at programID.
func NewClient(rpcEndpoint string, programID solana.PublicKey, signer solana.PrivateKey) *Client {
	return &Client{
		programID: programID,
		rpc:       realRPC{inner: rpc.New(rpcEndpoint)},
		signer:    signer,
	}
}

// sendInstruction wraps ix in a transaction, signs with the configured
// signer, and submits it, returning the base58 transaction signature.
func (c *Client) sendInstruction(ctx context.Context, ix solana.Instruction, feePayer string) (string, error) {
	blockhash, err := c.rpc.GetLatestBlockhash(ctx)
	if err != nil {
		return "", fmt.Errorf("solana: get latest blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{ix},
		blockhash,
		solana.TransactionPayer(solana.MustPublicKeyFromBase58(feePayer)),
	)
	if err != nil {
		return "", fmt.Errorf("solana: build transaction: %w", err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(c.signer.PublicKey()) {
			return &c.signer
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("solana: sign transaction: %w", err)
	}

	sig, err := c.rpc.SendTransaction(ctx, tx)
	if err != nil {
		return "", fmt.Errorf("solana: send transaction: %w", err)
	}
	return sig.String(), nil
}
