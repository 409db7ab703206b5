// Command escrowctl is a thin operator CLI over the escrow program: each
// subcommand builds one solana.Client call and prints its result.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/gagliardetto/solana-go"

	solanainfra "github.com/satsbridge/swapd/internal/infrastructure/solana"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	rpcURL := os.Getenv("SWAPD_SOLANA_RPC_URL")
	programID := os.Getenv("SWAPD_PROGRAM_ID")
	signerKey := os.Getenv("SWAPD_SOL_SIGNING_KEY")
	if rpcURL == "" || programID == "" {
		fmt.Fprintln(os.Stderr, "SWAPD_SOLANA_RPC_URL and SWAPD_PROGRAM_ID must be set")
		os.Exit(1)
	}

	var signer solana.PrivateKey
	if signerKey != "" {
		var err error
		signer, err = solana.PrivateKeyFromBase58(signerKey)
		if err != nil {
			fmt.Fprintln(os.Stderr, "invalid SWAPD_SOL_SIGNING_KEY:", err)
			os.Exit(1)
		}
	}

	client := solanainfra.NewClient(rpcURL, solana.MustPublicKeyFromBase58(programID), signer)
	ctx := context.Background()

	var err error
	switch cmd := os.Args[1]; cmd {
	case "config-get":
		err = runConfigGet(ctx, client)
	case "config-init":
		err = runConfigInit(ctx, client, os.Args[2:])
	case "config-set":
		err = runConfigSet(ctx, client, os.Args[2:])
	case "fees-balance":
		err = runFeesBalance(ctx, client, os.Args[2:])
	case "fees-withdraw":
		err = runFeesWithdraw(ctx, client, os.Args[2:])
	case "escrow-get":
		err = runEscrowGet(ctx, client, os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "escrowctl:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: escrowctl <command> [flags]

commands:
  config-get
  config-init  -fee-collector <base58> -fee-bps <uint16>
  config-set   -fee-collector <base58> -fee-bps <uint16>
  fees-balance -fee-collector-token-account <base58>
  fees-withdraw -fee-collector-token-account <base58> -destination <base58> -amount <uint64>
  escrow-get   -payment-hash <hex64>

env:
  SWAPD_SOLANA_RPC_URL, SWAPD_PROGRAM_ID, SWAPD_SOL_SIGNING_KEY`)
}

func runConfigGet(ctx context.Context, c *solanainfra.Client) error {
	cfg, err := c.GetConfig(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("authority:     %s\nfee_collector: %s\nfee_bps:       %d\n", cfg.Authority, cfg.FeeCollector, cfg.FeeBps)
	return nil
}

func runConfigInit(ctx context.Context, c *solanainfra.Client, args []string) error {
	fs := flag.NewFlagSet("config-init", flag.ExitOnError)
	authority := fs.String("authority", "", "base58 authority address (the signer)")
	feeCollector := fs.String("fee-collector", "", "base58 fee collector address")
	feeBps := fs.Int("fee-bps", 0, "platform fee rate in basis points")
	fs.Parse(args)

	txSig, err := c.InitConfig(ctx, *authority, *feeCollector, uint16(*feeBps))
	if err != nil {
		return err
	}
	fmt.Println("tx:", txSig)
	return nil
}

func runConfigSet(ctx context.Context, c *solanainfra.Client, args []string) error {
	fs := flag.NewFlagSet("config-set", flag.ExitOnError)
	authority := fs.String("authority", "", "base58 authority address (the signer)")
	feeCollector := fs.String("fee-collector", "", "new base58 fee collector address")
	feeBps := fs.Int("fee-bps", 0, "new platform fee rate in basis points")
	fs.Parse(args)

	txSig, err := c.SetConfig(ctx, *authority, *feeCollector, uint16(*feeBps))
	if err != nil {
		return err
	}
	fmt.Println("tx:", txSig)
	return nil
}

func runFeesBalance(ctx context.Context, c *solanainfra.Client, args []string) error {
	fs := flag.NewFlagSet("fees-balance", flag.ExitOnError)
	account := fs.String("fee-collector-token-account", "", "base58 fee collector token account")
	fs.Parse(args)

	balance, err := c.FeesBalance(ctx, *account)
	if err != nil {
		return err
	}
	fmt.Println(balance)
	return nil
}

func runFeesWithdraw(ctx context.Context, c *solanainfra.Client, args []string) error {
	fs := flag.NewFlagSet("fees-withdraw", flag.ExitOnError)
	authority := fs.String("authority", "", "base58 authority address (the signer)")
	feeCollectorTA := fs.String("fee-collector-token-account", "", "base58 fee collector token account")
	destination := fs.String("destination", "", "base58 destination token account")
	amount := fs.String("amount", "0", "amount to withdraw, in token base units")
	fs.Parse(args)

	amt, err := strconv.ParseUint(*amount, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid -amount: %w", err)
	}

	txSig, err := c.WithdrawFees(ctx, *authority, *feeCollectorTA, *destination, amt)
	if err != nil {
		return err
	}
	fmt.Println("tx:", txSig)
	return nil
}

func runEscrowGet(ctx context.Context, c *solanainfra.Client, args []string) error {
	fs := flag.NewFlagSet("escrow-get", flag.ExitOnError)
	paymentHashHex := fs.String("payment-hash", "", "64-char hex payment hash")
	fs.Parse(args)

	raw, err := hex.DecodeString(*paymentHashHex)
	if err != nil || len(raw) != 32 {
		return fmt.Errorf("-payment-hash must be 32 hex-encoded bytes")
	}
	var paymentHash [32]byte
	copy(paymentHash[:], raw)

	account, err := c.GetEscrowState(ctx, paymentHash)
	if err != nil {
		return err
	}
	fmt.Printf("status:            %d\nrecipient:         %s\nrefund:            %s\nrefund_after_unix: %d\nmint:              %s\nnet_amount:        %d\nfee_amount:        %d\nfee_bps:           %d\nfee_collector:     %s\nvault:             %s\n",
		account.Status,
		solana.PublicKeyFromBytes(account.Recipient[:]).String(),
		solana.PublicKeyFromBytes(account.Refund[:]).String(),
		account.RefundAfterUnix,
		solana.PublicKeyFromBytes(account.Mint[:]).String(),
		account.NetAmount,
		account.FeeAmount,
		account.FeeBps,
		solana.PublicKeyFromBytes(account.FeeCollector[:]).String(),
		solana.PublicKeyFromBytes(account.Vault[:]).String(),
	)
	return nil
}
