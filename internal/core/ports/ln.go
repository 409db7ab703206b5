package ports

import "context"

// LnService is the Lightning client contract: create an invoice, pay an
// invoice, decode a BOLT-11 string. Adapted from the wallet-style
// Connect/GetInfo surface to the invoice/pay/decode surface this engine
// actually drives.
type LnService interface {
	Connect(ctx context.Context, connectURL string) error
	IsConnected() bool
	Disconnect()

	// Invoice creates a BOLT-11 invoice for amountMsat, returning the
	// invoice string and its 32-byte hex payment hash.
	Invoice(ctx context.Context, amountMsat int64, label, description string, expirySec int64) (bolt11, paymentHashHex string, err error)

	// Pay pays bolt11 synchronously, returning the revealed preimage hex on
	// success. Paying the same bolt11 twice must not double-spend; that
	// guarantee is the Lightning node's responsibility, not the caller's.
	Pay(ctx context.Context, bolt11 string) (preimageHex string, err error)

	// DecodeBolt11 decodes an invoice without paying it.
	DecodeBolt11(ctx context.Context, bolt11 string) (expiresAtUnix int64, paymentHashHex string, amountMsat int64, err error)
}
