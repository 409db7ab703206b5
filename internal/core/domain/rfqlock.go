package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/satsbridge/swapd/pkg/envelope"
)

// LockState is the maker-side RFQ lock's own tiny state machine, distinct
// from the trade's State.
type LockState string

const (
	LockQuoted    LockState = "quoted"
	LockAccepting LockState = "accepting"
	LockSwapping  LockState = "swapping"
)

// RFQLockKey is the canonical tuple identifying a single RFQ for the
// purpose of serializing concurrent acceptances and idempotent re-quoting.
type RFQLockKey struct {
	RFQSigner          string
	TradeID            string
	Pair               string
	Direction          string
	BtcSats            int64
	NormalizedUsdt      string
	UsdtDecimals        int
	MaxPlatformFeeBps   int
	MaxTradeFeeBps      int
	MaxTotalFeeBps      int
	MinRefundWindowSec  int64
	MaxRefundWindowSec  int64
	SolRecipient        string
	SolMint             string
	AppHash             string
}

// String renders the key deterministically for use as a map key / hash
// input.
func (k RFQLockKey) String() string {
	return fmt.Sprintf("%s|%s|%s|%s|%d|%s|%d|%d|%d|%d|%d|%d|%s|%s|%s",
		k.RFQSigner, k.TradeID, k.Pair, k.Direction, k.BtcSats, k.NormalizedUsdt, k.UsdtDecimals,
		k.MaxPlatformFeeBps, k.MaxTradeFeeBps, k.MaxTotalFeeBps,
		k.MinRefundWindowSec, k.MaxRefundWindowSec, k.SolRecipient, k.SolMint, k.AppHash)
}

// Hash returns the canonical digest of the key, usable as a stable map key
// independent of field lengths.
func (k RFQLockKey) Hash() string {
	sum := sha256.Sum256([]byte(k.String()))
	return hex.EncodeToString(sum[:])
}

// LockRecord is the maker-side bookkeeping held per RFQLockKey.
type LockRecord struct {
	State               LockState
	QuoteID             string
	SignedQuote         envelope.Envelope // the exact signed QUOTE, for idempotent resend
	SignedInvite        *envelope.Envelope
	SignedTerms         *envelope.Envelope
	QuoteValidUntilUnix  int64
	SwapChannel         string
	InviteePubKey       string
	LockDeadlineMs      int64
	CreatedAtMs         int64
	LastSeenMs          int64
}

// Expired reports whether the record should be pruned at nowMs by the
// maker's RFQ-lock pruning sweep: quoted locks expire at QuoteValidUntilUnix (seconds);
// accepting/swapping locks expire at LockDeadlineMs.
func (r LockRecord) Expired(nowMs int64) bool {
	switch r.State {
	case LockQuoted:
		return nowMs >= r.QuoteValidUntilUnix*1000
	case LockAccepting, LockSwapping:
		return nowMs >= r.LockDeadlineMs
	default:
		return false
	}
}
