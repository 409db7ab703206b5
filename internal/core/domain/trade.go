// Package domain holds the trade state machine and the value types shared
// by the maker and taker engines, independent of any transport, storage,
// or chain adapter.
package domain

// State is one of the trade's lifecycle states.
type State string

const (
	StateNew      State = "NEW"
	StateTerms    State = "TERMS"
	StateAccepted State = "ACCEPTED"
	StateInvoice  State = "INVOICE"
	StateEscrow   State = "ESCROW"
	StateClaimed  State = "CLAIMED"
	StateRefunded State = "REFUNDED"
	StateCanceled State = "CANCELED"
)

// Terminal reports whether s admits no further transitions.
func (s State) Terminal() bool {
	switch s {
	case StateClaimed, StateRefunded, StateCanceled:
		return true
	default:
		return false
	}
}

// Terms is the binding, signed snapshot of every economically material
// trade parameter, frozen the moment a TERMS envelope is applied.
type Terms struct {
	Pair                 string
	Direction             string
	AppHash               string
	BtcSats               int64
	UsdtAmount            string
	UsdtDecimals          int
	SolMint               string
	SolRecipient          string
	SolRefund             string
	SolRefundAfterUnix    int64
	PlatformFeeBps        int
	PlatformFeeCollector  string
	TradeFeeBps           int
	TradeFeeCollector     string
	LnReceiverPeer        string
	LnPayerPeer           string
	TermsValidUntilUnix   int64
}

// LnInvoiceInfo mirrors an applied LN_INVOICE envelope's body.
type LnInvoiceInfo struct {
	Bolt11         string
	PaymentHashHex string
	AmountMsat     int64
	ExpiresAtUnix  int64
}

// SolEscrowInfo mirrors an applied SOL_ESCROW_CREATED envelope's body.
type SolEscrowInfo struct {
	ProgramID       string
	EscrowPDA       string
	VaultATA        string
	Mint            string
	Amount          int64
	RefundAfterUnix int64
	Recipient       string
	Refund          string
	TxSig           string
}

// LnPaid captures the STATUS{ln_paid:true} side-contract and, once
// terminal, the settlement transaction signature.
type LnPaid struct {
	Paid       bool
	ClaimTxSig string
	RefundTxSig string
}

// appliedKind records the hash of the envelope that most recently drove a
// transition out of a given kind, for idempotent-replay / conflicting-
// replay detection.
type appliedKind struct {
	Hash string
}

// TradeState is the full per-trade_id record tracked by the state machine.
type TradeState struct {
	TradeID string
	State   State

	Terms      *Terms
	LnInvoice  *LnInvoiceInfo
	SolEscrow  *SolEscrowInfo
	LnPaid     LnPaid

	LastError string

	applied map[string]appliedKind // keyed by envelope kind
}

// Initial returns a fresh TradeState in StateNew for tradeID.
func Initial(tradeID string) TradeState {
	return TradeState{
		TradeID: tradeID,
		State:   StateNew,
		applied: make(map[string]appliedKind),
	}
}

// lastAppliedHash returns the hash most recently recorded for kind, and
// whether any envelope of that kind has been applied at all.
func (t TradeState) lastAppliedHash(kind string) (string, bool) {
	a, ok := t.applied[kind]
	if !ok {
		return "", false
	}
	return a.Hash, true
}

// cloneApplied returns a copy of m. Apply records the new kind's hash in
// the copy, never in the original map, so that a rejected Apply leaves the
// caller's TradeState pristine.
func cloneApplied(m map[string]appliedKind) map[string]appliedKind {
	out := make(map[string]appliedKind, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
