// Package swaperr defines the typed error kinds used across the engine,
// so callers can branch on kind with errors.As instead of string matching.
package swaperr

import "fmt"

// Kind is one of the closed set of error kinds an engine operation can
// fail with. It is carried as a structured logging field, not a Go type
// per kind, matching the taxonomy given as a set of names rather than an
// exception hierarchy.
type Kind string

const (
	KindSignatureInvalid     Kind = "signature_invalid"
	KindSchemaInvalid        Kind = "schema_invalid"
	KindWrongState           Kind = "wrong_state"
	KindConflictingReplay    Kind = "conflicting_replay"
	KindExpiredEnvelope      Kind = "expired_envelope"
	KindFeeCapExceeded       Kind = "fee_cap_exceeded"
	KindRefundWindowViolated Kind = "refund_window_violation"
	KindEscrowMismatch       Kind = "escrow_mismatch"
	KindLnPayFailed          Kind = "ln_pay_failed"
	KindLnInvoiceFailed      Kind = "ln_invoice_failed"
	KindChainSubmitFailed    Kind = "chain_submit_failed"
	KindChainTimeout         Kind = "chain_timeout"
	KindTransportUnavailable Kind = "transport_unavailable"
	KindInviteExpired        Kind = "invite_expired"
	KindWaitingTermsTimeout  Kind = "waiting_terms_timeout"
	KindSwapTimeout          Kind = "swap_timeout"
	KindInternal             Kind = "internal"
)

// Error is the concrete error type carrying a Kind, an optional trade_id
// and a wrapped cause.
type Error struct {
	Kind    Kind
	TradeID string
	Msg     string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an *Error with no wrapped cause.
func New(kind Kind, tradeID, msg string) *Error {
	return &Error{Kind: kind, TradeID: tradeID, Msg: msg}
}

// Wrap builds an *Error wrapping cause.
func Wrap(kind Kind, tradeID, msg string, cause error) *Error {
	return &Error{Kind: kind, TradeID: tradeID, Msg: msg, Cause: cause}
}

// Is reports whether err (or anything it wraps) is a *Error of kind.
func Is(err error, kind Kind) bool {
	var se *Error
	for err != nil {
		if e, ok := err.(*Error); ok {
			se = e
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return se != nil && se.Kind == kind
}

// LocalDrop reports whether errors of this kind are dropped locally
// without propagating or mutating trade state, per the propagation rules.
func LocalDrop(kind Kind) bool {
	switch kind {
	case KindSignatureInvalid, KindSchemaInvalid, KindWrongState,
		KindConflictingReplay, KindExpiredEnvelope, KindInviteExpired:
		return true
	default:
		return false
	}
}

// Terminal reports whether errors of this kind end the trade and should
// trigger auto-leave of its swap channel.
func Terminal(kind Kind) bool {
	switch kind {
	case KindSwapTimeout, KindWaitingTermsTimeout:
		return true
	default:
		return false
	}
}
