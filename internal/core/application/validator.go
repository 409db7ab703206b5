package application

import (
	"strconv"

	"github.com/satsbridge/swapd/pkg/envelope"
	"github.com/satsbridge/swapd/pkg/swaperr"
)

// refundWindowFloorSec is the minimum lead time a refund_after_unix must
// carry past the signer's ts, so a refund window cannot be negotiated away
// to nothing.
const refundWindowFloorSec = 60

// Validate dispatches on e.Kind and runs its shape, value-range and
// signature checks. It never inspects other envelopes or trade state.
// Coherence against a prior envelope is checked elsewhere: quote_id by the
// maker engine against its RFQ lock, terms_hash by domain.Apply. A QUOTE's
// rfq_id is not compared against the RFQ.
func Validate(e envelope.Envelope) error {
	if !envelope.IsValidKind(e.Kind) {
		return swaperr.New(swaperr.KindSchemaInvalid, e.TradeID, "unknown envelope kind "+string(e.Kind))
	}
	if e.TradeID == "" || e.Nonce == "" {
		return swaperr.New(swaperr.KindSchemaInvalid, e.TradeID, "missing trade_id or nonce")
	}
	if !envelope.Verify(e) {
		return swaperr.New(swaperr.KindSignatureInvalid, e.TradeID, "signature does not verify")
	}

	switch e.Kind {
	case envelope.KindRFQ:
		return validateRFQ(e)
	case envelope.KindQuote:
		return validateQuote(e)
	case envelope.KindQuoteAccept:
		return validateQuoteAccept(e)
	case envelope.KindSwapInvite:
		return validateSwapInvite(e)
	case envelope.KindTerms:
		return validateTerms(e)
	case envelope.KindAccept:
		return validateAccept(e)
	case envelope.KindLnInvoice:
		return validateLnInvoice(e)
	case envelope.KindSolEscrowCreated:
		return validateSolEscrowCreated(e)
	case envelope.KindStatus:
		return validateStatus(e)
	case envelope.KindCancel, envelope.KindSvcAnnounce:
		return nil
	default:
		return swaperr.New(swaperr.KindSchemaInvalid, e.TradeID, "unhandled kind "+string(e.Kind))
	}
}

func requirePositiveSats(tradeID string, v int64, field string) error {
	if v < 1 {
		return swaperr.New(swaperr.KindSchemaInvalid, tradeID, field+" must be >= 1")
	}
	return nil
}

func requireNonNegativeIntString(tradeID string, s, field string) error {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v < 0 {
		return swaperr.New(swaperr.KindSchemaInvalid, tradeID, field+" must be a non-negative integer string")
	}
	return nil
}

func requireBps(tradeID string, v int, field string) error {
	if v < 0 || v > 10000 {
		return swaperr.New(swaperr.KindSchemaInvalid, tradeID, field+" must be in [0, 10000]")
	}
	return nil
}

func requireNonEmpty(tradeID string, s, field string) error {
	if s == "" {
		return swaperr.New(swaperr.KindSchemaInvalid, tradeID, field+" must not be empty")
	}
	return nil
}

func requireFutureUnix(tradeID string, sentTS int64, deadlineUnix int64, field string) error {
	if deadlineUnix < sentTS/1000+refundWindowFloorSec {
		return swaperr.New(swaperr.KindRefundWindowViolated, tradeID, field+" is not far enough in the future")
	}
	return nil
}

func validateRFQ(e envelope.Envelope) error {
	b := e.Body
	btcSats, _ := envelope.BodyInt64(b, "btc_sats")
	if err := requirePositiveSats(e.TradeID, btcSats, "btc_sats"); err != nil {
		return err
	}
	if err := requireNonNegativeIntString(e.TradeID, envelope.BodyString(b, "usdt_amount"), "usdt_amount"); err != nil {
		return err
	}
	if err := requireNonEmpty(e.TradeID, envelope.BodyString(b, "sol_mint"), "sol_mint"); err != nil {
		return err
	}
	if err := requireNonEmpty(e.TradeID, envelope.BodyString(b, "app_hash"), "app_hash"); err != nil {
		return err
	}
	maxPlatform, _ := envelope.BodyInt(b, "max_platform_fee_bps")
	maxTrade, _ := envelope.BodyInt(b, "max_trade_fee_bps")
	maxTotal, _ := envelope.BodyInt(b, "max_total_fee_bps")
	for _, pair := range []struct{ v int; name string }{
		{maxPlatform, "max_platform_fee_bps"}, {maxTrade, "max_trade_fee_bps"}, {maxTotal, "max_total_fee_bps"},
	} {
		if err := requireBps(e.TradeID, pair.v, pair.name); err != nil {
			return err
		}
	}
	validUntil, _ := envelope.BodyInt64(b, "valid_until_unix")
	if validUntil <= e.TS/1000 {
		return swaperr.New(swaperr.KindExpiredEnvelope, e.TradeID, "rfq valid_until_unix already passed")
	}
	return nil
}

func validateQuote(e envelope.Envelope) error {
	b := e.Body
	if err := requireNonEmpty(e.TradeID, envelope.BodyString(b, "rfq_id"), "rfq_id"); err != nil {
		return err
	}
	btcSats, _ := envelope.BodyInt64(b, "btc_sats")
	if err := requirePositiveSats(e.TradeID, btcSats, "btc_sats"); err != nil {
		return err
	}
	platformBps, _ := envelope.BodyInt(b, "platform_fee_bps")
	tradeBps, _ := envelope.BodyInt(b, "trade_fee_bps")
	if err := requireBps(e.TradeID, platformBps, "platform_fee_bps"); err != nil {
		return err
	}
	if err := requireBps(e.TradeID, tradeBps, "trade_fee_bps"); err != nil {
		return err
	}
	validUntil, _ := envelope.BodyInt64(b, "valid_until_unix")
	if validUntil <= e.TS/1000 {
		return swaperr.New(swaperr.KindExpiredEnvelope, e.TradeID, "quote valid_until_unix already passed")
	}
	return nil
}

func validateQuoteAccept(e envelope.Envelope) error {
	return requireNonEmpty(e.TradeID, envelope.BodyString(e.Body, "quote_id"), "quote_id")
}

func validateSwapInvite(e envelope.Envelope) error {
	b := e.Body
	if err := requireNonEmpty(e.TradeID, envelope.BodyString(b, "swap_channel"), "swap_channel"); err != nil {
		return err
	}
	nested, _ := b["invite"].(map[string]any)
	payload, ok := envelope.InvitePayloadFromMap(nested)
	if !ok {
		return swaperr.New(swaperr.KindSchemaInvalid, e.TradeID, "swap_invite missing well-formed invite payload")
	}
	if payload.ExpiresAt <= e.TS/1000 {
		return swaperr.New(swaperr.KindInviteExpired, e.TradeID, "invite already expired at send time")
	}
	return nil
}

func validateTerms(e envelope.Envelope) error {
	b := e.Body
	btcSats, _ := envelope.BodyInt64(b, "btc_sats")
	if err := requirePositiveSats(e.TradeID, btcSats, "btc_sats"); err != nil {
		return err
	}
	if err := requireNonNegativeIntString(e.TradeID, envelope.BodyString(b, "usdt_amount"), "usdt_amount"); err != nil {
		return err
	}
	platformBps, _ := envelope.BodyInt(b, "platform_fee_bps")
	tradeBps, _ := envelope.BodyInt(b, "trade_fee_bps")
	if err := requireBps(e.TradeID, platformBps, "platform_fee_bps"); err != nil {
		return err
	}
	if err := requireBps(e.TradeID, tradeBps, "trade_fee_bps"); err != nil {
		return err
	}
	refundAfter, _ := envelope.BodyInt64(b, "sol_refund_after_unix")
	if err := requireFutureUnix(e.TradeID, e.TS, refundAfter, "sol_refund_after_unix"); err != nil {
		return err
	}
	validUntil, _ := envelope.BodyInt64(b, "terms_valid_until_unix")
	if validUntil <= e.TS/1000 {
		return swaperr.New(swaperr.KindExpiredEnvelope, e.TradeID, "terms_valid_until_unix already passed")
	}
	for _, field := range []string{"sol_mint", "sol_recipient", "sol_refund", "app_hash"} {
		if err := requireNonEmpty(e.TradeID, envelope.BodyString(b, field), field); err != nil {
			return err
		}
	}
	return nil
}

func validateAccept(e envelope.Envelope) error {
	return requireNonEmpty(e.TradeID, envelope.BodyString(e.Body, "terms_hash"), "terms_hash")
}

func validateLnInvoice(e envelope.Envelope) error {
	b := e.Body
	if err := requireNonEmpty(e.TradeID, envelope.BodyString(b, "bolt11"), "bolt11"); err != nil {
		return err
	}
	hashHex := envelope.BodyString(b, "payment_hash_hex")
	if len(hashHex) != 64 {
		return swaperr.New(swaperr.KindSchemaInvalid, e.TradeID, "payment_hash_hex must be 64 hex chars")
	}
	amountMsat, _ := envelope.BodyInt64(b, "amount_msat")
	if amountMsat < 1 {
		return swaperr.New(swaperr.KindSchemaInvalid, e.TradeID, "amount_msat must be >= 1")
	}
	expiresAt, _ := envelope.BodyInt64(b, "expires_at_unix")
	if expiresAt <= e.TS/1000 {
		return swaperr.New(swaperr.KindExpiredEnvelope, e.TradeID, "ln_invoice expires_at_unix already passed")
	}
	return nil
}

func validateSolEscrowCreated(e envelope.Envelope) error {
	b := e.Body
	for _, field := range []string{"program_id", "escrow_pda", "vault_ata", "mint", "payment_hash", "recipient", "refund", "tx_sig"} {
		if err := requireNonEmpty(e.TradeID, envelope.BodyString(b, field), field); err != nil {
			return err
		}
	}
	amount, _ := envelope.BodyInt64(b, "amount")
	if amount < 1 {
		return swaperr.New(swaperr.KindSchemaInvalid, e.TradeID, "amount must be >= 1")
	}
	return nil
}

func validateStatus(e envelope.Envelope) error {
	if envelope.BodyBool(e.Body, "claimed") && envelope.BodyBool(e.Body, "refunded") {
		return swaperr.New(swaperr.KindSchemaInvalid, e.TradeID, "status cannot claim and refund at once")
	}
	return nil
}
