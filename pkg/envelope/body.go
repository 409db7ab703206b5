package envelope

// This file collects small typed constructors for each envelope kind's
// body. They exist purely for caller ergonomics; the wire and hash
// representation is always the generic map[string]any carried on Envelope.

type InvitePayload struct {
	InviteePubKey string
	InviterPubKey string
	ExpiresAt     int64
}

func (p InvitePayload) toMap() map[string]any {
	return map[string]any{
		"inviteePubKey": p.InviteePubKey,
		"inviterPubKey": p.InviterPubKey,
		"expiresAt":     p.ExpiresAt,
	}
}

// InvitePayloadFromMap extracts a typed InvitePayload from a decoded body
// field, tolerating the float64 numbers produced by encoding/json.
func InvitePayloadFromMap(m map[string]any) (InvitePayload, bool) {
	if m == nil {
		return InvitePayload{}, false
	}
	invitee, _ := m["inviteePubKey"].(string)
	inviter, _ := m["inviterPubKey"].(string)
	expiresAt, ok := asInt64(m["expiresAt"])
	if !ok || invitee == "" || inviter == "" {
		return InvitePayload{}, false
	}
	return InvitePayload{InviteePubKey: invitee, InviterPubKey: inviter, ExpiresAt: expiresAt}, true
}

func asInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case float64:
		return int64(t), true
	default:
		return 0, false
	}
}

// RFQBody builds the body map for a KindRFQ envelope.
func RFQBody(pair, direction string, btcSats int64, usdtAmount string, usdtDecimals int,
	solRecipient, solMint, appHash string,
	maxPlatformFeeBps, maxTradeFeeBps, maxTotalFeeBps int,
	minRefundWindowSec, maxRefundWindowSec int64, validUntilUnix int64) map[string]any {
	return map[string]any{
		"pair": pair, "direction": direction, "btc_sats": btcSats,
		"usdt_amount": usdtAmount, "usdt_decimals": usdtDecimals,
		"sol_recipient": solRecipient, "sol_mint": solMint, "app_hash": appHash,
		"max_platform_fee_bps": maxPlatformFeeBps, "max_trade_fee_bps": maxTradeFeeBps,
		"max_total_fee_bps": maxTotalFeeBps,
		"min_sol_refund_window_sec": minRefundWindowSec, "max_sol_refund_window_sec": maxRefundWindowSec,
		"valid_until_unix": validUntilUnix,
	}
}

// QuoteBody builds the body map for a KindQuote envelope.
func QuoteBody(rfqID string, btcSats int64, usdtAmount string, usdtDecimals int, solMint string,
	platformFeeBps int, platformFeeCollector string, tradeFeeBps int, tradeFeeCollector string,
	appHash string, validUntilUnix int64) map[string]any {
	return map[string]any{
		"rfq_id": rfqID, "btc_sats": btcSats, "usdt_amount": usdtAmount, "usdt_decimals": usdtDecimals,
		"sol_mint": solMint,
		"platform_fee_bps": platformFeeBps, "platform_fee_collector": platformFeeCollector,
		"trade_fee_bps": tradeFeeBps, "trade_fee_collector": tradeFeeCollector,
		"app_hash": appHash, "valid_until_unix": validUntilUnix,
	}
}

// QuoteAcceptBody builds the body map for a KindQuoteAccept envelope.
func QuoteAcceptBody(quoteID string) map[string]any {
	return map[string]any{"quote_id": quoteID}
}

// SwapInviteBody builds the body map for a KindSwapInvite envelope.
func SwapInviteBody(swapChannel string, invite InvitePayload) map[string]any {
	return map[string]any{"swap_channel": swapChannel, "invite": invite.toMap()}
}

// TermsBody builds the body map for a KindTerms envelope.
func TermsBody(pair, direction, appHash string, btcSats int64, usdtAmount string, usdtDecimals int,
	solMint, solRecipient, solRefund string, solRefundAfterUnix int64,
	platformFeeBps int, platformFeeCollector string, tradeFeeBps int, tradeFeeCollector string,
	lnReceiverPeer, lnPayerPeer string, termsValidUntilUnix int64) map[string]any {
	return map[string]any{
		"pair": pair, "direction": direction, "app_hash": appHash,
		"btc_sats": btcSats, "usdt_amount": usdtAmount, "usdt_decimals": usdtDecimals,
		"sol_mint": solMint, "sol_recipient": solRecipient, "sol_refund": solRefund,
		"sol_refund_after_unix": solRefundAfterUnix,
		"platform_fee_bps": platformFeeBps, "platform_fee_collector": platformFeeCollector,
		"trade_fee_bps": tradeFeeBps, "trade_fee_collector": tradeFeeCollector,
		"ln_receiver_peer": lnReceiverPeer, "ln_payer_peer": lnPayerPeer,
		"terms_valid_until_unix": termsValidUntilUnix,
	}
}

// AcceptBody builds the body map for a KindAccept envelope.
func AcceptBody(termsHash string) map[string]any {
	return map[string]any{"terms_hash": termsHash}
}

// LnInvoiceBody builds the body map for a KindLnInvoice envelope.
func LnInvoiceBody(bolt11, paymentHashHex string, amountMsat int64, expiresAtUnix int64) map[string]any {
	return map[string]any{
		"bolt11": bolt11, "payment_hash_hex": paymentHashHex,
		"amount_msat": amountMsat, "expires_at_unix": expiresAtUnix,
	}
}

// SolEscrowCreatedBody builds the body map for a KindSolEscrowCreated envelope.
func SolEscrowCreatedBody(programID, escrowPDA, vaultATA, mint, paymentHash string, amount int64,
	refundAfterUnix int64, recipient, refund, txSig string) map[string]any {
	return map[string]any{
		"program_id": programID, "escrow_pda": escrowPDA, "vault_ata": vaultATA,
		"mint": mint, "payment_hash": paymentHash, "amount": amount,
		"refund_after_unix": refundAfterUnix, "recipient": recipient, "refund": refund,
		"tx_sig": txSig,
	}
}

// StatusBody builds the body map for a KindStatus envelope. txSig may be
// empty when neither claimed nor refunded is set.
func StatusBody(lnPaid, claimed, refunded bool, txSig string) map[string]any {
	return map[string]any{
		"ln_paid": lnPaid, "claimed": claimed, "refunded": refunded, "tx_sig": txSig,
	}
}

// CancelBody builds the body map for a KindCancel envelope.
func CancelBody(reason string) map[string]any {
	return map[string]any{"reason": reason}
}
