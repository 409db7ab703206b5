package domain

import (
	"strconv"

	"github.com/satsbridge/swapd/pkg/envelope"
	"github.com/satsbridge/swapd/pkg/swaperr"
)

// Apply drives t through exactly the transitions named in the protocol's
// transition table. Anything not in the table is rejected with wrong_state;
// a byte-identical repeat of an already-applied envelope (same kind, same
// hash) is an idempotent no-op; a different envelope of an already-applied
// single-shot kind (TERMS, ACCEPT, LN_INVOICE, SOL_ESCROW_CREATED) is
// conflicting_replay.
func Apply(t TradeState, e envelope.Envelope) (TradeState, error) {
	if t.State.Terminal() {
		return t, swaperr.New(swaperr.KindWrongState, t.TradeID, "trade is terminal")
	}

	hashHex, err := e.HashHex()
	if err != nil {
		return t, swaperr.Wrap(swaperr.KindSchemaInvalid, t.TradeID, "hash unsigned envelope", err)
	}

	if prevHash, seen := t.lastAppliedHash(string(e.Kind)); seen {
		if prevHash == hashHex {
			return t, nil // idempotent replay
		}
		// A kind that transitions state can only be legally applied once
		// per trade (TERMS, ACCEPT, LN_INVOICE, SOL_ESCROW_CREATED). STATUS
		// and CANCEL may legitimately recur with different bodies (e.g. the
		// ln_paid flip followed later by the claimed flip), so only the
		// single-shot kinds are conflicting-replay-checked here.
		if isSingleShotKind(e.Kind) {
			return t, swaperr.New(swaperr.KindConflictingReplay, t.TradeID, string(e.Kind)+" already applied with a different body")
		}
	}

	next, err := transition(t, e)
	if err != nil {
		return t, err
	}

	next.applied = cloneApplied(t.applied)
	next.applied[string(e.Kind)] = appliedKind{Hash: hashHex}
	return next, nil
}

func isSingleShotKind(k envelope.Kind) bool {
	switch k {
	case envelope.KindTerms, envelope.KindAccept, envelope.KindLnInvoice, envelope.KindSolEscrowCreated:
		return true
	default:
		return false
	}
}

func transition(t TradeState, e envelope.Envelope) (TradeState, error) {
	switch t.State {
	case StateNew:
		if e.Kind == envelope.KindTerms {
			return applyTerms(t, e)
		}
		if e.Kind == envelope.KindCancel {
			return applyCancel(t)
		}
	case StateTerms:
		if e.Kind == envelope.KindAccept {
			return applyAccept(t, e)
		}
		if e.Kind == envelope.KindCancel {
			return applyCancel(t)
		}
		if e.Kind == envelope.KindStatus {
			// handled by the maker/taker engines as a resend trigger, not a
			// state transition; the state machine itself has nothing to do.
			return t, nil
		}
	case StateAccepted:
		if e.Kind == envelope.KindLnInvoice {
			return applyLnInvoice(t, e)
		}
		if e.Kind == envelope.KindCancel {
			return applyCancel(t)
		}
	case StateInvoice:
		if e.Kind == envelope.KindSolEscrowCreated {
			return applySolEscrowCreated(t, e)
		}
	case StateEscrow:
		if e.Kind == envelope.KindStatus {
			return applyStatus(t, e)
		}
	}
	return t, swaperr.New(swaperr.KindWrongState, t.TradeID, "no transition for "+string(e.Kind)+" from "+string(t.State))
}

func applyTerms(t TradeState, e envelope.Envelope) (TradeState, error) {
	btcSats, _ := envelope.BodyInt64(e.Body, "btc_sats")
	solRefundAfter, _ := envelope.BodyInt64(e.Body, "sol_refund_after_unix")
	platformFeeBps, _ := envelope.BodyInt(e.Body, "platform_fee_bps")
	tradeFeeBps, _ := envelope.BodyInt(e.Body, "trade_fee_bps")
	usdtDecimals, _ := envelope.BodyInt(e.Body, "usdt_decimals")
	validUntil, _ := envelope.BodyInt64(e.Body, "terms_valid_until_unix")

	terms := &Terms{
		Pair:                envelope.BodyString(e.Body, "pair"),
		Direction:           envelope.BodyString(e.Body, "direction"),
		AppHash:             envelope.BodyString(e.Body, "app_hash"),
		BtcSats:             btcSats,
		UsdtAmount:          envelope.BodyString(e.Body, "usdt_amount"),
		UsdtDecimals:        usdtDecimals,
		SolMint:             envelope.BodyString(e.Body, "sol_mint"),
		SolRecipient:        envelope.BodyString(e.Body, "sol_recipient"),
		SolRefund:           envelope.BodyString(e.Body, "sol_refund"),
		SolRefundAfterUnix:  solRefundAfter,
		PlatformFeeBps:      platformFeeBps,
		PlatformFeeCollector: envelope.BodyString(e.Body, "platform_fee_collector"),
		TradeFeeBps:         tradeFeeBps,
		TradeFeeCollector:   envelope.BodyString(e.Body, "trade_fee_collector"),
		LnReceiverPeer:      envelope.BodyString(e.Body, "ln_receiver_peer"),
		LnPayerPeer:         envelope.BodyString(e.Body, "ln_payer_peer"),
		TermsValidUntilUnix: validUntil,
	}
	t.Terms = terms
	t.State = StateTerms
	return t, nil
}

func applyAccept(t TradeState, e envelope.Envelope) (TradeState, error) {
	termsHash := envelope.BodyString(e.Body, "terms_hash")
	if t.Terms == nil {
		return t, swaperr.New(swaperr.KindWrongState, t.TradeID, "accept with no terms on record")
	}
	// terms_hash must name the TERMS envelope this trade applied, i.e. equal
	// the hash recorded for it in t.applied.
	if termsHash == "" {
		return t, swaperr.New(swaperr.KindSchemaInvalid, t.TradeID, "accept missing terms_hash")
	}
	if appliedTerms, ok := t.lastAppliedHash(string(envelope.KindTerms)); ok && termsHash != appliedTerms {
		return t, swaperr.New(swaperr.KindSchemaInvalid, t.TradeID, "accept terms_hash does not match the applied terms")
	}
	t.State = StateAccepted
	return t, nil
}

func applyLnInvoice(t TradeState, e envelope.Envelope) (TradeState, error) {
	amountMsat, _ := envelope.BodyInt64(e.Body, "amount_msat")
	expiresAt, _ := envelope.BodyInt64(e.Body, "expires_at_unix")
	t.LnInvoice = &LnInvoiceInfo{
		Bolt11:         envelope.BodyString(e.Body, "bolt11"),
		PaymentHashHex: envelope.BodyString(e.Body, "payment_hash_hex"),
		AmountMsat:     amountMsat,
		ExpiresAtUnix:  expiresAt,
	}
	t.State = StateInvoice
	return t, nil
}

func applySolEscrowCreated(t TradeState, e envelope.Envelope) (TradeState, error) {
	if t.LnInvoice == nil || t.Terms == nil {
		return t, swaperr.New(swaperr.KindWrongState, t.TradeID, "escrow created with no invoice/terms on record")
	}
	paymentHash := envelope.BodyString(e.Body, "payment_hash")
	if paymentHash != t.LnInvoice.PaymentHashHex {
		return t, swaperr.New(swaperr.KindEscrowMismatch, t.TradeID, "escrow payment_hash does not match invoice")
	}
	amount, _ := envelope.BodyInt64(e.Body, "amount")
	termsAmount, err := strconv.ParseInt(t.Terms.UsdtAmount, 10, 64)
	if err != nil {
		return t, swaperr.Wrap(swaperr.KindSchemaInvalid, t.TradeID, "parse terms usdt_amount", err)
	}
	if amount != termsAmount {
		return t, swaperr.New(swaperr.KindEscrowMismatch, t.TradeID, "escrow amount does not match terms usdt_amount")
	}
	refundAfter, _ := envelope.BodyInt64(e.Body, "refund_after_unix")
	t.SolEscrow = &SolEscrowInfo{
		ProgramID:       envelope.BodyString(e.Body, "program_id"),
		EscrowPDA:       envelope.BodyString(e.Body, "escrow_pda"),
		VaultATA:        envelope.BodyString(e.Body, "vault_ata"),
		Mint:            envelope.BodyString(e.Body, "mint"),
		Amount:          amount,
		RefundAfterUnix: refundAfter,
		Recipient:       envelope.BodyString(e.Body, "recipient"),
		Refund:          envelope.BodyString(e.Body, "refund"),
		TxSig:           envelope.BodyString(e.Body, "tx_sig"),
	}
	t.State = StateEscrow
	return t, nil
}

func applyStatus(t TradeState, e envelope.Envelope) (TradeState, error) {
	claimed := envelope.BodyBool(e.Body, "claimed")
	refunded := envelope.BodyBool(e.Body, "refunded")
	lnPaid := envelope.BodyBool(e.Body, "ln_paid")
	txSig := envelope.BodyString(e.Body, "tx_sig")

	if claimed && refunded {
		return t, swaperr.New(swaperr.KindSchemaInvalid, t.TradeID, "status cannot claim and refund at once")
	}

	if lnPaid {
		t.LnPaid.Paid = true
	}
	switch {
	case claimed:
		t.LnPaid.ClaimTxSig = txSig
		t.State = StateClaimed
	case refunded:
		t.LnPaid.RefundTxSig = txSig
		t.State = StateRefunded
	default:
		// ln_paid-only flip; state stays ESCROW.
	}
	return t, nil
}

func applyCancel(t TradeState) (TradeState, error) {
	switch t.State {
	case StateNew, StateTerms, StateAccepted:
		t.State = StateCanceled
		return t, nil
	default:
		return t, swaperr.New(swaperr.KindWrongState, t.TradeID, "cancel only accepted before escrow is visible")
	}
}
