package application

import (
	"bytes"
	"context"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"

	"github.com/satsbridge/swapd/internal/core/domain"
	"github.com/satsbridge/swapd/internal/core/ports"
	"github.com/satsbridge/swapd/pkg/envelope"
	"github.com/satsbridge/swapd/pkg/swaperr"
)

// TakerEngine drives the quote->accept->terms->invoice->escrow->claim loop
// for every swap this peer is the taker of.
type TakerEngine struct {
	engine *Engine
}

func NewTakerEngine(e *Engine) *TakerEngine {
	return &TakerEngine{engine: e}
}

func (t *TakerEngine) HandleEnvelope(ctx context.Context, a *tradeActor, msg envelope.Envelope) {
	log := t.engine.log.WithFields(logrus.Fields{"trade_id": a.tradeID, "kind": msg.Kind})

	switch msg.Kind {
	case envelope.KindQuote:
		t.handleQuote(ctx, a, msg, log)
	case envelope.KindSwapInvite:
		t.handleSwapInvite(ctx, a, msg, log)
	case envelope.KindTerms:
		t.handleTerms(ctx, a, msg, log)
	case envelope.KindLnInvoice:
		t.handleLnInvoice(ctx, a, msg, log)
	case envelope.KindSolEscrowCreated:
		t.handleSolEscrowCreated(ctx, a, msg, log)
	case envelope.KindStatus:
		t.handleStatus(ctx, a, msg, log)
	case envelope.KindCancel:
		t.handleCancel(ctx, a, msg, log)
	default:
		log.Debug("taker: no handler for kind")
	}
}

// RequestQuote mints a fresh trade_id, spins up its actor and broadcasts
// the opening RFQ on the RFQ channel. It is the taker's own entry point
// into a swap; every other taker transition is driven by HandleEnvelope.
func (t *TakerEngine) RequestQuote(ctx context.Context, pair, direction string, btcSats int64,
	usdtAmount string, usdtDecimals int, solRecipient string) (string, error) {
	tradeID, err := newNonce()
	if err != nil {
		return "", err
	}
	cfg := t.engine.cfg
	a := t.engine.actorFor(ctx, tradeID)

	validUntil := time.Now().Add(time.Duration(cfg.WaitingTermsMaxWaitMs/1000) * time.Second).Unix()
	rfq, err := t.engine.build(envelope.KindRFQ, tradeID, envelope.RFQBody(
		pair, direction, btcSats, usdtAmount, usdtDecimals, solRecipient, cfg.Mint, cfg.AppHash,
		cfg.MaxPlatformFeeBps, cfg.MaxTradeFeeBps, cfg.MaxTotalFeeBps,
		cfg.MinSolRefundWindowSec, cfg.MaxSolRefundWindowSec, validUntil,
	))
	if err != nil {
		return "", err
	}
	a.waitingTermsDeadline = time.Now().Add(time.Duration(cfg.WaitingTermsMaxWaitMs) * time.Millisecond)
	if err := t.engine.resend(ctx, a, cfg.RFQChannel, rfq, nil); err != nil {
		return "", err
	}
	return tradeID, nil
}

// handleQuote accepts the first quote seen for this trade immediately —
// the taker only ever has one outstanding RFQ per trade_id, so there is no
// competing quote to choose between.
func (t *TakerEngine) handleQuote(ctx context.Context, a *tradeActor, msg envelope.Envelope, log *logrus.Entry) {
	if a.lastQuoteAccept.Kind != "" {
		log.Debug("taker: quote already accepted for this trade")
		return
	}
	quoteID, err := msg.HashHex()
	if err != nil {
		log.WithError(err).Warn("taker: failed to hash quote")
		return
	}
	accept, err := t.engine.build(envelope.KindQuoteAccept, a.tradeID, envelope.QuoteAcceptBody(quoteID))
	if err != nil {
		log.WithError(err).Warn("taker: failed to build quote_accept")
		return
	}
	a.lastQuoteAccept = accept
	a.waitingTermsDeadline = time.Now().Add(time.Duration(t.engine.cfg.WaitingTermsMaxWaitMs) * time.Millisecond)
	if err := t.engine.resend(ctx, a, t.engine.cfg.RFQChannel, accept, nil); err != nil {
		log.WithError(err).Warn("taker: failed to send quote_accept")
	}
}

func (t *TakerEngine) handleSwapInvite(ctx context.Context, a *tradeActor, msg envelope.Envelope, log *logrus.Entry) {
	nested, _ := msg.Body["invite"].(map[string]any)
	payload, ok := envelope.InvitePayloadFromMap(nested)
	if !ok || payload.InviteePubKey != t.engine.cfg.SelfPubHex {
		log.Debug("taker: swap_invite not addressed to us")
		return
	}
	swapCh := envelope.BodyString(msg.Body, "swap_channel")
	if swapCh == "" {
		return
	}
	if err := t.engine.transport.Join(ctx, swapCh, &ports.Invite{Envelope: msg}); err != nil {
		log.WithError(err).Warn("taker: failed to join swap channel")
		return
	}
	if err := t.engine.transport.Subscribe(ctx, []string{swapCh}); err != nil {
		log.WithError(err).Warn("taker: failed to subscribe swap channel")
		return
	}
	a.swapChannel = swapCh
}

func (t *TakerEngine) handleTerms(ctx context.Context, a *tradeActor, msg envelope.Envelope, log *logrus.Entry) {
	cfg := t.engine.cfg
	b := msg.Body

	platformBps, _ := envelope.BodyInt(b, "platform_fee_bps")
	tradeBps, _ := envelope.BodyInt(b, "trade_fee_bps")
	if platformBps > cfg.MaxPlatformFeeBps || tradeBps > cfg.MaxTradeFeeBps ||
		platformBps+tradeBps > cfg.MaxTotalFeeBps {
		t.rejectAndCancel(ctx, a, "fee_cap_exceeded", log)
		return
	}
	refundAfter, _ := envelope.BodyInt64(b, "sol_refund_after_unix")
	window := refundAfter - msg.TS/1000
	if window < cfg.MinSolRefundWindowSec || window > cfg.MaxSolRefundWindowSec {
		t.rejectAndCancel(ctx, a, "refund_window_violation", log)
		return
	}
	if recipient := envelope.BodyString(b, "sol_recipient"); recipient != cfg.SolWalletAddress {
		t.rejectAndCancel(ctx, a, "recipient_mismatch", log)
		return
	}
	if mint := envelope.BodyString(b, "sol_mint"); mint != cfg.Mint {
		t.rejectAndCancel(ctx, a, "mint_mismatch", log)
		return
	}

	next, err := domain.Apply(a.state, msg)
	if err != nil {
		log.WithError(err).Debug("taker: terms rejected by state machine")
		return
	}
	a.state = next
	if _, err := t.engine.store.UpsertTrade(ctx, a.tradeID, func(r *domain.TradeRecord) {
		r.Role = "taker"
		r.State = a.state.State
		r.Terms = a.state.Terms
	}); err != nil {
		log.WithError(err).Warn("taker: failed to persist terms")
	}

	termsHash, err := msg.HashHex()
	if err != nil {
		log.WithError(err).Warn("taker: failed to hash terms")
		return
	}
	accept, err := t.engine.build(envelope.KindAccept, a.tradeID, envelope.AcceptBody(termsHash))
	if err != nil {
		log.WithError(err).Warn("taker: failed to build accept")
		return
	}
	if next, err = domain.Apply(a.state, accept); err != nil {
		log.WithError(err).Warn("taker: self-apply of accept rejected")
		return
	}
	a.state = next
	if _, err := t.engine.store.UpsertTrade(ctx, a.tradeID, func(r *domain.TradeRecord) {
		r.State = a.state.State
	}); err != nil {
		log.WithError(err).Warn("taker: failed to persist accept")
	}
	if err := t.engine.resend(ctx, a, swapChannel(a.tradeID), accept, nil); err != nil {
		log.WithError(err).Warn("taker: failed to send accept")
		return
	}
	a.deadline = time.Now().Add(time.Duration(cfg.SwapTimeoutSec) * time.Second)
}

func (t *TakerEngine) rejectAndCancel(ctx context.Context, a *tradeActor, reason string, log *logrus.Entry) {
	cancel, err := t.engine.build(envelope.KindCancel, a.tradeID, envelope.CancelBody(reason))
	if err != nil {
		log.WithError(err).Warn("taker: failed to build cancel")
		return
	}
	if err := t.engine.resend(ctx, a, swapChannel(a.tradeID), cancel, nil); err != nil {
		log.WithError(err).Warn("taker: failed to send cancel")
	}
	_, _ = t.engine.store.UpsertTrade(ctx, a.tradeID, func(r *domain.TradeRecord) {
		r.State = domain.StateCanceled
		r.LastError = reason
	})
	a.state.State = domain.StateCanceled
}

// handleLnInvoice only advances the state machine and persists the
// invoice; payment itself is triggered once SOL_ESCROW_CREATED confirms the
// funds are actually locked on chain.
func (t *TakerEngine) handleLnInvoice(ctx context.Context, a *tradeActor, msg envelope.Envelope, log *logrus.Entry) {
	next, err := domain.Apply(a.state, msg)
	if err != nil {
		log.WithError(err).Debug("taker: ln_invoice rejected by state machine")
		return
	}
	a.state = next
	if _, err := t.engine.store.UpsertTrade(ctx, a.tradeID, func(r *domain.TradeRecord) {
		r.State = a.state.State
		r.LnInvoice = a.state.LnInvoice
	}); err != nil {
		log.WithError(err).Warn("taker: failed to persist ln_invoice")
	}
}

func (t *TakerEngine) handleSolEscrowCreated(ctx context.Context, a *tradeActor, msg envelope.Envelope, log *logrus.Entry) {
	next, err := domain.Apply(a.state, msg)
	if err != nil {
		log.WithError(err).Debug("taker: sol_escrow_created rejected by state machine")
		return
	}
	a.state = next
	if _, err := t.engine.store.UpsertTrade(ctx, a.tradeID, func(r *domain.TradeRecord) {
		r.State = a.state.State
		r.SolEscrow = a.state.SolEscrow
	}); err != nil {
		log.WithError(err).Warn("taker: failed to persist sol_escrow_created")
	}

	if err := t.verifyEscrowOnChain(ctx, a.state.SolEscrow, a.state.LnInvoice.PaymentHashHex); err != nil {
		log.WithError(err).Warn("taker: escrow verification failed, canceling")
		t.rejectAndCancel(ctx, a, "escrow_mismatch", log)
		return
	}

	preimageHex, err := t.engine.ln.Pay(ctx, a.state.LnInvoice.Bolt11)
	if err != nil {
		log.WithError(err).Warn("taker: ln payment failed")
		_, _ = t.engine.store.UpsertTrade(ctx, a.tradeID, func(r *domain.TradeRecord) {
			r.LastError = string(swaperr.KindLnPayFailed) + ": " + err.Error()
		})
		return
	}
	status, err := t.engine.build(envelope.KindStatus, a.tradeID, envelope.StatusBody(true, false, false, ""))
	if err == nil {
		if next, applyErr := domain.Apply(a.state, status); applyErr == nil {
			a.state = next
			_, _ = t.engine.store.UpsertTrade(ctx, a.tradeID, func(r *domain.TradeRecord) {
				r.LnPaid = a.state.LnPaid
			})
		}
		_ = t.engine.resend(ctx, a, swapChannel(a.tradeID), status, nil)
	}

	preimage, err := hexToArray32(preimageHex)
	if err != nil {
		log.WithError(err).Warn("taker: invalid preimage from ln node")
		return
	}
	paymentHash, err := hexToArray32(a.state.LnInvoice.PaymentHashHex)
	if err != nil {
		log.WithError(err).Warn("taker: invalid payment_hash_hex")
		return
	}

	txSig, err := t.engine.escrow.ClaimEscrow(ctx, ports.ClaimEscrowRequest{
		RecipientSigner: t.engine.cfg.SolWalletAddress, RecipientTokenAccount: t.engine.cfg.SolPayerTokenAccount,
		Mint: a.state.Terms.SolMint, PaymentHash: paymentHash, Preimage: preimage,
	})
	// A failed claim is not retried: the preimage is not kept on the actor
	// and onTick has no claim step. The failure is recorded as LastError.
	if err != nil {
		log.WithError(err).Warn("taker: claim_escrow failed")
		_, _ = t.engine.store.UpsertTrade(ctx, a.tradeID, func(r *domain.TradeRecord) {
			r.LastError = string(swaperr.KindChainSubmitFailed) + ": " + err.Error()
		})
		return
	}

	claimed, err := t.engine.build(envelope.KindStatus, a.tradeID, envelope.StatusBody(true, true, false, txSig))
	if err != nil {
		log.WithError(err).Warn("taker: failed to build claimed status")
		return
	}
	if next, err = domain.Apply(a.state, claimed); err != nil {
		log.WithError(err).Warn("taker: self-apply of claimed status rejected")
		return
	}
	a.state = next
	_, _ = t.engine.store.UpsertTrade(ctx, a.tradeID, func(r *domain.TradeRecord) {
		r.State = a.state.State
		r.LnPaid = a.state.LnPaid
	})
	_ = t.engine.resend(ctx, a, swapChannel(a.tradeID), claimed, nil)
}

// verifyEscrowOnChain re-derives the escrow PDA/vault from the claimed
// parameters and compares against the on-chain account — program_id,
// payment_hash, recipient, refund, mint, amount, refund window and the
// vault address itself — and finally confirms the vault's actual SPL
// token balance covers net_amount+fee_amount. Any mismatch is fatal: this
// peer must not pay Lightning against an escrow that does not actually
// lock the agreed funds.
func (t *TakerEngine) verifyEscrowOnChain(ctx context.Context, escrow *domain.SolEscrowInfo, expectedPaymentHashHex string) error {
	if escrow.ProgramID != t.engine.escrow.ProgramID() {
		return swaperr.New(swaperr.KindEscrowMismatch, "", "on-chain program_id does not match agreed terms")
	}
	paymentHash, err := hexToArray32(expectedPaymentHashHex)
	if err != nil {
		return err
	}
	account, err := t.engine.escrow.GetEscrowState(ctx, paymentHash)
	if err != nil {
		return err
	}
	if !bytes.Equal(account.PaymentHash[:], paymentHash[:]) {
		return swaperr.New(swaperr.KindEscrowMismatch, "", "on-chain payment_hash does not match invoice")
	}
	if account.Status != ports.EscrowStatusActive {
		return swaperr.New(swaperr.KindEscrowMismatch, "", "escrow is not active on chain")
	}
	recipientPK := solanago.MustPublicKeyFromBase58(escrow.Recipient)
	if !bytes.Equal(account.Recipient[:], recipientPK.Bytes()) {
		return swaperr.New(swaperr.KindEscrowMismatch, "", "on-chain recipient does not match agreed terms")
	}
	refundPK := solanago.MustPublicKeyFromBase58(escrow.Refund)
	if !bytes.Equal(account.Refund[:], refundPK.Bytes()) {
		return swaperr.New(swaperr.KindEscrowMismatch, "", "on-chain refund address does not match agreed terms")
	}
	mintPK := solanago.MustPublicKeyFromBase58(escrow.Mint)
	if !bytes.Equal(account.Mint[:], mintPK.Bytes()) {
		return swaperr.New(swaperr.KindEscrowMismatch, "", "on-chain mint does not match agreed terms")
	}
	if int64(account.NetAmount) != escrow.Amount {
		return swaperr.New(swaperr.KindEscrowMismatch, "", "on-chain amount does not match agreed terms")
	}
	if account.RefundAfterUnix != escrow.RefundAfterUnix {
		return swaperr.New(swaperr.KindEscrowMismatch, "", "on-chain refund window does not match agreed terms")
	}

	var mintArr [32]byte
	copy(mintArr[:], mintPK.Bytes())
	escrowPDA, _ := t.engine.escrow.DeriveEscrowPDA(paymentHash)
	expectedVault := t.engine.escrow.DeriveVaultATA(escrowPDA, mintArr)
	if !bytes.Equal(account.Vault[:], expectedVault[:]) {
		return swaperr.New(swaperr.KindEscrowMismatch, "", "on-chain vault is not the derived vault ata")
	}

	balance, err := t.engine.escrow.VaultBalance(ctx, account.Vault)
	if err != nil {
		return swaperr.Wrap(swaperr.KindEscrowMismatch, "", "fetch vault token balance", err)
	}
	if want := account.NetAmount + account.FeeAmount; balance < want {
		return swaperr.New(swaperr.KindEscrowMismatch, "", "vault does not hold net amount plus fee")
	}
	return nil
}

func (t *TakerEngine) handleStatus(ctx context.Context, a *tradeActor, msg envelope.Envelope, log *logrus.Entry) {
	next, err := domain.Apply(a.state, msg)
	if err != nil {
		log.WithError(err).Debug("taker: status rejected by state machine")
		return
	}
	a.state = next
	_, _ = t.engine.store.UpsertTrade(ctx, a.tradeID, func(r *domain.TradeRecord) {
		r.State = a.state.State
		r.LnPaid = a.state.LnPaid
	})
}

// handleCancel is terminal only before escrow is visible; once the
// escrow is on chain this peer has either already been paid for or can
// still claim within the refund window, so a CANCEL from the maker at
// that point is ignored rather than treated as an instruction to stop.
func (t *TakerEngine) handleCancel(ctx context.Context, a *tradeActor, msg envelope.Envelope, log *logrus.Entry) {
	if a.state.State == domain.StateEscrow || a.state.State.Terminal() {
		log.Debug("taker: ignoring cancel after escrow is visible")
		return
	}
	next, err := domain.Apply(a.state, msg)
	if err != nil {
		log.WithError(err).Debug("taker: cancel rejected by state machine")
		return
	}
	a.state = next
	_, _ = t.engine.store.UpsertTrade(ctx, a.tradeID, func(r *domain.TradeRecord) {
		r.State = a.state.State
		r.LastError = "canceled by peer"
	})
}

// onTick drives the waiting_terms re-ping cadence before TERMS arrives, and
// the overall swap timeout afterward.
func (t *TakerEngine) onTick(ctx context.Context, a *tradeActor) {
	if a.state.State.Terminal() {
		return
	}
	cfg := t.engine.cfg

	if a.state.State == domain.StateNew {
		if !a.waitingTermsDeadline.IsZero() && time.Now().After(a.waitingTermsDeadline) {
			if cfg.WaitingTermsLeaveOnTimeout {
				_, _ = t.engine.store.UpsertTrade(ctx, a.tradeID, func(r *domain.TradeRecord) {
					r.State = domain.StateCanceled
					r.LastError = string(swaperr.KindWaitingTermsTimeout)
				})
				a.state.State = domain.StateCanceled
				if a.swapChannel != "" {
					_ = t.engine.transport.Leave(ctx, a.swapChannel)
				}
			}
			return
		}
		if a.waitingTermsPings >= cfg.WaitingTermsMaxPings {
			return
		}
		if time.Since(a.lastSentAt) < time.Duration(cfg.WaitingTermsPingCooldownMs)*time.Millisecond {
			return
		}
		if a.lastQuoteAccept.Kind != "" {
			if err := t.engine.resend(ctx, a, cfg.RFQChannel, a.lastQuoteAccept, nil); err == nil {
				a.waitingTermsPings++
			}
		}
		return
	}

	if !a.deadline.IsZero() && time.Now().After(a.deadline) {
		t.rejectAndCancel(ctx, a, "swap_timeout", t.engine.log.WithField("trade_id", a.tradeID))
		return
	}
}
