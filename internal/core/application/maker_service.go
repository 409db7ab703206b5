package application

import (
	"context"
	"strconv"
	"sync"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"

	"github.com/satsbridge/swapd/internal/core/domain"
	"github.com/satsbridge/swapd/internal/core/ports"
	"github.com/satsbridge/swapd/pkg/envelope"
	"github.com/satsbridge/swapd/pkg/swaperr"
)

// MakerEngine drives the RFQ->quote->invite->terms->invoice->escrow loop
// and the resend cadence for every swap this peer is the maker of. Its RFQ
// locks are the one piece of state shared across trade actors, so access to
// m.locks is mutex-guarded rather than owned by a single actor.
type MakerEngine struct {
	engine *Engine

	mu    sync.Mutex
	locks map[string]*domain.LockRecord
}

func NewMakerEngine(e *Engine) *MakerEngine {
	return &MakerEngine{engine: e, locks: make(map[string]*domain.LockRecord)}
}

// HandleEnvelope dispatches an inbound envelope already routed to a's
// trade_id to the right maker-side handler.
func (m *MakerEngine) HandleEnvelope(ctx context.Context, a *tradeActor, msg envelope.Envelope) {
	log := m.engine.log.WithFields(logrus.Fields{"trade_id": a.tradeID, "kind": msg.Kind})

	switch msg.Kind {
	case envelope.KindRFQ:
		m.handleRFQ(ctx, a, msg, log)
	case envelope.KindQuoteAccept:
		m.handleQuoteAccept(ctx, a, msg, log)
	case envelope.KindAccept:
		m.handleAccept(ctx, a, msg, log)
	case envelope.KindStatus:
		m.handleStatus(ctx, a, msg, log)
	case envelope.KindCancel:
		m.handleCancel(ctx, a, msg, log)
	default:
		log.Debug("maker: no handler for kind")
	}
}

func (m *MakerEngine) handleRFQ(ctx context.Context, a *tradeActor, msg envelope.Envelope, log *logrus.Entry) {
	cfg := m.engine.cfg
	b := msg.Body

	solRecipient := envelope.BodyString(b, "sol_recipient")
	if cfg.EnableSettlement && solRecipient == "" {
		log.Debug("maker: dropping rfq missing sol_recipient with settlement enabled")
		return
	}

	maxPlatform, _ := envelope.BodyInt(b, "max_platform_fee_bps")
	maxTrade, _ := envelope.BodyInt(b, "max_trade_fee_bps")
	maxTotal, _ := envelope.BodyInt(b, "max_total_fee_bps")
	if cfg.PlatformFeeBps > maxPlatform || cfg.TradeFeeBps > maxTrade || cfg.PlatformFeeBps+cfg.TradeFeeBps > maxTotal {
		log.Debug("maker: dropping rfq, fee ceilings unmet")
		return
	}

	minWindow, _ := envelope.BodyInt64(b, "min_sol_refund_window_sec")
	maxWindow, _ := envelope.BodyInt64(b, "max_sol_refund_window_sec")
	if cfg.SolRefundWindowSec < minWindow || cfg.SolRefundWindowSec > maxWindow {
		log.Debug("maker: dropping rfq, refund window bounds unmet")
		return
	}

	btcSats, _ := envelope.BodyInt64(b, "btc_sats")
	usdtDecimals, _ := envelope.BodyInt(b, "usdt_decimals")
	key := domain.RFQLockKey{
		RFQSigner: msg.Signer, TradeID: msg.TradeID,
		Pair: envelope.BodyString(b, "pair"), Direction: envelope.BodyString(b, "direction"),
		BtcSats: btcSats, NormalizedUsdt: envelope.BodyString(b, "usdt_amount"), UsdtDecimals: usdtDecimals,
		MaxPlatformFeeBps: maxPlatform, MaxTradeFeeBps: maxTrade, MaxTotalFeeBps: maxTotal,
		MinRefundWindowSec: minWindow, MaxRefundWindowSec: maxWindow,
		SolRecipient: solRecipient, SolMint: envelope.BodyString(b, "sol_mint"),
		AppHash: envelope.BodyString(b, "app_hash"),
	}
	a.lockKey = &key

	now := time.Now()

	m.mu.Lock()
	lock, exists := m.locks[key.Hash()]
	if exists {
		switch lock.State {
		case domain.LockQuoted:
			if now.Unix() < lock.QuoteValidUntilUnix {
				quote := lock.SignedQuote
				m.mu.Unlock()
				if err := m.engine.resend(ctx, a, cfg.RFQChannel, quote, nil); err != nil {
					log.WithError(err).Warn("maker: failed to resend quote")
				}
				return
			}
		case domain.LockAccepting, domain.LockSwapping:
			m.mu.Unlock()
			log.Debug("maker: dropping rfq repost, lock already accepting/swapping")
			return
		}
	}
	m.mu.Unlock()

	rfqID, err := msg.HashHex()
	if err != nil {
		log.WithError(err).Warn("maker: failed to hash rfq")
		return
	}

	validUntil := now.Add(time.Duration(cfg.QuoteValidSec) * time.Second).Unix()
	quote, err := m.engine.build(envelope.KindQuote, a.tradeID, envelope.QuoteBody(
		rfqID, btcSats, envelope.BodyString(b, "usdt_amount"), usdtDecimals, cfg.Mint,
		cfg.PlatformFeeBps, cfg.PlatformFeeCollector, cfg.TradeFeeBps, cfg.TradeFeeCollector,
		cfg.AppHash, validUntil,
	))
	if err != nil {
		log.WithError(err).Warn("maker: failed to build quote")
		return
	}
	quoteID, err := quote.HashHex()
	if err != nil {
		log.WithError(err).Warn("maker: failed to hash quote")
		return
	}

	if err := m.engine.resend(ctx, a, cfg.RFQChannel, quote, nil); err != nil {
		log.WithError(err).Warn("maker: failed to send quote")
		return
	}

	m.mu.Lock()
	m.locks[key.Hash()] = &domain.LockRecord{
		State: domain.LockQuoted, QuoteID: quoteID, SignedQuote: quote,
		QuoteValidUntilUnix: validUntil, CreatedAtMs: now.UnixMilli(), LastSeenMs: now.UnixMilli(),
	}
	m.mu.Unlock()
}

func (m *MakerEngine) handleQuoteAccept(ctx context.Context, a *tradeActor, msg envelope.Envelope, log *logrus.Entry) {
	if a.lockKey == nil {
		log.Debug("maker: quote_accept for an rfq we never quoted")
		return
	}
	key := *a.lockKey
	if msg.Signer != key.RFQSigner {
		log.Debug("maker: dropping quote_accept, signer does not match rfq signer")
		return
	}

	m.mu.Lock()
	lock, exists := m.locks[key.Hash()]
	if !exists {
		m.mu.Unlock()
		log.Debug("maker: quote_accept with no matching lock")
		return
	}
	quoteID := envelope.BodyString(msg.Body, "quote_id")
	if quoteID != lock.QuoteID {
		m.mu.Unlock()
		log.Debug("maker: quote_accept references a stale quote_id")
		return
	}

	if lock.State == domain.LockSwapping {
		invite, terms := lock.SignedInvite, lock.SignedTerms
		m.mu.Unlock()
		if time.Since(a.lastSentAt) < time.Duration(m.engine.cfg.RetryResendMinMs)*time.Millisecond {
			return
		}
		if invite != nil {
			_ = m.engine.resend(ctx, a, m.engine.cfg.RFQChannel, *invite, nil)
		}
		if terms != nil {
			_ = m.engine.resend(ctx, a, swapChannel(a.tradeID), *terms, nil)
		}
		return
	}

	lock.State = domain.LockAccepting
	lock.LockDeadlineMs = time.Now().Add(time.Duration(m.engine.cfg.SwapTimeoutSec) * time.Second).UnixMilli()
	m.mu.Unlock()

	swapCh := swapChannel(a.tradeID)
	invitePayload := envelope.InvitePayload{
		InviteePubKey: msg.Signer, InviterPubKey: m.engine.cfg.SelfPubHex,
		ExpiresAt: time.Now().Add(time.Duration(m.engine.cfg.SwapTimeoutSec) * time.Second).Unix(),
	}
	invite, err := m.engine.build(envelope.KindSwapInvite, a.tradeID, envelope.SwapInviteBody(swapCh, invitePayload))
	if err != nil {
		log.WithError(err).Warn("maker: failed to build swap_invite")
		return
	}
	if err := m.engine.resend(ctx, a, m.engine.cfg.RFQChannel, invite, nil); err != nil {
		log.WithError(err).Warn("maker: failed to send swap_invite")
		return
	}

	if err := m.engine.transport.Join(ctx, swapCh, &ports.Invite{Envelope: invite}); err != nil {
		log.WithError(err).Warn("maker: failed to join own swap channel")
		return
	}
	if err := m.engine.transport.Subscribe(ctx, []string{swapCh}); err != nil {
		log.WithError(err).Warn("maker: failed to subscribe own swap channel")
		return
	}

	refundAfter := time.Now().Add(time.Duration(m.engine.cfg.SolRefundWindowSec) * time.Second).Unix()
	terms, err := m.engine.build(envelope.KindTerms, a.tradeID, envelope.TermsBody(
		a.lockKey.Pair, a.lockKey.Direction, m.engine.cfg.AppHash, a.lockKey.BtcSats, a.lockKey.NormalizedUsdt, a.lockKey.UsdtDecimals,
		m.engine.cfg.Mint, a.lockKey.SolRecipient, m.engine.cfg.SolWalletAddress, refundAfter,
		m.engine.cfg.PlatformFeeBps, m.engine.cfg.PlatformFeeCollector, m.engine.cfg.TradeFeeBps, m.engine.cfg.TradeFeeCollector,
		m.engine.cfg.SelfPubHex, msg.Signer, time.Now().Add(time.Duration(m.engine.cfg.SwapTimeoutSec)*time.Second).Unix(),
	))
	if err != nil {
		log.WithError(err).Warn("maker: failed to build terms")
		return
	}
	next, err := domain.Apply(a.state, terms)
	if err != nil {
		log.WithError(err).Warn("maker: self-apply of terms rejected")
		return
	}
	a.state = next
	if _, err := m.engine.store.UpsertTrade(ctx, a.tradeID, func(r *domain.TradeRecord) {
		r.Role = "maker"
		r.State = a.state.State
		r.Terms = a.state.Terms
	}); err != nil {
		log.WithError(err).Warn("maker: failed to persist terms")
	}
	if err := m.engine.resend(ctx, a, swapCh, terms, nil); err != nil {
		log.WithError(err).Warn("maker: failed to send terms")
		return
	}

	m.mu.Lock()
	if l, ok := m.locks[key.Hash()]; ok {
		l.State = domain.LockSwapping
		l.SwapChannel = swapCh
		l.InviteePubKey = msg.Signer
		l.SignedInvite = &invite
		l.SignedTerms = &terms
	}
	m.mu.Unlock()

	a.deadline = time.Now().Add(time.Duration(m.engine.cfg.SwapTimeoutSec) * time.Second)
}

func (m *MakerEngine) handleAccept(ctx context.Context, a *tradeActor, msg envelope.Envelope, log *logrus.Entry) {
	next, err := domain.Apply(a.state, msg)
	if err != nil {
		log.WithError(err).Debug("maker: accept rejected by state machine")
		return
	}
	a.state = next
	if _, err := m.engine.store.UpsertTrade(ctx, a.tradeID, func(r *domain.TradeRecord) {
		r.Role = "maker"
		r.State = a.state.State
		r.Terms = a.state.Terms
	}); err != nil {
		log.WithError(err).Warn("maker: failed to persist accept")
	}

	terms := a.state.Terms
	amountMsat := terms.BtcSats * 1000
	bolt11, paymentHashHex, err := m.engine.ln.Invoice(ctx, amountMsat, a.tradeID, "swap "+a.tradeID, m.engine.cfg.SwapTimeoutSec)
	if err != nil {
		log.WithError(err).Warn("maker: failed to create ln invoice")
		_, _ = m.engine.store.UpsertTrade(ctx, a.tradeID, func(r *domain.TradeRecord) {
			r.LastError = string(swaperr.KindLnInvoiceFailed) + ": " + err.Error()
		})
		return
	}
	expiresAt, _, _, _ := m.engine.ln.DecodeBolt11(ctx, bolt11)

	lnInvoice, err := m.engine.build(envelope.KindLnInvoice, a.tradeID,
		envelope.LnInvoiceBody(bolt11, paymentHashHex, amountMsat, expiresAt))
	if err != nil {
		log.WithError(err).Warn("maker: failed to build ln_invoice")
		return
	}
	if next, err = domain.Apply(a.state, lnInvoice); err != nil {
		log.WithError(err).Warn("maker: self-apply of ln_invoice rejected")
		return
	}
	a.state = next
	if _, err := m.engine.store.UpsertTrade(ctx, a.tradeID, func(r *domain.TradeRecord) {
		r.State = a.state.State
		r.LnInvoice = a.state.LnInvoice
	}); err != nil {
		log.WithError(err).Warn("maker: failed to persist ln_invoice")
	}
	if err := m.engine.resend(ctx, a, swapChannel(a.tradeID), lnInvoice, nil); err != nil {
		log.WithError(err).Warn("maker: failed to send ln_invoice")
		return
	}

	paymentHash, err := hexToArray32(paymentHashHex)
	if err != nil {
		log.WithError(err).Warn("maker: invalid payment_hash_hex")
		return
	}
	netAmount, err := strconv.ParseUint(terms.UsdtAmount, 10, 64)
	if err != nil {
		log.WithError(err).Warn("maker: invalid usdt_amount")
		return
	}

	escrowPDA, _ := m.engine.escrow.DeriveEscrowPDA(paymentHash)
	var mintArr [32]byte
	copy(mintArr[:], solanago.MustPublicKeyFromBase58(terms.SolMint).Bytes())
	vaultATA := m.engine.escrow.DeriveVaultATA(escrowPDA, mintArr)

	txSig, err := m.engine.escrow.CreateEscrow(ctx, ports.CreateEscrowRequest{
		Payer: m.engine.cfg.SolWalletAddress, PayerTokenAccount: m.engine.cfg.SolPayerTokenAccount,
		Mint: terms.SolMint, PaymentHash: paymentHash,
		Recipient: terms.SolRecipient, Refund: terms.SolRefund,
		RefundAfterUnix: terms.SolRefundAfterUnix, NetAmount: netAmount,
	})
	if err != nil {
		log.WithError(err).Warn("maker: create_escrow failed, rolling lock back to quoted")
		m.rollbackLockToQuoted(a)
		_, _ = m.engine.store.UpsertTrade(ctx, a.tradeID, func(r *domain.TradeRecord) {
			r.LastError = string(swaperr.KindChainSubmitFailed) + ": " + err.Error()
		})
		return
	}

	escrowCreated, err := m.engine.build(envelope.KindSolEscrowCreated, a.tradeID, envelope.SolEscrowCreatedBody(
		m.engine.cfg.ProgramID, solanago.PublicKeyFromBytes(escrowPDA[:]).String(),
		solanago.PublicKeyFromBytes(vaultATA[:]).String(), terms.SolMint, paymentHashHex,
		int64(netAmount), terms.SolRefundAfterUnix, terms.SolRecipient, terms.SolRefund, txSig,
	))
	if err != nil {
		log.WithError(err).Warn("maker: failed to build sol_escrow_created")
		return
	}
	if next, err = domain.Apply(a.state, escrowCreated); err != nil {
		log.WithError(err).Warn("maker: self-apply of sol_escrow_created rejected")
		return
	}
	a.state = next

	// Persisted before the envelope is broadcast: a crash here is recovered
	// by reading ln_invoice.payment_hash_hex back out and re-querying chain
	// state rather than re-submitting a second escrow transaction.
	if _, err := m.engine.store.UpsertTrade(ctx, a.tradeID, func(r *domain.TradeRecord) {
		r.State = a.state.State
		r.SolEscrow = a.state.SolEscrow
	}); err != nil {
		log.WithError(err).Warn("maker: failed to persist sol_escrow_created")
		return
	}
	if err := m.engine.resend(ctx, a, swapChannel(a.tradeID), escrowCreated, nil); err != nil {
		log.WithError(err).Warn("maker: failed to send sol_escrow_created")
	}
}

func (m *MakerEngine) handleStatus(ctx context.Context, a *tradeActor, msg envelope.Envelope, log *logrus.Entry) {
	if a.state.State == domain.StateTerms {
		// Taker joined before seeing TERMS; re-converge immediately.
		if terms, ok := a.lastSent[envelope.KindTerms]; ok {
			_ = m.engine.resend(ctx, a, swapChannel(a.tradeID), terms, nil)
		}
		return
	}

	next, err := domain.Apply(a.state, msg)
	if err != nil {
		log.WithError(err).Debug("maker: status rejected by state machine")
		return
	}
	a.state = next
	_, _ = m.engine.store.UpsertTrade(ctx, a.tradeID, func(r *domain.TradeRecord) {
		r.State = a.state.State
		r.LnPaid = a.state.LnPaid
	})
}

func (m *MakerEngine) handleCancel(ctx context.Context, a *tradeActor, msg envelope.Envelope, log *logrus.Entry) {
	next, err := domain.Apply(a.state, msg)
	if err != nil {
		log.WithError(err).Debug("maker: cancel rejected by state machine")
		return
	}
	a.state = next
	m.rollbackLockToQuoted(a)
	_, _ = m.engine.store.UpsertTrade(ctx, a.tradeID, func(r *domain.TradeRecord) {
		r.State = a.state.State
		r.LastError = "canceled by peer"
	})
}

func (m *MakerEngine) rollbackLockToQuoted(a *tradeActor) {
	if a.lockKey == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.locks[a.lockKey.Hash()]; ok {
		l.State = domain.LockQuoted
	}
}

// onTick drives the per-swap resend cadence and the swap timeout: resend
// outstanding terms/ln_invoice/sol_escrow_created on the configured
// cadence, widened after a silent peer, and cancel on timeout.
func (m *MakerEngine) onTick(ctx context.Context, a *tradeActor) {
	if a.state.State.Terminal() || a.lockKey == nil {
		return
	}
	cfg := m.engine.cfg

	if !a.deadline.IsZero() && time.Now().After(a.deadline) {
		cancel, err := m.engine.build(envelope.KindCancel, a.tradeID, envelope.CancelBody("swap_timeout"))
		if err == nil {
			_ = m.engine.resend(ctx, a, swapChannel(a.tradeID), cancel, nil)
		}
		_, _ = m.engine.store.UpsertTrade(ctx, a.tradeID, func(r *domain.TradeRecord) {
			r.State = domain.StateCanceled
			r.LastError = string(swaperr.KindSwapTimeout)
		})
		a.state.State = domain.StateCanceled
		m.rollbackLockToQuoted(a)
		return
	}

	cadence := time.Duration(cfg.ResendBaselineSec) * time.Second
	if time.Since(a.lastPeerSeenAt) > time.Duration(cfg.ResendWidenAfterSilenceSec)*time.Second {
		cadence = time.Duration(cfg.ResendWidenedSec) * time.Second
	}
	if time.Since(a.lastSentAt) < cadence {
		return
	}

	for _, kind := range []envelope.Kind{envelope.KindTerms, envelope.KindLnInvoice, envelope.KindSolEscrowCreated} {
		if msg, ok := a.lastSent[kind]; ok {
			_ = m.engine.resend(ctx, a, swapChannel(a.tradeID), msg, nil)
		}
	}
}

// pruneLocks drops quoted locks past their validity window and
// accepting/swapping locks past their deadline.
func (m *MakerEngine) pruneLocks() {
	now := time.Now().UnixMilli()
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, lock := range m.locks {
		if lock.Expired(now) {
			delete(m.locks, key)
		}
	}
}
