package application

import (
	"context"
	"testing"
	"time"

	"github.com/agl/ed25519"
	"github.com/stretchr/testify/require"

	"github.com/satsbridge/swapd/internal/core/domain"
	"github.com/satsbridge/swapd/pkg/envelope"
)

func newTestActor(tradeID string) *tradeActor {
	return &tradeActor{
		tradeID:        tradeID,
		inbox:          make(chan envelope.Envelope, 8),
		cancel:         func() {},
		done:           make(chan struct{}),
		state:          domain.Initial(tradeID),
		lastSent:       make(map[envelope.Kind]envelope.Envelope),
		startedAt:      time.Now(),
		lastPeerSeenAt: time.Now(),
	}
}

func signedEnvelope(t *testing.T, pubHex string, sk *[ed25519.PrivateKeySize]byte, kind envelope.Kind, tradeID string, body map[string]any) envelope.Envelope {
	t.Helper()
	unsigned, err := envelope.NewUnsigned(kind, tradeID, time.Now().UnixMilli(), "nonce-"+tradeID+string(kind), body)
	require.NoError(t, err)
	signed, err := envelope.SignAndAttach(unsigned, pubHex, sk)
	require.NoError(t, err)
	return signed
}

func rfqEnvelope(t *testing.T, h *harness, tradeID string) envelope.Envelope {
	body := envelope.RFQBody("BTCLN/USDT-SOL", "btc_to_sol", 100000, "1000000", 6,
		testRecipient, testMint, "apphash", 50, 50, 100, 600, 7200,
		time.Now().Add(time.Minute).Unix())
	return signedEnvelope(t, h.peerPub, h.peerSK, envelope.KindRFQ, tradeID, body)
}

func TestMakerHandleRFQSendsQuoteAndCreatesLock(t *testing.T) {
	h := newHarness(t, "maker")
	ctx := context.Background()
	a := newTestActor("trade-1")

	h.engine.maker.HandleEnvelope(ctx, a, rfqEnvelope(t, h, "trade-1"))

	kinds := h.transport.sentKinds("rfq")
	require.Equal(t, []envelope.Kind{envelope.KindQuote}, kinds)
	require.NotNil(t, a.lockKey)

	h.engine.maker.mu.Lock()
	_, exists := h.engine.maker.locks[a.lockKey.Hash()]
	h.engine.maker.mu.Unlock()
	require.True(t, exists)
}

func TestMakerHandleRFQDropsWhenSettlementRequiresRecipient(t *testing.T) {
	h := newHarness(t, "maker")
	ctx := context.Background()
	a := newTestActor("trade-2")

	body := envelope.RFQBody("BTCLN/USDT-SOL", "btc_to_sol", 100000, "1000000", 6,
		"", testMint, "apphash", 50, 50, 100, 600, 7200, time.Now().Add(time.Minute).Unix())
	msg := signedEnvelope(t, h.peerPub, h.peerSK, envelope.KindRFQ, "trade-2", body)

	h.engine.maker.HandleEnvelope(ctx, a, msg)

	require.Empty(t, h.transport.sentKinds("rfq"))
	require.Nil(t, a.lockKey)
}

func TestMakerHandleRFQDropsWhenFeeCeilingUnmet(t *testing.T) {
	h := newHarness(t, "maker")
	ctx := context.Background()
	a := newTestActor("trade-3")

	// maxTradeFeeBps below the maker's configured TradeFeeBps (20).
	body := envelope.RFQBody("BTCLN/USDT-SOL", "btc_to_sol", 100000, "1000000", 6,
		testRecipient, testMint, "apphash", 50, 5, 100, 600, 7200, time.Now().Add(time.Minute).Unix())
	msg := signedEnvelope(t, h.peerPub, h.peerSK, envelope.KindRFQ, "trade-3", body)

	h.engine.maker.HandleEnvelope(ctx, a, msg)

	require.Empty(t, h.transport.sentKinds("rfq"))
}

func TestMakerHandleRFQResendsExistingQuote(t *testing.T) {
	h := newHarness(t, "maker")
	ctx := context.Background()
	a := newTestActor("trade-4")
	rfq := rfqEnvelope(t, h, "trade-4")

	h.engine.maker.HandleEnvelope(ctx, a, rfq)
	require.Len(t, h.transport.sentKinds("rfq"), 1)

	// A repost of the identical RFQ before it expires should just resend the
	// same quote rather than issuing a second one.
	h.engine.maker.HandleEnvelope(ctx, a, rfq)
	require.Len(t, h.transport.sentKinds("rfq"), 2)
}

func acceptQuoteFlow(t *testing.T, h *harness, tradeID string) (*tradeActor, envelope.Envelope) {
	t.Helper()
	ctx := context.Background()
	a := newTestActor(tradeID)
	h.engine.maker.HandleEnvelope(ctx, a, rfqEnvelope(t, h, tradeID))

	last, ok := h.transport.lastSent()
	require.True(t, ok)
	quoteID, err := last.Msg.HashHex()
	require.NoError(t, err)

	acceptBody := envelope.QuoteAcceptBody(quoteID)
	accept := signedEnvelope(t, h.peerPub, h.peerSK, envelope.KindQuoteAccept, tradeID, acceptBody)
	h.engine.maker.HandleEnvelope(ctx, a, accept)
	return a, accept
}

func TestMakerHandleQuoteAcceptSendsInviteAndTerms(t *testing.T) {
	h := newHarness(t, "maker")
	a, _ := acceptQuoteFlow(t, h, "trade-5")

	rfqKinds := h.transport.sentKinds("rfq")
	require.Contains(t, rfqKinds, envelope.KindSwapInvite)

	swapKinds := h.transport.sentKinds(swapChannel("trade-5"))
	require.Contains(t, swapKinds, envelope.KindTerms)

	require.Contains(t, h.transport.joined, swapChannel("trade-5"))
	require.Contains(t, h.transport.subscribed, swapChannel("trade-5"))

	h.engine.maker.mu.Lock()
	lock := h.engine.maker.locks[a.lockKey.Hash()]
	h.engine.maker.mu.Unlock()
	require.Equal(t, domain.LockSwapping, lock.State)
	require.Equal(t, domain.StateTerms, a.state.State)
	require.NotNil(t, a.state.Terms)
}

func TestMakerHandleAcceptCreatesInvoiceAndEscrow(t *testing.T) {
	h := newHarness(t, "maker")
	h.ln.invoiceBolt11 = "lnbc1testinvoice"
	h.ln.invoiceHash = "aa" + "00"
	// pad to 64 hex chars (32 bytes)
	h.ln.invoiceHash = padHex(h.ln.invoiceHash)
	h.ln.decodeExpiresAt = time.Now().Add(time.Hour).Unix()
	h.ln.decodeAmountMsat = 100000000
	h.escrow.createTxSig = "solana-tx-sig"

	tradeID := "trade-6"
	a, _ := acceptQuoteFlow(t, h, tradeID)

	// Build an ACCEPT envelope referencing the terms this maker just sent.
	termsMsgs := h.transport.sent
	var terms envelope.Envelope
	for _, s := range termsMsgs {
		if s.Msg.Kind == envelope.KindTerms {
			terms = s.Msg
		}
	}
	require.NotEmpty(t, terms.Kind)
	termsHash, err := terms.HashHex()
	require.NoError(t, err)

	accept := signedEnvelope(t, h.peerPub, h.peerSK, envelope.KindAccept, tradeID, envelope.AcceptBody(termsHash))
	h.engine.maker.HandleEnvelope(context.Background(), a, accept)

	require.Equal(t, domain.StateEscrow, a.state.State)
	require.Equal(t, 1, h.ln.invoiceCalls)
	require.Equal(t, h.engine.cfg.SolWalletAddress, h.escrow.lastCreate.Payer)

	rec, err := h.store.Get(context.Background(), tradeID)
	require.NoError(t, err)
	require.Equal(t, domain.StateEscrow, rec.State)
	require.NotNil(t, rec.SolEscrow)
	require.Equal(t, "solana-tx-sig", rec.SolEscrow.TxSig)

	swapKinds := h.transport.sentKinds(swapChannel(tradeID))
	require.Contains(t, swapKinds, envelope.KindLnInvoice)
	require.Contains(t, swapKinds, envelope.KindSolEscrowCreated)
}

func TestMakerHandleAcceptRollsBackLockOnEscrowFailure(t *testing.T) {
	h := newHarness(t, "maker")
	h.ln.invoiceBolt11 = "lnbc1testinvoice"
	h.ln.invoiceHash = padHex("bb")
	h.escrow.createErr = errEscrowBoom

	tradeID := "trade-7"
	a, _ := acceptQuoteFlow(t, h, tradeID)

	termsMsgs := h.transport.sent
	var terms envelope.Envelope
	for _, s := range termsMsgs {
		if s.Msg.Kind == envelope.KindTerms {
			terms = s.Msg
		}
	}
	termsHash, err := terms.HashHex()
	require.NoError(t, err)

	accept := signedEnvelope(t, h.peerPub, h.peerSK, envelope.KindAccept, tradeID, envelope.AcceptBody(termsHash))
	h.engine.maker.HandleEnvelope(context.Background(), a, accept)

	require.Equal(t, domain.StateInvoice, a.state.State)

	h.engine.maker.mu.Lock()
	lock := h.engine.maker.locks[a.lockKey.Hash()]
	h.engine.maker.mu.Unlock()
	require.Equal(t, domain.LockQuoted, lock.State)
}

func TestMakerOnTickCancelsOnDeadline(t *testing.T) {
	h := newHarness(t, "maker")
	a, _ := acceptQuoteFlow(t, h, "trade-8")
	a.deadline = time.Now().Add(-time.Second)

	h.engine.maker.onTick(context.Background(), a)

	require.Equal(t, domain.StateCanceled, a.state.State)
	kinds := h.transport.sentKinds(swapChannel("trade-8"))
	require.Contains(t, kinds, envelope.KindCancel)
}

func TestMakerPruneLocksDropsExpiredQuoted(t *testing.T) {
	h := newHarness(t, "maker")
	h.engine.maker.mu.Lock()
	h.engine.maker.locks["k1"] = &domain.LockRecord{State: domain.LockQuoted, QuoteValidUntilUnix: time.Now().Add(-time.Minute).Unix()}
	h.engine.maker.locks["k2"] = &domain.LockRecord{State: domain.LockQuoted, QuoteValidUntilUnix: time.Now().Add(time.Hour).Unix()}
	h.engine.maker.mu.Unlock()

	h.engine.maker.pruneLocks()

	h.engine.maker.mu.Lock()
	defer h.engine.maker.mu.Unlock()
	_, k1 := h.engine.maker.locks["k1"]
	_, k2 := h.engine.maker.locks["k2"]
	require.False(t, k1)
	require.True(t, k2)
}

func padHex(s string) string {
	for len(s) < 64 {
		s += "0"
	}
	return s[:64]
}

var errEscrowBoom = errBoom{}

type errBoom struct{}

func (errBoom) Error() string { return "escrow create failed" }
