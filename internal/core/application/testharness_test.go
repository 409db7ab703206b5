package application

import (
	"crypto/rand"
	"testing"

	"github.com/agl/ed25519"
	"github.com/sirupsen/logrus"
)

// Well-known, valid base58-encoded 32-byte Solana addresses, used as
// throwaway identities across these tests. None of them need to be owned by
// anyone; they only need to decode.
const (
	testMint         = "So11111111111111111111111111111111111111112"
	testRecipient    = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	testRefund       = "So11111111111111111111111111111111111111112"
	testWallet       = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	testFeeCollector = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

type harness struct {
	engine    *Engine
	transport *fakeTransport
	ln        *fakeLnService
	escrow    *fakeEscrowClient
	store     *fakeReceipts
	sched     *fakeScheduler
	peerPub   string
	peerSK    *[ed25519.PrivateKeySize]byte
}

// newHarness builds an Engine of the given role wired to fully scripted
// fakes, plus a second signing identity ("the peer") tests use to build
// inbound envelopes.
func newHarness(t *testing.T, role string) *harness {
	t.Helper()

	selfPub, selfSK, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate self key: %v", err)
	}
	peerPub, peerSK, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate peer key: %v", err)
	}

	cfg := EngineConfig{
		Role:       role,
		SelfPubHex: hexEncode(selfPub[:]),
		SelfSK:     selfSK,

		RFQChannel: "rfq",
		AppHash:    "apphash",
		ProgramID:  "ProgramID1111111111111111111111111111111",
		Mint:       testMint,

		SolWalletAddress:     testWallet,
		SolPayerTokenAccount: testWallet,

		PlatformFeeBps:       10,
		PlatformFeeCollector: testFeeCollector,
		TradeFeeBps:          20,
		TradeFeeCollector:    testFeeCollector,
		QuoteValidSec:        30,
		SolRefundWindowSec:   3600,
		EnableSettlement:     true,

		MaxPlatformFeeBps:     50,
		MaxTradeFeeBps:        50,
		MaxTotalFeeBps:        100,
		MinSolRefundWindowSec: 600,
		MaxSolRefundWindowSec: 7200,

		ResendBaselineSec:          5,
		ResendWidenedSec:           30,
		ResendWidenAfterSilenceSec: 60,
		RetryResendMinMs:           1000,
		SwapTimeoutSec:             300,
		RFQLockPruneIntervalSec:    60,
		HygieneIntervalMs:          60000,
		SwapAutoLeaveCooldownMs:    10000,

		WaitingTermsPingCooldownMs: 1000,
		WaitingTermsMaxPings:       3,
		WaitingTermsMaxWaitMs:      30000,
		WaitingTermsLeaveOnTimeout: true,
	}

	h := &harness{
		transport: newFakeTransport(),
		ln:        &fakeLnService{},
		escrow:    &fakeEscrowClient{programID: cfg.ProgramID, vaultBalance: 1 << 40},
		store:     newFakeReceipts(),
		sched:     newFakeScheduler(),
		peerPub:   hexEncode(peerPub[:]),
		peerSK:    peerSK,
	}
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	h.engine = NewEngine(cfg, h.transport, h.ln, h.escrow, h.store, h.sched, log)
	return h
}

func hexEncode(b []byte) string {
	const hexdigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexdigits[c>>4]
		out[i*2+1] = hexdigits[c&0x0f]
	}
	return string(out)
}
