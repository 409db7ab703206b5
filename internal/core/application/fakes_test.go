package application

import (
	"context"
	"errors"
	"sync"

	"github.com/satsbridge/swapd/internal/core/domain"
	"github.com/satsbridge/swapd/internal/core/ports"
	"github.com/satsbridge/swapd/pkg/envelope"
)

var errNotFound = errors.New("trade not found")

// fakeTransport is an in-memory stand-in for ports.Transport: it records
// every call and never actually delivers anything unless a test pushes onto
// events itself.
type fakeTransport struct {
	mu sync.Mutex

	joined       []string
	left         []string
	subscribed   []string
	sent         []sentMsg
	stats        []ports.ChannelStats
	statsErr     error
	sendErr      error
	joinErr      error
	subscribeErr error

	events chan ports.InboundEvent
	closed bool
}

type sentMsg struct {
	Channel string
	Msg     envelope.Envelope
	Invite  *ports.Invite
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan ports.InboundEvent, 64)}
}

func (f *fakeTransport) Join(_ context.Context, channel string, welcome *ports.Invite) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.joinErr != nil {
		return f.joinErr
	}
	f.joined = append(f.joined, channel)
	return nil
}

func (f *fakeTransport) Leave(_ context.Context, channel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.left = append(f.left, channel)
	return nil
}

func (f *fakeTransport) Subscribe(_ context.Context, channels []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	f.subscribed = append(f.subscribed, channels...)
	return nil
}

func (f *fakeTransport) Send(_ context.Context, channel string, msg envelope.Envelope, invite *ports.Invite) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentMsg{Channel: channel, Msg: msg, Invite: invite})
	return nil
}

func (f *fakeTransport) Stats(_ context.Context) ([]ports.ChannelStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats, f.statsErr
}

func (f *fakeTransport) Events() <-chan ports.InboundEvent { return f.events }

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.events)
	}
	return nil
}

func (f *fakeTransport) sentKinds(channel string) []envelope.Kind {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kinds []envelope.Kind
	for _, s := range f.sent {
		if s.Channel == channel {
			kinds = append(kinds, s.Msg.Kind)
		}
	}
	return kinds
}

func (f *fakeTransport) lastSent() (sentMsg, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return sentMsg{}, false
	}
	return f.sent[len(f.sent)-1], true
}

// fakeLnService is a scripted stand-in for ports.LnService.
type fakeLnService struct {
	mu sync.Mutex

	invoiceBolt11 string
	invoiceHash   string
	invoiceErr    error

	decodeExpiresAt int64
	decodeAmountMsat int64
	decodeErr       error

	payPreimage string
	payErr      error

	invoiceCalls int
	payCalls     int
}

func (f *fakeLnService) Connect(context.Context, string) error { return nil }
func (f *fakeLnService) IsConnected() bool                     { return true }
func (f *fakeLnService) Disconnect()                           {}

func (f *fakeLnService) Invoice(_ context.Context, _ int64, _, _ string, _ int64) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invoiceCalls++
	if f.invoiceErr != nil {
		return "", "", f.invoiceErr
	}
	return f.invoiceBolt11, f.invoiceHash, nil
}

func (f *fakeLnService) Pay(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payCalls++
	if f.payErr != nil {
		return "", f.payErr
	}
	return f.payPreimage, nil
}

func (f *fakeLnService) DecodeBolt11(_ context.Context, _ string) (int64, string, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.decodeErr != nil {
		return 0, "", 0, f.decodeErr
	}
	return f.decodeExpiresAt, f.invoiceHash, f.decodeAmountMsat, nil
}

// fakeEscrowClient is a scripted stand-in for ports.EscrowClient. PDA
// derivation is a deterministic fixed value rather than the program's real
// derivation, since these tests only care that the client wires the right
// request fields through.
type fakeEscrowClient struct {
	mu sync.Mutex

	createTxSig string
	createErr   error
	claimTxSig  string
	claimErr    error
	refundTxSig string
	refundErr   error

	state    *ports.EscrowAccount
	stateErr error

	programID        string
	vaultBalance     uint64
	vaultBalanceErr  error

	lastCreate ports.CreateEscrowRequest
	lastClaim  ports.ClaimEscrowRequest
	lastRefund ports.RefundEscrowRequest
}

func (f *fakeEscrowClient) ProgramID() string { return f.programID }

func (f *fakeEscrowClient) VaultBalance(_ context.Context, _ [32]byte) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.vaultBalanceErr != nil {
		return 0, f.vaultBalanceErr
	}
	return f.vaultBalance, nil
}

func (f *fakeEscrowClient) DeriveEscrowPDA(paymentHash [32]byte) ([32]byte, uint8) {
	var pda [32]byte
	copy(pda[:], paymentHash[:])
	return pda, 1
}

func (f *fakeEscrowClient) DeriveConfigPDA() ([32]byte, uint8) {
	return [32]byte{}, 1
}

func (f *fakeEscrowClient) DeriveVaultATA(escrowPDA, _ [32]byte) [32]byte {
	return escrowPDA
}

func (f *fakeEscrowClient) CreateEscrow(_ context.Context, req ports.CreateEscrowRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCreate = req
	if f.createErr != nil {
		return "", f.createErr
	}
	return f.createTxSig, nil
}

func (f *fakeEscrowClient) ClaimEscrow(_ context.Context, req ports.ClaimEscrowRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastClaim = req
	if f.claimErr != nil {
		return "", f.claimErr
	}
	return f.claimTxSig, nil
}

func (f *fakeEscrowClient) RefundEscrow(_ context.Context, req ports.RefundEscrowRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastRefund = req
	if f.refundErr != nil {
		return "", f.refundErr
	}
	return f.refundTxSig, nil
}

func (f *fakeEscrowClient) GetEscrowState(_ context.Context, _ [32]byte) (*ports.EscrowAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stateErr != nil {
		return nil, f.stateErr
	}
	return f.state, nil
}

// fakeScheduler is a no-op stand-in for ports.SchedulerService: Every
// records the registration but never actually fires fn, since these tests
// drive onTick/pruneLocks directly.
type fakeScheduler struct {
	mu        sync.Mutex
	jobs      map[string]func()
	started   bool
	stopped   bool
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{jobs: make(map[string]func())}
}

func (f *fakeScheduler) Start() { f.started = true }
func (f *fakeScheduler) Stop()  { f.stopped = true }

func (f *fakeScheduler) Every(name string, _ int, _ ports.TimeUnit, fn func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[name] = fn
	return nil
}

func (f *fakeScheduler) Remove(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.jobs, name)
}

// fakeReceipts is an in-memory stand-in for domain.ReceiptsRepository.
type fakeReceipts struct {
	mu     sync.Mutex
	trades map[string]domain.TradeRecord
	events map[string][]domain.Event
	closed bool
}

func newFakeReceipts() *fakeReceipts {
	return &fakeReceipts{trades: make(map[string]domain.TradeRecord), events: make(map[string][]domain.Event)}
}

func (f *fakeReceipts) UpsertTrade(_ context.Context, tradeID string, patch func(*domain.TradeRecord)) (domain.TradeRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.trades[tradeID]
	if !ok {
		rec = domain.TradeRecord{TradeID: tradeID}
	}
	patch(&rec)
	rec.TradeID = tradeID
	f.trades[tradeID] = rec
	return rec, nil
}

func (f *fakeReceipts) AppendEvent(_ context.Context, tradeID, kind string, payload map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[tradeID] = append(f.events[tradeID], domain.Event{TradeID: tradeID, Kind: kind, Payload: payload})
	return nil
}

func (f *fakeReceipts) Get(_ context.Context, tradeID string) (*domain.TradeRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.trades[tradeID]
	if !ok {
		return nil, errNotFound
	}
	return &rec, nil
}

func (f *fakeReceipts) ListByState(_ context.Context, states ...domain.State) ([]domain.TradeRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	want := make(map[domain.State]struct{}, len(states))
	for _, s := range states {
		want[s] = struct{}{}
	}
	var out []domain.TradeRecord
	for _, rec := range f.trades {
		if _, ok := want[rec.State]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeReceipts) Events(_ context.Context, tradeID string) ([]domain.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events[tradeID], nil
}

func (f *fakeReceipts) Close() error {
	f.closed = true
	return nil
}
