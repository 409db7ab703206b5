// Package application wires the validator, the trade state machine and the
// maker/taker control loops into one per-process engine: one goroutine per
// trade_id owns that trade's state, resend timer and bookkeeping, mirroring
// the teacher's ChainSwapEventHandler strategy-dispatch idiom generalized
// from chain-swap statuses to envelope kinds.
package application

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/satsbridge/swapd/internal/core/domain"
	"github.com/satsbridge/swapd/internal/core/ports"
	"github.com/satsbridge/swapd/pkg/envelope"
	"github.com/satsbridge/swapd/pkg/monitor"
)

// actorInboxSize bounds how many un-handled envelopes a trade actor will
// buffer before the dispatch loop starts dropping — the transport is
// best-effort, so a drop here is just another form of loss the protocol is
// already required to tolerate.
const actorInboxSize = 64

// tradeActor is the single owner of one trade_id's TradeState. Only its
// own goroutine (runActor) ever reads or writes the non-channel fields below.
type tradeActor struct {
	tradeID string
	inbox   chan envelope.Envelope
	cancel  context.CancelFunc
	done    chan struct{}

	state domain.TradeState

	lockKey *domain.RFQLockKey

	waitingTermsPings    int
	waitingTermsDeadline time.Time
	lastQuoteAccept      envelope.Envelope
	swapChannel          string
	leftChannel          bool

	lastSent   map[envelope.Kind]envelope.Envelope
	lastSentAt time.Time

	startedAt      time.Time
	deadline       time.Time
	lastPeerSeenAt time.Time
	resendAt       time.Time
}

// Engine owns the transport dispatch loop, the scheduler jobs, and every
// active trade actor. An Engine instance runs a single role (maker or
// taker); the two roles run as separate peer processes.
type Engine struct {
	cfg       EngineConfig
	transport ports.Transport
	ln        ports.LnService
	escrow    ports.EscrowClient
	store     domain.ReceiptsRepository
	scheduler ports.SchedulerService
	log       *logrus.Logger
	mon       *monitor.Monitor

	maker *MakerEngine
	taker *TakerEngine

	mu     sync.Mutex
	trades map[string]*tradeActor
}

// NewEngine builds an Engine for the given role, wiring the maker or taker
// control loop per cfg.Role.
func NewEngine(cfg EngineConfig, transport ports.Transport, ln ports.LnService,
	escrow ports.EscrowClient, store domain.ReceiptsRepository, scheduler ports.SchedulerService,
	log *logrus.Logger) *Engine {
	e := &Engine{
		cfg:       cfg,
		transport: transport,
		ln:        ln,
		escrow:    escrow,
		store:     store,
		scheduler: scheduler,
		log:       log,
		mon:       monitor.New(monitor.WithLogger(log)),
		trades:    make(map[string]*tradeActor),
	}
	if cfg.isMaker() {
		e.maker = NewMakerEngine(e)
	}
	if cfg.isTaker() {
		e.taker = NewTakerEngine(e)
	}
	return e
}

// Start subscribes the RFQ channel, starts the dispatch loop and the
// cross-trade periodic sweeps.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.transport.Subscribe(ctx, []string{e.cfg.RFQChannel}); err != nil {
		return err
	}

	e.scheduler.Start()
	if e.cfg.isMaker() {
		if err := e.scheduler.Every("rfq-lock-prune", e.cfg.RFQLockPruneIntervalSec, ports.Seconds, func() {
			e.maker.pruneLocks()
		}); err != nil {
			return err
		}
	}
	hygieneEverySec := int(e.cfg.HygieneIntervalMs / 1000)
	if hygieneEverySec < 1 {
		hygieneEverySec = 1
	}
	hygiene := NewHygiene(e)
	if err := e.scheduler.Every("hygiene", hygieneEverySec, ports.Seconds, func() {
		hygiene.Tick(ctx)
	}); err != nil {
		return err
	}

	e.mon.Go("dispatch-loop", func(_ context.Context, hb monitor.Heartbeat) error {
		e.dispatchLoop(ctx, hb)
		return nil
	})
	return nil
}

// Stop performs a graceful shutdown: cancel every trade actor, best-effort
// leave every swap channel, persist a terminal shutdown event per active
// trade, then close the store and the transport.
func (e *Engine) Stop(reason string) {
	e.scheduler.Stop()

	e.mu.Lock()
	actors := make([]*tradeActor, 0, len(e.trades))
	for _, a := range e.trades {
		actors = append(actors, a)
	}
	e.mu.Unlock()

	ctx := context.Background()
	for _, a := range actors {
		a.cancel()
		_ = e.transport.Leave(ctx, swapChannel(a.tradeID))
		_ = e.store.AppendEvent(ctx, a.tradeID, "shutdown", map[string]any{"reason": reason})
	}

	_ = e.transport.Close()
	e.mon.Stop()
	_ = e.store.Close()
}

func (e *Engine) dispatchLoop(ctx context.Context, hb monitor.Heartbeat) {
	tick := time.NewTicker(10 * time.Second)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			hb.Tick()
		case ev, ok := <-e.transport.Events():
			if !ok {
				e.log.Warn("transport event stream closed")
				return
			}
			hb.Tick()
			e.handleInbound(ctx, ev)
		}
	}
}

func (e *Engine) handleInbound(ctx context.Context, ev ports.InboundEvent) {
	msg := ev.Message
	if msg.Signer == e.cfg.SelfPubHex {
		return // self-broadcast echo
	}
	if err := Validate(msg); err != nil {
		e.log.WithFields(logrus.Fields{
			"trade_id": msg.TradeID, "kind": msg.Kind, "channel": ev.Channel,
		}).WithError(err).Debug("dropping invalid envelope")
		return
	}
	if appHash := envelope.BodyString(msg.Body, "app_hash"); appHash != "" && e.cfg.AppHash != "" && appHash != e.cfg.AppHash {
		e.log.WithField("trade_id", msg.TradeID).Debug("dropping envelope with mismatched app_hash")
		return
	}

	actor := e.actorFor(ctx, msg.TradeID)
	select {
	case actor.inbox <- msg:
	default:
		e.log.WithField("trade_id", msg.TradeID).Warn("trade actor inbox full, dropping envelope")
	}
}

func (e *Engine) actorFor(ctx context.Context, tradeID string) *tradeActor {
	e.mu.Lock()
	defer e.mu.Unlock()

	if a, ok := e.trades[tradeID]; ok {
		return a
	}

	actorCtx, cancel := context.WithCancel(ctx)
	a := &tradeActor{
		tradeID:        tradeID,
		inbox:          make(chan envelope.Envelope, actorInboxSize),
		cancel:         cancel,
		done:           make(chan struct{}),
		state:          domain.Initial(tradeID),
		lastSent:       make(map[envelope.Kind]envelope.Envelope),
		startedAt:      time.Now(),
		lastPeerSeenAt: time.Now(),
	}
	e.trades[tradeID] = a
	e.mon.Go("trade-"+tradeID, func(_ context.Context, hb monitor.Heartbeat) error {
		e.runActor(actorCtx, a, hb)
		return nil
	})
	return a
}

func (e *Engine) removeActor(tradeID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if a, ok := e.trades[tradeID]; ok {
		a.cancel()
		delete(e.trades, tradeID)
	}
}

func (e *Engine) activeTradeIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.trades))
	for id := range e.trades {
		ids = append(ids, id)
	}
	return ids
}

// runActor is the trade's single owner: it is the only goroutine that ever
// touches a's non-channel fields after this call begins.
func (e *Engine) runActor(ctx context.Context, a *tradeActor, hb monitor.Heartbeat) {
	defer close(a.done)

	tick := time.NewTicker(time.Second)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-a.inbox:
			if !ok {
				return
			}
			a.lastPeerSeenAt = time.Now()
			e.dispatchToRole(ctx, a, msg)
			if a.state.State.Terminal() {
				e.removeActorAsync(a.tradeID)
			}
		case <-tick.C:
			hb.Tick()
			e.onActorTick(ctx, a)
		}
	}
}

// removeActorAsync schedules actor cleanup off the actor's own goroutine so
// runActor can return normally on the same tick that reaches a terminal
// state, without deadlocking on its own removal.
func (e *Engine) removeActorAsync(tradeID string) {
	go e.removeActor(tradeID)
}

func (e *Engine) dispatchToRole(ctx context.Context, a *tradeActor, msg envelope.Envelope) {
	if e.cfg.isMaker() {
		e.maker.HandleEnvelope(ctx, a, msg)
		return
	}
	if e.cfg.isTaker() {
		e.taker.HandleEnvelope(ctx, a, msg)
	}
}

func (e *Engine) onActorTick(ctx context.Context, a *tradeActor) {
	if e.cfg.isMaker() {
		e.maker.onTick(ctx, a)
	}
	if e.cfg.isTaker() {
		e.taker.onTick(ctx, a)
	}
	if a.state.State.Terminal() {
		e.removeActorAsync(a.tradeID)
	}
}

func swapChannel(tradeID string) string {
	return "swap:" + tradeID
}
