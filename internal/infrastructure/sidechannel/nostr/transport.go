// Package nostr implements the sidechannel transport port over a pool of
// nostr relays: channels are modeled as "t"-tag filters on kind-1 events,
// and invite-gated swap channels are enforced locally by verifying the
// invite's signature before subscribing — public relays do not do this
// for us.
package nostr

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/sirupsen/logrus"

	"github.com/satsbridge/swapd/internal/core/ports"
	"github.com/satsbridge/swapd/pkg/envelope"
)

const eventKind = 1

type relayConn struct {
	url   string
	relay *nostr.Relay
}

type channelSub struct {
	cancel context.CancelFunc
}

type Transport struct {
	selfPrivKeyHex string
	selfPubKeyHex  string
	relayURLs      []string

	mu       sync.Mutex
	relays   []*relayConn
	subs     map[string]*channelSub // channel -> subscription
	events   chan ports.InboundEvent
	seq      uint64
	closed   bool
	dialTimeout time.Duration
}

// NewTransport returns a Transport signing outgoing events with privKeyHex
// and connecting to each of relayURLs.
func NewTransport(privKeyHex string, relayURLs []string) (*Transport, error) {
	pub, err := nostr.GetPublicKey(privKeyHex)
	if err != nil {
		return nil, fmt.Errorf("nostr: derive pubkey: %w", err)
	}
	return &Transport{
		selfPrivKeyHex: privKeyHex,
		selfPubKeyHex:  pub,
		relayURLs:      relayURLs,
		subs:           make(map[string]*channelSub),
		events:         make(chan ports.InboundEvent, 256),
		dialTimeout:    10 * time.Second,
	}, nil
}

func (t *Transport) Events() <-chan ports.InboundEvent {
	return t.events
}

// connectAll lazily dials every configured relay. Call sites tolerate a
// partially-connected relay set; a best-effort transport does not require
// every relay to be reachable before it is useful.
func (t *Transport) connectAll(ctx context.Context) []*relayConn {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.relays) > 0 {
		return t.relays
	}

	for _, url := range t.relayURLs {
		dctx, cancel := context.WithTimeout(ctx, t.dialTimeout)
		relay, err := nostr.RelayConnect(dctx, url)
		cancel()
		if err != nil {
			logrus.WithError(err).WithField("relay", url).Warn("nostr: relay connect failed")
			continue
		}
		t.relays = append(t.relays, &relayConn{url: url, relay: relay})
	}
	return t.relays
}

// Join verifies welcome (when channel is invite-gated) and begins
// streaming that channel's events into Events().
func (t *Transport) Join(ctx context.Context, channel string, welcome *ports.Invite) error {
	if welcome != nil {
		if !envelope.Verify(welcome.Envelope) {
			return fmt.Errorf("nostr: invite signature invalid for channel %s", channel)
		}
		if _, ok := welcome.DecodePayload(); !ok {
			return fmt.Errorf("nostr: invite payload malformed for channel %s", channel)
		}
	}
	return t.Subscribe(ctx, []string{channel})
}

func (t *Transport) Leave(ctx context.Context, channel string) error {
	t.mu.Lock()
	sub, ok := t.subs[channel]
	if ok {
		delete(t.subs, channel)
	}
	t.mu.Unlock()
	if ok {
		sub.cancel()
	}
	return nil
}

func (t *Transport) Subscribe(ctx context.Context, channels []string) error {
	relays := t.connectAll(ctx)
	if len(relays) == 0 {
		return fmt.Errorf("nostr: no relay reachable")
	}

	for _, channel := range channels {
		t.mu.Lock()
		if _, already := t.subs[channel]; already {
			t.mu.Unlock()
			continue
		}
		subCtx, cancel := context.WithCancel(ctx)
		t.subs[channel] = &channelSub{cancel: cancel}
		t.mu.Unlock()

		filter := nostr.Filter{
			Kinds: []int{eventKind},
			Tags:  nostr.TagMap{"t": []string{channel}},
		}

		for _, rc := range relays {
			go t.runSubscription(subCtx, rc, channel, filter)
		}
	}
	return nil
}

func (t *Transport) runSubscription(ctx context.Context, rc *relayConn, channel string, filter nostr.Filter) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		sub, err := rc.relay.Subscribe(ctx, nostr.Filters{filter})
		if err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{"relay": rc.url, "channel": channel}).
				Warn("nostr: subscribe failed, retrying")
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
				continue
			}
		}

	readLoop:
		for {
			select {
			case <-ctx.Done():
				sub.Unsub()
				return
			case ev, ok := <-sub.Events:
				if !ok {
					break readLoop // relay closed the subscription; reconnect
				}
				t.deliver(channel, ev)
			}
		}
	}
}

func (t *Transport) deliver(channel string, ev *nostr.Event) {
	if ev.PubKey == t.selfPubKeyHex {
		return // echo/self-broadcast filtering, per the engine's own contract
	}

	var env envelope.Envelope
	if err := json.Unmarshal([]byte(ev.Content), &env); err != nil {
		logrus.WithError(err).Warn("nostr: dropping malformed envelope payload")
		return
	}

	t.mu.Lock()
	t.seq++
	seq := t.seq
	t.mu.Unlock()

	select {
	case t.events <- ports.InboundEvent{Channel: channel, Message: env, Seq: seq}:
	default:
		logrus.Warn("nostr: inbound event buffer full, dropping message")
	}
}

func (t *Transport) Send(ctx context.Context, channel string, msg envelope.Envelope, invite *ports.Invite) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("nostr: marshal envelope: %w", err)
	}

	ev := nostr.Event{
		CreatedAt: nostr.Timestamp(time.Now().Unix()),
		Kind:      eventKind,
		Tags:      nostr.Tags{{"t", channel}},
		Content:   string(payload),
	}
	ev.PubKey = t.selfPubKeyHex
	if err := ev.Sign(t.selfPrivKeyHex); err != nil {
		return fmt.Errorf("nostr: sign event: %w", err)
	}

	relays := t.connectAll(ctx)
	if len(relays) == 0 {
		return fmt.Errorf("nostr: no relay reachable")
	}

	var lastErr error
	sent := 0
	for _, rc := range relays {
		if err := rc.relay.Publish(ctx, ev); err != nil {
			lastErr = err
			continue
		}
		sent++
	}
	if sent == 0 {
		return fmt.Errorf("nostr: publish failed on every relay: %w", lastErr)
	}
	return nil
}

func (t *Transport) Stats(ctx context.Context) ([]ports.ChannelStats, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]ports.ChannelStats, 0, len(t.subs))
	for ch := range t.subs {
		out = append(out, ports.ChannelStats{Channel: ch, MemberCount: len(t.relays)})
	}
	return out, nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	for _, sub := range t.subs {
		sub.cancel()
	}
	for _, rc := range t.relays {
		rc.relay.Close()
	}
	close(t.events)
	return nil
}
