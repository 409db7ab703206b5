package application

import (
	"context"
	"strings"
	"time"
)

// Hygiene periodically reconciles the transport's joined channel set
// against the trades this process still actively tracks, leaving any
// swap:* channel whose trade is gone or terminal. Run on a single ticker
// rather than per-actor, since it needs the cross-trade channel list the
// transport exposes via Stats.
type Hygiene struct {
	engine *Engine

	lastLeftAt map[string]time.Time
}

func NewHygiene(e *Engine) *Hygiene {
	return &Hygiene{engine: e, lastLeftAt: make(map[string]time.Time)}
}

func (h *Hygiene) Tick(ctx context.Context) {
	stats, err := h.engine.transport.Stats(ctx)
	if err != nil {
		h.engine.log.WithError(err).Debug("hygiene: failed to list channel stats")
		return
	}

	active := make(map[string]struct{})
	for _, id := range h.engine.activeTradeIDs() {
		active[swapChannel(id)] = struct{}{}
	}

	cooldown := time.Duration(h.engine.cfg.SwapAutoLeaveCooldownMs) * time.Millisecond
	now := time.Now()
	seenChannels := make(map[string]struct{}, len(stats))

	for _, s := range stats {
		if !strings.HasPrefix(s.Channel, "swap:") {
			continue
		}
		seenChannels[s.Channel] = struct{}{}
		if _, ok := active[s.Channel]; ok {
			continue
		}
		if last, seen := h.lastLeftAt[s.Channel]; seen && now.Sub(last) < cooldown {
			continue
		}
		if err := h.engine.transport.Leave(ctx, s.Channel); err != nil {
			h.engine.log.WithError(err).WithField("channel", s.Channel).Debug("hygiene: failed to leave stale channel")
			continue
		}
		h.lastLeftAt[s.Channel] = now
	}

	// Drop cooldown entries for channels the transport no longer reports at
	// all, so the map does not grow without bound across a long process.
	for ch := range h.lastLeftAt {
		if _, ok := seenChannels[ch]; !ok {
			delete(h.lastLeftAt, ch)
		}
	}
}
