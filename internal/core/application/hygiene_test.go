package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/satsbridge/swapd/internal/core/ports"
)

func TestHygieneLeavesStaleSwapChannels(t *testing.T) {
	h := newHarness(t, "maker")
	h.transport.stats = []ports.ChannelStats{
		{Channel: "swap:dead-trade", MemberCount: 1},
		{Channel: "swap:live-trade", MemberCount: 2},
		{Channel: "rfq", MemberCount: 5},
	}
	h.engine.trades["live-trade"] = newTestActor("live-trade")

	NewHygiene(h.engine).Tick(context.Background())

	require.Equal(t, []string{"swap:dead-trade"}, h.transport.left)
}

func TestHygieneRespectsCooldown(t *testing.T) {
	h := newHarness(t, "maker")
	h.engine.cfg.SwapAutoLeaveCooldownMs = 60000
	h.transport.stats = []ports.ChannelStats{{Channel: "swap:dead-trade", MemberCount: 1}}

	hy := NewHygiene(h.engine)
	hy.Tick(context.Background())
	require.Len(t, h.transport.left, 1)

	// A second tick within the cooldown window must not re-issue Leave.
	hy.Tick(context.Background())
	require.Len(t, h.transport.left, 1)
}

func TestHygieneDropsCooldownEntryOnceChannelGone(t *testing.T) {
	h := newHarness(t, "maker")
	h.engine.cfg.SwapAutoLeaveCooldownMs = 60000
	h.transport.stats = []ports.ChannelStats{{Channel: "swap:dead-trade", MemberCount: 1}}

	hy := NewHygiene(h.engine)
	hy.Tick(context.Background())
	require.Contains(t, hy.lastLeftAt, "swap:dead-trade")

	h.transport.stats = nil
	hy.Tick(context.Background())
	require.NotContains(t, hy.lastLeftAt, "swap:dead-trade")
}

func TestHygieneIgnoresStatsError(t *testing.T) {
	h := newHarness(t, "maker")
	h.transport.statsErr = errBoom{}

	require.NotPanics(t, func() {
		NewHygiene(h.engine).Tick(context.Background())
	})
	require.Empty(t, h.transport.left)
}
