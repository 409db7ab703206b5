package ports

import (
	"context"

	"github.com/satsbridge/swapd/pkg/envelope"
)

// InboundEvent is a single message delivered off the transport's inbound
// stream. Seq is transport-local and only meaningful for deduplication
// hints; it is never authoritative (the transport is best-effort).
type InboundEvent struct {
	Channel string
	Message envelope.Envelope
	Seq     uint64
}

// Invite is the signed SWAP_INVITE envelope that gates membership of a
// swap:{trade_id} channel. Carrying the full envelope (rather than just the
// decoded payload) lets the transport verify the signature exactly as
// broadcast, with no reconstruction of the original signing input.
type Invite struct {
	Envelope envelope.Envelope
}

// DecodePayload extracts the typed invite payload from the envelope body.
func (i Invite) DecodePayload() (envelope.InvitePayload, bool) {
	nested, _ := i.Envelope.Body["invite"].(map[string]any)
	return envelope.InvitePayloadFromMap(nested)
}

// ChannelStats describes one subscribed channel, as returned by Stats.
type ChannelStats struct {
	Channel      string
	MemberCount  int
	JoinedAtUnix int64
}

// Transport is the best-effort pub/sub sidechannel contract: messages may
// be delivered out of order, duplicated, or dropped, and carry no
// server-side history for late joiners.
type Transport interface {
	Join(ctx context.Context, channel string, welcome *Invite) error
	Leave(ctx context.Context, channel string) error
	Subscribe(ctx context.Context, channels []string) error
	Send(ctx context.Context, channel string, msg envelope.Envelope, invite *Invite) error
	Stats(ctx context.Context) ([]ChannelStats, error)

	// Events returns the inbound stream. The channel is closed when the
	// transport is stopped or the connection is lost beyond its own retry
	// budget; callers must treat a closed channel as transport_unavailable,
	// never as "no more messages will ever arrive."
	Events() <-chan InboundEvent

	Close() error
}
