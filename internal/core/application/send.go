package application

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/satsbridge/swapd/internal/core/ports"
	"github.com/satsbridge/swapd/pkg/envelope"
)

// newNonce returns a random 16-byte hex string, unique enough within
// (signer, kind, trade_id) for the protocol's replay-detection purposes.
func newNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// build signs a fresh envelope of kind for tradeID with body, stamped at
// the current wall clock.
func (e *Engine) build(kind envelope.Kind, tradeID string, body map[string]any) (envelope.Envelope, error) {
	nonce, err := newNonce()
	if err != nil {
		return envelope.Envelope{}, err
	}
	unsigned, err := envelope.NewUnsigned(kind, tradeID, time.Now().UnixMilli(), nonce, body)
	if err != nil {
		return envelope.Envelope{}, err
	}
	return envelope.SignAndAttach(unsigned, e.cfg.SelfPubHex, e.cfg.SelfSK)
}

// send signs and sends a fresh envelope, and records it in a.lastSent so
// the actor's resend cadence can re-emit the exact same bytes later.
func (e *Engine) send(ctx context.Context, a *tradeActor, channel string, kind envelope.Kind, body map[string]any, invite *ports.Invite) error {
	signed, err := e.build(kind, a.tradeID, body)
	if err != nil {
		return err
	}
	return e.resend(ctx, a, channel, signed, invite)
}

// resend re-transmits an already-signed envelope verbatim and refreshes the
// actor's resend bookkeeping — used both for first send and for cadence
// resends so a peer always sees byte-identical retransmissions.
func (e *Engine) resend(ctx context.Context, a *tradeActor, channel string, signed envelope.Envelope, invite *ports.Invite) error {
	if err := e.transport.Send(ctx, channel, signed, invite); err != nil {
		return err
	}
	a.lastSent[signed.Kind] = signed
	a.lastSentAt = time.Now()
	return nil
}
