package envelope

import (
	"crypto/rand"
	"encoding/hex"
	"testing"

	"github.com/agl/ed25519"
	"github.com/stretchr/testify/require"
)

func genKey(t *testing.T) (string, *[ed25519.PrivateKeySize]byte) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return hex.EncodeToString(pub[:]), priv
}

func TestSignVerifyRoundTrip(t *testing.T) {
	pubHex, sk := genKey(t)

	unsigned, err := NewUnsigned(KindRFQ, "trade-1", 1_700_000_000_000, "n1",
		RFQBody("BTC/USDT", "btc_to_usdt", 10000, "1000000", 6,
			"4gRGqmg", "Es9vNYB", "apphash1", 50, 50, 100, 3600, 86400, 1_700_000_600_000))
	require.NoError(t, err)

	signed, err := SignAndAttach(unsigned, pubHex, sk)
	require.NoError(t, err)

	require.True(t, Verify(signed))
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	pubHex, sk := genKey(t)

	unsigned, err := NewUnsigned(KindCancel, "trade-1", 1, "n1", CancelBody("timeout"))
	require.NoError(t, err)

	signed, err := SignAndAttach(unsigned, pubHex, sk)
	require.NoError(t, err)

	signed.Body["reason"] = "tampered"
	require.False(t, Verify(signed))
}

func TestUnknownBodyFieldDoesNotAffectHash(t *testing.T) {
	base, err := NewUnsigned(KindCancel, "trade-1", 1, "n1", CancelBody("timeout"))
	require.NoError(t, err)

	withExtra := base
	withExtra.Body = map[string]any{"reason": "timeout", "unlisted": "anything"}

	h1, err := base.Hash()
	require.NoError(t, err)
	h2, err := withExtra.Hash()
	require.NoError(t, err)
	require.Equal(t, h1, h2)
}

func TestHashIsDeterministicAcrossEquivalentBodies(t *testing.T) {
	e1, err := NewUnsigned(KindQuoteAccept, "t1", 5, "n", QuoteAcceptBody("q1"))
	require.NoError(t, err)
	e2, err := NewUnsigned(KindQuoteAccept, "t1", 5, "n", QuoteAcceptBody("q1"))
	require.NoError(t, err)

	h1, err := e1.Hash()
	require.NoError(t, err)
	h2, err := e2.Hash()
	require.NoError(t, err)
	require.Equal(t, h1, h2)
}

func TestHashDiffersOnDifferentNonce(t *testing.T) {
	e1, err := NewUnsigned(KindQuoteAccept, "t1", 5, "n1", QuoteAcceptBody("q1"))
	require.NoError(t, err)
	e2, err := NewUnsigned(KindQuoteAccept, "t1", 5, "n2", QuoteAcceptBody("q1"))
	require.NoError(t, err)

	h1, err := e1.Hash()
	require.NoError(t, err)
	h2, err := e2.Hash()
	require.NoError(t, err)
	require.NotEqual(t, h1, h2)
}

func TestAttachRejectsMalformedHex(t *testing.T) {
	unsigned, err := NewUnsigned(KindCancel, "trade-1", 1, "n1", CancelBody("timeout"))
	require.NoError(t, err)

	_, err = Attach(unsigned, "not-hex", "deadbeef")
	require.Error(t, err)
}

func TestVerifyRejectsWrongSigner(t *testing.T) {
	_, sk := genKey(t)
	otherPubHex, _ := genKey(t)

	unsigned, err := NewUnsigned(KindCancel, "trade-1", 1, "n1", CancelBody("timeout"))
	require.NoError(t, err)

	sigHex, err := Sign(unsigned, sk)
	require.NoError(t, err)

	signed, err := Attach(unsigned, otherPubHex, sigHex)
	require.NoError(t, err)

	require.False(t, Verify(signed))
}

func TestInvitePayloadRoundTrip(t *testing.T) {
	inv := InvitePayload{InviteePubKey: "aa", InviterPubKey: "bb", ExpiresAt: 123}
	body := SwapInviteBody("swap:trade-1", inv)

	decoded, ok := InvitePayloadFromMap(body["invite"].(map[string]any))
	require.True(t, ok)
	require.Equal(t, inv, decoded)
}
