package application

import (
	"crypto/rand"
	"testing"
	"time"

	"github.com/agl/ed25519"
	"github.com/stretchr/testify/require"

	"github.com/satsbridge/swapd/pkg/envelope"
	"github.com/satsbridge/swapd/pkg/swaperr"
)

func validatorKey(t *testing.T) (string, *[ed25519.PrivateKeySize]byte) {
	t.Helper()
	pub, sk, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return hexEncode(pub[:]), sk
}

func sign(t *testing.T, pubHex string, sk *[ed25519.PrivateKeySize]byte, kind envelope.Kind, tradeID string, body map[string]any) envelope.Envelope {
	t.Helper()
	unsigned, err := envelope.NewUnsigned(kind, tradeID, time.Now().UnixMilli(), "n-"+string(kind), body)
	require.NoError(t, err)
	signed, err := envelope.SignAndAttach(unsigned, pubHex, sk)
	require.NoError(t, err)
	return signed
}

func TestValidateRejectsUnknownKind(t *testing.T) {
	pubHex, sk := validatorKey(t)
	// Built by hand: NewUnsigned itself rejects an unknown kind, so this
	// constructs the envelope directly to exercise Validate's own check.
	unsigned := envelope.Envelope{V: envelope.ProtocolVersion, Kind: envelope.Kind("bogus"), TradeID: "t1", Nonce: "n1", Body: map[string]any{}}
	sig, err := envelope.Sign(unsigned, sk)
	require.NoError(t, err)
	e, err := envelope.Attach(unsigned, pubHex, sig)
	require.NoError(t, err)

	err = Validate(e)
	require.Error(t, err)
	require.True(t, swaperr.Is(err, swaperr.KindSchemaInvalid))
}

func TestValidateRejectsMissingTradeID(t *testing.T) {
	pubHex, sk := validatorKey(t)
	// NewUnsigned itself rejects an empty trade_id, so this constructs the
	// envelope directly to exercise Validate's own check.
	unsigned := envelope.Envelope{V: envelope.ProtocolVersion, Kind: envelope.KindCancel, TradeID: "", Nonce: "n1", Body: envelope.CancelBody("timeout")}
	sig, err := envelope.Sign(unsigned, sk)
	require.NoError(t, err)
	e, err := envelope.Attach(unsigned, pubHex, sig)
	require.NoError(t, err)

	err = Validate(e)
	require.Error(t, err)
	require.True(t, swaperr.Is(err, swaperr.KindSchemaInvalid))
}

func TestValidateRejectsBadSignature(t *testing.T) {
	pubHex, sk := validatorKey(t)
	e := sign(t, pubHex, sk, envelope.KindCancel, "t1", envelope.CancelBody("timeout"))
	e.Body["reason"] = "tampered"
	err := Validate(e)
	require.Error(t, err)
	require.True(t, swaperr.Is(err, swaperr.KindSignatureInvalid))
}

func TestValidateCancelAndSvcAnnounceHaveNoBodyChecks(t *testing.T) {
	pubHex, sk := validatorKey(t)
	require.NoError(t, Validate(sign(t, pubHex, sk, envelope.KindCancel, "t1", envelope.CancelBody(""))))
	require.NoError(t, Validate(sign(t, pubHex, sk, envelope.KindSvcAnnounce, "t1", map[string]any{})))
}

func validRFQBody(validUntil int64) map[string]any {
	return envelope.RFQBody("BTCLN/USDT-SOL", "btc_to_sol", 100000, "1000000", 6,
		testRecipient, testMint, "apphash", 50, 50, 100, 600, 7200, validUntil)
}

func TestValidateRFQAccepts(t *testing.T) {
	pubHex, sk := validatorKey(t)
	e := sign(t, pubHex, sk, envelope.KindRFQ, "t1", validRFQBody(time.Now().Add(time.Minute).Unix()))
	require.NoError(t, Validate(e))
}

func TestValidateRFQRejectsNonPositiveBtcSats(t *testing.T) {
	pubHex, sk := validatorKey(t)
	body := validRFQBody(time.Now().Add(time.Minute).Unix())
	body["btc_sats"] = int64(0)
	e := sign(t, pubHex, sk, envelope.KindRFQ, "t1", body)
	err := Validate(e)
	require.Error(t, err)
	require.True(t, swaperr.Is(err, swaperr.KindSchemaInvalid))
}

func TestValidateRFQRejectsOutOfRangeBps(t *testing.T) {
	pubHex, sk := validatorKey(t)
	body := validRFQBody(time.Now().Add(time.Minute).Unix())
	body["max_total_fee_bps"] = 20000
	e := sign(t, pubHex, sk, envelope.KindRFQ, "t1", body)
	err := Validate(e)
	require.Error(t, err)
	require.True(t, swaperr.Is(err, swaperr.KindSchemaInvalid))
}

func TestValidateRFQRejectsAlreadyExpired(t *testing.T) {
	pubHex, sk := validatorKey(t)
	e := sign(t, pubHex, sk, envelope.KindRFQ, "t1", validRFQBody(time.Now().Add(-time.Minute).Unix()))
	err := Validate(e)
	require.Error(t, err)
	require.True(t, swaperr.Is(err, swaperr.KindExpiredEnvelope))
}

func TestValidateQuoteAcceptRejectsEmptyQuoteID(t *testing.T) {
	pubHex, sk := validatorKey(t)
	e := sign(t, pubHex, sk, envelope.KindQuoteAccept, "t1", envelope.QuoteAcceptBody(""))
	err := Validate(e)
	require.Error(t, err)
	require.True(t, swaperr.Is(err, swaperr.KindSchemaInvalid))
}

func TestValidateSwapInviteRejectsMissingInvite(t *testing.T) {
	pubHex, sk := validatorKey(t)
	body := map[string]any{"swap_channel": "swap:t1"}
	e := sign(t, pubHex, sk, envelope.KindSwapInvite, "t1", body)
	err := Validate(e)
	require.Error(t, err)
	require.True(t, swaperr.Is(err, swaperr.KindSchemaInvalid))
}

func TestValidateSwapInviteRejectsExpiredInvite(t *testing.T) {
	pubHex, sk := validatorKey(t)
	invite := envelope.InvitePayload{InviteePubKey: "a", InviterPubKey: "b", ExpiresAt: time.Now().Add(-time.Minute).Unix()}
	body := envelope.SwapInviteBody("swap:t1", invite)
	e := sign(t, pubHex, sk, envelope.KindSwapInvite, "t1", body)
	err := Validate(e)
	require.Error(t, err)
	require.True(t, swaperr.Is(err, swaperr.KindInviteExpired))
}

func validTermsBody(refundAfter, validUntil int64) map[string]any {
	return envelope.TermsBody("BTCLN/USDT-SOL", "btc_to_sol", "apphash", 100000, "1000000", 6,
		testMint, testRecipient, testRefund, refundAfter,
		50, testFeeCollector, 50, testFeeCollector, "peer-a", "peer-b", validUntil)
}

func TestValidateTermsAccepts(t *testing.T) {
	pubHex, sk := validatorKey(t)
	now := time.Now()
	e := sign(t, pubHex, sk, envelope.KindTerms, "t1",
		validTermsBody(now.Add(time.Hour).Unix(), now.Add(time.Minute).Unix()))
	require.NoError(t, Validate(e))
}

func TestValidateTermsRejectsRefundWindowTooShort(t *testing.T) {
	pubHex, sk := validatorKey(t)
	now := time.Now()
	// Refund window only a few seconds past ts, well under the floor.
	e := sign(t, pubHex, sk, envelope.KindTerms, "t1",
		validTermsBody(now.Unix()+5, now.Add(time.Minute).Unix()))
	err := Validate(e)
	require.Error(t, err)
	require.True(t, swaperr.Is(err, swaperr.KindRefundWindowViolated))
}

func TestValidateAcceptRejectsEmptyTermsHash(t *testing.T) {
	pubHex, sk := validatorKey(t)
	e := sign(t, pubHex, sk, envelope.KindAccept, "t1", envelope.AcceptBody(""))
	err := Validate(e)
	require.Error(t, err)
	require.True(t, swaperr.Is(err, swaperr.KindSchemaInvalid))
}

func TestValidateLnInvoiceRejectsShortPaymentHash(t *testing.T) {
	pubHex, sk := validatorKey(t)
	body := envelope.LnInvoiceBody("lnbc1x", "ab", 1000, time.Now().Add(time.Hour).Unix())
	e := sign(t, pubHex, sk, envelope.KindLnInvoice, "t1", body)
	err := Validate(e)
	require.Error(t, err)
	require.True(t, swaperr.Is(err, swaperr.KindSchemaInvalid))
}

func TestValidateLnInvoiceRejectsExpired(t *testing.T) {
	pubHex, sk := validatorKey(t)
	body := envelope.LnInvoiceBody("lnbc1x", padHex("aa"), 1000, time.Now().Add(-time.Hour).Unix())
	e := sign(t, pubHex, sk, envelope.KindLnInvoice, "t1", body)
	err := Validate(e)
	require.Error(t, err)
	require.True(t, swaperr.Is(err, swaperr.KindExpiredEnvelope))
}

func TestValidateSolEscrowCreatedRejectsMissingField(t *testing.T) {
	pubHex, sk := validatorKey(t)
	body := envelope.SolEscrowCreatedBody("", "pda", "ata", testMint, padHex("aa"), 1000,
		time.Now().Add(time.Hour).Unix(), testRecipient, testRefund, "sig")
	e := sign(t, pubHex, sk, envelope.KindSolEscrowCreated, "t1", body)
	err := Validate(e)
	require.Error(t, err)
	require.True(t, swaperr.Is(err, swaperr.KindSchemaInvalid))
}

func TestValidateSolEscrowCreatedRejectsZeroAmount(t *testing.T) {
	pubHex, sk := validatorKey(t)
	body := envelope.SolEscrowCreatedBody("prog", "pda", "ata", testMint, padHex("aa"), 0,
		time.Now().Add(time.Hour).Unix(), testRecipient, testRefund, "sig")
	e := sign(t, pubHex, sk, envelope.KindSolEscrowCreated, "t1", body)
	err := Validate(e)
	require.Error(t, err)
	require.True(t, swaperr.Is(err, swaperr.KindSchemaInvalid))
}

func TestValidateStatusRejectsClaimedAndRefundedTogether(t *testing.T) {
	pubHex, sk := validatorKey(t)
	body := envelope.StatusBody(true, true, true, "sig")
	e := sign(t, pubHex, sk, envelope.KindStatus, "t1", body)
	err := Validate(e)
	require.Error(t, err)
	require.True(t, swaperr.Is(err, swaperr.KindSchemaInvalid))
}

func TestValidateStatusAcceptsClaimedAlone(t *testing.T) {
	pubHex, sk := validatorKey(t)
	body := envelope.StatusBody(true, true, false, "sig")
	e := sign(t, pubHex, sk, envelope.KindStatus, "t1", body)
	require.NoError(t, Validate(e))
}
