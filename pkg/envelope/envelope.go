// Package envelope implements the canonical encoding, hashing and signing
// of signed inter-peer messages exchanged over the sidechannel transport.
package envelope

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/agl/ed25519"
)

// Kind is the closed variant tag carried by every Envelope.
type Kind string

const (
	KindRFQ               Kind = "RFQ"
	KindQuote             Kind = "QUOTE"
	KindQuoteAccept       Kind = "QUOTE_ACCEPT"
	KindSwapInvite        Kind = "SWAP_INVITE"
	KindTerms             Kind = "TERMS"
	KindAccept            Kind = "ACCEPT"
	KindLnInvoice         Kind = "LN_INVOICE"
	KindSolEscrowCreated  Kind = "SOL_ESCROW_CREATED"
	KindStatus            Kind = "STATUS"
	KindCancel            Kind = "CANCEL"
	KindSvcAnnounce       Kind = "SVC_ANNOUNCE"
)

// ProtocolVersion is the current value of the Envelope.V field.
const ProtocolVersion = 1

// validKinds is the closed set; anything else fails shape validation.
var validKinds = map[Kind]struct{}{
	KindRFQ: {}, KindQuote: {}, KindQuoteAccept: {}, KindSwapInvite: {},
	KindTerms: {}, KindAccept: {}, KindLnInvoice: {}, KindSolEscrowCreated: {},
	KindStatus: {}, KindCancel: {}, KindSvcAnnounce: {},
}

// IsValidKind reports whether k belongs to the closed variant set.
func IsValidKind(k Kind) bool {
	_, ok := validKinds[k]
	return ok
}

// Envelope is the immutable value object exchanged between peers. Body
// holds the kind-specific payload; only fields declared for a given Kind
// participate in the canonical encoding (see codec.go).
type Envelope struct {
	V       int            `json:"v"`
	Kind    Kind           `json:"kind"`
	TradeID string         `json:"trade_id"`
	TS      int64          `json:"ts"`
	Nonce   string         `json:"nonce"`
	Body    map[string]any `json:"body"`
	Signer  string         `json:"signer"`
	Sig     string         `json:"sig"`
}

// NewUnsigned builds an Envelope with Signer/Sig left empty, ready for
// Hash and Sign.
func NewUnsigned(kind Kind, tradeID string, ts int64, nonce string, body map[string]any) (Envelope, error) {
	if !IsValidKind(kind) {
		return Envelope{}, fmt.Errorf("envelope: unknown kind %q", kind)
	}
	if tradeID == "" {
		return Envelope{}, fmt.Errorf("envelope: empty trade_id")
	}
	if nonce == "" {
		return Envelope{}, fmt.Errorf("envelope: empty nonce")
	}
	return Envelope{
		V:       ProtocolVersion,
		Kind:    kind,
		TradeID: tradeID,
		TS:      ts,
		Nonce:   nonce,
		Body:    body,
	}, nil
}

// Hash returns the 32-byte digest of the canonical encoding of every field
// except Signer and Sig. It is used both as the signing input and as the
// rfq_id/quote_id/terms_hash referenced by later envelopes.
func (e Envelope) Hash() ([32]byte, error) {
	b, err := canonicalBytes(e)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(b), nil
}

// HashHex is Hash hex-encoded, lowercase.
func (e Envelope) HashHex() (string, error) {
	h, err := e.Hash()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(h[:]), nil
}

// Sign signs the unsigned envelope's hash with sk and returns the
// lowercase-hex signature. e must not already carry Signer/Sig.
func Sign(e Envelope, sk *[ed25519.PrivateKeySize]byte) (string, error) {
	h, err := e.Hash()
	if err != nil {
		return "", err
	}
	sig := ed25519.Sign(sk, h[:])
	return hex.EncodeToString(sig[:]), nil
}

// Attach returns a copy of the unsigned envelope e with the given signer
// public key and signature attached.
func Attach(e Envelope, signerPubHex, sigHex string) (Envelope, error) {
	if len(signerPubHex) != ed25519.PublicKeySize*2 {
		return Envelope{}, fmt.Errorf("envelope: signer must be %d-hex", ed25519.PublicKeySize*2)
	}
	if len(sigHex) != ed25519.SignatureSize*2 {
		return Envelope{}, fmt.Errorf("envelope: sig must be %d-hex", ed25519.SignatureSize*2)
	}
	signed := e
	signed.Signer = signerPubHex
	signed.Sig = sigHex
	return signed, nil
}

// Verify cryptographically checks Sig against Signer over the canonical
// encoding of the unsigned fields. It returns false on any malformed hex,
// wrong-length key/signature, or signature mismatch — never an error, since
// an invalid envelope is simply not verified.
func Verify(signed Envelope) bool {
	pubBytes, err := hex.DecodeString(signed.Signer)
	if err != nil || len(pubBytes) != ed25519.PublicKeySize {
		return false
	}
	sigBytes, err := hex.DecodeString(signed.Sig)
	if err != nil || len(sigBytes) != ed25519.SignatureSize {
		return false
	}

	unsigned := signed
	unsigned.Signer = ""
	unsigned.Sig = ""
	h, err := unsigned.Hash()
	if err != nil {
		return false
	}

	var pub [ed25519.PublicKeySize]byte
	copy(pub[:], pubBytes)
	var sig [ed25519.SignatureSize]byte
	copy(sig[:], sigBytes)

	return ed25519.Verify(&pub, h[:], &sig)
}

// SignAndAttach is a convenience combining Sign and Attach.
func SignAndAttach(e Envelope, pubHex string, sk *[ed25519.PrivateKeySize]byte) (Envelope, error) {
	sigHex, err := Sign(e, sk)
	if err != nil {
		return Envelope{}, err
	}
	return Attach(e, pubHex, sigHex)
}
