package lnd

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/lightningnetwork/lnd/lnrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/metadata"
)

// getClient dials an lndconnect:// URL and returns a ready LightningClient,
// its underlying connection, and the hex macaroon to attach to every call.
// lndconnect encodes the TLS cert and macaroon as base64url query params
// alongside the host:port, per the lndconnect scheme LND's own tooling
// emits.
func getClient(lndconnectURL string) (lnrpc.LightningClient, *grpc.ClientConn, string, error) {
	u, err := url.Parse(lndconnectURL)
	if err != nil {
		return nil, nil, "", fmt.Errorf("parse lndconnect url: %w", err)
	}
	if u.Scheme != "lndconnect" {
		return nil, nil, "", fmt.Errorf("unsupported scheme %q, want lndconnect", u.Scheme)
	}

	certB64 := u.Query().Get("cert")
	macB64 := u.Query().Get("macaroon")
	if certB64 == "" || macB64 == "" {
		return nil, nil, "", fmt.Errorf("lndconnect url missing cert or macaroon param")
	}

	certBytes, err := base64.RawURLEncoding.DecodeString(certB64)
	if err != nil {
		return nil, nil, "", fmt.Errorf("decode cert: %w", err)
	}
	macBytes, err := base64.RawURLEncoding.DecodeString(macB64)
	if err != nil {
		return nil, nil, "", fmt.Errorf("decode macaroon: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(certBytes) {
		// lndconnect carries a raw DER cert, not PEM, when exported from
		// some LND builds; fall back to parsing it directly.
		cert, err := x509.ParseCertificate(certBytes)
		if err != nil {
			return nil, nil, "", fmt.Errorf("parse tls cert: %w", err)
		}
		pool.AddCert(cert)
	}

	creds := credentials.NewTLS(&tls.Config{RootCAs: pool})
	conn, err := grpc.Dial(u.Host, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, nil, "", fmt.Errorf("dial %s: %w", u.Host, err)
	}

	return lnrpc.NewLightningClient(conn), conn, strings.ToLower(fmt.Sprintf("%x", macBytes)), nil
}

// getCtx attaches the macaroon as the grpc metadata LND expects on every
// authenticated call.
func getCtx(ctx context.Context, macaroonHex string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, "macaroon", macaroonHex)
}
