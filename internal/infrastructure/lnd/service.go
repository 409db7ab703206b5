// Package lnd implements the Lightning client port against a real LND node
// over lnrpc/gRPC, the same client stack the teacher codebase uses to drive
// invoice creation and payment.
package lnd

import (
	"context"
	"encoding/hex"
	"fmt"

	decodepay "github.com/nbd-wtf/ln-decodepay"
	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/satsbridge/swapd/internal/core/ports"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
)

var ErrNotConnected = fmt.Errorf("lnd service not connected")

type service struct {
	client   lnrpc.LightningClient
	conn     *grpc.ClientConn
	macaroon string
}

// NewService returns an unconnected ports.LnService; callers must call
// Connect before Invoice/Pay/DecodeBolt11.
func NewService() ports.LnService {
	return &service{}
}

func (s *service) Connect(ctx context.Context, connectURL string) error {
	if connectURL == "" {
		return fmt.Errorf("empty lndconnect url")
	}

	client, conn, macaroon, err := getClient(connectURL)
	if err != nil {
		return fmt.Errorf("unable to get client: %w", err)
	}

	info, err := client.GetInfo(getCtx(ctx, macaroon), &lnrpc.GetInfoRequest{})
	if err != nil {
		return fmt.Errorf("unable to get info: %w", err)
	}
	if info.GetVersion() == "" || info.GetIdentityPubkey() == "" {
		return fmt.Errorf("lnd returned empty version/pubkey")
	}

	s.client = client
	s.conn = conn
	s.macaroon = macaroon

	logrus.WithFields(logrus.Fields{
		"version": info.GetVersion(),
		"pubkey":  info.GetIdentityPubkey(),
	}).Info("connected to lnd")

	return nil
}

func (s *service) Disconnect() {
	if s.conn != nil {
		s.conn.Close()
	}
	s.client = nil
	s.conn = nil
}

func (s *service) IsConnected() bool {
	return s.client != nil
}

func (s *service) Invoice(ctx context.Context, amountMsat int64, label, description string, expirySec int64) (string, string, error) {
	if !s.IsConnected() {
		return "", "", ErrNotConnected
	}

	req := &lnrpc.Invoice{
		ValueMsat: amountMsat,
		Memo:      description,
		Expiry:    expirySec,
	}
	resp, err := s.client.AddInvoice(getCtx(ctx, s.macaroon), req)
	if err != nil {
		return "", "", fmt.Errorf("add invoice: %w", err)
	}

	return resp.PaymentRequest, hex.EncodeToString(resp.RHash), nil
}

func (s *service) Pay(ctx context.Context, bolt11 string) (string, error) {
	if !s.IsConnected() {
		return "", ErrNotConnected
	}

	cctx := getCtx(ctx, s.macaroon)
	if _, err := s.client.DecodePayReq(cctx, &lnrpc.PayReqString{PayReq: bolt11}); err != nil {
		return "", fmt.Errorf("invalid invoice: %w", err)
	}

	resp, err := s.client.SendPaymentSync(cctx, &lnrpc.SendRequest{PaymentRequest: bolt11})
	if err != nil {
		return "", fmt.Errorf("send payment: %w", err)
	}
	if resp.GetPaymentError() != "" {
		return "", fmt.Errorf("payment failed: %s", resp.GetPaymentError())
	}

	return hex.EncodeToString(resp.GetPaymentPreimage()), nil
}

func (s *service) DecodeBolt11(ctx context.Context, bolt11 string) (int64, string, int64, error) {
	decoded, err := decodepay.Decodepay(bolt11)
	if err != nil {
		return 0, "", 0, fmt.Errorf("decode bolt11: %w", err)
	}
	expiresAt := decoded.CreatedAt + decoded.Expiry
	return expiresAt, decoded.PaymentHash, decoded.MSatoshi, nil
}
