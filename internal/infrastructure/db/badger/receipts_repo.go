package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"

	"github.com/satsbridge/swapd/internal/core/domain"
)

const receiptsDir = "receipts"

type receiptsRepository struct {
	store *badgerhold.Store
}

// NewReceiptsRepository opens the durable per-trade store rooted at baseDir.
// An empty baseDir opens an in-memory store.
func NewReceiptsRepository(baseDir string, logger badger.Logger) (domain.ReceiptsRepository, error) {
	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, receiptsDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open receipts store: %w", err)
	}
	return &receiptsRepository{store}, nil
}

type termsData struct {
	Pair                string
	Direction           string
	AppHash             string
	BtcSats             int64
	UsdtAmount          string
	UsdtDecimals        int
	SolMint             string
	SolRecipient        string
	SolRefund           string
	SolRefundAfterUnix  int64
	PlatformFeeBps      int
	PlatformFeeCollector string
	TradeFeeBps         int
	TradeFeeCollector   string
	LnReceiverPeer      string
	LnPayerPeer         string
	TermsValidUntilUnix int64
}

type lnInvoiceData struct {
	Bolt11         string
	PaymentHashHex string
	AmountMsat     int64
	ExpiresAtUnix  int64
}

type solEscrowData struct {
	ProgramID       string
	EscrowPDA       string
	VaultATA        string
	Mint            string
	Amount          int64
	RefundAfterUnix int64
	Recipient       string
	Refund          string
	TxSig           string
}

type lnPaidData struct {
	Paid        bool
	ClaimTxSig  string
	RefundTxSig string
}

// tradeRecordData is the badgerhold-indexed on-disk shape of
// domain.TradeRecord: State is indexed so ListByState can run a Where query
// instead of a full scan.
type tradeRecordData struct {
	TradeID       string
	SchemaVersion int
	Role          string
	State         domain.State `badgerholdIndex:"State"`

	Terms     *termsData
	LnInvoice *lnInvoiceData
	SolEscrow *solEscrowData
	LnPaid    lnPaidData

	LastError string
	CreatedAt int64
	UpdatedAt int64
}

func toTermsData(t *domain.Terms) *termsData {
	if t == nil {
		return nil
	}
	return &termsData{
		Pair:                 t.Pair,
		Direction:            t.Direction,
		AppHash:              t.AppHash,
		BtcSats:              t.BtcSats,
		UsdtAmount:           t.UsdtAmount,
		UsdtDecimals:         t.UsdtDecimals,
		SolMint:              t.SolMint,
		SolRecipient:         t.SolRecipient,
		SolRefund:            t.SolRefund,
		SolRefundAfterUnix:   t.SolRefundAfterUnix,
		PlatformFeeBps:       t.PlatformFeeBps,
		PlatformFeeCollector: t.PlatformFeeCollector,
		TradeFeeBps:          t.TradeFeeBps,
		TradeFeeCollector:    t.TradeFeeCollector,
		LnReceiverPeer:       t.LnReceiverPeer,
		LnPayerPeer:          t.LnPayerPeer,
		TermsValidUntilUnix:  t.TermsValidUntilUnix,
	}
}

func (t *termsData) toDomain() *domain.Terms {
	if t == nil {
		return nil
	}
	return &domain.Terms{
		Pair:                 t.Pair,
		Direction:            t.Direction,
		AppHash:              t.AppHash,
		BtcSats:              t.BtcSats,
		UsdtAmount:           t.UsdtAmount,
		UsdtDecimals:         t.UsdtDecimals,
		SolMint:              t.SolMint,
		SolRecipient:         t.SolRecipient,
		SolRefund:            t.SolRefund,
		SolRefundAfterUnix:   t.SolRefundAfterUnix,
		PlatformFeeBps:       t.PlatformFeeBps,
		PlatformFeeCollector: t.PlatformFeeCollector,
		TradeFeeBps:          t.TradeFeeBps,
		TradeFeeCollector:    t.TradeFeeCollector,
		LnReceiverPeer:       t.LnReceiverPeer,
		LnPayerPeer:          t.LnPayerPeer,
		TermsValidUntilUnix:  t.TermsValidUntilUnix,
	}
}

func toLnInvoiceData(l *domain.LnInvoiceInfo) *lnInvoiceData {
	if l == nil {
		return nil
	}
	return &lnInvoiceData{
		Bolt11:         l.Bolt11,
		PaymentHashHex: l.PaymentHashHex,
		AmountMsat:     l.AmountMsat,
		ExpiresAtUnix:  l.ExpiresAtUnix,
	}
}

func (l *lnInvoiceData) toDomain() *domain.LnInvoiceInfo {
	if l == nil {
		return nil
	}
	return &domain.LnInvoiceInfo{
		Bolt11:         l.Bolt11,
		PaymentHashHex: l.PaymentHashHex,
		AmountMsat:     l.AmountMsat,
		ExpiresAtUnix:  l.ExpiresAtUnix,
	}
}

func toSolEscrowData(s *domain.SolEscrowInfo) *solEscrowData {
	if s == nil {
		return nil
	}
	return &solEscrowData{
		ProgramID:       s.ProgramID,
		EscrowPDA:       s.EscrowPDA,
		VaultATA:        s.VaultATA,
		Mint:            s.Mint,
		Amount:          s.Amount,
		RefundAfterUnix: s.RefundAfterUnix,
		Recipient:       s.Recipient,
		Refund:          s.Refund,
		TxSig:           s.TxSig,
	}
}

func (s *solEscrowData) toDomain() *domain.SolEscrowInfo {
	if s == nil {
		return nil
	}
	return &domain.SolEscrowInfo{
		ProgramID:       s.ProgramID,
		EscrowPDA:       s.EscrowPDA,
		VaultATA:        s.VaultATA,
		Mint:            s.Mint,
		Amount:          s.Amount,
		RefundAfterUnix: s.RefundAfterUnix,
		Recipient:       s.Recipient,
		Refund:          s.Refund,
		TxSig:           s.TxSig,
	}
}

func toTradeRecordData(r domain.TradeRecord) tradeRecordData {
	return tradeRecordData{
		TradeID:       r.TradeID,
		SchemaVersion: r.SchemaVersion,
		Role:          r.Role,
		State:         r.State,
		Terms:         toTermsData(r.Terms),
		LnInvoice:     toLnInvoiceData(r.LnInvoice),
		SolEscrow:     toSolEscrowData(r.SolEscrow),
		LnPaid: lnPaidData{
			Paid:        r.LnPaid.Paid,
			ClaimTxSig:  r.LnPaid.ClaimTxSig,
			RefundTxSig: r.LnPaid.RefundTxSig,
		},
		LastError: r.LastError,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func (d tradeRecordData) toDomain() domain.TradeRecord {
	return domain.TradeRecord{
		TradeID:       d.TradeID,
		SchemaVersion: d.SchemaVersion,
		Role:          d.Role,
		State:         d.State,
		Terms:         d.Terms.toDomain(),
		LnInvoice:     d.LnInvoice.toDomain(),
		SolEscrow:     d.SolEscrow.toDomain(),
		LnPaid: domain.LnPaid{
			Paid:        d.LnPaid.Paid,
			ClaimTxSig:  d.LnPaid.ClaimTxSig,
			RefundTxSig: d.LnPaid.RefundTxSig,
		},
		LastError: d.LastError,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func (r *receiptsRepository) UpsertTrade(ctx context.Context, tradeID string, patch func(*domain.TradeRecord)) (domain.TradeRecord, error) {
	var existing tradeRecordData
	err := r.store.Get(tradeID, &existing)
	var rec domain.TradeRecord
	switch {
	case err == nil:
		rec = existing.toDomain()
	case errors.Is(err, badgerhold.ErrNotFound):
		rec = domain.TradeRecord{TradeID: tradeID, State: domain.StateNew}
	default:
		return domain.TradeRecord{}, fmt.Errorf("failed to read trade %s: %w", tradeID, err)
	}

	patch(&rec)
	rec.TradeID = tradeID

	data := toTradeRecordData(rec)
	if err := r.store.Upsert(tradeID, data); err != nil {
		return domain.TradeRecord{}, fmt.Errorf("failed to upsert trade %s: %w", tradeID, err)
	}
	return rec, nil
}

func (r *receiptsRepository) AppendEvent(ctx context.Context, tradeID, kind string, payload map[string]any) error {
	var existing []eventData
	if err := r.store.Find(&existing, badgerhold.Where("TradeID").Eq(tradeID)); err != nil {
		return fmt.Errorf("failed to list events for trade %s: %w", tradeID, err)
	}

	seq := uint64(len(existing) + 1)
	ev := eventData{
		Key:     fmt.Sprintf("%s:%020d", tradeID, seq),
		TradeID: tradeID,
		Seq:     seq,
		TS:      time.Now().Unix(),
		Kind:    kind,
		Payload: payload,
	}
	if err := r.store.Insert(ev.Key, ev); err != nil {
		return fmt.Errorf("failed to append event for trade %s: %w", tradeID, err)
	}
	return nil
}

type eventData struct {
	Key     string
	TradeID string `badgerholdIndex:"TradeID"`
	Seq     uint64
	TS      int64
	Kind    string
	Payload map[string]any
}

func (r *receiptsRepository) Get(ctx context.Context, tradeID string) (*domain.TradeRecord, error) {
	var data tradeRecordData
	err := r.store.Get(tradeID, &data)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, fmt.Errorf("trade %s not found", tradeID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trade %s: %w", tradeID, err)
	}
	rec := data.toDomain()
	return &rec, nil
}

func (r *receiptsRepository) ListByState(ctx context.Context, states ...domain.State) ([]domain.TradeRecord, error) {
	if len(states) == 0 {
		return nil, nil
	}
	in := make([]interface{}, len(states))
	for i, s := range states {
		in[i] = s
	}

	var rows []tradeRecordData
	if err := r.store.Find(&rows, badgerhold.Where("State").In(in...)); err != nil {
		return nil, fmt.Errorf("failed to list trades by state: %w", err)
	}

	out := make([]domain.TradeRecord, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

func (r *receiptsRepository) Events(ctx context.Context, tradeID string) ([]domain.Event, error) {
	var rows []eventData
	if err := r.store.Find(&rows, badgerhold.Where("TradeID").Eq(tradeID)); err != nil {
		return nil, fmt.Errorf("failed to list events for trade %s: %w", tradeID, err)
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Seq < rows[j].Seq })

	out := make([]domain.Event, len(rows))
	for i, row := range rows {
		out[i] = domain.Event{
			TradeID: row.TradeID,
			Seq:     row.Seq,
			TS:      row.TS,
			Kind:    row.Kind,
			Payload: row.Payload,
		}
	}
	return out, nil
}

func (r *receiptsRepository) Close() error {
	return r.store.Close()
}
