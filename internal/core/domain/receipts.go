package domain

import "context"

// TradeRecord is the durable, per-trade record kept by the receipts store.
// It mirrors TradeState plus the operator-visible bookkeeping the store
// contract requires (schema version, last error, role).
type TradeRecord struct {
	TradeID       string
	SchemaVersion int
	Role          string // "maker" | "taker"
	State         State

	Terms     *Terms
	LnInvoice *LnInvoiceInfo
	SolEscrow *SolEscrowInfo
	LnPaid    LnPaid

	LastError string
	CreatedAt int64
	UpdatedAt int64
}

// Event is a single append-only log entry for a trade.
type Event struct {
	TradeID string
	Seq     uint64
	TS      int64
	Kind    string
	Payload map[string]any
}

// ReceiptsRepository is the durable per-trade store contract: upsert-by-
// patch for the current record, append-only events, and a query filtered
// by trade state.
type ReceiptsRepository interface {
	UpsertTrade(ctx context.Context, tradeID string, patch func(*TradeRecord)) (TradeRecord, error)
	AppendEvent(ctx context.Context, tradeID, kind string, payload map[string]any) error

	Get(ctx context.Context, tradeID string) (*TradeRecord, error)
	ListByState(ctx context.Context, states ...State) ([]TradeRecord, error)
	Events(ctx context.Context, tradeID string) ([]Event, error)

	Close() error
}
