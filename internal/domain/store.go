package domain

import "context"

// LedgerStore persists the virtual position ledger: a mapping from token ID
// to at most one open position. Implementations guarantee that each call is
// durable before it returns, but only with whole-snapshot atomicity for the
// file-backed store; a crash mid-write may lose the in-flight mutation.
//
// Single-writer assumption: exactly one process mutates a given store. No
// cross-process locking is provided.
type LedgerStore interface {
	Get(ctx context.Context, tokenID string) (Position, error)
	Put(ctx context.Context, pos Position) error
	Delete(ctx context.Context, tokenID string) error
	List(ctx context.Context) ([]Position, error)
}

// HistorySink receives append-only trade history rows.
type HistorySink interface {
	Append(ctx context.Context, rec TradeRecord) error
}
