package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/polytrader/internal/domain"
)

// LedgerStore implements domain.LedgerStore using PostgreSQL. Each mutation
// is a single statement, so durability here is per-row rather than the file
// store's whole-snapshot overwrite.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a LedgerStore backed by the given connection pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

const ledgerSelectCols = `token_id, size, average_price, entry_time, last_update`

func scanLedgerRow(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	err := row.Scan(&p.TokenID, &p.Size, &p.AvgPrice, &p.EntryTime, &p.UpdatedAt)
	if err != nil {
		return domain.Position{}, err
	}
	p.Origin = domain.PositionOriginVirtual
	return p, nil
}

// Get returns the position for tokenID, or domain.ErrNotFound.
func (s *LedgerStore) Get(ctx context.Context, tokenID string) (domain.Position, error) {
	query := fmt.Sprintf(`SELECT %s FROM virtual_positions WHERE token_id = $1`, ledgerSelectCols)

	pos, err := scanLedgerRow(s.pool.QueryRow(ctx, query, tokenID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Position{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", tokenID, err)
	}
	return pos, nil
}

// Put inserts or replaces the position keyed by its token ID.
func (s *LedgerStore) Put(ctx context.Context, pos domain.Position) error {
	const query = `
		INSERT INTO virtual_positions (token_id, size, average_price, entry_time, last_update)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (token_id) DO UPDATE SET
			size = EXCLUDED.size,
			average_price = EXCLUDED.average_price,
			entry_time = EXCLUDED.entry_time,
			last_update = EXCLUDED.last_update`

	if _, err := s.pool.Exec(ctx, query,
		pos.TokenID, pos.Size, pos.AvgPrice, pos.EntryTime, pos.UpdatedAt,
	); err != nil {
		return fmt.Errorf("postgres: put position %s: %w", pos.TokenID, err)
	}
	return nil
}

// Delete removes the position for tokenID. Deleting a missing token is a
// no-op.
func (s *LedgerStore) Delete(ctx context.Context, tokenID string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM virtual_positions WHERE token_id = $1`, tokenID,
	); err != nil {
		return fmt.Errorf("postgres: delete position %s: %w", tokenID, err)
	}
	return nil
}

// List returns all stored positions in unspecified order.
func (s *LedgerStore) List(ctx context.Context) ([]domain.Position, error) {
	query := fmt.Sprintf(`SELECT %s FROM virtual_positions`, ledgerSelectCols)

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		var p domain.Position
		if err := rows.Scan(&p.TokenID, &p.Size, &p.AvgPrice, &p.EntryTime, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		p.Origin = domain.PositionOriginVirtual
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	return positions, nil
}

// Compile-time interface check.
var _ domain.LedgerStore = (*LedgerStore)(nil)
