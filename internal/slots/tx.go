package slots

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/carelane/scheduling-platform/internal/availability"
)

type pgBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PgTxManager binds the slot and window stores to one pgx transaction per
// cleanup so slot mutations and window deletes commit together.
type PgTxManager struct {
	pool    pgBeginner
	slots   *Store
	windows *availability.Store
}

// NewPgTxManager creates a transaction manager over the given pool.
func NewPgTxManager(pool pgBeginner, slotStore *Store, windowStore *availability.Store) *PgTxManager {
	return &PgTxManager{pool: pool, slots: slotStore, windows: windowStore}
}

// InTx runs fn with transaction-bound copies of the stores, committing on
// nil and rolling back otherwise.
func (m *PgTxManager) InTx(ctx context.Context, fn func(slots SlotStore, windows WindowStore) error) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("slots: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(m.slots.WithDB(tx), m.windows.WithDB(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("slots: commit tx: %w", err)
	}
	return nil
}
