// Package store persists login transactions.
//
// Error contract, shared by every implementation:
//   - sentinel.ErrNotFound when no transaction exists under the id
//   - sentinel.ErrConflict when Create hits an existing id
//   - validate callback errors are returned unchanged and nothing is written
//   - infrastructure failures are wrapped with context, and with
//     sentinel.ErrUnavailable when the backend could not be reached
package store

import (
	"context"

	"pushgate/internal/transaction/models"
	"pushgate/pkg/domain"
)

// Store is implemented by InMemoryStore, PostgresStore and RedisStore.
type Store interface {
	Create(ctx context.Context, tx *models.Transaction) error
	FindByID(ctx context.Context, id domain.TransactionID) (*models.Transaction, error)
	// Execute loads the transaction, runs validate, applies mutate and writes
	// the result back as one atomic step. It returns the stored state.
	Execute(ctx context.Context, id domain.TransactionID, validate func(*models.Transaction) error, mutate func(*models.Transaction)) (*models.Transaction, error)
}

func clone(tx *models.Transaction) *models.Transaction {
	c := *tx
	if tx.ResolvedAt != nil {
		at := *tx.ResolvedAt
		c.ResolvedAt = &at
	}
	return &c
}
