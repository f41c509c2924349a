// Package store persists enrolled accounts.
//
// Error contract:
//   - sentinel.ErrNotFound when no account matches
//   - sentinel.ErrConflict when the email is already enrolled
//   - infrastructure failures are wrapped with context
package store

import (
	"context"

	"pushgate/internal/enrollment/models"
)

type Store interface {
	Save(ctx context.Context, account *models.Account) error
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
}
