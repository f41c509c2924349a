package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"pushgate/internal/enrollment/models"
	"pushgate/internal/platform/postgres"
	"pushgate/pkg/domain"
	"pushgate/pkg/platform/sentinel"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, account *models.Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, email, push_token, device_name, enrolled_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		account.ID.String(), account.Email, account.PushToken, account.DeviceName, account.EnrolledAt, account.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("account already enrolled: %w", sentinel.ErrConflict)
		}
		return postgres.WrapErr("insert account", err)
	}
	return nil
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	var (
		id      string
		account models.Account
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, push_token, device_name, enrolled_at, updated_at
		FROM accounts
		WHERE email = $1`, email,
	).Scan(&id, &account.Email, &account.PushToken, &account.DeviceName, &account.EnrolledAt, &account.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
		}
		return nil, postgres.WrapErr("select account", err)
	}
	parsed, err := domain.ParseAccountID(id)
	if err != nil {
		return nil, fmt.Errorf("decode account id: %w", err)
	}
	account.ID = parsed
	return &account, nil
}
