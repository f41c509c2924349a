package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pushgate/internal/platform/postgres"
	"pushgate/internal/transaction/models"
	"pushgate/pkg/domain"
	"pushgate/pkg/platform/sentinel"
)

// PostgresStore persists transactions in the login_transactions table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const selectTransaction = `
	SELECT id, account_id, email, status, client_ip, created_at, resolved_at
	FROM login_transactions
	WHERE id = $1`

func (s *PostgresStore) Create(ctx context.Context, tx *models.Transaction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO login_transactions (id, account_id, email, status, client_ip, created_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		tx.ID.String(), tx.AccountID.String(), tx.Email, tx.Status.String(), tx.ClientIP, tx.CreatedAt, tx.ResolvedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("transaction already exists: %w", sentinel.ErrConflict)
		}
		return postgres.WrapErr("insert transaction", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.TransactionID) (*models.Transaction, error) {
	tx, err := scanTransaction(s.db.QueryRowContext(ctx, selectTransaction, id.String()))
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// Execute locks the row with SELECT ... FOR UPDATE for the duration of the
// validate/mutate step.
func (s *PostgresStore) Execute(ctx context.Context, id domain.TransactionID, validate func(*models.Transaction) error, mutate func(*models.Transaction)) (*models.Transaction, error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, postgres.WrapErr("begin transaction", err)
	}
	defer func() { _ = sqlTx.Rollback() }()

	tx, err := scanTransaction(sqlTx.QueryRowContext(ctx, selectTransaction+" FOR UPDATE", id.String()))
	if err != nil {
		return nil, err
	}
	if err := validate(tx); err != nil {
		return nil, err
	}
	mutate(tx)

	_, err = sqlTx.ExecContext(ctx, `
		UPDATE login_transactions SET status = $2, resolved_at = $3 WHERE id = $1`,
		tx.ID.String(), tx.Status.String(), tx.ResolvedAt,
	)
	if err != nil {
		return nil, postgres.WrapErr("update transaction", err)
	}
	if err := sqlTx.Commit(); err != nil {
		return nil, postgres.WrapErr("commit transaction", err)
	}
	return tx, nil
}

func scanTransaction(row *sql.Row) (*models.Transaction, error) {
	var (
		id, accountID, status string
		tx                    models.Transaction
		resolvedAt            sql.NullTime
	)
	err := row.Scan(&id, &accountID, &tx.Email, &status, &tx.ClientIP, &tx.CreatedAt, &resolvedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("transaction not found: %w", sentinel.ErrNotFound)
		}
		return nil, postgres.WrapErr("select transaction", err)
	}
	parsedAccount, err := domain.ParseAccountID(accountID)
	if err != nil {
		return nil, fmt.Errorf("decode account id: %w", err)
	}
	tx.ID = domain.TransactionID(id)
	tx.AccountID = parsedAccount
	tx.Status = domain.Status(status)
	if resolvedAt.Valid {
		at := resolvedAt.Time.In(time.UTC)
		tx.ResolvedAt = &at
	}
	return &tx, nil
}
