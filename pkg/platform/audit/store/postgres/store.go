package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"pushgate/pkg/domain"
	audit "pushgate/pkg/platform/audit"
)

// Store appends audit events to the audit_events table.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	var accountID sql.NullString
	if !event.AccountID.IsNil() {
		accountID = sql.NullString{String: event.AccountID.String(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (
			id, category, occurred_at, account_id, transaction_id, email,
			action, decision, reason, client_ip, request_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		uuid.New(),
		string(event.Category),
		event.Timestamp,
		accountID,
		event.TransactionID.String(),
		event.Email,
		event.Action,
		event.Decision,
		event.Reason,
		event.ClientIP,
		event.RequestID,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *Store) ListByAccount(ctx context.Context, accountID domain.AccountID) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category, occurred_at, transaction_id, email, action, decision, reason, client_ip, request_id
		FROM audit_events
		WHERE account_id = $1
		ORDER BY occurred_at ASC, seq ASC`, accountID.String())
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			e             audit.Event
			category      string
			transactionID string
		)
		if err := rows.Scan(&category, &e.Timestamp, &transactionID, &e.Email, &e.Action, &e.Decision, &e.Reason, &e.ClientIP, &e.RequestID); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Category = audit.EventCategory(category)
		e.TransactionID = domain.TransactionID(transactionID)
		e.AccountID = accountID
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
