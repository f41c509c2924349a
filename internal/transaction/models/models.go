package models

import (
	"time"

	"pushgate/pkg/domain"
	dErrors "pushgate/pkg/domain-errors"
)

// Transaction is one login confirmation attempt.
type Transaction struct {
	ID         domain.TransactionID `json:"id"`
	AccountID  domain.AccountID     `json:"account_id"`
	Email      string               `json:"email"`
	Status     domain.Status        `json:"status"`
	ClientIP   string               `json:"client_ip,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`
	ResolvedAt *time.Time           `json:"resolved_at,omitempty"`
}

// NewTransaction builds a pending transaction for the given account.
func NewTransaction(id domain.TransactionID, accountID domain.AccountID, email, clientIP string, now time.Time) (*Transaction, error) {
	if id.IsNil() {
		return nil, dErrors.New(dErrors.CodeInternal, "transaction id required")
	}
	if accountID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInternal, "account id required")
	}
	if email == "" {
		return nil, dErrors.New(dErrors.CodeInternal, "subject identity required")
	}
	return &Transaction{
		ID:        id,
		AccountID: accountID,
		Email:     email,
		Status:    domain.StatusPending,
		ClientIP:  clientIP,
		CreatedAt: now,
	}, nil
}

func (t *Transaction) IsPending() bool { return t.Status == domain.StatusPending }

// CanResolve reports whether status may be applied. A pending transaction
// accepts either terminal status; a resolved one only accepts a repeat of its
// own status.
func (t *Transaction) CanResolve(status domain.Status) error {
	if !status.IsTerminal() {
		return dErrors.New(dErrors.CodeValidation, "status must be approved or denied")
	}
	if t.IsPending() || t.Status == status {
		return nil
	}
	return dErrors.New(dErrors.CodeAlreadyResolved, "transaction already "+t.Status.String())
}

// ApplyResolution moves a pending transaction to status. Repeats are no-ops so
// the first resolution time is kept.
func (t *Transaction) ApplyResolution(status domain.Status, now time.Time) {
	if !t.IsPending() {
		return
	}
	t.Status = status
	t.ResolvedAt = &now
}
