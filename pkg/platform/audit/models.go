package audit

import (
	"context"
	"time"

	"pushgate/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
type EventCategory string

const (
	// CategoryCompliance covers account lifecycle changes.
	CategoryCompliance EventCategory = "compliance"
	// CategorySecurity covers login decisions and rejected resolutions.
	CategorySecurity EventCategory = "security"
	// CategoryOperations covers routine activity such as push dispatch.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions.
type Event struct {
	Category      EventCategory
	Timestamp     time.Time
	AccountID     domain.AccountID
	TransactionID domain.TransactionID
	Email         string
	Action        string
	Decision      string
	Reason        string
	ClientIP      string
	RequestID     string
}

type AuditEvent string

const (
	EventAccountEnrolled    AuditEvent = "account_enrolled"
	EventLoginRequested     AuditEvent = "login_requested"
	EventLoginResolved      AuditEvent = "login_resolved"
	EventResolutionRejected AuditEvent = "resolution_rejected"
	EventPushDispatched     AuditEvent = "push_dispatched"
	EventPushFailed         AuditEvent = "push_failed"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventAccountEnrolled:    CategoryCompliance,
	EventLoginRequested:     CategorySecurity,
	EventLoginResolved:      CategorySecurity,
	EventResolutionRejected: CategorySecurity,
	EventPushDispatched:     CategoryOperations,
	EventPushFailed:         CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events append-only.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByAccount(ctx context.Context, accountID domain.AccountID) ([]Event, error)
}
