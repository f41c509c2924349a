package domain

import (
	dErrors "pushgate/pkg/domain-errors"
)

// Status is the lifecycle state of a login transaction.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
)

func (s Status) String() string { return string(s) }

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusDenied
}

// ParseResolution parses the status an approving device may submit.
// Only terminal statuses are accepted.
func ParseResolution(s string) (Status, error) {
	switch Status(s) {
	case StatusApproved, StatusDenied:
		return Status(s), nil
	case "":
		return "", dErrors.New(dErrors.CodeValidation, "status is required")
	default:
		return "", dErrors.New(dErrors.CodeValidation, "status must be approved or denied")
	}
}
