package models

import (
	"strings"
	"time"

	"github.com/asaskevich/govalidator"

	"pushgate/pkg/domain"
	dErrors "pushgate/pkg/domain-errors"
)

const (
	maxEmailLength     = 255
	maxPushTokenLength = 4096
)

// Account is a subject with one enrolled approving device.
type Account struct {
	ID         domain.AccountID
	Email      string
	PushToken  string
	DeviceName string
	EnrolledAt time.Time
	UpdatedAt  time.Time
}

// NormalizeEmail trims and lower-cases an address so lookups are
// case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks a normalized address.
func ValidateEmail(email string) error {
	if email == "" {
		return dErrors.New(dErrors.CodeValidation, "email is required")
	}
	if len(email) > maxEmailLength || !govalidator.IsEmail(email) {
		return dErrors.New(dErrors.CodeValidation, "email is invalid")
	}
	return nil
}

// NewAccount validates input and builds an account ready to persist.
func NewAccount(email, pushToken, deviceName string, now time.Time) (*Account, error) {
	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	pushToken = strings.TrimSpace(pushToken)
	if pushToken == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "pushToken is required")
	}
	if len(pushToken) > maxPushTokenLength {
		return nil, dErrors.New(dErrors.CodeValidation, "pushToken too long")
	}
	return &Account{
		ID:         domain.NewAccountID(),
		Email:      email,
		PushToken:  pushToken,
		DeviceName: deviceName,
		EnrolledAt: now,
		UpdatedAt:  now,
	}, nil
}
