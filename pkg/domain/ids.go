package domain

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"

	dErrors "pushgate/pkg/domain-errors"
)

// Typed identifiers keep account ids, subscriber session ids and transaction
// tokens from being passed where another kind is expected.
type (
	AccountID uuid.UUID
	SessionID uuid.UUID
)

// TransactionID is the opaque, unguessable token correlating a login attempt
// with its approval and with the subscriber waiting on it.
type TransactionID string

const (
	transactionIDBytes     = 32
	maxTransactionIDLength = 128
)

func NewAccountID() AccountID { return AccountID(uuid.New()) }
func NewSessionID() SessionID { return SessionID(uuid.New()) }

func (id AccountID) String() string { return uuid.UUID(id).String() }
func (id AccountID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id SessionID) String() string { return uuid.UUID(id).String() }
func (id SessionID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id AccountID) MarshalText() ([]byte, error) {
	return uuid.UUID(id).MarshalText()
}

func (id *AccountID) UnmarshalText(b []byte) error {
	var u uuid.UUID
	if err := u.UnmarshalText(b); err != nil {
		return err
	}
	*id = AccountID(u)
	return nil
}

// ParseAccountID parses a non-nil UUID.
func ParseAccountID(s string) (AccountID, error) {
	u, err := parseUUID(s)
	return AccountID(u), err
}

// ParseSessionID parses a non-nil UUID.
func ParseSessionID(s string) (SessionID, error) {
	u, err := parseUUID(s)
	return SessionID(u), err
}

func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, "id is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid id format")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, "id must not be nil")
	}
	return u, nil
}

// NewTransactionID returns 32 random bytes encoded as unpadded base64url.
func NewTransactionID() (TransactionID, error) {
	var raw [transactionIDBytes]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("generate transaction id: %w", err)
	}
	return TransactionID(base64.RawURLEncoding.EncodeToString(raw[:])), nil
}

// ParseTransactionID accepts 1 to 128 characters of the base64url alphabet.
// Generated ids are always 43 characters; shorter ids are accepted so stores
// seeded by other tooling stay addressable.
func ParseTransactionID(s string) (TransactionID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeValidation, "transactionId is required")
	}
	if len(s) > maxTransactionIDLength {
		return "", dErrors.New(dErrors.CodeValidation, "transactionId too long")
	}
	for i := 0; i < len(s); i++ {
		if !isTokenChar(s[i]) {
			return "", dErrors.New(dErrors.CodeValidation, "transactionId contains invalid characters")
		}
	}
	return TransactionID(s), nil
}

func isTokenChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-' || c == '_'
}

func (id TransactionID) String() string { return string(id) }
func (id TransactionID) IsNil() bool    { return id == "" }
