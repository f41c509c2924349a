package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) and services translate them into domain error codes:
//   - ErrNotFound: no account or transaction under the key
//   - ErrConflict: unique key already taken (duplicate enrollment email)
//   - ErrInvalidState: the stored entity rejects the requested transition
//   - ErrUnavailable: backing store or dispatcher temporarily unreachable
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
