package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into domain errors.
//
//   - ErrNotFound: entity does not exist in store
//   - ErrConflict: optimistic version check failed on write
//   - ErrAlreadyExists: insert collided with an existing key
//   - ErrExpired: token or code has expired
//   - ErrAlreadyUsed: single-use value (refresh token) already consumed
//   - ErrUnavailable: backing service temporarily unavailable
var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrExpired       = errors.New("expired")
	ErrAlreadyUsed   = errors.New("already used")
	ErrUnavailable   = errors.New("unavailable")
)
