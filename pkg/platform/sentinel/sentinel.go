package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and adapters return these (optionally
// wrapped) so services can translate them into domain errors.
//
//   - ErrNotFound: entity does not exist in the store
//   - ErrConflict: a unique index already holds a different entity
//   - ErrAlreadyUsed: the same key was already written (idempotent replay)
//   - ErrInvalidState: entity in the wrong state for the requested operation
//   - ErrUnavailable: backend or remote peer temporarily unavailable
//   - ErrUnknownDestination: transport has no route for the named peer
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrExpired            = errors.New("expired")
	ErrAlreadyUsed        = errors.New("already used")
	ErrInvalidState       = errors.New("invalid state")
	ErrUnavailable        = errors.New("unavailable")
	ErrUnknownDestination = errors.New("unknown destination")
)
