package service

import (
	"errors"

	"chargehub/internal/repository"
)

// Control failure modes surfaced to API callers. ErrPortNotFound aliases the
// repository sentinel so both layers report the same value.
var (
	ErrPortNotFound    = repository.ErrPortNotFound
	ErrPortOccupied    = errors.New("port occupied by another user")
	ErrNotSessionOwner = errors.New("session owned by another user")

	// ErrClosed rejects control requests that arrive after shutdown began.
	ErrClosed = errors.New("coordinator closed")
)
