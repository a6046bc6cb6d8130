// Package store provides session persistence with optimistic concurrency.
package store

import (
	"context"
	"errors"

	"github.com/spigell/excel-interviewer/internal/session"
)

var (
	// ErrNotFound signals an unknown session id.
	ErrNotFound = errors.New("session not found")
	// ErrConflict signals that the session was modified since it was loaded.
	// The interview service surfaces it as a turn-in-progress failure.
	ErrConflict = errors.New("session version conflict")
)

// Store persists sessions. Save applies an optimistic concurrency check on
// the session's version and bumps it on success.
type Store interface {
	Create(ctx context.Context, s *session.Session) error
	Load(ctx context.Context, id string) (*session.Session, error)
	Save(ctx context.Context, s *session.Session) error
	Close() error
}
