// internal/types/interfaces.go
package types

import (
	"context"
	"io"
)

// SessionStore holds per-user queues. The contract is what matters; the
// in-memory registry can be swapped for an external keyed store.
type SessionStore interface {
	Ensure(user UserID) Session
	Snapshot(user UserID) (Session, bool)
	SetMode(user UserID, mode Mode) Session
	AppendFile(user UserID, path string) (int, error)
	Clear(user UserID)
}

// StagingStore holds the files backing a session on disk.
type StagingStore interface {
	StagingDir(user UserID) (string, error)
	Save(user UserID, uniqueID, ext string, r io.Reader) (string, error)
	RemoveFile(user UserID, path string) error
	Clear(user UserID) error
}

// OutcomeJournal records the result of every /end attempt.
type OutcomeJournal interface {
	Append(ctx context.Context, outcome *Outcome) error
	Count(ctx context.Context, user UserID) (int64, error)
	Tail(ctx context.Context, user UserID, limit int) ([]*Outcome, error)
}
