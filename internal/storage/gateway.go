// Package storage is the durable-storage boundary of the session engine. The
// Gateway interface is the only write surface the engine uses; Catalog and
// History are the read-only collaborator interfaces for routine templates
// and prior-session data. Two implementations exist: SQLite (local,
// default) and Postgres (self-hosted deployments).
package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/claude/repflow/internal/models"
)

// ErrNotFound is returned by lookups for rows that do not exist.
var ErrNotFound = errors.New("not found")

// Gateway persists session state. Every upsert is idempotent on its natural
// key — sessions by ID, session exercises by (session, exercise), sets by
// (session exercise, set number) — and returns the row's store-assigned
// identifier, minting one on first insert. Re-upserting with a different
// payload updates the one existing row and never creates a duplicate.
type Gateway interface {
	UpsertSessionHeader(ctx context.Context, s *models.Session) (string, error)
	UpsertSessionExercise(ctx context.Context, sessionID string, ex *models.SessionExercise) (string, error)
	UpsertSet(ctx context.Context, sessionExerciseID string, set *models.Set) (string, error)

	// FindIncompleteSession returns the most recently started session with
	// no completion timestamp, or nil when every session is finished.
	// A non-nil routineID restricts the search to sessions started from
	// that routine.
	FindIncompleteSession(ctx context.Context, routineID uuid.UUID) (*models.Session, error)
	ListSessionExercises(ctx context.Context, sessionID string) ([]models.SessionExercise, error)
	ListSets(ctx context.Context, sessionExerciseID string) ([]models.Set, error)
}

// Catalog serves routine templates. The engine reads it at session start and
// during recovery; it never writes.
type Catalog interface {
	GetRoutine(ctx context.Context, id uuid.UUID) (*models.Routine, error)
	ListRoutines(ctx context.Context) ([]models.Routine, error)
}

// History serves completed-session set data, used for carry-forward defaults
// when the user adds a set.
type History interface {
	// LastCompletedSets returns the completed sets the exercise had in the
	// most recent finished session of the given routine, ordered by set
	// number. Empty when the exercise has no history.
	LastCompletedSets(ctx context.Context, exerciseID, routineID uuid.UUID) ([]models.Set, error)
}

// Store is the full surface a database-backed implementation provides: the
// engine-facing interfaces plus the read API for completed sessions and the
// import path for the catalog.
type Store interface {
	Gateway
	Catalog
	History

	ListSessions(ctx context.Context, limit int) ([]models.Session, error)
	GetSession(ctx context.Context, id string) (*models.Session, error)

	UpsertExercise(ctx context.Context, ex *models.Exercise) error
	ReplaceRoutine(ctx context.Context, r *models.Routine) error

	Close() error
}
