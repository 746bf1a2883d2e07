package mcp

import (
	"context"

	"github.com/google/uuid"

	"github.com/claude/repflow/internal/engine"
	"github.com/claude/repflow/internal/models"
)

// DataSource abstracts the session engine and catalog for MCP tools.
// HTTPClient satisfies it by calling the REST API, letting the MCP binary
// run locally (stdio) while the session lives on the server.
type DataSource interface {
	ActiveSession(ctx context.Context) (*engine.Snapshot, error)
	StartSession(ctx context.Context, routineID uuid.UUID) (*engine.Snapshot, error)
	LogSet(ctx context.Context, exercise, set, reps int, weightKg float64, restSec int) (*engine.Snapshot, error)
	SkipRest(ctx context.Context) (*engine.Snapshot, error)
	FinishSession(ctx context.Context) (*engine.Snapshot, error)
	ListRoutines(ctx context.Context) ([]models.Routine, error)
	ExerciseHistory(ctx context.Context, exerciseID, routineID uuid.UUID) ([]models.Set, error)
	ListSessions(ctx context.Context, limit int) ([]models.Session, error)
}
