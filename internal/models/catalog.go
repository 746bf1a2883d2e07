package models

import (
	"time"

	"github.com/google/uuid"
)

// Exercise is a catalog entry. The engine only reads the catalog; it is
// populated out of band (repflow-import).
type Exercise struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Equipment string    `json:"equipment,omitempty"`
}

// RoutineExercise is one slot in a routine: which exercise, where in the
// order, how many sets are planned, and the default rest interval.
type RoutineExercise struct {
	Exercise       Exercise `json:"exercise"`
	Position       int      `json:"position"`
	PlannedSets    int      `json:"planned_sets"`
	DefaultRestSec int      `json:"default_rest_sec"`
}

// Routine is the planned list of exercises a session is started from. It is
// always authoritative for exercise ordering and default set counts.
type Routine struct {
	ID        uuid.UUID         `json:"id"`
	Name      string            `json:"name"`
	Exercises []RoutineExercise `json:"exercises,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}
