package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/claude/repflow/internal/models"
)

// GetRoutine returns a routine with its ordered exercise slots.
func (s *SQLite) GetRoutine(ctx context.Context, id uuid.UUID) (*models.Routine, error) {
	var r models.Routine
	var routineID string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM routines WHERE id = ?`, id.String()).
		Scan(&routineID, &r.Name, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting routine: %w", err)
	}
	if r.ID, err = uuid.Parse(routineID); err != nil {
		return nil, fmt.Errorf("parsing routine id: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT e.id, e.name, e.equipment, re.position, re.planned_sets, re.default_rest_sec
		 FROM routine_exercises re
		 JOIN exercises e ON e.id = re.exercise_id
		 WHERE re.routine_id = ?
		 ORDER BY re.position`,
		id.String())
	if err != nil {
		return nil, fmt.Errorf("listing routine exercises: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var slot models.RoutineExercise
		var exerciseID string
		if err := rows.Scan(&exerciseID, &slot.Exercise.Name, &slot.Exercise.Equipment,
			&slot.Position, &slot.PlannedSets, &slot.DefaultRestSec); err != nil {
			return nil, fmt.Errorf("scanning routine exercise: %w", err)
		}
		if slot.Exercise.ID, err = uuid.Parse(exerciseID); err != nil {
			return nil, fmt.Errorf("parsing exercise id: %w", err)
		}
		r.Exercises = append(r.Exercises, slot)
	}
	return &r, rows.Err()
}

// ListRoutines returns all routine headers ordered by name.
func (s *SQLite) ListRoutines(ctx context.Context) ([]models.Routine, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, created_at FROM routines ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing routines: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []models.Routine
	for rows.Next() {
		var r models.Routine
		var id string
		if err := rows.Scan(&id, &r.Name, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning routine: %w", err)
		}
		if r.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parsing routine id: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// LastCompletedSets returns the exercise's completed sets from the most
// recent finished session of the routine, ordered by set number.
func (s *SQLite) LastCompletedSets(ctx context.Context, exerciseID, routineID uuid.UUID) ([]models.Set, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT st.id, st.set_number, st.reps, st.weight_kg, st.rest_sec,
		        st.intensity, st.intensity_explicit, st.completed, st.notes
		 FROM sets st
		 JOIN session_exercises se ON se.id = st.session_exercise_id
		 WHERE se.exercise_id = ?
		   AND st.completed = 1
		   AND se.session_id = (
		     SELECT s2.id FROM sessions s2
		     JOIN session_exercises se2 ON se2.session_id = s2.id
		     WHERE se2.exercise_id = ? AND s2.routine_id = ? AND s2.completed_at IS NOT NULL
		     ORDER BY s2.completed_at DESC LIMIT 1)
		 ORDER BY st.set_number`,
		exerciseID.String(), exerciseID.String(), routineID.String())
	if err != nil {
		return nil, fmt.Errorf("querying exercise history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []models.Set
	for rows.Next() {
		set, err := scanSet(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, set)
	}
	return result, rows.Err()
}

// UpsertExercise inserts or updates a catalog exercise, matching by name so
// repeated imports are idempotent. The ID is minted when absent.
func (s *SQLite) UpsertExercise(ctx context.Context, ex *models.Exercise) error {
	if ex.ID == uuid.Nil {
		var existing string
		err := s.db.QueryRowContext(ctx, `SELECT id FROM exercises WHERE name = ?`, ex.Name).Scan(&existing)
		switch {
		case err == sql.ErrNoRows:
			ex.ID = uuid.New()
		case err != nil:
			return fmt.Errorf("looking up exercise %q: %w", ex.Name, err)
		default:
			if ex.ID, err = uuid.Parse(existing); err != nil {
				return fmt.Errorf("parsing exercise id: %w", err)
			}
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO exercises (id, name, equipment) VALUES (?, ?, ?)
		 ON CONFLICT (name) DO UPDATE SET equipment = excluded.equipment`,
		ex.ID.String(), ex.Name, ex.Equipment)
	if err != nil {
		return fmt.Errorf("upserting exercise %q: %w", ex.Name, err)
	}
	return nil
}

// ReplaceRoutine inserts or updates a routine and replaces its exercise
// slots wholesale.
func (s *SQLite) ReplaceRoutine(ctx context.Context, r *models.Routine) error {
	if r.ID == uuid.Nil {
		var existing string
		err := s.db.QueryRowContext(ctx, `SELECT id FROM routines WHERE name = ?`, r.Name).Scan(&existing)
		switch {
		case err == sql.ErrNoRows:
			r.ID = uuid.New()
		case err != nil:
			return fmt.Errorf("looking up routine %q: %w", r.Name, err)
		default:
			if r.ID, err = uuid.Parse(existing); err != nil {
				return fmt.Errorf("parsing routine id: %w", err)
			}
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning routine replace: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO routines (id, name) VALUES (?, ?) ON CONFLICT (name) DO NOTHING`,
		r.ID.String(), r.Name); err != nil {
		return fmt.Errorf("upserting routine %q: %w", r.Name, err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM routine_exercises WHERE routine_id = ?`, r.ID.String()); err != nil {
		return fmt.Errorf("clearing routine %q: %w", r.Name, err)
	}
	for _, slot := range r.Exercises {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO routine_exercises (routine_id, exercise_id, position, planned_sets, default_rest_sec)
			 VALUES (?, ?, ?, ?, ?)`,
			r.ID.String(), slot.Exercise.ID.String(), slot.Position, slot.PlannedSets, slot.DefaultRestSec); err != nil {
			return fmt.Errorf("inserting routine slot %q: %w", slot.Exercise.Name, err)
		}
	}
	return tx.Commit()
}
