package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/claude/repflow/internal/models"
)

// UpsertSessionHeader writes the session row, minting an ID on first
// persist.
func (p *Postgres) UpsertSessionHeader(ctx context.Context, sess *models.Session) (string, error) {
	id := sess.ID
	if id == "" {
		id = newULID()
	}

	_, err := p.pool.Exec(ctx,
		`INSERT INTO sessions (id, routine_id, started_at, completed_at, elapsed_sec, notes)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET
		   completed_at = excluded.completed_at,
		   elapsed_sec  = excluded.elapsed_sec,
		   notes        = excluded.notes`,
		id, sess.RoutineID.String(), sess.StartedAt, sess.CompletedAt, sess.ElapsedSec, sess.Notes)
	if err != nil {
		return "", fmt.Errorf("upserting session header: %w", err)
	}
	return id, nil
}

// UpsertSessionExercise writes one exercise occurrence keyed on
// (session_id, exercise_id).
func (p *Postgres) UpsertSessionExercise(ctx context.Context, sessionID string, ex *models.SessionExercise) (string, error) {
	id := ex.ID
	if id == "" {
		id = newULID()
	}

	var assigned string
	err := p.pool.QueryRow(ctx,
		`INSERT INTO session_exercises (id, session_id, exercise_id, position, planned_sets, notes)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (session_id, exercise_id) DO UPDATE SET
		   position     = excluded.position,
		   planned_sets = excluded.planned_sets,
		   notes        = excluded.notes
		 RETURNING id`,
		id, sessionID, ex.ExerciseID.String(), ex.Position, ex.PlannedSets, ex.Notes).Scan(&assigned)
	if err != nil {
		return "", fmt.Errorf("upserting session exercise: %w", err)
	}
	return assigned, nil
}

// UpsertSet writes one set keyed on (session_exercise_id, set_number).
func (p *Postgres) UpsertSet(ctx context.Context, sessionExerciseID string, set *models.Set) (string, error) {
	id := set.ID
	if id == "" {
		id = newULID()
	}

	var assigned string
	err := p.pool.QueryRow(ctx,
		`INSERT INTO sets (id, session_exercise_id, set_number, reps, weight_kg, rest_sec,
		                   intensity, intensity_explicit, completed, notes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (session_exercise_id, set_number) DO UPDATE SET
		   reps               = excluded.reps,
		   weight_kg          = excluded.weight_kg,
		   rest_sec           = excluded.rest_sec,
		   intensity          = excluded.intensity,
		   intensity_explicit = excluded.intensity_explicit,
		   completed          = excluded.completed,
		   notes              = excluded.notes
		 RETURNING id`,
		id, sessionExerciseID, set.SetNumber, set.Reps, set.WeightKg, set.RestSec,
		string(set.Intensity), set.IntensityExplicit, set.Completed, set.Notes).Scan(&assigned)
	if err != nil {
		return "", fmt.Errorf("upserting set: %w", err)
	}
	return assigned, nil
}

// FindIncompleteSession returns the most recently started unfinished session
// header, or nil when there is nothing to recover.
func (p *Postgres) FindIncompleteSession(ctx context.Context, routineID uuid.UUID) (*models.Session, error) {
	query := `SELECT id, routine_id, started_at, completed_at, elapsed_sec, notes
	          FROM sessions WHERE completed_at IS NULL`
	args := []any{}
	if routineID != uuid.Nil {
		query += ` AND routine_id = $1`
		args = append(args, routineID.String())
	}
	query += ` ORDER BY started_at DESC LIMIT 1`

	sess, err := scanSession(p.pool.QueryRow(ctx, query, args...))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding incomplete session: %w", err)
	}
	return sess, nil
}

// ListSessionExercises returns the persisted exercise rows for a session in
// template order.
func (p *Postgres) ListSessionExercises(ctx context.Context, sessionID string) ([]models.SessionExercise, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, exercise_id, position, planned_sets, notes
		 FROM session_exercises WHERE session_id = $1 ORDER BY position`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing session exercises: %w", err)
	}
	defer rows.Close()

	var result []models.SessionExercise
	for rows.Next() {
		var ex models.SessionExercise
		var exerciseID string
		if err := rows.Scan(&ex.ID, &exerciseID, &ex.Position, &ex.PlannedSets, &ex.Notes); err != nil {
			return nil, fmt.Errorf("scanning session exercise: %w", err)
		}
		if ex.ExerciseID, err = uuid.Parse(exerciseID); err != nil {
			return nil, fmt.Errorf("parsing exercise id: %w", err)
		}
		result = append(result, ex)
	}
	return result, rows.Err()
}

// ListSets returns the persisted sets of one exercise occurrence ordered by
// set number.
func (p *Postgres) ListSets(ctx context.Context, sessionExerciseID string) ([]models.Set, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, set_number, reps, weight_kg, rest_sec, intensity, intensity_explicit, completed, notes
		 FROM sets WHERE session_exercise_id = $1 ORDER BY set_number`,
		sessionExerciseID)
	if err != nil {
		return nil, fmt.Errorf("listing sets: %w", err)
	}
	defer rows.Close()

	var result []models.Set
	for rows.Next() {
		set, err := scanPgSet(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, set)
	}
	return result, rows.Err()
}

// ListSessions returns completed sessions, most recent first.
func (p *Postgres) ListSessions(ctx context.Context, limit int) ([]models.Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.pool.Query(ctx,
		`SELECT id, routine_id, started_at, completed_at, elapsed_sec, notes
		 FROM sessions WHERE completed_at IS NOT NULL
		 ORDER BY completed_at DESC LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var result []models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *sess)
	}
	return result, rows.Err()
}

// GetSession returns one session with its full exercise and set tree.
func (p *Postgres) GetSession(ctx context.Context, id string) (*models.Session, error) {
	sess, err := scanSession(p.pool.QueryRow(ctx,
		`SELECT id, routine_id, started_at, completed_at, elapsed_sec, notes
		 FROM sessions WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting session: %w", err)
	}

	exercises, err := p.ListSessionExercises(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	for i := range exercises {
		sets, err := p.ListSets(ctx, exercises[i].ID)
		if err != nil {
			return nil, err
		}
		exercises[i].Sets = sets
	}
	sess.Exercises = exercises
	return sess, nil
}

// scanPgSet scans a set row with native booleans (the SQLite scanner decodes
// 0/1 integers instead).
func scanPgSet(row rowScanner) (models.Set, error) {
	var set models.Set
	var intensity string
	if err := row.Scan(&set.ID, &set.SetNumber, &set.Reps, &set.WeightKg, &set.RestSec,
		&intensity, &set.IntensityExplicit, &set.Completed, &set.Notes); err != nil {
		return models.Set{}, fmt.Errorf("scanning set: %w", err)
	}
	set.Intensity = models.Intensity(intensity)
	return set, nil
}
