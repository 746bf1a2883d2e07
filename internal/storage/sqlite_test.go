package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claude/repflow/internal/models"
)

func newTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "repflow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// seedCatalog inserts one routine with two exercises and returns it.
func seedCatalog(t *testing.T, s *SQLite) *models.Routine {
	t.Helper()
	ctx := context.Background()

	bench := &models.Exercise{Name: "Bench Press", Equipment: "barbell"}
	row := &models.Exercise{Name: "Barbell Row", Equipment: "barbell"}
	require.NoError(t, s.UpsertExercise(ctx, bench))
	require.NoError(t, s.UpsertExercise(ctx, row))

	r := &models.Routine{
		Name: "Upper A",
		Exercises: []models.RoutineExercise{
			{Exercise: *bench, Position: 1, PlannedSets: 3, DefaultRestSec: 120},
			{Exercise: *row, Position: 2, PlannedSets: 3, DefaultRestSec: 90},
		},
	}
	require.NoError(t, s.ReplaceRoutine(ctx, r))
	return r
}

func TestOpenSQLiteCreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenSQLite(filepath.Join(dir, "nested", "repflow.db"))
	require.NoError(t, err)
	assert.NoError(t, s.Close())
}

func TestSessionHeaderUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := &models.Session{
		RoutineID: uuid.New(),
		StartedAt: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
	}
	id, err := s.UpsertSessionHeader(ctx, sess)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	// Second upsert with the assigned ID updates in place.
	sess.ID = id
	sess.Notes = "felt strong"
	sess.ElapsedSec = 300
	id2, err := s.UpsertSessionHeader(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, id, id2)

	found, err := s.FindIncompleteSession(ctx, uuid.Nil)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, id, found.ID)
	assert.Equal(t, "felt strong", found.Notes)
	assert.Equal(t, 300, found.ElapsedSec)
	assert.Nil(t, found.CompletedAt)
}

func TestSetUpsertIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := &models.Session{RoutineID: uuid.New(), StartedAt: time.Now().UTC()}
	sid, err := s.UpsertSessionHeader(ctx, sess)
	require.NoError(t, err)

	ex := &models.SessionExercise{ExerciseID: uuid.New(), Position: 1, PlannedSets: 3}
	exID, err := s.UpsertSessionExercise(ctx, sid, ex)
	require.NoError(t, err)

	// Same (session exercise, set number) twice with different payloads:
	// exactly one row, reflecting the second payload.
	set := &models.Set{SetNumber: 1, Reps: 8, WeightKg: 60, RestSec: 120, Completed: true, Intensity: models.IntensityModerate}
	setID, err := s.UpsertSet(ctx, exID, set)
	require.NoError(t, err)

	set2 := &models.Set{SetNumber: 1, Reps: 10, WeightKg: 62.5, RestSec: 90, Completed: true, Intensity: models.IntensityModerate}
	setID2, err := s.UpsertSet(ctx, exID, set2)
	require.NoError(t, err)
	assert.Equal(t, setID, setID2, "conflicting upsert must resolve to the same row")

	sets, err := s.ListSets(ctx, exID)
	require.NoError(t, err)
	require.Len(t, sets, 1)
	assert.Equal(t, 10, sets[0].Reps)
	assert.Equal(t, 62.5, sets[0].WeightKg)
	assert.Equal(t, 90, sets[0].RestSec)
	assert.True(t, sets[0].Completed)
}

func TestSessionExerciseUpsertIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sid, err := s.UpsertSessionHeader(ctx, &models.Session{RoutineID: uuid.New(), StartedAt: time.Now().UTC()})
	require.NoError(t, err)

	exerciseID := uuid.New()
	first, err := s.UpsertSessionExercise(ctx, sid, &models.SessionExercise{ExerciseID: exerciseID, Position: 1, PlannedSets: 3})
	require.NoError(t, err)

	// Re-upsert without the row ID, as a retried save after a crash would.
	second, err := s.UpsertSessionExercise(ctx, sid, &models.SessionExercise{ExerciseID: exerciseID, Position: 1, PlannedSets: 4, Notes: "slow tempo"})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	list, err := s.ListSessionExercises(ctx, sid)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 4, list[0].PlannedSets)
	assert.Equal(t, "slow tempo", list[0].Notes)
}

func TestFindIncompleteSessionFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	routineA := uuid.New()
	routineB := uuid.New()

	// A finished session and an unfinished one.
	done := time.Now().UTC()
	_, err := s.UpsertSessionHeader(ctx, &models.Session{
		RoutineID: routineA, StartedAt: done.Add(-2 * time.Hour), CompletedAt: &done,
	})
	require.NoError(t, err)

	sid, err := s.UpsertSessionHeader(ctx, &models.Session{RoutineID: routineA, StartedAt: done.Add(-time.Hour)})
	require.NoError(t, err)

	found, err := s.FindIncompleteSession(ctx, uuid.Nil)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, sid, found.ID)

	found, err = s.FindIncompleteSession(ctx, routineB)
	require.NoError(t, err)
	assert.Nil(t, found, "filter by a different routine must find nothing")
}

func TestCatalogRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := seedCatalog(t, s)

	got, err := s.GetRoutine(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "Upper A", got.Name)
	require.Len(t, got.Exercises, 2)
	assert.Equal(t, "Bench Press", got.Exercises[0].Exercise.Name)
	assert.Equal(t, 1, got.Exercises[0].Position)
	assert.Equal(t, 120, got.Exercises[0].DefaultRestSec)
	assert.Equal(t, "Barbell Row", got.Exercises[1].Exercise.Name)

	all, err := s.ListRoutines(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	// Re-import replaces slots instead of duplicating them.
	r.Exercises = r.Exercises[:1]
	require.NoError(t, s.ReplaceRoutine(ctx, r))
	got, err = s.GetRoutine(ctx, r.ID)
	require.NoError(t, err)
	assert.Len(t, got.Exercises, 1)

	_, err = s.GetRoutine(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLastCompletedSets(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := seedCatalog(t, s)
	bench := r.Exercises[0].Exercise

	persistSession := func(completedAt time.Time, weight float64) {
		t.Helper()
		sess := &models.Session{RoutineID: r.ID, StartedAt: completedAt.Add(-time.Hour), CompletedAt: &completedAt}
		sid, err := s.UpsertSessionHeader(ctx, sess)
		require.NoError(t, err)
		exID, err := s.UpsertSessionExercise(ctx, sid, &models.SessionExercise{ExerciseID: bench.ID, Position: 1, PlannedSets: 2})
		require.NoError(t, err)
		for n := 1; n <= 2; n++ {
			_, err = s.UpsertSet(ctx, exID, &models.Set{SetNumber: n, Reps: 8, WeightKg: weight, RestSec: 120, Completed: true})
			require.NoError(t, err)
		}
	}

	persistSession(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), 60)
	persistSession(time.Date(2026, 3, 8, 10, 0, 0, 0, time.UTC), 62.5)

	sets, err := s.LastCompletedSets(ctx, bench.ID, r.ID)
	require.NoError(t, err)
	require.Len(t, sets, 2)
	assert.Equal(t, 62.5, sets[0].WeightKg, "must come from the most recent session")
	assert.Equal(t, 1, sets[0].SetNumber)
	assert.Equal(t, 2, sets[1].SetNumber)

	// No history for an unknown exercise.
	sets, err = s.LastCompletedSets(ctx, uuid.New(), r.ID)
	require.NoError(t, err)
	assert.Empty(t, sets)
}

func TestListAndGetSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	completedAt := time.Date(2026, 3, 8, 11, 0, 0, 0, time.UTC)
	sess := &models.Session{RoutineID: uuid.New(), StartedAt: completedAt.Add(-time.Hour), CompletedAt: &completedAt, ElapsedSec: 3600}
	sid, err := s.UpsertSessionHeader(ctx, sess)
	require.NoError(t, err)
	exID, err := s.UpsertSessionExercise(ctx, sid, &models.SessionExercise{ExerciseID: uuid.New(), Position: 1, PlannedSets: 1})
	require.NoError(t, err)
	_, err = s.UpsertSet(ctx, exID, &models.Set{SetNumber: 1, Reps: 5, WeightKg: 100, Completed: true, Intensity: models.IntensityHeavy})
	require.NoError(t, err)

	list, err := s.ListSessions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, sid, list[0].ID)

	full, err := s.GetSession(ctx, sid)
	require.NoError(t, err)
	require.Len(t, full.Exercises, 1)
	require.Len(t, full.Exercises[0].Sets, 1)
	assert.Equal(t, models.IntensityHeavy, full.Exercises[0].Sets[0].Intensity)
	require.NotNil(t, full.CompletedAt)
	assert.True(t, full.CompletedAt.Equal(completedAt))

	_, err = s.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
