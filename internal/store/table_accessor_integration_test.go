//go:build integration

package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inclue/pulse/internal/expr"
	"github.com/inclue/pulse/internal/store"
	"github.com/inclue/pulse/internal/testsupport"
)

// TestTableAccessor_Integration runs the predicate-to-SQL translation against
// a real PostgreSQL instance using the participations table from migrations.
func TestTableAccessor_Integration(t *testing.T) {
	ctx := context.Background()

	pgContainer, err := testsupport.StartPostgresContainer(ctx, "../../migrations")
	require.NoError(t, err, "failed to start postgres container")

	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}()

	_, err = pgContainer.DB.Exec(ctx, `
		INSERT INTO events (id, name, status, facilitator_id, created_by) VALUES
			(10, 'Kickoff Week', 'done', 50, 7),
			(20, 'Follow Up', 'scheduled', 51, 8);
		SELECT setval('events_id_seq', 20);

		INSERT INTO participations (event_id, participant_id, facilitator_id, session_type, is_completed) VALUES
			(10, 100, 50, 'kickoff', true),
			(10, 101, 50, 'kickoff', true),
			(10, 102, 50, 'kickoff', false),
			(20, 100, 51, 'followup', false),
			(20, 101, 51, 'followup', true);
	`)
	require.NoError(t, err)

	accessor := store.NewTableAccessor(pgContainer.DB, "participations",
		[]string{"id", "event_id", "participant_id", "facilitator_id", "session_type", "is_completed"})

	t.Run("Count_EmptyPredicateMatchesAll", func(t *testing.T) {
		n, err := accessor.Count(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 5, n)
	})

	t.Run("Count_EqualityAndComparison", func(t *testing.T) {
		n, err := accessor.Count(ctx, expr.Predicate{
			{Field: "session_type", Op: "=", Value: "kickoff"},
			{Field: "is_completed", Op: "=", Value: true},
		})
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = accessor.Count(ctx, expr.Predicate{
			{Field: "participant_id", Op: ">=", Value: int64(101)},
		})
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("Count_MembershipBindsArray", func(t *testing.T) {
		n, err := accessor.Count(ctx, expr.Predicate{
			{Field: "event_id", Op: "in", Value: []any{int64(10), int64(999)}},
		})
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		n, err = accessor.Count(ctx, expr.Predicate{
			{Field: "session_type", Op: "not in", Value: []any{"kickoff"}},
		})
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("Count_UnknownFieldRejected", func(t *testing.T) {
		_, err := accessor.Count(ctx, expr.Predicate{
			{Field: "password", Op: "=", Value: "x"},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown field")
	})

	t.Run("Fetch_ReturnsAllowListedColumns", func(t *testing.T) {
		records, err := accessor.Fetch(ctx, expr.Predicate{
			{Field: "facilitator_id", Op: "=", Value: int64(51)},
		})
		require.NoError(t, err)
		require.Len(t, records, 2)

		for _, rec := range records {
			assert.Contains(t, rec, "participant_id")
			assert.Contains(t, rec, "is_completed")
			assert.NotContains(t, rec, "created_at")
		}
	})
}
