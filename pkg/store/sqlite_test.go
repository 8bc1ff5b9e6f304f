package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	db, err := NewDatabase(filepath.Join(t.TempDir(), "relay.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestDatabase_ProjectRoundTrip(t *testing.T) {
	// Given a fresh database
	db := newTestDatabase(t)
	ctx := context.Background()

	// When creating and fetching a project
	p := &Project{ID: "proj-1", Name: "alpha"}
	require.NoError(t, db.CreateProject(ctx, p))

	got, err := db.GetProject(ctx, "proj-1")

	// Then the stored record matches
	require.NoError(t, err)
	assert.Equal(t, "proj-1", got.ID)
	assert.Equal(t, "alpha", got.Name)
	assert.Equal(t, "active", got.Status)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestDatabase_GetProjectNotFound(t *testing.T) {
	db := newTestDatabase(t)

	_, err := db.GetProject(context.Background(), "missing")

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDatabase_UpdateProject(t *testing.T) {
	// Given an existing project
	db := newTestDatabase(t)
	ctx := context.Background()
	require.NoError(t, db.CreateProject(ctx, &Project{ID: "proj-1", Name: "alpha"}))

	// When renaming and archiving it
	err := db.UpdateProject(ctx, &Project{ID: "proj-1", Name: "alpha-archived", Status: "archived"})

	// Then the stored record reflects the change
	require.NoError(t, err)
	got, err := db.GetProject(ctx, "proj-1")
	require.NoError(t, err)
	assert.Equal(t, "alpha-archived", got.Name)
	assert.Equal(t, "archived", got.Status)
}

func TestDatabase_UpdateMissingProject(t *testing.T) {
	db := newTestDatabase(t)

	err := db.UpdateProject(context.Background(), &Project{ID: "missing", Name: "ghost"})

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDatabase_ComplianceHistory(t *testing.T) {
	// Given a project with three recorded scores
	db := newTestDatabase(t)
	ctx := context.Background()
	require.NoError(t, db.CreateProject(ctx, &Project{ID: "proj-1", Name: "alpha"}))

	base := time.Now().Add(-time.Hour)
	for i, score := range []float64{0.5, 0.7, 0.9} {
		require.NoError(t, db.RecordComplianceScore(ctx, &ComplianceScore{
			ProjectID:  "proj-1",
			Score:      score,
			RecordedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	// When reading the history
	scores, err := db.ComplianceHistory(ctx, "proj-1", 2)

	// Then the most recent scores come first, capped by the limit
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.Equal(t, 0.9, scores[0].Score)
	assert.Equal(t, 0.7, scores[1].Score)
}

func TestDatabase_ComplianceHistoryEmpty(t *testing.T) {
	db := newTestDatabase(t)

	scores, err := db.ComplianceHistory(context.Background(), "proj-1", 10)

	require.NoError(t, err)
	assert.Empty(t, scores)
}
