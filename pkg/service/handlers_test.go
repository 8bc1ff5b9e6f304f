package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaneisley/relay/pkg/protocol"
	"github.com/shaneisley/relay/pkg/rpcerr"
	"github.com/shaneisley/relay/pkg/store"
)

// fakeStore is an in-memory ProjectStore for handler tests.
type fakeStore struct {
	projects map[string]*store.Project
	scores   map[string][]store.ComplianceScore
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		projects: make(map[string]*store.Project),
		scores:   make(map[string][]store.ComplianceScore),
	}
}

func (f *fakeStore) GetProject(ctx context.Context, id string) (*store.Project, error) {
	p, ok := f.projects[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) CreateProject(ctx context.Context, p *store.Project) error {
	if p.Status == "" {
		p.Status = "active"
	}
	f.projects[p.ID] = p
	return nil
}

func (f *fakeStore) UpdateProject(ctx context.Context, p *store.Project) error {
	if _, ok := f.projects[p.ID]; !ok {
		return store.ErrNotFound
	}
	f.projects[p.ID] = p
	return nil
}

func (f *fakeStore) RecordComplianceScore(ctx context.Context, s *store.ComplianceScore) error {
	f.scores[s.ProjectID] = append(f.scores[s.ProjectID], *s)
	return nil
}

func (f *fakeStore) ComplianceHistory(ctx context.Context, projectID string, limit int) ([]store.ComplianceScore, error) {
	history := f.scores[projectID]
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	return history, nil
}

func newHandlerService(t *testing.T) (*Service, *fakeStore) {
	t.Helper()
	svc := newTestService(t)
	projects := newFakeStore()
	svc.RegisterBuiltinHandlers(projects)
	require.NoError(t, svc.Start())
	return svc, projects
}

func TestBuiltinHandlers_ProjectLifecycle(t *testing.T) {
	// Given the built-in method table
	svc, _ := newHandlerService(t)
	ctx := context.Background()

	// When creating, updating, then fetching a project
	created := svc.Process(ctx, protocol.NewEnvelope("project/create",
		map[string]any{"id": "proj-1", "name": "alpha"}, "2.0.0", protocol.PriorityNormal))
	require.True(t, created.Success)

	updated := svc.Process(ctx, protocol.NewEnvelope("project/update",
		map[string]any{"id": "proj-1", "name": "alpha", "status": "archived"}, "2.0.0", protocol.PriorityNormal))
	require.True(t, updated.Success)

	fetched := svc.Process(ctx, protocol.NewEnvelope("project/get",
		map[string]any{"id": "proj-1"}, "2.0.0", protocol.PriorityNormal))

	// Then the fetched project reflects the update
	require.True(t, fetched.Success)
	project, ok := fetched.Result.(*store.Project)
	require.True(t, ok)
	assert.Equal(t, "archived", project.Status)
}

func TestBuiltinHandlers_MissingProject(t *testing.T) {
	svc, _ := newHandlerService(t)

	resp := svc.Process(context.Background(), protocol.NewEnvelope("project/get",
		map[string]any{"id": "missing"}, "2.0.0", protocol.PriorityNormal))

	require.NotNil(t, resp.Error)
	assert.Equal(t, rpcerr.CodeResourceNotFound, resp.Error.Code)
	assert.Equal(t, rpcerr.CategoryClient, resp.Error.Category)
}

func TestBuiltinHandlers_MissingParams(t *testing.T) {
	svc, _ := newHandlerService(t)

	resp := svc.Process(context.Background(), protocol.NewEnvelope("project/create",
		map[string]any{"name": "nameless"}, "2.0.0", protocol.PriorityNormal))

	require.NotNil(t, resp.Error)
	assert.Equal(t, rpcerr.CodeInvalidParams, resp.Error.Code)
	assert.False(t, resp.Error.Retryable)
}

func TestBuiltinHandlers_ComplianceRoundTrip(t *testing.T) {
	// Given a project with recorded scores
	svc, _ := newHandlerService(t)
	ctx := context.Background()

	for _, score := range []float64{0.4, 0.8} {
		resp := svc.Process(ctx, protocol.NewEnvelope("compliance/record",
			map[string]any{"project_id": "proj-1", "score": score}, "2.0.0", protocol.PriorityNormal))
		require.True(t, resp.Success)
	}

	// When reading the history
	resp := svc.Process(ctx, protocol.NewEnvelope("compliance/history",
		map[string]any{"project_id": "proj-1", "limit": float64(10)}, "2.0.0", protocol.PriorityNormal))

	// Then both scores come back
	require.True(t, resp.Success)
	history, ok := resp.Result.([]store.ComplianceScore)
	require.True(t, ok)
	assert.Len(t, history, 2)
}

func TestBuiltinHandlers_GetCapabilities(t *testing.T) {
	svc, _ := newHandlerService(t)

	resp := svc.Process(context.Background(), protocol.NewEnvelope("getCapabilities",
		nil, "2.0.0", protocol.PriorityNormal))

	require.True(t, resp.Success)
	caps, ok := resp.Result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "2.0.0", caps["current_version"])
	assert.Contains(t, caps["methods"], "project/get")
	assert.Contains(t, caps["methods"], "getMetrics")
}
