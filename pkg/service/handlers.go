package service

import (
	"context"
	"errors"
	"time"

	"github.com/shaneisley/relay/pkg/executor"
	"github.com/shaneisley/relay/pkg/rpcerr"
	"github.com/shaneisley/relay/pkg/store"
)

// RegisterBuiltinHandlers wires the standard method table: the project and
// compliance operations backed by the persistence collaborator, plus the
// side-effect-free introspection methods. Store-backed methods are never
// cacheable; introspection methods are.
func (s *Service) RegisterBuiltinHandlers(projects store.ProjectStore) {
	d := s.dispatcher

	d.RegisterCacheable("getMetrics", executor.HandlerFunc(s.handleGetMetrics), 0)
	d.RegisterCacheable("getCapabilities", executor.HandlerFunc(s.handleGetCapabilities), 0)

	if projects == nil {
		return
	}

	d.Register("project/get", executor.HandlerFunc(func(ctx context.Context, params map[string]any) (any, error) {
		id, err := stringParam(params, "id")
		if err != nil {
			return nil, err
		}
		project, err := projects.GetProject(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return nil, rpcerr.Newf(rpcerr.CodeResourceNotFound, "project %q not found", id)
		}
		if err != nil {
			return nil, err
		}
		return project, nil
	}))

	d.Register("project/create", executor.HandlerFunc(func(ctx context.Context, params map[string]any) (any, error) {
		id, err := stringParam(params, "id")
		if err != nil {
			return nil, err
		}
		name, err := stringParam(params, "name")
		if err != nil {
			return nil, err
		}
		project := &store.Project{ID: id, Name: name}
		if err := projects.CreateProject(ctx, project); err != nil {
			return nil, err
		}
		return project, nil
	}))

	d.Register("project/update", executor.HandlerFunc(func(ctx context.Context, params map[string]any) (any, error) {
		id, err := stringParam(params, "id")
		if err != nil {
			return nil, err
		}
		name, err := stringParam(params, "name")
		if err != nil {
			return nil, err
		}
		project := &store.Project{ID: id, Name: name}
		if status, ok := params["status"].(string); ok {
			project.Status = status
		}
		if err := projects.UpdateProject(ctx, project); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, rpcerr.Newf(rpcerr.CodeResourceNotFound, "project %q not found", id)
			}
			return nil, err
		}
		return project, nil
	}))

	d.Register("compliance/record", executor.HandlerFunc(func(ctx context.Context, params map[string]any) (any, error) {
		id, err := stringParam(params, "project_id")
		if err != nil {
			return nil, err
		}
		score, ok := params["score"].(float64)
		if !ok {
			return nil, rpcerr.Newf(rpcerr.CodeInvalidParams, "missing or non-numeric parameter %q", "score")
		}
		record := &store.ComplianceScore{ProjectID: id, Score: score, RecordedAt: time.Now()}
		if err := projects.RecordComplianceScore(ctx, record); err != nil {
			return nil, err
		}
		return record, nil
	}))

	d.RegisterCacheable("compliance/history", executor.HandlerFunc(func(ctx context.Context, params map[string]any) (any, error) {
		id, err := stringParam(params, "project_id")
		if err != nil {
			return nil, err
		}
		limit := 10
		if raw, ok := params["limit"].(float64); ok {
			limit = int(raw)
		}
		return projects.ComplianceHistory(ctx, id, limit)
	}), 0)
}

// handleGetMetrics returns the per-method counters and cache stats.
func (s *Service) handleGetMetrics(ctx context.Context, params map[string]any) (any, error) {
	return map[string]any{
		"methods":     s.counters.Snapshot(),
		"cache":       s.cache.Stats(),
		"queue_depth": s.queue.Depth(),
	}, nil
}

// handleGetCapabilities returns the supported versions and methods.
func (s *Service) handleGetCapabilities(ctx context.Context, params map[string]any) (any, error) {
	return map[string]any{
		"current_version":    s.versions.Current(),
		"supported_versions": s.versions.Supported(),
		"methods":            s.dispatcher.Methods(),
	}, nil
}

// stringParam extracts a required string parameter.
func stringParam(params map[string]any, key string) (string, error) {
	value, ok := params[key].(string)
	if !ok || value == "" {
		return "", rpcerr.Newf(rpcerr.CodeInvalidParams, "missing required parameter %q", key)
	}
	return value, nil
}
