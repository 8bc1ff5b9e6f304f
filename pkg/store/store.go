package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a project record does not exist.
var ErrNotFound = errors.New("project not found")

// Project is a stored project record.
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ComplianceScore is a recorded compliance measurement for a project.
type ComplianceScore struct {
	ProjectID  string    `json:"project_id"`
	Score      float64   `json:"score"`
	RecordedAt time.Time `json:"recorded_at"`
}

// ProjectStore is the narrow interface to the persistence collaborator.
// The core treats it as a network-latency black box: its failures flow
// through the same classification and retry policy as any handler error.
type ProjectStore interface {
	GetProject(ctx context.Context, id string) (*Project, error)
	CreateProject(ctx context.Context, p *Project) error
	UpdateProject(ctx context.Context, p *Project) error
	RecordComplianceScore(ctx context.Context, s *ComplianceScore) error
	ComplianceHistory(ctx context.Context, projectID string, limit int) ([]ComplianceScore, error)
}
