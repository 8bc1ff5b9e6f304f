package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Database is the SQLite-backed ProjectStore.
type Database struct {
	db   *sql.DB
	path string
}

// NewDatabase opens (or creates) the SQLite database at dbPath.
func NewDatabase(dbPath string) (*Database, error) {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	database := &Database{
		db:   db,
		path: dbPath,
	}

	if err := database.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return database, nil
}

// initSchema creates the database tables
func (d *Database) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS compliance_scores (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id TEXT NOT NULL,
		score REAL NOT NULL,
		recorded_at INTEGER NOT NULL,
		FOREIGN KEY (project_id) REFERENCES projects(id)
	);

	CREATE INDEX IF NOT EXISTS idx_compliance_project
		ON compliance_scores(project_id, recorded_at);
	`

	_, err := d.db.Exec(schema)
	return err
}

// GetProject fetches a project record by id.
func (d *Database) GetProject(ctx context.Context, id string) (*Project, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT id, name, status, created_at, updated_at FROM projects WHERE id = ?`, id)

	var p Project
	var created, updated int64
	if err := row.Scan(&p.ID, &p.Name, &p.Status, &created, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query project: %w", err)
	}

	p.CreatedAt = time.Unix(created, 0)
	p.UpdatedAt = time.Unix(updated, 0)
	return &p, nil
}

// CreateProject inserts a new project record.
func (d *Database) CreateProject(ctx context.Context, p *Project) error {
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if p.Status == "" {
		p.Status = "active"
	}

	_, err := d.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Status, p.CreatedAt.Unix(), p.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

// UpdateProject updates an existing project record.
func (d *Database) UpdateProject(ctx context.Context, p *Project) error {
	p.UpdatedAt = time.Now()

	res, err := d.db.ExecContext(ctx,
		`UPDATE projects SET name = ?, status = ?, updated_at = ? WHERE id = ?`,
		p.Name, p.Status, p.UpdatedAt.Unix(), p.ID)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordComplianceScore appends a compliance measurement for a project.
func (d *Database) RecordComplianceScore(ctx context.Context, s *ComplianceScore) error {
	if s.RecordedAt.IsZero() {
		s.RecordedAt = time.Now()
	}

	_, err := d.db.ExecContext(ctx,
		`INSERT INTO compliance_scores (project_id, score, recorded_at) VALUES (?, ?, ?)`,
		s.ProjectID, s.Score, s.RecordedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to record compliance score: %w", err)
	}
	return nil
}

// ComplianceHistory returns the most recent scores for a project, newest first.
func (d *Database) ComplianceHistory(ctx context.Context, projectID string, limit int) ([]ComplianceScore, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT project_id, score, recorded_at FROM compliance_scores
		 WHERE project_id = ? ORDER BY recorded_at DESC LIMIT ?`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query compliance history: %w", err)
	}
	defer rows.Close()

	var scores []ComplianceScore
	for rows.Next() {
		var s ComplianceScore
		var recorded int64
		if err := rows.Scan(&s.ProjectID, &s.Score, &recorded); err != nil {
			return nil, fmt.Errorf("failed to scan compliance score: %w", err)
		}
		s.RecordedAt = time.Unix(recorded, 0)
		scores = append(scores, s)
	}

	return scores, rows.Err()
}

// Close closes the underlying database handle.
func (d *Database) Close() error {
	return d.db.Close()
}
