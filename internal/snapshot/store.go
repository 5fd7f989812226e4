package snapshot

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/HerbHall/netsweep/pkg/models"
)

// Deployment statuses.
const (
	StatusCommitted = "committed"
	StatusUnchanged = "unchanged"
	StatusFailed    = "failed"
)

// Store persists the git deployment history.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store backed by db.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// RecordDeployment inserts d and sets its ID.
func (s *Store) RecordDeployment(ctx context.Context, d *models.GitDeployment) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO git_deployments (commit_hash, devices, pushed, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		d.CommitHash, d.Devices, d.Pushed, d.Status, d.Error, d.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record deployment: %w", err)
	}
	d.ID, _ = res.LastInsertId()
	return nil
}

// ListDeployments returns the most recent deployments, newest first.
func (s *Store) ListDeployments(ctx context.Context, limit int) ([]models.GitDeployment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, commit_hash, devices, pushed, status, error, created_at
		FROM git_deployments ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}
	defer rows.Close()

	out := make([]models.GitDeployment, 0)
	for rows.Next() {
		var d models.GitDeployment
		if err := rows.Scan(&d.ID, &d.CommitHash, &d.Devices, &d.Pushed, &d.Status, &d.Error, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan deployment: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
