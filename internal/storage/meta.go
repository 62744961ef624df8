package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ItachiCrypto/appforge-sub001/internal/models"
)

// MetaStore tracks projects and legacy apps with their owners and quotas.
type MetaStore struct {
	db *DB
}

// NewMetaStore wraps db.
func NewMetaStore(db *DB) *MetaStore {
	return &MetaStore{db: db}
}

// CreateProject registers a new, empty project. A zero quota means the server default.
func (m *MetaStore) CreateProject(ctx context.Context, ownerID, name string, quota int64) (*models.Project, error) {
	if ownerID == "" {
		return nil, models.InvalidArgument("owner id is required")
	}
	if quota < 0 {
		return nil, models.InvalidArgument("quota must be non-negative")
	}
	p := &models.Project{
		ID:         uuid.New().String(),
		OwnerID:    ownerID,
		Name:       name,
		QuotaBytes: quota,
		CreatedAt:  nowMs(),
	}
	_, err := m.db.conn.ExecContext(ctx,
		`INSERT INTO projects (id, owner_id, name, quota_bytes, created_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.OwnerID, p.Name, p.QuotaBytes, p.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert project: %w", err)
	}
	return p, nil
}

// GetProject looks up a project by id.
func (m *MetaStore) GetProject(ctx context.Context, id string) (*models.Project, error) {
	var p models.Project
	err := m.db.conn.QueryRowContext(ctx,
		`SELECT id, owner_id, name, quota_bytes, created_at FROM projects WHERE id = ?`, id,
	).Scan(&p.ID, &p.OwnerID, &p.Name, &p.QuotaBytes, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ProjectNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("scan project: %w", err)
	}
	return &p, nil
}

// ListProjects returns the projects of an owner ordered by name.
func (m *MetaStore) ListProjects(ctx context.Context, ownerID string) ([]models.Project, error) {
	rows, err := m.db.conn.QueryContext(ctx,
		`SELECT id, owner_id, name, quota_bytes, created_at FROM projects WHERE owner_id = ? ORDER BY name, id`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	projects := []models.Project{}
	for rows.Next() {
		var p models.Project
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.Name, &p.QuotaBytes, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// SetProjectQuota changes the quota of a project.
func (m *MetaStore) SetProjectQuota(ctx context.Context, id string, quota int64) error {
	if quota < 0 {
		return models.InvalidArgument("quota must be non-negative")
	}
	res, err := m.db.conn.ExecContext(ctx, `UPDATE projects SET quota_bytes = ? WHERE id = ?`, quota, id)
	if err != nil {
		return fmt.Errorf("update project quota: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ProjectNotFound(id)
	}
	return nil
}

// DeleteProject removes a project and all of its files.
func (m *MetaStore) DeleteProject(ctx context.Context, id string) error {
	return m.db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE project_id = ?`, id); err != nil {
			return fmt.Errorf("delete project files: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete project record: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return models.ProjectNotFound(id)
		}
		return nil
	})
}

// CreateApp registers a new legacy app with an empty file map.
func (m *MetaStore) CreateApp(ctx context.Context, ownerID, name string, quota int64) (*models.App, error) {
	if ownerID == "" {
		return nil, models.InvalidArgument("owner id is required")
	}
	if quota < 0 {
		return nil, models.InvalidArgument("quota must be non-negative")
	}
	now := nowMs()
	a := &models.App{
		ID:         uuid.New().String(),
		OwnerID:    ownerID,
		Name:       name,
		QuotaBytes: quota,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	_, err := m.db.conn.ExecContext(ctx,
		`INSERT INTO apps (id, owner_id, name, quota_bytes, files, created_at, updated_at) VALUES (?, ?, ?, ?, NULL, ?, ?)`,
		a.ID, a.OwnerID, a.Name, a.QuotaBytes, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert app: %w", err)
	}
	return a, nil
}

// GetApp looks up an app by id, without its files.
func (m *MetaStore) GetApp(ctx context.Context, id string) (*models.App, error) {
	var a models.App
	err := m.db.conn.QueryRowContext(ctx,
		`SELECT id, owner_id, name, quota_bytes, created_at, updated_at FROM apps WHERE id = ?`, id,
	).Scan(&a.ID, &a.OwnerID, &a.Name, &a.QuotaBytes, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.AppNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("scan app: %w", err)
	}
	return &a, nil
}

// SetAppQuota changes the quota of an app.
func (m *MetaStore) SetAppQuota(ctx context.Context, id string, quota int64) error {
	if quota < 0 {
		return models.InvalidArgument("quota must be non-negative")
	}
	res, err := m.db.conn.ExecContext(ctx,
		`UPDATE apps SET quota_bytes = ?, updated_at = ? WHERE id = ?`, quota, nowMs(), id)
	if err != nil {
		return fmt.Errorf("update app quota: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.AppNotFound(id)
	}
	return nil
}

// DeleteApp removes an app and its blob.
func (m *MetaStore) DeleteApp(ctx context.Context, id string) error {
	res, err := m.db.conn.ExecContext(ctx, `DELETE FROM apps WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete app record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.AppNotFound(id)
	}
	return nil
}
