package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ItachiCrypto/appforge-sub001/internal/models"
	"github.com/ItachiCrypto/appforge-sub001/internal/paths"
)

// ProjectFiles stores the files of one project as rows of the files table.
type ProjectFiles struct {
	db          *DB
	projectID   string
	quota       int64
	maxFileSize int64
}

// Kind reports KindRecords.
func (p *ProjectFiles) Kind() string { return KindRecords }

// Create inserts a new file. The path must not exist yet.
func (p *ProjectFiles) Create(ctx context.Context, path, content string) (*models.File, error) {
	path, err := p.checkWrite(path, content)
	if err != nil {
		return nil, err
	}
	f := newFile(path, content)

	err = p.db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := p.sizeOf(ctx, tx, path); err == nil {
			return models.AlreadyExists(path)
		} else if !errors.Is(err, models.ErrFileNotFound) {
			return err
		}
		if err := p.checkQuota(ctx, tx, f.Size); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO files (project_id, path, content, size, hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			p.projectID, f.Path, f.Content, f.Size, f.Hash, f.UpdatedAt, f.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert file %s: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Read returns a file with its content.
func (p *ProjectFiles) Read(ctx context.Context, path string) (*models.File, error) {
	path, err := paths.Normalize(path)
	if err != nil {
		return nil, err
	}
	var f models.File
	err = p.db.conn.QueryRowContext(ctx,
		`SELECT path, content, size, hash, updated_at FROM files WHERE project_id = ? AND path = ?`,
		p.projectID, path,
	).Scan(&f.Path, &f.Content, &f.Size, &f.Hash, &f.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.FileNotFound(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read file %s: %w", path, err)
	}
	return &f, nil
}

// Update replaces the content of an existing file.
func (p *ProjectFiles) Update(ctx context.Context, path, content string) (*models.File, error) {
	path, err := p.checkWrite(path, content)
	if err != nil {
		return nil, err
	}
	f := newFile(path, content)

	err = p.db.withTx(ctx, func(tx *sql.Tx) error {
		old, err := p.sizeOf(ctx, tx, path)
		if err != nil {
			return err
		}
		if err := p.checkQuota(ctx, tx, f.Size-old); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE files SET content = ?, size = ?, hash = ?, updated_at = ? WHERE project_id = ? AND path = ?`,
			f.Content, f.Size, f.Hash, f.UpdatedAt, p.projectID, path,
		)
		if err != nil {
			return fmt.Errorf("update file %s: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Delete removes a file.
func (p *ProjectFiles) Delete(ctx context.Context, path string) error {
	path, err := paths.Normalize(path)
	if err != nil {
		return err
	}
	res, err := p.db.conn.ExecContext(ctx,
		`DELETE FROM files WHERE project_id = ? AND path = ?`, p.projectID, path)
	if err != nil {
		return fmt.Errorf("delete file %s: %w", path, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.FileNotFound(path)
	}
	return nil
}

// Rename moves a file to a path that must not exist. Renaming a file onto
// itself returns it unchanged.
func (p *ProjectFiles) Rename(ctx context.Context, from, to string) (*models.File, error) {
	from, err := paths.Normalize(from)
	if err != nil {
		return nil, err
	}
	to, err = paths.Normalize(to)
	if err != nil {
		return nil, err
	}
	if from == to {
		return p.Read(ctx, from)
	}

	now := nowMs()
	err = p.db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := p.sizeOf(ctx, tx, from); err != nil {
			return err
		}
		if _, err := p.sizeOf(ctx, tx, to); err == nil {
			return models.AlreadyExists(to)
		} else if !errors.Is(err, models.ErrFileNotFound) {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE files SET path = ?, updated_at = ? WHERE project_id = ? AND path = ?`,
			to, now, p.projectID, from,
		)
		if err != nil {
			return fmt.Errorf("rename %s to %s: %w", from, to, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p.Read(ctx, to)
}

// List returns the metadata of every file under prefix, ordered by path.
func (p *ProjectFiles) List(ctx context.Context, prefix string) ([]models.FileInfo, error) {
	prefix, err := paths.NormalizePrefix(prefix)
	if err != nil {
		return nil, err
	}
	exact, lo, hi := prefixBounds(prefix)
	rows, err := p.db.conn.QueryContext(ctx,
		`SELECT path, size, hash, updated_at FROM files
		 WHERE project_id = ? AND (path = ? OR (path >= ? AND path < ?))
		 ORDER BY path`,
		p.projectID, exact, lo, hi,
	)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	infos := []models.FileInfo{}
	for rows.Next() {
		var fi models.FileInfo
		if err := rows.Scan(&fi.Path, &fi.Size, &fi.Hash, &fi.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		infos = append(infos, fi)
	}
	return infos, rows.Err()
}

// Search scans file contents. Literal ASCII queries are narrowed in SQL first.
func (p *ProjectFiles) Search(ctx context.Context, q SearchQuery) (*models.SearchResponse, error) {
	s, err := newSearcher(q)
	if err != nil {
		return nil, err
	}
	query := `SELECT path, content FROM files WHERE project_id = ?`
	args := []any{p.projectID}
	if needle, fold := s.prefilter(); needle != "" {
		if fold {
			query += ` AND INSTR(LOWER(content), ?) > 0`
		} else {
			query += ` AND INSTR(content, ?) > 0`
		}
		args = append(args, needle)
	}
	query += ` ORDER BY path`

	rows, err := p.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search files: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var path, content string
		if err := rows.Scan(&path, &content); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		if !s.add(path, content) {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search files: %w", err)
	}
	return s.response(), nil
}

// Capacity reports current usage against the project quota.
func (p *ProjectFiles) Capacity(ctx context.Context) (models.Capacity, error) {
	usage, err := p.usage(ctx, p.db.conn)
	if err != nil {
		return models.Capacity{}, err
	}
	return CheckCapacity(usage, p.quota, 0)
}

func (p *ProjectFiles) checkWrite(path, content string) (string, error) {
	path, err := paths.Normalize(path)
	if err != nil {
		return "", err
	}
	if err := CheckContent(path, content, p.maxFileSize); err != nil {
		return "", err
	}
	return path, nil
}

func (p *ProjectFiles) checkQuota(ctx context.Context, q queryer, delta int64) error {
	usage, err := p.usage(ctx, q)
	if err != nil {
		return err
	}
	_, err = CheckCapacity(usage, p.quota, delta)
	return err
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (p *ProjectFiles) usage(ctx context.Context, q queryer) (int64, error) {
	var usage int64
	err := q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(size), 0) FROM files WHERE project_id = ?`, p.projectID,
	).Scan(&usage)
	if err != nil {
		return 0, fmt.Errorf("sum file sizes: %w", err)
	}
	return usage, nil
}

func (p *ProjectFiles) sizeOf(ctx context.Context, q queryer, path string) (int64, error) {
	var size int64
	err := q.QueryRowContext(ctx,
		`SELECT size FROM files WHERE project_id = ? AND path = ?`, p.projectID, path,
	).Scan(&size)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, models.FileNotFound(path)
	}
	if err != nil {
		return 0, fmt.Errorf("stat file %s: %w", path, err)
	}
	return size, nil
}

func newFile(path, content string) *models.File {
	return &models.File{
		Path:      path,
		Content:   content,
		Size:      int64(len(content)),
		Hash:      contentHash(content),
		UpdatedAt: nowMs(),
	}
}
