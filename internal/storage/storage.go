package storage

import (
	"context"
	"strings"

	"github.com/ItachiCrypto/appforge-sub001/internal/models"
)

// Backend kinds reported by Backend.Kind.
const (
	KindRecords = "records"
	KindBlob    = "blob"
)

// Backend is the file store of one project or app. Paths are validated and
// normalized by every implementation.
type Backend interface {
	Create(ctx context.Context, path, content string) (*models.File, error)
	Read(ctx context.Context, path string) (*models.File, error)
	Update(ctx context.Context, path, content string) (*models.File, error)
	Delete(ctx context.Context, path string) error
	Rename(ctx context.Context, from, to string) (*models.File, error)
	List(ctx context.Context, prefix string) ([]models.FileInfo, error)
	Search(ctx context.Context, q SearchQuery) (*models.SearchResponse, error)
	Capacity(ctx context.Context) (models.Capacity, error)
	Kind() string
}

// Store resolves projects and apps to their backends.
type Store struct {
	db     *DB
	meta   *MetaStore
	limits Limits
}

// NewStore returns a Store over db. Zero limits fall back to DefaultLimits.
func NewStore(db *DB, limits Limits) *Store {
	def := DefaultLimits()
	if limits.MaxFileSize <= 0 {
		limits.MaxFileSize = def.MaxFileSize
	}
	if limits.DefaultQuota <= 0 {
		limits.DefaultQuota = def.DefaultQuota
	}
	return &Store{db: db, meta: NewMetaStore(db), limits: limits}
}

// Meta returns the project and app registry.
func (s *Store) Meta() *MetaStore {
	return s.meta
}

// Limits returns the effective limits.
func (s *Store) Limits() Limits {
	return s.limits
}

// Project returns the record backend of a project.
func (s *Store) Project(ctx context.Context, id string) (*ProjectFiles, error) {
	p, err := s.meta.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ProjectFiles{
		db:          s.db,
		projectID:   p.ID,
		quota:       s.limits.quotaFor(p.QuotaBytes),
		maxFileSize: s.limits.MaxFileSize,
	}, nil
}

// App returns the blob backend of a legacy app.
func (s *Store) App(ctx context.Context, id string) (*AppFiles, error) {
	a, err := s.meta.GetApp(ctx, id)
	if err != nil {
		return nil, err
	}
	return &AppFiles{
		db:          s.db,
		appID:       a.ID,
		quota:       s.limits.quotaFor(a.QuotaBytes),
		maxFileSize: s.limits.MaxFileSize,
	}, nil
}

// prefixBounds turns a normalized listing prefix into an exact path and the
// half-open range [lo, hi) of paths below it. "/src" selects "/src" itself and
// everything under "/src/", never "/src-old".
func prefixBounds(prefix string) (exact, lo, hi string) {
	dir := prefix
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	return prefix, dir, dir[:len(dir)-1] + "0"
}

func underPrefix(path, prefix string) bool {
	exact, lo, _ := prefixBounds(prefix)
	return path == exact || strings.HasPrefix(path, lo)
}
