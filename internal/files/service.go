// Package files is the single entry point for reading and mutating the files of
// a project or legacy app. It picks the storage representation for a Target,
// serializes mutations per target and validates input before storage is touched.
package files

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/ItachiCrypto/appforge-sub001/internal/models"
	"github.com/ItachiCrypto/appforge-sub001/internal/paths"
	"github.com/ItachiCrypto/appforge-sub001/internal/storage"
)

const (
	// DefaultTimeout bounds an operation whose context carries no deadline.
	DefaultTimeout = 30 * time.Second
	// MinQueryLength is the shortest accepted search query.
	MinQueryLength = 2
)

// Resolver opens the backend of a project or app. *storage.Store implements it.
type Resolver interface {
	Project(ctx context.Context, id string) (*storage.ProjectFiles, error)
	App(ctx context.Context, id string) (*storage.AppFiles, error)
	Meta() *storage.MetaStore
	Limits() storage.Limits
}

// Options tunes a Service. Zero values select the defaults.
type Options struct {
	Timeout        time.Duration
	MinQueryLength int
	MaxBulkOps     int
	Logger         *slog.Logger
}

// Service routes file operations to the right backend under a per-target lock.
type Service struct {
	store    Resolver
	locker   Locker
	timeout  time.Duration
	minQuery int
	maxBulk  int
	log      *slog.Logger
}

// NewService returns a Service. A nil locker selects an in-process KeyedMutex.
func NewService(store Resolver, locker Locker, opts Options) *Service {
	if locker == nil {
		locker = NewKeyedMutex()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MinQueryLength <= 0 {
		opts.MinQueryLength = MinQueryLength
	}
	if opts.MaxBulkOps <= 0 {
		opts.MaxBulkOps = MaxBulkOperations
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		store:    store,
		locker:   locker,
		timeout:  opts.Timeout,
		minQuery: opts.MinQueryLength,
		maxBulk:  opts.MaxBulkOps,
		log:      opts.Logger,
	}
}

func (s *Service) backend(ctx context.Context, t Target) (storage.Backend, error) {
	switch t.Kind {
	case KindProject:
		return s.store.Project(ctx, t.ID)
	case KindApp:
		return s.store.App(ctx, t.ID)
	}
	return nil, models.InvalidArgument("unknown target kind %q", t.Kind)
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Service) lock(ctx context.Context, t Target) (func(), error) {
	start := time.Now()
	unlock, err := s.locker.Lock(ctx, t.Key())
	lockWaitSeconds.Observe(time.Since(start).Seconds())
	return unlock, err
}

// run resolves the backend and calls fn. Mutations always hold the target lock;
// reads hold it only for apps, whose blob is rewritten as a whole.
func (s *Service) run(ctx context.Context, t Target, op string, mutates bool, fn func(ctx context.Context, b storage.Backend) error) (err error) {
	defer func() {
		observe(t, op, err)
		if err != nil && !models.IsExpected(err) {
			s.log.Error("file operation failed", "op", op, "target", t, "err", err)
		}
	}()
	if err := t.Validate(); err != nil {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if mutates || t.Kind == KindApp {
		unlock, err := s.lock(ctx, t)
		if err != nil {
			return err
		}
		defer unlock()
	}
	b, err := s.backend(ctx, t)
	if err != nil {
		return err
	}
	return fn(ctx, b)
}

// checkWrite validates a path and the content without touching storage.
func (s *Service) checkWrite(path, content string) (string, error) {
	p, err := paths.Normalize(path)
	if err != nil {
		return "", err
	}
	if err := storage.CheckContent(p, content, s.store.Limits().MaxFileSize); err != nil {
		return "", err
	}
	return p, nil
}

// Create adds a new file. It fails with file_already_exists if the path is taken.
func (s *Service) Create(ctx context.Context, t Target, path, content string) (*models.File, error) {
	path, err := s.checkWrite(path, content)
	if err != nil {
		return nil, err
	}
	var f *models.File
	err = s.run(ctx, t, "create", true, func(ctx context.Context, b storage.Backend) error {
		f, err = b.Create(ctx, path, content)
		return err
	})
	return f, err
}

// Read returns a file with its content.
func (s *Service) Read(ctx context.Context, t Target, path string) (*models.File, error) {
	path, err := paths.Normalize(path)
	if err != nil {
		return nil, err
	}
	var f *models.File
	err = s.run(ctx, t, "read", false, func(ctx context.Context, b storage.Backend) error {
		f, err = b.Read(ctx, path)
		return err
	})
	return f, err
}

// Update replaces the content of an existing file.
func (s *Service) Update(ctx context.Context, t Target, path, content string) (*models.File, error) {
	path, err := s.checkWrite(path, content)
	if err != nil {
		return nil, err
	}
	var f *models.File
	err = s.run(ctx, t, "update", true, func(ctx context.Context, b storage.Backend) error {
		f, err = b.Update(ctx, path, content)
		return err
	})
	return f, err
}

// Write creates the file or replaces its content. created reports which happened.
func (s *Service) Write(ctx context.Context, t Target, path, content string) (f *models.File, created bool, err error) {
	path, err = s.checkWrite(path, content)
	if err != nil {
		return nil, false, err
	}
	err = s.run(ctx, t, "write", true, func(ctx context.Context, b storage.Backend) error {
		f, err = b.Update(ctx, path, content)
		if errors.Is(err, models.ErrFileNotFound) {
			created = true
			f, err = b.Create(ctx, path, content)
		}
		return err
	})
	return f, created, err
}

// Delete removes a file.
func (s *Service) Delete(ctx context.Context, t Target, path string) error {
	path, err := paths.Normalize(path)
	if err != nil {
		return err
	}
	return s.run(ctx, t, "delete", true, func(ctx context.Context, b storage.Backend) error {
		return b.Delete(ctx, path)
	})
}

// Rename moves a file. The destination must not exist.
func (s *Service) Rename(ctx context.Context, t Target, from, to string) (*models.File, error) {
	from, err := paths.Normalize(from)
	if err != nil {
		return nil, err
	}
	to, err = paths.Normalize(to)
	if err != nil {
		return nil, err
	}
	var f *models.File
	err = s.run(ctx, t, "rename", true, func(ctx context.Context, b storage.Backend) error {
		f, err = b.Rename(ctx, from, to)
		return err
	})
	return f, err
}

// List returns file metadata under prefix, ordered by path.
func (s *Service) List(ctx context.Context, t Target, prefix string) ([]models.FileInfo, error) {
	if _, err := paths.NormalizePrefix(prefix); err != nil {
		return nil, err
	}
	var infos []models.FileInfo
	err := s.run(ctx, t, "list", false, func(ctx context.Context, b storage.Backend) (err error) {
		infos, err = b.List(ctx, prefix)
		return err
	})
	return infos, err
}

// Search finds files whose content matches q. Queries shorter than the minimum
// length are rejected before any storage access.
func (s *Service) Search(ctx context.Context, t Target, q storage.SearchQuery) (*models.SearchResponse, error) {
	if len([]rune(strings.TrimSpace(q.Query))) < s.minQuery {
		return nil, models.InvalidArgument("search query must be at least %d characters", s.minQuery)
	}
	var resp *models.SearchResponse
	err := s.run(ctx, t, "search", false, func(ctx context.Context, b storage.Backend) (err error) {
		resp, err = b.Search(ctx, q)
		return err
	})
	return resp, err
}

// Info summarizes a target's storage.
type Info struct {
	Target    Target          `json:"target"`
	Backend   string          `json:"backend"`
	FileCount int             `json:"file_count"`
	Capacity  models.Capacity `json:"capacity"`
}

// Info reports file count and quota usage of a target.
func (s *Service) Info(ctx context.Context, t Target) (*Info, error) {
	info := &Info{Target: t}
	err := s.run(ctx, t, "info", false, func(ctx context.Context, b storage.Backend) error {
		infos, err := b.List(ctx, "/")
		if err != nil {
			return err
		}
		c, err := b.Capacity(ctx)
		if err != nil {
			return err
		}
		info.Backend = b.Kind()
		info.FileCount = len(infos)
		info.Capacity = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// SetQuota changes the storage quota of a target. A zero quota selects the
// configured default. Lowering the quota below current usage blocks further
// growth but keeps existing files.
func (s *Service) SetQuota(ctx context.Context, t Target, quota int64) error {
	return s.run(ctx, t, "set_quota", true, func(ctx context.Context, _ storage.Backend) error {
		if t.Kind == KindApp {
			return s.store.Meta().SetAppQuota(ctx, t.ID, quota)
		}
		return s.store.Meta().SetProjectQuota(ctx, t.ID, quota)
	})
}

// DeleteTarget removes a project or app together with all of its files. It
// waits for in-flight mutations of the target to finish.
func (s *Service) DeleteTarget(ctx context.Context, t Target) error {
	return s.run(ctx, t, "delete_target", true, func(ctx context.Context, _ storage.Backend) error {
		if t.Kind == KindApp {
			return s.store.Meta().DeleteApp(ctx, t.ID)
		}
		return s.store.Meta().DeleteProject(ctx, t.ID)
	})
}
