package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/klauspost/compress/zstd"

	"github.com/ItachiCrypto/appforge-sub001/internal/models"
	"github.com/ItachiCrypto/appforge-sub001/internal/paths"
)

// Blobs are zstd frames of a JSON object. Older rows hold the bare JSON.
var (
	blobEncoder, _ = zstd.NewWriter(nil)
	blobDecoder, _ = zstd.NewReader(nil)
)

type blobEntry struct {
	Content   string `json:"content"`
	UpdatedAt int64  `json:"updated_at"`
}

type blobFiles map[string]blobEntry

func (m blobFiles) usage() int64 {
	var n int64
	for _, e := range m {
		n += int64(len(e.Content))
	}
	return n
}

func (m blobFiles) file(path string) *models.File {
	e := m[path]
	return &models.File{
		Path:      path,
		Content:   e.Content,
		Size:      int64(len(e.Content)),
		Hash:      contentHash(e.Content),
		UpdatedAt: e.UpdatedAt,
	}
}

func decodeBlob(b []byte) (blobFiles, error) {
	files := blobFiles{}
	if len(b) == 0 {
		return files, nil
	}
	raw := b
	if b[0] != '{' {
		var err error
		if raw, err = blobDecoder.DecodeAll(b, nil); err != nil {
			return nil, fmt.Errorf("decompress app files: %w", err)
		}
	}
	if err := json.Unmarshal(raw, &files); err != nil {
		return nil, fmt.Errorf("decode app files: %w", err)
	}
	return files, nil
}

func encodeBlob(files blobFiles) ([]byte, error) {
	raw, err := json.Marshal(files)
	if err != nil {
		return nil, fmt.Errorf("encode app files: %w", err)
	}
	return blobEncoder.EncodeAll(raw, nil), nil
}

// AppFiles stores the files of a legacy app as one blob. Every mutation reads
// the whole blob and writes it back, so concurrent writers lose updates unless
// the caller serializes them.
type AppFiles struct {
	db          *DB
	appID       string
	quota       int64
	maxFileSize int64

	// afterLoad runs between load and save of a mutation. Tests use it to
	// interleave writers.
	afterLoad func()
}

// Kind reports KindBlob.
func (a *AppFiles) Kind() string { return KindBlob }

func (a *AppFiles) load(ctx context.Context) (blobFiles, error) {
	var b []byte
	err := a.db.conn.QueryRowContext(ctx, `SELECT files FROM apps WHERE id = ?`, a.appID).Scan(&b)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.AppNotFound(a.appID)
	}
	if err != nil {
		return nil, fmt.Errorf("load app files: %w", err)
	}
	return decodeBlob(b)
}

func (a *AppFiles) save(ctx context.Context, files blobFiles) error {
	b, err := encodeBlob(files)
	if err != nil {
		return err
	}
	_, err = a.db.conn.ExecContext(ctx,
		`UPDATE apps SET files = ?, updated_at = ? WHERE id = ?`, b, nowMs(), a.appID)
	if err != nil {
		return fmt.Errorf("save app files: %w", err)
	}
	return nil
}

// mutate loads the blob, applies fn and writes the result back.
func (a *AppFiles) mutate(ctx context.Context, fn func(files blobFiles) error) error {
	files, err := a.load(ctx)
	if err != nil {
		return err
	}
	if a.afterLoad != nil {
		a.afterLoad()
	}
	if err := fn(files); err != nil {
		return err
	}
	return a.save(ctx, files)
}

func (a *AppFiles) checkWrite(path, content string) (string, error) {
	path, err := paths.Normalize(path)
	if err != nil {
		return "", err
	}
	if err := CheckContent(path, content, a.maxFileSize); err != nil {
		return "", err
	}
	return path, nil
}

// Create adds a file that must not exist yet.
func (a *AppFiles) Create(ctx context.Context, path, content string) (*models.File, error) {
	path, err := a.checkWrite(path, content)
	if err != nil {
		return nil, err
	}
	var f *models.File
	err = a.mutate(ctx, func(files blobFiles) error {
		if _, ok := files[path]; ok {
			return models.AlreadyExists(path)
		}
		if _, err := CheckCapacity(files.usage(), a.quota, int64(len(content))); err != nil {
			return err
		}
		files[path] = blobEntry{Content: content, UpdatedAt: nowMs()}
		f = files.file(path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Read returns one file of the app.
func (a *AppFiles) Read(ctx context.Context, path string) (*models.File, error) {
	path, err := paths.Normalize(path)
	if err != nil {
		return nil, err
	}
	files, err := a.load(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := files[path]; !ok {
		return nil, models.AppFileNotFound(a.appID, path)
	}
	return files.file(path), nil
}

// Update replaces the content of an existing file.
func (a *AppFiles) Update(ctx context.Context, path, content string) (*models.File, error) {
	path, err := a.checkWrite(path, content)
	if err != nil {
		return nil, err
	}
	var f *models.File
	err = a.mutate(ctx, func(files blobFiles) error {
		old, ok := files[path]
		if !ok {
			return models.AppFileNotFound(a.appID, path)
		}
		delta := int64(len(content)) - int64(len(old.Content))
		if _, err := CheckCapacity(files.usage(), a.quota, delta); err != nil {
			return err
		}
		files[path] = blobEntry{Content: content, UpdatedAt: nowMs()}
		f = files.file(path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Delete removes a file.
func (a *AppFiles) Delete(ctx context.Context, path string) error {
	path, err := paths.Normalize(path)
	if err != nil {
		return err
	}
	return a.mutate(ctx, func(files blobFiles) error {
		if _, ok := files[path]; !ok {
			return models.AppFileNotFound(a.appID, path)
		}
		delete(files, path)
		return nil
	})
}

// Rename moves a file to a path that must not exist.
func (a *AppFiles) Rename(ctx context.Context, from, to string) (*models.File, error) {
	from, err := paths.Normalize(from)
	if err != nil {
		return nil, err
	}
	to, err = paths.Normalize(to)
	if err != nil {
		return nil, err
	}
	if from == to {
		return a.Read(ctx, from)
	}
	var f *models.File
	err = a.mutate(ctx, func(files blobFiles) error {
		e, ok := files[from]
		if !ok {
			return models.AppFileNotFound(a.appID, from)
		}
		if _, ok := files[to]; ok {
			return models.AlreadyExists(to)
		}
		delete(files, from)
		e.UpdatedAt = nowMs()
		files[to] = e
		f = files.file(to)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// List returns the metadata of every file under prefix, ordered by path.
func (a *AppFiles) List(ctx context.Context, prefix string) ([]models.FileInfo, error) {
	prefix, err := paths.NormalizePrefix(prefix)
	if err != nil {
		return nil, err
	}
	files, err := a.load(ctx)
	if err != nil {
		return nil, err
	}
	infos := []models.FileInfo{}
	for _, path := range sortedPaths(files) {
		if underPrefix(path, prefix) {
			infos = append(infos, files.file(path).Info())
		}
	}
	return infos, nil
}

// Search scans every file of the app in path order.
func (a *AppFiles) Search(ctx context.Context, q SearchQuery) (*models.SearchResponse, error) {
	s, err := newSearcher(q)
	if err != nil {
		return nil, err
	}
	files, err := a.load(ctx)
	if err != nil {
		return nil, err
	}
	for _, path := range sortedPaths(files) {
		if !s.add(path, files[path].Content) {
			break
		}
	}
	return s.response(), nil
}

// Capacity reports current usage against the app quota.
func (a *AppFiles) Capacity(ctx context.Context) (models.Capacity, error) {
	files, err := a.load(ctx)
	if err != nil {
		return models.Capacity{}, err
	}
	return CheckCapacity(files.usage(), a.quota, 0)
}

func sortedPaths(files blobFiles) []string {
	out := make([]string, 0, len(files))
	for p := range files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
