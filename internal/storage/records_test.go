package storage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ItachiCrypto/appforge-sub001/internal/models"
)

// setupProjectFiles creates a project with the given quota and returns its backend.
func setupProjectFiles(t *testing.T, quota int64) *ProjectFiles {
	t.Helper()
	ctx := context.Background()
	store := NewStore(setupDB(t), Limits{MaxFileSize: 64})
	proj, err := store.Meta().CreateProject(ctx, "owner", "test", quota)
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	files, err := store.Project(ctx, proj.ID)
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	return files
}

func TestRecordsCreateRead(t *testing.T) {
	ctx := context.Background()
	pf := setupProjectFiles(t, 0)

	created, err := pf.Create(ctx, "//src//main.go", "package main")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.Path != "/src/main.go" {
		t.Errorf("Path = %q, want /src/main.go", created.Path)
	}
	if created.Size != int64(len("package main")) {
		t.Errorf("Size = %d", created.Size)
	}

	got, err := pf.Read(ctx, "/src/main.go")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Content != "package main" {
		t.Errorf("Content = %q", got.Content)
	}
	if got.Hash == "" || got.Hash != created.Hash {
		t.Errorf("Hash = %q, want %q", got.Hash, created.Hash)
	}

	if _, err := pf.Create(ctx, "/src/main.go", "again"); !errors.Is(err, models.ErrAlreadyExists) {
		t.Errorf("duplicate create: err = %v, want file_already_exists", err)
	}
}

func TestRecordsPathCaseSensitive(t *testing.T) {
	ctx := context.Background()
	pf := setupProjectFiles(t, 0)

	if _, err := pf.Create(ctx, "/README.md", "upper"); err != nil {
		t.Fatal(err)
	}
	if _, err := pf.Create(ctx, "/readme.md", "lower"); err != nil {
		t.Fatalf("Expected distinct file for different case: %v", err)
	}
}

func TestRecordsInvalidPath(t *testing.T) {
	ctx := context.Background()
	pf := setupProjectFiles(t, 0)

	for _, p := range []string{"/a/../b", "/a/", "/", "a.txt"} {
		if _, err := pf.Create(ctx, p, "x"); !errors.Is(err, models.ErrInvalidPath) {
			t.Errorf("Create(%q): err = %v, want invalid_path", p, err)
		}
	}
}

func TestRecordsFileSizeLimit(t *testing.T) {
	ctx := context.Background()
	pf := setupProjectFiles(t, 0)

	_, err := pf.Create(ctx, "/big.txt", strings.Repeat("x", 65))
	if !errors.Is(err, models.ErrFileTooLarge) {
		t.Errorf("err = %v, want file_size_exceeded", err)
	}
}

func TestRecordsUpdateMissing(t *testing.T) {
	ctx := context.Background()
	pf := setupProjectFiles(t, 0)

	if _, err := pf.Update(ctx, "/a.txt", "x"); !errors.Is(err, models.ErrFileNotFound) {
		t.Errorf("err = %v, want file_not_found", err)
	}
	pf.Create(ctx, "/a.txt", "x")
	f, err := pf.Update(ctx, "/a.txt", "xyz")
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if f.Content != "xyz" || f.Size != 3 {
		t.Errorf("Update = %+v", f)
	}
}

func TestRecordsDeleteReducesUsage(t *testing.T) {
	ctx := context.Background()
	pf := setupProjectFiles(t, 100)

	pf.Create(ctx, "/a.txt", "0123456789")
	pf.Create(ctx, "/b.txt", "01234")

	before, err := pf.Capacity(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if before.Usage != 15 || before.Quota != 100 || before.PercentUsed != 15 {
		t.Errorf("Capacity = %+v", before)
	}

	if err := pf.Delete(ctx, "/a.txt"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := pf.Read(ctx, "/a.txt"); !errors.Is(err, models.ErrFileNotFound) {
		t.Errorf("read after delete: err = %v", err)
	}
	after, _ := pf.Capacity(ctx)
	if after.Usage != before.Usage-10 {
		t.Errorf("Usage = %d, want %d", after.Usage, before.Usage-10)
	}
	if err := pf.Delete(ctx, "/a.txt"); !errors.Is(err, models.ErrFileNotFound) {
		t.Errorf("second delete: err = %v", err)
	}
}

func TestRecordsQuotaExceeded(t *testing.T) {
	ctx := context.Background()
	pf := setupProjectFiles(t, 20)

	if _, err := pf.Create(ctx, "/a.txt", strings.Repeat("a", 15)); err != nil {
		t.Fatal(err)
	}
	_, err := pf.Create(ctx, "/b.txt", strings.Repeat("b", 10))
	var qe *models.Error
	if !errors.As(err, &qe) || qe.Kind != models.KindQuotaExceeded {
		t.Fatalf("err = %v, want quota_exceeded", err)
	}
	if qe.Details["usage"] != int64(15) || qe.Details["quota"] != int64(20) {
		t.Errorf("Details = %v", qe.Details)
	}

	// A growing update past the quota leaves the old content in place.
	if _, err := pf.Update(ctx, "/a.txt", strings.Repeat("a", 21)); !errors.Is(err, models.ErrQuotaExceeded) {
		t.Errorf("update: err = %v, want quota_exceeded", err)
	}
	got, _ := pf.Read(ctx, "/a.txt")
	if got.Content != strings.Repeat("a", 15) {
		t.Errorf("Content changed after rejected update: %q", got.Content)
	}
	if _, err := pf.Read(ctx, "/b.txt"); !errors.Is(err, models.ErrFileNotFound) {
		t.Errorf("rejected create left a file behind: %v", err)
	}

	// Shrinking is always allowed.
	if _, err := pf.Update(ctx, "/a.txt", "a"); err != nil {
		t.Errorf("shrinking update: %v", err)
	}
}

func TestRecordsRename(t *testing.T) {
	ctx := context.Background()
	pf := setupProjectFiles(t, 0)

	pf.Create(ctx, "/old.txt", "content")
	pf.Create(ctx, "/taken.txt", "other")

	if _, err := pf.Rename(ctx, "/old.txt", "/taken.txt"); !errors.Is(err, models.ErrAlreadyExists) {
		t.Errorf("collision: err = %v, want file_already_exists", err)
	}
	if _, err := pf.Rename(ctx, "/missing.txt", "/x.txt"); !errors.Is(err, models.ErrFileNotFound) {
		t.Errorf("missing source: err = %v, want file_not_found", err)
	}

	f, err := pf.Rename(ctx, "/old.txt", "/dir/new.txt")
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if f.Path != "/dir/new.txt" || f.Content != "content" {
		t.Errorf("Rename = %+v", f)
	}
	if _, err := pf.Read(ctx, "/old.txt"); !errors.Is(err, models.ErrFileNotFound) {
		t.Errorf("old path still readable: %v", err)
	}

	same, err := pf.Rename(ctx, "/dir/new.txt", "/dir//new.txt")
	if err != nil || same.Path != "/dir/new.txt" {
		t.Errorf("rename onto itself = %+v, %v", same, err)
	}
}

func TestRecordsListPrefix(t *testing.T) {
	ctx := context.Background()
	pf := setupProjectFiles(t, 0)

	for _, p := range []string{"/src/b.ts", "/src/a.ts", "/src-old/c.ts", "/src", "/README.md"} {
		if _, err := pf.Create(ctx, p, "x"); err != nil {
			t.Fatalf("Create(%q): %v", p, err)
		}
	}

	tests := []struct {
		prefix string
		want   []string
	}{
		{"", []string{"/README.md", "/src", "/src-old/c.ts", "/src/a.ts", "/src/b.ts"}},
		{"/src", []string{"/src", "/src/a.ts", "/src/b.ts"}},
		{"/src/", []string{"/src/a.ts", "/src/b.ts"}},
		{"src-old", []string{"/src-old/c.ts"}},
		{"/nothing", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			infos, err := pf.List(ctx, tt.prefix)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			got := make([]string, len(infos))
			for i, fi := range infos {
				got[i] = fi.Path
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("List(%q) = %v, want %v", tt.prefix, got, tt.want)
			}
		})
	}
}

func TestRecordsSearch(t *testing.T) {
	ctx := context.Background()
	pf := setupProjectFiles(t, 0)

	pf.Create(ctx, "/src/app.ts", "import x\nconst Todo = 1\nconsole.log(todo)")
	pf.Create(ctx, "/src/util.go", "package util\n// TODO: later")
	pf.Create(ctx, "/docs/notes.md", "nothing here")

	resp, err := pf.Search(ctx, SearchQuery{Query: "todo"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("Results = %d, want 2", len(resp.Results))
	}
	if resp.Results[0].Path != "/src/app.ts" || resp.Results[0].TotalMatches != 2 {
		t.Errorf("Results[0] = %+v", resp.Results[0])
	}
	if resp.Results[0].Matches[0].Line != 2 {
		t.Errorf("first match line = %d, want 2", resp.Results[0].Matches[0].Line)
	}

	resp, _ = pf.Search(ctx, SearchQuery{Query: "TODO", CaseSensitive: true})
	if len(resp.Results) != 1 || resp.Results[0].Path != "/src/util.go" {
		t.Errorf("case-sensitive results = %+v", resp.Results)
	}

	resp, _ = pf.Search(ctx, SearchQuery{Query: "todo", Pattern: "*.go"})
	if len(resp.Results) != 1 || resp.Results[0].Path != "/src/util.go" {
		t.Errorf("pattern results = %+v", resp.Results)
	}

	resp, _ = pf.Search(ctx, SearchQuery{Query: `con(st|sole)`, Regex: true})
	if len(resp.Results) != 1 || resp.Results[0].TotalMatches != 2 {
		t.Errorf("regex results = %+v", resp.Results)
	}
}
