package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ItachiCrypto/appforge-sub001/internal/models"
)

func tempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "appforge-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

// setupDB opens a fresh SQLite database in a temp directory.
func setupDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(tempDir(t), "test.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open("postgres", "dsn"); err == nil {
		t.Error("Expected error for unsupported driver")
	}
	if _, err := Open("mysql", ""); err == nil {
		t.Error("Expected error for empty dsn")
	}
}

func TestOpenSQLiteCreatesFile(t *testing.T) {
	dir := tempDir(t)
	db, err := OpenSQLite(filepath.Join(dir, "appforge.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer db.Close()

	if db.Driver() != "sqlite3" {
		t.Errorf("Driver = %q, want sqlite3", db.Driver())
	}
	if _, err := os.Stat(filepath.Join(dir, "appforge.db")); err != nil {
		t.Errorf("Expected database file to exist: %v", err)
	}
}

func TestCreateAndGetProject(t *testing.T) {
	ctx := context.Background()
	meta := NewMetaStore(setupDB(t))

	proj, err := meta.CreateProject(ctx, "user-1", "todo app", 1000)
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if proj.ID == "" {
		t.Error("ID should not be empty")
	}

	got, err := meta.GetProject(ctx, proj.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if got.OwnerID != "user-1" || got.Name != "todo app" || got.QuotaBytes != 1000 {
		t.Errorf("GetProject = %+v", got)
	}
}

func TestCreateProjectValidation(t *testing.T) {
	ctx := context.Background()
	meta := NewMetaStore(setupDB(t))

	if _, err := meta.CreateProject(ctx, "", "x", 0); !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("empty owner: err = %v, want invalid_argument", err)
	}
	if _, err := meta.CreateProject(ctx, "u", "x", -1); !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("negative quota: err = %v, want invalid_argument", err)
	}
}

func TestGetProjectNotFound(t *testing.T) {
	meta := NewMetaStore(setupDB(t))
	_, err := meta.GetProject(context.Background(), "missing")
	if !errors.Is(err, models.ErrProjectNotFound) {
		t.Errorf("err = %v, want project_not_found", err)
	}
}

func TestListProjects(t *testing.T) {
	ctx := context.Background()
	meta := NewMetaStore(setupDB(t))

	meta.CreateProject(ctx, "alice", "beta", 0)
	meta.CreateProject(ctx, "alice", "alpha", 0)
	meta.CreateProject(ctx, "bob", "gamma", 0)

	projects, err := meta.ListProjects(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(projects) != 2 {
		t.Fatalf("ListProjects(alice) = %d projects, want 2", len(projects))
	}
	if projects[0].Name != "alpha" || projects[1].Name != "beta" {
		t.Errorf("Order = %q, %q; want alpha, beta", projects[0].Name, projects[1].Name)
	}

	projects, err = meta.ListProjects(ctx, "carol")
	if err != nil {
		t.Fatal(err)
	}
	if len(projects) != 0 {
		t.Errorf("ListProjects(carol) = %d projects, want 0", len(projects))
	}
}

func TestSetProjectQuota(t *testing.T) {
	ctx := context.Background()
	meta := NewMetaStore(setupDB(t))

	proj, _ := meta.CreateProject(ctx, "u", "p", 0)
	if err := meta.SetProjectQuota(ctx, proj.ID, 42); err != nil {
		t.Fatalf("SetProjectQuota: %v", err)
	}
	got, _ := meta.GetProject(ctx, proj.ID)
	if got.QuotaBytes != 42 {
		t.Errorf("QuotaBytes = %d, want 42", got.QuotaBytes)
	}
	if err := meta.SetProjectQuota(ctx, "missing", 1); !errors.Is(err, models.ErrProjectNotFound) {
		t.Errorf("err = %v, want project_not_found", err)
	}
}

func TestDeleteProjectRemovesFiles(t *testing.T) {
	ctx := context.Background()
	store := NewStore(setupDB(t), Limits{})

	proj, _ := store.Meta().CreateProject(ctx, "u", "p", 0)
	files, err := store.Project(ctx, proj.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := files.Create(ctx, "/a.txt", "hello"); err != nil {
		t.Fatal(err)
	}

	if err := store.Meta().DeleteProject(ctx, proj.ID); err != nil {
		t.Fatalf("DeleteProject: %v", err)
	}
	if _, err := store.Project(ctx, proj.ID); !errors.Is(err, models.ErrProjectNotFound) {
		t.Errorf("err = %v, want project_not_found", err)
	}
	infos, err := files.List(ctx, "/")
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 0 {
		t.Errorf("Expected files to be removed with the project, got %d", len(infos))
	}
	if err := store.Meta().DeleteProject(ctx, proj.ID); !errors.Is(err, models.ErrProjectNotFound) {
		t.Errorf("second delete: err = %v, want project_not_found", err)
	}
}

func TestCreateGetDeleteApp(t *testing.T) {
	ctx := context.Background()
	meta := NewMetaStore(setupDB(t))

	app, err := meta.CreateApp(ctx, "u", "legacy", 0)
	if err != nil {
		t.Fatalf("CreateApp: %v", err)
	}
	got, err := meta.GetApp(ctx, app.ID)
	if err != nil {
		t.Fatalf("GetApp: %v", err)
	}
	if got.Name != "legacy" || got.OwnerID != "u" {
		t.Errorf("GetApp = %+v", got)
	}
	if err := meta.DeleteApp(ctx, app.ID); err != nil {
		t.Fatalf("DeleteApp: %v", err)
	}
	if _, err := meta.GetApp(ctx, app.ID); !errors.Is(err, models.ErrAppNotFound) {
		t.Errorf("err = %v, want app_not_found", err)
	}
}
