package main

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ItachiCrypto/appforge-sub001/internal/files"
	"github.com/ItachiCrypto/appforge-sub001/internal/models"
	"github.com/ItachiCrypto/appforge-sub001/internal/server"
	"github.com/ItachiCrypto/appforge-sub001/internal/session"
	"github.com/ItachiCrypto/appforge-sub001/internal/storage"
	"github.com/ItachiCrypto/appforge-sub001/internal/tools"
)

// setupIntegration creates a real MCP server with in-memory transport and returns a connected client session.
func setupIntegration(t *testing.T) (*mcp.ClientSession, *storage.Store) {
	t.Helper()

	db, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "integration.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	store := storage.NewStore(db, storage.Limits{})
	svc := files.NewService(store, nil, files.Options{})
	srv := server.New(store.Meta(), svc, tools.NewExecutor(svc, nil), session.New("tester"))

	ctx := context.Background()
	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	if _, err := srv.Connect(ctx, serverTransport, nil); err != nil {
		t.Fatalf("server connect: %v", err)
	}

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { cs.Close() })
	return cs, store
}

func callRaw(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) (string, bool) {
	t.Helper()
	result, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if len(result.Content) == 0 {
		t.Fatalf("CallTool(%s): empty content", name)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent, got %T", name, result.Content[0])
	}
	return tc.Text, result.IsError
}

// callTool calls a tool and returns the text content, failing on tool errors.
func callTool(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) string {
	t.Helper()
	text, isErr := callRaw(t, cs, name, args)
	if isErr {
		t.Fatalf("CallTool(%s) returned error: %s", name, text)
	}
	return text
}

// callToolExpectError calls a tool and expects an error response (IsError=true).
func callToolExpectError(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) string {
	t.Helper()
	text, isErr := callRaw(t, cs, name, args)
	if !isErr {
		t.Fatalf("CallTool(%s): expected error but got success: %s", name, text)
	}
	return text
}

func TestIntegration_ListTools(t *testing.T) {
	cs, _ := setupIntegration(t)

	result, err := cs.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}

	expected := append([]string{"list_projects", "create_project", "switch_project", "delete_project", "get_current_project"}, tools.Names()...)
	found := make(map[string]bool)
	for _, tool := range result.Tools {
		found[tool.Name] = true
	}
	for _, name := range expected {
		if !found[name] {
			t.Errorf("Missing tool: %s", name)
		}
	}
	if len(result.Tools) != len(expected) {
		t.Errorf("Expected %d tools, got %d", len(expected), len(result.Tools))
	}
}

func TestIntegration_FullWorkflow(t *testing.T) {
	cs, store := setupIntegration(t)

	// File tools need a bound project
	text := callToolExpectError(t, cs, "list_files", map[string]any{})
	if !strings.Contains(text, "switch_project") {
		t.Errorf("unbound error should point to switch_project: %s", text)
	}

	proj, err := store.Meta().CreateProject(context.Background(), "tester", "web", 0)
	if err != nil {
		t.Fatal(err)
	}
	text = callTool(t, cs, "switch_project", map[string]any{"id": proj.ID})
	if !strings.Contains(text, `"name": "web"`) {
		t.Errorf("switch_project = %s", text)
	}

	callTool(t, cs, "write_file", map[string]any{"path": "/src/App.tsx", "content": "export const App = () => null"})
	text = callTool(t, cs, "read_file", map[string]any{"path": "src/App.tsx"})
	var f models.File
	if err := json.Unmarshal([]byte(text), &f); err != nil {
		t.Fatalf("read_file output: %v", err)
	}
	if f.Path != "/src/App.tsx" || !strings.Contains(f.Content, "App") {
		t.Errorf("read_file = %+v", f)
	}

	text = callToolExpectError(t, cs, "update_file", map[string]any{"path": "/missing.ts", "content": "x"})
	if !strings.Contains(text, string(models.KindFileNotFound)) {
		t.Errorf("update_file error = %s", text)
	}

	callTool(t, cs, "move_file", map[string]any{"from_path": "/src/App.tsx", "to_path": "/src/Main.tsx"})
	text = callTool(t, cs, "list_files", map[string]any{"prefix": "/src"})
	if !strings.Contains(text, "/src/Main.tsx") || strings.Contains(text, "/src/App.tsx") {
		t.Errorf("list_files = %s", text)
	}

	text = callTool(t, cs, "search_files", map[string]any{"query": "export"})
	if !strings.Contains(text, "/src/Main.tsx") {
		t.Errorf("search_files = %s", text)
	}

	text = callTool(t, cs, "get_project_info", map[string]any{})
	var info files.Info
	if err := json.Unmarshal([]byte(text), &info); err != nil {
		t.Fatal(err)
	}
	if info.FileCount != 1 || info.Target.ID != proj.ID {
		t.Errorf("get_project_info = %+v", info)
	}

	// Files written over MCP are visible through the service
	pf, err := store.Project(context.Background(), proj.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := pf.Read(context.Background(), "/src/Main.tsx"); err != nil {
		t.Errorf("Read through storage: %v", err)
	}
}

func TestIntegration_CreateProjectSwitches(t *testing.T) {
	cs, _ := setupIntegration(t)

	callTool(t, cs, "create_project", map[string]any{"name": "fresh"})
	text := callTool(t, cs, "get_current_project", map[string]any{})
	if !strings.Contains(text, `"fresh"`) {
		t.Errorf("get_current_project = %s", text)
	}
	callTool(t, cs, "write_file", map[string]any{"path": "/index.html", "content": "<html></html>"})

	text = callTool(t, cs, "list_projects", map[string]any{})
	if !strings.Contains(text, "fresh") {
		t.Errorf("list_projects = %s", text)
	}
}

func TestIntegration_ErrorCases(t *testing.T) {
	cs, store := setupIntegration(t)

	callToolExpectError(t, cs, "switch_project", map[string]any{"id": "does-not-exist"})
	callToolExpectError(t, cs, "switch_project", map[string]any{"id": "x", "kind": "workspace"})
	callToolExpectError(t, cs, "create_project", map[string]any{"name": ""})

	app, err := store.Meta().CreateApp(context.Background(), "tester", "legacy", 0)
	if err != nil {
		t.Fatal(err)
	}
	callTool(t, cs, "switch_project", map[string]any{"id": app.ID, "kind": "app"})
	text := callToolExpectError(t, cs, "read_file", map[string]any{"path": "/nope.js"})
	if !strings.Contains(text, string(models.KindAppFileNotFound)) {
		t.Errorf("app read error = %s", text)
	}
	text = callToolExpectError(t, cs, "write_file", map[string]any{"path": "/../etc/passwd", "content": "x"})
	if !strings.Contains(text, string(models.KindInvalidPath)) {
		t.Errorf("traversal error = %s", text)
	}
}

func TestIntegration_OtherOwnersTargetsAreForbidden(t *testing.T) {
	cs, store := setupIntegration(t)
	ctx := context.Background()

	proj, err := store.Meta().CreateProject(ctx, "alice", "private", 0)
	if err != nil {
		t.Fatal(err)
	}
	pf, err := store.Project(ctx, proj.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := pf.Create(ctx, "/secret.env", "API_KEY=hunter2"); err != nil {
		t.Fatal(err)
	}
	app, err := store.Meta().CreateApp(ctx, "alice", "legacy", 0)
	if err != nil {
		t.Fatal(err)
	}

	text := callToolExpectError(t, cs, "switch_project", map[string]any{"id": proj.ID})
	if !strings.Contains(text, "not owned by the caller") {
		t.Errorf("switch to foreign project = %s", text)
	}
	callToolExpectError(t, cs, "switch_project", map[string]any{"id": app.ID, "kind": "app"})
	callToolExpectError(t, cs, "delete_project", map[string]any{"id": proj.ID})

	// Still unbound, so file tools cannot reach alice's files
	text = callToolExpectError(t, cs, "read_file", map[string]any{"path": "/secret.env"})
	if strings.Contains(text, "hunter2") {
		t.Errorf("read_file leaked content: %s", text)
	}
	if _, err := store.Meta().GetProject(ctx, proj.ID); err != nil {
		t.Errorf("foreign project was deleted: %v", err)
	}
}

func TestIntegration_DeleteProjectClearsSession(t *testing.T) {
	cs, store := setupIntegration(t)

	text := callTool(t, cs, "create_project", map[string]any{"name": "doomed"})
	var proj models.Project
	if err := json.Unmarshal([]byte(text), &proj); err != nil {
		t.Fatalf("create_project output: %v", err)
	}
	callTool(t, cs, "write_file", map[string]any{"path": "/a.txt", "content": "a"})

	text = callTool(t, cs, "delete_project", map[string]any{"id": proj.ID})
	if !strings.Contains(text, "doomed") {
		t.Errorf("delete_project = %s", text)
	}
	text = callTool(t, cs, "get_current_project", map[string]any{})
	if !strings.Contains(text, "No project is currently active") {
		t.Errorf("get_current_project after delete = %s", text)
	}
	if _, err := store.Meta().GetProject(context.Background(), proj.ID); !errors.Is(err, models.ErrProjectNotFound) {
		t.Errorf("GetProject after delete: err = %v", err)
	}
}
