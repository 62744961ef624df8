package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ItachiCrypto/appforge-sub001/internal/files"
	"github.com/ItachiCrypto/appforge-sub001/internal/session"
	"github.com/ItachiCrypto/appforge-sub001/internal/storage"
)

// ProjectTools holds references needed by the session tool handlers of the MCP
// server. The session owner scopes every handler.
type ProjectTools struct {
	Meta    *storage.MetaStore
	Files   *files.Service
	Session *session.Session
}

// --- Input types ---

type ListProjectsInput struct{}

type CreateProjectInput struct {
	Name       string `json:"name" jsonschema:"Project name"`
	QuotaBytes int64  `json:"quota_bytes,omitempty" jsonschema:"Storage quota in bytes; 0 selects the server default"`
}

type SwitchProjectInput struct {
	ID   string `json:"id" jsonschema:"Project or app id"`
	Kind string `json:"kind,omitempty" jsonschema:"project (default) or app"`
}

type DeleteProjectInput struct {
	ID   string `json:"id" jsonschema:"Project or app id"`
	Kind string `json:"kind,omitempty" jsonschema:"project (default) or app"`
}

func parseKind(kind, id string) (files.Target, error) {
	if kind == "" {
		kind = "project"
	}
	return files.ParseTarget(kind, id)
}

// --- Handlers ---

func (t *ProjectTools) ListProjects(ctx context.Context, _ *mcp.CallToolRequest, _ ListProjectsInput) (*mcp.CallToolResult, any, error) {
	projects, err := t.Meta.ListProjects(ctx, t.Session.Owner())
	if err != nil {
		return toolError("Failed to list projects: %v", err), nil, nil
	}
	return toolJSON(projects)
}

func (t *ProjectTools) CreateProject(ctx context.Context, _ *mcp.CallToolRequest, input CreateProjectInput) (*mcp.CallToolResult, any, error) {
	if input.Name == "" {
		return toolError("Project name is required"), nil, nil
	}

	proj, err := t.Meta.CreateProject(ctx, t.Session.Owner(), input.Name, input.QuotaBytes)
	if err != nil {
		return toolError("Failed to create project: %v", err), nil, nil
	}

	// Auto-switch to the new project
	if _, err := t.Session.Switch(ctx, t.Meta, files.ProjectTarget(proj.ID)); err != nil {
		return toolError("Project created but failed to switch: %v", err), nil, nil
	}

	return toolJSON(proj)
}

func (t *ProjectTools) SwitchProject(ctx context.Context, _ *mcp.CallToolRequest, input SwitchProjectInput) (*mcp.CallToolResult, any, error) {
	target, err := parseKind(input.Kind, input.ID)
	if err != nil {
		return toolError("%v", err), nil, nil
	}
	name, err := t.Session.Switch(ctx, t.Meta, target)
	if err != nil {
		return toolError("Failed to switch project: %v", err), nil, nil
	}
	return toolJSON(map[string]any{"target": target, "name": name})
}

func (t *ProjectTools) DeleteProject(ctx context.Context, _ *mcp.CallToolRequest, input DeleteProjectInput) (*mcp.CallToolResult, any, error) {
	target, err := parseKind(input.Kind, input.ID)
	if err != nil {
		return toolError("%v", err), nil, nil
	}
	name, err := files.Authorize(ctx, t.Meta, t.Session.Owner(), target)
	if err != nil {
		return toolError("Failed to delete project: %v", err), nil, nil
	}
	if err := t.Files.DeleteTarget(ctx, target); err != nil {
		return toolError("Failed to delete project: %v", err), nil, nil
	}

	// If deleting the current project, clear the session
	t.Session.Clear(target)

	return toolText(fmt.Sprintf("Project %q permanently deleted.", name)), nil, nil
}

func (t *ProjectTools) GetCurrentProject(_ context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
	target, name, ok := t.Session.Current()
	if !ok {
		return toolText("No project is currently active. Use switch_project to select one."), nil, nil
	}
	return toolJSON(map[string]any{"target": target, "name": name})
}

// --- Helpers ---

func toolText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func toolError(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}
}

func toolJSON(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError("Failed to marshal result: %v", err), nil, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}

// toolResult converts an executor result for MCP clients.
func toolResult(r ToolResult) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: r.Content}},
		IsError: r.IsError,
	}
}
