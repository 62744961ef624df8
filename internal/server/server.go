package server

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ItachiCrypto/appforge-sub001/internal/files"
	"github.com/ItachiCrypto/appforge-sub001/internal/session"
	"github.com/ItachiCrypto/appforge-sub001/internal/storage"
	"github.com/ItachiCrypto/appforge-sub001/internal/tools"
)

// Version is reported to MCP clients.
const Version = "0.1.0"

// New creates a fully configured MCP server with all tools registered. File
// tools act on the target bound in sess; the session owner scopes every
// project tool.
func New(meta *storage.MetaStore, svc *files.Service, exec *tools.Executor, sess *session.Session) *mcp.Server {
	pt := &tools.ProjectTools{Meta: meta, Files: svc, Session: sess}

	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "appforge",
		Version: Version,
	}, nil)

	// Session tools
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "list_projects",
		Description: "List the projects of the current owner",
	}, pt.ListProjects)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "create_project",
		Description: "Create a new, empty project and switch to it",
	}, pt.CreateProject)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "switch_project",
		Description: "Switch the active project (or legacy app) for the current session",
	}, pt.SwitchProject)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "delete_project",
		Description: "Permanently delete a project (or legacy app) and all of its files",
	}, pt.DeleteProject)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_current_project",
		Description: "Get the currently active project",
	}, pt.GetCurrentProject)

	// File tools (require an active project)
	tools.RegisterMCP(srv, exec, sess.Target)

	return srv
}
