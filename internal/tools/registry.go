package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ItachiCrypto/appforge-sub001/internal/files"
	"github.com/ItachiCrypto/appforge-sub001/internal/models"
)

// --- Input types ---

type ListFilesInput struct {
	Prefix string `json:"prefix,omitempty" jsonschema:"Only list files under this directory, e.g. /src. Lists everything when empty"`
}

type ReadFileInput struct {
	Path string `json:"path" jsonschema:"Absolute file path, e.g. /src/App.tsx"`
}

type WriteFileInput struct {
	Path    string `json:"path" jsonschema:"Absolute file path to create or overwrite"`
	Content string `json:"content" jsonschema:"Complete new file content"`
}

type UpdateFileInput struct {
	Path    string `json:"path" jsonschema:"Absolute path of an existing file"`
	Content string `json:"content" jsonschema:"Complete new file content"`
}

type DeleteFileInput struct {
	Path string `json:"path" jsonschema:"Absolute path of the file to delete"`
}

type MoveFileInput struct {
	FromPath string `json:"from_path" jsonschema:"Current absolute path of the file"`
	ToPath   string `json:"to_path" jsonschema:"New absolute path; must not exist yet"`
}

type SearchFilesInput struct {
	Query         string `json:"query" jsonschema:"Text to search for, at least 2 characters"`
	Pattern       string `json:"pattern,omitempty" jsonschema:"Optional glob restricting which files are searched, e.g. **/*.ts"`
	Regex         bool   `json:"regex,omitempty" jsonschema:"Treat query as a regular expression"`
	CaseSensitive bool   `json:"case_sensitive,omitempty" jsonschema:"Match case exactly; searches ignore case by default"`
}

type GetProjectInfoInput struct{}

// tool is one entry of the registry. Input structs are the single source of
// the argument schema for every serialization.
type tool struct {
	name        string
	description string
	schema      func() (*jsonschema.Schema, error)
	run         func(ctx context.Context, e *Executor, t files.Target, args json.RawMessage) (any, error)
	addMCP      func(srv *mcp.Server, e *Executor, target TargetFunc)
}

// TargetFunc yields the target an MCP tool call applies to.
type TargetFunc func() (files.Target, error)

func define[In any](name, description string, fn func(e *Executor, ctx context.Context, t files.Target, in In) (any, error)) tool {
	return tool{
		name:        name,
		description: description,
		schema: func() (*jsonschema.Schema, error) {
			return jsonschema.For[In](nil)
		},
		run: func(ctx context.Context, e *Executor, t files.Target, args json.RawMessage) (any, error) {
			var in In
			if len(args) > 0 && string(args) != "null" {
				if err := json.Unmarshal(args, &in); err != nil {
					return nil, models.InvalidArgument("invalid arguments for %s: %v", name, err)
				}
			}
			return fn(e, ctx, t, in)
		},
		addMCP: func(srv *mcp.Server, e *Executor, target TargetFunc) {
			mcp.AddTool(srv, &mcp.Tool{Name: name, Description: description},
				func(ctx context.Context, _ *mcp.CallToolRequest, in In) (*mcp.CallToolResult, any, error) {
					t, err := target()
					if err != nil {
						return toolError("%v", err), nil, nil
					}
					res := e.invoke(ctx, name, t, func(ctx context.Context) (any, error) {
						return fn(e, ctx, t, in)
					})
					return toolResult(res), nil, nil
				})
		},
	}
}

var registry = []tool{
	define("list_files",
		"List the files of the project with their sizes. Use a prefix to list one directory.",
		(*Executor).listFiles),
	define("read_file",
		"Read the full content of a file.",
		(*Executor).readFile),
	define("write_file",
		"Create a file, or replace the content of an existing file.",
		(*Executor).writeFile),
	define("update_file",
		"Replace the content of a file that already exists. Fails if the file does not exist.",
		(*Executor).updateFile),
	define("delete_file",
		"Delete a file.",
		(*Executor).deleteFile),
	define("move_file",
		"Move or rename a file. The destination must not exist.",
		(*Executor).moveFile),
	define("search_files",
		"Search file contents line by line. Returns matching lines with line numbers.",
		(*Executor).searchFiles),
	define("get_project_info",
		"Get the number of files and the storage used and allowed for the project.",
		(*Executor).getProjectInfo),
}

func lookup(name string) (tool, bool) {
	for _, t := range registry {
		if t.name == name {
			return t, true
		}
	}
	return tool{}, false
}

// Names returns the registered tool names in registry order.
func Names() []string {
	names := make([]string, len(registry))
	for i, t := range registry {
		names[i] = t.name
	}
	return names
}

// Definition is a tool's name, description and argument schema.
type Definition struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters"`
}

// Definitions derives the definition of every registered tool.
func Definitions() ([]Definition, error) {
	defs := make([]Definition, 0, len(registry))
	for _, t := range registry {
		s, err := t.schema()
		if err != nil {
			return nil, fmt.Errorf("schema for %s: %w", t.name, err)
		}
		defs = append(defs, Definition{Name: t.name, Description: t.description, Parameters: s})
	}
	return defs, nil
}

// OpenAITool is the function-calling form of a tool definition.
type OpenAITool struct {
	Type     string     `json:"type"`
	Function Definition `json:"function"`
}

// OpenAITools serializes the registry for OpenAI-style function calling.
func OpenAITools() ([]OpenAITool, error) {
	defs, err := Definitions()
	if err != nil {
		return nil, err
	}
	out := make([]OpenAITool, len(defs))
	for i, d := range defs {
		out[i] = OpenAITool{Type: "function", Function: d}
	}
	return out, nil
}

// AnthropicTool is the tool-use form of a tool definition.
type AnthropicTool struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	InputSchema *jsonschema.Schema `json:"input_schema"`
}

// AnthropicTools serializes the registry for Anthropic-style tool use.
func AnthropicTools() ([]AnthropicTool, error) {
	defs, err := Definitions()
	if err != nil {
		return nil, err
	}
	out := make([]AnthropicTool, len(defs))
	for i, d := range defs {
		out[i] = AnthropicTool{Name: d.Name, Description: d.Description, InputSchema: d.Parameters}
	}
	return out, nil
}

// RegisterMCP adds every registry tool to srv. target resolves the bound
// project or app at call time.
func RegisterMCP(srv *mcp.Server, e *Executor, target TargetFunc) {
	for _, t := range registry {
		t.addMCP(srv, e, target)
	}
}
