// Package tools executes AI tool calls against the file service and serializes
// the tool registry for OpenAI, Anthropic and MCP clients.
package tools

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ItachiCrypto/appforge-sub001/internal/files"
	"github.com/ItachiCrypto/appforge-sub001/internal/models"
	"github.com/ItachiCrypto/appforge-sub001/internal/paths"
	"github.com/ItachiCrypto/appforge-sub001/internal/storage"
)

var (
	toolCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "appforge_tool_calls_total",
		Help: "AI tool calls by tool name and result kind",
	}, []string{"tool", "result"})

	toolCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "appforge_tool_call_duration_seconds",
		Help:    "AI tool call duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"tool"})
)

// ToolCall is one tool invocation requested by a model.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolError is the structured failure of a tool call.
type ToolError struct {
	Kind    models.Kind    `json:"kind"`
	Message string         `json:"message"`
	Hint    string         `json:"hint,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// ToolResult is the outcome of a tool call. Content is the JSON text handed
// back to the model in both the success and the error case.
type ToolResult struct {
	CallID  string     `json:"call_id"`
	Name    string     `json:"name"`
	Content string     `json:"content"`
	IsError bool       `json:"is_error"`
	Error   *ToolError `json:"error,omitempty"`
}

// Recoverable reports whether the model can fix the failure itself, such as
// a wrong path or a missing file. Quota and internal failures are not.
func (r ToolResult) Recoverable() bool {
	if !r.IsError || r.Error == nil {
		return true
	}
	switch r.Error.Kind {
	case models.KindFileNotFound, models.KindAppFileNotFound, models.KindInvalidPath,
		models.KindAlreadyExists, models.KindInvalidArgument, models.KindFileTooLarge:
		return true
	}
	return false
}

// OpenAIMessage renders the result as an OpenAI "tool" role message.
func (r ToolResult) OpenAIMessage() map[string]any {
	return map[string]any{
		"role":         "tool",
		"tool_call_id": r.CallID,
		"content":      r.Content,
	}
}

// AnthropicBlock renders the result as an Anthropic "tool_result" content block.
func (r ToolResult) AnthropicBlock() map[string]any {
	b := map[string]any{
		"type":        "tool_result",
		"tool_use_id": r.CallID,
		"content":     r.Content,
	}
	if r.IsError {
		b["is_error"] = true
	}
	return b
}

var hints = map[models.Kind]string{
	models.KindFileNotFound:    "Use list_files to see which files exist, or write_file to create it.",
	models.KindAppFileNotFound: "Use list_files to see which files exist, or write_file to create it.",
	models.KindAlreadyExists:   "Pick another path, or use update_file to change the existing file.",
	models.KindInvalidPath:     "Use absolute paths like /src/index.ts without . or .. segments.",
	models.KindQuotaExceeded:   "Delete files that are no longer needed before writing more.",
	models.KindFileTooLarge:    "Split the content into several smaller files.",
	models.KindInvalidArgument: "Check the arguments against the tool schema.",
}

// Executor runs registry tools for one target per call.
type Executor struct {
	files *files.Service
	log   *slog.Logger
}

// NewExecutor returns an Executor over svc. A nil logger selects slog.Default.
func NewExecutor(svc *files.Service, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{files: svc, log: logger}
}

// Execute runs call against target. Failures never escape as Go errors; they
// are reported in the result.
func (e *Executor) Execute(ctx context.Context, call ToolCall, target files.Target) ToolResult {
	t, ok := lookup(call.Name)
	if !ok {
		res := e.fail(call.Name, models.InvalidArgument("unknown tool %q", call.Name))
		res.CallID = call.ID
		toolCallsTotal.WithLabelValues("unknown", string(models.KindInvalidArgument)).Inc()
		return res
	}
	res := e.invoke(ctx, call.Name, target, func(ctx context.Context) (any, error) {
		return t.run(ctx, e, target, call.Arguments)
	})
	res.CallID = call.ID
	return res
}

func (e *Executor) invoke(ctx context.Context, name string, target files.Target, fn func(ctx context.Context) (any, error)) ToolResult {
	start := time.Now()
	out, err := fn(ctx)
	toolCallDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if err != nil {
		res := e.fail(name, err)
		toolCallsTotal.WithLabelValues(name, string(res.Error.Kind)).Inc()
		if res.Error.Kind == models.KindInternal {
			e.log.Error("tool call failed", "tool", name, "target", target, "err", err)
		} else {
			e.log.Debug("tool call rejected", "tool", name, "target", target, "kind", res.Error.Kind, "err", err)
		}
		return res
	}
	toolCallsTotal.WithLabelValues(name, "ok").Inc()
	data, err := json.Marshal(out)
	if err != nil {
		e.log.Error("marshal tool result", "tool", name, "err", err)
		return e.fail(name, err)
	}
	return ToolResult{Name: name, Content: string(data)}
}

func (e *Executor) fail(name string, err error) ToolResult {
	d := models.DetailsOf(err)
	te := &ToolError{Kind: d.Kind, Message: d.Message, Hint: hints[d.Kind], Details: d.Details}
	data, _ := json.Marshal(map[string]any{"error": te})
	return ToolResult{Name: name, Content: string(data), IsError: true, Error: te}
}

// --- Handlers ---

type listFilesOutput struct {
	Files []models.FileInfo `json:"files"`
	Count int               `json:"count"`
}

func (e *Executor) listFiles(ctx context.Context, t files.Target, in ListFilesInput) (any, error) {
	infos, err := e.files.List(ctx, t, in.Prefix)
	if err != nil {
		return nil, err
	}
	return listFilesOutput{Files: infos, Count: len(infos)}, nil
}

func (e *Executor) readFile(ctx context.Context, t files.Target, in ReadFileInput) (any, error) {
	return e.files.Read(ctx, t, paths.Root(in.Path))
}

type writeOutput struct {
	Path    string `json:"path"`
	Size    int64  `json:"size"`
	Created bool   `json:"created"`
}

func (e *Executor) writeFile(ctx context.Context, t files.Target, in WriteFileInput) (any, error) {
	f, created, err := e.files.Write(ctx, t, paths.Root(in.Path), in.Content)
	if err != nil {
		return nil, err
	}
	return writeOutput{Path: f.Path, Size: f.Size, Created: created}, nil
}

func (e *Executor) updateFile(ctx context.Context, t files.Target, in UpdateFileInput) (any, error) {
	f, err := e.files.Update(ctx, t, paths.Root(in.Path), in.Content)
	if err != nil {
		return nil, err
	}
	return writeOutput{Path: f.Path, Size: f.Size}, nil
}

type deleteOutput struct {
	Path    string `json:"path"`
	Deleted bool   `json:"deleted"`
}

func (e *Executor) deleteFile(ctx context.Context, t files.Target, in DeleteFileInput) (any, error) {
	p := paths.Root(in.Path)
	if err := e.files.Delete(ctx, t, p); err != nil {
		return nil, err
	}
	n, _ := paths.Normalize(p)
	return deleteOutput{Path: n, Deleted: true}, nil
}

type moveOutput struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (e *Executor) moveFile(ctx context.Context, t files.Target, in MoveFileInput) (any, error) {
	from := paths.Root(in.FromPath)
	f, err := e.files.Rename(ctx, t, from, paths.Root(in.ToPath))
	if err != nil {
		return nil, err
	}
	n, _ := paths.Normalize(from)
	return moveOutput{From: n, To: f.Path}, nil
}

func (e *Executor) searchFiles(ctx context.Context, t files.Target, in SearchFilesInput) (any, error) {
	return e.files.Search(ctx, t, storage.SearchQuery{
		Query:         in.Query,
		Pattern:       in.Pattern,
		Regex:         in.Regex,
		CaseSensitive: in.CaseSensitive,
	})
}

func (e *Executor) getProjectInfo(ctx context.Context, t files.Target, _ GetProjectInfoInput) (any, error) {
	return e.files.Info(ctx, t)
}
