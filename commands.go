package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/ItachiCrypto/appforge-sub001/internal/api"
	"github.com/ItachiCrypto/appforge-sub001/internal/build"
	"github.com/ItachiCrypto/appforge-sub001/internal/files"
	"github.com/ItachiCrypto/appforge-sub001/internal/models"
	"github.com/ItachiCrypto/appforge-sub001/internal/server"
	"github.com/ItachiCrypto/appforge-sub001/internal/session"
	"github.com/ItachiCrypto/appforge-sub001/internal/stories"
	"github.com/ItachiCrypto/appforge-sub001/internal/tools"
)

var (
	mcpTransport string
	mcpAddr      string
	mcpProject   string
	mcpApp       string
	ownerID      string
	quotaBytes   int64
	doneCount    int
	toolsFormat  string
	targetIsApp  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the file tools over MCP (stdio or streamable HTTP)",
	RunE:  runMCP,
}

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Manage projects and legacy apps",
}

var projectsCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a project",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectsCreate,
}

var projectsCreateAppCmd = &cobra.Command{
	Use:   "create-app NAME",
	Short: "Create a legacy app stored as a single blob",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectsCreateApp,
}

var projectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the projects of an owner",
	RunE:  runProjectsList,
}

var projectsDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a project or legacy app with all of its files",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectsDelete,
}

var projectsQuotaCmd = &cobra.Command{
	Use:   "set-quota ID BYTES",
	Short: "Change the storage quota of a project or legacy app",
	Args:  cobra.ExactArgs(2),
	RunE:  runProjectsQuota,
}

var storiesCmd = &cobra.Command{
	Use:   "stories",
	Short: "Parse specification documents into stories",
}

var storiesParseCmd = &cobra.Command{
	Use:   "parse FILE",
	Short: "Print the epics and stories of a document as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runStoriesParse,
}

var storiesNextCmd = &cobra.Command{
	Use:   "next FILE",
	Short: "Print the directive for the next pending story",
	Args:  cobra.ExactArgs(1),
	RunE:  runStoriesNext,
}

var storiesRunCmd = &cobra.Command{
	Use:   "run FILE",
	Short: "Build the stories of a document against a project",
	Long: `run dispatches each pending story as a directive on stdout. Tool calls are read
from stdin as JSON lines and their results written back to stdout; a blank line
ends the turn for the current story.`,
	Args: cobra.ExactArgs(1),
	RunE: runStoriesRun,
}

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Inspect the AI tool registry",
}

var toolsDefinitionsCmd = &cobra.Command{
	Use:   "definitions",
	Short: "Print tool definitions for a model provider",
	RunE:  runToolsDefinitions,
}

func init() {
	mcpCmd.Flags().StringVar(&mcpTransport, "transport", "stdio", "Transport mode: stdio or http")
	mcpCmd.Flags().StringVar(&mcpAddr, "addr", ":8081", "HTTP listen address (only used with --transport http)")
	mcpCmd.Flags().StringVar(&mcpProject, "project", "", "Bind the session to this project id")
	mcpCmd.Flags().StringVar(&mcpApp, "app", "", "Bind the session to this legacy app id")
	mcpCmd.Flags().StringVar(&ownerID, "owner", "local", "Owner id for project listing and creation")

	projectsCmd.PersistentFlags().StringVar(&ownerID, "owner", "local", "Owner id")
	projectsCreateCmd.Flags().Int64Var(&quotaBytes, "quota", 0, "Storage quota in bytes (0 selects the configured default)")
	projectsCreateAppCmd.Flags().Int64Var(&quotaBytes, "quota", 0, "Storage quota in bytes (0 selects the configured default)")
	projectsCmd.AddCommand(projectsCreateCmd)
	projectsCmd.AddCommand(projectsCreateAppCmd)
	projectsCmd.AddCommand(projectsListCmd)
	projectsDeleteCmd.Flags().BoolVar(&targetIsApp, "app", false, "ID names a legacy app")
	projectsQuotaCmd.Flags().BoolVar(&targetIsApp, "app", false, "ID names a legacy app")
	projectsCmd.AddCommand(projectsDeleteCmd)
	projectsCmd.AddCommand(projectsQuotaCmd)

	storiesNextCmd.Flags().IntVar(&doneCount, "done", 0, "Treat the first N stories as done")
	storiesCmd.AddCommand(storiesParseCmd)
	storiesCmd.AddCommand(storiesNextCmd)
	storiesRunCmd.Flags().StringVar(&mcpProject, "project", "", "Project id to build into")
	storiesRunCmd.Flags().StringVar(&mcpApp, "app", "", "Legacy app id to build into")
	storiesRunCmd.Flags().IntVar(&doneCount, "done", 0, "Treat the first N stories as done")
	storiesCmd.AddCommand(storiesRunCmd)

	toolsDefinitionsCmd.Flags().StringVar(&toolsFormat, "format", "openai", "Output format: openai, anthropic or schema")
	toolsCmd.AddCommand(toolsDefinitionsCmd)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	var limiter *api.RateLimiter
	if cfg.Server.RateLimit > 0 {
		limiter = api.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst)
		defer limiter.Close()
	}
	h := api.NewHandler(a.files, a.exec, a.store.Meta(), api.Options{Limiter: limiter})
	router := api.NewRouter(h)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return listen(ctx, &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	})
}

// listen runs srv until ctx is done, then shuts it down gracefully.
func listen(ctx context.Context, srv *http.Server) error {
	serverErr := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "Starting server", "addr", srv.Addr, "version", server.Version)
		serverErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		slog.InfoContext(ctx, "Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		slog.InfoContext(ctx, "Server stopped")
	}
	return nil
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var initial *files.Target
	switch {
	case mcpProject != "" && mcpApp != "":
		return errors.New("--project and --app are mutually exclusive")
	case mcpProject != "":
		t := files.ProjectTarget(mcpProject)
		initial = &t
	case mcpApp != "":
		t := files.AppTarget(mcpApp)
		initial = &t
	}

	// newServer builds one MCP server per client session so that each keeps
	// its own bound target.
	newServer := func(ctx context.Context, owner string) (*mcp.Server, error) {
		sess := session.New(owner)
		if initial != nil {
			if _, err := sess.Switch(ctx, a.store.Meta(), *initial); err != nil {
				return nil, err
			}
		}
		return server.New(a.store.Meta(), a.files, a.exec, sess), nil
	}

	switch mcpTransport {
	case "stdio":
		srv, err := newServer(ctx, ownerID)
		if err != nil {
			return err
		}
		slog.Info("MCP server starting (stdio)")
		return srv.Run(ctx, &mcp.StdioTransport{})
	case "http":
		handler := mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
			owner := r.Header.Get(api.CallerHeader)
			if owner == "" {
				owner = ownerID
			}
			srv, err := newServer(r.Context(), owner)
			if err != nil {
				slog.Warn("Failed to bind MCP session", "err", err)
				return nil
			}
			return srv
		}, nil)
		mux := http.NewServeMux()
		mux.Handle("/mcp", handler)
		return listen(ctx, &http.Server{
			Addr:              mcpAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		})
	default:
		return fmt.Errorf("unknown transport: %s (use stdio or http)", mcpTransport)
	}
}

func runProjectsCreate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.store.Meta().CreateProject(cmd.Context(), ownerID, args[0], quotaBytes)
	if err != nil {
		return err
	}
	return printJSON(p)
}

func runProjectsCreateApp(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	app, err := a.store.Meta().CreateApp(cmd.Context(), ownerID, args[0], quotaBytes)
	if err != nil {
		return err
	}
	return printJSON(app)
}

func runProjectsList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	projects, err := a.store.Meta().ListProjects(cmd.Context(), ownerID)
	if err != nil {
		return err
	}
	return printJSON(projects)
}

// ownedTarget resolves the ID argument and checks it belongs to --owner.
func ownedTarget(cmd *cobra.Command, a *app, id string) (files.Target, error) {
	t := files.ProjectTarget(id)
	if targetIsApp {
		t = files.AppTarget(id)
	}
	if _, err := files.Authorize(cmd.Context(), a.store.Meta(), ownerID, t); err != nil {
		return files.Target{}, err
	}
	return t, nil
}

func runProjectsDelete(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	t, err := ownedTarget(cmd, a, args[0])
	if err != nil {
		return err
	}
	if err := a.files.DeleteTarget(cmd.Context(), t); err != nil {
		return err
	}
	slog.Info("Deleted", "target", t)
	return nil
}

func runProjectsQuota(cmd *cobra.Command, args []string) error {
	quota, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid quota %q: %w", args[1], err)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	t, err := ownedTarget(cmd, a, args[0])
	if err != nil {
		return err
	}
	if err := a.files.SetQuota(cmd.Context(), t, quota); err != nil {
		return err
	}
	info, err := a.files.Info(cmd.Context(), t)
	if err != nil {
		return err
	}
	return printJSON(info)
}

func readStories(path string) ([]models.Epic, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return stories.Parse(string(data)), nil
}

func runStoriesParse(cmd *cobra.Command, args []string) error {
	epics, err := readStories(args[0])
	if err != nil {
		return err
	}
	return printJSON(epics)
}

func runStoriesNext(cmd *cobra.Command, args []string) error {
	epics, err := readStories(args[0])
	if err != nil {
		return err
	}
	list := stories.Flatten(epics)
	for i := 0; i < doneCount && i < len(list); i++ {
		list[i].Status = models.StatusDone
	}
	next, idx := stories.NextPendingStory(list)
	if next == nil {
		fmt.Fprintln(os.Stderr, "All stories are done.")
		return nil
	}
	fmt.Print(stories.BuildStoryPrompt(*next, idx == 0))
	return nil
}

func runStoriesRun(cmd *cobra.Command, args []string) error {
	var target files.Target
	switch {
	case mcpProject != "" && mcpApp != "":
		return errors.New("--project and --app are mutually exclusive")
	case mcpProject != "":
		target = files.ProjectTarget(mcpProject)
	case mcpApp != "":
		target = files.AppTarget(mcpApp)
	default:
		return errors.New("one of --project or --app is required")
	}

	epics, err := readStories(args[0])
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	list := stories.Flatten(epics)
	for i := 0; i < doneCount && i < len(list); i++ {
		list[i].Status = models.StatusDone
	}
	runner := build.NewRunner(a.exec, build.NewStreamAgent(os.Stdin, os.Stdout), target, nil)
	for ctx.Err() == nil {
		res, err := runner.Step(ctx, list)
		if res == nil && err == nil {
			break
		}
		if errors.Is(err, io.EOF) {
			slog.Info("Input closed, stopping")
			break
		}
		if err != nil && res == nil {
			return err
		}
	}
	progress := stories.Summarize(list)
	slog.Info("Build finished", "done", progress.Done, "error", progress.Error, "pending", progress.Pending)
	return nil
}

func runToolsDefinitions(cmd *cobra.Command, args []string) error {
	var (
		out any
		err error
	)
	switch toolsFormat {
	case "openai":
		out, err = tools.OpenAITools()
	case "anthropic":
		out, err = tools.AnthropicTools()
	case "schema":
		out, err = tools.Definitions()
	default:
		return fmt.Errorf("unknown format %q (use openai, anthropic or schema)", toolsFormat)
	}
	if err != nil {
		return err
	}
	return printJSON(out)
}
