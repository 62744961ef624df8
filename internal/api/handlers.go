// Package api exposes the file service, tool executor and story sequencer over HTTP.
package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ItachiCrypto/appforge-sub001/internal/files"
	"github.com/ItachiCrypto/appforge-sub001/internal/models"
	"github.com/ItachiCrypto/appforge-sub001/internal/storage"
	"github.com/ItachiCrypto/appforge-sub001/internal/stories"
	"github.com/ItachiCrypto/appforge-sub001/internal/tools"
)

// Handler wires HTTP routes to the file service and the tool executor.
type Handler struct {
	files   *files.Service
	exec    *tools.Executor
	meta    *storage.MetaStore
	auth    Authorizer
	limiter *RateLimiter
}

// Options configures optional collaborators of a Handler.
type Options struct {
	// Authorizer defaults to MetaAuthorizer over the handler's MetaStore.
	Authorizer Authorizer
	// Limiter is optional; nil disables rate limiting.
	Limiter *RateLimiter
}

// NewHandler constructs a Handler instance.
func NewHandler(svc *files.Service, exec *tools.Executor, meta *storage.MetaStore, opts Options) *Handler {
	auth := opts.Authorizer
	if auth == nil {
		auth = MetaAuthorizer{Meta: meta}
	}
	return &Handler{files: svc, exec: exec, meta: meta, auth: auth, limiter: opts.Limiter}
}

// NewRouter returns a gin engine with every route, health and metrics attached.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	h.RegisterRoutes(r)
	return r
}

// RegisterRoutes attaches all API routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	if h.limiter != nil {
		api.Use(h.limiter.Middleware())
	}
	api.Use(requireCaller())

	api.GET("/tools", h.listTools)
	api.POST("/stories/parse", h.parseStories)
	api.POST("/stories/next", h.nextStory)
	api.POST("/projects", h.createProject)
	api.POST("/apps", h.createApp)

	for _, kind := range []files.TargetKind{files.KindProject, files.KindApp} {
		g := api.Group("/" + string(kind) + "s/:id")
		g.Use(h.requireOwner(kind))
		g.DELETE("", h.deleteTarget)
		g.PUT("/quota", h.setQuota)
		g.GET("/files", h.listFiles)
		g.POST("/files", h.createFile)
		g.GET("/files/*path", h.readFile)
		g.PUT("/files/*path", h.updateFile)
		g.DELETE("/files/*path", h.deleteFile)
		g.POST("/rename", h.renameFile)
		g.POST("/bulk", h.bulk)
		g.GET("/search", h.search)
		g.GET("/tree", h.tree)
		g.GET("/info", h.info)
		g.POST("/tools/execute", h.executeTool)
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		writeErrorCode(c, http.StatusBadRequest, CodeBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// --- Projects and apps ---

type createTargetRequest struct {
	Name       string `json:"name" binding:"required"`
	QuotaBytes int64  `json:"quota_bytes"`
}

func (h *Handler) createProject(c *gin.Context) {
	var req createTargetRequest
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.meta.CreateProject(c.Request.Context(), c.GetString(callerKey), req.Name, req.QuotaBytes)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handler) createApp(c *gin.Context) {
	var req createTargetRequest
	if !bindJSON(c, &req) {
		return
	}
	app, err := h.meta.CreateApp(c.Request.Context(), c.GetString(callerKey), req.Name, req.QuotaBytes)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, app)
}

type quotaRequest struct {
	QuotaBytes *int64 `json:"quota_bytes" binding:"required"`
}

func (h *Handler) setQuota(c *gin.Context) {
	var req quotaRequest
	if !bindJSON(c, &req) {
		return
	}
	t := targetFrom(c)
	if err := h.files.SetQuota(c.Request.Context(), t, *req.QuotaBytes); err != nil {
		writeError(c, err)
		return
	}
	info, err := h.files.Info(c.Request.Context(), t)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *Handler) deleteTarget(c *gin.Context) {
	if err := h.files.DeleteTarget(c.Request.Context(), targetFrom(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- Files ---

type createFileRequest struct {
	Path    string `json:"path" binding:"required"`
	Content string `json:"content"`
}

type updateFileRequest struct {
	Content string `json:"content"`
}

type renameRequest struct {
	From string `json:"from" binding:"required"`
	To   string `json:"to" binding:"required"`
}

type bulkRequest struct {
	Operations []models.BulkOperation `json:"operations"`
}

type bulkResponse struct {
	Results []models.BulkResult `json:"results"`
	Summary models.BulkSummary  `json:"summary"`
}

func (h *Handler) listFiles(c *gin.Context) {
	infos, err := h.files.List(c.Request.Context(), targetFrom(c), c.DefaultQuery("prefix", "/"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": infos, "count": len(infos)})
}

func (h *Handler) createFile(c *gin.Context) {
	var req createFileRequest
	if !bindJSON(c, &req) {
		return
	}
	f, err := h.files.Create(c.Request.Context(), targetFrom(c), req.Path, req.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, f)
}

func (h *Handler) readFile(c *gin.Context) {
	f, err := h.files.Read(c.Request.Context(), targetFrom(c), c.Param("path"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

// updateFile requires the file to exist unless ?upsert=true is given.
func (h *Handler) updateFile(c *gin.Context) {
	var req updateFileRequest
	if !bindJSON(c, &req) {
		return
	}
	ctx, t, path := c.Request.Context(), targetFrom(c), c.Param("path")

	if upsert, _ := strconv.ParseBool(c.Query("upsert")); upsert {
		f, created, err := h.files.Write(ctx, t, path, req.Content)
		if err != nil {
			writeError(c, err)
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		c.JSON(status, f)
		return
	}

	f, err := h.files.Update(ctx, t, path, req.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

func (h *Handler) deleteFile(c *gin.Context) {
	if err := h.files.Delete(c.Request.Context(), targetFrom(c), c.Param("path")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) renameFile(c *gin.Context) {
	var req renameRequest
	if !bindJSON(c, &req) {
		return
	}
	f, err := h.files.Rename(c.Request.Context(), targetFrom(c), req.From, req.To)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

func (h *Handler) bulk(c *gin.Context) {
	var req bulkRequest
	if !bindJSON(c, &req) {
		return
	}
	results, err := h.files.Bulk(c.Request.Context(), targetFrom(c), req.Operations)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, bulkResponse{Results: results, Summary: files.Summarize(results)})
}

func (h *Handler) search(c *gin.Context) {
	q := storage.SearchQuery{
		Query:   c.Query("q"),
		Pattern: c.Query("pattern"),
	}
	q.Regex, _ = strconv.ParseBool(c.Query("regex"))
	q.CaseSensitive, _ = strconv.ParseBool(c.Query("case_sensitive"))

	resp, err := h.files.Search(c.Request.Context(), targetFrom(c), q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) tree(c *gin.Context) {
	infos, err := h.files.List(c.Request.Context(), targetFrom(c), c.DefaultQuery("prefix", "/"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tree": files.BuildTree(infos)})
}

func (h *Handler) info(c *gin.Context) {
	info, err := h.files.Info(c.Request.Context(), targetFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// --- Tools ---

type executeRequest struct {
	Call tools.ToolCall `json:"tool_call"`
	// Format selects the message rendering: "openai" (default) or "anthropic".
	Format string `json:"format"`
}

type executeResponse struct {
	Result  tools.ToolResult `json:"result"`
	Message map[string]any   `json:"message"`
}

// executeTool always answers 200: tool failures are part of the result.
func (h *Handler) executeTool(c *gin.Context) {
	var req executeRequest
	if !bindJSON(c, &req) {
		return
	}
	res := h.exec.Execute(c.Request.Context(), req.Call, targetFrom(c))
	msg := res.OpenAIMessage()
	if req.Format == "anthropic" {
		msg = res.AnthropicBlock()
	}
	c.JSON(http.StatusOK, executeResponse{Result: res, Message: msg})
}

func (h *Handler) listTools(c *gin.Context) {
	var (
		out any
		err error
	)
	switch format := c.Query("format"); format {
	case "", "openai":
		out, err = tools.OpenAITools()
	case "anthropic":
		out, err = tools.AnthropicTools()
	case "schema":
		out, err = tools.Definitions()
	default:
		writeError(c, models.InvalidArgument("unknown tool format %q", format))
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tools": out})
}

// --- Stories ---

type parseRequest struct {
	Text string `json:"text"`
}

type nextRequest struct {
	Stories []models.Story `json:"stories"`
}

type nextResponse struct {
	Story     *models.Story    `json:"story"`
	Index     int              `json:"index"`
	Directive string           `json:"directive,omitempty"`
	Progress  stories.Progress `json:"progress"`
}

func (h *Handler) parseStories(c *gin.Context) {
	var req parseRequest
	if !bindJSON(c, &req) {
		return
	}
	epics := stories.Parse(req.Text)
	c.JSON(http.StatusOK, gin.H{
		"epics":    epics,
		"progress": stories.Summarize(stories.Flatten(epics)),
	})
}

// nextStory returns the next pending story and its directive. It does not
// change any status; the caller holds that state.
func (h *Handler) nextStory(c *gin.Context) {
	var req nextRequest
	if !bindJSON(c, &req) {
		return
	}
	list := make([]*models.Story, len(req.Stories))
	for i := range req.Stories {
		list[i] = &req.Stories[i]
	}
	resp := nextResponse{Index: -1, Progress: stories.Summarize(list)}
	if next, idx := stories.NextPendingStory(list); next != nil {
		resp.Story, resp.Index = next, idx
		resp.Directive = stories.BuildStoryPrompt(*next, idx == 0)
	}
	c.JSON(http.StatusOK, resp)
}
