package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ItachiCrypto/appforge-sub001/internal/files"
	"github.com/ItachiCrypto/appforge-sub001/internal/storage"
)

// CallerHeader carries the caller identity set by the upstream auth layer.
const CallerHeader = "X-User-ID"

const (
	callerKey = "caller"
	targetKey = "target"
)

// Authorizer decides whether a caller owns a target. It returns nil when it
// does, a forbidden error when it does not, and a not-found error when the
// target does not exist.
type Authorizer interface {
	Owns(ctx context.Context, callerID string, t files.Target) error
}

// MetaAuthorizer checks ownership against the owner column of projects and apps.
type MetaAuthorizer struct {
	Meta *storage.MetaStore
}

func (a MetaAuthorizer) Owns(ctx context.Context, callerID string, t files.Target) error {
	_, err := files.Authorize(ctx, a.Meta, callerID, t)
	return err
}

// requireCaller rejects requests without a caller identity.
func requireCaller() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(CallerHeader)
		if id == "" {
			writeErrorCode(c, http.StatusUnauthorized, CodeUnauthorized, "authorization required")
			return
		}
		c.Set(callerKey, id)
		c.Next()
	}
}

// requireOwner resolves the target of the route and checks that the caller owns it
// before any file operation runs.
func (h *Handler) requireOwner(kind files.TargetKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		t := files.Target{Kind: kind, ID: c.Param("id")}
		if err := t.Validate(); err != nil {
			writeError(c, err)
			return
		}
		if err := h.auth.Owns(c.Request.Context(), c.GetString(callerKey), t); err != nil {
			writeError(c, err)
			return
		}
		c.Set(targetKey, t)
		c.Next()
	}
}

func targetFrom(c *gin.Context) files.Target {
	t, _ := c.MustGet(targetKey).(files.Target)
	return t
}
