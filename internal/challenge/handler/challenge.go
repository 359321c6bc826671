package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// WellKnownPrefix is the RFC 8555 section 8.3 location of HTTP-01 resources.
	WellKnownPrefix = "/.well-known/acme-challenge"
	// ShortPrefix is the engine-relative mount used when the responder sits
	// behind a proxy that strips /.well-known.
	ShortPrefix = "/acme-challenge"
)

// challengeResponder is satisfied by *service.Responder.
type challengeResponder interface {
	Respond(ctx context.Context, path string) ([]byte, error)
}

// ChallengeHandler serves HTTP-01 key authorizations.
type ChallengeHandler struct {
	responder challengeResponder
	logger    *zap.Logger
}

// NewChallengeHandler creates a ChallengeHandler.
func NewChallengeHandler(responder challengeResponder, logger *zap.Logger) *ChallengeHandler {
	return &ChallengeHandler{responder: responder, logger: logger}
}

// Register mounts the challenge routes on r.
func (h *ChallengeHandler) Register(r gin.IRoutes) {
	for _, prefix := range []string{WellKnownPrefix, ShortPrefix} {
		r.GET(prefix+"/:verification_path", h.Serve)
		r.HEAD(prefix+"/:verification_path", h.Serve)
	}
}

// Serve handles GET /.well-known/acme-challenge/:verification_path.
//
// The body is the key authorization, byte for byte. Every failure is the
// same 404 so callers cannot tell an expired token from one that never
// existed.
func (h *ChallengeHandler) Serve(c *gin.Context) {
	body, err := h.responder.Respond(c.Request.Context(), c.Param("verification_path"))
	if err != nil {
		h.NotFound(c)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "application/octet-stream", body)
}

// NotFound writes the generic 404. Install it as the engine's NoRoute handler
// so unroutable challenge paths look the same as unknown tokens.
func (h *ChallengeHandler) NotFound(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.String(http.StatusNotFound, "not found")
}
