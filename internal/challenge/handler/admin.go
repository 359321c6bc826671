package handler

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/acmeresponder/internal/challenge/model"
	"github.com/jmerrifield20/acmeresponder/internal/challenge/service"
	"go.uber.org/zap"
)

// challengeRegistrar is satisfied by *service.Registrar.
type challengeRegistrar interface {
	Register(ctx context.Context, req service.RegisterRequest) (*model.Token, error)
	Retire(ctx context.Context, domain string)
	Get(ctx context.Context, domain string) (*model.Token, error)
	List(ctx context.Context) []model.Token
}

// capacityRetryAfter is the back-off hint sent with 503 responses.
const capacityRetryAfter = 30 * time.Second

// maxTTLSeconds is the largest ttl_seconds that converts to a time.Duration
// without overflowing.
const maxTTLSeconds = math.MaxInt64 / int64(time.Second)

// AdminHandler exposes the registrar to orchestrators.
type AdminHandler struct {
	registrar challengeRegistrar
	logger    *zap.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(registrar challengeRegistrar, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{registrar: registrar, logger: logger}
}

// Register mounts the admin routes on the given router group.
func (h *AdminHandler) Register(rg *gin.RouterGroup) {
	ch := rg.Group("/challenges")
	{
		ch.POST("", h.CreateChallenge)
		ch.GET("", h.ListChallenges)
		ch.GET("/:domain", h.GetChallenge)
		ch.DELETE("/:domain", h.RetireChallenge)
	}
}

type createChallengeRequest struct {
	Domain           string `json:"domain" binding:"required"`
	VerificationPath string `json:"verification_path" binding:"required"`
	KeyAuthorization string `json:"key_authorization" binding:"required"`
	TTLSeconds       int64  `json:"ttl_seconds" binding:"gte=0"`
}

// CreateChallenge handles POST /challenges.
//
// Request body:
//
//	{"domain":"example.com","verification_path":"abc123XYZ",
//	 "key_authorization":"abc123XYZ.thumb","ttl_seconds":300}
func (h *AdminHandler) CreateChallenge(c *gin.Context) {
	var req createChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tok, err := h.registrar.Register(c.Request.Context(), service.RegisterRequest{
		Domain:           req.Domain,
		VerificationPath: req.VerificationPath,
		KeyAuthorization: req.KeyAuthorization,
		TTL:              ttlFromSeconds(req.TTLSeconds),
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidPath),
			errors.Is(err, service.ErrInvalidDomain),
			errors.Is(err, service.ErrInvalidKeyAuthorization):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrDuplicatePath):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrCapacityExceeded):
			c.Header("Retry-After", strconv.Itoa(int(capacityRetryAfter.Seconds())))
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		default:
			h.logger.Error("register challenge", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register challenge"})
		}
		return
	}

	c.JSON(http.StatusCreated, tok)
}

// ListChallenges handles GET /challenges. Key authorizations are never listed.
func (h *AdminHandler) ListChallenges(c *gin.Context) {
	list := h.registrar.List(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"challenges": list, "count": len(list)})
}

// GetChallenge handles GET /challenges/:domain.
func (h *AdminHandler) GetChallenge(c *gin.Context) {
	tok, err := h.registrar.Get(c.Request.Context(), c.Param("domain"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "challenge not found"})
		return
	}
	c.JSON(http.StatusOK, tok)
}

// RetireChallenge handles DELETE /challenges/:domain. Always 204.
func (h *AdminHandler) RetireChallenge(c *gin.Context) {
	h.registrar.Retire(c.Request.Context(), c.Param("domain"))
	c.Status(http.StatusNoContent)
}

// ttlFromSeconds converts ttl_seconds, saturating at the largest Duration so
// the registrar clamps oversized values instead of seeing a wrapped one.
func ttlFromSeconds(secs int64) time.Duration {
	if secs > maxTTLSeconds {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(secs) * time.Second
}
