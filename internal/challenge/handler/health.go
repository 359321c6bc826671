package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/acmeresponder/internal/reaper"
)

// liveCounter is satisfied by *store.MemoryStore.
type liveCounter interface {
	Live(now time.Time) int
	Len() int
}

// reaperStatus is satisfied by *reaper.Reaper.
type reaperStatus interface {
	Status() reaper.Status
	Healthy(now, started time.Time) bool
}

// HealthHandler reports liveness and reaper progress.
type HealthHandler struct {
	store   liveCounter
	reaper  reaperStatus
	started time.Time
	now     func() time.Time
}

// NewHealthHandler creates a HealthHandler. reaper may be nil when the reaper
// is disabled.
func NewHealthHandler(store liveCounter, r reaperStatus) *HealthHandler {
	return &HealthHandler{store: store, reaper: r, started: time.Now(), now: time.Now}
}

// Serve handles GET /healthz. It returns 503 when the reaper has stalled;
// lookups remain correct in that state but memory is no longer bounded.
func (h *HealthHandler) Serve(c *gin.Context) {
	now := h.now()
	live := h.store.Live(now)
	SetLiveChallenges(live)

	resp := gin.H{
		"status":          "ok",
		"live_challenges": live,
		"held_challenges": h.store.Len(),
	}
	code := http.StatusOK
	if h.reaper != nil {
		resp["reaper"] = h.reaper.Status()
		if !h.reaper.Healthy(now, h.started) {
			resp["status"] = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	c.JSON(code, resp)
}
