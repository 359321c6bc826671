package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/acmeresponder/internal/challenge/handler"
	"github.com/jmerrifield20/acmeresponder/internal/challenge/service"
	"github.com/jmerrifield20/acmeresponder/internal/challenge/store"
	"go.uber.org/zap"
)

// ── Setup ────────────────────────────────────────────────────────────────

type testEnv struct {
	now       time.Time
	store     *store.MemoryStore
	registrar *service.Registrar
	public    *gin.Engine
	admin     *gin.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{now: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)}
	env.store = store.NewMemoryStore(store.WithClock(func() time.Time { return env.now }))
	env.registrar = service.NewRegistrar(env.store, service.Config{MaxLive: 2}, zap.NewNop())
	responder := service.NewResponder(env.store, 0, zap.NewNop())

	env.public = gin.New()
	ch := handler.NewChallengeHandler(responder, zap.NewNop())
	ch.Register(env.public)
	env.public.NoRoute(ch.NotFound)

	env.admin = gin.New()
	handler.NewAdminHandler(env.registrar, zap.NewNop()).Register(env.admin.Group("/api/v1"))
	return env
}

func (e *testEnv) mustRegister(t *testing.T, domain, path, auth string) {
	t.Helper()
	_, err := e.registrar.Register(context.Background(), service.RegisterRequest{
		Domain: domain, VerificationPath: path, KeyAuthorization: auth, TTL: 5 * time.Minute,
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
}

func get(r http.Handler, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ── Tests ────────────────────────────────────────────────────────────────

func TestServe_hitReturnsExactBody(t *testing.T) {
	env := newTestEnv(t)
	env.mustRegister(t, "example.com", "abc123XYZ", "abc123XYZ.thumb")

	for _, prefix := range []string{handler.WellKnownPrefix, handler.ShortPrefix} {
		w := get(env.public, http.MethodGet, prefix+"/abc123XYZ")
		if w.Code != http.StatusOK {
			t.Fatalf("%s: status %d, want 200", prefix, w.Code)
		}
		if got := w.Body.String(); got != "abc123XYZ.thumb" {
			t.Errorf("%s: body %q, want exact key authorization", prefix, got)
		}
		if ct := w.Header().Get("Content-Type"); ct != "application/octet-stream" {
			t.Errorf("%s: Content-Type %q", prefix, ct)
		}
	}
}

func TestServe_uniformNotFound(t *testing.T) {
	env := newTestEnv(t)
	env.mustRegister(t, "expired.example.com", "expiredtok", "expiredtok.thumb")
	env.mustRegister(t, "retired.example.com", "retiredtok", "retiredtok.thumb")
	env.registrar.Retire(context.Background(), "retired.example.com")
	env.now = env.now.Add(10 * time.Minute)

	var bodies []string
	for _, p := range []string{"expiredtok", "retiredtok", "nevertok", "bad.path"} {
		w := get(env.public, http.MethodGet, handler.WellKnownPrefix+"/"+p)
		if w.Code != http.StatusNotFound {
			t.Errorf("%s: status %d, want 404", p, w.Code)
		}
		bodies = append(bodies, w.Body.String())
	}
	for _, b := range bodies[1:] {
		if b != bodies[0] {
			t.Errorf("404 bodies differ: %q vs %q", b, bodies[0])
		}
	}
}

func TestServe_traversalNeverRoutes(t *testing.T) {
	env := newTestEnv(t)
	env.mustRegister(t, "example.com", "abc", "abc.thumb")

	w := get(env.public, http.MethodGet, handler.WellKnownPrefix+"/abc/../abc")
	if w.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", w.Code)
	}
	if w.Body.String() != "not found" {
		t.Errorf("body: got %q, want the generic 404", w.Body.String())
	}
}

func TestServe_head(t *testing.T) {
	env := newTestEnv(t)
	env.mustRegister(t, "example.com", "abc", "abc.thumb")

	w := get(env.public, http.MethodHead, handler.WellKnownPrefix+"/abc")
	if w.Code != http.StatusOK {
		t.Errorf("HEAD status: got %d, want 200", w.Code)
	}
}
