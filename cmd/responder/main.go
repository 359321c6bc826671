package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/acmeresponder/internal/auth"
	"github.com/jmerrifield20/acmeresponder/internal/challenge/handler"
	"github.com/jmerrifield20/acmeresponder/internal/challenge/service"
	"github.com/jmerrifield20/acmeresponder/internal/challenge/store"
	"github.com/jmerrifield20/acmeresponder/internal/reaper"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Fatal("responder exited with error", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	// ── Configuration ────────────────────────────────────────────────────────
	cfg, err := loadConfig(viper.New())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Wire up layers ────────────────────────────────────────────────────────
	st := store.NewMemoryStore()
	metrics := handler.PrometheusRecorder{}

	registrar := service.NewRegistrar(st, service.Config{
		DefaultTTL:    cfg.DefaultTTL,
		MaxTTL:        cfg.MaxTTL,
		MaxLive:       cfg.MaxLive,
		MaxPathLength: cfg.MaxPathLength,
	}, logger)
	registrar.SetMetricsRecord(metrics)

	policy := registrar.Config()
	logger.Info("challenge policy",
		zap.Duration("default_ttl", policy.DefaultTTL),
		zap.Duration("max_ttl", policy.MaxTTL),
		zap.Int("max_live", policy.MaxLive),
		zap.Int("max_path_length", policy.MaxPathLength),
	)

	responder := service.NewResponder(st, cfg.MaxPathLength, logger)
	responder.SetMetricsRecord(metrics)

	rp := reaper.New(st, reaper.Config{Interval: cfg.ReaperInterval}, logger)
	rp.SetMetricsRecord(func(removed int, at time.Time) {
		handler.RecordSweep(removed, at)
		handler.SetLiveChallenges(st.Live(at))
	})
	go rp.Start(ctx)

	var tokens *auth.TokenIssuer
	if cfg.AdminJWTSecret != "" {
		tokens, err = auth.NewTokenIssuer(cfg.AdminJWTSecret, 0)
		if err != nil {
			return fmt.Errorf("admin auth: %w", err)
		}
	} else {
		logger.Warn("admin API authentication disabled; set admin.jwt_secret and keep admin.addr private")
	}

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	// ── Public router (CA validators) ─────────────────────────────────────────
	public := gin.New()
	public.Use(gin.Recovery())
	public.Use(securityHeaders())
	if cfg.RateLimitRPS > 0 {
		public.Use(handler.RateLimiter(ctx, cfg.RateLimitRPS, cfg.RateLimitRPS*2))
	}
	public.Use(handler.PrometheusMiddleware())
	public.Use(requestLogger(logger))

	health := handler.NewHealthHandler(st, rp)
	public.GET("/healthz", health.Serve)

	challengeHandler := handler.NewChallengeHandler(responder, logger)
	challengeHandler.Register(public)
	public.NoRoute(challengeHandler.NotFound)

	// ── Admin router (orchestrator control path) ──────────────────────────────
	admin := gin.New()
	admin.Use(gin.Recovery())
	if len(cfg.AdminCORS) > 0 {
		admin.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.AdminCORS,
			AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
			AllowCredentials: !containsWildcard(cfg.AdminCORS),
			MaxAge:           12 * time.Hour,
		}))
	}
	admin.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 1<<16)
		c.Next()
	})
	admin.Use(requestLogger(logger))

	admin.GET("/healthz", health.Serve)
	admin.GET("/metrics", handler.MetricsHandler())
	v1 := admin.Group("/api/v1", auth.RequireToken(tokens))
	handler.NewAdminHandler(registrar, logger).Register(v1)

	publicSrv := &http.Server{
		Addr:              cfg.PublicAddr,
		Handler:           public,
		ReadHeaderTimeout: 10 * time.Second,
	}
	adminSrv := &http.Server{
		Addr:              cfg.AdminAddr,
		Handler:           admin,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	for name, srv := range map[string]*http.Server{"public": publicSrv, "admin": adminSrv} {
		go func(name string, srv *http.Server) {
			logger.Info("responder listening", zap.String("listener", name), zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("%s listener: %w", name, err)
			}
		}(name, srv)
	}

	// ── Graceful shutdown ──────────────────────────────────────────────────────
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down responder...")
	case runErr = <-errCh:
		logger.Error("listener failed; shutting down", zap.Error(runErr))
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := publicSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("public shutdown error", zap.Error(err))
	}
	if err := adminSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("admin shutdown error", zap.Error(err))
	}

	logger.Info("responder stopped; pending challenges discarded", zap.Int("held", st.Len()))
	return runErr
}

// securityHeaders sets conservative response headers on the public listener.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Next()
	}
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

// requestLogger returns a Gin middleware that logs each request with zap.
// The challenge token itself is not logged at Info; c.FullPath is the route pattern.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
