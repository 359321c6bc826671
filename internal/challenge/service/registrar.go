package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/acmeresponder/internal/challenge/model"
	"github.com/jmerrifield20/acmeresponder/internal/challenge/store"
	"go.uber.org/zap"
)

// tokenStore is the storage interface required by the registrar and responder.
// *store.MemoryStore satisfies this interface.
type tokenStore interface {
	PutWithLimit(tok *model.Token, maxLive int) error
	Get(path string) (*model.Token, bool)
	GetByDomain(domain string) (*model.Token, bool)
	RemoveByDomain(domain string) *model.Token
	List() []model.Token
	Now() time.Time
}

// MetricsRecorder receives challenge lifecycle events.
type MetricsRecorder interface {
	RecordRegistration(outcome string)
	RecordRetirement(found bool)
	RecordLookup(hit bool)
}

type noopRecorder struct{}

func (noopRecorder) RecordRegistration(string) {}
func (noopRecorder) RecordRetirement(bool)     {}
func (noopRecorder) RecordLookup(bool)         {}

// Config holds registrar policy. Zero values fall back to defaults.
type Config struct {
	DefaultTTL    time.Duration
	MaxTTL        time.Duration
	MaxLive       int
	MaxPathLength int
}

const (
	DefaultTTL     = 5 * time.Minute
	DefaultMaxTTL  = time.Hour
	DefaultMaxLive = 1000
)

// RegisterRequest is the orchestrator's input to Register.
type RegisterRequest struct {
	Domain           string
	VerificationPath string
	KeyAuthorization string
	TTL              time.Duration
}

// Registrar creates and retires HTTP-01 challenges.
type Registrar struct {
	store   tokenStore
	cfg     Config
	metrics MetricsRecorder
	logger  *zap.Logger
}

// NewRegistrar creates a Registrar backed by st.
func NewRegistrar(st tokenStore, cfg Config, logger *zap.Logger) *Registrar {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultTTL
	}
	if cfg.MaxTTL <= 0 {
		cfg.MaxTTL = DefaultMaxTTL
	}
	if cfg.DefaultTTL > cfg.MaxTTL {
		cfg.DefaultTTL = cfg.MaxTTL
	}
	if cfg.MaxLive <= 0 {
		cfg.MaxLive = DefaultMaxLive
	}
	if cfg.MaxPathLength <= 0 {
		cfg.MaxPathLength = DefaultMaxPathLength
	}
	return &Registrar{store: st, cfg: cfg, metrics: noopRecorder{}, logger: logger}
}

// SetMetricsRecord configures the metrics recorder.
func (r *Registrar) SetMetricsRecord(m MetricsRecorder) {
	if m == nil {
		m = noopRecorder{}
	}
	r.metrics = m
}

// Config returns the effective registrar policy.
func (r *Registrar) Config() Config { return r.cfg }

// Register validates req and makes it the single live challenge for its
// domain. Any earlier challenge for the domain stops being served before
// Register returns.
func (r *Registrar) Register(ctx context.Context, req RegisterRequest) (*model.Token, error) {
	if !ValidPath(req.VerificationPath, r.cfg.MaxPathLength) {
		r.metrics.RecordRegistration("invalid")
		return nil, ErrInvalidPath
	}
	domain, err := NormalizeDomain(req.Domain)
	if err != nil {
		r.metrics.RecordRegistration("invalid")
		return nil, err
	}
	if !validKeyAuthorization(req.KeyAuthorization) {
		r.metrics.RecordRegistration("invalid")
		return nil, ErrInvalidKeyAuthorization
	}

	ttl := req.TTL
	if ttl <= 0 {
		ttl = r.cfg.DefaultTTL
	}
	if ttl > r.cfg.MaxTTL {
		r.logger.Debug("challenge TTL clamped",
			zap.String("domain", domain),
			zap.Duration("requested", ttl),
			zap.Duration("max", r.cfg.MaxTTL),
		)
		ttl = r.cfg.MaxTTL
	}

	now := r.store.Now()
	tok := &model.Token{
		ID:               uuid.New(),
		VerificationPath: req.VerificationPath,
		KeyAuthorization: req.KeyAuthorization,
		Domain:           domain,
		Status:           model.StatusPending,
		CreatedAt:        now,
		Deadline:         now.Add(ttl),
	}

	if err := r.store.PutWithLimit(tok, r.cfg.MaxLive); err != nil {
		switch {
		case errors.Is(err, store.ErrCapacityExceeded):
			r.metrics.RecordRegistration("capacity_exceeded")
			r.logger.Warn("challenge capacity exceeded",
				zap.String("domain", domain),
				zap.Int("max_live", r.cfg.MaxLive),
			)
			return nil, ErrCapacityExceeded
		case errors.Is(err, store.ErrDuplicatePath):
			r.metrics.RecordRegistration("duplicate_path")
			r.logger.Error("verification path collision; orchestrator tokens lack entropy",
				zap.String("domain", domain),
				zap.String("verification_path", req.VerificationPath),
			)
			return nil, ErrDuplicatePath
		default:
			r.metrics.RecordRegistration("error")
			return nil, fmt.Errorf("store challenge: %w", err)
		}
	}

	r.metrics.RecordRegistration("ok")
	r.logger.Info("challenge registered",
		zap.String("id", tok.ID.String()),
		zap.String("domain", domain),
		zap.String("verification_path", tok.VerificationPath),
		zap.Time("deadline", tok.Deadline),
	)
	return tok, nil
}

// Retire stops serving the live challenge for domain. Retiring a domain with
// nothing registered is a no-op.
func (r *Registrar) Retire(ctx context.Context, domain string) {
	d, err := NormalizeDomain(domain)
	if err != nil {
		// Nothing with an invalid domain can have been registered.
		r.metrics.RecordRetirement(false)
		return
	}
	removed := r.store.RemoveByDomain(d)
	r.metrics.RecordRetirement(removed != nil)
	if removed != nil {
		r.logger.Info("challenge retired",
			zap.String("id", removed.ID.String()),
			zap.String("domain", d),
			zap.String("verification_path", removed.VerificationPath),
		)
	}
}

// Get returns the live challenge for domain.
func (r *Registrar) Get(ctx context.Context, domain string) (*model.Token, error) {
	d, err := NormalizeDomain(domain)
	if err != nil {
		return nil, ErrNotFound
	}
	tok, ok := r.store.GetByDomain(d)
	if !ok {
		return nil, ErrNotFound
	}
	return tok, nil
}

// List returns every live challenge.
func (r *Registrar) List(ctx context.Context) []model.Token {
	return r.store.List()
}
