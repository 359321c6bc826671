package service

import (
	"context"

	"go.uber.org/zap"
)

// Responder answers inbound HTTP-01 validation requests. It holds no state of
// its own and is safe for concurrent use.
type Responder struct {
	store         tokenStore
	maxPathLength int
	metrics       MetricsRecorder
	logger        *zap.Logger
}

// NewResponder creates a Responder reading from st. maxPathLength should match
// the registrar's; zero uses DefaultMaxPathLength.
func NewResponder(st tokenStore, maxPathLength int, logger *zap.Logger) *Responder {
	if maxPathLength <= 0 {
		maxPathLength = DefaultMaxPathLength
	}
	return &Responder{
		store:         st,
		maxPathLength: maxPathLength,
		metrics:       noopRecorder{},
		logger:        logger,
	}
}

// SetMetricsRecord configures the metrics recorder.
func (r *Responder) SetMetricsRecord(m MetricsRecorder) {
	if m == nil {
		m = noopRecorder{}
	}
	r.metrics = m
}

// Respond returns the exact key authorization registered for path.
// Malformed, unknown, expired and retired paths all yield ErrNotFound.
func (r *Responder) Respond(ctx context.Context, path string) ([]byte, error) {
	if !ValidPath(path, r.maxPathLength) {
		r.metrics.RecordLookup(false)
		r.logger.Debug("challenge lookup rejected", zap.Int("path_len", len(path)))
		return nil, ErrNotFound
	}

	tok, ok := r.store.Get(path)
	if !ok {
		r.metrics.RecordLookup(false)
		r.logger.Debug("challenge lookup miss", zap.String("verification_path", path))
		return nil, ErrNotFound
	}

	r.metrics.RecordLookup(true)
	r.logger.Info("challenge served",
		zap.String("id", tok.ID.String()),
		zap.String("domain", tok.Domain),
	)
	return []byte(tok.KeyAuthorization), nil
}
