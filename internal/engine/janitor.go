package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bayy420-999/whatsapp-sender/internal/domain"
	"github.com/bayy420-999/whatsapp-sender/internal/observability"
	"github.com/bayy420-999/whatsapp-sender/internal/session"
	"github.com/bayy420-999/whatsapp-sender/internal/store"
)

const (
	defaultJanitorInterval = time.Minute
	defaultStaleAfter      = 10 * time.Minute
)

// Janitor periodically finalizes sessions a crashed driver left behind in the
// running status. A session is considered stale when it has been running
// longer than staleAfter and no driver in this process owns it.
type Janitor struct {
	engine   *Engine
	sessions store.Store
	logger   *zap.Logger
	metrics  *observability.Metrics

	interval   time.Duration
	staleAfter time.Duration
	now        func() time.Time
}

func NewJanitor(
	engine *Engine,
	sessions store.Store,
	interval time.Duration,
	staleAfter time.Duration,
	logger *zap.Logger,
	metrics *observability.Metrics,
) (*Janitor, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if interval <= 0 {
		interval = defaultJanitorInterval
	}
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Janitor{
		engine:     engine,
		sessions:   sessions,
		logger:     logger,
		metrics:    metrics,
		interval:   interval,
		staleAfter: staleAfter,
		now:        time.Now,
	}, nil
}

func (j *Janitor) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Run an initial sweep so leftovers from a previous crash are finalized
	// before the first ticker edge.
	if err := j.sweep(ctx); err != nil && ctx.Err() == nil {
		j.logger.Error("janitor initial sweep failed", zap.Error(err))
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := j.sweep(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				j.logger.Error("janitor sweep failed", zap.Error(err))
			}
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) error {
	sessions, err := j.sessions.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load sessions: %w", err)
	}

	cutoff := j.now().UTC().Add(-j.staleAfter)
	for i := range sessions {
		s := sessions[i]
		if s.Status != domain.SessionStatusRunning {
			continue
		}
		if !s.StartTime.Before(cutoff) {
			continue
		}
		if j.engine.IsRunning(s.ID) {
			continue
		}

		tracker, err := session.Adopt(&s, j.sessions, j.logger, j.metrics)
		if err != nil {
			j.logger.Error("failed to adopt stale session",
				zap.String("sessionId", s.ID),
				zap.Error(err),
			)
			continue
		}

		summary, err := tracker.Finalize(ctx, domain.SessionStatusInterrupted)
		if err != nil {
			j.logger.Error("failed to finalize stale session",
				zap.String("sessionId", s.ID),
				zap.Error(err),
			)
			continue
		}

		j.logger.Info("finalized stale session as interrupted",
			zap.String("sessionId", summary.SessionID),
			zap.Int("pending", summary.Pending),
			zap.Time("startedAt", s.StartTime),
		)
	}

	return nil
}
