// Package session owns the bulk send session lifecycle: creation, outcome
// recording, terminal transitions, and the persistence that follows every
// mutation.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bayy420-999/whatsapp-sender/internal/domain"
	"github.com/bayy420-999/whatsapp-sender/internal/observability"
	"github.com/bayy420-999/whatsapp-sender/internal/store"
)

// Summary is handed to the caller after a terminal transition; rendering it
// is the caller's concern.
type Summary struct {
	SessionID string
	Status    domain.SessionStatus
	Total     int
	Completed int
	Failed    int
	Pending   int
}

// Tracker is the exclusive owner of one in-memory session for the duration
// of a run. All mutations go through it, and each mutation is followed by a
// full-snapshot save. A failed save is logged and counted but never aborts
// the run; the in-memory state stays authoritative until the next
// successful write.
type Tracker struct {
	mu          sync.Mutex
	session     *domain.BulkSendSession
	interrupted bool

	store   store.Store
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// New creates a fresh running session, persists it immediately, and returns
// its tracker.
func New(
	ctx context.Context,
	sessions store.Store,
	totalContacts int,
	settings domain.DelaySettings,
	logger *zap.Logger,
	metrics *observability.Metrics,
) (*Tracker, error) {
	if sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if totalContacts <= 0 {
		return nil, fmt.Errorf("%w: session needs at least one contact", domain.ErrValidation)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	t := &Tracker{
		store:   sessions,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
	now := t.now().UTC()
	t.session = &domain.BulkSendSession{
		ID:              newSessionID(now),
		StartTime:       now,
		TotalContacts:   totalContacts,
		PendingContacts: totalContacts,
		Results:         []domain.SendResult{},
		Status:          domain.SessionStatusRunning,
		DelaySettings:   settings,
	}

	t.persist(ctx)
	return t, nil
}

// Adopt wraps an already-persisted session so it can be finalized through
// the same entry points a live run uses (janitor and empty-resume paths).
func Adopt(
	session *domain.BulkSendSession,
	sessions store.Store,
	logger *zap.Logger,
	metrics *observability.Metrics,
) (*Tracker, error) {
	if session == nil {
		return nil, fmt.Errorf("%w: session is required", domain.ErrValidation)
	}
	if sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Tracker{
		session: session,
		store:   sessions,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}, nil
}

func (t *Tracker) ID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session.ID
}

// Session returns a snapshot copy of the current state. The results slice is
// copied so callers cannot mutate the log.
func (t *Tracker) Session() domain.BulkSendSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// RecordOutcome appends one send result and moves one contact from pending
// to completed or failed. Only valid while the session is running.
func (t *Tracker) RecordOutcome(
	ctx context.Context,
	contact domain.Contact,
	template string,
	status domain.ResultStatus,
	sendErr string,
	messageID string,
) error {
	if !status.IsValid() {
		return fmt.Errorf("%w: invalid result status %q", domain.ErrValidation, status)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.session.Status != domain.SessionStatusRunning {
		return fmt.Errorf("%w: cannot record outcome in status %s", domain.ErrSessionFinished, t.session.Status)
	}
	if t.session.PendingContacts <= 0 {
		return fmt.Errorf("%w: no pending contacts left", domain.ErrConflict)
	}

	t.session.Results = append(t.session.Results, domain.SendResult{
		Contact:   contact,
		Template:  template,
		Status:    status,
		Timestamp: t.now().UTC(),
		Error:     sendErr,
		MessageID: messageID,
	})
	t.session.PendingContacts--
	if status == domain.ResultStatusSuccess {
		t.session.CompletedContacts++
	} else {
		t.session.FailedContacts++
	}

	t.persistLocked(ctx)
	return nil
}

// Finalize moves the session into a terminal status, stamps EndTime, and
// persists. Finalizing an already-interrupted session as interrupted is a
// no-op on status (the driver loop lands here after MarkInterrupted); any
// other transition out of a terminal state is a conflict.
func (t *Tracker) Finalize(ctx context.Context, status domain.SessionStatus) (Summary, error) {
	if !status.IsTerminal() {
		return Summary{}, fmt.Errorf("%w: %s is not a terminal status", domain.ErrValidation, status)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.session.Status.IsTerminal() && t.session.Status != status {
		return Summary{}, fmt.Errorf("%w: session already finalized as %s", domain.ErrConflict, t.session.Status)
	}

	t.session.Status = status
	if t.session.EndTime == nil {
		end := t.now().UTC()
		t.session.EndTime = &end
	}

	t.persistLocked(ctx)
	if t.metrics != nil {
		t.metrics.IncSessionFinished(status.String())
	}

	return Summary{
		SessionID: t.session.ID,
		Status:    t.session.Status,
		Total:     t.session.TotalContacts,
		Completed: t.session.CompletedContacts,
		Failed:    t.session.FailedContacts,
		Pending:   t.session.PendingContacts,
	}, nil
}

// MarkInterrupted requests cancellation. The driver observes the flag
// cooperatively at the top of its loop, so an in-flight send still completes
// and records its outcome before the session transitions. Safe to call from
// a signal handler goroutine; idempotent.
func (t *Tracker) MarkInterrupted() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.interrupted || t.session.Status.IsTerminal() {
		return
	}

	t.interrupted = true
	t.logger.Info("session interruption requested",
		zap.String("sessionId", t.session.ID),
		zap.Int("pending", t.session.PendingContacts),
	)
}

// Interrupted reports whether an interruption has been requested or applied.
func (t *Tracker) Interrupted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interrupted || t.session.Status == domain.SessionStatusInterrupted
}

func (t *Tracker) persist(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.persistLocked(ctx)
}

func (t *Tracker) persistLocked(ctx context.Context) {
	snapshot := t.snapshotLocked()
	if err := t.store.Save(ctx, &snapshot); err != nil {
		t.logger.Warn("session persist failed, keeping in-memory state authoritative",
			zap.String("sessionId", t.session.ID),
			zap.Error(err),
		)
		if t.metrics != nil {
			t.metrics.IncPersistFailure()
		}
	}
}

func (t *Tracker) snapshotLocked() domain.BulkSendSession {
	cp := *t.session
	cp.Results = make([]domain.SendResult, len(t.session.Results))
	copy(cp.Results, t.session.Results)
	return cp
}

// newSessionID builds the session identifier from the creation time plus a
// random suffix.
func newSessionID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("session_%d_%s", now.UnixMilli(), suffix)
}
