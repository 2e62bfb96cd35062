// Package engine drives bulk send sessions: one contact at a time, paced by
// the delay policy, with every outcome persisted before the next contact is
// touched.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bayy420-999/whatsapp-sender/internal/delay"
	"github.com/bayy420-999/whatsapp-sender/internal/domain"
	"github.com/bayy420-999/whatsapp-sender/internal/events"
	"github.com/bayy420-999/whatsapp-sender/internal/lock"
	"github.com/bayy420-999/whatsapp-sender/internal/messenger"
	"github.com/bayy420-999/whatsapp-sender/internal/observability"
	"github.com/bayy420-999/whatsapp-sender/internal/phone"
	"github.com/bayy420-999/whatsapp-sender/internal/session"
	"github.com/bayy420-999/whatsapp-sender/internal/store"
)

// Engine owns the sequential send loop. There is exactly one loop per
// session; separate sessions may run concurrently, each with its own
// tracker.
type Engine struct {
	messenger messenger.Messenger
	sessions  store.Store
	publisher events.Publisher
	locker    lock.Locker
	logger    *zap.Logger
	metrics   *observability.Metrics

	mu      sync.Mutex
	running map[string]*session.Tracker

	now      func() time.Time
	randIntn func(n int) int
	sleep    func(ctx context.Context, d time.Duration) error
}

func New(msgr messenger.Messenger, sessions store.Store, logger *zap.Logger) (*Engine, error) {
	if msgr == nil {
		return nil, fmt.Errorf("messenger is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		messenger: msgr,
		sessions:  sessions,
		publisher: events.NopPublisher{},
		logger:    logger,
		running:   map[string]*session.Tracker{},
		now:       time.Now,
		randIntn:  rand.Intn,
		sleep:     sleepWithContext,
	}, nil
}

func (e *Engine) SetMetrics(metrics *observability.Metrics) {
	if e == nil {
		return
	}
	e.metrics = metrics
}

func (e *Engine) SetPublisher(publisher events.Publisher) {
	if e == nil || publisher == nil {
		return
	}
	e.publisher = publisher
}

func (e *Engine) SetLocker(locker lock.Locker) {
	if e == nil {
		return
	}
	e.locker = locker
}

// Run is one prepared bulk send: a created, already-persisted session plus
// the inputs that will drive it. Callers that need the session id before the
// loop finishes (async HTTP starts) prepare first and execute later.
type Run struct {
	engine    *Engine
	tracker   *session.Tracker
	contacts  []domain.Contact
	templates []domain.MessageTemplate
	settings  domain.DelaySettings

	// lockID is the ownership key: the new session id for fresh runs, the
	// source session id for resumes. Two processes resuming the same source
	// would otherwise double-send its remaining contacts.
	lockID string

	// done is set when a resume found nothing left to send; Execute then
	// returns the already-terminal session without starting a loop.
	done *domain.BulkSendSession
}

func (r *Run) SessionID() string {
	if r.done != nil {
		return r.done.ID
	}
	return r.tracker.ID()
}

// Execute drives the prepared run to a terminal status.
func (r *Run) Execute(ctx context.Context) (domain.BulkSendSession, error) {
	if r.done != nil {
		return *r.done, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return r.engine.runLoop(ctx, r.tracker, r.lockID, r.contacts, r.templates, r.settings)
}

// Prepare validates the inputs and creates a fresh running session for them.
// Configuration failures are rejected here, before any session exists;
// per-contact failures later are recorded and never abort the loop.
func (e *Engine) Prepare(
	ctx context.Context,
	contacts []domain.Contact,
	templates []domain.MessageTemplate,
	settings domain.DelaySettings,
) (*Run, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := validateInputs(contacts, templates, settings); err != nil {
		return nil, err
	}

	tracker, err := session.New(ctx, e.sessions, len(contacts), settings, e.logger, e.metrics)
	if err != nil {
		return nil, err
	}

	return &Run{
		engine:    e,
		tracker:   tracker,
		contacts:  contacts,
		templates: templates,
		settings:  settings,
		lockID:    tracker.ID(),
	}, nil
}

// PrepareResume plans the remaining work of a persisted session and prepares
// a brand-new session over it, reusing the persisted pacing snapshot. If
// nothing remains, the persisted session itself is finalized as completed and
// the returned run is a no-op.
func (e *Engine) PrepareResume(
	ctx context.Context,
	sessionID string,
	contacts []domain.Contact,
	templates []domain.MessageTemplate,
) (*Run, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	persisted, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	remaining := session.PlanRemaining(persisted, contacts)
	if len(remaining) == 0 {
		finished, err := e.finalizeExhausted(ctx, persisted)
		if err != nil {
			return nil, err
		}
		return &Run{engine: e, done: &finished}, nil
	}

	if err := validateInputs(remaining, templates, persisted.DelaySettings); err != nil {
		return nil, err
	}

	tracker, err := session.New(ctx, e.sessions, len(remaining), persisted.DelaySettings, e.logger, e.metrics)
	if err != nil {
		return nil, err
	}

	e.logger.Info("resuming session as new run",
		zap.String("sessionId", persisted.ID),
		zap.String("newSessionId", tracker.ID()),
		zap.Int("remaining", len(remaining)),
	)

	return &Run{
		engine:    e,
		tracker:   tracker,
		contacts:  remaining,
		templates: templates,
		settings:  persisted.DelaySettings,
		lockID:    persisted.ID,
	}, nil
}

// Run prepares and executes a bulk send in one call.
func (e *Engine) Run(
	ctx context.Context,
	contacts []domain.Contact,
	templates []domain.MessageTemplate,
	settings domain.DelaySettings,
) (domain.BulkSendSession, error) {
	run, err := e.Prepare(ctx, contacts, templates, settings)
	if err != nil {
		return domain.BulkSendSession{}, err
	}
	return run.Execute(ctx)
}

// Resume prepares and executes a resume in one call.
func (e *Engine) Resume(
	ctx context.Context,
	sessionID string,
	contacts []domain.Contact,
	templates []domain.MessageTemplate,
) (domain.BulkSendSession, error) {
	run, err := e.PrepareResume(ctx, sessionID, contacts, templates)
	if err != nil {
		return domain.BulkSendSession{}, err
	}
	return run.Execute(ctx)
}

// Interrupt requests cooperative cancellation of a live run. The driver
// observes the request at the top of its next iteration.
func (e *Engine) Interrupt(sessionID string) error {
	e.mu.Lock()
	tracker, ok := e.running[sessionID]
	e.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: no running session %s", domain.ErrNotFound, sessionID)
	}

	tracker.MarkInterrupted()
	return nil
}

// InterruptAll flags every live run; shutdown handlers call this once.
func (e *Engine) InterruptAll() {
	e.mu.Lock()
	trackers := make([]*session.Tracker, 0, len(e.running))
	for _, tracker := range e.running {
		trackers = append(trackers, tracker)
	}
	e.mu.Unlock()

	for _, tracker := range trackers {
		tracker.MarkInterrupted()
	}
}

// IsRunning reports whether this process currently drives the session.
func (e *Engine) IsRunning(sessionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.running[sessionID]
	return ok
}

func (e *Engine) runLoop(
	ctx context.Context,
	tracker *session.Tracker,
	lockID string,
	contacts []domain.Contact,
	templates []domain.MessageTemplate,
	settings domain.DelaySettings,
) (domain.BulkSendSession, error) {
	sessionID := tracker.ID()
	logger := e.logger.With(zap.String("sessionId", sessionID))

	// Outcome persistence and the final transition must survive a canceled
	// run context.
	persistCtx := context.WithoutCancel(ctx)

	var handle lock.Handle
	if e.locker != nil {
		var err error
		handle, err = e.locker.Acquire(ctx, lockID)
		if err != nil {
			// The new session was already persisted as running; close it out
			// so it does not linger for the janitor.
			if _, finErr := tracker.Finalize(persistCtx, domain.SessionStatusInterrupted); finErr != nil {
				logger.Warn("failed to finalize unowned session", zap.Error(finErr))
			}
			return tracker.Session(), fmt.Errorf("failed to acquire session ownership: %w", err)
		}
		defer func() {
			if releaseErr := handle.Release(persistCtx); releaseErr != nil {
				logger.Warn("failed to release session ownership", zap.Error(releaseErr))
			}
		}()
	}

	e.register(sessionID, tracker)
	defer e.unregister(sessionID)

	logger.Info("bulk send started",
		zap.Int("contacts", len(contacts)),
		zap.Int("templates", len(templates)),
	)

	start := e.now()
	interrupted := false
	for i, contact := range contacts {
		// Cooperative cancellation: checked here and nowhere else. A send
		// already in flight is allowed to complete.
		if ctx.Err() != nil || tracker.Interrupted() {
			interrupted = true
			break
		}

		if handle != nil {
			if err := handle.Refresh(ctx); err != nil {
				logger.Warn("session ownership refresh failed", zap.Error(err))
			}
		}

		template := templates[e.randIntn(len(templates))]
		e.sendOne(persistCtx, tracker, contact, template, logger)

		if i < len(contacts)-1 {
			seconds := delay.Compute(i+1, settings, e.randIntn)
			if e.metrics != nil {
				e.metrics.ObserveAppliedDelay(seconds)
			}
			// A canceled wait just returns control to the loop top check.
			_ = e.sleep(ctx, time.Duration(seconds)*time.Second)
		}
	}

	finalStatus := domain.SessionStatusCompleted
	if interrupted {
		finalStatus = domain.SessionStatusInterrupted
	}

	summary, err := tracker.Finalize(persistCtx, finalStatus)
	if err != nil {
		return tracker.Session(), err
	}
	e.publishSessionEvent(persistCtx, summary, logger)

	fields := []zap.Field{
		zap.String("status", summary.Status.String()),
		zap.Int("total", summary.Total),
		zap.Int("completed", summary.Completed),
		zap.Int("failed", summary.Failed),
		zap.Int("pending", summary.Pending),
		zap.Duration("took", e.now().Sub(start)),
	}
	if summary.Failed > 0 {
		logger.Warn("bulk send finished with failures", fields...)
	} else {
		logger.Info("bulk send finished", fields...)
	}

	return tracker.Session(), nil
}

// sendOne handles steps 2-5 of the per-contact sequence: normalization,
// dispatch, and outcome recording. Failures are recorded, never returned.
func (e *Engine) sendOne(
	ctx context.Context,
	tracker *session.Tracker,
	contact domain.Contact,
	template domain.MessageTemplate,
	logger *zap.Logger,
) {
	address, err := phone.NormalizeAddress(contact.Phone)
	if err != nil {
		e.recordFailure(ctx, tracker, contact, template.Name, err, logger)
		return
	}

	sendStart := e.now()
	var messageID string
	if template.HasMedia() {
		messageID, err = e.sendMediaSequence(ctx, address, template)
	} else {
		messageID, err = e.messenger.SendText(ctx, address, template.Content)
	}
	if e.metrics != nil {
		e.metrics.ObserveSendDuration(e.now().Sub(sendStart))
	}

	if err != nil {
		e.recordFailure(ctx, tracker, contact, template.Name, err, logger)
		return
	}

	if recordErr := tracker.RecordOutcome(ctx, contact, template.Name, domain.ResultStatusSuccess, "", messageID); recordErr != nil {
		logger.Error("failed to record send success", zap.Error(recordErr))
		return
	}
	if e.metrics != nil {
		e.metrics.IncMessageSent()
	}
	e.publishOutcomeEvent(ctx, tracker.ID(), contact, template.Name, domain.ResultStatusSuccess, "", messageID, logger)
}

// sendMediaSequence delivers every media entry in template order. The first
// entry carries the template content as its caption and its message id is the
// one recorded for the outcome. A failure partway through fails the contact.
func (e *Engine) sendMediaSequence(ctx context.Context, address string, template domain.MessageTemplate) (string, error) {
	var firstID string
	for i, media := range template.Media {
		caption := ""
		if i == 0 {
			caption = template.Content
		}
		messageID, err := e.messenger.SendMedia(ctx, address, media, caption)
		if err != nil {
			return "", err
		}
		if i == 0 {
			firstID = messageID
		}
	}
	return firstID, nil
}

func (e *Engine) recordFailure(
	ctx context.Context,
	tracker *session.Tracker,
	contact domain.Contact,
	templateName string,
	sendErr error,
	logger *zap.Logger,
) {
	reason := failureReason(sendErr)
	category := messenger.CategoryOf(sendErr)

	logger.Warn("send failed",
		zap.String("phone", contact.Phone),
		zap.String("category", category.String()),
		zap.Error(sendErr),
	)

	if recordErr := tracker.RecordOutcome(ctx, contact, templateName, domain.ResultStatusFailed, reason, ""); recordErr != nil {
		logger.Error("failed to record send failure", zap.Error(recordErr))
		return
	}
	if e.metrics != nil {
		e.metrics.IncMessageFailed(category.String())
	}
	e.publishOutcomeEvent(ctx, tracker.ID(), contact, templateName, domain.ResultStatusFailed, reason, "", logger)
}

// finalizeExhausted handles a resume whose remaining set is empty: a crashed
// session still marked running is finalized as completed; an already
// terminal session is returned unchanged.
func (e *Engine) finalizeExhausted(ctx context.Context, persisted *domain.BulkSendSession) (domain.BulkSendSession, error) {
	if persisted.Status.IsTerminal() {
		e.logger.Info("resume found no remaining contacts",
			zap.String("sessionId", persisted.ID),
			zap.String("status", persisted.Status.String()),
		)
		return *persisted, nil
	}

	tracker, err := session.Adopt(persisted, e.sessions, e.logger, e.metrics)
	if err != nil {
		return domain.BulkSendSession{}, err
	}

	summary, err := tracker.Finalize(ctx, domain.SessionStatusCompleted)
	if err != nil {
		return tracker.Session(), err
	}
	e.publishSessionEvent(ctx, summary, e.logger)
	e.logger.Info("resume finalized exhausted session as completed",
		zap.String("sessionId", persisted.ID),
	)
	return tracker.Session(), nil
}

func (e *Engine) publishOutcomeEvent(
	ctx context.Context,
	sessionID string,
	contact domain.Contact,
	templateName string,
	status domain.ResultStatus,
	reason string,
	messageID string,
	logger *zap.Logger,
) {
	err := e.publisher.PublishOutcome(ctx, events.OutcomeEvent{
		SessionID: sessionID,
		Phone:     contact.Phone,
		Template:  templateName,
		Status:    status,
		Error:     reason,
		MessageID: messageID,
		Timestamp: e.now().UTC(),
	})
	if err != nil {
		logger.Warn("failed to publish outcome event", zap.Error(err))
	}
}

func (e *Engine) publishSessionEvent(ctx context.Context, summary session.Summary, logger *zap.Logger) {
	err := e.publisher.PublishSession(ctx, events.SessionEvent{
		SessionID: summary.SessionID,
		Status:    summary.Status,
		Total:     summary.Total,
		Completed: summary.Completed,
		Failed:    summary.Failed,
		Pending:   summary.Pending,
		Timestamp: e.now().UTC(),
	})
	if err != nil {
		logger.Warn("failed to publish session event", zap.Error(err))
	}
}

func (e *Engine) register(sessionID string, tracker *session.Tracker) {
	e.mu.Lock()
	e.running[sessionID] = tracker
	e.mu.Unlock()
}

func (e *Engine) unregister(sessionID string) {
	e.mu.Lock()
	delete(e.running, sessionID)
	e.mu.Unlock()
}

func validateInputs(
	contacts []domain.Contact,
	templates []domain.MessageTemplate,
	settings domain.DelaySettings,
) error {
	if len(contacts) == 0 {
		return fmt.Errorf("%w: contact list is empty", domain.ErrValidation)
	}
	if len(templates) == 0 {
		return fmt.Errorf("%w: template list is empty", domain.ErrValidation)
	}
	for i, contact := range contacts {
		if err := contact.Validate(); err != nil {
			return fmt.Errorf("contact %d: %w", i, err)
		}
	}
	for i, template := range templates {
		if err := template.Validate(); err != nil {
			return fmt.Errorf("template %d: %w", i, err)
		}
	}
	return settings.Validate()
}

func failureReason(err error) string {
	if err == nil {
		return ""
	}
	var sendErr *messenger.SendError
	if errors.As(err, &sendErr) {
		return sendErr.Reason()
	}
	return err.Error()
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
