package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/bayy420-999/whatsapp-sender/internal/domain"
	"github.com/bayy420-999/whatsapp-sender/internal/engine"
	"github.com/bayy420-999/whatsapp-sender/internal/store"
)

// BlastEngine is the driver surface the HTTP layer depends on.
type BlastEngine interface {
	Prepare(ctx context.Context, contacts []domain.Contact, templates []domain.MessageTemplate, settings domain.DelaySettings) (*engine.Run, error)
	PrepareResume(ctx context.Context, sessionID string, contacts []domain.Contact, templates []domain.MessageTemplate) (*engine.Run, error)
	Interrupt(sessionID string) error
	IsRunning(sessionID string) bool
}

type SessionHandler struct {
	engine   BlastEngine
	sessions store.Store
	defaults domain.DelaySettings
	logger   *zap.Logger

	// runCtx outlives individual requests; started blasts are canceled by
	// process shutdown, not by the HTTP client going away.
	runCtx context.Context
}

func NewSessionHandler(
	runCtx context.Context,
	blastEngine BlastEngine,
	sessions store.Store,
	defaults domain.DelaySettings,
	logger *zap.Logger,
) (*SessionHandler, error) {
	if blastEngine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if runCtx == nil {
		runCtx = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SessionHandler{
		engine:   blastEngine,
		sessions: sessions,
		defaults: defaults,
		logger:   logger,
		runCtx:   runCtx,
	}, nil
}

func RegisterSessionRoutes(
	router fiber.Router,
	runCtx context.Context,
	blastEngine BlastEngine,
	sessions store.Store,
	defaults domain.DelaySettings,
	logger *zap.Logger,
) error {
	h, err := NewSessionHandler(runCtx, blastEngine, sessions, defaults, logger)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/blasts", h.StartBlast)
	v1.Post("/blasts/:id/resume", h.ResumeBlast)
	v1.Get("/sessions", h.ListSessions)
	v1.Get("/sessions/:id", h.GetSession)
	v1.Delete("/sessions/:id", h.DeleteSession)
	v1.Post("/sessions/:id/interrupt", h.InterruptSession)
	v1.Post("/sessions/export", h.ExportSessions)

	return nil
}

type startBlastRequest struct {
	Contacts      []domain.Contact         `json:"contacts"`
	Templates     []domain.MessageTemplate `json:"templates"`
	DelaySettings *domain.DelaySettings    `json:"delaySettings,omitempty"`
}

type resumeBlastRequest struct {
	Contacts  []domain.Contact         `json:"contacts"`
	Templates []domain.MessageTemplate `json:"templates"`
}

type blastAcceptedResponse struct {
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
	Total     int    `json:"totalContacts,omitempty"`
}

type sessionSummaryResponse struct {
	ID                string     `json:"id"`
	StartTime         time.Time  `json:"startTime"`
	EndTime           *time.Time `json:"endTime,omitempty"`
	Status            string     `json:"status"`
	TotalContacts     int        `json:"totalContacts"`
	CompletedContacts int        `json:"completedContacts"`
	FailedContacts    int        `json:"failedContacts"`
	PendingContacts   int        `json:"pendingContacts"`
	Running           bool       `json:"running"`
}

type listSessionsResponse struct {
	Data []sessionSummaryResponse `json:"data"`
}

type exportSessionsRequest struct {
	Path string `json:"path"`
}

// StartBlast validates the payload, creates the session, and drives the send
// loop in the background. The response carries the session id so the caller
// can poll progress.
func (h *SessionHandler) StartBlast(c *fiber.Ctx) error {
	var req startBlastRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	settings := h.defaults
	if req.DelaySettings != nil {
		settings = *req.DelaySettings
	}

	run, err := h.engine.Prepare(c.Context(), req.Contacts, req.Templates, settings)
	if err != nil {
		return toHTTPError(err)
	}

	h.launch(run)

	return c.Status(fiber.StatusAccepted).JSON(blastAcceptedResponse{
		SessionID: run.SessionID(),
		Status:    domain.SessionStatusRunning.String(),
		Total:     len(req.Contacts),
	})
}

// ResumeBlast continues an earlier session as a new one, sending only the
// contacts that have no recorded result yet.
func (h *SessionHandler) ResumeBlast(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))

	var req resumeBlastRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	run, err := h.engine.PrepareResume(c.Context(), id, req.Contacts, req.Templates)
	if err != nil {
		return toHTTPError(err)
	}

	h.launch(run)

	return c.Status(fiber.StatusAccepted).JSON(blastAcceptedResponse{
		SessionID: run.SessionID(),
		Status:    domain.SessionStatusRunning.String(),
	})
}

func (h *SessionHandler) ListSessions(c *fiber.Ctx) error {
	sessions, err := h.sessions.LoadAll(c.Context())
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]sessionSummaryResponse, 0, len(sessions))
	for i := range sessions {
		data = append(data, h.toSummaryResponse(&sessions[i]))
	}

	return c.Status(fiber.StatusOK).JSON(listSessionsResponse{Data: data})
}

func (h *SessionHandler) GetSession(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	session, err := h.sessions.Get(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	// Full snapshot including the result log.
	return c.Status(fiber.StatusOK).JSON(session)
}

func (h *SessionHandler) DeleteSession(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if h.engine.IsRunning(id) {
		return toHTTPError(fmt.Errorf("%w: session %s is still running", domain.ErrConflict, id))
	}

	if err := h.sessions.Delete(c.Context(), id); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"sessionId": id,
		"deleted":   true,
	})
}

func (h *SessionHandler) InterruptSession(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if err := h.engine.Interrupt(id); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"sessionId": id,
		"status":    domain.SessionStatusInterrupted.String(),
	})
}

func (h *SessionHandler) ExportSessions(c *fiber.Ctx) error {
	var req exportSessionsRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	path := strings.TrimSpace(req.Path)
	if path == "" {
		return toHTTPError(fmt.Errorf("%w: export path is required", domain.ErrValidation))
	}

	if err := h.sessions.ExportAll(c.Context(), path); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"path": path,
	})
}

func (h *SessionHandler) launch(run *engine.Run) {
	go func() {
		if _, err := run.Execute(h.runCtx); err != nil {
			h.logger.Error("background blast failed",
				zap.String("sessionId", run.SessionID()),
				zap.Error(err),
			)
		}
	}()
}

func (h *SessionHandler) toSummaryResponse(s *domain.BulkSendSession) sessionSummaryResponse {
	return sessionSummaryResponse{
		ID:                s.ID,
		StartTime:         s.StartTime,
		EndTime:           s.EndTime,
		Status:            s.Status.String(),
		TotalContacts:     s.TotalContacts,
		CompletedContacts: s.CompletedContacts,
		FailedContacts:    s.FailedContacts,
		PendingContacts:   s.PendingContacts,
		Running:           h.engine.IsRunning(s.ID),
	}
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrSessionFinished):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
