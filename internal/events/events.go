// Package events fans per-outcome and per-session audit events out to a
// message broker. Publishing is best-effort: the send driver logs publish
// failures and keeps going.
package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bayy420-999/whatsapp-sender/internal/domain"
)

const (
	// OutcomeQueueName carries one event per recorded send result.
	OutcomeQueueName = "blast.outcomes"
	// SessionQueueName carries one event per terminal session transition.
	SessionQueueName = "blast.sessions"
)

// OutcomeEvent mirrors a recorded SendResult for downstream audit consumers.
type OutcomeEvent struct {
	SessionID string              `json:"sessionId"`
	Phone     string              `json:"phone"`
	Template  string              `json:"template"`
	Status    domain.ResultStatus `json:"status"`
	Error     string              `json:"error,omitempty"`
	MessageID string              `json:"messageId,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

func (e OutcomeEvent) Validate() error {
	if strings.TrimSpace(e.SessionID) == "" {
		return fmt.Errorf("sessionId is required")
	}
	if strings.TrimSpace(e.Phone) == "" {
		return fmt.Errorf("phone is required")
	}
	if !e.Status.IsValid() {
		return fmt.Errorf("invalid result status %q", e.Status)
	}
	return nil
}

// SessionEvent announces a session reaching a terminal status.
type SessionEvent struct {
	SessionID string               `json:"sessionId"`
	Status    domain.SessionStatus `json:"status"`
	Total     int                  `json:"total"`
	Completed int                  `json:"completed"`
	Failed    int                  `json:"failed"`
	Pending   int                  `json:"pending"`
	Timestamp time.Time            `json:"timestamp"`
}

func (e SessionEvent) Validate() error {
	if strings.TrimSpace(e.SessionID) == "" {
		return fmt.Errorf("sessionId is required")
	}
	if !e.Status.IsValid() {
		return fmt.Errorf("invalid session status %q", e.Status)
	}
	return nil
}

// Publisher publishes audit events.
type Publisher interface {
	PublishOutcome(ctx context.Context, event OutcomeEvent) error
	PublishSession(ctx context.Context, event SessionEvent) error
	Close() error
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishOutcome(context.Context, OutcomeEvent) error { return nil }
func (NopPublisher) PublishSession(context.Context, SessionEvent) error { return nil }
func (NopPublisher) Close() error                                       { return nil }

var _ Publisher = NopPublisher{}
