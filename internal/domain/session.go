package domain

import (
	"fmt"
	"strings"
	"time"
)

// SessionStatus represents the lifecycle state of a bulk send session.
type SessionStatus string

const (
	SessionStatusRunning     SessionStatus = "running"
	SessionStatusCompleted   SessionStatus = "completed"
	SessionStatusInterrupted SessionStatus = "interrupted"
)

func (s SessionStatus) String() string { return string(s) }

func (s SessionStatus) IsValid() bool {
	switch s {
	case SessionStatusRunning, SessionStatusCompleted, SessionStatusInterrupted:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed out of s.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusInterrupted
}

func ParseSessionStatusFromString(s string) (SessionStatus, error) {
	st := SessionStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid session status %q", ErrValidation, s)
	}
	return st, nil
}

// ResultStatus is the outcome of a single (contact, attempt) pair.
type ResultStatus string

const (
	ResultStatusSuccess ResultStatus = "success"
	ResultStatusFailed  ResultStatus = "failed"
)

func (s ResultStatus) String() string { return string(s) }

func (s ResultStatus) IsValid() bool {
	return s == ResultStatusSuccess || s == ResultStatusFailed
}

// SendResult records one delivery attempt. Results are append-only and never
// mutated after creation.
type SendResult struct {
	Contact   Contact      `json:"contact"`
	Template  string       `json:"template"`
	Status    ResultStatus `json:"status"`
	Timestamp time.Time    `json:"timestamp"`
	Error     string       `json:"error,omitempty"`
	MessageID string       `json:"messageId,omitempty"`
}

// BulkSendSession is the aggregate root for one bulk send run. It is owned
// exclusively by a single driver while running and persisted as a full
// snapshot after every mutation.
type BulkSendSession struct {
	ID                string        `json:"id"`
	StartTime         time.Time     `json:"startTime"`
	EndTime           *time.Time    `json:"endTime,omitempty"`
	TotalContacts     int           `json:"totalContacts"`
	CompletedContacts int           `json:"completedContacts"`
	FailedContacts    int           `json:"failedContacts"`
	PendingContacts   int           `json:"pendingContacts"`
	Results           []SendResult  `json:"results"`
	Status            SessionStatus `json:"status"`
	DelaySettings     DelaySettings `json:"delaySettings"`
}

// CountersConsistent reports whether the derived counters agree with each
// other and with the result log.
func (s *BulkSendSession) CountersConsistent() bool {
	if s == nil {
		return false
	}
	if s.CompletedContacts+s.FailedContacts+s.PendingContacts != s.TotalContacts {
		return false
	}
	return s.CompletedContacts+s.FailedContacts == len(s.Results)
}

// AttemptedPhones returns the set of raw phone values that already have a
// recorded result, regardless of outcome.
func (s *BulkSendSession) AttemptedPhones() map[string]struct{} {
	attempted := make(map[string]struct{}, len(s.Results))
	for _, r := range s.Results {
		attempted[r.Contact.Phone] = struct{}{}
	}
	return attempted
}
