package messenger

import (
	"errors"
	"fmt"
	"strings"
)

// Category classifies a send failure into the buckets the engine's error
// reporting keys off of.
type Category string

const (
	CategoryNotFound    Category = "not_found"
	CategoryNotReady    Category = "not_ready"
	CategoryBlocked     Category = "blocked"
	CategoryRateLimited Category = "rate_limited"
	CategoryTransport   Category = "transport"
)

func (c Category) String() string { return string(c) }

// SendError carries a human-readable reason and a failure category.
type SendError struct {
	Category Category
	Message  string
	Cause    error
}

func (e *SendError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 3)
	parts = append(parts, "send error")
	if e.Category != "" {
		parts = append(parts, string(e.Category))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *SendError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Reason returns the short human-readable reason recorded into a SendResult.
func (e *SendError) Reason() string {
	if e == nil {
		return ""
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		return msg
	}
	return string(e.Category)
}

// CategoryOf extracts the failure category from an error chain, defaulting
// to the transport bucket for anything unrecognized.
func CategoryOf(err error) Category {
	if err == nil {
		return ""
	}

	var sendErr *SendError
	if errors.As(err, &sendErr) && sendErr.Category != "" {
		return sendErr.Category
	}

	return CategoryTransport
}

// NewSendError builds a SendError with the given category and message.
func NewSendError(category Category, format string, args ...any) *SendError {
	return &SendError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}
