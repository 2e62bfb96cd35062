package domain

import (
	"fmt"
	"strings"
)

// Contact is a single recipient in a bulk send batch. Contacts are immutable
// once loaded; uniqueness is not enforced.
type Contact struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

func (c Contact) Validate() error {
	if strings.TrimSpace(c.Phone) == "" {
		return fmt.Errorf("%w: contact phone is required", ErrValidation)
	}
	return nil
}

// MessageTemplate is one of the message bodies a run picks from per contact.
// Media paths keep their input order; every entry is sent in that order and
// the first one carries the template content as its caption.
type MessageTemplate struct {
	Name    string   `json:"name"`
	Content string   `json:"content"`
	Media   []string `json:"media,omitempty"`
}

func (t MessageTemplate) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("%w: template name is required", ErrValidation)
	}
	if strings.TrimSpace(t.Content) == "" && len(t.Media) == 0 {
		return fmt.Errorf("%w: template %q has neither content nor media", ErrValidation, t.Name)
	}
	return nil
}

// HasMedia reports whether the template carries at least one media file.
func (t MessageTemplate) HasMedia() bool { return len(t.Media) > 0 }
