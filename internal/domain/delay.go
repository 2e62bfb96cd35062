package domain

import (
	"fmt"
	"strings"
)

// RuleKind is the closed set of delay rule variants.
type RuleKind string

const (
	// RuleKindEveryNMessages applies a rule on every message index divisible by EveryN.
	RuleKindEveryNMessages RuleKind = "everyNMessages"
)

func (k RuleKind) String() string { return string(k) }

func (k RuleKind) IsValid() bool {
	return k == RuleKindEveryNMessages
}

func ParseRuleKindFromString(s string) (RuleKind, error) {
	k := RuleKind(strings.TrimSpace(s))
	if !k.IsValid() {
		return "", fmt.Errorf("%w: invalid rule kind %q", ErrValidation, s)
	}
	return k, nil
}

// DelayRule overrides the base delay range on message indexes divisible by
// EveryN. Min and Max are whole seconds.
type DelayRule struct {
	Kind   RuleKind `json:"kind"`
	EveryN int      `json:"everyN"`
	Min    int      `json:"min"`
	Max    int      `json:"max"`
}

func (r DelayRule) Validate() error {
	if !r.Kind.IsValid() {
		return fmt.Errorf("%w: invalid rule kind %q", ErrValidation, r.Kind)
	}
	if r.EveryN <= 0 {
		return fmt.Errorf("%w: rule everyN must be positive (got %d)", ErrValidation, r.EveryN)
	}
	if r.Min < 1 {
		return fmt.Errorf("%w: rule min delay must be at least 1 second (got %d)", ErrValidation, r.Min)
	}
	if r.Max <= r.Min {
		return fmt.Errorf("%w: rule max delay must exceed min delay (got %d..%d)", ErrValidation, r.Min, r.Max)
	}
	return nil
}

// DelaySettings is the pacing configuration snapshot frozen into a session at
// creation. MinDelay/MaxDelay are the base range in whole seconds, used when
// no rule matches a message index.
type DelaySettings struct {
	MinDelay int         `json:"minDelay"`
	MaxDelay int         `json:"maxDelay"`
	Rules    []DelayRule `json:"rules,omitempty"`
}

func (s DelaySettings) Validate() error {
	if s.MinDelay < 1 {
		return fmt.Errorf("%w: base min delay must be at least 1 second (got %d)", ErrValidation, s.MinDelay)
	}
	if s.MaxDelay <= s.MinDelay {
		return fmt.Errorf("%w: base max delay must exceed min delay (got %d..%d)", ErrValidation, s.MinDelay, s.MaxDelay)
	}
	for i, rule := range s.Rules {
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
	}
	return nil
}
