// Package delay computes the pacing interval between consecutive sends.
package delay

import (
	"time"

	"github.com/bayy420-999/whatsapp-sender/internal/domain"
)

// Compute returns the delay in whole seconds to wait before the send that
// follows messageIndex. Among the rules whose EveryN divides messageIndex,
// the one with the largest EveryN wins (first match in input order on ties)
// and its range replaces the base range. randIntn must behave like
// rand.Intn: a uniform draw from [0, n).
//
// Compute is pure given the random source; callers are expected to have
// validated settings beforehand.
func Compute(messageIndex int, settings domain.DelaySettings, randIntn func(n int) int) int {
	min, max := settings.MinDelay, settings.MaxDelay

	if messageIndex > 0 {
		var matched *domain.DelayRule
		for i := range settings.Rules {
			rule := &settings.Rules[i]
			if rule.Kind != domain.RuleKindEveryNMessages {
				continue
			}
			if rule.EveryN <= 0 || messageIndex%rule.EveryN != 0 {
				continue
			}
			if matched == nil || rule.EveryN > matched.EveryN {
				matched = rule
			}
		}
		if matched != nil {
			min, max = matched.Min, matched.Max
		}
	}

	if max <= min {
		return min
	}
	return min + randIntn(max-min+1)
}

// Duration is a convenience wrapper returning Compute as a time.Duration.
func Duration(messageIndex int, settings domain.DelaySettings, randIntn func(n int) int) time.Duration {
	return time.Duration(Compute(messageIndex, settings, randIntn)) * time.Second
}
