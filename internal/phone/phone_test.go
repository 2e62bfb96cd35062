package phone

import (
	"errors"
	"testing"

	"github.com/bayy420-999/whatsapp-sender/internal/domain"
)

func TestNormalizeAddress(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		raw  string
		want string
	}{
		{name: "national format with leading zero", raw: "081234567890", want: "6281234567890@c.us"},
		{name: "already international", raw: "6281234567890", want: "6281234567890@c.us"},
		{name: "bare number without prefix", raw: "81234567890", want: "6281234567890@c.us"},
		{name: "plus and dashes stripped", raw: "+62 812-3456-7890", want: "6281234567890@c.us"},
		{name: "spaces and parens stripped", raw: "(0812) 3456 7890", want: "6281234567890@c.us"},
		{name: "prefix-like short number kept", raw: "62", want: "62@c.us"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := NormalizeAddress(tc.raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("NormalizeAddress(%q) = %q, want %q", tc.raw, got, tc.want)
			}
		})
	}
}

func TestNormalizeAddress_NoDigits(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "   ", "abc", "+--"} {
		raw := raw
		if _, err := NormalizeAddress(raw); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("NormalizeAddress(%q) error = %v, want ErrValidation", raw, err)
		}
	}
}
