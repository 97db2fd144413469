// Package messaging abstracts the outbound messaging gateway.
//
// The gateway boundary never raises: send failures are logged and reported
// as a boolean so the webhook path can always acknowledge upstream.
package messaging

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// TransportPrefix is the scheme prefix the gateway puts on WhatsApp addresses.
const TransportPrefix = "whatsapp:"

// Service defines the outbound messaging operations used by the handoff engine.
type Service interface {
	// SendMessage delivers body to the canonical recipient. It returns false
	// and logs on any failure; it never panics or returns an error.
	SendMessage(ctx context.Context, to string, body string) bool
	// ValidateAndCanonicalizeRecipient normalizes a recipient address.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)
}

var phoneNumberRegex = regexp.MustCompile(`[^0-9]`)

// CanonicalizeRecipient strips the transport prefix and non-digit characters,
// keeping the leading plus of an E.164 number.
func CanonicalizeRecipient(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	trimmed := strings.TrimPrefix(strings.TrimSpace(recipient), TransportPrefix)
	plus := strings.HasPrefix(trimmed, "+")
	digits := phoneNumberRegex.ReplaceAllString(trimmed, "")
	if digits == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(digits) < 6 {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum 6 digits required)", digits)
	}
	if plus {
		return "+" + digits, nil
	}
	return digits, nil
}
