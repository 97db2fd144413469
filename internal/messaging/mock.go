package messaging

import "context"

// SentMessage records one outbound send for assertions.
type SentMessage struct {
	To   string
	Body string
}

// MockService records sent messages for tests.
type MockService struct {
	SentMessages []SentMessage
	FailSend     bool
}

// NewMockService creates an empty mock messaging service.
func NewMockService() *MockService {
	return &MockService{SentMessages: []SentMessage{}}
}

// SendMessage records the message and reports the configured outcome.
func (m *MockService) SendMessage(ctx context.Context, to string, body string) bool {
	if m.FailSend {
		return false
	}
	m.SentMessages = append(m.SentMessages, SentMessage{To: to, Body: body})
	return true
}

// ValidateAndCanonicalizeRecipient applies the shared canonicalization.
func (m *MockService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return CanonicalizeRecipient(recipient)
}
