package messaging

import (
	"context"
	"errors"
	"testing"

	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// mockMessageCreator implements messageCreator for testing.
type mockMessageCreator struct {
	params *twilioApi.CreateMessageParams
	err    error
}

func (m *mockMessageCreator) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	m.params = params
	if m.err != nil {
		return nil, m.err
	}
	sid := "SM123"
	return &twilioApi.ApiV2010Message{Sid: &sid}, nil
}

func TestCanonicalizeRecipient(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"whatsapp:+972501234567", "+972501234567", false},
		{"+972501234567", "+972501234567", false},
		{"972-50-123-4567", "972501234567", false},
		{"", "", true},
		{"whatsapp:", "", true},
		{"+123", "", true},
	}
	for _, c := range cases {
		got, err := CanonicalizeRecipient(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("CanonicalizeRecipient(%q): expected error, got %q", c.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("CanonicalizeRecipient(%q): unexpected error %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("CanonicalizeRecipient(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestTwilioService_SendMessage(t *testing.T) {
	mock := &mockMessageCreator{}
	svc := &TwilioService{api: mock, messagingServiceSID: "MG123"}

	ok := svc.SendMessage(context.Background(), "whatsapp:+972501234567", "שלום")
	if !ok {
		t.Fatal("expected send to succeed")
	}
	if mock.params == nil {
		t.Fatal("expected CreateMessage to be called")
	}
	if got := *mock.params.To; got != "whatsapp:+972501234567" {
		t.Errorf("expected transport-prefixed recipient, got %q", got)
	}
	if got := *mock.params.MessagingServiceSid; got != "MG123" {
		t.Errorf("expected messaging service SID, got %q", got)
	}
	if got := *mock.params.Body; got != "שלום" {
		t.Errorf("expected body to pass through, got %q", got)
	}
}

func TestTwilioService_SendMessageFailureReturnsFalse(t *testing.T) {
	mock := &mockMessageCreator{err: errors.New("twilio down")}
	svc := &TwilioService{api: mock, messagingServiceSID: "MG123"}

	if svc.SendMessage(context.Background(), "+972501234567", "hi") {
		t.Error("expected send to report failure")
	}
}

func TestTwilioService_SendMessageInvalidRecipient(t *testing.T) {
	mock := &mockMessageCreator{}
	svc := &TwilioService{api: mock, messagingServiceSID: "MG123"}

	if svc.SendMessage(context.Background(), "not-a-number", "hi") {
		t.Error("expected send to reject invalid recipient")
	}
	if mock.params != nil {
		t.Error("expected no API call for invalid recipient")
	}
}

func TestNewTwilioService_MissingCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_MESSAGING_SERVICE_SID", "")
	if _, err := NewTwilioService(); err == nil {
		t.Error("expected error without credentials")
	}
}

func TestNewTwilioService_WithOptions(t *testing.T) {
	svc, err := NewTwilioService(
		WithAccountSID("AC123"),
		WithAuthToken("token"),
		WithMessagingServiceSID("MG123"),
	)
	if err != nil {
		t.Fatalf("expected no error with full credentials, got %v", err)
	}
	if svc == nil || svc.messagingServiceSID != "MG123" {
		t.Fatalf("expected configured service, got %+v", svc)
	}
}
