// Package messaging abstracts the outbound messaging gateway.
//
// This file implements the Twilio-backed service. Sends go through a Twilio
// messaging service SID rather than a from number, matching the deployment.
package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// DefaultTimeout bounds every call to the Twilio REST API.
const DefaultTimeout = 15 * time.Second

// Opts holds configuration options for the Twilio service.
type Opts struct {
	AccountSID          string
	AuthToken           string
	MessagingServiceSID string
}

// Option defines a configuration option for the Twilio service.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithMessagingServiceSID sets the Twilio messaging service SID used as the sender.
func WithMessagingServiceSID(sid string) Option {
	return func(o *Opts) { o.MessagingServiceSID = sid }
}

// messageCreator is the slice of the Twilio API the service uses.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioService sends WhatsApp messages through the Twilio REST API.
type TwilioService struct {
	api                 messageCreator
	messagingServiceSID string
}

// NewTwilioService creates a Twilio-backed messaging service. Credentials
// fall back to TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and
// TWILIO_MESSAGING_SERVICE_SID when not provided via options.
func NewTwilioService(opts ...Option) (*TwilioService, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.MessagingServiceSID == "" {
		cfg.MessagingServiceSID = os.Getenv("TWILIO_MESSAGING_SERVICE_SID")
	}
	slog.Debug("Twilio service config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"MessagingServiceSID_set", cfg.MessagingServiceSID != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.MessagingServiceSID == "" {
		return nil, fmt.Errorf("messaging service SID must be provided")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	client.Client.SetTimeout(DefaultTimeout)

	return &TwilioService{
		api:                 client.Api,
		messagingServiceSID: cfg.MessagingServiceSID,
	}, nil
}

// SendMessage sends a WhatsApp message. Failures are logged and reported as
// false; they never propagate past this boundary.
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) bool {
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService.SendMessage validation error", "error", err, "to", to)
		return false
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetMessagingServiceSid(s.messagingServiceSID)
	params.SetTo(TransportPrefix + canonicalTo)
	params.SetBody(body)

	msg, err := s.api.CreateMessage(params)
	if err != nil {
		slog.Error("TwilioService.SendMessage failed", "error", err, "to", canonicalTo)
		return false
	}

	sid := ""
	if msg != nil && msg.Sid != nil {
		sid = *msg.Sid
	}
	slog.Info("TwilioService.SendMessage sent", "to", canonicalTo, "sid", sid)
	return true
}

// ValidateAndCanonicalizeRecipient validates and canonicalizes a WhatsApp
// phone number.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return CanonicalizeRecipient(recipient)
}
