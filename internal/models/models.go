// Package models defines the core data structures for the clinic support bot.
//
// It includes the per-sender handoff record, the advisory conversation log,
// and the normalized helpdesk status event shared across modules.
package models

import (
	"errors"
	"time"
)

// HandoffState describes who is responsible for replying to a sender.
type HandoffState string

const (
	// StateAIActive means the assistant answers inbound messages.
	StateAIActive HandoffState = "ai_active"
	// StateHandedOff means a human agent owns the conversation.
	StateHandedOff HandoffState = "handed_off"
)

// StateFor maps the persisted flag to a HandoffState.
func StateFor(inHandoff bool) HandoffState {
	if inHandoff {
		return StateHandedOff
	}
	return StateAIActive
}

// UserState is the per-sender handoff record. Exactly one row exists per
// canonical sender identifier; an absent row reads as AI active.
type UserState struct {
	Sender    string    `json:"sender"`
	InHandoff bool      `json:"in_handoff"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConversationLog records the most recent (message, response) turn per
// sender. It is advisory only and never consulted for control decisions.
type ConversationLog struct {
	Sender    string    `json:"sender"`
	Message   string    `json:"message"`
	Response  string    `json:"response"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StatusSignal classifies a helpdesk webhook payload.
type StatusSignal string

const (
	// SignalNone means the payload carried no actionable status change.
	SignalNone StatusSignal = "none"
	// SignalResolved means the helpdesk conversation was resolved.
	SignalResolved StatusSignal = "resolved"
	// SignalAgentOpen means the conversation is open with a human agent engaged.
	SignalAgentOpen StatusSignal = "agent_open"
)

// StatusEvent is the normalized result of helpdesk payload extraction.
type StatusEvent struct {
	Sender string       `json:"sender"`
	Signal StatusSignal `json:"signal"`
	// Event is the raw event name from the payload, if any. Informational.
	Event string `json:"event,omitempty"`
}

// Error variables for better error handling and testability
var (
	// ErrMissingSender indicates an inbound payload without an extractable sender.
	ErrMissingSender = errors.New("payload has no sender identifier")
)

// Validate checks that a status event can be acted upon.
func (e StatusEvent) Validate() error {
	if e.Sender == "" {
		return ErrMissingSender
	}
	return nil
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates a webhook was processed.
	APIStatusOK APIStatus = "ok"
	// APIStatusIgnored indicates a webhook was acknowledged but skipped.
	APIStatusIgnored APIStatus = "ignored"
)

// APIResponse is the JSON envelope returned by the webhook endpoints.
type APIResponse struct {
	Status APIStatus `json:"status"`
}

// OK creates the acknowledgment response body.
func OK() APIResponse {
	return APIResponse{Status: APIStatusOK}
}

// Ignored creates the acknowledged-but-skipped response body.
func Ignored() APIResponse {
	return APIResponse{Status: APIStatusIgnored}
}
