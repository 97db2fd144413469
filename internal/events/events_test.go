package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestNilPublisherIsNoOp(t *testing.T) {
	var p *Publisher
	if err := p.Publish(context.Background(), TypeEngaged, TransitionEvent{Sender: "+972501234567"}); err != nil {
		t.Errorf("nil publisher Publish returned error: %v", err)
	}
	p.Close()
}

func TestNewPublisher_MissingURL(t *testing.T) {
	t.Setenv("AMQP_URL", "")
	if _, err := NewPublisher(); err == nil {
		t.Error("expected error when no broker URL is configured")
	}
}

func TestEnvelopeWireShape(t *testing.T) {
	at := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	env := Envelope{
		Meta: Meta{
			ID:            "abc-123",
			Type:          TypeResolved,
			CorrelationID: "abc-123",
			Time:          at,
		},
		Data: TransitionEvent{Sender: "+972501234567", From: "HANDED_OFF", To: "AI_ACTIVE", At: at},
	}

	body, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("failed to marshal envelope: %v", err)
	}

	var decoded struct {
		Meta Meta            `json:"meta"`
		Data TransitionEvent `json:"data"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("failed to decode envelope: %v", err)
	}
	if decoded.Meta.Type != TypeResolved {
		t.Errorf("expected type %q, got %q", TypeResolved, decoded.Meta.Type)
	}
	if decoded.Meta.CorrelationID != decoded.Meta.ID {
		t.Error("correlation id must default to the event id")
	}
	if decoded.Data.Sender != "+972501234567" || decoded.Data.From != "HANDED_OFF" || decoded.Data.To != "AI_ACTIVE" {
		t.Errorf("unexpected data payload: %+v", decoded.Data)
	}
}
