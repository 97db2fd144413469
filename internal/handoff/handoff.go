// Package handoff implements the per-sender handoff state machine.
//
// Each sender is in one of two states: AI active (the assistant replies) or
// handed off (a human agent owns the conversation in the helpdesk). The
// engine mediates transitions triggered by inbound user messages and by
// helpdesk status events, keeping the persisted flag and the helpdesk
// conversation in sync.
package handoff

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neuroclinic/supportbot/internal/events"
	"github.com/neuroclinic/supportbot/internal/genai"
	"github.com/neuroclinic/supportbot/internal/messaging"
	"github.com/neuroclinic/supportbot/internal/models"
	"github.com/neuroclinic/supportbot/internal/store"
)

// TicketClosedNotice is sent to the user when their helpdesk ticket is
// resolved and the assistant becomes available again.
const TicketClosedNotice = "הפנייה נסגרה, אנחנו זמינים ועומדים לרשותכם"

// ReplyGenerator produces the assistant reply for a user message.
type ReplyGenerator interface {
	GenerateReply(ctx context.Context, systemPrompt, userMessage string) (string, error)
}

// HelpdeskClient is the slice of the helpdesk API the engine uses.
type HelpdeskClient interface {
	FindOrCreateContact(ctx context.Context, sender string) (int, error)
	FindOrCreateOpenConversation(ctx context.Context, contactID int, sender string) (int, error)
	RelayMessage(ctx context.Context, conversationID int, text string) bool
	ReopenConversation(ctx context.Context, conversationID int)
	ForwardUserMessage(ctx context.Context, sender, text string) bool
}

// TransitionPublisher emits handoff transition events for operator tooling.
type TransitionPublisher interface {
	Publish(ctx context.Context, eventType string, ev events.TransitionEvent) error
}

// Engine decides, per sender, whether the assistant or a human agent
// answers, and executes the transitions between the two.
type Engine struct {
	store     store.Store
	ai        ReplyGenerator
	gateway   messaging.Service
	desk      HelpdeskClient
	publisher TransitionPublisher
	clock     func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithClock overrides the engine's time source (tests, locale handling).
func WithClock(clock func() time.Time) EngineOption {
	return func(e *Engine) { e.clock = clock }
}

// NewEngine creates a handoff engine with explicit dependencies. publisher
// may be nil when no broker is configured.
func NewEngine(st store.Store, ai ReplyGenerator, gateway messaging.Service, desk HelpdeskClient, publisher TransitionPublisher, opts ...EngineOption) *Engine {
	e := &Engine{
		store:     st,
		ai:        ai,
		gateway:   gateway,
		desk:      desk,
		publisher: publisher,
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HandleInbound processes one inbound user message. While handed off, the
// message is forwarded verbatim to the helpdesk and the assistant is never
// invoked. While AI active, the assistant reply is sent to the user, and a
// handoff-marker reply triggers the transition to the agent.
func (e *Engine) HandleInbound(ctx context.Context, sender, body string) {
	state, found, err := e.store.GetUserState(ctx, sender)
	if err != nil {
		// The reply must still reach the user; degrade to AI active.
		slog.Error("Engine.HandleInbound: failed to read handoff state, assuming AI active", "error", err, "sender", sender)
	}

	if found && state.InHandoff {
		slog.Info("Engine.HandleInbound: sender handed off, forwarding to helpdesk", "sender", sender)
		if !e.desk.ForwardUserMessage(ctx, sender, body) {
			slog.Error("Engine.HandleInbound: failed to forward message to helpdesk", "sender", sender)
		}
		return
	}

	reply, err := e.ai.GenerateReply(ctx, genai.SystemPrompt(e.clock()), body)
	if err != nil {
		slog.Error("Engine.HandleInbound: reply generation failed, using fallback", "error", err, "sender", sender)
		reply = genai.FallbackReply
	}

	if !e.gateway.SendMessage(ctx, sender, reply) {
		slog.Error("Engine.HandleInbound: failed to send reply", "sender", sender)
	}

	// Advisory logging only; the reply is already dispatched.
	if err := e.store.SaveConversationLog(ctx, models.ConversationLog{Sender: sender, Message: body, Response: reply}); err != nil {
		slog.Warn("Engine.HandleInbound: failed to save conversation log", "error", err, "sender", sender)
	}

	if genai.IsHandoffReply(reply) {
		e.engage(ctx, sender, body)
	}
}

// engage opens or reuses a helpdesk conversation, flips the flag, and relays
// the user's original message exactly once. Contact or conversation
// resolution failure means the handoff cannot happen now; a relay failure
// after that still leaves the flag set so the user is not bounced back to
// the assistant.
func (e *Engine) engage(ctx context.Context, sender, body string) {
	contactID, err := e.desk.FindOrCreateContact(ctx, sender)
	if err != nil {
		slog.Error("Engine.engage: cannot hand off now, contact resolution failed", "error", err, "sender", sender)
		return
	}
	conversationID, err := e.desk.FindOrCreateOpenConversation(ctx, contactID, sender)
	if err != nil {
		slog.Error("Engine.engage: cannot hand off now, conversation resolution failed", "error", err, "sender", sender)
		return
	}

	e.desk.ReopenConversation(ctx, conversationID)

	if err := e.store.SetHandoff(ctx, sender, true); err != nil {
		slog.Error("Engine.engage: failed to persist handoff flag", "error", err, "sender", sender)
	}

	if !e.desk.RelayMessage(ctx, conversationID, body) {
		slog.Error("Engine.engage: failed to relay user message, flag remains set", "sender", sender, "conversation_id", conversationID)
	}

	e.publishTransition(ctx, events.TypeEngaged, sender, models.StateAIActive, models.StateHandedOff)
	slog.Info("Engine.engage: handoff enabled", "sender", sender, "conversation_id", conversationID)
}

// HandleStatusEvent applies a normalized helpdesk status event. Events are
// idempotent set operations: a resolved event only acts on an actual
// HANDED_OFF -> AI_ACTIVE edge, and an agent-open event re-applied is a
// no-op on observable behavior. Conflicting events for one sender resolve
// last-event-wins by receipt order.
func (e *Engine) HandleStatusEvent(ctx context.Context, ev models.StatusEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}

	switch ev.Signal {
	case models.SignalResolved:
		return e.resolve(ctx, ev.Sender)
	case models.SignalAgentOpen:
		return e.agentOpen(ctx, ev.Sender)
	default:
		slog.Debug("Engine.HandleStatusEvent: no actionable signal", "sender", ev.Sender, "event", ev.Event)
		return nil
	}
}

func (e *Engine) resolve(ctx context.Context, sender string) error {
	state, found, err := e.store.GetUserState(ctx, sender)
	if err != nil {
		return fmt.Errorf("failed to read handoff state for %s: %w", sender, err)
	}
	if !found || !state.InHandoff {
		// Duplicate or stray resolved event; the notice fires only on an edge.
		slog.Debug("Engine.resolve: sender already AI active, ignoring", "sender", sender)
		return nil
	}

	if err := e.store.SetHandoff(ctx, sender, false); err != nil {
		return fmt.Errorf("failed to clear handoff flag for %s: %w", sender, err)
	}

	if !e.gateway.SendMessage(ctx, sender, TicketClosedNotice) {
		slog.Error("Engine.resolve: failed to send ticket-closed notice", "sender", sender)
	}

	e.publishTransition(ctx, events.TypeResolved, sender, models.StateHandedOff, models.StateAIActive)
	slog.Info("Engine.resolve: handoff disabled", "sender", sender)
	return nil
}

func (e *Engine) agentOpen(ctx context.Context, sender string) error {
	state, found, err := e.store.GetUserState(ctx, sender)
	if err != nil {
		return fmt.Errorf("failed to read handoff state for %s: %w", sender, err)
	}
	alreadyHandedOff := found && state.InHandoff

	if err := e.store.SetHandoff(ctx, sender, true); err != nil {
		return fmt.Errorf("failed to set handoff flag for %s: %w", sender, err)
	}

	if !alreadyHandedOff {
		e.publishTransition(ctx, events.TypeEngaged, sender, models.StateAIActive, models.StateHandedOff)
		slog.Info("Engine.agentOpen: handoff enabled by agent activity", "sender", sender)
	}
	return nil
}

func (e *Engine) publishTransition(ctx context.Context, eventType, sender string, from, to models.HandoffState) {
	if e.publisher == nil {
		return
	}
	ev := events.TransitionEvent{Sender: sender, From: string(from), To: string(to), At: e.clock().UTC()}
	if err := e.publisher.Publish(ctx, eventType, ev); err != nil {
		slog.Warn("Engine.publishTransition: publish failed", "error", err, "type", eventType, "sender", sender)
	}
}
