// Package api provides helpdesk webhook payload extraction.
//
// Chatwoot payload shapes vary by event type, so extraction runs a small
// ordered list of strategies; the first one that yields a value wins.
package api

import (
	"strings"

	"github.com/neuroclinic/supportbot/internal/messaging"
	"github.com/neuroclinic/supportbot/internal/models"
)

// ExtractStatusEvent normalizes a raw helpdesk webhook payload into a
// StatusEvent. A payload with no extractable sender yields an event with an
// empty Sender, which callers acknowledge as ignored.
func ExtractStatusEvent(payload map[string]any) models.StatusEvent {
	conv := conversationObject(payload)
	return models.StatusEvent{
		Sender: extractSender(payload, conv),
		Signal: extractSignal(payload, conv),
		Event:  eventName(payload, conv),
	}
}

// conversationObject returns the nested conversation map when present, else
// the top-level payload itself.
func conversationObject(payload map[string]any) map[string]any {
	if conv, ok := payload["conversation"].(map[string]any); ok {
		return conv
	}
	return payload
}

// senderStrategy tries to extract the sender phone number from one location.
type senderStrategy func(payload, conv map[string]any) string

// senderStrategies are tried in priority order.
var senderStrategies = []senderStrategy{
	senderFromConversationMeta,
	senderFromMessages,
	senderFromContactInbox,
	senderFromTopLevelSender,
}

func extractSender(payload, conv map[string]any) string {
	for _, strategy := range senderStrategies {
		if phone := strategy(payload, conv); phone != "" {
			return phone
		}
	}
	return ""
}

func senderFromConversationMeta(payload, conv map[string]any) string {
	return phoneOf(mapAt(conv, "meta", "sender"))
}

func senderFromMessages(payload, conv map[string]any) string {
	msgs, ok := conv["messages"].([]any)
	if !ok {
		msgs, _ = payload["messages"].([]any)
	}
	for _, m := range msgs {
		msg, ok := m.(map[string]any)
		if !ok {
			continue
		}
		if phone := phoneOf(mapAt(msg, "sender")); phone != "" {
			return phone
		}
	}
	return ""
}

func senderFromContactInbox(payload, conv map[string]any) string {
	for _, m := range []map[string]any{conv, payload} {
		sourceID, ok := mapAt(m, "contact_inbox")["source_id"].(string)
		if !ok || !strings.Contains(sourceID, messaging.TransportPrefix) {
			continue
		}
		parts := strings.Split(sourceID, messaging.TransportPrefix)
		if phone := parts[len(parts)-1]; phone != "" {
			return phone
		}
	}
	return ""
}

func senderFromTopLevelSender(payload, conv map[string]any) string {
	return phoneOf(mapAt(payload, "sender"))
}

// extractSignal classifies the payload. Resolution signals take priority;
// the agent-open signal requires both an open status and an agent actor.
func extractSignal(payload, conv map[string]any) models.StatusSignal {
	if isResolved(payload, conv) {
		return models.SignalResolved
	}
	if isAgentOpen(payload, conv) {
		return models.SignalAgentOpen
	}
	return models.SignalNone
}

func isResolved(payload, conv map[string]any) bool {
	if conv["status"] == "resolved" {
		return true
	}
	changed, ok := payload["changed_attributes"].([]any)
	if !ok {
		changed, _ = conv["changed_attributes"].([]any)
	}
	for _, entry := range changed {
		attr, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if mapAt(attr, "status")["current_value"] == "resolved" {
			return true
		}
	}
	return eventName(payload, conv) == "conversation_resolved"
}

func isAgentOpen(payload, conv map[string]any) bool {
	status := payload["status"]
	if status == nil {
		status = conv["status"]
	}
	if status != "open" {
		return false
	}
	if mapAt(payload, "sender")["type"] == "agent" {
		return true
	}
	return mapAt(conv, "meta", "assignee")["type"] == "agent"
}

func eventName(payload, conv map[string]any) string {
	if ev, ok := payload["event"].(string); ok {
		return ev
	}
	ev, _ := conv["event"].(string)
	return ev
}

// mapAt walks nested maps by key, returning an empty map when any step is
// missing or not an object.
func mapAt(m map[string]any, keys ...string) map[string]any {
	current := m
	for _, key := range keys {
		next, ok := current[key].(map[string]any)
		if !ok {
			return map[string]any{}
		}
		current = next
	}
	return current
}

func phoneOf(m map[string]any) string {
	phone, _ := m["phone_number"].(string)
	return phone
}
