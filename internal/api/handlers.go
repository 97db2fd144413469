// Package api provides HTTP handlers for the support bot endpoints.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/neuroclinic/supportbot/internal/messaging"
	"github.com/neuroclinic/supportbot/internal/models"
)

// maxLoggedBody caps the inbound message length included in logs.
const maxLoggedBody = 200

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.OK())
}

// messageHandler ingests the messaging gateway's inbound callback. The
// gateway expects a fire-and-forget acknowledgment: the response is always
// an empty 200 body regardless of internal outcome.
func (s *Server) messageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.messageHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		slog.Error("Server.messageHandler: failed to parse form", "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	from := r.FormValue("From")
	if from == "" {
		from = r.FormValue("from")
	}
	body := r.FormValue("Body")
	if body == "" {
		body = r.FormValue("body")
	}

	sender := strings.TrimPrefix(from, messaging.TransportPrefix)
	if sender == "" {
		slog.Error("Server.messageHandler: no sender in gateway webhook")
		w.WriteHeader(http.StatusOK)
		return
	}

	logged := body
	if len(logged) > maxLoggedBody {
		logged = logged[:maxLoggedBody]
	}
	slog.Info("Server.messageHandler: inbound message", "sender", sender, "body", logged)

	s.engine.HandleInbound(r.Context(), sender, body)

	w.WriteHeader(http.StatusOK)
}

// chatwootWebhookHandler ingests helpdesk conversation-status events. The
// helpdesk does not need retry-on-5xx semantics respected, so internal
// errors are logged and the response is still a 200.
func (s *Server) chatwootWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.chatwootWebhookHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		slog.Warn("Server.chatwootWebhookHandler: failed to decode payload", "error", err)
		writeJSONResponse(w, http.StatusOK, models.Ignored())
		return
	}

	ev := ExtractStatusEvent(payload)
	if ev.Sender == "" {
		slog.Warn("Server.chatwootWebhookHandler: no phone number in webhook payload, skipping", "event", ev.Event)
		writeJSONResponse(w, http.StatusOK, models.Ignored())
		return
	}

	slog.Info("Server.chatwootWebhookHandler: status event", "sender", ev.Sender, "signal", ev.Signal, "event", ev.Event)

	if err := s.engine.HandleStatusEvent(r.Context(), ev); err != nil {
		slog.Error("Server.chatwootWebhookHandler: failed to process event", "error", err, "sender", ev.Sender)
	}

	writeJSONResponse(w, http.StatusOK, models.OK())
}
