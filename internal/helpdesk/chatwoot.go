// Package helpdesk implements the Chatwoot client used for agent handoff.
//
// All operations are idempotent and safe to retry: contact and conversation
// lookups prefer existing records and only create on miss. Message relay and
// conversation reopening are best-effort boundaries that log instead of
// returning errors, matching the webhook path's always-acknowledge contract.
package helpdesk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout bounds every call to the helpdesk API.
const DefaultTimeout = 15 * time.Second

// messageTypeIncoming is Chatwoot's message_type for user-authored messages.
const messageTypeIncoming = 0

// Opts holds configuration options for the Chatwoot client.
type Opts struct {
	BaseURL    string
	Token      string
	AccountID  string
	InboxID    int
	HTTPClient *http.Client
}

// Option defines a configuration option for the Chatwoot client.
type Option func(*Opts)

// WithBaseURL sets the Chatwoot installation base URL.
func WithBaseURL(u string) Option {
	return func(o *Opts) { o.BaseURL = u }
}

// WithToken sets the API access token.
func WithToken(t string) Option {
	return func(o *Opts) { o.Token = t }
}

// WithAccountID sets the Chatwoot account ID.
func WithAccountID(id string) Option {
	return func(o *Opts) { o.AccountID = id }
}

// WithInboxID sets the inbox new conversations are created against.
func WithInboxID(id int) Option {
	return func(o *Opts) { o.InboxID = id }
}

// WithHTTPClient overrides the HTTP client (tests).
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// Client talks to the Chatwoot REST API for one account.
type Client struct {
	http      *http.Client
	baseURL   string
	token     string
	accountID string
	inboxID   int
}

// NewClient creates a Chatwoot client. Configuration falls back to the
// CHATWOOT_API_URL, CHATWOOT_TOKEN, CHATWOOT_ACCOUNT_ID and
// CHATWOOT_INBOX_ID environment variables.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = os.Getenv("CHATWOOT_API_URL")
	}
	if cfg.Token == "" {
		cfg.Token = os.Getenv("CHATWOOT_TOKEN")
	}
	if cfg.AccountID == "" {
		cfg.AccountID = os.Getenv("CHATWOOT_ACCOUNT_ID")
	}
	if cfg.InboxID == 0 {
		if v := os.Getenv("CHATWOOT_INBOX_ID"); v != "" {
			id, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("invalid CHATWOOT_INBOX_ID %q: %w", v, err)
			}
			cfg.InboxID = id
		}
	}
	slog.Debug("Chatwoot client config loaded",
		"base_url_set", cfg.BaseURL != "",
		"token_set", cfg.Token != "",
		"account_id_set", cfg.AccountID != "",
		"inbox_id", cfg.InboxID)

	if cfg.BaseURL == "" || cfg.Token == "" || cfg.AccountID == "" {
		return nil, fmt.Errorf("chatwoot base URL, token and account ID must be provided")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		http:      httpClient,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		token:     cfg.Token,
		accountID: cfg.AccountID,
		inboxID:   cfg.InboxID,
	}, nil
}

func (c *Client) accountURL(path string) string {
	return fmt.Sprintf("%s/api/v1/accounts/%s%s", c.baseURL, c.accountID, path)
}

// doJSON performs a request with the access-token header and decodes the
// response body into a generic map.
func (c *Client) doJSON(ctx context.Context, method, rawURL string, body any) (map[string]any, int, error) {
	var reqBody *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, 0, protocolError("marshal request body", err)
		}
		reqBody = bytes.NewReader(data)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return nil, 0, transportError("build request", err)
	}
	req.Header.Set("api_access_token", c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, transportError("request failed", err)
	}
	defer resp.Body.Close()

	var parsed map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		success := resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated
		switch {
		case success && errors.Is(err, io.EOF):
			// Some endpoints return empty bodies on success.
			parsed = map[string]any{}
		case success:
			return nil, resp.StatusCode, protocolError("unparseable response body", err)
		default:
			parsed = nil
		}
	}
	return parsed, resp.StatusCode, nil
}

// FindOrCreateContact returns the helpdesk contact ID for a sender, creating
// the contact when absent.
func (c *Client) FindOrCreateContact(ctx context.Context, sender string) (int, error) {
	id, err := c.findContact(ctx, sender)
	if err != nil {
		return 0, err
	}
	if id != 0 {
		slog.Debug("Chatwoot.FindOrCreateContact: found existing contact", "sender", sender, "contact_id", id)
		return id, nil
	}
	return c.createContact(ctx, sender)
}

func (c *Client) findContact(ctx context.Context, sender string) (int, error) {
	u := c.accountURL("/contacts/search") + "?q=" + url.QueryEscape(sender)
	parsed, status, err := c.doJSON(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, protocolError(fmt.Sprintf("contact search returned status %d", status), nil)
	}
	payload, _ := parsed["payload"].([]any)
	for _, entry := range payload {
		if contact, ok := entry.(map[string]any); ok {
			if id := intField(contact, "id"); id != 0 {
				return id, nil
			}
		}
	}
	return 0, nil
}

func (c *Client) createContact(ctx context.Context, sender string) (int, error) {
	body := map[string]any{"name": sender, "phone_number": sender}
	parsed, status, err := c.doJSON(ctx, http.MethodPost, c.accountURL("/contacts"), body)
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return 0, protocolError(fmt.Sprintf("create contact returned status %d", status), nil)
	}
	id := extractContactID(parsed)
	if id == 0 {
		return 0, protocolError("create contact response has no contact ID", nil)
	}
	slog.Info("Chatwoot.createContact: contact created", "sender", sender, "contact_id", id)
	return id, nil
}

// FindOrCreateOpenConversation returns the ID of the sender's open
// conversation, creating one against the configured inbox when absent.
func (c *Client) FindOrCreateOpenConversation(ctx context.Context, contactID int, sender string) (int, error) {
	id, err := c.findOpenConversation(ctx, contactID)
	if err != nil {
		return 0, err
	}
	if id != 0 {
		slog.Debug("Chatwoot.FindOrCreateOpenConversation: reusing open conversation", "contact_id", contactID, "conversation_id", id)
		return id, nil
	}
	if c.inboxID == 0 {
		return 0, protocolError("inbox ID not configured; cannot create conversation", nil)
	}
	return c.createConversation(ctx, contactID, sender)
}

func (c *Client) findOpenConversation(ctx context.Context, contactID int) (int, error) {
	u := c.accountURL(fmt.Sprintf("/contacts/%d/conversations", contactID))
	parsed, status, err := c.doJSON(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, protocolError(fmt.Sprintf("list conversations returned status %d", status), nil)
	}
	payload, _ := parsed["payload"].([]any)
	for _, entry := range payload {
		conv, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if conv["status"] == "open" {
			if id := intField(conv, "id"); id != 0 {
				return id, nil
			}
		}
	}
	return 0, nil
}

func (c *Client) createConversation(ctx context.Context, contactID int, sender string) (int, error) {
	body := map[string]any{
		"source_id":  "whatsapp:" + sender,
		"inbox_id":   c.inboxID,
		"contact_id": contactID,
		"status":     "open",
	}
	parsed, status, err := c.doJSON(ctx, http.MethodPost, c.accountURL("/conversations"), body)
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return 0, protocolError(fmt.Sprintf("create conversation returned status %d", status), nil)
	}
	id := extractConversationID(parsed)
	if id == 0 {
		return 0, protocolError("create conversation response has no conversation ID", nil)
	}
	slog.Info("Chatwoot.createConversation: conversation created", "sender", sender, "conversation_id", id)
	return id, nil
}

// RelayMessage posts an incoming-type message into a conversation. It returns
// false and logs on any failure; it never returns an error.
func (c *Client) RelayMessage(ctx context.Context, conversationID int, text string) bool {
	body := map[string]any{"content": text, "message_type": messageTypeIncoming}
	u := c.accountURL(fmt.Sprintf("/conversations/%d/messages", conversationID))
	_, status, err := c.doJSON(ctx, http.MethodPost, u, body)
	if err != nil {
		slog.Error("Chatwoot.RelayMessage failed", "error", err, "conversation_id", conversationID)
		return false
	}
	if status != http.StatusOK && status != http.StatusCreated {
		slog.Error("Chatwoot.RelayMessage unexpected status", "status", status, "conversation_id", conversationID)
		return false
	}
	slog.Info("Chatwoot.RelayMessage: message forwarded", "conversation_id", conversationID)
	return true
}

// ReopenConversation patches a conversation back to open status. Best-effort:
// failures are logged only.
func (c *Client) ReopenConversation(ctx context.Context, conversationID int) {
	body := map[string]any{"status": "open"}
	u := c.accountURL(fmt.Sprintf("/conversations/%d", conversationID))
	_, status, err := c.doJSON(ctx, http.MethodPatch, u, body)
	if err != nil {
		slog.Warn("Chatwoot.ReopenConversation failed", "error", err, "conversation_id", conversationID)
		return
	}
	if status != http.StatusOK && status != http.StatusCreated {
		slog.Warn("Chatwoot.ReopenConversation unexpected status", "status", status, "conversation_id", conversationID)
	}
}

// ForwardUserMessage relays a user's message into their open conversation,
// finding or creating the contact and conversation as needed.
func (c *Client) ForwardUserMessage(ctx context.Context, sender, text string) bool {
	contactID, err := c.FindOrCreateContact(ctx, sender)
	if err != nil {
		slog.Error("Chatwoot.ForwardUserMessage: cannot resolve contact", "error", err, "sender", sender)
		return false
	}
	conversationID, err := c.FindOrCreateOpenConversation(ctx, contactID, sender)
	if err != nil {
		slog.Error("Chatwoot.ForwardUserMessage: cannot resolve conversation", "error", err, "sender", sender)
		return false
	}
	return c.RelayMessage(ctx, conversationID, text)
}

// intField reads an integer-valued JSON field from a decoded map.
func intField(m map[string]any, key string) int {
	if f, ok := m[key].(float64); ok {
		return int(f)
	}
	return 0
}

func nestedMap(m map[string]any, key string) map[string]any {
	nested, _ := m[key].(map[string]any)
	return nested
}

// extractContactID tolerates the response shapes Chatwoot uses across
// versions: payload.contact.id, payload.id, or a top-level id.
func extractContactID(parsed map[string]any) int {
	if parsed == nil {
		return 0
	}
	if payload := nestedMap(parsed, "payload"); payload != nil {
		if contact := nestedMap(payload, "contact"); contact != nil {
			if id := intField(contact, "id"); id != 0 {
				return id
			}
		}
		if id := intField(payload, "id"); id != 0 {
			return id
		}
	}
	return intField(parsed, "id")
}

// extractConversationID tolerates id, payload.id, or payload.conversation.id.
func extractConversationID(parsed map[string]any) int {
	if parsed == nil {
		return 0
	}
	if id := intField(parsed, "id"); id != 0 {
		return id
	}
	if payload := nestedMap(parsed, "payload"); payload != nil {
		if id := intField(payload, "id"); id != 0 {
			return id
		}
		if conv := nestedMap(payload, "conversation"); conv != nil {
			if id := intField(conv, "id"); id != 0 {
				return id
			}
		}
	}
	return 0
}
