package helpdesk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(
		WithBaseURL(srv.URL),
		WithToken("test-token"),
		WithAccountID("7"),
		WithInboxID(3),
		WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client, srv
}

func TestFindOrCreateContact_FindsExisting(t *testing.T) {
	var searched bool
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/accounts/7/contacts/search", func(w http.ResponseWriter, r *http.Request) {
		searched = true
		if got := r.Header.Get("api_access_token"); got != "test-token" {
			t.Errorf("expected access token header, got %q", got)
		}
		if got := r.URL.Query().Get("q"); got != "+972501234567" {
			t.Errorf("expected query for sender, got %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{"payload": []any{map[string]any{"id": 42}}})
	})
	mux.HandleFunc("/api/v1/accounts/7/contacts", func(w http.ResponseWriter, r *http.Request) {
		t.Error("create should not be called when search hits")
	})
	client, _ := newTestClient(t, mux)

	id, err := client.FindOrCreateContact(context.Background(), "+972501234567")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != 42 {
		t.Errorf("expected contact 42, got %d", id)
	}
	if !searched {
		t.Error("expected search endpoint to be hit")
	}
}

func TestFindOrCreateContact_CreatesOnMiss(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/accounts/7/contacts/search", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"payload": []any{}})
	})
	mux.HandleFunc("/api/v1/accounts/7/contacts", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["phone_number"] != "+972501234567" {
			t.Errorf("expected phone_number in create body, got %v", body)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"payload": map[string]any{"contact": map[string]any{"id": 99}}})
	})
	client, _ := newTestClient(t, mux)

	id, err := client.FindOrCreateContact(context.Background(), "+972501234567")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != 99 {
		t.Errorf("expected contact 99, got %d", id)
	}
}

func TestFindOrCreateOpenConversation_PrefersOpen(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/accounts/7/contacts/42/conversations", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"payload": []any{
			map[string]any{"id": 1, "status": "resolved"},
			map[string]any{"id": 2, "status": "open"},
			map[string]any{"id": 3, "status": "open"},
		}})
	})
	client, _ := newTestClient(t, mux)

	id, err := client.FindOrCreateOpenConversation(context.Background(), 42, "+972501234567")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != 2 {
		t.Errorf("expected first open conversation 2, got %d", id)
	}
}

func TestFindOrCreateOpenConversation_CreatesAgainstInbox(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/accounts/7/contacts/42/conversations", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"payload": []any{}})
	})
	mux.HandleFunc("/api/v1/accounts/7/conversations", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["source_id"] != "whatsapp:+972501234567" {
			t.Errorf("expected transport-prefixed source_id, got %v", body["source_id"])
		}
		if body["inbox_id"] != float64(3) {
			t.Errorf("expected inbox_id 3, got %v", body["inbox_id"])
		}
		if body["status"] != "open" {
			t.Errorf("expected status open, got %v", body["status"])
		}
		json.NewEncoder(w).Encode(map[string]any{"id": 17})
	})
	client, _ := newTestClient(t, mux)

	id, err := client.FindOrCreateOpenConversation(context.Background(), 42, "+972501234567")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != 17 {
		t.Errorf("expected conversation 17, got %d", id)
	}
}

func TestFindOrCreateOpenConversation_NoInboxConfigured(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/accounts/7/contacts/42/conversations", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"payload": []any{}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	client, err := NewClient(
		WithBaseURL(srv.URL),
		WithToken("test-token"),
		WithAccountID("7"),
		WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	_, err = client.FindOrCreateOpenConversation(context.Background(), 42, "+972501234567")
	var hdErr *Error
	if !errors.As(err, &hdErr) || hdErr.Code != ErrorProtocol {
		t.Errorf("expected protocol error without inbox, got %v", err)
	}
}

func TestRelayMessage(t *testing.T) {
	var gotBody map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/accounts/7/conversations/17/messages", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"id": 5})
	})
	client, _ := newTestClient(t, mux)

	if !client.RelayMessage(context.Background(), 17, "אני רוצה לדבר עם נציג") {
		t.Fatal("expected relay to succeed")
	}
	if gotBody["content"] != "אני רוצה לדבר עם נציג" {
		t.Errorf("expected content to pass through, got %v", gotBody["content"])
	}
	if gotBody["message_type"] != float64(messageTypeIncoming) {
		t.Errorf("expected incoming message_type, got %v", gotBody["message_type"])
	}
}

func TestRelayMessage_EmptySuccessBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/accounts/7/conversations/17/messages", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	client, _ := newTestClient(t, mux)

	if !client.RelayMessage(context.Background(), 17, "שלום") {
		t.Error("expected relay to succeed on an empty success body")
	}
}

func TestRelayMessage_FailureReturnsFalse(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/accounts/7/conversations/17/messages", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	client, _ := newTestClient(t, mux)

	if client.RelayMessage(context.Background(), 17, "hi") {
		t.Error("expected relay to report failure")
	}
}

func TestReopenConversation_BestEffort(t *testing.T) {
	var patched bool
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/accounts/7/conversations/17", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("expected PATCH, got %s", r.Method)
		}
		patched = true
		json.NewEncoder(w).Encode(map[string]any{"id": 17, "status": "open"})
	})
	client, _ := newTestClient(t, mux)

	client.ReopenConversation(context.Background(), 17)
	if !patched {
		t.Error("expected conversation to be patched")
	}
}

func TestForwardUserMessage_EndToEnd(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/accounts/7/contacts/search", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"payload": []any{map[string]any{"id": 42}}})
	})
	mux.HandleFunc("/api/v1/accounts/7/contacts/42/conversations", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"payload": []any{map[string]any{"id": 17, "status": "open"}}})
	})
	relayed := 0
	mux.HandleFunc("/api/v1/accounts/7/conversations/17/messages", func(w http.ResponseWriter, r *http.Request) {
		relayed++
		json.NewEncoder(w).Encode(map[string]any{"id": 6})
	})
	client, _ := newTestClient(t, mux)

	if !client.ForwardUserMessage(context.Background(), "+972501234567", "שלום") {
		t.Fatal("expected forward to succeed")
	}
	if relayed != 1 {
		t.Errorf("expected exactly one relay, got %d", relayed)
	}
}

func TestFindContact_TransportError(t *testing.T) {
	client, srv := newTestClient(t, http.NewServeMux())
	srv.Close()

	_, err := client.FindOrCreateContact(context.Background(), "+972501234567")
	var hdErr *Error
	if !errors.As(err, &hdErr) || hdErr.Code != ErrorTransport {
		t.Errorf("expected transport error against closed server, got %v", err)
	}
}

func TestNewClient_MissingConfig(t *testing.T) {
	t.Setenv("CHATWOOT_API_URL", "")
	t.Setenv("CHATWOOT_TOKEN", "")
	t.Setenv("CHATWOOT_ACCOUNT_ID", "")
	t.Setenv("CHATWOOT_INBOX_ID", "")
	if _, err := NewClient(); err == nil {
		t.Error("expected error without configuration")
	}
}
