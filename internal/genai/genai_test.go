package genai

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/openai/openai-go"
)

// mockChatService implements chatService for testing.
type mockChatService struct {
	resp   openai.ChatCompletion
	err    error
	params openai.ChatCompletionNewParams
}

func (m *mockChatService) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	m.params = params
	return m.resp, m.err
}

func TestGenerateReply_Success(t *testing.T) {
	mockResp := openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: "  שלום, במה אפשר לעזור?  "}},
		},
	}
	mock := &mockChatService{resp: mockResp}
	client := &Client{chat: mock, model: DefaultModel, maxTokens: DefaultMaxTokens, temperature: DefaultTemperature}
	out, err := client.GenerateReply(context.Background(), "system prompt", "user message")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out != "שלום, במה אפשר לעזור?" {
		t.Errorf("expected trimmed reply, got %q", out)
	}
	if string(mock.params.Model) != DefaultModel {
		t.Errorf("expected model %q, got %q", DefaultModel, mock.params.Model)
	}
	if len(mock.params.Messages) != 2 {
		t.Errorf("expected 2 messages (system + user), got %d", len(mock.params.Messages))
	}
}

func TestGenerateReply_ServiceError(t *testing.T) {
	client := &Client{chat: &mockChatService{err: errors.New("service failure")}, model: DefaultModel}
	_, err := client.GenerateReply(context.Background(), "sys", "usr")
	if err == nil || !strings.Contains(err.Error(), "service failure") {
		t.Errorf("expected service failure error, got %v", err)
	}
}

func TestGenerateReply_NoChoices(t *testing.T) {
	mockResp := openai.ChatCompletion{Choices: []openai.ChatCompletionChoice{}}
	client := &Client{chat: &mockChatService{resp: mockResp}, model: DefaultModel}
	_, err := client.GenerateReply(context.Background(), "sys", "usr")
	if !errors.Is(err, ErrNoChoicesReturned) {
		t.Errorf("expected no choices returned error, got %v", err)
	}
}

func TestNewClient_NoKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewClient()
	if err == nil {
		t.Error("expected error when API key not provided, got nil")
	}
}

func TestNewClient_WithKey(t *testing.T) {
	cli, err := NewClient(WithAPIKey("test-key"))
	if err != nil {
		t.Fatalf("expected no error with API key, got %v", err)
	}
	if cli == nil {
		t.Fatal("expected client instance, got nil")
	}
	if cli.model != DefaultModel || cli.maxTokens != DefaultMaxTokens {
		t.Errorf("expected default generation settings, got model=%q maxTokens=%d", cli.model, cli.maxTokens)
	}
}

func TestSystemPrompt_IncludesWeekdayAndTime(t *testing.T) {
	// 2026-08-31 is a Monday; 09:00 UTC is 12:00 in Asia/Jerusalem (IDT).
	now := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
	prompt := SystemPrompt(now)
	if !strings.Contains(prompt, "יום שני") {
		t.Errorf("expected Hebrew weekday for Monday in prompt, got prefix %q", prompt[:120])
	}
	if !strings.Contains(prompt, "31/08/2026") {
		t.Errorf("expected local date in prompt, got prefix %q", prompt[:120])
	}
	if !strings.Contains(prompt, clinicPersona) {
		t.Error("expected persona text appended to prompt")
	}
}

func TestSystemPrompt_RecomputedPerCall(t *testing.T) {
	a := SystemPrompt(time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC))
	b := SystemPrompt(time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC))
	if a == b {
		t.Error("expected prompts for different days to differ")
	}
}

func TestIsHandoffReply(t *testing.T) {
	cases := []struct {
		reply string
		want  bool
	}{
		{"אני מעביר אותך לנציג אנושי", true},
		{"מעביר אותך לנציג", true},
		{"שעות הפעילות הן 11:00 עד 19:00", false},
		{"", false},
	}
	for _, c := range cases {
		if got := IsHandoffReply(c.reply); got != c.want {
			t.Errorf("IsHandoffReply(%q) = %v, want %v", c.reply, got, c.want)
		}
	}
}

func TestGenerateReply_PassesGenerationSettings(t *testing.T) {
	mockResp := openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: "תשובה"}},
		},
	}
	mock := &mockChatService{resp: mockResp}
	client := &Client{chat: mock, model: DefaultModel, maxTokens: 99, temperature: 0.2}
	if _, err := client.GenerateReply(context.Background(), "sys", "usr"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got := mock.params.MaxTokens.Or(0); got != 99 {
		t.Errorf("expected max tokens 99, got %d", got)
	}
	if got := mock.params.Temperature.Or(0); got != 0.2 {
		t.Errorf("expected temperature 0.2, got %v", got)
	}
}

func TestOptions_OverrideGenerationSettings(t *testing.T) {
	var o Opts
	WithModel("gpt-test")(&o)
	WithMaxTokens(42)(&o)
	WithTemperature(0.3)(&o)
	if o.Model != "gpt-test" {
		t.Errorf("expected model override, got %q", o.Model)
	}
	if o.MaxTokens != 42 {
		t.Errorf("expected max tokens override, got %d", o.MaxTokens)
	}
	if o.Temperature != 0.3 {
		t.Errorf("expected temperature override, got %v", o.Temperature)
	}
}
