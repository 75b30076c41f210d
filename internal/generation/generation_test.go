package generation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yok-tottii/EchoDoc/internal/apperr"
	"github.com/yok-tottii/EchoDoc/internal/httpclient"
)

type fakeCompleter struct {
	mu    sync.Mutex
	calls []Completion
	reply func(c Completion) (string, error)
}

func (f *fakeCompleter) Name() string  { return "fake" }
func (f *fakeCompleter) Model() string { return "fake-model" }

func (f *fakeCompleter) Complete(ctx context.Context, c Completion) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
	return f.reply(c)
}

func testClient() *httpclient.Client {
	return httpclient.NewWithHTTPClient(http.DefaultClient, httpclient.Config{
		MaxAttempts:     1,
		InitialInterval: time.Millisecond,
	})
}

func TestGenerateEmptyInput(t *testing.T) {
	completer := &fakeCompleter{reply: func(Completion) (string, error) { return "x", nil }}
	h := NewHandoff(completer)

	for _, dt := range DocumentTypes() {
		for _, input := range []string{"", "   ", "\n\t "} {
			_, err := h.Generate(context.Background(), input, dt)
			if !apperr.Is(err, apperr.KindEmptyInput) {
				t.Errorf("%s with %q: expected EmptyInput, got %v", dt, input, err)
			}
		}
	}

	if len(completer.calls) != 0 {
		t.Errorf("Expected no completion calls, got %d", len(completer.calls))
	}
}

// Referral and patient letters are independent of each other
func TestGenerateIndependentTypes(t *testing.T) {
	completer := &fakeCompleter{reply: func(c Completion) (string, error) {
		if strings.Contains(c.User, "referral") {
			return "Dear Colleague", nil
		}
		return "Dear Mrs Smith", nil
	}}
	h := NewHandoff(completer)
	transcript := "Patient with knee pain for six weeks."

	orders := [][]DocumentType{
		{Referral, Patient},
		{Patient, Referral},
		{Patient},
	}

	for _, order := range orders {
		for _, dt := range order {
			doc, err := h.Generate(context.Background(), transcript, dt)
			if err != nil {
				t.Fatalf("Generate(%s) failed: %v", dt, err)
			}
			if doc.Type != dt {
				t.Errorf("Expected type %s, got %s", dt, doc.Type)
			}
		}
	}
}

func TestGenerateCleansOutput(t *testing.T) {
	completer := &fakeCompleter{reply: func(Completion) (string, error) {
		return "```\n**Presenting Complaint**\nCough\n\n\n\nPlan\n```", nil
	}}
	h := NewHandoff(completer)

	doc, err := h.Generate(context.Background(), "cough", ClinicalSummary)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	expected := "Presenting Complaint\nCough\n\nPlan"
	if doc.Text != expected {
		t.Errorf("Expected %q, got %q", expected, doc.Text)
	}
	if doc.Provider != "fake" || doc.Model != "fake-model" {
		t.Errorf("Unexpected provider metadata: %+v", doc)
	}
}

func TestGenerateUsesTemplate(t *testing.T) {
	completer := &fakeCompleter{reply: func(Completion) (string, error) { return "ok", nil }}
	h := NewHandoff(completer)

	h.Generate(context.Background(), "  the transcript  ", ClinicalSummary)
	h.Generate(context.Background(), "the transcript", Referral)

	if len(completer.calls) != 2 {
		t.Fatalf("Expected 2 calls, got %d", len(completer.calls))
	}
	summary := completer.calls[0]
	if summary.MaxTokens != 2000 || summary.Temperature != 0.3 {
		t.Errorf("Unexpected summary settings: %+v", summary)
	}
	if !strings.HasSuffix(summary.User, "\n\nthe transcript") {
		t.Errorf("Expected trimmed transcript in prompt, got %q", summary.User)
	}
	if completer.calls[1].MaxTokens != 3000 {
		t.Errorf("Expected 3000 tokens for letters, got %d", completer.calls[1].MaxTokens)
	}
}

func TestGenerateEmptyResponse(t *testing.T) {
	h := NewHandoff(&fakeCompleter{reply: func(Completion) (string, error) { return "```\n\n```", nil }})
	_, err := h.Generate(context.Background(), "text", General)
	if !apperr.Is(err, apperr.KindGenerationService) {
		t.Errorf("Expected GenerationServiceError, got %v", err)
	}
}

func TestParseDocumentType(t *testing.T) {
	tests := []struct {
		input    string
		expected DocumentType
		wantErr  bool
	}{
		{"referral", Referral, false},
		{"clinical", ClinicalSummary, false},
		{"sick-note", SickNote, false},
		{"isReferral", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			dt, err := ParseDocumentType(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Expected error=%v, got %v", tt.wantErr, err)
			}
			if dt != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, dt)
			}
		})
	}
}

func TestEveryTypeHasTemplate(t *testing.T) {
	for _, dt := range DocumentTypes() {
		tpl, ok := TemplateFor(dt)
		if !ok {
			t.Errorf("No template for %s", dt)
			continue
		}
		if tpl.System == "" || tpl.MaxTokens == 0 {
			t.Errorf("Incomplete template for %s", dt)
		}
	}
}

func TestCleanup(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", "Dear Dr Jones", "Dear Dr Jones"},
		{"fenced", "```markdown\nHello\n```", "Hello"},
		{"bold", "**Plan**: rest", "Plan: rest"},
		{"stray markers", "Plan ** rest", "Plan  rest"},
		{"blank lines", "a\n\n\n\n\nb", "a\n\nb"},
		{"crlf", "a\r\n\r\n\r\n\r\nb", "a\n\nb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Cleanup(tt.input); got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestOpenRouterCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer or-key" {
			t.Errorf("Unexpected auth header %q", r.Header.Get("Authorization"))
		}
		var req openAIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Decode failed: %v", err)
			return
		}
		if req.Model != "deepseek/deepseek-chat" || len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("Unexpected request: %+v", req)
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Dear Colleague"}}]}`))
	}))
	defer srv.Close()

	c := NewChatClient(OpenRouter{}, ChatConfig{APIKey: "or-key", BaseURL: srv.URL + "/"}, testClient())
	out, err := c.Complete(context.Background(), Completion{System: "s", User: "u", Temperature: 0.3, MaxTokens: 10})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if out != "Dear Colleague" {
		t.Errorf("Expected reply, got %q", out)
	}
}

func TestAnthropicCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "ant-key" || r.Header.Get("anthropic-version") == "" {
			t.Error("Missing Anthropic headers")
		}
		var req anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Decode failed: %v", err)
			return
		}
		if req.System != "s" || len(req.Messages) != 1 {
			t.Errorf("Unexpected request: %+v", req)
		}
		w.Write([]byte(`{"content":[{"type":"text","text":"Hello "},{"type":"text","text":"there"}]}`))
	}))
	defer srv.Close()

	c := NewChatClient(Anthropic{}, ChatConfig{APIKey: "ant-key", BaseURL: srv.URL}, testClient())
	out, err := c.Complete(context.Background(), Completion{System: "s", User: "u"})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if out != "Hello there" {
		t.Errorf("Expected joined text, got %q", out)
	}
}

func TestCompletionErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"slow down"}}`))
	}))
	defer srv.Close()

	h := NewHandoff(NewChatClient(OpenRouter{}, ChatConfig{APIKey: "k", BaseURL: srv.URL}, testClient()))
	_, err := h.Generate(context.Background(), "text", Referral)
	if !apperr.Is(err, apperr.KindRateLimited) {
		t.Errorf("Expected RateLimited, got %v", err)
	}

	noKey := NewHandoff(NewChatClient(Anthropic{}, ChatConfig{}, testClient()))
	_, err = noKey.Generate(context.Background(), "text", Referral)
	if !apperr.Is(err, apperr.KindUnauthorized) {
		t.Errorf("Expected Unauthorized without a key, got %v", err)
	}
}

func TestNewCompleter(t *testing.T) {
	c, err := NewCompleter("", ChatConfig{}, testClient())
	if err != nil {
		t.Fatalf("NewCompleter failed: %v", err)
	}
	if c.Name() != "openrouter" || c.Model() != "deepseek/deepseek-chat" {
		t.Errorf("Unexpected default completer %s/%s", c.Name(), c.Model())
	}

	if _, err := NewCompleter("bard", ChatConfig{}, testClient()); err == nil {
		t.Error("Expected error for unknown provider")
	}
}
