package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/yok-tottii/EchoDoc/internal/apperr"
	"github.com/yok-tottii/EchoDoc/internal/httpclient"
)

// Completion is one system + user prompt exchange
type Completion struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// Completer runs completions against a language model
type Completer interface {
	// Name returns the provider identifier
	Name() string
	// Model returns the model used
	Model() string
	// Complete returns the model output. Errors are *apperr.Error values.
	Complete(ctx context.Context, c Completion) (string, error)
}

// Dialect maps a Completion to one provider's HTTP format
type Dialect interface {
	Name() string
	DefaultBaseURL() string
	DefaultModel() string
	ChatPath() string
	Headers(apiKey string) http.Header
	BuildRequest(model string, c Completion) (any, error)
	ParseResponse(body []byte) (string, error)
}

// ChatConfig configures a chat client
type ChatConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// ChatClient is a Completer over a Dialect
type ChatClient struct {
	dialect Dialect
	config  ChatConfig
	client  *httpclient.Client
}

// NewChatClient creates a completer for the given dialect
func NewChatClient(dialect Dialect, config ChatConfig, client *httpclient.Client) *ChatClient {
	if config.BaseURL == "" {
		config.BaseURL = dialect.DefaultBaseURL()
	}
	if config.Model == "" {
		config.Model = dialect.DefaultModel()
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &ChatClient{dialect: dialect, config: config, client: client}
}

// Name implements Completer
func (c *ChatClient) Name() string { return c.dialect.Name() }

// Model implements Completer
func (c *ChatClient) Model() string { return c.config.Model }

// Complete implements Completer
func (c *ChatClient) Complete(ctx context.Context, comp Completion) (string, error) {
	if c.config.APIKey == "" {
		return "", apperr.Newf(apperr.KindUnauthorized, "%s is not configured, add its API key", c.dialect.Name())
	}

	payload, err := c.dialect.BuildRequest(c.config.Model, comp)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "failed to build request", err)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "failed to encode request", err)
	}

	header := c.dialect.Headers(c.config.APIKey)
	header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(ctx, httpclient.Request{
		Method:    http.MethodPost,
		URL:       c.config.BaseURL + c.dialect.ChatPath(),
		Header:    header,
		Body:      body,
		Service:   c.dialect.Name(),
		ErrorKind: apperr.KindGenerationService,
	})
	if err != nil {
		return "", err
	}

	text, err := c.dialect.ParseResponse(resp.Body)
	if err != nil {
		return "", apperr.Wrap(apperr.KindGenerationService, fmt.Sprintf("unexpected response from %s", c.dialect.Name()), err)
	}
	return text, nil
}

// OpenRouter speaks the OpenAI chat completions format
type OpenRouter struct{}

func (OpenRouter) Name() string           { return "openrouter" }
func (OpenRouter) DefaultBaseURL() string { return "https://openrouter.ai/api/v1" }
func (OpenRouter) DefaultModel() string   { return "deepseek/deepseek-chat" }
func (OpenRouter) ChatPath() string       { return "/chat/completions" }

func (OpenRouter) Headers(apiKey string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+apiKey)
	h.Set("X-Title", "EchoDoc")
	return h
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (OpenRouter) BuildRequest(model string, c Completion) (any, error) {
	return openAIRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: c.System},
			{Role: "user", Content: c.User},
		},
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
	}, nil
}

func (OpenRouter) ParseResponse(body []byte) (string, error) {
	var resp openAIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// Anthropic speaks the Messages API
type Anthropic struct{}

func (Anthropic) Name() string           { return "anthropic" }
func (Anthropic) DefaultBaseURL() string { return "https://api.anthropic.com/v1" }
func (Anthropic) DefaultModel() string   { return "claude-3-5-sonnet-latest" }
func (Anthropic) ChatPath() string       { return "/messages" }

func (Anthropic) Headers(apiKey string) http.Header {
	h := http.Header{}
	h.Set("x-api-key", apiKey)
	h.Set("anthropic-version", "2023-06-01")
	return h
}

type anthropicRequest struct {
	Model       string        `json:"model"`
	System      string        `json:"system,omitempty"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (Anthropic) BuildRequest(model string, c Completion) (any, error) {
	maxTokens := c.MaxTokens
	if maxTokens <= 0 {
		maxTokens = letterMaxTokens
	}
	return anthropicRequest{
		Model:       model,
		System:      c.System,
		Messages:    []chatMessage{{Role: "user", Content: c.User}},
		Temperature: c.Temperature,
		MaxTokens:   maxTokens,
	}, nil
}

func (Anthropic) ParseResponse(body []byte) (string, error) {
	var resp anthropicResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

// Dialects returns the supported dialects by name
func Dialects() map[string]Dialect {
	return map[string]Dialect{
		"openrouter": OpenRouter{},
		"anthropic":  Anthropic{},
	}
}

// NewCompleter builds the completer for a provider name
func NewCompleter(provider string, config ChatConfig, client *httpclient.Client) (Completer, error) {
	if provider == "" {
		provider = "openrouter"
	}
	d, ok := Dialects()[provider]
	if !ok {
		return nil, fmt.Errorf("unknown generation provider: %s", provider)
	}
	return NewChatClient(d, config, client), nil
}
