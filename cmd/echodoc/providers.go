package main

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/yok-tottii/EchoDoc/internal/apperr"
	"github.com/yok-tottii/EchoDoc/internal/config"
	"github.com/yok-tottii/EchoDoc/internal/generation"
	"github.com/yok-tottii/EchoDoc/internal/httpclient"
	"github.com/yok-tottii/EchoDoc/internal/transcription"
)

// providers holds the current transcription and generation handoffs. They are
// rebuilt when the settings change so a new provider takes effect without a
// restart.
type providers struct {
	client *httpclient.Client

	mu          sync.RWMutex
	transcriber *transcription.Handoff
	generator   *generation.Handoff
}

func newProviders(client *httpclient.Client) *providers {
	return &providers{client: client}
}

// Apply builds handoffs for cfg. The previous handoffs stay in place when
// the new transcription provider cannot be built.
func (p *providers) Apply(cfg *config.Config) error {
	c := cfg.Clone()

	provider, err := transcription.NewProvider(transcriptionSettings(c), p.client)
	if err != nil {
		return err
	}
	handoffConfig := transcription.DefaultConfig()
	handoffConfig.Language = c.Language
	if c.Recording.CeilingBytes > 0 {
		handoffConfig.Ceiling = c.Recording.CeilingBytes
	}
	transcriber := transcription.NewHandoff(provider, handoffConfig)

	var generator *generation.Handoff
	completer, err := generation.NewCompleter(c.Generation.Provider, generation.ChatConfig{
		APIKey:  generationKey(c),
		Model:   c.Generation.Model,
		BaseURL: c.Generation.BaseURL,
	}, p.client)
	if err == nil {
		generator = generation.NewHandoff(completer)
	}

	p.mu.Lock()
	p.transcriber = transcriber
	p.generator = generator
	p.mu.Unlock()

	if err != nil {
		return fmt.Errorf("generation disabled: %w", err)
	}
	return nil
}

func transcriptionSettings(c *config.Config) transcription.Settings {
	region := c.Credentials.AzureSpeechRegion
	if region == "" {
		region = c.Transcription.AzureRegion
	}
	return transcription.Settings{
		Provider: c.Transcription.Provider,
		Azure: transcription.AzureConfig{
			Key:      c.Credentials.AzureSpeechKey,
			Region:   region,
			Endpoint: c.Transcription.AzureEndpoint,
		},
		Deepgram: transcription.DeepgramConfig{
			Key:   c.Credentials.DeepgramAPIKey,
			Model: c.Transcription.DeepgramModel,
		},
		Whisper: transcription.WhisperConfig{
			Key:      c.Credentials.OpenAIAPIKey,
			Model:    c.Transcription.WhisperModel,
			Endpoint: whisperEndpoint(c.Transcription.WhisperBaseURL),
		},
		Relay: transcription.RelayConfig{
			URL:   c.Transcription.RelayURL,
			Token: c.Credentials.RelayToken,
		},
	}
}

// whisperEndpoint turns an OpenAI-compatible base URL into the
// transcriptions endpoint
func whisperEndpoint(baseURL string) string {
	if baseURL == "" {
		return ""
	}
	return strings.TrimRight(baseURL, "/") + "/audio/transcriptions"
}

func generationKey(c *config.Config) string {
	if c.Generation.Provider == "anthropic" {
		return c.Credentials.AnthropicAPIKey
	}
	return c.Credentials.OpenRouterAPIKey
}

func (p *providers) current() (*transcription.Handoff, *generation.Handoff) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.transcriber, p.generator
}

// transcriber adapts providers to dictation.Transcriber
type transcriber struct{ p *providers }

func (t transcriber) Provider() string {
	h, _ := t.p.current()
	if h == nil {
		return ""
	}
	return h.Provider()
}

func (t transcriber) Accepts(mimeType string) bool {
	h, _ := t.p.current()
	return h != nil && h.Accepts(mimeType)
}

func (t transcriber) Transcribe(ctx context.Context, audio transcription.Audio) (*transcription.Transcript, error) {
	h, _ := t.p.current()
	if h == nil {
		return nil, apperr.New(apperr.KindInternal, "no transcription provider is configured")
	}
	return h.Transcribe(ctx, audio)
}

// generator adapts providers to dictation.Generator
type generator struct{ p *providers }

func (g generator) Provider() string {
	_, h := g.p.current()
	if h == nil {
		return ""
	}
	return h.Provider()
}

func (g generator) Generate(ctx context.Context, sourceText string, docType generation.DocumentType) (*generation.Document, error) {
	_, h := g.p.current()
	if h == nil {
		return nil, apperr.New(apperr.KindInternal, "no generation provider is configured")
	}
	return h.Generate(ctx, sourceText, docType)
}
