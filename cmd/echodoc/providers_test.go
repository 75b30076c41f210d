package main

import (
	"context"
	"strings"
	"testing"

	"github.com/yok-tottii/EchoDoc/internal/config"
	"github.com/yok-tottii/EchoDoc/internal/httpclient"
	"github.com/yok-tottii/EchoDoc/internal/transcription"
)

func TestWhisperEndpoint(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"", ""},
		{"http://localhost:8080/v1", "http://localhost:8080/v1/audio/transcriptions"},
		{"http://localhost:8080/v1/", "http://localhost:8080/v1/audio/transcriptions"},
	}

	for _, tt := range tests {
		if got := whisperEndpoint(tt.base); got != tt.want {
			t.Errorf("whisperEndpoint(%q): expected %q, got %q", tt.base, tt.want, got)
		}
	}
}

func TestTranscriptionSettings(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Transcription.Provider = "deepgram"
	cfg.Credentials.AzureSpeechKey = "azure-key"
	cfg.Credentials.DeepgramAPIKey = "dg-key"

	s := transcriptionSettings(cfg)
	if s.Provider != transcription.ProviderDeepgram {
		t.Errorf("Expected provider deepgram, got %s", s.Provider)
	}
	if s.Deepgram.Key != "dg-key" {
		t.Errorf("Expected deepgram key, got %q", s.Deepgram.Key)
	}
	if s.Deepgram.Model != "nova-2-medical" {
		t.Errorf("Expected default deepgram model, got %q", s.Deepgram.Model)
	}
	if s.Azure.Region != "uksouth" {
		t.Errorf("Expected region from settings, got %q", s.Azure.Region)
	}

	cfg.Credentials.AzureSpeechRegion = "westeurope"
	if got := transcriptionSettings(cfg).Azure.Region; got != "westeurope" {
		t.Errorf("Expected region from environment to win, got %q", got)
	}
}

func TestGenerationKey(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Credentials.OpenRouterAPIKey = "or-key"
	cfg.Credentials.AnthropicAPIKey = "an-key"

	if got := generationKey(cfg); got != "or-key" {
		t.Errorf("Expected openrouter key, got %q", got)
	}
	cfg.Generation.Provider = "anthropic"
	if got := generationKey(cfg); got != "an-key" {
		t.Errorf("Expected anthropic key, got %q", got)
	}
}

func TestProvidersApply(t *testing.T) {
	p := newProviders(httpclient.New(httpclient.DefaultConfig()))

	if err := p.Apply(config.DefaultConfig()); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if got := (transcriber{p}).Provider(); got != transcription.ProviderAzure {
		t.Errorf("Expected azure transcriber, got %q", got)
	}
	if got := (generator{p}).Provider(); got != "openrouter" {
		t.Errorf("Expected openrouter generator, got %q", got)
	}
}

func TestProvidersApplyKeepsTranscriberOnUnknownProvider(t *testing.T) {
	p := newProviders(httpclient.New(httpclient.DefaultConfig()))
	if err := p.Apply(config.DefaultConfig()); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.Transcription.Provider = "bogus"
	if err := p.Apply(cfg); err == nil {
		t.Error("Expected error for unknown transcription provider")
	}
	if got := (transcriber{p}).Provider(); got != transcription.ProviderAzure {
		t.Errorf("Expected previous transcriber to stay, got %q", got)
	}
}

func TestProvidersApplyDisablesGeneration(t *testing.T) {
	p := newProviders(httpclient.New(httpclient.DefaultConfig()))
	cfg := config.DefaultConfig()
	cfg.Generation.Provider = "bogus"

	err := p.Apply(cfg)
	if err == nil || !strings.Contains(err.Error(), "generation disabled") {
		t.Errorf("Expected generation disabled error, got %v", err)
	}
	if got := (transcriber{p}).Provider(); got == "" {
		t.Error("Expected transcriber to be configured")
	}
	if _, err := (generator{p}).Generate(context.Background(), "text", "referral"); err == nil {
		t.Error("Expected error without a generation provider")
	}
}

func TestUnconfiguredProviders(t *testing.T) {
	p := newProviders(httpclient.New(httpclient.DefaultConfig()))

	if (transcriber{p}).Accepts("audio/wav") {
		t.Error("Expected no mime type to be accepted without a provider")
	}
	if _, err := (transcriber{p}).Transcribe(context.Background(), transcription.Audio{}); err == nil {
		t.Error("Expected error without a transcription provider")
	}
}
