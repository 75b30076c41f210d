// Package transcription hands captured audio to a speech-to-text provider
// and normalizes the result into a Transcript or a typed error.
package transcription

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yok-tottii/EchoDoc/internal/apperr"
)

// DefaultCeiling is the largest base64 payload the transport accepts
const DefaultCeiling = 4_500_000

// Transcript is the text recognized from one capture. It is never mutated.
type Transcript struct {
	Text       string    `json:"text"`
	Confidence *float64  `json:"confidence,omitempty"`
	Language   string    `json:"language,omitempty"`
	Provider   string    `json:"provider"`
	CreatedAt  time.Time `json:"created_at"`
}

// Audio is an assembled recording ready for upload
type Audio struct {
	Data     []byte
	MimeType string
}

// Request is what a provider receives
type Request struct {
	Audio    []byte
	MimeType string
	Language string
}

// Result is what a provider returns
type Result struct {
	Text       string
	Confidence *float64
	Language   string
}

// Provider is a speech-to-text backend
type Provider interface {
	// Name returns the provider identifier
	Name() string

	// Accepts reports whether the provider can consume the given audio type
	Accepts(mimeType string) bool

	// Transcribe sends audio and returns the recognized text.
	// Errors are *apperr.Error values.
	Transcribe(ctx context.Context, req Request) (*Result, error)
}

// Config holds handoff configuration
type Config struct {
	// Ceiling is the transport limit on the base64 encoded audio
	Ceiling int64
	// Language is the recognition language hint
	Language string
}

// DefaultConfig returns the default handoff configuration
func DefaultConfig() Config {
	return Config{
		Ceiling:  DefaultCeiling,
		Language: "en-GB",
	}
}

// Handoff validates audio and calls the provider
type Handoff struct {
	provider Provider
	config   Config
	tracer   trace.Tracer
	now      func() time.Time
}

// NewHandoff creates a transcription handoff
func NewHandoff(provider Provider, config Config) *Handoff {
	if config.Ceiling <= 0 {
		config.Ceiling = DefaultCeiling
	}
	return &Handoff{
		provider: provider,
		config:   config,
		tracer:   otel.Tracer("echodoc/transcription"),
		now:      time.Now,
	}
}

// Provider returns the provider name
func (h *Handoff) Provider() string {
	return h.provider.Name()
}

// Accepts reports whether the provider consumes the given audio type
func (h *Handoff) Accepts(mimeType string) bool {
	return h.provider.Accepts(mimeType)
}

// CheckSize fails with PayloadTooLarge when the transport encoding of data
// exceeds ceiling
func CheckSize(data []byte, ceiling int64) error {
	encoded := int64(base64.StdEncoding.EncodedLen(len(data)))
	if encoded <= ceiling {
		return nil
	}
	return apperr.Newf(apperr.KindPayloadTooLarge,
		"recording is too large to transcribe (%.1f MB, limit %.1f MB), download it as a backup and record a shorter section",
		float64(encoded)/1_000_000, float64(ceiling)/1_000_000).
		WithDetail("encoded_bytes", encoded).
		WithDetail("ceiling_bytes", ceiling).
		WithDetail("audio_bytes", len(data)).
		WithDetail("backup_available", true)
}

// Transcribe turns audio into a transcript. Oversized audio fails before any
// network call.
func (h *Handoff) Transcribe(ctx context.Context, audio Audio) (*Transcript, error) {
	ctx, span := h.tracer.Start(ctx, "transcription.Transcribe",
		trace.WithAttributes(
			attribute.String("provider", h.provider.Name()),
			attribute.String("mime_type", audio.MimeType),
			attribute.Int("audio_bytes", len(audio.Data)),
		))
	defer span.End()

	if err := CheckSize(audio.Data, h.config.Ceiling); err != nil {
		span.SetStatus(codes.Error, "payload too large")
		return nil, err
	}

	res, err := h.provider.Transcribe(ctx, Request{
		Audio:    audio.Data,
		MimeType: audio.MimeType,
		Language: h.config.Language,
	})
	if err != nil {
		appErr := apperr.Internalize(err)
		if appErr.Kind == apperr.KindInternal {
			appErr = apperr.Wrap(apperr.KindTranscriptionService, "transcription failed", err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, string(appErr.Kind))
		return nil, appErr
	}

	text := strings.TrimSpace(res.Text)
	if text == "" {
		span.SetStatus(codes.Error, "no speech")
		return nil, apperr.NoSpeechDetected()
	}

	language := res.Language
	if language == "" {
		language = h.config.Language
	}

	span.SetAttributes(attribute.Int("transcript_chars", len(text)))

	return &Transcript{
		Text:       text,
		Confidence: res.Confidence,
		Language:   language,
		Provider:   h.provider.Name(),
		CreatedAt:  h.now(),
	}, nil
}
