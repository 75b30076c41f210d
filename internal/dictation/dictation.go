// Package dictation owns the capture session lifecycle: it starts and stops
// recording, hands the finished capture to transcription, keeps the transcript
// and generated documents, and fans events out to the UI.
package dictation

import (
	"context"
	"time"

	"github.com/yok-tottii/EchoDoc/internal/apperr"
	"github.com/yok-tottii/EchoDoc/internal/audio"
	"github.com/yok-tottii/EchoDoc/internal/generation"
	"github.com/yok-tottii/EchoDoc/internal/store"
	"github.com/yok-tottii/EchoDoc/internal/transcription"
)

// Transcriber converts a capture into text
type Transcriber interface {
	Provider() string
	Accepts(mimeType string) bool
	Transcribe(ctx context.Context, audio transcription.Audio) (*transcription.Transcript, error)
}

// Generator formats text as a document
type Generator interface {
	Provider() string
	Generate(ctx context.Context, sourceText string, docType generation.DocumentType) (*generation.Document, error)
}

// History persists sessions and their results
type History interface {
	SaveSession(ctx context.Context, sess store.Session) error
	SaveTranscript(ctx context.Context, tr store.Transcript) error
	SaveDocument(ctx context.Context, doc store.Document) (string, error)
}

// Notifier shows desktop notifications
type Notifier interface {
	RecordingStarted(mode string) error
	SizeBudgetWarning(remaining time.Duration) error
	ForcedStop() error
	TranscriptionComplete() error
	TranscriptionFailed(reason string) error
	BackupAvailable() error
	DocumentReady(docType string) error
	GenerationFailed(reason string) error
	MicrophonePermissionDenied() error
	DeviceNotFound() error
	RecordingFailed(reason string) error
}

// Transcript is the current source text, recognized or typed by the user
type Transcript struct {
	SessionID  string    `json:"sessionId,omitempty"`
	Text       string    `json:"text"`
	Provider   string    `json:"provider,omitempty"`
	Language   string    `json:"language,omitempty"`
	Confidence *float64  `json:"confidence,omitempty"`
	Manual     bool      `json:"manual"`
	CreatedAt  time.Time `json:"createdAt"`
}

// GenerateRequest asks for one document
type GenerateRequest struct {
	Type generation.DocumentType `json:"type"`
	// Redact removes identifiers from the source before it is sent
	Redact bool `json:"redact"`
	// FromType derives the document from an earlier one instead of the transcript
	FromType generation.DocumentType `json:"fromType,omitempty"`
}

// Status is a snapshot of the controller
type Status struct {
	SessionID     string        `json:"sessionId,omitempty"`
	State         string        `json:"state"`
	Mode          string        `json:"mode,omitempty"`
	ElapsedMs     int64         `json:"elapsedMs"`
	EncodedBytes  int64         `json:"encodedBytes"`
	Encoding      *audio.Choice `json:"encoding,omitempty"`
	Warnings      []string      `json:"warnings,omitempty"`
	HasTranscript bool          `json:"hasTranscript"`
	HasBackup     bool          `json:"hasBackup"`
	Documents     []string      `json:"documents,omitempty"`
	Error         *apperr.Error `json:"error,omitempty"`
}
