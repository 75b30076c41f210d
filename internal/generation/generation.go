package generation

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yok-tottii/EchoDoc/internal/apperr"
)

// Handoff generates documents through a completer
type Handoff struct {
	completer Completer
	tracer    trace.Tracer
	now       func() time.Time
}

// NewHandoff creates a generation handoff
func NewHandoff(completer Completer) *Handoff {
	return &Handoff{
		completer: completer,
		tracer:    otel.Tracer("echodoc/generation"),
		now:       time.Now,
	}
}

// Provider returns the provider name
func (h *Handoff) Provider() string {
	return h.completer.Name()
}

// Generate formats sourceText as a document of the given type. Blank input
// fails with EmptyInput before any network call.
func (h *Handoff) Generate(ctx context.Context, sourceText string, docType DocumentType) (*Document, error) {
	source := strings.TrimSpace(sourceText)
	if source == "" {
		return nil, apperr.EmptyInput()
	}

	tpl, ok := TemplateFor(docType)
	if !ok {
		return nil, apperr.InvalidInput("type", "unknown document type "+string(docType))
	}

	ctx, span := h.tracer.Start(ctx, "generation.Generate",
		trace.WithAttributes(
			attribute.String("provider", h.completer.Name()),
			attribute.String("document_type", string(docType)),
			attribute.Int("source_chars", len(source)),
		))
	defer span.End()

	out, err := h.completer.Complete(ctx, tpl.Prompt(source))
	if err != nil {
		appErr := apperr.Internalize(err)
		if appErr.Kind == apperr.KindInternal {
			appErr = apperr.Wrap(apperr.KindGenerationService, "document generation failed", err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, string(appErr.Kind))
		return nil, appErr
	}

	text := Cleanup(out)
	if text == "" {
		span.SetStatus(codes.Error, "empty response")
		return nil, apperr.New(apperr.KindGenerationService, "the language model returned an empty response").
			WithDetail("service", h.completer.Name())
	}

	return &Document{
		Type:      docType,
		Text:      text,
		Provider:  h.completer.Name(),
		Model:     h.completer.Model(),
		CreatedAt: h.now(),
	}, nil
}
