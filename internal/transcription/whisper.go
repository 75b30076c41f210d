package transcription

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/yok-tottii/EchoDoc/internal/apperr"
	"github.com/yok-tottii/EchoDoc/internal/httpclient"
)

// WhisperConfig configures an OpenAI-compatible transcription endpoint
type WhisperConfig struct {
	Key      string
	Model    string
	Endpoint string
}

// Whisper transcribes with the OpenAI audio transcriptions API
type Whisper struct {
	config WhisperConfig
	client *httpclient.Client
}

// NewWhisper creates a Whisper provider
func NewWhisper(config WhisperConfig, client *httpclient.Client) *Whisper {
	if config.Endpoint == "" {
		config.Endpoint = "https://api.openai.com/v1/audio/transcriptions"
	}
	if config.Model == "" {
		config.Model = "whisper-1"
	}
	return &Whisper{config: config, client: client}
}

// Name implements Provider
func (w *Whisper) Name() string { return "whisper" }

// Accepts implements Provider
func (w *Whisper) Accepts(mimeType string) bool {
	mt := normalizeMime(mimeType)
	return mt == mimeWAVPCM || mt == mimeOggOpus
}

type whisperResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// Transcribe implements Provider
func (w *Whisper) Transcribe(ctx context.Context, req Request) (*Result, error) {
	if w.config.Key == "" {
		return nil, apperr.New(apperr.KindUnauthorized, "Whisper is not configured, set OPENAI_API_KEY")
	}

	fields := map[string]string{
		"model":           w.config.Model,
		"response_format": "json",
	}
	if lang := baseLanguage(req.Language); lang != "" {
		fields["language"] = lang
	}

	// The API detects the format from the file extension
	fileName, fileType := "recording.wav", "audio/wav"
	if isOggOpus(req.MimeType) {
		fileName, fileType = "recording.ogg", "audio/ogg"
	}
	body, contentType, err := buildMultipart(fields, "file", fileName, fileType, req.Audio)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to build upload", err)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+w.config.Key)
	header.Set("Content-Type", contentType)

	resp, err := w.client.Do(ctx, httpclient.Request{
		Method:    http.MethodPost,
		URL:       w.config.Endpoint,
		Header:    header,
		Body:      body,
		Service:   w.Name(),
		ErrorKind: apperr.KindTranscriptionService,
	})
	if err != nil {
		return nil, err
	}

	var out whisperResponse
	if err := resp.JSON(&out); err != nil {
		return nil, apperr.Wrap(apperr.KindTranscriptionService, "unexpected response from whisper", err)
	}

	return &Result{Text: out.Text, Language: req.Language}, nil
}

func buildMultipart(fields map[string]string, fieldName, fileName, contentType string, data []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, fieldName, fileName))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}

	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}

// baseLanguage turns "en-GB" into "en"
func baseLanguage(tag string) string {
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		return strings.ToLower(tag[:i])
	}
	return strings.ToLower(tag)
}
