package transcription

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/yok-tottii/EchoDoc/internal/apperr"
	"github.com/yok-tottii/EchoDoc/internal/httpclient"
)

// RelayConfig configures a serverless transcription relay
type RelayConfig struct {
	URL string
	// Token is sent as a bearer token when set
	Token string
}

// Relay posts base64 audio to a serverless function that holds the
// provider credentials
type Relay struct {
	config RelayConfig
	client *httpclient.Client
}

// NewRelay creates a relay provider
func NewRelay(config RelayConfig, client *httpclient.Client) *Relay {
	return &Relay{config: config, client: client}
}

// Name implements Provider
func (r *Relay) Name() string { return "relay" }

// Accepts implements Provider
func (r *Relay) Accepts(mimeType string) bool {
	mt := normalizeMime(mimeType)
	return mt == mimeWAVPCM || mt == mimeWAVMulaw || mt == mimeOggOpus
}

type relayRequest struct {
	AudioBlob string `json:"audioBlob"`
	MimeType  string `json:"mimeType,omitempty"`
	Language  string `json:"language,omitempty"`
}

type relayResponse struct {
	Transcript string   `json:"transcript"`
	Confidence *float64 `json:"confidence"`
	Error      string   `json:"error"`
}

// Transcribe implements Provider
func (r *Relay) Transcribe(ctx context.Context, req Request) (*Result, error) {
	if r.config.URL == "" {
		return nil, apperr.New(apperr.KindTranscriptionService, "no relay URL configured")
	}

	payload, err := json.Marshal(relayRequest{
		AudioBlob: base64.StdEncoding.EncodeToString(req.Audio),
		MimeType:  req.MimeType,
		Language:  req.Language,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to encode request", err)
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	if r.config.Token != "" {
		header.Set("Authorization", "Bearer "+r.config.Token)
	}

	resp, err := r.client.Do(ctx, httpclient.Request{
		Method:    http.MethodPost,
		URL:       r.config.URL,
		Header:    header,
		Body:      payload,
		Service:   r.Name(),
		ErrorKind: apperr.KindTranscriptionService,
	})
	if err != nil {
		return nil, err
	}

	var out relayResponse
	if err := resp.JSON(&out); err != nil {
		return nil, apperr.Wrap(apperr.KindTranscriptionService, "unexpected response from relay", err)
	}

	return &Result{Text: out.Transcript, Confidence: out.Confidence, Language: req.Language}, nil
}
