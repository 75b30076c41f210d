package transcription

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/yok-tottii/EchoDoc/internal/apperr"
	"github.com/yok-tottii/EchoDoc/internal/httpclient"
)

// DeepgramConfig configures the Deepgram pre-recorded provider
type DeepgramConfig struct {
	Key      string
	Model    string
	Endpoint string
}

// Deepgram transcribes with the Deepgram listen API
type Deepgram struct {
	config DeepgramConfig
	client *httpclient.Client
}

// NewDeepgram creates a Deepgram provider
func NewDeepgram(config DeepgramConfig, client *httpclient.Client) *Deepgram {
	if config.Endpoint == "" {
		config.Endpoint = "https://api.deepgram.com/v1/listen"
	}
	if config.Model == "" {
		config.Model = "nova-2-medical"
	}
	return &Deepgram{config: config, client: client}
}

// Name implements Provider
func (d *Deepgram) Name() string { return "deepgram" }

// Accepts implements Provider
func (d *Deepgram) Accepts(mimeType string) bool {
	return strings.HasPrefix(normalizeMime(mimeType), "audio/wav") || isOggOpus(mimeType)
}

type deepgramResponse struct {
	Results struct {
		Channels []struct {
			DetectedLanguage string `json:"detected_language"`
			Alternatives     []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// Transcribe implements Provider
func (d *Deepgram) Transcribe(ctx context.Context, req Request) (*Result, error) {
	if d.config.Key == "" {
		return nil, apperr.New(apperr.KindUnauthorized, "Deepgram is not configured, set DEEPGRAM_API_KEY")
	}

	params := url.Values{
		"model":        {d.config.Model},
		"smart_format": {"true"},
		"punctuate":    {"true"},
	}
	if req.Language != "" {
		params.Set("language", req.Language)
	}

	header := http.Header{}
	header.Set("Authorization", "Token "+d.config.Key)
	if isOggOpus(req.MimeType) {
		header.Set("Content-Type", "audio/ogg")
	} else {
		header.Set("Content-Type", "audio/wav")
	}

	resp, err := d.client.Do(ctx, httpclient.Request{
		Method:    http.MethodPost,
		URL:       d.config.Endpoint + "?" + params.Encode(),
		Header:    header,
		Body:      req.Audio,
		Service:   d.Name(),
		ErrorKind: apperr.KindTranscriptionService,
	})
	if err != nil {
		return nil, err
	}

	var body deepgramResponse
	if err := resp.JSON(&body); err != nil {
		return nil, apperr.Wrap(apperr.KindTranscriptionService, "unexpected response from deepgram", err)
	}

	result := &Result{Language: req.Language}
	if len(body.Results.Channels) == 0 || len(body.Results.Channels[0].Alternatives) == 0 {
		return result, nil
	}

	ch := body.Results.Channels[0]
	alt := ch.Alternatives[0]
	result.Text = alt.Transcript
	confidence := alt.Confidence
	result.Confidence = &confidence
	if ch.DetectedLanguage != "" {
		result.Language = ch.DetectedLanguage
	}
	return result, nil
}
