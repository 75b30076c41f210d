package transcription

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/yok-tottii/EchoDoc/internal/apperr"
	"github.com/yok-tottii/EchoDoc/internal/httpclient"
)

// AzureConfig configures the Azure Speech short-audio REST provider
type AzureConfig struct {
	Key    string
	Region string
	// Endpoint overrides the regional endpoint
	Endpoint string
}

// Azure transcribes with Azure Speech Services
type Azure struct {
	config AzureConfig
	client *httpclient.Client
}

// NewAzure creates an Azure Speech provider
func NewAzure(config AzureConfig, client *httpclient.Client) *Azure {
	if config.Endpoint == "" {
		config.Endpoint = fmt.Sprintf("https://%s.stt.speech.microsoft.com/speech/recognition/conversation/cognitiveservices/v1", config.Region)
	}
	return &Azure{config: config, client: client}
}

// Name implements Provider
func (a *Azure) Name() string { return "azure" }

// Accepts implements Provider. The short-audio endpoint takes 16 kHz PCM WAV
// and Ogg Opus.
func (a *Azure) Accepts(mimeType string) bool {
	mt := normalizeMime(mimeType)
	return mt == mimeWAVPCM || mt == mimeOggOpus
}

type azureResponse struct {
	RecognitionStatus string `json:"RecognitionStatus"`
	DisplayText       string `json:"DisplayText"`
	NBest             []struct {
		Confidence float64 `json:"Confidence"`
		Display    string  `json:"Display"`
	} `json:"NBest"`
}

// Transcribe implements Provider
func (a *Azure) Transcribe(ctx context.Context, req Request) (*Result, error) {
	if a.config.Key == "" {
		return nil, apperr.New(apperr.KindUnauthorized, "Azure Speech is not configured, set AZURE_SPEECH_KEY and AZURE_SPEECH_REGION")
	}

	language := req.Language
	if language == "" {
		language = "en-GB"
	}
	params := url.Values{
		"language":  {language},
		"format":    {"detailed"},
		"profanity": {"raw"},
	}

	header := http.Header{}
	header.Set("Ocp-Apim-Subscription-Key", a.config.Key)
	if isOggOpus(req.MimeType) {
		header.Set("Content-Type", "audio/ogg; codecs=opus")
	} else {
		header.Set("Content-Type", "audio/wav; codecs=audio/pcm; samplerate=16000")
	}
	header.Set("Accept", "application/json")

	resp, err := a.client.Do(ctx, httpclient.Request{
		Method:    http.MethodPost,
		URL:       a.config.Endpoint + "?" + params.Encode(),
		Header:    header,
		Body:      req.Audio,
		Service:   a.Name(),
		ErrorKind: apperr.KindTranscriptionService,
	})
	if err != nil {
		return nil, err
	}

	var body azureResponse
	if err := resp.JSON(&body); err != nil {
		return nil, apperr.Wrap(apperr.KindTranscriptionService, "unexpected response from azure", err)
	}

	switch body.RecognitionStatus {
	case "Success":
	case "NoMatch", "InitialSilenceTimeout", "BabbleTimeout":
		return &Result{Language: language}, nil
	default:
		return nil, apperr.Newf(apperr.KindTranscriptionService, "speech recognition failed: %s", body.RecognitionStatus).
			WithDetail("service", a.Name())
	}

	result := &Result{Text: body.DisplayText, Language: language}
	if len(body.NBest) > 0 {
		if result.Text == "" {
			result.Text = body.NBest[0].Display
		}
		confidence := body.NBest[0].Confidence
		result.Confidence = &confidence
	}
	return result, nil
}
