package transcription

import (
	"fmt"
	"strings"

	"github.com/yok-tottii/EchoDoc/internal/httpclient"
)

// Provider names
const (
	ProviderAzure    = "azure"
	ProviderDeepgram = "deepgram"
	ProviderWhisper  = "whisper"
	ProviderRelay    = "relay"
)

// Settings selects and configures a provider
type Settings struct {
	Provider string
	Azure    AzureConfig
	Deepgram DeepgramConfig
	Whisper  WhisperConfig
	Relay    RelayConfig
}

// NewProvider builds the configured provider
func NewProvider(settings Settings, client *httpclient.Client) (Provider, error) {
	switch settings.Provider {
	case ProviderAzure, "":
		return NewAzure(settings.Azure, client), nil
	case ProviderDeepgram:
		return NewDeepgram(settings.Deepgram, client), nil
	case ProviderWhisper:
		return NewWhisper(settings.Whisper, client), nil
	case ProviderRelay:
		return NewRelay(settings.Relay, client), nil
	default:
		return nil, fmt.Errorf("unknown transcription provider: %s", settings.Provider)
	}
}

// Providers returns the supported provider names
func Providers() []string {
	return []string{ProviderAzure, ProviderDeepgram, ProviderWhisper, ProviderRelay}
}

// Audio types the providers understand
const (
	mimeWAVPCM   = "audio/wav;codecs=pcm"
	mimeWAVMulaw = "audio/wav;codecs=mulaw"
	mimeOggOpus  = "audio/ogg;codecs=opus"
)

func normalizeMime(mimeType string) string {
	return strings.ToLower(strings.ReplaceAll(mimeType, " ", ""))
}

func isOggOpus(mimeType string) bool {
	return normalizeMime(mimeType) == mimeOggOpus
}
