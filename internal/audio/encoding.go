package audio

import (
	"fmt"
	"sort"
	"strings"
)

// Encoding MIME types
const (
	MimeOggOpus  = "audio/ogg;codecs=opus"
	MimeWAVPCM   = "audio/wav;codecs=pcm"
	MimeWAVMulaw = "audio/wav;codecs=mulaw"
)

// Candidate is one entry of an encoding preference list
type Candidate struct {
	MimeType string `json:"mime_type" mapstructure:"mime_type"`
	Bitrate  int    `json:"bitrate" mapstructure:"bitrate"`
}

// Choice is the result of encoding selection
type Choice struct {
	MimeType string `json:"mime_type"`
	Bitrate  int    `json:"bitrate,omitempty"`
	// PlatformDefault is set when no candidate was supported
	PlatformDefault bool `json:"platform_default"`
}

// ByteRate estimates the bytes per second the choice produces, container
// overhead included
func (c Choice) ByteRate() float64 {
	if c.PlatformDefault || c.MimeType == "" {
		return pcm16ByteRate
	}
	bitrate := c.Bitrate
	if normalizeMime(c.MimeType) == MimeOggOpus {
		if bitrate <= 0 {
			bitrate = opusDefaultBitrate
		}
		return float64(bitrate)/8 + oggPageOverhead*1000.0/60
	}
	if bitrate <= 0 {
		return pcm16ByteRate
	}
	return float64(bitrate) / 8
}

const pcm16ByteRate = 16000 * 2

// DefaultCandidates returns the preference list. Ogg Opus comes first since
// only a compressed encoding keeps a long consultation under the upload cap.
func DefaultCandidates() []Candidate {
	return []Candidate{
		{MimeType: MimeOggOpus, Bitrate: opusDefaultBitrate},
		{MimeType: MimeWAVMulaw, Bitrate: 64000},
		{MimeType: MimeWAVPCM, Bitrate: 256000},
	}
}

// Prober reports whether an encoding can be produced and consumed
type Prober interface {
	IsTypeSupported(mimeType string) bool
}

// ProberFunc adapts a function to Prober
type ProberFunc func(mimeType string) bool

// IsTypeSupported implements Prober
func (f ProberFunc) IsTypeSupported(mimeType string) bool { return f(mimeType) }

// SelectEncoding returns the first supported candidate, or the platform
// default sentinel with no explicit bitrate when none is supported.
func SelectEncoding(candidates []Candidate, prober Prober) Choice {
	for _, c := range candidates {
		if prober != nil && prober.IsTypeSupported(c.MimeType) {
			return Choice{MimeType: c.MimeType, Bitrate: c.Bitrate}
		}
	}
	return Choice{PlatformDefault: true}
}

// Encoder turns captured PCM into encoded chunks and assembles the final object
type Encoder interface {
	// MimeType returns the MIME type of the assembled object
	MimeType() string

	// Format returns the capture format the encoder expects
	Format() Format

	// Encode encodes one batch of samples into a chunk
	Encode(samples []int16) []byte

	// Assemble wraps the concatenated chunks into a playable object
	Assemble(payload []byte) ([]byte, error)
}

// Registry holds the encoders this build can produce
type Registry struct {
	encoders    map[string]EncoderFactory
	defaultMime string
}

// EncoderFactory builds an encoder for a selected choice
type EncoderFactory func(choice Choice) (Encoder, error)

// NewRegistry returns a registry with the Ogg Opus and WAV encoders registered
func NewRegistry() *Registry {
	r := &Registry{
		encoders:    make(map[string]EncoderFactory),
		defaultMime: MimeWAVPCM,
	}
	r.Register(MimeOggOpus, func(choice Choice) (Encoder, error) {
		return NewOpusEncoder(choice.Bitrate)
	})
	r.Register(MimeWAVPCM, func(Choice) (Encoder, error) { return NewPCM16Encoder(), nil })
	r.Register(MimeWAVMulaw, func(Choice) (Encoder, error) { return NewMulawEncoder(), nil })
	return r
}

// Register adds an encoder constructor
func (r *Registry) Register(mimeType string, factory EncoderFactory) {
	r.encoders[normalizeMime(mimeType)] = factory
}

// IsTypeSupported implements Prober
func (r *Registry) IsTypeSupported(mimeType string) bool {
	_, ok := r.encoders[normalizeMime(mimeType)]
	return ok
}

// MimeTypes returns the registered MIME types
func (r *Registry) MimeTypes() []string {
	types := make([]string, 0, len(r.encoders))
	for mt := range r.encoders {
		types = append(types, mt)
	}
	sort.Strings(types)
	return types
}

// Restrict returns a prober that also requires accepts to agree
func (r *Registry) Restrict(accepts func(mimeType string) bool) Prober {
	return ProberFunc(func(mimeType string) bool {
		return r.IsTypeSupported(mimeType) && (accepts == nil || accepts(mimeType))
	})
}

// Encoder builds the encoder for a choice
func (r *Registry) Encoder(choice Choice) (Encoder, error) {
	mimeType := choice.MimeType
	if choice.PlatformDefault || mimeType == "" {
		mimeType = r.defaultMime
	}

	factory, ok := r.encoders[normalizeMime(mimeType)]
	if !ok {
		return nil, fmt.Errorf("no encoder registered for %s", mimeType)
	}
	return factory(choice)
}

// FileExtension returns the file extension for an assembled object
func FileExtension(mimeType string) string {
	if strings.HasPrefix(normalizeMime(mimeType), "audio/ogg") {
		return ".ogg"
	}
	return ".wav"
}

func normalizeMime(mimeType string) string {
	return strings.ToLower(strings.ReplaceAll(mimeType, " ", ""))
}
