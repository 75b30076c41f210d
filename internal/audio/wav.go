package audio

import (
	"encoding/binary"
	"fmt"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAV format tags
const (
	wavFormatPCM   = 1
	wavFormatMulaw = 7
)

// wavEncoder produces raw sample chunks and wraps them in a WAV container on assembly
type wavEncoder struct {
	mimeType    string
	format      Format
	bitDepth    int
	audioFormat int
	encode      func([]int16) []byte
	samples     func([]byte) []int
}

// NewPCM16Encoder returns a 16 kHz 16-bit PCM WAV encoder
func NewPCM16Encoder() Encoder {
	return &wavEncoder{
		mimeType:    MimeWAVPCM,
		format:      Format{SampleRate: 16000, Channels: 1, Latency: HighStability},
		bitDepth:    16,
		audioFormat: wavFormatPCM,
		encode:      encodePCM16,
		samples:     decodePCM16,
	}
}

// NewMulawEncoder returns an 8 kHz G.711 μ-law WAV encoder
func NewMulawEncoder() Encoder {
	return &wavEncoder{
		mimeType:    MimeWAVMulaw,
		format:      Format{SampleRate: 8000, Channels: 1, Latency: HighStability},
		bitDepth:    8,
		audioFormat: wavFormatMulaw,
		encode:      encodeMulaw,
		samples:     bytesAsSamples,
	}
}

func (e *wavEncoder) MimeType() string { return e.mimeType }

func (e *wavEncoder) Format() Format { return e.format }

func (e *wavEncoder) Encode(samples []int16) []byte {
	if len(samples) == 0 {
		return nil
	}
	return e.encode(samples)
}

// Assemble writes the payload through the WAV encoder. The encoder patches
// the header sizes on Close, which needs a seekable writer, so the object is
// built in a temporary file.
func (e *wavEncoder) Assemble(payload []byte) ([]byte, error) {
	f, err := os.CreateTemp("", "echodoc-*.wav")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(f.Name())
	defer f.Close()

	enc := wav.NewEncoder(f, e.format.SampleRate, e.bitDepth, e.format.Channels, e.audioFormat)
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: e.format.Channels,
			SampleRate:  e.format.SampleRate,
		},
		Data:           e.samples(payload),
		SourceBitDepth: e.bitDepth,
	}

	if len(buf.Data) > 0 {
		if err := enc.Write(buf); err != nil {
			return nil, fmt.Errorf("failed to write wav data: %w", err)
		}
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize wav: %w", err)
	}

	data, err := os.ReadFile(f.Name())
	if err != nil {
		return nil, fmt.Errorf("failed to read wav: %w", err)
	}
	return data, nil
}

func encodePCM16(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func decodePCM16(payload []byte) []int {
	out := make([]int, len(payload)/2)
	for i := range out {
		out[i] = int(int16(binary.LittleEndian.Uint16(payload[i*2:])))
	}
	return out
}

func encodeMulaw(samples []int16) []byte {
	out := make([]byte, len(samples))
	for i, s := range samples {
		out[i] = linearToMulaw(s)
	}
	return out
}

func bytesAsSamples(payload []byte) []int {
	out := make([]int, len(payload))
	for i, b := range payload {
		out[i] = int(b)
	}
	return out
}

const (
	mulawBias = 0x84
	mulawClip = 32635
)

// linearToMulaw compresses one 16-bit sample to G.711 μ-law
func linearToMulaw(sample int16) byte {
	s := int(sample)
	sign := 0
	if s < 0 {
		s = -s
		sign = 0x80
	}
	if s > mulawClip {
		s = mulawClip
	}
	s += mulawBias

	exponent := 7
	for mask := 0x4000; s&mask == 0 && exponent > 0; mask >>= 1 {
		exponent--
	}
	mantissa := (s >> (exponent + 3)) & 0x0F

	return ^byte(sign | exponent<<4 | mantissa)
}
