package audio

import "context"

// Device represents an audio input device
type Device struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	IsDefault bool   `json:"is_default"`
}

// LatencyMode defines the latency priority
type LatencyMode int

const (
	// LowLatency prioritizes low latency (real-time)
	LowLatency LatencyMode = iota
	// HighStability prioritizes stability (larger buffer)
	HighStability
)

// Format describes the PCM stream a source delivers
type Format struct {
	SampleRate int
	Channels   int
	Latency    LatencyMode
}

// DefaultFormat returns the default capture format
// Sample rate: 16kHz (speech services recommended)
// Channels: 1 (mono)
// Latency: HighStability
func DefaultFormat() Format {
	return Format{
		SampleRate: 16000,
		Channels:   1,
		Latency:    HighStability,
	}
}

// Source is a live PCM input owned by a single capture session
type Source interface {
	// Start begins (or resumes) delivering samples
	Start() error

	// Stop suspends delivery without releasing the device
	Stop() error

	// Read drains the samples buffered since the previous call
	Read() []int16

	// Close releases the device
	Close() error
}

// SystemCapture is a system/loopback audio capture used in telephone mode.
// It may hold companion tracks that have to stay open for its audio to flow,
// so it is only closed together with the rest of the stream.
type SystemCapture interface {
	Source

	// AudioTracks returns the number of audio tracks the capture exposes
	AudioTracks() int
}

// Platform is the media API the capture pipeline is written against.
// This abstraction keeps the state machine testable without PortAudio.
type Platform interface {
	// InputDevices returns the available audio input devices
	InputDevices() ([]Device, error)

	// RequestPermission opens a short-lived stream and releases it immediately
	RequestPermission(ctx context.Context) error

	// OpenMicrophone opens the given input device ("" for the default one)
	OpenMicrophone(deviceID string, format Format) (Source, error)

	// OpenSystemAudio opens the system audio capture
	OpenSystemAudio(format Format) (SystemCapture, error)
}
