package audio

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/yok-tottii/EchoDoc/internal/apperr"
)

// PermissionFunc reports whether microphone access has been granted
type PermissionFunc func() bool

// PortAudioConfig holds PortAudio platform configuration
type PortAudioConfig struct {
	// SystemAudioDevice is the loopback device used for telephone mode (e.g. "BlackHole 2ch")
	SystemAudioDevice string
	// FramesPerBuffer is the callback buffer size
	FramesPerBuffer int
	// MicrophoneGranted gates stream creation on the OS permission (nil = always allowed)
	MicrophoneGranted PermissionFunc
}

// DefaultPortAudioConfig returns the default PortAudio configuration
func DefaultPortAudioConfig() PortAudioConfig {
	return PortAudioConfig{
		SystemAudioDevice: "BlackHole",
		FramesPerBuffer:   1024,
	}
}

// PortAudioPlatform implements Platform using PortAudio
type PortAudioPlatform struct {
	config PortAudioConfig
	mu     sync.Mutex
	closed bool
}

// NewPortAudioPlatform initializes PortAudio and returns the platform
func NewPortAudioPlatform(config PortAudioConfig) (*PortAudioPlatform, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	if config.FramesPerBuffer <= 0 {
		config.FramesPerBuffer = 1024
	}

	return &PortAudioPlatform{config: config}, nil
}

// InputDevices returns a list of available audio input devices
func (p *PortAudioPlatform) InputDevices() ([]Device, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	defaultInput, err := portaudio.DefaultInputDevice()
	if err != nil {
		// If we can't get the default device, continue without marking any as default
		defaultInput = nil
	}

	result := []Device{}
	for _, dev := range devices {
		// Only include devices with input channels
		if dev.MaxInputChannels <= 0 {
			continue
		}

		result = append(result, Device{
			ID:        dev.Name,
			Label:     dev.Name,
			IsDefault: defaultInput != nil && dev.Name == defaultInput.Name,
		})
	}

	return result, nil
}

// RequestPermission opens the default input once so the OS asks for access
func (p *PortAudioPlatform) RequestPermission(ctx context.Context) error {
	if err := p.checkPermission(); err != nil {
		return err
	}

	buf := make([]int16, p.config.FramesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(1, 0, 16000, len(buf), buf)
	if err != nil {
		return apperr.PermissionDenied(err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return apperr.PermissionDenied(err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(50 * time.Millisecond):
	}

	return stream.Stop()
}

// OpenMicrophone opens an input stream on the given device
func (p *PortAudioPlatform) OpenMicrophone(deviceID string, format Format) (Source, error) {
	if err := p.checkPermission(); err != nil {
		return nil, err
	}

	device, err := p.findInput(deviceID)
	if err != nil {
		return nil, err
	}

	return p.open(device, format)
}

// OpenSystemAudio opens the configured loopback device
func (p *PortAudioPlatform) OpenSystemAudio(format Format) (SystemCapture, error) {
	name := strings.ToLower(p.config.SystemAudioDevice)
	if name == "" {
		return nil, apperr.New(apperr.KindAcquisitionFailed, "no system audio device configured")
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindAcquisitionFailed, "failed to list devices", err)
	}

	for _, dev := range devices {
		if !strings.Contains(strings.ToLower(dev.Name), name) {
			continue
		}

		// The loopback exists but exposes no inputs: keep it as a capture with zero audio tracks
		if dev.MaxInputChannels <= 0 {
			return &portSource{tracks: 0}, nil
		}

		src, err := p.open(dev, format)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindAcquisitionFailed, "failed to open system audio device", err)
		}
		return src, nil
	}

	return nil, apperr.Newf(apperr.KindAcquisitionFailed, "system audio device %q not found", p.config.SystemAudioDevice)
}

// Close terminates PortAudio
func (p *PortAudioPlatform) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("failed to terminate PortAudio: %w", err)
	}
	return nil
}

func (p *PortAudioPlatform) checkPermission() error {
	if p.config.MicrophoneGranted != nil && !p.config.MicrophoneGranted() {
		return apperr.PermissionDenied(nil)
	}
	return nil
}

// findInput resolves a device by name, "" meaning the default input
func (p *PortAudioPlatform) findInput(deviceID string) (*portaudio.DeviceInfo, error) {
	if deviceID == "" {
		device, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, apperr.NoDeviceFound().WithCause(err)
		}
		return device, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	for _, dev := range devices {
		if dev.Name == deviceID && dev.MaxInputChannels > 0 {
			return dev, nil
		}
	}

	return nil, apperr.NoDeviceFound().WithDetail("device_id", deviceID)
}

func (p *PortAudioPlatform) open(device *portaudio.DeviceInfo, format Format) (*portSource, error) {
	if device.MaxInputChannels <= 0 {
		return nil, fmt.Errorf("selected device '%s' has no input channels (output-only device)", device.Name)
	}

	latency := device.DefaultHighInputLatency
	if format.Latency == LowLatency {
		latency = device.DefaultLowInputLatency
	}

	src := &portSource{
		buffer: make([]int16, 0, format.SampleRate),
		tracks: device.MaxInputChannels,
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: format.Channels,
			Latency:  latency,
		},
		SampleRate:      float64(format.SampleRate),
		FramesPerBuffer: p.config.FramesPerBuffer,
	}

	stream, err := portaudio.OpenStream(params, src.callback)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}
	src.stream = stream

	return src, nil
}

// portSource buffers samples delivered by a PortAudio callback
type portSource struct {
	mu      sync.Mutex
	stream  *portaudio.Stream
	buffer  []int16
	running bool
	tracks  int
}

// callback is called by PortAudio when audio data is available
func (s *portSource) callback(in []int16) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.buffer = append(s.buffer, in...)
	}
}

func (s *portSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if s.stream != nil {
		if err := s.stream.Start(); err != nil {
			return fmt.Errorf("failed to start stream: %w", err)
		}
	}
	s.running = true
	return nil
}

func (s *portSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	if s.stream != nil {
		if err := s.stream.Stop(); err != nil {
			return fmt.Errorf("failed to stop stream: %w", err)
		}
	}
	return nil
}

func (s *portSource) Read() []int16 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.buffer) == 0 {
		return nil
	}
	out := make([]int16, len(s.buffer))
	copy(out, s.buffer)
	s.buffer = s.buffer[:0]
	return out
}

func (s *portSource) Close() error {
	if err := s.Stop(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream != nil {
		if err := s.stream.Close(); err != nil {
			return fmt.Errorf("failed to close stream: %w", err)
		}
		s.stream = nil
	}
	return nil
}

func (s *portSource) AudioTracks() int {
	return s.tracks
}
