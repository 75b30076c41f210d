package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/yok-tottii/EchoDoc/internal/apperr"
)

// Mode selects which inputs a capture session records
type Mode int

const (
	// ModeMicrophone records a single microphone
	ModeMicrophone Mode = iota
	// ModeTelephone mixes the microphone with system audio
	ModeTelephone
)

// String returns the string representation of the mode
func (m Mode) String() string {
	switch m {
	case ModeMicrophone:
		return "microphone"
	case ModeTelephone:
		return "telephone"
	default:
		return "unknown"
	}
}

// ParseMode parses a mode name
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "microphone", "mic":
		return ModeMicrophone, nil
	case "telephone", "phone":
		return ModeTelephone, nil
	default:
		return ModeMicrophone, apperr.InvalidInput("mode", fmt.Sprintf("unknown mode %q", s))
	}
}

// LiveStream is everything acquired for one capture session.
// Release closes all of it exactly once.
type LiveStream struct {
	// Requested is the mode the caller asked for
	Requested Mode
	// Mode is the mode actually delivered after any fallback
	Mode Mode
	// Source is what the recorder reads from
	Source Source
	// Warnings are non-fatal problems met while acquiring
	Warnings []string

	owned       []Source
	releaseOnce sync.Once
	releaseErr  error
}

// Release stops and closes every acquired input
func (s *LiveStream) Release() error {
	s.releaseOnce.Do(func() {
		var errs []error
		for _, src := range s.owned {
			if err := src.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		s.releaseErr = errors.Join(errs...)
	})
	return s.releaseErr
}

// Acquirer obtains live streams from a platform
type Acquirer struct {
	platform Platform
	maxLag   int
}

// NewAcquirer creates an acquirer over the given platform
func NewAcquirer(platform Platform) *Acquirer {
	return &Acquirer{platform: platform}
}

// Acquire opens the inputs for the requested mode.
// A microphone failure is fatal. A system audio failure falls back to the
// microphone alone and is reported as a warning.
func (a *Acquirer) Acquire(ctx context.Context, mode Mode, deviceID string, format Format) (*LiveStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mic, err := a.platform.OpenMicrophone(deviceID, format)
	if err != nil {
		if _, ok := apperr.As(err); ok {
			return nil, err
		}
		return nil, apperr.Wrap(apperr.KindInternal, "failed to open microphone", err)
	}

	stream := &LiveStream{
		Requested: mode,
		Mode:      ModeMicrophone,
		Source:    mic,
		owned:     []Source{mic},
	}

	if mode != ModeTelephone {
		return stream, nil
	}

	system, err := a.platform.OpenSystemAudio(format)
	if err != nil {
		stream.Warnings = append(stream.Warnings,
			fmt.Sprintf("system audio unavailable, recording microphone only: %v", err))
		return stream, nil
	}

	stream.owned = append(stream.owned, system)
	stream.Mode = ModeTelephone

	maxLag := a.maxLag
	if maxLag <= 0 {
		maxLag = format.SampleRate / 2
	}

	if system.AudioTracks() == 0 {
		stream.Warnings = append(stream.Warnings,
			"system audio has no audio track, only the microphone will be recorded")
		stream.Source = NewMixer(maxLag, mic)
		return stream, nil
	}

	stream.Source = NewMixer(maxLag, mic, system)
	return stream, nil
}
