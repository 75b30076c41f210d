package audio

import (
	"context"
	"sync"

	"github.com/yok-tottii/EchoDoc/internal/apperr"
)

// Enumerator lists input devices and refreshes their labels once
// permission has been granted
type Enumerator struct {
	platform Platform
	mu       sync.Mutex
	primed   bool
}

// NewEnumerator creates a device enumerator
func NewEnumerator(platform Platform) *Enumerator {
	return &Enumerator{platform: platform}
}

// ListInputDevices returns the input devices. When labels are still hidden it
// asks for permission once and queries again. A refusal yields an empty list
// together with a PermissionDenied error.
func (e *Enumerator) ListInputDevices(ctx context.Context) ([]Device, error) {
	devices, err := e.platform.InputDevices()
	if err != nil {
		return []Device{}, permissionError(err)
	}

	if !hasEmptyLabel(devices) {
		return devices, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.primed {
		return devices, nil
	}

	if err := e.platform.RequestPermission(ctx); err != nil {
		return []Device{}, permissionError(err)
	}
	e.primed = true

	devices, err = e.platform.InputDevices()
	if err != nil {
		return []Device{}, permissionError(err)
	}
	return devices, nil
}

// Resolve picks the device to record from. An unknown or empty id falls back
// to the platform default, then to the first device.
func Resolve(devices []Device, id string) (Device, error) {
	if len(devices) == 0 {
		return Device{}, apperr.NoDeviceFound()
	}

	if id != "" {
		for _, d := range devices {
			if d.ID == id {
				return d, nil
			}
		}
	}

	for _, d := range devices {
		if d.IsDefault {
			return d, nil
		}
	}

	return devices[0], nil
}

func hasEmptyLabel(devices []Device) bool {
	for _, d := range devices {
		if d.Label == "" {
			return true
		}
	}
	return false
}

func permissionError(err error) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	return apperr.PermissionDenied(err)
}
