package hotkey

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.design/x/hotkey"

	"github.com/yok-tottii/EchoDoc/internal/apperr"
	"github.com/yok-tottii/EchoDoc/internal/config"
)

// Event is one press of the registered hotkey
type Event struct {
	At time.Time
}

// Config holds hotkey configuration
type Config struct {
	Modifiers []hotkey.Modifier
	Key       hotkey.Key
}

// String returns the display form of the combination
func (c Config) String() string {
	return FormatHotkey(c.Modifiers, c.Key)
}

// DefaultConfig returns Ctrl+Option+D
func DefaultConfig() Config {
	return Config{
		Modifiers: []hotkey.Modifier{hotkey.ModCtrl, hotkey.ModOption},
		Key:       hotkey.KeyD,
	}
}

// FromSettings converts the persisted hotkey settings. At least one modifier
// is required so a bare letter never becomes global.
func FromSettings(s config.HotkeyConfig) (Config, error) {
	key, ok := ParseKey(s.Key)
	if !ok {
		return Config{}, apperr.InvalidInput("key", fmt.Sprintf("unsupported key %q", s.Key))
	}

	var mods []hotkey.Modifier
	if s.Ctrl {
		mods = append(mods, hotkey.ModCtrl)
	}
	if s.Shift {
		mods = append(mods, hotkey.ModShift)
	}
	if s.Alt {
		mods = append(mods, hotkey.ModOption)
	}
	if s.Cmd {
		mods = append(mods, hotkey.ModCmd)
	}
	if len(mods) == 0 {
		return Config{}, apperr.InvalidInput("modifiers", "at least one modifier key (Ctrl/Shift/Alt/Cmd) is required")
	}

	return Config{Modifiers: mods, Key: key}, nil
}

var namedKeys = map[string]hotkey.Key{
	"SPACE":  hotkey.KeySpace,
	"ESCAPE": hotkey.KeyEscape,
	"ESC":    hotkey.KeyEscape,
	"RETURN": hotkey.KeyReturn,
	"ENTER":  hotkey.KeyReturn,
	"TAB":    hotkey.KeyTab,
	"F1":     hotkey.KeyF1,
	"F2":     hotkey.KeyF2,
	"F3":     hotkey.KeyF3,
	"F4":     hotkey.KeyF4,
	"F5":     hotkey.KeyF5,
	"F6":     hotkey.KeyF6,
	"F7":     hotkey.KeyF7,
	"F8":     hotkey.KeyF8,
	"F9":     hotkey.KeyF9,
	"F10":    hotkey.KeyF10,
	"F11":    hotkey.KeyF11,
	"F12":    hotkey.KeyF12,
}

var letterKeys = []hotkey.Key{
	hotkey.KeyA, hotkey.KeyB, hotkey.KeyC, hotkey.KeyD, hotkey.KeyE, hotkey.KeyF,
	hotkey.KeyG, hotkey.KeyH, hotkey.KeyI, hotkey.KeyJ, hotkey.KeyK, hotkey.KeyL,
	hotkey.KeyM, hotkey.KeyN, hotkey.KeyO, hotkey.KeyP, hotkey.KeyQ, hotkey.KeyR,
	hotkey.KeyS, hotkey.KeyT, hotkey.KeyU, hotkey.KeyV, hotkey.KeyW, hotkey.KeyX,
	hotkey.KeyY, hotkey.KeyZ,
}

var digitKeys = []hotkey.Key{
	hotkey.Key0, hotkey.Key1, hotkey.Key2, hotkey.Key3, hotkey.Key4,
	hotkey.Key5, hotkey.Key6, hotkey.Key7, hotkey.Key8, hotkey.Key9,
}

// ParseKey converts a key name ("D", "7", "Space", "F5") to a key code
func ParseKey(name string) (hotkey.Key, bool) {
	// macOS IMEs may send NBSP for the space bar
	if name == " " || name == "\u00a0" {
		return hotkey.KeySpace, true
	}

	upper := strings.ToUpper(strings.TrimSpace(name))
	if key, ok := namedKeys[upper]; ok {
		return key, true
	}
	if len(upper) == 1 {
		c := upper[0]
		switch {
		case c >= 'A' && c <= 'Z':
			return letterKeys[c-'A'], true
		case c >= '0' && c <= '9':
			return digitKeys[c-'0'], true
		}
	}
	return 0, false
}

// Manager manages global hotkey registration and events
type Manager struct {
	hk        *hotkey.Hotkey
	config    Config
	eventChan chan Event
	stopChan  chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	running   bool
}

// New creates a new hotkey manager with the default configuration
func New() *Manager {
	return &Manager{
		config:    DefaultConfig(),
		eventChan: make(chan Event, 10),
		stopChan:  make(chan struct{}),
	}
}

// Register registers the hotkey with the system
func (m *Manager) Register(config Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("hotkey is already running, call Close() first")
	}

	m.config = config

	// Close() may have closed the previous channels
	m.stopChan = make(chan struct{})
	m.eventChan = make(chan Event, 10)

	hk := hotkey.New(m.config.Modifiers, m.config.Key)
	if err := hk.Register(); err != nil {
		return fmt.Errorf("failed to register hotkey %s: %w", config, err)
	}

	m.hk = hk
	m.running = true

	m.wg.Add(1)
	go m.listen(hk.Keydown(), m.stopChan, m.eventChan)

	return nil
}

// Reload replaces the registered combination
func (m *Manager) Reload(config Config) error {
	if err := m.Close(); err != nil {
		return err
	}
	return m.Register(config)
}

// listen forwards key presses. A press is dropped when the consumer is
// still handling the previous one.
func (m *Manager) listen(keydown <-chan hotkey.Event, stop <-chan struct{}, out chan<- Event) {
	defer m.wg.Done()

	for {
		select {
		case <-keydown:
			select {
			case out <- Event{At: time.Now()}:
			default:
			}
		case <-stop:
			return
		}
	}
}

// Events returns the event channel for receiving hotkey events
func (m *Manager) Events() <-chan Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.eventChan
}

// Run calls onPress for every hotkey press until ctx is done or the
// manager is closed
func (m *Manager) Run(ctx context.Context, onPress func(Event)) {
	events := m.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			onPress(ev)
		}
	}
}

// Close unregisters the hotkey and stops listening
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	var unregisterErr error

	close(m.stopChan)
	m.wg.Wait()

	// Continue cleanup even if unregistering fails
	if m.hk != nil {
		if err := m.hk.Unregister(); err != nil {
			unregisterErr = fmt.Errorf("failed to unregister hotkey: %w", err)
		}
	}

	if m.eventChan != nil {
		close(m.eventChan)
		m.eventChan = nil
	}

	// A failed Unregister must not block the next Register
	m.running = false

	return unregisterErr
}

// GetConfig returns a deep copy of the current hotkey configuration
func (m *Manager) GetConfig() Config {
	m.mu.Lock()
	defer m.mu.Unlock()

	configCopy := m.config
	if m.config.Modifiers != nil {
		configCopy.Modifiers = make([]hotkey.Modifier, len(m.config.Modifiers))
		copy(configCopy.Modifiers, m.config.Modifiers)
	}

	return configCopy
}
