// Package tray runs the menu-bar icon and menu.
package tray

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/getlantern/systray"

	"github.com/yok-tottii/EchoDoc/internal/i18n"
	"github.com/yok-tottii/EchoDoc/internal/logger"
)

// State represents the current application state
type State int

const (
	StateIdle State = iota
	StateRecording
	StatePaused
	StateProcessing
	StateError
)

// String returns the translation key suffix of the state
func (s State) String() string {
	switch s {
	case StateRecording:
		return "recording"
	case StatePaused:
		return "paused"
	case StateProcessing:
		return "transcribing"
	case StateError:
		return "error"
	default:
		return "idle"
	}
}

// StateFromSession maps a capture session state name to a tray state
func StateFromSession(state string) State {
	switch state {
	case "Recording":
		return StateRecording
	case "Paused":
		return StatePaused
	case "Stopping", "Transcribing":
		return StateProcessing
	case "Failed":
		return StateError
	default:
		return StateIdle
	}
}

// MenuState is which menu items are enabled in a state
type MenuState struct {
	Start    bool
	Pause    bool
	PauseKey string
	Stop     bool
}

// menuFor returns the menu layout for a state
func menuFor(state State) MenuState {
	switch state {
	case StateRecording:
		return MenuState{Pause: true, PauseKey: "menu.pause", Stop: true}
	case StatePaused:
		return MenuState{Pause: true, PauseKey: "menu.resume", Stop: true}
	case StateProcessing:
		return MenuState{PauseKey: "menu.pause"}
	default:
		return MenuState{Start: true, PauseKey: "menu.pause"}
	}
}

// formatElapsed renders a duration as mm:ss, or h:mm:ss past an hour
func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// Manager manages the system tray icon and menu
type Manager struct {
	stateMutex sync.RWMutex
	state      State
	elapsed    time.Duration
	ready      bool

	tr  *i18n.Translator
	log *logger.Logger

	onReadyCallback  func()
	onStartDictation func()
	onStartTelephone func()
	onTogglePause    func()
	onStop           func()
	onOpen           func()
	onDeviceChange   func(deviceID string)
	onQuit           func()

	menuStartDictation *systray.MenuItem
	menuStartTelephone *systray.MenuItem
	menuPause          *systray.MenuItem
	menuStop           *systray.MenuItem
	menuOpen           *systray.MenuItem
	menuDevices        *systray.MenuItem
	menuQuit           *systray.MenuItem

	deviceMu          sync.Mutex
	deviceMenuItems   []*systray.MenuItem
	deviceCancelFuncs []context.CancelFunc

	// Icon cache
	iconIdle       []byte
	iconRecording  []byte
	iconPaused     []byte
	iconProcessing []byte
	iconError      []byte
}

// Config holds tray manager configuration
type Config struct {
	Translator       *i18n.Translator
	Logger           *logger.Logger
	OnReady          func() // Called when systray is ready for initialization
	OnStartDictation func()
	OnStartTelephone func()
	OnTogglePause    func()
	OnStop           func()
	OnOpen           func()
	OnDeviceChange   func(deviceID string) // Called when user selects a device
	OnQuit           func()
}

// NewManager creates a new tray manager
func NewManager(config Config) *Manager {
	if config.Translator == nil {
		config.Translator = i18n.NewDefaultTranslator(i18n.LanguageEnglish)
	}
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}

	m := &Manager{
		state:            StateIdle,
		tr:               config.Translator,
		log:              config.Logger.WithComponent("tray"),
		onReadyCallback:  config.OnReady,
		onStartDictation: config.OnStartDictation,
		onStartTelephone: config.OnStartTelephone,
		onTogglePause:    config.OnTogglePause,
		onStop:           config.OnStop,
		onOpen:           config.OnOpen,
		onDeviceChange:   config.OnDeviceChange,
		onQuit:           config.OnQuit,
	}

	// Load icons once at initialization
	m.iconIdle = m.loadIconData("idle.png", getIdleFallback())
	m.iconRecording = m.loadIconData("recording.png", getRecordingFallback())
	m.iconPaused = m.loadIconData("paused.png", getIdleFallback())
	m.iconProcessing = m.loadIconData("transcribing.png", getProcessingFallback())
	m.iconError = m.loadIconData("error.png", getRecordingFallback())

	return m
}

// Run starts the system tray (blocking call)
func (m *Manager) Run() {
	systray.Run(m.onReady, m.onExit)
}

func (m *Manager) t(key string) string {
	return m.tr.Translate(key)
}

// onReady is called when systray is ready
func (m *Manager) onReady() {
	m.menuStartDictation = systray.AddMenuItem(m.t("menu.start_dictation"), "Record a consultation from the microphone")
	m.menuStartTelephone = systray.AddMenuItem(m.t("menu.start_telephone"), "Record the microphone and system audio")
	m.menuPause = systray.AddMenuItem(m.t("menu.pause"), "Pause or resume recording")
	m.menuStop = systray.AddMenuItem(m.t("menu.stop"), "Stop and transcribe")

	systray.AddSeparator()

	m.menuOpen = systray.AddMenuItem(m.t("menu.open"), "Open the EchoDoc window")
	m.menuDevices = systray.AddMenuItem(m.t("menu.devices"), "Select input device")

	systray.AddSeparator()

	m.menuQuit = systray.AddMenuItem(m.t("menu.quit"), "Quit the application")

	m.stateMutex.Lock()
	m.ready = true
	m.stateMutex.Unlock()
	m.refresh()

	go m.handleMenuEvents()

	if m.onReadyCallback != nil {
		m.onReadyCallback()
	}
}

// onExit is called when systray is exiting
func (m *Manager) onExit() {
	m.cancelDeviceHandlers()
}

func call(fn func()) {
	if fn != nil {
		fn()
	}
}

// handleMenuEvents handles menu item clicks
func (m *Manager) handleMenuEvents() {
	for {
		select {
		case <-m.menuStartDictation.ClickedCh:
			call(m.onStartDictation)
		case <-m.menuStartTelephone.ClickedCh:
			call(m.onStartTelephone)
		case <-m.menuPause.ClickedCh:
			call(m.onTogglePause)
		case <-m.menuStop.ClickedCh:
			call(m.onStop)
		case <-m.menuOpen.ClickedCh:
			call(m.onOpen)
		case <-m.menuQuit.ClickedCh:
			call(m.onQuit)
			systray.Quit()
			return
		}
	}
}

// SetState updates the tray icon and menu for the current state
func (m *Manager) SetState(state State) {
	m.stateMutex.Lock()
	m.state = state
	if state != StateRecording && state != StatePaused {
		m.elapsed = 0
	}
	m.stateMutex.Unlock()
	m.refresh()
}

// GetState returns the current state
func (m *Manager) GetState() State {
	m.stateMutex.RLock()
	defer m.stateMutex.RUnlock()
	return m.state
}

// SetElapsed shows the recording time next to the icon
func (m *Manager) SetElapsed(elapsed time.Duration) {
	m.stateMutex.Lock()
	m.elapsed = elapsed
	ready, state := m.ready, m.state
	m.stateMutex.Unlock()

	if ready && (state == StateRecording || state == StatePaused) {
		systray.SetTitle(m.title(state, elapsed))
	}
}

// tooltip returns the tooltip text for a state
func (m *Manager) tooltip(state State) string {
	return "EchoDoc - " + m.t("status."+state.String())
}

// title is the text shown next to the icon while a session is live
func (m *Manager) title(state State, elapsed time.Duration) string {
	return m.tr.TranslateWithFormat("status.elapsed", map[string]string{
		"state":   m.t("status." + state.String()),
		"elapsed": formatElapsed(elapsed),
	})
}

func (m *Manager) icon(state State) []byte {
	switch state {
	case StateRecording:
		return m.iconRecording
	case StatePaused:
		return m.iconPaused
	case StateProcessing:
		return m.iconProcessing
	case StateError:
		return m.iconError
	default:
		return m.iconIdle
	}
}

// refresh applies the current state to the icon and menu
func (m *Manager) refresh() {
	m.stateMutex.RLock()
	state, elapsed, ready := m.state, m.elapsed, m.ready
	m.stateMutex.RUnlock()

	if !ready {
		return
	}

	systray.SetIcon(m.icon(state))
	systray.SetTooltip(m.tooltip(state))
	if state == StateRecording || state == StatePaused {
		systray.SetTitle(m.title(state, elapsed))
	} else {
		systray.SetTitle("")
	}

	menu := menuFor(state)
	setEnabled(m.menuStartDictation, menu.Start)
	setEnabled(m.menuStartTelephone, menu.Start)
	setEnabled(m.menuPause, menu.Pause)
	setEnabled(m.menuStop, menu.Stop)
	m.menuPause.SetTitle(m.t(menu.PauseKey))
}

func setEnabled(item *systray.MenuItem, enabled bool) {
	if enabled {
		item.Enable()
	} else {
		item.Disable()
	}
}

// Device represents an audio device for the menu
type Device struct {
	ID        string
	Label     string
	IsDefault bool
	IsCurrent bool
}

// deviceTitle returns the menu title of a device
func (m *Manager) deviceTitle(d Device) string {
	label := d.Label
	if d.ID == "" {
		label = m.t("menu.default_device")
	}
	if d.IsCurrent {
		return "✓ " + label
	}
	return label
}

func (m *Manager) cancelDeviceHandlers() {
	for _, cancel := range m.deviceCancelFuncs {
		if cancel != nil {
			cancel()
		}
	}
	m.deviceCancelFuncs = nil
}

// UpdateDeviceMenu replaces the device submenu. An entry with an empty ID
// stands for the system default device.
func (m *Manager) UpdateDeviceMenu(devices []Device) {
	m.deviceMu.Lock()
	defer m.deviceMu.Unlock()

	if m.menuDevices == nil {
		return
	}

	m.cancelDeviceHandlers()

	// systray cannot remove items, hide the old ones
	for _, item := range m.deviceMenuItems {
		item.Hide()
	}
	m.deviceMenuItems = nil

	for _, device := range devices {
		tooltip := ""
		if device.IsDefault {
			tooltip = "System default device"
		}

		menuItem := m.menuDevices.AddSubMenuItem(m.deviceTitle(device), tooltip)
		m.deviceMenuItems = append(m.deviceMenuItems, menuItem)

		ctx, cancel := context.WithCancel(context.Background())
		m.deviceCancelFuncs = append(m.deviceCancelFuncs, cancel)

		go func(id string, item *systray.MenuItem, ctx context.Context) {
			for {
				select {
				case <-ctx.Done():
					return
				case <-item.ClickedCh:
					if m.onDeviceChange != nil {
						m.onDeviceChange(id)
					}
				}
			}
		}(device.ID, menuItem, ctx)
	}
}

// Quit quits the system tray
func (m *Manager) Quit() {
	systray.Quit()
}

// loadIconData loads an icon from assets/icon next to the executable,
// falling back to a built-in placeholder
func (m *Manager) loadIconData(filename string, fallback []byte) []byte {
	exe, err := os.Executable()
	if err != nil {
		m.log.Warn("Failed to resolve executable path: %v", err)
		return fallback
	}

	iconPath := filepath.Join(filepath.Dir(exe), "assets", "icon", filename)
	data, err := os.ReadFile(iconPath)
	if err != nil {
		m.log.Debug("Using built-in icon for %s: %v", filename, err)
		return fallback
	}

	return data
}

// getIdleFallback returns the fallback icon data for idle state
func getIdleFallback() []byte {
	return []byte{
		0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
		0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
		0x00, 0x00, 0x00, 0x10, 0x00, 0x00, 0x00, 0x10,
		0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0xf3, 0xff,
		0x61, 0x00, 0x00, 0x00, 0x19, 0x74, 0x45, 0x58,
		0x74, 0x53, 0x6f, 0x66, 0x74, 0x77, 0x61, 0x72,
		0x65, 0x00, 0x41, 0x64, 0x6f, 0x62, 0x65, 0x20,
		0x49, 0x6d, 0x61, 0x67, 0x65, 0x52, 0x65, 0x61,
		0x64, 0x79, 0x71, 0xc9, 0x65, 0x3c, 0x00, 0x00,
		0x00, 0x18, 0x49, 0x44, 0x41, 0x54, 0x78, 0xda,
		0x62, 0xfc, 0xff, 0xff, 0x3f, 0x03, 0x00, 0x00,
		0x00, 0xff, 0xff, 0x03, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x49, 0x45, 0x4e, 0x44, 0xae, 0x42, 0x60,
		0x82,
	}
}

// getRecordingFallback returns the fallback icon data for recording state
func getRecordingFallback() []byte {
	return []byte{
		0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
		0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
		0x00, 0x00, 0x00, 0x10, 0x00, 0x00, 0x00, 0x10,
		0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0xf3, 0xff,
		0x61, 0x00, 0x00, 0x00, 0x19, 0x74, 0x45, 0x58,
		0x74, 0x53, 0x6f, 0x66, 0x74, 0x77, 0x61, 0x72,
		0x65, 0x00, 0x41, 0x64, 0x6f, 0x62, 0x65, 0x20,
		0x49, 0x6d, 0x61, 0x67, 0x65, 0x52, 0x65, 0x61,
		0x64, 0x79, 0x71, 0xc9, 0x65, 0x3c, 0x00, 0x00,
		0x00, 0x20, 0x49, 0x44, 0x41, 0x54, 0x78, 0xda,
		0x62, 0xfc, 0xcf, 0xc0, 0xc0, 0xc0, 0xf0, 0x9f,
		0x81, 0x81, 0x81, 0x81, 0xff, 0x19, 0x18, 0x18,
		0x18, 0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0x03,
		0x00, 0x0c, 0x10, 0x02, 0x01, 0x8b, 0xd5, 0xf8,
		0x23, 0x00, 0x00, 0x00, 0x00, 0x49, 0x45, 0x4e,
		0x44, 0xae, 0x42, 0x60, 0x82,
	}
}

// getProcessingFallback returns the fallback icon data for processing state
func getProcessingFallback() []byte {
	return []byte{
		0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
		0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
		0x00, 0x00, 0x00, 0x10, 0x00, 0x00, 0x00, 0x10,
		0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0xf3, 0xff,
		0x61, 0x00, 0x00, 0x00, 0x19, 0x74, 0x45, 0x58,
		0x74, 0x53, 0x6f, 0x66, 0x74, 0x77, 0x61, 0x72,
		0x65, 0x00, 0x41, 0x64, 0x6f, 0x62, 0x65, 0x20,
		0x49, 0x6d, 0x61, 0x67, 0x65, 0x52, 0x65, 0x61,
		0x64, 0x79, 0x71, 0xc9, 0x65, 0x3c, 0x00, 0x00,
		0x00, 0x20, 0x49, 0x44, 0x41, 0x54, 0x78, 0xda,
		0x62, 0xfc, 0xcf, 0xf0, 0x9f, 0xc1, 0xc8, 0xc0,
		0xc0, 0xc0, 0xff, 0x0c, 0x0c, 0x0c, 0xfc, 0xcf,
		0xc0, 0xc0, 0xc0, 0x00, 0x00, 0x00, 0x00, 0xff,
		0xff, 0x03, 0x00, 0x0c, 0x50, 0x02, 0x01, 0x3e,
		0x0a, 0xe4, 0x5b, 0x00, 0x00, 0x00, 0x00, 0x49,
		0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
	}
}
