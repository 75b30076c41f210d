package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/yok-tottii/EchoDoc/internal/api"
	"github.com/yok-tottii/EchoDoc/internal/audio"
	"github.com/yok-tottii/EchoDoc/internal/clipboard"
	"github.com/yok-tottii/EchoDoc/internal/config"
	"github.com/yok-tottii/EchoDoc/internal/dictation"
	"github.com/yok-tottii/EchoDoc/internal/events"
	"github.com/yok-tottii/EchoDoc/internal/generation"
	"github.com/yok-tottii/EchoDoc/internal/hotkey"
	"github.com/yok-tottii/EchoDoc/internal/httpclient"
	"github.com/yok-tottii/EchoDoc/internal/i18n"
	"github.com/yok-tottii/EchoDoc/internal/logger"
	"github.com/yok-tottii/EchoDoc/internal/notification"
	"github.com/yok-tottii/EchoDoc/internal/permissions"
	"github.com/yok-tottii/EchoDoc/internal/recording"
	"github.com/yok-tottii/EchoDoc/internal/server"
	"github.com/yok-tottii/EchoDoc/internal/store"
	"github.com/yok-tottii/EchoDoc/internal/tray"
	"github.com/yok-tottii/EchoDoc/internal/wizard"
)

const version = "0.1.0"

// App holds all application state
type App struct {
	logger      *logger.Logger
	config      *config.Config
	configPath  string
	translator  *i18n.Translator
	trayMgr     *tray.Manager
	httpServer  *server.Server
	apiHandler  *api.Handler
	hotkeyMgr   *hotkey.Manager
	platform    *audio.PortAudioPlatform
	enumerator  *audio.Enumerator
	providers   *providers
	controller  *dictation.Controller
	history     *store.Store
	clipboard   *clipboard.Manager
	notifier    *notification.NotificationManager
	permissions *permissions.PermissionChecker
	wizard      *wizard.SetupWizard

	ctx    context.Context
	cancel context.CancelFunc

	hotkeyMu     sync.Mutex
	hotkeyCancel context.CancelFunc

	isFirstRun bool
}

func init() {
	// Cocoa calls made by systray and hotkey need the main thread
	runtime.LockOSThread()
}

func main() {
	app := &App{}
	app.ctx, app.cancel = context.WithCancel(context.Background())

	var err error
	app.logger, err = logger.New(logger.DefaultConfig())
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer app.logger.Close()

	app.logger.Info("EchoDoc v%s starting", version)

	app.configPath = config.GetConfigPath()
	app.config, err = config.Load(app.configPath)
	if err != nil {
		app.logger.Error("Failed to load config: %v", err)
		log.Fatalf("Failed to load config: %v", err)
	}
	app.logger.Info("Loaded config: %s", app.configPath)
	app.applyLogLevel(app.config)

	app.translator = i18n.NewDefaultTranslator(i18n.ParseLanguage(app.config.UILanguage))

	app.wizard, err = wizard.NewSetupWizard(app.configPath)
	if err != nil {
		app.logger.Error("Failed to initialize setup wizard: %v", err)
	}
	app.isFirstRun = app.wizard != nil && app.wizard.ShouldShowWizard()

	app.permissions = permissions.NewPermissionChecker()

	app.notifier = notification.NewNotificationManager("EchoDoc")
	app.notifier.SetEnabled(app.config.Notifications)

	clipboardConfig := clipboard.DefaultConfig()
	clipboardConfig.SplitSize = app.config.PasteSplitSize
	app.clipboard = clipboard.NewManager(clipboardConfig)

	app.platform, err = audio.NewPortAudioPlatform(audio.DefaultPortAudioConfig())
	if err != nil {
		app.logger.Error("Failed to initialize audio: %v", err)
		log.Fatalf("Failed to initialize audio: %v", err)
	}
	defer app.platform.Close()
	app.enumerator = audio.NewEnumerator(app.platform)

	app.providers = newProviders(httpclient.New(httpclient.DefaultConfig()))
	if err := app.providers.Apply(app.config); err != nil {
		app.logger.Warn("Provider setup: %v", err)
	}

	app.openHistory()
	if app.history != nil {
		defer app.history.Close()
	}

	app.controller = dictation.New(app.dictationConfig(), app.dictationDeps())
	defer app.controller.Close()

	serverConfig := server.DefaultConfig()
	serverConfig.Port = app.config.Port
	app.httpServer = server.New(serverConfig, app.logger)

	apiDeps := api.Deps{
		Config:            app.config,
		ConfigPath:        app.configPath,
		Dictation:         app.controller,
		Devices:           app.enumerator,
		Clipboard:         app.clipboard,
		Permissions:       app.permissions,
		Wizard:            app.wizard,
		Hub:               app.controller.Hub(),
		Notifier:          app.notifier,
		Logger:            app.logger,
		BackupDir:         backupDir(),
		OnHotkeyChanged:   app.ReloadHotkey,
		OnSettingsChanged: app.applySettings,
	}
	if app.history != nil {
		apiDeps.History = app.history
	}
	app.apiHandler = api.New(apiDeps)
	app.apiHandler.RegisterRoutes(app.httpServer.Router())
	app.logger.Info("API routes registered")

	app.trayMgr = tray.NewManager(tray.Config{
		Translator:       app.translator,
		Logger:           app.logger,
		OnReady:          app.onReady,
		OnStartDictation: func() { app.handleStart(audio.ModeMicrophone) },
		OnStartTelephone: func() { app.handleStart(audio.ModeTelephone) },
		OnTogglePause:    app.handleTogglePause,
		OnStop:           app.handleStop,
		OnOpen:           app.handleOpen,
		OnDeviceChange:   app.handleDeviceChange,
		OnQuit:           app.handleQuit,
	})

	// Blocks until Quit
	app.trayMgr.Run()
}

func (a *App) dictationConfig() dictation.Config {
	c := a.config.Clone()
	cfg := dictation.DefaultConfig()
	if c.Recording.ChunkSeconds > 0 {
		cfg.Recording.ChunkInterval = time.Duration(c.Recording.ChunkSeconds) * time.Second
	}
	cfg.Recording.Budget = recording.Budget{
		WarnThreshold: c.Recording.WarnBytes,
		HardLimit:     c.Recording.HardLimitBytes,
	}
	return cfg
}

func (a *App) dictationDeps() dictation.Deps {
	deps := dictation.Deps{
		Acquirer:    audio.NewAcquirer(a.platform),
		Encoders:    audio.NewRegistry(),
		Transcriber: transcriber{a.providers},
		Generator:   generator{a.providers},
		Hub:         events.NewHub(events.DefaultBuffer),
		Notifier:    a.notifier,
		Logger:      a.logger,
	}
	if a.history != nil {
		deps.History = a.history
	}
	return deps
}

// openHistory opens the session history and drops sessions past retention.
// History failures leave the app usable without it.
func (a *App) openHistory() {
	c := a.config.Clone()
	if !c.History.Enabled {
		a.logger.Info("Session history disabled")
		return
	}

	path, err := c.GetHistoryPath()
	if err != nil {
		a.logger.Error("Invalid history path: %v", err)
		return
	}
	history, err := store.Open(path)
	if err != nil {
		a.logger.Error("Failed to open history: %v", err)
		return
	}
	a.history = history

	if c.History.RetentionDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -c.History.RetentionDays)
		n, err := history.Prune(a.ctx, cutoff)
		if err != nil {
			a.logger.Warn("Failed to prune history: %v", err)
		} else if n > 0 {
			a.logger.Info("Pruned %d sessions older than %d days", n, c.History.RetentionDays)
		}
	}
}

func backupDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.TempDir()
	}
	return filepath.Join(home, "Downloads")
}

// onReady is called once systray has initialized
func (a *App) onReady() {
	a.logger.Info("Tray ready, starting services")

	micGranted := a.permissions.IsMicrophoneAuthorized()
	accGranted := a.permissions.IsAccessibilityAuthorized()
	if micGranted {
		a.logger.Info("Microphone permission: granted")
	} else {
		a.logger.Warn("Microphone permission: not granted, recording will fail until allowed")
		_ = a.notifier.MicrophonePermissionDenied()
	}
	if accGranted {
		a.logger.Info("Accessibility permission: granted")
	} else {
		a.logger.Warn("Accessibility permission: not granted, paste is disabled")
	}

	go a.watchEvents()
	a.refreshDevices()

	a.hotkeyMgr = hotkey.New()
	if err := a.registerHotkey(); err != nil {
		a.logger.Error("Failed to register hotkey: %v", err)
	}

	if err := a.httpServer.Start(); err != nil {
		a.logger.Error("Failed to start HTTP server: %v", err)
	} else {
		a.logger.Info("HTTP server started: %s", a.httpServer.URL())
	}

	if a.isFirstRun || !micGranted {
		a.logger.Info("Opening setup page")
		a.handleOpen()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		a.logger.Info("Received signal %v", sig)
		a.handleQuit()
		a.trayMgr.Quit()
	}()

	hk := a.hotkeyMgr.GetConfig()
	a.logger.Info("EchoDoc ready (hotkey %s, %s)", hk, a.httpServer.URL())
}

// registerHotkey registers the configured combination and starts the loop
// that toggles dictation on every press
func (a *App) registerHotkey() error {
	hkConfig, err := hotkey.FromSettings(a.config.Clone().Hotkey)
	if err != nil {
		return err
	}

	if conflicts := hotkey.CheckConflicts(hkConfig.Modifiers, hkConfig.Key); len(conflicts) > 0 {
		a.logger.Warn("Hotkey %s conflicts with %s", hkConfig, strings.Join(hotkey.Names(conflicts), ", "))
	}

	if err := a.hotkeyMgr.Register(hkConfig); err != nil {
		return err
	}
	a.startHotkeyLoop()
	a.logger.Info("Hotkey registered: %s", hkConfig)
	return nil
}

func (a *App) startHotkeyLoop() {
	a.hotkeyMu.Lock()
	defer a.hotkeyMu.Unlock()

	if a.hotkeyCancel != nil {
		a.hotkeyCancel()
	}
	ctx, cancel := context.WithCancel(a.ctx)
	a.hotkeyCancel = cancel
	go a.hotkeyMgr.Run(ctx, func(hotkey.Event) {
		c := a.config.Clone()
		mode, err := audio.ParseMode(c.CaptureMode)
		if err != nil {
			mode = audio.ModeMicrophone
		}
		if err := a.controller.Toggle(a.ctx, mode, c.AudioDeviceID); err != nil {
			a.logger.Error("Hotkey toggle failed: %v", err)
		}
	})
}

// ReloadHotkey re-registers the hotkey after its settings changed. The
// previous combination is restored when the new one cannot be registered.
func (a *App) ReloadHotkey() error {
	if a.hotkeyMgr == nil {
		return fmt.Errorf("hotkey manager is not initialized")
	}

	previous := a.hotkeyMgr.GetConfig()
	next, err := hotkey.FromSettings(a.config.Clone().Hotkey)
	if err != nil {
		return err
	}

	if err := a.hotkeyMgr.Reload(next); err != nil {
		a.logger.Error("Failed to register hotkey %s: %v", next, err)
		if rbErr := a.hotkeyMgr.Register(previous); rbErr != nil {
			a.logger.Error("Failed to restore hotkey %s: %v", previous, rbErr)
			return fmt.Errorf("failed to register hotkey and restore previous: %w", err)
		}
		a.startHotkeyLoop()
		return fmt.Errorf("failed to register hotkey %s: %w", next, err)
	}

	a.startHotkeyLoop()
	a.logger.Info("Hotkey reloaded: %s", next)
	return nil
}

// applySettings is called after settings were saved through the API
func (a *App) applySettings(cfg *config.Config) {
	c := cfg.Clone()
	a.applyLogLevel(c)
	a.notifier.SetEnabled(c.Notifications)
	if err := a.providers.Apply(c); err != nil {
		a.logger.Warn("Provider setup: %v", err)
	}
	a.translator.SetLanguage(i18n.ParseLanguage(c.UILanguage))
	a.refreshDevices()
}

func (a *App) applyLogLevel(c *config.Config) {
	level := logger.ParseLevel(c.LogLevel)
	if level == a.logger.GetLevel() {
		return
	}
	a.logger.SetLevel(level)
	a.logger.Info("Log level set to %s", level)
}

// watchEvents mirrors controller events on the tray and pastes finished
// documents when auto paste is on
func (a *App) watchEvents() {
	sub, cancel := a.controller.Hub().Subscribe()
	defer cancel()

	for {
		select {
		case <-a.ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			a.handleEvent(ev)
		}
	}
}

func (a *App) handleEvent(ev events.Event) {
	switch ev.Type {
	case events.TypeState:
		if data, ok := ev.Data.(dictation.StateData); ok {
			a.trayMgr.SetState(tray.StateFromSession(data.State))
		}
	case events.TypeTick:
		if data, ok := ev.Data.(dictation.TickData); ok {
			a.trayMgr.SetElapsed(time.Duration(data.ElapsedMs) * time.Millisecond)
		}
	case events.TypeTranscript:
		a.trayMgr.SetState(tray.StateIdle)
	case events.TypeError:
		if a.trayMgr.GetState() == tray.StateProcessing {
			a.trayMgr.SetState(tray.StateError)
		}
	case events.TypeDocument:
		doc, ok := ev.Data.(*generation.Document)
		if !ok || !a.config.Clone().AutoPaste {
			return
		}
		go a.autoPaste(doc)
	}
}

func (a *App) autoPaste(doc *generation.Document) {
	if !a.permissions.IsAccessibilityAuthorized() {
		_ = a.notifier.AccessibilityPermissionDenied()
		return
	}
	ctx, cancel := context.WithTimeout(a.ctx, 30*time.Second)
	defer cancel()
	if err := a.clipboard.Paste(ctx, doc.Text); err != nil {
		a.logger.Error("Auto paste failed: %v", err)
		return
	}
	_ = a.notifier.PasteComplete()
}

func (a *App) refreshDevices() {
	ctx, cancel := context.WithTimeout(a.ctx, 5*time.Second)
	defer cancel()

	list, err := a.enumerator.ListInputDevices(ctx)
	if err != nil {
		a.logger.Warn("Failed to list input devices: %v", err)
		return
	}

	selected := a.config.Clone().AudioDeviceID
	devices := []tray.Device{{ID: "", IsCurrent: selected == ""}}
	for _, d := range list {
		devices = append(devices, tray.Device{
			ID:        d.ID,
			Label:     d.Label,
			IsDefault: d.IsDefault,
			IsCurrent: d.ID == selected,
		})
	}
	a.trayMgr.UpdateDeviceMenu(devices)
}

func (a *App) handleStart(mode audio.Mode) {
	device := a.config.Clone().AudioDeviceID
	if _, err := a.controller.Start(a.ctx, mode, device); err != nil {
		a.logger.Error("Failed to start %s session: %v", mode, err)
	}
}

func (a *App) handleTogglePause() {
	if _, err := a.controller.TogglePause(); err != nil {
		a.logger.Warn("Pause toggle ignored: %v", err)
	}
}

func (a *App) handleStop() {
	if _, err := a.controller.Stop(); err != nil {
		a.logger.Warn("Stop ignored: %v", err)
	}
}

// handleOpen opens the EchoDoc window in the browser
func (a *App) handleOpen() {
	url := a.httpServer.URL()
	a.logger.Info("Opening %s", url)
	go func() {
		if err := exec.Command("open", url).Run(); err != nil {
			a.logger.Error("Failed to open browser: %v", err)
		}
	}()
}

func (a *App) handleDeviceChange(deviceID string) {
	if err := a.config.Update(map[string]interface{}{"audio_device_id": deviceID}); err != nil {
		a.logger.Error("Failed to select device: %v", err)
		return
	}
	if err := a.config.Save(a.configPath); err != nil {
		a.logger.Error("Failed to save config: %v", err)
	}
	a.logger.Info("Input device selected: %q", deviceID)
	a.refreshDevices()
}

// handleQuit stops every service. An active session is stopped first; the
// controller finishes its transcription when main returns.
func (a *App) handleQuit() {
	a.logger.Info("Shutting down")

	if _, err := a.controller.Stop(); err != nil {
		a.logger.Error("Failed to stop session: %v", err)
	}

	if a.httpServer != nil {
		if err := a.httpServer.Stop(); err != nil {
			a.logger.Error("Failed to stop HTTP server: %v", err)
		}
	}

	if a.hotkeyMgr != nil {
		if err := a.hotkeyMgr.Close(); err != nil {
			a.logger.Error("Failed to unregister hotkey: %v", err)
		}
	}

	a.cancel()
	a.logger.Info("Shutdown complete")
}
