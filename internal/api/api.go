// Package api serves the local HTTP API used by the EchoDoc window.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yok-tottii/EchoDoc/internal/apperr"
	"github.com/yok-tottii/EchoDoc/internal/audio"
	"github.com/yok-tottii/EchoDoc/internal/config"
	"github.com/yok-tottii/EchoDoc/internal/dictation"
	"github.com/yok-tottii/EchoDoc/internal/events"
	"github.com/yok-tottii/EchoDoc/internal/generation"
	"github.com/yok-tottii/EchoDoc/internal/hotkey"
	"github.com/yok-tottii/EchoDoc/internal/logger"
	"github.com/yok-tottii/EchoDoc/internal/permissions"
	"github.com/yok-tottii/EchoDoc/internal/recording"
	"github.com/yok-tottii/EchoDoc/internal/store"
	"github.com/yok-tottii/EchoDoc/internal/wizard"
)

// maxBodyBytes bounds request bodies; transcripts are the largest
const maxBodyBytes = 1 << 20

// Dictation is the session controller
type Dictation interface {
	Start(ctx context.Context, mode audio.Mode, deviceID string) (string, error)
	Stop() (bool, error)
	Pause() (bool, error)
	Resume() (bool, error)
	TogglePause() (recording.State, error)
	Status() dictation.Status
	Transcript() *dictation.Transcript
	SetTranscript(ctx context.Context, text string) (*dictation.Transcript, error)
	Generate(ctx context.Context, req dictation.GenerateRequest) (*generation.Document, error)
	Documents() []generation.Document
	Document(t generation.DocumentType) (*generation.Document, bool)
	Backup() *recording.Capture
	SaveBackup(dir string) (string, error)
}

// DeviceLister lists audio input devices
type DeviceLister interface {
	ListInputDevices(ctx context.Context) ([]audio.Device, error)
}

// Clipboard copies and pastes document text
type Clipboard interface {
	Copy(text string) error
	Paste(ctx context.Context, text string) error
	SetSplitSize(n int)
}

// History reads past sessions
type History interface {
	RecentSessions(ctx context.Context, limit int) ([]store.Session, error)
	TranscriptFor(ctx context.Context, sessionID string) (*store.Transcript, error)
	DocumentsFor(ctx context.Context, sessionID string) ([]store.Document, error)
}

// Notifier reports paste results
type Notifier interface {
	PasteComplete() error
	AccessibilityPermissionDenied() error
}

// Deps are the collaborators of the API handler. Optional ones may be nil.
type Deps struct {
	Config      *config.Config
	ConfigPath  string
	Dictation   Dictation
	Devices     DeviceLister
	Clipboard   Clipboard
	History     History
	Permissions *permissions.PermissionChecker
	Wizard      *wizard.SetupWizard
	Hub         *events.Hub
	Notifier    Notifier
	Logger      *logger.Logger
	// BackupDir is where SaveBackup writes when the request names no directory
	BackupDir string
	// OnHotkeyChanged reloads the global hotkey after it was saved
	OnHotkeyChanged func() error
	// OnSettingsChanged is called after settings were saved
	OnSettingsChanged func(cfg *config.Config)
}

// Handler manages API endpoints
type Handler struct {
	deps Deps
	log  *logger.Logger
}

// New creates a new API handler
func New(deps Deps) *Handler {
	if deps.Config == nil {
		deps.Config = config.DefaultConfig()
	}
	if deps.ConfigPath == "" {
		deps.ConfigPath = config.GetConfigPath()
	}
	if deps.Permissions == nil {
		deps.Permissions = permissions.NewPermissionChecker()
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	return &Handler{deps: deps, log: deps.Logger.WithComponent("api")}
}

// RegisterRoutes registers all API routes under /api
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/settings", h.getSettings)
		r.Put("/settings", h.putSettings)

		r.Get("/setup", h.getSetup)
		r.Post("/setup/steps/{step}", h.markSetupStep)
		r.Post("/setup/complete", h.completeSetup)

		r.Post("/hotkey/validate", h.validateHotkey)
		r.Post("/hotkey/register", h.registerHotkey)

		r.Get("/devices", h.listDevices)
		r.Get("/permissions", h.getPermissions)
		r.Post("/permissions/{name}/request", h.requestPermission)

		r.Route("/session", func(r chi.Router) {
			r.Post("/start", h.startSession)
			r.Post("/stop", h.stopSession)
			r.Post("/pause", h.pauseSession)
			r.Post("/resume", h.resumeSession)
			r.Post("/toggle-pause", h.togglePause)
		})
		r.Get("/status", h.getStatus)

		r.Get("/transcript", h.getTranscript)
		r.Put("/transcript", h.putTranscript)

		r.Post("/documents/generate", h.generateDocument)
		r.Get("/documents", h.listDocuments)
		r.Get("/documents/{type}", h.getDocument)
		r.Post("/documents/{type}/copy", h.copyDocument)
		r.Post("/documents/{type}/paste", h.pasteDocument)

		r.Get("/backup", h.downloadBackup)
		r.Post("/backup/save", h.saveBackup)

		r.Get("/history", h.listHistory)
		r.Get("/history/{id}", h.getHistory)

		r.Get("/events", h.streamEvents)
	})
}

// Router returns a chi router serving the API
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

// errorBody is the envelope every failed request answers with
type errorBody struct {
	Error *apperr.Error `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	e := apperr.Internalize(err)
	status := e.HTTPStatus()
	if status >= 500 {
		h.log.Error("Request failed: %v", err)
	}
	writeJSON(w, status, errorBody{Error: e})
}

// decode reads a JSON request body into v
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.New(apperr.KindPayloadTooLarge, "request body is too large")
		}
		return apperr.InvalidInput("body", "invalid JSON")
	}
	return nil
}

func unavailable(what string) error {
	return apperr.New(apperr.KindInternal, what+" is not available")
}

// getSettings returns the current configuration
func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Config.Clone())
}

// putSettings updates and saves the configuration
func (h *Handler) putSettings(w http.ResponseWriter, r *http.Request) {
	var updates map[string]interface{}
	if err := decode(w, r, &updates); err != nil {
		h.writeError(w, err)
		return
	}

	if err := h.deps.Config.Update(updates); err != nil {
		h.writeError(w, apperr.New(apperr.KindInvalidInput, err.Error()))
		return
	}

	if err := h.deps.Config.Save(h.deps.ConfigPath); err != nil {
		h.writeError(w, apperr.Wrap(apperr.KindInternal, "failed to save settings", err))
		return
	}

	cfg := h.deps.Config.Clone()
	if h.deps.Clipboard != nil {
		h.deps.Clipboard.SetSplitSize(cfg.PasteSplitSize)
	}
	if h.deps.OnSettingsChanged != nil {
		h.deps.OnSettingsChanged(cfg)
	}

	if _, ok := updates["hotkey"]; ok {
		h.reloadHotkey()
	}

	writeJSON(w, http.StatusOK, cfg)
}

// reloadHotkey applies a saved hotkey; failures leave the settings saved
func (h *Handler) reloadHotkey() error {
	if h.deps.OnHotkeyChanged == nil {
		return nil
	}
	if err := h.deps.OnHotkeyChanged(); err != nil {
		h.log.Warn("Failed to reload hotkey: %v", err)
		return err
	}
	return nil
}

type setupResponse struct {
	Progress           wizard.SetupProgress `json:"progress"`
	ShowWizard         bool                 `json:"show_wizard"`
	MissingCredentials []string             `json:"missing_credentials"`
}

func (h *Handler) setupResponse() setupResponse {
	resp := setupResponse{
		Progress:           h.deps.Wizard.Evaluate(h.deps.Config, h.deps.Permissions),
		ShowWizard:         h.deps.Wizard.ShouldShowWizard(),
		MissingCredentials: wizard.MissingCredentials(h.deps.Config),
	}
	if resp.MissingCredentials == nil {
		resp.MissingCredentials = []string{}
	}
	return resp
}

func (h *Handler) getSetup(w http.ResponseWriter, r *http.Request) {
	if h.deps.Wizard == nil {
		h.writeError(w, unavailable("setup"))
		return
	}
	writeJSON(w, http.StatusOK, h.setupResponse())
}

func (h *Handler) markSetupStep(w http.ResponseWriter, r *http.Request) {
	if h.deps.Wizard == nil {
		h.writeError(w, unavailable("setup"))
		return
	}
	step := wizard.Step(chi.URLParam(r, "step"))
	if err := h.deps.Wizard.MarkStep(step); err != nil {
		h.writeError(w, apperr.InvalidInput("step", err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, h.setupResponse())
}

func (h *Handler) completeSetup(w http.ResponseWriter, r *http.Request) {
	if h.deps.Wizard == nil {
		h.writeError(w, unavailable("setup"))
		return
	}
	// The settings file marks the app as configured
	if err := h.deps.Config.Save(h.deps.ConfigPath); err != nil {
		h.writeError(w, apperr.Wrap(apperr.KindInternal, "failed to save settings", err))
		return
	}
	if err := h.deps.Wizard.MarkSetupCompleted(); err != nil {
		h.writeError(w, apperr.Wrap(apperr.KindInternal, "failed to mark setup completed", err))
		return
	}
	writeJSON(w, http.StatusOK, h.setupResponse())
}

type hotkeyResponse struct {
	Hotkey    string   `json:"hotkey"`
	Conflicts []string `json:"conflicts"`
	Status    string   `json:"status,omitempty"`
	Message   string   `json:"message,omitempty"`
}

// validateHotkey reports the display form and conflicts of a combination
func (h *Handler) validateHotkey(w http.ResponseWriter, r *http.Request) {
	var request config.HotkeyConfig
	if err := decode(w, r, &request); err != nil {
		h.writeError(w, err)
		return
	}

	hk, err := hotkey.FromSettings(request)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, hotkeyResponse{
		Hotkey:    hk.String(),
		Conflicts: hotkey.Names(hotkey.CheckConflicts(hk.Modifiers, hk.Key)),
	})
}

// registerHotkey saves a combination and applies it to the running app
func (h *Handler) registerHotkey(w http.ResponseWriter, r *http.Request) {
	var request config.HotkeyConfig
	if err := decode(w, r, &request); err != nil {
		h.writeError(w, err)
		return
	}

	hk, err := hotkey.FromSettings(request)
	if err != nil {
		h.writeError(w, err)
		return
	}

	update := map[string]interface{}{
		"hotkey": map[string]interface{}{
			"ctrl":  request.Ctrl,
			"shift": request.Shift,
			"alt":   request.Alt,
			"cmd":   request.Cmd,
			"key":   request.Key,
		},
	}
	if err := h.deps.Config.Update(update); err != nil {
		h.writeError(w, apperr.New(apperr.KindInvalidInput, err.Error()))
		return
	}
	if err := h.deps.Config.Save(h.deps.ConfigPath); err != nil {
		h.writeError(w, apperr.Wrap(apperr.KindInternal, "failed to save settings", err))
		return
	}

	resp := hotkeyResponse{
		Hotkey:    hk.String(),
		Conflicts: hotkey.Names(hotkey.CheckConflicts(hk.Modifiers, hk.Key)),
		Status:    "success",
		Message:   "Hotkey registered and applied",
	}
	if err := h.reloadHotkey(); err != nil {
		resp.Status = "partial"
		resp.Message = "Hotkey saved but could not be applied, restart EchoDoc"
	}
	writeJSON(w, http.StatusOK, resp)
}

// devicesResponse always carries a list, empty when permission is missing
type devicesResponse struct {
	Devices  []audio.Device `json:"devices"`
	Selected string         `json:"selected"`
	Error    *apperr.Error  `json:"error,omitempty"`
}

func (h *Handler) listDevices(w http.ResponseWriter, r *http.Request) {
	resp := devicesResponse{
		Devices:  []audio.Device{},
		Selected: h.deps.Config.Clone().AudioDeviceID,
	}
	if h.deps.Devices == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	devices, err := h.deps.Devices.ListInputDevices(ctx)
	if err != nil {
		resp.Error = apperr.Internalize(err)
	}
	if devices != nil {
		resp.Devices = devices
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getPermissions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Permissions.CheckAll())
}

func (h *Handler) requestPermission(w http.ResponseWriter, r *http.Request) {
	perm := permissions.Permission(chi.URLParam(r, "name"))
	switch perm {
	case permissions.Microphone, permissions.ScreenCapture, permissions.Accessibility:
	default:
		h.writeError(w, apperr.InvalidInput("permission", "unknown permission "+string(perm)))
		return
	}

	if err := h.deps.Permissions.Request(perm); err != nil {
		h.writeError(w, apperr.Wrap(apperr.KindInternal, "failed to open System Settings", err))
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Permissions.CheckAll())
}
