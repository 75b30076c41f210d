// Package wizard tracks the first-run setup: permissions, provider keys,
// the dictation hotkey and a test recording.
package wizard

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/yok-tottii/EchoDoc/internal/config"
	"github.com/yok-tottii/EchoDoc/internal/permissions"
)

// Step is one setup step
type Step string

const (
	StepPermissions Step = "permissions"
	StepProviders   Step = "providers"
	StepHotkey      Step = "hotkey"
	StepTest        Step = "test"
)

// Steps returns the steps in the order the wizard shows them
func Steps() []Step {
	return []Step{StepPermissions, StepProviders, StepHotkey, StepTest}
}

func validStep(s Step) bool {
	for _, step := range Steps() {
		if step == s {
			return true
		}
	}
	return false
}

// SetupWizard manages the initial application setup flow
type SetupWizard struct {
	configDir     string
	configPath    string
	setupFlagFile string
	mu            sync.RWMutex
}

// setupState is the content of the setup flag file
type setupState struct {
	Steps       map[Step]time.Time `json:"steps"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
}

// NewSetupWizard creates a setup wizard for the config file at configPath,
// or the default config path when empty
func NewSetupWizard(configPath string) (*SetupWizard, error) {
	if configPath == "" {
		configPath = config.GetConfigPath()
	}
	configDir := filepath.Dir(configPath)

	// Ensure config directory exists
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	return &SetupWizard{
		configDir:     configDir,
		configPath:    configPath,
		setupFlagFile: filepath.Join(configDir, ".setup_state.json"),
	}, nil
}

// IsFirstRun checks if this is the first run of the application
func (w *SetupWizard) IsFirstRun() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()

	_, err := os.Stat(w.configPath)
	return os.IsNotExist(err)
}

func (w *SetupWizard) readState() (setupState, error) {
	state := setupState{Steps: map[Step]time.Time{}}
	data, err := os.ReadFile(w.setupFlagFile)
	if os.IsNotExist(err) {
		return state, nil
	}
	if err != nil {
		return state, fmt.Errorf("failed to read setup state: %w", err)
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return setupState{Steps: map[Step]time.Time{}}, fmt.Errorf("failed to parse setup state: %w", err)
	}
	if state.Steps == nil {
		state.Steps = map[Step]time.Time{}
	}
	return state, nil
}

func (w *SetupWizard) writeState(state setupState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal setup state: %w", err)
	}
	if err := os.WriteFile(w.setupFlagFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write setup state: %w", err)
	}
	return nil
}

// IsSetupCompleted checks if the initial setup wizard has been completed
func (w *SetupWizard) IsSetupCompleted() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()

	state, err := w.readState()
	return err == nil && state.CompletedAt != nil
}

// MarkStep records a finished step
func (w *SetupWizard) MarkStep(step Step) error {
	if !validStep(step) {
		return fmt.Errorf("unknown setup step %q", step)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	state, err := w.readState()
	if err != nil {
		return err
	}
	state.Steps[step] = time.Now().UTC()
	return w.writeState(state)
}

// MarkSetupCompleted marks the setup wizard as completed
func (w *SetupWizard) MarkSetupCompleted() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	state, err := w.readState()
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	state.CompletedAt = &now
	return w.writeState(state)
}

// ShouldShowWizard returns true on first run or while setup is unfinished
func (w *SetupWizard) ShouldShowWizard() bool {
	return w.IsFirstRun() || !w.IsSetupCompleted()
}

// SetupProgress is the completion status of each wizard step
type SetupProgress struct {
	PermissionsGranted  bool `json:"permissions_granted"`
	ProvidersConfigured bool `json:"providers_configured"`
	HotkeyConfigured    bool `json:"hotkey_configured"`
	TestCompleted       bool `json:"test_completed"`
	Completed           bool `json:"completed"`
}

// GetProgress returns the recorded progress
func (w *SetupWizard) GetProgress() SetupProgress {
	w.mu.RLock()
	defer w.mu.RUnlock()

	state, _ := w.readState()
	_, perms := state.Steps[StepPermissions]
	_, providers := state.Steps[StepProviders]
	_, hotkey := state.Steps[StepHotkey]
	_, test := state.Steps[StepTest]

	return SetupProgress{
		PermissionsGranted:  perms,
		ProvidersConfigured: providers,
		HotkeyConfigured:    hotkey,
		TestCompleted:       test,
		Completed:           state.CompletedAt != nil,
	}
}

// Evaluate merges recorded progress with what can be checked now: granted
// permissions and provider credentials count as done even when unrecorded.
func (w *SetupWizard) Evaluate(cfg *config.Config, checker *permissions.PermissionChecker) SetupProgress {
	progress := w.GetProgress()
	if checker != nil && checker.AreAllPermissionsGranted() {
		progress.PermissionsGranted = true
	}
	if cfg != nil && len(MissingCredentials(cfg)) == 0 {
		progress.ProvidersConfigured = true
	}
	return progress
}

// MissingCredentials names the environment variables the selected
// providers need but that are not set
func MissingCredentials(cfg *config.Config) []string {
	c := cfg.Clone()
	creds := c.Credentials
	var missing []string

	switch c.Transcription.Provider {
	case "azure":
		if creds.AzureSpeechKey == "" {
			missing = append(missing, "AZURE_SPEECH_KEY")
		}
	case "deepgram":
		if creds.DeepgramAPIKey == "" {
			missing = append(missing, "DEEPGRAM_API_KEY")
		}
	case "whisper":
		if creds.OpenAIAPIKey == "" && c.Transcription.WhisperBaseURL == "" {
			missing = append(missing, "OPENAI_API_KEY")
		}
	case "relay":
		if creds.RelayToken == "" {
			missing = append(missing, "ECHODOC_RELAY_TOKEN")
		}
	}

	switch c.Generation.Provider {
	case "openrouter":
		if creds.OpenRouterAPIKey == "" {
			missing = append(missing, "OPENROUTER_API_KEY")
		}
	case "anthropic":
		if creds.AnthropicAPIKey == "" {
			missing = append(missing, "ANTHROPIC_API_KEY")
		}
	}

	return missing
}

// GetConfigPath returns the configuration file path
func (w *SetupWizard) GetConfigPath() string {
	return w.configPath
}
