package wizard

import (
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"github.com/yok-tottii/EchoDoc/internal/config"
	"github.com/yok-tottii/EchoDoc/internal/permissions"
)

func newWizard(t *testing.T) *SetupWizard {
	t.Helper()
	wizard, err := NewSetupWizard(filepath.Join(t.TempDir(), "EchoDoc", "config.json"))
	if err != nil {
		t.Fatalf("Failed to create wizard: %v", err)
	}
	return wizard
}

func TestNewSetupWizard(t *testing.T) {
	wizard := newWizard(t)

	if wizard.configDir == "" {
		t.Error("Expected configDir to be set")
	}
	if filepath.Base(wizard.GetConfigPath()) != "config.json" {
		t.Errorf("Expected config.json, got %s", wizard.GetConfigPath())
	}
	if _, err := os.Stat(wizard.configDir); err != nil {
		t.Errorf("Expected config directory to be created: %v", err)
	}
}

func TestIsFirstRun(t *testing.T) {
	wizard := newWizard(t)

	if !wizard.IsFirstRun() {
		t.Error("Expected IsFirstRun to return true when config doesn't exist")
	}

	if err := config.DefaultConfig().Save(wizard.GetConfigPath()); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	if wizard.IsFirstRun() {
		t.Error("Expected IsFirstRun to return false when config exists")
	}
}

func TestShouldShowWizard(t *testing.T) {
	wizard := newWizard(t)

	if !wizard.ShouldShowWizard() {
		t.Error("Expected wizard on first run")
	}

	if err := config.DefaultConfig().Save(wizard.GetConfigPath()); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}
	if !wizard.ShouldShowWizard() {
		t.Error("Expected wizard while setup is unfinished")
	}

	if err := wizard.MarkSetupCompleted(); err != nil {
		t.Fatalf("MarkSetupCompleted failed: %v", err)
	}
	if wizard.ShouldShowWizard() {
		t.Error("Expected no wizard after setup completed")
	}
}

func TestMarkStepAndProgress(t *testing.T) {
	wizard := newWizard(t)

	if got := wizard.GetProgress(); got != (SetupProgress{}) {
		t.Errorf("Expected empty progress, got %+v", got)
	}

	if err := wizard.MarkStep(StepHotkey); err != nil {
		t.Fatalf("MarkStep failed: %v", err)
	}
	if err := wizard.MarkStep(StepTest); err != nil {
		t.Fatalf("MarkStep failed: %v", err)
	}

	want := SetupProgress{HotkeyConfigured: true, TestCompleted: true}
	if got := wizard.GetProgress(); got != want {
		t.Errorf("Expected %+v, got %+v", want, got)
	}

	// Steps survive completion
	if err := wizard.MarkSetupCompleted(); err != nil {
		t.Fatalf("MarkSetupCompleted failed: %v", err)
	}
	want.Completed = true
	if got := wizard.GetProgress(); got != want {
		t.Errorf("Expected %+v, got %+v", want, got)
	}
}

func TestMarkUnknownStep(t *testing.T) {
	wizard := newWizard(t)

	if err := wizard.MarkStep(Step("model")); err == nil {
		t.Error("Expected error for unknown step")
	}
}

func TestCorruptStateFile(t *testing.T) {
	wizard := newWizard(t)

	if err := os.WriteFile(wizard.setupFlagFile, []byte("{"), 0600); err != nil {
		t.Fatalf("Failed to write state: %v", err)
	}

	if wizard.IsSetupCompleted() {
		t.Error("Expected corrupt state to count as not completed")
	}
	if err := wizard.MarkStep(StepTest); err == nil {
		t.Error("Expected error for corrupt state")
	}
}

func TestMissingCredentials(t *testing.T) {
	tests := []struct {
		name          string
		transcription string
		generation    string
		creds         config.Credentials
		want          []string
	}{
		{"azure and openrouter missing", "azure", "openrouter", config.Credentials{}, []string{"AZURE_SPEECH_KEY", "OPENROUTER_API_KEY"}},
		{"deepgram set", "deepgram", "openrouter", config.Credentials{DeepgramAPIKey: "k", OpenRouterAPIKey: "k"}, nil},
		{"whisper missing", "whisper", "anthropic", config.Credentials{AnthropicAPIKey: "k"}, []string{"OPENAI_API_KEY"}},
		{"relay missing", "relay", "anthropic", config.Credentials{}, []string{"ECHODOC_RELAY_TOKEN", "ANTHROPIC_API_KEY"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Transcription.Provider = tt.transcription
			cfg.Generation.Provider = tt.generation
			cfg.Credentials = tt.creds

			if got := MissingCredentials(cfg); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestWhisperBaseURLNeedsNoKey(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Transcription.Provider = "whisper"
	cfg.Transcription.WhisperBaseURL = "http://localhost:8080"
	cfg.Credentials.OpenRouterAPIKey = "k"

	if got := MissingCredentials(cfg); len(got) != 0 {
		t.Errorf("Expected no missing credentials, got %v", got)
	}
}

func TestEvaluate(t *testing.T) {
	wizard := newWizard(t)

	cfg := config.DefaultConfig()
	cfg.Credentials = config.Credentials{AzureSpeechKey: "k", OpenRouterAPIKey: "k"}

	granted := permissions.NewWithProbes(permissions.Probes{})
	progress := wizard.Evaluate(cfg, granted)
	if !progress.PermissionsGranted || !progress.ProvidersConfigured {
		t.Errorf("Expected permissions and providers done, got %+v", progress)
	}
	if progress.HotkeyConfigured {
		t.Error("Expected hotkey step not done")
	}

	denied := permissions.NewWithProbes(permissions.Probes{
		Microphone: func() permissions.PermissionStatus { return permissions.PermissionDenied },
	})
	if wizard.Evaluate(config.DefaultConfig(), denied).PermissionsGranted {
		t.Error("Expected permissions not granted")
	}
}

func TestConcurrentWizardOperations(t *testing.T) {
	wizard := newWizard(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = wizard.MarkStep(Steps()[i%len(Steps())])
			wizard.IsSetupCompleted()
			wizard.ShouldShowWizard()
			wizard.GetProgress()
		}(i)
	}
	wg.Wait()

	progress := wizard.GetProgress()
	if !progress.PermissionsGranted || !progress.TestCompleted {
		t.Errorf("Expected every step recorded, got %+v", progress)
	}
}
