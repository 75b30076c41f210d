package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config == nil {
		t.Fatal("Expected default config to be created")
	}

	if config.CaptureMode != "microphone" {
		t.Errorf("Expected CaptureMode 'microphone', got '%s'", config.CaptureMode)
	}

	if config.Language != "en-GB" {
		t.Errorf("Expected Language 'en-GB', got '%s'", config.Language)
	}

	if config.Recording.WarnBytes != 2_600_000 || config.Recording.HardLimitBytes != 3_300_000 {
		t.Errorf("Unexpected budget %+v", config.Recording)
	}

	if config.Recording.CeilingBytes != 4_500_000 {
		t.Errorf("Expected CeilingBytes 4500000, got %d", config.Recording.CeilingBytes)
	}

	if config.Transcription.Provider != "azure" || config.Generation.Provider != "openrouter" {
		t.Errorf("Unexpected providers %s/%s", config.Transcription.Provider, config.Generation.Provider)
	}

	if config.PasteSplitSize != 500 {
		t.Errorf("Expected PasteSplitSize 500, got %d", config.PasteSplitSize)
	}

	if config.LogLevel != "info" {
		t.Errorf("Expected LogLevel 'info', got '%s'", config.LogLevel)
	}

	if err := config.Validate(); err != nil {
		t.Errorf("Expected default config to be valid, got %v", err)
	}
}

func clearCredentials(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"AZURE_SPEECH_KEY", "AZURE_SPEECH_REGION", "DEEPGRAM_API_KEY", "OPENAI_API_KEY",
		"ECHODOC_RELAY_TOKEN", "OPENROUTER_API_KEY", "ANTHROPIC_API_KEY",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestSaveAndLoad(t *testing.T) {
	clearCredentials(t)
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	config := DefaultConfig()
	config.CaptureMode = "telephone"
	config.AudioDeviceID = "MacBook Pro Microphone"
	config.Recording.ChunkSeconds = 2
	config.Credentials.OpenRouterAPIKey = "secret"

	if err := config.Save(configPath); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatal("Config file was not created")
	}
	if strings.Contains(string(data), "secret") {
		t.Error("Credentials must not be written to the config file")
	}

	loaded, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if loaded.CaptureMode != "telephone" {
		t.Errorf("Expected CaptureMode 'telephone', got '%s'", loaded.CaptureMode)
	}

	if loaded.AudioDeviceID != "MacBook Pro Microphone" {
		t.Errorf("Expected device to round-trip, got '%s'", loaded.AudioDeviceID)
	}

	if loaded.Recording.ChunkSeconds != 2 {
		t.Errorf("Expected ChunkSeconds 2, got %d", loaded.Recording.ChunkSeconds)
	}

	if loaded.Recording.HardLimitBytes != 3_300_000 {
		t.Errorf("Expected HardLimitBytes 3300000, got %d", loaded.Recording.HardLimitBytes)
	}
}

func TestLoadNonexistent(t *testing.T) {
	config, err := Load("/nonexistent/path/config.json")
	if err != nil {
		t.Fatalf("Expected no error when loading nonexistent file, got: %v", err)
	}

	defaultConfig := DefaultConfig()
	if config.Language != defaultConfig.Language {
		t.Errorf("Expected Language '%s', got '%s'", defaultConfig.Language, config.Language)
	}
	if config.History.RetentionDays != 30 {
		t.Errorf("Expected RetentionDays 30, got %d", config.History.RetentionDays)
	}
}

func TestLoadPartialFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.json")
	content := `{"transcription": {"provider": "deepgram"}, "hotkey": {"key": ""}}`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	config, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if config.Transcription.Provider != "deepgram" {
		t.Errorf("Expected provider 'deepgram', got '%s'", config.Transcription.Provider)
	}
	if config.Transcription.DeepgramModel != "nova-2-medical" {
		t.Errorf("Expected default model to fill in, got '%s'", config.Transcription.DeepgramModel)
	}
	if config.Hotkey.Key != "D" {
		t.Errorf("Expected empty hotkey key to fall back to 'D', got '%s'", config.Hotkey.Key)
	}
}

func TestLoadInvalidJSON(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.json")
	os.WriteFile(configPath, []byte("{not json"), 0644)

	if _, err := Load(configPath); err == nil {
		t.Error("Expected error for invalid JSON")
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("ECHODOC_TRANSCRIPTION_PROVIDER", "whisper")
	t.Setenv("ECHODOC_HISTORY_ENABLED", "false")

	config, err := Load(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if config.Transcription.Provider != "whisper" {
		t.Errorf("Expected env override 'whisper', got '%s'", config.Transcription.Provider)
	}
	if config.History.Enabled {
		t.Error("Expected history to be disabled by env")
	}
}

func TestCredentialsFromDotEnv(t *testing.T) {
	clearCredentials(t)
	t.Setenv("AZURE_SPEECH_KEY", "from-env")

	dir := t.TempDir()
	envFile := "OPENROUTER_API_KEY=from-file\nAZURE_SPEECH_KEY=ignored\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(envFile), 0600); err != nil {
		t.Fatal(err)
	}

	config, err := Load(filepath.Join(dir, "config.json"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if config.Credentials.OpenRouterAPIKey != "from-file" {
		t.Errorf("Expected key from .env, got '%s'", config.Credentials.OpenRouterAPIKey)
	}
	if config.Credentials.AzureSpeechKey != "from-env" {
		t.Errorf("Expected existing env to win, got '%s'", config.Credentials.AzureSpeechKey)
	}
}

func TestUpdate(t *testing.T) {
	config := DefaultConfig()

	updates := map[string]interface{}{
		"capture_mode":     "telephone",
		"language":         "en-US",
		"audio_device_id":  "USB Headset",
		"paste_split_size": float64(800),
		"auto_paste":       true,
		"log_level":        "DEBUG",
		"transcription":    map[string]interface{}{"provider": "deepgram"},
		"history":          map[string]interface{}{"retention_days": float64(7)},
	}

	if err := config.Update(updates); err != nil {
		t.Fatalf("Failed to update config: %v", err)
	}

	if config.CaptureMode != "telephone" {
		t.Errorf("Expected CaptureMode 'telephone', got '%s'", config.CaptureMode)
	}

	if config.Language != "en-US" {
		t.Errorf("Expected Language 'en-US', got '%s'", config.Language)
	}

	if config.AudioDeviceID != "USB Headset" {
		t.Errorf("Expected AudioDeviceID 'USB Headset', got '%s'", config.AudioDeviceID)
	}

	if config.PasteSplitSize != 800 || !config.AutoPaste {
		t.Errorf("Unexpected paste settings %d/%v", config.PasteSplitSize, config.AutoPaste)
	}

	if config.LogLevel != "debug" {
		t.Errorf("Expected LogLevel 'debug', got '%s'", config.LogLevel)
	}

	if config.Transcription.Provider != "deepgram" || config.History.RetentionDays != 7 {
		t.Errorf("Unexpected nested updates %+v %+v", config.Transcription, config.History)
	}
}

func TestUpdateInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		updates map[string]interface{}
	}{
		{"capture mode", map[string]interface{}{"capture_mode": "invalid"}},
		{"empty language", map[string]interface{}{"language": ""}},
		{"ui language", map[string]interface{}{"ui_language": "invalid"}},
		{"split size", map[string]interface{}{"paste_split_size": float64(0)}},
		{"log level", map[string]interface{}{"log_level": "verbose"}},
		{"provider", map[string]interface{}{"transcription": map[string]interface{}{"provider": "watson"}}},
		{"relay without url", map[string]interface{}{"transcription": map[string]interface{}{"provider": "relay"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			if err := config.Update(tt.updates); err == nil {
				t.Error("Expected error")
			}
			if config.CaptureMode != "microphone" || config.Transcription.Provider != "azure" || config.PasteSplitSize != 500 {
				t.Error("Expected config to be unchanged after a failed update")
			}
		})
	}
}

func TestValidateBudgetOrder(t *testing.T) {
	config := DefaultConfig()
	config.Recording.HardLimitBytes = config.Recording.WarnBytes

	err := config.Validate()
	if err == nil {
		t.Fatal("Expected error when hard limit does not exceed warn threshold")
	}
	if !strings.Contains(err.Error(), "hard_limit_bytes") {
		t.Errorf("Expected error to name hard_limit_bytes, got %v", err)
	}
}

func TestValidateCeilingCoversEncodedUpload(t *testing.T) {
	tests := []struct {
		name    string
		hard    int64
		ceiling int64
		chunk   int
		valid   bool
	}{
		{"defaults", 3_300_000, 4_500_000, 1, true},
		{"raw bytes just under ceiling", 4_400_000, 4_500_000, 1, false},
		{"hard limit equals ceiling", 4_500_000, 4_500_000, 1, false},
		{"long chunks overshoot", 3_300_000, 4_500_000, 10, false},
		{"room for base64 and a chunk", 3_000_000, 4_100_000, 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			config.Recording.WarnBytes = tt.hard / 2
			config.Recording.HardLimitBytes = tt.hard
			config.Recording.CeilingBytes = tt.ceiling
			config.Recording.ChunkSeconds = tt.chunk

			err := config.Validate()
			if tt.valid && err != nil {
				t.Errorf("Expected valid config, got %v", err)
			}
			if !tt.valid {
				if err == nil {
					t.Fatal("Expected error")
				}
				if !strings.Contains(err.Error(), "ceiling_bytes") {
					t.Errorf("Expected error to name ceiling_bytes, got %v", err)
				}
			}
		})
	}
}

func TestClone(t *testing.T) {
	original := DefaultConfig()
	original.CaptureMode = "telephone"
	original.Credentials.AnthropicAPIKey = "k"

	cloned := original.Clone()

	if cloned.CaptureMode != original.CaptureMode {
		t.Errorf("Expected CaptureMode '%s', got '%s'", original.CaptureMode, cloned.CaptureMode)
	}

	if cloned.Credentials.AnthropicAPIKey != "k" {
		t.Error("Expected credentials to be cloned")
	}

	cloned.CaptureMode = "microphone"

	if original.CaptureMode != "telephone" {
		t.Error("Modifying clone affected original")
	}
}

func TestGetConfigPath(t *testing.T) {
	path := GetConfigPath()

	expectedDir := filepath.Join("Library", "Application Support", "EchoDoc")
	if !strings.Contains(path, expectedDir) {
		t.Errorf("Expected path to contain '%s', got '%s'", expectedDir, path)
	}

	if !strings.HasSuffix(path, "config.json") {
		t.Errorf("Expected path to end with 'config.json', got '%s'", path)
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	got, err := ExpandPath("~/EchoDoc/history.sqlite")
	if err != nil {
		t.Fatalf("ExpandPath failed: %v", err)
	}
	if got != filepath.Join(home, "EchoDoc", "history.sqlite") {
		t.Errorf("Unexpected expansion %s", got)
	}

	if got, _ := ExpandPath(""); got != "" {
		t.Errorf("Expected empty path, got %s", got)
	}
}
