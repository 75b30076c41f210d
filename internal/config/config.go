package config

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Hotkey          HotkeyConfig        `json:"hotkey" mapstructure:"hotkey"`
	CaptureMode     string              `json:"capture_mode" mapstructure:"capture_mode" validate:"oneof=microphone telephone"`
	AudioDeviceID   string              `json:"audio_device_id" mapstructure:"audio_device_id"` // "" means the system default device
	Language        string              `json:"language" mapstructure:"language" validate:"required"`
	UILanguage      string              `json:"ui_language" mapstructure:"ui_language" validate:"oneof=ja en"`
	PasteSplitSize  int                 `json:"paste_split_size" mapstructure:"paste_split_size" validate:"min=1,max=10000"` // characters
	AutoPaste       bool                `json:"auto_paste" mapstructure:"auto_paste"`
	RedactByDefault bool                `json:"redact_by_default" mapstructure:"redact_by_default"`
	Notifications   bool                `json:"notifications" mapstructure:"notifications"`
	Port            int                 `json:"port" mapstructure:"port" validate:"min=0,max=65535"`
	LogLevel        string              `json:"log_level" mapstructure:"log_level" validate:"oneof=debug info warn error"`
	Recording       RecordingConfig     `json:"recording" mapstructure:"recording"`
	Transcription   TranscriptionConfig `json:"transcription" mapstructure:"transcription"`
	Generation      GenerationConfig    `json:"generation" mapstructure:"generation"`
	History         HistoryConfig       `json:"history" mapstructure:"history"`

	// Credentials come from the environment and are never saved
	Credentials Credentials `json:"-" mapstructure:"-"`

	mu sync.RWMutex
}

// HotkeyConfig holds hotkey configuration
type HotkeyConfig struct {
	Ctrl  bool   `json:"ctrl" mapstructure:"ctrl"`
	Shift bool   `json:"shift" mapstructure:"shift"`
	Alt   bool   `json:"alt" mapstructure:"alt"`
	Cmd   bool   `json:"cmd" mapstructure:"cmd"`
	Key   string `json:"key" mapstructure:"key"` // e.g., "D"
}

// RecordingConfig holds capture and size budget settings
type RecordingConfig struct {
	ChunkSeconds   int   `json:"chunk_seconds" mapstructure:"chunk_seconds" validate:"min=1,max=10"`
	WarnBytes      int64 `json:"warn_bytes" mapstructure:"warn_bytes" validate:"min=1"`
	HardLimitBytes int64 `json:"hard_limit_bytes" mapstructure:"hard_limit_bytes" validate:"gtfield=WarnBytes"`
	CeilingBytes   int64 `json:"ceiling_bytes" mapstructure:"ceiling_bytes" validate:"min=1"`
}

// TranscriptionConfig selects the speech-to-text provider
type TranscriptionConfig struct {
	Provider       string `json:"provider" mapstructure:"provider" validate:"oneof=azure deepgram whisper relay"`
	AzureRegion    string `json:"azure_region" mapstructure:"azure_region"`
	AzureEndpoint  string `json:"azure_endpoint" mapstructure:"azure_endpoint" validate:"omitempty,url"`
	DeepgramModel  string `json:"deepgram_model" mapstructure:"deepgram_model"`
	WhisperModel   string `json:"whisper_model" mapstructure:"whisper_model"`
	WhisperBaseURL string `json:"whisper_base_url" mapstructure:"whisper_base_url" validate:"omitempty,url"`
	RelayURL       string `json:"relay_url" mapstructure:"relay_url" validate:"omitempty,url"`
}

// GenerationConfig selects the language model provider
type GenerationConfig struct {
	Provider string `json:"provider" mapstructure:"provider" validate:"oneof=openrouter anthropic"`
	Model    string `json:"model" mapstructure:"model"`
	BaseURL  string `json:"base_url" mapstructure:"base_url" validate:"omitempty,url"`
}

// HistoryConfig controls the local session history
type HistoryConfig struct {
	Enabled       bool   `json:"enabled" mapstructure:"enabled"`
	RetentionDays int    `json:"retention_days" mapstructure:"retention_days" validate:"min=0,max=3650"`
	Path          string `json:"path" mapstructure:"path"`
}

// Credentials are the provider API keys
type Credentials struct {
	AzureSpeechKey    string
	AzureSpeechRegion string
	DeepgramAPIKey    string
	OpenAIAPIKey      string
	RelayToken        string
	OpenRouterAPIKey  string
	AnthropicAPIKey   string
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Hotkey: HotkeyConfig{
			Ctrl: true,
			Alt:  true,
			Key:  "D",
		},
		CaptureMode:    "microphone",
		AudioDeviceID:  "",
		Language:       "en-GB",
		UILanguage:     "en",
		PasteSplitSize: 500,
		Notifications:  true,
		Port:           18765,
		LogLevel:       "info",
		Recording: RecordingConfig{
			ChunkSeconds:   1,
			WarnBytes:      2_600_000,
			HardLimitBytes: 3_300_000,
			CeilingBytes:   4_500_000,
		},
		Transcription: TranscriptionConfig{
			Provider:      "azure",
			AzureRegion:   "uksouth",
			DeepgramModel: "nova-2-medical",
			WhisperModel:  "whisper-1",
		},
		Generation: GenerationConfig{
			Provider: "openrouter",
		},
		History: HistoryConfig{
			Enabled:       true,
			RetentionDays: 30,
			Path:          "~/Library/Application Support/EchoDoc/history.sqlite",
		},
	}
}

// EnvPrefix prefixes environment overrides, e.g. ECHODOC_TRANSCRIPTION_PROVIDER
const EnvPrefix = "ECHODOC"

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("hotkey.ctrl", d.Hotkey.Ctrl)
	v.SetDefault("hotkey.shift", d.Hotkey.Shift)
	v.SetDefault("hotkey.alt", d.Hotkey.Alt)
	v.SetDefault("hotkey.cmd", d.Hotkey.Cmd)
	v.SetDefault("hotkey.key", d.Hotkey.Key)
	v.SetDefault("capture_mode", d.CaptureMode)
	v.SetDefault("audio_device_id", d.AudioDeviceID)
	v.SetDefault("language", d.Language)
	v.SetDefault("ui_language", d.UILanguage)
	v.SetDefault("paste_split_size", d.PasteSplitSize)
	v.SetDefault("auto_paste", d.AutoPaste)
	v.SetDefault("redact_by_default", d.RedactByDefault)
	v.SetDefault("notifications", d.Notifications)
	v.SetDefault("port", d.Port)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("recording.chunk_seconds", d.Recording.ChunkSeconds)
	v.SetDefault("recording.warn_bytes", d.Recording.WarnBytes)
	v.SetDefault("recording.hard_limit_bytes", d.Recording.HardLimitBytes)
	v.SetDefault("recording.ceiling_bytes", d.Recording.CeilingBytes)
	v.SetDefault("transcription.provider", d.Transcription.Provider)
	v.SetDefault("transcription.azure_region", d.Transcription.AzureRegion)
	v.SetDefault("transcription.azure_endpoint", d.Transcription.AzureEndpoint)
	v.SetDefault("transcription.deepgram_model", d.Transcription.DeepgramModel)
	v.SetDefault("transcription.whisper_model", d.Transcription.WhisperModel)
	v.SetDefault("transcription.whisper_base_url", d.Transcription.WhisperBaseURL)
	v.SetDefault("transcription.relay_url", d.Transcription.RelayURL)
	v.SetDefault("generation.provider", d.Generation.Provider)
	v.SetDefault("generation.model", d.Generation.Model)
	v.SetDefault("generation.base_url", d.Generation.BaseURL)
	v.SetDefault("history.enabled", d.History.Enabled)
	v.SetDefault("history.retention_days", d.History.RetentionDays)
	v.SetDefault("history.path", d.History.Path)
}

// Load loads configuration from the specified path.
// Missing files yield the defaults. ECHODOC_* environment variables override
// file values, and credentials are read from the environment after loading
// an optional .env file next to the config file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if config.Hotkey.Key == "" {
		config.Hotkey.Key = DefaultConfig().Hotkey.Key
	}

	creds, err := LoadCredentials(filepath.Join(filepath.Dir(path), ".env"))
	if err != nil {
		return nil, err
	}
	config.Credentials = creds

	return &config, nil
}

// LoadCredentials reads API keys from the environment. Variables in envFile
// are loaded first without overriding ones already set.
func LoadCredentials(envFile string) (Credentials, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return Credentials{}, fmt.Errorf("failed to load %s: %w", envFile, err)
			}
		}
	}

	return Credentials{
		AzureSpeechKey:    os.Getenv("AZURE_SPEECH_KEY"),
		AzureSpeechRegion: os.Getenv("AZURE_SPEECH_REGION"),
		DeepgramAPIKey:    os.Getenv("DEEPGRAM_API_KEY"),
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		RelayToken:        os.Getenv("ECHODOC_RELAY_TOKEN"),
		OpenRouterAPIKey:  os.Getenv("OPENROUTER_API_KEY"),
		AnthropicAPIKey:   os.Getenv("ANTHROPIC_API_KEY"),
	}, nil
}

// Save saves configuration to the specified path
func (c *Config) Save(path string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, "Library", "Application Support", "EchoDoc", "config.json")
}

// Update updates configuration fields from a decoded JSON object.
// Nothing is changed when the result would be invalid.
func (c *Config) Update(updates map[string]interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.cloneLocked()
	for key, value := range updates {
		switch key {
		case "capture_mode":
			if v, ok := value.(string); ok {
				if v != "microphone" && v != "telephone" {
					return fmt.Errorf("invalid capture_mode: %s", v)
				}
				next.CaptureMode = v
			}
		case "audio_device_id":
			if v, ok := value.(string); ok {
				next.AudioDeviceID = v
			}
		case "language":
			if v, ok := value.(string); ok {
				if v == "" {
					return fmt.Errorf("language cannot be empty")
				}
				next.Language = v
			}
		case "ui_language":
			if v, ok := value.(string); ok {
				if v != "ja" && v != "en" {
					return fmt.Errorf("invalid ui_language: %s", v)
				}
				next.UILanguage = v
			}
		case "paste_split_size":
			if v, ok := value.(float64); ok {
				next.PasteSplitSize = int(v)
			}
		case "auto_paste":
			if v, ok := value.(bool); ok {
				next.AutoPaste = v
			}
		case "redact_by_default":
			if v, ok := value.(bool); ok {
				next.RedactByDefault = v
			}
		case "notifications":
			if v, ok := value.(bool); ok {
				next.Notifications = v
			}
		case "log_level":
			if v, ok := value.(string); ok {
				next.LogLevel = strings.ToLower(v)
			}
		case "hotkey":
			if v, ok := value.(map[string]interface{}); ok {
				if ctrl, ok := v["ctrl"].(bool); ok {
					next.Hotkey.Ctrl = ctrl
				}
				if shift, ok := v["shift"].(bool); ok {
					next.Hotkey.Shift = shift
				}
				if alt, ok := v["alt"].(bool); ok {
					next.Hotkey.Alt = alt
				}
				if cmd, ok := v["cmd"].(bool); ok {
					next.Hotkey.Cmd = cmd
				}
				if key, ok := v["key"].(string); ok {
					next.Hotkey.Key = key
				}
			}
		case "transcription":
			if v, ok := value.(map[string]interface{}); ok {
				if p, ok := v["provider"].(string); ok {
					next.Transcription.Provider = p
				}
				if r, ok := v["azure_region"].(string); ok {
					next.Transcription.AzureRegion = r
				}
				if u, ok := v["relay_url"].(string); ok {
					next.Transcription.RelayURL = u
				}
			}
		case "generation":
			if v, ok := value.(map[string]interface{}); ok {
				if p, ok := v["provider"].(string); ok {
					next.Generation.Provider = p
				}
				if m, ok := v["model"].(string); ok {
					next.Generation.Model = m
				}
			}
		case "history":
			if v, ok := value.(map[string]interface{}); ok {
				if e, ok := v["enabled"].(bool); ok {
					next.History.Enabled = e
				}
				if d, ok := v["retention_days"].(float64); ok {
					next.History.RetentionDays = int(d)
				}
			}
		}
	}

	if err := next.validateLocked(); err != nil {
		return err
	}
	c.assignLocked(next)
	return nil
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.cloneLocked()
}

func (c *Config) cloneLocked() *Config {
	return &Config{
		Hotkey:          c.Hotkey,
		CaptureMode:     c.CaptureMode,
		AudioDeviceID:   c.AudioDeviceID,
		Language:        c.Language,
		UILanguage:      c.UILanguage,
		PasteSplitSize:  c.PasteSplitSize,
		AutoPaste:       c.AutoPaste,
		RedactByDefault: c.RedactByDefault,
		Notifications:   c.Notifications,
		Port:            c.Port,
		LogLevel:        c.LogLevel,
		Recording:       c.Recording,
		Transcription:   c.Transcription,
		Generation:      c.Generation,
		History:         c.History,
		Credentials:     c.Credentials,
	}
}

func (c *Config) assignLocked(next *Config) {
	c.Hotkey = next.Hotkey
	c.CaptureMode = next.CaptureMode
	c.AudioDeviceID = next.AudioDeviceID
	c.Language = next.Language
	c.UILanguage = next.UILanguage
	c.PasteSplitSize = next.PasteSplitSize
	c.AutoPaste = next.AutoPaste
	c.RedactByDefault = next.RedactByDefault
	c.Notifications = next.Notifications
	c.Port = next.Port
	c.LogLevel = next.LogLevel
	c.Recording = next.Recording
	c.Transcription = next.Transcription
	c.Generation = next.Generation
	c.History = next.History
}

// ExpandPath expands ~ to home directory in file paths
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(homeDir, path[2:]), nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	return absPath, nil
}

// GetHistoryPath returns the expanded history database path
func (c *Config) GetHistoryPath() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return ExpandPath(c.History.Path)
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Report fields by their json names
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// Validate validates all configuration fields
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.validateLocked()
}

func (c *Config) validateLocked() error {
	if err := getValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		msgs := make([]string, 0, len(verrs))
		for _, e := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s", strings.TrimPrefix(e.Namespace(), "Config."), describeTag(e)))
		}
		return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
	}

	if c.Transcription.Provider == "relay" && c.Transcription.RelayURL == "" {
		return fmt.Errorf("invalid configuration: transcription.relay_url is required for the relay provider")
	}

	if need := c.Recording.uploadBytes(); need > c.Recording.CeilingBytes {
		return fmt.Errorf("invalid configuration: recording.ceiling_bytes must be at least %d, the base64 size of hard_limit_bytes plus one chunk", need)
	}

	return nil
}

// maxChunkByteRate is the byte rate of 16 kHz 16-bit PCM, the largest encoding
const maxChunkByteRate = 32000

// uploadBytes is the base64 size of a recording stopped at the hard limit.
// The stop lands on a chunk boundary, so one chunk may overshoot the limit.
func (r RecordingConfig) uploadBytes() int64 {
	raw := r.HardLimitBytes + int64(r.ChunkSeconds)*maxChunkByteRate
	return int64(base64.StdEncoding.EncodedLen(int(raw)))
}

func describeTag(e validator.FieldError) string {
	if e.Param() == "" {
		return e.Tag()
	}
	return e.Tag() + "=" + e.Param()
}
