package i18n

import (
	"os"
	"strings"
	"sync"
)

// Language represents a supported language
type Language string

const (
	// Japanese language
	LanguageJapanese Language = "ja"
	// English language
	LanguageEnglish Language = "en"
)

// Translator looks up UI strings in the current language, falling back to
// English and then to the key itself
type Translator struct {
	mu           sync.RWMutex
	language     Language
	translations map[Language]map[string]string
}

// NewTranslator returns an empty translator for language
func NewTranslator(language Language) *Translator {
	return &Translator{
		language:     language,
		translations: make(map[Language]map[string]string),
	}
}

// SetLanguage switches the current language
func (t *Translator) SetLanguage(language Language) {
	t.mu.Lock()
	t.language = language
	t.mu.Unlock()
}

// Translate returns the text for key
func (t *Translator) Translate(key string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, lang := range []Language{t.language, LanguageEnglish} {
		if text, ok := t.translations[lang][key]; ok {
			return text
		}
	}
	return key
}

// TranslateWithFormat translates key and fills its {name} placeholders
func (t *Translator) TranslateWithFormat(key string, params map[string]string) string {
	pairs := make([]string, 0, len(params)*2)
	for name, value := range params {
		pairs = append(pairs, "{"+name+"}", value)
	}
	return strings.NewReplacer(pairs...).Replace(t.Translate(key))
}

// ValidateLanguage validates that a language is supported
func ValidateLanguage(language string) bool {
	return language == string(LanguageJapanese) || language == string(LanguageEnglish)
}

// DetectSystemLanguage picks the UI language from the locale environment,
// defaulting to English
func DetectSystemLanguage() Language {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := os.Getenv(key); v != "" {
			if strings.HasPrefix(strings.ToLower(v), "ja") {
				return LanguageJapanese
			}
			return LanguageEnglish
		}
	}
	return LanguageEnglish
}

// ParseLanguage returns the language for a settings value, falling back to
// the system language
func ParseLanguage(s string) Language {
	if ValidateLanguage(s) {
		return Language(s)
	}
	return DetectSystemLanguage()
}

// NewDefaultTranslator returns a translator loaded with the built-in strings
func NewDefaultTranslator(language Language) *Translator {
	t := NewTranslator(language)
	t.LoadMap(LanguageEnglish, DefaultEnglishTranslations())
	t.LoadMap(LanguageJapanese, DefaultJapaneseTranslations())
	return t
}

// LoadMap sets the translations for a language
func (t *Translator) LoadMap(language Language, translations map[string]string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	copied := make(map[string]string, len(translations))
	for k, v := range translations {
		copied[k] = v
	}
	t.translations[language] = copied
}

// DefaultEnglishTranslations returns default English translations
func DefaultEnglishTranslations() map[string]string {
	return map[string]string{
		// Menu items
		"menu.start_dictation": "Start Dictation",
		"menu.start_telephone": "Start Telephone Call",
		"menu.pause":           "Pause",
		"menu.resume":          "Resume",
		"menu.stop":            "Stop",
		"menu.open":            "Open EchoDoc",
		"menu.devices":         "Input Device",
		"menu.default_device":  "System Default",
		"menu.quit":            "Quit",

		// Status
		"status.idle":         "Idle",
		"status.recording":    "Recording",
		"status.paused":       "Paused",
		"status.transcribing": "Transcribing",
		"status.error":        "Error",
		"status.elapsed":      "{state} {elapsed}",

		// Permissions
		"permission.microphone":    "Microphone",
		"permission.accessibility": "Accessibility",
		"permission.granted":       "✓ Granted",
		"permission.denied":        "✗ Denied",
		"permission.request":       "Open Settings",
		"permission.missing":       "The following permissions are required:",
	}
}

// DefaultJapaneseTranslations returns default Japanese translations
func DefaultJapaneseTranslations() map[string]string {
	return map[string]string{
		// Menu items
		"menu.start_dictation": "ディクテーション開始",
		"menu.start_telephone": "電話録音開始",
		"menu.pause":           "一時停止",
		"menu.resume":          "再開",
		"menu.stop":            "停止",
		"menu.open":            "EchoDoc を開く",
		"menu.devices":         "入力デバイス",
		"menu.default_device":  "システムデフォルト",
		"menu.quit":            "終了",

		// Status
		"status.idle":         "待機中",
		"status.recording":    "録音中",
		"status.paused":       "一時停止中",
		"status.transcribing": "文字起こし中",
		"status.error":        "エラー",
		"status.elapsed":      "{state} {elapsed}",

		// Permissions
		"permission.microphone":    "マイク",
		"permission.accessibility": "アクセシビリティ",
		"permission.granted":       "✓ 許可済み",
		"permission.denied":        "✗ 拒否",
		"permission.request":       "設定を開く",
		"permission.missing":       "以下の権限が必要です:",
	}
}
