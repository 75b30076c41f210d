package i18n

import (
	"sync"
	"testing"
)

func TestTranslateFallback(t *testing.T) {
	translator := NewTranslator(LanguageJapanese)
	translator.LoadMap(LanguageEnglish, map[string]string{
		"menu.stop": "Stop",
		"menu.open": "Open EchoDoc",
	})
	translator.LoadMap(LanguageJapanese, map[string]string{
		"menu.stop": "停止",
	})

	tests := []struct {
		key      string
		expected string
	}{
		{"menu.stop", "停止"},
		{"menu.open", "Open EchoDoc"},
		{"menu.unknown", "menu.unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := translator.Translate(tt.key); got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestSetLanguage(t *testing.T) {
	translator := NewDefaultTranslator(LanguageJapanese)
	if got := translator.Translate("menu.stop"); got != "停止" {
		t.Errorf("Expected '停止', got %q", got)
	}

	translator.SetLanguage(LanguageEnglish)
	if got := translator.Translate("menu.start_telephone"); got != "Start Telephone Call" {
		t.Errorf("Expected 'Start Telephone Call', got %q", got)
	}
}

func TestTranslateWithFormat(t *testing.T) {
	translator := NewTranslator(LanguageEnglish)
	translator.LoadMap(LanguageEnglish, map[string]string{
		"status.elapsed": "{state} {elapsed}",
		"greeting":       "Hello {name}, {name}",
	})

	tests := []struct {
		name     string
		key      string
		params   map[string]string
		expected string
	}{
		{"elapsed", "status.elapsed", map[string]string{"state": "Recording", "elapsed": "01:05"}, "Recording 01:05"},
		{"repeated placeholder", "greeting", map[string]string{"name": "Dr Smith"}, "Hello Dr Smith, Dr Smith"},
		{"missing param", "greeting", nil, "Hello {name}, {name}"},
		{"unknown key", "nope", map[string]string{"x": "y"}, "nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := translator.TranslateWithFormat(tt.key, tt.params); got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestValidateLanguage(t *testing.T) {
	tests := map[string]bool{
		"ja": true,
		"en": true,
		"fr": false,
		"":   false,
		"EN": false,
	}
	for language, expected := range tests {
		if got := ValidateLanguage(language); got != expected {
			t.Errorf("ValidateLanguage(%q): expected %v, got %v", language, expected, got)
		}
	}
}

func TestDetectSystemLanguageFromLocale(t *testing.T) {
	t.Setenv("LC_ALL", "")
	t.Setenv("LC_MESSAGES", "")
	t.Setenv("LANG", "ja_JP.UTF-8")
	if got := DetectSystemLanguage(); got != LanguageJapanese {
		t.Errorf("Expected ja, got %s", got)
	}

	t.Setenv("LANG", "en_GB.UTF-8")
	if got := DetectSystemLanguage(); got != LanguageEnglish {
		t.Errorf("Expected en, got %s", got)
	}

	t.Setenv("LANG", "")
	if got := DetectSystemLanguage(); got != LanguageEnglish {
		t.Errorf("Expected en without a locale, got %s", got)
	}
}

func TestParseLanguage(t *testing.T) {
	if got := ParseLanguage("ja"); got != LanguageJapanese {
		t.Errorf("Expected ja, got %s", got)
	}
	t.Setenv("LC_ALL", "en_GB.UTF-8")
	if got := ParseLanguage("fr"); got != LanguageEnglish {
		t.Errorf("Expected fallback to en, got %s", got)
	}
}

func TestDefaultTranslationsMatch(t *testing.T) {
	en := DefaultEnglishTranslations()
	ja := DefaultJapaneseTranslations()

	for key := range en {
		if _, ok := ja[key]; !ok {
			t.Errorf("Missing Japanese translation for %s", key)
		}
	}
	for key := range ja {
		if _, ok := en[key]; !ok {
			t.Errorf("Missing English translation for %s", key)
		}
	}
}

func TestLoadMapCopies(t *testing.T) {
	translator := NewTranslator(LanguageEnglish)
	m := map[string]string{"k": "v"}
	translator.LoadMap(LanguageEnglish, m)
	m["k"] = "changed"

	if got := translator.Translate("k"); got != "v" {
		t.Errorf("Expected 'v', got %q", got)
	}
}

func TestConcurrentLanguageSwitch(t *testing.T) {
	translator := NewDefaultTranslator(LanguageEnglish)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if got := translator.Translate("menu.quit"); got != "Quit" && got != "終了" {
				t.Errorf("Unexpected translation %q", got)
			}
		}()
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				translator.SetLanguage(LanguageJapanese)
			} else {
				translator.SetLanguage(LanguageEnglish)
			}
		}(i)
	}
	wg.Wait()
}
