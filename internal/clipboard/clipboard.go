// Package clipboard copies document text and pastes it into the focused
// application (EMIS, SystmOne) without losing what the user had copied.
package clipboard

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	atotto "github.com/atotto/clipboard"
	"github.com/go-vgo/robotgo"
)

// Board is the system clipboard
type Board interface {
	ReadAll() (string, error)
	WriteAll(text string) error
	// ChangeCount increases on every write; negative means unknown
	ChangeCount() int
}

// Keyboard sends the paste shortcut to the focused application
type Keyboard interface {
	Paste() error
}

type systemBoard struct{}

func (systemBoard) ReadAll() (string, error)   { return atotto.ReadAll() }
func (systemBoard) WriteAll(text string) error { return atotto.WriteAll(text) }
func (systemBoard) ChangeCount() int           { return changeCount() }

type systemKeyboard struct{}

func (systemKeyboard) Paste() error {
	return robotgo.KeyTap("v", "cmd")
}

// Manager manages clipboard operations with safe restoration
type Manager struct {
	board          Board
	keyboard       Keyboard
	restoreTimeout time.Duration
	splitSize      int
	splitInterval  time.Duration
	settle         time.Duration
}

// Config holds clipboard manager configuration
type Config struct {
	RestoreTimeout time.Duration // Wait before restoring the clipboard (default: 500ms)
	SplitSize      int           // Maximum characters per paste operation (default: 500)
	SplitInterval  time.Duration // Interval between split pastes (default: 50ms)
}

// DefaultConfig returns the default clipboard configuration
func DefaultConfig() Config {
	return Config{
		RestoreTimeout: 500 * time.Millisecond,
		SplitSize:      500,
		SplitInterval:  50 * time.Millisecond,
	}
}

// NewManager creates a clipboard manager over the system clipboard
func NewManager(config Config) *Manager {
	return NewWithBoard(config, systemBoard{}, systemKeyboard{})
}

// NewWithBoard creates a clipboard manager over the given clipboard and keyboard
func NewWithBoard(config Config, board Board, keyboard Keyboard) *Manager {
	if config.SplitSize <= 0 {
		config.SplitSize = DefaultConfig().SplitSize
	}
	return &Manager{
		board:          board,
		keyboard:       keyboard,
		restoreTimeout: config.RestoreTimeout,
		splitSize:      config.SplitSize,
		splitInterval:  config.SplitInterval,
		settle:         10 * time.Millisecond,
	}
}

// SetSplitSize changes the paste chunk size
func (m *Manager) SetSplitSize(n int) {
	if n > 0 {
		m.splitSize = n
	}
}

// Copy puts text on the clipboard
func (m *Manager) Copy(text string) error {
	if err := m.board.WriteAll(text); err != nil {
		return fmt.Errorf("failed to write clipboard: %w", err)
	}
	return nil
}

// Paste pastes text into the focused application, in chunks when it is
// longer than the split size, then restores the previous clipboard content
// unless something else changed the clipboard meanwhile.
func (m *Manager) Paste(ctx context.Context, text string) error {
	saved, err := m.board.ReadAll()
	if err != nil {
		return fmt.Errorf("failed to read clipboard: %w", err)
	}
	savedCount := m.board.ChangeCount()

	chunks := m.splitText(text)
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.board.WriteAll(chunk); err != nil {
			return fmt.Errorf("failed to write chunk %d: %w", i, err)
		}
		sleep(ctx, m.settle)
		if err := m.keyboard.Paste(); err != nil {
			return fmt.Errorf("failed to paste chunk %d: %w", i, err)
		}
		if i < len(chunks)-1 {
			sleep(ctx, m.splitInterval)
		}
	}

	sleep(ctx, m.restoreTimeout)
	return m.restore(saved, savedCount, len(chunks))
}

// restore puts the saved content back when our writes are the only changes
func (m *Manager) restore(saved string, savedCount, writes int) error {
	current := m.board.ChangeCount()
	if savedCount >= 0 && current >= 0 && current != savedCount+writes {
		return nil
	}
	if err := m.board.WriteAll(saved); err != nil {
		return fmt.Errorf("failed to restore clipboard: %w", err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// splitText splits text into chunks of at most splitSize characters,
// preferring a sentence or line boundary in the last 50 characters
func (m *Manager) splitText(text string) []string {
	if utf8.RuneCountInString(text) <= m.splitSize {
		return []string{text}
	}

	var chunks []string
	runes := []rune(text)
	start := 0

	for start < len(runes) {
		end := start + m.splitSize
		if end > len(runes) {
			end = len(runes)
		}

		if end < len(runes) {
			searchStart := end - 50
			if searchStart < start {
				searchStart = start
			}

			for i := end - 1; i >= searchStart; i-- {
				if isBoundary(runes[i]) {
					end = i + 1
					break
				}
			}
		}

		chunks = append(chunks, string(runes[start:end]))
		start = end
	}

	return chunks
}

func isBoundary(r rune) bool {
	switch r {
	case '.', ',', ';', '!', '?', '\n', '。', '、':
		return true
	}
	return false
}
