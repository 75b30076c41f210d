package clipboard

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeBoard struct {
	mu      sync.Mutex
	content string
	count   int
	writes  []string
	// onPaste simulates the user copying something mid-paste
	external string
}

func (b *fakeBoard) ReadAll() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.content, nil
}

func (b *fakeBoard) WriteAll(text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.content = text
	b.count++
	b.writes = append(b.writes, text)
	return nil
}

func (b *fakeBoard) ChangeCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

type fakeKeyboard struct {
	board  *fakeBoard
	pasted []string
	err    error
}

func (k *fakeKeyboard) Paste() error {
	if k.err != nil {
		return k.err
	}
	content, _ := k.board.ReadAll()
	k.pasted = append(k.pasted, content)
	if k.board.external != "" {
		k.board.WriteAll(k.board.external)
		k.board.external = ""
	}
	return nil
}

func fastConfig(split int) Config {
	return Config{SplitSize: split}
}

func newFake(split int) (*Manager, *fakeBoard, *fakeKeyboard) {
	board := &fakeBoard{content: "previous"}
	kb := &fakeKeyboard{board: board}
	m := NewWithBoard(fastConfig(split), board, kb)
	m.settle = 0
	return m, board, kb
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.RestoreTimeout != 500*time.Millisecond {
		t.Errorf("Expected RestoreTimeout 500ms, got %v", config.RestoreTimeout)
	}

	if config.SplitSize != 500 {
		t.Errorf("Expected SplitSize 500, got %d", config.SplitSize)
	}

	if config.SplitInterval != 50*time.Millisecond {
		t.Errorf("Expected SplitInterval 50ms, got %v", config.SplitInterval)
	}
}

func TestNewWithBoardDefaultsSplit(t *testing.T) {
	m := NewWithBoard(Config{}, &fakeBoard{}, &fakeKeyboard{})
	if m.splitSize != 500 {
		t.Errorf("Expected splitSize 500, got %d", m.splitSize)
	}

	m.SetSplitSize(0)
	if m.splitSize != 500 {
		t.Errorf("Expected invalid size to be ignored, got %d", m.splitSize)
	}
	m.SetSplitSize(80)
	if m.splitSize != 80 {
		t.Errorf("Expected splitSize 80, got %d", m.splitSize)
	}
}

func TestCopy(t *testing.T) {
	m, board, kb := newFake(500)

	if err := m.Copy("Referral letter"); err != nil {
		t.Fatalf("Copy failed: %v", err)
	}
	if board.content != "Referral letter" {
		t.Errorf("Expected clipboard to hold the text, got %q", board.content)
	}
	if len(kb.pasted) != 0 {
		t.Error("Copy must not paste")
	}
}

func TestPasteRestoresClipboard(t *testing.T) {
	m, board, kb := newFake(500)

	if err := m.Paste(context.Background(), "Clinical summary"); err != nil {
		t.Fatalf("Paste failed: %v", err)
	}
	if len(kb.pasted) != 1 || kb.pasted[0] != "Clinical summary" {
		t.Errorf("Unexpected pastes %v", kb.pasted)
	}
	if board.content != "previous" {
		t.Errorf("Expected clipboard to be restored, got %q", board.content)
	}
}

func TestPasteSplitsLongText(t *testing.T) {
	m, board, kb := newFake(20)

	text := "First sentence here. Second sentence here. Third one."
	if err := m.Paste(context.Background(), text); err != nil {
		t.Fatalf("Paste failed: %v", err)
	}
	if len(kb.pasted) < 2 {
		t.Fatalf("Expected split paste, got %v", kb.pasted)
	}
	if strings.Join(kb.pasted, "") != text {
		t.Errorf("Pasted chunks don't match original text: %v", kb.pasted)
	}
	if board.content != "previous" {
		t.Errorf("Expected clipboard to be restored, got %q", board.content)
	}
}

func TestPasteKeepsExternalChange(t *testing.T) {
	m, board, _ := newFake(500)
	board.external = "user copied this"

	if err := m.Paste(context.Background(), "Sick note"); err != nil {
		t.Fatalf("Paste failed: %v", err)
	}
	if board.content != "user copied this" {
		t.Errorf("Expected external clipboard change to be kept, got %q", board.content)
	}
}

func TestPasteKeyboardFailure(t *testing.T) {
	m, _, kb := newFake(500)
	kb.err = errors.New("accessibility denied")

	if err := m.Paste(context.Background(), "text"); err == nil {
		t.Error("Expected error when the paste shortcut fails")
	}
}

func TestPasteCancelled(t *testing.T) {
	m, _, kb := newFake(5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := m.Paste(ctx, "some longer text"); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if len(kb.pasted) != 0 {
		t.Errorf("Expected nothing pasted, got %v", kb.pasted)
	}
}

func TestSplitText_ShortText(t *testing.T) {
	manager := NewWithBoard(DefaultConfig(), &fakeBoard{}, &fakeKeyboard{})

	text := "Short text"
	chunks := manager.splitText(text)

	if len(chunks) != 1 {
		t.Errorf("Expected 1 chunk for short text, got %d", len(chunks))
	}

	if chunks[0] != text {
		t.Errorf("Expected chunk to be '%s', got '%s'", text, chunks[0])
	}
}

func TestSplitText_LongText(t *testing.T) {
	manager := NewWithBoard(fastConfig(10), &fakeBoard{}, &fakeKeyboard{})

	text := "This is a long text that should be split into multiple chunks."
	chunks := manager.splitText(text)

	if len(chunks) <= 1 {
		t.Errorf("Expected multiple chunks for long text, got %d", len(chunks))
	}

	for _, c := range chunks {
		if len([]rune(c)) > 10 {
			t.Errorf("Chunk %q exceeds split size", c)
		}
	}

	if strings.Join(chunks, "") != text {
		t.Errorf("Concatenated chunks don't match original text")
	}
}

func TestSplitText_PrefersBoundaries(t *testing.T) {
	manager := NewWithBoard(fastConfig(30), &fakeBoard{}, &fakeKeyboard{})

	text := "Plan: review in two weeks. Safety net advice given today."
	chunks := manager.splitText(text)

	if !strings.HasSuffix(chunks[0], ".") {
		t.Errorf("Expected first chunk to end at a sentence boundary, got %q", chunks[0])
	}
	if strings.Join(chunks, "") != text {
		t.Errorf("Concatenated chunks don't match original text")
	}
}

func TestSplitText_MultiByte(t *testing.T) {
	manager := NewWithBoard(fastConfig(20), &fakeBoard{}, &fakeKeyboard{})

	text := "これは文です。これも文です。これも文です。"
	chunks := manager.splitText(text)

	if len(chunks) <= 1 {
		t.Errorf("Expected multiple chunks, got %d", len(chunks))
	}

	if concatenated := strings.Join(chunks, ""); concatenated != text {
		t.Errorf("Concatenated chunks don't match original text:\nExpected: %s\nGot: %s", text, concatenated)
	}
}
