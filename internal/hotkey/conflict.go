package hotkey

import (
	"strings"

	"golang.design/x/hotkey"
)

// ConflictInfo describes a shortcut that another app or the system already owns
type ConflictInfo struct {
	Name        string
	Description string
	Modifiers   []hotkey.Modifier
	Key         hotkey.Key
}

func shortcut(name, description string, key hotkey.Key, mods ...hotkey.Modifier) ConflictInfo {
	return ConflictInfo{Name: name, Description: description, Modifiers: mods, Key: key}
}

// knownConflicts are shortcuts a clinician's Mac is likely to have bound.
// Paste and copy are listed because EchoDoc itself sends them when pasting
// a document into the clinical system.
var knownConflicts = []ConflictInfo{
	shortcut("Spotlight", "macOS Spotlight search", hotkey.KeySpace, hotkey.ModCmd),
	shortcut("Alfred", "Alfred launcher (common default)", hotkey.KeySpace, hotkey.ModCmd),
	shortcut("Raycast", "Raycast launcher (common default)", hotkey.KeySpace, hotkey.ModCmd),
	shortcut("IME Switch", "Input method editor switch", hotkey.KeySpace, hotkey.ModCmd),
	shortcut("Screenshot", "macOS screenshot of the whole screen", hotkey.Key3, hotkey.ModCmd, hotkey.ModShift),
	shortcut("Screenshot Selection", "macOS screenshot of a selection", hotkey.Key4, hotkey.ModCmd, hotkey.ModShift),
	shortcut("Lock Screen", "macOS lock screen", hotkey.KeyQ, hotkey.ModCtrl, hotkey.ModCmd),
	shortcut("Force Quit", "macOS Force Quit", hotkey.KeyEscape, hotkey.ModCmd, hotkey.ModOption),
	shortcut("App Switcher", "macOS application switcher", hotkey.KeyTab, hotkey.ModCmd),
	shortcut("Paste", "Paste, sent by EchoDoc when inserting a document", hotkey.KeyV, hotkey.ModCmd),
	shortcut("Copy", "Copy in the clinical system", hotkey.KeyC, hotkey.ModCmd),
}

// Names returns the conflict names
func Names(conflicts []ConflictInfo) []string {
	names := make([]string, 0, len(conflicts))
	for _, c := range conflicts {
		names = append(names, c.Name)
	}
	return names
}

// CheckConflicts returns the known shortcuts bound to the same combination
func CheckConflicts(modifiers []hotkey.Modifier, key hotkey.Key) []ConflictInfo {
	var conflicts []ConflictInfo
	for _, known := range knownConflicts {
		if hotkeyMatches(modifiers, key, known.Modifiers, known.Key) {
			conflicts = append(conflicts, known)
		}
	}
	return conflicts
}

// modifierSet folds modifiers into one value so order and duplicates do not matter
func modifierSet(mods []hotkey.Modifier) hotkey.Modifier {
	var set hotkey.Modifier
	for _, m := range mods {
		set |= m
	}
	return set
}

// hotkeyMatches reports whether two combinations are the same
func hotkeyMatches(mods1 []hotkey.Modifier, key1 hotkey.Key, mods2 []hotkey.Modifier, key2 hotkey.Key) bool {
	return key1 == key2 && modifierSet(mods1) == modifierSet(mods2)
}

var modifierSymbols = []struct {
	mod    hotkey.Modifier
	symbol string
}{
	{hotkey.ModCtrl, "⌃"},
	{hotkey.ModOption, "⌥"},
	{hotkey.ModShift, "⇧"},
	{hotkey.ModCmd, "⌘"},
}

// FormatHotkey returns the display form of a combination, with modifiers in
// the order they were given
func FormatHotkey(modifiers []hotkey.Modifier, key hotkey.Key) string {
	var b strings.Builder
	for _, mod := range modifiers {
		for _, s := range modifierSymbols {
			if mod == s.mod {
				b.WriteString(s.symbol)
			}
		}
	}
	b.WriteString(keyToString(key))
	return b.String()
}

var keyNames = map[hotkey.Key]string{
	hotkey.KeySpace:  "Space",
	hotkey.KeyEscape: "Esc",
	hotkey.KeyReturn: "Return",
	hotkey.KeyTab:    "Tab",
	hotkey.KeyDelete: "Delete",
}

// keyToString converts a key code to its display name. Key codes are not
// contiguous on macOS, so letters and digits are looked up by position.
func keyToString(key hotkey.Key) string {
	if name, ok := keyNames[key]; ok {
		return name
	}
	for i, k := range letterKeys {
		if k == key {
			return string(rune('A' + i))
		}
	}
	for i, k := range digitKeys {
		if k == key {
			return string(rune('0' + i))
		}
	}
	for name, k := range namedKeys {
		if k == key && strings.HasPrefix(name, "F") {
			return name
		}
	}
	return "Unknown"
}
