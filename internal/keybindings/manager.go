// ABOUTME: Picker keybindings with O(1) key-to-action lookup
// ABOUTME: Defaults merged with the keybindings settings section; conflicts and unknown actions are reported

package keybindings

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// Action is something the picker can do in response to a key.
type Action string

const (
	ActionUp            Action = "up"
	ActionDown          Action = "down"
	ActionChoose        Action = "choose"
	ActionCancel        Action = "cancel"
	ActionTogglePreview Action = "toggle_preview"
	ActionClearFilter   Action = "clear_filter"
)

// Actions lists every bindable action in display order.
func Actions() []Action {
	return []Action{ActionUp, ActionDown, ActionChoose, ActionCancel, ActionTogglePreview, ActionClearFilter}
}

// Defaults returns the built-in bindings. Keys use bubbletea's key names.
func Defaults() map[Action][]string {
	return map[Action][]string{
		ActionUp:            {"up", "ctrl+p"},
		ActionDown:          {"down", "ctrl+n"},
		ActionChoose:        {"enter"},
		ActionCancel:        {"esc", "ctrl+c"},
		ActionTogglePreview: {"tab"},
		ActionClearFilter:   {"ctrl+u"},
	}
}

// ConflictInfo describes a key bound to more than one action.
type ConflictInfo struct {
	Key     string
	Actions []Action
}

// Manager provides O(1) key-to-action lookup from merged keybindings.
type Manager struct {
	bindings map[Action][]string
	lookup   map[string]Action
}

// New merges overrides (action name to keys) onto the defaults. An action
// given an empty list is unbound. Unknown action names are returned as an
// error alongside a usable Manager that ignores them.
func New(overrides map[string][]string) (*Manager, error) {
	bindings := Defaults()
	var unknown []string
	for name, keys := range overrides {
		action := Action(name)
		if !slices.Contains(Actions(), action) {
			unknown = append(unknown, name)
			continue
		}
		bindings[action] = normalize(keys)
	}

	m := &Manager{bindings: bindings}
	m.buildLookup()
	if len(unknown) > 0 {
		slices.Sort(unknown)
		return m, fmt.Errorf("keybindings: unknown action(s) %s", strings.Join(unknown, ", "))
	}
	return m, nil
}

// Default returns a Manager with only the built-in bindings.
func Default() *Manager {
	m := &Manager{bindings: Defaults()}
	m.buildLookup()
	return m
}

// ActionFor returns the action bound to msg, or "" if unbound.
func (m *Manager) ActionFor(msg tea.KeyMsg) Action {
	return m.lookup[msg.String()]
}

// Keys returns the keys bound to action.
func (m *Manager) Keys(action Action) []string {
	return slices.Clone(m.bindings[action])
}

// Conflicts detects keys bound to multiple actions, sorted by key.
func (m *Manager) Conflicts() []ConflictInfo {
	keyActions := make(map[string][]Action)
	for _, action := range Actions() {
		for _, k := range m.bindings[action] {
			keyActions[k] = append(keyActions[k], action)
		}
	}

	var conflicts []ConflictInfo
	for _, k := range slices.Sorted(maps.Keys(keyActions)) {
		if actions := keyActions[k]; len(actions) > 1 {
			conflicts = append(conflicts, ConflictInfo{Key: k, Actions: actions})
		}
	}
	return conflicts
}

// Help returns the one-line key summary shown under the picker.
func (m *Manager) Help() string {
	parts := []struct {
		keys  string
		label string
	}{
		{m.first(ActionUp) + "/" + m.first(ActionDown), "move"},
		{m.first(ActionChoose), "apply"},
		{m.first(ActionTogglePreview), "preview"},
		{m.first(ActionCancel), "cancel"},
	}

	var out []string
	for _, p := range parts {
		if p.keys == "" || p.keys == "/" {
			continue
		}
		out = append(out, p.keys+" "+p.label)
	}
	return strings.Join(out, " • ")
}

func (m *Manager) first(action Action) string {
	keys := m.bindings[action]
	if len(keys) == 0 {
		return ""
	}
	switch keys[0] {
	case "up":
		return "↑"
	case "down":
		return "↓"
	}
	return keys[0]
}

func (m *Manager) buildLookup() {
	m.lookup = make(map[string]Action, len(m.bindings)*2)
	// Earlier actions win a conflicting key.
	for _, action := range slices.Backward(Actions()) {
		for _, k := range m.bindings[action] {
			m.lookup[k] = action
		}
	}
}

// normalize lowercases modifiers and maps common aliases to bubbletea's names.
func normalize(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if len(k) > 1 {
			k = strings.ToLower(k)
		}
		switch k {
		case "escape":
			k = "esc"
		case "return":
			k = "enter"
		case "pageup":
			k = "pgup"
		case "pagedown", "pgdn":
			k = "pgdown"
		}
		out = append(out, k)
	}
	return out
}
