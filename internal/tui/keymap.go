package tui

import (
	"strings"
	"unicode"

	"charm.land/bubbles/v2/key"
)

// keyMap represents key map data used by this package.
type keyMap struct {
	quit          key.Binding
	reload        key.Binding
	toggleHelp    key.Binding
	moveLeft      key.Binding
	moveRight     key.Binding
	moveUp        key.Binding
	moveDown      key.Binding
	moveTaskLeft  key.Binding
	moveTaskRight key.Binding
	reorderUp     key.Binding
	reorderDown   key.Binding
	blockTask     key.Binding
	editReason    key.Binding
	taskInfo      key.Binding
	copyID        key.Binding
}

// newKeyMap constructs key map.
func newKeyMap() keyMap {
	return keyMap{
		quit:          key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		reload:        key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
		toggleHelp:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "toggle help")),
		moveLeft:      key.NewBinding(key.WithKeys("h", "left"), key.WithHelp("h/←", "column left")),
		moveRight:     key.NewBinding(key.WithKeys("l", "right"), key.WithHelp("l/→", "column right")),
		moveUp:        key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/↑", "task up")),
		moveDown:      key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/↓", "task down")),
		moveTaskLeft:  key.NewBinding(key.WithKeys("["), key.WithHelp("[", "move task left")),
		moveTaskRight: key.NewBinding(key.WithKeys("]"), key.WithHelp("]", "move task right")),
		reorderUp:     key.NewBinding(key.WithKeys("K", "shift+up"), key.WithHelp("K", "reorder up")),
		reorderDown:   key.NewBinding(key.WithKeys("J", "shift+down"), key.WithHelp("J", "reorder down")),
		blockTask:     key.NewBinding(key.WithKeys("b"), key.WithHelp("b", "block task")),
		editReason:    key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "edit block reason")),
		taskInfo:      key.NewBinding(key.WithKeys("i", "enter"), key.WithHelp("i/enter", "block reasons")),
		copyID:        key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "copy task id")),
	}
}

// ShortHelp handles short help.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{
		k.moveTaskLeft, k.moveTaskRight, k.blockTask, k.taskInfo, k.toggleHelp, k.quit,
	}
}

// FullHelp handles full help.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.moveLeft, k.moveRight, k.moveUp, k.moveDown},
		{k.moveTaskLeft, k.moveTaskRight, k.reorderUp, k.reorderDown},
		{k.blockTask, k.editReason, k.taskInfo, k.copyID},
		{k.reload, k.toggleHelp, k.quit},
	}
}

// KeyConfig overrides default bindings. Blank fields keep the default key.
type KeyConfig struct {
	MoveTaskLeft  string
	MoveTaskRight string
	BlockTask     string
	EditReason    string
	CopyID        string
}

// applyConfig rebinds configurable actions.
func (k *keyMap) applyConfig(cfg KeyConfig) {
	configureBinding(&k.moveTaskLeft, cfg.MoveTaskLeft, "[", "move task left")
	configureBinding(&k.moveTaskRight, cfg.MoveTaskRight, "]", "move task right")
	configureBinding(&k.blockTask, cfg.BlockTask, "b", "block task")
	configureBinding(&k.editReason, cfg.EditReason, "e", "edit block reason")
	configureBinding(&k.copyID, cfg.CopyID, "y", "copy task id")
}

// configureBinding replaces the keys and help text of one binding.
func configureBinding(b *key.Binding, raw, fallback, desc string) {
	keys, help := parseBindingKeys(raw, fallback)
	b.SetKeys(keys...)
	b.SetHelp(help, desc)
}

// parseBindingKeys normalizes one configured key. Single upper-case runes also match their
// shift form; "space" matches the literal space key.
func parseBindingKeys(raw, fallback string) ([]string, string) {
	value := strings.TrimSpace(raw)
	if value == "" {
		value = fallback
	}
	if strings.EqualFold(value, "space") {
		return []string{" ", "space"}, "space"
	}
	runes := []rune(value)
	if len(runes) == 1 {
		r := runes[0]
		if unicode.IsUpper(r) {
			return []string{value, "shift+" + string(unicode.ToLower(r))}, value
		}
		return []string{value}, value
	}
	return []string{strings.ToLower(value)}, value
}
