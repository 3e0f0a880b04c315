package tui

import "github.com/atotto/clipboard"

// Option configures a Model.
type Option func(*Model)

// WithProjectName sets the header label shown above the board.
func WithProjectName(name string) Option {
	return func(m *Model) {
		m.projectName = name
	}
}

// WithKeyConfig applies key overrides.
func WithKeyConfig(cfg KeyConfig) Option {
	return func(m *Model) {
		m.keys.applyConfig(cfg)
	}
}

// WithClipboard replaces the clipboard writer used for copying task ids.
func WithClipboard(write func(string) error) Option {
	return func(m *Model) {
		if write != nil {
			m.copyText = write
		}
	}
}

// systemClipboard writes through the OS clipboard.
func systemClipboard(text string) error {
	return clipboard.WriteAll(text)
}
