// Package preferences persists local display settings.
package preferences

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"
)

// Theme is the light/dark display mode.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// ErrInvalidTheme is returned for a stored theme that is neither light nor dark.
var ErrInvalidTheme = errors.New("invalid theme")

// Toggle returns the other theme.
func (t Theme) Toggle() Theme {
	if t == ThemeDark {
		return ThemeLight
	}
	return ThemeDark
}

// Valid reports whether t is a known theme.
func (t Theme) Valid() bool {
	return t == ThemeLight || t == ThemeDark
}

type file struct {
	Theme Theme `yaml:"theme,omitempty"`
}

// Store reads and writes the preference file at Path.
type Store struct {
	Path string
	// Ambient reports whether the terminal background is dark. Nil uses
	// lipgloss.HasDarkBackground.
	Ambient func() bool
}

// NewStore returns a Store for path.
func NewStore(path string) *Store {
	return &Store{Path: path}
}

// Theme returns the stored theme, or the ambient preference when the file is
// missing or has no theme.
func (s *Store) Theme() (Theme, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return s.ambient(), nil
	}
	if err != nil {
		return s.ambient(), fmt.Errorf("read preferences: %w", err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return s.ambient(), fmt.Errorf("parse preferences: %w", err)
	}
	switch {
	case f.Theme == "":
		return s.ambient(), nil
	case !f.Theme.Valid():
		return s.ambient(), fmt.Errorf("%w: %q", ErrInvalidTheme, f.Theme)
	}
	return f.Theme, nil
}

// SetTheme writes t.
func (s *Store) SetTheme(t Theme) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidTheme, t)
	}
	data, err := yaml.Marshal(file{Theme: t})
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return fmt.Errorf("create preferences directory: %w", err)
	}
	if err := os.WriteFile(s.Path, data, 0o644); err != nil {
		return fmt.Errorf("write preferences: %w", err)
	}
	return nil
}

// Toggle flips the current theme, saves it and returns the new value.
func (s *Store) Toggle() (Theme, error) {
	cur, err := s.Theme()
	if err != nil && !errors.Is(err, ErrInvalidTheme) {
		return cur, err
	}
	next := cur.Toggle()
	if err := s.SetTheme(next); err != nil {
		return cur, err
	}
	return next, nil
}

func (s *Store) ambient() Theme {
	dark := s.Ambient
	if dark == nil {
		dark = lipgloss.HasDarkBackground
	}
	if dark() {
		return ThemeDark
	}
	return ThemeLight
}
