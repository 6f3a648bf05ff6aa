package preferences

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T, dark bool) *Store {
	t.Helper()
	s := NewStore(filepath.Join(t.TempDir(), "prefs", "preferences.yaml"))
	s.Ambient = func() bool { return dark }
	return s
}

func TestTheme_DefaultsToAmbient(t *testing.T) {
	for _, dark := range []bool{true, false} {
		s := newTestStore(t, dark)
		want := ThemeLight
		if dark {
			want = ThemeDark
		}
		got, err := s.Theme()
		if err != nil || got != want {
			t.Errorf("Theme() with ambient dark=%v = %q, %v, want %q", dark, got, err, want)
		}
	}
}

func TestToggle_PersistsAcrossStores(t *testing.T) {
	// Given: no stored preference and a light terminal
	s := newTestStore(t, false)

	// When: toggling
	got, err := s.Toggle()
	if err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}

	// Then: dark is stored and read back regardless of ambient
	if got != ThemeDark {
		t.Errorf("Toggle() = %q, want dark", got)
	}
	reopened := &Store{Path: s.Path, Ambient: func() bool { return false }}
	if th, _ := reopened.Theme(); th != ThemeDark {
		t.Errorf("reopened Theme() = %q, want dark", th)
	}

	if got, _ := s.Toggle(); got != ThemeLight {
		t.Errorf("second Toggle() = %q, want light", got)
	}
}

func TestTheme_InvalidStoredValue(t *testing.T) {
	s := newTestStore(t, true)
	os.MkdirAll(filepath.Dir(s.Path), 0o755)
	os.WriteFile(s.Path, []byte("theme: sepia\n"), 0o644)

	got, err := s.Theme()
	if !errors.Is(err, ErrInvalidTheme) || got != ThemeDark {
		t.Errorf("Theme() = %q, %v, want ambient with ErrInvalidTheme", got, err)
	}

	// Toggling repairs the file.
	if next, err := s.Toggle(); err != nil || next != ThemeLight {
		t.Errorf("Toggle() = %q, %v", next, err)
	}
}

func TestSetTheme_RejectsUnknown(t *testing.T) {
	if err := newTestStore(t, false).SetTheme("blue"); !errors.Is(err, ErrInvalidTheme) {
		t.Errorf("SetTheme(blue) error = %v, want ErrInvalidTheme", err)
	}
}
