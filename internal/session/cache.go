package session

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hyperengineering/goalboard/internal/types"
	"gopkg.in/yaml.v3"
)

// Cache persists the last sign-in between client runs.
type Cache interface {
	Load() (types.SignInResponse, bool)
	Store(types.SignInResponse) error
}

// FileCache stores the sign-in as YAML at Path.
type FileCache struct {
	Path string
}

type cachedSignIn struct {
	UserID    string    `yaml:"user_id"`
	Token     string    `yaml:"token"`
	ExpiresAt time.Time `yaml:"expires_at"`
	Anonymous bool      `yaml:"anonymous"`
}

// Load reads the cached sign-in. A missing or unreadable file is a cache miss.
func (c FileCache) Load() (types.SignInResponse, bool) {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("read session cache", "component", "session", "action", "cache", "error", err)
		}
		return types.SignInResponse{}, false
	}
	var v cachedSignIn
	if err := yaml.Unmarshal(data, &v); err != nil {
		return types.SignInResponse{}, false
	}
	return types.SignInResponse{
		UserID:    v.UserID,
		Token:     v.Token,
		ExpiresAt: v.ExpiresAt,
		Anonymous: v.Anonymous,
	}, true
}

// Store writes resp with owner-only permissions.
func (c FileCache) Store(resp types.SignInResponse) error {
	data, err := yaml.Marshal(cachedSignIn{
		UserID:    resp.UserID,
		Token:     resp.Token,
		ExpiresAt: resp.ExpiresAt,
		Anonymous: resp.Anonymous,
	})
	if err != nil {
		return fmt.Errorf("encode session cache: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.Path), 0o700); err != nil {
		return fmt.Errorf("create session cache directory: %w", err)
	}
	if err := os.WriteFile(c.Path, data, 0o600); err != nil {
		return fmt.Errorf("write session cache: %w", err)
	}
	return nil
}
