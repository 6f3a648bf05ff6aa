package multistore

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// NamespaceMeta is persisted in each namespace's meta.yaml.
type NamespaceMeta struct {
	Created      time.Time `yaml:"created"`
	LastAccessed time.Time `yaml:"last_accessed"`
}

// NamespaceInfo summarizes a namespace on disk.
type NamespaceInfo struct {
	ID           string    `json:"id"`
	Created      time.Time `json:"created"`
	LastAccessed time.Time `json:"last_accessed"`
	SizeBytes    int64     `json:"size_bytes"`
}

func newNamespaceMeta() *NamespaceMeta {
	now := time.Now().UTC()
	return &NamespaceMeta{Created: now, LastAccessed: now}
}

func loadMeta(path string) (*NamespaceMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var meta NamespaceMeta
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse namespace metadata: %w", err)
	}
	return &meta, nil
}

func saveMeta(path string, meta *NamespaceMeta) error {
	data, err := yaml.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal namespace metadata: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
