package multistore

import (
	"errors"
	"fmt"
	"regexp"
)

// MaxNamespaceLength is the maximum length of an application namespace id.
const MaxNamespaceLength = 64

var (
	// ErrInvalidNamespace indicates a namespace id failed validation.
	ErrInvalidNamespace = errors.New("invalid namespace")
	// ErrManagerClosed is returned by GetStore after Close.
	ErrManagerClosed = errors.New("namespace manager closed")
	// ErrNamespaceNotFound indicates no namespace directory exists for an id.
	ErrNamespaceNotFound = errors.New("namespace not found")
)

// namespacePattern matches lowercase alphanumerics with inner hyphens.
var namespacePattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// ValidateNamespace checks an application namespace id such as "default-pm-app-mtid".
func ValidateNamespace(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty namespace", ErrInvalidNamespace)
	}
	if len(id) > MaxNamespaceLength {
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidNamespace, MaxNamespaceLength)
	}
	if !namespacePattern.MatchString(id) {
		return fmt.Errorf("%w: %q must be lowercase alphanumeric with hyphens", ErrInvalidNamespace, id)
	}
	return nil
}
