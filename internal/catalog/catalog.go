// Package catalog holds the fixed, ordered list of trackable activity definitions.
package catalog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hyperengineering/goalboard/internal/types"
)

// DefaultUnit is the counting unit shared by all default activities.
const DefaultUnit = "kali"

var (
	// ErrEmptyID indicates a definition without an id.
	ErrEmptyID = errors.New("activity definition id is empty")
	// ErrDuplicateID indicates two definitions share an id.
	ErrDuplicateID = errors.New("duplicate activity definition id")
	// ErrNegativeTarget indicates a definition with a target below zero.
	ErrNegativeTarget = errors.New("activity definition target is negative")
)

// Definition is an immutable activity definition.
type Definition struct {
	ID     string
	Name   string
	Target int
	Unit   string
}

// Catalog is an ordered, read-only set of definitions.
type Catalog struct {
	defs  []Definition
	index map[string]int
}

// New builds a catalog from definitions in the given order.
func New(defs ...Definition) (*Catalog, error) {
	c := &Catalog{
		defs:  make([]Definition, 0, len(defs)),
		index: make(map[string]int, len(defs)),
	}
	for _, d := range defs {
		if strings.TrimSpace(d.ID) == "" {
			return nil, ErrEmptyID
		}
		if _, dup := c.index[d.ID]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateID, d.ID)
		}
		if d.Target < 0 {
			return nil, fmt.Errorf("%w: %q", ErrNegativeTarget, d.ID)
		}
		c.index[d.ID] = len(c.defs)
		c.defs = append(c.defs, d)
	}
	return c, nil
}

// MustNew is New that panics on invalid definitions.
func MustNew(defs ...Definition) *Catalog {
	c, err := New(defs...)
	if err != nil {
		panic(err)
	}
	return c
}

var defaultCatalog = MustNew(
	Definition{ID: "visit", Name: "Visit or Online Meeting", Target: 12, Unit: DefaultUnit},
	Definition{ID: "demo", Name: "Conduct Demo, Live eDemo, New Recorded Demo, Mini Exhibition, or On-site Event", Target: 4, Unit: DefaultUnit},
	Definition{ID: "product_test", Name: "Product Test", Target: 3, Unit: DefaultUnit},
	Definition{ID: "webinar", Name: "Present on Webinar, MT Academy and Seminar", Target: 1, Unit: DefaultUnit},
	Definition{ID: "app_note", Name: "Application Note and Innovation Initiative", Target: 1, Unit: DefaultUnit},
	Definition{ID: "facility_maintenance", Name: "Demo Facility Maintenance", Target: 1, Unit: DefaultUnit},
)

// Default returns the monthly performance catalog.
func Default() *Catalog {
	return defaultCatalog
}

// Definitions returns a copy of the definitions in catalog order.
func (c *Catalog) Definitions() []Definition {
	out := make([]Definition, len(c.defs))
	copy(out, c.defs)
	return out
}

// Lookup returns the definition for id.
func (c *Catalog) Lookup(id string) (Definition, bool) {
	i, ok := c.index[id]
	if !ok {
		return Definition{}, false
	}
	return c.defs[i], true
}

// Contains reports whether id is a catalog id.
func (c *Catalog) Contains(id string) bool {
	_, ok := c.index[id]
	return ok
}

// IDs returns the catalog ids in order.
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.defs))
	for i, d := range c.defs {
		ids[i] = d.ID
	}
	return ids
}

// Len returns the number of definitions.
func (c *Catalog) Len() int {
	return len(c.defs)
}

// Activity returns the catalog-default working activity for a definition.
func (d Definition) Activity() types.Activity {
	return types.Activity{
		ID:     d.ID,
		Name:   d.Name,
		Target: d.Target,
		Unit:   d.Unit,
		Actual: []types.Achievement{},
	}
}

// Defaults returns catalog-default activities with empty achievement lists.
func (c *Catalog) Defaults() []types.Activity {
	out := make([]types.Activity, len(c.defs))
	for i, d := range c.defs {
		out[i] = d.Activity()
	}
	return out
}
