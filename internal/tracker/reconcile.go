package tracker

import (
	"github.com/hyperengineering/goalboard/internal/catalog"
	"github.com/hyperengineering/goalboard/internal/types"
)

// Reconcile merges persisted activity data with the catalog.
//
// The result has exactly one activity per catalog id, in catalog order. Remote
// entries with unknown ids are dropped and only the first entry for a given id
// is considered. A remote target is used when present (clamped to 0), and a
// remote actual list is used when present with duplicate record ids collapsed;
// records without an id are never collapsed.
// Name and unit always come from the catalog.
func Reconcile(cat *catalog.Catalog, remote []types.RemoteActivity) []types.Activity {
	byID := make(map[string]types.RemoteActivity, len(remote))
	for _, ra := range remote {
		if !cat.Contains(ra.ID) {
			continue
		}
		if _, seen := byID[ra.ID]; seen {
			continue
		}
		byID[ra.ID] = ra
	}

	defs := cat.Definitions()
	out := make([]types.Activity, len(defs))
	for i, def := range defs {
		a := def.Activity()
		if ra, ok := byID[def.ID]; ok {
			if ra.Target != nil {
				a.Target = clampTarget(*ra.Target)
			}
			if ra.Actual != nil {
				a.Actual = dedupe(ra.Actual)
			}
		}
		out[i] = a
	}
	return out
}

// toRemote converts a working list back into reconciliation input.
func toRemote(activities []types.Activity) []types.RemoteActivity {
	out := make([]types.RemoteActivity, len(activities))
	for i, a := range activities {
		out[i] = a.Remote()
	}
	return out
}

// dedupe drops repeated record ids. Records without an id are kept as-is.
func dedupe(records []types.Achievement) []types.Achievement {
	out := make([]types.Achievement, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if r.ID != "" {
			if _, dup := seen[r.ID]; dup {
				continue
			}
			seen[r.ID] = struct{}{}
		}
		out = append(out, r)
	}
	return out
}

func clampTarget(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
