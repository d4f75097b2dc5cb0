package retention

import "github.com/google/uuid"

// ActivityKey is the part of an activity the dedup pass looks at.
type ActivityKey struct {
	ID              uuid.UUID
	ExternalPlaceID string
}

// Merge folds Duplicates into Keep.
type Merge struct {
	ExternalPlaceID string
	Keep            uuid.UUID
	Duplicates      []uuid.UUID
}

// PlanDedup groups activities by external place id and keeps the first row
// seen for each id. Callers pass rows ordered by creation time then id.
// Rows without an external id are ignored; they are deleted separately.
func PlanDedup(activities []ActivityKey) []Merge {
	index := make(map[string]int)
	var groups []Merge
	for _, a := range activities {
		if a.ExternalPlaceID == "" {
			continue
		}
		i, seen := index[a.ExternalPlaceID]
		if !seen {
			index[a.ExternalPlaceID] = len(groups)
			groups = append(groups, Merge{ExternalPlaceID: a.ExternalPlaceID, Keep: a.ID})
			continue
		}
		groups[i].Duplicates = append(groups[i].Duplicates, a.ID)
	}

	merges := groups[:0]
	for _, g := range groups {
		if len(g.Duplicates) > 0 {
			merges = append(merges, g)
		}
	}
	return merges
}
