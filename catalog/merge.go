package catalog

import "github.com/signalsfoundry/rotorcraft-catalog/model"

// PropellerSubset is one source table of propellers, e.g. a product line.
type PropellerSubset struct {
	Name       string
	Propellers []*model.Propeller
}

// Collision records a propeller key that a later entry shadowed.
type Collision struct {
	Key      string
	Shadowed string // subset of the dropped record
	Winner   string // subset of the record that was kept
	Dropped  *model.Propeller
}

// MergePropellers merges subsets in order into one key -> propeller map.
// When two entries share a key the later one wins, including duplicates
// inside a single subset. Every shadowed entry is reported.
func MergePropellers(subsets ...PropellerSubset) (map[string]*model.Propeller, []Collision) {
	out := make(map[string]*model.Propeller)
	origin := make(map[string]string)
	var collisions []Collision

	for _, subset := range subsets {
		for _, p := range subset.Propellers {
			if p == nil {
				continue
			}
			key := p.Key()
			if prev, exists := out[key]; exists {
				collisions = append(collisions, Collision{
					Key:      key,
					Shadowed: origin[key],
					Winner:   subset.Name,
					Dropped:  prev,
				})
			}
			out[key] = p
			origin[key] = subset.Name
		}
	}
	return out, collisions
}
