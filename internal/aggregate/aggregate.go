// Package aggregate derives per-species totals, rankings and daily diversity
// from detection records.
package aggregate

import (
	"cmp"
	"maps"
	"slices"

	"github.com/naturethrive/birdmonitor/internal/dataset"
	"github.com/naturethrive/birdmonitor/internal/errors"
)

const componentName = "aggregate"

// Totals holds the summed count per species and the order in which species
// first appeared in the record sequence.
type Totals struct {
	counts map[string]int
	order  []string
}

// SpeciesTotal is one species with its summed count.
type SpeciesTotal struct {
	Species string
	Total   int
}

// Aggregate sums counts per species. Records with an empty species or a
// negative count are rejected. Empty input yields empty totals.
func Aggregate(records []dataset.DetectionRecord) (Totals, error) {
	t := Totals{counts: make(map[string]int)}

	for i, r := range records {
		if r.Species == "" {
			return Totals{}, invalidRecord(i, "empty species")
		}
		if r.Count < 0 {
			return Totals{}, invalidRecord(i, "negative count")
		}

		if _, seen := t.counts[r.Species]; !seen {
			t.order = append(t.order, r.Species)
		}
		t.counts[r.Species] += r.Count
	}

	return t, nil
}

// Total returns the summed count for species.
func (t Totals) Total(species string) (int, bool) {
	n, ok := t.counts[species]
	return n, ok
}

// Len returns the number of distinct species.
func (t Totals) Len() int {
	return len(t.order)
}

// Species returns the species in first-seen order.
func (t Totals) Species() []string {
	return slices.Clone(t.order)
}

// Map returns a copy of the per-species totals.
func (t Totals) Map() map[string]int {
	return maps.Clone(t.counts)
}

// Rank orders species by total, highest first. Equal totals keep first-seen order.
func Rank(t Totals) []string {
	ranking := slices.Clone(t.order)
	if ranking == nil {
		return []string{}
	}
	slices.SortStableFunc(ranking, func(a, b string) int {
		return cmp.Compare(t.counts[b], t.counts[a])
	})
	return ranking
}

// RankedTotals pairs each ranked species with its total.
func RankedTotals(t Totals) []SpeciesTotal {
	ranking := Rank(t)
	out := make([]SpeciesTotal, len(ranking))
	for i, species := range ranking {
		out[i] = SpeciesTotal{Species: species, Total: t.counts[species]}
	}
	return out
}

func invalidRecord(index int, reason string) error {
	return errors.Newf("record %d: %s", index, reason).
		Component(componentName).
		Category(errors.CategoryInvalidRecord).
		Context("index", index).
		Build()
}
