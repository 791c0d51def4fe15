// Package selection owns the displayed species and the filtered record view.
package selection

import (
	"slices"
	"sync"

	"github.com/naturethrive/birdmonitor/internal/dataset"
	"github.com/naturethrive/birdmonitor/internal/errors"
)

const componentName = "selection"

// View is the filtered record subsequence for one species, stamped with the
// record version it was derived from.
type View struct {
	Species string
	Version uint64
	Records []dataset.DetectionRecord
}

// Empty reports whether there is no selection.
func (v View) Empty() bool {
	return v.Species == ""
}

// Initial returns the default selection: the top-ranked species, if any.
func Initial(ranking []string) (string, bool) {
	if len(ranking) == 0 {
		return "", false
	}
	return ranking[0], true
}

// Filter returns the records for species in their original order.
// It never returns nil; no match yields an empty slice.
func Filter(species string, records []dataset.DetectionRecord) []dataset.DetectionRecord {
	out := make([]dataset.DetectionRecord, 0)
	for _, r := range records {
		if r.Species == species {
			out = append(out, r)
		}
	}
	return out
}

// Coordinator keeps the selection consistent with the committed records.
// Selection, records and the derived view change together under one lock,
// so Current never pairs a selection with records from another version.
type Coordinator struct {
	mu       sync.RWMutex
	records  []dataset.DetectionRecord
	ranking  []string
	present  map[string]struct{}
	version  uint64
	selected string
	view     View
}

// NewCoordinator returns a coordinator with no data and no selection.
func NewCoordinator() *Coordinator {
	return &Coordinator{present: map[string]struct{}{}}
}

// Reset installs a newly committed record sequence. The current selection is
// kept when the species is still present; otherwise the top-ranked species is
// selected, or nothing when there are no records.
func (c *Coordinator) Reset(version uint64, records []dataset.DetectionRecord, ranking []string) View {
	c.mu.Lock()
	defer c.mu.Unlock()

	present := make(map[string]struct{}, len(ranking))
	for _, r := range records {
		present[r.Species] = struct{}{}
	}

	c.records = records
	c.ranking = slices.Clone(ranking)
	c.present = present
	c.version = version

	if _, ok := present[c.selected]; !ok || c.selected == "" {
		c.selected, _ = Initial(ranking)
	}
	c.rederiveLocked()

	return c.view
}

// Select changes the displayed species. A species absent from the current
// records is rejected with an UnknownSpecies error and nothing changes.
func (c *Coordinator) Select(species string) (View, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.present[species]; !ok || species == "" {
		return c.view, errors.Newf("species %q is not present in the current records", species).
			Component(componentName).
			Category(errors.CategoryUnknownSpecies).
			Context("species", species).
			Context("version", c.version).
			Build()
	}

	if species != c.selected {
		c.selected = species
		c.rederiveLocked()
	}
	return c.view, nil
}

// Current returns the view for the current selection and record version.
func (c *Coordinator) Current() View {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.view
}

// Selected returns the current species, or "" when nothing is selected.
func (c *Coordinator) Selected() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selected
}

func (c *Coordinator) rederiveLocked() {
	c.view = View{Species: c.selected, Version: c.version}
	if c.selected == "" {
		c.view.Records = []dataset.DetectionRecord{}
		return
	}
	c.view.Records = Filter(c.selected, c.records)
}
