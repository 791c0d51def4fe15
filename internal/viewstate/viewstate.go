// Package viewstate tracks the active top-level view and the datasets it needs.
package viewstate

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/naturethrive/birdmonitor/internal/dataset"
)

// Mode is a top-level dashboard view.
type Mode int

const (
	// Summary shows the per-species record view.
	Summary Mode = iota
	// Analytics shows the diversity, abundance and hourly activity datasets.
	Analytics
)

var requirements = map[Mode][]dataset.ID{
	Summary:   {dataset.Heartbeat, dataset.Records},
	Analytics: {dataset.Heartbeat, dataset.Records, dataset.DailyDiversity, dataset.SpeciesAbundance, dataset.HourlyActivity},
}

func (m Mode) String() string {
	switch m {
	case Summary:
		return "summary"
	case Analytics:
		return "analytics"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	_, ok := requirements[m]
	return ok
}

// ParseMode converts "summary" or "analytics" (case-insensitive) into a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "summary":
		return Summary, nil
	case "analytics":
		return Analytics, nil
	default:
		return Summary, fmt.Errorf("unknown view %q: expected summary or analytics", s)
	}
}

// Modes lists every mode.
func Modes() []Mode {
	return []Mode{Summary, Analytics}
}

// Requirements returns the datasets mode needs, including the optional heartbeat.
func Requirements(mode Mode) []dataset.ID {
	return slices.Clone(requirements[mode])
}

// Required returns the datasets that must be held before mode can be ready.
func Required(mode Mode) []dataset.ID {
	var out []dataset.ID
	for _, id := range requirements[mode] {
		if !id.Optional() {
			out = append(out, id)
		}
	}
	return out
}

// Machine holds the active mode. It starts in Summary and has no terminal state.
// Switching modes never touches held data.
type Machine struct {
	mu   sync.RWMutex
	mode Mode
}

// NewMachine returns a machine in Summary mode.
func NewMachine() *Machine {
	return &Machine{mode: Summary}
}

// SetMode switches the active mode and returns the previous one.
func (m *Machine) SetMode(mode Mode) (Mode, error) {
	if !mode.Valid() {
		return m.Mode(), fmt.Errorf("unknown view %s", mode)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.mode
	m.mode = mode
	return prev, nil
}

// Mode returns the active mode.
func (m *Machine) Mode() Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mode
}

// CurrentRequirements returns the datasets the active mode needs.
func (m *Machine) CurrentRequirements() []dataset.ID {
	return Requirements(m.Mode())
}
