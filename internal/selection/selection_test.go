package selection

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naturethrive/birdmonitor/internal/dataset"
	"github.com/naturethrive/birdmonitor/internal/errors"
)

func rec(species, date string, count int) dataset.DetectionRecord {
	return dataset.DetectionRecord{Species: species, Date: date, Count: count}
}

var robinJay = []dataset.DetectionRecord{
	rec("Robin", "2024-05-01", 3),
	rec("Jay", "2024-05-01", 5),
	rec("Robin", "2024-05-02", 4),
}

func TestInitial(t *testing.T) {
	species, ok := Initial([]string{"Robin", "Jay"})
	assert.True(t, ok)
	assert.Equal(t, "Robin", species)

	_, ok = Initial(nil)
	assert.False(t, ok)
}

func TestFilter(t *testing.T) {
	robins := Filter("Robin", robinJay)
	assert.Equal(t, []dataset.DetectionRecord{robinJay[0], robinJay[2]}, robins)

	// Idempotent
	assert.Equal(t, robins, Filter("Robin", robins))

	none := Filter("Owl", robinJay)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestCoordinatorRobinJay(t *testing.T) {
	c := NewCoordinator()
	view := c.Reset(1, robinJay, []string{"Robin", "Jay"})

	assert.Equal(t, "Robin", view.Species)
	assert.Equal(t, uint64(1), view.Version)
	assert.Equal(t, []dataset.DetectionRecord{robinJay[0], robinJay[2]}, view.Records)

	view, err := c.Select("Jay")
	require.NoError(t, err)
	assert.Equal(t, []dataset.DetectionRecord{robinJay[1]}, view.Records)
	assert.Equal(t, view, c.Current())
}

func TestCoordinatorUnknownSpeciesLeavesStateUnchanged(t *testing.T) {
	c := NewCoordinator()
	c.Reset(1, robinJay, []string{"Robin", "Jay"})
	before := c.Current()

	view, err := c.Select("Owl")
	require.Error(t, err)
	assert.True(t, errors.IsUnknownSpecies(err))
	assert.Equal(t, before, view)
	assert.Equal(t, before, c.Current())
	assert.Equal(t, "Robin", c.Selected())

	_, err = c.Select("")
	assert.True(t, errors.IsUnknownSpecies(err))
}

func TestCoordinatorResetKeepsPresentSelection(t *testing.T) {
	c := NewCoordinator()
	c.Reset(1, robinJay, []string{"Robin", "Jay"})
	_, err := c.Select("Jay")
	require.NoError(t, err)

	more := append(append([]dataset.DetectionRecord{}, robinJay...), rec("Jay", "2024-05-03", 1))
	view := c.Reset(2, more, []string{"Robin", "Jay"})

	assert.Equal(t, "Jay", view.Species)
	assert.Equal(t, uint64(2), view.Version)
	assert.Len(t, view.Records, 2)
}

func TestCoordinatorResetFallsBackToTop(t *testing.T) {
	c := NewCoordinator()
	c.Reset(1, robinJay, []string{"Robin", "Jay"})
	_, err := c.Select("Jay")
	require.NoError(t, err)

	view := c.Reset(2, []dataset.DetectionRecord{rec("Wren", "2024-05-04", 2)}, []string{"Wren"})
	assert.Equal(t, "Wren", view.Species)

	view = c.Reset(3, nil, []string{})
	assert.True(t, view.Empty())
	assert.NotNil(t, view.Records)
	assert.Empty(t, view.Records)
	assert.Equal(t, uint64(3), view.Version)
}

func TestCoordinatorNeverServesStaleCombination(t *testing.T) {
	c := NewCoordinator()
	c.Reset(1, robinJay, []string{"Robin", "Jay"})

	versions := map[uint64][]dataset.DetectionRecord{
		1: robinJay,
		2: {rec("Robin", "2024-06-01", 1), rec("Jay", "2024-06-01", 2)},
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := range 200 {
			v := uint64(1 + i%2)
			c.Reset(v, versions[v], []string{"Robin", "Jay"})
		}
	}()
	go func() {
		defer wg.Done()
		for i := range 200 {
			species := "Robin"
			if i%2 == 0 {
				species = "Jay"
			}
			_, _ = c.Select(species)
		}
	}()
	go func() {
		defer wg.Done()
		for range 400 {
			view := c.Current()
			want := Filter(view.Species, versions[view.Version])
			if !assert.Equal(t, want, view.Records) {
				return
			}
		}
	}()
	wg.Wait()
}
