package aggregate

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naturethrive/birdmonitor/internal/dataset"
	"github.com/naturethrive/birdmonitor/internal/errors"
)

func rec(species, date string, count int) dataset.DetectionRecord {
	return dataset.DetectionRecord{Species: species, Date: date, Count: count}
}

// robinJay is the canonical example: Robin totals 7, Jay totals 5.
var robinJay = []dataset.DetectionRecord{
	rec("Robin", "2024-05-01", 3),
	rec("Jay", "2024-05-01", 5),
	rec("Robin", "2024-05-02", 4),
}

func TestAggregateRobinJay(t *testing.T) {
	totals, err := Aggregate(robinJay)
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"Robin": 7, "Jay": 5}, totals.Map())
	assert.Equal(t, []string{"Robin", "Jay"}, totals.Species())
	assert.Equal(t, []string{"Robin", "Jay"}, Rank(totals))
	assert.Equal(t, []SpeciesTotal{{"Robin", 7}, {"Jay", 5}}, RankedTotals(totals))
}

func TestAggregateEmpty(t *testing.T) {
	totals, err := Aggregate(nil)
	require.NoError(t, err)

	assert.Zero(t, totals.Len())
	ranking := Rank(totals)
	assert.NotNil(t, ranking)
	assert.Empty(t, ranking)
}

func TestAggregateRejectsInvalidRecords(t *testing.T) {
	_, err := Aggregate([]dataset.DetectionRecord{rec("Robin", "d", 1), rec("Jay", "d", -2)})
	require.Error(t, err)
	assert.True(t, errors.IsInvalidRecord(err))

	_, err = Aggregate([]dataset.DetectionRecord{rec("", "d", 1)})
	assert.True(t, errors.IsInvalidRecord(err))
}

func TestRankTiesKeepFirstSeenOrder(t *testing.T) {
	totals, err := Aggregate([]dataset.DetectionRecord{
		rec("Wren", "d1", 2),
		rec("Finch", "d1", 5),
		rec("Sparrow", "d1", 2),
		rec("Owl", "d1", 0),
		rec("Finch", "d2", 0),
		rec("Tit", "d1", 5),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Finch", "Tit", "Wren", "Sparrow", "Owl"}, Rank(totals))
}

func TestRankIsNonIncreasing(t *testing.T) {
	records := []dataset.DetectionRecord{
		rec("A", "d", 1), rec("B", "d", 9), rec("C", "d", 4),
		rec("A", "d", 8), rec("D", "d", 4), rec("B", "d", 0),
	}
	totals, err := Aggregate(records)
	require.NoError(t, err)

	ranked := RankedTotals(totals)
	for i := 1; i < len(ranked); i++ {
		assert.GreaterOrEqual(t, ranked[i-1].Total, ranked[i].Total)
	}
}

func TestRankStableUnderInterleaving(t *testing.T) {
	// Interleaving species differently while keeping each species' relative
	// order and first-appearance order yields the same ranking.
	a := []dataset.DetectionRecord{rec("X", "d", 2), rec("Y", "d", 1), rec("X", "d", 1), rec("Y", "d", 2)}
	b := []dataset.DetectionRecord{rec("X", "d", 2), rec("X", "d", 1), rec("Y", "d", 1), rec("Y", "d", 2)}

	ta, err := Aggregate(a)
	require.NoError(t, err)
	tb, err := Aggregate(b)
	require.NoError(t, err)

	assert.Equal(t, []string{"X", "Y"}, Rank(ta))
	assert.Equal(t, Rank(ta), Rank(tb))
}

func TestDailyDiversity(t *testing.T) {
	records := []dataset.DetectionRecord{
		rec("Robin", "2024-05-02", 4),
		rec("Robin", "2024-05-01", 1),
		rec("Jay", "2024-05-01", 1),
		rec("Owl", "2024-05-01", 0),
		rec("Wren", "2024-05-03", 0),
	}

	daily := DailyDiversity(records)
	require.Len(t, daily, 3)

	dates := make([]string, len(daily))
	for i, d := range daily {
		dates[i] = d.Date
	}
	assert.True(t, slices.IsSorted(dates))

	// Two equally common species: ln 2 = 0.693 -> 0.69
	assert.Equal(t, "2024-05-01", daily[0].Date)
	assert.InDelta(t, 0.69, daily[0].ShannonIndex, 1e-9)
	assert.Equal(t, 2, *daily[0].TotalDetections)
	assert.Equal(t, 2, *daily[0].SpeciesRichness)

	// One species: zero diversity
	assert.InDelta(t, 0.0, daily[1].ShannonIndex, 1e-9)
	assert.Equal(t, 1, *daily[1].SpeciesRichness)

	// No detections at all
	assert.Equal(t, 0, *daily[2].TotalDetections)
	assert.Equal(t, 0, *daily[2].SpeciesRichness)
}

func TestPipelineMemoizesByVersion(t *testing.T) {
	p := NewPipeline()

	first, err := p.Derive(1, robinJay)
	require.NoError(t, err)
	again, err := p.Derive(1, robinJay)
	require.NoError(t, err)

	assert.Same(t, first, again)
	assert.Equal(t, PipelineStats{Hits: 1, Misses: 1}, p.Stats())

	next, err := p.Derive(2, robinJay[:1])
	require.NoError(t, err)
	assert.NotSame(t, first, next)
	assert.Equal(t, []string{"Robin"}, next.Ranking)
	assert.Equal(t, uint64(2), next.Version)
	assert.Equal(t, 1, p.Len(), "previous version is evicted")
	assert.Equal(t, PipelineStats{Hits: 1, Misses: 2}, p.Stats())
}

func TestPipelinePropagatesInvalidRecords(t *testing.T) {
	p := NewPipeline()

	_, err := p.Derive(1, []dataset.DetectionRecord{rec("Robin", "d", -1)})
	require.Error(t, err)
	assert.True(t, errors.IsInvalidRecord(err))
	assert.Zero(t, p.Len())
}
