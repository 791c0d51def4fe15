package viewstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naturethrive/birdmonitor/internal/dataset"
)

func TestRequirements(t *testing.T) {
	assert.Equal(t, []dataset.ID{dataset.Heartbeat, dataset.Records}, Requirements(Summary))
	assert.Equal(t, []dataset.ID{
		dataset.Heartbeat, dataset.Records, dataset.DailyDiversity,
		dataset.SpeciesAbundance, dataset.HourlyActivity,
	}, Requirements(Analytics))

	assert.Equal(t, []dataset.ID{dataset.Records}, Required(Summary))
	assert.NotContains(t, Required(Analytics), dataset.Heartbeat)
	assert.Len(t, Required(Analytics), 4)

	// Callers cannot mutate the table
	reqs := Requirements(Summary)
	reqs[0] = dataset.HourlyActivity
	assert.Equal(t, dataset.Heartbeat, Requirements(Summary)[0])
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("Analytics")
	require.NoError(t, err)
	assert.Equal(t, Analytics, m)

	m, err = ParseMode(" summary ")
	require.NoError(t, err)
	assert.Equal(t, Summary, m)

	_, err = ParseMode("map")
	require.Error(t, err)

	assert.Equal(t, "analytics", Analytics.String())
	assert.Equal(t, "mode(7)", Mode(7).String())
}

func TestMachine(t *testing.T) {
	m := NewMachine()
	assert.Equal(t, Summary, m.Mode())

	prev, err := m.SetMode(Analytics)
	require.NoError(t, err)
	assert.Equal(t, Summary, prev)
	assert.Equal(t, Requirements(Analytics), m.CurrentRequirements())

	_, err = m.SetMode(Mode(42))
	require.Error(t, err)
	assert.Equal(t, Analytics, m.Mode())

	prev, err = m.SetMode(Summary)
	require.NoError(t, err)
	assert.Equal(t, Analytics, prev)
}
