package dataset

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naturethrive/birdmonitor/internal/errors"
)

func quoted(t *testing.T, doc string) []byte {
	t.Helper()
	b, err := json.Marshal(doc)
	require.NoError(t, err)
	return b
}

func TestEndpoints(t *testing.T) {
	assert.Equal(t, "/api/time", Heartbeat.Endpoint())
	assert.Equal(t, "/api/summary", Records.Endpoint())
	assert.Equal(t, "/api/daily-stats", DailyDiversity.Endpoint())
	assert.Equal(t, "/api/species-totals", SpeciesAbundance.Endpoint())
	assert.Equal(t, "/api/hourly-patterns", HourlyActivity.Endpoint())

	for _, id := range All {
		assert.Equal(t, id == Heartbeat, id.Optional(), id.String())
	}

	assert.False(t, ID("weather").Valid())
	assert.True(t, ID("records").Valid())
}

func TestDecodeRecords(t *testing.T) {
	body := []byte(`[
		{"bird":"Robin","date":"2024-05-01","count":3},
		{"bird":"Jay","date":"2024-05-01","count":5},
		{"bird":"Robin","date":"2024-05-02","count":4.0}
	]`)

	records, err := DecodeRecords(body)
	require.NoError(t, err)

	assert.Equal(t, []DetectionRecord{
		{Species: "Robin", Date: "2024-05-01", Count: 3},
		{Species: "Jay", Date: "2024-05-01", Count: 5},
		{Species: "Robin", Date: "2024-05-02", Count: 4},
	}, records)
}

func TestDecodeRecordsEmpty(t *testing.T) {
	records, err := DecodeRecords([]byte(`[]`))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestDecodeRecordsRejectsInvalidRecords(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing count", `[{"bird":"Robin","date":"2024-05-01"}]`},
		{"null count", `[{"bird":"Robin","date":"2024-05-01","count":null}]`},
		{"string count", `[{"bird":"Robin","date":"2024-05-01","count":"3"}]`},
		{"negative count", `[{"bird":"Robin","date":"2024-05-01","count":-1}]`},
		{"fractional count", `[{"bird":"Robin","date":"2024-05-01","count":1.5}]`},
		{"missing bird", `[{"date":"2024-05-01","count":1}]`},
		{"empty bird", `[{"bird":"","date":"2024-05-01","count":1}]`},
		{"missing date", `[{"bird":"Robin","count":1}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeRecords([]byte(tt.body))
			require.Error(t, err)
			assert.True(t, errors.IsInvalidRecord(err), "expected invalid record, got %v", err)
		})
	}
}

func TestDecodeRecordsRejectsMalformedPayloads(t *testing.T) {
	for _, body := range []string{``, `{"bird":"Robin"}`, `[1,2]`, `[{"bird":"Robin","date":"2024-05-01","count":1},5]`, `"not json"`, `[{"bird":`} {
		_, err := DecodeRecords([]byte(body))
		require.Error(t, err, body)
		assert.True(t, errors.IsMalformedPayload(err), "body %q: got %v", body, err)
	}
}

func TestDecodeDailyDiversity(t *testing.T) {
	body := quoted(t, `[
		{"date":"2024-05-01","shannon_index":0.66,"total_detections":8,"species_richness":2},
		{"date":"2024-05-02","shannon_index":0}
	]`)

	entries, err := DecodeDailyDiversity(body)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.InDelta(t, 0.66, entries[0].ShannonIndex, 1e-9)
	require.NotNil(t, entries[0].TotalDetections)
	assert.Equal(t, 8, *entries[0].TotalDetections)
	require.NotNil(t, entries[0].SpeciesRichness)
	assert.Equal(t, 2, *entries[0].SpeciesRichness)

	assert.Nil(t, entries[1].TotalDetections)
	assert.Nil(t, entries[1].SpeciesRichness)

	_, err = DecodeDailyDiversity([]byte(`[{"date":"2024-05-01"}]`))
	assert.True(t, errors.IsInvalidRecord(err))
}

func TestDecodeSpeciesAbundance(t *testing.T) {
	entries, err := DecodeSpeciesAbundance(quoted(t, `[{"label":"Robin","total_count":7},{"label":"Jay","total_count":5}]`))
	require.NoError(t, err)
	assert.Equal(t, []SpeciesAbundanceEntry{{Label: "Robin", TotalCount: 7}, {Label: "Jay", TotalCount: 5}}, entries)

	_, err = DecodeSpeciesAbundance([]byte(`[{"label":"Robin"}]`))
	assert.True(t, errors.IsInvalidRecord(err))
}

func TestDecodeHourlyActivity(t *testing.T) {
	entries, err := DecodeHourlyActivity([]byte(`[{"hour":0,"count":1},{"hour":23,"count":9}]`))
	require.NoError(t, err)
	assert.Equal(t, []HourlyActivityEntry{{Hour: 0, Count: 1}, {Hour: 23, Count: 9}}, entries)

	for _, body := range []string{`[{"hour":24,"count":1}]`, `[{"hour":-1,"count":1}]`, `[{"count":1}]`} {
		_, err := DecodeHourlyActivity([]byte(body))
		assert.True(t, errors.IsInvalidRecord(err), body)
	}
}

func TestDecodeHeartbeat(t *testing.T) {
	clock, err := DecodeHeartbeat([]byte(`{"time": 1714521600.5}`))
	require.NoError(t, err)

	want := time.Date(2024, 5, 1, 0, 0, 0, int(500*time.Millisecond), time.UTC)
	assert.True(t, want.Equal(clock.ServerTime()), "got %v", clock.ServerTime())

	clock, err = DecodeHeartbeat([]byte(`"{\"time\": 12}"`))
	require.NoError(t, err)
	assert.InDelta(t, 12.0, clock.Time, 0)

	for _, body := range []string{`[]`, `{}`, `{"time":null}`, `{"time":"noon"}`, `{"time":-5}`} {
		_, err := DecodeHeartbeat([]byte(body))
		assert.True(t, errors.IsMalformedPayload(err), body)
	}
}

func TestDecodeDispatch(t *testing.T) {
	v, err := Decode(Records, []byte(`[{"bird":"Robin","date":"2024-05-01","count":1}]`))
	require.NoError(t, err)
	assert.IsType(t, []DetectionRecord{}, v)

	v, err = Decode(Heartbeat, []byte(`{"time":1}`))
	require.NoError(t, err)
	assert.IsType(t, ServerClock{}, v)

	_, err = Decode(ID("weather"), nil)
	require.Error(t, err)
}

func TestSetPutAndVersioning(t *testing.T) {
	var s Set
	assert.Equal(t, []ID{Records, DailyDiversity}, s.Missing([]ID{Records, DailyDiversity}))

	require.NoError(t, s.Put(Records, []DetectionRecord{{Species: "Robin", Date: "d", Count: 1}}))
	require.NoError(t, s.Put(Heartbeat, ServerClock{Time: 10}))
	assert.Equal(t, uint64(1), s.RecordsVersion)
	assert.True(t, s.Has(Records))
	assert.Equal(t, []ID{Heartbeat, Records}, s.Held())

	require.Error(t, s.Put(Records, "wrong type"))
	assert.Equal(t, uint64(1), s.RecordsVersion)

	clone := s.Clone()
	clone.Records[0].Count = 99
	assert.Equal(t, 1, s.Records[0].Count, "clone must not share records")

	s.Reset()
	assert.False(t, s.Has(Records))
	assert.Nil(t, s.Clock)
	assert.Equal(t, uint64(1), s.RecordsVersion, "reset keeps the version counter")

	require.NoError(t, s.Put(Records, []DetectionRecord{}))
	assert.Equal(t, uint64(2), s.RecordsVersion)
}
