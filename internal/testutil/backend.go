package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// HeartbeatTime is the server clock served by Backend, 2024-05-01 08:00:00 UTC.
const HeartbeatTime = 1714550400

// DefaultRecords totals Robin 7 and Jay 2 over two days.
func DefaultRecords() []map[string]any {
	return []map[string]any{
		{"bird": "Robin", "date": "2024-05-01", "count": 3},
		{"bird": "Jay", "date": "2024-05-01", "count": 2},
		{"bird": "Robin", "date": "2024-05-02", "count": 4},
	}
}

// Backend serves the dashboard API from fixtures. The summary and species
// totals endpoints double-encode their payloads like the real backend does.
type Backend struct {
	URL string

	mu       sync.Mutex
	records  []map[string]any
	failures map[string]int
	calls    map[string]int
}

// NewBackend starts a Backend closed at test cleanup.
func NewBackend(t *testing.T) *Backend {
	t.Helper()
	b := &Backend{
		records:  DefaultRecords(),
		failures: make(map[string]int),
		calls:    make(map[string]int),
	}
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)
	b.URL = srv.URL
	return b
}

// Fail makes path answer with status until cleared with status 0.
func (b *Backend) Fail(path string, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if status == 0 {
		delete(b.failures, path)
		return
	}
	b.failures[path] = status
}

// SetRecords replaces the summary records.
func (b *Backend) SetRecords(records []map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = records
}

// Calls returns how often path was requested.
func (b *Backend) Calls(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[path]
}

// TotalCalls returns the number of requests across all paths.
func (b *Backend) TotalCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		n += c
	}
	return n
}

func (b *Backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.calls[r.URL.Path]++
	status := b.failures[r.URL.Path]
	records := b.records
	b.mu.Unlock()

	if status != 0 {
		http.Error(w, http.StatusText(status), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/api/time":
		writeJSON(w, map[string]any{"time": HeartbeatTime})
	case "/api/summary":
		writeDoubleEncoded(w, records)
	case "/api/daily-stats":
		writeJSON(w, []map[string]any{
			{"date": "2024-05-01", "shannon_index": 0.67, "total_detections": 5, "species_richness": 2},
			{"date": "2024-05-02", "shannon_index": 0},
		})
	case "/api/species-totals":
		writeDoubleEncoded(w, []map[string]any{
			{"label": "Robin", "total_count": 7},
			{"label": "Jay", "total_count": 2},
		})
	case "/api/hourly-patterns":
		writeJSON(w, []map[string]any{{"hour": 6, "count": 5}, {"hour": 18, "count": 4}})
	default:
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	_ = json.NewEncoder(w).Encode(v)
}

func writeDoubleEncoded(w http.ResponseWriter, v any) {
	inner, _ := json.Marshal(v)
	writeJSON(w, string(inner))
}
