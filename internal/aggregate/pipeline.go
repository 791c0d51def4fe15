package aggregate

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/patrickmn/go-cache"

	"github.com/naturethrive/birdmonitor/internal/dataset"
)

// Derived is everything computed from one committed record sequence.
type Derived struct {
	Version uint64
	Totals  Totals
	Ranking []string
	Daily   []dataset.DailyDiversityEntry
}

// PipelineStats reports memo effectiveness.
type PipelineStats struct {
	Hits   uint64
	Misses uint64
}

// Pipeline memoizes derived data keyed on the record sequence version.
// Deriving the same version twice returns the memoized result; a new version
// recomputes and evicts the previous entry.
type Pipeline struct {
	mu      sync.Mutex
	memo    *cache.Cache
	current uint64
	hasAny  bool
	hits    atomic.Uint64
	misses  atomic.Uint64
}

// NewPipeline creates an empty pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{
		// No expiration and no janitor goroutine; entries are evicted on version change
		memo: cache.New(cache.NoExpiration, 0),
	}
}

// Derive returns the derived data for records at version.
// The caller guarantees that a version always identifies the same records.
func (p *Pipeline) Derive(version uint64, records []dataset.DetectionRecord) (*Derived, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := memoKey(version)
	if cached, found := p.memo.Get(key); found {
		if d, ok := cached.(*Derived); ok {
			p.hits.Add(1)
			return d, nil
		}
	}
	p.misses.Add(1)

	totals, err := Aggregate(records)
	if err != nil {
		return nil, err
	}

	d := &Derived{
		Version: version,
		Totals:  totals,
		Ranking: Rank(totals),
		Daily:   DailyDiversity(records),
	}

	if p.hasAny && p.current != version {
		p.memo.Delete(memoKey(p.current))
	}
	p.memo.Set(key, d, cache.NoExpiration)
	p.current = version
	p.hasAny = true

	return d, nil
}

// Stats returns memo hit and miss counts.
func (p *Pipeline) Stats() PipelineStats {
	return PipelineStats{Hits: p.hits.Load(), Misses: p.misses.Load()}
}

// Len returns the number of memoized versions.
func (p *Pipeline) Len() int {
	return p.memo.ItemCount()
}

func memoKey(version uint64) string {
	return fmt.Sprintf("derived:%d", version)
}
