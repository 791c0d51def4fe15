package orchestrator

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/naturethrive/birdmonitor/internal/dataset"
)

// LoadFunc fetches and decodes one dataset.
type LoadFunc func(ctx context.Context, id dataset.ID) (any, error)

// JoinAllOrNothing runs load for every id concurrently and waits for all of them.
// Each goroutine writes only its own result slot. When any load fails the
// remaining loads are cancelled, the first error is returned and no results are
// returned; otherwise the results are keyed by dataset.
func JoinAllOrNothing(ctx context.Context, ids []dataset.ID, load LoadFunc) (map[dataset.ID]any, error) {
	results := make([]any, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			v, err := load(gctx, id)
			if err != nil {
				return err
			}
			results[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[dataset.ID]any, len(ids))
	for i, id := range ids {
		out[id] = results[i]
	}
	return out, nil
}
