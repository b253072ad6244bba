package cfg

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/l3aro/go-taint-query/internal/log"
)

// BuildAll builds one graph per function on a bounded worker pool. Each task
// owns its Builder and its result slot, so workers share nothing. onBuilt, if
// set, is called after each graph is finished and must be safe for concurrent
// use. Results are in the order of funcs.
func BuildAll(ctx context.Context, funcs []Function, workers int, logger log.Logger, onBuilt func(*Graph)) ([]*Graph, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	graphs := make([]*Graph, len(funcs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := range funcs {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			graphs[i] = NewBuilder(logger).Build(funcs[i].Name, funcs[i].Body)
			if onBuilt != nil {
				onBuilt(graphs[i])
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return graphs, nil
}
