package querycache

import (
	"context"

	"github.com/classmarkets/queue-crawler/wire"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// QueryCache dispatches query blocks to the wire, coalescing duplicate work
// at both the block level (an identical block requested twice in flight is
// only sent once) and the query level (two blocks that happen to share an
// individual (name, rtype, ip) query only send that query once).
type QueryCache struct {
	resolver *wire.Resolver

	blocks  *AsyncCache[*wire.BlockResponse]
	queries *AsyncCache[wire.Response]

	sem *semaphore.Weighted
}

// NewQueryCache returns a QueryCache that sends at most maxInFlightQueries
// individual wire queries concurrently. A non-positive maxInFlightQueries
// disables the limit.
func NewQueryCache(resolver *wire.Resolver, maxInFlightQueries int64) *QueryCache {
	if maxInFlightQueries <= 0 {
		maxInFlightQueries = 1 << 20
	}
	return &QueryCache{
		resolver: resolver,
		blocks:   NewAsyncCache[*wire.BlockResponse](0),
		queries:  NewAsyncCache[wire.Response](0),
		sem:      semaphore.NewWeighted(maxInFlightQueries),
	}
}

// Dispatch resolves block, either returning a previously cached result or
// fanning the block's constituent queries out over the wire.
func (c *QueryCache) Dispatch(ctx context.Context, block wire.Block) (*wire.BlockResponse, error) {
	return c.blocks.Get(ctx, block.ID(), func(ctx context.Context) (*wire.BlockResponse, error) {
		return c.dispatch(ctx, block)
	})
}

func (c *QueryCache) dispatch(ctx context.Context, block wire.Block) (*wire.BlockResponse, error) {
	queries := block.Queries()
	responses := make([]wire.Response, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			if err := c.sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer c.sem.Release(1)

			resp, err := c.queries.Get(gctx, q.ID(), func(ctx context.Context) (wire.Response, error) {
				return c.resolver.Query(ctx, q), nil
			})
			if err != nil {
				return err
			}
			responses[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	data := make(map[wire.RType]wire.Response, len(block.RTypes))
	for _, rtype := range block.RTypes {
		data[rtype] = bestResponse(responses, rtype)
	}

	return &wire.BlockResponse{Block: block, Data: data}, nil
}

// bestResponse picks, among every response to rtype questions in the block,
// the first successful one it finds, falling back to the first timeout if
// none succeeded. Queries() orders responses by NSR, so this amounts to
// trying NSRs in order until one answers.
func bestResponse(responses []wire.Response, rtype wire.RType) wire.Response {
	var fallback wire.Response
	haveFallback := false
	for _, r := range responses {
		if r.Query.RType != rtype {
			continue
		}
		if r.Status == wire.StatusSuccess {
			return r
		}
		if !haveFallback {
			fallback = r
			haveFallback = true
		}
	}
	return fallback
}
