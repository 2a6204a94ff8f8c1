package beeminder

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// maxParallelFetches caps concurrent requests so a fan-out stays well below
// the service's rate limit.
const maxParallelFetches = 4

// FetchRecentDatapoints fetches the latest count datapoints for each slug
// concurrently. The first failure cancels the remaining requests.
func (c *Client) FetchRecentDatapoints(ctx context.Context, slugs []string, count int, token string) (map[string][]Datapoint, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelFetches)

	var mu sync.Mutex
	out := make(map[string][]Datapoint, len(slugs))
	for _, slug := range slugs {
		g.Go(func() error {
			points, err := c.FetchDatapoints(ctx, slug, count, token)
			if err != nil {
				return err
			}
			mu.Lock()
			out[slug] = points
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
