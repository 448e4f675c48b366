package resilience

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// SingleFlight deduplicates concurrent loads for the same key. Waiters
// give up when their own context ends; the shared load keeps running for
// the remaining callers.
type SingleFlight struct {
	group singleflight.Group
}

func (g *SingleFlight) Do(ctx context.Context, key string, fn func() (any, error)) (any, error, bool) {
	ch := g.group.DoChan(key, fn)
	select {
	case <-ctx.Done():
		return nil, ctx.Err(), false
	case res := <-ch:
		return res.Val, res.Err, res.Shared
	}
}

// Forget drops an in-flight key so the next caller starts a fresh load.
func (g *SingleFlight) Forget(key string) {
	g.group.Forget(key)
}
