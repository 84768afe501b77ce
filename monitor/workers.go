package monitor

import (
	"context"
	"sync"
	"sync/atomic"
)

// refreshPool runs refresh for each source with at most slots refreshes in
// flight and counts the ones that recorded an error. With a single slot or a
// single source it degrades to a plain loop. The boolean reports whether
// context cancellation stopped dispatch before every source was started.
func refreshPool(ctx context.Context, slots int, sources []*source, refresh func(context.Context, *source) bool) (int, bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	if slots <= 1 || len(sources) <= 1 {
		failed := 0
		for _, s := range sources {
			if ctx.Err() != nil {
				return failed, true
			}
			if refresh(ctx, s) {
				failed++
			}
		}
		return failed, false
	}

	var (
		wg     sync.WaitGroup
		failed atomic.Int64
	)
	sem := make(chan struct{}, slots)
	for _, s := range sources {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return int(failed.Load()), true
		}
		wg.Add(1)
		go func(s *source) {
			defer wg.Done()
			defer func() { <-sem }()
			if refresh(ctx, s) {
				failed.Add(1)
			}
		}(s)
	}
	wg.Wait()
	return int(failed.Load()), false
}
