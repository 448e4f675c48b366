package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sourcegraph/conc"
)

func TestSingleFlight_CollapsesConcurrentLoads(t *testing.T) {
	var (
		g     SingleFlight
		calls atomic.Int32
		wg    conc.WaitGroup
		gate  = make(chan struct{})
	)

	results := make([]any, 20)
	for i := range results {
		wg.Go(func() {
			<-gate
			v, err, _ := g.Do(context.Background(), "lineup:team-1:5", func() (any, error) {
				calls.Add(1)
				time.Sleep(20 * time.Millisecond)
				return "loaded", nil
			})
			if err != nil {
				t.Errorf("load %d: %v", i, err)
			}
			results[i] = v
		})
	}
	close(gate)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("expected one load, got %d", got)
	}
	for i, v := range results {
		if v != "loaded" {
			t.Fatalf("caller %d got %v", i, v)
		}
	}
}

func TestSingleFlight_WaiterHonorsContext(t *testing.T) {
	var g SingleFlight
	release := make(chan struct{})
	defer close(release)

	go func() {
		_, _, _ = g.Do(context.Background(), "slow", func() (any, error) {
			<-release
			return "late", nil
		})
	}()
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err, _ := g.Do(ctx, "slow", func() (any, error) { return "unused", nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded for abandoned waiter, got %v", err)
	}
}
