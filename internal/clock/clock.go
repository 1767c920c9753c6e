// Package clock drives time-based stat decay. It is a plain schedulable
// component with Start/Stop, independent of any view or transport
// lifecycle, so it can be unit-tested on its own.
package clock

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pwillett/critter/internal/state"
	"github.com/pwillett/critter/internal/statmath"
)

// StatClock periodically applies decay to the store. Elapsed time is
// always measured from the store's own LastUpdated, read fresh inside the
// mutation, so irregular scheduling can never double-apply decay and a
// session resumed after an arbitrary pause catches up in one tick.
type StatClock struct {
	store    *state.Store
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a clock ticking at interval. The clock is stopped until
// Start is called.
func New(store *state.Store, interval time.Duration) *StatClock {
	return &StatClock{store: store, interval: interval}
}

// Start launches the tick loop. Calling Start on a running clock is a
// no-op. The first tick fires immediately so a resumed session catches up
// without waiting a full interval.
func (c *StatClock) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	done := make(chan struct{})
	c.done = done

	go c.run(ctx, done)
}

// Stop halts the tick loop and waits for any in-progress tick to finish.
// Safe to call more than once.
func (c *StatClock) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (c *StatClock) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	c.Tick()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Tick()
		}
	}
}

// Tick applies decay for the wall-clock time elapsed since the store's
// last update. Exposed so tests and manual catch-ups can drive the clock
// without the ticker.
func (c *StatClock) Tick() {
	err := c.store.Mutate(func(d *state.Data) error {
		elapsed := time.Since(d.Pet.Stats.LastUpdated)
		if elapsed <= 0 {
			return nil
		}
		d.Pet.Stats = statmath.Decay(d.Pet.Stats, elapsed)
		return nil
	})
	if err != nil {
		slog.Error("clock: decay tick failed", "err", err)
	}
}
