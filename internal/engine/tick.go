// Package engine provides the diplomacy world and the tick loop that
// drives it.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/talgya/kingdoms/internal/config"
)

// Clock drives a World forward. Ticks and API commands share one mutex, so
// the world only ever sees a single writer.
type Clock struct {
	mu       sync.Mutex
	world    *World
	tick     uint64
	Interval time.Duration

	// AutosaveEvery calls OnAutosave every so many ticks when both are set.
	AutosaveEvery uint64
	OnAutosave    func(tick uint64)
}

// NewClock creates a clock that resumes after the world's last tick.
func NewClock(w *World, interval time.Duration) *Clock {
	if interval <= 0 {
		interval = time.Second / config.TicksPerSecond
	}
	return &Clock{world: w, tick: w.LastTick, Interval: interval}
}

// Tick returns the last tick run.
func (c *Clock) Tick() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tick
}

// Run ticks until ctx is done.
func (c *Clock) Run(ctx context.Context) {
	slog.Info("diplomacy clock started", "tick", c.Tick(), "interval", c.Interval)
	t := time.NewTicker(c.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("diplomacy clock stopped", "tick", c.Tick())
			return
		case <-t.C:
			c.Step()
		}
	}
}

// Step advances the world by one tick.
func (c *Clock) Step() {
	c.mu.Lock()
	c.tick++
	now := c.tick
	c.world.Tick(now)
	c.mu.Unlock()

	if c.OnAutosave != nil && c.AutosaveEvery > 0 && now%c.AutosaveEvery == 0 {
		c.OnAutosave(now)
	}
}

// Advance runs n ticks back to back.
func (c *Clock) Advance(n uint64) {
	for i := uint64(0); i < n; i++ {
		c.Step()
	}
}

// Do runs fn with exclusive access to the world.
func (c *Clock) Do(fn func(w *World) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fn(c.world)
}

// SimTime renders a tick count as elapsed simulated time.
func SimTime(tick uint64) string {
	secs := tick / config.TicksPerSecond
	return fmt.Sprintf("day %d, %02d:%02d:%02d", secs/86400+1, secs/3600%24, secs/60%60, secs%60)
}
