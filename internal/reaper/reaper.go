// Package reaper closes streaming writers that have been idle too long.
package reaper

import (
	"context"
	"sync"
	"time"

	"example.com/chunkcast/internal/logger"
	"example.com/chunkcast/internal/metrics"
)

// Tickable is anything the reaper can watch. broadcast.Subscription
// satisfies it.
type Tickable interface {
	LastTick() time.Time
	IsClosed() bool
	CloseIdle() error
}

// Reaper periodically sweeps its tracked writers and closes those whose last
// write is older than the idle timeout.
type Reaper struct {
	idleTimeout time.Duration
	interval    time.Duration
	log         *logger.Logger
	metrics     *metrics.Metrics

	mu      sync.Mutex
	tracked map[string]Tickable

	stopChan chan struct{}
	wg       sync.WaitGroup
	once     sync.Once // Stop may be called more than once
}

func New(idleTimeout, interval time.Duration, log *logger.Logger, m *metrics.Metrics) *Reaper {
	if log == nil {
		log = logger.NewNop()
	}
	return &Reaper{
		idleTimeout: idleTimeout,
		interval:    interval,
		log:         log,
		metrics:     m,
		tracked:     make(map[string]Tickable),
		stopChan:    make(chan struct{}),
	}
}

// Track starts watching t under id, replacing any earlier entry.
func (r *Reaper) Track(id string, t Tickable) {
	r.mu.Lock()
	r.tracked[id] = t
	r.mu.Unlock()
}

func (r *Reaper) Untrack(id string) {
	r.mu.Lock()
	delete(r.tracked, id)
	r.mu.Unlock()
}

// Len returns the number of tracked entries.
func (r *Reaper) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tracked)
}

// Start runs the sweep loop until ctx is done or Stop is called.
func (r *Reaper) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopChan:
				return
			case now := <-ticker.C:
				r.Sweep(now)
			}
		}
	}()
}

// Stop stops the sweep loop and waits for it to exit.
func (r *Reaper) Stop() {
	r.once.Do(func() {
		close(r.stopChan)
	})
	r.wg.Wait()
}

// Sweep closes every tracked entry idle since before now-idleTimeout and
// drops closed entries. It returns the number of entries it closed.
// A writer that has never written reports LastTick as the current time, so
// a subscriber on a topic nobody publishes to is never reaped; it ends when
// its client goes away or the server shuts down.
func (r *Reaper) Sweep(now time.Time) int {
	cutoff := now.Add(-r.idleTimeout)

	var stale []Tickable
	r.mu.Lock()
	for id, t := range r.tracked {
		switch {
		case t.IsClosed():
			delete(r.tracked, id)
		case t.LastTick().Before(cutoff):
			stale = append(stale, t)
			delete(r.tracked, id)
		}
	}
	r.mu.Unlock()

	// Closing runs completion hooks, which may call Untrack.
	for _, t := range stale {
		if err := t.CloseIdle(); err != nil {
			r.log.Warn("Error closing idle writer", logger.LogFields{"error": err.Error()})
		}
		r.metrics.Reaped()
	}
	if len(stale) > 0 {
		r.log.Debug("Reaped idle writers", logger.LogFields{"count": len(stale)})
	}
	return len(stale)
}
