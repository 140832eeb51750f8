// Package syncer bridges the offline upload queue to background delivery.
// It watches backend reachability the way the CLI watches its online mode
// (periodic ping), collects registered sync intents, and replays queued
// work when connectivity returns.
package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"stayline/internal/logging"
)

// Replayer drains deferred work. A failed pass leaves unprocessed records
// where they are; the next wake-up resumes safely.
type Replayer interface {
	Replay(ctx context.Context) error
}

// Pinger probes backend reachability. Any error means offline.
type Pinger interface {
	Ping(ctx context.Context) error
}

const probeTimeout = 3 * time.Second

// Coordinator is the background-sync facility. When the platform offers no
// such facility (supported=false), RegisterIntent degrades to a no-op and
// replay only happens on foreground flushes.
type Coordinator struct {
	replayer  Replayer
	pinger    Pinger
	log       logging.Logger
	interval  time.Duration
	supported bool

	mu      sync.Mutex
	intents map[string]struct{}
	online  bool

	wake chan struct{}
}

func New(replayer Replayer, pinger Pinger, log logging.Logger, interval time.Duration, supported bool) *Coordinator {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Coordinator{
		replayer:  replayer,
		pinger:    pinger,
		log:       log.With("component", "syncer"),
		interval:  interval,
		supported: supported,
		intents:   make(map[string]struct{}),
		wake:      make(chan struct{}, 1),
	}
}

// RegisterIntent asks for a wake-up once connectivity is back, tagged so
// repeated registrations collapse into one. Without platform support this
// is a silent no-op; the degraded mode is tolerated, not an error.
func (c *Coordinator) RegisterIntent(tag string) {
	if !c.supported {
		return
	}

	c.mu.Lock()
	c.intents[tag] = struct{}{}
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default: // a wake-up is already queued
	}
}

// Online reports the last observed reachability.
func (c *Coordinator) Online() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

func (c *Coordinator) setOnline(online bool) (changed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	changed = c.online != online
	c.online = online
	return changed
}

func (c *Coordinator) pendingIntents() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.intents) > 0
}

func (c *Coordinator) drainIntents() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	tags := make([]string, 0, len(c.intents))
	for t := range c.intents {
		tags = append(tags, t)
	}
	c.intents = make(map[string]struct{})
	return tags
}

func (c *Coordinator) restoreIntents(tags []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range tags {
		c.intents[t] = struct{}{}
	}
}

// Run watches connectivity until ctx is done. On an offline-to-online
// transition with intents pending, or on a wake-up while online, it runs
// one replay pass. Passes are never cancelled mid-record; ctx is checked
// between records by the replayer.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.probe(ctx)

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			wasOffline := !c.Online()
			c.probe(ctx)
			if wasOffline && c.Online() && c.pendingIntents() {
				c.flush(ctx)
			}

		case <-c.wake:
			if !c.Online() {
				if err := c.awaitOnline(ctx); err != nil {
					continue // still offline; the ticker keeps watching
				}
			}
			c.flush(ctx)
		}
	}
}

func (c *Coordinator) probe(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, probeTimeout)
	err := c.pinger.Ping(pctx)
	cancel()

	if changed := c.setOnline(err == nil); changed {
		if err == nil {
			c.log.Info(ctx, "backend reachable")
		} else {
			c.log.Info(ctx, "backend unreachable", "error", err)
		}
	}
}

// awaitOnline probes with fibonacci backoff, bounded so the regular ticker
// takes over when the outage drags on.
func (c *Coordinator) awaitOnline(ctx context.Context) error {
	backoff := retry.WithMaxDuration(2*c.interval, retry.NewFibonacci(time.Second))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		pctx, cancel := context.WithTimeout(ctx, probeTimeout)
		defer cancel()
		if err := c.pinger.Ping(pctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	c.setOnline(true)
	return nil
}

// FlushNow replays queued work immediately, regardless of registered
// intents. Used on foreground startup, which is also the whole recovery
// story when background sync is unsupported.
func (c *Coordinator) FlushNow(ctx context.Context) error {
	c.drainIntents()
	err := c.replayer.Replay(ctx)
	if err != nil {
		c.log.Warn(ctx, "replay pass left records pending", "error", err)
		c.restoreIntents([]string{flushRetryTag})
	}
	return err
}

const flushRetryTag = "replay-retry"

func (c *Coordinator) flush(ctx context.Context) {
	tags := c.drainIntents()
	if len(tags) == 0 {
		return
	}

	c.log.Info(ctx, "sync wake-up", "tags", tags)
	if err := c.replayer.Replay(ctx); err != nil {
		// records are still queued; keep the intents so the next
		// transition or tick tries again
		c.log.Warn(ctx, "replay pass left records pending", "error", err)
		c.restoreIntents(tags)
	}
}
