// Package poll waits for host conditions that offer no completion callback.
//
// A poll checks its condition on a fixed interval and stops itself the first
// time the condition holds. Polls are keyed: at most one poll per key is in
// flight, and every poll is bounded by a maximum duration so none is orphaned.
package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.aimuz.me/voicechat/metrics"
)

var (
	// ErrInFlight is returned when a poll for the same key is already running.
	ErrInFlight = errors.New("poll already in flight")
	// ErrTimeout is returned when the condition was not observed in time.
	ErrTimeout = errors.New("poll timed out")
)

const (
	// DefaultInterval is the check interval used when Config.Interval is zero.
	DefaultInterval = 100 * time.Millisecond
	// DefaultMaxDuration bounds a poll when Config.MaxDuration is zero.
	DefaultMaxDuration = 2 * time.Minute
)

// Spec describes one poll.
type Spec struct {
	// Key identifies the awaited condition.
	Key string
	// Settle is waited once before the first check.
	Settle time.Duration
	// Cond reports whether the awaited condition holds.
	Cond func() bool
}

// Config holds configuration for a Poller.
type Config struct {
	Interval    time.Duration
	MaxDuration time.Duration
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
}

// Poller runs keyed polls.
type Poller struct {
	interval time.Duration
	max      time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu       sync.Mutex
	inflight map[string]struct{}
}

// New creates a Poller. Zero durations take defaults.
func New(cfg Config) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = DefaultMaxDuration
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Poller{
		interval: cfg.Interval,
		max:      cfg.MaxDuration,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		inflight: make(map[string]struct{}),
	}
}

// InFlight reports whether a poll for key is running.
func (p *Poller) InFlight(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.inflight[key]
	return ok
}

// Start runs the poll in the background and calls done exactly once with its
// result. The key is released before done runs, so done may start a new poll
// for the same key. Start returns ErrInFlight without calling done if the key
// is busy.
func (p *Poller) Start(ctx context.Context, s Spec, done func(error)) error {
	if !p.acquire(s.Key) {
		p.metrics.Poll(s.Key, metrics.PollInFlight, 0)
		return fmt.Errorf("%s: %w", s.Key, ErrInFlight)
	}
	go func() {
		err := p.run(ctx, s)
		if done != nil {
			done(err)
		}
	}()
	return nil
}

func (p *Poller) acquire(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.inflight[key]; ok {
		return false
	}
	p.inflight[key] = struct{}{}
	return true
}

func (p *Poller) release(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inflight, key)
}

// run owns the key until it returns.
func (p *Poller) run(ctx context.Context, s Spec) error {
	defer p.release(s.Key)

	start := time.Now()
	deadline := time.NewTimer(p.max)
	defer deadline.Stop()

	if s.Settle > 0 {
		settle := time.NewTimer(s.Settle)
		select {
		case <-settle.C:
		case <-ctx.Done():
			settle.Stop()
			p.metrics.Poll(s.Key, metrics.PollCanceled, time.Since(start))
			return ctx.Err()
		case <-deadline.C:
			settle.Stop()
			return p.timeout(s.Key, start)
		}
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.metrics.Poll(s.Key, metrics.PollCanceled, time.Since(start))
			return ctx.Err()
		case <-deadline.C:
			return p.timeout(s.Key, start)
		case <-ticker.C:
			if s.Cond() {
				p.metrics.Poll(s.Key, metrics.PollDone, time.Since(start))
				return nil
			}
		}
	}
}

func (p *Poller) timeout(key string, start time.Time) error {
	p.logger.Debug("poll timed out", "key", key, "elapsed", time.Since(start))
	p.metrics.Poll(key, metrics.PollTimeout, time.Since(start))
	return fmt.Errorf("%s: %w", key, ErrTimeout)
}
