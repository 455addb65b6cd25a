package fetch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pkaris/listbridge/internal/metrics"
)

// Limiter enforces a minimum interval between outbound calls per host.
// Hosts without an explicit interval fall back to the default.
type Limiter struct {
	mu              sync.Mutex
	hosts           map[string]*rate.Limiter
	intervals       map[string]time.Duration
	defaultInterval time.Duration
}

// NewLimiter creates a Limiter with per-host interval overrides.
func NewLimiter(defaultInterval time.Duration, intervals map[string]time.Duration) *Limiter {
	norm := make(map[string]time.Duration, len(intervals))
	for host, d := range intervals {
		norm[strings.ToLower(host)] = d
	}
	return &Limiter{
		hosts:           make(map[string]*rate.Limiter),
		intervals:       norm,
		defaultInterval: defaultInterval,
	}
}

// Wait blocks until the host's minimum interval has elapsed, respecting the context.
func (l *Limiter) Wait(ctx context.Context, host string) error {
	key := strings.ToLower(host)

	l.mu.Lock()
	limiter, exists := l.hosts[key]
	if !exists {
		interval, ok := l.intervals[key]
		if !ok {
			interval = l.defaultInterval
		}
		limit := rate.Inf
		if interval > 0 {
			limit = rate.Every(interval)
		}
		limiter = rate.NewLimiter(limit, 1)
		l.hosts[key] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(key, waited)
	}
	return nil
}
