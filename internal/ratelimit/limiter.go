// Package ratelimit provides politeness pacing for the harvester.
package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Politeness paces item fetches against the remote source. A token
// bucket caps the steady-state request rate, and each pause adds a
// randomized delay between the configured bounds so request timing does
// not look mechanical.
type Politeness struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	minDelay time.Duration
	maxDelay time.Duration
	settle   time.Duration
	rng      *rand.Rand
}

// New creates a politeness pacer. minDelay/maxDelay bound the randomized
// pause between item fetches; settle is the fixed wait after triggering
// lazy content loads.
func New(minDelay, maxDelay, settle time.Duration) *Politeness {
	if minDelay <= 0 {
		minDelay = time.Second
	}
	if maxDelay < minDelay {
		maxDelay = minDelay
	}

	return &Politeness{
		limiter:  rate.NewLimiter(rate.Every(minDelay), 1),
		minDelay: minDelay,
		maxDelay: maxDelay,
		settle:   settle,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Pause blocks for the inter-item politeness interval or until the
// context is cancelled.
func (p *Politeness) Pause(ctx context.Context) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}
	return sleep(ctx, p.Delay())
}

// Settle blocks for the fixed content-settle interval.
func (p *Politeness) Settle(ctx context.Context) error {
	return sleep(ctx, p.settle)
}

// SettleInterval returns the configured settle wait.
func (p *Politeness) SettleInterval() time.Duration {
	return p.settle
}

// Delay returns a random duration in [minDelay, maxDelay].
func (p *Politeness) Delay() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	spread := p.maxDelay - p.minDelay
	if spread <= 0 {
		return p.minDelay
	}
	return p.minDelay + time.Duration(p.rng.Int63n(int64(spread)+1))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
