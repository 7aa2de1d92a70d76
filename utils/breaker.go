package utils

import (
	"errors"
	"sync"
	"time"
)

var ErrBreakerOpen = errors.New("circuit breaker is open")

type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerHalfOpen
	BreakerOpen
)

// Breaker guards a flaky outbound dependency (the mail relay). After the
// failure ratio is exceeded within an interval the breaker opens and calls
// fail fast until the cooldown passes, then a probe request decides whether
// to close again.
type Breaker struct {
	name         string
	interval     time.Duration
	cooldown     time.Duration
	minRequests  uint32
	failureRatio float64

	mu         sync.Mutex
	state      BreakerState
	generation uint64
	requests   uint32
	failures   uint32
	expiry     time.Time
}

func NewBreaker(name string) *Breaker {
	b := &Breaker{
		name:         name,
		interval:     60 * time.Second,
		cooldown:     60 * time.Second,
		minRequests:  5,
		failureRatio: 0.6,
	}
	b.expiry = time.Now().Add(b.interval)
	return b
}

func (b *Breaker) Do(fn func() error) error {
	generation, err := b.before()
	if err != nil {
		return err
	}

	err = fn()
	b.after(generation, err == nil)
	return err
}

func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refresh(time.Now())
	return b.state
}

func (b *Breaker) before() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.refresh(now)

	switch b.state {
	case BreakerOpen:
		return b.generation, ErrBreakerOpen
	case BreakerHalfOpen:
		if b.requests > 0 {
			// One probe at a time.
			return b.generation, ErrBreakerOpen
		}
	}

	b.requests++
	return b.generation, nil
}

func (b *Breaker) after(generation uint64, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.refresh(now)
	if generation != b.generation {
		return
	}

	if success {
		if b.state == BreakerHalfOpen {
			b.transition(BreakerClosed, now)
		}
		return
	}

	b.failures++
	switch b.state {
	case BreakerHalfOpen:
		b.transition(BreakerOpen, now)
	case BreakerClosed:
		if b.requests >= b.minRequests &&
			float64(b.failures)/float64(b.requests) >= b.failureRatio {
			b.transition(BreakerOpen, now)
		}
	}
}

// refresh rolls the counting window or leaves the open state once the
// respective deadline passed. Callers must hold the mutex.
func (b *Breaker) refresh(now time.Time) {
	switch b.state {
	case BreakerClosed:
		if !b.expiry.IsZero() && b.expiry.Before(now) {
			b.newGeneration(now)
		}
	case BreakerOpen:
		if b.expiry.Before(now) {
			b.transition(BreakerHalfOpen, now)
		}
	}
}

func (b *Breaker) transition(state BreakerState, now time.Time) {
	b.state = state
	b.newGeneration(now)
}

func (b *Breaker) newGeneration(now time.Time) {
	b.generation++
	b.requests = 0
	b.failures = 0

	switch b.state {
	case BreakerClosed:
		b.expiry = now.Add(b.interval)
	case BreakerOpen:
		b.expiry = now.Add(b.cooldown)
	default:
		b.expiry = time.Time{}
	}
}
