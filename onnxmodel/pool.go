package onnxmodel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultPoolSize Pool configuration
	DefaultPoolSize   = 4
	AcquireTimeout    = 5 * time.Second
	HealthCheckPeriod = 60 * time.Second
	maxRecordedErrors = 10
)

var ErrPoolClosed = errors.New("pool is closed")

// session is what the pool manages; *ModelSession in production.
type session interface {
	Destroy()
}

// SessionPool keeps a fixed number of sessions ready. Sessions discarded
// after a failure are recreated by the health check loop.
type SessionPool[S session] struct {
	sessions chan S
	size     int
	factory  func() (S, error)
	timeout  time.Duration

	mu         sync.Mutex
	closed     bool
	live       int
	lastErrors []error
	stop       chan struct{}

	metrics PoolStats
}

// PoolStats is a snapshot of pool activity.
type PoolStats struct {
	Size            int           `json:"pool_size"`
	Live            int           `json:"live_sessions"`
	InUse           int           `json:"sessions_in_use"`
	TotalAcquired   int64         `json:"total_acquired"`
	TotalReleased   int64         `json:"total_released"`
	TotalDiscarded  int64         `json:"total_discarded"`
	AcquireFailures int64         `json:"acquire_failures"`
	WaitTime        time.Duration `json:"wait_time_ns"`
	LastErrors      []string      `json:"last_errors,omitempty"`
}

func NewSessionPool[S session](size int, factory func() (S, error)) (*SessionPool[S], error) {
	return newSessionPool(size, AcquireTimeout, HealthCheckPeriod, factory)
}

func newSessionPool[S session](size int, timeout, healthPeriod time.Duration, factory func() (S, error)) (*SessionPool[S], error) {
	if size <= 0 {
		size = DefaultPoolSize
	}

	pool := &SessionPool[S]{
		sessions: make(chan S, size),
		size:     size,
		factory:  factory,
		timeout:  timeout,
		stop:     make(chan struct{}),
	}

	// Initialize sessions
	for i := 0; i < size; i++ {
		s, err := factory()
		if err != nil {
			pool.Destroy()
			return nil, fmt.Errorf("failed to initialize session %d: %w", i, err)
		}
		pool.live++
		pool.sessions <- s
	}

	// Start health check routine
	go pool.healthCheck(healthPeriod)

	return pool, nil
}

func (p *SessionPool[S]) Acquire(ctx context.Context) (S, error) {
	var zero S
	if p.isClosed() {
		return zero, ErrPoolClosed
	}

	start := time.Now()
	defer func() {
		p.mu.Lock()
		p.metrics.WaitTime += time.Since(start)
		p.mu.Unlock()
	}()

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case s, ok := <-p.sessions:
		if !ok {
			return zero, ErrPoolClosed
		}
		p.mu.Lock()
		p.metrics.InUse++
		p.metrics.TotalAcquired++
		p.mu.Unlock()
		return s, nil
	case <-timer.C:
		p.mu.Lock()
		p.metrics.AcquireFailures++
		p.mu.Unlock()
		return zero, fmt.Errorf("timeout waiting for available session")
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (p *SessionPool[S]) Release(s S) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.metrics.InUse--
	p.metrics.TotalReleased++
	if p.closed {
		p.live--
		s.Destroy()
		return
	}
	p.sessions <- s
}

// Discard destroys a session that failed instead of returning it.
func (p *SessionPool[S]) Discard(s S, cause error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.metrics.InUse--
	p.metrics.TotalDiscarded++
	p.live--
	p.recordErrorLocked(cause)
	s.Destroy()
}

func (p *SessionPool[S]) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	p.closed = true
	close(p.stop)
	close(p.sessions)

	// Destroy all idle sessions; in-use ones are destroyed on Release.
	for s := range p.sessions {
		p.live--
		s.Destroy()
	}
}

func (p *SessionPool[S]) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := p.metrics
	stats.Size = p.size
	stats.Live = p.live
	stats.LastErrors = make([]string, len(p.lastErrors))
	for i, err := range p.lastErrors {
		stats.LastErrors[i] = err.Error()
	}
	return stats
}

func (p *SessionPool[S]) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *SessionPool[S]) healthCheck(period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.replenish()
		}
	}
}

// replenish recreates discarded sessions until the pool is back to size.
func (p *SessionPool[S]) replenish() {
	p.mu.Lock()
	missing := p.size - p.live
	p.mu.Unlock()

	for i := 0; i < missing; i++ {
		s, err := p.factory()
		if err != nil {
			p.mu.Lock()
			p.recordErrorLocked(err)
			p.mu.Unlock()
			log.Warn().Err(err).Msg("failed to replenish model session")
			continue
		}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			s.Destroy()
			return
		}
		p.live++
		p.sessions <- s
		p.mu.Unlock()
	}
}

func (p *SessionPool[S]) recordErrorLocked(err error) {
	if err == nil {
		return
	}
	p.lastErrors = append(p.lastErrors, err)
	if len(p.lastErrors) > maxRecordedErrors {
		p.lastErrors = p.lastErrors[1:]
	}
}
