// Package requestpool collapses identical concurrent fetches into a single
// underlying call, with a hard per-call timeout and teardown support.
package requestpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrTimeout is returned when a pooled call exceeds its hard timeout.
var ErrTimeout = errors.New("request timed out")

// ErrCancelled is returned when a pooled call is aborted before its timeout,
// by Clear or by the caller's context.
var ErrCancelled = errors.New("request cancelled")

// DefaultTimeout bounds a pooled call when the caller passes no timeout.
const DefaultTimeout = 15 * time.Second

type entry struct {
	cancel  context.CancelFunc
	started time.Time
}

// Pool deduplicates in-flight requests by key. Concurrent callers with the
// same key share one result; the registry entry lives only while the call is
// in flight and is never cached across calls.
type Pool struct {
	group singleflight.Group

	mu       sync.Mutex
	inflight map[string]*entry
}

func New() *Pool {
	return &Pool{inflight: make(map[string]*entry)}
}

// Do runs work under key, joining an already-pending call for the same key
// if one exists. The context handed to work is cancelled once timeout
// elapses; the call then fails with ErrTimeout and the entry is cleared so
// the next call with the same key starts fresh. A call aborted before the
// timeout, by Clear or by the caller's context, fails with ErrCancelled.
func (p *Pool) Do(ctx context.Context, key string, timeout time.Duration, work func(ctx context.Context) (any, error)) (any, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	value, err, _ := p.group.Do(key, func() (any, error) {
		workCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		p.track(key, cancel)
		defer p.untrack(key)

		value, err := work(workCtx)
		switch {
		case err != nil && errors.Is(workCtx.Err(), context.DeadlineExceeded):
			return nil, fmt.Errorf("%s after %s: %w", key, timeout, ErrTimeout)
		case err != nil && workCtx.Err() != nil:
			return nil, fmt.Errorf("%s: %w", key, ErrCancelled)
		}
		return value, err
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Clear aborts every pending entry and empties the registry. Used on
// teardown so late results cannot feed a view that no longer exists.
func (p *Pool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, e := range p.inflight {
		e.cancel()
		p.group.Forget(key)
		delete(p.inflight, key)
	}
}

// InFlight reports the number of currently pending keys.
func (p *Pool) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inflight)
}

func (p *Pool) track(key string, cancel context.CancelFunc) {
	p.mu.Lock()
	p.inflight[key] = &entry{cancel: cancel, started: time.Now()}
	p.mu.Unlock()
}

func (p *Pool) untrack(key string) {
	p.mu.Lock()
	delete(p.inflight, key)
	p.mu.Unlock()
}

// DoTyped is a typed wrapper around Pool.Do for callers that want a concrete
// result type instead of any.
func DoTyped[T any](ctx context.Context, p *Pool, key string, timeout time.Duration, work func(ctx context.Context) (T, error)) (T, error) {
	value, err := p.Do(ctx, key, timeout, func(ctx context.Context) (any, error) {
		return work(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	if value == nil {
		var zero T
		return zero, nil
	}
	typed, ok := value.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s: unexpected result type %T", key, value)
	}
	return typed, nil
}
