// Package fetch implements the dual-transport strategy used by the proposal
// loader: try the structured record-store client, race it against a soft
// timeout, and fall back to a minimal raw HTTP call. The soft timeout is
// deliberately much shorter than the hard timeout inside the request pool so
// the fallback fires well before the primary would give up on its own.
package fetch

import (
	"context"
	"log"
	"time"

	"quotely/api/internal/metrics"
)

// Transport identifies which code path produced a result.
type Transport string

const (
	TransportPrimary  Transport = "primary"
	TransportFallback Transport = "fallback"
)

// DefaultSoftTimeout is the observed sweet spot before bypassing a stalled
// structured-client call.
const DefaultSoftTimeout = 2500 * time.Millisecond

type outcome[T any] struct {
	value T
	err   error
}

// WithFallback races primary against soft. If the timer fires first, or
// primary settles with an error, fallback runs immediately; a late primary
// settlement is discarded. On primary success fallback is never invoked.
// A nil result with a nil error means the resource legitimately does not
// exist, which is distinct from a transport failure.
func WithFallback[T any](ctx context.Context, label string, soft time.Duration, m *metrics.Metrics, primary, fallback func(ctx context.Context) (T, error)) (T, Transport, error) {
	if soft <= 0 {
		soft = DefaultSoftTimeout
	}

	primaryCtx, cancelPrimary := context.WithCancel(ctx)
	defer cancelPrimary()

	results := make(chan outcome[T], 1)
	started := time.Now()
	go func() {
		value, err := primary(primaryCtx)
		results <- outcome[T]{value: value, err: err}
	}()

	timer := time.NewTimer(soft)
	defer timer.Stop()

	select {
	case out := <-results:
		if out.err == nil {
			m.ServedByPrimary(label)
			return out.value, TransportPrimary, nil
		}
		log.Printf("fetch %s: primary failed after %s, using fallback: %v", label, time.Since(started).Round(time.Millisecond), out.err)
	case <-timer.C:
		log.Printf("fetch %s: primary still pending after %s, using fallback", label, soft)
		cancelPrimary()
	case <-ctx.Done():
		var zero T
		return zero, TransportPrimary, ctx.Err()
	}

	value, err := fallback(ctx)
	if err != nil {
		m.BothTransportsFailed(label)
		var zero T
		return zero, TransportFallback, err
	}
	m.ServedByFallback(label)
	return value, TransportFallback, nil
}
