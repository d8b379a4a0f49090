package requestpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDoCollapsesConcurrentCalls(t *testing.T) {
	pool := New()
	var calls int32
	release := make(chan struct{})

	work := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "result", nil
	}

	var wg sync.WaitGroup
	results := make([]any, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = pool.Do(context.Background(), "quote:abc123", time.Second, work)
		}(i)
	}

	// Let both callers reach the pool before releasing the work.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("work invoked %d times, want 1", got)
	}
	for i := 0; i < 2; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d error: %v", i, errs[i])
		}
		if results[i] != "result" {
			t.Fatalf("caller %d got %v, want result", i, results[i])
		}
	}
}

func TestDoTimeoutClearsEntry(t *testing.T) {
	pool := New()

	_, err := pool.Do(context.Background(), "slow", 30*time.Millisecond, func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("got %v, want ErrTimeout", err)
	}

	// The registry must not be stuck: a fresh call with the same key runs.
	value, err := pool.Do(context.Background(), "slow", time.Second, func(ctx context.Context) (any, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if value != 42 {
		t.Fatalf("second call got %v, want 42", value)
	}
	if n := pool.InFlight(); n != 0 {
		t.Fatalf("registry holds %d entries after settle, want 0", n)
	}
}

func TestDoPropagatesWorkError(t *testing.T) {
	pool := New()
	wantErr := errors.New("boom")

	_, err := pool.Do(context.Background(), "failing", time.Second, func(ctx context.Context) (any, error) {
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("got %v, want %v", err, wantErr)
	}
}

func TestClearAbortsPending(t *testing.T) {
	pool := New()
	started := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		_, err := pool.Do(context.Background(), "pending", time.Minute, func(ctx context.Context) (any, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		})
		done <- err
	}()

	<-started
	pool.Clear()

	select {
	case err := <-done:
		if !errors.Is(err, ErrCancelled) {
			t.Fatalf("got %v, want ErrCancelled", err)
		}
		if errors.Is(err, ErrTimeout) {
			t.Fatalf("clear reported as timeout: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cleared call did not settle")
	}
	if n := pool.InFlight(); n != 0 {
		t.Fatalf("registry holds %d entries after Clear, want 0", n)
	}
}

func TestDoCallerCancelIsNotTimeout(t *testing.T) {
	pool := New()
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		_, err := pool.Do(ctx, "cancelled", time.Minute, func(ctx context.Context) (any, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		})
		done <- err
	}()

	<-started
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, ErrCancelled) || errors.Is(err, ErrTimeout) {
			t.Fatalf("got %v, want ErrCancelled and not ErrTimeout", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled call did not settle")
	}
}

func TestDoTypedReturnsConcreteType(t *testing.T) {
	pool := New()

	type row struct{ ID string }
	got, err := DoTyped(context.Background(), pool, "typed", time.Second, func(ctx context.Context) (*row, error) {
		return &row{ID: "q1"}, nil
	})
	if err != nil {
		t.Fatalf("DoTyped failed: %v", err)
	}
	if got == nil || got.ID != "q1" {
		t.Fatalf("got %+v, want row q1", got)
	}
}
