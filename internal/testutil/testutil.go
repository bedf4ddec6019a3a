// Package testutil holds helpers shared by taskpool tests.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"
)

// TestTimeout is the default timeout for tests
const TestTimeout = 5 * time.Second

// WithTimeout creates a context with the default test timeout
func WithTimeout(t *testing.T) (context.Context, context.CancelFunc) {
	t.Helper()
	return context.WithTimeout(context.Background(), TestTimeout)
}

// Eventually polls cond every interval and fails the test if it has not
// returned true within timeout.
func Eventually(t *testing.T, cond func() bool, timeout, interval time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %s", timeout)
		}
		time.Sleep(interval)
	}
}

// Drain reads ch until it is closed and returns everything read. It fails
// the test if ch is still open after TestTimeout.
func Drain[V any](t *testing.T, ch <-chan V) []V {
	t.Helper()
	var out []V
	timer := time.NewTimer(TestTimeout)
	defer timer.Stop()
	for {
		select {
		case v, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, v)
		case <-timer.C:
			t.Fatalf("channel not closed within %s (read %d values)", TestTimeout, len(out))
			return out
		}
	}
}

// Receive reads one value from ch, failing the test after TestTimeout.
func Receive[V any](t *testing.T, ch <-chan V) V {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(TestTimeout):
		t.Fatalf("no value received within %s", TestTimeout)
	}
	var zero V
	return zero
}

// Gate blocks callers of Wait until Open is called. It lets tests hold
// handlers mid-task deterministically.
type Gate struct {
	once    sync.Once
	ch      chan struct{}
	entered chan struct{}
}

// NewGate creates a closed gate. entered receives one signal per Wait
// call, buffered up to capacity.
func NewGate(capacity int) *Gate {
	return &Gate{
		ch:      make(chan struct{}),
		entered: make(chan struct{}, capacity),
	}
}

// Wait signals arrival and blocks until the gate opens or ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	select {
	case <-g.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Entered returns the arrival channel.
func (g *Gate) Entered() <-chan struct{} {
	return g.entered
}

// Open releases all current and future waiters. It is idempotent.
func (g *Gate) Open() {
	g.once.Do(func() { close(g.ch) })
}

// CallbackTracker records calls made to a callback from any goroutine.
type CallbackTracker struct {
	mu    sync.Mutex
	calls int
	args  []interface{}
}

// NewCallbackTracker creates an empty tracker.
func NewCallbackTracker() *CallbackTracker {
	return &CallbackTracker{}
}

// Mark records one call with an optional argument.
func (c *CallbackTracker) Mark(arg ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if len(arg) > 0 {
		c.args = append(c.args, arg[0])
	}
}

// CallCount returns the number of recorded calls.
func (c *CallbackTracker) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Args returns a copy of the recorded arguments in call order.
func (c *CallbackTracker) Args() []interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]interface{}(nil), c.args...)
}
