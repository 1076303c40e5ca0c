package server

import (
	"context"
	"io"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
)

// Coordinator turns an asynchronous stop request into state the accept loop
// can observe.
//
// It is Running until Request is called and ShutdownRequested afterwards.
// Request cancels the coordinator's context and closes the attached
// listener, which makes a blocked Accept return. A Session blocked reading
// from its peer is not interrupted; it ends when the peer closes or errors.
type Coordinator struct {
	requested atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc

	mu       sync.Mutex
	listener io.Closer
}

// NewCoordinator returns a running Coordinator whose context derives from
// parent. Cancelling parent does not by itself request shutdown.
func NewCoordinator(parent context.Context) *Coordinator {
	ctx, cancel := context.WithCancel(parent)
	return &Coordinator{ctx: ctx, cancel: cancel}
}

// Context is cancelled once shutdown is requested.
func (c *Coordinator) Context() context.Context {
	return c.ctx
}

// Requested reports whether shutdown has been requested.
func (c *Coordinator) Requested() bool {
	return c.requested.Load()
}

// Request moves the coordinator to ShutdownRequested. Only the first call
// has an effect. It sets the flag, cancels the context and closes the
// attached listener; everything else is left to the main flow.
func (c *Coordinator) Request() {
	if c.requested.Swap(true) {
		return
	}
	c.cancel()

	c.mu.Lock()
	l := c.listener
	c.listener = nil
	c.mu.Unlock()
	if l != nil {
		l.Close()
	}
}

// Attach shares the listening socket with the coordinator. If shutdown was
// already requested, l is closed at once.
func (c *Coordinator) Attach(l io.Closer) {
	c.mu.Lock()
	if !c.requested.Load() {
		c.listener = l
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	l.Close()
}

// Detach forgets the attached listener, returning it if it was still open.
func (c *Coordinator) Detach() io.Closer {
	c.mu.Lock()
	defer c.mu.Unlock()
	l := c.listener
	c.listener = nil
	return l
}

// stopSignals is signal.Stop, replaced in tests.
var stopSignals = signal.Stop

// Notify calls Request when one of sigs arrives, SIGINT and SIGTERM if none
// are given. onSignal, if not nil, is called with the signal after Request.
// Only the first signal is handled: delivery stops right after it, so a
// repeated signal gets its default action. The returned stop function ends
// signal delivery early.
func (c *Coordinator) Notify(onSignal func(os.Signal), sigs ...os.Signal) (stop func()) {
	if len(sigs) == 0 {
		sigs = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, sigs...)

	done := make(chan struct{})
	var once sync.Once
	release := func() {
		once.Do(func() { stopSignals(sigCh) })
	}
	go func() {
		select {
		case sig := <-sigCh:
			c.Request()
			release()
			if onSignal != nil {
				onSignal(sig)
			}
		case <-done:
		}
	}()

	var closeOnce sync.Once
	return func() {
		release()
		closeOnce.Do(func() { close(done) })
	}
}
