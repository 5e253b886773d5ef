// Package signal converts SIGINT/SIGTERM into a channel close so the worker
// command can drain its task queue instead of dying mid-build. It imports
// only the standard library so any package can use it without cycles.
package signal

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// Handler listens for an interrupt and exposes it two ways: the Interrupted
// channel closes, and the derived context is canceled. The first signal wins;
// repeats are ignored so a double Ctrl+C does not cut a drain short.
type Handler struct {
	ctx         context.Context //nolint:containedctx // the handler owns this context's lifecycle
	cancel      context.CancelFunc
	interrupted chan struct{}
	stop        chan struct{}
	stopOnce    sync.Once
	sigs        chan os.Signal
}

// NewHandler registers for SIGINT and SIGTERM and starts waiting. Callers
// must Stop the handler to unregister, typically via defer.
func NewHandler(parent context.Context) *Handler {
	ctx, cancel := context.WithCancel(parent)
	h := &Handler{
		ctx:         ctx,
		cancel:      cancel,
		interrupted: make(chan struct{}),
		stop:        make(chan struct{}),
		// Buffered so a signal arriving between Notify and the wait
		// goroutine is not lost.
		sigs: make(chan os.Signal, 1),
	}

	signal.Notify(h.sigs, syscall.SIGINT, syscall.SIGTERM)
	go h.wait()

	return h
}

// Context returns the context canceled on interrupt or Stop.
func (h *Handler) Context() context.Context {
	return h.ctx
}

// Interrupted returns the channel closed when a signal arrives.
func (h *Handler) Interrupted() <-chan struct{} {
	return h.interrupted
}

// Stop unregisters the signal handler and cancels the context. Safe to call
// more than once.
func (h *Handler) Stop() {
	h.stopOnce.Do(func() {
		signal.Stop(h.sigs)
		close(h.stop)
		h.cancel()
	})
}

// wait blocks until the first signal, Stop, or parent cancellation.
func (h *Handler) wait() {
	select {
	case <-h.sigs:
		h.cancel()
		close(h.interrupted)
	case <-h.stop:
	case <-h.ctx.Done():
	}
}
