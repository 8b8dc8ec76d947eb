// Package shutdown turns SIGINT/SIGTERM into context cancellation. The first
// signal cancels the returned context so the run can settle; a second one
// exits the process immediately.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"
)

// Handler watches for termination signals.
type Handler struct {
	signals <-chan os.Signal
	exit    func(code int)
	logger  *zap.Logger
	stop    func()
}

// Option customises a Handler.
type Option func(*Handler)

// WithSignals replaces the OS signal source; used by tests.
func WithSignals(ch <-chan os.Signal) Option {
	return func(h *Handler) {
		h.signals = ch
		h.stop = func() {}
	}
}

// WithExit replaces os.Exit; used by tests.
func WithExit(exit func(code int)) Option {
	return func(h *Handler) { h.exit = exit }
}

// New builds a Handler listening for SIGINT and SIGTERM.
func New(logger *zap.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{exit: os.Exit, logger: logger.Named("shutdown")}
	for _, opt := range opts {
		opt(h)
	}
	if h.signals == nil {
		ch := make(chan os.Signal, 2)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		h.signals = ch
		h.stop = func() { signal.Stop(ch) }
	}
	return h
}

// Context derives a context cancelled by the first signal. The returned stop
// function releases the signal subscription.
func (h *Handler) Context(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	go func() {
		select {
		case sig := <-h.signals:
			h.logger.Warn("signal received, finishing in-flight work; send again to force exit",
				zap.String("signal", sig.String()))
			cancel()
		case <-done:
			return
		}
		select {
		case sig := <-h.signals:
			h.logger.Error("second signal received, forcing exit", zap.String("signal", sig.String()))
			_ = h.logger.Sync()
			h.exit(1)
		case <-done:
		}
	}()
	var once sync.Once
	return ctx, func() {
		once.Do(func() {
			close(done)
			h.stop()
			cancel()
		})
	}
}
