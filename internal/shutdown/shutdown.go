// Package shutdown coordinates interrupt-safe teardown. The harvester
// checkpoints synchronously, so a clean stop only needs the run context
// cancelled and the browser and checkpoint closed in order.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// Callback is a teardown step run during shutdown.
type Callback func(ctx context.Context) error

// Handler cancels its context on the first interrupt and runs
// registered teardown steps in reverse registration order.
type Handler struct {
	mu       sync.Mutex
	names    []string
	steps    []Callback
	stopping atomic.Bool
	done     chan struct{}
	timeout  time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	sigChan  chan os.Signal
	onDone   func(elapsed time.Duration, errs []error)
}

// Config holds shutdown handler configuration.
type Config struct {
	Timeout time.Duration
	Signals []os.Signal
	OnDone  func(elapsed time.Duration, errs []error)
}

// New creates a shutdown handler listening for the configured signals.
func New(cfg Config) *Handler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if len(cfg.Signals) == 0 {
		cfg.Signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Handler{
		done:    make(chan struct{}),
		timeout: cfg.Timeout,
		ctx:     ctx,
		cancel:  cancel,
		sigChan: make(chan os.Signal, 1),
		onDone:  cfg.OnDone,
	}
	signal.Notify(h.sigChan, cfg.Signals...)
	go h.wait()
	return h
}

// NewDefault creates a handler with default configuration.
func NewDefault() *Handler {
	return New(Config{})
}

// Register adds a named teardown step. Steps run in reverse order.
func (h *Handler) Register(name string, step Callback) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.names = append(h.names, name)
	h.steps = append(h.steps, step)
}

// RegisterCloser adds a teardown step from a plain Close method.
func (h *Handler) RegisterCloser(name string, close func() error) {
	h.Register(name, func(context.Context) error {
		return close()
	})
}

// Context is cancelled when shutdown begins. Pass it to the run.
func (h *Handler) Context() context.Context {
	return h.ctx
}

// Stopping reports whether shutdown has begun.
func (h *Handler) Stopping() bool {
	return h.stopping.Load()
}

// Done is closed once all teardown steps have run.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}

func (h *Handler) wait() {
	select {
	case <-h.sigChan:
		h.Shutdown()
	case <-h.ctx.Done():
	}
}

// Shutdown cancels the context and runs teardown steps LIFO. Safe to
// call more than once; later calls are no-ops.
func (h *Handler) Shutdown() {
	if !h.stopping.CompareAndSwap(false, true) {
		return
	}
	start := time.Now()
	h.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	h.mu.Lock()
	steps := make([]Callback, len(h.steps))
	names := make([]string, len(h.names))
	copy(steps, h.steps)
	copy(names, h.names)
	h.mu.Unlock()

	var errs []error
	for i := len(steps) - 1; i >= 0; i-- {
		if err := h.run(ctx, names[i], steps[i]); err != nil {
			errs = append(errs, err)
		}
	}

	if h.onDone != nil {
		h.onDone(time.Since(start), errs)
	}
	close(h.done)
}

// run executes one step, bounding it by the shutdown timeout.
func (h *Handler) run(ctx context.Context, name string, step Callback) error {
	result := make(chan error, 1)
	go func() { result <- step(ctx) }()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return &TimeoutError{Step: name}
	}
}

// TimeoutError reports a teardown step that exceeded the shutdown
// timeout.
type TimeoutError struct {
	Step string
}

func (e *TimeoutError) Error() string {
	return "shutdown step timed out: " + e.Step
}
