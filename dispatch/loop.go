// Package dispatch delivers run events to the attached listener on a single
// UI-affine execution context.
package dispatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Executor runs posted tasks on one execution context, in posting order.
// Post must never block the caller.
type Executor interface {
	Post(task func())
}

// Ensure Loop implements Executor at compile time.
var _ Executor = (*Loop)(nil)

// Loop is an Executor backed by a single goroutine draining an unbounded
// FIFO queue. It stands in for a UI main thread.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	closed bool

	wake   chan struct{}
	stopCh chan struct{}
	doneCh chan struct{}

	closeOnce sync.Once
	logger    *slog.Logger
}

// NewLoop starts a Loop. A nil logger discards output.
func NewLoop(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	l := &Loop{
		wake:   make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		logger: logger,
	}
	go l.run()
	return l
}

// Post enqueues task. Tasks posted after Close are dropped.
func (l *Loop) Post(task func()) {
	if task == nil {
		return
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, task)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Close runs the tasks already queued and stops the loop. It blocks until
// the loop exits or ctx is done. Calling Close more than once is safe.
func (l *Loop) Close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		l.mu.Unlock()
		close(l.stopCh)
	})
	select {
	case <-l.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dispatch loop close wait: %w", ctx.Err())
	}
}

func (l *Loop) run() {
	defer close(l.doneCh)
	for {
		select {
		case <-l.wake:
			l.drain()
		case <-l.stopCh:
			l.drain()
			return
		}
	}
}

func (l *Loop) drain() {
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		for _, task := range batch {
			l.exec(task)
		}
	}
}

func (l *Loop) exec(task func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("dispatch task panicked", "panic", r)
		}
	}()
	task()
}
