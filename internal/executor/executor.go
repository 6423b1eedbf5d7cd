package executor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"vertbot/internal/logger"
)

var ErrStopped = errors.New("executor stopped")

type task struct {
	ctx  context.Context
	fn   func(ctx context.Context) error
	done chan error // nil for fire-and-forget
	name string
}

// Executor runs submitted closures one at a time on a single goroutine.
// Everything that mutates monitor state (price caches, announcement records,
// report state) goes through it, so that state needs no locks.
type Executor struct {
	tasks   chan task
	stopped chan struct{}
}

func New(queue int) *Executor {
	if queue < 1 {
		queue = 1
	}
	return &Executor{
		tasks:   make(chan task, queue),
		stopped: make(chan struct{}),
	}
}

// Run processes tasks until ctx is cancelled.
func (e *Executor) Run(ctx context.Context) {
	defer close(e.stopped)
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-e.tasks:
			err := runTask(t)
			if t.done != nil {
				t.done <- err
			} else if err != nil {
				logger.ErrorWithErr(t.ctx, "Background task failed", err, "task", t.name)
			}
		}
	}
}

// Do runs fn on the executor and waits for it to finish.
func (e *Executor) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	t := task{ctx: ctx, fn: fn, done: make(chan error, 1)}
	select {
	case e.tasks <- t:
	case <-e.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-t.done:
		return err
	case <-e.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit queues fn without waiting. It returns false if the executor has stopped.
func (e *Executor) Submit(ctx context.Context, name string, fn func(ctx context.Context) error) bool {
	select {
	case e.tasks <- task{ctx: ctx, fn: fn, name: name}:
		return true
	case <-e.stopped:
		return false
	case <-ctx.Done():
		return false
	}
}

func runTask(t task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	if t.ctx.Err() != nil {
		return t.ctx.Err()
	}
	return t.fn(t.ctx)
}

// Inline runs closures on the calling goroutine. Used where the caller is
// already the only goroutine touching the state, and in tests.
type Inline struct{}

func (Inline) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return runTask(task{ctx: ctx, fn: fn})
}
