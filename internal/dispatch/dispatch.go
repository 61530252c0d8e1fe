// Package dispatch runs recognized or typed commands one at a time.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
)

const defaultQueueSize = 32

// Handler executes one command. Returning true requests process exit.
type Handler interface {
	Handle(ctx context.Context, text string) (exit bool)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, text string) bool

func (f HandlerFunc) Handle(ctx context.Context, text string) bool { return f(ctx, text) }

// Observer receives dispatch outcomes. Nil-safe.
type Observer interface {
	RecordCommand(ctx context.Context, outcome string)
}

type item struct {
	text string
	stop bool
}

// Worker is a single FIFO consumer.
type Worker struct {
	handler  Handler
	logger   *slog.Logger
	observer Observer

	queue    chan item
	exit     chan struct{}
	exitOnce sync.Once
}

func NewWorker(handler Handler, logger *slog.Logger, observer Observer) *Worker {
	return &Worker{
		handler:  handler,
		logger:   logger,
		observer: observer,
		queue:    make(chan item, defaultQueueSize),
		exit:     make(chan struct{}),
	}
}

// Submit queues text without blocking. It reports false when the queue is full.
func (w *Worker) Submit(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	select {
	case w.queue <- item{text: text}:
		return true
	default:
		if w.logger != nil {
			w.logger.Warn("command queue full; dropping command", "text", text)
		}
		return false
	}
}

// Stop asks Run to return after the commands already queued.
func (w *Worker) Stop() {
	select {
	case w.queue <- item{stop: true}:
	default:
	}
}

// Exit closes when a handler asks for process exit.
func (w *Worker) Exit() <-chan struct{} {
	return w.exit
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case it := <-w.queue:
			if it.stop {
				return nil
			}
			if w.handle(ctx, it.text) {
				w.exitOnce.Do(func() { close(w.exit) })
				return nil
			}
		}
	}
}

func (w *Worker) handle(ctx context.Context, text string) (exit bool) {
	outcome := "ok"
	defer func() {
		if r := recover(); r != nil {
			exit = false
			outcome = "panic"
			if w.logger != nil {
				w.logger.Error("command handler panicked",
					"text", text,
					"panic", fmt.Sprint(r),
					"stack", string(debug.Stack()),
				)
			}
		}
		if w.observer != nil {
			w.observer.RecordCommand(ctx, outcome)
		}
	}()

	if w.logger != nil {
		w.logger.Info("dispatching command", "text", text)
	}
	exit = w.handler.Handle(ctx, text)
	if exit {
		outcome = "exit"
	}
	return exit
}
