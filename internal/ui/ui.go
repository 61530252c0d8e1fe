// Package ui defines the presentation hooks the runtime reports through.
package ui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Hooks receive status, history, and input-mode changes. Implementations
// must be safe for concurrent use.
type Hooks interface {
	SetStatus(status string)
	AddHistory(line string)
	SetTypingEnabled(enabled bool)
	SetOnSubmit(fn func(text string))
}

// Nop discards everything.
type Nop struct{}

func (Nop) SetStatus(string)         {}
func (Nop) AddHistory(string)        {}
func (Nop) SetTypingEnabled(bool)    {}
func (Nop) SetOnSubmit(func(string)) {}

// StatusSink mirrors status text somewhere visible, such as a desktop notification.
type StatusSink interface {
	ShowStatus(ctx context.Context, text string)
}

// Console prints history lines and forwards status to an optional sink.
// Submit injects typed commands from another source (IPC) into whatever
// callback is registered.
type Console struct {
	out  io.Writer
	sink StatusSink

	mu       sync.Mutex
	status   string
	typing   bool
	onSubmit func(string)
}

func NewConsole(out io.Writer, sink StatusSink) *Console {
	if out == nil {
		out = io.Discard
	}
	return &Console{out: out, sink: sink}
}

func (c *Console) SetStatus(status string) {
	c.mu.Lock()
	c.status = status
	c.mu.Unlock()
	if c.sink != nil {
		c.sink.ShowStatus(context.Background(), status)
	}
}

func (c *Console) AddHistory(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintln(c.out, line)
}

func (c *Console) SetTypingEnabled(enabled bool) {
	c.mu.Lock()
	c.typing = enabled
	c.mu.Unlock()
}

func (c *Console) SetOnSubmit(fn func(string)) {
	c.mu.Lock()
	c.onSubmit = fn
	c.mu.Unlock()
}

// Submit hands text to the registered callback. It reports false when no
// callback is registered or the text is blank.
func (c *Console) Submit(text string) bool {
	text = strings.TrimSpace(text)
	c.mu.Lock()
	fn := c.onSubmit
	c.mu.Unlock()
	if fn == nil || text == "" {
		return false
	}
	fn(text)
	return true
}

// Status returns the last status set.
func (c *Console) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// TypingEnabled reports whether typed input is currently accepted.
func (c *Console) TypingEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.typing
}
