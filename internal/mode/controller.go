// Package mode supervises the switch between voice and typed input.
package mode

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/rbright/jarvis/internal/fsm"
	"github.com/rbright/jarvis/internal/ui"
	"github.com/rbright/jarvis/internal/wake"
)

const (
	// Prompt is printed before each typed command.
	Prompt = "Type a command (or 'exit' to quit; type 'voice mode' to switch back)> "

	lineToVoice     = "Switching to voice mode. Say 'Hey Jarvis' when you're ready."
	lineNoVoice     = "Voice input isn't available right now. Keep typing."
	submitQueueSize = 16
)

var voicePhrases = map[string]struct{}{
	"voice mode":      {},
	"switch to voice": {},
	"start listening": {},
	"voice":           {},
	"back to voice":   {},
}

// IsVoiceModePhrase reports whether typed text asks to return to voice input.
func IsVoiceModePhrase(text string) bool {
	_, ok := voicePhrases[strings.ToLower(strings.TrimSpace(text))]
	return ok
}

// VoiceLoop is the wake-word loop.
type VoiceLoop interface {
	Run(ctx context.Context) (wake.ExitReason, error)
}

type Runtime interface {
	PendingMode() (fsm.Mode, bool)
	ClearModeRequest()
	Changes() <-chan struct{}
}

type Speaker interface {
	Say(text string)
}

type Dispatcher interface {
	Submit(text string) bool
}

// Observer counts mode transitions. Nil-safe.
type Observer interface {
	RecordModeSwitch(ctx context.Context, to string)
}

// Controller owns the outer loop. Typed input arrives from an optional line
// reader and from ui submit callbacks.
type Controller struct {
	voice    VoiceLoop
	runtime  Runtime
	speaker  Speaker
	dispatch Dispatcher
	hooks    ui.Hooks
	logger   *slog.Logger
	observer Observer

	input  io.Reader
	prompt io.Writer

	submitted chan string
	linesOnce sync.Once
	lines     <-chan string

	mu   sync.RWMutex
	mode fsm.Mode
}

// Options are the optional collaborators of a Controller.
type Options struct {
	Hooks    ui.Hooks
	Logger   *slog.Logger
	Observer Observer
	// Input is read line by line in text mode. Nil disables the line reader.
	Input io.Reader
	// PromptOut receives the typing prompt. Nil disables it.
	PromptOut io.Writer
}

// New builds a controller. voice may be nil when no capture backend exists.
func New(voice VoiceLoop, runtime Runtime, speaker Speaker, dispatch Dispatcher, opts Options) *Controller {
	hooks := opts.Hooks
	if hooks == nil {
		hooks = ui.Nop{}
	}
	return &Controller{
		voice:     voice,
		runtime:   runtime,
		speaker:   speaker,
		dispatch:  dispatch,
		hooks:     hooks,
		logger:    opts.Logger,
		observer:  opts.Observer,
		input:     opts.Input,
		prompt:    opts.PromptOut,
		submitted: make(chan string, submitQueueSize),
	}
}

// Mode reports the active input mode.
func (c *Controller) Mode() fsm.Mode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mode
}

func (c *Controller) setMode(ctx context.Context, mode fsm.Mode) {
	c.mu.Lock()
	prev := c.mode
	c.mode = mode
	c.mu.Unlock()
	if prev != mode && prev != "" && c.observer != nil {
		c.observer.RecordModeSwitch(ctx, string(mode))
	}
	if c.logger != nil {
		c.logger.Info("input mode", "mode", string(mode))
	}
}

// Run alternates between modes until ctx ends or typed input reaches EOF.
func (c *Controller) Run(ctx context.Context, start fsm.Mode) error {
	c.hooks.SetOnSubmit(c.onSubmit)
	defer c.hooks.SetOnSubmit(nil)

	mode := start
	if mode == fsm.ModeVoice && c.voice == nil {
		mode = fsm.ModeText
	}
	if mode == fsm.ModeText {
		c.enterText(ctx)
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		switch mode {
		case fsm.ModeVoice:
			c.setMode(ctx, fsm.ModeVoice)
			reason, err := c.voice.Run(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("voice loop: %w", err)
			}
			if c.logger != nil {
				c.logger.Info("voice loop handed over to typing", "reason", string(reason))
			}
			c.enterText(ctx)
			mode = fsm.ModeText

		default:
			err := c.runText(ctx)
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			if err != nil {
				return err
			}
			mode = fsm.ModeVoice
		}
	}
}

func (c *Controller) enterText(ctx context.Context) {
	c.hooks.SetTypingEnabled(true)
	c.runtime.ClearModeRequest()
	c.setMode(ctx, fsm.ModeText)
}

func (c *Controller) enterVoice() {
	c.speaker.Say(lineToVoice)
	c.runtime.ClearModeRequest()
	c.hooks.SetTypingEnabled(false)
}

// runText returns nil when voice input should resume.
func (c *Controller) runText(ctx context.Context) error {
	lines := c.lineSource(ctx)
	c.printPrompt()

	for {
		if mode, ok := c.runtime.PendingMode(); ok {
			if mode == fsm.ModeVoice && c.voice != nil {
				c.enterVoice()
				return nil
			}
			c.runtime.ClearModeRequest()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.runtime.Changes():
		case text := <-c.submitted:
			if c.handleTyped(text) {
				return nil
			}
		case line, ok := <-lines:
			if !ok {
				return io.EOF
			}
			if c.handleTyped(line) {
				return nil
			}
			c.printPrompt()
		}
	}
}

// handleTyped reports true when voice input should resume.
func (c *Controller) handleTyped(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	c.hooks.AddHistory("You typed: " + text)
	if IsVoiceModePhrase(text) {
		if c.voice == nil {
			c.speaker.Say(lineNoVoice)
			return false
		}
		c.enterVoice()
		return true
	}
	if !c.dispatch.Submit(text) && c.logger != nil {
		c.logger.Warn("typed command dropped", "text", text)
	}
	return false
}

// onSubmit routes externally submitted text: queued as typed input in text
// mode, dispatched directly in voice mode.
func (c *Controller) onSubmit(text string) {
	if c.Mode() != fsm.ModeText {
		c.dispatch.Submit(text)
		return
	}
	select {
	case c.submitted <- text:
	default:
		if c.logger != nil {
			c.logger.Warn("typed input queue full; dropping", "text", text)
		}
	}
}

// lineSource starts the line reader once. A nil channel blocks forever. The
// reader stops forwarding once ctx ends; a blocked Read is left to the
// process exit.
func (c *Controller) lineSource(ctx context.Context) <-chan string {
	c.linesOnce.Do(func() {
		if c.input == nil {
			return
		}
		ch := make(chan string)
		go func() {
			defer close(ch)
			scanner := bufio.NewScanner(c.input)
			for scanner.Scan() {
				select {
				case ch <- scanner.Text():
				case <-ctx.Done():
					return
				}
			}
		}()
		c.lines = ch
	})
	return c.lines
}

func (c *Controller) printPrompt() {
	if c.prompt == nil {
		return
	}
	_, _ = io.WriteString(c.prompt, Prompt)
}
