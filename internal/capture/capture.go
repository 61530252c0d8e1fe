// Package capture turns microphone audio into recognized text through one
// of two interchangeable backends.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rbright/jarvis/internal/config"
	"github.com/rbright/jarvis/internal/recognize"
)

// ErrHardware marks a device or stream failure. Callers decide on backend
// fallback; backends never retry internally.
var ErrHardware = errors.New("audio capture hardware failure")

// errNoSpeech is the internal soft-miss signal from phrase detection.
var errNoSpeech = errors.New("no speech detected")

// Recognizer converts mono s16le PCM into text.
type Recognizer interface {
	Recognize(ctx context.Context, pcm []byte, sampleRate int) (string, error)
}

// Request shapes one capture call.
type Request struct {
	// Command selects the longer allowance used after a bare wake phrase.
	Command bool
}

// Result is one capture outcome. Heard is false for a soft miss.
type Result struct {
	Text    string
	Heard   bool
	Backend string
}

// Backend is one capture strategy.
type Backend interface {
	Name() string
	Listen(ctx context.Context, req Request) (Result, error)
}

// Observer receives capture outcomes for metrics. Nil-safe.
type Observer interface {
	RecordCapture(ctx context.Context, backend, outcome string)
}

func hardware(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrHardware) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrHardware, err)
}

// transcribe submits pcm and normalizes the text. Service failures and empty
// text both become a soft miss.
func transcribe(ctx context.Context, rec Recognizer, logger *slog.Logger, backend string, pcm []byte, sampleRate int) Result {
	if len(pcm) == 0 {
		return Result{Backend: backend}
	}
	text, err := rec.Recognize(ctx, pcm, sampleRate)
	if err != nil {
		if logger != nil {
			level := slog.LevelWarn
			if !errors.Is(err, recognize.ErrService) {
				level = slog.LevelError
			}
			logger.Log(ctx, level, "recognition failed; treating as no speech", "backend", backend, "error", err.Error())
		}
		return Result{Backend: backend}
	}
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return Result{Backend: backend}
	}
	return Result{Text: text, Heard: true, Backend: backend}
}

// BackendSelector reports which backend should run next.
type BackendSelector interface {
	Backend() string
}

// Selector dispatches each Listen to the backend chosen at call time.
type Selector struct {
	runtime   BackendSelector
	primary   Backend
	alternate Backend
	observer  Observer
}

func NewSelector(runtime BackendSelector, primary, alternate Backend, observer Observer) *Selector {
	return &Selector{runtime: runtime, primary: primary, alternate: alternate, observer: observer}
}

// Active returns the backend name the next Listen will use.
func (s *Selector) Active() string {
	if s.runtime.Backend() == config.BackendAlternate && s.alternate != nil {
		return config.BackendAlternate
	}
	if s.primary == nil && s.alternate != nil {
		return config.BackendAlternate
	}
	return config.BackendPrimary
}

// AlternateAvailable reports whether a fallback backend exists and is not already active.
func (s *Selector) AlternateAvailable() bool {
	return s.alternate != nil && s.Active() != config.BackendAlternate
}

func (s *Selector) Listen(ctx context.Context, req Request) (Result, error) {
	backend := s.primary
	if s.Active() == config.BackendAlternate {
		backend = s.alternate
	}
	if backend == nil {
		return Result{}, fmt.Errorf("%w: no capture backend configured", ErrHardware)
	}

	res, err := backend.Listen(ctx, req)
	if s.observer != nil {
		outcome := "heard"
		switch {
		case err != nil:
			outcome = "hardware_error"
		case !res.Heard:
			outcome = "no_speech"
		}
		s.observer.RecordCapture(ctx, backend.Name(), outcome)
	}
	return res, err
}
