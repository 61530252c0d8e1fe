// Package speech owns spoken output: a single worker draining a FIFO of
// lines through a primary engine with secondary and external fallbacks.
package speech

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Tier names used in logs and metrics.
const (
	TierPrimary   = "primary"
	TierSecondary = "secondary"
	TierExternal  = "external"
)

const (
	defaultQueueSize = 64
	// maxReinits is how many consecutive primary failures trigger a rebuild
	// before the primary is skipped.
	maxReinits    = 2
	fallbackPause = 100 * time.Millisecond
)

// Tier speaks one line synchronously.
type Tier interface {
	Speak(ctx context.Context, text string) error
}

// Engine is a long-lived Tier with an interruptible utterance.
type Engine interface {
	Tier
	Stop()
	Close() error
}

// EngineFactory builds a fresh Engine.
type EngineFactory func() (Engine, error)

// FallbackSource reports whether the external tier should be tried first.
type FallbackSource interface {
	ForceFallback() bool
}

// Observer receives per-tier attempt outcomes. Nil-safe.
type Observer interface {
	RecordSpeech(ctx context.Context, tier, status string)
}

// Worker is the only owner of the primary engine.
type Worker struct {
	primary   EngineFactory
	secondary EngineFactory
	external  Tier
	force     FallbackSource
	logger    *slog.Logger
	observer  Observer
	pause     time.Duration

	queue chan string

	// mu orders Enqueue against Stop so nothing is accepted once stopping
	// is closed.
	mu       sync.RWMutex
	closing  bool
	stopping chan struct{}

	engine   Engine
	failures int
}

// Option configures a Worker.
type Option func(*Worker)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) { w.logger = logger }
}

func WithObserver(observer Observer) Option {
	return func(w *Worker) { w.observer = observer }
}

func WithQueueSize(size int) Option {
	return func(w *Worker) {
		if size > 0 {
			w.queue = make(chan string, size)
		}
	}
}

// WithFallbackPause sets the pause after a fallback attempt.
func WithFallbackPause(d time.Duration) Option {
	return func(w *Worker) { w.pause = d }
}

// NewWorker wires the tier chain. Any of primary, secondary, or external may be nil.
func NewWorker(primary, secondary EngineFactory, external Tier, force FallbackSource, opts ...Option) *Worker {
	w := &Worker{
		primary:   primary,
		secondary: secondary,
		external:  external,
		force:     force,
		pause:     fallbackPause,
		queue:     make(chan string, defaultQueueSize),
		stopping:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Enqueue never blocks. It reports false when the line was dropped, either
// because the queue is full or because Stop was called.
func (w *Worker) Enqueue(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closing {
		w.log(slog.LevelDebug, "speech worker stopping; dropping line", "text", text)
		return false
	}
	select {
	case w.queue <- text:
		return true
	default:
		w.log(slog.LevelWarn, "speech queue full; dropping line", "text", text)
		return false
	}
}

// Stop asks Run to exit once the lines already queued are spoken. It does not
// block on a full queue and may be called more than once.
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closing {
		return
	}
	w.closing = true
	close(w.stopping)
}

// Run drains the queue until Stop or ctx ends. It never returns an error
// from a failed utterance.
func (w *Worker) Run(ctx context.Context) error {
	w.engine = w.build()
	defer w.closeEngine()

	for {
		select {
		case <-ctx.Done():
			return nil
		case text := <-w.queue:
			w.speak(ctx, text)
		case <-w.stopping:
			return w.drainQueued(ctx)
		}
	}
}

// drainQueued speaks what is left after Stop. The queue cannot grow once
// stopping is closed.
func (w *Worker) drainQueued(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case text := <-w.queue:
			w.speak(ctx, text)
		default:
			return nil
		}
	}
}

func (w *Worker) speak(ctx context.Context, text string) {
	if w.force != nil && w.force.ForceFallback() {
		if w.try(ctx, TierExternal, w.external, text) {
			w.failures = 0
			return
		}
	}

	if w.primary == nil {
		w.fallback(ctx, text)
		return
	}

	if w.engine == nil {
		w.engine = w.build()
		if w.engine == nil {
			if w.fallback(ctx, text) {
				w.failures = 0
			}
			return
		}
	}

	if w.failures > maxReinits {
		if w.fallback(ctx, text) {
			w.failures = 0
		}
		w.pauseAfterFallback(ctx)
		return
	}

	w.engine.Stop()
	if w.try(ctx, TierPrimary, w.engine, text) {
		w.failures = 0
		return
	}

	w.failures++
	if w.failures <= maxReinits {
		w.closeEngine()
		w.engine = w.build()
	}
	w.fallback(ctx, text)
	w.pauseAfterFallback(ctx)
}

// fallback tries secondary then external.
func (w *Worker) fallback(ctx context.Context, text string) bool {
	if w.secondary != nil && w.try(ctx, TierSecondary, freshTier(w.secondary), text) {
		return true
	}
	if w.try(ctx, TierExternal, w.external, text) {
		return true
	}
	w.log(slog.LevelError, "all speech tiers failed; dropping line", "text", text)
	return false
}

func (w *Worker) try(ctx context.Context, tier string, t Tier, text string) bool {
	if t == nil {
		return false
	}
	err := t.Speak(ctx, text)
	status := "ok"
	if err != nil {
		status = "error"
		w.log(slog.LevelWarn, "speech tier failed", "tier", tier, "error", err.Error())
	}
	if w.observer != nil {
		w.observer.RecordSpeech(ctx, tier, status)
	}
	return err == nil
}

func (w *Worker) build() Engine {
	if w.primary == nil {
		return nil
	}
	engine, err := w.primary()
	if err != nil {
		w.log(slog.LevelWarn, "speech engine unavailable", "error", err.Error())
		return nil
	}
	return engine
}

func (w *Worker) closeEngine() {
	if w.engine == nil {
		return
	}
	if err := w.engine.Close(); err != nil {
		w.log(slog.LevelDebug, "speech engine close failed", "error", err.Error())
	}
	w.engine = nil
}

func (w *Worker) pauseAfterFallback(ctx context.Context) {
	if w.pause <= 0 {
		return
	}
	t := time.NewTimer(w.pause)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (w *Worker) log(level slog.Level, msg string, args ...any) {
	if w.logger == nil {
		return
	}
	w.logger.Log(context.Background(), level, msg, args...)
}

// freshTier builds an engine per call and closes it afterwards.
type freshTier EngineFactory

func (f freshTier) Speak(ctx context.Context, text string) error {
	engine, err := f()
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()
	return engine.Speak(ctx, text)
}
