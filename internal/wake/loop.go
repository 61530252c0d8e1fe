package wake

import (
	"context"
	"log/slog"
	"time"

	"github.com/rbright/jarvis/internal/capture"
	"github.com/rbright/jarvis/internal/config"
	"github.com/rbright/jarvis/internal/fsm"
	"github.com/rbright/jarvis/internal/indicator"
	"github.com/rbright/jarvis/internal/ui"
)

// Spoken lines.
const (
	lineIdle          = "Waiting for your command."
	lineSwitchRequest = "Switching to typing mode. You can type your commands."
	lineNoisy         = "It's quite noisy. I'll switch to typing mode so you can type your command."
	lineAltRecorder   = "Switching to an alternative recorder for your microphone."
	lineRobustSpeech  = "I'll also use a more reliable speech system so you can hear me clearly."
	lineNoAudio       = "I lost access to audio input. Switching to text mode."
	lineTextCommand   = "Right away. Switching to typing mode."
	lineAck           = "On it."
	linePrompt        = "Yes?"
	lineNoCommand     = "Sorry, I didn't hear a command."
)

const (
	idlePause       = 250 * time.Millisecond
	fallbackBackoff = 200 * time.Millisecond
)

// ExitReason says why the loop handed control back.
type ExitReason string

const (
	ExitRequested   ExitReason = "requested"
	ExitNoisy       ExitReason = "noisy"
	ExitNoAudio     ExitReason = "no_audio"
	ExitTextCommand ExitReason = "text_command"
)

// Capturer is the backend selector the loop listens through.
type Capturer interface {
	Listen(ctx context.Context, req capture.Request) (capture.Result, error)
	AlternateAvailable() bool
}

// Runtime is the slice of runtime configuration the loop reads and writes.
type Runtime interface {
	SetBackend(backend string)
	SetForceFallback(enabled bool)
	PendingMode() (fsm.Mode, bool)
	ClearModeRequest()
}

type Speaker interface {
	Say(text string)
}

type Submitter interface {
	Submit(text string) bool
}

type Cue interface {
	Beep(ctx context.Context)
}

// Settings are the static knobs of one loop.
type Settings struct {
	WakeWords  []string
	IdlePrompt time.Duration
	MaxMisses  int
	Messages   indicator.Messages
}

// SettingsFrom derives loop settings from config.
func SettingsFrom(cfg config.AssistantConfig, messages indicator.Messages) Settings {
	return Settings{
		WakeWords:  cfg.WakeWords,
		IdlePrompt: time.Duration(cfg.EffectiveIdlePrompt()) * time.Second,
		MaxMisses:  cfg.MaxTimeoutsBeforeText,
		Messages:   messages,
	}
}

type Loop struct {
	settings Settings
	capture  Capturer
	runtime  Runtime
	speaker  Speaker
	submit   Submitter
	cue      Cue
	hooks    ui.Hooks
	logger   *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)

	altAnnounced bool
}

func NewLoop(settings Settings, capturer Capturer, runtime Runtime, speaker Speaker, submit Submitter, cue Cue, hooks ui.Hooks, logger *slog.Logger) *Loop {
	if hooks == nil {
		hooks = ui.Nop{}
	}
	return &Loop{
		settings: settings,
		capture:  capturer,
		runtime:  runtime,
		speaker:  speaker,
		submit:   submit,
		cue:      cue,
		hooks:    hooks,
		logger:   logger,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Run listens until a switch to text input is due or ctx ends. Misses and
// state reset on every call. The alternate-recorder announcement does not.
func (l *Loop) Run(ctx context.Context) (ExitReason, error) {
	state := fsm.StateWaitingForWake
	misses := 0
	var lastPrompt time.Time

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		if mode, ok := l.runtime.PendingMode(); ok {
			if mode == fsm.ModeText {
				l.speaker.Say(lineSwitchRequest)
				return ExitRequested, nil
			}
			l.runtime.ClearModeRequest()
		}

		if l.settings.IdlePrompt > 0 && l.now().Sub(lastPrompt) >= l.settings.IdlePrompt {
			l.hooks.SetStatus(l.settings.Messages.Waiting)
			l.speaker.Say(lineIdle)
			lastPrompt = l.now()
			l.sleep(ctx, idlePause)
		}

		res, err := l.capture.Listen(ctx, capture.Request{})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			if !l.recoverHardware(ctx, err) {
				return ExitNoAudio, nil
			}
			continue
		}
		if !res.Heard {
			misses++
			if l.settings.MaxMisses > 0 && misses >= l.settings.MaxMisses {
				l.speaker.Say(lineNoisy)
				return ExitNoisy, nil
			}
			continue
		}
		misses = 0
		l.hooks.AddHistory("You said: " + res.Text)

		command, woke := Extract(res.Text, l.settings.WakeWords)
		if !woke {
			continue
		}

		if command != "" {
			if l.handleCommand(command) {
				return ExitTextCommand, nil
			}
			state = l.step(state, fsm.EventDispatched)
			continue
		}

		state = l.step(state, fsm.EventWakeOnly)
		if l.cue != nil {
			l.cue.Beep(ctx)
		}
		l.speaker.Say(linePrompt)
		l.hooks.SetStatus(l.settings.Messages.Listening)
		state = l.step(state, fsm.EventPrompted)

		res, err = l.capture.Listen(ctx, capture.Request{Command: true})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			state = l.step(state, fsm.EventHardwareFailure)
			if !l.recoverHardware(ctx, err) {
				return ExitNoAudio, nil
			}
			continue
		}
		if !res.Heard {
			l.speaker.Say(lineNoCommand)
			state = l.step(state, fsm.EventMissed)
			continue
		}
		l.hooks.AddHistory("You said: " + res.Text)

		state = l.step(state, fsm.EventDispatched)
		if l.handleCommand(res.Text) {
			return ExitTextCommand, nil
		}
	}
}

// handleCommand reports true when the command asks for text input.
func (l *Loop) handleCommand(command string) bool {
	l.hooks.SetStatus(l.settings.Messages.Processing)
	if IsTextModePhrase(command) {
		l.speaker.Say(lineTextCommand)
		l.runtime.ClearModeRequest()
		return true
	}
	l.speaker.Say(lineAck)
	if !l.submit.Submit(command) && l.logger != nil {
		l.logger.Warn("command dropped", "text", command)
	}
	return false
}

// recoverHardware moves to the alternate backend when one is available and
// reports whether listening can continue.
func (l *Loop) recoverHardware(ctx context.Context, err error) bool {
	if l.logger != nil {
		l.logger.Error("audio capture failed", "error", err.Error())
	}
	if !l.capture.AlternateAvailable() {
		l.speaker.Say(lineNoAudio)
		return false
	}

	l.runtime.SetBackend(config.BackendAlternate)
	if !l.altAnnounced {
		l.altAnnounced = true
		l.speaker.Say(lineAltRecorder)
		l.runtime.SetForceFallback(true)
		l.speaker.Say(lineRobustSpeech)
	}
	l.sleep(ctx, fallbackBackoff)
	return true
}

func (l *Loop) step(state fsm.State, event fsm.Event) fsm.State {
	next, err := fsm.Transition(state, event)
	if err != nil {
		if l.logger != nil {
			l.logger.Error("wake loop transition rejected", "error", err.Error())
		}
		return fsm.StateWaitingForWake
	}
	return next
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
