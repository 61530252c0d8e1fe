// Package indicator plays the acknowledgement cue and mirrors assistant
// status into desktop notifications.
package indicator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/jarvis/internal/config"
)

const (
	notifyTimeout   = 400 * time.Millisecond
	statusTimeoutMS = 4000
)

// Player plays mono int16 PCM. audio.Player satisfies it.
type Player interface {
	Play(ctx context.Context, samples []int16, sampleRate int) error
}

// Indicator is safe for concurrent use.
type Indicator struct {
	cfg    config.IndicatorConfig
	player Player
	logger *slog.Logger

	mu             sync.Mutex
	notificationID uint32
	soundMu        sync.Mutex
}

func New(cfg config.IndicatorConfig, player Player, logger *slog.Logger) *Indicator {
	return &Indicator{cfg: cfg, player: player, logger: logger}
}

// Beep plays the acknowledgement cue and returns once it has finished, so a
// following capture does not record it.
func (i *Indicator) Beep(ctx context.Context) {
	if !i.cfg.SoundEnable {
		return
	}
	i.soundMu.Lock()
	defer i.soundMu.Unlock()

	if path := cuePath(i.cfg.CueFile); path != "" {
		err := playCueFile(ctx, path)
		if err == nil {
			return
		}
		i.log("indicator cue file failed; using synthesized tone", err)
	}
	if i.player == nil {
		return
	}

	playCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := i.player.Play(playCtx, beepPCM, cueSampleRate); err != nil {
		i.log("indicator audio cue failed", err)
	}
}

// ShowStatus replaces the current status notification.
func (i *Indicator) ShowStatus(ctx context.Context, text string) {
	if !i.cfg.DesktopNotify || strings.TrimSpace(text) == "" {
		return
	}
	i.run(ctx, func(ctx context.Context) error {
		i.mu.Lock()
		replaceID := i.notificationID
		i.mu.Unlock()

		id, err := desktopNotify(ctx, i.appName(), replaceID, text, statusTimeoutMS)
		if err != nil {
			return err
		}

		i.mu.Lock()
		i.notificationID = id
		i.mu.Unlock()
		return nil
	})
}

// Dismiss closes the current status notification, if any.
func (i *Indicator) Dismiss(ctx context.Context) {
	if !i.cfg.DesktopNotify {
		return
	}
	i.mu.Lock()
	id := i.notificationID
	i.notificationID = 0
	i.mu.Unlock()
	if id == 0 {
		return
	}
	i.run(ctx, func(ctx context.Context) error {
		return desktopDismiss(ctx, id)
	})
}

func (i *Indicator) appName() string {
	name := strings.TrimSpace(i.cfg.DesktopAppName)
	if name == "" {
		return "jarvis"
	}
	return name
}

// run executes a notification call with a bounded timeout.
func (i *Indicator) run(ctx context.Context, fn func(context.Context) error) {
	runCtx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()
	if err := fn(runCtx); err != nil {
		i.log("indicator dispatch failed", err)
	}
}

func (i *Indicator) log(message string, err error) {
	if i.logger == nil || err == nil {
		return
	}
	i.logger.Debug(message, "error", err.Error())
}
