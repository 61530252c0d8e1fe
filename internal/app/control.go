package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/rbright/jarvis/internal/fsm"
	"github.com/rbright/jarvis/internal/ipc"
	"github.com/rbright/jarvis/internal/runtimecfg"
)

type modeSource interface {
	Mode() fsm.Mode
}

type statusSource interface {
	Status() string
}

type controlRuntime interface {
	RequestMode(mode fsm.Mode)
	Snapshot() runtimecfg.Snapshot
}

type submitter interface {
	Submit(text string) bool
}

// control answers IPC requests against a running assistant. Said text goes
// to the console first so it follows the active mode's routing; the
// dispatcher is used directly when nothing is registered there.
type control struct {
	mode     modeSource
	status   statusSource
	runtime  controlRuntime
	console  submitter
	dispatch submitter
	stop     func()
	// voiceless is set when no capture backend could be built.
	voiceless bool
}

func (c *control) Handle(_ context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandStatus:
		snap := c.runtime.Snapshot()
		return ipc.Response{
			OK:      true,
			Mode:    string(c.mode.Mode()),
			State:   c.status.Status(),
			Message: fmt.Sprintf("backend=%s force_fallback=%t", snap.Backend, snap.ForceFallback),
		}
	case ipc.CommandSay:
		text := strings.TrimSpace(req.Text)
		if text == "" {
			return ipc.Response{OK: false, Error: "say requires text"}
		}
		if !c.console.Submit(text) && !c.dispatch.Submit(text) {
			return ipc.Response{OK: false, Error: "command queue is full"}
		}
		return ipc.Response{OK: true, Message: "queued"}
	case ipc.CommandMode:
		target, err := fsm.ParseMode(strings.ToLower(strings.TrimSpace(req.Text)))
		if err != nil {
			return ipc.Response{OK: false, Error: err.Error()}
		}
		if target == fsm.ModeVoice && c.voiceless {
			return ipc.Response{OK: false, Mode: string(c.mode.Mode()), Error: "voice input isn't available"}
		}
		if c.mode.Mode() == target {
			return ipc.Response{OK: true, Mode: string(target), Message: fmt.Sprintf("already in %s mode", target)}
		}
		c.runtime.RequestMode(target)
		return ipc.Response{OK: true, Mode: string(target), Message: fmt.Sprintf("switching to %s mode", target)}
	case ipc.CommandStop:
		c.stop()
		return ipc.Response{OK: true, Message: "stopping"}
	default:
		return ipc.Response{OK: false, Error: fmt.Sprintf("unsupported command %q", req.Command)}
	}
}
