package app

import (
	"context"
	"testing"

	"github.com/rbright/jarvis/internal/config"
	"github.com/rbright/jarvis/internal/fsm"
	"github.com/rbright/jarvis/internal/ipc"
	"github.com/rbright/jarvis/internal/runtimecfg"
	"github.com/stretchr/testify/require"
)

type fixedMode fsm.Mode

func (m fixedMode) Mode() fsm.Mode { return fsm.Mode(m) }

type fixedStatus string

func (s fixedStatus) Status() string { return string(s) }

type queue struct {
	accept bool
	got    []string
}

func (q *queue) Submit(text string) bool {
	if !q.accept {
		return false
	}
	q.got = append(q.got, text)
	return true
}

func newControl(mode fsm.Mode) (*control, *runtimecfg.Runtime, *queue, *queue, *int) {
	rt := runtimecfg.New(config.Default())
	console := &queue{accept: true}
	commands := &queue{accept: true}
	stops := 0
	return &control{
		mode:     fixedMode(mode),
		status:   fixedStatus("Listening…"),
		runtime:  rt,
		console:  console,
		dispatch: commands,
		stop:     func() { stops++ },
	}, rt, console, commands, &stops
}

func TestControlStatus(t *testing.T) {
	ctl, rt, _, _, _ := newControl(fsm.ModeVoice)
	rt.SetForceFallback(true)

	resp := ctl.Handle(context.Background(), ipc.Request{Command: ipc.CommandStatus})
	require.Equal(t, ipc.Response{
		OK:      true,
		Mode:    "voice",
		State:   "Listening…",
		Message: "backend=primary force_fallback=true",
	}, resp)
}

func TestControlSayPrefersConsole(t *testing.T) {
	ctl, _, console, commands, _ := newControl(fsm.ModeText)

	resp := ctl.Handle(context.Background(), ipc.Request{Command: ipc.CommandSay, Text: "  what time is it "})
	require.True(t, resp.OK)
	require.Equal(t, []string{"what time is it"}, console.got)
	require.Empty(t, commands.got)

	console.accept = false
	resp = ctl.Handle(context.Background(), ipc.Request{Command: ipc.CommandSay, Text: "what's the date"})
	require.True(t, resp.OK)
	require.Equal(t, []string{"what's the date"}, commands.got)

	commands.accept = false
	resp = ctl.Handle(context.Background(), ipc.Request{Command: ipc.CommandSay, Text: "hello"})
	require.False(t, resp.OK)
	require.Equal(t, "command queue is full", resp.Error)

	resp = ctl.Handle(context.Background(), ipc.Request{Command: ipc.CommandSay})
	require.False(t, resp.OK)
}

func TestControlModeRequestsSwitch(t *testing.T) {
	ctl, rt, _, _, _ := newControl(fsm.ModeVoice)

	resp := ctl.Handle(context.Background(), ipc.Request{Command: ipc.CommandMode, Text: "Text"})
	require.True(t, resp.OK)
	require.Equal(t, "switching to text mode", resp.Message)
	pending, ok := rt.PendingMode()
	require.True(t, ok)
	require.Equal(t, fsm.ModeText, pending)

	rt.ClearModeRequest()
	resp = ctl.Handle(context.Background(), ipc.Request{Command: ipc.CommandMode, Text: "voice"})
	require.True(t, resp.OK)
	require.Equal(t, "already in voice mode", resp.Message)
	_, ok = rt.PendingMode()
	require.False(t, ok)

	resp = ctl.Handle(context.Background(), ipc.Request{Command: ipc.CommandMode, Text: "telepathy"})
	require.False(t, resp.OK)
}

func TestControlRefusesVoiceWithoutCapture(t *testing.T) {
	ctl, rt, _, _, _ := newControl(fsm.ModeText)
	ctl.voiceless = true

	resp := ctl.Handle(context.Background(), ipc.Request{Command: ipc.CommandMode, Text: "voice"})
	require.False(t, resp.OK)
	require.Equal(t, "voice input isn't available", resp.Error)
	require.Equal(t, "text", resp.Mode)
	_, ok := rt.PendingMode()
	require.False(t, ok)

	resp = ctl.Handle(context.Background(), ipc.Request{Command: ipc.CommandMode, Text: "text"})
	require.True(t, resp.OK)
	require.Equal(t, "already in text mode", resp.Message)
}

func TestControlStopAndUnknown(t *testing.T) {
	ctl, _, _, _, stops := newControl(fsm.ModeVoice)

	resp := ctl.Handle(context.Background(), ipc.Request{Command: ipc.CommandStop})
	require.True(t, resp.OK)
	require.Equal(t, 1, *stops)

	resp = ctl.Handle(context.Background(), ipc.Request{Command: "toggle"})
	require.False(t, resp.OK)
	require.Contains(t, resp.Error, "unsupported command")
}
