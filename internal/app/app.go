package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/rbright/jarvis/internal/audio"
	"github.com/rbright/jarvis/internal/cli"
	"github.com/rbright/jarvis/internal/config"
	"github.com/rbright/jarvis/internal/doctor"
	"github.com/rbright/jarvis/internal/fsm"
	"github.com/rbright/jarvis/internal/ipc"
	"github.com/rbright/jarvis/internal/logging"
	"github.com/rbright/jarvis/internal/store"
	"github.com/rbright/jarvis/internal/version"
)

const forwardTimeout = 220 * time.Millisecond

// Runner executes one CLI invocation. Stdin, when set, is the typed-input
// source for the assistant; otherwise a terminal stdin is used.
type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Stdin  io.Reader
	Logger *slog.Logger
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("jarvis"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("jarvis"))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	logRuntime, err := logging.New()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("load config failed", "error", err.Error())
		return 1
	}
	logRuntime.SetLevel(cfgLoaded.Config.Log.Level)
	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandDoctor:
		report := doctor.Run(ctx, cfgLoaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandDevices:
		return r.commandDevices(ctx)
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandStop:
		return r.forwardOrFail(ctx, ipc.Request{Command: ipc.CommandStop})
	case cli.CommandSay:
		return r.forwardOrFail(ctx, ipc.Request{Command: ipc.CommandSay, Text: parsed.Text})
	case cli.CommandMode:
		return r.forwardOrFail(ctx, ipc.Request{Command: ipc.CommandMode, Text: parsed.Text})
	case cli.CommandRemind:
		return r.commandRemind(ctx, cfgLoaded.Config, parsed.Minutes, parsed.Text)
	case cli.CommandRun:
		start, err := fsm.ParseMode(strings.ToLower(strings.TrimSpace(cfgLoaded.Config.Assistant.StartMode)))
		if err != nil {
			start = fsm.ModeVoice
		}
		return r.runAssistant(ctx, cfgLoaded.Config, logger, start)
	case cli.CommandText:
		return r.runAssistant(ctx, cfgLoaded.Config, logger, fsm.ModeText)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func (r Runner) commandDevices(ctx context.Context) int {
	devices, err := audio.ListDevices(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio devices found")
		return 1
	}

	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		availability := "yes"
		if !device.Available {
			availability = "no"
		}
		muted := "no"
		if device.Muted {
			muted = "yes"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s %d: id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			defaultMark,
			device.Index,
			device.ID,
			device.Description,
			device.State,
			availability,
			muted,
		)
	}

	return 0
}

func (r Runner) commandStatus(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}

	resp, handled, err := ipc.Forward(ctx, socketPath, ipc.Request{Command: ipc.CommandStatus}, forwardTimeout)
	if !handled {
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	state := resp.State
	if state == "" {
		state = "idle"
	}
	if resp.Mode != "" {
		fmt.Fprintf(r.Stdout, "%s mode: %s\n", resp.Mode, state)
	} else {
		fmt.Fprintln(r.Stdout, state)
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

func (r Runner) forwardOrFail(ctx context.Context, req ipc.Request) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	resp, handled, err := ipc.Forward(ctx, socketPath, req, forwardTimeout)
	if !handled {
		fmt.Fprintln(r.Stderr, "error: jarvis is not running")
		return 1
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

// commandRemind writes straight to the store; a running instance picks the
// reminder up on its next scan.
func (r Runner) commandRemind(ctx context.Context, cfg config.Config, minutes int, text string) int {
	path, err := config.ResolveStorePath(cfg.Store.Path)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	st, err := store.Open(ctx, path)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() { _ = st.Close() }()

	due := time.Now().Add(time.Duration(minutes) * time.Minute)
	if _, err := st.AddReminder(ctx, text, due); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	unit := "minutes"
	if minutes == 1 {
		unit = "minute"
	}
	fmt.Fprintf(r.Stdout, "reminder set for %d %s\n", minutes, unit)
	return 0
}
