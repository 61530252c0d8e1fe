package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/rbright/jarvis/internal/audio"
	"github.com/rbright/jarvis/internal/capture"
	"github.com/rbright/jarvis/internal/config"
	"github.com/rbright/jarvis/internal/dispatch"
	"github.com/rbright/jarvis/internal/fsm"
	"github.com/rbright/jarvis/internal/health"
	"github.com/rbright/jarvis/internal/indicator"
	"github.com/rbright/jarvis/internal/ipc"
	"github.com/rbright/jarvis/internal/mode"
	"github.com/rbright/jarvis/internal/observe"
	"github.com/rbright/jarvis/internal/recognize"
	"github.com/rbright/jarvis/internal/reminder"
	"github.com/rbright/jarvis/internal/router"
	"github.com/rbright/jarvis/internal/runtimecfg"
	"github.com/rbright/jarvis/internal/scheduler"
	"github.com/rbright/jarvis/internal/speech"
	"github.com/rbright/jarvis/internal/store"
	"github.com/rbright/jarvis/internal/ui"
	"github.com/rbright/jarvis/internal/version"
	"github.com/rbright/jarvis/internal/wake"
)

const (
	acquireProbeTimeout = 180 * time.Millisecond
	acquireRetries      = 8
	// speechGrace bounds how long queued lines may keep playing after the
	// other workers have stopped.
	speechGrace = 10 * time.Second
)

// runAssistant owns the process until an exit command, a stop request, EOF
// on typed input, or a signal.
func (r Runner) runAssistant(ctx context.Context, cfg config.Config, logger *slog.Logger, start fsm.Mode) int {
	var listener net.Listener
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		logger.Warn("ipc control disabled", "error", err.Error())
	} else {
		listener, err = ipc.Acquire(ctx, socketPath, acquireProbeTimeout, acquireRetries, func(path string) {
			logger.Warn("removed stale runtime socket", "path", path)
		})
		if err != nil {
			if errors.Is(err, ipc.ErrAlreadyRunning) {
				logger.Warn("another instance owns the runtime socket", "path", socketPath)
			}
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		defer func() {
			_ = listener.Close()
			_ = os.Remove(socketPath)
		}()
	}

	storePath, err := config.ResolveStorePath(cfg.Store.Path)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	st, err := store.Open(ctx, storePath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() { _ = st.Close() }()

	rec, err := recognize.New(cfg.Recognizer.URL,
		recognize.WithLanguage(cfg.Recognizer.Language),
		recognize.WithTimeout(cfg.Recognizer.Timeout()),
		recognize.WithLogger(logger),
	)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	var (
		opsServer   *http.Server
		opsListener net.Listener
	)
	if addr := strings.TrimSpace(cfg.Ops.Listen); addr != "" {
		provider, err := observe.NewProvider(version.Version)
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		defer func() { _ = provider.Shutdown(context.WithoutCancel(ctx)) }()

		opsListener, err = net.Listen("tcp", addr)
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: ops listen %s: %v\n", addr, err)
			return 1
		}
		opsServer = newOpsServer(provider,
			health.Dependency{Name: "store", Ping: st.Ping},
			health.Dependency{Name: "recognizer", Ping: rec.Ready},
		)
	}
	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	runtime := runtimecfg.New(cfg)
	cue := indicator.New(cfg.Indicator, &audio.Player{MediaName: "jarvis cue"}, logger)
	console := ui.NewConsole(r.Stdout, cue)

	engines := speech.EngineFactoryFor(cfg.TTS, func() speech.Player {
		return &audio.Player{MediaName: "jarvis speech"}
	})
	var external speech.Tier
	if len(cfg.TTS.Speak.Argv) > 0 {
		external = speech.CommandTier{Argv: cfg.TTS.Speak.Argv}
	}
	voiceOut := speech.NewWorker(engines, engines, external, runtime,
		speech.WithLogger(logger),
		speech.WithObserver(metrics),
	)
	speaker := speech.NewSpeaker(cfg.Assistant.Name, voiceOut, console, logger)

	timers := scheduler.New(logger)
	commands := dispatch.NewWorker(router.New(router.Deps{
		Identity: cfg.Assistant,
		Runtime:  runtime,
		Timers:   timers,
		Store:    st,
		Speaker:  speaker,
		Devices:  audio.ListDevices,
		Logger:   logger,
	}), logger, metrics)
	reminders := reminder.NewScanner(st, speaker, logger, metrics)

	voice := voiceLoop(ctx, cfg, runtime, rec, speaker, commands, cue, console, metrics, logger)
	controller := mode.New(voice, runtime, speaker, commands, mode.Options{
		Hooks:     console,
		Logger:    logger,
		Observer:  metrics,
		Input:     r.typedInput(),
		PromptOut: r.Stdout,
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Speech outlives runCtx so farewell lines still play during shutdown.
	speechCtx, speechCancel := context.WithCancel(context.WithoutCancel(ctx))
	defer speechCancel()
	speechDone := make(chan struct{})
	go func() {
		defer close(speechDone)
		_ = voiceOut.Run(speechCtx)
	}()

	speaker.Say(router.Greeting(time.Now(), cfg.Assistant.Name, cfg.Assistant.UserName))
	logger.Info("assistant started", "mode", string(start), "voice_available", voice != nil, "store", storePath)

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer cancel()
		return controller.Run(gctx, start)
	})
	g.Go(func() error { return commands.Run(gctx) })
	g.Go(func() error { return reminders.Run(gctx) })
	g.Go(func() error { return timers.Run(gctx) })
	g.Go(func() error {
		select {
		case <-commands.Exit():
			logger.Info("exit requested by command")
			cancel()
		case <-gctx.Done():
		}
		return nil
	})
	if listener != nil {
		ctl := &control{
			mode:      controller,
			status:    console,
			runtime:   runtime,
			console:   console,
			dispatch:  commands,
			stop:      cancel,
			voiceless: voice == nil,
		}
		g.Go(func() error { return ipc.Serve(gctx, listener, ctl) })
	}
	if opsServer != nil {
		g.Go(func() error { return serveOps(gctx, opsServer, opsListener, logger) })
	}

	runErr := g.Wait()

	voiceOut.Stop()
	select {
	case <-speechDone:
	case <-ctx.Done():
		speechCancel()
		<-speechDone
	case <-time.After(speechGrace):
		logger.Warn("speech queue did not drain before shutdown")
		speechCancel()
		<-speechDone
	}
	cue.Dismiss(context.WithoutCancel(ctx))

	if runErr != nil {
		logger.Error("assistant stopped with error", "error", runErr.Error())
		fmt.Fprintf(r.Stderr, "error: %v\n", runErr)
		return 1
	}
	logger.Info("assistant stopped")
	return 0
}

// voiceLoop returns nil when no input device is reachable, which keeps the
// controller in text mode.
func voiceLoop(
	ctx context.Context,
	cfg config.Config,
	runtime *runtimecfg.Runtime,
	rec capture.Recognizer,
	speaker wake.Speaker,
	commands wake.Submitter,
	cue wake.Cue,
	hooks ui.Hooks,
	metrics *observe.Metrics,
	logger *slog.Logger,
) mode.VoiceLoop {
	devices, err := audio.ListDevices(ctx)
	if err != nil {
		logger.Warn("voice input unavailable", "error", err.Error())
		return nil
	}
	if len(devices) == 0 {
		logger.Warn("voice input unavailable", "error", "no input devices")
		return nil
	}

	pick := func(ctx context.Context) (audio.Device, error) {
		if idx, ok := runtime.PrimaryDevice(); ok {
			return audio.SelectDeviceIndex(ctx, idx)
		}
		selection, err := audio.SelectDevice(ctx, cfg.Audio.Input, cfg.Audio.Fallback)
		if err != nil {
			return audio.Device{}, err
		}
		if selection.Warning != "" {
			logger.Warn("audio device fallback", "warning", selection.Warning)
		}
		return selection.Device, nil
	}

	primary := capture.NewPrimary(capture.PulseOpener(pick), runtime, rec, cfg.Audio.SampleRate, logger)
	alternate := capture.NewAlternate(capture.PulseRecorder, runtime, rec, cfg.Audio, logger)
	selector := capture.NewSelector(runtime, primary, alternate, metrics)

	settings := wake.SettingsFrom(cfg.Assistant, indicator.MessagesFromEnv())
	return wake.NewLoop(settings, selector, runtime, speaker, commands, cue, hooks, logger)
}

// typedInput is the explicit Stdin, else a terminal stdin, else nothing.
func (r Runner) typedInput() io.Reader {
	if r.Stdin != nil {
		return r.Stdin
	}
	if isatty.IsTerminal(os.Stdin.Fd()) {
		return os.Stdin
	}
	return nil
}
