// Package doctor runs readiness diagnostics for config, speech tools, audio,
// the recognition service, and the local store.
package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rbright/jarvis/internal/audio"
	"github.com/rbright/jarvis/internal/config"
	"github.com/rbright/jarvis/internal/recognize"
	"github.com/rbright/jarvis/internal/store"
)

const probeTimeout = 2 * time.Second

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, cfg config.Loaded) Report {
	message := fmt.Sprintf("loaded %q", cfg.Path)
	if !cfg.Exists {
		message = fmt.Sprintf("no file at %q; using defaults", cfg.Path)
	}
	checks := []Check{{Name: "config", Pass: true, Message: message}}

	checks = append(checks, checkEnv("XDG_RUNTIME_DIR", func(v string) bool {
		return strings.TrimSpace(v) != ""
	}, "control socket directory is set", "XDG_RUNTIME_DIR is empty; say/mode/stop forwarding is unavailable"))

	checks = append(checks, checkCommand(cfg.Config.TTS.Synth.Argv, "tts.synth"))
	checks = append(checks, checkCommand(cfg.Config.TTS.Speak.Argv, "tts.speak"))
	checks = append(checks, checkAudioSelection(ctx, cfg.Config))
	checks = append(checks, checkRecognizer(ctx, cfg.Config))
	if strings.TrimSpace(cfg.Config.Recognizer.GRPCHealth) != "" {
		checks = append(checks, checkGRPCHealth(ctx, cfg.Config))
	}
	checks = append(checks, checkStore(ctx, cfg.Config))

	return Report{Checks: checks}
}

// checkEnv validates an environment variable through a caller-supplied predicate.
func checkEnv(name string, predicate func(string) bool, okMsg, failMsg string) Check {
	value := os.Getenv(name)
	if predicate(value) {
		return Check{Name: name, Pass: true, Message: okMsg}
	}
	return Check{Name: name, Pass: false, Message: failMsg}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(ctx context.Context, cfg config.Config) Check {
	selection, err := audio.SelectDevice(ctx, cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

// checkRecognizer probes the recognition service over HTTP.
func checkRecognizer(ctx context.Context, cfg config.Config) Check {
	client, err := recognize.New(cfg.Recognizer.URL, recognize.WithTimeout(probeTimeout))
	if err != nil {
		return Check{Name: "recognizer.http", Pass: false, Message: err.Error()}
	}
	if err := client.Ready(ctx); err != nil {
		return Check{Name: "recognizer.http", Pass: false, Message: err.Error()}
	}
	return Check{Name: "recognizer.http", Pass: true, Message: fmt.Sprintf("reachable at %s", cfg.Recognizer.URL)}
}

func checkGRPCHealth(ctx context.Context, cfg config.Config) Check {
	target := cfg.Recognizer.GRPCHealth
	if err := recognize.CheckGRPCHealth(ctx, target, "", probeTimeout); err != nil {
		return Check{Name: "recognizer.grpc", Pass: false, Message: err.Error()}
	}
	return Check{Name: "recognizer.grpc", Pass: true, Message: fmt.Sprintf("serving at %s", target)}
}

// checkStore opens the store, which also applies migrations.
func checkStore(ctx context.Context, cfg config.Config) Check {
	path, err := config.ResolveStorePath(cfg.Store.Path)
	if err != nil {
		return Check{Name: "store", Pass: false, Message: err.Error()}
	}
	db, err := store.Open(ctx, path)
	if err != nil {
		return Check{Name: "store", Pass: false, Message: err.Error()}
	}
	defer db.Close()

	pending, err := db.PendingReminderCount(ctx)
	if err != nil {
		return Check{Name: "store", Pass: false, Message: err.Error()}
	}
	return Check{Name: "store", Pass: true, Message: fmt.Sprintf("%s (%d pending reminders)", path, pending)}
}
