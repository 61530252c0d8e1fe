package app

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rbright/jarvis/internal/ipc"
	"github.com/rbright/jarvis/internal/store"
	"github.com/stretchr/testify/require"
)

func TestExecuteHelp(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"--help"}, &stdout, &stderr)
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "Usage:")
	require.Empty(t, stderr.String())
}

func TestExecuteVersion(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"version"}, &stdout, &stderr)
	require.Equal(t, 0, exitCode)
	require.True(t, strings.HasPrefix(stdout.String(), "jarvis "))
}

func TestExecuteUnknownCommand(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"dance"}, &stdout, &stderr)
	require.Equal(t, 2, exitCode)
	require.Contains(t, stderr.String(), "unknown command")
	require.Contains(t, stderr.String(), "Usage:")
}

func TestExecuteInvalidConfigFails(t *testing.T) {
	paths := setupRunnerEnv(t)
	require.NoError(t, os.WriteFile(paths.configPath, []byte("log:\n  level: chatty\n"), 0o600))

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	exitCode := Execute(context.Background(), []string{"--config", paths.configPath, "status"}, &stdout, &stderr)
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "log.level")
}

func TestRunnerStatusIdleWithoutInstance(t *testing.T) {
	paths := setupRunnerEnv(t)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "status"})
	require.Equal(t, 0, exitCode)
	require.Equal(t, "idle\n", stdout.String())
}

func TestRunnerStatusPrintsModeAndState(t *testing.T) {
	paths := setupRunnerEnv(t)

	shutdown := startIPCServerForRunnerTest(t, paths.socketPath(), func(_ context.Context, req ipc.Request) ipc.Response {
		require.Equal(t, ipc.CommandStatus, req.Command)
		return ipc.Response{OK: true, Mode: "voice", State: "Listening…", Message: "backend=primary force_fallback=false"}
	})
	defer shutdown()

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "status"})
	require.Equal(t, 0, exitCode)
	require.Equal(t, "voice mode: Listening…\nbackend=primary force_fallback=false\n", stdout.String())
	require.Empty(t, stderr.String())
}

func TestRunnerStatusFallsBackToIdleWhenServerStateEmpty(t *testing.T) {
	paths := setupRunnerEnv(t)

	shutdown := startIPCServerForRunnerTest(t, paths.socketPath(), func(_ context.Context, req ipc.Request) ipc.Response {
		return ipc.Response{OK: true, State: ""}
	})
	defer shutdown()

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "status"})
	require.Equal(t, 0, exitCode)
	require.Equal(t, "idle\n", stdout.String())
}

func TestRunnerStopWithoutInstanceFails(t *testing.T) {
	paths := setupRunnerEnv(t)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "stop"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "error: jarvis is not running")
}

func TestRunnerSayForwardsText(t *testing.T) {
	paths := setupRunnerEnv(t)

	var (
		mu  sync.Mutex
		got ipc.Request
	)
	shutdown := startIPCServerForRunnerTest(t, paths.socketPath(), func(_ context.Context, req ipc.Request) ipc.Response {
		mu.Lock()
		got = req
		mu.Unlock()
		return ipc.Response{OK: true, Message: "queued"}
	})
	defer shutdown()

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "say", "what", "time", "is", "it"})
	require.Equal(t, 0, exitCode)
	require.Equal(t, "queued\n", stdout.String())

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, ipc.Request{Command: ipc.CommandSay, Text: "what time is it"}, got)
}

func TestRunnerModeReportsServerError(t *testing.T) {
	paths := setupRunnerEnv(t)

	shutdown := startIPCServerForRunnerTest(t, paths.socketPath(), func(_ context.Context, req ipc.Request) ipc.Response {
		require.Equal(t, ipc.Request{Command: ipc.CommandMode, Text: "text"}, req)
		return ipc.Response{OK: false, Error: "mode switch refused"}
	})
	defer shutdown()

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "mode", "TEXT"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "mode switch refused")
}

func TestRunnerRemindWritesStore(t *testing.T) {
	paths := setupRunnerEnv(t)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "remind", "15", "stretch", "your", "legs"})
	require.Equal(t, 0, exitCode, stderr.String())
	require.Equal(t, "reminder set for 15 minutes\n", stdout.String())

	st, err := store.Open(context.Background(), filepath.Join(paths.dataHome, "jarvis", "jarvis.db"))
	require.NoError(t, err)
	defer func() { require.NoError(t, st.Close()) }()

	count, err := st.PendingReminderCount(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, count)

	due, err := st.DueReminders(context.Background(), time.Now().Add(16*time.Minute))
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, "stretch your legs", due[0].Text)
}

func TestRunnerDoctorCommandDispatchesAndPrintsReport(t *testing.T) {
	paths := setupRunnerEnv(t)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "doctor"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stdout.String(), "[OK] config: loaded")
	require.Contains(t, stdout.String(), "XDG_RUNTIME_DIR")
	require.Contains(t, stdout.String(), "[FAIL] recognizer.http")
}

func TestRunnerDevicesCommandDispatches(t *testing.T) {
	paths := setupRunnerEnv(t)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "devices"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "error:")
}

func TestRunnerTextSessionExitsOnEOFAndCleansUp(t *testing.T) {
	paths := setupRunnerEnv(t)

	stdout := &lockedBuffer{}
	var stderr bytes.Buffer
	runner := Runner{Stdout: stdout, Stderr: &stderr, Stdin: strings.NewReader("take a note water the plants\n")}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "text"})
	require.Equal(t, 0, exitCode, stderr.String())
	require.Contains(t, stdout.String(), "Good ")
	require.Contains(t, stdout.String(), "You typed: take a note water the plants")

	_, statErr := os.Stat(paths.socketPath())
	require.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestRunnerRefusesSecondInstance(t *testing.T) {
	paths := setupRunnerEnv(t)

	shutdown := startIPCServerForRunnerTest(t, paths.socketPath(), func(context.Context, ipc.Request) ipc.Response {
		return ipc.Response{OK: true, Mode: "voice"}
	})
	defer shutdown()

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr, Stdin: strings.NewReader("")}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "text"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "jarvis is already running")

	// The live instance keeps its socket.
	_, statErr := os.Stat(paths.socketPath())
	require.NoError(t, statErr)
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type runnerPaths struct {
	configPath string
	runtimeDir string
	dataHome   string
}

func (p runnerPaths) socketPath() string {
	return filepath.Join(p.runtimeDir, "jarvis.sock")
}

// testConfig points every external collaborator somewhere unreachable so
// commands fail fast instead of touching the host's audio or speech stack.
const testConfig = `recognizer:
  url: http://127.0.0.1:1
  timeout_ms: 200
tts:
  synth_cmd: jarvis-test-missing-synth
  speak_cmd: jarvis-test-missing-speak
indicator:
  sound_enable: false
`

func setupRunnerEnv(t *testing.T) runnerPaths {
	t.Helper()

	runtimeDir := t.TempDir()
	dataHome := t.TempDir()
	t.Setenv("XDG_STATE_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", dataHome)
	t.Setenv("XDG_RUNTIME_DIR", runtimeDir)
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")
	for _, key := range []string{
		"JARVIS_RECOGNIZER_URL", "JARVIS_RECOGNIZER_GRPC_HEALTH", "JARVIS_AUDIO_BACKEND",
		"JARVIS_AUDIO_INPUT", "JARVIS_STORE_PATH", "JARVIS_OPS_LISTEN", "JARVIS_LOG_LEVEL",
		"JARVIS_START_MODE", "JARVIS_USER_NAME", "JARVIS_TTS_FORCE_FALLBACK",
	} {
		t.Setenv(key, "")
	}

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(testConfig), 0o600))

	return runnerPaths{configPath: configPath, runtimeDir: runtimeDir, dataHome: dataHome}
}

func startIPCServerForRunnerTest(t *testing.T, socketPath string, handler func(context.Context, ipc.Request) ipc.Response) func() {
	t.Helper()

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ipc.Serve(ctx, listener, ipc.HandlerFunc(handler))
	}()

	return func() {
		cancel()
		require.NoError(t, <-done)
	}
}
