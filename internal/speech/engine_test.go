package speech

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rbright/jarvis/internal/config"
	"github.com/rbright/jarvis/internal/recognize"
	"github.com/stretchr/testify/require"
)

type fakePlayer struct {
	mu      sync.Mutex
	samples []int16
	rate    int
	stops   int
	err     error
}

func (p *fakePlayer) Play(_ context.Context, samples []int16, sampleRate int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.samples = append([]int16(nil), samples...)
	p.rate = sampleRate
	return p.err
}

func (p *fakePlayer) Stop() {
	p.mu.Lock()
	p.stops++
	p.mu.Unlock()
}

func pcm16(values ...int16) []byte {
	out := make([]byte, len(values)*2)
	for i, v := range values {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

func writeScript(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("#!/usr/bin/env bash\nset -euo pipefail\n"+body), 0o755))
	return path
}

func TestDecodeWAVMono(t *testing.T) {
	data := recognize.EncodeWAV(pcm16(0, 1200, -1200, 32767), 22050, 1)

	samples, rate, err := decodeWAV(data)
	require.NoError(t, err)
	require.Equal(t, 22050, rate)
	require.Equal(t, []int16{0, 1200, -1200, 32767}, samples)
}

func TestDecodeWAVDownmixesStereo(t *testing.T) {
	data := recognize.EncodeWAV(pcm16(100, 300, -200, -400), 16000, 2)

	samples, _, err := decodeWAV(data)
	require.NoError(t, err)
	require.Equal(t, []int16{200, -300}, samples)
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	_, _, err := decodeWAV([]byte("definitely not audio"))
	require.Error(t, err)
}

func TestApplyVolumeClamps(t *testing.T) {
	samples := []int16{1000, -1000, 30000}
	applyVolume(samples, 2)
	require.Equal(t, []int16{2000, -2000, 32767}, samples)

	unchanged := []int16{5, -5}
	applyVolume(unchanged, 1)
	require.Equal(t, []int16{5, -5}, unchanged)
}

func TestCommandEngineSpeakPlaysSynthesizedPCM(t *testing.T) {
	wavPath := filepath.Join(t.TempDir(), "speech.wav")
	require.NoError(t, os.WriteFile(wavPath, recognize.EncodeWAV(pcm16(10, 20, 30), 22050, 1), 0o644))
	argsPath := filepath.Join(t.TempDir(), "args.txt")
	synth := writeScript(t, "synth.sh", `printf '%s\n' "$@" > "`+argsPath+`"
cat "`+wavPath+`"
`)

	player := &fakePlayer{}
	cfg := config.TTSConfig{
		Rate:   185,
		Volume: 1,
		Voice:  "en-gb",
		Synth:  config.CommandConfig{Argv: []string{synth, "--stdout"}},
	}
	engine, err := NewCommandEngine(cfg, player)
	require.NoError(t, err)

	require.NoError(t, engine.Speak(context.Background(), "Good evening, sir."))
	require.Equal(t, []int16{10, 20, 30}, player.samples)
	require.Equal(t, 22050, player.rate)

	args, err := os.ReadFile(argsPath)
	require.NoError(t, err)
	require.Equal(t, []string{"--stdout", "-s", "185", "-v", "en-gb", "Good evening, sir."},
		strings.Split(strings.TrimSpace(string(args)), "\n"))

	require.NoError(t, engine.Close())
	require.Equal(t, 1, player.stops)
}

func TestCommandEngineSynthFailureCarriesStderr(t *testing.T) {
	synth := writeScript(t, "fail.sh", "echo 'voice not found' >&2\nexit 3\n")
	engine, err := NewCommandEngine(config.TTSConfig{Synth: config.CommandConfig{Argv: []string{synth}}}, &fakePlayer{})
	require.NoError(t, err)

	err = engine.Speak(context.Background(), "hello")
	require.Error(t, err)
	require.Contains(t, err.Error(), "voice not found")
}

func TestNewCommandEngineMissingBinary(t *testing.T) {
	_, err := NewCommandEngine(config.TTSConfig{
		Synth: config.CommandConfig{Argv: []string{"jarvis-no-such-synthesizer"}},
	}, &fakePlayer{})
	require.Error(t, err)

	_, err = NewCommandEngine(config.TTSConfig{}, &fakePlayer{})
	require.Error(t, err)
}

func TestCommandTierPassesTextLast(t *testing.T) {
	outPath := filepath.Join(t.TempDir(), "said.txt")
	speak := writeScript(t, "speak.sh", `printf '%s\n' "$@" > "`+outPath+`"
`)

	tier := CommandTier{Argv: []string{speak, "--wait"}}
	require.NoError(t, tier.Speak(context.Background(), "Reminder: stretch"))

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	require.Equal(t, "--wait\nReminder: stretch\n", string(data))
}

func TestCommandTierFailure(t *testing.T) {
	speak := writeScript(t, "fail.sh", "echo 'no speech dispatcher' >&2\nexit 1\n")

	err := CommandTier{Argv: []string{speak}}.Speak(context.Background(), "hello")
	require.Error(t, err)
	require.Contains(t, err.Error(), "no speech dispatcher")

	require.Error(t, CommandTier{}.Speak(context.Background(), "hello"))
}
