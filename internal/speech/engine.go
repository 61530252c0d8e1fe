package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/rbright/jarvis/internal/config"
)

const decodeBlockSamples = 4096

// Player plays mono int16 PCM. audio.Player satisfies it.
type Player interface {
	Play(ctx context.Context, samples []int16, sampleRate int) error
	Stop()
}

// CommandEngine synthesizes WAV on a command's stdout and plays it in process.
type CommandEngine struct {
	argv   []string
	rate   int
	voice  string
	volume float64
	player Player

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewCommandEngine fails when the synthesizer binary cannot be found.
func NewCommandEngine(cfg config.TTSConfig, player Player) (*CommandEngine, error) {
	if len(cfg.Synth.Argv) == 0 {
		return nil, errors.New("synthesizer command is empty")
	}
	if player == nil {
		return nil, errors.New("synthesizer player is nil")
	}
	if _, err := exec.LookPath(cfg.Synth.Argv[0]); err != nil {
		return nil, fmt.Errorf("synthesizer %q: %w", cfg.Synth.Argv[0], err)
	}
	return &CommandEngine{
		argv:   append([]string(nil), cfg.Synth.Argv...),
		rate:   cfg.Rate,
		voice:  strings.TrimSpace(cfg.Voice),
		volume: cfg.Volume,
		player: player,
	}, nil
}

// EngineFactoryFor returns a factory building CommandEngines from cfg.
func EngineFactoryFor(cfg config.TTSConfig, player func() Player) EngineFactory {
	return func() (Engine, error) {
		return NewCommandEngine(cfg, player())
	}
}

func (e *CommandEngine) args(text string) []string {
	args := append([]string(nil), e.argv[1:]...)
	if e.rate > 0 {
		args = append(args, "-s", strconv.Itoa(e.rate))
	}
	if e.voice != "" {
		args = append(args, "-v", e.voice)
	}
	return append(args, text)
}

func (e *CommandEngine) Speak(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()
	defer func() {
		cancel()
		e.mu.Lock()
		e.cancel = nil
		e.mu.Unlock()
	}()

	synthCtx, synthCancel := context.WithTimeout(ctx, 20*time.Second)
	defer synthCancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(synthCtx, e.argv[0], e.args(text)...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("run synthesizer %s: %w (%s)", e.argv[0], err, msg)
		}
		return fmt.Errorf("run synthesizer %s: %w", e.argv[0], err)
	}

	samples, sampleRate, err := decodeWAV(out)
	if err != nil {
		return err
	}
	applyVolume(samples, e.volume)

	if err := e.player.Play(ctx, samples, sampleRate); err != nil {
		return fmt.Errorf("play synthesized speech: %w", err)
	}
	return nil
}

// Stop interrupts synthesis or playback in flight.
func (e *CommandEngine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	e.player.Stop()
}

func (e *CommandEngine) Close() error {
	e.Stop()
	return nil
}

// decodeWAV reads block-wise so streaming headers with placeholder sizes
// don't force a huge allocation.
func decodeWAV(data []byte) ([]int16, int, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, 0, errors.New("synthesizer output is not a valid wav stream")
	}
	if dec.WavAudioFormat != 1 {
		return nil, 0, fmt.Errorf("synthesizer wav format %d is not PCM", dec.WavAudioFormat)
	}

	channels := int(dec.NumChans)
	if channels <= 0 {
		channels = 1
	}
	shift := int(dec.BitDepth) - 16

	samples := make([]int16, 0, len(data)/2)
	buf := &goaudio.IntBuffer{Data: make([]int, decodeBlockSamples*channels)}
	for {
		n, err := dec.PCMBuffer(buf)
		if err != nil {
			return nil, 0, fmt.Errorf("decode synthesizer wav: %w", err)
		}
		if n == 0 {
			break
		}
		for i := 0; i+channels <= n; i += channels {
			sum := 0
			for c := 0; c < channels; c++ {
				sum += buf.Data[i+c]
			}
			samples = append(samples, toInt16(sum/channels, shift))
		}
	}
	return samples, int(dec.SampleRate), nil
}

func toInt16(v int, shift int) int16 {
	switch {
	case shift > 0:
		v >>= shift
	case shift == -8:
		// 8-bit wav is unsigned.
		v = (v - 128) << 8
	case shift < 0:
		v <<= -shift
	}
	return clamp16(float64(v))
}

func applyVolume(samples []int16, volume float64) {
	if volume <= 0 || volume == 1 {
		return
	}
	for i, s := range samples {
		samples[i] = clamp16(float64(s) * volume)
	}
}

func clamp16(v float64) int16 {
	switch {
	case v > 32767:
		return 32767
	case v < -32768:
		return -32768
	default:
		return int16(v)
	}
}
