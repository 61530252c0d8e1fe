package indicator

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const (
	cueSampleRate = 16000
	cueFileLimit  = 4 * time.Second
	// rampSamples fades each note in and out over 5ms to avoid clicks.
	rampSamples = cueSampleRate / 200
)

type note struct {
	frequencyHz float64
	duration    time.Duration
	volume      float64
}

// chime is a sequence of notes separated by silence.
type chime struct {
	notes []note
	gap   time.Duration
}

// ackChime is the "I'm listening" cue: a rising fifth.
var ackChime = chime{
	notes: []note{
		{frequencyHz: 880, duration: 70 * time.Millisecond, volume: 0.22},
		{frequencyHz: 1320, duration: 90 * time.Millisecond, volume: 0.25},
	},
	gap: 20 * time.Millisecond,
}

var beepPCM = ackChime.render()

func (c chime) render() []int16 {
	var pcm []int16
	silence := make([]int16, samplesForDuration(c.gap))
	for i, n := range c.notes {
		if i > 0 {
			pcm = append(pcm, silence...)
		}
		pcm = append(pcm, n.render()...)
	}
	return pcm
}

func (n note) render() []int16 {
	count := samplesForDuration(n.duration)
	if count <= 0 || n.frequencyHz <= 0 || n.volume <= 0 {
		return nil
	}

	ramp := min(count/10, rampSamples)
	ramp = max(ramp, 1)

	pcm := make([]int16, count)
	step := 2 * math.Pi * n.frequencyHz / cueSampleRate
	for i := range pcm {
		gain := n.volume * envelope(i, count, ramp)
		pcm[i] = int16(math.Round(math.Sin(step*float64(i)) * gain * math.MaxInt16))
	}
	return pcm
}

// envelope is a linear attack and release of ramp samples each.
func envelope(i, count, ramp int) float64 {
	fromEnd := count - 1 - i
	edge := min(i, fromEnd)
	if edge >= ramp {
		return 1
	}
	return float64(edge) / float64(ramp)
}

func samplesForDuration(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * cueSampleRate))
}

// cuePath resolves a configured cue file, expanding a leading ~.
func cuePath(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw != "~" && !strings.HasPrefix(raw, "~/") {
		return raw
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return raw
	}
	return filepath.Join(home, strings.TrimPrefix(raw[1:], "/"))
}

// playCueFile hands a user-supplied cue to PipeWire so any format it
// understands works.
func playCueFile(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("cue file %q: %w", path, err)
	}

	ctx, cancel := context.WithTimeout(ctx, cueFileLimit)
	defer cancel()

	if err := exec.CommandContext(ctx, "pw-play", "--media-role", "Notification", path).Run(); err != nil {
		return fmt.Errorf("pw-play %q: %w", path, err)
	}
	return nil
}
