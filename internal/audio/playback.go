package audio

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jfreymuth/pulse"
)

// Player plays mono int16 buffers through PulseAudio. One buffer plays at a
// time; Stop interrupts the buffer in flight.
type Player struct {
	MediaName string

	mu      sync.Mutex
	current *atomic.Bool
}

// Play blocks until samples finish playing, ctx ends, or Stop is called.
func (p *Player) Play(ctx context.Context, samples []int16, sampleRate int) error {
	if len(samples) == 0 {
		return nil
	}
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	halt := &atomic.Bool{}
	p.mu.Lock()
	p.current = halt
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		if p.current == halt {
			p.current = nil
		}
		p.mu.Unlock()
	}()

	cursor := 0
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		if halt.Load() || cursor >= len(samples) {
			return 0, pulse.EndOfData
		}
		n := copy(buf, samples[cursor:])
		cursor += n
		if cursor >= len(samples) {
			return n, pulse.EndOfData
		}
		return n, nil
	})

	name := p.MediaName
	if name == "" {
		name = "jarvis"
	}
	stream, err := client.NewPlayback(
		reader,
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(sampleRate),
		pulse.PlaybackLatency(0.05),
		pulse.PlaybackMediaName(name),
	)
	if err != nil {
		return fmt.Errorf("create pulse playback stream: %w", err)
	}
	defer stream.Close()

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			halt.Store(true)
		case <-done:
		}
	}()
	defer close(done)

	stream.Start()
	stream.Drain()
	if err := stream.Error(); err != nil {
		return fmt.Errorf("playback stream: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

// Stop interrupts the buffer currently playing, if any.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil {
		p.current.Store(true)
	}
}
