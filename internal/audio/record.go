package audio

import (
	"context"
	"fmt"
	"time"
)

// Record captures a fixed-duration PCM buffer (mono s16le) from device.
// It returns early with what was captured if ctx ends first.
func Record(ctx context.Context, device Device, duration time.Duration, sampleRate int) ([]byte, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("record duration must be > 0")
	}
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}

	recordCtx, cancel := context.WithTimeout(ctx, duration+2*time.Second)
	defer cancel()

	stream, err := OpenStream(recordCtx, device, sampleRate)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	return collect(recordCtx, stream.Chunks(), BytesFor(duration, sampleRate)), nil
}

// collect reads chunks until want bytes arrive, the channel closes, or ctx ends.
func collect(ctx context.Context, chunks <-chan []byte, want int) []byte {
	out := make([]byte, 0, want)
	for len(out) < want {
		select {
		case <-ctx.Done():
			return out
		case chunk, ok := <-chunks:
			if !ok {
				return out
			}
			out = append(out, chunk...)
		}
	}
	return out[:want]
}

// BytesFor returns the mono s16 byte count for duration at sampleRate.
func BytesFor(duration time.Duration, sampleRate int) int {
	samples := int(duration.Seconds() * float64(sampleRate))
	return samples * 2
}

// DurationOf returns the playback length of mono s16 PCM at sampleRate.
func DurationOf(pcm []byte, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := len(pcm) / 2
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
