package capture

import (
	"context"
	"log/slog"
	"time"

	"github.com/rbright/jarvis/internal/audio"
	"github.com/rbright/jarvis/internal/config"
)

// RecordFunc captures a fixed-length buffer from the device at index.
// A negative index selects the system default source.
type RecordFunc func(ctx context.Context, index int, duration time.Duration, sampleRate int) ([]byte, error)

// DeviceIndexSource resolves the alternate recorder device at call time.
type DeviceIndexSource interface {
	AlternateDevice() int
}

// Alternate records fixed-duration windows without phrase detection.
type Alternate struct {
	record        RecordFunc
	devices       DeviceIndexSource
	recognizer    Recognizer
	sampleRate    int
	window        time.Duration
	commandWindow time.Duration
	logger        *slog.Logger
}

func NewAlternate(record RecordFunc, devices DeviceIndexSource, recognizer Recognizer, cfg config.AudioConfig, logger *slog.Logger) *Alternate {
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = audio.DefaultSampleRate
	}
	return &Alternate{
		record:        record,
		devices:       devices,
		recognizer:    recognizer,
		sampleRate:    rate,
		window:        seconds(cfg.RecorderSeconds, 3),
		commandWindow: seconds(cfg.CommandRecorderSeconds, 7),
		logger:        logger,
	}
}

// PulseRecorder records through PulseAudio.
func PulseRecorder(ctx context.Context, index int, duration time.Duration, sampleRate int) ([]byte, error) {
	dev, err := audio.SelectDeviceIndex(ctx, index)
	if err != nil {
		return nil, err
	}
	return audio.Record(ctx, dev, duration, sampleRate)
}

func (a *Alternate) Name() string { return config.BackendAlternate }

func (a *Alternate) Listen(ctx context.Context, req Request) (Result, error) {
	window := a.window
	if req.Command {
		window = a.commandWindow
	}

	index := -1
	if a.devices != nil {
		index = a.devices.AlternateDevice()
	}

	pcm, err := a.record(ctx, index, window, a.sampleRate)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		return Result{}, hardware(err)
	}
	if rms(pcm) == 0 {
		return Result{Backend: a.Name()}, nil
	}
	return transcribe(ctx, a.recognizer, a.logger, a.Name(), pcm, a.sampleRate), nil
}

func seconds(v, fallback float64) time.Duration {
	if v <= 0 {
		v = fallback
	}
	return time.Duration(v * float64(time.Second))
}
