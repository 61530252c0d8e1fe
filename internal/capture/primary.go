package capture

import (
	"context"
	"encoding/binary"
	"errors"
	"log/slog"
	"math"

	"github.com/rbright/jarvis/internal/audio"
	"github.com/rbright/jarvis/internal/config"
)

const (
	// minPhraseSeconds discards clicks and pops shorter than this.
	minPhraseSeconds = 0.3
	// dynamicDamping and dynamicRatio drive threshold adaptation during silence.
	dynamicDamping = 0.15
	dynamicRatio   = 1.5
)

// Stream is an open capture producing fixed-size PCM chunks.
type Stream interface {
	Chunks() <-chan []byte
	Close()
}

// OpenFunc opens a device stream for one Listen call.
type OpenFunc func(ctx context.Context, sampleRate int) (Stream, error)

// TuningSource resolves effective recognition tuning at call time.
type TuningSource interface {
	Recognition() config.RecognitionConfig
}

// Primary listens on a device stream with energy-based phrase detection.
type Primary struct {
	open       OpenFunc
	tuning     TuningSource
	recognizer Recognizer
	sampleRate int
	logger     *slog.Logger
}

func NewPrimary(open OpenFunc, tuning TuningSource, recognizer Recognizer, sampleRate int, logger *slog.Logger) *Primary {
	if sampleRate <= 0 {
		sampleRate = audio.DefaultSampleRate
	}
	return &Primary{
		open:       open,
		tuning:     tuning,
		recognizer: recognizer,
		sampleRate: sampleRate,
		logger:     logger,
	}
}

// PulseOpener opens the source picked by pick on each call.
func PulseOpener(pick func(ctx context.Context) (audio.Device, error)) OpenFunc {
	return func(ctx context.Context, sampleRate int) (Stream, error) {
		dev, err := pick(ctx)
		if err != nil {
			return nil, err
		}
		return audio.OpenStream(ctx, dev, sampleRate)
	}
}

func (p *Primary) Name() string { return config.BackendPrimary }

// Listen opens the stream for this call only and releases it on every path.
func (p *Primary) Listen(ctx context.Context, req Request) (Result, error) {
	tuning := p.tuning.Recognition()
	phraseLimit := tuning.PhraseTimeLimit
	if req.Command {
		phraseLimit = tuning.CommandPhraseTimeLimit
	}

	listenCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := p.open(listenCtx, p.sampleRate)
	if err != nil {
		return Result{}, hardware(err)
	}
	defer stream.Close()

	det := newDetector(tuning, p.sampleRate)
	if tuning.AdjustDuration > 0 {
		if err := det.calibrate(listenCtx, stream.Chunks(), tuning.AdjustDuration); err != nil {
			return p.streamErr(ctx, err)
		}
	}

	pcm, err := det.listen(listenCtx, stream.Chunks(), tuning.ListenTimeout, phraseLimit)
	if err != nil {
		if errors.Is(err, errNoSpeech) {
			return Result{Backend: p.Name()}, nil
		}
		return p.streamErr(ctx, err)
	}

	return transcribe(ctx, p.recognizer, p.logger, p.Name(), pcm, p.sampleRate), nil
}

func (p *Primary) streamErr(ctx context.Context, err error) (Result, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Result{}, ctxErr
	}
	return Result{}, hardware(err)
}

var errStreamClosed = errors.New("capture stream closed unexpectedly")

// detector is an energy-threshold phrase detector. Time is counted in
// samples consumed, not wall-clock.
type detector struct {
	dynamic     bool
	threshold   float64
	pause       int
	nonSpeaking int
	minPhrase   int
	sampleRate  int
}

func newDetector(tuning config.RecognitionConfig, sampleRate int) *detector {
	d := &detector{
		dynamic:    tuning.DynamicEnergy,
		threshold:  float64(tuning.EnergyThreshold),
		sampleRate: sampleRate,
	}
	d.pause = d.samples(tuning.PauseThreshold)
	d.nonSpeaking = d.samples(tuning.NonSpeakingDuration)
	d.minPhrase = d.samples(minPhraseSeconds)
	return d
}

func (d *detector) samples(secs float64) int {
	return int(math.Round(secs * float64(d.sampleRate)))
}

func (d *detector) adapt(energy float64, samples int) {
	damping := math.Pow(dynamicDamping, float64(samples)/float64(d.sampleRate))
	target := energy * dynamicRatio
	d.threshold = d.threshold*damping + target*(1-damping)
}

// calibrate adapts the threshold to ambient noise for the given duration.
// It runs whatever DynamicEnergy says; that flag only governs adaptation
// while waiting for speech.
func (d *detector) calibrate(ctx context.Context, chunks <-chan []byte, duration float64) error {
	want := d.samples(duration)
	for elapsed := 0; elapsed < want; {
		chunk, err := next(ctx, chunks)
		if err != nil {
			return err
		}
		n := len(chunk) / 2
		elapsed += n
		d.adapt(rms(chunk), n)
	}
	return nil
}

// listen waits up to timeout seconds for speech, then records until pause
// seconds of silence or phraseLimit seconds of phrase. A timeout <= 0 waits
// indefinitely.
func (d *detector) listen(ctx context.Context, chunks <-chan []byte, timeout, phraseLimit float64) ([]byte, error) {
	w := &waitBudget{limited: timeout > 0, remaining: d.samples(timeout)}
	limit := 0
	if phraseLimit > 0 {
		limit = d.samples(phraseLimit)
	}
	for {
		pcm, err := d.listenOnce(ctx, chunks, w, limit)
		if err != nil || pcm != nil {
			return pcm, err
		}
	}
}

type waitBudget struct {
	limited   bool
	remaining int
}

func (w *waitBudget) spend(samples int) bool {
	if !w.limited {
		return true
	}
	w.remaining -= samples
	return w.remaining >= 0
}

// listenOnce returns (nil, nil) when a detected phrase was too short and
// waiting should resume with the remaining budget.
func (d *detector) listenOnce(ctx context.Context, chunks <-chan []byte, wait *waitBudget, limit int) ([]byte, error) {
	var preRoll [][]byte
	preRollSamples := 0

	var first []byte
	for {
		chunk, err := next(ctx, chunks)
		if err != nil {
			return nil, err
		}
		n := len(chunk) / 2
		if !wait.spend(n) {
			return nil, errNoSpeech
		}

		energy := rms(chunk)
		if energy > d.threshold {
			first = chunk
			break
		}
		if d.dynamic {
			d.adapt(energy, n)
		}

		preRoll = append(preRoll, chunk)
		preRollSamples += n
		for len(preRoll) > 1 && preRollSamples-len(preRoll[0])/2 >= d.nonSpeaking {
			preRollSamples -= len(preRoll[0]) / 2
			preRoll = preRoll[1:]
		}
	}

	phrase := make([]byte, 0, len(first)*64)
	for _, c := range preRoll {
		phrase = append(phrase, c...)
	}
	phrase = append(phrase, first...)

	phraseSamples := len(first) / 2
	spoken := phraseSamples
	silence := 0
	for limit <= 0 || phraseSamples < limit {
		chunk, err := next(ctx, chunks)
		if errors.Is(err, errStreamClosed) {
			break
		}
		if err != nil {
			return nil, err
		}
		n := len(chunk) / 2
		phrase = append(phrase, chunk...)
		phraseSamples += n

		if rms(chunk) > d.threshold {
			silence = 0
			spoken += n
			continue
		}
		silence += n
		if silence >= d.pause {
			break
		}
	}

	if spoken < d.minPhrase {
		if !wait.spend(phraseSamples) {
			return nil, errNoSpeech
		}
		return nil, nil
	}
	return phrase, nil
}

func next(ctx context.Context, chunks <-chan []byte) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case chunk, ok := <-chunks:
		if !ok {
			return nil, errStreamClosed
		}
		return chunk, nil
	}
}

// rms returns the root-mean-square amplitude of s16le PCM.
func rms(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}
