package capture

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rbright/jarvis/internal/config"
	"github.com/rbright/jarvis/internal/recognize"
	"github.com/stretchr/testify/require"
)

const testRate = 16000

// chunk returns 20ms of constant-amplitude PCM.
func chunk(amplitude int16) []byte {
	out := make([]byte, testRate/50*2)
	for i := 0; i < len(out); i += 2 {
		v := amplitude
		if (i/2)%2 == 1 {
			v = -amplitude
		}
		binary.LittleEndian.PutUint16(out[i:], uint16(v))
	}
	return out
}

func chunks(amplitude int16, d time.Duration) [][]byte {
	n := int(d / (20 * time.Millisecond))
	out := make([][]byte, n)
	for i := range out {
		out[i] = chunk(amplitude)
	}
	return out
}

type fakeStream struct {
	ch     chan []byte
	closed bool
	mu     sync.Mutex
}

func newFakeStream(parts ...[][]byte) *fakeStream {
	total := 0
	for _, p := range parts {
		total += len(p)
	}
	ch := make(chan []byte, total)
	for _, p := range parts {
		for _, c := range p {
			ch <- c
		}
	}
	close(ch)
	return &fakeStream{ch: ch}
}

func (s *fakeStream) Chunks() <-chan []byte { return s.ch }

func (s *fakeStream) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *fakeStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeRecognizer struct {
	text string
	err  error

	mu   sync.Mutex
	pcms [][]byte
}

func (r *fakeRecognizer) Recognize(_ context.Context, pcm []byte, _ int) (string, error) {
	r.mu.Lock()
	r.pcms = append(r.pcms, pcm)
	r.mu.Unlock()
	return r.text, r.err
}

func (r *fakeRecognizer) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pcms)
}

type fixedTuning config.RecognitionConfig

func (t fixedTuning) Recognition() config.RecognitionConfig { return config.RecognitionConfig(t) }

func testTuning() fixedTuning {
	return fixedTuning{
		DynamicEnergy:          false,
		EnergyThreshold:        300,
		PauseThreshold:         0.2,
		NonSpeakingDuration:    0.1,
		PhraseTimeLimit:        2,
		CommandPhraseTimeLimit: 4,
		ListenTimeout:          1,
	}
}

func TestDetectorCapturesPhraseWithPreRoll(t *testing.T) {
	det := newDetector(config.RecognitionConfig(testTuning()), testRate)
	stream := newFakeStream(
		chunks(10, 200*time.Millisecond),
		chunks(2000, 500*time.Millisecond),
		chunks(10, 400*time.Millisecond),
	)

	pcm, err := det.listen(context.Background(), stream.Chunks(), 1, 2)
	require.NoError(t, err)

	// 100ms pre-roll + 500ms speech + 200ms trailing pause.
	got := len(pcm) / len(chunk(0))
	require.Equal(t, 5+25+10, got)
}

func TestDetectorTimesOutWithoutSpeech(t *testing.T) {
	det := newDetector(config.RecognitionConfig(testTuning()), testRate)
	stream := newFakeStream(chunks(10, 2*time.Second))

	_, err := det.listen(context.Background(), stream.Chunks(), 0.5, 2)
	require.ErrorIs(t, err, errNoSpeech)
}

func TestDetectorStopsAtPhraseLimit(t *testing.T) {
	det := newDetector(config.RecognitionConfig(testTuning()), testRate)
	stream := newFakeStream(chunks(2000, 3*time.Second))

	pcm, err := det.listen(context.Background(), stream.Chunks(), 1, 1)
	require.NoError(t, err)
	require.Equal(t, 50, len(pcm)/len(chunk(0)))
}

func TestDetectorSkipsShortBursts(t *testing.T) {
	det := newDetector(config.RecognitionConfig(testTuning()), testRate)
	stream := newFakeStream(
		chunks(2000, 40*time.Millisecond),
		chunks(10, 300*time.Millisecond),
		chunks(2000, 600*time.Millisecond),
		chunks(10, 300*time.Millisecond),
	)

	pcm, err := det.listen(context.Background(), stream.Chunks(), 0, 2)
	require.NoError(t, err)
	require.Greater(t, len(pcm)/len(chunk(0)), 30)
}

func TestDetectorCalibrationRaisesThreshold(t *testing.T) {
	tuning := testTuning()
	tuning.DynamicEnergy = true
	det := newDetector(config.RecognitionConfig(tuning), testRate)
	stream := newFakeStream(chunks(500, time.Second))

	require.NoError(t, det.calibrate(context.Background(), stream.Chunks(), 1))
	require.Greater(t, det.threshold, 600.0)
	require.Less(t, det.threshold, 750.0)
}

func TestDetectorCalibrationIgnoresDynamicEnergy(t *testing.T) {
	tuning := testTuning()
	tuning.DynamicEnergy = false
	det := newDetector(config.RecognitionConfig(tuning), testRate)
	before := det.threshold
	stream := newFakeStream(chunks(500, time.Second))

	require.NoError(t, det.calibrate(context.Background(), stream.Chunks(), 1))
	require.Greater(t, det.threshold, before)

	// With adaptation off, quiet frames while waiting leave it alone.
	calibrated := det.threshold
	_, err := det.listen(context.Background(), newFakeStream(chunks(50, 500*time.Millisecond)).Chunks(), 0.4, 0)
	require.ErrorIs(t, err, errNoSpeech)
	require.Equal(t, calibrated, det.threshold)
}

func TestRMS(t *testing.T) {
	require.Zero(t, rms(nil))
	require.InDelta(t, 1000, rms(chunk(1000)), 0.5)
}

func TestPrimaryListenReturnsNormalizedText(t *testing.T) {
	stream := newFakeStream(
		chunks(10, 100*time.Millisecond),
		chunks(2000, 500*time.Millisecond),
		chunks(10, 300*time.Millisecond),
	)
	rec := &fakeRecognizer{text: "  Hey Jarvis What Time Is It "}
	p := NewPrimary(func(context.Context, int) (Stream, error) { return stream, nil }, testTuning(), rec, testRate, nil)

	res, err := p.Listen(context.Background(), Request{})
	require.NoError(t, err)
	require.True(t, res.Heard)
	require.Equal(t, "hey jarvis what time is it", res.Text)
	require.Equal(t, config.BackendPrimary, res.Backend)
	require.True(t, stream.isClosed())
}

func TestPrimaryListenNoSpeechIsSoftMiss(t *testing.T) {
	stream := newFakeStream(chunks(10, 2*time.Second))
	rec := &fakeRecognizer{text: "unused"}
	p := NewPrimary(func(context.Context, int) (Stream, error) { return stream, nil }, testTuning(), rec, testRate, nil)

	res, err := p.Listen(context.Background(), Request{})
	require.NoError(t, err)
	require.False(t, res.Heard)
	require.Zero(t, rec.calls())
	require.True(t, stream.isClosed())
}

func TestPrimaryOpenFailureIsHardware(t *testing.T) {
	p := NewPrimary(func(context.Context, int) (Stream, error) {
		return nil, errors.New("no source")
	}, testTuning(), &fakeRecognizer{}, testRate, nil)

	_, err := p.Listen(context.Background(), Request{})
	require.ErrorIs(t, err, ErrHardware)
}

func TestPrimaryStreamLossIsHardware(t *testing.T) {
	stream := newFakeStream(chunks(10, 100*time.Millisecond))
	p := NewPrimary(func(context.Context, int) (Stream, error) { return stream, nil }, testTuning(), &fakeRecognizer{}, testRate, nil)

	_, err := p.Listen(context.Background(), Request{})
	require.ErrorIs(t, err, ErrHardware)
}

func TestPrimaryCancelledContextIsNotHardware(t *testing.T) {
	ch := make(chan []byte)
	stream := &fakeStream{ch: ch}
	p := NewPrimary(func(context.Context, int) (Stream, error) { return stream, nil }, testTuning(), &fakeRecognizer{}, testRate, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Listen(ctx, Request{})
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, ErrHardware)
}

func TestPrimaryRecognizerFailureIsSoftMiss(t *testing.T) {
	stream := newFakeStream(
		chunks(2000, 500*time.Millisecond),
		chunks(10, 300*time.Millisecond),
	)
	rec := &fakeRecognizer{err: errors.Join(recognize.ErrService, errors.New("HTTP 503"))}
	p := NewPrimary(func(context.Context, int) (Stream, error) { return stream, nil }, testTuning(), rec, testRate, nil)

	res, err := p.Listen(context.Background(), Request{})
	require.NoError(t, err)
	require.False(t, res.Heard)
	require.Equal(t, 1, rec.calls())
}

type fixedIndex int

func (f fixedIndex) AlternateDevice() int { return int(f) }

func TestAlternateUsesCommandWindow(t *testing.T) {
	var gotIndex int
	var gotWindows []time.Duration
	record := func(_ context.Context, index int, d time.Duration, _ int) ([]byte, error) {
		gotIndex = index
		gotWindows = append(gotWindows, d)
		return chunk(1500), nil
	}
	cfg := config.Default().Audio
	rec := &fakeRecognizer{text: "Open Browser"}
	a := NewAlternate(record, fixedIndex(2), rec, cfg, nil)

	res, err := a.Listen(context.Background(), Request{})
	require.NoError(t, err)
	require.Equal(t, "open browser", res.Text)
	require.Equal(t, config.BackendAlternate, res.Backend)

	_, err = a.Listen(context.Background(), Request{Command: true})
	require.NoError(t, err)

	require.Equal(t, 2, gotIndex)
	require.Equal(t, []time.Duration{3 * time.Second, 7 * time.Second}, gotWindows)
}

func TestAlternateSilentBufferSkipsRecognition(t *testing.T) {
	record := func(context.Context, int, time.Duration, int) ([]byte, error) {
		return make([]byte, 640), nil
	}
	rec := &fakeRecognizer{text: "unused"}
	a := NewAlternate(record, nil, rec, config.Default().Audio, nil)

	res, err := a.Listen(context.Background(), Request{})
	require.NoError(t, err)
	require.False(t, res.Heard)
	require.Zero(t, rec.calls())
}

func TestAlternateRecordFailureIsHardware(t *testing.T) {
	record := func(context.Context, int, time.Duration, int) ([]byte, error) {
		return nil, errors.New("device busy")
	}
	a := NewAlternate(record, nil, &fakeRecognizer{}, config.Default().Audio, nil)

	_, err := a.Listen(context.Background(), Request{})
	require.ErrorIs(t, err, ErrHardware)
}

type fakeBackend struct {
	name  string
	res   Result
	err   error
	calls int
}

func (b *fakeBackend) Name() string { return b.name }

func (b *fakeBackend) Listen(context.Context, Request) (Result, error) {
	b.calls++
	return b.res, b.err
}

type stringSelector struct{ backend string }

func (s *stringSelector) Backend() string { return s.backend }

type recordingObserver struct{ outcomes []string }

func (o *recordingObserver) RecordCapture(_ context.Context, backend, outcome string) {
	o.outcomes = append(o.outcomes, backend+":"+outcome)
}

func TestSelectorFollowsRuntimeBackend(t *testing.T) {
	primary := &fakeBackend{name: config.BackendPrimary, err: ErrHardware}
	alternate := &fakeBackend{name: config.BackendAlternate, res: Result{Text: "hi", Heard: true}}
	sel := &stringSelector{backend: config.BackendPrimary}
	obs := &recordingObserver{}
	s := NewSelector(sel, primary, alternate, obs)

	require.True(t, s.AlternateAvailable())
	_, err := s.Listen(context.Background(), Request{})
	require.ErrorIs(t, err, ErrHardware)

	sel.backend = config.BackendAlternate
	require.False(t, s.AlternateAvailable())
	res, err := s.Listen(context.Background(), Request{})
	require.NoError(t, err)
	require.Equal(t, "hi", res.Text)

	alternate.res = Result{}
	_, err = s.Listen(context.Background(), Request{})
	require.NoError(t, err)

	require.Equal(t, 1, primary.calls)
	require.Equal(t, 2, alternate.calls)
	require.Equal(t, []string{"primary:hardware_error", "alternate:heard", "alternate:no_speech"}, obs.outcomes)
}

func TestSelectorWithoutAlternate(t *testing.T) {
	s := NewSelector(&stringSelector{backend: config.BackendAlternate}, &fakeBackend{name: config.BackendPrimary}, nil, nil)
	require.Equal(t, config.BackendPrimary, s.Active())
	require.False(t, s.AlternateAvailable())
}
