package audio

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

const (
	frameMillis = 20
	frameQueue  = 256
)

// Stream delivers 20ms mono s16le frames from one Pulse source for the
// length of a single listen. A slow reader loses the oldest frames instead
// of stalling the Pulse client.
type Stream struct {
	client *pulse.Client
	record *pulse.RecordStream

	frameSize int
	frames    chan []byte
	done      chan struct{}

	mu       sync.Mutex
	residual []byte
	closed   bool

	writers sync.WaitGroup
	dropped atomic.Int64
}

// OpenStream starts recording from selected. The stream closes itself when
// ctx ends.
func OpenStream(ctx context.Context, selected Device, sampleRate int) (*Stream, error) {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	client, err := newClient()
	if err != nil {
		return nil, err
	}
	source, err := client.SourceByID(selected.ID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("resolve source %q: %w", selected.ID, err)
	}

	s := newStream(frameBytes(sampleRate))
	s.client = client

	record, err := client.NewRecord(
		pulse.NewWriter(writerFunc(s.write), pulseproto.FormatInt16LE),
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(sampleRate),
		pulse.RecordBufferFragmentSize(uint32(s.frameSize)),
		pulse.RecordMediaName("jarvis listening"),
	)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("create pulse record stream: %w", err)
	}
	s.record = record
	record.Start()

	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()
	return s, nil
}

func newStream(frameSize int) *Stream {
	return &Stream{
		frameSize: frameSize,
		frames:    make(chan []byte, frameQueue),
		done:      make(chan struct{}),
	}
}

func frameBytes(sampleRate int) int {
	return sampleRate * frameMillis / 1000 * 2
}

// Chunks yields frames until the stream closes. A final short frame carries
// whatever was buffered at close.
func (s *Stream) Chunks() <-chan []byte {
	return s.frames
}

// Dropped counts frames discarded because the reader fell behind.
func (s *Stream) Dropped() int64 {
	return s.dropped.Load()
}

// Close stops recording and closes Chunks. Safe to call more than once.
func (s *Stream) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()

	if s.record != nil {
		s.record.Stop()
		s.record.Close()
	}
	if s.client != nil {
		s.client.Close()
	}
	s.writers.Wait()

	if len(s.residual) > 0 {
		s.push(s.residual)
		s.residual = nil
	}
	close(s.frames)
}

// write is the Pulse record callback.
func (s *Stream) write(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, io.EOF
	}
	s.writers.Add(1)
	defer s.writers.Done()

	s.residual = append(s.residual, buf...)
	var ready [][]byte
	for len(s.residual) >= s.frameSize {
		frame := make([]byte, s.frameSize)
		copy(frame, s.residual)
		s.residual = s.residual[s.frameSize:]
		ready = append(ready, frame)
	}
	s.residual = append([]byte(nil), s.residual...)
	s.mu.Unlock()

	for _, frame := range ready {
		s.push(frame)
	}
	return len(buf), nil
}

func (s *Stream) push(frame []byte) {
	select {
	case s.frames <- frame:
		return
	default:
	}
	select {
	case <-s.frames:
		s.dropped.Add(1)
	default:
	}
	select {
	case s.frames <- frame:
	default:
		s.dropped.Add(1)
	}
}

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}
