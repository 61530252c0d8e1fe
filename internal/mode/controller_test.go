package mode

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rbright/jarvis/internal/config"
	"github.com/rbright/jarvis/internal/fsm"
	"github.com/rbright/jarvis/internal/runtimecfg"
	"github.com/rbright/jarvis/internal/ui"
	"github.com/rbright/jarvis/internal/wake"
	"github.com/stretchr/testify/require"
)

type voiceFunc func(ctx context.Context) (wake.ExitReason, error)

func (f voiceFunc) Run(ctx context.Context) (wake.ExitReason, error) { return f(ctx) }

type recorder struct {
	mu    sync.Mutex
	items []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	r.items = append(r.items, s)
	r.mu.Unlock()
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.items...)
}

type speaker struct{ recorder }

func (s *speaker) Say(text string) { s.add(text) }

type dispatcher struct{ recorder }

func (d *dispatcher) Submit(text string) bool {
	d.add(text)
	return true
}

type typingHooks struct {
	ui.Nop
	mu     sync.Mutex
	typing []bool
}

func (h *typingHooks) SetTypingEnabled(enabled bool) {
	h.mu.Lock()
	h.typing = append(h.typing, enabled)
	h.mu.Unlock()
}

type switches struct{ recorder }

func (s *switches) RecordModeSwitch(_ context.Context, to string) { s.add(to) }

func TestControllerTextToVoiceAndBack(t *testing.T) {
	var voiceRuns atomic.Int32
	voice := voiceFunc(func(context.Context) (wake.ExitReason, error) {
		voiceRuns.Add(1)
		return wake.ExitNoisy, nil
	})
	rt := runtimecfg.New(config.Default())
	say := &speaker{}
	disp := &dispatcher{}
	hooks := &typingHooks{}
	obs := &switches{}
	var promptOut bytes.Buffer

	input := strings.NewReader("what time is it\n\n  \nvoice mode\nset timer for 5 seconds\n")
	c := New(voice, rt, say, disp, Options{Hooks: hooks, Observer: obs, Input: input, PromptOut: &promptOut})

	require.NoError(t, c.Run(context.Background(), fsm.ModeText))

	require.Equal(t, int32(1), voiceRuns.Load())
	require.Equal(t, []string{"what time is it", "set timer for 5 seconds"}, disp.all())
	require.Equal(t, []string{lineToVoice}, say.all())
	require.Equal(t, []bool{true, false, true}, hooks.typing)
	require.Equal(t, []string{"voice", "text"}, obs.all())
	require.Contains(t, promptOut.String(), Prompt)
	require.Equal(t, fsm.ModeText, c.Mode())
}

func TestControllerWithoutVoiceStaysInText(t *testing.T) {
	rt := runtimecfg.New(config.Default())
	say := &speaker{}
	disp := &dispatcher{}

	c := New(nil, rt, say, disp, Options{Input: strings.NewReader("voice mode\nhello\n")})
	require.NoError(t, c.Run(context.Background(), fsm.ModeVoice))

	require.Equal(t, []string{lineNoVoice}, say.all())
	require.Equal(t, []string{"hello"}, disp.all())
}

func TestControllerSubmitAndRuntimeVoiceRequest(t *testing.T) {
	voiceStarted := make(chan struct{})
	voice := voiceFunc(func(ctx context.Context) (wake.ExitReason, error) {
		close(voiceStarted)
		<-ctx.Done()
		return "", ctx.Err()
	})
	rt := runtimecfg.New(config.Default())
	console := ui.NewConsole(nil, nil)
	disp := &dispatcher{}

	c := New(voice, rt, &speaker{}, disp, Options{Hooks: console})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, fsm.ModeText) }()

	require.Eventually(t, func() bool { return c.Mode() == fsm.ModeText }, 2*time.Second, 5*time.Millisecond)
	require.True(t, console.Submit("remind me to stretch in 10 minutes"))
	require.Eventually(t, func() bool { return len(disp.all()) == 1 }, 2*time.Second, 5*time.Millisecond)

	rt.RequestMode(fsm.ModeVoice)
	select {
	case <-voiceStarted:
	case <-time.After(5 * time.Second):
		t.Fatal("voice request not honoured")
	}
	require.False(t, console.TypingEnabled())

	// In voice mode, submitted text goes straight to the dispatcher.
	require.True(t, console.Submit("what's the date"))
	require.Equal(t, []string{"remind me to stretch in 10 minutes", "what's the date"}, disp.all())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("controller did not stop")
	}
}

// endlessLines never runs dry.
type endlessLines struct{}

func (endlessLines) Read(p []byte) (int, error) {
	for i := range p {
		if i%2 == 0 {
			p[i] = 'x'
		} else {
			p[i] = '\n'
		}
	}
	return len(p), nil
}

func TestLineSourceStopsAfterCancel(t *testing.T) {
	rt := runtimecfg.New(config.Default())
	c := New(nil, rt, &speaker{}, &dispatcher{}, Options{Input: endlessLines{}})

	ctx, cancel := context.WithCancel(context.Background())
	lines := c.lineSource(ctx)
	require.Equal(t, "x", <-lines)
	cancel()

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for range lines {
		}
	}()
	select {
	case <-drained:
	case <-time.After(2 * time.Second):
		t.Fatal("line reader kept running after cancel")
	}
}

func TestIsVoiceModePhrase(t *testing.T) {
	require.True(t, IsVoiceModePhrase("Voice Mode"))
	require.True(t, IsVoiceModePhrase(" back to voice "))
	require.False(t, IsVoiceModePhrase("voice memo"))
}
