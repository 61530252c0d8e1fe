package fsm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransitionWakeOnlyPath(t *testing.T) {
	s := StateWaitingForWake

	next, err := Transition(s, EventWakeOnly)
	require.NoError(t, err)
	require.Equal(t, StateAcknowledged, next)

	next, err = Transition(next, EventPrompted)
	require.NoError(t, err)
	require.Equal(t, StateListeningForCommand, next)

	next, err = Transition(next, EventDispatched)
	require.NoError(t, err)
	require.Equal(t, StateWaitingForWake, next)
}

func TestTransitionListeningAlwaysReturnsToWaiting(t *testing.T) {
	for _, event := range []Event{EventDispatched, EventMissed, EventHardwareFailure} {
		next, err := Transition(StateListeningForCommand, event)
		require.NoError(t, err)
		require.Equal(t, StateWaitingForWake, next)
	}
}

func TestTransitionMatrixInvalidTransitions(t *testing.T) {
	tests := []struct {
		name    string
		state   State
		event   Event
		want    State
		wantErr bool
	}{
		{name: "waiting prompted invalid", state: StateWaitingForWake, event: EventPrompted, want: StateWaitingForWake, wantErr: true},
		{name: "waiting missed invalid", state: StateWaitingForWake, event: EventMissed, want: StateWaitingForWake, wantErr: true},
		{name: "waiting inline dispatch valid", state: StateWaitingForWake, event: EventDispatched, want: StateWaitingForWake, wantErr: false},
		{name: "acknowledged wake invalid", state: StateAcknowledged, event: EventWakeOnly, want: StateAcknowledged, wantErr: true},
		{name: "acknowledged dispatch invalid", state: StateAcknowledged, event: EventDispatched, want: StateAcknowledged, wantErr: true},
		{name: "listening wake invalid", state: StateListeningForCommand, event: EventWakeOnly, want: StateListeningForCommand, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			next, err := Transition(tc.state, tc.event)
			require.Equal(t, tc.want, next)
			if tc.wantErr {
				require.Error(t, err)
				require.Contains(t, err.Error(), "invalid transition")
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestTransitionUnknownState(t *testing.T) {
	next, err := Transition(State("mystery"), EventWakeOnly)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown state")
	require.Equal(t, State("mystery"), next)
}

func TestParseMode(t *testing.T) {
	mode, err := ParseMode("text")
	require.NoError(t, err)
	require.Equal(t, ModeText, mode)

	_, err = ParseMode("telepathy")
	require.Error(t, err)
}
