// Package fsm defines the wake-loop state machine and the input Mode.
package fsm

import "fmt"

// State is one position in the wake-word loop.
type State string

// Event drives a wake-loop transition.
type Event string

const (
	StateWaitingForWake      State = "waiting_for_wake"
	StateAcknowledged        State = "acknowledged"
	StateListeningForCommand State = "listening_for_command"
)

const (
	// EventWakeOnly is a wake phrase with no trailing command.
	EventWakeOnly Event = "wake_only"
	// EventPrompted fires once the cue and verbal prompt have been emitted.
	EventPrompted Event = "prompted"
	// EventDispatched covers a command enqueued from either the wake or listen path.
	EventDispatched Event = "dispatched"
	// EventMissed is a soft miss while listening for a command.
	EventMissed Event = "missed"
	// EventHardwareFailure returns to waiting so backend fallback can run.
	EventHardwareFailure Event = "hardware_failure"
)

func Transition(current State, event Event) (State, error) {
	switch current {
	case StateWaitingForWake:
		switch event {
		case EventWakeOnly:
			return StateAcknowledged, nil
		case EventDispatched:
			return StateWaitingForWake, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateAcknowledged:
		switch event {
		case EventPrompted:
			return StateListeningForCommand, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateListeningForCommand:
		switch event {
		case EventDispatched, EventMissed, EventHardwareFailure:
			return StateWaitingForWake, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}

// Mode is the mutually exclusive input mode of the assistant.
type Mode string

const (
	ModeVoice Mode = "voice"
	ModeText  Mode = "text"
)

// ParseMode maps a user-facing string onto a Mode.
func ParseMode(raw string) (Mode, error) {
	switch Mode(raw) {
	case ModeVoice, ModeText:
		return Mode(raw), nil
	default:
		return "", fmt.Errorf("unknown mode %q (want voice or text)", raw)
	}
}
