// Package fsm defines the recognizer channel lifecycle transition table.
package fsm

import "fmt"

type State string

type Event string

const (
	StateCreated     State = "created"
	StateAdded       State = "added"
	StateRecognizing State = "recognizing"
	StateStreaming   State = "streaming"
	StateCompleted   State = "completed"
	StateRemoving    State = "removing"
	StateRemoved     State = "removed"
)

const (
	EventAdded         Event = "added"
	EventAddFailed     Event = "add_failed"
	EventRecognizeSent Event = "recognize_sent"
	EventRecognizeFail Event = "recognize_failed"
	EventInProgress    Event = "in_progress"
	EventRejected      Event = "rejected"
	EventComplete      Event = "complete"
	EventRemoveRequest Event = "remove_requested"
	EventRemoved       Event = "removed"
)

// Transition returns the state reached from current on event.
//
// EventRemoved is accepted from every state except removed itself, which is
// what keeps channel release exactly-once.
func Transition(current State, event Event) (State, error) {
	if event == EventRemoved {
		if current == StateRemoved {
			return current, invalidTransition(current, event)
		}
		if !known(current) {
			return current, fmt.Errorf("unknown state %q", current)
		}
		return StateRemoved, nil
	}

	switch current {
	case StateCreated:
		switch event {
		case EventAdded:
			return StateAdded, nil
		case EventAddFailed:
			return StateRemoved, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateAdded:
		switch event {
		case EventRecognizeSent:
			return StateRecognizing, nil
		case EventRecognizeFail:
			return StateRemoved, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateRecognizing:
		switch event {
		case EventInProgress:
			return StateStreaming, nil
		case EventRejected:
			return StateRemoving, nil
		case EventComplete:
			return StateCompleted, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateStreaming:
		switch event {
		case EventComplete:
			return StateCompleted, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateCompleted:
		switch event {
		case EventRemoveRequest:
			return StateRemoving, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateRemoving, StateRemoved:
		return current, invalidTransition(current, event)
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

// Streaming reports whether audio should flow to the recognizer in state.
func Streaming(state State) bool {
	return state == StateStreaming
}

// Terminal reports whether no further control traffic is expected in state.
func Terminal(state State) bool {
	return state == StateRemoving || state == StateRemoved
}

func known(state State) bool {
	switch state {
	case StateCreated, StateAdded, StateRecognizing, StateStreaming, StateCompleted, StateRemoving, StateRemoved:
		return true
	default:
		return false
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
