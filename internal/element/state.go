// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package element

import (
	"fmt"
	"strings"
)

// State is the element lifecycle state.
type State string

const (
	StateStopped   State = "stopped"
	StateReady     State = "ready"
	StatePaused    State = "paused"
	StateStreaming State = "streaming"
	StateError     State = "error"
)

// States lists every state, for metrics.
var States = []State{StateStopped, StateReady, StatePaused, StateStreaming, StateError}

// Event drives a transition.
type Event string

const (
	EventSetReady   Event = "set-ready"
	EventSetPaused  Event = "set-paused"
	EventSetPlaying Event = "set-playing"
	EventSetStopped Event = "set-stopped"
	EventFail       Event = "device-error"
	EventReset      Event = "reset"
)

// ParseState accepts state names case-insensitively; "playing" and "null" are
// accepted as pipeline spellings of streaming and stopped.
func ParseState(s string) (State, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "stopped", "null":
		return StateStopped, nil
	case "ready":
		return StateReady, nil
	case "paused":
		return StatePaused, nil
	case "streaming", "playing":
		return StateStreaming, nil
	case "error":
		return StateError, nil
	default:
		return "", fmt.Errorf("unknown state %q", s)
	}
}

// rank orders the non-error states along the lifecycle.
func rank(s State) int {
	switch s {
	case StateStopped:
		return 0
	case StateReady:
		return 1
	case StatePaused:
		return 2
	case StateStreaming:
		return 3
	default:
		return -1
	}
}

// nextEvent returns the event moving cur one step toward target.
func nextEvent(cur, target State) (Event, error) {
	if target == StateError {
		return "", fmt.Errorf("%w: error is not a target state", ErrInvalidTarget)
	}
	if rank(target) < 0 {
		return "", fmt.Errorf("%w: %q", ErrInvalidTarget, target)
	}
	if cur == StateError {
		if target == StateStopped {
			return EventReset, nil
		}
		return "", ErrNeedsReset
	}

	if rank(target) > rank(cur) {
		switch cur {
		case StateStopped:
			return EventSetReady, nil
		case StateReady:
			return EventSetPaused, nil
		case StatePaused:
			return EventSetPlaying, nil
		}
	}
	if target == StateStopped {
		return EventSetStopped, nil
	}
	switch cur {
	case StateStreaming:
		return EventSetPaused, nil
	case StatePaused:
		return EventSetReady, nil
	}
	return "", fmt.Errorf("%w: %s -> %s", ErrInvalidTarget, cur, target)
}

func statesAsStrings() []string {
	out := make([]string, len(States))
	for i, s := range States {
		out[i] = string(s)
	}
	return out
}
