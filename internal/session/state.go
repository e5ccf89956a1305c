// Package session drives one operator's capture session: capture, corner
// selection, correction and multi-page accumulation.
package session

import "fmt"

type State int

const (
	StateIdle State = iota
	StateCapturing
	StateAwaitingCorners
	StateCorrecting
	StatePageReady
	StateFinalizing
	StateAborted
)

var stateNames = map[State]string{
	StateIdle:            "idle",
	StateCapturing:       "capturing",
	StateAwaitingCorners: "awaiting_corners",
	StateCorrecting:      "correcting",
	StatePageReady:       "page_ready",
	StateFinalizing:      "finalizing",
	StateAborted:         "aborted",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for st, name := range stateNames {
		if name == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", text)
}

// Terminal states accept no further page operations.
func (s State) Terminal() bool {
	return s == StateFinalizing || s == StateAborted
}
