package pipeline

import "fmt"

// State is the lifecycle position of one pipeline.
type State int

const (
	Idle State = iota
	Admitted
	Fetching
	Splitting
	Uploading
	Completed
	Failed
)

var stateNames = [...]string{
	Idle:      "idle",
	Admitted:  "admitted",
	Fetching:  "fetching",
	Splitting: "splitting",
	Uploading: "uploading",
	Completed: "completed",
	Failed:    "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

func (s State) IsTerminal() bool {
	return s == Completed || s == Failed
}

// CanTransition reports whether s may move to next. Moves go one step
// forward; Failed is reachable from every started, unfinished state.
func (s State) CanTransition(next State) bool {
	if s.IsTerminal() {
		return false
	}
	if next == Failed {
		return s != Idle
	}
	return next == s+1
}
