package vm

import "fmt"

// State is the lifecycle position of a Machine.
type State int

const (
	Ready State = iota
	Running
	Completed
	HaltedOnError
	Aborted
)

var stateNames = map[State]string{
	Ready:         "ready",
	Running:       "running",
	Completed:     "completed",
	HaltedOnError: "halted_on_error",
	Aborted:       "aborted",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Completed || s == HaltedOnError || s == Aborted
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	st, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// ParseState is the inverse of State.String.
func ParseState(name string) (State, error) {
	for st, n := range stateNames {
		if n == name {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown vm state %q", name)
}
