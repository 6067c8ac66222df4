package vector

// State tracks the persistence lifecycle of a store. A store starts
// Uninitialized, becomes Loaded once Load has run, turns Dirty on any
// mutation, and returns to Loaded after a successful Save. A failed
// Validate moves it to Corrupted until Recover resets it.
type State int

const (
	StateUninitialized State = iota
	StateLoaded
	StateDirty
	StateCorrupted
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	case StateDirty:
		return "dirty"
	case StateCorrupted:
		return "corrupted"
	default:
		return "uninitialized"
	}
}
