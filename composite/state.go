package composite

// State is the boot state of a [Device].
type State int

// Device states.
const (
	StateBooting State = iota
	StateClassesRegistered
	StateRunning
	StateHalted
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateBooting:
		return "booting"
	case StateClassesRegistered:
		return "classes-registered"
	case StateRunning:
		return "running"
	case StateHalted:
		return "halted"
	default:
		return "unknown"
	}
}
