package builder

// State is the lifecycle stage of an Accumulator.
type State int

const (
	StateInit State = iota
	StateBinding
	StateBound
	StateFinalizing
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateBinding:
		return "Binding"
	case StateBound:
		return "Bound"
	case StateFinalizing:
		return "Finalizing"
	case StateDone:
		return "Done"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}
