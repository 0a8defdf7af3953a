package listener

// State is the lifecycle state of the listener process.
type State string

const (
	StateStarting State = "starting"
	StateRunning  State = "running"
	// StateDegraded means a component failed but imports are still served.
	StateDegraded State = "degraded"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
)

// IsTerminal returns true if no further transitions are possible.
func (s State) IsTerminal() bool {
	return s == StateStopped
}

// CanTransitionTo returns true if moving to target is a valid transition.
func (s State) CanTransitionTo(target State) bool {
	switch s {
	case StateStarting:
		return target == StateRunning || target == StateDegraded || target == StateStopped
	case StateRunning:
		return target == StateDegraded || target == StateStopping
	case StateDegraded:
		return target == StateRunning || target == StateStopping
	case StateStopping:
		return target == StateStopped
	default:
		return false
	}
}
