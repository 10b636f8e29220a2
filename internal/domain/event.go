package domain

import "time"

// KeyEventType distinguishes the two logical key edges. Autorepeat is
// filtered at the device layer and never reaches the orchestrator.
type KeyEventType int

const (
	KeyPress KeyEventType = iota
	KeyRelease
)

func (t KeyEventType) String() string {
	switch t {
	case KeyPress:
		return "press"
	case KeyRelease:
		return "release"
	default:
		return "unknown"
	}
}

// KeyEvent is a single press/release transition of the trigger key.
type KeyEvent struct {
	Type KeyEventType
	Code uint16
	Time time.Time
}
