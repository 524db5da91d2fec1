package server

// Status is the observable state of the listener.
type Status int

const (
	// StatusStopped means no listener is open.
	StatusStopped Status = iota
	// StatusStarted means the listener is accepting connections.
	StatusStarted
	// StatusError means the last start failed or the listener failed at runtime.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusStarted:
		return "Started"
	case StatusError:
		return "Error"
	default:
		return "Stopped"
	}
}

// transportEvent is a listener lifecycle event. Status changes only in response to these.
type transportEvent int

const (
	// eventReady: the socket is bound and listening.
	eventReady transportEvent = iota
	// eventInitFailed: the socket could not be bound.
	eventInitFailed
	// eventFailed: Accept failed on a listener nobody asked to close.
	eventFailed
	// eventCancelled: the listener was closed by Stop.
	eventCancelled
	// eventReset: Stop was called with no listener open.
	eventReset
)

func (e transportEvent) String() string {
	return [...]string{"ready", "init-failed", "failed", "cancelled", "reset"}[e]
}

// transition returns the status that follows ev.
func transition(_ Status, ev transportEvent) Status {
	switch ev {
	case eventReady:
		return StatusStarted
	case eventInitFailed, eventFailed:
		return StatusError
	default:
		return StatusStopped
	}
}

// State is a snapshot of what the presentation layer observes.
type State struct {
	Status Status
	// Running reports whether connections are being accepted.
	Running bool
	// Installing reports whether a profile installation is in progress.
	Installing bool
	// Addr is the advertised base URL.
	Addr string
}
