package bus

import "time"

// Event represents a domain event published on the bus.
//
// Kinds are dot-namespaced: "log.appended", "autosave.saved",
// "autosave.failed".
type Event struct {
	Kind    string
	At      time.Time
	Payload any
}
