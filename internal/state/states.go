// Package state runs the RFC 6762 §8 registration sequence for one
// service: probe for conflicts, announce the claim, then hand off to the
// responder's steady-state query handling.
package state

// State is one phase of the registration sequence.
type State int

const (
	// StateInitial: registered with the machine, nothing sent yet.
	StateInitial State = iota

	// StateProbing: sending the RFC 6762 §8.1 probe queries (three,
	// 250 ms apart) to find out whether the name is taken.
	StateProbing

	// StateAnnouncing: probing passed; sending the RFC 6762 §8.3
	// unsolicited announcements (two, one second apart).
	StateAnnouncing

	// StateEstablished: the name is claimed and discoverable.
	StateEstablished

	// StateConflictDetected: another host answered a probe for the name;
	// the caller must rename and start over (RFC 6762 §9).
	StateConflictDetected
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "Initial"
	case StateProbing:
		return "Probing"
	case StateAnnouncing:
		return "Announcing"
	case StateEstablished:
		return "Established"
	case StateConflictDetected:
		return "ConflictDetected"
	default:
		return "Unknown"
	}
}
