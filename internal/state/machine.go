package state

import (
	"context"
	"sync"

	"github.com/beaconmdns/beacon/internal/transport"
)

// Machine drives one service registration through the RFC 6762 §8
// sequence: Initial → Probing → Announcing → Established, with a detour
// to ConflictDetected if another host answers a probe. Each registration
// gets its own Machine, so concurrent registrations never share state.
//
// On conflict the machine stops; the caller owns the RFC 6762 §9 rename
// loop and simply runs a fresh machine under the new name.
type Machine struct {
	prober         *Prober
	announcer      *Announcer
	mu             sync.RWMutex
	onStateChange  func(State)
	currentState   State
	injectConflict bool
}

func NewMachine() *Machine {
	return &Machine{
		currentState: StateInitial,
		prober:       NewProber(),
		announcer:    NewAnnouncer(),
	}
}

// Run executes the sequence to completion: roughly 500 ms of probing and
// a second of announcing. It returns early with ctx's error on
// cancellation, and returns nil with state ConflictDetected when probing
// lost — that outcome is the caller's to handle, not an error.
func (sm *Machine) Run(ctx context.Context, serviceName string) error {
	sm.setState(StateProbing)

	result := sm.prober.Probe(ctx, serviceName)
	if result.Error != nil {
		return result.Error
	}
	if result.Conflict || sm.injectConflict {
		sm.setState(StateConflictDetected)
		return nil
	}

	sm.setState(StateAnnouncing)
	if err := sm.announcer.Announce(ctx); err != nil {
		return err
	}

	sm.setState(StateEstablished)
	return nil
}

// GetState returns the machine's current phase.
func (sm *Machine) GetState() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.currentState
}

func (sm *Machine) setState(newState State) {
	sm.mu.Lock()
	sm.currentState = newState
	sm.mu.Unlock()

	// The callback may read the machine, so it runs outside the lock.
	if sm.onStateChange != nil {
		sm.onStateChange(newState)
	}
}

// SetInjectConflict forces probing to report a conflict; test hook for
// exercising the caller's rename loop.
func (sm *Machine) SetInjectConflict(inject bool) {
	sm.injectConflict = inject
}

// GetProber exposes the machine's prober so the responder can attach
// callbacks and records.
func (sm *Machine) GetProber() *Prober {
	return sm.prober
}

// GetAnnouncer exposes the machine's announcer so the responder can
// attach callbacks and the service being announced.
func (sm *Machine) GetAnnouncer() *Announcer {
	return sm.announcer
}

// SetTransport wires both halves to send their probes and announcements
// over t. With no transport the machine still builds every message, which
// is all unit tests need.
func (sm *Machine) SetTransport(t transport.Transport) {
	sm.prober.SetTransport(t)
	sm.announcer.SetTransport(t)
}
