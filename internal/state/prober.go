package state

import (
	"context"
	"time"

	"github.com/beaconmdns/beacon/internal/message"
	"github.com/beaconmdns/beacon/internal/protocol"
	"github.com/beaconmdns/beacon/internal/transport"
)

// ProbeResult is the outcome of a probe cycle.
type ProbeResult struct {
	Conflict bool
	Error    error
}

// Prober sends the RFC 6762 §8.1 probe queries for a name before the
// responder claims it: three queries of type ANY, 250 ms apart, each
// carrying the proposed records in the authority section so a
// simultaneous prober can run the §8.2 tiebreak against them.
type Prober struct {
	onSendQuery             func()
	injectConflictAfter     int
	injectSimultaneousProbe bool
	ourProbeData            []byte
	theirProbeData          []byte

	ourRecords       []message.ResourceRecord
	incomingRecords  []message.ResourceRecord
	conflictDetector ConflictDetector

	lastProbeMessage []byte

	// transport carries each probe onto the wire. Nil is valid: unit
	// tests that only exercise timing and conflict logic never set one.
	transport transport.Transport
}

// ConflictDetector decides whether an incoming record beats one of ours
// under the RFC 6762 §8.2 lexicographic tiebreak. Implemented by
// internal/responder's detector; declared here so state does not import
// responder.
type ConflictDetector interface {
	DetectConflict(ourRecord, incomingRecord message.ResourceRecord) (bool, error)
}

func NewProber() *Prober {
	return &Prober{}
}

// Probe runs the full cycle for serviceName and reports whether a
// conflict surfaced. Cancellation is returned in ProbeResult.Error.
func (p *Prober) Probe(ctx context.Context, serviceName string) ProbeResult {
	const probeCount = 3

	for i := 0; i < probeCount; i++ {
		select {
		case <-ctx.Done():
			return ProbeResult{Error: ctx.Err()}
		default:
		}

		probeMsg, err := p.buildProbeMessage(serviceName)
		if err != nil {
			return ProbeResult{Error: err}
		}
		p.lastProbeMessage = probeMsg

		if p.onSendQuery != nil {
			p.onSendQuery()
		}

		if p.transport != nil {
			if err := p.transport.Send(ctx, probeMsg, nil); err != nil {
				return ProbeResult{Error: err}
			}
		}

		// Tiebreak any responses a test (or receive loop) has handed us
		// against the records we are proposing.
		if p.conflictDetector != nil && len(p.incomingRecords) > 0 {
			for _, ourRecord := range p.ourRecords {
				for _, incoming := range p.incomingRecords {
					conflict, err := p.conflictDetector.DetectConflict(ourRecord, incoming)
					if err != nil {
						return ProbeResult{Error: err}
					}
					if conflict {
						return ProbeResult{Conflict: true}
					}
				}
			}
		}

		if p.injectConflictAfter > 0 && i >= p.injectConflictAfter {
			return ProbeResult{Conflict: true}
		}

		if p.injectSimultaneousProbe {
			if !lexicographicallyLater(p.ourProbeData, p.theirProbeData) {
				return ProbeResult{Conflict: true}
			}
		}

		if i < probeCount-1 {
			timer := time.NewTimer(protocol.ProbeInterval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ProbeResult{Error: ctx.Err()}
			case <-timer.C:
			}
		}
	}

	return ProbeResult{Conflict: false}
}

// buildProbeMessage encodes the probe query: one question for
// (serviceName, ANY, IN) and the proposed records in the authority
// section, per RFC 6762 §8.1's "probe query ... with the proposed data in
// the Authority Section".
func (p *Prober) buildProbeMessage(serviceName string) ([]byte, error) {
	msg := &message.DNSMessage{
		Questions: []message.Question{
			{
				QNAME:  serviceName,
				QTYPE:  uint16(protocol.RecordTypeANY),
				QCLASS: uint16(protocol.ClassIN),
			},
		},
	}
	for _, rr := range p.ourRecords {
		msg.Authorities = append(msg.Authorities, message.Answer{
			NAME:  rr.Name,
			TYPE:  uint16(rr.Type),
			CLASS: uint16(rr.Class),
			TTL:   rr.TTL,
			RDATA: rr.Data,
		})
	}
	return message.EncodeMessage(msg)
}

// lexicographicallyLater reports whether a beats b under the RFC 6762
// §8.2 byte comparison (unsigned, longer data wins a common prefix).
func lexicographicallyLater(a, b []byte) bool {
	minLen := len(a)
	if len(b) < minLen {
		minLen = len(b)
	}
	for i := 0; i < minLen; i++ {
		if a[i] != b[i] {
			return a[i] > b[i]
		}
	}
	return len(a) > len(b)
}

// SetOurRecords supplies the records being probed for; they ride in the
// probe's authority section and feed the conflict tiebreak.
func (p *Prober) SetOurRecords(records []message.ResourceRecord) {
	p.ourRecords = records
}

// InjectIncomingResponse hands the prober records as if another host had
// answered a probe; test hook.
func (p *Prober) InjectIncomingResponse(records []message.ResourceRecord) {
	p.incomingRecords = records
}

// SetConflictDetector supplies the §8.2 tiebreak implementation.
func (p *Prober) SetConflictDetector(detector ConflictDetector) {
	p.conflictDetector = detector
}

// GetLastProbeMessage returns the wire bytes of the most recent probe.
func (p *Prober) GetLastProbeMessage() []byte {
	return p.lastProbeMessage
}

// SetLastProbeMessage overrides the recorded probe message; test hook.
func (p *Prober) SetLastProbeMessage(msg []byte) {
	p.lastProbeMessage = msg
}

// SetOnSendQuery registers a callback fired as each probe goes out.
func (p *Prober) SetOnSendQuery(callback func()) {
	p.onSendQuery = callback
}

// SetTransport wires probes onto the wire.
func (p *Prober) SetTransport(t transport.Transport) {
	p.transport = t
}
