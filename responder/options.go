package responder

import (
	"github.com/beaconmdns/beacon/internal/errors"
	"github.com/beaconmdns/beacon/internal/transport"
)

// Option configures a Responder at construction time.
type Option func(*Responder) error

// WithHostname overrides the system-derived hostname used for the
// responder's address records.
func WithHostname(hostname string) Option {
	return func(r *Responder) error {
		r.hostname = hostname
		return nil
	}
}

// WithTransport injects a transport.Transport, bypassing the real
// multicast socket. Pair with transport.NewMockTransport() to exercise
// registration and query handling without a network.
func WithTransport(t transport.Transport) Option {
	return func(r *Responder) error {
		if t == nil {
			return &errors.ValidationError{
				Field:   "transport",
				Value:   nil,
				Message: "transport cannot be nil",
			}
		}
		r.transport = t
		return nil
	}
}
