package querier

import (
	"net"
	"time"

	"github.com/beaconmdns/beacon/internal/errors"
	"github.com/beaconmdns/beacon/internal/transport"
)

// Option configures a Querier at construction time.
type Option func(*Querier) error

// WithTimeout sets the collection window used when a Query context
// carries no deadline of its own. Default: one second.
func WithTimeout(timeout time.Duration) Option {
	return func(q *Querier) error {
		q.defaultTimeout = timeout
		return nil
	}
}

// WithInterfaces restricts the querier to an explicit interface list,
// overriding both WithInterfaceFilter and the default selection.
func WithInterfaces(ifaces []net.Interface) Option {
	return func(q *Querier) error {
		if len(ifaces) == 0 {
			return &errors.ValidationError{
				Field:   "interfaces",
				Value:   ifaces,
				Message: "interface list cannot be empty",
			}
		}
		q.explicitInterfaces = ifaces
		return nil
	}
}

// WithInterfaceFilter selects interfaces with a caller-supplied
// predicate instead of the default filter (which drops VPN tunnels,
// Docker plumbing, loopback, and down interfaces). Ignored when
// WithInterfaces supplies an explicit list.
//
//	q, _ := querier.New(querier.WithInterfaceFilter(func(iface net.Interface) bool {
//	    return strings.HasPrefix(iface.Name, "eth")
//	}))
func WithInterfaceFilter(filter func(net.Interface) bool) Option {
	return func(q *Querier) error {
		if filter == nil {
			return &errors.ValidationError{
				Field:   "interfaceFilter",
				Value:   nil,
				Message: "filter function cannot be nil",
			}
		}
		q.interfaceFilter = filter
		return nil
	}
}

// WithTransport injects a transport.Transport, bypassing the real
// multicast socket. Pair with transport.NewMockTransport() to exercise
// Query without a network.
func WithTransport(t transport.Transport) Option {
	return func(q *Querier) error {
		if t == nil {
			return &errors.ValidationError{
				Field:   "transport",
				Value:   nil,
				Message: "transport cannot be nil",
			}
		}
		q.transport = t
		return nil
	}
}
