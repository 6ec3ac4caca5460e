// Package transport provides the datagram transports mDNS runs over: a
// narrow Send/Receive/Close interface, IPv4 and IPv6 multicast
// implementations built on golang.org/x/net, and a mock for tests.
package transport

import (
	"context"
	"net"
)

// Transport is the opaque datagram interface the codec layers sit on: a
// packet out to a destination (nil means the mDNS multicast group), a
// packet in with its source address. Implementations own all socket
// setup — group joins, port reuse, TTL.
type Transport interface {
	// Send transmits one packet to dest, or to the multicast group when
	// dest is nil.
	Send(ctx context.Context, packet []byte, dest net.Addr) error

	// Receive blocks for the next inbound packet, honoring ctx's
	// deadline and cancellation, and returns it with its source address.
	Receive(ctx context.Context) ([]byte, net.Addr, error)

	// Close releases the underlying socket. Blocked Receives return.
	Close() error
}
