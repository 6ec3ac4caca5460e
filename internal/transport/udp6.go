package transport

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/net/ipv6"

	"github.com/beaconmdns/beacon/internal/errors"
	"github.com/beaconmdns/beacon/internal/network"
	"github.com/beaconmdns/beacon/internal/protocol"
)

// UDPv6Transport implements Transport for IPv6 mDNS multicast, joining
// ff02::fb (link-local scope) on every usable interface. Mirrors
// UDPv4Transport's shape using the sibling golang.org/x/net/ipv6 package —
// same author, same PacketConn.JoinGroup API, scoped instead to a link-local
// multicast group that requires an explicit interface (unlike IPv4's
// any-source join, IPv6 link-local groups are meaningless without one, so
// every send needs a destination carrying a Zone).
type UDPv6Transport struct {
	conn  *ipv6.PacketConn
	group net.Addr
}

// NewUDPv6Transport creates a UDP IPv6 multicast transport bound to mDNS
// port 5353 on ff02::fb.
func NewUDPv6Transport() (*UDPv6Transport, error) {
	lc := net.ListenConfig{Control: PlatformControl}
	rawConn, err := lc.ListenPacket(context.Background(), "udp6", fmt.Sprintf("[::]:%d", protocol.Port))
	if err != nil {
		return nil, &errors.NetworkError{
			Operation: "create socket",
			Err:       err,
			Details:   fmt.Sprintf("failed to bind to [::]:%d", protocol.Port),
		}
	}

	p := ipv6.NewPacketConn(rawConn)

	groupIP := net.ParseIP(protocol.MulticastAddrIPv6)
	ifaces, err := network.DefaultInterfaces()
	if err != nil {
		_ = rawConn.Close()
		return nil, &errors.NetworkError{
			Operation: "enumerate interfaces",
			Err:       err,
			Details:   "failed to get network interfaces for multicast join",
		}
	}

	joined := 0
	var scopeIface *net.Interface
	for _, iface := range ifaces {
		ifaceCopy := iface
		if err := p.JoinGroup(&ifaceCopy, &net.UDPAddr{IP: groupIP}); err != nil {
			continue
		}
		if scopeIface == nil {
			scopeIface = &ifaceCopy
		}
		joined++
	}
	if joined == 0 {
		_ = rawConn.Close()
		return nil, &errors.NetworkError{
			Operation: "join multicast group",
			Err:       fmt.Errorf("no interfaces available"),
			Details:   "failed to join ff02::fb on any interface",
		}
	}

	// Keep outbound frames on the local link.
	if err := p.SetMulticastHopLimit(1); err != nil {
		_ = rawConn.Close()
		return nil, &errors.NetworkError{
			Operation: "set multicast hop limit",
			Err:       err,
			Details:   "failed to set outbound hop limit=1",
		}
	}
	if err := p.SetMulticastLoopback(true); err != nil {
		_ = rawConn.Close()
		return nil, &errors.NetworkError{
			Operation: "set multicast loopback",
			Err:       err,
			Details:   "failed to enable loopback",
		}
	}

	group := &net.UDPAddr{IP: groupIP, Port: protocol.Port, Zone: scopeIface.Name}

	return &UDPv6Transport{conn: p, group: group}, nil
}

// Send transmits a packet to dest, or to the mDNS multicast group (on the
// interface chosen at construction) if dest is nil.
func (t *UDPv6Transport) Send(ctx context.Context, packet []byte, dest net.Addr) error {
	select {
	case <-ctx.Done():
		return &errors.NetworkError{Operation: "send query", Err: ctx.Err(), Details: "context canceled before send"}
	default:
	}

	if dest == nil {
		dest = t.group
	}

	n, err := t.conn.WriteTo(packet, nil, dest)
	if err != nil {
		return &errors.NetworkError{
			Operation: "send query",
			Err:       err,
			Details:   fmt.Sprintf("failed to send %d bytes to %s", len(packet), dest),
		}
	}
	if n != len(packet) {
		return &errors.NetworkError{
			Operation: "send query",
			Err:       fmt.Errorf("partial write: %d/%d bytes", n, len(packet)),
			Details:   "incomplete transmission",
		}
	}
	return nil
}

// Receive waits for an incoming packet, respecting context cancellation/deadline.
func (t *UDPv6Transport) Receive(ctx context.Context) ([]byte, net.Addr, error) {
	select {
	case <-ctx.Done():
		return nil, nil, &errors.NetworkError{Operation: "receive response", Err: ctx.Err(), Details: "context canceled before receive"}
	default:
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := t.conn.SetReadDeadline(deadline); err != nil {
			return nil, nil, &errors.NetworkError{
				Operation: "set read timeout",
				Err:       err,
				Details:   fmt.Sprintf("failed to set deadline %v", deadline),
			}
		}
	}

	bufPtr := GetBuffer()
	defer PutBuffer(bufPtr)
	buffer := *bufPtr

	n, _, srcAddr, err := t.conn.ReadFrom(buffer)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return nil, nil, &errors.NetworkError{Operation: "receive response", Err: err, Details: "timeout"}
		}
		return nil, nil, &errors.NetworkError{Operation: "receive response", Err: err, Details: "failed to read from socket"}
	}

	result := make([]byte, n)
	copy(result, buffer[:n])
	return result, srcAddr, nil
}

// Close releases network resources.
func (t *UDPv6Transport) Close() error {
	if t.conn == nil {
		return nil
	}
	if err := t.conn.Close(); err != nil {
		return &errors.NetworkError{Operation: "close socket", Err: err, Details: "failed to close UDP connection"}
	}
	return nil
}

// Compile-time verification that UDPv6Transport implements Transport.
var _ Transport = (*UDPv6Transport)(nil)
