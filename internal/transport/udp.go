package transport

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/net/ipv4"

	"github.com/beaconmdns/beacon/internal/errors"
	"github.com/beaconmdns/beacon/internal/network"
	"github.com/beaconmdns/beacon/internal/protocol"
)

// UDPv4Transport implements Transport for IPv4 mDNS multicast.
//
// Socket setup: bind to
// 0.0.0.0:5353 with SO_REUSEADDR/SO_REUSEPORT via PlatformControl (so the
// responder can coexist with Avahi/Bonjour/systemd-resolved already bound
// to the port), then wrap the connection in golang.org/x/net/ipv4 to join
// 224.0.0.251 explicitly on every up, multicast-capable interface rather
// than relying on net.ListenMulticastUDP's single default-interface join.
type UDPv4Transport struct {
	conn *ipv4.PacketConn
	dest *net.UDPAddr
}

// NewUDPv4Transport creates a UDP multicast transport bound to mDNS port
// 5353, joining 224.0.0.251 on network.DefaultInterfaces()'s smart-default
// selection (excludes VPN, Docker, loopback, and down interfaces).
//
// RFC 6762 §5: mDNS uses UDP port 5353 and multicast address 224.0.0.251.
// Outbound multicast is sent with TTL=1 to keep frames on the local link.
func NewUDPv4Transport() (*UDPv4Transport, error) {
	ifaces, err := network.DefaultInterfaces()
	if err != nil {
		return nil, &errors.NetworkError{
			Operation: "enumerate interfaces",
			Err:       err,
			Details:   "failed to get network interfaces for multicast join",
		}
	}
	return NewUDPv4TransportWithInterfaces(ifaces)
}

// NewUDPv4TransportWithInterfaces is NewUDPv4Transport with an explicit
// interface list, bypassing network.DefaultInterfaces()'s filter — backs
// querier.WithInterfaces/WithInterfaceFilter.
func NewUDPv4TransportWithInterfaces(ifaces []net.Interface) (*UDPv4Transport, error) {
	lc := net.ListenConfig{Control: PlatformControl}
	rawConn, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf("0.0.0.0:%d", protocol.Port))
	if err != nil {
		return nil, &errors.NetworkError{
			Operation: "create socket",
			Err:       err,
			Details:   fmt.Sprintf("failed to bind to port %d (is Avahi/Bonjour running without SO_REUSEPORT?)", protocol.Port),
		}
	}

	p := ipv4.NewPacketConn(rawConn)

	group := net.UDPAddr{IP: net.ParseIP(protocol.MulticastAddrIPv4)}

	joined := 0
	for _, iface := range ifaces {
		ifaceCopy := iface
		if err := p.JoinGroup(&ifaceCopy, &group); err != nil {
			continue
		}
		joined++
	}
	if joined == 0 {
		_ = rawConn.Close()
		return nil, &errors.NetworkError{
			Operation: "join multicast group",
			Err:       fmt.Errorf("no interfaces available"),
			Details:   "failed to join 224.0.0.251 on any interface",
		}
	}

	// Keep outbound frames on the local link.
	if err := p.SetMulticastTTL(1); err != nil {
		_ = rawConn.Close()
		return nil, &errors.NetworkError{
			Operation: "set multicast TTL",
			Err:       err,
			Details:   "failed to set outbound TTL=1",
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

	dest, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", protocol.MulticastAddrIPv4, protocol.Port))
	if err != nil {
		_ = rawConn.Close()
		return nil, &errors.NetworkError{
			Operation: "resolve multicast address",
			Err:       err,
			Details:   fmt.Sprintf("failed to resolve %s:%d", protocol.MulticastAddrIPv4, protocol.Port),
		}
	}

	return &UDPv4Transport{conn: p, dest: dest}, nil
}

// Send transmits a packet to dest, or to the mDNS multicast group if dest is nil.
func (t *UDPv4Transport) Send(ctx context.Context, packet []byte, dest net.Addr) error {
	select {
	case <-ctx.Done():
		return &errors.NetworkError{Operation: "send query", Err: ctx.Err(), Details: "context canceled before send"}
	default:
	}

	if dest == nil {
		dest = t.dest
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
func (t *UDPv4Transport) Receive(ctx context.Context) ([]byte, net.Addr, error) {
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
func (t *UDPv4Transport) Close() error {
	if t.conn == nil {
		return nil
	}
	if err := t.conn.Close(); err != nil {
		return &errors.NetworkError{Operation: "close socket", Err: err, Details: "failed to close UDP connection"}
	}
	return nil
}
