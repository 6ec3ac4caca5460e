package transport

import (
	"context"
	"net"
	"sync"

	"github.com/beaconmdns/beacon/internal/errors"
)

// MockTransport is a test double for Transport interface.
//
// This mock records all Send() calls for verification in tests, and lets a
// test queue canned inbound packets for Receive() to deliver, enabling unit
// testing of querier/responder without real network sockets.
type MockTransport struct {
	mu        sync.Mutex
	sendCalls []SendCall
	closed    bool
	inbound   chan inboundPacket
}

// SendCall records a single Send() invocation.
type SendCall struct {
	Packet []byte
	Dest   net.Addr
}

type inboundPacket struct {
	data []byte
	addr net.Addr
}

// NewMockTransport creates a new mock transport for testing.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		sendCalls: make([]SendCall, 0),
		inbound:   make(chan inboundPacket, 64),
	}
}

// Send records the call for verification.
func (m *MockTransport) Send(_ context.Context, packet []byte, dest net.Addr) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sendCalls = append(m.sendCalls, SendCall{
		Packet: append([]byte(nil), packet...), // Copy to avoid aliasing
		Dest:   dest,
	})

	return nil
}

// Receive blocks until a packet queued via Deliver arrives, ctx is done, or
// the mock is closed. It never busy-spins: callers (e.g. querier's receive
// loop) get the same blocking contract a real socket would give them.
func (m *MockTransport) Receive(ctx context.Context) ([]byte, net.Addr, error) {
	select {
	case pkt, ok := <-m.inbound:
		if !ok {
			return nil, nil, &errors.NetworkError{
				Operation: "receive response",
				Details:   "mock transport closed",
			}
		}
		return pkt.data, pkt.addr, nil
	case <-ctx.Done():
		return nil, nil, &errors.NetworkError{
			Operation: "receive response",
			Err:       ctx.Err(),
			Details:   "context canceled before receive",
		}
	}
}

// Deliver queues a packet for a subsequent Receive() call to return, as if
// it had arrived from addr over the network.
func (m *MockTransport) Deliver(packet []byte, addr net.Addr) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.inbound <- inboundPacket{data: append([]byte(nil), packet...), addr: addr}
}

// Close marks the transport as closed.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	close(m.inbound)
	return nil
}

// SendCalls returns all recorded Send() calls.
func (m *MockTransport) SendCalls() []SendCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	calls := make([]SendCall, len(m.sendCalls))
	copy(calls, m.sendCalls)
	return calls
}
