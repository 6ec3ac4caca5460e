package dnssd

import (
	"encoding/binary"
	"net"
	"testing"

	"github.com/beaconmdns/beacon/internal/message"
	"github.com/beaconmdns/beacon/internal/protocol"
)

// TestDiscoverySend verifies the service-type enumeration query: header
// counts (QDCOUNT=1, all else zero, flags=0), followed by the
// "_services._dns-sd._udp.local." name and a PTR/IN question.
func TestDiscoverySend(t *testing.T) {
	packet, err := DiscoverySend()
	if err != nil {
		t.Fatalf("DiscoverySend() error = %v", err)
	}

	wantName, err := message.WriteLiteral(ServiceEnumerationName)
	if err != nil {
		t.Fatalf("WriteLiteral(%q) error = %v", ServiceEnumerationName, err)
	}

	wantHeader := []byte{0, 0, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0}
	if len(packet) < 12 {
		t.Fatalf("packet too short: %d bytes", len(packet))
	}
	if string(packet[:12]) != string(wantHeader) {
		t.Errorf("header = % x, want % x", packet[:12], wantHeader)
	}

	wantTail := append(append([]byte{}, wantName...), 0x00, 0x0C, 0x00, 0x01)
	if string(packet[12:]) != string(wantTail) {
		t.Errorf("name+question = % x, want % x", packet[12:], wantTail)
	}

	wantLen := 12 + len(wantName) + 4
	if len(packet) != wantLen {
		t.Errorf("packet length = %d, want %d", len(packet), wantLen)
	}

	name, newOffset := message.Extract(packet, 12)
	if name != "_services._dns-sd._udp.local" {
		t.Errorf("Extract() name = %q, want %q", name, "_services._dns-sd._udp.local")
	}
	qtype := binary.BigEndian.Uint16(packet[newOffset : newOffset+2])
	qclass := binary.BigEndian.Uint16(packet[newOffset+2 : newOffset+4])
	if qtype != uint16(protocol.RecordTypePTR) {
		t.Errorf("QTYPE = %d, want PTR (12)", qtype)
	}
	if qclass != uint16(protocol.ClassIN) {
		t.Errorf("QCLASS = %d, want IN (1)", qclass)
	}
}

// TestDiscoveryAnswer verifies the response carries transaction ID zero
// per RFC 6762 §18.1, flags 0x8400 (QR=1, AA=1), a single PTR answer, and
// that the answer's RDATA decodes to the given service type.
func TestDiscoveryAnswer(t *testing.T) {
	packet, err := DiscoveryAnswer("_http._tcp.local.")
	if err != nil {
		t.Fatalf("DiscoveryAnswer() error = %v", err)
	}

	id := binary.BigEndian.Uint16(packet[0:2])
	if id != 0 {
		t.Errorf("transaction ID = %d, want 0 per RFC 6762 §18.1", id)
	}
	flags := binary.BigEndian.Uint16(packet[2:4])
	if flags != 0x8400 {
		t.Errorf("flags = 0x%04x, want 0x8400", flags)
	}
	ancount := binary.BigEndian.Uint16(packet[6:8])
	if ancount != 1 {
		t.Errorf("ANCOUNT = %d, want 1", ancount)
	}

	msg, err := message.ParseMessage(packet)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if len(msg.Answers) != 1 {
		t.Fatalf("len(Answers) = %d, want 1", len(msg.Answers))
	}
	answer := msg.Answers[0]
	if answer.NAME != "_services._dns-sd._udp.local" {
		t.Errorf("answer NAME = %q, want enumeration name", answer.NAME)
	}
	target, ok := message.ParsePTR(packet, answer.RDataOffset, int(answer.RDLENGTH))
	if !ok {
		t.Fatalf("ParsePTR() ok = false")
	}
	if target != "_http._tcp.local" {
		t.Errorf("PTR target = %q, want %q", target, "_http._tcp.local")
	}
	if answer.TTL != uint32(protocol.DNSSDTTLService.Seconds()) {
		t.Errorf("TTL = %d, want %d", answer.TTL, uint32(protocol.DNSSDTTLService.Seconds()))
	}
}

// TestQuerySend verifies a single-question query for an arbitrary name
// and type.
func TestQuerySend(t *testing.T) {
	packet, err := QuerySend("_http._tcp.local.", protocol.RecordTypePTR)
	if err != nil {
		t.Fatalf("QuerySend() error = %v", err)
	}

	qdcount := binary.BigEndian.Uint16(packet[4:6])
	if qdcount != 1 {
		t.Errorf("QDCOUNT = %d, want 1", qdcount)
	}
	flags := binary.BigEndian.Uint16(packet[2:4])
	if flags != 0 {
		t.Errorf("flags = 0x%04x, want 0", flags)
	}

	name, newOffset := message.Extract(packet, 12)
	if name != "_http._tcp.local" {
		t.Errorf("name = %q, want %q", name, "_http._tcp.local")
	}
	qtype := binary.BigEndian.Uint16(packet[newOffset : newOffset+2])
	if qtype != uint16(protocol.RecordTypePTR) {
		t.Errorf("QTYPE = %d, want PTR", qtype)
	}
}

// TestQuerySend_UnsupportedType rejects a query type dnssd does not know
// how to answer.
func TestQuerySend_UnsupportedType(t *testing.T) {
	_, err := QuerySend("host.local.", protocol.RecordType(999))
	if err == nil {
		t.Fatal("QuerySend() with unsupported type: want error, got nil")
	}
}

// TestQueryAnswer_FullRecordSet verifies the PTR/SRV/A/AAAA/TXT bundle and
// that every embedded name parses back to the expected dotted form,
// exercising the compression pointers the layout relies on.
func TestQueryAnswer_FullRecordSet(t *testing.T) {
	packet, err := QueryAnswer(QueryAnswerParams{
		ServiceType:  "_http._tcp.local.",
		InstanceName: "My Web Server",
		Hostname:     "myserver.local.",
		Port:         8080,
		IPv4:         net.ParseIP("192.168.1.50"),
		IPv6:         net.ParseIP("fe80::1"),
		TXTRData:     []byte{4, 'p', 'a', 't', 'h'},
	})
	if err != nil {
		t.Fatalf("QueryAnswer() error = %v", err)
	}

	flags := binary.BigEndian.Uint16(packet[2:4])
	if flags != 0x8400 {
		t.Errorf("flags = 0x%04x, want 0x8400", flags)
	}
	ancount := binary.BigEndian.Uint16(packet[6:8])
	arcount := binary.BigEndian.Uint16(packet[10:12])
	if ancount != 1 {
		t.Errorf("ANCOUNT = %d, want 1", ancount)
	}
	if arcount != 4 {
		t.Errorf("ARCOUNT = %d, want 4 (SRV, A, AAAA, TXT)", arcount)
	}

	msg, err := message.ParseMessage(packet)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if len(msg.Answers) != 1 || len(msg.Additionals) != 4 {
		t.Fatalf("got %d answers, %d additionals; want 1, 4", len(msg.Answers), len(msg.Additionals))
	}

	ptr := msg.Answers[0]
	if ptr.NAME != "_http._tcp.local" {
		t.Errorf("PTR NAME = %q, want %q", ptr.NAME, "_http._tcp.local")
	}
	ptrTarget, ok := message.ParsePTR(packet, ptr.RDataOffset, int(ptr.RDLENGTH))
	if !ok || ptrTarget != "My Web Server._http._tcp.local" {
		t.Errorf("PTR target = %q, ok=%v, want %q", ptrTarget, ok, "My Web Server._http._tcp.local")
	}

	srv := msg.Additionals[0]
	if srv.NAME != "My Web Server._http._tcp.local" {
		t.Errorf("SRV NAME = %q", srv.NAME)
	}
	srvData, ok := message.ParseSRV(packet, srv.RDataOffset, int(srv.RDLENGTH))
	if !ok {
		t.Fatalf("ParseSRV() ok = false")
	}
	if srvData.Port != 8080 || srvData.Target != "myserver.local" {
		t.Errorf("SRV = %+v, want port 8080, target myserver.local", srvData)
	}

	a := msg.Additionals[1]
	if a.NAME != "myserver.local" {
		t.Errorf("A NAME = %q, want %q", a.NAME, "myserver.local")
	}
	ip4, ok := message.ParseA(packet, a.RDataOffset, int(a.RDLENGTH))
	if !ok || !ip4.Equal(net.ParseIP("192.168.1.50")) {
		t.Errorf("A = %v, ok=%v, want 192.168.1.50", ip4, ok)
	}
	if a.TTL != uint32(protocol.DNSSDTTLHost.Seconds()) {
		t.Errorf("A TTL = %d, want host TTL", a.TTL)
	}

	aaaa := msg.Additionals[2]
	if aaaa.NAME != "myserver.local" {
		t.Errorf("AAAA NAME = %q, want %q", aaaa.NAME, "myserver.local")
	}
	ip6, ok := message.ParseAAAA(packet, aaaa.RDataOffset, int(aaaa.RDLENGTH))
	if !ok || !ip6.Equal(net.ParseIP("fe80::1")) {
		t.Errorf("AAAA = %v, ok=%v, want fe80::1", ip6, ok)
	}

	txt := msg.Additionals[3]
	if txt.NAME != "My Web Server._http._tcp.local" {
		t.Errorf("TXT NAME = %q", txt.NAME)
	}
	entries := message.ParseTXT(packet, txt.RDataOffset, int(txt.RDLENGTH))
	if len(entries) != 1 || entries[0].Key != "path" {
		t.Errorf("TXT entries = %+v, want [{Key:path}]", entries)
	}
}

// TestQueryAnswer_OmitsAbsentAddresses verifies that a nil IPv4 or IPv6
// address is simply not included, rather than encoded as a zero value.
func TestQueryAnswer_OmitsAbsentAddresses(t *testing.T) {
	packet, err := QueryAnswer(QueryAnswerParams{
		ServiceType:  "_http._tcp.local.",
		InstanceName: "Printer",
		Hostname:     "printer.local.",
		Port:         80,
	})
	if err != nil {
		t.Fatalf("QueryAnswer() error = %v", err)
	}

	arcount := binary.BigEndian.Uint16(packet[10:12])
	if arcount != 1 {
		t.Errorf("ARCOUNT = %d, want 1 (SRV only)", arcount)
	}

	msg, err := message.ParseMessage(packet)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if len(msg.Additionals) != 1 {
		t.Fatalf("len(Additionals) = %d, want 1", len(msg.Additionals))
	}
	if protocol.RecordType(msg.Additionals[0].TYPE) != protocol.RecordTypeSRV {
		t.Errorf("additional type = %d, want SRV", msg.Additionals[0].TYPE)
	}
}
