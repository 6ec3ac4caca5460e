// Package dnssd implements the four fixed DNS-SD message shapes used for
// service discovery over mDNS per RFC 6763 §4 and §9: the
// "_services._dns-sd._udp.local." service-type enumeration meta-query and
// the single-service browse/resolve query, each in its send and answer
// forms.
//
// Unlike the general-purpose message package, dnssd builds its packets by
// hand, byte-range by byte-range, rather than through message.DNSMessage:
// each shape is fixed, so the offsets a later record needs to point back
// at are known in advance and compression can be applied deliberately
// instead of discovered after the fact.
package dnssd

import (
	"encoding/binary"
	"net"
	"strings"

	"github.com/beaconmdns/beacon/internal/errors"
	"github.com/beaconmdns/beacon/internal/message"
	"github.com/beaconmdns/beacon/internal/protocol"
)

// ServiceEnumerationName is the well-known meta-query name for
// service-type enumeration per RFC 6763 §9.
const ServiceEnumerationName = "_services._dns-sd._udp.local."

// IsServiceEnumerationQuery reports whether name — as decoded off the wire,
// which never carries the trailing root dot — is the RFC 6763 §9
// service-type enumeration meta-query name.
func IsServiceEnumerationQuery(name string) bool {
	return name == strings.TrimSuffix(ServiceEnumerationName, ".")
}

// header writes a 12-octet DNS header with the given flags and section
// counts.
func header(id, flags, qd, an, ns, ar uint16) []byte {
	out := make([]byte, 12)
	binary.BigEndian.PutUint16(out[0:2], id)
	binary.BigEndian.PutUint16(out[2:4], flags)
	binary.BigEndian.PutUint16(out[4:6], qd)
	binary.BigEndian.PutUint16(out[6:8], an)
	binary.BigEndian.PutUint16(out[8:10], ns)
	binary.BigEndian.PutUint16(out[10:12], ar)
	return out
}

// DiscoverySend builds the service-type enumeration query per RFC 6763 §9:
// a single question for PTR records of "_services._dns-sd._udp.local.",
// sent to the mDNS multicast group. QDCOUNT=1, all other counts zero,
// flags=0 (standard query, RFC 6762 §18.2-18.6).
func DiscoverySend() ([]byte, error) {
	name, err := message.WriteLiteral(ServiceEnumerationName)
	if err != nil {
		return nil, err
	}

	out := header(0, 0, 1, 0, 0, 0)
	out = append(out, name...)
	out = binary.BigEndian.AppendUint16(out, uint16(protocol.RecordTypePTR))
	out = binary.BigEndian.AppendUint16(out, uint16(protocol.ClassIN))
	return out, nil
}

// DiscoveryAnswer builds a service-type enumeration response per RFC 6763
// §9: a single PTR record mapping the enumeration name to serviceType
// (e.g. "_http._tcp.local."). Per RFC 6762 §18.1, a Multicast DNS response
// message MUST use a transaction ID of zero; this is a response so
// flags=0x8400 (QR=1, AA=1).
func DiscoveryAnswer(serviceType string) ([]byte, error) {
	name, err := message.WriteLiteral(ServiceEnumerationName)
	if err != nil {
		return nil, err
	}
	target, err := message.WriteLiteral(serviceType)
	if err != nil {
		return nil, err
	}

	out := header(0, 0x8400, 0, 1, 0, 0)
	out = append(out, name...)
	out = binary.BigEndian.AppendUint16(out, uint16(protocol.RecordTypePTR))
	out = binary.BigEndian.AppendUint16(out, uint16(protocol.ClassIN))
	out = binary.BigEndian.AppendUint32(out, uint32(protocol.DNSSDTTLService.Seconds()))
	out = binary.BigEndian.AppendUint16(out, uint16(len(target)))
	out = append(out, target...)
	return out, nil
}

// QuerySend builds a single-question browse/resolve query for name and
// qtype (e.g. a PTR query for a service type, or an SRV/TXT query for a
// known service instance). QDCOUNT=1, flags=0.
func QuerySend(name string, qtype protocol.RecordType) ([]byte, error) {
	if !qtype.IsSupported() {
		return nil, errUnsupportedQType(qtype)
	}

	encodedName, err := message.WriteLiteral(name)
	if err != nil {
		return nil, err
	}

	out := header(0, 0, 1, 0, 0, 0)
	out = append(out, encodedName...)
	out = binary.BigEndian.AppendUint16(out, uint16(qtype))
	out = binary.BigEndian.AppendUint16(out, uint16(protocol.ClassIN))
	return out, nil
}

// QueryAnswerParams describes the service instance a QueryAnswer responds
// with. IPv4/IPv6 are optional: a nil address omits the corresponding
// record. TXTRData, if non-empty, is the already-encoded TXT rdata
// (caller-built, since TXT content is free-form key/value pairs).
type QueryAnswerParams struct {
	ServiceType  string
	InstanceName string
	Hostname     string
	TXTRData     []byte
	IPv4         net.IP
	IPv6         net.IP
	Port         uint16
}

// QueryAnswer builds the full service-resolution response per RFC 6763
// §4 and RFC 6762 §6: a PTR answer naming the service instance, plus
// SRV/TXT/A/AAAA records in the additional section carrying the host and
// port the instance resolves to.
//
// The layout deliberately exploits name compression: the service type is
// written once, as the PTR record's own NAME; the SRV and TXT records'
// NAME (the instance name) is written once, as a literal instance label
// followed by a pointer back to that service-type name; and the A/AAAA
// records' NAME is a bare pointer to the hostname the SRV record already
// wrote in full as its target.
func QueryAnswer(p QueryAnswerParams) ([]byte, error) {
	return queryAnswer(p, uint32(protocol.DNSSDTTLService.Seconds()), uint32(protocol.DNSSDTTLHost.Seconds()))
}

// GoodbyeAnswer builds the same record layout as QueryAnswer but with
// TTL=0 on every record, per RFC 6762 §10.1: announcing TTL=0 tells
// listeners to purge the instance from their caches immediately, e.g.
// when a service is deregistered.
func GoodbyeAnswer(p QueryAnswerParams) ([]byte, error) {
	return queryAnswer(p, 0, 0)
}

func queryAnswer(p QueryAnswerParams, serviceTTL, hostTTL uint32) ([]byte, error) {
	an := uint16(1)
	ar := uint16(1) // SRV always present
	if p.IPv4 != nil {
		ar++
	}
	if p.IPv6 != nil {
		ar++
	}
	if len(p.TXTRData) > 0 {
		ar++
	}

	out := header(0, 0x8400, 0, an, 0, ar)

	// PTR answer: NAME = service type (written in full; this offset is
	// reused by every later reference to the service type).
	svcNameOffset := len(out)
	svcName, err := message.WriteLiteral(p.ServiceType)
	if err != nil {
		return nil, err
	}
	out = append(out, svcName...)
	out = binary.BigEndian.AppendUint16(out, uint16(protocol.RecordTypePTR))
	out = binary.BigEndian.AppendUint16(out, uint16(protocol.ClassIN))
	out = binary.BigEndian.AppendUint32(out, serviceTTL)

	ptrTarget, err := message.EncodeServiceInstanceNameWithSuffixPointer(p.InstanceName, svcNameOffset)
	if err != nil {
		return nil, err
	}
	out = binary.BigEndian.AppendUint16(out, uint16(len(ptrTarget)))
	out = append(out, ptrTarget...)

	// SRV record: NAME = instance name, written once as a literal prefix
	// plus a pointer back to the service type written above.
	srvNameOffset := len(out)
	srvName, err := message.EncodeServiceInstanceNameWithSuffixPointer(p.InstanceName, svcNameOffset)
	if err != nil {
		return nil, err
	}
	out = append(out, srvName...)
	out = binary.BigEndian.AppendUint16(out, uint16(protocol.RecordTypeSRV))
	out = binary.BigEndian.AppendUint16(out, uint16(protocol.ClassIN))
	out = binary.BigEndian.AppendUint32(out, serviceTTL)

	hostTarget, err := message.WriteLiteral(p.Hostname)
	if err != nil {
		return nil, err
	}
	srvRData := make([]byte, 0, 6+len(hostTarget))
	srvRData = binary.BigEndian.AppendUint16(srvRData, 0) // priority
	srvRData = binary.BigEndian.AppendUint16(srvRData, 0) // weight
	srvRData = binary.BigEndian.AppendUint16(srvRData, p.Port)
	// hostOffset is where the hostname target starts within RDATA, i.e.
	// len(out) + 2 (RDLENGTH) + 6 (priority/weight/port) ahead of here.
	hostOffset := len(out) + 2 + 6
	srvRData = append(srvRData, hostTarget...)
	out = binary.BigEndian.AppendUint16(out, uint16(len(srvRData)))
	out = append(out, srvRData...)

	if p.IPv4 != nil {
		out = appendAddressRecord(out, hostOffset, protocol.RecordTypeA, p.IPv4.To4(), hostTTL)
	}
	if p.IPv6 != nil {
		out = appendAddressRecord(out, hostOffset, protocol.RecordTypeAAAA, p.IPv6.To16(), hostTTL)
	}

	if len(p.TXTRData) > 0 {
		txtName, err := message.WritePointer(srvNameOffset)
		if err != nil {
			return nil, err
		}
		out = append(out, txtName...)
		out = binary.BigEndian.AppendUint16(out, uint16(protocol.RecordTypeTXT))
		out = binary.BigEndian.AppendUint16(out, uint16(protocol.ClassIN))
		out = binary.BigEndian.AppendUint32(out, serviceTTL)
		out = binary.BigEndian.AppendUint16(out, uint16(len(p.TXTRData)))
		out = append(out, p.TXTRData...)
	}

	return out, nil
}

// appendAddressRecord appends an A or AAAA record whose NAME is a bare
// pointer to hostOffset (the hostname the SRV record already wrote in
// full), and whose RDATA is addr's 4 or 16 raw bytes.
func appendAddressRecord(out []byte, hostOffset int, rtype protocol.RecordType, addr net.IP, ttl uint32) []byte {
	pointer, err := message.WritePointer(hostOffset)
	if err != nil {
		// hostOffset always fits in 14 bits for any realistic packet;
		// appendAddressRecord is only called after QueryAnswer already
		// succeeded in writing the preceding sections.
		return out
	}
	out = append(out, pointer...)
	out = binary.BigEndian.AppendUint16(out, uint16(rtype))
	out = binary.BigEndian.AppendUint16(out, uint16(protocol.ClassIN))
	out = binary.BigEndian.AppendUint32(out, ttl)
	out = binary.BigEndian.AppendUint16(out, uint16(len(addr)))
	out = append(out, addr...)
	return out
}

// errUnsupportedQType reports a query type this package does not build
// answers for.
func errUnsupportedQType(qtype protocol.RecordType) error {
	return &errors.ValidationError{
		Field:   "qtype",
		Value:   qtype.String(),
		Message: "dnssd: unsupported query type",
	}
}
