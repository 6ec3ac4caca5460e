package message

import (
	"crypto/rand"
	"encoding/binary"
	"math/big"
	"strings"

	"github.com/beaconmdns/beacon/internal/errors"
	"github.com/beaconmdns/beacon/internal/protocol"
)

// ResourceRecord is a resource record in buildable form: the name as a
// string and the rdata already in wire format. internal/records aliases
// this type so record-set construction and response encoding share one
// representation.
type ResourceRecord struct {
	Name       string
	Type       protocol.RecordType
	Class      protocol.DNSClass
	TTL        uint32
	Data       []byte
	CacheFlush bool // RFC 6762 §10.2 cache-flush bit on unique records
}

// BuildQuery encodes a one-question mDNS query for (name, recordType),
// writing the name uncompressed. The DNS-SD shapes this library sends on
// the wire come from internal/dnssd.QuerySend; BuildQuery stays as the
// general-purpose RFC 1035/6762 query encoder for any supported type.
//
// Header flags are all zero per RFC 6762 §18.2-18.6 (standard query, not
// authoritative, no recursion).
func BuildQuery(name string, recordType uint16) ([]byte, error) {
	if !protocol.RecordType(recordType).IsSupported() {
		return nil, &errors.ValidationError{
			Field:   "recordType",
			Value:   recordType,
			Message: "unsupported record type (supports A, AAAA, PTR, SRV, TXT, ANY)",
		}
	}

	encodedName, err := EncodeName(name)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, 12+len(encodedName)+4)
	out = binary.BigEndian.AppendUint16(out, queryID())
	out = binary.BigEndian.AppendUint16(out, 0) // flags
	out = binary.BigEndian.AppendUint16(out, 1) // QDCOUNT
	out = binary.BigEndian.AppendUint16(out, 0)
	out = binary.BigEndian.AppendUint16(out, 0)
	out = binary.BigEndian.AppendUint16(out, 0)

	out = append(out, encodedName...)
	out = binary.BigEndian.AppendUint16(out, recordType)
	// QU bit clear: multicast response wanted (RFC 6762 §5.4).
	out = binary.BigEndian.AppendUint16(out, uint16(protocol.ClassIN))
	return out, nil
}

// queryID picks a transaction ID. RFC 6762 §18.1 suggests 0, but a random
// ID lets a caller with several queries in flight match responses.
func queryID() uint16 {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<16))
	if err != nil {
		return 0
	}
	return uint16(n.Uint64())
}

// BuildResponse encodes answers into an authoritative mDNS response
// (flags 0x8400, ID 0 per RFC 6762 §18.1), every record in the answer
// section with its name written in full. The compressed DNS-SD answer
// layout this library actually multicasts is internal/dnssd.QueryAnswer;
// BuildResponse encodes arbitrary record sets.
func BuildResponse(answers []*ResourceRecord) ([]byte, error) {
	count := len(answers)
	if count > 0xFFFF {
		count = 0xFFFF
	}

	out := make([]byte, 0, 512)
	out = binary.BigEndian.AppendUint16(out, 0) // ID
	out = binary.BigEndian.AppendUint16(out, protocol.FlagQR|protocol.FlagAA)
	out = binary.BigEndian.AppendUint16(out, 0) // QDCOUNT
	out = binary.BigEndian.AppendUint16(out, uint16(count))
	out = binary.BigEndian.AppendUint16(out, 0)
	out = binary.BigEndian.AppendUint16(out, 0)

	for _, answer := range answers {
		encoded, err := serializeResourceRecord(answer)
		if err != nil {
			return nil, err
		}
		out = append(out, encoded...)
	}
	return out, nil
}

// serializeResourceRecord encodes one record per RFC 1035 §3.2.1. A name
// of the form "instance._service._proto.local" routes through the RFC
// 6763 §4.3 instance encoding so the instance label may carry spaces and
// UTF-8 that plain hostname validation would reject.
func serializeResourceRecord(rr *ResourceRecord) ([]byte, error) {
	if rr == nil {
		return nil, &errors.ValidationError{
			Field:   "ResourceRecord",
			Value:   nil,
			Message: "cannot serialize nil resource record",
		}
	}

	var encodedName []byte
	var err error
	if instance, serviceType, isInstance := strings.Cut(rr.Name, "._"); isInstance {
		encodedName, err = EncodeServiceInstanceName(instance, "_"+serviceType)
	} else {
		encodedName, err = EncodeName(rr.Name)
	}
	if err != nil {
		return nil, err
	}

	rdataLen := len(rr.Data)
	if rdataLen > 0xFFFF {
		rdataLen = 0xFFFF
	}

	class := uint16(rr.Class)
	if rr.CacheFlush {
		class |= 0x8000
	}

	record := make([]byte, 0, len(encodedName)+10+rdataLen)
	record = append(record, encodedName...)
	record = binary.BigEndian.AppendUint16(record, uint16(rr.Type))
	record = binary.BigEndian.AppendUint16(record, class)
	record = binary.BigEndian.AppendUint32(record, rr.TTL)
	record = binary.BigEndian.AppendUint16(record, uint16(rdataLen))
	record = append(record, rr.Data[:rdataLen]...)
	return record, nil
}
