package message

// DNSHeader is the fixed 12-octet DNS message header per RFC 1035 §4.1.1.
// All fields are big-endian on the wire.
//
//	+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+
//	|                      ID                       |
//	+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+
//	|QR|   Opcode  |AA|TC|RD|RA|   Z    |   RCODE   |
//	+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+
//	|                    QDCOUNT                    |
//	+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+
//	|                    ANCOUNT                    |
//	+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+
//	|                    NSCOUNT                    |
//	+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+
//	|                    ARCOUNT                    |
//	+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+
type DNSHeader struct {
	// ID is the transaction ID. RFC 6762 §18.1 wants 0 on multicast
	// responses; queries may carry a nonzero ID to match replies.
	ID uint16

	// Flags packs QR (bit 15), OPCODE (11-14), AA (10), TC (9), RD (8),
	// RA (7), Z (4-6) and RCODE (0-3).
	Flags uint16

	QDCount uint16
	ANCount uint16
	NSCount uint16
	ARCount uint16
}

// IsQuery reports whether the QR bit is clear.
func (h *DNSHeader) IsQuery() bool {
	return h.Flags&0x8000 == 0
}

// IsResponse reports whether the QR bit is set, per RFC 6762 §18.2 the
// first thing a receive path checks.
func (h *DNSHeader) IsResponse() bool {
	return h.Flags&0x8000 != 0
}

// GetRCODE returns the low four flag bits. RFC 6762 §18.11: responses
// with a nonzero RCODE are silently ignored.
func (h *DNSHeader) GetRCODE() uint8 {
	return uint8(h.Flags & 0x000F)
}

// GetOPCODE returns flag bits 11-14. Must be zero on anything this
// library transmits (RFC 6762 §18.3).
func (h *DNSHeader) GetOPCODE() uint8 {
	return uint8((h.Flags >> 11) & 0x0F)
}

// Question is one question-section entry per RFC 1035 §4.1.2: a QNAME in
// label encoding followed by two fixed 16-bit fields.
type Question struct {
	QNAME string

	// QTYPE is the queried record type; see protocol.RecordType for the
	// values this library recognizes.
	QTYPE uint16

	// QCLASS is IN (1) for everything mDNS does. Bit 15 is the RFC 6762
	// §5.4 QU bit and must be masked off before comparing against IN.
	QCLASS uint16
}

// Answer is one resource record from the answer, authority, or additional
// section per RFC 1035 §4.1.3.
type Answer struct {
	NAME  string
	TYPE  uint16
	CLASS uint16 // bit 15 is the RFC 6762 §10.2 cache-flush bit
	TTL   uint32

	RDLENGTH uint16

	// RDATA is a self-contained copy of the record payload. A compression
	// pointer inside it (a PTR or SRV target) cannot resolve against this
	// copy alone; the typed parsers take RDataOffset plus the original
	// message buffer instead.
	RDATA []byte

	// RDataOffset is where RDATA began inside the message this record was
	// parsed from.
	RDataOffset int
}

// DNSMessage is a fully-materialized DNS message: the header plus the
// four sections in wire order.
type DNSMessage struct {
	Header      DNSHeader
	Questions   []Question
	Answers     []Answer
	Authorities []Answer
	Additionals []Answer
}
