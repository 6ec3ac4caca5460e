package message

import (
	"encoding/binary"
	"strings"
)

// EncodeMessage serializes a fully-populated DNSMessage to wire format per
// RFC 1035 §4.1, writing the header followed by the question, answer,
// authority, and additional sections in order. Names are written in full
// (no compression) via the same service-instance-aware encoding
// serializeResourceRecord uses, since a DNSMessage's sections may originate
// from arbitrary callers rather than the fixed dnssd layouts.
func EncodeMessage(msg *DNSMessage) ([]byte, error) {
	out := make([]byte, 12)
	binary.BigEndian.PutUint16(out[0:2], msg.Header.ID)
	binary.BigEndian.PutUint16(out[2:4], msg.Header.Flags)
	binary.BigEndian.PutUint16(out[4:6], uint16(len(msg.Questions)))
	binary.BigEndian.PutUint16(out[6:8], uint16(len(msg.Answers)))
	binary.BigEndian.PutUint16(out[8:10], uint16(len(msg.Authorities)))
	binary.BigEndian.PutUint16(out[10:12], uint16(len(msg.Additionals)))

	for _, q := range msg.Questions {
		encodedName, err := encodeMessageName(q.QNAME)
		if err != nil {
			return nil, err
		}
		out = append(out, encodedName...)
		out = binary.BigEndian.AppendUint16(out, q.QTYPE)
		out = binary.BigEndian.AppendUint16(out, q.QCLASS)
	}

	for _, section := range [][]Answer{msg.Answers, msg.Authorities, msg.Additionals} {
		for _, a := range section {
			encoded, err := encodeAnswer(a)
			if err != nil {
				return nil, err
			}
			out = append(out, encoded...)
		}
	}

	return out, nil
}

// encodeAnswer serializes a single answer/authority/additional entry.
func encodeAnswer(a Answer) ([]byte, error) {
	encodedName, err := encodeMessageName(a.NAME)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(encodedName)+10+len(a.RDATA))
	out = append(out, encodedName...)
	out = binary.BigEndian.AppendUint16(out, a.TYPE)
	out = binary.BigEndian.AppendUint16(out, a.CLASS)
	out = binary.BigEndian.AppendUint32(out, a.TTL)
	out = binary.BigEndian.AppendUint16(out, uint16(len(a.RDATA)))
	out = append(out, a.RDATA...)
	return out, nil
}

// encodeMessageName encodes a NAME/QNAME, recognizing the
// "instance._service._proto.local" service-instance-name shape per RFC
// 6763 §4.3 so instance names containing spaces/UTF-8 are accepted.
func encodeMessageName(name string) ([]byte, error) {
	if strings.Contains(name, "._") {
		parts := strings.SplitN(name, "._", 2)
		if len(parts) == 2 {
			return EncodeServiceInstanceName(parts[0], "_"+parts[1])
		}
	}
	return EncodeName(name)
}
