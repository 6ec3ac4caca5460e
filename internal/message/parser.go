package message

import (
	"encoding/binary"
	"fmt"
	"net"
	"strings"

	"github.com/beaconmdns/beacon/internal/errors"
)

// SRVData represents SRV record data per RFC 2782.
type SRVData struct {
	Priority uint16
	Weight   uint16
	Port     uint16
	Target   string
}

// TXTEntry is one key/value pair extracted from a TXT record's rdata, per
// RFC 6763 §6.4: each length-prefixed string is split on its first '='.
// Strings with no '=' are kept with an empty Value; empty strings and
// strings where '=' is the first byte (empty key) are skipped.
type TXTEntry struct {
	Key   string
	Value string
}

// ParseHeader parses the DNS message header per RFC 1035 §4.1.1.
func ParseHeader(msg []byte) (DNSHeader, error) {
	if len(msg) < 12 {
		return DNSHeader{}, &errors.WireFormatError{
			Operation: "parse header",
			Offset:    0,
			Message:   fmt.Sprintf("message too short for header: %d bytes, expected at least 12", len(msg)),
		}
	}

	return DNSHeader{
		ID:      binary.BigEndian.Uint16(msg[0:2]),
		Flags:   binary.BigEndian.Uint16(msg[2:4]),
		QDCount: binary.BigEndian.Uint16(msg[4:6]),
		ANCount: binary.BigEndian.Uint16(msg[6:8]),
		NSCount: binary.BigEndian.Uint16(msg[8:10]),
		ARCount: binary.BigEndian.Uint16(msg[10:12]),
	}, nil
}

// ParseQuestion parses a DNS question section entry per RFC 1035 §4.1.2.
// A malformed QNAME decodes to an empty string rather than aborting; only
// truncation of the fixed QTYPE/QCLASS fields is reported as an error.
func ParseQuestion(msg []byte, offset int) (Question, int, error) {
	qname, newOffset := Extract(msg, offset)

	if newOffset+4 > len(msg) {
		return Question{}, offset, &errors.WireFormatError{
			Operation: "parse question",
			Offset:    newOffset,
			Message:   "truncated question: not enough bytes for QTYPE and QCLASS",
		}
	}

	question := Question{
		QNAME:  qname,
		QTYPE:  binary.BigEndian.Uint16(msg[newOffset : newOffset+2]),
		QCLASS: binary.BigEndian.Uint16(msg[newOffset+2 : newOffset+4]),
	}

	return question, newOffset + 4, nil
}

// ParseAnswer parses a DNS answer/authority/additional section entry per
// RFC 1035 §4.1.3. RDATA is copied out for convenience, but RDataOffset is
// retained so record-level parsers can resolve compression pointers
// embedded in rdata against the original buffer.
func ParseAnswer(msg []byte, offset int) (Answer, int, error) {
	name, newOffset := Extract(msg, offset)

	if newOffset+10 > len(msg) {
		return Answer{}, offset, &errors.WireFormatError{
			Operation: "parse answer",
			Offset:    newOffset,
			Message:   "truncated answer: not enough bytes for fixed fields",
		}
	}

	rtype := binary.BigEndian.Uint16(msg[newOffset : newOffset+2])
	class := binary.BigEndian.Uint16(msg[newOffset+2 : newOffset+4])
	ttl := binary.BigEndian.Uint32(msg[newOffset+4 : newOffset+8])
	rdlength := binary.BigEndian.Uint16(msg[newOffset+8 : newOffset+10])
	newOffset += 10

	if newOffset+int(rdlength) > len(msg) {
		return Answer{}, offset, &errors.WireFormatError{
			Operation: "parse answer",
			Offset:    newOffset,
			Message:   fmt.Sprintf("truncated RDATA: expected %d bytes, only %d available", rdlength, len(msg)-newOffset),
		}
	}

	rdata := make([]byte, rdlength)
	copy(rdata, msg[newOffset:newOffset+int(rdlength)])

	answer := Answer{
		NAME:        name,
		TYPE:        rtype,
		CLASS:       class,
		TTL:         ttl,
		RDLENGTH:    rdlength,
		RDATA:       rdata,
		RDataOffset: newOffset,
	}

	return answer, newOffset + int(rdlength), nil
}

// ParsePTR decodes a PTR record's rdata (a domain name) directly against
// the full message buffer, so a compression pointer inside it can resolve
// to any earlier offset in the message, not just within the rdata bytes.
// ok is false if rdataLength is zero.
func ParsePTR(buf []byte, rdataOffset, rdataLength int) (name string, ok bool) {
	if rdataLength == 0 || rdataOffset < 0 || rdataOffset >= len(buf) {
		return "", false
	}
	name, _ = Extract(buf, rdataOffset)
	return name, true
}

// ParseSRV decodes an SRV record's rdata (RFC 2782: priority, weight, port,
// target) against the full message buffer, so the target name's
// compression pointers resolve correctly.
func ParseSRV(buf []byte, rdataOffset, rdataLength int) (SRVData, bool) {
	if rdataLength < 6 || rdataOffset < 0 || rdataOffset+6 > len(buf) {
		return SRVData{}, false
	}

	target, _ := Extract(buf, rdataOffset+6)
	return SRVData{
		Priority: binary.BigEndian.Uint16(buf[rdataOffset : rdataOffset+2]),
		Weight:   binary.BigEndian.Uint16(buf[rdataOffset+2 : rdataOffset+4]),
		Port:     binary.BigEndian.Uint16(buf[rdataOffset+4 : rdataOffset+6]),
		Target:   target,
	}, true
}

// ParseA decodes an A record's rdata (a 4-byte IPv4 address).
func ParseA(buf []byte, rdataOffset, rdataLength int) (net.IP, bool) {
	if rdataLength != 4 || rdataOffset < 0 || rdataOffset+4 > len(buf) {
		return nil, false
	}
	return net.IPv4(buf[rdataOffset], buf[rdataOffset+1], buf[rdataOffset+2], buf[rdataOffset+3]), true
}

// ParseAAAA decodes an AAAA record's rdata (a 16-byte IPv6 address).
func ParseAAAA(buf []byte, rdataOffset, rdataLength int) (net.IP, bool) {
	if rdataLength != 16 || rdataOffset < 0 || rdataOffset+16 > len(buf) {
		return nil, false
	}
	ip := make(net.IP, 16)
	copy(ip, buf[rdataOffset:rdataOffset+16])
	return ip, true
}

// ParseTXT decodes a TXT record's rdata (RFC 1035 §3.3.14: one or more
// length-prefixed character strings) into key/value pairs per RFC 6763
// §6.3: each string is split on its first '='. A string with no '=' is
// kept with an empty value; an empty string, or one whose first byte is
// '=' (empty key), is skipped.
func ParseTXT(buf []byte, rdataOffset, rdataLength int) []TXTEntry {
	if rdataLength <= 0 || rdataOffset < 0 || rdataOffset+rdataLength > len(buf) {
		return nil
	}

	var entries []TXTEntry
	pos := rdataOffset
	end := rdataOffset + rdataLength

	for pos < end {
		length := int(buf[pos])
		pos++
		if pos+length > end {
			break
		}
		str := string(buf[pos : pos+length])
		pos += length

		if str == "" {
			continue
		}
		eq := strings.IndexByte(str, '=')
		switch {
		case eq == 0:
			continue // empty key, malformed per RFC 6763 §6.4
		case eq < 0:
			entries = append(entries, TXTEntry{Key: str})
		default:
			entries = append(entries, TXTEntry{Key: str[:eq], Value: str[eq+1:]})
		}
	}
	return entries
}

// WalkOptions configures Walk's demultiplexing behavior.
type WalkOptions struct {
	// OnlyLastQuestionMatch restricts the answer/authority/additional
	// callbacks to records matching the last question — same name, and
	// same type unless the question asked for ANY — for demultiplexing a
	// socket shared by several concurrent queriers.
	OnlyLastQuestionMatch bool

	// LastQuestion is the question to match against: the one the caller
	// most recently sent on its socket. mDNS responses usually echo no
	// question section, so the caller owns this state rather than Walk.
	// Left zero, Walk falls back to the last question in the message
	// itself.
	LastQuestion Question
}

// Sink receives each parsed record during Walk. header is delivered once
// at the start.
type Sink struct {
	OnHeader   func(DNSHeader)
	OnQuestion func(Question)
	OnAnswer   func(section string, answer Answer)
}

// Walk parses msg section by section, invoking sink's callbacks as it
// goes, and returns the number of answer/authority/additional records
// successfully delivered. A truncated message stops cleanly at the point
// of truncation: Walk never returns an error for truncation, only for a
// header too short to read at all.
func Walk(msg []byte, sink Sink, opts WalkOptions) (delivered int, err error) {
	header, err := ParseHeader(msg)
	if err != nil {
		return 0, err
	}
	if sink.OnHeader != nil {
		sink.OnHeader(header)
	}

	offset := 12
	var lastQuestion Question
	haveLastQuestion := false

	for i := uint16(0); i < header.QDCount; i++ {
		question, newOffset, qerr := ParseQuestion(msg, offset)
		if qerr != nil {
			return delivered, nil
		}
		offset = newOffset
		lastQuestion = question
		haveLastQuestion = true
		if sink.OnQuestion != nil {
			sink.OnQuestion(question)
		}
	}

	sections := []struct {
		name  string
		count uint16
	}{
		{"answer", header.ANCount},
		{"authority", header.NSCount},
		{"additional", header.ARCount},
	}

	for _, section := range sections {
		for i := uint16(0); i < section.count; i++ {
			answer, newOffset, aerr := ParseAnswer(msg, offset)
			if aerr != nil {
				return delivered, nil
			}
			offset = newOffset

			if opts.OnlyLastQuestionMatch {
				ref, haveRef := opts.LastQuestion, opts.LastQuestion.QNAME != ""
				if !haveRef {
					ref, haveRef = lastQuestion, haveLastQuestion
				}
				if haveRef {
					if !strings.EqualFold(answer.NAME, ref.QNAME) {
						continue
					}
					if ref.QTYPE != 255 && answer.TYPE != ref.QTYPE {
						continue
					}
				}
			}

			delivered++
			if sink.OnAnswer != nil {
				sink.OnAnswer(section.name, answer)
			}
		}
	}

	return delivered, nil
}

// ParseMessage parses a complete DNS message from wire format per RFC 1035
// §4.1, as a convenience wrapper over Walk for callers that want the whole
// message materialized rather than streamed through callbacks.
func ParseMessage(msg []byte) (*DNSMessage, error) {
	result := &DNSMessage{}

	_, err := Walk(msg, Sink{
		OnHeader: func(h DNSHeader) { result.Header = h },
		OnQuestion: func(q Question) {
			result.Questions = append(result.Questions, q)
		},
		OnAnswer: func(section string, a Answer) {
			switch section {
			case "answer":
				result.Answers = append(result.Answers, a)
			case "authority":
				result.Authorities = append(result.Authorities, a)
			case "additional":
				result.Additionals = append(result.Additionals, a)
			}
		},
	}, WalkOptions{})
	if err != nil {
		return nil, err
	}

	return result, nil
}
