package message

import (
	goerrors "errors"
	"net"
	"strings"
	"testing"

	"github.com/beaconmdns/beacon/internal/errors"
)

const testLocalName = "test.local"

// TestParseMessage_RFC1035_ValidResponse validates that ParseMessage correctly
// parses a complete DNS response message per RFC 1035 §4.1.
func TestParseMessage_RFC1035_ValidResponse(t *testing.T) {
	msg := make([]byte, 0)

	header := []byte{
		0x12, 0x34, // ID
		0x80, 0x00, // Flags: QR=1
		0x00, 0x01, // QDCOUNT = 1
		0x00, 0x01, // ANCOUNT = 1
		0x00, 0x00, // NSCOUNT = 0
		0x00, 0x00, // ARCOUNT = 0
	}
	msg = append(msg, header...)

	question := []byte{
		0x04, 't', 'e', 's', 't',
		0x05, 'l', 'o', 'c', 'a', 'l',
		0x00,
		0x00, 0x01, // QTYPE = A
		0x00, 0x01, // QCLASS = IN
	}
	msg = append(msg, question...)

	answer := []byte{
		0x04, 't', 'e', 's', 't',
		0x05, 'l', 'o', 'c', 'a', 'l',
		0x00,
		0x00, 0x01, // TYPE = A
		0x00, 0x01, // CLASS = IN
		0x00, 0x00, 0x00, 0x78, // TTL = 120
		0x00, 0x04, // RDLENGTH = 4
		192, 168, 1, 100,
	}
	msg = append(msg, answer...)

	parsed, err := ParseMessage(msg)
	if err != nil {
		t.Fatalf("ParseMessage failed: %v", err)
	}

	if parsed.Header.ID != 0x1234 {
		t.Errorf("Header.ID = 0x%04X, want 0x1234", parsed.Header.ID)
	}
	if !parsed.Header.IsResponse() {
		t.Error("Header.IsResponse() = false, want true per RFC 1035 §4.1.1")
	}
	if len(parsed.Questions) != 1 || parsed.Questions[0].QNAME != testLocalName {
		t.Fatalf("Questions = %+v, want one question named %q", parsed.Questions, testLocalName)
	}
	if len(parsed.Answers) != 1 {
		t.Fatalf("len(Answers) = %d, want 1", len(parsed.Answers))
	}
	if parsed.Answers[0].NAME != testLocalName {
		t.Errorf("Answers[0].NAME = %q, want %q", parsed.Answers[0].NAME, testLocalName)
	}
	if parsed.Answers[0].TTL != 120 {
		t.Errorf("Answers[0].TTL = %d, want 120", parsed.Answers[0].TTL)
	}

	ip, ok := ParseA(msg, parsed.Answers[0].RDataOffset, int(parsed.Answers[0].RDLENGTH))
	if !ok || !ip.Equal(net.IPv4(192, 168, 1, 100)) {
		t.Errorf("ParseA = %v, %v, want 192.168.1.100, true", ip, ok)
	}
}

func TestParseHeader_RFC1035_Format(t *testing.T) {
	tests := []struct {
		name   string
		header []byte
		want   DNSHeader
	}{
		{
			name: "query header per RFC 1035 §4.1.1",
			header: []byte{
				0x00, 0x00,
				0x00, 0x00,
				0x00, 0x01,
				0x00, 0x00,
				0x00, 0x00,
				0x00, 0x00,
			},
			want: DNSHeader{ID: 0, Flags: 0x0000, QDCount: 1, ANCount: 0, NSCount: 0, ARCount: 0},
		},
		{
			name: "response header per RFC 1035 §4.1.1",
			header: []byte{
				0x12, 0x34,
				0x81, 0x80,
				0x00, 0x01,
				0x00, 0x02,
				0x00, 0x00,
				0x00, 0x01,
			},
			want: DNSHeader{ID: 0x1234, Flags: 0x8180, QDCount: 1, ANCount: 2, NSCount: 0, ARCount: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseHeader(tt.header)
			if err != nil {
				t.Fatalf("ParseHeader failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseHeader_TruncatedMessage(t *testing.T) {
	tests := []struct {
		name   string
		header []byte
		errMsg string
	}{
		{name: "empty message", header: []byte{}, errMsg: "message too short"},
		{
			name:   "partial header (11 bytes)",
			header: []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00},
			errMsg: "message too short",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseHeader(tt.header)
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.errMsg)
			}
			var wireErr *errors.WireFormatError
			if !goerrors.As(err, &wireErr) {
				t.Errorf("expected WireFormatError, got %T", err)
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("expected error containing %q, got: %v", tt.errMsg, err)
			}
		})
	}
}

func TestParseQuestion_RFC1035_Format(t *testing.T) {
	questionData := []byte{
		0x04, 't', 'e', 's', 't',
		0x05, 'l', 'o', 'c', 'a', 'l',
		0x00,
		0x00, 0x01,
		0x00, 0x01,
	}

	question, newOffset, err := ParseQuestion(questionData, 0)
	if err != nil {
		t.Fatalf("ParseQuestion failed: %v", err)
	}
	if question.QNAME != testLocalName {
		t.Errorf("QNAME = %q, want %q", question.QNAME, testLocalName)
	}
	if question.QTYPE != 1 || question.QCLASS != 1 {
		t.Errorf("QTYPE/QCLASS = %d/%d, want 1/1", question.QTYPE, question.QCLASS)
	}
	if newOffset != len(questionData) {
		t.Errorf("newOffset = %d, want %d", newOffset, len(questionData))
	}
}

func TestParseAnswer_RFC1035_Format(t *testing.T) {
	answerData := []byte{
		0x04, 't', 'e', 's', 't',
		0x05, 'l', 'o', 'c', 'a', 'l',
		0x00,
		0x00, 0x01,
		0x00, 0x01,
		0x00, 0x00, 0x00, 0x78,
		0x00, 0x04,
		192, 168, 1, 100,
	}

	answer, newOffset, err := ParseAnswer(answerData, 0)
	if err != nil {
		t.Fatalf("ParseAnswer failed: %v", err)
	}
	if answer.NAME != testLocalName || answer.TYPE != 1 || answer.CLASS != 1 || answer.TTL != 120 || answer.RDLENGTH != 4 {
		t.Errorf("unexpected answer: %+v", answer)
	}
	if newOffset != len(answerData) {
		t.Errorf("newOffset = %d, want %d", newOffset, len(answerData))
	}
}

func TestParseA_RFC1035_Format(t *testing.T) {
	buf := []byte{192, 168, 1, 100}
	ip, ok := ParseA(buf, 0, 4)
	if !ok {
		t.Fatal("ParseA returned ok=false")
	}
	if !ip.Equal(net.IPv4(192, 168, 1, 100)) {
		t.Errorf("IP = %s, want 192.168.1.100", ip)
	}

	if _, ok := ParseA(buf[:3], 0, 3); ok {
		t.Error("expected ok=false for wrong-length rdata")
	}
}

func TestParseAAAA(t *testing.T) {
	buf := make([]byte, 16)
	buf[15] = 1 // ::1
	ip, ok := ParseAAAA(buf, 0, 16)
	if !ok {
		t.Fatal("ParseAAAA returned ok=false")
	}
	if !ip.Equal(net.ParseIP("::1")) {
		t.Errorf("IP = %s, want ::1", ip)
	}

	if _, ok := ParseAAAA(buf[:4], 0, 4); ok {
		t.Error("expected ok=false for wrong-length rdata")
	}
}

func TestParsePTR_RFC1035_Format(t *testing.T) {
	buf := []byte{
		0x09, 'm', 'y', 's', 'e', 'r', 'v', 'i', 'c', 'e',
		0x05, '_', 'h', 't', 't', 'p',
		0x04, '_', 't', 'c', 'p',
		0x05, 'l', 'o', 'c', 'a', 'l',
		0x00,
	}

	name, ok := ParsePTR(buf, 0, len(buf))
	if !ok {
		t.Fatal("ParsePTR returned ok=false")
	}
	expected := "myservice._http._tcp.local"
	if name != expected {
		t.Errorf("PTR name = %q, want %q", name, expected)
	}
}

// TestParsePTR_ThroughCompression validates that ParsePTR follows a
// compression pointer embedded in rdata against the *full* message buffer,
// not an isolated copy of the rdata bytes — this is the core bug this
// implementation fixes relative to a naive rdata-only name parser.
func TestParsePTR_ThroughCompression(t *testing.T) {
	msg := []byte{
		// Offset 0: "_http._tcp.local\x00" (used as compression target)
		0x05, '_', 'h', 't', 't', 'p',
		0x04, '_', 't', 'c', 'p',
		0x05, 'l', 'o', 'c', 'a', 'l',
		0x00,
		// Offset 18: PTR rdata = "myservice" + pointer to offset 0
		0x09, 'm', 'y', 's', 'e', 'r', 'v', 'i', 'c', 'e',
		0xC0, 0x00,
	}
	rdataOffset := 18
	rdataLength := 12

	name, ok := ParsePTR(msg, rdataOffset, rdataLength)
	if !ok {
		t.Fatal("ParsePTR returned ok=false")
	}
	expected := "myservice._http._tcp.local"
	if name != expected {
		t.Errorf("PTR name = %q, want %q", name, expected)
	}
}

func TestParseSRV_RFC2782_Format(t *testing.T) {
	buf := []byte{
		0x00, 0x0A, // Priority = 10
		0x00, 0x14, // Weight = 20
		0x1F, 0x90, // Port = 8080
		0x06, 's', 'e', 'r', 'v', 'e', 'r',
		0x05, 'l', 'o', 'c', 'a', 'l',
		0x00,
	}

	srv, ok := ParseSRV(buf, 0, len(buf))
	if !ok {
		t.Fatal("ParseSRV returned ok=false")
	}
	if srv.Priority != 10 || srv.Weight != 20 || srv.Port != 8080 || srv.Target != "server.local" {
		t.Errorf("unexpected SRV: %+v", srv)
	}
}

// TestParseSRV_ThroughCompression mirrors TestParsePTR_ThroughCompression
// for the SRV target name.
func TestParseSRV_ThroughCompression(t *testing.T) {
	msg := []byte{
		// Offset 0: "local\x00"
		0x05, 'l', 'o', 'c', 'a', 'l',
		0x00,
		// Offset 7: SRV rdata
		0x00, 0x0A,
		0x00, 0x14,
		0x1F, 0x90,
		0x06, 's', 'e', 'r', 'v', 'e', 'r',
		0xC0, 0x00,
	}
	rdataOffset := 7
	rdataLength := 15

	srv, ok := ParseSRV(msg, rdataOffset, rdataLength)
	if !ok {
		t.Fatal("ParseSRV returned ok=false")
	}
	if srv.Target != "server.local" {
		t.Errorf("Target = %q, want %q", srv.Target, "server.local")
	}
}

// TestParseTXT_KeyValue validates key/value splitting on a 3-entry TXT record.
func TestParseTXT_KeyValue(t *testing.T) {
	buf := []byte{
		0x0B, 'v', 'e', 'r', 's', 'i', 'o', 'n', '=', '1', '.', '0',
		0x09, 'p', 'a', 't', 'h', '=', '/', 'a', 'p', 'i',
		0x04, 'n', 'o', 'e', 'q',
	}

	entries := ParseTXT(buf, 0, len(buf))
	if len(entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3", len(entries))
	}
	if entries[0].Key != "version" || entries[0].Value != "1.0" {
		t.Errorf("entries[0] = %+v", entries[0])
	}
	if entries[1].Key != "path" || entries[1].Value != "/api" {
		t.Errorf("entries[1] = %+v", entries[1])
	}
	if entries[2].Key != "noeq" || entries[2].Value != "" {
		t.Errorf("entries[2] = %+v", entries[2])
	}
}

func TestParseTXT_SkipsEmptyAndMalformed(t *testing.T) {
	buf := []byte{
		0x00,                          // empty string: skipped
		0x02, '=', 'x',                // empty key: skipped
		0x03, 'a', '=', 'b',           // "a=b": kept
	}

	entries := ParseTXT(buf, 0, len(buf))
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1: %+v", len(entries), entries)
	}
	if entries[0].Key != "a" || entries[0].Value != "b" {
		t.Errorf("entries[0] = %+v", entries[0])
	}
}

// TestParseMessage_MalformedPacket validates that truncation stops parsing
// cleanly without surfacing an error, per the "parse what you can" design.
func TestParseMessage_MalformedPacket(t *testing.T) {
	t.Run("truncated header", func(t *testing.T) {
		_, err := ParseMessage([]byte{0x00, 0x00, 0x00, 0x00})
		if err == nil {
			t.Fatal("expected error for a header too short to read at all")
		}
		var wireErr *errors.WireFormatError
		if !goerrors.As(err, &wireErr) {
			t.Errorf("expected WireFormatError, got %T", err)
		}
	})

	t.Run("truncated question section", func(t *testing.T) {
		msg := []byte{
			0x00, 0x00,
			0x00, 0x00,
			0x00, 0x01, // QDCOUNT = 1, but no question bytes follow
			0x00, 0x00,
			0x00, 0x00,
			0x00, 0x00,
		}
		parsed, err := ParseMessage(msg)
		if err != nil {
			t.Fatalf("expected no error on truncation, got: %v", err)
		}
		if len(parsed.Questions) != 0 {
			t.Errorf("expected 0 questions delivered, got %d", len(parsed.Questions))
		}
	})
}

// TestParseMessage_WithCompression validates that ParseMessage correctly
// decompresses answer names per RFC 1035 §4.1.4.
func TestParseMessage_WithCompression(t *testing.T) {
	msg := make([]byte, 0)

	header := []byte{
		0x00, 0x00,
		0x80, 0x00,
		0x00, 0x01,
		0x00, 0x01,
		0x00, 0x00,
		0x00, 0x00,
	}
	msg = append(msg, header...)

	question := []byte{
		0x04, 't', 'e', 's', 't',
		0x05, 'l', 'o', 'c', 'a', 'l',
		0x00,
		0x00, 0x01,
		0x00, 0x01,
	}
	msg = append(msg, question...)

	answer := []byte{
		0xC0, 0x0C, // pointer to offset 12, the question's name
		0x00, 0x01,
		0x00, 0x01,
		0x00, 0x00, 0x00, 0x78,
		0x00, 0x04,
		192, 168, 1, 100,
	}
	msg = append(msg, answer...)

	parsed, err := ParseMessage(msg)
	if err != nil {
		t.Fatalf("ParseMessage failed: %v", err)
	}
	if len(parsed.Answers) != 1 {
		t.Fatalf("len(Answers) = %d, want 1", len(parsed.Answers))
	}
	if parsed.Answers[0].NAME != testLocalName {
		t.Errorf("Answer NAME = %q, want %q (decompressed per RFC 1035 §4.1.4)", parsed.Answers[0].NAME, testLocalName)
	}
}

// TestWalk_OnlyLastQuestionMatch validates the demultiplexing option:
// only answers matching the last (and in these tests, only) question are
// delivered.
func TestWalk_OnlyLastQuestionMatch(t *testing.T) {
	msg := make([]byte, 0)
	msg = append(msg, 0x00, 0x00, 0x80, 0x00, 0x00, 0x01, 0x00, 0x02, 0x00, 0x00, 0x00, 0x00)
	msg = append(msg, 0x04, 't', 'e', 's', 't', 0x05, 'l', 'o', 'c', 'a', 'l', 0x00, 0x00, 0x01, 0x00, 0x01)
	// Matching answer
	msg = append(msg, 0xC0, 0x0C, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x00, 0x78, 0x00, 0x04, 1, 2, 3, 4)
	// Non-matching answer
	msg = append(msg, 0x05, 'o', 't', 'h', 'e', 'r', 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x00, 0x78, 0x00, 0x04, 5, 6, 7, 8)

	var delivered []Answer
	count, err := Walk(msg, Sink{
		OnAnswer: func(_ string, a Answer) { delivered = append(delivered, a) },
	}, WalkOptions{OnlyLastQuestionMatch: true})
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}
	if count != 1 || len(delivered) != 1 {
		t.Fatalf("expected 1 delivered answer, got %d (%+v)", count, delivered)
	}
	if delivered[0].NAME != testLocalName {
		t.Errorf("delivered[0].NAME = %q, want %q", delivered[0].NAME, testLocalName)
	}
}

// TestWalk_CallerSuppliedLastQuestion exercises the demultiplexing path
// the querier uses: an mDNS response echoing no question section, with
// the question the caller last sent supplied through WalkOptions.
func TestWalk_CallerSuppliedLastQuestion(t *testing.T) {
	msg := make([]byte, 0)
	// Response header: no questions, two answers.
	msg = append(msg, 0x00, 0x00, 0x84, 0x00, 0x00, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00, 0x00)
	// A record for test.local (matches the sent question).
	msg = append(msg, 0x04, 't', 'e', 's', 't', 0x05, 'l', 'o', 'c', 'a', 'l', 0x00,
		0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x00, 0x78, 0x00, 0x04, 1, 2, 3, 4)
	// TXT record for test.local (same name, wrong type).
	msg = append(msg, 0xC0, 0x0C,
		0x00, 0x10, 0x00, 0x01, 0x00, 0x00, 0x00, 0x78, 0x00, 0x01, 0x00)

	var delivered []Answer
	count, err := Walk(msg, Sink{
		OnAnswer: func(_ string, a Answer) { delivered = append(delivered, a) },
	}, WalkOptions{
		OnlyLastQuestionMatch: true,
		LastQuestion:          Question{QNAME: "test.local", QTYPE: 1},
	})
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}
	if count != 1 || len(delivered) != 1 {
		t.Fatalf("expected only the type-A answer, got %d (%+v)", count, delivered)
	}
	if delivered[0].TYPE != 1 {
		t.Errorf("delivered TYPE = %d, want 1", delivered[0].TYPE)
	}

	// The same question with QTYPE ANY admits both records.
	count, err = Walk(msg, Sink{}, WalkOptions{
		OnlyLastQuestionMatch: true,
		LastQuestion:          Question{QNAME: "test.local", QTYPE: 255},
	})
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}
	if count != 2 {
		t.Errorf("ANY question delivered %d records, want 2", count)
	}
}
