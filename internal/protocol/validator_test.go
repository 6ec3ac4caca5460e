package protocol

import (
	goerrors "errors"
	"strings"
	"testing"

	"github.com/beaconmdns/beacon/internal/errors"
)

func TestValidateNameAccepts(t *testing.T) {
	valid := []string{
		"test.local",
		"printer.local.",
		"_http._tcp.local",
		"_services._dns-sd._udp.local",
		"host-1.local",
		"a.b.c.d.e",
		"x",
	}
	for _, name := range valid {
		if err := ValidateName(name); err != nil {
			t.Errorf("ValidateName(%q) = %v, want nil", name, err)
		}
	}
}

func TestValidateNameRejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"consecutive dots", "a..b"},
		{"space", "my host.local"},
		{"leading hyphen", "-host.local"},
		{"trailing hyphen", "host-.local"},
		{"label over 63", strings.Repeat("a", 64) + ".local"},
		{"name over 255 wire octets", strings.Repeat(strings.Repeat("a", 63)+".", 4) + "local"},
		{"unicode", "café.local"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if err == nil {
				t.Fatalf("ValidateName(%q) = nil, want error", tt.input)
			}
			var verr *errors.ValidationError
			if !goerrors.As(err, &verr) {
				t.Errorf("error type = %T, want *errors.ValidationError", err)
			}
		})
	}
}

func TestValidateNameBoundary(t *testing.T) {
	// A 63-octet label is the largest RFC 1035 §3.1 allows.
	if err := ValidateName(strings.Repeat("a", 63) + ".local"); err != nil {
		t.Errorf("63-octet label rejected: %v", err)
	}
	// Wire form of three 62-octet labels plus "local": 3*63 + 6 + 1 = 196,
	// under the limit.
	under := strings.Repeat(strings.Repeat("a", 62)+".", 3) + "local"
	if err := ValidateName(under); err != nil {
		t.Errorf("name under the 255-octet wire limit rejected: %v", err)
	}
}

func TestValidateRecordType(t *testing.T) {
	for _, rt := range []uint16{1, 12, 16, 28, 33, 255} {
		if err := ValidateRecordType(rt); err != nil {
			t.Errorf("ValidateRecordType(%d) = %v, want nil", rt, err)
		}
	}
	for _, rt := range []uint16{0, 2, 15, 999} {
		if err := ValidateRecordType(rt); err == nil {
			t.Errorf("ValidateRecordType(%d) = nil, want error", rt)
		}
	}
}

func TestValidateResponse(t *testing.T) {
	tests := []struct {
		name    string
		flags   uint16
		wantErr bool
	}{
		{"authoritative response", 0x8400, false},
		{"plain response", 0x8000, false},
		{"query flags", 0x0000, true},
		{"query with RD", 0x0100, true},
		{"response with nonzero RCODE", 0x8403, true},
		{"response with nonzero OPCODE", 0x9000, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateResponse(tt.flags)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateResponse(0x%04X) = %v, wantErr %v", tt.flags, err, tt.wantErr)
			}
		})
	}
}
