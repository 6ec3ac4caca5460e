package protocol

import (
	"fmt"
	"strings"

	"github.com/beaconmdns/beacon/internal/errors"
)

// ValidateName checks a DNS name against RFC 1035 §3.1: labels of 1-63
// octets, 255 octets total in wire form, characters limited to
// [a-zA-Z0-9-_] with no leading or trailing hyphen. Underscore is outside
// RFC 1035 but required for DNS-SD service labels like "_http".
func ValidateName(name string) error {
	if name == "" {
		return &errors.ValidationError{
			Field:   "name",
			Value:   name,
			Message: "name cannot be empty",
		}
	}

	name = strings.TrimSuffix(name, ".")
	labels := strings.Split(name, ".")

	// Wire length: one length octet per label plus the terminator.
	wireLength := 1
	for _, label := range labels {
		wireLength += 1 + len(label)
	}
	if wireLength > MaxNameLength {
		return &errors.ValidationError{
			Field:   "name",
			Value:   name,
			Message: fmt.Sprintf("name encodes to %d bytes, over the %d-byte limit of RFC 1035 §3.1", wireLength, MaxNameLength),
		}
	}

	for i, label := range labels {
		if err := validateLabel(label, i); err != nil {
			return &errors.ValidationError{
				Field:   "name",
				Value:   name,
				Message: err.Error(),
			}
		}
	}
	return nil
}

func validateLabel(label string, position int) error {
	if label == "" {
		return fmt.Errorf("empty label at position %d (consecutive dots)", position)
	}
	if len(label) > MaxLabelLength {
		return fmt.Errorf("label %q exceeds %d bytes", label, MaxLabelLength)
	}
	if strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
		return fmt.Errorf("label %q starts or ends with a hyphen", label)
	}
	for i, ch := range label {
		if !isValidDNSChar(ch) {
			return fmt.Errorf("invalid character %q in label %q (position %d)", ch, label, i)
		}
	}
	return nil
}

func isValidDNSChar(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') ||
		(ch >= 'A' && ch <= 'Z') ||
		(ch >= '0' && ch <= '9') ||
		ch == '-' ||
		ch == '_'
}

// ValidateRecordType rejects RR types this library cannot query for.
func ValidateRecordType(recordType uint16) error {
	if !RecordType(recordType).IsSupported() {
		return &errors.ValidationError{
			Field:   "recordType",
			Value:   recordType,
			Message: fmt.Sprintf("unsupported record type %d (supports A=1, PTR=12, TXT=16, AAAA=28, SRV=33, ANY=255)", recordType),
		}
	}
	return nil
}

// ValidateResponse applies the RFC 6762 §18 receive-side header checks: QR
// must be set, OPCODE zero, RCODE zero. A message failing any of these is
// dropped rather than partially processed.
func ValidateResponse(flags uint16) error {
	if flags&FlagQR == 0 {
		return &errors.ValidationError{
			Field:   "flags",
			Value:   flags,
			Message: fmt.Sprintf("QR bit clear in a response (flags 0x%04X), RFC 6762 §18.2", flags),
		}
	}
	if opcode := (flags >> 11) & 0x0F; opcode != OpcodeQuery {
		return &errors.ValidationError{
			Field:   "flags",
			Value:   flags,
			Message: fmt.Sprintf("OPCODE %d, want 0 (flags 0x%04X), RFC 6762 §18.3", opcode, flags),
		}
	}
	if rcode := flags & 0x000F; rcode != RCodeNoError {
		return &errors.ValidationError{
			Field:   "flags",
			Value:   flags,
			Message: fmt.Sprintf("RCODE %d, want 0 (flags 0x%04X), RFC 6762 §18.11", rcode, flags),
		}
	}
	return nil
}
