// Package responder is the public API for advertising services over
// mDNS: register a service, answer queries for it, and withdraw it with
// a goodbye announcement, per RFC 6762 and RFC 6763.
package responder

import (
	"fmt"
	"regexp"
	"strconv"
)

// Service describes one service to advertise, in RFC 6763 §4 terms: an
// instance label, a "_service._proto.local" type, the port, and optional
// TXT metadata.
type Service struct {
	// InstanceName is the human-readable instance label, e.g. "My
	// Printer". One DNS label, so at most 63 octets; spaces and UTF-8
	// are fine per RFC 6763 §4.3.
	InstanceName string

	// ServiceType is "_service._proto.local", e.g. "_http._tcp.local".
	ServiceType string

	// Port the service listens on.
	Port int

	// TXTRecords is optional metadata. Empty is valid and encodes as the
	// single empty string RFC 6763 §6 requires.
	TXTRecords map[string]string

	// Hostname for the address record; defaults to the system hostname
	// with ".local" appended.
	Hostname string
}

// Validate checks the registration parameters before any probing
// happens, so obviously bad input fails fast rather than a second into
// the state machine.
func (s *Service) Validate() error {
	if s.InstanceName == "" {
		return fmt.Errorf("instance name cannot be empty")
	}
	if len(s.InstanceName) > 63 {
		return fmt.Errorf("instance name exceeds 63 octets (got %d)", len(s.InstanceName))
	}
	if err := validateServiceType(s.ServiceType); err != nil {
		return err
	}
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be in range 1-65535 (got %d)", s.Port)
	}
	return validateTXTRecordsSize(s.TXTRecords)
}

var renameSuffix = regexp.MustCompile(`^(.+)-(\d+)$`)

// Rename picks the next candidate name after a lost probe, per RFC 6762
// §9: append "-2", then count upward. The result is truncated to keep
// the label within 63 octets, sacrificing base-name characters rather
// than the suffix.
func (s *Service) Rename() {
	var newName string
	if matches := renameSuffix.FindStringSubmatch(s.InstanceName); matches != nil {
		suffix, _ := strconv.Atoi(matches[2])
		newName = fmt.Sprintf("%s-%d", matches[1], suffix+1)
	} else {
		newName = s.InstanceName + "-2"
	}
	s.InstanceName = truncateToFit(newName, 63)
}

var truncateSuffix = regexp.MustCompile(`^(.+?)(-\d+)$`)

func truncateToFit(name string, maxLen int) string {
	if len(name) <= maxLen {
		return name
	}
	if matches := truncateSuffix.FindStringSubmatch(name); matches != nil {
		base, suffix := matches[1], matches[2]
		maxBaseLen := maxLen - len(suffix)
		if maxBaseLen >= 1 {
			return base[:maxBaseLen] + suffix
		}
	}
	return name[:maxLen]
}

// serviceTypeRegex pins the RFC 6763 §4.1.2 shape: an underscore-led
// service label, _tcp or _udp, and the .local domain mDNS operates in.
var serviceTypeRegex = regexp.MustCompile(`^_[a-z0-9-]+\._(tcp|udp)\.local$`)

func validateServiceType(serviceType string) error {
	if serviceType == "" {
		return fmt.Errorf("service type cannot be empty")
	}
	if !serviceTypeRegex.MatchString(serviceType) {
		return fmt.Errorf("invalid service type format (must be _service._proto.local, e.g., %q)", "_http._tcp.local")
	}
	return nil
}

// validateTXTRecordsSize enforces the RFC 6763 §6.2 ceiling: TXT rdata
// is meant to be small, and SHOULD NOT exceed 1300 bytes.
func validateTXTRecordsSize(txtRecords map[string]string) error {
	totalSize := 0
	for key, value := range txtRecords {
		totalSize += 1 + len(key) + 1 + len(value) // length octet + "key=value"
	}
	if totalSize > 1300 {
		return fmt.Errorf("TXT records exceed 1300 bytes (got %d)", totalSize)
	}
	return nil
}
