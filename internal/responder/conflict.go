package responder

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/beaconmdns/beacon/internal/message"
)

// ConflictDetector decides name conflicts during probing: the RFC 6762
// §8.2 simultaneous-probe tiebreak over resource records, plus the §9
// rename applied when we lose. It is stateless and safe for concurrent
// use from any number of probers.
type ConflictDetector struct{}

func NewConflictDetector() *ConflictDetector {
	return &ConflictDetector{}
}

// Conflicts reports whether two services compete for the same instance
// name.
func (cd *ConflictDetector) Conflicts(ourService, theirService *Service) bool {
	if ourService == nil || theirService == nil {
		return false
	}
	return strings.EqualFold(ourService.InstanceName, theirService.InstanceName)
}

// DetectConflict runs the RFC 6762 §8.2 tiebreak between one of our
// tentative records and one seen in another host's probe. It returns
// true when we lose — same name and their data is lexicographically
// later — which obliges us to defer and rename. Identical records are
// no conflict: two hosts may deliberately advertise the same data for
// fault tolerance.
func (cd *ConflictDetector) DetectConflict(ourRecord, incomingRecord message.ResourceRecord) (bool, error) {
	if err := validateRecord(ourRecord); err != nil {
		return false, fmt.Errorf("invalid ourRecord: %w", err)
	}
	if err := validateRecord(incomingRecord); err != nil {
		return false, fmt.Errorf("invalid incomingRecord: %w", err)
	}

	// Only records competing for one name can conflict; names compare
	// case-insensitively per RFC 1035 §2.3.3.
	if !strings.EqualFold(ourRecord.Name, incomingRecord.Name) {
		return false, nil
	}

	return compareRecords(ourRecord, incomingRecord) < 0, nil
}

func validateRecord(record message.ResourceRecord) error {
	if record.Name == "" {
		return fmt.Errorf("empty name")
	}
	if record.Data == nil {
		return fmt.Errorf("nil data")
	}
	return nil
}

// compareRecords orders two records per RFC 6762 §8.2: class first (with
// the cache-flush bit masked off), then type, then the raw rdata bytes
// as unsigned values. Returns <0 when ours is earlier (we lose), 0 on a
// tie, >0 when ours is later (we win).
//
// bytes.Compare already treats bytes as unsigned 0-255 values, which the
// RFC calls out as vital: 169.254.200.50 must beat 169.254.99.200.
func compareRecords(ourRecord, incomingRecord message.ResourceRecord) int {
	ourClass := uint16(ourRecord.Class) & 0x7FFF
	theirClass := uint16(incomingRecord.Class) & 0x7FFF
	if ourClass != theirClass {
		if ourClass < theirClass {
			return -1
		}
		return 1
	}

	if ourRecord.Type != incomingRecord.Type {
		if ourRecord.Type < incomingRecord.Type {
			return -1
		}
		return 1
	}

	return bytes.Compare(ourRecord.Data, incomingRecord.Data)
}

// CompareProbes is the single-record tiebreak over raw rdata: true when
// our data is lexicographically later (we win). A tie means identical
// records and no conflict.
func (cd *ConflictDetector) CompareProbes(ourData, theirData []byte) bool {
	return bytes.Compare(ourData, theirData) > 0
}

// CompareMultipleRecords applies the RFC 6762 §8.2.1 pairwise comparison
// when both hosts probe with several records: each sorted list compares
// record by record, and if one list runs out first the longer list wins.
func (cd *ConflictDetector) CompareMultipleRecords(ourRecords, theirRecords [][]byte) bool {
	minLen := len(ourRecords)
	if len(theirRecords) < minLen {
		minLen = len(theirRecords)
	}

	for i := 0; i < minLen; i++ {
		switch cmp := bytes.Compare(ourRecords[i], theirRecords[i]); {
		case cmp > 0:
			return true
		case cmp < 0:
			return false
		}
	}
	return len(ourRecords) > len(theirRecords)
}

var renameSuffix = regexp.MustCompile(`^(.*)\s+\((\d+)\)$`)

// Rename produces the next candidate name after a lost tiebreak, per the
// RFC 6762 §9 convention: "My Printer" → "My Printer (2)" → "My Printer
// (3)".
func (cd *ConflictDetector) Rename(instanceName string) string {
	if matches := renameSuffix.FindStringSubmatch(instanceName); matches != nil {
		current, _ := strconv.Atoi(matches[2])
		return fmt.Sprintf("%s (%d)", matches[1], current+1)
	}
	return fmt.Sprintf("%s (2)", instanceName)
}
