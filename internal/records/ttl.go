package records

import (
	"time"

	"github.com/beaconmdns/beacon/internal/protocol"
)

// RecordTTL pairs a record type with its TTL and creation time, so the
// remaining lifetime can be computed as the record ages per RFC 6762 §10.
type RecordTTL struct {
	RecordType protocol.RecordType
	TTL        uint32 // initial TTL, seconds
	CreatedAt  time.Time
}

func NewRecordTTL(rt protocol.RecordType, ttl uint32) *RecordTTL {
	return &RecordTTL{
		RecordType: rt,
		TTL:        ttl,
		CreatedAt:  time.Now(),
	}
}

// GetRemainingTTL returns the seconds of lifetime left, zero once
// expired.
func (r *RecordTTL) GetRemainingTTL() uint32 {
	elapsed := uint32(time.Since(r.CreatedAt).Seconds())
	if elapsed >= r.TTL {
		return 0
	}
	return r.TTL - elapsed
}

// IsExpired reports whether the record's TTL has run out.
func (r *RecordTTL) IsExpired() bool {
	return time.Since(r.CreatedAt) >= time.Duration(r.TTL)*time.Second
}

// GetTTLForRecordType returns the TTL used when building a DNS-SD record
// set. These are deliberately shorter than the RFC 6762 §10 announcement
// recommendation: a DNS-SD answer serves one in-flight browse/resolve,
// so a short TTL bounds how long a stale answer lingers in peer caches.
//
//   - PTR, SRV, TXT: protocol.DNSSDTTLService (10 s)
//   - A, AAAA: protocol.DNSSDTTLHost (60 s)
func GetTTLForRecordType(rt protocol.RecordType) uint32 {
	switch rt {
	case protocol.RecordTypeA, protocol.RecordTypeAAAA:
		return uint32(protocol.DNSSDTTLHost.Seconds())
	default:
		return uint32(protocol.DNSSDTTLService.Seconds())
	}
}
