// Package records builds the PTR/SRV/TXT/A record sets a registered
// service announces, and tracks the per-record multicast timing RFC 6762
// §6.2 requires of a responder.
package records

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/beaconmdns/beacon/internal/message"
	"github.com/beaconmdns/beacon/internal/protocol"
)

// ResourceRecord aliases message.ResourceRecord so callers of this
// package need not import message directly.
type ResourceRecord = message.ResourceRecord

// ServiceInfo describes one registered service instance, the input to
// record-set construction.
type ServiceInfo struct {
	InstanceName string // "My Printer"
	ServiceType  string // "_http._tcp.local"
	Hostname     string // "myhost.local"
	Port         int
	IPv4Address  []byte // 4 octets, network order
	TXTRecords   map[string]string
}

// BuildRecordSet constructs the four records a DNS-SD registration
// announces per RFC 6763 §6: the shared PTR from the service type to the
// instance, and the unique SRV, TXT, and A records for the instance and
// its host.
func BuildRecordSet(service *ServiceInfo) []*message.ResourceRecord {
	return []*message.ResourceRecord{
		buildPTRRecord(service),
		buildSRVRecord(service),
		buildTXTRecordFromService(service),
		buildARecord(service),
	}
}

// BuildGoodbyeRecords is BuildRecordSet with every TTL forced to zero,
// the RFC 6762 §10.1 departure announcement: peers drop the records from
// their caches immediately instead of waiting out the normal TTL.
func BuildGoodbyeRecords(service *ServiceInfo) []*message.ResourceRecord {
	recordSet := BuildRecordSet(service)
	for _, rr := range recordSet {
		rr.TTL = 0
	}
	return recordSet
}

func buildPTRRecord(service *ServiceInfo) *message.ResourceRecord {
	// The rdata is the instance name; instance labels may hold spaces and
	// UTF-8 per RFC 6763 §4.3. ServiceInfo is validated before it reaches
	// this package, so the encode cannot fail.
	target, _ := message.EncodeServiceInstanceName(service.InstanceName, service.ServiceType)

	return &message.ResourceRecord{
		Name:  service.ServiceType,
		Type:  protocol.RecordTypePTR,
		Class: protocol.ClassIN,
		TTL:   GetTTLForRecordType(protocol.RecordTypePTR),
		Data:  target,
		// PTR stays shared: several responders may offer the same type
		// (RFC 6762 §10.2), so no cache-flush bit.
	}
}

func buildSRVRecord(service *ServiceInfo) *message.ResourceRecord {
	port := service.Port
	if port < 0 || port > 0xFFFF {
		port = 0
	}

	// RFC 2782 rdata: priority, weight, port, then the target host.
	data := make([]byte, 6)
	binary.BigEndian.PutUint16(data[4:6], uint16(port))
	hostname, _ := message.EncodeName(service.Hostname)
	data = append(data, hostname...)

	return &message.ResourceRecord{
		Name:       service.InstanceName + "." + service.ServiceType,
		Type:       protocol.RecordTypeSRV,
		Class:      protocol.ClassIN,
		TTL:        GetTTLForRecordType(protocol.RecordTypeSRV),
		Data:       data,
		CacheFlush: true,
	}
}

func buildTXTRecordFromService(service *ServiceInfo) *message.ResourceRecord {
	return &message.ResourceRecord{
		Name:       service.InstanceName + "." + service.ServiceType,
		Type:       protocol.RecordTypeTXT,
		Class:      protocol.ClassIN,
		TTL:        GetTTLForRecordType(protocol.RecordTypeTXT),
		Data:       EncodeTXTRecords(service.TXTRecords),
		CacheFlush: true,
	}
}

func buildARecord(service *ServiceInfo) *message.ResourceRecord {
	addr := service.IPv4Address
	if len(addr) != 4 {
		addr = []byte{0, 0, 0, 0}
	}

	return &message.ResourceRecord{
		Name:       service.Hostname,
		Type:       protocol.RecordTypeA,
		Class:      protocol.ClassIN,
		TTL:        GetTTLForRecordType(protocol.RecordTypeA),
		Data:       addr,
		CacheFlush: true,
	}
}

// EncodeTXTRecords encodes key/value pairs as TXT rdata per RFC 6763
// §6.4: each pair is a length octet followed by "key=value". An empty map
// encodes as the single zero octet RFC 6763 §6 mandates for a service
// with no metadata.
//
// Both the introspectable record model (BuildRecordSet) and the wire
// path (dnssd.QueryAnswerParams.TXTRData) are built from this one
// encoding.
func EncodeTXTRecords(txtRecords map[string]string) []byte {
	if len(txtRecords) == 0 {
		return []byte{0x00}
	}

	data := make([]byte, 0, 256)
	for key, value := range txtRecords {
		entry := key + "=" + value
		data = append(data, byte(len(entry)))
		data = append(data, entry...)
	}
	return data
}

// RecordSet tracks when each record was last multicast on each interface.
//
// RFC 6762 §6.2: a responder must not multicast a given record on a given
// interface until a second has passed since it last did — except when
// defending a name against a probe, where the floor drops to 250 ms.
type RecordSet struct {
	// keyed by record identity plus interface; nanosecond stamps keep the
	// 250 ms probe-defense comparison exact.
	lastMulticast map[string]int64
}

func NewRecordSet() *RecordSet {
	return &RecordSet{lastMulticast: make(map[string]int64)}
}

// CanMulticast reports whether the one-second floor has elapsed for rr on
// interfaceID (or the record was never sent there).
func (rs *RecordSet) CanMulticast(rr *ResourceRecord, interfaceID string) bool {
	return rs.elapsed(rr, interfaceID, time.Second)
}

// CanMulticastProbeDefense applies the relaxed 250 ms probe-defense floor
// of RFC 6762 §6.2.
func (rs *RecordSet) CanMulticastProbeDefense(rr *ResourceRecord, interfaceID string) bool {
	return rs.elapsed(rr, interfaceID, 250*time.Millisecond)
}

func (rs *RecordSet) elapsed(rr *ResourceRecord, interfaceID string, floor time.Duration) bool {
	last, exists := rs.lastMulticast[rs.recordKey(rr)+":"+interfaceID]
	if !exists {
		return true
	}
	return time.Now().UnixNano()-last >= floor.Nanoseconds()
}

// RecordMulticast stamps rr as multicast on interfaceID now.
func (rs *RecordSet) RecordMulticast(rr *ResourceRecord, interfaceID string) {
	rs.lastMulticast[rs.recordKey(rr)+":"+interfaceID] = time.Now().UnixNano()
}

// GetLastMulticast returns when rr was last multicast on interfaceID,
// and whether it ever was.
func (rs *RecordSet) GetLastMulticast(rr *ResourceRecord, interfaceID string) (time.Time, bool) {
	last, exists := rs.lastMulticast[rs.recordKey(rr)+":"+interfaceID]
	if !exists {
		return time.Time{}, false
	}
	return time.Unix(0, last), true
}

// recordKey identifies a record by name, type, class, and rdata. TTL is
// deliberately excluded: the same record re-announced with a different
// TTL is still the same record for rate-limiting purposes.
func (rs *RecordSet) recordKey(rr *ResourceRecord) string {
	return fmt.Sprintf("%d:%d:%s:%s", rr.Type, rr.Class, rr.Name, rr.Data)
}
