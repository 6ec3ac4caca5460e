package querier

import (
	"net"

	"github.com/beaconmdns/beacon/internal/protocol"
)

// RecordType is a DNS record type accepted by Query.
type RecordType uint16

const (
	// RecordTypeA resolves a hostname to an IPv4 address.
	RecordTypeA RecordType = RecordType(protocol.RecordTypeA)

	// RecordTypePTR browses a service type for its instances, e.g.
	// Query("_http._tcp.local", RecordTypePTR).
	RecordTypePTR RecordType = RecordType(protocol.RecordTypePTR)

	// RecordTypeTXT fetches a service instance's metadata strings.
	RecordTypeTXT RecordType = RecordType(protocol.RecordTypeTXT)

	// RecordTypeAAAA resolves a hostname to an IPv6 address.
	RecordTypeAAAA RecordType = RecordType(protocol.RecordTypeAAAA)

	// RecordTypeSRV resolves a service instance to its host and port.
	RecordTypeSRV RecordType = RecordType(protocol.RecordTypeSRV)
)

func (r RecordType) String() string {
	return protocol.RecordType(r).String()
}

// Response aggregates everything one query collected. An empty Records
// slice means the window closed with no responders, which is a normal
// outcome on a quiet network.
type Response struct {
	Records []ResourceRecord
}

// ResourceRecord is one answer from a responder, with the rdata already
// decoded into Data. Use the As* accessors for type-safe access.
type ResourceRecord struct {
	// Data holds the decoded rdata: net.IP for A/AAAA, string for PTR,
	// SRVData for SRV, []string for TXT.
	Data interface{}

	Name string
	TTL  uint32
	Type RecordType

	// Class has the RFC 6762 cache-flush bit already stripped.
	Class uint16
}

// SRVData is a decoded SRV record per RFC 2782: where (and at what
// priority) a service instance actually lives.
type SRVData struct {
	Target   string
	Priority uint16
	Weight   uint16
	Port     uint16
}

// AsA returns the IPv4 address of an A record, nil otherwise.
func (r *ResourceRecord) AsA() net.IP {
	if r.Type != RecordTypeA {
		return nil
	}
	ip, _ := r.Data.(net.IP)
	return ip
}

// AsAAAA returns the IPv6 address of an AAAA record, nil otherwise.
func (r *ResourceRecord) AsAAAA() net.IP {
	if r.Type != RecordTypeAAAA {
		return nil
	}
	ip, _ := r.Data.(net.IP)
	return ip
}

// AsPTR returns a PTR record's target name, empty otherwise.
func (r *ResourceRecord) AsPTR() string {
	if r.Type != RecordTypePTR {
		return ""
	}
	target, _ := r.Data.(string)
	return target
}

// AsSRV returns a SRV record's decoded data, nil otherwise.
func (r *ResourceRecord) AsSRV() *SRVData {
	if r.Type != RecordTypeSRV {
		return nil
	}
	srv, ok := r.Data.(SRVData)
	if !ok {
		return nil
	}
	return &srv
}

// AsTXT returns a TXT record's strings ("key=value" or bare "key"), nil
// otherwise.
func (r *ResourceRecord) AsTXT() []string {
	if r.Type != RecordTypeTXT {
		return nil
	}
	txt, _ := r.Data.([]string)
	return txt
}
