package responder

import (
	"fmt"
	"net"

	"github.com/beaconmdns/beacon/internal/dnssd"
	"github.com/beaconmdns/beacon/internal/message"
	"github.com/beaconmdns/beacon/internal/protocol"
	"github.com/beaconmdns/beacon/internal/records"
)

// ResponseBuilder assembles the answer to an inbound service query per
// RFC 6762 §6: only records we are authoritative for, the directly
// responsive record in the answer section, and the SRV/TXT/A set in the
// additional section to save the querier round trips.
//
// Two outputs share the logic: BuildResponse returns a field-level
// message.DNSMessage for inspection, and BuildResponseBytes renders the
// wire bytes through internal/dnssd, the one place name compression and
// the DNS-SD TTLs are applied.
type ResponseBuilder struct {
	maxPacketSize int // RFC 6762 §17 ceiling
}

// ServiceWithIP carries everything a response needs about one service,
// including the address records the registry itself does not store.
type ServiceWithIP struct {
	InstanceName string
	ServiceType  string
	Domain       string
	Port         int
	IPv4Address  []byte
	TXTRecords   map[string]string
	Hostname     string
}

func NewResponseBuilder() *ResponseBuilder {
	return &ResponseBuilder{
		maxPacketSize: 9000,
	}
}

// BuildResponse builds the field-level model of the answer to query. A
// PTR question yields the PTR record in the answer section and SRV, TXT,
// and A in the additional section; if the total would exceed the RFC
// 6762 §17 packet ceiling, additional records are dropped before answer
// records.
func (rb *ResponseBuilder) BuildResponse(service *ServiceWithIP, query *message.DNSMessage) (*message.DNSMessage, error) {
	if service == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if query == nil {
		return nil, fmt.Errorf("query cannot be nil")
	}

	response := &message.DNSMessage{
		Header: message.DNSHeader{
			ID:    query.Header.ID,
			Flags: protocol.FlagQR | protocol.FlagAA,
		},
	}

	serviceInfo := &records.ServiceInfo{
		InstanceName: service.InstanceName,
		ServiceType:  service.ServiceType,
		Hostname:     rb.getHostname(service),
		Port:         service.Port,
		IPv4Address:  service.IPv4Address,
		TXTRecords:   service.TXTRecords,
	}
	allRecords := records.BuildRecordSet(serviceInfo)

	// The query's known-answer section is accepted so callers need no
	// separate path for queries that carry one, though suppression
	// itself is a deliberate no-op (see ApplyKnownAnswerSuppression).
	knownAnswers := make([]*message.ResourceRecord, 0, len(query.Answers))
	for _, answer := range query.Answers {
		knownAnswers = append(knownAnswers, &message.ResourceRecord{
			Name:       answer.NAME,
			Type:       protocol.RecordType(answer.TYPE),
			Class:      protocol.DNSClass(answer.CLASS),
			TTL:        answer.TTL,
			Data:       answer.RDATA,
			CacheFlush: answer.CLASS&0x8000 != 0,
		})
	}

	if len(query.Questions) > 0 && query.Questions[0].QTYPE == uint16(protocol.RecordTypePTR) {
		for _, rr := range allRecords {
			if rr.Type == protocol.RecordTypePTR {
				if rb.ApplyKnownAnswerSuppression(rr, knownAnswers) {
					response.Answers = append(response.Answers, rb.recordToAnswer(rr))
				}
				break
			}
		}
		for _, rr := range allRecords {
			switch rr.Type {
			case protocol.RecordTypeSRV, protocol.RecordTypeTXT, protocol.RecordTypeA:
				if rb.ApplyKnownAnswerSuppression(rr, knownAnswers) {
					response.Additionals = append(response.Additionals, rb.recordToAnswer(rr))
				}
			}
		}
	}

	response.Header.ANCount = uint16(len(response.Answers))
	response.Header.ARCount = uint16(len(response.Additionals))

	if size := rb.EstimatePacketSize(response); size > rb.maxPacketSize {
		response.Additionals = rb.truncateAdditionals(response, size)
		response.Header.ARCount = uint16(len(response.Additionals))
	}

	return response, nil
}

// BuildResponseBytes renders the wire-format answer for service via
// internal/dnssd, so what actually goes out carries name compression and
// the DNS-SD TTLs (10 s service / 60 s host).
func (rb *ResponseBuilder) BuildResponseBytes(service *ServiceWithIP) ([]byte, error) {
	if service == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	return dnssd.QueryAnswer(dnssd.QueryAnswerParams{
		ServiceType:  service.ServiceType,
		InstanceName: service.InstanceName,
		Hostname:     rb.getHostname(service),
		TXTRData:     records.EncodeTXTRecords(service.TXTRecords),
		IPv4:         net.IP(service.IPv4Address),
		Port:         uint16(service.Port),
	})
}

// EstimatePacketSize approximates msg's wire size for the §17 ceiling
// check: the 12-byte header plus a conservative per-record figure.
func (rb *ResponseBuilder) EstimatePacketSize(msg *message.DNSMessage) int {
	size := 12
	for i := range msg.Answers {
		size += rb.estimateRecordSize(&msg.Answers[i])
	}
	for i := range msg.Additionals {
		size += rb.estimateRecordSize(&msg.Additionals[i])
	}
	return size
}

// estimateRecordSize allows ~50 bytes for a compressed name plus the 10
// fixed octets and the actual rdata.
func (rb *ResponseBuilder) estimateRecordSize(answer *message.Answer) int {
	return 50 + 10 + len(answer.RDATA)
}

// truncateAdditionals drops additional records until the packet fits;
// answer records are never dropped.
func (rb *ResponseBuilder) truncateAdditionals(msg *message.DNSMessage, currentSize int) []message.Answer {
	additionals := make([]message.Answer, 0, len(msg.Additionals))
	size := currentSize

	for _, additional := range msg.Additionals {
		recordSize := rb.estimateRecordSize(&additional)
		if size > rb.maxPacketSize {
			size -= recordSize
			continue
		}
		additionals = append(additionals, additional)
	}
	return additionals
}

func (rb *ResponseBuilder) recordToAnswer(rr *message.ResourceRecord) message.Answer {
	return message.Answer{
		NAME:     rr.Name,
		TYPE:     uint16(rr.Type),
		CLASS:    uint16(rr.Class),
		TTL:      rr.TTL,
		RDLENGTH: uint16(len(rr.Data)),
		RDATA:    rr.Data,
	}
}

func (rb *ResponseBuilder) getHostname(service *ServiceWithIP) string {
	if service.Hostname != "" {
		return service.Hostname
	}
	return service.InstanceName + ".local"
}

// ApplyKnownAnswerSuppression always includes the candidate record:
// duplicate-answer suppression (RFC 6762 §7.1) is out of scope for this
// library. The signature stays so queries carrying a known-answer list
// flow through the same path.
func (rb *ResponseBuilder) ApplyKnownAnswerSuppression(_ *message.ResourceRecord, _ []*message.ResourceRecord) bool {
	return true
}
