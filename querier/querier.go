package querier

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/beaconmdns/beacon/internal/dnssd"
	"github.com/beaconmdns/beacon/internal/errors"
	"github.com/beaconmdns/beacon/internal/message"
	"github.com/beaconmdns/beacon/internal/protocol"
	"github.com/beaconmdns/beacon/internal/transport"
)

// Querier issues mDNS queries and aggregates the multicast responses. It
// owns one transport and a background receiver goroutine; queries fan
// responses in through a channel until their context expires.
//
//	q, err := querier.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer q.Close()
//
//	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
//	defer cancel()
//
//	response, err := q.Query(ctx, "printer.local", querier.RecordTypeA)
//	for _, record := range response.Records {
//	    if ip := record.AsA(); ip != nil {
//	        fmt.Printf("printer at %s\n", ip)
//	    }
//	}
type Querier struct {
	transport transport.Transport

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	explicitInterfaces []net.Interface
	interfaceFilter    func(net.Interface) bool

	// defaultTimeout applies when a Query context carries no deadline of
	// its own.
	defaultTimeout time.Duration

	responseChan chan []byte

	// mu serializes Query calls; the receive loop is shared, so two
	// concurrent queries would steal each other's responses.
	mu sync.Mutex
}

// New builds a querier and starts its receiver. Without a WithTransport
// option it binds the real IPv4 multicast socket over the interfaces the
// WithInterfaces/WithInterfaceFilter options select.
func New(opts ...Option) (*Querier, error) {
	ctx, cancel := context.WithCancel(context.Background())

	q := &Querier{
		defaultTimeout: time.Second,
		responseChan:   make(chan []byte, 100),
		ctx:            ctx,
		cancel:         cancel,
	}

	for _, opt := range opts {
		if err := opt(q); err != nil {
			cancel()
			return nil, err
		}
	}

	if q.transport == nil {
		tr, err := q.newDefaultTransport()
		if err != nil {
			cancel()
			return nil, err
		}
		q.transport = tr
	}

	q.wg.Add(1)
	go q.receiveLoop()

	return q, nil
}

// newDefaultTransport picks the IPv4 multicast transport per the
// interface configuration: an explicit list beats a custom filter beats
// network.DefaultInterfaces()'s smart default.
func (q *Querier) newDefaultTransport() (transport.Transport, error) {
	switch {
	case len(q.explicitInterfaces) > 0:
		return transport.NewUDPv4TransportWithInterfaces(q.explicitInterfaces)
	case q.interfaceFilter != nil:
		all, err := net.Interfaces()
		if err != nil {
			return nil, &errors.NetworkError{
				Operation: "enumerate interfaces",
				Err:       err,
				Details:   "failed to get network interfaces for custom filter",
			}
		}
		filtered := make([]net.Interface, 0, len(all))
		for _, iface := range all {
			if q.interfaceFilter(iface) {
				filtered = append(filtered, iface)
			}
		}
		if len(filtered) == 0 {
			return nil, &errors.ValidationError{
				Field:   "interfaceFilter",
				Value:   nil,
				Message: "interface filter matched no interfaces",
			}
		}
		return transport.NewUDPv4TransportWithInterfaces(filtered)
	default:
		return transport.NewUDPv4Transport()
	}
}

// Query multicasts one question for (name, recordType) and returns every
// matching answer that arrives before ctx expires. Timing out with zero
// answers is a normal outcome, not an error. If ctx has no deadline, the
// querier's default timeout (WithTimeout) applies.
func (q *Querier) Query(ctx context.Context, name string, recordType RecordType) (*Response, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if err := protocol.ValidateName(name); err != nil {
		return nil, err
	}
	if err := protocol.ValidateRecordType(uint16(recordType)); err != nil {
		return nil, err
	}

	queryMsg, err := dnssd.QuerySend(name, protocol.RecordType(recordType))
	if err != nil {
		return nil, err
	}

	// Names decode off the wire without the trailing root dot, so the
	// question kept for response matching is normalized the same way.
	question := message.Question{
		QNAME: strings.TrimSuffix(name, "."),
		QTYPE: uint16(recordType),
	}
	return q.sendAndCollect(ctx, queryMsg, question)
}

// Discover multicasts the RFC 6763 §9 service-type enumeration query
// ("_services._dns-sd._udp.local" PTR) and returns the service types
// responders on the link advertise.
func (q *Querier) Discover(ctx context.Context) (*Response, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	queryMsg, err := dnssd.DiscoverySend()
	if err != nil {
		return nil, err
	}

	question := message.Question{
		QNAME: strings.TrimSuffix(dnssd.ServiceEnumerationName, "."),
		QTYPE: uint16(RecordTypePTR),
	}
	return q.sendAndCollect(ctx, queryMsg, question)
}

func (q *Querier) sendAndCollect(ctx context.Context, queryMsg []byte, question message.Question) (*Response, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.defaultTimeout)
		defer cancel()
	}

	group := &net.UDPAddr{
		IP:   net.ParseIP(protocol.MulticastAddrIPv4),
		Port: protocol.Port,
	}
	if err := q.transport.Send(ctx, queryMsg, group); err != nil {
		return nil, err
	}

	return q.collectResponses(ctx, question)
}

// collectResponses drains the receive channel until ctx expires,
// deduplicating identical records from multiple responders. Walk's
// last-question option does the demultiplexing: only records matching
// the question this querier just sent are delivered, whichever section
// a responder chose to put them in, so a socket shared with other
// traffic never leaks foreign answers into this query's response.
func (q *Querier) collectResponses(ctx context.Context, question message.Question) (*Response, error) {
	response := &Response{
		Records: make([]ResourceRecord, 0),
	}
	seen := make(map[string]bool)

	for {
		select {
		case <-ctx.Done():
			return response, nil

		case responseMsg := <-q.responseChan:
			header, err := message.ParseHeader(responseMsg)
			if err != nil {
				continue
			}
			// RFC 6762 §18: drop anything that is not a clean response.
			if protocol.ValidateResponse(header.Flags) != nil {
				continue
			}

			_, _ = message.Walk(responseMsg, message.Sink{
				OnAnswer: func(_ string, answer message.Answer) {
					// RDATA decodes against the full message so embedded
					// compression pointers (PTR and SRV targets) resolve.
					data, ok := parseAnswerData(responseMsg, answer)
					if !ok {
						return
					}

					dedupeKey := fmt.Sprintf("%s|%d|%v", answer.NAME, answer.TYPE, data)
					if seen[dedupeKey] {
						return
					}
					seen[dedupeKey] = true

					response.Records = append(response.Records, ResourceRecord{
						Name:  answer.NAME,
						Type:  RecordType(answer.TYPE),
						Class: answer.CLASS & 0x7FFF, // strip the cache-flush bit
						TTL:   answer.TTL,
						Data:  data,
					})
				},
			}, message.WalkOptions{
				OnlyLastQuestionMatch: true,
				LastQuestion:          question,
			})
		}
	}
}

// parseAnswerData decodes an answer's rdata with the type-specific
// parser and converts to the public querier types the As* accessors
// return.
func parseAnswerData(buf []byte, answer message.Answer) (interface{}, bool) {
	switch protocol.RecordType(answer.TYPE) {
	case protocol.RecordTypeA:
		return message.ParseA(buf, answer.RDataOffset, int(answer.RDLENGTH))
	case protocol.RecordTypeAAAA:
		return message.ParseAAAA(buf, answer.RDataOffset, int(answer.RDLENGTH))
	case protocol.RecordTypePTR:
		return message.ParsePTR(buf, answer.RDataOffset, int(answer.RDLENGTH))
	case protocol.RecordTypeSRV:
		srv, ok := message.ParseSRV(buf, answer.RDataOffset, int(answer.RDLENGTH))
		if !ok {
			return nil, false
		}
		return SRVData{Target: srv.Target, Priority: srv.Priority, Weight: srv.Weight, Port: srv.Port}, true
	case protocol.RecordTypeTXT:
		entries := message.ParseTXT(buf, answer.RDataOffset, int(answer.RDLENGTH))
		txt := make([]string, 0, len(entries))
		for _, e := range entries {
			if e.Value == "" {
				txt = append(txt, e.Key)
				continue
			}
			txt = append(txt, e.Key+"="+e.Value)
		}
		return txt, true
	default:
		return nil, false
	}
}

// receiveLoop feeds inbound packets to the response channel for as long
// as the querier lives, dropping what no query will ever want: oversized
// frames, and sources outside link-local scope.
func (q *Querier) receiveLoop() {
	defer q.wg.Done()

	for {
		select {
		case <-q.ctx.Done():
			return

		default:
			// Short receive timeout so shutdown is noticed promptly.
			ctx, cancel := context.WithTimeout(q.ctx, 100*time.Millisecond)
			responseMsg, srcAddr, err := q.transport.Receive(ctx)
			cancel()
			if err != nil {
				continue
			}

			// RFC 6762 §17 bounds a message at 9000 bytes.
			if len(responseMsg) > 9000 {
				continue
			}

			if !sourcePlausiblyLinkLocal(srcAddr) {
				continue
			}

			select {
			case q.responseChan <- responseMsg:
			default:
				// Channel full: drop rather than stall the socket.
			}
		}
	}
}

// sourcePlausiblyLinkLocal rejects sources that cannot be on the local
// link: mDNS is link-local by definition (RFC 6762 §2), so an answer
// from a public routed address is spoofed or leaked. Without a full
// per-interface subnet check, link-local (169.254/16) and RFC 1918
// private ranges pass and everything else is dropped.
func sourcePlausiblyLinkLocal(srcAddr net.Addr) bool {
	udpAddr, ok := srcAddr.(*net.UDPAddr)
	if !ok || udpAddr.IP == nil {
		return true
	}
	ip4 := udpAddr.IP.To4()
	if ip4 == nil {
		return true
	}

	isLinkLocal := ip4[0] == 169 && ip4[1] == 254
	isPrivate := ip4[0] == 10 ||
		(ip4[0] == 172 && ip4[1] >= 16 && ip4[1] <= 31) ||
		(ip4[0] == 192 && ip4[1] == 168)
	return isLinkLocal || isPrivate
}

// Close shuts the querier down: the receiver exits, the transport
// closes, and the response channel drains into oblivion.
func (q *Querier) Close() error {
	q.cancel()
	q.wg.Wait()

	if err := q.transport.Close(); err != nil {
		return err
	}
	close(q.responseChan)
	return nil
}
