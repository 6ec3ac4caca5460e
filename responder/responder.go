package responder

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/beaconmdns/beacon/internal/dnssd"
	"github.com/beaconmdns/beacon/internal/errors"
	"github.com/beaconmdns/beacon/internal/message"
	"github.com/beaconmdns/beacon/internal/protocol"
	"github.com/beaconmdns/beacon/internal/records"
	"github.com/beaconmdns/beacon/internal/responder"
	"github.com/beaconmdns/beacon/internal/state"
	"github.com/beaconmdns/beacon/internal/transport"
)

// ResourceRecord aliases the internal record type so callers can inspect
// announced record sets without importing internal packages.
type ResourceRecord = records.ResourceRecord

// maxRenameAttempts bounds the RFC 6762 §9 rename loop. The RFC sets no
// limit; ten keeps a pathological network from renaming forever.
const maxRenameAttempts = 10

// Responder advertises services over mDNS: it probes and announces each
// registration per RFC 6762 §8, then answers matching queries until the
// service is unregistered or the responder closes.
type Responder struct {
	ctx              context.Context
	transport        transport.Transport
	registry         *responder.Registry
	hostname         string
	injectConflict   bool
	responseBuilder  *responder.ResponseBuilder
	recordSet        *records.RecordSet
	queryHandlerDone chan struct{}

	// The most recent registration's state machine, kept for the
	// introspection accessors below.
	lastMachine *state.Machine

	onProbeCallback    func()
	onAnnounceCallback func()

	lastAnnouncedRecords []*ResourceRecord
	lastGoodbyeMessage   []byte
}

// New builds a responder and starts its query-handling loop. Without a
// WithTransport option it binds the real IPv4 multicast socket.
func New(ctx context.Context, opts ...Option) (*Responder, error) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}
	hostname += ".local"

	r := &Responder{
		ctx:              ctx,
		registry:         responder.NewRegistry(),
		hostname:         hostname,
		responseBuilder:  responder.NewResponseBuilder(),
		recordSet:        records.NewRecordSet(),
		queryHandlerDone: make(chan struct{}),
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if r.transport == nil {
		t, err := transport.NewUDPv4Transport()
		if err != nil {
			return nil, fmt.Errorf("failed to create transport: %w", err)
		}
		r.transport = t
	}

	go r.runQueryHandler()

	return r, nil
}

// Register claims service's name and announces it, blocking through the
// RFC 6762 §8 sequence (roughly 1.5 s: three probes, two announcements).
// A lost probe renames the service per §9 — "Name" becomes "Name-2" and
// so on — and retries; after maxRenameAttempts the registration fails
// with a ConflictError.
func (r *Responder) Register(service *Service) error {
	if service == nil {
		return fmt.Errorf("service cannot be nil")
	}
	if err := service.Validate(); err != nil {
		return err
	}

	if service.Hostname == "" {
		service.Hostname = r.hostname
	}

	ipv4, err := getLocalIPv4()
	if err != nil {
		return fmt.Errorf("failed to get local IPv4: %w", err)
	}

	for attempt := 1; attempt <= maxRenameAttempts; attempt++ {
		serviceInfo := &records.ServiceInfo{
			InstanceName: service.InstanceName,
			ServiceType:  service.ServiceType,
			Hostname:     service.Hostname,
			Port:         service.Port,
			IPv4Address:  ipv4,
			TXTRecords:   service.TXTRecords,
		}
		recordSet := records.BuildRecordSet(serviceInfo)
		r.lastAnnouncedRecords = recordSet

		machine := state.NewMachine()
		serviceName := service.InstanceName + "." + service.ServiceType

		if r.injectConflict {
			machine.SetInjectConflict(true)
		}
		r.lastMachine = machine
		machine.SetTransport(r.transport)

		prober := machine.GetProber()
		prober.SetConflictDetector(responder.NewConflictDetector())
		ourRecords := make([]message.ResourceRecord, len(recordSet))
		for i, rr := range recordSet {
			ourRecords[i] = *rr
		}
		prober.SetOurRecords(ourRecords)
		if r.onProbeCallback != nil {
			prober.SetOnSendQuery(r.onProbeCallback)
		}

		announcer := machine.GetAnnouncer()
		announcer.SetServiceInfo(serviceInfo)
		if r.onAnnounceCallback != nil {
			announcer.SetOnSendAnnouncement(r.onAnnounceCallback)
		}

		if err := machine.Run(r.ctx, serviceName); err != nil {
			return fmt.Errorf("state machine failed: %w", err)
		}

		switch finalState := machine.GetState(); finalState {
		case state.StateConflictDetected:
			if attempt >= maxRenameAttempts {
				return &errors.ConflictError{
					ServiceName: service.InstanceName,
					Attempts:    attempt,
				}
			}
			service.Rename()
			continue

		case state.StateEstablished:
			internalService := &responder.Service{
				InstanceName: service.InstanceName,
				ServiceType:  service.ServiceType,
				Port:         service.Port,
				TXT:          service.TXTRecords,
			}
			if err := r.registry.Register(internalService); err != nil {
				return fmt.Errorf("failed to add to registry: %w", err)
			}
			return nil

		default:
			return fmt.Errorf("unexpected final state: %v", finalState)
		}
	}

	return fmt.Errorf("unexpected: register loop completed without result")
}

// Unregister withdraws a service and multicasts the RFC 6762 §10.1
// goodbye: the full record set with every TTL at zero, telling peers to
// evict immediately instead of waiting out the normal TTL. serviceID may
// be the bare instance name or "Instance._service._proto.local".
func (r *Responder) Unregister(serviceID string) error {
	svc, found := r.GetService(serviceID)
	if !found {
		return fmt.Errorf("service %q not registered", serviceID)
	}

	if err := r.registry.Remove(svc.InstanceName); err != nil {
		return fmt.Errorf("service %q not registered", serviceID)
	}

	hostname := svc.Hostname
	if hostname == "" {
		hostname = r.hostname
	}
	ipv4, ipErr := getLocalIPv4()
	if ipErr == nil {
		serviceInfo := &records.ServiceInfo{
			InstanceName: svc.InstanceName,
			ServiceType:  svc.ServiceType,
			Hostname:     hostname,
			Port:         svc.Port,
			IPv4Address:  ipv4,
			TXTRecords:   svc.TXTRecords,
		}

		// The introspectable model and the wire bytes describe the same
		// TTL=0 set.
		r.lastAnnouncedRecords = records.BuildGoodbyeRecords(serviceInfo)

		goodbyeMsg, buildErr := dnssd.GoodbyeAnswer(serviceAnswerParams(serviceInfo))
		if buildErr == nil {
			r.lastGoodbyeMessage = goodbyeMsg
			if r.transport != nil {
				// Best-effort: a lost goodbye just means peers wait out
				// the normal TTL.
				_ = r.transport.Send(r.ctx, goodbyeMsg, nil)
			}
		}
	}

	return nil
}

// Close unregisters every service (sending goodbyes), stops the query
// handler, and closes the transport.
func (r *Responder) Close() error {
	close(r.queryHandlerDone)

	for _, instanceName := range r.registry.List() {
		_ = r.Unregister(instanceName)
	}

	if r.transport != nil {
		return r.transport.Close()
	}
	return nil
}

// GetService looks a registration up by instance name or by the full
// "Instance._service._proto.local" ID.
func (r *Responder) GetService(serviceID string) (*Service, bool) {
	if svc, found := r.registry.Get(serviceID); found {
		return &Service{
			InstanceName: svc.InstanceName,
			ServiceType:  svc.ServiceType,
			Port:         svc.Port,
			TXTRecords:   svc.TXT,
		}, true
	}

	for _, instanceName := range r.registry.List() {
		svc, found := r.registry.Get(instanceName)
		if !found {
			continue
		}
		if svc.InstanceName+"."+svc.ServiceType == serviceID {
			return &Service{
				InstanceName: svc.InstanceName,
				ServiceType:  svc.ServiceType,
				Port:         svc.Port,
				TXTRecords:   svc.TXT,
			}, true
		}
	}

	return nil, false
}

// UpdateService replaces a service's TXT metadata and re-announces.
// Per RFC 6762 §8.4 no re-probing happens: the instance name is
// unchanged, so no new conflict is possible.
func (r *Responder) UpdateService(serviceID string, txtRecords map[string]string) error {
	svc, found := r.GetService(serviceID)
	if !found {
		return fmt.Errorf("service %q not found", serviceID)
	}

	internalSvc, found := r.registry.Get(svc.InstanceName)
	if !found {
		return fmt.Errorf("internal error: service %q in GetService but not in registry", svc.InstanceName)
	}
	internalSvc.TXT = txtRecords

	hostname := svc.Hostname
	if hostname == "" {
		hostname = r.hostname
	}
	ipv4, ipErr := getLocalIPv4()
	if ipErr == nil {
		serviceInfo := &records.ServiceInfo{
			InstanceName: internalSvc.InstanceName,
			ServiceType:  internalSvc.ServiceType,
			Hostname:     hostname,
			Port:         internalSvc.Port,
			IPv4Address:  ipv4,
			TXTRecords:   txtRecords,
		}
		r.lastAnnouncedRecords = records.BuildRecordSet(serviceInfo)

		announceMsg, buildErr := dnssd.QueryAnswer(serviceAnswerParams(serviceInfo))
		if buildErr == nil && r.transport != nil {
			_ = r.transport.Send(r.ctx, announceMsg, nil)
		}
	}

	return nil
}

// runQueryHandler receives queries for as long as the responder lives
// and answers the ones naming a registered service.
func (r *Responder) runQueryHandler() {
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-r.queryHandlerDone:
			return
		default:
			packet, srcAddr, err := r.transport.Receive(r.ctx)
			if err != nil {
				select {
				case <-r.ctx.Done():
					return
				case <-r.queryHandlerDone:
					return
				default:
					continue
				}
			}
			_ = r.handleQuery(packet, srcAddr)
		}
	}
}

// handleQuery answers one inbound query. PTR questions for a registered
// service type get the full compressed answer set; the RFC 6763 §9
// enumeration name gets one PTR per registered type. The RFC 6762 §5.4
// QU bit steers each answer unicast back to the querier instead of
// multicast. Malformed packets are dropped without comment, and
// per-source query-rate limiting is deliberately not applied.
func (r *Responder) handleQuery(packet []byte, srcAddr net.Addr) error {
	msg, err := message.ParseMessage(packet)
	if err != nil {
		return err
	}
	if msg.Header.IsResponse() {
		return nil
	}

	for _, question := range msg.Questions {
		if question.QTYPE != uint16(protocol.RecordTypePTR) {
			continue
		}

		var dest net.Addr
		if question.QCLASS&0x8000 != 0 {
			dest = srcAddr
		}

		if dnssd.IsServiceEnumerationQuery(question.QNAME) {
			for _, serviceType := range r.registry.ListServiceTypes() {
				answer, buildErr := dnssd.DiscoveryAnswer(serviceType)
				if buildErr != nil {
					continue
				}
				_ = r.transport.Send(r.ctx, answer, dest)
			}
			continue
		}

		for _, instanceName := range r.registry.List() {
			service, found := r.registry.Get(instanceName)
			if !found || service.ServiceType != question.QNAME {
				continue
			}

			ipv4, err := getLocalIPv4()
			if err != nil {
				continue
			}

			responsePacket, err := r.responseBuilder.BuildResponseBytes(&responder.ServiceWithIP{
				InstanceName: service.InstanceName,
				ServiceType:  service.ServiceType,
				Domain:       "local",
				Port:         service.Port,
				IPv4Address:  ipv4,
				TXTRecords:   service.TXT,
				Hostname:     r.hostname,
			})
			if err != nil {
				continue
			}

			_ = r.transport.Send(r.ctx, responsePacket, dest)
			break
		}
	}

	return nil
}

// getLocalIPv4 returns the first non-loopback IPv4 address.
func getLocalIPv4() ([]byte, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ipv4 := ipnet.IP.To4(); ipv4 != nil {
				return ipv4, nil
			}
		}
	}
	return nil, fmt.Errorf("no non-loopback IPv4 address found")
}

// serviceAnswerParams adapts a records.ServiceInfo into the parameters
// the dnssd answer builder takes.
func serviceAnswerParams(service *records.ServiceInfo) dnssd.QueryAnswerParams {
	return dnssd.QueryAnswerParams{
		ServiceType:  service.ServiceType,
		InstanceName: service.InstanceName,
		Hostname:     service.Hostname,
		TXTRData:     records.EncodeTXTRecords(service.TXTRecords),
		IPv4:         net.IP(service.IPv4Address),
		Port:         uint16(service.Port),
	}
}

// OnProbe registers a callback fired for every probe sent, on the
// current machine and any future registration's machine.
func (r *Responder) OnProbe(callback func()) {
	r.onProbeCallback = callback
	if r.lastMachine != nil {
		r.lastMachine.GetProber().SetOnSendQuery(callback)
	}
}

// OnAnnounce registers a callback fired for every announcement sent.
func (r *Responder) OnAnnounce(callback func()) {
	r.onAnnounceCallback = callback
	if r.lastMachine != nil {
		r.lastMachine.GetAnnouncer().SetOnSendAnnouncement(callback)
	}
}

// GetLastProbeMessage returns the wire bytes of the most recent probe.
func (r *Responder) GetLastProbeMessage() []byte {
	if r.lastMachine != nil {
		return r.lastMachine.GetProber().GetLastProbeMessage()
	}
	return nil
}

// GetLastAnnounceMessage returns the wire bytes of the most recent
// announcement.
func (r *Responder) GetLastAnnounceMessage() []byte {
	if r.lastMachine != nil {
		return r.lastMachine.GetAnnouncer().GetLastAnnounceMessage()
	}
	return nil
}

// GetLastGoodbyeMessage returns the most recent TTL=0 goodbye packet.
func (r *Responder) GetLastGoodbyeMessage() []byte {
	return r.lastGoodbyeMessage
}

// GetLastAnnouncedRecords returns the record set most recently built for
// an announcement, update, or goodbye.
func (r *Responder) GetLastAnnouncedRecords() []*ResourceRecord {
	return r.lastAnnouncedRecords
}

// GetLastAnnounceDest returns where announcements are sent.
func (r *Responder) GetLastAnnounceDest() string {
	if r.lastMachine != nil {
		return r.lastMachine.GetAnnouncer().GetLastDestAddr()
	}
	return ""
}

// InjectConflictDuringProbing forces every probe cycle to report a
// conflict; test hook for the rename loop.
func (r *Responder) InjectConflictDuringProbing(inject bool) {
	r.injectConflict = inject
}

// InjectSimultaneousProbe is reserved for simultaneous-probe test
// scenarios; the tiebreak itself is exercised through the prober.
func (r *Responder) InjectSimultaneousProbe([]byte, []byte) {}
