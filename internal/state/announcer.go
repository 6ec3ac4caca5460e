package state

import (
	"context"
	"net"
	"time"

	"github.com/beaconmdns/beacon/internal/dnssd"
	"github.com/beaconmdns/beacon/internal/records"
	"github.com/beaconmdns/beacon/internal/transport"
)

// Announcer sends the RFC 6762 §8.3 unsolicited announcements once
// probing has cleared a name: at least two responses carrying the full
// record set, one second apart.
type Announcer struct {
	onSendAnnouncement func()
	lastDestAddr       string

	lastAnnounceMessage []byte

	// serviceInfo is what gets announced; the wire bytes come from
	// internal/dnssd's answer builder.
	serviceInfo *records.ServiceInfo

	// transport carries each announcement onto the wire. Nil is valid:
	// unit tests that only care about message construction never set one.
	transport transport.Transport
}

func NewAnnouncer() *Announcer {
	return &Announcer{
		lastDestAddr: "224.0.0.251:5353",
	}
}

// Announce multicasts two announcements one second apart, honoring ctx
// between and during the waits.
func (a *Announcer) Announce(ctx context.Context) error {
	const announcementCount = 2
	const announcementInterval = time.Second

	for i := 0; i < announcementCount; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		announceMsg := a.buildAnnouncement()
		a.lastAnnounceMessage = announceMsg

		if a.onSendAnnouncement != nil {
			a.onSendAnnouncement()
		}

		if a.transport != nil {
			if err := a.transport.Send(ctx, announceMsg, nil); err != nil {
				return err
			}
		}

		if i < announcementCount-1 {
			timer := time.NewTimer(announcementInterval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	return nil
}

// buildAnnouncement renders the service's answer set to wire format. An
// announcer with no service yet produces a bare response header, which
// keeps construction-only tests independent of a full ServiceInfo.
func (a *Announcer) buildAnnouncement() []byte {
	if a.serviceInfo != nil {
		if msg, err := dnssd.QueryAnswer(serviceAnswerParams(a.serviceInfo)); err == nil {
			return msg
		}
	}

	header := make([]byte, 12)
	header[2] = 0x84 // QR=1, AA=1
	return header
}

// GetLastAnnounceMessage returns the wire bytes of the most recent
// announcement.
func (a *Announcer) GetLastAnnounceMessage() []byte {
	return a.lastAnnounceMessage
}

// SetLastAnnounceMessage overrides the recorded announcement; test hook.
func (a *Announcer) SetLastAnnounceMessage(msg []byte) {
	a.lastAnnounceMessage = msg
}

// SetOnSendAnnouncement registers a callback fired as each announcement
// goes out.
func (a *Announcer) SetOnSendAnnouncement(callback func()) {
	a.onSendAnnouncement = callback
}

// GetLastDestAddr returns where announcements are sent.
func (a *Announcer) GetLastDestAddr() string {
	return a.lastDestAddr
}

// SetServiceInfo supplies the service whose records each announcement
// carries.
func (a *Announcer) SetServiceInfo(service *records.ServiceInfo) {
	a.serviceInfo = service
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

// SetTransport wires announcements onto the wire.
func (a *Announcer) SetTransport(t transport.Transport) {
	a.transport = t
}
