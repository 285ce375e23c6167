package dnssd

import (
	"net"
	"net/netip"
	"testing"

	"github.com/openscreen-go/openscreen/mdns"
	"github.com/openscreen-go/openscreen/mdns/wire"
	"github.com/openscreen-go/openscreen/platform/task"
)

type nopSender struct{}

func (nopSender) Multicast(wire.Message) error          { return nil }
func (nopSender) Unicast(wire.Message, net.Addr) error { return nil }

func TestBrowser_StartDiscovery_FiresCreatedOnFullTriple(t *testing.T) {
	runner := task.New()
	q := mdns.NewQuerier(runner, nopSender{}, nil)
	b := NewBrowser(q)

	var events []ServiceEvent
	serviceType := wire.MustDomainName("_airplay._tcp.local")
	b.StartDiscovery(serviceType, func(e ServiceEvent) { events = append(events, e) })

	q.OnMessage(wire.Message{
		Header: wire.Header{Flags: wire.FlagQR, ANCount: 4},
		Answers: []wire.MdnsRecord{
			ptrRecord("_airplay._tcp.local", "living-room._airplay._tcp.local"),
			srvRecord("living-room._airplay._tcp.local", "living-room.local", 7000),
			txtRecord("living-room._airplay._tcp.local", "model=AppleTV"),
			{Name: wire.MustDomainName("living-room.local"), Type: wire.TypeA, Class: wire.ClassIN, TTL: 120,
				Data: wire.Rdata{A: netip.MustParseAddr("192.168.1.50")}},
		},
	})

	var created int
	for _, e := range events {
		if e.Kind == EndpointCreated {
			created++
		}
	}
	if created != 1 {
		t.Fatalf("want exactly one EndpointCreated event once the full triple arrives, got %d (events=%+v)", created, events)
	}
}

func TestBrowser_StopDiscovery_RemovesSubscription(t *testing.T) {
	runner := task.New()
	q := mdns.NewQuerier(runner, nopSender{}, nil)
	b := NewBrowser(q)

	id := b.StartDiscovery(wire.MustDomainName("_airplay._tcp.local"), func(ServiceEvent) {})
	b.StopDiscovery(id)
	if _, exists := b.subs[id]; exists {
		t.Fatal("subscription should be gone after StopDiscovery")
	}
}
