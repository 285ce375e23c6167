package dnssd

import (
	"github.com/google/uuid"

	"github.com/openscreen-go/openscreen/mdns"
	"github.com/openscreen-go/openscreen/mdns/wire"
)

// ServiceEventKind distinguishes instance-endpoint lifecycle events
// surfaced to a discovery subscriber.
type ServiceEventKind int

const (
	EndpointCreated ServiceEventKind = iota
	EndpointUpdated
	EndpointDeleted
)

// ServiceEvent is delivered to every callback subscribed to a service
// type via [Browser.StartDiscovery].
type ServiceEvent struct {
	Kind     ServiceEventKind
	Endpoint InstanceEndpoint
}

// ServiceCallback receives instance-endpoint lifecycle events.
type ServiceCallback func(ServiceEvent)

// subscriptionID is an opaque handle returned from StartDiscovery, keyed
// with google/uuid so callers can hold and later cancel a subscription
// without the browser exposing its internal bookkeeping.
type subscriptionID = uuid.UUID

type subscription struct {
	id          subscriptionID
	serviceType wire.DomainName
	callback    ServiceCallback
	seen        map[string]InstanceEndpoint // keyed by instance id, for diffing
}

// Browser materializes the DNS-SD [Graph] from an [mdns.Querier]'s record
// events and exposes a subscribe/unsubscribe surface over service-type
// PTR queries. As each PTR answer reveals a new instance name,
// and each SRV answer reveals a new host name, the browser extends
// tracking (and the underlying mDNS query set) to that name too — a real
// DNS-SD walk rather than a single flat query, matching how
// conversion_layer.cc's coherence rules presuppose SRV/TXT/address data
// arriving as separate, later records.
type Browser struct {
	querier *mdns.Querier
	graph   *Graph
	subs    map[subscriptionID]*subscription
	tracked map[string]struct{} // domain keys already under a querier subscription
}

// NewBrowser constructs a browser driven by querier.
func NewBrowser(querier *mdns.Querier) *Browser {
	return &Browser{
		querier: querier,
		graph:   NewGraph(),
		subs:    make(map[subscriptionID]*subscription),
		tracked: make(map[string]struct{}),
	}
}

// StartDiscovery begins tracking serviceType (e.g. "_airplay._tcp.local")
// and returns a subscription handle; callback fires once per instance
// endpoint lifecycle change under that service type.
func (b *Browser) StartDiscovery(serviceType wire.DomainName, callback ServiceCallback) subscriptionID {
	id := uuid.New()
	sub := &subscription{id: id, serviceType: serviceType, callback: callback, seen: make(map[string]InstanceEndpoint)}
	b.subs[id] = sub

	b.trackName(serviceType, wire.TypePTR)
	b.refreshSubscription(sub)
	return id
}

// StopDiscovery cancels a subscription previously returned by
// StartDiscovery.
func (b *Browser) StopDiscovery(id subscriptionID) {
	delete(b.subs, id)
}

// trackName starts graph tracking and a querier subscription for name if
// not already tracked, routing every matching record through the graph
// and a refresh of every active subscription.
func (b *Browser) trackName(name wire.DomainName, dnsType wire.DNSType) {
	key := name.Key()
	if _, already := b.tracked[key]; already {
		return
	}
	b.tracked[key] = struct{}{}
	b.graph.StartTracking(name, nil)
	b.querier.StartQuery(name, dnsType, wire.ClassIN, func(e mdns.RecordEvent) {
		b.onQuerierEvent(e)
	})
}

func (b *Browser) onQuerierEvent(e mdns.RecordEvent) {
	var changeEvent RecordChangeEvent
	switch e.Kind {
	case mdns.Created:
		changeEvent = RecordCreated
	case mdns.Updated:
		changeEvent = RecordUpdated
	case mdns.Deleted:
		changeEvent = RecordDeleted
	}
	_ = b.graph.ApplyRecordChange(e.Record, changeEvent, nil, nil)

	// Extend tracking to newly-revealed names: a PTR's target is an
	// instance name (carrying SRV+TXT); an SRV's target is a host name
	// (carrying A/AAAA).
	switch e.Record.Type {
	case wire.TypePTR:
		if changeEvent != RecordDeleted {
			b.trackName(e.Record.Data.PTR, wire.TypeANY)
		}
	case wire.TypeSRV:
		if changeEvent != RecordDeleted {
			b.trackName(e.Record.Data.SRV.Target, wire.TypeANY)
		}
	}

	for _, sub := range b.subs {
		b.refreshSubscription(sub)
	}
}

// refreshSubscription recomputes endpoints for sub's service type and
// diffs against what it last saw, firing Created/Updated/Deleted events
// for the difference.
func (b *Browser) refreshSubscription(sub *subscription) {
	current := b.graph.CreateEndpoints(sub.serviceType, DesignationPtr)
	currentByID := make(map[string]InstanceEndpoint, len(current))
	for _, ep := range current {
		currentByID[ep.InstanceID] = ep
	}

	for id, ep := range currentByID {
		if _, existed := sub.seen[id]; !existed {
			sub.callback(ServiceEvent{Kind: EndpointCreated, Endpoint: ep})
		} else if !endpointsEqual(sub.seen[id], ep) {
			sub.callback(ServiceEvent{Kind: EndpointUpdated, Endpoint: ep})
		}
	}
	for id, ep := range sub.seen {
		if _, stillPresent := currentByID[id]; !stillPresent {
			sub.callback(ServiceEvent{Kind: EndpointDeleted, Endpoint: ep})
		}
	}
	sub.seen = currentByID
}

func endpointsEqual(a, b InstanceEndpoint) bool {
	if a.HasIPv4 != b.HasIPv4 || a.HasIPv4 && a.IPv4 != b.IPv4 {
		return false
	}
	if a.HasIPv6 != b.HasIPv6 || a.HasIPv6 && a.IPv6 != b.IPv6 {
		return false
	}
	return true
}
