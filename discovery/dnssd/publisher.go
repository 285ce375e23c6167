package dnssd

import (
	"fmt"
	"net/netip"
	"regexp"
	"sort"

	"github.com/openscreen-go/openscreen/internal/errors"
	"github.com/openscreen-go/openscreen/mdns"
	"github.com/openscreen-go/openscreen/mdns/wire"
)

// maxTxtSize is the RFC 6763 §6.2 ceiling on an advertised TXT record.
const maxTxtSize = 1300

// defaultRecordTTL is the advertised lifetime of the published records.
// RFC 6762 §10 recommends 120 seconds for records containing host
// addresses and 75 minutes for the rest; one shared value keeps the
// published group coherent and refreshing together.
const defaultRecordTTL = 120

// serviceTypePattern constrains the service-type string to RFC 6763 §7
// shape: "_name._tcp.local" or "_name._udp.local".
var serviceTypePattern = regexp.MustCompile(`^_[a-z0-9-]+\._(tcp|udp)\.local$`)

// Service describes one advertisable DNS-SD service instance: the
// PTR/SRV/TXT/A/AAAA record group a peer needs to materialise an
// instance endpoint for it.
type Service struct {
	// InstanceName is the human-readable instance label (one DNS label,
	// 1-63 octets). It may be renamed by probing if the name is taken.
	InstanceName string

	// ServiceType is the RFC 6763 type, e.g. "_openscreen._udp.local".
	ServiceType string

	// Port is the service's listening port.
	Port int

	// Hostname is the target of the SRV record, e.g. "tv.local".
	Hostname string

	// Addresses are the host addresses to advertise. At least one is
	// required; IPv4 entries become A records, IPv6 entries AAAA.
	Addresses []netip.Addr

	// Txt holds the advertised key/value metadata. A nil or empty map
	// produces the mandatory single empty string per RFC 6763 §6.1.
	Txt map[string]string
}

// Validate checks the field constraints above before any records are
// built.
func (s *Service) Validate() error {
	if s.InstanceName == "" || len(s.InstanceName) > wire.MaxLabelLength {
		return &errors.ValidationError{Field: "InstanceName", Value: s.InstanceName,
			Message: fmt.Sprintf("must be 1-%d octets", wire.MaxLabelLength)}
	}
	if !serviceTypePattern.MatchString(s.ServiceType) {
		return &errors.ValidationError{Field: "ServiceType", Value: s.ServiceType,
			Message: `must look like "_name._tcp.local" or "_name._udp.local"`}
	}
	if s.Port < 1 || s.Port > 65535 {
		return &errors.ValidationError{Field: "Port", Value: s.Port, Message: "must be 1-65535"}
	}
	if s.Hostname == "" {
		return &errors.ValidationError{Field: "Hostname", Value: s.Hostname, Message: "required"}
	}
	if len(s.Addresses) == 0 {
		return &errors.ValidationError{Field: "Addresses", Value: s.Addresses, Message: "at least one address required"}
	}
	if size := txtWireSize(s.Txt); size > maxTxtSize {
		return &errors.ValidationError{Field: "Txt", Value: size,
			Message: fmt.Sprintf("encoded TXT exceeds %d bytes", maxTxtSize)}
	}
	return nil
}

func txtWireSize(txt map[string]string) int {
	total := 0
	for k, v := range txt {
		total += 1 + len(k) + 1 + len(v)
	}
	return total
}

// InstanceDomain returns "<instance>.<service-type>" as a DomainName.
func (s *Service) InstanceDomain() (wire.DomainName, error) {
	return wire.NewDomainName(s.InstanceName + "." + s.ServiceType)
}

// txtStrings flattens the TXT map into RFC 6763 §6.3 key=value strings,
// sorted by key so the published rdata is stable across re-announcements
// (a peer diffing rdata must not see spurious changes from map ordering).
func (s *Service) txtStrings() [][]byte {
	if len(s.Txt) == 0 {
		return [][]byte{{}}
	}
	keys := make([]string, 0, len(s.Txt))
	for k := range s.Txt {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([][]byte, 0, len(keys))
	for _, k := range keys {
		out = append(out, []byte(k+"="+s.Txt[k]))
	}
	return out
}

// Records builds the full advertisable record group: PTR (shared) from
// the service type to the instance, SRV and TXT (unique) at the
// instance, and A/AAAA (unique) at the hostname.
func (s *Service) Records() ([]wire.MdnsRecord, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	serviceDomain, err := wire.NewDomainName(s.ServiceType)
	if err != nil {
		return nil, err
	}
	instanceDomain, err := s.InstanceDomain()
	if err != nil {
		return nil, err
	}
	hostDomain, err := wire.NewDomainName(s.Hostname)
	if err != nil {
		return nil, err
	}

	records := []wire.MdnsRecord{
		{
			Name: serviceDomain, Type: wire.TypePTR, Class: wire.ClassIN,
			Kind: wire.Shared, TTL: defaultRecordTTL,
			Data: wire.Rdata{PTR: instanceDomain},
		},
		{
			Name: instanceDomain, Type: wire.TypeSRV, Class: wire.ClassIN.WithCacheFlush(),
			Kind: wire.Unique, TTL: defaultRecordTTL,
			Data: wire.Rdata{SRV: wire.SRVData{Port: uint16(s.Port), Target: hostDomain}},
		},
		{
			Name: instanceDomain, Type: wire.TypeTXT, Class: wire.ClassIN.WithCacheFlush(),
			Kind: wire.Unique, TTL: defaultRecordTTL,
			Data: wire.Rdata{TXT: wire.TXTData{Strings: s.txtStrings()}},
		},
	}
	for _, addr := range s.Addresses {
		rec := wire.MdnsRecord{
			Name: hostDomain, Class: wire.ClassIN.WithCacheFlush(),
			Kind: wire.Unique, TTL: defaultRecordTTL,
		}
		if addr.Is4() {
			rec.Type = wire.TypeA
			rec.Data = wire.Rdata{A: addr}
		} else {
			rec.Type = wire.TypeAAAA
			rec.Data = wire.Rdata{AAAA: addr}
		}
		records = append(records, rec)
	}
	return records, nil
}

// Publisher advertises DNS-SD services through the mDNS responder: the
// publish side of L2, mirroring [Browser] on the query side. Probing,
// conflict rename, announcement, and goodbye are all inherited from the
// responder; the publisher's job is turning a [Service] into the record
// group and remembering which claimed name belongs to which service.
type Publisher struct {
	responder *mdns.Responder

	claimed map[string]wire.DomainName // service key → claimed instance domain
}

// NewPublisher wraps responder.
func NewPublisher(responder *mdns.Responder) *Publisher {
	return &Publisher{responder: responder, claimed: make(map[string]wire.DomainName)}
}

func publishKey(s *Service) string {
	return s.InstanceName + "." + s.ServiceType
}

// Register validates svc, builds its record group, and hands it to the
// responder to probe and announce. onClaimed, if non-nil, is invoked
// once probing settles with the instance domain actually claimed (which
// differs from the requested one after a conflict rename).
func (p *Publisher) Register(svc *Service, onClaimed func(wire.DomainName)) error {
	key := publishKey(svc)
	if _, exists := p.claimed[key]; exists {
		return &errors.StateError{Operation: "register service", From: key, Message: "already registered"}
	}
	records, err := svc.Records()
	if err != nil {
		return err
	}
	requested, err := svc.InstanceDomain()
	if err != nil {
		return err
	}
	err = p.responder.Publish(requested, records, func(finalName wire.DomainName) {
		p.claimed[key] = finalName
		if onClaimed != nil {
			onClaimed(finalName)
		}
	})
	if err != nil {
		return err
	}
	return nil
}

// Deregister withdraws a previously registered service, sending goodbye
// records for its group.
func (p *Publisher) Deregister(svc *Service) error {
	key := publishKey(svc)
	name, exists := p.claimed[key]
	if !exists {
		return &errors.StateError{Operation: "deregister service", From: key, Message: "not registered"}
	}
	delete(p.claimed, key)
	return p.responder.Unpublish(name)
}

// ClaimedName reports the instance domain probing settled on for svc,
// if registration has completed.
func (p *Publisher) ClaimedName(svc *Service) (wire.DomainName, bool) {
	name, ok := p.claimed[publishKey(svc)]
	return name, ok
}
