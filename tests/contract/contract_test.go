// Package contract holds cross-package tests asserting RFC 6762/6763 and
// Open Screen behavior through the public API only, with fake transports
// in place of real sockets.
package contract

import (
	"net"
	"net/netip"
	"sync"

	"github.com/openscreen-go/openscreen/mdns/wire"
)

// fakeSender records every message the stack under test transmits.
type fakeSender struct {
	mu        sync.Mutex
	multicast []wire.Message
	unicast   []wire.Message
}

func (f *fakeSender) Multicast(msg wire.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.multicast = append(f.multicast, msg)
	return nil
}

func (f *fakeSender) Unicast(msg wire.Message, dest net.Addr) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unicast = append(f.unicast, msg)
	return nil
}

func (f *fakeSender) multicastSnapshot() []wire.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]wire.Message, len(f.multicast))
	copy(out, f.multicast)
	return out
}

func aRecord(name, ip string, ttl uint32) wire.MdnsRecord {
	return wire.MdnsRecord{
		Name: wire.MustDomainName(name), Type: wire.TypeA, Class: wire.ClassIN.WithCacheFlush(),
		Kind: wire.Unique, TTL: ttl,
		Data: wire.Rdata{A: netip.MustParseAddr(ip)},
	}
}

func ptrRecord(owner, target string, ttl uint32) wire.MdnsRecord {
	return wire.MdnsRecord{
		Name: wire.MustDomainName(owner), Type: wire.TypePTR, Class: wire.ClassIN,
		Kind: wire.Shared, TTL: ttl,
		Data: wire.Rdata{PTR: wire.MustDomainName(target)},
	}
}

func srvRecord(owner, target string, port uint16, ttl uint32) wire.MdnsRecord {
	return wire.MdnsRecord{
		Name: wire.MustDomainName(owner), Type: wire.TypeSRV, Class: wire.ClassIN.WithCacheFlush(),
		Kind: wire.Unique, TTL: ttl,
		Data: wire.Rdata{SRV: wire.SRVData{Port: port, Target: wire.MustDomainName(target)}},
	}
}

func txtRecord(owner string, strings []string, ttl uint32) wire.MdnsRecord {
	data := wire.TXTData{}
	for _, s := range strings {
		data.Strings = append(data.Strings, []byte(s))
	}
	if len(data.Strings) == 0 {
		data.Strings = [][]byte{{}}
	}
	return wire.MdnsRecord{
		Name: wire.MustDomainName(owner), Type: wire.TypeTXT, Class: wire.ClassIN.WithCacheFlush(),
		Kind: wire.Unique, TTL: ttl,
		Data: wire.Rdata{TXT: data},
	}
}
