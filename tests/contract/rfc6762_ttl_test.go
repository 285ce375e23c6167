package contract

import (
	"net/netip"
	"testing"

	"github.com/openscreen-go/openscreen/discovery/dnssd"
	"github.com/openscreen-go/openscreen/mdns/wire"
)

// RFC 6762 §10 recommends 120 seconds for resource records naming a
// host or containing data relating to one (A, AAAA, SRV); the published
// group advertises one shared TTL so its records refresh together.
func TestRFC6762_TTL_PublishedServiceRecords(t *testing.T) {
	svc := &dnssd.Service{
		InstanceName: "TTL Probe",
		ServiceType:  "_openscreen._udp.local",
		Port:         9001,
		Hostname:     "host.local",
		Addresses:    []netip.Addr{netip.MustParseAddr("192.168.1.4")},
	}
	records, err := svc.Records()
	if err != nil {
		t.Fatalf("Records() error = %v", err)
	}
	for _, rec := range records {
		if rec.TTL != 120 {
			t.Errorf("%v record at %s has TTL %d, want 120", rec.Type, rec.Name.String(), rec.TTL)
		}
	}
}

// RFC 6762 §10.1: goodbye records carry TTL zero, and a cache receiving
// one treats the record as expiring in one second rather than
// immediately.
func TestRFC6762_TTL_GoodbyeIsZero(t *testing.T) {
	rec := aRecord("host.local", "192.168.1.4", 0)
	if !rec.IsGoodbye() {
		t.Fatal("TTL=0 record must report IsGoodbye")
	}
	live := aRecord("host.local", "192.168.1.4", 120)
	if live.IsGoodbye() {
		t.Fatal("TTL=120 record must not report IsGoodbye")
	}
}

// The cache-flush bit rides the high bit of the class field and must not
// change the record's effective class.
func TestRFC6762_TTL_CacheFlushBitPreservesClass(t *testing.T) {
	flushed := wire.ClassIN.WithCacheFlush()
	if !flushed.CacheFlush() {
		t.Fatal("WithCacheFlush must set the flush bit")
	}
	if flushed.Class() != wire.ClassIN {
		t.Fatalf("effective class = %v, want IN", flushed.Class())
	}
}
