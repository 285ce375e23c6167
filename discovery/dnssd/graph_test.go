package dnssd

import (
	"net/netip"
	"testing"

	"github.com/openscreen-go/openscreen/mdns/wire"
)

func ptrRecord(serviceType, instance string) wire.MdnsRecord {
	return wire.MdnsRecord{
		Name: wire.MustDomainName(serviceType), Type: wire.TypePTR, Class: wire.ClassIN, TTL: 120,
		Data: wire.Rdata{PTR: wire.MustDomainName(instance)},
	}
}

func srvRecord(instance, target string, port uint16) wire.MdnsRecord {
	return wire.MdnsRecord{
		Name: wire.MustDomainName(instance), Type: wire.TypeSRV, Class: wire.ClassIN, TTL: 120,
		Data: wire.Rdata{SRV: wire.SRVData{Target: wire.MustDomainName(target), Port: port}},
	}
}

func txtRecord(instance string, strs ...string) wire.MdnsRecord {
	data := make([][]byte, len(strs))
	for i, s := range strs {
		data[i] = []byte(s)
	}
	return wire.MdnsRecord{
		Name: wire.MustDomainName(instance), Type: wire.TypeTXT, Class: wire.ClassIN, TTL: 120,
		Data: wire.Rdata{TXT: wire.TXTData{Strings: data}},
	}
}

func addressRecord(host, ip string) wire.MdnsRecord {
	return wire.MdnsRecord{
		Name: wire.MustDomainName(host), Type: wire.TypeA, Class: wire.ClassIN, TTL: 120,
		Data: wire.Rdata{A: netip.MustParseAddr(ip)},
	}
}

func TestGraph_StartTracking_CreatesRootAndFiresCallback(t *testing.T) {
	g := NewGraph()
	var started []wire.DomainName
	g.StartTracking(wire.MustDomainName("_airplay._tcp.local"), func(n wire.DomainName) { started = append(started, n) })
	if len(started) != 1 {
		t.Fatalf("want one start callback, got %d", len(started))
	}
}

func TestGraph_ApplyRecordChange_PTRCreatesChildNode(t *testing.T) {
	g := NewGraph()
	serviceType := wire.MustDomainName("_airplay._tcp.local")
	g.StartTracking(serviceType, nil)

	var started []wire.DomainName
	err := g.ApplyRecordChange(ptrRecord("_airplay._tcp.local", "living-room._airplay._tcp.local"), RecordCreated,
		func(n wire.DomainName) { started = append(started, n) }, nil)
	if err != nil {
		t.Fatalf("ApplyRecordChange: %v", err)
	}
	if len(started) != 1 {
		t.Fatalf("want the instance node created once, got %d", len(started))
	}
}

func TestGraph_ApplyRecordChange_UntrackedNodeReturnsError(t *testing.T) {
	g := NewGraph()
	err := g.ApplyRecordChange(srvRecord("never-tracked.local", "host.local", 80), RecordCreated, nil, nil)
	if err == nil {
		t.Fatal("expected an error for an untracked target node")
	}
}

// TestGraph_GarbageCollection_CascadesOnStopTracking checks the
// reachability invariant — a node only exists while reachable from a
// root: stopping
// the root must cascade-delete every node whose last incoming edge came
// from it.
func TestGraph_GarbageCollection_CascadesOnStopTracking(t *testing.T) {
	g := NewGraph()
	serviceType := wire.MustDomainName("_airplay._tcp.local")
	instance := wire.MustDomainName("living-room._airplay._tcp.local")
	host := wire.MustDomainName("living-room.local")

	g.StartTracking(serviceType, nil)
	if err := g.ApplyRecordChange(ptrRecord("_airplay._tcp.local", "living-room._airplay._tcp.local"), RecordCreated, nil, nil); err != nil {
		t.Fatalf("PTR apply: %v", err)
	}
	if err := g.ApplyRecordChange(srvRecord("living-room._airplay._tcp.local", "living-room.local", 7000), RecordCreated, nil, nil); err != nil {
		t.Fatalf("SRV apply: %v", err)
	}

	var stopped []wire.DomainName
	g.StopTracking(serviceType, func(n wire.DomainName) { stopped = append(stopped, n) })

	if _, ok := g.node(serviceType); ok {
		t.Fatal("root should be gone after StopTracking")
	}
	if _, ok := g.node(instance); ok {
		t.Fatal("instance node should cascade-delete once its last parent (the root) is gone")
	}
	if _, ok := g.node(host); ok {
		t.Fatal("host node should cascade-delete transitively")
	}
	if len(stopped) != 3 {
		t.Fatalf("want 3 stop callbacks (root + instance + host), got %d", len(stopped))
	}
}

func TestGraph_CreateEndpoints_SkipsIncoherentSRVTarget(t *testing.T) {
	g := NewGraph()
	instance := wire.MustDomainName("living-room._airplay._tcp.local")
	g.StartTracking(instance, nil)

	if err := g.ApplyRecordChange(srvRecord("living-room._airplay._tcp.local", "living-room.local", 7000), RecordCreated, nil, nil); err != nil {
		t.Fatalf("SRV apply: %v", err)
	}
	if err := g.ApplyRecordChange(txtRecord("living-room._airplay._tcp.local", "foo=bar"), RecordCreated, nil, nil); err != nil {
		t.Fatalf("TXT apply: %v", err)
	}
	// No A/AAAA record ever arrives at living-room.local: incoherent.

	eps := g.CreateEndpoints(instance, DesignationSrvAndTxt)
	if len(eps) != 0 {
		t.Fatalf("incoherent SRV target (missing address) must be skipped, got %d endpoints", len(eps))
	}
}

func TestGraph_CreateEndpoints_FullTripleProducesEndpoint(t *testing.T) {
	g := NewGraph()
	serviceType := wire.MustDomainName("_airplay._tcp.local")
	instance := wire.MustDomainName("living-room._airplay._tcp.local")

	g.StartTracking(serviceType, nil)
	mustApply := func(rec wire.MdnsRecord) {
		if err := g.ApplyRecordChange(rec, RecordCreated, nil, nil); err != nil {
			t.Fatalf("ApplyRecordChange(%v): %v", rec, err)
		}
	}
	mustApply(ptrRecord("_airplay._tcp.local", "living-room._airplay._tcp.local"))
	mustApply(srvRecord("living-room._airplay._tcp.local", "living-room.local", 7000))
	mustApply(txtRecord("living-room._airplay._tcp.local", "model=AppleTV", "flagonly"))
	mustApply(addressRecord("living-room.local", "192.168.1.50"))

	eps := g.CreateEndpoints(instance, DesignationSrvAndTxt)
	if len(eps) != 1 {
		t.Fatalf("want 1 coherent endpoint, got %d", len(eps))
	}
	ep := eps[0]
	if !ep.HasIPv4 || ep.IPv4.Port() != 7000 {
		t.Fatalf("endpoint should carry IPv4 on the SRV port, got %+v", ep)
	}
	if v, ok := ep.TXT.Value("model"); !ok || string(v) != "AppleTV" {
		t.Fatalf("TXT key=value should round-trip, got %+v", ep.TXT)
	}
	if !ep.TXT.Flag("flagonly") {
		t.Fatal("bare TXT flag should round-trip")
	}

	viaPtr := g.CreateEndpoints(serviceType, DesignationPtr)
	if len(viaPtr) != 1 {
		t.Fatalf("PTR-designation lookup should find the same endpoint, got %d", len(viaPtr))
	}
}
