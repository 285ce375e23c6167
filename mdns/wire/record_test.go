package wire

import (
	"net/netip"
	"testing"
)

func roundTripRecord(t *testing.T, rec MdnsRecord) MdnsRecord {
	t.Helper()
	w := NewWriter()
	if err := rec.Encode(w); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	r := NewReader(w.Bytes())
	got, err := DecodeRecord(r)
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}
	return got
}

func TestRecord_RoundTrip_A(t *testing.T) {
	rec := MdnsRecord{
		Name: MustDomainName("host.local"), Type: TypeA, Class: ClassIN, Kind: Unique, TTL: 120,
		Data: Rdata{A: netip.MustParseAddr("192.168.1.10")},
	}
	got := roundTripRecord(t, rec)
	if !got.SameIdentity(rec) || !got.SameRdata(rec) || got.TTL != rec.TTL || got.Kind != rec.Kind {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, rec)
	}
}

func TestRecord_RoundTrip_PTR(t *testing.T) {
	rec := MdnsRecord{
		Name: MustDomainName("_http._tcp.local"), Type: TypePTR, Class: ClassIN, Kind: Shared, TTL: 4500,
		Data: Rdata{PTR: MustDomainName("My Printer._http._tcp.local")},
	}
	got := roundTripRecord(t, rec)
	if !got.SameRdata(rec) {
		t.Fatalf("PTR rdata mismatch: got %v want %v", got.Data.PTR, rec.Data.PTR)
	}
}

func TestRecord_RoundTrip_SRV(t *testing.T) {
	rec := MdnsRecord{
		Name: MustDomainName("inst._svc._tcp.local"), Type: TypeSRV, Class: ClassIN, Kind: Unique, TTL: 120,
		Data: Rdata{SRV: SRVData{Priority: 0, Weight: 0, Port: 8009, Target: MustDomainName("host.local")}},
	}
	got := roundTripRecord(t, rec)
	if !got.SameRdata(rec) {
		t.Fatalf("SRV rdata mismatch: got %+v want %+v", got.Data.SRV, rec.Data.SRV)
	}
}

func TestRecord_RoundTrip_TXT_Empty(t *testing.T) {
	rec := MdnsRecord{
		Name: MustDomainName("inst._svc._tcp.local"), Type: TypeTXT, Class: ClassIN, Kind: Unique, TTL: 4500,
		Data: Rdata{TXT: TXTData{}},
	}
	got := roundTripRecord(t, rec)
	if len(got.Data.TXT.Strings) != 1 || len(got.Data.TXT.Strings[0]) != 0 {
		t.Fatalf("empty TXT must round-trip as a single zero-length string, got %v", got.Data.TXT.Strings)
	}
}

func TestRecord_RoundTrip_TXT_KeyValue(t *testing.T) {
	rec := MdnsRecord{
		Name: MustDomainName("inst._svc._tcp.local"), Type: TypeTXT, Class: ClassIN, Kind: Unique, TTL: 4500,
		Data: Rdata{TXT: TXTData{Strings: [][]byte{[]byte("id=abc123"), []byte("st=0")}}},
	}
	got := roundTripRecord(t, rec)
	m := got.Data.TXT.AsMap()
	if string(m["id"]) != "abc123" || string(m["st"]) != "0" {
		t.Fatalf("TXT map mismatch: %v", m)
	}
}

func TestRecord_CacheFlushBitRoundTrips(t *testing.T) {
	rec := MdnsRecord{
		Name: MustDomainName("host.local"), Type: TypeA, Class: ClassIN, Kind: Unique, TTL: 120,
		Data: Rdata{A: netip.MustParseAddr("10.0.0.1")},
	}
	got := roundTripRecord(t, rec)
	if got.Kind != Unique {
		t.Fatal("cache-flush bit should round-trip as Kind == Unique")
	}
}

func TestMessage_RoundTrip(t *testing.T) {
	msg := Message{
		Header: Header{ID: 0, Flags: FlagQR},
		Answers: []MdnsRecord{
			{Name: MustDomainName("host.local"), Type: TypeA, Class: ClassIN, Kind: Unique, TTL: 120,
				Data: Rdata{A: netip.MustParseAddr("192.168.1.5")}},
		},
	}
	buf, err := msg.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := DecodeMessage(buf)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if !got.Header.IsResponse() || len(got.Answers) != 1 {
		t.Fatalf("decoded message mismatch: %+v", got)
	}
	if !got.Answers[0].SameRdata(msg.Answers[0]) {
		t.Fatalf("answer rdata mismatch")
	}
}

func TestQuestion_MatchesANYWildcards(t *testing.T) {
	q := MdnsQuestion{Name: MustDomainName("host.local"), Type: TypeANY, Class: ClassANY}
	rec := MdnsRecord{Name: MustDomainName("host.local"), Type: TypeA, Class: ClassIN}
	if !q.Matches(rec) {
		t.Fatal("ANY/ANY question should match any record with the same name")
	}
}
