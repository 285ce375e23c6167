package wire

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/openscreen-go/openscreen/internal/errors"
)

// DNSType is a DNS resource record or question type per RFC 1035 §3.2.2
// and RFC 2782 (SRV). Only the types the stack produces or consumes are
// supported; NSEC is
// carried as an opaque rdata blob since the core never needs to interpret
// its bitmap.
type DNSType uint16

const (
	TypeA    DNSType = 1
	TypePTR  DNSType = 12
	TypeTXT  DNSType = 16
	TypeAAAA DNSType = 28
	TypeSRV  DNSType = 33
	TypeNSEC DNSType = 47
	TypeANY  DNSType = 255
)

func (t DNSType) String() string {
	switch t {
	case TypeA:
		return "A"
	case TypePTR:
		return "PTR"
	case TypeTXT:
		return "TXT"
	case TypeAAAA:
		return "AAAA"
	case TypeSRV:
		return "SRV"
	case TypeNSEC:
		return "NSEC"
	case TypeANY:
		return "ANY"
	default:
		return fmt.Sprintf("TYPE%d", uint16(t))
	}
}

// DNSClass is a DNS class, optionally OR'd with the cache-flush bit (the
// high bit of the 16-bit class field) on mDNS resource records per RFC
// 6762 §10.2.
type DNSClass uint16

const (
	ClassIN DNSClass = 1
	ClassANY DNSClass = 255

	// cacheFlushBit is set on a unique record to tell a querier "this
	// record supersedes everything previously cached under this name and
	// type", per RFC 6762 §10.2.
	cacheFlushBit DNSClass = 1 << 15
)

// Class returns the class with the cache-flush bit masked off.
func (c DNSClass) Class() DNSClass { return c &^ cacheFlushBit }

// CacheFlush reports whether the cache-flush bit is set.
func (c DNSClass) CacheFlush() bool { return c&cacheFlushBit != 0 }

// WithCacheFlush returns c with the cache-flush bit set.
func (c DNSClass) WithCacheFlush() DNSClass { return c | cacheFlushBit }

// RecordType classifies whether an mDNS record is unique (this responder
// is the sole owner; cache-flush semantics apply) or shared (multiple
// responders may legitimately answer with different data), per RFC 6762
// §10.2.
type RecordType int

const (
	Shared RecordType = iota
	Unique
)

// ResponseType distinguishes a multicast question from a unicast-response
// question (the top bit of the class field on a question), per RFC 6762
// §5.4.
type ResponseType int

const (
	Multicast ResponseType = iota
	Unicast
)

// Rdata is a tagged union over the record-type-specific payload. Exactly
// one of the typed fields is meaningful, selected by the owning
// [MdnsRecord]'s Type.
type Rdata struct {
	A     netip.Addr // TypeA
	AAAA  netip.Addr // TypeAAAA
	PTR   DomainName // TypePTR
	SRV   SRVData    // TypeSRV
	TXT   TXTData    // TypeTXT
	NSEC  []byte     // never set by the codec: TypeNSEC rdata is encoded from and decoded into Raw
	Raw   []byte     // any other type, opaque
}

// SRVData is the rdata of an SRV record per RFC 2782.
type SRVData struct {
	Priority uint16
	Weight   uint16
	Port     uint16
	Target   DomainName
}

// TXTData is the rdata of a TXT record: a sequence of length-prefixed
// strings. Per RFC 6763 §6.1, an empty TXT record is a single
// zero-length string, not zero strings.
type TXTData struct {
	Strings [][]byte
}

// AsMap interprets the TXT strings as "key=value" or bare "key" flag
// entries, per RFC 6763 §6.3. A string with no '=' is a flag (present with
// a nil value); one or more '=' splits on the first occurrence.
func (t TXTData) AsMap() map[string][]byte {
	m := make(map[string][]byte, len(t.Strings))
	for _, s := range t.Strings {
		if len(s) == 0 {
			continue
		}
		for i, b := range s {
			if b == '=' {
				m[string(s[:i])] = s[i+1:]
				goto next
			}
		}
		m[string(s)] = nil
	next:
	}
	return m
}

// MdnsRecord is one resource record: name/type/class/ttl plus its rdata.
type MdnsRecord struct {
	Name  DomainName
	Type  DNSType
	Class DNSClass
	Kind  RecordType
	TTL   uint32 // seconds; 0 marks a goodbye record
	Data  Rdata
}

// IsGoodbye reports whether this record announces immediate departure
// (TTL == 0). Per spec, a goodbye record's *effective* lifetime is clamped
// to one second by the owning tracker, not by the record itself.
func (r MdnsRecord) IsGoodbye() bool { return r.TTL == 0 }

// SameIdentity reports whether r and other share the same name, type, and
// class — the key RFC 6762 uses to decide whether one record updates
// another rather than coexisting with it.
func (r MdnsRecord) SameIdentity(other MdnsRecord) bool {
	return r.Name.Equal(other.Name) && r.Type == other.Type && r.Class.Class() == other.Class.Class()
}

// SameRdata reports whether the rdata payloads are byte-for-byte
// equivalent for the two records' shared type. Names inside rdata (PTR
// target, SRV target) compare case-insensitively like any other name.
func (r MdnsRecord) SameRdata(other MdnsRecord) bool {
	if r.Type != other.Type {
		return false
	}
	switch r.Type {
	case TypeA:
		return r.Data.A == other.Data.A
	case TypeAAAA:
		return r.Data.AAAA == other.Data.AAAA
	case TypePTR:
		return r.Data.PTR.Equal(other.Data.PTR)
	case TypeSRV:
		return r.Data.SRV.Priority == other.Data.SRV.Priority &&
			r.Data.SRV.Weight == other.Data.SRV.Weight &&
			r.Data.SRV.Port == other.Data.SRV.Port &&
			r.Data.SRV.Target.Equal(other.Data.SRV.Target)
	case TypeTXT:
		if len(r.Data.TXT.Strings) != len(other.Data.TXT.Strings) {
			return false
		}
		for i := range r.Data.TXT.Strings {
			if string(r.Data.TXT.Strings[i]) != string(other.Data.TXT.Strings[i]) {
				return false
			}
		}
		return true
	default:
		return string(r.Data.Raw) == string(other.Data.Raw)
	}
}

// Encode appends the wire-format record (including its rdata, correctly
// length-prefixed) to w.
func (r MdnsRecord) Encode(w *Writer) error {
	if err := w.WriteName(r.Name); err != nil {
		return err
	}
	w.WriteUint16(uint16(r.Type))
	class := r.Class.Class()
	if r.Kind == Unique {
		class = class.WithCacheFlush()
	}
	w.WriteUint16(uint16(class))
	w.WriteUint32(r.TTL)

	rdataStart := w.Len()
	w.WriteUint16(0) // placeholder rdlength, patched below
	rdataWriter := w
	switch r.Type {
	case TypeA:
		if !r.Data.A.Is4() {
			return &errors.WireFormatError{Operation: "encode A record", Message: "address is not IPv4"}
		}
		b := r.Data.A.As4()
		rdataWriter.WriteBytes(b[:])
	case TypeAAAA:
		if !r.Data.AAAA.Is6() {
			return &errors.WireFormatError{Operation: "encode AAAA record", Message: "address is not IPv6"}
		}
		b := r.Data.AAAA.As16()
		rdataWriter.WriteBytes(b[:])
	case TypePTR:
		if err := rdataWriter.WriteName(r.Data.PTR); err != nil {
			return err
		}
	case TypeSRV:
		rdataWriter.WriteUint16(r.Data.SRV.Priority)
		rdataWriter.WriteUint16(r.Data.SRV.Weight)
		rdataWriter.WriteUint16(r.Data.SRV.Port)
		// SRV targets are not compressed per common practice (RFC 2782
		// is silent; avoiding compression here keeps rdlength patch math
		// simple and matches what most mDNS stacks emit).
		if err := encodeNameUncompressed(rdataWriter, r.Data.SRV.Target); err != nil {
			return err
		}
	case TypeTXT:
		if len(r.Data.TXT.Strings) == 0 {
			rdataWriter.buf.WriteByte(0)
		}
		for _, s := range r.Data.TXT.Strings {
			if len(s) > 255 {
				return &errors.WireFormatError{Operation: "encode TXT record", Message: "TXT string exceeds 255 bytes"}
			}
			rdataWriter.buf.WriteByte(byte(len(s)))
			rdataWriter.buf.Write(s)
		}
	default:
		rdataWriter.WriteBytes(r.Data.Raw)
	}

	rdlen := w.Len() - rdataStart - 2
	raw := w.buf.Bytes()
	raw[rdataStart] = byte(rdlen >> 8)
	raw[rdataStart+1] = byte(rdlen)
	return nil
}

// encodeNameUncompressed writes name's labels literally without consulting
// or updating the writer's compression table.
func encodeNameUncompressed(w *Writer, name DomainName) error {
	for _, l := range name.Labels {
		if err := w.writeLabel(l); err != nil {
			return err
		}
	}
	w.buf.WriteByte(0)
	return nil
}

// DecodeRecord reads one resource record starting at r's current position.
func DecodeRecord(r *Reader) (MdnsRecord, error) {
	name, err := r.ReadName()
	if err != nil {
		return MdnsRecord{}, err
	}
	typ, err := r.ReadUint16()
	if err != nil {
		return MdnsRecord{}, err
	}
	rawClass, err := r.ReadUint16()
	if err != nil {
		return MdnsRecord{}, err
	}
	ttl, err := r.ReadUint32()
	if err != nil {
		return MdnsRecord{}, err
	}
	rdlen, err := r.ReadUint16()
	if err != nil {
		return MdnsRecord{}, err
	}
	rdataStart := r.Pos()
	if r.Remaining() < int(rdlen) {
		return MdnsRecord{}, &errors.WireFormatError{Operation: "decode record", Message: "truncated rdata"}
	}

	class := DNSClass(rawClass)
	kind := Shared
	if class.CacheFlush() {
		kind = Unique
	}
	rec := MdnsRecord{Name: name, Type: DNSType(typ), Class: class.Class(), Kind: kind, TTL: ttl}

	switch rec.Type {
	case TypeA:
		b, err := r.ReadBytes(4)
		if err != nil {
			return MdnsRecord{}, err
		}
		rec.Data.A = netip.AddrFrom4([4]byte(b))
	case TypeAAAA:
		b, err := r.ReadBytes(16)
		if err != nil {
			return MdnsRecord{}, err
		}
		rec.Data.AAAA = netip.AddrFrom16([16]byte(b))
	case TypePTR:
		target, err := r.ReadName()
		if err != nil {
			return MdnsRecord{}, err
		}
		rec.Data.PTR = target
	case TypeSRV:
		prio, err := r.ReadUint16()
		if err != nil {
			return MdnsRecord{}, err
		}
		weight, err := r.ReadUint16()
		if err != nil {
			return MdnsRecord{}, err
		}
		port, err := r.ReadUint16()
		if err != nil {
			return MdnsRecord{}, err
		}
		target, err := r.ReadName()
		if err != nil {
			return MdnsRecord{}, err
		}
		rec.Data.SRV = SRVData{Priority: prio, Weight: weight, Port: port, Target: target}
	case TypeTXT:
		end := rdataStart + int(rdlen)
		var strs [][]byte
		for r.Pos() < end {
			lb, err := r.ReadBytes(1)
			if err != nil {
				return MdnsRecord{}, err
			}
			l := int(lb[0])
			s, err := r.ReadBytes(l)
			if err != nil {
				return MdnsRecord{}, err
			}
			cp := make([]byte, len(s))
			copy(cp, s)
			strs = append(strs, cp)
		}
		if len(strs) == 0 {
			strs = [][]byte{{}}
		}
		rec.Data.TXT = TXTData{Strings: strs}
	default:
		raw, err := r.ReadBytes(int(rdlen))
		if err != nil {
			return MdnsRecord{}, err
		}
		cp := make([]byte, len(raw))
		copy(cp, raw)
		rec.Data.Raw = cp
	}

	// Always resync to the declared rdlength boundary: a name inside rdata
	// (PTR, SRV) may have consumed a compression pointer and landed short
	// of rdataStart+rdlen, or a peer may pad; trust the length prefix.
	r.Seek(rdataStart + int(rdlen))
	return rec, nil
}

// ParseIP is a convenience used by callers building A/AAAA rdata from a
// net.IP without going through netip parsing error handling twice.
func ParseIP(ip net.IP) (netip.Addr, bool) {
	addr, ok := netip.AddrFromSlice(ip)
	return addr, ok
}
