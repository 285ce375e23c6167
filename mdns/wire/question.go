package wire

import "github.com/openscreen-go/openscreen/internal/errors"

// MdnsQuestion is one entry of a message's Question section.
type MdnsQuestion struct {
	Name     DomainName
	Type     DNSType
	Class    DNSClass
	Response ResponseType
}

// Matches reports whether rec would be a valid answer to q, honoring
// the ANY wildcards on both type and class.
func (q MdnsQuestion) Matches(rec MdnsRecord) bool {
	if q.Type != TypeANY && q.Type != rec.Type {
		return false
	}
	if q.Class != ClassANY && q.Class.Class() != rec.Class.Class() {
		return false
	}
	return q.Name.Equal(rec.Name)
}

// Encode writes the question's name/type/class; the class field's top bit
// carries the unicast-response flag per RFC 6762 §5.4.
func (q MdnsQuestion) Encode(w *Writer) error {
	if err := w.WriteName(q.Name); err != nil {
		return err
	}
	w.WriteUint16(uint16(q.Type))
	class := uint16(q.Class)
	if q.Response == Unicast {
		class |= uint16(cacheFlushBit)
	}
	w.WriteUint16(class)
	return nil
}

// DecodeQuestion reads one question.
func DecodeQuestion(r *Reader) (MdnsQuestion, error) {
	name, err := r.ReadName()
	if err != nil {
		return MdnsQuestion{}, err
	}
	typ, err := r.ReadUint16()
	if err != nil {
		return MdnsQuestion{}, err
	}
	rawClass, err := r.ReadUint16()
	if err != nil {
		return MdnsQuestion{}, err
	}
	resp := Multicast
	if DNSClass(rawClass).CacheFlush() {
		resp = Unicast
	}
	return MdnsQuestion{Name: name, Type: DNSType(typ), Class: DNSClass(rawClass).Class(), Response: resp}, nil
}

// Header is the fixed 12-byte RFC 1035 §4.1.1 message header.
type Header struct {
	ID      uint16
	Flags   uint16
	QDCount uint16
	ANCount uint16
	NSCount uint16
	ARCount uint16
}

const (
	FlagQR uint16 = 1 << 15
	FlagTC uint16 = 1 << 9
)

// IsQuery reports whether QR is clear.
func (h Header) IsQuery() bool { return h.Flags&FlagQR == 0 }

// IsResponse reports whether QR is set.
func (h Header) IsResponse() bool { return h.Flags&FlagQR != 0 }

// IsTruncated reports whether the TC bit is set, meaning known-answer
// continuation records follow in a subsequent message.
func (h Header) IsTruncated() bool { return h.Flags&FlagTC != 0 }

// Message is a full decoded (or to-be-encoded) mDNS message.
type Message struct {
	Header     Header
	Questions  []MdnsQuestion
	Answers    []MdnsRecord
	Authority  []MdnsRecord
	Additional []MdnsRecord
}

// Encode serializes the full message.
func (m Message) Encode() ([]byte, error) {
	w := NewWriter()
	h := m.Header
	h.QDCount = uint16(len(m.Questions))
	h.ANCount = uint16(len(m.Answers))
	h.NSCount = uint16(len(m.Authority))
	h.ARCount = uint16(len(m.Additional))

	w.WriteUint16(h.ID)
	w.WriteUint16(h.Flags)
	w.WriteUint16(h.QDCount)
	w.WriteUint16(h.ANCount)
	w.WriteUint16(h.NSCount)
	w.WriteUint16(h.ARCount)

	for _, q := range m.Questions {
		if err := q.Encode(w); err != nil {
			return nil, err
		}
	}
	for _, sec := range [][]MdnsRecord{m.Answers, m.Authority, m.Additional} {
		for _, rec := range sec {
			if err := rec.Encode(w); err != nil {
				return nil, err
			}
		}
	}
	return w.Bytes(), nil
}

// DecodeMessage parses a full mDNS message.
func DecodeMessage(buf []byte) (Message, error) {
	if len(buf) < 12 {
		return Message{}, &errors.WireFormatError{Operation: "decode message", Message: "message shorter than header"}
	}
	r := NewReader(buf)
	var m Message
	var err error
	if m.Header.ID, err = r.ReadUint16(); err != nil {
		return Message{}, err
	}
	if m.Header.Flags, err = r.ReadUint16(); err != nil {
		return Message{}, err
	}
	if m.Header.QDCount, err = r.ReadUint16(); err != nil {
		return Message{}, err
	}
	if m.Header.ANCount, err = r.ReadUint16(); err != nil {
		return Message{}, err
	}
	if m.Header.NSCount, err = r.ReadUint16(); err != nil {
		return Message{}, err
	}
	if m.Header.ARCount, err = r.ReadUint16(); err != nil {
		return Message{}, err
	}

	for i := 0; i < int(m.Header.QDCount); i++ {
		q, err := DecodeQuestion(r)
		if err != nil {
			return Message{}, err
		}
		m.Questions = append(m.Questions, q)
	}
	for _, count := range []struct {
		n   int
		dst *[]MdnsRecord
	}{
		{int(m.Header.ANCount), &m.Answers},
		{int(m.Header.NSCount), &m.Authority},
		{int(m.Header.ARCount), &m.Additional},
	} {
		for i := 0; i < count.n; i++ {
			rec, err := DecodeRecord(r)
			if err != nil {
				return Message{}, err
			}
			*count.dst = append(*count.dst, rec)
		}
	}
	return m, nil
}
