package wire

import (
	"bytes"
	"fmt"

	"github.com/openscreen-go/openscreen/internal/errors"
)

// Writer encodes mDNS messages with RFC 1035 §4.1.4 name compression.
//
// A Writer is scoped to one outgoing message (or one logical buffer): it
// remembers, for every name suffix it has already written, the byte offset
// at which that suffix starts, so a later name sharing a tail can reference
// it with a two-byte pointer instead of repeating labels. Per spec, no
// pointer is ever emitted to an offset at or beyond 0x4000 — the 14 bits
// available in a pointer cannot address it, and writers must fall back to
// emitting the full name in that case.
type Writer struct {
	buf    bytes.Buffer
	offset map[string]int // case-normalized dotted suffix -> byte offset
}

// NewWriter returns a [Writer] starting at byte offset 0. Use
// [NewWriterAt] when the name section does not start at the beginning of
// the underlying buffer (e.g. writing directly after a fixed DNS header).
func NewWriter() *Writer {
	return NewWriterAt(0)
}

// NewWriterAt returns a [Writer] whose first emitted byte is considered to
// be at baseOffset, so that compression pointers recorded by this writer
// point at the correct absolute offset within the final message.
func NewWriterAt(baseOffset int) *Writer {
	w := &Writer{offset: make(map[string]int)}
	if baseOffset > 0 {
		w.buf.Write(make([]byte, baseOffset))
	}
	return w
}

// Bytes returns the accumulated buffer.
func (w *Writer) Bytes() []byte { return w.buf.Bytes() }

// Len returns the current absolute offset (including any base offset).
func (w *Writer) Len() int { return w.buf.Len() }

// WriteName writes name, compressing against any previously written name
// or name suffix that is still addressable (offset ≤ [MaxCompressionPointerOffset]).
func (w *Writer) WriteName(name DomainName) error {
	labels := name.Labels
	for i := 0; i <= len(labels); i++ {
		suffixLabels := labels[i:]
		suffixKey := dottedKey(suffixLabels)
		if off, ok := w.offset[suffixKey]; ok && off <= MaxCompressionPointerOffset {
			// Emit the unmatched prefix labels literally, then a pointer
			// to the matched suffix. The prefix labels form addressable
			// suffixes of their own (prefix + pointer target), so record
			// them exactly as the literal branch below does.
			for j := 0; j < i; j++ {
				if litOff := w.buf.Len(); litOff <= MaxCompressionPointerOffset {
					w.offset[dottedKey(labels[j:])] = litOff
				}
				if err := w.writeLabel(labels[j]); err != nil {
					return err
				}
			}
			w.buf.WriteByte(byte(compressionMask | (off >> 8)))
			w.buf.WriteByte(byte(off & 0xFF))
			return nil
		}
	}

	// No compressible suffix found (including the root, which is never
	// recorded as a suffix — it has no bytes of its own). Write every
	// label literally, recording each suffix's offset as we go so later
	// names can point back into this one.
	for i := range labels {
		if off := w.buf.Len(); off <= MaxCompressionPointerOffset {
			w.offset[dottedKey(labels[i:])] = off
		}
		if err := w.writeLabel(labels[i]); err != nil {
			return err
		}
	}
	w.buf.WriteByte(0)
	return nil
}

func (w *Writer) writeLabel(label string) error {
	if len(label) > MaxLabelLength {
		return &errors.WireFormatError{
			Operation: "write name",
			Message:   fmt.Sprintf("label %q exceeds %d bytes", label, MaxLabelLength),
		}
	}
	w.buf.WriteByte(byte(len(label)))
	w.buf.WriteString(label)
	return nil
}

// WriteUint16 writes a big-endian uint16.
func (w *Writer) WriteUint16(v uint16) { w.buf.WriteByte(byte(v >> 8)); w.buf.WriteByte(byte(v)) }

// WriteUint32 writes a big-endian uint32.
func (w *Writer) WriteUint32(v uint32) {
	w.buf.WriteByte(byte(v >> 24))
	w.buf.WriteByte(byte(v >> 16))
	w.buf.WriteByte(byte(v >> 8))
	w.buf.WriteByte(byte(v))
}

// WriteBytes writes raw bytes verbatim (e.g. rdata already encoded, or an
// IPv4/IPv6 address).
func (w *Writer) WriteBytes(b []byte) { w.buf.Write(b) }

func dottedKey(labels []string) string {
	return DomainName{Labels: labels}.key()
}
