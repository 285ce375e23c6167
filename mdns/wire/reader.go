package wire

import (
	"fmt"

	"github.com/openscreen-go/openscreen/internal/errors"
)

// Reader decodes mDNS messages, following RFC 1035 §4.1.4 compression
// pointers.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps buf for sequential decoding starting at offset 0.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Pos returns the current read offset.
func (r *Reader) Pos() int { return r.pos }

// Seek repositions the reader (used after following side-data like rdata
// length prefixes, or by tests constructing a reader mid-message).
func (r *Reader) Seek(pos int) { r.pos = pos }

// Remaining reports how many bytes are left to read from the current
// position.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

// ReadName parses a (possibly compressed) domain name starting at the
// reader's current position.
func (r *Reader) ReadName() (DomainName, error) {
	name, newPos, err := r.readNameAt(r.pos, 0)
	if err != nil {
		return DomainName{}, err
	}
	r.pos = newPos
	return name, nil
}

func (r *Reader) readNameAt(pos, jumps int) (DomainName, int, error) {
	var labels []string
	cur := pos
	consumedAfterFirstJump := -1

	for {
		if cur >= len(r.buf) {
			return DomainName{}, 0, &errors.WireFormatError{
				Operation: "read name", Offset: cur,
				Message: "unexpected end of message while parsing name",
			}
		}
		length := r.buf[cur]

		if length&compressionMask == compressionMask {
			if cur+1 >= len(r.buf) {
				return DomainName{}, 0, &errors.WireFormatError{
					Operation: "read name", Offset: cur, Message: "truncated compression pointer",
				}
			}
			target := int(length&^compressionMask)<<8 | int(r.buf[cur+1])
			if target >= cur {
				return DomainName{}, 0, &errors.WireFormatError{
					Operation: "read name", Offset: cur,
					Message: fmt.Sprintf("compression pointer to %d does not precede current offset %d", target, cur),
				}
			}
			if consumedAfterFirstJump < 0 {
				consumedAfterFirstJump = cur + 2
			}
			jumps++
			if jumps > maxCompressionJumps {
				return DomainName{}, 0, &errors.WireFormatError{
					Operation: "read name", Offset: cur, Message: "too many compression jumps",
				}
			}
			cur = target
			continue
		}

		if length == 0 {
			cur++
			break
		}

		if length > MaxLabelLength {
			return DomainName{}, 0, &errors.WireFormatError{
				Operation: "read name", Offset: cur,
				Message: fmt.Sprintf("label length %d exceeds %d bytes", length, MaxLabelLength),
			}
		}
		if cur+1+int(length) > len(r.buf) {
			return DomainName{}, 0, &errors.WireFormatError{
				Operation: "read name", Offset: cur, Message: "truncated label",
			}
		}
		labels = append(labels, string(r.buf[cur+1:cur+1+int(length)]))
		cur += 1 + int(length)
	}

	name := DomainName{Labels: labels}
	if consumedAfterFirstJump >= 0 {
		return name, consumedAfterFirstJump, nil
	}
	return name, cur, nil
}

// ReadUint16 reads a big-endian uint16.
func (r *Reader) ReadUint16() (uint16, error) {
	if r.Remaining() < 2 {
		return 0, &errors.WireFormatError{Operation: "read uint16", Offset: r.pos, Message: "truncated"}
	}
	v := uint16(r.buf[r.pos])<<8 | uint16(r.buf[r.pos+1])
	r.pos += 2
	return v, nil
}

// ReadUint32 reads a big-endian uint32.
func (r *Reader) ReadUint32() (uint32, error) {
	if r.Remaining() < 4 {
		return 0, &errors.WireFormatError{Operation: "read uint32", Offset: r.pos, Message: "truncated"}
	}
	v := uint32(r.buf[r.pos])<<24 | uint32(r.buf[r.pos+1])<<16 | uint32(r.buf[r.pos+2])<<8 | uint32(r.buf[r.pos+3])
	r.pos += 4
	return v, nil
}

// ReadBytes reads n raw bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if r.Remaining() < n {
		return nil, &errors.WireFormatError{Operation: "read bytes", Offset: r.pos, Message: "truncated"}
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}
