package wire

import (
	"bytes"
	"testing"
)

// TestWriter_CompressionVector pins the compression layout byte for byte:
// writing {testing,local} then {prefix,local} then {new,prefix,local} then
// {prefix,local} again must produce
// 07 "testing" 05 "local" 00 06 "prefix" C0 08 03 "new" C0 0F C0 0F.
func TestWriter_CompressionVector(t *testing.T) {
	w := NewWriter()
	names := []DomainName{
		MustDomainName("testing.local"),
		MustDomainName("prefix.local"),
		MustDomainName("new.prefix.local"),
		MustDomainName("prefix.local"),
	}
	for _, n := range names {
		if err := w.WriteName(n); err != nil {
			t.Fatalf("WriteName(%v): %v", n, err)
		}
	}

	want := []byte{
		0x07, 't', 'e', 's', 't', 'i', 'n', 'g',
		0x05, 'l', 'o', 'c', 'a', 'l',
		0x00,
		0x06, 'p', 'r', 'e', 'f', 'i', 'x',
		0xC0, 0x08,
		0x03, 'n', 'e', 'w',
		0xC0, 0x0F,
		0xC0, 0x0F,
	}
	if !bytes.Equal(w.Bytes(), want) {
		t.Fatalf("got  % x\nwant % x", w.Bytes(), want)
	}
}

func TestWriter_NoPointerBeyondMaxOffset(t *testing.T) {
	// Force the writer's base offset past 0x4000 so that any name it
	// writes cannot itself be pointed to, and any *earlier* table entry
	// (there is none here) would also be unusable; the boundary test is
	// that writing still succeeds and never emits 0xC0 without a matching
	// in-range offset.
	w := NewWriterAt(0x4000)
	n := MustDomainName("host.local")
	if err := w.WriteName(n); err != nil {
		t.Fatalf("WriteName: %v", err)
	}
	out := w.Bytes()[0x4000:]
	if len(out) == 0 || out[0]&compressionMask == compressionMask {
		t.Fatalf("name written past 0x4000 must not start with a pointer byte: % x", out)
	}

	// Writing the same name again must re-emit it in full rather than
	// reference the (unaddressable) earlier occurrence, since 0x4000 is
	// beyond what a 14-bit pointer can encode.
	before := w.Len()
	if err := w.WriteName(n); err != nil {
		t.Fatalf("second WriteName: %v", err)
	}
	second := w.Bytes()[before:]
	if len(second) == 0 || second[0]&compressionMask == compressionMask {
		t.Fatalf("name re-written past 0x4000 must not compress: % x", second)
	}
}

func TestReader_RoundTripsWriter(t *testing.T) {
	w := NewWriter()
	names := []DomainName{
		MustDomainName("testing.local"),
		MustDomainName("prefix.local"),
		MustDomainName("new.prefix.local"),
	}
	for _, n := range names {
		if err := w.WriteName(n); err != nil {
			t.Fatalf("WriteName: %v", err)
		}
	}

	r := NewReader(w.Bytes())
	for _, want := range names {
		got, err := r.ReadName()
		if err != nil {
			t.Fatalf("ReadName: %v", err)
		}
		if !got.Equal(want) {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestDomainName_Equal_CaseInsensitive(t *testing.T) {
	a := MustDomainName("Printer.Local")
	b := MustDomainName("printer.local")
	if !a.Equal(b) {
		t.Fatal("names should compare case-insensitively")
	}
}

func TestDomainName_LabelTooLong(t *testing.T) {
	long := make([]byte, 64)
	for i := range long {
		long[i] = 'a'
	}
	if _, err := NewDomainName(string(long) + ".local"); err == nil {
		t.Fatal("expected error for label > 63 bytes")
	}
}
