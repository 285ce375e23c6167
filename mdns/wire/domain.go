// Package wire implements the RFC 1035 / RFC 6762 wire codec: domain names
// with compression, resource records, and questions.
//
// Parsing accepts compression pointers anywhere a name may appear; the
// writer also emits them, since one outgoing message routinely repeats
// the same handful of names. The compressing writer matters most to the
// DNS-SD publishing path: a querier and a
// responder that share one outgoing message routinely reference the same
// few names (service type, instance, host) many times per packet.
package wire

import (
	"fmt"
	"strings"

	"github.com/openscreen-go/openscreen/internal/errors"
)

// MaxLabelLength is the maximum length, in bytes, of a single DNS label.
const MaxLabelLength = 63

// MaxNameLength is the maximum total length, in bytes, of a domain name in
// wire format (length bytes included).
const MaxNameLength = 255

// MaxCompressionPointerOffset is the largest offset a 14-bit compression
// pointer can address (RFC 1035 §4.1.4).
const MaxCompressionPointerOffset = 0x3FFF

// compressionMask identifies the top two bits of a length byte that mark a
// compression pointer rather than a label length.
const compressionMask = 0xC0

// maxCompressionJumps bounds pointer-chasing while parsing, guarding
// against malformed or adversarial pointer loops.
const maxCompressionJumps = 128

// DomainName is an ordered sequence of labels, each at most MaxLabelLength
// bytes, with deduplicated non-ASCII bytes permitted for service-instance
// labels (RFC 6763 §4.3 allows arbitrary UTF-8 in the instance label).
// Labels compare case-insensitively per RFC 1035 §3.1's "case is preserved
// on transmission, case is ignored on comparison" rule.
type DomainName struct {
	Labels []string
}

// NewDomainName splits a dotted string into a [DomainName], validating
// label and total-length limits. A trailing "." (or the bare root ".") is
// accepted and produces a name with no labels for the root, or a clean
// label list otherwise.
func NewDomainName(dotted string) (DomainName, error) {
	if dotted == "" || dotted == "." {
		return DomainName{}, nil
	}
	labels := strings.Split(strings.TrimSuffix(dotted, "."), ".")
	total := 0
	for _, l := range labels {
		if len(l) == 0 {
			return DomainName{}, &errors.ValidationError{
				Field: "name", Value: dotted, Message: "empty label (consecutive dots)",
			}
		}
		if len(l) > MaxLabelLength {
			return DomainName{}, &errors.ValidationError{
				Field: "name", Value: dotted,
				Message: fmt.Sprintf("label %q exceeds %d bytes", l, MaxLabelLength),
			}
		}
		total += len(l) + 1
	}
	total++ // root terminator
	if total > MaxNameLength {
		return DomainName{}, &errors.ValidationError{
			Field: "name", Value: dotted,
			Message: fmt.Sprintf("encoded name would exceed %d bytes", MaxNameLength),
		}
	}
	return DomainName{Labels: labels}, nil
}

// MustDomainName is [NewDomainName] but panics on error, for constants and
// test fixtures.
func MustDomainName(dotted string) DomainName {
	d, err := NewDomainName(dotted)
	if err != nil {
		panic(err)
	}
	return d
}

// String renders the name dotted, matching how it would be typed.
func (d DomainName) String() string {
	if len(d.Labels) == 0 {
		return "."
	}
	return strings.Join(d.Labels, ".")
}

// Equal compares two names case-insensitively, label by label.
func (d DomainName) Equal(other DomainName) bool {
	if len(d.Labels) != len(other.Labels) {
		return false
	}
	for i := range d.Labels {
		if !strings.EqualFold(d.Labels[i], other.Labels[i]) {
			return false
		}
	}
	return true
}

// key returns a case-normalized join used as the compression-map and
// graph-node lookup key, so that "Foo.local" and "foo.local" collapse to
// one cache entry per RFC 1035 §3.1's comparison rule.
func (d DomainName) key() string {
	if len(d.Labels) == 0 {
		return ""
	}
	lowered := make([]string, len(d.Labels))
	for i, l := range d.Labels {
		lowered[i] = strings.ToLower(l)
	}
	return strings.Join(lowered, ".")
}

// Key exposes the case-normalized lookup key, used by the DNS-SD graph to
// key its node map.
func (d DomainName) Key() string { return d.key() }

// IsSubdomainOf reports whether d ends with all of parent's labels, i.e.
// parent is a suffix of d (e.g. "inst._svc._tcp.local" is a subdomain of
// "_svc._tcp.local").
func (d DomainName) IsSubdomainOf(parent DomainName) bool {
	if len(parent.Labels) > len(d.Labels) {
		return false
	}
	offset := len(d.Labels) - len(parent.Labels)
	for i, l := range parent.Labels {
		if !strings.EqualFold(d.Labels[offset+i], l) {
			return false
		}
	}
	return true
}
