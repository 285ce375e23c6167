package dnssd

import (
	"strings"

	"github.com/openscreen-go/openscreen/internal/errors"
	"github.com/openscreen-go/openscreen/mdns/wire"
)

// TxtRecord is a parsed RFC 6763 §6 TXT record: each string is either a
// bare flag ("foo") or a key=value pair ("foo=bar"); an empty single
// string means no data, per RFC 6763 §6.1.
type TxtRecord struct {
	values map[string][]byte
	flags  map[string]bool
}

func newTxtRecord() *TxtRecord {
	return &TxtRecord{values: make(map[string][]byte), flags: make(map[string]bool)}
}

// Value returns the value associated with key, if it was set as a
// key=value pair.
func (t *TxtRecord) Value(key string) ([]byte, bool) {
	v, ok := t.values[key]
	return v, ok
}

// Flag returns whether key was present as a bare flag (no '=').
func (t *TxtRecord) Flag(key string) bool {
	return t.flags[key]
}

// ConvertFromDNSTxt parses raw TXT strings per RFC 6763 §6.4: "if there
// are multiple strings with the same key, the first one in the record
// (the one nearest the start of the record) is the one that takes
// precedence" — implemented by iterating the strings in reverse so the
// first occurrence is the one left standing after later assignments
// are overwritten.
func ConvertFromDNSTxt(txt wire.TXTData) (*TxtRecord, error) {
	out := newTxtRecord()
	if len(txt.Strings) == 1 && len(txt.Strings[0]) == 0 {
		return out, nil
	}
	for i := len(txt.Strings) - 1; i >= 0; i-- {
		s := string(txt.Strings[i])
		eq := strings.IndexByte(s, '=')
		if eq == 0 {
			return nil, &errors.ValidationError{Field: "txt", Value: s, Message: "key cannot be empty"}
		}
		if eq < 0 {
			out.flags[s] = true
			continue
		}
		key, value := s[:eq], s[eq+1:]
		out.values[key] = []byte(value)
	}
	return out, nil
}

// InstanceKey identifies a DNS-SD service instance: {instance_id,
// service_id, domain_id}, extracted from a record's name (or, for a PTR
// record, from its rdata target).
type InstanceKey struct {
	InstanceID string
	ServiceID  string
	DomainID   string
}

// ServiceKey identifies a service type: {service_id, domain_id}.
type ServiceKey struct {
	ServiceID string
	DomainID  string
}

// GetInstanceKey splits rec's owning name (its PTR target, for a PTR
// record; its own name otherwise) into instance/service/domain
// components: "<instance>.<service>.<proto>.<domain...>".
func GetInstanceKey(rec wire.MdnsRecord) (InstanceKey, error) {
	name := rec.Name
	if rec.Type == wire.TypePTR {
		name = rec.Data.PTR
	}
	if len(name.Labels) < 4 {
		return InstanceKey{}, &errors.ValidationError{Field: "name", Value: name.String(), Message: "too few labels for an instance name"}
	}
	return InstanceKey{
		InstanceID: name.Labels[0],
		ServiceID:  name.Labels[1] + "." + name.Labels[2],
		DomainID:   strings.Join(name.Labels[3:], "."),
	}, nil
}

// GetServiceKey derives the {service_id, domain_id} pair a record's
// instance belongs to.
func GetServiceKey(rec wire.MdnsRecord) (ServiceKey, error) {
	ik, err := GetInstanceKey(rec)
	if err != nil {
		return ServiceKey{}, err
	}
	return ServiceKey{ServiceID: ik.ServiceID, DomainID: ik.DomainID}, nil
}
