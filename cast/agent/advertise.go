package agent

import (
	"encoding/hex"
	"net/netip"
	"strconv"

	"github.com/openscreen-go/openscreen/discovery/dnssd"
)

// Status is the receiver's advertised busy/idle state, carried in the
// TXT record's st key (0=idle, 1=busy).
type Status int

const (
	StatusIdle Status = 0
	StatusBusy Status = 1
)

// Advertisement holds the fields of a receiver's DNS-SD TXT record,
// beyond the fingerprint derived from its [Identity], plus the
// SRV/address targets the published record group needs.
type Advertisement struct {
	InstanceID   string
	ProtocolVer  int
	Capabilities uint32
	Status       Status
	FriendlyName string
	ModelName    string
	Port         int
	Hostname     string
	Addresses    []netip.Addr
}

// BuildService turns id and adv into a [dnssd.Service] ready to hand
// to a [dnssd.Publisher], with the TXT record keys a controller reads:
// id, ve, ca, st, fn, md, pk.
//
// The documented `dc` key (CRC-32 of extra data) is deliberately absent:
// no peer produces or consumes it.
func BuildService(id *Identity, adv Advertisement) *dnssd.Service {
	return &dnssd.Service{
		InstanceName: adv.FriendlyName,
		ServiceType:  ServiceType + ".local",
		Port:         adv.Port,
		Hostname:     adv.Hostname,
		Addresses:    adv.Addresses,
		Txt: map[string]string{
			"id": adv.InstanceID,
			"ve": strconv.Itoa(adv.ProtocolVer),
			"ca": strconv.FormatUint(uint64(adv.Capabilities), 10),
			"st": strconv.Itoa(int(adv.Status)),
			"fn": adv.FriendlyName,
			"md": adv.ModelName,
			"pk": hex.EncodeToString(id.Fingerprint[:]),
		},
	}
}
