package dnssd

import (
	"net/netip"

	"github.com/openscreen-go/openscreen/mdns/wire"
)

// Designation selects which kind of node CreateEndpoints was handed:
// Address (an A/AAAA node), SrvAndTxt (an instance node), or
// Ptr (a service-type node whose children are instance nodes).
type Designation int

const (
	DesignationAddress Designation = iota
	DesignationSrvAndTxt
	DesignationPtr
)

// InstanceEndpoint is the materialised view of a coherent (SRV, TXT,
// A/AAAA) triple: a discoverable service instance.
type InstanceEndpoint struct {
	InstanceID            string
	ServiceID             string
	DomainID              string
	TXT                   *TxtRecord
	IPv4                  netip.AddrPort
	HasIPv4               bool
	IPv6                  netip.AddrPort
	HasIPv6               bool
	NetworkInterfaceIndex int
}

// CreateEndpoints walks the graph from domainGroup (interpreted per
// designation) and returns every coherent (SRV, TXT, A/AAAA) triple
// reachable from it, skipping any combination where the SRV target does
// not match an address node actually present — an incoherent state
// meaning "no endpoint yet", not an error.
func (g *Graph) CreateEndpoints(domainGroup wire.DomainName, designation Designation) []InstanceEndpoint {
	switch designation {
	case DesignationPtr:
		return g.endpointsFromPtrNode(domainGroup)
	case DesignationSrvAndTxt:
		if n, ok := g.node(domainGroup); ok {
			if ep, ok := g.buildEndpoint(n); ok {
				return []InstanceEndpoint{ep}
			}
		}
		return nil
	case DesignationAddress:
		return g.endpointsFromAddressNode(domainGroup)
	default:
		return nil
	}
}

func (g *Graph) endpointsFromPtrNode(ptrNode wire.DomainName) []InstanceEndpoint {
	n, ok := g.node(ptrNode)
	if !ok {
		return nil
	}
	var out []InstanceEndpoint
	for childKey := range n.children {
		child, ok := g.nodes[childKey]
		if !ok {
			continue
		}
		if ep, ok := g.buildEndpoint(child); ok {
			out = append(out, ep)
		}
	}
	return out
}

func (g *Graph) endpointsFromAddressNode(addrName wire.DomainName) []InstanceEndpoint {
	addrNode, ok := g.node(addrName)
	if !ok {
		return nil
	}
	var out []InstanceEndpoint
	for parentKey := range addrNode.parents {
		instanceNode, ok := g.nodes[parentKey]
		if !ok {
			continue
		}
		if ep, ok := g.buildEndpoint(instanceNode); ok {
			out = append(out, ep)
		}
	}
	return out
}

// buildEndpoint requires instanceNode to carry both an SRV and a TXT
// record, and an address node matching the SRV target to carry at least
// one of A/AAAA; any other combination is incoherent and skipped.
func (g *Graph) buildEndpoint(instanceNode *node) (InstanceEndpoint, bool) {
	if instanceNode == nil || instanceNode.srv == nil || instanceNode.txt == nil {
		return InstanceEndpoint{}, false
	}
	addrNode, ok := g.node(instanceNode.srv.Data.SRV.Target)
	if !ok || (addrNode.a == nil && addrNode.aaaa == nil) {
		return InstanceEndpoint{}, false
	}

	key, err := GetInstanceKey(*instanceNode.srv)
	if err != nil {
		return InstanceEndpoint{}, false
	}
	txt, err := ConvertFromDNSTxt(instanceNode.txt.Data.TXT)
	if err != nil {
		return InstanceEndpoint{}, false
	}

	port := instanceNode.srv.Data.SRV.Port
	ep := InstanceEndpoint{InstanceID: key.InstanceID, ServiceID: key.ServiceID, DomainID: key.DomainID, TXT: txt}
	if addrNode.a != nil {
		ep.IPv4 = netip.AddrPortFrom(addrNode.a.Data.A, port)
		ep.HasIPv4 = true
	}
	if addrNode.aaaa != nil {
		ep.IPv6 = netip.AddrPortFrom(addrNode.aaaa.Data.AAAA, port)
		ep.HasIPv6 = true
	}
	if !ep.HasIPv4 && !ep.HasIPv6 {
		return InstanceEndpoint{}, false
	}
	return ep, true
}
