package net

import (
	"strings"

	stdnet "net"

	"github.com/openscreen-go/openscreen/internal/errors"
)

// DefaultInterfaces returns the interfaces the transport joins when the
// embedder doesn't pick any: up, multicast-capable, non-loopback, and not
// a tunnel or container bridge. mDNS is link-local scope (RFC 6762 §2);
// advertising into a VPN tunnel or a container bridge leaks instance
// names off the local link and routinely hangs discovery on interfaces
// that silently drop multicast.
func DefaultInterfaces() ([]stdnet.Interface, error) {
	all, err := stdnet.Interfaces()
	if err != nil {
		return nil, &errors.NetworkError{Operation: "enumerate network interfaces", Err: err}
	}
	filtered := make([]stdnet.Interface, 0, len(all))
	for _, iface := range all {
		if !EligibleForMulticast(iface) {
			continue
		}
		filtered = append(filtered, iface)
	}
	return filtered, nil
}

// EligibleForMulticast reports whether iface is one DefaultInterfaces
// would select.
func EligibleForMulticast(iface stdnet.Interface) bool {
	if iface.Flags&stdnet.FlagUp == 0 || iface.Flags&stdnet.FlagMulticast == 0 {
		return false
	}
	if iface.Flags&stdnet.FlagLoopback != 0 {
		return false
	}
	if isTunnel(iface.Name) || isContainerBridge(iface.Name) {
		return false
	}
	return true
}

// InterfaceByIndex resolves a numeric interface index (the value every
// instance endpoint carries, and the receiver binary accepts as a
// flag) to the interface itself.
func InterfaceByIndex(index int) (stdnet.Interface, error) {
	iface, err := stdnet.InterfaceByIndex(index)
	if err != nil {
		return stdnet.Interface{}, &errors.NetworkError{Operation: "resolve interface index", Err: err}
	}
	return *iface, nil
}

// isTunnel matches the naming conventions of the common VPN/tunnel
// drivers: utun (macOS), tun (OpenVPN et al.), ppp, wg/wireguard,
// tailscale.
func isTunnel(name string) bool {
	for _, prefix := range []string{"utun", "tun", "ppp", "wg", "tailscale", "wireguard"} {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// isContainerBridge matches Docker-style virtual interfaces: the default
// docker0 bridge, veth pairs, and br-* custom bridges.
func isContainerBridge(name string) bool {
	if name == "docker0" {
		return true
	}
	return strings.HasPrefix(name, "veth") || strings.HasPrefix(name, "br-")
}
