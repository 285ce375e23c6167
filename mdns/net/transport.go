// Package net provides the mDNS multicast transport: IPv4 and IPv6 UDP
// sockets on port 5353, each joined to its mDNS multicast group on a set
// of interfaces.
//
// Every instance endpoint carries the index of the interface it was
// learned on, so the transport is multi-interface from the start: one
// underlying net.PacketConn per address family,
// with golang.org/x/net/ipv4 and golang.org/x/net/ipv6 used to join/leave
// specific interfaces rather than letting the kernel pick one, matching
// how a responder must answer on every interface a querier might probe
// from.
package net

import (
	"context"
	"fmt"
	stdnet "net"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/openscreen-go/openscreen/internal/errors"
)

// Port is the mDNS port per RFC 6762 §5.
const Port = 5353

// MulticastIPv4 and MulticastIPv6 are the mDNS multicast group addresses
// per RFC 6762 §5.
var (
	MulticastIPv4 = stdnet.IPv4(224, 0, 0, 251)
	MulticastIPv6 = stdnet.ParseIP("ff02::fb")
)

// Transport is the minimal socket surface the querier/responder/prober
// need: send to an address, receive with context-bound deadlines, and
// close. [platform/socket.Multiplexer] drives readability on the
// [stdnet.PacketConn] this returns from its underlying conn accessor.
type Transport interface {
	Conn() stdnet.PacketConn
	GroupAddr() stdnet.Addr
	Send(ctx context.Context, packet []byte, dest stdnet.Addr) error
	Receive(ctx context.Context) (buf []byte, src stdnet.Addr, ifIndex int, err error)
	Close() error
}

// MulticastTransport is a [Transport] bound to one address family (IPv4 or
// IPv6), joined on a specific set of interfaces.
type MulticastTransport struct {
	conn    *stdnet.UDPConn
	pc4     *ipv4.PacketConn
	pc6     *ipv6.PacketConn
	isIPv6  bool
	bufSize int
}

// listenUDP binds a UDP socket on port 5353 with the platform's
// port-sharing socket options applied before bind (see sockopt_*.go), so
// this stack can coexist with a system mDNS responder on the same host.
func listenUDP(network string) (*stdnet.UDPConn, error) {
	lc := stdnet.ListenConfig{Control: listenControl}
	pc, err := lc.ListenPacket(context.Background(), network, fmt.Sprintf(":%d", Port))
	if err != nil {
		return nil, err
	}
	conn, ok := pc.(*stdnet.UDPConn)
	if !ok {
		_ = pc.Close()
		return nil, fmt.Errorf("listener for %s is %T, not *net.UDPConn", network, pc)
	}
	return conn, nil
}

// NewIPv4Transport binds a UDP socket to port 5353 on all addresses and joins the
// multicast group on each of ifaces (or every eligible interface per
// [DefaultInterfaces] if ifaces is empty).
func NewIPv4Transport(ifaces []stdnet.Interface) (*MulticastTransport, error) {
	conn, err := listenUDP("udp4")
	if err != nil {
		return nil, &errors.NetworkError{Operation: "bind mDNS IPv4 socket", Err: err}
	}
	pc := ipv4.NewPacketConn(conn)
	if err := pc.SetControlMessage(ipv4.FlagInterface, true); err != nil {
		_ = conn.Close()
		return nil, &errors.NetworkError{Operation: "enable IPv4 interface control messages", Err: err}
	}
	group := &stdnet.UDPAddr{IP: MulticastIPv4}
	joined := 0
	for _, iface := range resolveInterfaces(ifaces) {
		iface := iface
		if err := pc.JoinGroup(&iface, group); err == nil {
			joined++
		}
	}
	if joined == 0 {
		_ = conn.Close()
		return nil, &errors.NetworkError{Operation: "join mDNS IPv4 multicast group", Details: "no interface joined"}
	}
	return &MulticastTransport{conn: conn, pc4: pc}, nil
}

// NewIPv6Transport is [NewIPv4Transport]'s IPv6 counterpart, joining
// ff02::fb on each requested interface.
func NewIPv6Transport(ifaces []stdnet.Interface) (*MulticastTransport, error) {
	conn, err := listenUDP("udp6")
	if err != nil {
		return nil, &errors.NetworkError{Operation: "bind mDNS IPv6 socket", Err: err}
	}
	pc := ipv6.NewPacketConn(conn)
	if err := pc.SetControlMessage(ipv6.FlagInterface, true); err != nil {
		_ = conn.Close()
		return nil, &errors.NetworkError{Operation: "enable IPv6 interface control messages", Err: err}
	}
	group := &stdnet.UDPAddr{IP: MulticastIPv6}
	joined := 0
	for _, iface := range resolveInterfaces(ifaces) {
		iface := iface
		if err := pc.JoinGroup(&iface, group); err == nil {
			joined++
		}
	}
	if joined == 0 {
		_ = conn.Close()
		return nil, &errors.NetworkError{Operation: "join mDNS IPv6 multicast group", Details: "no interface joined"}
	}
	return &MulticastTransport{conn: conn, pc6: pc, isIPv6: true}, nil
}

func resolveInterfaces(requested []stdnet.Interface) []stdnet.Interface {
	if len(requested) > 0 {
		return requested
	}
	defaults, err := DefaultInterfaces()
	if err != nil {
		return nil
	}
	return defaults
}

// Conn exposes the underlying socket for the readability multiplexer.
func (t *MulticastTransport) Conn() stdnet.PacketConn { return t.conn }

// GroupAddr returns this transport's mDNS multicast destination
// (224.0.0.251:5353 or [ff02::fb]:5353).
func (t *MulticastTransport) GroupAddr() stdnet.Addr {
	if t.isIPv6 {
		return &stdnet.UDPAddr{IP: MulticastIPv6, Port: Port}
	}
	return &stdnet.UDPAddr{IP: MulticastIPv4, Port: Port}
}

// Send writes packet to dest, failing fast if ctx is already done.
func (t *MulticastTransport) Send(ctx context.Context, packet []byte, dest stdnet.Addr) error {
	select {
	case <-ctx.Done():
		return &errors.CancellationError{Operation: "send mDNS packet"}
	default:
	}
	n, err := t.conn.WriteTo(packet, dest)
	if err != nil {
		return &errors.NetworkError{Operation: "send mDNS packet", Err: err}
	}
	if n != len(packet) {
		return &errors.NetworkError{Operation: "send mDNS packet", Err: fmt.Errorf("partial write %d/%d", n, len(packet))}
	}
	return nil
}

// Receive reads one packet, annotating it with the arriving interface
// index (needed to populate an instance endpoint's
// network_interface_index).
func (t *MulticastTransport) Receive(ctx context.Context) ([]byte, stdnet.Addr, int, error) {
	select {
	case <-ctx.Done():
		return nil, nil, 0, &errors.CancellationError{Operation: "receive mDNS packet"}
	default:
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetReadDeadline(deadline)
	}

	buf := make([]byte, 65536)
	if !t.isIPv6 {
		n, cm, src, err := t.pc4.ReadFrom(buf)
		if err != nil {
			return nil, nil, 0, &errors.NetworkError{Operation: "receive mDNS packet", Err: err}
		}
		ifIndex := 0
		if cm != nil {
			ifIndex = cm.IfIndex
		}
		return buf[:n], src, ifIndex, nil
	}
	n, cm, src, err := t.pc6.ReadFrom(buf)
	if err != nil {
		return nil, nil, 0, &errors.NetworkError{Operation: "receive mDNS packet", Err: err}
	}
	ifIndex := 0
	if cm != nil {
		ifIndex = cm.IfIndex
	}
	return buf[:n], src, ifIndex, nil
}

// Close releases the underlying socket.
func (t *MulticastTransport) Close() error {
	return t.conn.Close()
}
