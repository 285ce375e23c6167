package mdns

import (
	"context"
	"time"

	stdnet "net"

	"github.com/openscreen-go/openscreen/internal/errors"
	mdnsnet "github.com/openscreen-go/openscreen/mdns/net"
	"github.com/openscreen-go/openscreen/mdns/wire"
	"github.com/openscreen-go/openscreen/platform/slogx"
	"github.com/openscreen-go/openscreen/platform/socket"
	"github.com/openscreen-go/openscreen/platform/task"
)

// guardCleanupInterval is how often the service sweeps stale entries out
// of the source guard's tracking map.
const guardCleanupInterval = 5 * time.Minute

// ServiceOption configures a [Service] before it opens sockets.
type ServiceOption func(*Service) error

// WithInterfaces restricts the service to the given interfaces instead of
// the [mdnsnet.DefaultInterfaces] selection.
func WithInterfaces(ifaces []stdnet.Interface) ServiceOption {
	return func(s *Service) error {
		if len(ifaces) == 0 {
			return &errors.ValidationError{Field: "interfaces", Value: ifaces, Message: "interface list cannot be empty"}
		}
		s.ifaces = ifaces
		return nil
	}
}

// WithTransports substitutes pre-built transports, bypassing socket
// creation entirely. Used by tests and by embedders that manage their
// own sockets.
func WithTransports(transports ...mdnsnet.Transport) ServiceOption {
	return func(s *Service) error {
		s.transports = transports
		return nil
	}
}

// WithoutIPv6 limits the service to the IPv4 transport.
func WithoutIPv6() ServiceOption {
	return func(s *Service) error {
		s.ipv6 = false
		return nil
	}
}

// Service is the assembled L1 engine: it owns the multicast transports,
// registers them with the socket multiplexer, screens incoming packets
// through a [mdnsnet.SourceGuard], decodes them, and feeds the
// [Querier] and [Responder] it exposes. It is also the [Sender] both of
// those transmit through.
type Service struct {
	runner *task.Runner
	mux    *socket.Multiplexer
	logger slogx.Logger

	ifaces     []stdnet.Interface
	ipv6       bool
	transports []mdnsnet.Transport
	guard      *mdnsnet.SourceGuard
	byConn     map[stdnet.PacketConn]mdnsnet.Transport

	Querier   *Querier
	Responder *Responder

	closed bool
}

// NewService opens the multicast sockets (IPv4 always, IPv6 unless
// disabled) and wires up the querier and responder. The caller still
// owns driving runner and mux.
func NewService(runner *task.Runner, mux *socket.Multiplexer, logger slogx.Logger, opts ...ServiceOption) (*Service, error) {
	if logger == nil {
		logger = slogx.Default()
	}
	s := &Service{
		runner: runner,
		mux:    mux,
		logger: logger,
		ipv6:   true,
		byConn: make(map[stdnet.PacketConn]mdnsnet.Transport),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if len(s.ifaces) == 0 {
		defaults, err := mdnsnet.DefaultInterfaces()
		if err != nil {
			return nil, err
		}
		s.ifaces = defaults
	}

	if len(s.transports) == 0 {
		v4, err := mdnsnet.NewIPv4Transport(s.ifaces)
		if err != nil {
			return nil, err
		}
		s.transports = append(s.transports, v4)
		if s.ipv6 {
			v6, err := mdnsnet.NewIPv6Transport(s.ifaces)
			if err != nil {
				s.logger.Warn("IPv6 mDNS transport unavailable, continuing IPv4-only", "err", err)
			} else {
				s.transports = append(s.transports, v6)
			}
		}
	}

	s.guard = mdnsnet.NewSourceGuard(s.ifaces)
	s.Querier = NewQuerier(runner, s, logger)
	s.Responder = NewResponder(runner, s, logger)

	for _, tr := range s.transports {
		tr := tr
		s.byConn[tr.Conn()] = tr
		s.mux.Register(tr.Conn(), func(stdnet.PacketConn) { s.readOne(tr) })
	}
	s.scheduleGuardCleanup()
	return s, nil
}

// readOne drains a single packet from tr. Runs on the task runner, so
// everything downstream — guard, parser, querier, responder — is
// serialised with the rest of the stack.
func (s *Service) readOne(tr mdnsnet.Transport) {
	if s.closed {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	buf, src, ifIndex, err := tr.Receive(ctx)
	if err != nil {
		return // deadline passes are routine; real errors surface on send
	}
	if !s.guard.Admit(src) {
		return
	}
	msg, err := wire.DecodeMessage(buf)
	if err != nil {
		s.logger.Debug("dropping malformed mDNS packet", "source", src.String(), "iface", ifIndex, "err", err)
		return
	}
	s.Querier.OnMessage(msg)
	s.Responder.OnMessage(msg, src.String())
}

func (s *Service) scheduleGuardCleanup() {
	s.runner.PostTaskWithDelay(func() {
		if s.closed {
			return
		}
		s.guard.Cleanup()
		s.scheduleGuardCleanup()
	}, guardCleanupInterval)
}

// Multicast encodes msg and sends it to the mDNS group on every
// transport. Implements [Sender].
func (s *Service) Multicast(msg wire.Message) error {
	packet, err := msg.Encode()
	if err != nil {
		return err
	}
	var firstErr error
	for _, tr := range s.transports {
		if err := tr.Send(context.Background(), packet, tr.GroupAddr()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Unicast encodes msg and sends it to dest on whichever transport shares
// dest's address family. Implements [Sender].
func (s *Service) Unicast(msg wire.Message, dest stdnet.Addr) error {
	packet, err := msg.Encode()
	if err != nil {
		return err
	}
	udp, ok := dest.(*stdnet.UDPAddr)
	if !ok {
		return &errors.ValidationError{Field: "dest", Value: dest, Message: "unicast destination must be a UDP address"}
	}
	wantV6 := udp.IP.To4() == nil
	for _, tr := range s.transports {
		groupIsV6 := tr.GroupAddr().(*stdnet.UDPAddr).IP.To4() == nil
		if groupIsV6 == wantV6 {
			return tr.Send(context.Background(), packet, dest)
		}
	}
	return &errors.NetworkError{Operation: "unicast mDNS reply", Details: "no transport for destination address family"}
}

// Close deregisters and closes every transport and stops the querier's
// question trackers. Safe to call once; the guard-cleanup task notices
// closed and stops rescheduling.
func (s *Service) Close(ctx context.Context) error {
	if s.closed {
		return &errors.StateError{Operation: "close mdns service", Message: "already closed"}
	}
	s.closed = true
	for _, tr := range s.transports {
		s.mux.Deregister(tr.Conn())
		if err := tr.Close(); err != nil {
			s.logger.Warn("close mDNS transport failed", "err", err)
		}
	}
	s.Querier.Close(ctx)
	return nil
}
