// Command receiver is a standalone demo binary wiring the whole stack
// together: it loads a receiver identity, advertises itself over DNS-SD
// through the mDNS engine, accepts incoming QUIC connections through the
// L4 protocol endpoint, and reports L3 receiver-listener state
// transitions to the console.
//
// Flag-based rather than built on a CLI framework — this is a demo,
// not a tool with subcommands.
//
// Usage:
//
//	go run ./cmd/receiver -cert agent.der -key agent.key -port 9001
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"flag"
	"fmt"
	"log"
	"net"
	"net/netip"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/openscreen-go/openscreen/api"
	"github.com/openscreen-go/openscreen/cast/agent"
	"github.com/openscreen-go/openscreen/cast/certificate"
	"github.com/openscreen-go/openscreen/discovery/dnssd"
	"github.com/openscreen-go/openscreen/mdns"
	mdnsnet "github.com/openscreen-go/openscreen/mdns/net"
	"github.com/openscreen-go/openscreen/mdns/wire"
	"github.com/openscreen-go/openscreen/osp/endpoint"
	"github.com/openscreen-go/openscreen/platform/slogx"
	"github.com/openscreen-go/openscreen/platform/socket"
	"github.com/openscreen-go/openscreen/platform/task"
)

func main() {
	certPath := flag.String("cert", "agent.der", "path to the DER-encoded agent certificate")
	keyPath := flag.String("key", "agent.key", "path to the DER-encoded agent RSA private key")
	port := flag.Int("port", 9001, "UDP port to listen for incoming QUIC connections on")
	friendlyName := flag.String("friendly-name", "Open Screen Receiver", "friendly name advertised over DNS-SD")
	modelName := flag.String("model", "generic", "model name advertised over DNS-SD")
	ifaceIndex := flag.Int("interface-index", 0, "restrict mDNS to this network interface index (0 = all eligible interfaces)")
	flag.Parse()

	if err := run(*certPath, *keyPath, *port, *friendlyName, *modelName, *ifaceIndex); err != nil {
		log.Fatal(err)
	}
}

func run(certPath, keyPath string, port int, friendlyName, modelName string, ifaceIndex int) error {
	logger := slogx.Default()

	id, err := agent.LoadIdentity(certPath, keyPath)
	if err != nil {
		return fmt.Errorf("load identity: %w", err)
	}
	logger.Info("loaded receiver identity", "fingerprint", id.FingerprintHex())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := task.New()
	go runner.RunUntilStopped(ctx)
	defer runner.RequestStopSoon()

	mux := socket.NewDefault(runner, logger)
	go mux.Run(ctx)

	var ifaces []net.Interface
	if ifaceIndex != 0 {
		iface, err := mdnsnet.InterfaceByIndex(ifaceIndex)
		if err != nil {
			return fmt.Errorf("resolve interface index %d: %w", ifaceIndex, err)
		}
		ifaces = []net.Interface{iface}
	}

	var serviceOpts []mdns.ServiceOption
	if len(ifaces) > 0 {
		serviceOpts = append(serviceOpts, mdns.WithInterfaces(ifaces))
	}
	engine, err := mdns.NewService(runner, mux, logger, serviceOpts...)
	if err != nil {
		return fmt.Errorf("start mDNS engine: %w", err)
	}
	defer engine.Close(context.Background())

	hostname, addrs, err := localHost(ifaces)
	if err != nil {
		return fmt.Errorf("determine advertised host: %w", err)
	}

	publisher := dnssd.NewPublisher(engine.Responder)
	svc := agent.BuildService(id, agent.Advertisement{
		InstanceID:   id.FingerprintHex(),
		ProtocolVer:  1,
		Capabilities: 0,
		Status:       agent.StatusIdle,
		FriendlyName: friendlyName,
		ModelName:    modelName,
		Port:         port,
		Hostname:     hostname,
		Addresses:    addrs,
	})
	err = publisher.Register(svc, func(claimed wire.DomainName) {
		logger.Info("advertising receiver", "name", claimed.String(), "port", port, "service_type", agent.ServiceType)
	})
	if err != nil {
		return fmt.Errorf("register DNS-SD service: %w", err)
	}
	defer publisher.Deregister(svc)

	listener := newConsoleListener()
	rl := api.NewReceiverListener(listener, listener)

	factory, err := newQUICFactory(id, logger)
	if err != nil {
		return fmt.Errorf("build QUIC factory: %w", err)
	}
	if err := factory.Listen(fmt.Sprintf(":%d", port)); err != nil {
		return fmt.Errorf("listen for QUIC connections: %w", err)
	}

	ep := endpoint.NewEndpoint(endpoint.NewConfig(), factory, listener, endpoint.RoleServer, runner, logger)
	if !ep.Start() {
		return fmt.Errorf("failed to start protocol endpoint")
	}
	defer ep.Stop()

	if !rl.Start() {
		return fmt.Errorf("failed to start receiver listener")
	}

	go acceptLoop(ctx, factory.listener, ep, logger)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down")
	rl.Stop()
	return nil
}

// localHost picks the hostname and addresses advertised in the SRV and
// A/AAAA records: the system hostname (suffixed .local) and the unicast
// addresses of the selected interfaces (or the default eligible set).
func localHost(ifaces []net.Interface) (string, []netip.Addr, error) {
	name, err := os.Hostname()
	if err != nil {
		return "", nil, err
	}
	name = strings.TrimSuffix(name, ".local") + ".local"

	if len(ifaces) == 0 {
		ifaces, err = mdnsnet.DefaultInterfaces()
		if err != nil {
			return "", nil, err
		}
	}
	var out []netip.Addr
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip, ok := netip.AddrFromSlice(ipnet.IP)
			if !ok {
				continue
			}
			ip = ip.Unmap()
			if ip.IsLoopback() || ip.IsMulticast() {
				continue
			}
			out = append(out, ip)
		}
	}
	if len(out) == 0 {
		return "", nil, fmt.Errorf("no advertisable address on the selected interfaces")
	}
	return name, out, nil
}

// acceptLoop feeds incoming QUIC connections into the endpoint as
// completed handshakes; in the real protocol this would run behind
// crypto/tls's handshake completion callback, but this demo settles for
// calling OnCryptoHandshakeComplete right after Accept returns.
func acceptLoop(ctx context.Context, l *quic.Listener, ep *endpoint.Endpoint, logger slogx.Logger) {
	for {
		conn, err := l.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("accept failed", "error", err)
			continue
		}
		instanceName := conn.RemoteAddr().String()
		ep.OnCryptoHandshakeComplete(instanceName)
		logger.Info("accepted connection", "peer", instanceName)
	}
}

// quicFactory is the [endpoint.ConnectionFactory] this demo wires in:
// real QUIC dialing and listening via quic-go, with peer certificate
// validation delegated to cast/certificate instead of crypto/tls's own
// chain verification (the receiver's trust decision is "does this chain
// reach a Cast/OSP root", not "does this match a DNS hostname").
type quicFactory struct {
	tlsConfig *tls.Config
	trust     *certificate.TrustStore
	listener  *quic.Listener
	logger    slogx.Logger
}

func newQUICFactory(id *agent.Identity, logger slogx.Logger) (*quicFactory, error) {
	cert := tls.Certificate{
		Certificate: [][]byte{id.CertificateDER},
		PrivateKey:  id.PrivateKey,
	}
	f := &quicFactory{logger: logger}
	f.tlsConfig = &tls.Config{
		Certificates:       []tls.Certificate{cert},
		NextProtos:         []string{"osp"},
		InsecureSkipVerify: true,
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			return f.verifyPeerChain(rawCerts)
		},
	}
	return f, nil
}

func (f *quicFactory) verifyPeerChain(rawCerts [][]byte) error {
	if f.trust == nil || len(f.trust.Roots) == 0 {
		// No trust store configured: accept any presented chain. A
		// deployment that cares about peer identity supplies roots via
		// SetTrustStore before accepting connections.
		return nil
	}
	if len(rawCerts) == 0 {
		return fmt.Errorf("peer presented no certificate")
	}
	now := time.Now().UTC()
	gt, ok := certificate.ParseGeneralizedTime([]byte(now.Format("20060102150405") + "Z"))
	if !ok {
		return fmt.Errorf("could not form a validity-check time")
	}
	_, _, err := certificate.FindCertificatePath(rawCerts, gt, f.trust)
	return err
}

// SetTrustStore installs the roots incoming peer certificates must chain
// to. Without this, verifyPeerChain accepts any chain — suitable only
// for local development.
func (f *quicFactory) SetTrustStore(store *certificate.TrustStore) {
	f.trust = store
}

func (f *quicFactory) Listen(addr string) error {
	l, err := quic.ListenAddr(addr, f.tlsConfig, nil)
	if err != nil {
		return err
	}
	f.listener = l
	return nil
}

func (f *quicFactory) Connect(ctx context.Context, instanceName string) (quic.Connection, error) {
	return quic.DialAddr(ctx, instanceName, f.tlsConfig, nil)
}

func (f *quicFactory) OnConnectionClosed(conn quic.Connection) {
	if conn != nil {
		conn.CloseWithError(0, "endpoint shutting down")
	}
}

// consoleListener implements both api.ListenerObserver/api.ListenerDelegate
// and endpoint.Observer, logging every transition instead of acting on it —
// a stand-in for whatever presentation-layer logic an embedder plugs in.
type consoleListener struct {
	logger slogx.Logger
}

func newConsoleListener() *consoleListener {
	return &consoleListener{logger: slogx.Default()}
}

func (c *consoleListener) OnStarted()   { c.logger.Info("receiver listener started") }
func (c *consoleListener) OnStopped()   { c.logger.Info("receiver listener stopped") }
func (c *consoleListener) OnSuspended() { c.logger.Info("receiver listener suspended") }
func (c *consoleListener) OnSearching() { c.logger.Info("receiver listener searching") }
func (c *consoleListener) OnReceiverAdded(info api.ReceiverInfo) {
	c.logger.Info("receiver added", "id", info.ReceiverID, "name", info.FriendlyName)
}
func (c *consoleListener) OnReceiverChanged(info api.ReceiverInfo) {
	c.logger.Info("receiver changed", "id", info.ReceiverID)
}
func (c *consoleListener) OnReceiverRemoved(info api.ReceiverInfo) {
	c.logger.Info("receiver removed", "id", info.ReceiverID)
}
func (c *consoleListener) OnAllReceiversRemoved() { c.logger.Info("all receivers removed") }
func (c *consoleListener) OnError(err error)      { c.logger.Warn("receiver listener error", "error", err) }

func (c *consoleListener) StartListener()          {}
func (c *consoleListener) StartAndSuspendListener() {}
func (c *consoleListener) StopListener()            {}
func (c *consoleListener) SuspendListener()         {}
func (c *consoleListener) ResumeListener()          {}
func (c *consoleListener) SearchNow(api.ListenerState) {}

func (c *consoleListener) OnRunning() { c.logger.Info("protocol endpoint running") }
func (c *consoleListener) OnIncomingConnection(conn *endpoint.ProtocolConnection) {
	c.logger.Info("incoming protocol connection", "instance_id", conn.InstanceID)
}
