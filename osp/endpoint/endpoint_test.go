package endpoint

import (
	"context"
	"testing"

	"github.com/quic-go/quic-go"

	"github.com/openscreen-go/openscreen/platform/task"
)

// fakeFactory never dials a real network; quic.Connection is an
// interface, so its nil zero value satisfies it without a full mock of
// quic-go's (large) connection surface.
type fakeFactory struct {
	failNext bool
	closed   []quic.Connection
}

func (f *fakeFactory) Connect(ctx context.Context, instanceName string) (quic.Connection, error) {
	if f.failNext {
		return nil, context.DeadlineExceeded
	}
	return nil, nil
}

func (f *fakeFactory) OnConnectionClosed(conn quic.Connection) {
	f.closed = append(f.closed, conn)
}

type fakeObserver struct {
	running, stopped, suspended int
	incoming                    []*ProtocolConnection
}

func (o *fakeObserver) OnRunning()   { o.running++ }
func (o *fakeObserver) OnStopped()   { o.stopped++ }
func (o *fakeObserver) OnSuspended() { o.suspended++ }
func (o *fakeObserver) OnIncomingConnection(c *ProtocolConnection) {
	o.incoming = append(o.incoming, c)
}

type fakeConnectCallback struct {
	succeeded []uint64
	failed    int
}

func (c *fakeConnectCallback) OnConnectSucceed(requestID uint64, instanceName string, instanceID uint64) {
	c.succeeded = append(c.succeeded, instanceID)
}
func (c *fakeConnectCallback) OnConnectFailed(requestID uint64, instanceName string) {
	c.failed++
}

func newTestEndpoint(factory *fakeFactory, observer *fakeObserver) *Endpoint {
	runner := task.New()
	return NewEndpoint(NewConfig(), factory, observer, RoleClient, runner, nil)
}

func TestEndpoint_StartStop(t *testing.T) {
	e := newTestEndpoint(&fakeFactory{}, &fakeObserver{})
	if e.State() != StateStopped {
		t.Fatalf("want kStopped initially, got %v", e.State())
	}
	if !e.Start() {
		t.Fatal("Start from kStopped should succeed")
	}
	if e.Start() {
		t.Fatal("Start while kRunning should fail")
	}
	if !e.Stop() {
		t.Fatal("Stop from kRunning should succeed")
	}
	if e.State() != StateStopped {
		t.Fatalf("want kStopped, got %v", e.State())
	}
}

func TestEndpoint_SuspendResume(t *testing.T) {
	e := newTestEndpoint(&fakeFactory{}, &fakeObserver{})
	e.Start()
	if !e.Suspend() {
		t.Fatal("Suspend from kRunning should succeed")
	}
	if e.Suspend() {
		t.Fatal("Suspend while already kSuspended should fail")
	}
	if !e.Resume() {
		t.Fatal("Resume from kSuspended should succeed")
	}
}

func TestEndpoint_ConnectThenHandshakeAssignsInstanceID(t *testing.T) {
	factory := &fakeFactory{}
	e := newTestEndpoint(factory, &fakeObserver{})
	e.Start()

	cb := &fakeConnectCallback{}
	if err := e.Connect(context.Background(), "peer.local", 42, cb); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	instanceID := e.OnCryptoHandshakeComplete("peer.local")
	if instanceID == 0 {
		t.Fatal("want a non-zero instance id after handshake completes")
	}
	if len(cb.succeeded) != 1 || cb.succeeded[0] != instanceID {
		t.Fatalf("want OnConnectSucceed with the assigned instance id, got %+v", cb.succeeded)
	}

	name, ok := e.FindInstanceNameByID(instanceID)
	if !ok || name != "peer.local" {
		t.Fatalf("FindInstanceNameByID should resolve back to peer.local, got %q, %v", name, ok)
	}
}

func TestEndpoint_HandshakeAsServerStartsAuthenticationInstead(t *testing.T) {
	factory := &fakeFactory{}
	e := newTestEndpoint(factory, &fakeObserver{})
	e.Start()

	// No callback registered: an empty callback list marks the server
	// role for this connection.
	if err := e.Connect(context.Background(), "peer.local", 0, nil); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	instanceID := e.OnCryptoHandshakeComplete("peer.local")
	if instanceID == 0 {
		t.Fatal("want a non-zero instance id")
	}
	if _, ok := e.pendingAuthentications[instanceID]; !ok {
		t.Fatal("connection should be pending authentication after handshake")
	}
	if e.pendingAuthentications[instanceID].privateKey == nil {
		t.Fatal("server role should have generated a SPAKE2 private key via startAuthentication")
	}
}

func TestEndpoint_ConnectFailurePropagatesToCallback(t *testing.T) {
	factory := &fakeFactory{failNext: true}
	e := newTestEndpoint(factory, &fakeObserver{})
	e.Start()

	cb := &fakeConnectCallback{}
	if err := e.Connect(context.Background(), "peer.local", 1, cb); err == nil {
		t.Fatal("want an error when the factory fails to dial")
	}
	if cb.failed != 1 {
		t.Fatalf("want OnConnectFailed called once, got %d", cb.failed)
	}
}

func TestEndpoint_StopClosesAllConnectionsAndResetsInstanceMap(t *testing.T) {
	factory := &fakeFactory{}
	e := newTestEndpoint(factory, &fakeObserver{})
	e.Start()

	e.Connect(context.Background(), "a.local", 1, &fakeConnectCallback{})
	e.OnCryptoHandshakeComplete("a.local")

	e.Stop()
	if len(e.pendingAuthentications) != 0 || len(e.instanceMap) != 0 {
		t.Fatal("Stop should clear every connection map")
	}
}

func TestEndpoint_ConnectWhileNotRunningFails(t *testing.T) {
	e := newTestEndpoint(&fakeFactory{}, &fakeObserver{})
	if err := e.Connect(context.Background(), "a.local", 1, nil); err == nil {
		t.Fatal("Connect before Start should fail")
	}
}

func TestEndpoint_OnConnectionClosedDefersDeletionToCleanup(t *testing.T) {
	factory := &fakeFactory{}
	e := newTestEndpoint(factory, &fakeObserver{})
	e.Start()
	e.Connect(context.Background(), "a.local", 1, &fakeConnectCallback{})
	instanceID := e.OnCryptoHandshakeComplete("a.local")

	e.OnConnectionClosed(instanceID)
	if _, ok := e.pendingAuthentications[instanceID]; !ok {
		t.Fatal("deletion must be deferred, not immediate")
	}

	e.cleanup(e.cfg.CleanupPeriod)
	if _, ok := e.pendingAuthentications[instanceID]; ok {
		t.Fatal("cleanup should have removed the queued connection")
	}
}
