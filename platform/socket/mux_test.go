package socket

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openscreen-go/openscreen/platform/task"
)

func TestMultiplexer_RegisterDeregister(t *testing.T) {
	runner := task.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runner.RunUntilStopped(ctx)

	mux := New(runner, nil, time.Millisecond)
	muxCtx, muxCancel := context.WithCancel(context.Background())
	defer muxCancel()
	go mux.Run(muxCtx)

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer conn.Close()

	var calls int32
	mux.Register(conn, func(net.PacketConn) {
		atomic.AddInt32(&calls, 1)
	})

	// Deregister must return promptly even with no traffic.
	done := make(chan struct{})
	go func() {
		mux.Deregister(conn)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("deregister did not return")
	}
}

func TestMultiplexer_DeregisterUnknownConnIsNoop(t *testing.T) {
	runner := task.New()
	mux := New(runner, nil, time.Millisecond)

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer conn.Close()

	// Never registered; must not block or panic.
	mux.Deregister(conn)
}
