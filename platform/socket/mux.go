// Package socket implements the readable-socket multiplexer that backs L0.
//
// A dedicated goroutine checks every registered [net.PacketConn] on a fixed
// tick and posts a read task back onto the [task.Runner]: on every tick for
// a conn with no `Readable() bool` method, and only on ticks where Readable
// reports true for one that has it. This is the one place in the stack allowed to block on I/O;
// everything above it only ever posts tasks.
package socket

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/openscreen-go/openscreen/platform/slogx"
	"github.com/openscreen-go/openscreen/platform/task"
)

// ReadableCallback is invoked on the task runner each time the poll loop
// selects a registered socket (see [Multiplexer.Register]). The callback is responsible for reading from conn;
// the multiplexer does not read on the caller's behalf.
type ReadableCallback func(conn net.PacketConn)

// Multiplexer watches a set of registered sockets for readability and
// dispatches onto a [task.Runner].
//
// Registration and deregistration are safe to call from any goroutine.
// Deregistration blocks until the poll loop has confirmed the handle will
// no longer be observed, per the concurrency model's deregistration
// barrier: a caller that deregisters and then closes its socket cannot race
// the poll loop into calling read on an already-closed conn.
type Multiplexer struct {
	runner *task.Runner
	logger slogx.Logger

	pollInterval time.Duration

	mu      sync.Mutex
	entries map[net.PacketConn]*entry
}

type entry struct {
	cb       ReadableCallback
	deadline chan struct{} // closed once this entry is dropped from polling
}

// New constructs a [Multiplexer] that posts readable notifications to
// runner. pollInterval controls how often the registered sockets are
// checked; callers on real platforms should prefer a small
// interval (the default used by [NewDefault] is 20ms) since this stands in
// for an epoll/kqueue readiness loop without requiring cgo or
// platform-specific polling primitives.
func New(runner *task.Runner, logger slogx.Logger, pollInterval time.Duration) *Multiplexer {
	if logger == nil {
		logger = slogx.Default()
	}
	return &Multiplexer{
		runner:       runner,
		logger:       logger,
		pollInterval: pollInterval,
		entries:      make(map[net.PacketConn]*entry),
	}
}

// NewDefault constructs a [Multiplexer] with a 20ms poll interval, suitable
// for mDNS's lightweight multicast traffic volume.
func NewDefault(runner *task.Runner, logger slogx.Logger) *Multiplexer {
	return New(runner, logger, 20*time.Millisecond)
}

// Register starts watching conn for readability. cb is invoked on the task
// runner (never on the polling goroutine directly) on every poll tick, or,
// when conn has a `Readable() bool` method, on each tick where it reports
// true. Registering the same conn twice replaces the previous callback.
func (m *Multiplexer) Register(conn net.PacketConn, cb ReadableCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[conn] = &entry{cb: cb, deadline: make(chan struct{})}
}

// Deregister stops watching conn and blocks until the poll loop will no
// longer observe it, so the caller may safely close conn immediately
// after this call returns.
func (m *Multiplexer) Deregister(conn net.PacketConn) {
	m.mu.Lock()
	e, ok := m.entries[conn]
	if ok {
		delete(m.entries, conn)
		close(e.deadline)
	}
	m.mu.Unlock()
	if ok {
		<-e.deadline
	}
}

// Run drives the poll loop until ctx is cancelled. Call this on a
// dedicated goroutine, separate from the one running the [task.Runner].
func (m *Multiplexer) Run(ctx context.Context) {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.drainAll()
			return
		case <-ticker.C:
			m.pollOnce()
		}
	}
}

func (m *Multiplexer) pollOnce() {
	m.mu.Lock()
	snapshot := make(map[net.PacketConn]*entry, len(m.entries))
	for conn, e := range m.entries {
		snapshot[conn] = e
	}
	m.mu.Unlock()

	for conn, e := range snapshot {
		if readable, ok := conn.(interface{ Readable() bool }); ok {
			if !readable.Readable() {
				continue
			}
		}
		cb := e.cb
		c := conn
		m.runner.PostTask(func() {
			cb(c)
		})
	}
}

func (m *Multiplexer) drainAll() {
	m.mu.Lock()
	entries := m.entries
	m.entries = make(map[net.PacketConn]*entry)
	m.mu.Unlock()
	for _, e := range entries {
		close(e.deadline)
	}
}
