// Package probe implements the RFC 6762 §8 probing protocol: claiming a
// name, detecting simultaneous probes from other hosts, applying the
// lexicographic tiebreak rule, and renaming on repeated collision.
//
// Probes are sent on a fixed count/interval loop; simultaneous probes
// are resolved by lexicographic comparison of the colliding authority
// records, and repeated collisions rename by numeric suffix —
// from a fixed three-probe HTTP-print-service flow into a reusable manager
// keyed by arbitrary requested names.
package probe

import (
	"bytes"
	"fmt"
	"time"

	"github.com/openscreen-go/openscreen/internal/errors"
	"github.com/openscreen-go/openscreen/mdns/wire"
	"github.com/openscreen-go/openscreen/platform/task"
)

// probeCount and probeInterval satisfy RFC 6762 §8.1: at least two
// probe queries, 250ms apart, before a name may be claimed; three
// leaves margin for loss.
const (
	probeCount    = 3
	probeInterval = 250 * time.Millisecond
)

// tiebreakDelay is how long the losing side of a simultaneous-probe
// collision waits before retrying, per RFC 6762 §8.2.
const tiebreakDelay = time.Second

// defaultMaxAttempts is how many collisions on the same name are tolerated
// before the manager renames rather than retrying indefinitely (spec
// §4.3's configurable attempt count N).
const defaultMaxAttempts = 10

// Status is the lifecycle state of one probe.
type Status int

const (
	StatusProbing Status = iota
	StatusClaimed
)

// Callback is notified when a probe completes (status transitions to
// StatusClaimed under finalName, which differs from the requested name
// after a collision rename). The manager only calls it on success, with
// claimed set to true: repeated collisions rename the probe rather than
// fail it.
type Callback func(finalName wire.DomainName, claimed bool)

// SendFunc transmits a probe message (a query with the candidate records
// in the authority section) for the endpoint under probe.
type SendFunc func(q wire.MdnsQuestion, authority []wire.MdnsRecord)

// UnicastFunc sends a single A/AAAA record back to source in response to
// a query that matched an already-claimed name.
type UnicastFunc func(rec wire.MdnsRecord, source string)

// Endpoint is the set of candidate records a probe is claiming ownership
// of. Records share Name; only Name changes across a rename.
type Endpoint struct {
	Name    wire.DomainName
	Records []wire.MdnsRecord // authority records compared during tiebreak
}

func (e Endpoint) withName(name wire.DomainName) Endpoint {
	out := Endpoint{Name: name, Records: make([]wire.MdnsRecord, len(e.Records))}
	for i, r := range e.Records {
		r.Name = name
		out.Records[i] = r
	}
	return out
}

type probeState struct {
	requestedName wire.DomainName
	endpoint      Endpoint
	callback      Callback
	status        Status
	sentCount     int
	attempts      int
	generation    uint64
}

// Manager owns every in-flight and completed probe for one responder.
type Manager struct {
	runner      *task.Runner
	send        SendFunc
	unicast     UnicastFunc
	maxAttempts int

	byRequested map[string]*probeState // keyed by the endpoint's current name; rename re-keys the entry
	claimed     map[string]*probeState // keyed by the current (possibly renamed) claimed name
}

// NewManager constructs a probe manager. send transmits probe queries;
// unicast answers probe queries that match an already-claimed name.
func NewManager(runner *task.Runner, send SendFunc, unicast UnicastFunc) *Manager {
	return &Manager{
		runner:      runner,
		send:        send,
		unicast:     unicast,
		maxAttempts: defaultMaxAttempts,
		byRequested: make(map[string]*probeState),
		claimed:     make(map[string]*probeState),
	}
}

// StartProbe begins probing for endpoint.Name. Returns a [errors.StateError]
// if the name is already being probed or already claimed.
func (m *Manager) StartProbe(callback Callback, endpoint Endpoint) error {
	key := endpoint.Name.Key()
	if _, exists := m.byRequested[key]; exists {
		return &errors.StateError{Operation: "start_probe", From: endpoint.Name.String(), Message: "already being probed"}
	}
	if _, exists := m.claimed[key]; exists {
		return &errors.StateError{Operation: "start_probe", From: endpoint.Name.String(), Message: "already claimed"}
	}

	ps := &probeState{
		requestedName: endpoint.Name,
		endpoint:      endpoint,
		callback:      callback,
		status:        StatusProbing,
	}
	m.byRequested[key] = ps
	m.scheduleNextProbe(ps)
	return nil
}

// StopProbe cancels an in-flight or claimed probe for requestedName.
// Returns a [errors.StateError] if no such probe exists.
func (m *Manager) StopProbe(requestedName wire.DomainName) error {
	key := requestedName.Key()
	ps, exists := m.byRequested[key]
	if !exists {
		return &errors.StateError{Operation: "stop_probe", From: requestedName.String(), Message: "not found"}
	}
	ps.generation++ // invalidate any pending scheduled callbacks
	delete(m.byRequested, key)
	if ps.status == StatusClaimed {
		delete(m.claimed, ps.endpoint.Name.Key())
	}
	return nil
}

// IsDomainClaimed reports whether name is currently claimed by a completed
// probe.
func (m *Manager) IsDomainClaimed(name wire.DomainName) bool {
	_, ok := m.claimed[name.Key()]
	return ok
}

// RespondToProbeQuery handles an incoming probe: if the query
// matches an already-claimed name, unicast an A/AAAA answer to source;
// otherwise, if it's a probe (has authority records) for a name we are
// simultaneously probing, run the tiebreak rule against it.
func (m *Manager) RespondToProbeQuery(msg wire.Message, source string) {
	for _, q := range msg.Questions {
		key := q.Name.Key()
		if claimed, ok := m.claimed[key]; ok {
			for _, rec := range claimed.endpoint.Records {
				if rec.Type == wire.TypeA || rec.Type == wire.TypeAAAA {
					m.unicast(rec, source)
				}
			}
			continue
		}
		if probing, ok := m.byRequested[key]; ok && probing.status == StatusProbing {
			m.handleTiebreak(probing, msg.Authority)
		}
	}
}

// handleTiebreak compares our authority records against theirAuthority per
// RFC 6762 §8.2.1: sort is not required here since both sides construct
// records in the same deterministic (Type, then encoded rdata) order; a
// per-pair lexicographic compare on encoded rdata decides the winner, and
// the side with more remaining records wins a run of equal prefixes.
func (m *Manager) handleTiebreak(ps *probeState, theirAuthority []wire.MdnsRecord) {
	ours := encodeAll(ps.endpoint.Records)
	theirs := encodeAll(theirAuthority)

	cmp, decided := compareRecordSets(ours, theirs)
	if !decided {
		return // identical probes: not a conflict, both proceed
	}
	if cmp > 0 {
		return // we win: proceed uninterrupted
	}

	// We lose: postpone one second and retry, per RFC 6762 §8.2.
	ps.attempts++
	if ps.attempts >= m.maxAttempts {
		m.rename(ps)
		return
	}
	ps.generation++
	gen := ps.generation
	m.runner.PostTaskWithDelay(func() {
		if ps.generation != gen {
			return
		}
		ps.sentCount = 0
		m.scheduleNextProbe(ps)
	}, tiebreakDelay)
}

func compareRecordSets(ours, theirs [][]byte) (cmp int, decided bool) {
	n := len(ours)
	if len(theirs) < n {
		n = len(theirs)
	}
	for i := 0; i < n; i++ {
		if c := bytes.Compare(ours[i], theirs[i]); c != 0 {
			return c, true
		}
	}
	if len(ours) != len(theirs) {
		if len(ours) > len(theirs) {
			return 1, true
		}
		return -1, true
	}
	return 0, false
}

func encodeAll(recs []wire.MdnsRecord) [][]byte {
	out := make([][]byte, len(recs))
	for i, r := range recs {
		w := wire.NewWriter()
		if err := r.Encode(w); err != nil {
			out[i] = nil
			continue
		}
		out[i] = w.Bytes()
	}
	return out
}

// rename appends ps.attempts+1 to the first label, truncating that label so
// the total stays within [wire.MaxLabelLength], and
// restarts probing for the new name.
func (m *Manager) rename(ps *probeState) {
	delete(m.byRequested, ps.endpoint.Name.Key())

	newName := renameLabel(ps.endpoint.Name, ps.attempts+1)
	ps.endpoint = ps.endpoint.withName(newName)
	ps.attempts = 0
	ps.sentCount = 0
	ps.status = StatusProbing
	m.byRequested[newName.Key()] = ps
	m.scheduleNextProbe(ps)
}

func renameLabel(name wire.DomainName, attempt int) wire.DomainName {
	if len(name.Labels) == 0 {
		return name
	}
	suffix := fmt.Sprintf("-%d", attempt)
	first := name.Labels[0]
	maxBase := wire.MaxLabelLength - len(suffix)
	if maxBase < 1 {
		maxBase = 1
	}
	if len(first) > maxBase {
		first = first[:maxBase]
	}
	labels := append([]string{first + suffix}, name.Labels[1:]...)
	return wire.DomainName{Labels: labels}
}

func (m *Manager) scheduleNextProbe(ps *probeState) {
	if ps.sentCount >= probeCount {
		m.completeProbe(ps)
		return
	}
	gen := ps.generation
	send := func() {
		if ps.generation != gen || ps.status != StatusProbing {
			return
		}
		q := wire.MdnsQuestion{Name: ps.endpoint.Name, Type: wire.TypeANY, Class: wire.ClassIN}
		m.send(q, ps.endpoint.Records)
		ps.sentCount++
		m.scheduleNextProbe(ps)
	}
	if ps.sentCount == 0 {
		m.runner.PostTask(send)
	} else {
		m.runner.PostTaskWithDelay(send, probeInterval)
	}
}

func (m *Manager) completeProbe(ps *probeState) {
	ps.status = StatusClaimed
	m.claimed[ps.endpoint.Name.Key()] = ps
	if ps.callback != nil {
		ps.callback(ps.endpoint.Name, true)
	}
}
