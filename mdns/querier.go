// Package mdns assembles the wire codec, record/question trackers, probe
// manager, and multicast transport into the engine's public surface: a
// Querier and a Responder sharing one transport and task runner.
//
// The Querier is a long-lived, callback-driven cache the DNS-SD graph
// layer subscribes to, not a one-shot client: subscriptions persist,
// cached records replay to new subscribers, and trackers keep every
// cached record fresh until it expires.
package mdns

import (
	"context"
	"net"
	"reflect"

	"github.com/openscreen-go/openscreen/internal/errors"
	"github.com/openscreen-go/openscreen/mdns/tracker"
	"github.com/openscreen-go/openscreen/mdns/wire"
	"github.com/openscreen-go/openscreen/platform/slogx"
	"github.com/openscreen-go/openscreen/platform/task"
)

// EventKind distinguishes the three ways a tracked record can change.
type EventKind int

const (
	Created EventKind = iota
	Updated
	Deleted
)

func (k EventKind) String() string {
	switch k {
	case Created:
		return "created"
	case Updated:
		return "updated"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// RecordEvent is delivered to every callback whose (name, type, class)
// filter matches rec.
type RecordEvent struct {
	Kind   EventKind
	Record wire.MdnsRecord
}

// RecordCallback receives record lifecycle events for a subscribed query.
type RecordCallback func(RecordEvent)

// filterKey identifies one (name, type, class) query triple. ANY (type
// 255 / class 255) matches any value in that position.
type filterKey struct {
	name  string
	typ   wire.DNSType
	class wire.DNSClass
}

func matches(f filterKey, rec wire.MdnsRecord) bool {
	if f.name != rec.Name.Key() {
		return false
	}
	if f.typ != wire.TypeANY && f.typ != rec.Type {
		return false
	}
	if f.class != wire.ClassANY && f.class != rec.Class.Class() {
		return false
	}
	return true
}

type querySubscription struct {
	filter    filterKey
	callbacks []RecordCallback
	qt        *tracker.QuestionTracker
}

// Sender abstracts outgoing packet transmission so the querier and
// responder can share one socket without depending on a concrete
// transport type.
type Sender interface {
	Multicast(msg wire.Message) error
	Unicast(msg wire.Message, dest net.Addr) error
}

// Querier is the mDNS querier: a persistent cache of
// records learned from the network, with callback subscriptions keyed by
// (name, type, class) filters.
type Querier struct {
	runner *task.Runner
	sender Sender
	logger slogx.Logger

	records map[string]*tracker.RecordTracker // keyed by (name,type,class,rdata-identity)
	subs    map[filterKey]*querySubscription
}

// NewQuerier constructs a querier driven by runner and transmitting
// through sender.
func NewQuerier(runner *task.Runner, sender Sender, logger slogx.Logger) *Querier {
	if logger == nil {
		logger = slogx.Default()
	}
	return &Querier{
		runner:  runner,
		sender:  sender,
		logger:  logger,
		records: make(map[string]*tracker.RecordTracker),
		subs:    make(map[filterKey]*querySubscription),
	}
}

func identityKey(rec wire.MdnsRecord) string {
	return rec.Name.Key() + "|" + rec.Type.String() + "|" + identitySuffix(rec)
}

// identitySuffix distinguishes multiple records sharing (name, type) —
// e.g. several PTR records at one name — so each gets its own tracker,
// since several PTR records may legitimately coexist at one name. TTL
// and the cache-flush bit are masked out of the key: a refresh with a
// different TTL (or a responder toggling cache-flush) is the same
// record, not a new one.
func identitySuffix(rec wire.MdnsRecord) string {
	keyRec := rec
	keyRec.TTL = 0
	keyRec.Class = keyRec.Class.Class()
	w := wire.NewWriter()
	_ = keyRec.Encode(w)
	return string(w.Bytes())
}

// StartQuery registers callback for (name, dnsType, dnsClass), replaying
// any already-cached matching records as Created events before returning,
// and creating a question tracker if this exact filter triple is new.
func (q *Querier) StartQuery(name wire.DomainName, dnsType wire.DNSType, dnsClass wire.DNSClass, callback RecordCallback) {
	f := filterKey{name: name.Key(), typ: dnsType, class: dnsClass}
	sub, exists := q.subs[f]
	if !exists {
		sub = &querySubscription{filter: f}
		q.subs[f] = sub
		sub.qt = tracker.NewQuestionTracker(q.runner, wire.MdnsQuestion{Name: name, Type: dnsType, Class: dnsClass}, true, q.sendQuestion)
		for _, rt := range q.records {
			if matches(f, rt.Record()) {
				rt.AddAssociatedQuery(sub.qt)
			}
		}
	}
	sub.callbacks = append(sub.callbacks, callback)

	for _, rt := range q.records {
		if matches(f, rt.Record()) {
			callback(RecordEvent{Kind: Created, Record: rt.Record()})
		}
	}
}

// StopQuery removes callback from the (name, dnsType, dnsClass)
// subscription, and destroys its question tracker once no callbacks
// remain.
func (q *Querier) StopQuery(name wire.DomainName, dnsType wire.DNSType, dnsClass wire.DNSClass, callback RecordCallback) error {
	f := filterKey{name: name.Key(), typ: dnsType, class: dnsClass}
	sub, exists := q.subs[f]
	if !exists {
		return &errors.StateError{Operation: "stop_query", From: name.String(), Message: "no such subscription"}
	}
	removed := false
	kept := sub.callbacks[:0]
	for _, cb := range sub.callbacks {
		if samePointer(cb, callback) {
			removed = true
			continue
		}
		kept = append(kept, cb)
	}
	sub.callbacks = kept
	if !removed {
		return &errors.StateError{Operation: "stop_query", From: name.String(), Message: "callback not registered"}
	}
	if len(sub.callbacks) == 0 {
		sub.qt.Stop()
		for _, rt := range q.records {
			rt.RemoveAssociatedQuery(sub.qt)
		}
		delete(q.subs, f)
	}
	return nil
}

// samePointer compares two callback values by identity via their
// reflected function pointer; Go forbids comparing func values directly.
func samePointer(a, b RecordCallback) bool {
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}

func (q *Querier) sendQuestion(question wire.MdnsQuestion, knownAnswers []wire.MdnsRecord, truncated bool) {
	msg := wire.Message{
		Header:    wire.Header{Flags: 0, QDCount: 1},
		Questions: []wire.MdnsQuestion{question},
		Answers:   knownAnswers,
	}
	if err := q.sender.Multicast(msg); err != nil {
		q.logger.Warn("send mdns question failed", "name", question.Name.String(), "err", err)
	}
}

// OnMessage processes an incoming mDNS response: Answer and Additional
// records update the cache and fire Created/Updated/Deleted events to
// every matching subscriber. Queries (non-responses) are
// ignored by the querier (the responder handles those).
func (q *Querier) OnMessage(msg wire.Message) {
	if !msg.Header.IsResponse() {
		return
	}
	for _, rec := range msg.Answers {
		q.applyRecord(rec)
	}
	for _, rec := range msg.Additional {
		q.applyRecord(rec)
	}
}

func (q *Querier) applyRecord(rec wire.MdnsRecord) {
	key := identityKey(rec)
	if existing, exists := q.records[key]; exists {
		result, ok := existing.Update(rec)
		if !ok {
			return
		}
		switch result {
		case tracker.Goodbye:
			q.notify(existing.Record(), Deleted)
		case tracker.RdataChanged:
			q.notify(rec, Updated)
		case tracker.TtlOnly:
			// no event: a TTL-only refresh is not observable to subscribers.
		}
		return
	}

	if rec.IsGoodbye() {
		return // nothing to delete
	}

	// A unique (cache-flush) record supersedes any cached record of the
	// same name/type whose rdata differs: the conflictors are held one
	// more second, then deleted (RFC 6762 §10.2), and the incoming record
	// is reported as an update to the name rather than a new record.
	// Shared records (PTR) coexist and never displace each other.
	superseded := false
	if rec.Class.CacheFlush() || rec.Kind == wire.Unique {
		for _, rt := range q.records {
			cached := rt.Record()
			if cached.SameIdentity(rec) && !cached.SameRdata(rec) {
				rt.ExpireSoon()
				superseded = true
			}
		}
	}

	rt := tracker.NewRecordTracker(q.runner, rec,
		func(expired wire.MdnsRecord) { q.onExpire(key, expired) },
		func(r wire.MdnsRecord) {
			q.sendQuestion(wire.MdnsQuestion{Name: r.Name, Type: r.Type, Class: r.Class.Class()}, nil, false)
		},
	)
	q.records[key] = rt
	if superseded {
		q.notify(rec, Updated)
	} else {
		q.notify(rec, Created)
	}
	for _, sub := range q.subs {
		if matches(sub.filter, rec) {
			rt.AddAssociatedQuery(sub.qt)
		}
	}
}

func (q *Querier) onExpire(key string, rec wire.MdnsRecord) {
	delete(q.records, key)
	q.notify(rec, Deleted)
}

func (q *Querier) notify(rec wire.MdnsRecord, kind EventKind) {
	for _, sub := range q.subs {
		if !matches(sub.filter, rec) {
			continue
		}
		for _, cb := range sub.callbacks {
			cb(RecordEvent{Kind: kind, Record: rec})
		}
	}
}

// Close stops every question tracker owned by the querier. ctx is
// reserved for a future bounded drain of in-flight sends; closing is
// currently synchronous.
func (q *Querier) Close(ctx context.Context) {
	for _, sub := range q.subs {
		sub.qt.Stop()
	}
}
