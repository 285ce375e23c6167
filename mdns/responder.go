package mdns

import (
	"net"
	"time"

	"github.com/openscreen-go/openscreen/internal/errors"
	"github.com/openscreen-go/openscreen/mdns/probe"
	"github.com/openscreen-go/openscreen/mdns/wire"
	"github.com/openscreen-go/openscreen/platform/slogx"
	"github.com/openscreen-go/openscreen/platform/task"
)

// announceCount and announceIntervalDuration implement RFC 6762 §8.3:
// at least two unsolicited announcements, one second apart.
const (
	announceCount            = 2
	announceIntervalDuration = time.Second
)

// published is one instance's claimed name plus the records answering
// queries against it.
type published struct {
	name    wire.DomainName
	records []wire.MdnsRecord
}

// Responder is the publishing counterpart to [Querier]: it probes for a
// name via [probe.Manager], announces the claimed records, answers
// incoming queries for names it owns, and sends goodbye records on
// withdrawal.
type Responder struct {
	runner *task.Runner
	sender Sender
	probes *probe.Manager
	logger slogx.Logger

	byName map[string]*published
}

// NewResponder constructs a responder driven by runner and transmitting
// through sender.
func NewResponder(runner *task.Runner, sender Sender, logger slogx.Logger) *Responder {
	if logger == nil {
		logger = slogx.Default()
	}
	r := &Responder{runner: runner, sender: sender, logger: logger, byName: make(map[string]*published)}
	r.probes = probe.NewManager(runner, r.sendProbe, r.sendUnicast)
	return r
}

func (r *Responder) sendProbe(q wire.MdnsQuestion, authority []wire.MdnsRecord) {
	msg := wire.Message{
		Header:    wire.Header{QDCount: 1, NSCount: uint16(len(authority))},
		Questions: []wire.MdnsQuestion{q},
		Authority: authority,
	}
	if err := r.sender.Multicast(msg); err != nil {
		r.logger.Warn("send probe failed", "name", q.Name.String(), "err", err)
	}
}

func (r *Responder) sendUnicast(rec wire.MdnsRecord, source string) {
	addr, err := net.ResolveUDPAddr("udp", source)
	if err != nil {
		r.logger.Warn("resolve unicast probe reply destination failed", "source", source, "err", err)
		return
	}
	msg := wire.Message{
		Header:  wire.Header{Flags: wire.FlagQR, ANCount: 1},
		Answers: []wire.MdnsRecord{rec},
	}
	if err := r.sender.Unicast(msg, addr); err != nil {
		r.logger.Warn("send unicast probe reply failed", "source", source, "err", err)
	}
}

// Publish claims requestedName via probing, then announces records and
// begins answering queries for them. Records owned by requestedName (and
// rdata references to it — a PTR target, an SRV target) are re-homed to
// whatever name the probe ultimately claims after tiebreak rename;
// records at other names (a service-type PTR owner, a hostname A record)
// keep theirs. onClaimed is invoked once probing completes with the
// final claimed name.
func (r *Responder) Publish(requestedName wire.DomainName, records []wire.MdnsRecord, onClaimed func(finalName wire.DomainName)) error {
	ep := probe.Endpoint{Name: requestedName, Records: records}
	return r.probes.StartProbe(func(finalName wire.DomainName, claimed bool) {
		if !claimed {
			return
		}
		finalRecords := make([]wire.MdnsRecord, len(records))
		for i, rec := range records {
			if rec.Name.Equal(requestedName) {
				rec.Name = finalName
			}
			if rec.Type == wire.TypePTR && rec.Data.PTR.Equal(requestedName) {
				rec.Data.PTR = finalName
			}
			if rec.Type == wire.TypeSRV && rec.Data.SRV.Target.Equal(requestedName) {
				rec.Data.SRV.Target = finalName
			}
			finalRecords[i] = rec
		}
		r.byName[finalName.Key()] = &published{name: finalName, records: finalRecords}
		r.announce(finalRecords)
		if onClaimed != nil {
			onClaimed(finalName)
		}
	}, ep)
}

// announce sends [announceCount] unsolicited multicast responses
// containing records, [announceIntervalDuration] apart, per RFC 6762 §8.3.
func (r *Responder) announce(records []wire.MdnsRecord) {
	var send func(remaining int)
	send = func(remaining int) {
		msg := wire.Message{
			Header:  wire.Header{Flags: wire.FlagQR, ANCount: uint16(len(records))},
			Answers: records,
		}
		if err := r.sender.Multicast(msg); err != nil {
			r.logger.Warn("send announcement failed", "err", err)
		}
		if remaining > 1 {
			r.runner.PostTaskWithDelay(func() { send(remaining - 1) }, announceIntervalDuration)
		}
	}
	send(announceCount)
}

// Unpublish withdraws a previously published name: sends a goodbye
// (TTL=0) for each of its records and stops answering queries for it.
func (r *Responder) Unpublish(name wire.DomainName) error {
	key := name.Key()
	pub, exists := r.byName[key]
	if !exists {
		return &errors.StateError{Operation: "unpublish", From: name.String(), Message: "not published"}
	}
	goodbyes := make([]wire.MdnsRecord, len(pub.records))
	for i, rec := range pub.records {
		rec.TTL = 0
		goodbyes[i] = rec
	}
	msg := wire.Message{
		Header:  wire.Header{Flags: wire.FlagQR, ANCount: uint16(len(goodbyes))},
		Answers: goodbyes,
	}
	if err := r.sender.Multicast(msg); err != nil {
		r.logger.Warn("send goodbye failed", "name", name.String(), "err", err)
	}
	delete(r.byName, key)
	return r.probes.StopProbe(name)
}

// OnMessage answers incoming queries for records this responder has
// published, and forwards every message to the probe manager so
// concurrent probes can run their tiebreak logic. A published group
// spans several names (service-type PTR, instance SRV/TXT, hostname
// A/AAAA), so matching walks every group's records rather than only the
// claimed name. Answers the querier already holds — listed in the
// query's answer section with at least half their original TTL left —
// are suppressed per RFC 6762 §7.1.
func (r *Responder) OnMessage(msg wire.Message, source string) {
	r.probes.RespondToProbeQuery(msg, source)
	if msg.Header.IsResponse() {
		return
	}
	var answers []wire.MdnsRecord
	for _, q := range msg.Questions {
		for _, pub := range r.byName {
			for _, rec := range pub.records {
				if q.Matches(rec) && !suppressedByKnownAnswer(rec, msg.Answers) {
					answers = append(answers, rec)
				}
			}
		}
	}
	if len(answers) == 0 {
		return
	}
	resp := wire.Message{
		Header:  wire.Header{Flags: wire.FlagQR, ANCount: uint16(len(answers))},
		Answers: answers,
	}
	if err := r.sender.Multicast(resp); err != nil {
		r.logger.Warn("send query response failed", "err", err)
	}
}

// suppressedByKnownAnswer implements the responder half of RFC 6762
// §7.1: skip an answer the querier listed as already known, unless the
// known copy has passed half its lifetime.
func suppressedByKnownAnswer(rec wire.MdnsRecord, known []wire.MdnsRecord) bool {
	for _, k := range known {
		if rec.SameIdentity(k) && rec.SameRdata(k) && k.TTL*2 >= rec.TTL {
			return true
		}
	}
	return false
}

// IsPublished reports whether name is currently published.
func (r *Responder) IsPublished(name wire.DomainName) bool {
	_, ok := r.byName[name.Key()]
	return ok
}
