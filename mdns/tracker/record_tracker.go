// Package tracker implements the mDNS record and question trackers: the
// per-record TTL refresh schedule and the per-question resend backoff
// that the querier and responder share.
//
// A record tracker owns the refresh-at-80/85/90/95%-of-TTL schedule of
// RFC 6762 §5.2 and fires an expiration callback
// exactly once, and a question tracker owns the exponential-backoff
// resend schedule and the set of record trackers that currently answer it.
package tracker

import (
	"math/rand"
	"time"

	"github.com/openscreen-go/openscreen/mdns/wire"
	"github.com/openscreen-go/openscreen/platform/task"
)

// UpdateResult classifies the outcome of [RecordTracker.Update].
type UpdateResult int

const (
	// Goodbye indicates the update was a goodbye (TTL==0, matching rdata).
	Goodbye UpdateResult = iota
	// TtlOnly indicates the update refreshed the TTL with identical rdata.
	TtlOnly
	// RdataChanged indicates the update carried different rdata for the
	// same name/type/class.
	RdataChanged
)

// refreshFractions are the points in a record's TTL lifetime, expressed as
// fractions, at which the tracker schedules a refresh query (RFC 6762 §5.2).
// The last point omits the random jitter the earlier ones get, so the
// final refresh attempt lands as close to expiry as the schedule allows.
var refreshFractions = [4]float64{0.80, 0.85, 0.90, 0.95}

// maxRefreshAttempts bounds [RecordTracker] refresh_attempt_count at its
// documented range of [0,4].
const maxRefreshAttempts = 4

// ExpirationCallback is invoked exactly once, when a tracked record's
// effective lifetime ends (goodbye or natural TTL expiry).
type ExpirationCallback func(rec wire.MdnsRecord)

// RefreshCallback is invoked when the tracker reaches one of its
// refresh-query schedule points; the caller is expected to send a renewal
// query for the record's name/type/class.
type RefreshCallback func(rec wire.MdnsRecord)

// RecordTracker owns one [wire.MdnsRecord] and its refresh/expiration
// schedule.
type RecordTracker struct {
	runner *task.Runner
	now    func() time.Time
	rand   func() float64

	onExpire  ExpirationCallback
	onRefresh RefreshCallback

	record              wire.MdnsRecord
	startTime           time.Time
	refreshAttemptCount int
	expired             bool

	answeredQuestions map[*QuestionTracker]struct{}
}

// NewRecordTracker constructs a tracker for rec, owned by runner (every
// scheduled callback is posted through it, per the task-runner ownership
// model). onExpire fires exactly once; onRefresh may fire up to four
// times before expiry.
func NewRecordTracker(runner *task.Runner, rec wire.MdnsRecord, onExpire ExpirationCallback, onRefresh RefreshCallback) *RecordTracker {
	return newRecordTrackerAt(runner, time.Now, rand.Float64, rec, onExpire, onRefresh)
}

func newRecordTrackerAt(runner *task.Runner, now func() time.Time, randFn func() float64, rec wire.MdnsRecord, onExpire ExpirationCallback, onRefresh RefreshCallback) *RecordTracker {
	rt := &RecordTracker{
		runner:            runner,
		now:               now,
		rand:              randFn,
		onExpire:          onExpire,
		onRefresh:         onRefresh,
		record:            rec,
		startTime:         now(),
		answeredQuestions: make(map[*QuestionTracker]struct{}),
	}
	rt.scheduleFrom(0)
	return rt
}

// Record returns the currently tracked record.
func (rt *RecordTracker) Record() wire.MdnsRecord { return rt.record }

// StartTime returns when this tracker began owning the record (or was last
// reset by a goodbye).
func (rt *RecordTracker) StartTime() time.Time { return rt.startTime }

// IsNearingExpiry reports whether at least half of the record's TTL has
// elapsed, the RFC 6762 §7.1 gate for including a record in known-answer
// suppression.
func (rt *RecordTracker) IsNearingExpiry() bool {
	half := time.Duration(rt.record.TTL) * time.Second / 2
	return rt.now().Sub(rt.startTime) >= half
}

// Update applies an incoming record as an update to the tracked one. The
// caller must have already confirmed name/type/class identity; Update
// reports failure only through the ok=false return — the tracker state is left unchanged in that case.
//
// A goodbye update (new.TTL == 0) is only accepted if its rdata matches the
// tracked record's rdata; it forces the refresh counter to its final slot
// and clamps the effective TTL to one second (RFC 6762 §10.1).
func (rt *RecordTracker) Update(newRec wire.MdnsRecord) (UpdateResult, bool) {
	if !rt.record.SameIdentity(newRec) {
		return 0, false
	}
	if newRec.IsGoodbye() {
		if !rt.record.SameRdata(newRec) {
			return 0, false
		}
		rt.record.TTL = 1
		rt.refreshAttemptCount = maxRefreshAttempts
		rt.startTime = rt.now()
		rt.expired = false
		rt.scheduleExpireAt(time.Second)
		return Goodbye, true
	}

	if rt.record.SameRdata(newRec) {
		rt.record.TTL = newRec.TTL
		rt.startTime = rt.now()
		rt.refreshAttemptCount = 0
		rt.expired = false
		rt.scheduleFrom(0)
		return TtlOnly, true
	}

	rt.record = newRec
	rt.startTime = rt.now()
	rt.refreshAttemptCount = 0
	rt.expired = false
	rt.scheduleFrom(0)
	return RdataChanged, true
}

// ExpireSoon converts the tracked record into an effective 1-second-lived
// goodbye. Used when the owning graph/querier determines
// the record is no longer valid (e.g. its host's interface went down).
func (rt *RecordTracker) ExpireSoon() {
	rt.record.TTL = 1
	rt.startTime = rt.now()
	rt.refreshAttemptCount = maxRefreshAttempts
	rt.expired = false
	rt.scheduleExpireAt(time.Second)
}

// AddAssociatedQuery links qt to this tracker so the tracker knows it must
// not be destroyed while qt still exists, and so qt learns this tracker
// answers it. Idempotent: returns false if qt is already linked.
func (rt *RecordTracker) AddAssociatedQuery(qt *QuestionTracker) bool {
	if _, ok := rt.answeredQuestions[qt]; ok {
		return false
	}
	rt.answeredQuestions[qt] = struct{}{}
	qt.addAnsweringTracker(rt)
	return true
}

// RemoveAssociatedQuery reverses [RecordTracker.AddAssociatedQuery].
// Idempotent: returns false if qt was not linked.
func (rt *RecordTracker) RemoveAssociatedQuery(qt *QuestionTracker) bool {
	if _, ok := rt.answeredQuestions[qt]; !ok {
		return false
	}
	delete(rt.answeredQuestions, qt)
	qt.removeAnsweringTracker(rt)
	return true
}

// HasAssociatedQueries reports whether any question tracker currently
// depends on this record still being alive.
func (rt *RecordTracker) HasAssociatedQueries() bool {
	return len(rt.answeredQuestions) > 0
}

func (rt *RecordTracker) scheduleExpireAt(d time.Duration) {
	rec := rt.record
	generation := rt.startTime
	rt.runner.PostTaskWithDelay(func() {
		rt.fireExpirationIfCurrent(generation, rec)
	}, d)
}

// scheduleFrom schedules the remaining refresh points at or after
// fraction index `from` of the record's current TTL, plus the terminal
// expiration at 100%.
func (rt *RecordTracker) scheduleFrom(from int) {
	ttl := time.Duration(rt.record.TTL) * time.Second
	generation := rt.startTime
	rec := rt.record

	for i := from; i < len(refreshFractions); i++ {
		frac := refreshFractions[i]
		idx := i
		due := time.Duration(float64(ttl) * frac)
		if idx < len(refreshFractions)-1 {
			// Small random jitter on all but the last refresh point,
			// bounded to the gap until the next point so refreshes
			// never reorder; the last attempt lands as close to expiry
			// as the schedule allows.
			nextDue := time.Duration(float64(ttl) * refreshFractions[idx+1])
			jitterRange := nextDue - due
			if jitterRange > 0 {
				due += time.Duration(rt.rand() * float64(jitterRange))
			}
		}
		rt.runner.PostTaskWithDelay(func() {
			rt.fireRefreshIfCurrent(generation, rec)
		}, due)
	}

	rt.runner.PostTaskWithDelay(func() {
		rt.fireExpirationIfCurrent(generation, rec)
	}, ttl)
}

func (rt *RecordTracker) fireRefreshIfCurrent(generation time.Time, rec wire.MdnsRecord) {
	if !rt.startTime.Equal(generation) || rt.expired {
		return
	}
	if rt.refreshAttemptCount >= maxRefreshAttempts {
		return
	}
	rt.refreshAttemptCount++
	if rt.onRefresh != nil {
		rt.onRefresh(rec)
	}
}

func (rt *RecordTracker) fireExpirationIfCurrent(generation time.Time, rec wire.MdnsRecord) {
	if !rt.startTime.Equal(generation) || rt.expired {
		return
	}
	rt.expired = true
	if rt.onExpire != nil {
		rt.onExpire(rec)
	}
}
