package tracker

import (
	"math/rand"
	"time"

	"github.com/openscreen-go/openscreen/mdns/wire"
	"github.com/openscreen-go/openscreen/platform/task"
)

// initialSendDelayMin/Max bound the 20-120ms jittered delay before the
// first query for a new question, per RFC 6762 §5.2.
const (
	initialSendDelayMin = 20 * time.Millisecond
	initialSendDelayMax = 120 * time.Millisecond
)

// minQuerySendInterval is the minimum spacing between any two emitted
// queries for the same question (RFC 6762 §5.2). An on-demand send request
// arriving inside this window is dropped rather than violating it.
const minQuerySendInterval = time.Second

// maxQuestionBackoff caps the continuous-query resend delay at 60
// minutes (RFC 6762 §5.2: intervals double up to this ceiling).
const maxQuestionBackoff = 60 * time.Minute

// SendFunc transmits the given question (plus known-answer suppressions)
// onto the network. truncated indicates more known-answer records follow
// in a subsequent message (the question's own TC bit).
type SendFunc func(q wire.MdnsQuestion, knownAnswers []wire.MdnsRecord, truncated bool)

// QuestionTracker owns one [wire.MdnsQuestion] and its resend schedule.
type QuestionTracker struct {
	runner *task.Runner
	now    func() time.Time
	rand   func() float64
	send   SendFunc

	question     wire.MdnsQuestion
	delay        time.Duration
	lastSendTime time.Time
	hasSent      bool
	continuous   bool
	stopped      bool
	answeringSet map[*RecordTracker]struct{}
}

// NewQuestionTracker constructs a tracker for q. If continuous is true the
// tracker keeps resending with exponential backoff indefinitely (a
// "watching" query); otherwise it sends once, after the jittered initial
// delay, and never resends on its own (the caller drives further sends via
// [QuestionTracker.SendQuery] on demand).
func NewQuestionTracker(runner *task.Runner, q wire.MdnsQuestion, continuous bool, send SendFunc) *QuestionTracker {
	return newQuestionTrackerAt(runner, time.Now, rand.Float64, q, continuous, send)
}

func newQuestionTrackerAt(runner *task.Runner, now func() time.Time, randFn func() float64, q wire.MdnsQuestion, continuous bool, send SendFunc) *QuestionTracker {
	qt := &QuestionTracker{
		runner:       runner,
		now:          now,
		rand:         randFn,
		send:         send,
		question:     q,
		delay:        time.Second,
		continuous:   continuous,
		answeringSet: make(map[*RecordTracker]struct{}),
	}
	jitter := initialSendDelayMin + time.Duration(randFn()*float64(initialSendDelayMax-initialSendDelayMin))
	runner.PostTaskWithDelay(qt.fireScheduledSend, jitter)
	return qt
}

// Question returns the tracked question.
func (qt *QuestionTracker) Question() wire.MdnsQuestion { return qt.question }

// Stop prevents any further scheduled or on-demand sends.
func (qt *QuestionTracker) Stop() { qt.stopped = true }

func (qt *QuestionTracker) addAnsweringTracker(rt *RecordTracker)    { qt.answeringSet[rt] = struct{}{} }
func (qt *QuestionTracker) removeAnsweringTracker(rt *RecordTracker) { delete(qt.answeringSet, rt) }

func (qt *QuestionTracker) fireScheduledSend() {
	if qt.stopped {
		return
	}
	qt.SendQuery(false)
	if qt.continuous {
		qt.delay *= 2
		if qt.delay > maxQuestionBackoff {
			qt.delay = maxQuestionBackoff
		}
		qt.runner.PostTaskWithDelay(qt.fireScheduledSend, qt.delay)
	}
}

// SendQuery transmits the question now, coalescing known-answer
// suppressions for every answering record tracker that is not nearing
// expiry (RFC 6762 §7.1). An on-demand send (onDemand=true)
// arriving within [minQuerySendInterval] of the last send is dropped
// rather than violating the minimum-interval invariant; a scheduled send
// is never dropped (the schedule itself respects the interval by
// construction).
func (qt *QuestionTracker) SendQuery(onDemand bool) {
	if qt.stopped {
		return
	}
	if onDemand && qt.hasSent && qt.now().Sub(qt.lastSendTime) < minQuerySendInterval {
		return
	}

	var knownAnswers []wire.MdnsRecord
	var tooLarge int
	for rt := range qt.answeringSet {
		if rt.IsNearingExpiry() {
			continue
		}
		rec := rt.Record()
		if recordWireSize(rec) > maxSingleRecordSize {
			// A record too large to fit a message on its own is counted
			// and skipped, not logged, rather than split into a continuation
			// message, diverging from RFC 6762's "SHOULD split"
			// guidance. Only a peer violating RFC 6762's size limits
			// gets here.
			tooLarge++
			continue
		}
		knownAnswers = append(knownAnswers, rec)
	}
	_ = tooLarge // counted only: neither this tracker nor SendFunc receives or logs the count

	// truncated is always false: this tracker never emits continuation
	// messages (oversized known answers are skipped above, not split), so
	// there is never a follow-up message for the TC bit to promise.
	qt.send(qt.question, knownAnswers, false)
	qt.lastSendTime = qt.now()
	qt.hasSent = true
}

// maxSingleRecordSize is a conservative per-record cap approximating "must
// fit in a single mDNS message" for known-answer suppression purposes;
// real-world TXT/SRV records are far smaller than this in practice.
const maxSingleRecordSize = 9000

func recordWireSize(rec wire.MdnsRecord) int {
	w := wire.NewWriter()
	if err := rec.Encode(w); err != nil {
		return maxSingleRecordSize + 1
	}
	return w.Len()
}
