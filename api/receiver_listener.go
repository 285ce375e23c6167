// Package api exposes the L3 receiver-side public surface: the six-state
// receiver listener state machine and the ordered receiver list it reports
// through.
package api

import (
	"sync"

	"github.com/openscreen-go/openscreen/internal/errors"
)

// ListenerState is one of the six states of the receiver listener state
// machine described by the Receiver State Machine data model.
type ListenerState int

const (
	StateStopped ListenerState = iota
	StateStarting
	StateRunning
	StateSearching
	StateSuspended
	StateStopping
)

func (s ListenerState) String() string {
	switch s {
	case StateStopped:
		return "kStopped"
	case StateStarting:
		return "kStarting"
	case StateRunning:
		return "kRunning"
	case StateSearching:
		return "kSearching"
	case StateSuspended:
		return "kSuspended"
	case StateStopping:
		return "kStopping"
	default:
		return "unknown"
	}
}

// validTransitions: kStopped -> {kStarting,
// kStopping}, kStarting -> {kRunning, kSuspended, kStopping}, kRunning ->
// {kSuspended, kSearching, kStopping}, kSearching -> {kRunning, kSuspended,
// kStopping}, kSuspended -> {kRunning, kSearching, kStopping}, kStopping ->
// {kStopped}.
var validTransitions = map[ListenerState]map[ListenerState]bool{
	StateStopped:   {StateStarting: true, StateStopping: true},
	StateStarting:  {StateRunning: true, StateSuspended: true, StateStopping: true},
	StateRunning:   {StateSuspended: true, StateSearching: true, StateStopping: true},
	StateSearching: {StateRunning: true, StateSuspended: true, StateStopping: true},
	StateSuspended: {StateRunning: true, StateSearching: true, StateStopping: true},
	StateStopping:  {StateStopped: true},
}

func isTransitionValid(from, to ListenerState) bool {
	return validTransitions[from][to]
}

// ReceiverInfo describes one discovered receiver, surfaced to observers via
// the receiver list below.
type ReceiverInfo struct {
	ReceiverID   string
	FriendlyName string
	NetworkID    int
	Addr         string
}

// ListenerObserver receives state transitions and receiver list changes.
// A ReceiverListener calls every method on a non-nil observer, so each one
// must be implemented; pass nil to ReceiverListener to receive no calls.
type ListenerObserver interface {
	OnStarted()
	OnStopped()
	OnSuspended()
	OnSearching()

	OnReceiverAdded(ReceiverInfo)
	OnReceiverChanged(ReceiverInfo)
	OnReceiverRemoved(ReceiverInfo)
	OnAllReceiversRemoved()

	OnError(error)
}

// ListenerDelegate implements the L2/L1 mechanics a ReceiverListener
// directs. Each method is invoked synchronously from the matching public
// operation; the delegate commits the transition later (possibly after
// asynchronous work) by calling ReceiverListener.SetState.
type ListenerDelegate interface {
	StartListener()
	StartAndSuspendListener()
	StopListener()
	SuspendListener()
	ResumeListener()
	SearchNow(from ListenerState)
}

// ReceiverListener is a six-state
// machine whose operations return whether the requested transition was
// legal from the current state, forwarding legal requests to an injected
// delegate that later commits the transition via SetState.
type ReceiverListener struct {
	observer ListenerObserver
	delegate ListenerDelegate

	mu    sync.Mutex
	state ListenerState
	list  receiverList
}

// NewReceiverListener constructs a listener in kStopped driven by delegate.
// observer is optional.
func NewReceiverListener(observer ListenerObserver, delegate ListenerDelegate) *ReceiverListener {
	return &ReceiverListener{observer: observer, delegate: delegate, state: StateStopped}
}

// State returns the current state.
func (l *ReceiverListener) State() ListenerState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Start requests a transition from kStopped to kStarting.
func (l *ReceiverListener) Start() bool {
	l.mu.Lock()
	if l.state != StateStopped {
		l.mu.Unlock()
		return false
	}
	l.state = StateStarting
	l.mu.Unlock()

	l.delegate.StartListener()
	return true
}

// StartAndSuspend requests a transition from kStopped to kStarting, telling
// the delegate to suspend as soon as it comes up.
func (l *ReceiverListener) StartAndSuspend() bool {
	l.mu.Lock()
	if l.state != StateStopped {
		l.mu.Unlock()
		return false
	}
	l.state = StateStarting
	l.mu.Unlock()

	l.delegate.StartAndSuspendListener()
	return true
}

// Stop requests a transition to kStopping from any state but kStopped or
// kStopping itself.
func (l *ReceiverListener) Stop() bool {
	l.mu.Lock()
	if l.state == StateStopped || l.state == StateStopping {
		l.mu.Unlock()
		return false
	}
	l.state = StateStopping
	l.mu.Unlock()

	l.delegate.StopListener()
	return true
}

// Suspend asks the delegate to suspend from kStarting, kRunning, or
// kSearching. Unlike Start/Stop, Suspend does not itself advance l.state —
// the delegate commits the eventual kSuspended transition via SetState,
// an asymmetry with Start/Stop: those claim a transitional state up
// front, while Suspend/Resume wait for the delegate.
func (l *ReceiverListener) Suspend() bool {
	l.mu.Lock()
	switch l.state {
	case StateStarting, StateRunning, StateSearching:
	default:
		l.mu.Unlock()
		return false
	}
	l.mu.Unlock()

	l.delegate.SuspendListener()
	return true
}

// Resume asks the delegate to resume from kSuspended or kSearching.
func (l *ReceiverListener) Resume() bool {
	l.mu.Lock()
	switch l.state {
	case StateSuspended, StateSearching:
	default:
		l.mu.Unlock()
		return false
	}
	l.mu.Unlock()

	l.delegate.ResumeListener()
	return true
}

// SearchNow asks the delegate to perform an out-of-band search from
// kRunning or kSuspended.
func (l *ReceiverListener) SearchNow() bool {
	l.mu.Lock()
	switch l.state {
	case StateRunning, StateSuspended:
	default:
		l.mu.Unlock()
		return false
	}
	from := l.state
	l.mu.Unlock()

	l.delegate.SearchNow(from)
	return true
}

// SetState is called by the delegate to commit a state transition,
// rejecting illegal transitions with a StateError. Notifications fire
// with the lock released so an observer calling back into the listener
// cannot deadlock.
func (l *ReceiverListener) SetState(newState ListenerState) error {
	l.mu.Lock()
	if !isTransitionValid(l.state, newState) {
		from := l.state
		l.mu.Unlock()
		return &errors.StateError{
			Operation: "ReceiverListener.SetState",
			From:      from.String(),
			Message:   "cannot transition to " + newState.String(),
		}
	}
	l.state = newState
	l.mu.Unlock()

	l.maybeNotifyObserver(newState)
	return nil
}

func (l *ReceiverListener) maybeNotifyObserver(state ListenerState) {
	if l.observer == nil {
		return
	}
	switch state {
	case StateRunning:
		l.observer.OnStarted()
	case StateStopped:
		l.observer.OnStopped()
	case StateSuspended:
		l.observer.OnSuspended()
	case StateSearching:
		l.observer.OnSearching()
	}
}

// OnReceiverAdded is called by the delegate when a new receiver is
// discovered.
func (l *ReceiverListener) OnReceiverAdded(info ReceiverInfo) {
	l.mu.Lock()
	l.list.add(info)
	l.mu.Unlock()

	if l.observer != nil {
		l.observer.OnReceiverAdded(info)
	}
}

// OnReceiverChanged is called by the delegate when an existing receiver's
// info changes; it is a no-op if info.ReceiverID is not present.
func (l *ReceiverListener) OnReceiverChanged(info ReceiverInfo) {
	l.mu.Lock()
	changed := l.list.change(info)
	l.mu.Unlock()

	if changed && l.observer != nil {
		l.observer.OnReceiverChanged(info)
	}
}

// OnReceiverRemoved is called by the delegate when a receiver disappears;
// it is a no-op if no entry equal to info is present.
func (l *ReceiverListener) OnReceiverRemoved(info ReceiverInfo) {
	l.mu.Lock()
	removed := l.list.remove(info)
	l.mu.Unlock()

	if removed && l.observer != nil {
		l.observer.OnReceiverRemoved(info)
	}
}

// OnAllReceiversRemoved is called by the delegate to clear the list, e.g.
// on a network change.
func (l *ReceiverListener) OnAllReceiversRemoved() {
	l.mu.Lock()
	any := l.list.removeAll()
	l.mu.Unlock()

	if any && l.observer != nil {
		l.observer.OnAllReceiversRemoved()
	}
}

// OnError surfaces a delegate-internal error to the observer.
func (l *ReceiverListener) OnError(err error) {
	if l.observer != nil {
		l.observer.OnError(err)
	}
}

// GetReceivers returns a snapshot of the current receiver list.
func (l *ReceiverListener) GetReceivers() []ReceiverInfo {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.list.snapshot()
}
