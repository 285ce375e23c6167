package contract

import (
	"testing"

	"github.com/openscreen-go/openscreen/api"
)

// recordingObserver counts every notification for scenario assertions.
type recordingObserver struct {
	started, stopped, suspended, searching int
	added, changed, removed, allRemoved    int
	errs                                   []error
}

func (o *recordingObserver) OnStarted()                       { o.started++ }
func (o *recordingObserver) OnStopped()                       { o.stopped++ }
func (o *recordingObserver) OnSuspended()                     { o.suspended++ }
func (o *recordingObserver) OnSearching()                     { o.searching++ }
func (o *recordingObserver) OnReceiverAdded(api.ReceiverInfo) { o.added++ }
func (o *recordingObserver) OnReceiverChanged(api.ReceiverInfo) {
	o.changed++
}
func (o *recordingObserver) OnReceiverRemoved(api.ReceiverInfo) {
	o.removed++
}
func (o *recordingObserver) OnAllReceiversRemoved() { o.allRemoved++ }
func (o *recordingObserver) OnError(err error)      { o.errs = append(o.errs, err) }

// recordingDelegate notes which directives were forwarded.
type recordingDelegate struct {
	starts, startSuspends, stops, suspends, resumes, searches int
}

func (d *recordingDelegate) StartListener()              { d.starts++ }
func (d *recordingDelegate) StartAndSuspendListener()    { d.startSuspends++ }
func (d *recordingDelegate) StopListener()               { d.stops++ }
func (d *recordingDelegate) SuspendListener()            { d.suspends++ }
func (d *recordingDelegate) ResumeListener()             { d.resumes++ }
func (d *recordingDelegate) SearchNow(api.ListenerState) { d.searches++ }

// A normal start/stop cycle: the delegate commits each transition and
// the observer fires exactly once per committed state.
func TestListener_NormalStartStop(t *testing.T) {
	obs := &recordingObserver{}
	del := &recordingDelegate{}
	l := api.NewReceiverListener(obs, del)

	if !l.Start() {
		t.Fatal("Start from kStopped must be legal")
	}
	if del.starts != 1 {
		t.Fatalf("delegate StartListener calls = %d, want 1", del.starts)
	}
	if l.State() != api.StateStarting {
		t.Fatalf("state = %v, want kStarting", l.State())
	}

	if err := l.SetState(api.StateRunning); err != nil {
		t.Fatalf("commit kRunning: %v", err)
	}
	if obs.started != 1 {
		t.Fatalf("OnStarted fired %d times, want exactly 1", obs.started)
	}

	if !l.Stop() {
		t.Fatal("Stop from kRunning must be legal")
	}
	if del.stops != 1 || l.State() != api.StateStopping {
		t.Fatalf("delegate stops = %d state = %v", del.stops, l.State())
	}

	if err := l.SetState(api.StateStopped); err != nil {
		t.Fatalf("commit kStopped: %v", err)
	}
	if obs.stopped != 1 {
		t.Fatalf("OnStopped fired %d times, want exactly 1", obs.stopped)
	}
}

// An illegal operation returns false, changes nothing, and reaches
// neither delegate nor observer.
func TestListener_StartWhileStoppingRejected(t *testing.T) {
	obs := &recordingObserver{}
	del := &recordingDelegate{}
	l := api.NewReceiverListener(obs, del)

	l.Start()
	l.SetState(api.StateRunning)
	l.Stop() // now kStopping

	if l.Start() {
		t.Fatal("Start from kStopping must be illegal")
	}
	if l.State() != api.StateStopping {
		t.Fatalf("state mutated to %v by an illegal operation", l.State())
	}
	if del.starts != 1 {
		t.Fatalf("delegate StartListener calls = %d, want the one legal call only", del.starts)
	}
	if obs.started != 1 {
		t.Fatalf("observer OnStarted calls = %d, want the one legal call only", obs.started)
	}
}

// Receiver list pass-through: the observer fires only on actual
// modification.
func TestReceiverList_PassThrough(t *testing.T) {
	obs := &recordingObserver{}
	l := api.NewReceiverListener(obs, &recordingDelegate{})

	r1 := api.ReceiverInfo{ReceiverID: "id1", FriendlyName: "name1", Addr: "192.168.1.50:9001"}
	l.OnReceiverAdded(r1)
	if obs.added != 1 {
		t.Fatalf("OnReceiverAdded fired %d times, want 1", obs.added)
	}

	changed := r1
	changed.FriendlyName = "name1 alt"
	l.OnReceiverChanged(changed)
	if obs.changed != 1 {
		t.Fatalf("OnReceiverChanged fired %d times, want 1", obs.changed)
	}

	unknown := api.ReceiverInfo{ReceiverID: "id2", FriendlyName: "ghost"}
	l.OnReceiverChanged(unknown)
	if obs.changed != 1 {
		t.Fatalf("changing an absent receiver notified the observer (%d)", obs.changed)
	}

	l.OnReceiverRemoved(changed)
	if obs.removed != 1 {
		t.Fatalf("OnReceiverRemoved fired %d times, want 1", obs.removed)
	}
	l.OnReceiverRemoved(changed)
	if obs.removed != 1 {
		t.Fatalf("second remove of the same receiver notified the observer (%d)", obs.removed)
	}
}

// Suspension legs of the state machine: start-and-suspend, resume, and
// searching from suspended.
func TestListener_SuspendResumeSearch(t *testing.T) {
	obs := &recordingObserver{}
	del := &recordingDelegate{}
	l := api.NewReceiverListener(obs, del)

	if !l.StartAndSuspend() {
		t.Fatal("StartAndSuspend from kStopped must be legal")
	}
	l.SetState(api.StateSuspended)
	if obs.suspended != 1 {
		t.Fatalf("OnSuspended = %d, want 1", obs.suspended)
	}

	if !l.SearchNow() {
		t.Fatal("SearchNow from kSuspended must be legal")
	}
	l.SetState(api.StateSearching)
	if obs.searching != 1 {
		t.Fatalf("OnSearching = %d, want 1", obs.searching)
	}

	if !l.Resume() {
		t.Fatal("Resume from kSearching must be legal")
	}
	l.SetState(api.StateRunning)
	if obs.started != 1 {
		t.Fatalf("OnStarted = %d, want 1", obs.started)
	}
}
