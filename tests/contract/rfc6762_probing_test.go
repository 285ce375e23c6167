package contract

import (
	"context"
	"testing"
	"time"

	"github.com/openscreen-go/openscreen/mdns"
	"github.com/openscreen-go/openscreen/mdns/wire"
	"github.com/openscreen-go/openscreen/platform/task"
)

// RFC 6762 §8.1: before claiming a unique name the host probes for it —
// queries carrying the proposed records in the authority section — and
// only announces after no conflicting answer arrives.
func TestRFC6762_Probing_QueriesPrecedeAnnouncement(t *testing.T) {
	runner := task.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runner.RunUntilStopped(ctx)

	sender := &fakeSender{}
	r := mdns.NewResponder(runner, sender, nil)

	done := make(chan struct{})
	records := []wire.MdnsRecord{aRecord("probe-target.local", "192.168.1.9", 120)}
	if err := r.Publish(wire.MustDomainName("probe-target.local"), records, func(wire.DomainName) { close(done) }); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("probe never completed")
	}

	msgs := sender.multicastSnapshot()
	var probes, announcements int
	firstAnnouncement := -1
	for i, msg := range msgs {
		if msg.Header.IsQuery() && len(msg.Authority) > 0 {
			probes++
			if firstAnnouncement >= 0 {
				t.Errorf("probe at message %d after first announcement at %d", i, firstAnnouncement)
			}
		}
		if msg.Header.IsResponse() {
			announcements++
			if firstAnnouncement < 0 {
				firstAnnouncement = i
			}
		}
	}
	if probes < 2 {
		t.Errorf("sent %d probe queries, RFC 6762 §8.1 requires at least two", probes)
	}
	if announcements == 0 {
		t.Error("no announcement followed the probes")
	}
}

// RFC 6762 §8.3: on claiming, the host sends unsolicited responses
// announcing its records — at least two.
func TestRFC6762_Announcing_AtLeastTwice(t *testing.T) {
	runner := task.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runner.RunUntilStopped(ctx)

	sender := &fakeSender{}
	r := mdns.NewResponder(runner, sender, nil)

	done := make(chan struct{})
	records := []wire.MdnsRecord{aRecord("announce-target.local", "192.168.1.9", 120)}
	if err := r.Publish(wire.MustDomainName("announce-target.local"), records, func(wire.DomainName) { close(done) }); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	<-done

	// Second announcement follows one second after the first.
	deadline := time.After(3 * time.Second)
	for {
		announcements := 0
		for _, msg := range sender.multicastSnapshot() {
			if msg.Header.IsResponse() && len(msg.Answers) > 0 && msg.Answers[0].TTL != 0 {
				announcements++
			}
		}
		if announcements >= 2 {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("saw %d announcements, want >= 2", announcements)
		case <-time.After(50 * time.Millisecond):
		}
	}
}
