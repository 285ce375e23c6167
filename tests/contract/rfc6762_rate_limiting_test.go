package contract

import (
	"net"
	"testing"

	mdnsnet "github.com/openscreen-go/openscreen/mdns/net"
)

// A single source flooding queries is cut off after the per-second
// threshold and stays blocked for the cooldown, protecting the parser
// and responder from multicast storms.
func TestRateLimiting_FloodingSourceIsThrottled(t *testing.T) {
	guard := mdnsnet.NewSourceGuard(nil)
	src := &net.UDPAddr{IP: net.ParseIP("169.254.9.9"), Port: 5353}

	admitted := 0
	for i := 0; i < 500; i++ {
		if guard.Admit(src) {
			admitted++
		}
	}
	if admitted >= 500 {
		t.Fatalf("all %d packets admitted; the flood should have been throttled", admitted)
	}
	if admitted == 0 {
		t.Fatal("no packets admitted; throttling must start above the threshold, not at zero")
	}
}

// Throttling one source must not penalise another on the same link.
func TestRateLimiting_PerSourceIsolation(t *testing.T) {
	guard := mdnsnet.NewSourceGuard(nil)
	noisy := &net.UDPAddr{IP: net.ParseIP("169.254.9.10"), Port: 5353}
	quiet := &net.UDPAddr{IP: net.ParseIP("169.254.9.11"), Port: 5353}

	for i := 0; i < 500; i++ {
		guard.Admit(noisy)
	}
	if !guard.Admit(quiet) {
		t.Error("an unrelated source was throttled alongside the noisy one")
	}
}

// RFC 6762 §2: mDNS is link-local scope. Sources that are neither
// link-local nor on a joined interface's subnet never reach the parser.
func TestRateLimiting_OffLinkSourcesRejectedOutright(t *testing.T) {
	guard := mdnsnet.NewSourceGuard(nil)
	for _, ip := range []string{"203.0.113.7", "198.51.100.1", "2001:db8::1"} {
		if guard.Admit(&net.UDPAddr{IP: net.ParseIP(ip), Port: 5353}) {
			t.Errorf("off-link source %s admitted", ip)
		}
	}
	for _, ip := range []string{"169.254.0.1", "fe80::7"} {
		if !guard.Admit(&net.UDPAddr{IP: net.ParseIP(ip), Port: 5353}) {
			t.Errorf("link-local source %s rejected", ip)
		}
	}
}
