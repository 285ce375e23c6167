package net

import (
	"net/netip"
	"time"

	stdnet "net"
)

// Guard defaults. The threshold copes with the occasional misbehaving
// device flooding the link with queries (consumer hubs have shipped
// firmware sending 1000+ qps) without throttling legitimate bursts.
const (
	defaultRateThreshold = 100
	defaultRateCooldown  = 60 * time.Second
	defaultMaxSources    = 10000
	rateWindow           = time.Second
	sourceStaleAfter     = time.Minute
)

// sourceState tracks one sender inside the guard's sliding window.
type sourceState struct {
	windowStart    time.Time
	queryCount     int
	cooldownExpiry time.Time
	lastSeen       time.Time
}

// SourceGuard screens incoming packets before they reach the wire
// parser: sources outside mDNS's link-local scope (RFC 6762 §2) are
// rejected, and any single source exceeding the rate threshold within a
// one-second window is dropped for a cooldown period.
//
// The guard runs entirely on the task runner (packet dispatch is
// serialised by [platform/socket.Multiplexer]), so it keeps no locks.
type SourceGuard struct {
	threshold  int
	cooldown   time.Duration
	maxSources int

	subnets []netip.Prefix
	sources map[netip.Addr]*sourceState
	now     func() time.Time
}

// NewSourceGuard builds a guard whose same-subnet check is seeded from
// the addresses currently assigned to ifaces. Interface addresses are
// cached once; a guard outliving an address change should be rebuilt.
func NewSourceGuard(ifaces []stdnet.Interface) *SourceGuard {
	g := &SourceGuard{
		threshold:  defaultRateThreshold,
		cooldown:   defaultRateCooldown,
		maxSources: defaultMaxSources,
		sources:    make(map[netip.Addr]*sourceState),
		now:        time.Now,
	}
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*stdnet.IPNet)
			if !ok {
				continue
			}
			ip, ok := netip.AddrFromSlice(ipnet.IP)
			if !ok {
				continue
			}
			ones, _ := ipnet.Mask.Size()
			g.subnets = append(g.subnets, netip.PrefixFrom(ip.Unmap(), ones))
		}
	}
	return g
}

// Admit reports whether a packet from src should be parsed. A rejected
// packet is dropped silently; a hostile packet is never fatal.
func (g *SourceGuard) Admit(src stdnet.Addr) bool {
	udp, ok := src.(*stdnet.UDPAddr)
	if !ok {
		return false
	}
	ip, ok := netip.AddrFromSlice(udp.IP)
	if !ok {
		return false
	}
	ip = ip.Unmap()
	if !g.inScope(ip) {
		return false
	}
	return g.allowRate(ip)
}

// inScope applies RFC 6762 §2's link-local rule: the source must be a
// link-local address (169.254/16 or fe80::/10) or on the same subnet as
// one of the joined interfaces.
func (g *SourceGuard) inScope(ip netip.Addr) bool {
	if ip.IsLinkLocalUnicast() {
		return true
	}
	for _, prefix := range g.subnets {
		if prefix.Contains(ip) {
			return true
		}
	}
	return false
}

func (g *SourceGuard) allowRate(ip netip.Addr) bool {
	now := g.now()
	state, exists := g.sources[ip]
	if !exists {
		g.sources[ip] = &sourceState{windowStart: now, queryCount: 1, lastSeen: now}
		if len(g.sources) > g.maxSources {
			g.evictOldest()
		}
		return true
	}
	state.lastSeen = now

	if !state.cooldownExpiry.IsZero() {
		if now.Before(state.cooldownExpiry) {
			return false
		}
		state.cooldownExpiry = time.Time{}
		state.windowStart = now
		state.queryCount = 1
		return true
	}

	if now.Sub(state.windowStart) > rateWindow {
		state.windowStart = now
		state.queryCount = 1
		return true
	}

	state.queryCount++
	if state.queryCount > g.threshold {
		state.cooldownExpiry = now.Add(g.cooldown)
		return false
	}
	return true
}

// evictOldest drops the tenth of tracked sources least recently seen,
// bounding the map against an attacker cycling spoofed source addresses.
func (g *SourceGuard) evictOldest() {
	count := g.maxSources / 10
	if count == 0 {
		count = 1
	}
	for i := 0; i < count; i++ {
		var oldest netip.Addr
		var oldestSeen time.Time
		for ip, state := range g.sources {
			if oldestSeen.IsZero() || state.lastSeen.Before(oldestSeen) {
				oldest = ip
				oldestSeen = state.lastSeen
			}
		}
		if oldestSeen.IsZero() {
			return
		}
		delete(g.sources, oldest)
	}
}

// Cleanup drops sources idle for more than a minute. The owning service
// schedules this periodically so the map does not grow with every
// one-off sender on the link.
func (g *SourceGuard) Cleanup() {
	now := g.now()
	for ip, state := range g.sources {
		if now.Sub(state.lastSeen) > sourceStaleAfter {
			delete(g.sources, ip)
		}
	}
}
