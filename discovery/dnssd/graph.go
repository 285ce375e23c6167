// Package dnssd implements the DNS-SD discovery overlay: a directed
// graph of DomainName nodes, maintained from the raw mDNS record
// stream, materialising coherent (SRV, TXT, A/AAAA) triples into
// service instance endpoints (RFC 6763).
//
// Edges follow DNS references — a PTR record points the service-type
// node at an instance node, an SRV record points the instance node at
// its host — and nodes live only while reachable from a tracked root.
package dnssd

import (
	"github.com/openscreen-go/openscreen/internal/errors"
	"github.com/openscreen-go/openscreen/mdns/wire"
)

// NodeCallback is notified once per node creation or deletion.
type NodeCallback func(name wire.DomainName)

// node is one DomainName's record holdings plus its graph edges.
type node struct {
	name wire.DomainName

	// ptrRecords may hold multiple entries, one per advertised
	// instance; every other type is a singleton.
	ptrRecords []wire.MdnsRecord
	srv        *wire.MdnsRecord
	txt        *wire.MdnsRecord
	a          *wire.MdnsRecord
	aaaa       *wire.MdnsRecord
	nsec       *wire.MdnsRecord

	isRoot   bool
	parents  map[string]struct{} // keys of nodes with an edge into this one
	children map[string]struct{} // keys of nodes this one has an edge to
}

func newNode(name wire.DomainName, isRoot bool) *node {
	return &node{
		name:     name,
		isRoot:   isRoot,
		parents:  make(map[string]struct{}),
		children: make(map[string]struct{}),
	}
}

func (n *node) hasIncomingEdge() bool {
	return n.isRoot || len(n.parents) > 0
}

// Graph owns every tracked DomainName node and its edges.
type Graph struct {
	nodes map[string]*node
}

// NewGraph constructs an empty graph.
func NewGraph() *Graph {
	return &Graph{nodes: make(map[string]*node)}
}

// StartTracking creates a root node for domain if one does not already
// exist, firing onStart once for the newly-created node.
func (g *Graph) StartTracking(domain wire.DomainName, onStart NodeCallback) {
	key := domain.Key()
	if n, exists := g.nodes[key]; exists {
		n.isRoot = true
		return
	}
	g.nodes[key] = newNode(domain, true)
	if onStart != nil {
		onStart(domain)
	}
}

// StopTracking removes domain's root node and cascades deletion to any
// node whose last incoming edge was from it, firing onStop once per
// deleted node.
func (g *Graph) StopTracking(domain wire.DomainName, onStop NodeCallback) {
	key := domain.Key()
	n, exists := g.nodes[key]
	if !exists {
		return
	}
	n.isRoot = false
	g.collectGarbageFrom(key, onStop)
}

// ApplyRecordChange routes a record change to the node owning
// record.Name(), creating/removing child edges for records that carry a
// secondary name (PTR rdata, SRV target). Returns an
// [errors.CancellationError] if the target node is untracked.
func (g *Graph) ApplyRecordChange(rec wire.MdnsRecord, event RecordChangeEvent, onStart, onStop NodeCallback) error {
	key := rec.Name.Key()
	n, exists := g.nodes[key]
	if !exists {
		return &errors.CancellationError{Operation: "apply_record_change"}
	}

	switch rec.Type {
	case wire.TypePTR:
		g.applyPTR(n, rec, event, onStart, onStop)
	case wire.TypeSRV:
		g.applySRV(n, rec, event, onStart, onStop)
	case wire.TypeTXT:
		n.txt = applySingleton(n.txt, rec, event)
	case wire.TypeA:
		n.a = applySingleton(n.a, rec, event)
	case wire.TypeAAAA:
		n.aaaa = applySingleton(n.aaaa, rec, event)
	case wire.TypeNSEC:
		n.nsec = applySingleton(n.nsec, rec, event)
	}
	return nil
}

// RecordChangeEvent mirrors [mdns.EventKind] without importing the mdns
// package, keeping the DNS-SD graph independent of the L1 querier's
// concrete event type.
type RecordChangeEvent int

const (
	RecordCreated RecordChangeEvent = iota
	RecordUpdated
	RecordDeleted
)

func applySingleton(stored *wire.MdnsRecord, rec wire.MdnsRecord, event RecordChangeEvent) *wire.MdnsRecord {
	switch event {
	case RecordCreated, RecordUpdated:
		rc := rec
		return &rc
	case RecordDeleted:
		return nil
	default:
		return stored
	}
}

func (g *Graph) applyPTR(n *node, rec wire.MdnsRecord, event RecordChangeEvent, onStart, onStop NodeCallback) {
	switch event {
	case RecordCreated:
		n.ptrRecords = append(n.ptrRecords, rec)
		g.addEdge(n, rec.Data.PTR, onStart)
	case RecordDeleted:
		for i, existing := range n.ptrRecords {
			if existing.Data.PTR.Equal(rec.Data.PTR) {
				n.ptrRecords = append(n.ptrRecords[:i], n.ptrRecords[i+1:]...)
				break
			}
		}
		g.removeEdge(n, rec.Data.PTR, onStop)
	case RecordUpdated:
		// PTR rdata is the identity; an "update" with unchanged rdata is a
		// TTL refresh only and has no graph effect.
	}
}

func (g *Graph) applySRV(n *node, rec wire.MdnsRecord, event RecordChangeEvent, onStart, onStop NodeCallback) {
	var previousTarget wire.DomainName
	if n.srv != nil {
		previousTarget = n.srv.Data.SRV.Target
	}
	switch event {
	case RecordCreated:
		n.srv = cloneRecord(rec)
		g.addEdge(n, rec.Data.SRV.Target, onStart)
	case RecordUpdated:
		n.srv = cloneRecord(rec)
		if !previousTarget.Equal(rec.Data.SRV.Target) {
			g.removeEdge(n, previousTarget, onStop)
			g.addEdge(n, rec.Data.SRV.Target, onStart)
		}
	case RecordDeleted:
		n.srv = nil
		g.removeEdge(n, previousTarget, onStop)
	}
}

func cloneRecord(rec wire.MdnsRecord) *wire.MdnsRecord {
	rc := rec
	return &rc
}

// addEdge creates (or reuses) the child node target and records the
// parent/child edge, creating target if it does not exist, firing
// onStart for it if so.
func (g *Graph) addEdge(parent *node, target wire.DomainName, onStart NodeCallback) {
	key := target.Key()
	child, exists := g.nodes[key]
	if !exists {
		child = newNode(target, false)
		g.nodes[key] = child
		if onStart != nil {
			onStart(target)
		}
	}
	child.parents[parent.name.Key()] = struct{}{}
	parent.children[key] = struct{}{}
}

// removeEdge drops the parent/child edge and garbage-collects target if
// it no longer has any incoming edge.
func (g *Graph) removeEdge(parent *node, target wire.DomainName, onStop NodeCallback) {
	key := target.Key()
	child, exists := g.nodes[key]
	if !exists {
		return
	}
	delete(child.parents, parent.name.Key())
	delete(parent.children, key)
	g.collectGarbageFrom(key, onStop)
}

// collectGarbageFrom removes the node at key and cascades to every descendant that
// loses its last incoming edge as a result, so a node only exists
// while reachable from a root.
func (g *Graph) collectGarbageFrom(key string, onStop NodeCallback) {
	n, exists := g.nodes[key]
	if !exists || n.hasIncomingEdge() {
		return
	}
	children := make([]string, 0, len(n.children))
	for childKey := range n.children {
		children = append(children, childKey)
	}
	delete(g.nodes, key)
	if onStop != nil {
		onStop(n.name)
	}
	for _, childKey := range children {
		if child, ok := g.nodes[childKey]; ok {
			delete(child.parents, key)
		}
		g.collectGarbageFrom(childKey, onStop)
	}
}

// node returns the node at name, if tracked.
func (g *Graph) node(name wire.DomainName) (*node, bool) {
	n, ok := g.nodes[name.Key()]
	return n, ok
}
