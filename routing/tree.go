/*
 * Copyright 2026 The FsrMesh Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

package routing

import (
	"sync"

	"fsrmesh/meshcfg"
	"fsrmesh/wire"
)

// Tree is a node's view of its own subtree: a Graph of vertices rooted
// at this node (vertex 0) paired with a table mapping short MACs to
// vertex indices. It is the combination of spec §3's SubtreeGraph and
// RoutingTable, which the reference firmware always keeps and
// rebuilds together.
//
// Grounded on original_source/routing_transport/src/routing_transport.c's
// add_tree_node/del_then_gen/del_overdue_nodes, reworked per the spec's
// Design Notes to use growable slices instead of malloc/copy/free.
type Tree struct {
	mu    sync.RWMutex
	self  meshcfg.ShortMAC
	graph *Graph
	table *table
}

// NewTree returns a Tree containing only vertex 0 (self).
func NewTree(self meshcfg.ShortMAC) *Tree {
	return &Tree{
		self:  self,
		graph: NewGraph(),
		table: newTable(self),
	}
}

// NumVertices returns the number of nodes in the subtree, including
// self.
func (t *Tree) NumVertices() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.graph.NumVertices()
}

// Integrate folds a routing report received from sender (a direct
// child) into the tree. If sender already has a subtree on file, it is
// discarded first: reports are always a full restatement of the
// sender's subtree, never a diff (spec §4.4).
func (t *Tree) Integrate(sender meshcfg.ShortMAC, report wire.Report) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if idx, ok := t.table.find(sender); ok {
		t.delThenGenLocked(idx)
	}

	offset := t.table.numNodes()
	for _, e := range report.Entries {
		parent := 0
		if e.Parent != -1 {
			parent = offset + e.Parent
		}
		newIdx := t.graph.newVertex()
		t.graph.addEdge(parent, newIdx)
		t.table.insert(e.MAC)
	}
}

// delThenGenLocked removes node's subtree (node must not be 0) and
// compacts the graph/table back to dense indices. Caller holds t.mu.
func (t *Tree) delThenGenLocked(node int) {
	if node == 0 {
		return
	}
	t.graph.detach(node)
	t.compactLocked()
}

// compactLocked rebuilds graph/table by walking reachable vertices from
// 0, discarding anything orphaned by a prior detach.
func (t *Tree) compactLocked() {
	newGraph := NewGraph()
	newTable := newTable(t.self)

	type frame struct{ oldIdx, newIdx int }
	queue := []frame{{0, 0}}
	visited := map[int]bool{0: true}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, oldChild := range t.graph.adj[cur.oldIdx] {
			if oldChild == t.graph.parent[cur.oldIdx] || visited[oldChild] {
				continue
			}
			visited[oldChild] = true
			newIdx := newGraph.newVertex()
			newGraph.addEdge(cur.newIdx, newIdx)
			newTable.insert(t.table.macAt(oldChild))
			queue = append(queue, frame{oldChild, newIdx})
		}
	}

	t.graph = newGraph
	t.table = newTable
}

// DelOverdueNodes drops any direct child of vertex 0 that is not present
// in liveChildren, along with that child's entire subtree. This is the
// root-level liveness sweep a parent runs against its own tracked set
// of currently-associated children (spec §4.4 eviction); it does not
// concern itself with grandchildren, which age out transitively via
// their own parent's sweep and a del_then_gen the next time that
// parent's report changes.
//
// It returns true if anything was evicted.
func (t *Tree) DelOverdueNodes(liveChildren []meshcfg.ShortMAC) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	live := make(map[meshcfg.ShortMAC]bool, len(liveChildren))
	for _, mac := range liveChildren {
		live[mac] = true
	}

	// Collect MACs first: each delThenGenLocked compacts the graph and
	// renumbers the surviving vertices.
	var dead []meshcfg.ShortMAC
	for _, child := range t.graph.Children(0) {
		if mac := t.table.macAt(child); !live[mac] {
			dead = append(dead, mac)
		}
	}
	for _, mac := range dead {
		if idx, ok := t.table.find(mac); ok {
			t.delThenGenLocked(idx)
		}
	}
	return len(dead) > 0
}

// GenerateReport serializes the current subtree as a routing report,
// with self as local vertex 0 and every other vertex's parent rebased
// to the reporter-local index space (spec §4.4 "Emitting a report").
func (t *Tree) GenerateReport() wire.Report {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entries := make([]wire.ReportEntry, t.table.numNodes())
	for i := 0; i < t.table.numNodes(); i++ {
		parent := t.graph.Parent(i)
		if parent == none {
			parent = -1
		}
		entries[i] = wire.ReportEntry{MAC: t.table.macAt(i), Parent: parent}
	}
	return wire.Report{Entries: entries}
}

// NextHopChild returns the direct child of self through which a packet
// addressed to dest must be forwarded, per the "walk toward the root
// until the parent is vertex 0" rule of spec §4.5. It returns false if
// dest is unknown, or if dest is self (no forwarding needed).
func (t *Tree) NextHopChild(dest meshcfg.ShortMAC) (meshcfg.ShortMAC, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	idx, ok := t.table.find(dest)
	if !ok || idx == 0 {
		return "", false
	}

	steps := 0
	for t.graph.Parent(idx) != 0 {
		idx = t.graph.Parent(idx)
		steps++
		if steps > t.graph.NumVertices() {
			return "", false
		}
	}
	return t.table.macAt(idx), true
}

// ChildrenOfRoot returns the short MACs of self's direct children.
func (t *Tree) ChildrenOfRoot() []meshcfg.ShortMAC {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var macs []meshcfg.ShortMAC
	for _, v := range t.graph.Children(0) {
		macs = append(macs, t.table.macAt(v))
	}
	return macs
}

// Contains reports whether mac is known anywhere in the subtree.
func (t *Tree) Contains(mac meshcfg.ShortMAC) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.table.find(mac)
	return ok
}

// Validate exposes the underlying Graph's invariant check for tests.
func (t *Tree) Validate() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.graph.Validate()
}
