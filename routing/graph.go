/*
 * Copyright 2026 The FsrMesh Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

// Package routing implements the per-node subtree graph and MAC→index
// table (spec §3 SubtreeGraph/RoutingTable), the routing-report
// integration and eviction algorithms (spec §4.4), and forwarding
// decisions for data packets.
//
// The reference firmware builds these as pointer-chasing linked lists
// rebuilt from scratch on every structural change (see
// original_source/routing_transport/src/routing_transport.c). Per the
// spec's Design Notes, this is reimplemented here with arena-style
// growable slices instead: vertices are never freed individually, a
// deletion simply severs an edge and the survivors are then
// re-enumerated from vertex 0 to produce a dense compacted graph.
package routing

import "github.com/pkg/errors"

// none is the sentinel parent value for the root vertex.
const none = -1

// Graph is an undirected tree over vertex set [0, n), rooted at vertex
// 0, represented as adjacency lists plus a parent array (spec §3
// SubtreeGraph).
type Graph struct {
	adj    [][]int
	parent []int
}

// NewGraph returns a graph containing only vertex 0 (self), with no
// parent.
func NewGraph() *Graph {
	return &Graph{
		adj:    [][]int{{}},
		parent: []int{none},
	}
}

// NumVertices returns the number of vertices currently in the graph.
func (g *Graph) NumVertices() int {
	return len(g.parent)
}

// Parent returns v's parent vertex, or -1 if v is the root.
func (g *Graph) Parent(v int) int {
	return g.parent[v]
}

// Children returns the direct children of v (neighbors other than v's
// own parent).
func (g *Graph) Children(v int) []int {
	var kids []int
	for _, n := range g.adj[v] {
		if n != g.parent[v] {
			kids = append(kids, n)
		}
	}
	return kids
}

// newVertex appends a fresh, unconnected vertex and returns its index.
func (g *Graph) newVertex() int {
	g.adj = append(g.adj, nil)
	g.parent = append(g.parent, none)
	return len(g.parent) - 1
}

// addEdge records child as a direct child of parent: a symmetric
// adjacency entry plus parent[child] = parent.
func (g *Graph) addEdge(parent, child int) {
	g.adj[parent] = append(g.adj[parent], child)
	g.adj[child] = append(g.adj[child], parent)
	g.parent[child] = parent
}

// detach severs the edge between node and its parent. The now-orphaned
// subtree rooted at node remains allocated but unreachable from vertex
// 0; callers must follow with compact() to reclaim dense indices.
func (g *Graph) detach(node int) {
	parent := g.parent[node]
	g.adj[parent] = removeValue(g.adj[parent], node)
	g.adj[node] = removeValue(g.adj[node], parent)
	g.parent[node] = none
}

func removeValue(s []int, v int) []int {
	for i, x := range s {
		if x == v {
			return append(s[:i:i], s[i+1:]...)
		}
	}
	return s
}

// PathToRoot walks parent pointers from v up to the root, returning the
// visited vertices in order starting with v and ending with 0. It
// returns an error if more than NumVertices-1 steps are required,
// which indicates a corrupt (cyclic or disconnected) graph — the
// testable property from spec §8.
func (g *Graph) PathToRoot(v int) ([]int, error) {
	path := []int{v}
	steps := 0
	for v != 0 {
		if steps >= g.NumVertices() {
			return nil, errors.Errorf("no path from vertex %d to root after %d steps", path[0], steps)
		}
		v = g.parent[v]
		if v == none {
			return nil, errors.Errorf("vertex %d has no parent and is not the root", path[len(path)-1])
		}
		path = append(path, v)
		steps++
	}
	return path, nil
}

// Validate checks the SubtreeGraph invariants from spec §3: exactly one
// root vertex (vertex 0, parent -1), every non-root vertex reachable
// from 0, and symmetric adjacency.
func (g *Graph) Validate() error {
	if g.NumVertices() == 0 {
		return errors.New("graph has no vertices")
	}
	if g.parent[0] != none {
		return errors.New("vertex 0 must have no parent")
	}
	for v := 1; v < g.NumVertices(); v++ {
		p := g.parent[v]
		if p == none {
			return errors.Errorf("vertex %d has no parent but is not vertex 0", v)
		}
		if !contains(g.adj[p], v) {
			return errors.Errorf("vertex %d not in parent %d's adjacency", v, p)
		}
		if !contains(g.adj[v], p) {
			return errors.Errorf("parent %d not in vertex %d's adjacency", p, v)
		}
	}
	visited := make([]bool, g.NumVertices())
	var walk func(v int)
	count := 0
	walk = func(v int) {
		if visited[v] {
			return
		}
		visited[v] = true
		count++
		for _, n := range g.adj[v] {
			walk(n)
		}
	}
	walk(0)
	if count != g.NumVertices() {
		return errors.Errorf("graph is not connected: reached %d of %d vertices", count, g.NumVertices())
	}
	return nil
}

func contains(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
