/*
 * Copyright 2026 The FsrMesh Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildChain(n int) *Graph {
	g := NewGraph()
	for i := 1; i < n; i++ {
		v := g.newVertex()
		g.addEdge(i-1, v)
	}
	return g
}

func TestGraphValidateAcceptsChain(t *testing.T) {
	g := buildChain(5)
	assert.NoError(t, g.Validate())
}

func TestGraphValidateRejectsDisconnected(t *testing.T) {
	g := buildChain(3)
	g.newVertex() // vertex 3, never attached
	assert.Error(t, g.Validate())
}

func TestGraphDetachAndReachability(t *testing.T) {
	g := NewGraph()
	a := g.newVertex()
	g.addEdge(0, a)
	b := g.newVertex()
	g.addEdge(a, b)

	g.detach(a)

	path, err := g.PathToRoot(0)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, path)

	_, err = g.PathToRoot(b)
	assert.Error(t, err, "b is orphaned along with its parent a")
}

func TestGraphPathToRootBoundsSteps(t *testing.T) {
	g := buildChain(4)
	path, err := g.PathToRoot(3)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2, 1, 0}, path)
}

func TestGraphChildren(t *testing.T) {
	g := NewGraph()
	a := g.newVertex()
	g.addEdge(0, a)
	b := g.newVertex()
	g.addEdge(0, b)

	assert.ElementsMatch(t, []int{a, b}, g.Children(0))
	assert.Empty(t, g.Children(a))
}
