/*
 * Copyright 2026 The FsrMesh Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

package routing

import "fsrmesh/meshcfg"

// table is the MAC<->vertex-index hash table paired 1:1 with a Graph
// (spec §3 RoutingTable).
type table struct {
	byMAC   map[meshcfg.ShortMAC]int
	byIndex []meshcfg.ShortMAC
}

func newTable(self meshcfg.ShortMAC) *table {
	return &table{
		byMAC:   map[meshcfg.ShortMAC]int{self: 0},
		byIndex: []meshcfg.ShortMAC{self},
	}
}

// find returns the vertex index for mac, if present.
func (t *table) find(mac meshcfg.ShortMAC) (int, bool) {
	idx, ok := t.byMAC[mac]
	return idx, ok
}

// macAt returns the short MAC stored at vertex idx.
func (t *table) macAt(idx int) meshcfg.ShortMAC {
	return t.byIndex[idx]
}

// numNodes returns the number of MAC/index pairs in the table. It is
// always equal to the paired Graph's NumVertices.
func (t *table) numNodes() int {
	return len(t.byIndex)
}

// insert appends mac at the next index and returns it. Callers must
// insert in index order (0, 1, 2, ...) to keep the table and its Graph
// in lockstep.
func (t *table) insert(mac meshcfg.ShortMAC) int {
	idx := len(t.byIndex)
	t.byIndex = append(t.byIndex, mac)
	t.byMAC[mac] = idx
	return idx
}
