/*
 * Copyright 2026 The FsrMesh Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

package binding

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTouchAndLookup(t *testing.T) {
	tbl := NewTable()
	ip := net.ParseIP("10.0.0.5")
	tbl.Touch("AABBCC", ip)

	got, ok := tbl.Lookup("AABBCC")
	require.True(t, ok)
	assert.True(t, ip.Equal(got))
	assert.Equal(t, 1, tbl.Len())
}

func TestFindMACReverseLookup(t *testing.T) {
	tbl := NewTable()
	tbl.Touch("AABBCC", net.ParseIP("10.0.0.5"))

	mac, ok := tbl.FindMAC(net.ParseIP("10.0.0.5"))
	require.True(t, ok)
	assert.Equal(t, "AABBCC", string(mac))

	_, ok = tbl.FindMAC(net.ParseIP("10.0.0.9"))
	assert.False(t, ok)
}

func TestSweepEvictsAfterThreshold(t *testing.T) {
	tbl := NewTable()
	tbl.Touch("AABBCC", net.ParseIP("10.0.0.5"))

	for i := 0; i < AgeThreshold; i++ {
		evicted := tbl.Sweep()
		assert.Empty(t, evicted)
	}
	evicted := tbl.Sweep()
	require.Len(t, evicted, 1)
	assert.Equal(t, "AABBCC", string(evicted[0]))
	assert.Equal(t, 0, tbl.Len())
}

func TestTouchResetsMissCount(t *testing.T) {
	tbl := NewTable()
	tbl.Touch("AABBCC", net.ParseIP("10.0.0.5"))

	for i := 0; i < AgeThreshold; i++ {
		tbl.Sweep()
	}
	// Re-heartbeat just before the final sweep would evict it.
	tbl.Touch("AABBCC", net.ParseIP("10.0.0.5"))
	evicted := tbl.Sweep()
	assert.Empty(t, evicted)
	_, ok := tbl.Lookup("AABBCC")
	assert.True(t, ok)
}
