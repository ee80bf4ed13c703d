/*
 * Copyright 2026 The FsrMesh Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fsrmesh/meshcfg"
)

func TestReportRoundTrip(t *testing.T) {
	r := Report{Entries: []ReportEntry{
		{MAC: "AABBCC", Parent: -1},
		{MAC: "112233", Parent: 0},
		{MAC: "445566", Parent: 1},
	}}

	raw := r.Serialize()
	assert.Equal(t, "0\n3\nAABBCC -1\n112233 0\n445566 1", string(raw))

	got, err := ParseReport(raw)
	require.NoError(t, err)
	assert.Equal(t, r, got)
}

func TestSelfOnlyReport(t *testing.T) {
	r := SelfOnlyReport("AABBCC")
	assert.Equal(t, []byte("0\n1\nAABBCC -1"), r.Serialize())
}

func TestParseReportToleratesTrailingNewline(t *testing.T) {
	got, err := ParseReport([]byte("0\n1\nAABBCC -1\n"))
	require.NoError(t, err)
	assert.Equal(t, meshcfg.ShortMAC("AABBCC"), got.Entries[0].MAC)
}

func TestParseReportRejectsCountMismatch(t *testing.T) {
	_, err := ParseReport([]byte("0\n2\nAABBCC -1"))
	assert.Error(t, err)
}

func TestParseReportRejectsBadMAC(t *testing.T) {
	_, err := ParseReport([]byte("0\n1\nbadmac -1"))
	assert.Error(t, err)
}

func TestParseReportRejectsWrongTag(t *testing.T) {
	_, err := ParseReport([]byte("1\n1\nAABBCC -1"))
	assert.Error(t, err)
}
