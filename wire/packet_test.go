/*
 * Copyright 2026 The FsrMesh Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

package wire

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fsrmesh/meshcfg"
)

func TestPacketRoundTrip(t *testing.T) {
	cases := []DataPacket{
		{
			Type: FrameData, Src: "AABBCC", Dest: "112233",
			Status: StatusSend, PacketNum: 0, Data: []byte("ping"),
		},
		{
			Type: FrameData, Src: "000000", Dest: "FFFFFF",
			Status: StatusBroadcastDeliver, PacketNum: 999, Data: []byte{},
		},
		{
			Type: FrameData, Src: "AABBCC", Dest: "112233",
			Status: StatusAck, PacketNum: 42,
			Data: []byte("Received"),
		},
	}

	for _, p := range cases {
		raw, err := p.Serialize()
		require.NoError(t, err)
		assert.Len(t, raw, PacketSize)

		got, err := Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, p.Type, got.Type)
		assert.Equal(t, p.Src, got.Src)
		assert.Equal(t, p.Dest, got.Dest)
		assert.Equal(t, p.Status, got.Status)
		assert.Equal(t, p.PacketNum, got.PacketNum)
		assert.Equal(t, p.Data, got.Data)
	}
}

func TestPacketDataIsNulPadded(t *testing.T) {
	p := DataPacket{
		Type: FrameData, Src: "AABBCC", Dest: "112233",
		Status: StatusSend, PacketNum: 1, Data: []byte("hi"),
	}
	raw, err := p.Serialize()
	require.NoError(t, err)

	for i := offData + len("hi"); i < PacketSize; i++ {
		assert.Equalf(t, byte(0), raw[i], "byte %d should be NUL padding", i)
	}
}

func TestPacketCRCAlwaysZeroZero(t *testing.T) {
	p := DataPacket{Type: FrameData, Src: "AABBCC", Dest: "112233", Status: StatusSend}
	raw, err := p.Serialize()
	require.NoError(t, err)
	assert.Equal(t, "00", string(raw[offCRC:offCRC+crcLen]))
}

func TestPacketRejectsOversizedPayload(t *testing.T) {
	p := DataPacket{
		Type: FrameData, Src: "AABBCC", Dest: "112233",
		Data: make([]byte, MaxPayload+1),
	}
	_, err := p.Serialize()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPayloadTooLarge))
}

func TestPacketRejectsBadMAC(t *testing.T) {
	p := DataPacket{Type: FrameData, Src: "bad", Dest: "112233"}
	_, err := p.Serialize()
	assert.Error(t, err)
}

func TestParseRejectsWrongLength(t *testing.T) {
	_, err := Parse([]byte("too short"))
	assert.Error(t, err)
}

func TestBroadcastAndRootSentinelAreValidShortMACs(t *testing.T) {
	assert.True(t, meshcfg.BroadcastMAC.Valid())
	assert.True(t, meshcfg.RootSentinel.Valid())
}
