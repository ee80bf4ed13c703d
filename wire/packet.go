/*
 * Copyright 2026 The FsrMesh Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

// Package wire implements the two framed application-layer formats that
// ride TCP port 9001: the fixed-layout 513-byte DataPacket and the
// variable-length text RoutingReport (spec §3, §6).
package wire

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/pkg/errors"

	"fsrmesh/meshcfg"
)

// Frame type tags (offset 0 of a DataPacket, and the sole byte of a
// RoutingReport's lead-in).
const (
	FrameRouting = '0'
	FrameData    = '1'
)

// ErrPayloadTooLarge is the PayloadTooLarge error kind from spec §7,
// returned when an application payload exceeds MaxPayload bytes.
var ErrPayloadTooLarge = errors.New("payload exceeds maximum data field size")

// Packet status codes (offset 13).
const (
	StatusSend             = '0'
	StatusAck              = '1'
	StatusUnreachable      = '2'
	StatusBroadcastRequest = '3'
	StatusBroadcastDeliver = '4'
)

// Wire layout constants, per spec §3.
const (
	offType       = 0
	offSrc        = 1
	offDest       = 7
	offStatus     = 13
	offPacketNum  = 14
	offCRC        = 17
	offData       = 19
	macFieldLen   = 6
	packetNumLen  = 3
	crcLen        = 2
	dataFieldLen  = 494

	// PacketSize is the exact on-wire size of a DataPacket.
	PacketSize = offData + dataFieldLen // 513

	// MaxPayload is the largest application payload a DataPacket can carry.
	MaxPayload = dataFieldLen
)

// DataPacket is the fixed-layout 513-byte application datagram (spec §3).
type DataPacket struct {
	Type      byte
	Src       meshcfg.ShortMAC
	Dest      meshcfg.ShortMAC
	Status    byte
	PacketNum int
	Data      []byte // logical payload, <= MaxPayload, NOT NUL-padded
}

// Serialize renders p into its exact 513-byte wire form. The CRC field
// is reserved and always written as "00" (spec §3); packet_num is
// zero-padded to 3 ASCII digits.
func (p DataPacket) Serialize() ([]byte, error) {
	if !p.Src.Valid() {
		return nil, errors.Errorf("invalid src mac %q", p.Src)
	}
	if !p.Dest.Valid() {
		return nil, errors.Errorf("invalid dest mac %q", p.Dest)
	}
	if p.PacketNum < 0 || p.PacketNum > 999 {
		return nil, errors.Errorf("packet_num %d out of range", p.PacketNum)
	}
	if len(p.Data) > MaxPayload {
		return nil, errors.Wrapf(ErrPayloadTooLarge, "payload of %d bytes exceeds %d", len(p.Data), MaxPayload)
	}

	buf := make([]byte, PacketSize)
	buf[offType] = p.Type
	copy(buf[offSrc:offSrc+macFieldLen], p.Src)
	copy(buf[offDest:offDest+macFieldLen], p.Dest)
	buf[offStatus] = p.Status
	copy(buf[offPacketNum:offPacketNum+packetNumLen], fmt.Sprintf("%03d", p.PacketNum))
	copy(buf[offCRC:offCRC+crcLen], "00")
	copy(buf[offData:offData+len(p.Data)], p.Data)
	// the rest of the data field is left NUL (zero value of the slice)

	return buf, nil
}

// Parse decodes a 513-byte wire frame into a DataPacket. The returned
// Data is trimmed of trailing NUL padding.
func Parse(frame []byte) (DataPacket, error) {
	if len(frame) != PacketSize {
		return DataPacket{}, errors.Errorf("data frame is %d bytes, want %d", len(frame), PacketSize)
	}

	var p DataPacket
	p.Type = frame[offType]
	p.Src = meshcfg.ShortMAC(frame[offSrc : offSrc+macFieldLen])
	p.Dest = meshcfg.ShortMAC(frame[offDest : offDest+macFieldLen])
	p.Status = frame[offStatus]

	numStr := string(frame[offPacketNum : offPacketNum+packetNumLen])
	num, err := strconv.Atoi(numStr)
	if err != nil {
		return DataPacket{}, errors.Wrapf(err, "bad packet_num %q", numStr)
	}
	p.PacketNum = num

	data := frame[offData : offData+dataFieldLen]
	p.Data = append([]byte{}, bytes.TrimRight(data, "\x00")...)

	return p, nil
}
