/*
 * Copyright 2026 The FsrMesh Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

package routing

import (
	"fsrmesh/meshcfg"
	"fsrmesh/wire"
)

// Action is the disposition routing decides for an inbound DataPacket
// (spec §4.5 Forwarding rules).
type Action int

const (
	// ActionDeliver means the packet is addressed to this node (or this
	// node is root and the packet targeted the root sentinel).
	ActionDeliver Action = iota
	// ActionForwardChild means forward unmodified to NextHop, a direct child.
	ActionForwardChild
	// ActionForwardParent means forward unmodified toward the root.
	ActionForwardParent
	// ActionFlood means forward to direct children: every child other
	// than arrivedVia (all of them when the packet came from the parent
	// link), or unconditionally every child when this Decision is a
	// root's broadcast-request conversion (see Decision.FloodAll).
	ActionFlood
	// ActionUnreachable means dest is not in this node's subtree and this
	// node has no parent to escalate to (it is root): reply Unreachable.
	ActionUnreachable
)

// Decision is the result of routing an inbound packet. Packet is the
// packet to act on — ordinarily p itself, but for a root converting a
// broadcast request into a flood it carries the rewritten status the
// caller must actually deliver/forward, since callers must not assume
// Decision.Packet == the p they passed in.
type Decision struct {
	Action   Action
	Packet   wire.DataPacket
	NextHop  meshcfg.ShortMAC // valid for ActionForwardChild
	Reply    *wire.DataPacket // set for ActionUnreachable
	FloodAll bool             // valid for ActionFlood: flood to every child, ignoring arrivedVia
}

// Route decides what to do with an inbound packet p, given self (this
// node's identity), whether this node is currently root, and arrivedVia
// (the short MAC of the neighbor the packet was physically received
// from: a specific child, or "" if received from the parent link).
//
// Broadcast-request packets travel toward the root addressed at
// meshcfg.RootSentinel (spec §4.5 "send a status='3', dest='000000'...
// request upward"); only the root converts one into a broadcast-deliver
// flood. This conversion must be checked before the plain
// dest==RootSentinel "deliver to root" rule below, since both a
// broadcast-request and an ordinary unicast-to-root packet share that
// same sentinel destination and are told apart only by status.
func (t *Tree) Route(p wire.DataPacket, self meshcfg.ShortMAC, isRoot bool, arrivedVia meshcfg.ShortMAC) Decision {
	if p.Dest == meshcfg.BroadcastMAC {
		return Decision{Action: ActionFlood, Packet: p}
	}

	if isRoot && p.Status == wire.StatusBroadcastRequest {
		p.Dest = meshcfg.BroadcastMAC
		p.Status = wire.StatusBroadcastDeliver
		// arrivedVia here is the child the request travelled up from,
		// not a parent link — it must still receive the flood back down
		// (spec §8 scenario 4: leaf's broadcast must return through mid),
		// so this conversion always floods every child.
		return Decision{Action: ActionFlood, Packet: p, FloodAll: true}
	}

	if p.Dest == self || (isRoot && p.Dest == meshcfg.RootSentinel) {
		return Decision{Action: ActionDeliver, Packet: p}
	}

	if hop, ok := t.NextHopChild(p.Dest); ok {
		return Decision{Action: ActionForwardChild, Packet: p, NextHop: hop}
	}

	if !isRoot {
		return Decision{Action: ActionForwardParent, Packet: p}
	}

	reply := p
	reply.Src, reply.Dest = p.Dest, p.Src
	reply.Status = wire.StatusUnreachable
	return Decision{Action: ActionUnreachable, Packet: p, Reply: &reply}
}

// FloodTargets returns the direct children a flooded packet should be
// sent to: every child other than arrivedVia.
func (t *Tree) FloodTargets(arrivedVia meshcfg.ShortMAC) []meshcfg.ShortMAC {
	var targets []meshcfg.ShortMAC
	for _, mac := range t.ChildrenOfRoot() {
		if mac != arrivedVia {
			targets = append(targets, mac)
		}
	}
	return targets
}
