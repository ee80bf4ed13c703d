/*
 * Copyright 2026 The FsrMesh Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

package routing

import (
	"bufio"
	"context"
	"io"
	"net"
	"time"

	"go.uber.org/zap"

	"fsrmesh/binding"
	"fsrmesh/meshcfg"
	"fsrmesh/radio"
	"fsrmesh/wire"
)

// sweepInterval is how often the routing task reconciles its tree
// against live children and considers re-announcing itself upstream.
// The reference firmware polls an event flag on a 200ms cadence; the
// same cadence is kept here as a plain ticker (spec §4.4).
const sweepInterval = 200 * time.Millisecond

// ParentLink is how the routing task reaches its own parent: an IP to
// send DataPacket/Report frames to, and whether one currently exists
// (it doesn't while this node is root).
type ParentLink struct {
	IP      net.IP
	HasLink bool
}

// Server runs one node's routing task: it accepts inbound DataPacket
// and RoutingReport frames on radio.DataPort, integrates reports into
// the local Tree, forwards or delivers data packets, and periodically
// reconciles the tree against currently-live children.
//
// Grounded on the reference firmware's routing_transport event loop
// (original_source/routing_transport/src/routing_transport.c), with
// its flag-and-poll control flow replaced by a context-cancelled
// goroutine per the spec's Design Notes — the idiomatic Go equivalent
// of that file's START/STOP handling.
type Server struct {
	Self      meshcfg.ShortMAC
	Tree      *Tree
	Binding   *binding.Table // nil if this node currently has no AP role / no children
	Parent    func() ParentLink
	IsRoot    func() bool
	Deliver   func(wire.DataPacket) // hand a packet addressed to us up to the application
	Log       *zap.SugaredLogger

	// sendFrame defaults to radio.SendFrame; tests override it to
	// observe outbound frames without opening real sockets.
	sendFrame func(ctx context.Context, ip net.IP, frame []byte) error
}

func (s *Server) transmit(ctx context.Context, ip net.IP, frame []byte) error {
	if s.sendFrame != nil {
		return s.sendFrame(ctx, ip, frame)
	}
	return radio.SendFrame(ctx, ip, frame)
}

// Run serves radio.DataPort and the periodic sweep until ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) error {
	go s.sweepLoop(ctx)
	return radio.Serve(ctx, func(conn net.Conn) {
		s.handleConn(ctx, conn)
	})
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	r := bufio.NewReader(conn)
	tag, err := r.Peek(1)
	if err != nil {
		return
	}

	switch tag[0] {
	case wire.FrameData:
		s.handleDataPacket(ctx, conn, r)
	case wire.FrameRouting:
		s.handleReport(conn, r)
	default:
		s.Log.Debugw("unrecognized frame tag", "tag", tag[0])
	}
}

func (s *Server) handleDataPacket(ctx context.Context, conn net.Conn, r *bufio.Reader) {
	buf := make([]byte, wire.PacketSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		s.Log.Debugw("short data frame", "peer", conn.RemoteAddr(), "error", err)
		return
	}
	p, err := wire.Parse(buf)
	if err != nil {
		s.Log.Debugw("malformed data frame", "peer", conn.RemoteAddr(), "error", err)
		return
	}

	arrivedVia := s.arrivalMAC(conn)
	s.dispatch(ctx, p, arrivedVia)
}

// SendPacket routes a packet originated locally by this node (e.g. from
// meshapi.Send/Broadcast), applying the same routing decision an
// inbound packet from a neighbor would get.
func (s *Server) SendPacket(ctx context.Context, p wire.DataPacket) {
	s.dispatch(ctx, p, "")
}

func (s *Server) dispatch(ctx context.Context, p wire.DataPacket, arrivedVia meshcfg.ShortMAC) {
	decision := s.Tree.Route(p, s.Self, s.IsRoot(), arrivedVia)
	p = decision.Packet

	switch decision.Action {
	case ActionDeliver:
		if s.Deliver != nil {
			s.Deliver(p)
		}
		if p.Status == wire.StatusSend {
			s.sendAck(ctx, p)
		}
	case ActionForwardChild:
		s.sendToChild(ctx, decision.NextHop, p)
	case ActionForwardParent:
		s.sendToParent(ctx, p)
	case ActionFlood:
		if s.Deliver != nil {
			s.Deliver(p)
		}
		// A root's broadcast-request conversion must flood back down
		// through the very child the request arrived from (decision.FloodAll).
		// Any other flood skips arrivedVia: for a flood received from the
		// parent link arrivedVia is "", so every child gets it; for a
		// broadcast-addressed packet received from a child, that child is
		// skipped and the packet is also sent on to the parent below.
		exclude := arrivedVia
		if decision.FloodAll {
			exclude = ""
		}
		for _, child := range s.Tree.FloodTargets(exclude) {
			s.sendToChild(ctx, child, p)
		}
		if !decision.FloodAll && arrivedVia != "" {
			s.sendToParent(ctx, p)
		}
	case ActionUnreachable:
		if decision.Reply != nil {
			s.sendToChild(ctx, p.Src, *decision.Reply)
		}
	}
}

// sendAck synthesizes the single best-effort acknowledgement hop spec
// §4.4 describes for a delivered request packet ("Received", status
// ack, src/dest swapped) and routes it back toward the original sender
// exactly as any other packet addressed to that MAC would be routed.
// Acks never themselves generate acks (they carry StatusAck, not
// StatusSend), so this recursion is bounded to one extra hop.
func (s *Server) sendAck(ctx context.Context, p wire.DataPacket) {
	ack := wire.DataPacket{
		Type:      wire.FrameData,
		Src:       s.Self,
		Dest:      p.Src,
		Status:    wire.StatusAck,
		PacketNum: p.PacketNum,
		Data:      []byte("Received"),
	}
	s.dispatch(ctx, ack, "")
}

func (s *Server) handleReport(conn net.Conn, r *bufio.Reader) {
	raw, err := io.ReadAll(r)
	if err != nil {
		s.Log.Debugw("failed reading report", "peer", conn.RemoteAddr(), "error", err)
		return
	}
	report, err := wire.ParseReport(raw)
	if err != nil {
		s.Log.Debugw("malformed report", "peer", conn.RemoteAddr(), "error", err)
		return
	}

	sender := s.arrivalMAC(conn)
	if sender == "" {
		s.Log.Debugw("report from unbound peer", "peer", conn.RemoteAddr())
		return
	}
	s.Tree.Integrate(sender, report)
}

// arrivalMAC resolves the short MAC of the peer a connection came from,
// via the binding table's reverse IP lookup. It returns "" if this node
// has no binding table (no children) or the peer is unbound.
func (s *Server) arrivalMAC(conn net.Conn) meshcfg.ShortMAC {
	if s.Binding == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return ""
	}
	mac, _ := s.Binding.FindMAC(net.ParseIP(host))
	return mac
}

func (s *Server) sendToChild(ctx context.Context, child meshcfg.ShortMAC, p wire.DataPacket) {
	if s.Binding == nil {
		return
	}
	ip, ok := s.Binding.Lookup(child)
	if !ok {
		s.Log.Debugw("no binding for child", "mac", child)
		return
	}
	frame, err := p.Serialize()
	if err != nil {
		s.Log.Debugw("cannot serialize packet", "error", err)
		return
	}
	if err := s.transmit(ctx, ip, frame); err != nil {
		s.Log.Debugw("send to child failed", "mac", child, "error", err)
	}
}

func (s *Server) sendToParent(ctx context.Context, p wire.DataPacket) {
	link := s.Parent()
	if !link.HasLink {
		return
	}
	frame, err := p.Serialize()
	if err != nil {
		s.Log.Debugw("cannot serialize packet", "error", err)
		return
	}
	if err := s.transmit(ctx, link.IP, frame); err != nil {
		s.Log.Debugw("send to parent failed", "error", err)
	}
}

func (s *Server) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Server) sweepOnce(ctx context.Context) {
	changed := false
	if s.Binding != nil {
		var live []meshcfg.ShortMAC
		// A node with no current AP role reports no live children; Sweep
		// itself runs on the binding server's own ticker (binding.SweepInterval).
		for mac := range s.liveBindingMACs() {
			live = append(live, mac)
		}
		changed = s.Tree.DelOverdueNodes(live)
	}

	if changed || s.Tree.NumVertices() == 1 {
		s.reportUpstream(ctx)
	}
}

func (s *Server) liveBindingMACs() map[meshcfg.ShortMAC]struct{} {
	live := make(map[meshcfg.ShortMAC]struct{})
	if s.Binding == nil {
		return live
	}
	for _, mac := range s.Tree.ChildrenOfRoot() {
		if _, ok := s.Binding.Lookup(mac); ok {
			live[mac] = struct{}{}
		}
	}
	return live
}

// reportUpstream sends this node's current subtree report to its
// parent, or is a no-op while this node is root (spec §4.4: the root
// never emits a report upstream).
func (s *Server) reportUpstream(ctx context.Context) {
	link := s.Parent()
	if !link.HasLink {
		return
	}
	report := s.Tree.GenerateReport()
	frame := report.Serialize()
	if err := s.transmit(ctx, link.IP, frame); err != nil {
		s.Log.Debugw("report upstream failed", "error", err)
	}
}
