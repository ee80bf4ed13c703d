/*
 * Copyright 2026 The FsrMesh Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

// Package meshapi is the public surface an application on a mesh node
// uses: Send/Broadcast/Recv/Connected (spec §4.5). It owns the two
// long-lived worker tasks — the network FSM and the routing server —
// and the inbound queue their packets land in.
package meshapi

import (
	"context"
	"net"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fsrmesh/binding"
	"fsrmesh/fsm"
	"fsrmesh/meshcfg"
	"fsrmesh/meshutil"
	"fsrmesh/radio"
	"fsrmesh/routing"
	"fsrmesh/wire"
)

// ErrNotConnected is returned by Send/Broadcast when this node has no
// current place in the mesh tree to originate a packet from.
var ErrNotConnected = errors.New("mesh: not connected")

// InboundQueueSize bounds how many undelivered packets Recv will buffer;
// once it is full, further deliveries are dropped (and counted under the
// "queue_full" drop reason) rather than blocking the routing task.
const InboundQueueSize = 256

// Mesh is the runtime handle an application holds for one node. It is
// safe for concurrent use by multiple goroutines.
type Mesh struct {
	self    meshcfg.ShortMAC
	config  *meshcfg.Config
	radio   radio.Radio
	log     *zap.SugaredLogger
	metrics *meshutil.Metrics

	machine *fsm.Machine
	tree    *routing.Tree
	binding *binding.Table

	connected atomic.Bool
	inbound   chan wire.DataPacket

	mu         sync.Mutex
	server     *routing.Server
	stopServer context.CancelFunc
	packetNum  int
}

// New constructs a Mesh bound to r, using self as this node's identity
// and cfg as the shared mesh configuration (prefix/password).
func New(self meshcfg.ShortMAC, cfg *meshcfg.Config, r radio.Radio, log *zap.SugaredLogger, metrics *meshutil.Metrics) *Mesh {
	m := &Mesh{
		self:    self,
		config:  cfg,
		radio:   r,
		log:     log,
		metrics: metrics,
		inbound: make(chan wire.DataPacket, InboundQueueSize),
	}

	m.machine = &fsm.Machine{
		Config:         cfg,
		Radio:          r,
		Self:           self,
		Log:            log,
		OnConnected:    m.onConnected,
		OnDisconnected: m.onDisconnected,
	}
	return m
}

// Run starts the FSM and blocks until ctx is cancelled. On the way out
// the FSM leaves Connected, which stops the routing server and heartbeat
// client onConnected started; the AP-side binding and DHCP servers belong
// to the Radio and stop only when its DisableAP is called.
func (m *Mesh) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m.machine.Run(ctx)
		return nil
	})
	return g.Wait()
}

// onConnected is called by the FSM once it settles into Connected at
// the given level. It stands up this node's own Tree and the routing
// server that serves it, plus (for non-root nodes) the heartbeat
// client announcing this node to its parent.
func (m *Mesh) onConnected(level int) {
	m.tree = routing.NewTree(m.self)
	// Share the table EnableAP created and binding.Serve is feeding from
	// child heartbeats, rather than a fresh empty one — routing.Server
	// and the real heartbeat listener must agree on one table or every
	// arrivalMAC/sendToChild lookup silently fails.
	m.binding = m.radio.BindingTable()
	m.connected.Store(true)

	ctx, cancel := context.WithCancel(context.Background())
	isRoot := func() bool { return level == 0 }
	parent := func() routing.ParentLink {
		if isRoot() {
			return routing.ParentLink{}
		}
		return routing.ParentLink{IP: radio.ParentGatewayIP(level), HasLink: true}
	}

	srv := &routing.Server{
		Self:    m.self,
		Tree:    m.tree,
		Binding: m.binding,
		Parent:  parent,
		IsRoot:  isRoot,
		Deliver: m.deliver,
		Log:     m.log,
	}
	m.mu.Lock()
	m.server = srv
	m.stopServer = cancel
	m.mu.Unlock()

	go func() {
		if err := srv.Run(ctx); err != nil {
			m.log.Errorw("routing server exited", "error", err)
		}
	}()

	if !isRoot() {
		go binding.RunHeartbeatClient(ctx, net.JoinHostPort(radio.ParentGatewayIP(level).String(), "9000"),
			m.self, m.radio.Linked, m.log)
	}
}

func (m *Mesh) onDisconnected() {
	m.connected.Store(false)
	m.tree = nil
	m.binding = nil
	m.mu.Lock()
	if m.stopServer != nil {
		m.stopServer()
		m.stopServer = nil
	}
	m.server = nil
	m.mu.Unlock()
}

// Send originates a unicast packet addressed to dest and routes it
// through this node's own tree exactly as an inbound packet from a
// neighbor would be (spec §4.5). Use meshcfg.RootSentinel as dest to
// address the root regardless of its identity.
func (m *Mesh) Send(ctx context.Context, dest meshcfg.ShortMAC, payload []byte) error {
	return m.send(ctx, dest, wire.StatusSend, payload)
}

// Broadcast originates a packet delivered to every node in the mesh.
// Non-root nodes always forward a broadcast upward first; only the
// root converts it into a deliver-everywhere flood (spec §4.4).
func (m *Mesh) Broadcast(ctx context.Context, payload []byte) error {
	return m.send(ctx, meshcfg.RootSentinel, wire.StatusBroadcastRequest, payload)
}

func (m *Mesh) send(ctx context.Context, dest meshcfg.ShortMAC, status byte, payload []byte) error {
	m.mu.Lock()
	srv := m.server
	if srv == nil {
		m.mu.Unlock()
		return ErrNotConnected
	}
	m.packetNum = (m.packetNum + 1) % 1000
	num := m.packetNum
	m.mu.Unlock()

	p := wire.DataPacket{
		Type:      wire.FrameData,
		Src:       m.self,
		Dest:      dest,
		Status:    status,
		PacketNum: num,
		Data:      payload,
	}
	if _, err := p.Serialize(); err != nil {
		return err
	}
	srv.SendPacket(ctx, p)
	return nil
}

func (m *Mesh) deliver(p wire.DataPacket) {
	if m.metrics != nil {
		m.metrics.PacketsForwarded.Inc()
	}
	// Acks are informational only and never correlated to a request
	// (spec §4.5/§7); the application never sees them.
	if p.Status == wire.StatusAck {
		return
	}
	select {
	case m.inbound <- p:
	default:
		if m.metrics != nil {
			m.metrics.PacketsDropped.WithLabelValues("queue_full").Inc()
		}
	}
}

// Connected reports whether this node currently has a place in the
// mesh tree (either as root or joined beneath one).
func (m *Mesh) Connected() bool {
	return m.connected.Load()
}

// Self returns this node's own short MAC.
func (m *Mesh) Self() meshcfg.ShortMAC {
	return m.self
}

// Recv blocks until a data packet addressed to this node arrives, or
// ctx is cancelled.
func (m *Mesh) Recv(ctx context.Context) (wire.DataPacket, error) {
	select {
	case p := <-m.inbound:
		return p, nil
	case <-ctx.Done():
		return wire.DataPacket{}, ctx.Err()
	}
}
