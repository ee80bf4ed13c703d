/*
 * Copyright 2026 The FsrMesh Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

package radio

import (
	"context"
	"net"
	"sync"
	"time"

	dhcp "github.com/krolaw/dhcp4"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"fsrmesh/binding"
	"fsrmesh/meshcfg"
)

var errInvalidSubnet = errors.New("subnet too small to serve DHCP leases")

// leaseDuration is how long a DHCP lease is valid before a child must
// renew it.
const leaseDuration = 2 * time.Hour

type lease struct {
	hwaddr   string
	ip       net.IP
	assigned bool
	expires  time.Time
}

// dhcpServer hands out IPv4 addresses on the mesh AP's local subnet to
// newly-associated children. On every ACK it also touches the MAC/IP
// binding table with the child's short MAC and leased address, ahead of
// the child's first heartbeat; the heartbeat protocol keeps the entry
// alive from then on.
//
// Grounded on ap.dhcp4d/dhcp4d.go's DHCPHandler, with the multi-ring/
// VLAN machinery that file carries stripped down to the single flat
// subnet a mesh AP interface serves.
type dhcpServer struct {
	iface      string
	serverIP   net.IP
	subnet     *net.IPNet
	options    dhcp.Options
	rangeStart net.IP
	rangeSize  int
	leases     []lease
	bindTable  *binding.Table

	mu sync.Mutex
}

func newDHCPServer(iface string, serverIP net.IP, subnet *net.IPNet, bindTable *binding.Table) (*dhcpServer, error) {
	ones, bits := subnet.Mask.Size()
	// Leases start just after serverIP (the .1); the network address,
	// serverIP and the broadcast address are never handed out.
	rangeSize := 1<<uint(bits-ones) - 3
	if rangeSize <= 0 {
		return nil, errInvalidSubnet
	}

	rangeStart := dhcp.IPAdd(serverIP, 1)
	return &dhcpServer{
		iface:      iface,
		serverIP:   serverIP,
		subnet:     subnet,
		rangeStart: rangeStart,
		rangeSize:  rangeSize,
		leases:     make([]lease, rangeSize),
		bindTable:  bindTable,
		options: dhcp.Options{
			dhcp.OptionSubnetMask:       subnet.Mask,
			dhcp.OptionRouter:           serverIP,
			dhcp.OptionDomainNameServer: serverIP,
		},
	}, nil
}

func (s *dhcpServer) run(ctx context.Context, log *zap.SugaredLogger) {
	conn, err := net.ListenPacket("udp4", ":67")
	if err != nil {
		log.Errorw("dhcp listen failed", "error", err)
		return
	}
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	if err := dhcp.Serve(conn, s); err != nil {
		select {
		case <-ctx.Done():
		default:
			log.Errorw("dhcp server exited", "error", err)
		}
	}
}

// ServeDHCP implements dhcp.Handler.
func (s *dhcpServer) ServeDHCP(p dhcp.Packet, msgType dhcp.MessageType, options dhcp.Options) dhcp.Packet {
	switch msgType {
	case dhcp.Discover:
		return s.discover(p, options)
	case dhcp.Request:
		return s.request(p, options)
	case dhcp.Release, dhcp.Decline:
		s.release(p.CHAddr().String())
	}
	return nil
}

func (s *dhcpServer) discover(p dhcp.Packet, options dhcp.Options) dhcp.Packet {
	l := s.assign(p.CHAddr().String())
	if l == nil {
		return dhcp.ReplyPacket(p, dhcp.NAK, s.serverIP, nil, 0, nil)
	}
	return dhcp.ReplyPacket(p, dhcp.Offer, s.serverIP, l.ip, leaseDuration,
		s.options.SelectOrderOrAll(options[dhcp.OptionParameterRequestList]))
}

func (s *dhcpServer) request(p dhcp.Packet, options dhcp.Options) dhcp.Packet {
	hwaddr := p.CHAddr().String()
	server, ok := options[dhcp.OptionServerIdentifier]
	if ok && !net.IP(server).Equal(s.serverIP) {
		return nil
	}

	requested := net.IP(options[dhcp.OptionRequestedIPAddress])
	l := s.find(hwaddr)
	if l == nil && requested != nil {
		l = s.assign(hwaddr)
	}
	if l == nil || (requested != nil && !l.ip.Equal(requested)) {
		return dhcp.ReplyPacket(p, dhcp.NAK, s.serverIP, nil, 0, nil)
	}

	s.mu.Lock()
	l.expires = time.Now().Add(leaseDuration)
	s.mu.Unlock()

	// Pre-populate the binding table so routing can reach this child
	// immediately, without waiting for its first heartbeat.
	if s.bindTable != nil {
		if mac, err := meshcfg.ShortMACFromHWAddr(p.CHAddr()); err == nil {
			s.bindTable.Touch(mac, l.ip)
		}
	}

	return dhcp.ReplyPacket(p, dhcp.ACK, s.serverIP, l.ip, leaseDuration,
		s.options.SelectOrderOrAll(options[dhcp.OptionParameterRequestList]))
}

func (s *dhcpServer) release(hwaddr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.leases {
		if s.leases[i].assigned && s.leases[i].hwaddr == hwaddr {
			s.leases[i].assigned = false
		}
	}
}

func (s *dhcpServer) find(hwaddr string) *lease {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for i := range s.leases {
		l := &s.leases[i]
		if l.assigned && l.hwaddr == hwaddr && l.expires.After(now) {
			return l
		}
	}
	return nil
}

func (s *dhcpServer) assign(hwaddr string) *lease {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	free := -1
	for i := range s.leases {
		l := &s.leases[i]
		if l.assigned && l.expires.Before(now) {
			l.assigned = false
		}
		if l.assigned && l.hwaddr == hwaddr {
			return l
		}
		if !l.assigned && free < 0 {
			free = i
		}
	}
	if free < 0 {
		return nil
	}

	l := &s.leases[free]
	l.hwaddr = hwaddr
	l.ip = dhcp.IPAdd(s.rangeStart, free)
	l.assigned = true
	l.expires = now.Add(leaseDuration)
	return l
}
