/*
 * Copyright 2026 The FsrMesh Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

// Package radio abstracts the two roles a node's wifi hardware plays in
// the mesh: scanning for and joining a parent as a station (STA), and
// hosting children as an access point (AP). Everything above this
// package (the FSM, the mesh API) talks only to the Radio interface;
// the concrete Linux driver is the one place that shells out to iw,
// wpa_supplicant and hostapd, or touches netlink.
package radio

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"

	"fsrmesh/binding"
	"fsrmesh/meshcfg"
)

// WirelessKind distinguishes the two roles a radio can be asked to
// take on (spec §3 WirelessKind).
type WirelessKind int

const (
	// KindSTA is the uplink role: associate to a parent's AP.
	KindSTA WirelessKind = iota
	// KindAP is the downlink role: host an AP for children to join.
	KindAP
)

func (k WirelessKind) String() string {
	if k == KindAP {
		return "ap"
	}
	return "sta"
}

// Errors returned by Radio implementations, matching the RadioError
// variants of spec §3.
var (
	ErrNoCandidate     = errors.New("no scan candidate found")
	ErrAssociateFailed = errors.New("failed to associate with candidate")
	ErrAlreadyActive   = errors.New("requested role already active")
	ErrNotActive       = errors.New("requested role is not active")
	ErrDriverFailure   = errors.New("wireless driver command failed")
)

// ScanResult is one BSSID observed during a scan, decoded from its
// advertised SSID (spec §3).
type ScanResult struct {
	BSSID    net.HardwareAddr
	SSID     string
	RootMAC  meshcfg.ShortMAC
	Level    int
	RSSI     int // dBm
}

// STAConfig parameterizes Connect: the BSSID/SSID pair a prior Scan
// identified as the best candidate, plus the shared mesh PSK.
type STAConfig struct {
	BSSID    net.HardwareAddr
	SSID     string
	Password string
}

// APConfig parameterizes EnableAP: the SSID/PSK to advertise and the
// local subnet this node will hand out over DHCP to its children.
type APConfig struct {
	SSID     string
	Password string
	Subnet   *net.IPNet // e.g. 192.168.<level>.0/24, server takes the .1
}

// SubnetForLevel returns the /24 a node at this tree level hands out to
// its own children: 192.168.<level>.0/24. Two nodes at the same level
// in different branches of the tree get the same subnet — this mirrors
// the original firmware's address plan, which is keyed purely on level
// and never guarantees global uniqueness across the tree (Supplemented
// Feature: per-level subnetting is intentionally non-unique).
func SubnetForLevel(level int) *net.IPNet {
	return &net.IPNet{
		IP:   net.IPv4(192, 168, byte(level%256), 0),
		Mask: net.CIDRMask(24, 32),
	}
}

// ParentGatewayIP returns the address a node at childLevel expects to
// reach its parent at: the parent's own SoftAP address, which is
// always the .1 host of the parent's level-derived subnet.
func ParentGatewayIP(childLevel int) net.IP {
	parentLevel := childLevel - 1
	return net.IPv4(192, 168, byte(parentLevel%256), 1)
}

// Radio is the hardware-facing abstraction every mesh node drives.
// Implementations must be safe for concurrent use by the FSM and by
// diagnostic callers.
type Radio interface {
	// HWAddr returns this node's own hardware MAC address.
	HWAddr() (net.HardwareAddr, error)

	// Scan listens for mesh SSIDs for the given duration and returns
	// every mesh BSSID observed, decoded into ScanResult.
	Scan(ctx context.Context, meshPrefix string, duration time.Duration) ([]ScanResult, error)

	// ConnectSTA associates to cfg.BSSID as a station. It returns
	// ErrAssociateFailed if association does not complete before ctx is
	// done.
	ConnectSTA(ctx context.Context, cfg STAConfig) error

	// DisconnectSTA tears down any active station association. It is a
	// no-op if no STA link is up.
	DisconnectSTA(ctx context.Context) error

	// Linked reports whether the STA link is currently associated.
	Linked() bool

	// EnableAP brings up an AP on cfg.SSID/Password, assigns this node's
	// address on cfg.Subnet, and starts serving DHCP and heartbeats to
	// the AP interface. It returns ErrAlreadyActive if an AP is already
	// running.
	EnableAP(ctx context.Context, cfg APConfig) error

	// DisableAP tears down a running AP, including its DHCP and
	// heartbeat servers. If no AP is active it changes nothing and
	// returns ErrNotActive.
	DisableAP(ctx context.Context) error

	// BindingTable returns the MAC/IP binding table EnableAP created and
	// binding.Serve is feeding from child heartbeats, so routing.Server
	// shares the one table live child state actually lands in. It is nil
	// while no AP is active.
	BindingTable() *binding.Table
}
