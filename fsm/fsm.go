/*
 * Copyright 2026 The FsrMesh Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

// Package fsm drives a node through the network-formation state
// machine: Startup, Scanning, JoinExisting, CreateRoot, Connected, with
// a rescan path back out of Connected on uplink loss (spec §4.3). The
// "dead" states present in the original firmware's prose
// (CheckRootCount, JoinNetwork, HandleRootConflict, RootElection) are
// folded into Connected's rescan handling, per the spec's own redesign
// note — there is nothing left for them to do once scan-candidate
// selection already picks the best root deterministically.
package fsm

import (
	"context"
	"math/rand"
	"sort"
	"time"

	"go.uber.org/zap"

	"fsrmesh/meshcfg"
	"fsrmesh/radio"
)

// State is one node of the network-formation FSM.
type State int

const (
	Startup State = iota
	Scanning
	JoinExisting
	CreateRoot
	Connected
)

func (s State) String() string {
	switch s {
	case Startup:
		return "startup"
	case Scanning:
		return "scanning"
	case JoinExisting:
		return "join_existing"
	case CreateRoot:
		return "create_root"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

const (
	scanDuration = 3 * time.Second
	// joinRetryBackoffBase and joinRetryBackoffJitter bound the jittered pause between a failed
	// sta_connect and the next scan, so a flapping candidate AP doesn't
	// drive a tight scan/connect spin loop (Supplemented Feature).
	joinRetryBackoffBase = 500 * time.Millisecond
	joinRetryBackoffJitter = 500 * time.Millisecond
	// linkPollInterval is how often Connected checks its STA uplink,
	// matching the reference firmware's 500ms connection-event-flag wait.
	linkPollInterval = 500 * time.Millisecond
	// rescanInterval is how often a connected non-root node re-scans
	// looking for a mesh with a lexicographically greater root MAC to
	// abandon its current parent for (spec §4.3 Connected: "On timeout
	// or CONNECT: re-scan").
	rescanInterval = 5 * time.Second
)

// Machine owns the state transitions for one node. Everything it needs
// to act on a transition is injected so it stays independent of the
// concrete Radio/Tree/Config wiring meshapi assembles.
type Machine struct {
	Config     *meshcfg.Config
	Radio      radio.Radio
	Self       meshcfg.ShortMAC
	Log        *zap.SugaredLogger

	// OnConnected is invoked once, right after entering Connected, with
	// this node's resolved tree level. Typically wires up the routing
	// server and heartbeat client/server for the role just taken on.
	OnConnected func(level int)
	// OnDisconnected is invoked once, right after leaving Connected back
	// to Scanning, so the caller can tear down per-role tasks.
	OnDisconnected func()

	state     State
	candidate radio.ScanResult
}

// State returns the machine's current state.
func (m *Machine) State() State {
	return m.state
}

// Run drives the FSM until ctx is cancelled.
func (m *Machine) Run(ctx context.Context) {
	m.state = Startup
	for {
		if ctx.Err() != nil {
			return
		}
		switch m.state {
		case Startup:
			m.state = Scanning
		case Scanning:
			m.state = m.runScanning(ctx)
		case JoinExisting:
			m.state = m.runJoinExisting(ctx)
		case CreateRoot:
			m.state = m.runCreateRoot(ctx)
		case Connected:
			m.state = m.runConnected(ctx)
		}
	}
}

func (m *Machine) runScanning(ctx context.Context) State {
	results, err := m.Radio.Scan(ctx, m.Config.Prefix(), scanDuration)
	if err != nil {
		m.Log.Warnw("scan failed", "error", err)
	}
	if len(results) == 0 {
		m.Log.Infow("no mesh candidates found, becoming root")
		return CreateRoot
	}

	best := bestCandidate(results)
	m.Log.Infow("selected join candidate", "root", best.RootMAC, "level", best.Level, "rssi", best.RSSI)
	m.candidate = best
	return JoinExisting
}

// bestCandidate applies the parent-selection tiebreak order from §4.3:
// root MAC (lexicographically greatest short MAC wins the election) >
// RSSI (stronger signal preferred) > shallowness (lower level
// preferred, to keep the tree flat).
func bestCandidate(results []radio.ScanResult) radio.ScanResult {
	sorted := append([]radio.ScanResult(nil), results...)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.RootMAC != b.RootMAC {
			return a.RootMAC > b.RootMAC
		}
		if a.RSSI != b.RSSI {
			return a.RSSI > b.RSSI
		}
		return a.Level < b.Level
	})
	return sorted[0]
}

func (m *Machine) runJoinExisting(ctx context.Context) State {
	cfg := radio.STAConfig{
		BSSID:    m.candidate.BSSID,
		SSID:     m.candidate.SSID,
		Password: m.Config.Password(),
	}
	if err := m.Radio.ConnectSTA(ctx, cfg); err != nil {
		m.Log.Warnw("join failed, backing off before rescanning", "root", m.candidate.RootMAC, "error", err)
		backoff := joinRetryBackoffBase + time.Duration(rand.Int63n(int64(joinRetryBackoffJitter)))
		select {
		case <-ctx.Done():
		case <-time.After(backoff):
		}
		return Scanning
	}

	m.Config.SetRoot(m.candidate.RootMAC, m.candidate.Level+1)
	m.Log.Infow("joined mesh", "root", m.candidate.RootMAC, "level", m.candidate.Level+1)
	return Connected
}

func (m *Machine) runCreateRoot(ctx context.Context) State {
	m.Config.SetRoot(m.Self, 0)
	m.Log.Infow("elected self as root", "mac", m.Self)
	return Connected
}

func (m *Machine) runConnected(ctx context.Context) State {
	level := m.Config.Level()
	ssid, err := m.Config.SSID()
	if err != nil {
		m.Log.Errorw("cannot compute own SSID", "error", err)
		return Scanning
	}

	apCfg := radio.APConfig{
		SSID:     ssid,
		Password: m.Config.Password(),
		Subnet:   radio.SubnetForLevel(level),
	}
	if err := m.Radio.EnableAP(ctx, apCfg); err != nil && err != radio.ErrAlreadyActive {
		m.Log.Errorw("failed to enable own AP", "error", err)
	}

	if m.OnConnected != nil {
		m.OnConnected(level)
	}

	isRoot := level == 0
	defer func() {
		if m.OnDisconnected != nil {
			m.OnDisconnected()
		}
	}()

	if isRoot {
		// The root has no uplink to lose; it stays Connected until ctx
		// is cancelled.
		<-ctx.Done()
		return Connected
	}

	linkTicker := time.NewTicker(linkPollInterval)
	defer linkTicker.Stop()
	rescanTicker := time.NewTicker(rescanInterval)
	defer rescanTicker.Stop()
	for {
		select {
		case <-ctx.Done():
			return Connected
		case <-linkTicker.C:
			if !m.Radio.Linked() {
				root, _ := m.Config.RootMAC()
				m.Log.Warnw("lost uplink, rescanning", "root", root)
				m.Config.ClearRoot()
				m.Radio.DisableAP(ctx)
				return Scanning
			}
		case <-rescanTicker.C:
			if m.foundBetterRoot(ctx) {
				oldRoot, _ := m.Config.RootMAC()
				m.Log.Warnw("better root found, abandoning parent", "old_root", oldRoot)
				m.Config.ClearRoot()
				m.Radio.DisconnectSTA(ctx)
				m.Radio.DisableAP(ctx)
				return Scanning
			}
		}
	}
}

// foundBetterRoot re-scans for mesh candidates and reports whether any
// observed root short MAC is strictly greater than the one this node is
// currently attached under (spec §4.3 Connected rescan rule). Scan
// failures are treated as "nothing better found" — the node stays put
// rather than churning on a flaky radio.
func (m *Machine) foundBetterRoot(ctx context.Context) bool {
	root, ok := m.Config.RootMAC()
	if !ok {
		return false
	}

	results, err := m.Radio.Scan(ctx, m.Config.Prefix(), scanDuration)
	if err != nil {
		m.Log.Warnw("rescan failed, staying with current parent", "error", err)
		return false
	}
	for _, r := range results {
		if r.RootMAC > root {
			return true
		}
	}
	return false
}
