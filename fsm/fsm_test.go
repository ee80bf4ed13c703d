/*
 * Copyright 2026 The FsrMesh Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

package fsm

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fsrmesh/binding"
	"fsrmesh/meshcfg"
	"fsrmesh/radio"
)

type fakeRadio struct {
	mu        sync.Mutex
	scanResults []radio.ScanResult
	linked    bool
	connectErr error
	apEnabled bool
}

func (f *fakeRadio) HWAddr() (net.HardwareAddr, error) { return net.HardwareAddr{0, 1, 2, 3, 4, 5}, nil }

func (f *fakeRadio) Scan(ctx context.Context, prefix string, d time.Duration) ([]radio.ScanResult, error) {
	return f.scanResults, nil
}

func (f *fakeRadio) ConnectSTA(ctx context.Context, cfg radio.STAConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.linked = true
	return nil
}

func (f *fakeRadio) DisconnectSTA(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.linked = false
	return nil
}

func (f *fakeRadio) Linked() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.linked
}

func (f *fakeRadio) EnableAP(ctx context.Context, cfg radio.APConfig) error {
	f.apEnabled = true
	return nil
}

func (f *fakeRadio) DisableAP(ctx context.Context) error {
	f.apEnabled = false
	return nil
}

func (f *fakeRadio) BindingTable() *binding.Table {
	return nil
}

func newTestMachine(t *testing.T, r *fakeRadio) *Machine {
	cfg, err := meshcfg.New("FsrMesh", "testpassword")
	require.NoError(t, err)
	return &Machine{
		Config: cfg,
		Radio:  r,
		Self:   "AAAAAA",
		Log:    zap.NewNop().Sugar(),
	}
}

func TestBecomesRootWhenNoCandidates(t *testing.T) {
	r := &fakeRadio{}
	m := newTestMachine(t, r)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	go m.Run(ctx)

	<-ctx.Done()
	root, ok := m.Config.RootMAC()
	require.True(t, ok)
	assert.Equal(t, meshcfg.ShortMAC("AAAAAA"), root)
	assert.Equal(t, 0, m.Config.Level())
}

func TestJoinsBestCandidate(t *testing.T) {
	r := &fakeRadio{scanResults: []radio.ScanResult{
		{RootMAC: "BBBBBB", Level: 1, RSSI: -70, SSID: "FsrMesh_BBBBBB_1"},
		{RootMAC: "CCCCCC", Level: 0, RSSI: -40, SSID: "FsrMesh_CCCCCC_0"},
	}}
	m := newTestMachine(t, r)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	go m.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	root, ok := m.Config.RootMAC()
	require.True(t, ok)
	assert.Equal(t, meshcfg.ShortMAC("CCCCCC"), root)
	assert.Equal(t, 1, m.Config.Level())
}

func TestBestCandidateTiebreak(t *testing.T) {
	results := []radio.ScanResult{
		{RootMAC: "AAAAAA", RSSI: -30, Level: 2},
		{RootMAC: "ZZZZZZ", RSSI: -90, Level: 5},
	}
	best := bestCandidate(results)
	assert.Equal(t, meshcfg.ShortMAC("ZZZZZZ"), best.RootMAC, "root mac comparison wins over rssi")
}

func TestFoundBetterRootOnlyForGreaterRootMAC(t *testing.T) {
	r := &fakeRadio{}
	m := newTestMachine(t, r)
	m.Config.SetRoot("BBBBBB", 1)

	assert.False(t, m.foundBetterRoot(context.Background()), "no scan results yet, nothing better")

	r.mu.Lock()
	r.scanResults = []radio.ScanResult{{RootMAC: "CCCCCC", Level: 0, RSSI: -40}}
	r.mu.Unlock()
	assert.True(t, m.foundBetterRoot(context.Background()), "CCCCCC outranks the pinned BBBBBB root")

	r.mu.Lock()
	r.scanResults = []radio.ScanResult{{RootMAC: "AAAAAA", Level: 0, RSSI: -40}}
	r.mu.Unlock()
	assert.False(t, m.foundBetterRoot(context.Background()), "AAAAAA does not outrank BBBBBB")
}

func TestBestCandidateRSSITiebreak(t *testing.T) {
	results := []radio.ScanResult{
		{RootMAC: "AAAAAA", RSSI: -90, Level: 1},
		{RootMAC: "AAAAAA", RSSI: -30, Level: 3},
	}
	best := bestCandidate(results)
	assert.Equal(t, -30, best.RSSI)
}
