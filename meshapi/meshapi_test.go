/*
 * Copyright 2026 The FsrMesh Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

package meshapi

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

// fakeRadio is a variant of the minimal stand-in used by the fsm
// package's own tests, duplicated here rather than exported from fsm
// since it is test-only scaffolding. Unlike the fsm copy, it mirrors LinuxDriver's binding-table
// lifecycle (created on EnableAP, torn down on DisableAP) so tests
// exercising onConnected see the same nil-until-AP-active behavior the
// real Radio interface guarantees.
type fakeRadio struct {
	mu          sync.Mutex
	scanResults []radio.ScanResult
	linked      bool
	apEnabled   bool
	bindTable   *binding.Table
}

func (f *fakeRadio) HWAddr() (net.HardwareAddr, error) { return net.HardwareAddr{0, 1, 2, 3, 4, 5}, nil }

func (f *fakeRadio) Scan(ctx context.Context, prefix string, d time.Duration) ([]radio.ScanResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scanResults, nil
}

func (f *fakeRadio) ConnectSTA(ctx context.Context, cfg radio.STAConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
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
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apEnabled = true
	f.bindTable = binding.NewTable()
	return nil
}

func (f *fakeRadio) DisableAP(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apEnabled = false
	f.bindTable = nil
	return nil
}

func (f *fakeRadio) BindingTable() *binding.Table {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bindTable
}

func newTestMesh(t *testing.T) (*Mesh, *fakeRadio) {
	cfg, err := meshcfg.New("FsrMesh", "testpassword")
	require.NoError(t, err)
	r := &fakeRadio{}
	m := New("AAAAAA", cfg, r, zap.NewNop().Sugar(), nil)
	return m, r
}

func TestSendBeforeConnectedFails(t *testing.T) {
	m, _ := newTestMesh(t)
	err := m.Send(context.Background(), "BBBBBB", []byte("hi"))
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestBroadcastBeforeConnectedFails(t *testing.T) {
	m, _ := newTestMesh(t)
	err := m.Broadcast(context.Background(), []byte("hi"))
	assert.ErrorIs(t, err, ErrNotConnected)
}

// TestBecomesRootAndSendsToSelf drives the FSM to root (no scan
// candidates), then exercises Send addressed at the root sentinel,
// which should deliver locally since a lone root is its own subtree.
func TestBecomesRootAndSendsToSelf(t *testing.T) {
	m, _ := newTestMesh(t)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	go m.Run(ctx)

	require.Eventually(t, m.Connected, 300*time.Millisecond, 10*time.Millisecond)

	err := m.Send(ctx, meshcfg.RootSentinel, []byte("ping"))
	require.NoError(t, err)

	recvCtx, recvCancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer recvCancel()
	p, err := m.Recv(recvCtx)
	require.NoError(t, err)
	assert.Equal(t, []byte("ping"), p.Data)
}
