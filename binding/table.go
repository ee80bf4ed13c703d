/*
 * Copyright 2026 The FsrMesh Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

// Package binding maintains the per-AP MAC/IP binding table (spec §3
// BindingTable) and the heartbeat protocol that keeps it populated: a
// connected child periodically announces itself to its parent over TCP
// port 9000, and the parent ages out any child it stops hearing from.
package binding

import (
	"net"
	"sync"

	"github.com/bluele/gcache"

	"fsrmesh/meshcfg"
)

// AgeThreshold is the number of consecutive missed heartbeat sweeps
// after which an entry is evicted (spec §3 miss_count > AGE_THRESHOLD).
const AgeThreshold = 30

// DefaultCapacity bounds the binding table so a runaway mesh can't grow
// it without limit; it is far larger than any deployment's expected
// child count.
const DefaultCapacity = 4096

type entry struct {
	mu        sync.Mutex
	ip        net.IP
	missCount int
}

// Table is the soft-state MAC/IP binding table an AP maintains for its
// directly-associated stations. Entries are refreshed by Touch on every
// heartbeat and evicted by Sweep once they go quiet for too long.
//
// Grounded on ap_common/device's soft-state lease cache idiom, backed
// here by a bluele/gcache LRU store as the DOMAIN STACK calls for.
type Table struct {
	cache gcache.Cache
}

// NewTable returns an empty binding table.
func NewTable() *Table {
	return &Table{cache: gcache.New(DefaultCapacity).LRU().Build()}
}

// Touch records a heartbeat from mac at ip, resetting its miss count.
func (t *Table) Touch(mac meshcfg.ShortMAC, ip net.IP) {
	if v, err := t.cache.Get(string(mac)); err == nil {
		e := v.(*entry)
		e.mu.Lock()
		e.ip = ip
		e.missCount = 0
		e.mu.Unlock()
		return
	}
	_ = t.cache.Set(string(mac), &entry{ip: ip})
}

// Lookup returns the IP currently bound to mac, if any.
func (t *Table) Lookup(mac meshcfg.ShortMAC) (net.IP, bool) {
	v, err := t.cache.Get(string(mac))
	if err != nil {
		return nil, false
	}
	e := v.(*entry)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ip, true
}

// FindMAC returns the short MAC currently bound to ip, if any. This is
// the reverse lookup routing.Server.arrivalMAC uses to identify which child
// sent an inbound TCP connection by its peer address.
func (t *Table) FindMAC(ip net.IP) (meshcfg.ShortMAC, bool) {
	for _, k := range t.cache.Keys(false) {
		v, err := t.cache.Get(k)
		if err != nil {
			continue
		}
		e := v.(*entry)
		e.mu.Lock()
		match := e.ip.Equal(ip)
		e.mu.Unlock()
		if match {
			return meshcfg.ShortMAC(k.(string)), true
		}
	}
	return "", false
}

// Len returns the number of live bindings.
func (t *Table) Len() int {
	return t.cache.Len(false)
}

// Keys returns the short MACs currently bound, in no particular order.
// This is the "get_all_child_macs" primitive of spec §4.1, used both by
// forwarding (stale-child GC) and by diagnostic dumps.
func (t *Table) Keys() []meshcfg.ShortMAC {
	raw := t.cache.Keys(false)
	macs := make([]meshcfg.ShortMAC, 0, len(raw))
	for _, k := range raw {
		macs = append(macs, meshcfg.ShortMAC(k.(string)))
	}
	return macs
}

// Sweep increments every entry's miss count by one and evicts any entry
// that crosses AgeThreshold. It is called once per heartbeat-sweep
// interval by the binding server's age loop. It returns the short MACs
// evicted in this sweep.
func (t *Table) Sweep() []meshcfg.ShortMAC {
	var evicted []meshcfg.ShortMAC
	for _, k := range t.cache.Keys(false) {
		v, err := t.cache.Get(k)
		if err != nil {
			continue
		}
		e := v.(*entry)
		e.mu.Lock()
		e.missCount++
		dead := e.missCount > AgeThreshold
		e.mu.Unlock()
		if dead {
			t.cache.Remove(k)
			evicted = append(evicted, meshcfg.ShortMAC(k.(string)))
		}
	}
	return evicted
}
