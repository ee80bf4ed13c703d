/*
 * Copyright 2026 The FsrMesh Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

package meshapi

import (
	"encoding/json"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on http.DefaultServeMux

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fsrmesh/meshcfg"
)

// TreeEntry is one node of a subtree dump, addressed for JSON diagnostic
// output (meshctl tree), not for wire transmission.
type TreeEntry struct {
	MAC    meshcfg.ShortMAC `json:"mac"`
	Parent meshcfg.ShortMAC `json:"parent,omitempty"`
}

// BindingEntry is one row of a binding-table dump (meshctl bindings).
type BindingEntry struct {
	MAC string `json:"mac"`
	IP  string `json:"ip"`
}

// TreeSnapshot returns the current subtree as a flat, JSON-friendly list.
// It is nil while this node has no Tree yet (not Connected).
func (m *Mesh) TreeSnapshot() []TreeEntry {
	if m.tree == nil {
		return nil
	}
	report := m.tree.GenerateReport()
	entries := report.Entries
	out := make([]TreeEntry, 0, len(entries))
	for _, e := range entries {
		te := TreeEntry{MAC: e.MAC}
		if e.Parent >= 0 && e.Parent < len(entries) {
			te.Parent = entries[e.Parent].MAC
		}
		out = append(out, te)
	}
	return out
}

// BindingSnapshot returns the current MAC/IP binding table as a flat,
// JSON-friendly list. It is nil while this node has no AP-role children.
func (m *Mesh) BindingSnapshot() []BindingEntry {
	if m.binding == nil {
		return nil
	}
	var out []BindingEntry
	for _, mac := range m.binding.Keys() {
		if ip, ok := m.binding.Lookup(mac); ok {
			out = append(out, BindingEntry{MAC: string(mac), IP: ip.String()})
		}
	}
	return out
}

// DiagHandler serves a node's diagnostic surface: a JSON routing-tree
// dump, a JSON binding-table dump, a liveness probe, Prometheus metrics,
// and pprof profiles — the in-process equivalent of the original
// firmware's thin CLI test harness (spec §1's "application-facing test
// harnesses" are explicitly out of core scope; this is the ambient
// observability layer that replaces it, not a protocol feature).
func (m *Mesh) DiagHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if m.Connected() {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	mux.HandleFunc("/tree", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, m.TreeSnapshot())
	})
	mux.HandleFunc("/bindings", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, m.BindingSnapshot())
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/debug/pprof/", http.DefaultServeMux)
	return mux
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
