/*
 * Copyright 2026 The FsrMesh Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

package meshutil

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the small set of counters/gauges exposed by a running mesh
// node. This is ambient observability (§2 component table has no
// "metrics" row, but spec.md's Non-goals don't exclude it either); it
// plays no role in protocol correctness.
//
// PacketsForwarded and PacketsDropped are updated by meshapi's local
// delivery path. BindingTableSize, TreeVertices and TreeLevel are
// registered but nothing in this repository sets them, so they stay 0.
type Metrics struct {
	PacketsForwarded prometheus.Counter
	PacketsDropped   *prometheus.CounterVec
	BindingTableSize prometheus.Gauge
	TreeVertices     prometheus.Gauge
	TreeLevel        prometheus.Gauge
}

// NewMetrics registers the mesh node's metrics with reg and returns the
// handle used to update them.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PacketsForwarded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "fsrmesh",
			Name:      "packets_forwarded_total",
			Help:      "Data packets handed by the routing task to this node's local delivery path, acks included.",
		}),
		PacketsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fsrmesh",
			Name:      "packets_dropped_total",
			Help:      "Data packets dropped, labeled by reason.",
		}, []string{"reason"}),
		BindingTableSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "fsrmesh",
			Name:      "binding_table_entries",
			Help:      "Current number of live MAC/IP bindings.",
		}),
		TreeVertices: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "fsrmesh",
			Name:      "routing_tree_vertices",
			Help:      "Number of vertices in this node's subtree graph.",
		}),
		TreeLevel: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "fsrmesh",
			Name:      "tree_level",
			Help:      "This node's current depth in the mesh tree.",
		}),
	}
}
