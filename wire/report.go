/*
 * Copyright 2026 The FsrMesh Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

package wire

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"fsrmesh/meshcfg"
)

// ReportEntry is one line of a RoutingReport: a node's short MAC and the
// reporter-local index of its parent, with -1 meaning "the reporter's
// own root vertex" (spec §3 RoutingReport).
type ReportEntry struct {
	MAC    meshcfg.ShortMAC
	Parent int // reporter-local index, or -1
}

// Report is a fully parsed routing report frame.
type Report struct {
	Entries []ReportEntry
}

// Serialize renders r as:
//
//	0\n<N>\n<mac0> <parent0>\n...<macN-1> <parentN-1>
//
// with no trailing newline (spec §3/§6: trailing newline is optional on
// receipt, and this implementation never emits one).
func (r Report) Serialize() []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "%c\n%d", FrameRouting, len(r.Entries))
	for _, e := range r.Entries {
		fmt.Fprintf(&b, "\n%s %d", e.MAC, e.Parent)
	}
	return []byte(b.String())
}

// ParseReport decodes a routing report frame produced by Serialize (or
// any conformant sender). Leading/trailing whitespace on each line is
// tolerated; anything else malformed is rejected.
func ParseReport(frame []byte) (Report, error) {
	text := strings.TrimRight(string(frame), "\n")
	lines := strings.Split(text, "\n")
	if len(lines) < 2 {
		return Report{}, errors.Errorf("routing report has %d lines, want >= 2", len(lines))
	}
	if strings.TrimSpace(lines[0]) != string(rune(FrameRouting)) {
		return Report{}, errors.Errorf("routing report has wrong frame tag %q", lines[0])
	}

	n, err := strconv.Atoi(strings.TrimSpace(lines[1]))
	if err != nil {
		return Report{}, errors.Wrapf(err, "bad entry count %q", lines[1])
	}
	if n < 0 {
		return Report{}, errors.Errorf("negative entry count %d", n)
	}
	if len(lines)-2 != n {
		return Report{}, errors.Errorf("routing report declares %d entries but has %d", n, len(lines)-2)
	}

	entries := make([]ReportEntry, 0, n)
	for i := 0; i < n; i++ {
		line := strings.TrimSpace(lines[2+i])
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return Report{}, errors.Errorf("malformed report line %q", line)
		}
		mac := meshcfg.ShortMAC(fields[0])
		if !mac.Valid() {
			return Report{}, errors.Errorf("malformed mac in report line %q", line)
		}
		parent, err := strconv.Atoi(fields[1])
		if err != nil {
			return Report{}, errors.Wrapf(err, "malformed parent index in %q", line)
		}
		if parent < -1 || parent >= n {
			return Report{}, errors.Errorf("parent index out of range in %q", line)
		}
		entries = append(entries, ReportEntry{MAC: mac, Parent: parent})
	}

	return Report{Entries: entries}, nil
}

// SelfOnlyReport builds the degenerate single-entry report a leaf
// periodically re-sends, or that a node with no live children emits
// after losing its last child (spec §4.4): "0\n1\n<self> -1".
func SelfOnlyReport(self meshcfg.ShortMAC) Report {
	return Report{Entries: []ReportEntry{{MAC: self, Parent: -1}}}
}
