/*
 * Copyright 2026 The FsrMesh Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

package binding

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"

	"fsrmesh/meshcfg"
)

// HeartbeatInterval is how often a connected child re-announces itself
// to its parent's binding server (spec §3).
const HeartbeatInterval = 100 * time.Millisecond

// dialTimeout bounds each individual heartbeat attempt so a single slow
// or unreachable parent can't stall the client loop past one tick.
const dialTimeout = 500 * time.Millisecond

// RunHeartbeatClient sends a heartbeat containing self to parentAddr
// (host:port of the parent's HeartbeatPort) every HeartbeatInterval,
// until ctx is cancelled. linked is polled before each attempt; while
// it returns false (no current STA uplink) heartbeats are suppressed,
// matching the firmware's "only heartbeat while associated" behavior.
func RunHeartbeatClient(ctx context.Context, parentAddr string, self meshcfg.ShortMAC, linked func() bool, log *zap.SugaredLogger) {
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !linked() {
				continue
			}
			if err := sendHeartbeat(parentAddr, self); err != nil {
				log.Debugw("heartbeat send failed", "parent", parentAddr, "error", err)
			}
		}
	}
}

func sendHeartbeat(parentAddr string, self meshcfg.ShortMAC) error {
	conn, err := net.DialTimeout("tcp", parentAddr, dialTimeout)
	if err != nil {
		return err
	}
	defer conn.Close()

	conn.SetWriteDeadline(time.Now().Add(dialTimeout))
	_, err = conn.Write([]byte(self))
	return err
}
