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
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHandleHeartbeatPopulatesTable(t *testing.T) {
	tbl := NewTable()
	log := zap.NewNop().Sugar()

	srv, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		for {
			conn, err := srv.Accept()
			if err != nil {
				return
			}
			go handleHeartbeat(conn, tbl, log)
		}
	}()

	linked := func() bool { return true }
	clientCtx, clientCancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer clientCancel()
	go RunHeartbeatClient(clientCtx, srv.Addr().String(), "AABBCC", linked, log)

	deadline := time.After(2 * time.Second)
	for {
		if _, ok := tbl.Lookup("AABBCC"); ok {
			return
		}
		select {
		case <-deadline:
			t.Fatal("binding never populated from heartbeat")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
