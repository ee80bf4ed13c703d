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
	"syscall"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"fsrmesh/meshcfg"
)

// HeartbeatPort is the fixed TCP port a node's binding server listens
// on for child heartbeats (spec §3).
const HeartbeatPort = 9000

// SweepInterval is how often Serve ages every entry in the table.
const SweepInterval = time.Second

// acceptTimeout bounds each Accept call so Serve can notice ctx
// cancellation promptly instead of blocking forever in the kernel.
const acceptTimeout = time.Second

// listenConfig sets SO_REUSEADDR so a restarted node doesn't have to
// wait out TIME_WAIT on its own heartbeat port.
var listenConfig = net.ListenConfig{
	Control: func(_, _ string, c syscall.RawConn) error {
		var sockErr error
		err := c.Control(func(fd uintptr) {
			sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
		})
		if err != nil {
			return err
		}
		return sockErr
	},
}

// Serve runs the heartbeat listener and the periodic aging sweep until
// ctx is cancelled. Each accepted connection is expected to write a
// single 6-byte short MAC and then close; the table entry is keyed on
// that MAC and bound to the connection's peer IP.
func Serve(ctx context.Context, table *Table, log *zap.SugaredLogger) error {
	lc, err := listenConfig.Listen(ctx, "tcp", ":9000")
	if err != nil {
		return errors.Wrap(err, "binding server listen")
	}
	defer lc.Close()

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		lc.Close()
		close(done)
	}()

	go sweepLoop(ctx, table, log)

	ln := lc.(*net.TCPListener)
	for {
		ln.SetDeadline(time.Now().Add(acceptTimeout))
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				<-done
				return nil
			default:
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return errors.Wrap(err, "binding server accept")
		}
		go handleHeartbeat(conn, table, log)
	}
}

func handleHeartbeat(conn net.Conn, table *Table, log *zap.SugaredLogger) {
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	buf := make([]byte, meshcfg.ShortMACLen)
	if _, err := readFull(conn, buf); err != nil {
		log.Debugw("heartbeat read failed", "peer", conn.RemoteAddr(), "error", err)
		return
	}

	mac := meshcfg.ShortMAC(buf)
	if !mac.Valid() {
		log.Debugw("malformed heartbeat mac", "peer", conn.RemoteAddr(), "mac", string(buf))
		return
	}

	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return
	}
	table.Touch(mac, net.ParseIP(host))
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func sweepLoop(ctx context.Context, table *Table, log *zap.SugaredLogger) {
	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, mac := range table.Sweep() {
				log.Infow("binding aged out", "mac", mac)
			}
		}
	}
}
