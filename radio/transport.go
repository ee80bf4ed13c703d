/*
 * Copyright 2026 The FsrMesh Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

package radio

import (
	"context"
	"net"
	"strconv"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// DataPort is the fixed TCP port mesh nodes exchange DataPacket and
// RoutingReport frames on (spec §3/§6).
const DataPort = 9001

// SendFrame dials ip:DataPort and writes frame, which must already be
// one of the two wire-level encodings (a serialized DataPacket or
// Report). This is the lowest-level "send_to_ip" primitive the routing
// layer builds send_to_parent/send_to_child on top of.
func SendFrame(ctx context.Context, ip net.IP, frame []byte) error {
	d := net.Dialer{Timeout: 2 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(ip.String(), portString(DataPort)))
	if err != nil {
		return errors.Wrapf(err, "dial %s:%d", ip, DataPort)
	}
	defer conn.Close()

	conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	_, err = conn.Write(frame)
	return errors.Wrap(err, "write frame")
}

func portString(p int) string {
	return strconv.Itoa(p)
}

// transportListenConfig mirrors binding's SO_REUSEADDR listener so a restarted
// node can rebind its transport port immediately.
var transportListenConfig = net.ListenConfig{
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

// Serve listens on DataPort and invokes handle for every accepted
// connection, until ctx is cancelled. handle is responsible for reading
// and fully consuming its connection.
func Serve(ctx context.Context, handle func(net.Conn)) error {
	ln, err := transportListenConfig.Listen(ctx, "tcp", net.JoinHostPort("", portString(DataPort)))
	if err != nil {
		return errors.Wrap(err, "transport listen")
	}
	defer ln.Close()

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		ln.Close()
		close(done)
	}()

	tcpLn := ln.(*net.TCPListener)
	for {
		tcpLn.SetDeadline(time.Now().Add(time.Second))
		conn, err := tcpLn.Accept()
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
			return errors.Wrap(err, "transport accept")
		}
		go handle(conn)
	}
}
