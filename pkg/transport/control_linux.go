// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

//go:build linux
// +build linux

package transport

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// Q4S clients announce fixed ports in their session descriptor. A following
// session binds the same ports while the previous sockets might still linger
// in TIME_WAIT, so both SO_REUSEADDR and SO_REUSEPORT are set.
//
// The socket options are based on the Linux socket(7) manual page.
// <https://man7.org/linux/man-pages/man7/socket.7.html>

// reuseControl is the Control function of net.Dialer and net.ListenConfig.
func reuseControl(_, _ string, rawConn syscall.RawConn) (err error) {
	opts := []int{unix.SO_REUSEADDR, unix.SO_REUSEPORT}

	ctrlErr := rawConn.Control(func(fd uintptr) {
		for _, opt := range opts {
			err = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, opt, 1)
			if err != nil {
				return
			}
		}
	})
	if ctrlErr != nil {
		return ctrlErr
	}

	return
}
