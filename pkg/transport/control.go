// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

//go:build !linux
// +build !linux

package transport

import "syscall"

// reuseControl leaves the socket options untouched for operating systems next to Linux.
func reuseControl(_, _ string, _ syscall.RawConn) error {
	return nil
}
