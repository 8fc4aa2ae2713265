// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"
)

// dialTimeout limits establishing a TCP connection.
const dialTimeout = 5 * time.Second

// DialTCP connects to a TCP address. A positive localPort binds the local end, which may be reused right after a
// previous session on the same port.
func DialTCP(ctx context.Context, address string, localPort int) (*net.TCPConn, error) {
	dialer := &net.Dialer{
		Timeout: dialTimeout,
		Control: reuseControl,
	}
	if localPort > 0 {
		dialer.LocalAddr = &net.TCPAddr{Port: localPort}
	}

	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	return conn.(*net.TCPConn), nil
}

// ListenTCP on an address with reusable ports.
func ListenTCP(ctx context.Context, address string) (*net.TCPListener, error) {
	lc := net.ListenConfig{Control: reuseControl}

	ln, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	return ln.(*net.TCPListener), nil
}

// ListenUDP on an address with reusable ports.
func ListenUDP(ctx context.Context, address string) (net.PacketConn, error) {
	lc := net.ListenConfig{Control: reuseControl}
	return lc.ListenPacket(ctx, "udp", address)
}

// PortAddress joins a host and a numeric port.
func PortAddress(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// UDPAddr resolves a host and port into a *net.UDPAddr.
func UDPAddr(host string, port int) (*net.UDPAddr, error) {
	addr, err := net.ResolveUDPAddr("udp", PortAddress(host, port))
	if err != nil {
		return nil, fmt.Errorf("resolving UDP address: %w", err)
	}
	return addr, nil
}
