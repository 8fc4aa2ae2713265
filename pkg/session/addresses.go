// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"fmt"
	"net"
	"strconv"
)

// Ports of the Q4S protocol channels.
type Ports struct {
	TCP int
	UDP int
}

// AppPorts of the application channels. Each might be a single port or a
// range like "500-505"; these are informational only.
type AppPorts struct {
	TCP string
	UDP string
}

// Addresses of both session peers.
type Addresses struct {
	// ClientAddressType and ServerAddressType are IP versions, 4 or 6.
	ClientAddressType int
	ClientAddress     string
	ServerAddressType int
	ServerAddress     string

	ClientQ4SPorts Ports
	ServerQ4SPorts Ports

	ClientAppPorts AppPorts
	ServerAppPorts AppPorts
}

// AddressType derives the IP version of an address, defaulting to 4.
func AddressType(addr string) int {
	if ip := net.ParseIP(addr); ip != nil && ip.To4() == nil {
		return 6
	}
	return 4
}

// SetClientAddress and its type.
func (a *Addresses) SetClientAddress(addr string) {
	a.ClientAddress = addr
	a.ClientAddressType = AddressType(addr)
}

// SetServerAddress and its type.
func (a *Addresses) SetServerAddress(addr string) {
	a.ServerAddress = addr
	a.ServerAddressType = AddressType(addr)
}

// ServerTCP is the host:port of the server's Q4S TCP channel.
func (a Addresses) ServerTCP() string {
	return net.JoinHostPort(a.ServerAddress, strconv.Itoa(a.ServerQ4SPorts.TCP))
}

// ServerUDP is the host:port of the server's Q4S UDP channel.
func (a Addresses) ServerUDP() string {
	return net.JoinHostPort(a.ServerAddress, strconv.Itoa(a.ServerQ4SPorts.UDP))
}

// ClientUDP is the host:port of the client's Q4S UDP channel.
func (a Addresses) ClientUDP() string {
	return net.JoinHostPort(a.ClientAddress, strconv.Itoa(a.ClientQ4SPorts.UDP))
}

func (a Addresses) String() string {
	return fmt.Sprintf("client %s tcp/%d udp/%d, server %s tcp/%d udp/%d",
		a.ClientAddress, a.ClientQ4SPorts.TCP, a.ClientQ4SPorts.UDP,
		a.ServerAddress, a.ServerQ4SPorts.TCP, a.ServerQ4SPorts.UDP)
}

func addressTypeName(t int) string {
	if t == 6 {
		return "IP6"
	}
	return "IP4"
}

func parseAddressType(s string) (int, bool) {
	switch s {
	case "IP4", "4":
		return 4, true
	case "IP6", "6":
		return 6, true
	default:
		return 0, false
	}
}
