// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package discovery finds addresses: a Q4S server's handshake endpoint through UDP multicast Announcements within the
// local network, and a host's own private or public address to be announced in a session descriptor.
package discovery

const (
	// address4 is the default multicast IPv4 address used for discovery.
	address4 = "239.255.25.3"

	// address6 is the default multicast IPv6 address used for discovery.
	address6 = "ff02::2503"

	// port is the default multicast UDP port used for discovery.
	port = 2506
)
