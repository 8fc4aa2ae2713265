// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package transport carries Q4S messages over TCP streams and UDP datagrams.
//
// A StreamSwitch exchanges the messages of a TCP connection with channels. A
// PacketMux shares one UDP socket between multiple sessions, routing each
// datagram by its Session-Id header to a PacketRoute. The Listener accepts
// TCP connections until being closed.
package transport
