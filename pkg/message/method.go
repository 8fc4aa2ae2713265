// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package message

// Version is the only supported protocol version.
const Version = "Q4S/1.0"

// DefaultURI is the Request-URI of requests created without one.
const DefaultURI = "q4s://localhost"

// Method of a Request.
type Method string

const (
	// Begin starts a new session during the handshake.
	Begin Method = "BEGIN"

	// Ready signals the readiness for the next negotiation stage.
	Ready Method = "READY"

	// Ping is a latency, jitter and packet loss probe.
	Ping Method = "PING"

	// Bwidth is a bandwidth probe.
	Bwidth Method = "BWIDTH"

	// Alert signals a degraded quality.
	Alert Method = "Q4S-ALERT"

	// Recovery signals a recovered quality.
	Recovery Method = "Q4S-RECOVERY"

	// Cancel ends a session.
	Cancel Method = "CANCEL"
)

var knownMethods = map[Method]struct{}{
	Begin:    {},
	Ready:    {},
	Ping:     {},
	Bwidth:   {},
	Alert:    {},
	Recovery: {},
	Cancel:   {},
}

// IsKnown checks if this Method is part of the protocol.
func (m Method) IsKnown() bool {
	_, ok := knownMethods[m]
	return ok
}

func (m Method) String() string {
	return string(m)
}
