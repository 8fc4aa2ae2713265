// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package server

import "fmt"

// State of a server-side session.
type State int

const (
	// AwaitingConnection is a Session after its handshake, before its control channel is bound.
	AwaitingConnection State = iota
	HandshakeDone
	MeasuringPinger
	PassReady0
	MeasuringBandwidth
	PassReady1
	MeasuringContinuity
)

var stateNames = map[State]string{
	AwaitingConnection:  "AWAITING_CONNECTION",
	HandshakeDone:       "HANDSHAKE_DONE",
	MeasuringPinger:     "MEASURING_PINGER",
	PassReady0:          "PASS_READY_0",
	MeasuringBandwidth:  "MEASURING_BANDWIDTH",
	PassReady1:          "PASS_READY_1",
	MeasuringContinuity: "MEASURING_CONTINUITY",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}
