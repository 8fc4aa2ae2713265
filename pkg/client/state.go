// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package client

import "fmt"

// State of a Client.
type State int

const (
	Uninitialized State = iota
	SentHandshake
	SentReady0
	MeasuringPinger
	SentReady1
	MeasuringBandwidth
	SentReady2
	MeasuringContinuity
)

var stateNames = map[State]string{
	Uninitialized:       "UNINITIALIZED",
	SentHandshake:       "SENT_HANDSHAKE",
	SentReady0:          "SENT_READY_0",
	MeasuringPinger:     "MEASURING_PINGER",
	SentReady1:          "SENT_READY_1",
	MeasuringBandwidth:  "MEASURING_BANDWIDTH",
	SentReady2:          "SENT_READY_2",
	MeasuringContinuity: "MEASURING_CONTINUITY",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Stage of the negotiation this State belongs to, or -1 outside of one.
func (s State) Stage() int {
	switch s {
	case SentReady0, MeasuringPinger:
		return 0
	case SentReady1, MeasuringBandwidth:
		return 1
	case SentReady2, MeasuringContinuity:
		return 2
	default:
		return -1
	}
}

// awaitsReady checks if a READY response is expected.
func (s State) awaitsReady() bool {
	return s == SentReady0 || s == SentReady1 || s == SentReady2
}

func sentReady(stage int) State {
	return [...]State{SentReady0, SentReady1, SentReady2}[stage]
}

func measuring(stage int) State {
	return [...]State{MeasuringPinger, MeasuringBandwidth, MeasuringContinuity}[stage]
}
