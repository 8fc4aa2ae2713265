// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package session defines a Q4S Session and its session descriptor, an SDP
// like list of attribute lines exchanged during the handshake and with every
// READY, Q4S-ALERT and Q4S-RECOVERY.
package session

import (
	"fmt"
	"time"

	"github.com/q4s/q4s-go/pkg/alert"
	"github.com/q4s/q4s-go/pkg/measure"
)

// Session between a Q4S client and server.
type Session struct {
	// ID is assigned by the server during the handshake.
	ID string

	// Created is the session's creation time, rounded to seconds.
	Created time.Time

	// State is the owning state machine's last state name.
	State string

	Addresses Addresses

	// Quality are the negotiated targets.
	Quality measure.MeasurementSet

	// Measured is the last observation.
	Measured measure.MeasurementSet

	Procedure measure.Procedure

	Alert alert.State
}

// New Session with the default Procedure and alerting.
func New() *Session {
	return &Session{
		Created:   time.Now().Truncate(time.Second),
		Procedure: measure.DefaultProcedure(),
		Alert:     alert.NewState(),
	}
}

// Clone returns an independent copy.
func (s *Session) Clone() *Session {
	c := *s
	return &c
}

func (s *Session) String() string {
	return fmt.Sprintf("Session(%s, %s)", s.ID, s.State)
}
