// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package client

import (
	"fmt"

	"github.com/q4s/q4s-go/pkg/measure"
)

// EventKind distinguishes Events.
type EventKind int

const (
	// EventHandshake follows a successful handshake.
	EventHandshake EventKind = iota

	// EventMeasure reports a stage's measurement and its evaluation.
	EventMeasure

	// EventCompleted is sent when the negotiation has passed and the continuity stage begins.
	EventCompleted

	// EventAlert reports a received Q4S-ALERT.
	EventAlert

	// EventRecovery reports a received Q4S-RECOVERY.
	EventRecovery

	// EventError reports the failure ending a session.
	EventError

	// EventClosed is the last Event of a session.
	EventClosed
)

func (k EventKind) String() string {
	switch k {
	case EventHandshake:
		return "handshake"
	case EventMeasure:
		return "measure"
	case EventCompleted:
		return "completed"
	case EventAlert:
		return "alert"
	case EventRecovery:
		return "recovery"
	case EventError:
		return "error"
	case EventClosed:
		return "closed"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event of a Client's session.
type Event struct {
	Kind EventKind

	// Stage of an EventMeasure.
	Stage int

	// Measured and Met of an EventMeasure.
	Measured measure.MeasurementSet
	Met      bool

	// TriggerURI of an EventCompleted, might be empty.
	TriggerURI string

	// Err of an EventError.
	Err error
}

func (e Event) String() string {
	switch e.Kind {
	case EventMeasure:
		return fmt.Sprintf("Event(measure, stage %d, met %t, %v)", e.Stage, e.Met, e.Measured)
	case EventCompleted:
		return fmt.Sprintf("Event(completed, %q)", e.TriggerURI)
	case EventError:
		return fmt.Sprintf("Event(error, %v)", e.Err)
	default:
		return fmt.Sprintf("Event(%v)", e.Kind)
	}
}
