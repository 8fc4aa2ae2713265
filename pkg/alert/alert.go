// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package alert rate-limits the signaling of degraded and recovered quality.
//
// Each sent alert raises the per-direction QoS level, each sent recovery
// lowers it. Alerts and recoveries are only allowed after their respective
// pause has passed since the last one, and only while the levels leave room
// to raise or lower them.
package alert

import (
	"fmt"
	"strings"
	"time"
)

// MaxLevel is the highest QoS level.
const MaxLevel = 8

// DefaultPause for both alerts and recoveries.
const DefaultPause = 100 * time.Millisecond

// Mode determines the receiver of alerts.
type Mode int

const (
	// Reactive sends alerts to the client.
	Reactive Mode = iota

	// Q4SAwareNetwork leaves the reaction to the network.
	Q4SAwareNetwork
)

func (m Mode) String() string {
	switch m {
	case Reactive:
		return "Reactive"
	case Q4SAwareNetwork:
		return "Q4S-aware-network"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode from its String representation, compared case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch {
	case strings.EqualFold(s, Reactive.String()):
		return Reactive, nil
	case strings.EqualFold(s, Q4SAwareNetwork.String()):
		return Q4SAwareNetwork, nil
	default:
		return Reactive, fmt.Errorf("unknown alerting mode %q", s)
	}
}

// Signal resulting from an evaluation.
type Signal int

const (
	// None requires no action.
	None Signal = iota

	// SendAlert requires a Q4S-ALERT.
	SendAlert

	// SendRecovery requires a Q4S-RECOVERY.
	SendRecovery
)

func (s Signal) String() string {
	switch s {
	case SendAlert:
		return "alert"
	case SendRecovery:
		return "recovery"
	default:
		return "none"
	}
}

// State of a session's alerting.
type State struct {
	QosLevelUp   int
	QosLevelDown int

	LastAlert    time.Time
	LastRecovery time.Time

	AlertPause    time.Duration
	RecoveryPause time.Duration

	Mode Mode
}

// NewState with default pauses in Reactive mode.
func NewState() State {
	return State{
		AlertPause:    DefaultPause,
		RecoveryPause: DefaultPause,
		Mode:          Reactive,
	}
}

// CanAlertAt checks if an alert might be sent at the given time.
func (s *State) CanAlertAt(now time.Time) bool {
	return now.Sub(s.LastAlert) >= s.AlertPause &&
		s.QosLevelUp < MaxLevel && s.QosLevelDown < MaxLevel
}

// CanAlert checks if an alert might be sent now.
func (s *State) CanAlert() bool {
	return s.CanAlertAt(time.Now())
}

// CanRecoveryAt checks if a recovery might be sent at the given time.
func (s *State) CanRecoveryAt(now time.Time) bool {
	return now.Sub(s.LastRecovery) >= s.RecoveryPause &&
		s.QosLevelUp > 0 && s.QosLevelDown > 0
}

// CanRecovery checks if a recovery might be sent now.
func (s *State) CanRecovery() bool {
	return s.CanRecoveryAt(time.Now())
}

// SentAlertAt records an alert and raises both levels.
func (s *State) SentAlertAt(now time.Time) {
	s.LastAlert = now
	s.QosLevelUp = min(s.QosLevelUp+1, MaxLevel)
	s.QosLevelDown = min(s.QosLevelDown+1, MaxLevel)
}

// SentAlert records an alert now.
func (s *State) SentAlert() {
	s.SentAlertAt(time.Now())
}

// SentRecoveryAt records a recovery and lowers both levels.
func (s *State) SentRecoveryAt(now time.Time) {
	s.LastRecovery = now
	s.QosLevelUp = max(s.QosLevelUp-1, 0)
	s.QosLevelDown = max(s.QosLevelDown-1, 0)
}

// SentRecovery records a recovery now.
func (s *State) SentRecovery() {
	s.SentRecoveryAt(time.Now())
}

// Evaluate a quality check's result. A returned SendAlert or SendRecovery is
// already recorded as sent.
func (s *State) Evaluate(met bool, now time.Time) Signal {
	switch {
	case !met && s.CanAlertAt(now):
		s.SentAlertAt(now)
		return SendAlert

	case met && s.CanRecoveryAt(now):
		s.SentRecoveryAt(now)
		return SendRecovery

	default:
		return None
	}
}

func (s State) String() string {
	return fmt.Sprintf("alert.State(up=%d, down=%d, mode=%v)", s.QosLevelUp, s.QosLevelDown, s.Mode)
}
