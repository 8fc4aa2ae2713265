// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package alert

import (
	"testing"
	"time"
)

func TestCanAlertPause(t *testing.T) {
	s := NewState()
	s.AlertPause = time.Second
	now := time.Now()

	if !s.CanAlertAt(now) {
		t.Fatal("first alert was not allowed")
	}
	s.SentAlertAt(now)

	if s.CanAlertAt(now.Add(500 * time.Millisecond)) {
		t.Fatal("second alert within the pause was allowed")
	}
	if !s.CanAlertAt(now.Add(time.Second)) {
		t.Fatal("alert after the pause was not allowed")
	}
}

func TestCanAlertMaxLevel(t *testing.T) {
	s := NewState()
	now := time.Now()

	for i := 0; i < MaxLevel; i++ {
		now = now.Add(s.AlertPause)
		if !s.CanAlertAt(now) {
			t.Fatalf("alert %d was not allowed", i)
		}
		s.SentAlertAt(now)
	}

	if s.QosLevelUp != MaxLevel || s.QosLevelDown != MaxLevel {
		t.Fatalf("levels are %d/%d", s.QosLevelUp, s.QosLevelDown)
	}
	if s.CanAlertAt(now.Add(time.Hour)) {
		t.Fatal("alert above the maximum level was allowed")
	}

	now = now.Add(time.Hour)
	if !s.CanRecoveryAt(now) {
		t.Fatal("recovery was not allowed")
	}
	s.SentRecoveryAt(now)

	if !s.CanAlertAt(now.Add(time.Hour)) {
		t.Fatal("alert after a recovery was not allowed")
	}
}

func TestCanRecovery(t *testing.T) {
	s := NewState()
	now := time.Now()

	if s.CanRecoveryAt(now) {
		t.Fatal("recovery at level zero was allowed")
	}

	s.SentAlertAt(now)
	s.SentRecoveryAt(now)
	if s.CanRecoveryAt(now.Add(s.RecoveryPause / 2)) {
		t.Fatal("recovery within the pause was allowed")
	}

	s.SentRecoveryAt(now)
	if s.QosLevelUp != 0 || s.QosLevelDown != 0 {
		t.Fatalf("levels dropped below zero: %d/%d", s.QosLevelUp, s.QosLevelDown)
	}
}

func TestEvaluate(t *testing.T) {
	s := NewState()
	s.AlertPause = time.Second
	s.RecoveryPause = time.Second
	now := time.Now()

	tests := []struct {
		offset time.Duration
		met    bool
		signal Signal
	}{
		{0, false, SendAlert},
		{10 * time.Millisecond, false, None},
		{20 * time.Millisecond, true, SendRecovery},
		{30 * time.Millisecond, true, None},
		{1100 * time.Millisecond, false, SendAlert},
		{2200 * time.Millisecond, false, SendAlert},
		{2300 * time.Millisecond, true, SendRecovery},
	}

	for i, test := range tests {
		if signal := s.Evaluate(test.met, now.Add(test.offset)); signal != test.signal {
			t.Fatalf("step %d: Evaluate = %v, expected %v", i, signal, test.signal)
		}
	}

	if s.QosLevelUp != 1 {
		t.Fatalf("level is %d", s.QosLevelUp)
	}
}

func TestParseMode(t *testing.T) {
	for _, m := range []Mode{Reactive, Q4SAwareNetwork} {
		if parsed, err := ParseMode(m.String()); err != nil || parsed != m {
			t.Fatalf("ParseMode(%q) = %v, %v", m.String(), parsed, err)
		}
	}

	if _, err := ParseMode("proactive"); err == nil {
		t.Fatal("unknown mode was accepted")
	}
}
