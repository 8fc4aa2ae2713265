// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package probe implements the measurement engines driving probe trains
// between two Q4S peers.
//
// The Pinger sends a fixed number of PINGs and derives latency, jitter and
// packet loss for the negotiation's stage 0. The Bandwidther sends BWIDTH
// datagrams at a requested rate for stage 1. The ContinuityPinger keeps
// pinging during the application session, evaluating sliding windows.
//
// Each engine runs in its own goroutine, owning its timers. Inbound probes
// are passed in by Deliver. The engine finishes by closing its Done channel;
// afterwards Wait returns the Result or an error. Cancel aborts an engine,
// letting Wait return ErrCancelled.
package probe
