// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package measure

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Procedure parameters of the measurements.
type Procedure struct {
	// NegotiationPingUp and NegotiationPingDown are the periods in
	// milliseconds between PINGs of the negotiation stage.
	NegotiationPingUp   int
	NegotiationPingDown int

	// ContinuityPingUp and ContinuityPingDown are the periods in milliseconds
	// between PINGs of the continuity stage.
	ContinuityPingUp   int
	ContinuityPingDown int

	// NegotiationBandwidth is the bandwidth test's duration in seconds.
	NegotiationBandwidth int

	// WindowUp and WindowDown are the sample windows for latency and jitter.
	WindowUp   int
	WindowDown int

	// LossWindowUp and LossWindowDown are the sample windows for packet loss.
	LossWindowUp   int
	LossWindowDown int
}

// DefaultProcedure is used for every parameter not negotiated otherwise.
func DefaultProcedure() Procedure {
	return Procedure{
		NegotiationPingUp:    20,
		NegotiationPingDown:  20,
		ContinuityPingUp:     20,
		ContinuityPingDown:   20,
		NegotiationBandwidth: 2,
		WindowUp:             255,
		WindowDown:           255,
		LossWindowUp:         255,
		LossWindowDown:       255,
	}
}

func (p *Procedure) fields() []*int {
	return []*int{
		&p.NegotiationPingUp, &p.NegotiationPingDown,
		&p.ContinuityPingUp, &p.ContinuityPingDown,
		&p.NegotiationBandwidth,
		&p.WindowUp, &p.WindowDown,
		&p.LossWindowUp, &p.LossWindowDown,
	}
}

// ApplyDefaults replaces each non-positive parameter by its default.
func (p *Procedure) ApplyDefaults() {
	def := DefaultProcedure()
	defFields := def.fields()

	for i, f := range p.fields() {
		if *f <= 0 {
			*f = *defFields[i]
		}
	}
}

// Merge sets every positive parameter of other into this Procedure.
func (p *Procedure) Merge(other Procedure) {
	otherFields := other.fields()

	for i, f := range p.fields() {
		if *otherFields[i] > 0 {
			*f = *otherFields[i]
		}
	}
}

// NegotiationPeriod is the negotiation PING period for the client's or the
// server's sending direction.
func (p Procedure) NegotiationPeriod(client bool) time.Duration {
	if client {
		return time.Duration(p.NegotiationPingUp) * time.Millisecond
	}
	return time.Duration(p.NegotiationPingDown) * time.Millisecond
}

// ContinuityPeriod is the continuity PING period for the client's or the
// server's sending direction.
func (p Procedure) ContinuityPeriod(client bool) time.Duration {
	if client {
		return time.Duration(p.ContinuityPingUp) * time.Millisecond
	}
	return time.Duration(p.ContinuityPingDown) * time.Millisecond
}

// BandwidthDuration is the bandwidth test's duration.
func (p Procedure) BandwidthDuration() time.Duration {
	return time.Duration(p.NegotiationBandwidth) * time.Second
}

// Window is the continuity window size for the client's or the server's side,
// the larger one of the jitter and the packet loss window.
func (p Procedure) Window(client bool) int {
	if client {
		return max(p.WindowUp, p.LossWindowUp)
	}
	return max(p.WindowDown, p.LossWindowDown)
}

func (p Procedure) String() string {
	return fmt.Sprintf("(%d/%d,%d/%d,%d,%d/%d,%d/%d)",
		p.NegotiationPingUp, p.NegotiationPingDown,
		p.ContinuityPingUp, p.ContinuityPingDown,
		p.NegotiationBandwidth,
		p.WindowUp, p.WindowDown,
		p.LossWindowUp, p.LossWindowDown)
}

// ParseProcedure decodes the String representation, optionally prefixed by
// "default". Missing or unparsable parameters remain zero.
func ParseProcedure(s string) (p Procedure, err error) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "default"))
	if !strings.HasPrefix(s, "(") || !strings.HasSuffix(s, ")") {
		err = fmt.Errorf("procedure %q is not enclosed in parentheses", s)
		return
	}

	var values []int
	for _, group := range strings.Split(s[1:len(s)-1], ",") {
		for _, v := range strings.Split(group, "/") {
			n, _ := strconv.Atoi(strings.TrimSpace(v))
			values = append(values, n)
		}
	}

	for i, f := range p.fields() {
		if i < len(values) {
			*f = values[i]
		}
	}
	return
}
