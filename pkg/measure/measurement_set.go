// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package measure

import (
	"fmt"
	"strings"
)

// MeasurementSet combines uplink and downlink figures. It is used both as a
// quality target and as an observation.
type MeasurementSet struct {
	Latency        Metric `json:"latency"`
	JitterUp       Metric `json:"jitter_up"`
	JitterDown     Metric `json:"jitter_down"`
	BandwidthUp    Metric `json:"bandwidth_up"`
	BandwidthDown  Metric `json:"bandwidth_down"`
	PacketLossUp   Metric `json:"packet_loss_up"`
	PacketLossDown Metric `json:"packet_loss_down"`
}

// setField describes one field of both a MeasurementSet and Bounds.
type setField struct {
	name          string
	lowerIsBetter bool
	get           func(*MeasurementSet) *Metric
	bound         func(*Bounds) *Range
}

var setFields = []setField{
	{"latency", true,
		func(s *MeasurementSet) *Metric { return &s.Latency },
		func(b *Bounds) *Range { return &b.Latency }},
	{"jitterUp", true,
		func(s *MeasurementSet) *Metric { return &s.JitterUp },
		func(b *Bounds) *Range { return &b.JitterUp }},
	{"jitterDown", true,
		func(s *MeasurementSet) *Metric { return &s.JitterDown },
		func(b *Bounds) *Range { return &b.JitterDown }},
	{"bandwidthUp", false,
		func(s *MeasurementSet) *Metric { return &s.BandwidthUp },
		func(b *Bounds) *Range { return &b.BandwidthUp }},
	{"bandwidthDown", false,
		func(s *MeasurementSet) *Metric { return &s.BandwidthDown },
		func(b *Bounds) *Range { return &b.BandwidthDown }},
	{"packetlossUp", true,
		func(s *MeasurementSet) *Metric { return &s.PacketLossUp },
		func(b *Bounds) *Range { return &b.PacketLossUp }},
	{"packetlossDown", true,
		func(s *MeasurementSet) *Metric { return &s.PacketLossDown },
		func(b *Bounds) *Range { return &b.PacketLossDown }},
}

// DoesMeetQuality compares an observation against a target. Latency, jitter
// and packet loss pass if the observed value does not exceed the target,
// bandwidth passes if the observed value reaches the target. Fields unset on
// either side are not evaluated.
func DoesMeetQuality(target, observed MeasurementSet) bool {
	return len(Violations(target, observed)) == 0
}

// Violations lists the names of all fields failing DoesMeetQuality.
func Violations(target, observed MeasurementSet) (names []string) {
	for _, f := range setFields {
		t, o := f.get(&target), f.get(&observed)
		if !t.Valid || !o.Valid {
			continue
		}

		if f.lowerIsBetter && o.Value > t.Value || !f.lowerIsBetter && o.Value < t.Value {
			names = append(names, f.name)
		}
	}
	return
}

// RequireReady1 checks if a target demands the bandwidth stage.
func (s MeasurementSet) RequireReady1() bool {
	return s.BandwidthUp.Valid || s.BandwidthDown.Valid
}

// IsEmpty checks if no field is set.
func (s MeasurementSet) IsEmpty() bool {
	for _, f := range setFields {
		if f.get(&s).Valid {
			return false
		}
	}
	return true
}

// SetUplink merges a Measure of the uplink direction. Its latency is only
// taken if no latency is known yet.
func (s *MeasurementSet) SetUplink(m Measure) {
	if m.Latency.Valid && !s.Latency.Valid {
		s.Latency = m.Latency
	}
	setIfValid(&s.JitterUp, m.Jitter)
	setIfValid(&s.BandwidthUp, m.Bandwidth)
	setIfValid(&s.PacketLossUp, m.PacketLoss)
}

// SetDownlink merges a Measure of the downlink direction. Its latency
// replaces a known one.
func (s *MeasurementSet) SetDownlink(m Measure) {
	setIfValid(&s.Latency, m.Latency)
	setIfValid(&s.JitterDown, m.Jitter)
	setIfValid(&s.BandwidthDown, m.Bandwidth)
	setIfValid(&s.PacketLossDown, m.PacketLoss)
}

func setIfValid(dst *Metric, src Metric) {
	if src.Valid {
		*dst = src
	}
}

// Constrain clamps each set field into its Range of the Bounds.
func (s *MeasurementSet) Constrain(b Bounds) {
	for _, f := range setFields {
		if m := f.get(s); m.Valid {
			*m = f.bound(&b).clamp(*m)
		}
	}
}

func (s MeasurementSet) String() string {
	var b strings.Builder
	b.WriteString("MeasurementSet(")
	first := true
	for _, f := range setFields {
		if m := f.get(&s); m.Valid {
			if !first {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", f.name, m)
			first = false
		}
	}
	b.WriteString(")")
	return b.String()
}

func lookupField(name string) (setField, bool) {
	for _, f := range setFields {
		if f.name == name {
			return f, true
		}
	}
	return setField{}, false
}

// FieldNames lists the names of all fields, e.g., "latency" or "jitterUp".
func FieldNames() []string {
	names := make([]string, len(setFields))
	for i, f := range setFields {
		names[i] = f.name
	}
	return names
}

// Field returns a pointer to the named field.
func (s *MeasurementSet) Field(name string) (*Metric, error) {
	f, ok := lookupField(name)
	if !ok {
		return nil, fmt.Errorf("unknown field %q, expected one of %v", name, FieldNames())
	}
	return f.get(s), nil
}
