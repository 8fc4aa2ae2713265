// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package measure

import "fmt"

// Range limits a value to [Min, Max]. Each limit is optional.
type Range struct {
	Min Metric
	Max Metric
}

func (r Range) clamp(m Metric) Metric {
	if r.Max.Valid && m.Value > r.Max.Value {
		m.Value = r.Max.Value
	}
	if r.Min.Valid && m.Value < r.Min.Value {
		m.Value = r.Min.Value
	}
	return m
}

// CheckValid reports a Range whose Min exceeds its Max.
func (r Range) CheckValid() error {
	if r.Min.Valid && r.Max.Valid && r.Min.Value > r.Max.Value {
		return fmt.Errorf("min %v exceeds max %v", r.Min, r.Max)
	}
	return nil
}

// Bounds are the server's limits for negotiable quality targets.
type Bounds struct {
	Latency        Range
	JitterUp       Range
	JitterDown     Range
	BandwidthUp    Range
	BandwidthDown  Range
	PacketLossUp   Range
	PacketLossDown Range
}

// CheckValid reports the first invalid Range.
func (b Bounds) CheckValid() error {
	for _, f := range setFields {
		if err := f.bound(&b).CheckValid(); err != nil {
			return fmt.Errorf("bounds of %s: %w", f.name, err)
		}
	}
	return nil
}

// Field returns a pointer to the named field's Range, named like a MeasurementSet's field.
func (b *Bounds) Field(name string) (*Range, error) {
	f, ok := lookupField(name)
	if !ok {
		return nil, fmt.Errorf("unknown field %q, expected one of %v", name, FieldNames())
	}
	return f.bound(b), nil
}
