// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package measure

import (
	"encoding/json"
	"strconv"
)

// Metric is an optional measured or targeted value. The zero Metric is unset,
// which differs from a set Metric of value zero.
type Metric struct {
	Value float64
	Valid bool
}

// Some creates a set Metric.
func Some(v float64) Metric {
	return Metric{Value: v, Valid: true}
}

// Get the value and whether it is set.
func (m Metric) Get() (float64, bool) {
	return m.Value, m.Valid
}

// Or returns the value or a fallback for an unset Metric.
func (m Metric) Or(fallback float64) float64 {
	if m.Valid {
		return m.Value
	}
	return fallback
}

func (m Metric) String() string {
	if !m.Valid {
		return ""
	}
	return strconv.FormatFloat(m.Value, 'f', -1, 64)
}

// MarshalJSON encodes an unset Metric as null.
func (m Metric) MarshalJSON() ([]byte, error) {
	if !m.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(m.Value)
}

// UnmarshalJSON decodes null as an unset Metric.
func (m *Metric) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*m = Metric{}
		return nil
	}

	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*m = Some(v)
	return nil
}
