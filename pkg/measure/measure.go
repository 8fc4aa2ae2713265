// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package measure

import (
	"fmt"
	"strconv"
	"strings"
)

// Measure is a single sample of some path's quality.
type Measure struct {
	// Latency in milliseconds.
	Latency Metric

	// Jitter in milliseconds.
	Jitter Metric

	// Bandwidth in kbps.
	Bandwidth Metric

	// PacketLoss as a probability between 0 and 1.
	PacketLoss Metric
}

// IsEmpty checks if no field is set.
func (m Measure) IsEmpty() bool {
	return !m.Latency.Valid && !m.Jitter.Valid && !m.Bandwidth.Valid && !m.PacketLoss.Valid
}

// Merge sets every field of other which is set into this Measure.
func (m *Measure) Merge(other Measure) {
	for _, f := range []struct {
		dst *Metric
		src Metric
	}{
		{&m.Latency, other.Latency},
		{&m.Jitter, other.Jitter},
		{&m.Bandwidth, other.Bandwidth},
		{&m.PacketLoss, other.PacketLoss},
	} {
		if f.src.Valid {
			*f.dst = f.src
		}
	}
}

// Header encodes this Measure for the Measurements header,
// "l=<latency>, j=<jitter>, pl=<packet loss>, bw=<bandwidth>".
func (m Measure) Header() string {
	return fmt.Sprintf("l=%v, j=%v, pl=%v, bw=%v", m.Latency, m.Jitter, m.PacketLoss, m.Bandwidth)
}

func (m Measure) String() string {
	return m.Header()
}

// ParseHeader decodes a Measurements header. Unknown keys, empty and
// unparsable values are skipped.
func ParseHeader(header string) (m Measure) {
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}

		v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			continue
		}

		switch strings.TrimSpace(key) {
		case "l":
			m.Latency = Some(v)
		case "j":
			m.Jitter = Some(v)
		case "pl":
			m.PacketLoss = Some(v)
		case "bw":
			m.Bandwidth = Some(v)
		}
	}
	return
}
