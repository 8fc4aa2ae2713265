// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package measure

import (
	"math"

	"github.com/montanaflynn/stats"
)

// Median is the lower median of some samples: the element at index
// floor((len-1)/2) of the ascending sorted samples. Without samples, the
// Metric is unset.
func Median(samples []float64) Metric {
	// The nearest rank of the 50th percentile is exactly the lower median.
	v, err := stats.PercentileNearestRank(samples, 50)
	if err != nil {
		return Metric{}
	}
	return Some(v)
}

// Jitter is the Median of the absolute differences between consecutive
// samples. At least two samples are required.
func Jitter(samples []float64) Metric {
	if len(samples) < 2 {
		return Metric{}
	}

	diffs := make([]float64, len(samples)-1)
	for i := 1; i < len(samples); i++ {
		diffs[i-1] = math.Abs(samples[i] - samples[i-1])
	}
	return Median(diffs)
}
