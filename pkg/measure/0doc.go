// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package measure models network quality: single samples (Measure), combined
// uplink and downlink figures used as targets or observations
// (MeasurementSet) and the timing of the measurement procedure (Procedure).
//
// All values are optional. An unset value is neither a failure nor zero; it
// is simply not evaluated.
package measure
