// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package measure

import (
	"fmt"
	"strings"
)

// FailurePolicy selects the stage following a failed bandwidth measurement.
type FailurePolicy int

const (
	// RetryStage repeats the bandwidth stage.
	RetryStage FailurePolicy = iota

	// RewindStage0 restarts the negotiation with the ping stage.
	RewindStage0
)

// NextStage after a failed bandwidth stage.
func (p FailurePolicy) NextStage() int {
	if p == RewindStage0 {
		return 0
	}
	return 1
}

func (p FailurePolicy) String() string {
	switch p {
	case RetryStage:
		return "retry"
	case RewindStage0:
		return "rewind"
	default:
		return fmt.Sprintf("FailurePolicy(%d)", int(p))
	}
}

// ParseFailurePolicy from its String representation. An empty string selects RetryStage.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "retry":
		return RetryStage, nil
	case "rewind":
		return RewindStage0, nil
	default:
		return RetryStage, fmt.Errorf("unknown bandwidth failure policy %q", s)
	}
}
