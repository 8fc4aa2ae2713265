// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package probe

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// scheduleEpsilon is the remaining rate considered exhausted.
const scheduleEpsilon = 1e-9

// Slot of a Schedule: every Interval, Times datagrams are sent.
type Slot struct {
	Interval time.Duration
	Times    int
}

// Schedule distributes a datagram rate over repeating intervals of up to one second.
type Schedule []Slot

// NewSchedule for a bandwidth in kbps of 1000 byte datagrams, which is
// kbps/8 datagrams per second.
//
// For each millisecond interval i from 1 to 1000, the integer part of the
// remaining rate's share in i milliseconds is scheduled every i milliseconds
// and subtracted from the remaining rate, until the rate is exhausted.
func NewSchedule(kbps float64) (s Schedule) {
	perSecond := kbps / 8

	for i := 1; i <= 1000 && perSecond > scheduleEpsilon; i++ {
		times := math.Floor(perSecond * float64(i) / 1000)
		if times <= 0 {
			continue
		}

		perSecond -= times * 1000 / float64(i)
		s = append(s, Slot{Interval: time.Duration(i) * time.Millisecond, Times: int(times)})
	}
	return
}

// PerSecond is the number of datagrams this Schedule sends in one second.
func (s Schedule) PerSecond() (n float64) {
	for _, slot := range s {
		n += float64(slot.Times) * float64(time.Second) / float64(slot.Interval)
	}
	return
}

func (s Schedule) String() string {
	var b strings.Builder
	b.WriteString("Schedule(")
	for i, slot := range s {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%dx every %v", slot.Times, slot.Interval)
	}
	b.WriteString(")")
	return b.String()
}
