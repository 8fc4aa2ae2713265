// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package probe

import (
	"time"

	"github.com/gammazero/deque"

	"github.com/q4s/q4s-go/pkg/measure"
)

type sendRecord struct {
	seq  uint64
	sent time.Time
}

type recvRecord struct {
	seq      uint64
	received time.Time
	rtt      time.Duration
}

// window holds the most recent PING records of a ContinuityPinger. Each queue
// is bounded by size, evicting its oldest insertions first.
type window struct {
	size        int
	lossTimeout time.Duration

	sends    deque.Deque[sendRecord]
	recvs    deque.Deque[recvRecord]
	arrivals deque.Deque[time.Time]
}

func newWindow(size int, lossTimeout time.Duration) *window {
	return &window{
		size:        max(size, 1),
		lossTimeout: lossTimeout,
	}
}

// sent records an outbound PING.
func (w *window) sent(seq uint64, at time.Time) {
	w.sends.PushBack(sendRecord{seq: seq, sent: at})
	w.evict()
}

// answered matches a response to its PING. Unknown or duplicate sequence
// numbers are ignored.
func (w *window) answered(seq uint64, at time.Time) bool {
	for i := 0; i < w.recvs.Len(); i++ {
		if w.recvs.At(i).seq == seq {
			return false
		}
	}

	for i := 0; i < w.sends.Len(); i++ {
		if rec := w.sends.At(i); rec.seq == seq {
			w.recvs.PushBack(recvRecord{seq: seq, received: at, rtt: at.Sub(rec.sent)})
			w.evict()
			return true
		}
	}
	return false
}

// arrived records an inbound PING's arrival.
func (w *window) arrived(at time.Time) {
	w.arrivals.PushBack(at)
	w.evict()
}

func (w *window) evict() {
	for w.sends.Len() > w.size {
		w.sends.PopFront()
	}
	for w.recvs.Len() > w.size {
		w.recvs.PopFront()
	}
	for w.arrivals.Len() > w.size {
		w.arrivals.PopFront()
	}

	// Sent sequence numbers are consecutive; everything below the oldest one
	// has lost its send record.
	if w.sends.Len() == 0 {
		w.recvs.Clear()
		return
	}
	oldest := w.sends.Front().seq
	for n := w.recvs.Len(); n > 0; n-- {
		if rec := w.recvs.PopFront(); rec.seq >= oldest {
			w.recvs.PushBack(rec)
		}
	}
}

// measure the current window. An unanswered PING is lost if a later one was
// answered or if it is older than the loss timeout.
func (w *window) measure(now time.Time) (m measure.Measure) {
	answered := make(map[uint64]struct{}, w.recvs.Len())
	rtts := make([]float64, 0, w.recvs.Len())
	var maxAnswered uint64
	for i := 0; i < w.recvs.Len(); i++ {
		rec := w.recvs.At(i)
		answered[rec.seq] = struct{}{}
		rtts = append(rtts, millis(rec.rtt))
		if rec.seq > maxAnswered {
			maxAnswered = rec.seq
		}
	}
	m.Latency = measure.Median(rtts)

	var total, lost int
	for i := 0; i < w.sends.Len(); i++ {
		rec := w.sends.At(i)
		if _, ok := answered[rec.seq]; ok {
			total++
		} else if (len(answered) > 0 && rec.seq < maxAnswered) || now.Sub(rec.sent) > w.lossTimeout {
			total++
			lost++
		}
	}
	if total > 0 {
		m.PacketLoss = measure.Some(float64(lost) / float64(total))
	}

	if w.arrivals.Len() > 1 {
		gaps := make([]float64, 0, w.arrivals.Len()-1)
		for i := 1; i < w.arrivals.Len(); i++ {
			gaps = append(gaps, millis(w.arrivals.At(i).Sub(w.arrivals.At(i-1))))
		}
		m.Jitter = measure.Jitter(gaps)
	}
	return
}
