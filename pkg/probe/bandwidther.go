// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package probe

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/q4s/q4s-go/pkg/measure"
	"github.com/q4s/q4s-go/pkg/message"
)

const (
	// BandwidthPayloadSize is the body size of each BWIDTH in bytes.
	BandwidthPayloadSize = 1000

	// DefaultBandwidthFinalizeDelay is the inactivity period after which a
	// Bandwidther finishes.
	DefaultBandwidthFinalizeDelay = 300 * time.Millisecond
)

// BandwidtherConfig configures a Bandwidther.
type BandwidtherConfig struct {
	// SessionID is set as the Session-Id header of each BWIDTH.
	SessionID string

	// URI is each BWIDTH's Request-URI.
	URI string

	// SendRate is this side's rate in kbps. Zero disables sending.
	SendRate float64

	// ExpectRate is the peer's rate in kbps, used to evaluate received
	// BWIDTHs. Zero disables the evaluation.
	ExpectRate float64

	// Duration of the sending.
	Duration time.Duration

	// FinalizeDelay is the inactivity period after the sending's end,
	// DefaultBandwidthFinalizeDelay if zero.
	FinalizeDelay time.Duration

	// Proactive Bandwidthers start sending immediately. Otherwise, the first
	// inbound BWIDTH starts the sending. A Bandwidther not expecting any
	// BWIDTH is always proactive.
	Proactive bool
}

// Bandwidther is the bandwidth stage's engine, sending BWIDTHs at a fixed
// rate and evaluating the peer's BWIDTHs.
type Bandwidther struct {
	engine

	config   BandwidtherConfig
	sender   Sender
	schedule Schedule
	payload  []byte

	seq      uint64
	received map[uint64]struct{}
	maxSeq   uint64
	local    measure.Measure
	remote   measure.Measure
}

// NewBandwidther creates and starts a Bandwidther.
func NewBandwidther(config BandwidtherConfig, sender Sender) *Bandwidther {
	if config.FinalizeDelay <= 0 {
		config.FinalizeDelay = DefaultBandwidthFinalizeDelay
	}

	b := &Bandwidther{
		engine:   newEngine(),
		config:   config,
		sender:   sender,
		schedule: NewSchedule(config.SendRate),
		payload:  randomPayload(),
		received: make(map[uint64]struct{}),
	}

	go b.handle()
	return b
}

func randomPayload() []byte {
	raw := make([]byte, BandwidthPayloadSize/2)
	if _, err := rand.Read(raw); err != nil {
		log.WithError(err).Warn("Reading random bytes failed, falling back to a zero payload")
	}
	return []byte(hex.EncodeToString(raw))
}

func (b *Bandwidther) log() *log.Entry {
	return log.WithFields(log.Fields{
		"session": b.config.SessionID,
		"engine":  "bandwidther",
	})
}

func (b *Bandwidther) handle() {
	var (
		started  bool
		stopChan = make(chan struct{})
		tickChan = make(chan int, len(b.schedule)+1)
		duration *time.Timer
		finalize *time.Timer
	)

	start := func() {
		started = true
		duration = time.NewTimer(b.config.Duration)
		for _, slot := range b.schedule {
			go tick(slot, tickChan, stopChan)
		}

		b.log().WithFields(log.Fields{
			"rate":     b.config.SendRate,
			"schedule": b.schedule,
			"duration": b.config.Duration,
		}).Debug("Bandwidther starts sending")
	}

	stopped := false
	stop := func() {
		if !stopped {
			stopped = true
			close(stopChan)
		}
	}

	defer func() {
		stop()
		for _, t := range []*time.Timer{duration, finalize} {
			if t != nil {
				t.Stop()
			}
		}
	}()

	if b.config.Proactive || b.config.ExpectRate <= 0 {
		start()
	}

	for {
		select {
		case <-b.cancelChan:
			b.log().Debug("Bandwidther was cancelled")
			b.received = nil
			b.finish(Result{}, ErrCancelled)
			return

		case times := <-tickChan:
			if stopped {
				continue
			}
			for i := 0; i < times; i++ {
				if err := b.sendBwidth(); err != nil {
					b.finish(Result{}, err)
					return
				}
			}

		case <-timerChan(duration):
			stop()
			duration = nil
			finalize = rearm(finalize, b.config.FinalizeDelay)

		case in := <-b.inChan:
			req, ok := in.msg.(*message.Request)
			if !ok || req.Method != message.Bwidth {
				continue
			}

			b.receivedBwidth(req)
			if !started {
				start()
			}
			if finalize != nil {
				finalize = rearm(finalize, b.config.FinalizeDelay)
			}

		case <-timerChan(finalize):
			result := Result{Local: b.measure(true), Remote: b.remote}
			b.log().WithFields(log.Fields{
				"sent":   b.seq,
				"local":  result.Local,
				"remote": result.Remote,
			}).Debug("Bandwidther finished")

			b.finish(result, nil)
			return
		}
	}
}

// tick sends a slot's times into tickChan every interval, until stopChan is closed.
func tick(slot Slot, tickChan chan<- int, stopChan <-chan struct{}) {
	ticker := time.NewTicker(slot.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			select {
			case tickChan <- slot.Times:
			case <-stopChan:
				return
			}

		case <-stopChan:
			return
		}
	}
}

func (b *Bandwidther) sendBwidth() error {
	req := newProbe(message.Bwidth, b.config.URI, b.config.SessionID, b.seq, b.local)
	req.SetBody("text/plain", b.payload)

	if err := b.sender.SendProbe(req); err != nil {
		return fmt.Errorf("sending BWIDTH %d: %w", b.seq, err)
	}
	b.seq++
	return nil
}

func (b *Bandwidther) receivedBwidth(req *message.Request) {
	b.remote.Merge(measure.ParseHeader(req.Headers.Measurements()))

	seq, ok := req.Headers.SequenceNumber()
	if !ok {
		return
	}

	b.received[seq] = struct{}{}
	if seq > b.maxSeq {
		b.maxSeq = seq
	}
	b.local = b.measure(false)
}

// measure evaluates the received BWIDTHs. Without any, the final Measure
// reports a total loss if BWIDTHs were expected.
func (b *Bandwidther) measure(final bool) (m measure.Measure) {
	if b.config.ExpectRate <= 0 {
		return
	}

	if len(b.received) == 0 {
		if final {
			m.PacketLoss = measure.Some(1)
			m.Bandwidth = measure.Some(0)
		}
		return
	}

	loss := 1 - float64(len(b.received))/float64(b.maxSeq+1)
	m.PacketLoss = measure.Some(loss)
	m.Bandwidth = measure.Some(b.config.ExpectRate * (1 - loss))
	return
}
