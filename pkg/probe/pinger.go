// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package probe

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/q4s/q4s-go/pkg/measure"
	"github.com/q4s/q4s-go/pkg/message"
)

const (
	// DefaultPingCount is the number of PINGs of a negotiation.
	DefaultPingCount = 255

	// DefaultPingFinalizeDelay is the inactivity period after which a
	// negotiation Pinger finishes.
	DefaultPingFinalizeDelay = time.Second
)

// PingerConfig configures a Pinger.
type PingerConfig struct {
	// SessionID is set as the Session-Id header of each PING.
	SessionID string

	// URI is each PING's Request-URI.
	URI string

	// Count of PINGs to be sent, DefaultPingCount if zero.
	Count int

	// Period between two PINGs.
	Period time.Duration

	// FinalizeDelay is the inactivity period after the last PING, which
	// finishes the Pinger. DefaultPingFinalizeDelay if zero.
	FinalizeDelay time.Duration

	// Proactive Pingers start sending immediately. Otherwise, the first
	// inbound PING starts the sending.
	Proactive bool
}

// pingRecord of one sent PING.
type pingRecord struct {
	sent     time.Time
	rtt      time.Duration
	answered bool
}

// Pinger is the negotiation stage's engine, measuring latency, jitter and
// packet loss with a fixed number of PINGs.
type Pinger struct {
	engine

	config PingerConfig
	sender Sender

	records []pingRecord
	local   measure.Measure
	remote  measure.Measure
}

// NewPinger creates and starts a Pinger.
func NewPinger(config PingerConfig, sender Sender) *Pinger {
	if config.Count <= 0 {
		config.Count = DefaultPingCount
	}
	if config.FinalizeDelay <= 0 {
		config.FinalizeDelay = DefaultPingFinalizeDelay
	}

	p := &Pinger{
		engine:  newEngine(),
		config:  config,
		sender:  sender,
		records: make([]pingRecord, 0, config.Count),
	}

	go p.handle()
	return p
}

func (p *Pinger) log() *log.Entry {
	return log.WithFields(log.Fields{
		"session": p.config.SessionID,
		"engine":  "pinger",
	})
}

func (p *Pinger) handle() {
	var (
		ticker   *time.Ticker
		tickChan <-chan time.Time
		finalize *time.Timer
	)

	start := func() {
		ticker = time.NewTicker(p.config.Period)
		tickChan = ticker.C
		p.log().WithField("period", p.config.Period).Debug("Pinger starts sending")
	}

	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
		if finalize != nil {
			finalize.Stop()
		}
	}()

	if p.config.Proactive {
		start()
	}

	for {
		select {
		case <-p.cancelChan:
			p.log().Debug("Pinger was cancelled")
			p.records = nil
			p.finish(Result{}, ErrCancelled)
			return

		case <-tickChan:
			if err := p.sendPing(); err != nil {
				p.finish(Result{}, err)
				return
			}

			if len(p.records) >= p.config.Count {
				ticker.Stop()
				tickChan = nil
				finalize = rearm(finalize, p.config.FinalizeDelay)
			}

		case in := <-p.inChan:
			if req, ok := isPing(in.msg); ok {
				if err := p.sender.SendProbe(req.Reply(message.StatusOK)); err != nil {
					p.finish(Result{}, fmt.Errorf("answering PING: %w", err))
					return
				}
				p.remote.Merge(measure.ParseHeader(req.Headers.Measurements()))

				if ticker == nil {
					start()
				}
			} else if seq, ok := okSequence(in.msg); ok {
				p.receivedResponse(seq, in.at)
			} else {
				continue
			}

			if finalize != nil {
				finalize = rearm(finalize, p.config.FinalizeDelay)
			}

		case <-timerChan(finalize):
			result := Result{Local: negotiationMeasure(p.records, true), Remote: p.remote}
			p.log().WithFields(log.Fields{
				"local":  result.Local,
				"remote": result.Remote,
			}).Debug("Pinger finished")

			p.finish(result, nil)
			return
		}
	}
}

func (p *Pinger) sendPing() error {
	seq := uint64(len(p.records))
	req := newProbe(message.Ping, p.config.URI, p.config.SessionID, seq, p.local)

	p.records = append(p.records, pingRecord{sent: time.Now()})
	if err := p.sender.SendProbe(req); err != nil {
		return fmt.Errorf("sending PING %d: %w", seq, err)
	}
	return nil
}

func (p *Pinger) receivedResponse(seq uint64, at time.Time) {
	if seq >= uint64(len(p.records)) || p.records[seq].answered {
		return
	}

	rec := &p.records[seq]
	rec.answered = true
	rec.rtt = at.Sub(rec.sent)

	p.local = negotiationMeasure(p.records, false)
}

// negotiationMeasure derives a Measure from ping records, ordered by their
// sequence number. For a final Measure, every unanswered record is lost.
// Otherwise, only unanswered records before the last answered one are.
func negotiationMeasure(records []pingRecord, final bool) (m measure.Measure) {
	var rtts []float64
	lastAnswered := -1
	for i, rec := range records {
		if rec.answered {
			rtts = append(rtts, millis(rec.rtt))
			lastAnswered = i
		}
	}

	considered := len(records)
	if !final {
		considered = lastAnswered + 1
	}
	if considered > 0 {
		m.PacketLoss = measure.Some(float64(considered-len(rtts)) / float64(considered))
	}

	m.Latency = measure.Median(rtts)
	m.Jitter = measure.Jitter(rtts)
	return
}
