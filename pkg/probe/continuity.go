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

// DefaultLossTimeout is the age after which an unanswered PING is lost.
const DefaultLossTimeout = time.Second

// ContinuityConfig configures a ContinuityPinger.
type ContinuityConfig struct {
	// SessionID is set as the Session-Id header of each PING.
	SessionID string

	// URI is each PING's Request-URI.
	URI string

	// Period between two PINGs.
	Period time.Duration

	// Window is the number of records kept, the larger one of the jitter and
	// the packet loss window.
	Window int

	// LossTimeout is the age after which an unanswered PING is lost,
	// DefaultLossTimeout if zero.
	LossTimeout time.Duration

	// Proactive ContinuityPingers start sending immediately. Otherwise, the
	// first inbound PING starts the sending.
	Proactive bool
}

// ContinuityPinger is the continuity stage's engine. It pings until being
// cancelled and publishes a Result after every event.
type ContinuityPinger struct {
	engine

	config ContinuityConfig
	sender Sender

	window       *window
	seq          uint64
	local        measure.Measure
	remote       measure.Measure
	measurements chan Result
}

// NewContinuityPinger creates and starts a ContinuityPinger.
func NewContinuityPinger(config ContinuityConfig, sender Sender) *ContinuityPinger {
	if config.LossTimeout <= 0 {
		config.LossTimeout = DefaultLossTimeout
	}

	c := &ContinuityPinger{
		engine:       newEngine(),
		config:       config,
		sender:       sender,
		window:       newWindow(config.Window, config.LossTimeout),
		measurements: make(chan Result, 1),
	}

	go c.handle()
	return c
}

// Measurements publishes a Result after each update. An unread Result is
// replaced by a newer one.
func (c *ContinuityPinger) Measurements() <-chan Result {
	return c.measurements
}

func (c *ContinuityPinger) log() *log.Entry {
	return log.WithFields(log.Fields{
		"session": c.config.SessionID,
		"engine":  "continuity",
	})
}

func (c *ContinuityPinger) handle() {
	var ticker *time.Ticker
	var tickChan <-chan time.Time

	start := func() {
		ticker = time.NewTicker(c.config.Period)
		tickChan = ticker.C
		c.log().WithFields(log.Fields{
			"period": c.config.Period,
			"window": c.config.Window,
		}).Debug("ContinuityPinger starts sending")
	}

	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	if c.config.Proactive {
		start()
	}

	for {
		select {
		case <-c.cancelChan:
			c.log().Debug("ContinuityPinger was cancelled")
			c.finish(Result{Local: c.local, Remote: c.remote}, ErrCancelled)
			return

		case now := <-tickChan:
			req := newProbe(message.Ping, c.config.URI, c.config.SessionID, c.seq, c.local)
			c.window.sent(c.seq, now)
			c.seq++

			if err := c.sender.SendProbe(req); err != nil {
				c.finish(Result{Local: c.local, Remote: c.remote}, fmt.Errorf("sending PING: %w", err))
				return
			}

		case in := <-c.inChan:
			if req, ok := isPing(in.msg); ok {
				if err := c.sender.SendProbe(req.Reply(message.StatusOK)); err != nil {
					c.finish(Result{Local: c.local, Remote: c.remote}, fmt.Errorf("answering PING: %w", err))
					return
				}

				c.window.arrived(in.at)
				c.remote.Merge(measure.ParseHeader(req.Headers.Measurements()))

				if ticker == nil {
					start()
				}
			} else if seq, ok := okSequence(in.msg); ok {
				if !c.window.answered(seq, in.at) {
					continue
				}
			} else {
				continue
			}
		}

		c.local = c.window.measure(time.Now())
		c.publish(Result{Local: c.local, Remote: c.remote})
	}
}

func (c *ContinuityPinger) publish(r Result) {
	select {
	case c.measurements <- r:
		return
	default:
	}

	// Replace the unread Result; this goroutine is the only sender.
	select {
	case <-c.measurements:
	default:
	}
	select {
	case c.measurements <- r:
	default:
	}
}
