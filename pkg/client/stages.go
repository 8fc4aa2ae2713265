// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package client

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/q4s/q4s-go/pkg/measure"
	"github.com/q4s/q4s-go/pkg/message"
	"github.com/q4s/q4s-go/pkg/probe"
)

// startStage after the server accepted its READY.
func (c *Client) startStage(stage int, resp *message.Response) error {
	c.setState(measuring(stage))
	s := c.Session()

	switch stage {
	case 0:
		c.mu.Lock()
		c.session.Measured = measure.MeasurementSet{}
		c.mu.Unlock()

		c.engine = probe.NewPinger(probe.PingerConfig{
			SessionID:     s.ID,
			URI:           c.config.URI,
			Count:         c.config.PingCount,
			Period:        s.Procedure.NegotiationPeriod(true),
			FinalizeDelay: c.config.PingFinalizeDelay,
			Proactive:     true,
		}, c.channel)

	case 1:
		c.engine = probe.NewBandwidther(probe.BandwidtherConfig{
			SessionID:     s.ID,
			URI:           c.config.URI,
			SendRate:      s.Quality.BandwidthUp.Or(0),
			ExpectRate:    s.Quality.BandwidthDown.Or(0),
			Duration:      s.Procedure.BandwidthDuration(),
			FinalizeDelay: c.config.BandwidthFinalizeDelay,
			Proactive:     true,
		}, c.channel)

	case 2:
		c.continuity = probe.NewContinuityPinger(probe.ContinuityConfig{
			SessionID: s.ID,
			URI:       c.config.URI,
			Period:    s.Procedure.ContinuityPeriod(true),
			Window:    s.Procedure.Window(true),
			Proactive: true,
		}, c.channel)

		trigger := resp.Headers.TriggerURI()
		c.log().WithField("trigger", trigger).Info("Client completed the negotiation")
		c.emit(Event{Kind: EventCompleted, TriggerURI: trigger})

	default:
		return fmt.Errorf("unknown stage %d", stage)
	}
	c.engineStage = stage

	pending := c.pending
	c.pending = nil
	for _, in := range pending {
		c.handleProbe(in)
	}
	return nil
}

// engineFinished evaluates a negotiation stage and sends the next READY.
func (c *Client) engineFinished() error {
	result, err := c.engine.Wait()
	stage := c.engineStage
	c.engine = nil

	if err != nil {
		return fmt.Errorf("stage %d measurement failed: %w", stage, err)
	}

	c.mu.Lock()
	switch stage {
	case 0:
		c.session.Measured.SetUplink(result.Local)
		c.session.Measured.SetDownlink(result.Remote)
	case 1:
		c.session.Measured.SetUplink(result.Remote)
		c.session.Measured.SetDownlink(result.Local)
	}
	measured := c.session.Measured
	met := measure.DoesMeetQuality(c.session.Quality, measured)
	requireReady1 := c.session.Quality.RequireReady1()
	c.mu.Unlock()

	c.log().WithFields(log.Fields{
		"stage":    stage,
		"measured": measured,
		"met":      met,
	}).Info("Client finished a stage")
	c.emit(Event{Kind: EventMeasure, Stage: stage, Measured: measured, Met: met})

	next := stage
	switch {
	case met && stage == 0 && requireReady1:
		next = 1
	case met:
		next = 2
	case stage == 1:
		next = c.config.Policy.NextStage()
	}
	return c.sendReady(next)
}

// continuityMeasured reports a continuity measurement.
func (c *Client) continuityMeasured(r probe.Result) {
	c.mu.Lock()
	c.session.Measured.SetUplink(r.Local)
	c.session.Measured.SetDownlink(r.Remote)
	measured := c.session.Measured
	met := measure.DoesMeetQuality(c.session.Quality, measured)
	c.mu.Unlock()

	c.emit(Event{Kind: EventMeasure, Stage: 2, Measured: measured, Met: met})
}
