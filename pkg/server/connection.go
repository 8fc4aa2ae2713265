// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/q4s/q4s-go/pkg/alert"
	"github.com/q4s/q4s-go/pkg/measure"
	"github.com/q4s/q4s-go/pkg/message"
	"github.com/q4s/q4s-go/pkg/probe"
	"github.com/q4s/q4s-go/pkg/session"
	"github.com/q4s/q4s-go/pkg/storage"
	"github.com/q4s/q4s-go/pkg/transport"
)

const (
	// persistInterval limits storing continuity measurements.
	persistInterval = time.Second

	// cancelTimeout limits waiting for the client's CANCEL.
	cancelTimeout = time.Second
)

// ConnectionConfig configures each Connection.
type ConnectionConfig struct {
	// URI is the Request-URI of the server's requests.
	URI string

	// TriggerURI is announced with the acceptance of READY 2, if set.
	TriggerURI string

	// Policy after a failed bandwidth stage.
	Policy measure.FailurePolicy

	// PingCount of the negotiation stage, probe.DefaultPingCount if zero.
	PingCount int

	// PingFinalizeDelay and BandwidthFinalizeDelay configure the engines, their defaults if zero.
	PingFinalizeDelay      time.Duration
	BandwidthFinalizeDelay time.Duration
}

// Connection runs a single Session on the server's side, from its bound control channel until its end.
type Connection struct {
	config  ConnectionConfig
	channel transport.Channel
	store   storage.Store
	publish func(Event)

	mu      sync.Mutex
	session *session.Session
	state   State

	engine      probe.Engine
	engineStage int
	continuity  *probe.ContinuityPinger
	deferred    *message.Request
	lastPersist time.Time

	closeOnce sync.Once
	closeChan chan struct{}
	doneChan  chan struct{}
}

// NewConnection for a stored Session and its Channel. Events are passed to publish.
func NewConnection(config ConnectionConfig, s *session.Session, channel transport.Channel,
	store storage.Store, publish func(Event)) *Connection {
	c := &Connection{
		config:  config,
		channel: channel,
		store:   store,
		publish: publish,
		session: s.Clone(),

		closeChan: make(chan struct{}),
		doneChan:  make(chan struct{}),
	}
	c.setState(HandshakeDone)
	return c
}

func (c *Connection) log() *log.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	return log.WithFields(log.Fields{
		"session": c.session.ID,
		"state":   c.state,
	})
}

// ID of this Connection's Session.
func (c *Connection) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.ID
}

// State of this Connection.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns a copy of the current Session.
func (c *Connection) Session() *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Clone()
}

func (c *Connection) setState(state State) {
	c.mu.Lock()
	c.state = state
	c.session.State = state.String()
	c.mu.Unlock()

	c.persist()
}

func (c *Connection) persist() {
	c.lastPersist = time.Now()
	if err := c.store.Update(c.Session()); err != nil {
		c.log().WithError(err).Warn("Failed to store the Session")
	}
}

func (c *Connection) emit(e Event) {
	e.SessionID = c.ID()
	e.State = c.State().String()
	c.publish(e)
}

// Close cancels the Session towards the client. Close blocks until the Connection has ended, thus it must not be called
// before Run.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.closeChan)
	})
	<-c.doneChan
}

// Done is closed after the Connection has ended.
func (c *Connection) Done() <-chan struct{} {
	return c.doneChan
}

// Run this Connection. The backlog contains control messages received before the Connection was created.
func (c *Connection) Run(ctx context.Context, backlog ...transport.Inbound) (err error) {
	defer close(c.doneChan)
	defer func() { c.teardown(err) }()

	c.log().Info("Connection starts")

	for _, in := range backlog {
		if done, err := c.handleControl(in); err != nil || done {
			return err
		}
	}

	control, probes, errs := c.channel.Control(), c.channel.Probes(), c.channel.Errors()
	for {
		var engineDone <-chan struct{}
		if c.engine != nil {
			engineDone = c.engine.Done()
		}

		var measurements <-chan probe.Result
		if c.continuity != nil {
			measurements = c.continuity.Measurements()
		}

		select {
		case <-ctx.Done():
			c.cancelSession()
			return nil

		case <-c.closeChan:
			c.cancelSession()
			return nil

		case err := <-errs:
			return fmt.Errorf("control channel failed: %w", err)

		case in := <-control:
			if done, err := c.handleControl(in); err != nil || done {
				return err
			}

		case in := <-probes:
			c.handleProbe(in)

		case <-engineDone:
			if err := c.engineFinished(); err != nil {
				return err
			}

		case r := <-measurements:
			if err := c.continuityMeasured(r); err != nil {
				return err
			}
		}
	}
}

func (c *Connection) stopEngines() {
	if c.engine != nil {
		c.engine.Cancel()
		c.engine = nil
	}
	if c.continuity != nil {
		c.continuity.Cancel()
		c.continuity = nil
	}
}

func (c *Connection) sendCancel() {
	c.stopEngines()

	req := message.NewRequest(message.Cancel, c.config.URI)
	req.Headers.SetSessionID(c.ID())
	if err := c.channel.SendControl(req); err != nil {
		c.log().WithError(err).Debug("Connection failed to send CANCEL")
	}
}

// cancelSession sends a CANCEL and waits for the client's CANCEL.
func (c *Connection) cancelSession() {
	c.sendCancel()

	timeout := time.NewTimer(cancelTimeout)
	defer timeout.Stop()

	for {
		select {
		case in := <-c.channel.Control():
			if req, ok := in.Msg.(*message.Request); ok && req.Method == message.Cancel {
				c.log().Debug("Client confirmed CANCEL")
				return
			}

		case <-c.channel.Errors():
			return

		case <-timeout.C:
			c.log().Warn("Client did not confirm CANCEL")
			return
		}
	}
}

func (c *Connection) teardown(err error) {
	c.stopEngines()

	if closeErr := c.channel.Close(); closeErr != nil {
		c.log().WithError(closeErr).Debug("Closing the channel errored")
	}

	if removeErr := c.store.Remove(c.ID()); removeErr != nil {
		c.log().WithError(removeErr).Warn("Failed to remove the Session")
	}

	if err != nil {
		c.log().WithError(err).Warn("Connection failed")
		c.emit(Event{Kind: EventError, Error: err.Error()})
	} else {
		c.log().Info("Connection ended")
	}
	c.emit(Event{Kind: EventEnd})
}

func (c *Connection) handleControl(in transport.Inbound) (done bool, err error) {
	req, ok := in.Msg.(*message.Request)
	if !ok {
		c.log().WithField("response", in.Msg).Debug("Connection received a response")
		return
	}

	if id := req.Headers.SessionID(); id != c.ID() {
		c.log().WithField("foreign", id).Warn("Connection received a request of another session")
		err = c.channel.SendControl(req.Reply(message.StatusSessionDoesNotExist))
		return
	}

	switch req.Method {
	case message.Ready:
		if c.engine != nil {
			c.log().Debug("Connection defers READY until the running stage has finished")
			c.deferred = req
			return
		}
		err = c.handleReady(req)

	case message.Cancel:
		c.log().Info("Client cancelled the session")
		c.sendCancel()
		done = true

	default:
		err = c.channel.SendControl(req.Reply(message.StatusMethodNotAllowed))
	}
	return
}

// expectedStage is the next stage the client should request.
func (c *Connection) expectedStage() int {
	switch c.State() {
	case PassReady0:
		if c.Session().Quality.RequireReady1() {
			return 1
		}
		return 2
	case PassReady1, MeasuringContinuity:
		return 2
	default:
		return 0
	}
}

// readyAllowed checks if the current state permits a READY of the given stage.
func (c *Connection) readyAllowed(stage int) bool {
	state := c.State()

	switch stage {
	case 0:
		return state == HandshakeDone
	case 1:
		return state == PassReady0
	case 2:
		return state == PassReady1 || state == MeasuringContinuity ||
			(state == PassReady0 && !c.Session().Quality.RequireReady1())
	default:
		return false
	}
}

func (c *Connection) handleReady(req *message.Request) error {
	stage, _ := req.Headers.Stage()

	if !c.readyAllowed(stage) {
		expected := c.expectedStage()
		c.log().WithFields(log.Fields{
			"stage":    stage,
			"expected": expected,
		}).Info("Connection rejects READY")

		resp := req.Reply(message.StatusQualityLevelNotAllowed)
		resp.Headers.SetStage(expected)
		return c.channel.SendControl(resp)
	}

	resp := req.Reply(message.StatusOK)
	resp.Headers.SetStage(stage)
	resp.Headers.SetSessionID(c.ID())
	if stage == 2 && c.config.TriggerURI != "" {
		resp.Headers.SetTriggerURI(c.config.TriggerURI)
	}
	if err := c.channel.SendControl(resp); err != nil {
		return fmt.Errorf("answering READY %d: %w", stage, err)
	}

	c.startStage(stage)
	return nil
}

func (c *Connection) startStage(stage int) {
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
			Period:        s.Procedure.NegotiationPeriod(false),
			FinalizeDelay: c.config.PingFinalizeDelay,
		}, c.channel)
		c.setState(MeasuringPinger)

	case 1:
		c.engine = probe.NewBandwidther(probe.BandwidtherConfig{
			SessionID:     s.ID,
			URI:           c.config.URI,
			SendRate:      s.Quality.BandwidthDown.Or(0),
			ExpectRate:    s.Quality.BandwidthUp.Or(0),
			Duration:      s.Procedure.BandwidthDuration(),
			FinalizeDelay: c.config.BandwidthFinalizeDelay,
		}, c.channel)
		c.setState(MeasuringBandwidth)

	case 2:
		if c.continuity != nil {
			c.continuity.Cancel()
		}
		c.continuity = probe.NewContinuityPinger(probe.ContinuityConfig{
			SessionID: s.ID,
			URI:       c.config.URI,
			Period:    s.Procedure.ContinuityPeriod(false),
			Window:    s.Procedure.Window(false),
		}, c.channel)
		c.setState(MeasuringContinuity)
		c.emit(Event{Kind: EventCompleted, Stage: 2})
	}
	c.engineStage = stage
}

func (c *Connection) handleProbe(in transport.Inbound) {
	switch {
	case c.engine != nil:
		c.engine.Deliver(in.Msg, in.At)
	case c.continuity != nil:
		c.continuity.Deliver(in.Msg, in.At)
	default:
		c.log().WithField("probe", in.Msg).Debug("Connection drops a probe without a running engine")
	}
}

// engineFinished evaluates a negotiation stage and handles a deferred READY.
func (c *Connection) engineFinished() error {
	result, err := c.engine.Wait()
	stage := c.engineStage
	c.engine = nil

	if errors.Is(err, probe.ErrCancelled) {
		return nil
	} else if err != nil {
		return fmt.Errorf("stage %d measurement failed: %w", stage, err)
	}

	c.mu.Lock()
	switch stage {
	case 0:
		c.session.Measured.SetUplink(result.Remote)
		c.session.Measured.SetDownlink(result.Local)
	case 1:
		c.session.Measured.SetUplink(result.Local)
		c.session.Measured.SetDownlink(result.Remote)
	}
	measured := c.session.Measured
	met := measure.DoesMeetQuality(c.session.Quality, measured)
	c.mu.Unlock()

	next := HandshakeDone
	switch {
	case met && stage == 0:
		next = PassReady0
	case met && stage == 1:
		next = PassReady1
	case stage == 1 && c.config.Policy == measure.RetryStage:
		next = PassReady0
	}

	c.log().WithFields(log.Fields{
		"stage":    stage,
		"measured": measured,
		"met":      met,
		"next":     next,
	}).Info("Connection finished a stage")

	c.setState(next)
	c.emit(Event{Kind: EventMeasure, Stage: stage, Measured: &measured, Met: met})

	if req := c.deferred; req != nil {
		c.deferred = nil
		return c.handleReady(req)
	}
	return nil
}

// continuityMeasured evaluates a continuity measurement and signals degraded or recovered quality.
func (c *Connection) continuityMeasured(r probe.Result) error {
	now := time.Now()

	c.mu.Lock()
	c.session.Measured.SetUplink(r.Remote)
	c.session.Measured.SetDownlink(r.Local)
	measured := c.session.Measured
	met := measure.DoesMeetQuality(c.session.Quality, measured)
	signal := c.session.Alert.Evaluate(met, now)
	mode := c.session.Alert.Mode
	c.mu.Unlock()

	c.emit(Event{Kind: EventMeasure, Stage: 2, Measured: &measured, Met: met})

	if signal == alert.None {
		if now.Sub(c.lastPersist) >= persistInterval {
			c.persist()
		}
		return nil
	}

	kind, method := EventAlert, message.Alert
	if signal == alert.SendRecovery {
		kind, method = EventRecovery, message.Recovery
	}

	c.log().WithFields(log.Fields{
		"signal":   signal,
		"mode":     mode,
		"measured": measured,
		"alert":    c.Session().Alert,
	}).Info("Connection signals the quality")
	c.emit(Event{Kind: kind, Stage: 2, Measured: &measured, Met: met})
	c.persist()

	if mode != alert.Reactive {
		return nil
	}

	req := message.NewRequest(method, c.config.URI)
	req.Headers.SetSessionID(c.ID())
	req.SetBody(message.ContentTypeSDP, []byte(session.Encode(c.Session())))
	if err := c.channel.SendControl(req); err != nil {
		return fmt.Errorf("sending %v: %w", method, err)
	}
	return nil
}
