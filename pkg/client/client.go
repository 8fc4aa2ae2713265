// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package client implements a Q4S client. A Client performs the handshake with
// a Q4S server, negotiates the quality in up to three stages and monitors the
// session afterwards, until being closed.
//
// The Client reports its progress as Events. Each session's last Event is an
// EventClosed, after which the Events channel is closed.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/q4s/q4s-go/pkg/measure"
	"github.com/q4s/q4s-go/pkg/message"
	"github.com/q4s/q4s-go/pkg/probe"
	"github.com/q4s/q4s-go/pkg/session"
	"github.com/q4s/q4s-go/pkg/transport"
)

var (
	// ErrHandshakeRejected is returned for a non-200 BEGIN response.
	ErrHandshakeRejected = errors.New("handshake was rejected")

	// ErrReadyRejected is returned for a non-200 READY response without a Stage to continue with.
	ErrReadyRejected = errors.New("READY was rejected")

	// ErrAlreadyRunning is returned when calling Run twice.
	ErrAlreadyRunning = errors.New("client is already running")
)

const (
	// eventBuffer is the capacity of the Events channel.
	eventBuffer = 256

	// pendingProbes limits the probes held back until a stage's engine starts.
	pendingProbes = 256

	// cancelTimeout limits waiting for the server's CANCEL.
	cancelTimeout = time.Second
)

// Config of a Client.
type Config struct {
	// Session is the client's proposal: quality targets, procedure, addresses and ports.
	Session *session.Session

	// URI is the Request-URI of each request, e.g., q4s://q4s.example.com.
	URI string

	// Policy after a failed bandwidth stage.
	Policy measure.FailurePolicy

	// PingCount of the negotiation stage, probe.DefaultPingCount if zero.
	PingCount int

	// PingFinalizeDelay and BandwidthFinalizeDelay configure the engines, their defaults if zero.
	PingFinalizeDelay      time.Duration
	BandwidthFinalizeDelay time.Duration
}

// Dialer opens a Client's connections to the server.
type Dialer interface {
	// Handshake sends the BEGIN request and returns the server's response.
	Handshake(ctx context.Context, req *message.Request) (*message.Response, error)

	// Connect opens the control and probe channels of an established Session.
	Connect(ctx context.Context, s *session.Session) (transport.Channel, error)
}

// Client of a single Q4S session.
type Client struct {
	config Config
	dialer Dialer

	mu      sync.Mutex
	session *session.Session
	state   State

	channel     transport.Channel
	engine      probe.Engine
	engineStage int
	continuity  *probe.ContinuityPinger
	pending     []transport.Inbound

	events chan Event

	closeOnce sync.Once
	closeChan chan struct{}
	running   int32
	doneChan  chan struct{}
}

// New creates a Client. Its session starts with Run.
func New(config Config, dialer Dialer) *Client {
	s := session.New()
	if config.Session != nil {
		s = config.Session.Clone()
	}

	c := &Client{
		config:  config,
		dialer:  dialer,
		session: s,

		events: make(chan Event, eventBuffer),

		closeChan: make(chan struct{}),
		doneChan:  make(chan struct{}),
	}
	c.setState(Uninitialized)
	return c
}

func (c *Client) log() *log.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	return log.WithFields(log.Fields{
		"session": c.session.ID,
		"state":   c.state,
	})
}

// Events of this Client. The channel is closed after the EventClosed.
func (c *Client) Events() <-chan Event {
	return c.events
}

// State of this Client.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns a copy of the current Session.
func (c *Client) Session() *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Clone()
}

func (c *Client) setState(state State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = state
	c.session.State = state.String()
}

func (c *Client) emit(e Event) {
	select {
	case c.events <- e:
	default:
		c.log().WithField("event", e).Debug("Client drops an Event, nobody is listening")
	}
}

// Run the session until it is closed or fails. Run returns the failure, which is also reported as an EventError.
func (c *Client) Run(ctx context.Context) (err error) {
	if !atomic.CompareAndSwapInt32(&c.running, 0, 1) {
		return ErrAlreadyRunning
	}
	defer close(c.doneChan)
	defer func() { c.teardown(err) }()

	dialCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.closeChan:
			cancel()
		case <-dialCtx.Done():
		}
	}()

	if err = c.handshake(dialCtx); err != nil {
		return
	}

	if c.channel, err = c.dialer.Connect(dialCtx, c.Session()); err != nil {
		err = fmt.Errorf("connecting: %w", err)
		return
	}

	if err = c.sendReady(0); err != nil {
		return
	}

	err = c.loop(ctx)
	return
}

// Close the session by sending a CANCEL. Close blocks until a running session has ended.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.closeChan)
	})

	if atomic.LoadInt32(&c.running) == 1 {
		<-c.doneChan
	}
	return nil
}

func (c *Client) handshake(ctx context.Context) error {
	req := message.NewRequest(message.Begin, c.config.URI)
	req.SetBody(message.ContentTypeSDP, []byte(session.Encode(c.Session())))

	c.setState(SentHandshake)
	c.log().Debug("Client sends BEGIN")

	resp, err := c.dialer.Handshake(ctx, req)
	if err != nil {
		return fmt.Errorf("handshake: %w", err)
	} else if !resp.IsOK() {
		return fmt.Errorf("%w: %d %s", ErrHandshakeRejected, resp.StatusCode, resp.ReasonPhrase)
	}

	c.mu.Lock()
	c.session.Update(string(resp.Body()))
	if id := resp.Headers.SessionID(); id != "" {
		c.session.ID = id
	}
	c.mu.Unlock()

	c.log().WithField("addresses", c.Session().Addresses).Info("Client finished the handshake")
	c.emit(Event{Kind: EventHandshake})
	return nil
}

func (c *Client) loop(ctx context.Context) error {
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
			return ctx.Err()

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
			c.continuityMeasured(r)
		}
	}
}

// cancelSession sends a CANCEL and waits for the server's CANCEL.
func (c *Client) cancelSession() {
	c.stopEngines()

	req := message.NewRequest(message.Cancel, c.config.URI)
	req.Headers.SetSessionID(c.Session().ID)

	if err := c.channel.SendControl(req); err != nil {
		c.log().WithError(err).Debug("Client failed to send CANCEL")
		return
	}

	timeout := time.NewTimer(cancelTimeout)
	defer timeout.Stop()

	for {
		select {
		case in := <-c.channel.Control():
			if req, ok := in.Msg.(*message.Request); ok && req.Method == message.Cancel {
				c.log().Debug("Server confirmed CANCEL")
				return
			}

		case <-c.channel.Errors():
			return

		case <-timeout.C:
			c.log().Warn("Server did not confirm CANCEL")
			return
		}
	}
}

func (c *Client) stopEngines() {
	if c.engine != nil {
		c.engine.Cancel()
		c.engine = nil
	}
	if c.continuity != nil {
		c.continuity.Cancel()
		c.continuity = nil
	}
	c.pending = nil
}

func (c *Client) teardown(err error) {
	c.stopEngines()

	if c.channel != nil {
		if closeErr := c.channel.Close(); closeErr != nil {
			c.log().WithError(closeErr).Debug("Closing the channel errored")
		}
	}

	if err != nil {
		c.log().WithError(err).Warn("Client session failed")
		c.emit(Event{Kind: EventError, Err: err})
	} else {
		c.log().Info("Client session closed")
	}

	c.setState(Uninitialized)
	c.emit(Event{Kind: EventClosed})
	close(c.events)
}

func (c *Client) handleControl(in transport.Inbound) (done bool, err error) {
	switch msg := in.Msg.(type) {
	case *message.Response:
		err = c.handleResponse(msg)
	case *message.Request:
		done, err = c.handleRequest(msg)
	}
	return
}

func (c *Client) handleResponse(resp *message.Response) error {
	state := c.State()
	if !state.awaitsReady() {
		c.log().WithField("response", resp).Debug("Client ignores an unexpected response")
		return nil
	}

	current := state.Stage()
	stage, hasStage := resp.Headers.Stage()
	if !hasStage {
		stage = current
	}

	if !resp.IsOK() {
		if !hasStage || stage < 0 || stage > 2 {
			return fmt.Errorf("%w: %d %s", ErrReadyRejected, resp.StatusCode, resp.ReasonPhrase)
		}

		c.log().WithFields(log.Fields{
			"status": resp.StatusCode,
			"stage":  stage,
		}).Info("Server rejected READY, continuing with its stage")
		return c.sendReady(stage)
	}

	if stage != current {
		c.log().WithField("stage", stage).Debug("Client ignores a response of another stage")
		return nil
	}

	return c.startStage(stage, resp)
}

func (c *Client) handleRequest(req *message.Request) (done bool, err error) {
	switch req.Method {
	case message.Alert, message.Recovery:
		if err = c.channel.SendControl(req.Reply(message.StatusOK)); err != nil {
			return
		}

		if body := req.Body(); len(body) > 0 {
			c.mu.Lock()
			c.session.Update(string(body))
			c.mu.Unlock()
		}

		kind := EventAlert
		if req.Method == message.Recovery {
			kind = EventRecovery
		}
		c.log().WithField("method", req.Method).Info("Client received a quality signal")
		c.emit(Event{Kind: kind})

		if stage := c.State().Stage(); stage >= 0 {
			c.stopEngines()
			err = c.sendReady(stage)
		}
		return

	case message.Cancel:
		c.log().Info("Server cancelled the session")
		c.stopEngines()

		reply := message.NewRequest(message.Cancel, c.config.URI)
		reply.Headers.SetSessionID(c.Session().ID)
		if err := c.channel.SendControl(reply); err != nil {
			c.log().WithError(err).Debug("Client failed to confirm CANCEL")
		}
		return true, nil

	default:
		err = c.channel.SendControl(req.Reply(message.StatusMethodNotAllowed))
		return
	}
}

func (c *Client) handleProbe(in transport.Inbound) {
	switch {
	case c.engine != nil:
		c.engine.Deliver(in.Msg, in.At)

	case c.continuity != nil:
		c.continuity.Deliver(in.Msg, in.At)

	case c.State().awaitsReady() && len(c.pending) < pendingProbes:
		// The server's probes might overtake its READY response.
		if _, ok := in.Msg.(*message.Request); ok {
			c.pending = append(c.pending, in)
		}

	default:
		c.log().WithField("probe", in.Msg).Debug("Client drops a probe without a running engine")
	}
}

func (c *Client) sendReady(stage int) error {
	c.mu.Lock()
	sdp := session.Encode(c.session)
	id := c.session.ID
	c.mu.Unlock()

	req := message.NewRequest(message.Ready, c.config.URI)
	req.Headers.SetStage(stage)
	req.Headers.SetSessionID(id)
	req.SetBody(message.ContentTypeSDP, []byte(sdp))

	c.pending = nil
	c.setState(sentReady(stage))
	c.log().Debug("Client sends READY")

	if err := c.channel.SendControl(req); err != nil {
		return fmt.Errorf("sending READY %d: %w", stage, err)
	}
	return nil
}
