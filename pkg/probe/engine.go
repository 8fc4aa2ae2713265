// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package probe

import (
	"errors"
	"sync"
	"time"

	"github.com/q4s/q4s-go/pkg/measure"
	"github.com/q4s/q4s-go/pkg/message"
)

// ErrCancelled is the result of a cancelled engine.
var ErrCancelled = errors.New("measurement cancelled")

// inboundBuffer is the capacity of an engine's inbound queue.
const inboundBuffer = 256

// Sender transmits probes to the peer, usually over UDP.
type Sender interface {
	SendProbe(msg message.Message) error
}

// Result of a measurement. Local was observed by this side, Remote is the
// peer's last report.
type Result struct {
	Local  measure.Measure
	Remote measure.Measure
}

// Engine is a running measurement engine.
type Engine interface {
	// Deliver an inbound probe or probe response, received at the given time.
	Deliver(msg message.Message, at time.Time)

	// Cancel this engine. Cancel is idempotent and might also be called after
	// the engine has finished.
	Cancel()

	// Done is closed when the engine has finished.
	Done() <-chan struct{}

	// Wait until the engine has finished and return its Result.
	Wait() (Result, error)
}

type inbound struct {
	msg message.Message
	at  time.Time
}

// engine implements the shared lifecycle of all engines. The embedding
// engine's loop must call finish exactly once.
type engine struct {
	inChan     chan inbound
	cancelChan chan struct{}
	cancelOnce sync.Once
	doneChan   chan struct{}

	result Result
	err    error
}

func newEngine() engine {
	return engine{
		inChan:     make(chan inbound, inboundBuffer),
		cancelChan: make(chan struct{}),
		doneChan:   make(chan struct{}),
	}
}

func (e *engine) Deliver(msg message.Message, at time.Time) {
	select {
	case e.inChan <- inbound{msg: msg, at: at}:
	case <-e.doneChan:
	}
}

func (e *engine) Cancel() {
	e.cancelOnce.Do(func() {
		close(e.cancelChan)
	})
}

func (e *engine) Done() <-chan struct{} {
	return e.doneChan
}

func (e *engine) Wait() (Result, error) {
	<-e.doneChan
	return e.result, e.err
}

func (e *engine) finish(result Result, err error) {
	e.result, e.err = result, err
	close(e.doneChan)
}

// rearm stops a timer, if any, and returns a new one.
func rearm(t *time.Timer, d time.Duration) *time.Timer {
	if t != nil {
		t.Stop()
	}
	return time.NewTimer(d)
}

// timerChan is a nil-safe accessor for a timer's channel.
func timerChan(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// newProbe creates a PING or BWIDTH request.
func newProbe(method message.Method, uri, sessionID string, seq uint64, local measure.Measure) *message.Request {
	req := message.NewRequest(method, uri)
	if sessionID != "" {
		req.Headers.SetSessionID(sessionID)
	}
	req.Headers.SetSequenceNumber(seq)
	req.Headers.SetMeasurements(local.Header())
	return req
}

// isPing checks for a PING request, returning it.
func isPing(msg message.Message) (*message.Request, bool) {
	req, ok := msg.(*message.Request)
	return req, ok && req.Method == message.Ping
}

// okSequence returns the Sequence-Number of a 200 Response.
func okSequence(msg message.Message) (uint64, bool) {
	resp, ok := msg.(*message.Response)
	if !ok || !resp.IsOK() {
		return 0, false
	}
	return resp.Headers.SequenceNumber()
}
