// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"io"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/q4s/q4s-go/pkg/message"
)

// pipeBuffer is the capacity of a PipeChannel's inbound queues.
const pipeBuffer = 256

// PipeChannel is one end of an in-memory Channel pair. Messages pass through their wire format.
type PipeChannel struct {
	peer  *PipeChannel
	delay time.Duration

	control chan Inbound
	probes  chan Inbound
	errChan chan error

	errOnce   sync.Once
	closeOnce sync.Once
	closeChan chan struct{}
}

func newPipeChannel(delay time.Duration) *PipeChannel {
	return &PipeChannel{
		delay:     delay,
		control:   make(chan Inbound, pipeBuffer),
		probes:    make(chan Inbound, pipeBuffer),
		errChan:   make(chan error, 1),
		closeChan: make(chan struct{}),
	}
}

// NewPipe connects two PipeChannels. Control messages are delivered in order and without delay, each probe is
// delivered after the one-way delay.
func NewPipe(delay time.Duration) (a, b *PipeChannel) {
	a, b = newPipeChannel(delay), newPipeChannel(delay)
	a.peer, b.peer = b, a
	return
}

func (pc *PipeChannel) closed() bool {
	select {
	case <-pc.closeChan:
		return true
	case <-pc.peer.closeChan:
		return true
	default:
		return false
	}
}

func (pc *PipeChannel) SendControl(msg message.Message) error {
	if pc.closed() {
		return ErrChannelClosed
	}

	parsed, err := message.Parse(message.Bytes(msg))
	if err != nil {
		return err
	}

	select {
	case pc.peer.control <- Inbound{Msg: parsed, At: time.Now()}:
		return nil
	case <-pc.closeChan:
		return ErrChannelClosed
	case <-pc.peer.closeChan:
		return ErrChannelClosed
	}
}

func (pc *PipeChannel) SendProbe(msg message.Message) error {
	if pc.closed() {
		return ErrChannelClosed
	}

	parsed, err := message.Parse(message.Bytes(msg))
	if err != nil {
		return err
	}

	time.AfterFunc(pc.delay, func() {
		select {
		case pc.peer.probes <- Inbound{Msg: parsed, At: time.Now()}:
		default:
			log.WithField("message", parsed).Debug("PipeChannel drops a probe, the queue is full")
		}
	})
	return nil
}

func (pc *PipeChannel) Control() <-chan Inbound {
	return pc.control
}

func (pc *PipeChannel) Probes() <-chan Inbound {
	return pc.probes
}

func (pc *PipeChannel) Errors() <-chan error {
	return pc.errChan
}

func (pc *PipeChannel) fail(err error) {
	pc.errOnce.Do(func() {
		pc.errChan <- err
	})
}

// Close this end. The peer receives an io.EOF on its error channel.
func (pc *PipeChannel) Close() error {
	pc.closeOnce.Do(func() {
		close(pc.closeChan)
		pc.peer.fail(io.EOF)
	})
	return nil
}
