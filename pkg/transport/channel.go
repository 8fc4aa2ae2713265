// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"errors"
	"io"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/q4s/q4s-go/pkg/message"
)

// ErrChannelClosed is returned when sending on a closed Channel.
var ErrChannelClosed = errors.New("channel is closed")

// Channel bundles a session's control and probe traffic.
type Channel interface {
	io.Closer

	// SendControl sends a message on the control channel, usually TCP.
	SendControl(msg message.Message) error

	// SendProbe sends a message on the probe channel, usually UDP.
	SendProbe(msg message.Message) error

	// Control messages received.
	Control() <-chan Inbound

	// Probes received.
	Probes() <-chan Inbound

	// Errors of the control channel. Only one error will be sent.
	Errors() <-chan error
}

// SessionChannel is a Channel of a MessageSwitch for control messages and a PacketRoute for probes.
type SessionChannel struct {
	control MessageSwitch
	route   *PacketRoute
	closers []io.Closer

	incoming <-chan Inbound
	outgoing chan<- message.Message
	errChan  <-chan error

	closeOnce sync.Once
	closeChan chan struct{}
}

// NewSessionChannel creates a SessionChannel. The closers are closed after the MessageSwitch and the PacketRoute.
func NewSessionChannel(control MessageSwitch, route *PacketRoute, closers ...io.Closer) *SessionChannel {
	incoming, outgoing, errChan := control.Exchange()

	return &SessionChannel{
		control: control,
		route:   route,
		closers: closers,

		incoming: incoming,
		outgoing: outgoing,
		errChan:  errChan,

		closeChan: make(chan struct{}),
	}
}

func (sc *SessionChannel) SendControl(msg message.Message) error {
	select {
	case <-sc.closeChan:
		return ErrChannelClosed
	default:
	}

	select {
	case sc.outgoing <- msg:
		return nil
	case <-sc.closeChan:
		return ErrChannelClosed
	}
}

func (sc *SessionChannel) SendProbe(msg message.Message) error {
	return sc.route.SendProbe(msg)
}

func (sc *SessionChannel) Control() <-chan Inbound {
	return sc.incoming
}

func (sc *SessionChannel) Probes() <-chan Inbound {
	return sc.route.Incoming()
}

func (sc *SessionChannel) Errors() <-chan error {
	return sc.errChan
}

// Close the SessionChannel and all of its parts.
func (sc *SessionChannel) Close() (err error) {
	sc.closeOnce.Do(func() {
		close(sc.closeChan)

		// The MessageSwitch reports an error if it has already finished, e.g., after a network failure.
		_ = sc.control.Close()
		_ = sc.route.Close()

		for _, closer := range sc.closers {
			if closeErr := closer.Close(); closeErr != nil {
				err = multierror.Append(err, closeErr)
			}
		}
	})
	return
}
