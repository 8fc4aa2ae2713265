// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	log "github.com/sirupsen/logrus"
)

// Listener is bound to a TCP port and hands each accepted connection to its handler.
type Listener struct {
	listenAddress string
	handler       func(net.Conn)

	addr net.Addr

	stopSyn chan struct{}
	stopAck chan struct{}
}

// NewListener creates a new Listener which should be bound to the given address.
func NewListener(listenAddress string, handler func(net.Conn)) *Listener {
	return &Listener{
		listenAddress: listenAddress,
		handler:       handler,

		stopSyn: make(chan struct{}),
		stopAck: make(chan struct{}),
	}
}

// Start this Listener, accepting connections in the background until Close is called.
func (listener *Listener) Start() error {
	ln, err := ListenTCP(context.Background(), listener.listenAddress)
	if err != nil {
		return err
	}
	listener.addr = ln.Addr()

	go func(ln *net.TCPListener) {
		for {
			select {
			case <-listener.stopSyn:
				_ = ln.Close()
				close(listener.stopAck)

				return

			default:
				if err := ln.SetDeadline(time.Now().Add(50 * time.Millisecond)); err != nil {
					log.WithError(err).WithField("listener", listener).Error(
						"Listener failed to set deadline on TCP socket")

					_ = ln.Close()
					<-listener.stopSyn
					close(listener.stopAck)
					return
				} else if conn, err := ln.Accept(); err == nil {
					go listener.handler(conn)
				}
			}
		}
	}(ln)

	return nil
}

// Addr is the bound address, available after Start.
func (listener *Listener) Addr() net.Addr {
	return listener.addr
}

// Close signals this Listener to shut down.
func (listener *Listener) Close() error {
	close(listener.stopSyn)
	<-listener.stopAck

	return nil
}

func (listener *Listener) String() string {
	if listener.addr != nil {
		return fmt.Sprintf("tcp://%v", listener.addr)
	}
	return fmt.Sprintf("tcp://%s", listener.listenAddress)
}
