// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/q4s/q4s-go/pkg/message"
)

const (
	// maxDatagramSize is the largest UDP payload to be read.
	maxDatagramSize = 65535

	// routeBuffer is the capacity of a PacketRoute's inbound queue.
	routeBuffer = 256
)

var (
	// ErrNoPeer is returned when sending on a PacketRoute without a known peer address.
	ErrNoPeer = errors.New("peer address is unknown")

	// ErrRouteClosed is returned when sending on a closed PacketRoute.
	ErrRouteClosed = errors.New("route is closed")
)

// PacketMux shares a net.PacketConn between sessions. Each datagram is routed by its Session-Id header.
type PacketMux struct {
	conn net.PacketConn

	mu     sync.RWMutex
	routes map[string]*PacketRoute

	closeOnce sync.Once
	closeChan chan struct{}
}

// NewPacketMux for a net.PacketConn. The PacketMux owns the connection and closes it in its Close method.
func NewPacketMux(conn net.PacketConn) *PacketMux {
	return &PacketMux{
		conn:      conn,
		routes:    make(map[string]*PacketRoute),
		closeChan: make(chan struct{}),
	}
}

// LocalAddr of the underlying net.PacketConn.
func (m *PacketMux) LocalAddr() net.Addr {
	return m.conn.LocalAddr()
}

// Serve reads and dispatches datagrams until the PacketMux is closed, which results in a nil error.
func (m *PacketMux) Serve() error {
	buf := make([]byte, maxDatagramSize)

	for {
		n, addr, err := m.conn.ReadFrom(buf)
		at := time.Now()

		if err != nil {
			select {
			case <-m.closeChan:
				return nil
			default:
				return fmt.Errorf("reading datagram: %w", err)
			}
		}

		m.dispatch(append([]byte(nil), buf[:n]...), addr, at)
	}
}

func (m *PacketMux) dispatch(data []byte, addr net.Addr, at time.Time) {
	msg, err := message.Parse(data)
	if err != nil {
		log.WithError(err).WithField("peer", addr).Debug("PacketMux answers a malformed datagram")

		resp := message.NewResponse(message.StatusBadRequest)
		if _, err := m.conn.WriteTo(message.Bytes(resp), addr); err != nil {
			log.WithError(err).WithField("peer", addr).Debug("PacketMux failed to answer")
		}
		return
	}

	sessionID := msg.Header().SessionID()

	m.mu.RLock()
	route, ok := m.routes[sessionID]
	m.mu.RUnlock()

	if !ok {
		log.WithFields(log.Fields{
			"peer":    addr,
			"session": sessionID,
			"message": msg,
		}).Warn("PacketMux drops a datagram of an unknown session")
		return
	}

	route.deliver(Inbound{Msg: msg, At: at, Addr: addr})
}

// Route registers a PacketRoute for a session, replacing a previous one. Datagrams are sent to peer until another
// address is learned from an inbound datagram.
func (m *PacketMux) Route(sessionID string, peer net.Addr) *PacketRoute {
	route := &PacketRoute{
		mux:       m,
		sessionID: sessionID,
		peer:      peer,
		inChan:    make(chan Inbound, routeBuffer),
		closeChan: make(chan struct{}),
	}

	m.mu.Lock()
	if old, ok := m.routes[sessionID]; ok {
		old.markClosed()
	}
	m.routes[sessionID] = route
	m.mu.Unlock()

	return route
}

func (m *PacketMux) unroute(route *PacketRoute) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.routes[route.sessionID] == route {
		delete(m.routes, route.sessionID)
	}
}

// Close the PacketMux and its connection.
func (m *PacketMux) Close() (err error) {
	m.closeOnce.Do(func() {
		close(m.closeChan)
		err = m.conn.Close()
	})
	return
}

// PacketRoute is a session's share of a PacketMux. It implements the probe.Sender.
type PacketRoute struct {
	mux       *PacketMux
	sessionID string

	mu   sync.Mutex
	peer net.Addr

	inChan    chan Inbound
	closeOnce sync.Once
	closeChan chan struct{}
}

func (r *PacketRoute) deliver(in Inbound) {
	r.mu.Lock()
	r.peer = in.Addr
	r.mu.Unlock()

	select {
	case r.inChan <- in:
	default:
		log.WithFields(log.Fields{
			"session": r.sessionID,
			"message": in.Msg,
		}).Debug("PacketRoute drops a datagram, its queue is full")
	}
}

// Incoming datagrams of this session.
func (r *PacketRoute) Incoming() <-chan Inbound {
	return r.inChan
}

// Peer is the address datagrams are sent to.
func (r *PacketRoute) Peer() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.peer
}

// SendProbe sends a message as a datagram to the peer.
func (r *PacketRoute) SendProbe(msg message.Message) error {
	select {
	case <-r.closeChan:
		return ErrRouteClosed
	default:
	}

	peer := r.Peer()
	if peer == nil {
		return ErrNoPeer
	}

	if _, err := r.mux.conn.WriteTo(message.Bytes(msg), peer); err != nil {
		return fmt.Errorf("sending datagram to %v: %w", peer, err)
	}
	return nil
}

func (r *PacketRoute) markClosed() {
	r.closeOnce.Do(func() {
		close(r.closeChan)
	})
}

// Close this PacketRoute and deregister it from its PacketMux.
func (r *PacketRoute) Close() error {
	r.markClosed()
	r.mux.unroute(r)
	return nil
}
