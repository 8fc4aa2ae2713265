// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package client

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/q4s/q4s-go/pkg/message"
	"github.com/q4s/q4s-go/pkg/session"
	"github.com/q4s/q4s-go/pkg/transport"
)

// handshakeTimeout limits a handshake without a context deadline.
const handshakeTimeout = 5 * time.Second

// TCPDialer is the Dialer of a Client talking to a Q4S server over the network.
//
// The handshake takes place on its own TCP connection. Afterwards, the Session's control channel is a TCP connection
// to the server's Q4S TCP port and the probes are exchanged with its Q4S UDP port. The local ends are bound to the
// client's announced Q4S ports, if set.
type TCPDialer struct {
	// HandshakeAddress is the server's handshake endpoint, host:port.
	HandshakeAddress string
}

// Handshake sends the BEGIN request and reads the server's response.
func (d *TCPDialer) Handshake(ctx context.Context, req *message.Request) (*message.Response, error) {
	conn, err := transport.DialTCP(ctx, d.HandshakeAddress, 0)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(handshakeTimeout)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, err
	}

	out := bufio.NewWriter(conn)
	if err := req.Marshal(out); err != nil {
		return nil, err
	}
	if err := out.Flush(); err != nil {
		return nil, err
	}

	msg, err := message.ReadMessage(bufio.NewReader(conn))
	if err != nil {
		return nil, fmt.Errorf("reading the handshake response: %w", err)
	}

	resp, ok := msg.(*message.Response)
	if !ok {
		return nil, fmt.Errorf("expected a handshake response, got %v", msg)
	}
	return resp, nil
}

// serverHost is the server's host, preferring the handshake's host over the announced address.
func (d *TCPDialer) serverHost(s *session.Session) string {
	if host, _, err := net.SplitHostPort(d.HandshakeAddress); err == nil && host != "" {
		return host
	}
	return s.Addresses.ServerAddress
}

// Connect opens the Session's control and probe channels.
func (d *TCPDialer) Connect(ctx context.Context, s *session.Session) (transport.Channel, error) {
	host := d.serverHost(s)
	ports := s.Addresses.ClientQ4SPorts

	udpAddr, err := transport.UDPAddr(host, s.Addresses.ServerQ4SPorts.UDP)
	if err != nil {
		return nil, err
	}

	pc, err := transport.ListenUDP(ctx, fmt.Sprintf(":%d", ports.UDP))
	if err != nil {
		return nil, fmt.Errorf("binding UDP port %d: %w", ports.UDP, err)
	}

	conn, err := transport.DialTCP(ctx, transport.PortAddress(host, s.Addresses.ServerQ4SPorts.TCP), ports.TCP)
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("connecting the control channel: %w", err)
	}

	mux := transport.NewPacketMux(pc)
	go func() {
		if err := mux.Serve(); err != nil {
			log.WithError(err).WithField("session", s.ID).Warn("Client's UDP socket failed")
		}
	}()

	log.WithFields(log.Fields{
		"session": s.ID,
		"tcp":     conn.LocalAddr(),
		"udp":     pc.LocalAddr(),
	}).Debug("Client connected the session's channels")

	route := mux.Route(s.ID, udpAddr)
	return transport.NewSessionChannel(transport.NewStreamSwitch(conn, conn), route, conn, mux), nil
}
