// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package server

import (
	"bufio"
	"errors"
	"net"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/q4s/q4s-go/pkg/message"
	"github.com/q4s/q4s-go/pkg/session"
)

// handshakeTimeout limits reading a BEGIN and writing its response.
const handshakeTimeout = 5 * time.Second

// handleHandshake serves a single BEGIN on a handshake connection.
func (srv *Server) handleHandshake(conn net.Conn) {
	defer conn.Close()

	logger := log.WithField("peer", conn.RemoteAddr())
	if err := conn.SetDeadline(time.Now().Add(handshakeTimeout)); err != nil {
		logger.WithError(err).Warn("Handshake failed to set a deadline")
		return
	}

	var resp *message.Response

	msg, err := message.ReadMessage(bufio.NewReader(conn))
	switch {
	case errors.Is(err, message.ErrMalformed):
		logger.WithError(err).Info("Handshake received a malformed message")
		resp = message.NewResponse(message.StatusBadRequest)

	case err != nil:
		logger.WithError(err).Debug("Handshake failed to read a message")
		return

	default:
		req, ok := msg.(*message.Request)
		if !ok {
			logger.WithField("message", msg).Debug("Handshake received a response")
			return
		}
		resp = srv.begin(req, conn.RemoteAddr())
	}

	out := bufio.NewWriter(conn)
	if err := resp.Marshal(out); err != nil {
		logger.WithError(err).Warn("Handshake failed to write its response")
	} else if err := out.Flush(); err != nil {
		logger.WithError(err).Warn("Handshake failed to write its response")
	}
}

// begin creates and stores a Session for a BEGIN request.
func (srv *Server) begin(req *message.Request, remote net.Addr) *message.Response {
	logger := log.WithField("peer", remote)

	if req.Method != message.Begin {
		logger.WithField("method", req.Method).Info("Handshake rejects a non-BEGIN request")
		return req.Reply(message.StatusMethodNotAllowed)
	}

	if srv.limiter != nil && !srv.limiter.Allow() {
		logger.Warn("Handshake rate limit exceeded")
		return req.Reply(message.StatusServiceUnavailable)
	}

	s, err := session.Decode(string(req.Body()))
	if err != nil {
		logger.WithError(err).Debug("BEGIN without a session descriptor, starting from defaults")
		s = session.New()
	}
	s.ID = ""
	s.Created = time.Now().Truncate(time.Second)

	cfg := srv.currentConfig()

	s.Procedure.Merge(cfg.Procedure)
	if cfg.AlertPause > 0 {
		s.Alert.AlertPause = cfg.AlertPause
	}
	if cfg.RecoveryPause > 0 {
		s.Alert.RecoveryPause = cfg.RecoveryPause
	}
	s.Alert.Mode = cfg.AlertMode

	if cfg.ServerAddress != "" {
		s.Addresses.SetServerAddress(cfg.ServerAddress)
	}
	s.Addresses.ServerQ4SPorts = srv.ports()

	if s.Addresses.ClientAddress == "" {
		if tcpAddr, ok := remote.(*net.TCPAddr); ok {
			s.Addresses.SetClientAddress(tcpAddr.IP.String())
		}
	}

	s.Quality.Constrain(cfg.Bounds)
	s.State = AwaitingConnection.String()

	if err := srv.store.Insert(s); err != nil {
		logger.WithError(err).Error("Handshake failed to store the Session")
		return req.Reply(message.StatusServerInternalError)
	}

	logger.WithFields(log.Fields{
		"session": s.ID,
		"quality": s.Quality,
	}).Info("Handshake created a Session")

	resp := req.Reply(message.StatusOK)
	resp.Headers.SetSessionID(s.ID)
	resp.SetBody(message.ContentTypeSDP, []byte(session.Encode(s)))
	return resp
}
