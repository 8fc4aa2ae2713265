// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package server implements a Q4S server.
//
// A Server listens on three sockets: the handshake TCP port, where each BEGIN creates a Session, the Q4S TCP port,
// where a client's control connection is bound to its Session by the Session-Id of its first request, and the Q4S UDP
// port, shared by all Sessions' probes. Each bound Session is run by its own Connection.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/q4s/q4s-go/pkg/alert"
	"github.com/q4s/q4s-go/pkg/measure"
	"github.com/q4s/q4s-go/pkg/message"
	"github.com/q4s/q4s-go/pkg/session"
	"github.com/q4s/q4s-go/pkg/storage"
	"github.com/q4s/q4s-go/pkg/transport"
)

var (
	// ErrUnknownSession is returned for a Session ID without a stored Session.
	ErrUnknownSession = errors.New("unknown session")

	// ErrSessionBound is returned when binding an already bound Session.
	ErrSessionBound = errors.New("session is already bound")
)

const (
	// DefaultSessionTimeout after which a Session without a control connection is purged.
	DefaultSessionTimeout = 30 * time.Second

	// bindTimeout limits waiting for a control connection's first request.
	bindTimeout = 10 * time.Second
)

// Config of a Server.
type Config struct {
	// HandshakeAddress, TCPAddress and UDPAddress are the listening addresses, e.g., ":2503".
	HandshakeAddress string
	TCPAddress       string
	UDPAddress       string

	// ServerAddress is announced as the server's public address, if set.
	ServerAddress string

	// URI is the Request-URI of the server's requests.
	URI string

	// TriggerURI is announced after a completed negotiation, if set.
	TriggerURI string

	// Procedure parameters overriding the client's proposal.
	Procedure measure.Procedure

	// Bounds of the negotiable quality.
	Bounds measure.Bounds

	// AlertMode and the pauses of each Session. A zero pause keeps the client's proposal.
	AlertMode     alert.Mode
	AlertPause    time.Duration
	RecoveryPause time.Duration

	// Policy after a failed bandwidth stage.
	Policy measure.FailurePolicy

	// HandshakeRate limits BEGINs per second, unlimited if zero. HandshakeBurst is the allowed burst, at least one.
	HandshakeRate  float64
	HandshakeBurst int

	// SessionTimeout after which an unbound Session is purged, DefaultSessionTimeout if zero.
	SessionTimeout time.Duration

	// PingCount, PingFinalizeDelay and BandwidthFinalizeDelay configure the engines, their defaults if zero.
	PingCount              int
	PingFinalizeDelay      time.Duration
	BandwidthFinalizeDelay time.Duration
}

// Addrs are a listening Server's bound addresses.
type Addrs struct {
	Handshake net.Addr
	Control   net.Addr
	Probe     net.Addr
}

// Server of Q4S Sessions.
type Server struct {
	store   storage.Store
	broker  *broker
	limiter *rate.Limiter

	configMu sync.Mutex
	config   Config

	handshakeListener *transport.Listener
	controlListener   *transport.Listener
	mux               *transport.PacketMux

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	connections map[string]*Connection
	wg          sync.WaitGroup
}

// New Server for a Config, keeping its Sessions in a Store.
func New(config Config, store storage.Store) *Server {
	if config.SessionTimeout <= 0 {
		config.SessionTimeout = DefaultSessionTimeout
	}
	config.Procedure.ApplyDefaults()

	srv := &Server{
		store:       store,
		broker:      newBroker(),
		config:      config,
		connections: make(map[string]*Connection),
	}
	srv.ctx, srv.cancel = context.WithCancel(context.Background())

	if config.HandshakeRate > 0 {
		burst := config.HandshakeBurst
		if burst < 1 {
			burst = 1
		}
		srv.limiter = rate.NewLimiter(rate.Limit(config.HandshakeRate), burst)
	}
	return srv
}

func (srv *Server) currentConfig() Config {
	srv.configMu.Lock()
	defer srv.configMu.Unlock()
	return srv.config
}

// SetBounds replaces the Bounds applied to new Sessions.
func (srv *Server) SetBounds(bounds measure.Bounds) {
	srv.configMu.Lock()
	srv.config.Bounds = bounds
	srv.configMu.Unlock()
}

// SetAlertPauses replaces the pauses applied to new Sessions.
func (srv *Server) SetAlertPauses(alertPause, recoveryPause time.Duration) {
	srv.configMu.Lock()
	srv.config.AlertPause = alertPause
	srv.config.RecoveryPause = recoveryPause
	srv.configMu.Unlock()
}

func (srv *Server) connectionConfig() ConnectionConfig {
	cfg := srv.currentConfig()
	return ConnectionConfig{
		URI:                    cfg.URI,
		TriggerURI:             cfg.TriggerURI,
		Policy:                 cfg.Policy,
		PingCount:              cfg.PingCount,
		PingFinalizeDelay:      cfg.PingFinalizeDelay,
		BandwidthFinalizeDelay: cfg.BandwidthFinalizeDelay,
	}
}

// Listen binds all three sockets.
func (srv *Server) Listen() error {
	cfg := srv.currentConfig()

	pc, err := transport.ListenUDP(srv.ctx, cfg.UDPAddress)
	if err != nil {
		return fmt.Errorf("binding Q4S UDP %s: %w", cfg.UDPAddress, err)
	}
	srv.mux = transport.NewPacketMux(pc)

	srv.controlListener = transport.NewListener(cfg.TCPAddress, srv.handleControl)
	if err := srv.controlListener.Start(); err != nil {
		_ = srv.mux.Close()
		return fmt.Errorf("binding Q4S TCP %s: %w", cfg.TCPAddress, err)
	}

	srv.handshakeListener = transport.NewListener(cfg.HandshakeAddress, srv.handleHandshake)
	if err := srv.handshakeListener.Start(); err != nil {
		_ = srv.controlListener.Close()
		_ = srv.mux.Close()
		return fmt.Errorf("binding handshake TCP %s: %w", cfg.HandshakeAddress, err)
	}

	addrs := srv.Addrs()
	log.WithFields(log.Fields{
		"handshake": addrs.Handshake,
		"tcp":       addrs.Control,
		"udp":       addrs.Probe,
	}).Info("Server is listening")
	return nil
}

// Addrs of a listening Server.
func (srv *Server) Addrs() (addrs Addrs) {
	if srv.handshakeListener != nil {
		addrs.Handshake = srv.handshakeListener.Addr()
	}
	if srv.controlListener != nil {
		addrs.Control = srv.controlListener.Addr()
	}
	if srv.mux != nil {
		addrs.Probe = srv.mux.LocalAddr()
	}
	return
}

// ports are the bound Q4S ports announced to clients.
func (srv *Server) ports() (p session.Ports) {
	addrs := srv.Addrs()
	if tcpAddr, ok := addrs.Control.(*net.TCPAddr); ok {
		p.TCP = tcpAddr.Port
	}
	if udpAddr, ok := addrs.Probe.(*net.UDPAddr); ok {
		p.UDP = udpAddr.Port
	}
	return
}

// Serve a listening Server until the context is done. All running Sessions are cancelled on return.
func (srv *Server) Serve(ctx context.Context) error {
	if srv.mux == nil {
		return errors.New("server is not listening")
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(srv.mux.Serve)

	g.Go(func() error {
		srv.purge(ctx)
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		srv.shutdown()
		return nil
	})

	return g.Wait()
}

// purge unbound Sessions periodically.
func (srv *Server) purge(ctx context.Context) {
	timeout := srv.currentConfig().SessionTimeout
	ticker := time.NewTicker(timeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case now := <-ticker.C:
			n, err := srv.store.Purge(AwaitingConnection.String(), now.Add(-timeout))
			if err != nil {
				log.WithError(err).Warn("Server failed to purge unbound Sessions")
			} else if n > 0 {
				log.WithField("sessions", n).Info("Server purged unbound Sessions")
			}
		}
	}
}

// shutdown the listeners and all Connections.
func (srv *Server) shutdown() {
	log.Info("Server shuts down")

	for _, l := range []*transport.Listener{srv.handshakeListener, srv.controlListener} {
		if l != nil {
			if err := l.Close(); err != nil {
				log.WithError(err).WithField("listener", l).Warn("Closing a listener errored")
			}
		}
	}

	srv.cancel()
	srv.wg.Wait()

	if srv.mux != nil {
		if err := srv.mux.Close(); err != nil {
			log.WithError(err).Warn("Closing the UDP socket errored")
		}
	}
}

// Subscribe to all Sessions' Events. The returned function ends the subscription and closes the channel.
func (srv *Server) Subscribe() (<-chan Event, func()) {
	return srv.broker.subscribe()
}

// Sessions currently stored.
func (srv *Server) Sessions() ([]*session.Session, error) {
	return srv.store.All()
}

// Session by its ID.
func (srv *Server) Session(id string) (*session.Session, error) {
	s, err := srv.store.Get(id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrUnknownSession
	}
	return s, err
}

// Cancel a Session. A bound Session receives a CANCEL; Cancel returns after its Connection has ended.
func (srv *Server) Cancel(id string) error {
	srv.mu.Lock()
	conn, ok := srv.connections[id]
	srv.mu.Unlock()

	if ok {
		conn.Close()
		return nil
	}

	if _, err := srv.Session(id); err != nil {
		return err
	}
	return srv.store.Remove(id)
}

// handleControl binds a control connection to its Session and runs it.
func (srv *Server) handleControl(conn net.Conn) {
	logger := log.WithField("peer", conn.RemoteAddr())

	ms := transport.NewStreamSwitch(conn, conn)
	s, first, err := srv.bind(ms)
	if err != nil {
		logger.WithError(err).Info("Control connection was not bound")
		_ = ms.Close()
		_ = conn.Close()
		return
	}

	var peer net.Addr
	if tcpAddr, ok := conn.RemoteAddr().(*net.TCPAddr); ok && s.Addresses.ClientQ4SPorts.UDP > 0 {
		peer = &net.UDPAddr{IP: tcpAddr.IP, Port: s.Addresses.ClientQ4SPorts.UDP}
	}

	route := srv.mux.Route(s.ID, peer)
	channel := transport.NewSessionChannel(ms, route, conn)

	if err := srv.attach(s, channel, first); err != nil {
		logger.WithError(err).Info("Control connection was not bound")
		_ = channel.Close()
	}
}

// bind waits for the first request of a control connection naming an unbound Session.
func (srv *Server) bind(ms transport.MessageSwitch) (*session.Session, transport.Inbound, error) {
	incoming, outgoing, errs := ms.Exchange()

	timer := time.NewTimer(bindTimeout)
	defer timer.Stop()

	for {
		select {
		case <-srv.ctx.Done():
			return nil, transport.Inbound{}, srv.ctx.Err()

		case <-timer.C:
			return nil, transport.Inbound{}, errors.New("no request naming a session")

		case err := <-errs:
			return nil, transport.Inbound{}, err

		case in := <-incoming:
			req, ok := in.Msg.(*message.Request)
			if !ok {
				continue
			}

			id := req.Headers.SessionID()
			if s, err := srv.store.Get(id); err == nil && s.State == AwaitingConnection.String() {
				return s, in, nil
			}

			log.WithFields(log.Fields{
				"session": id,
				"method":  req.Method,
			}).Info("Control connection names an unknown session")

			select {
			case outgoing <- req.Reply(message.StatusSessionDoesNotExist):
			case <-srv.ctx.Done():
			}
		}
	}
}

// attach a Session's Channel and run its Connection. The backlog is handled first.
func (srv *Server) attach(s *session.Session, channel transport.Channel, backlog ...transport.Inbound) error {
	srv.mu.Lock()
	if _, ok := srv.connections[s.ID]; ok {
		srv.mu.Unlock()
		return ErrSessionBound
	}

	conn := NewConnection(srv.connectionConfig(), s, channel, srv.store, srv.broker.publish)
	srv.connections[s.ID] = conn
	srv.wg.Add(1)
	srv.mu.Unlock()

	srv.broker.publish(Event{Kind: EventConnected, SessionID: s.ID, State: HandshakeDone.String()})

	go func() {
		defer srv.wg.Done()

		if err := conn.Run(srv.ctx, backlog...); err != nil {
			log.WithError(err).WithField("session", s.ID).Debug("Connection returned an error")
		}

		srv.mu.Lock()
		delete(srv.connections, s.ID)
		srv.mu.Unlock()
	}()
	return nil
}
