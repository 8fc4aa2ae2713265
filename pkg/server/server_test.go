// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package server

import (
	"bufio"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/q4s/q4s-go/pkg/alert"
	"github.com/q4s/q4s-go/pkg/client"
	"github.com/q4s/q4s-go/pkg/measure"
	"github.com/q4s/q4s-go/pkg/message"
	"github.com/q4s/q4s-go/pkg/session"
	"github.com/q4s/q4s-go/pkg/storage"
	"github.com/q4s/q4s-go/pkg/transport"
)

func testConfig() Config {
	return Config{
		HandshakeAddress: "127.0.0.1:0",
		TCPAddress:       "127.0.0.1:0",
		UDPAddress:       "127.0.0.1:0",
		URI:              testURI,
		TriggerURI:       "https://app.example.com/start",
		Procedure: measure.Procedure{
			NegotiationPingUp:   5,
			NegotiationPingDown: 5,
			ContinuityPingUp:    10,
			ContinuityPingDown:  10,
		},
		AlertMode:         alert.Reactive,
		AlertPause:        500 * time.Millisecond,
		PingCount:         20,
		PingFinalizeDelay: 100 * time.Millisecond,
	}
}

func beginRequest(s *session.Session) *message.Request {
	req := message.NewRequest(message.Begin, testURI)
	req.SetBody(message.ContentTypeSDP, []byte(session.Encode(s)))
	return req
}

func TestServerBegin(t *testing.T) {
	store := storage.NewMemoryStore()

	cfg := testConfig()
	cfg.ServerAddress = "198.51.100.7"
	cfg.Bounds.Latency = measure.Range{Min: measure.Some(50)}
	srv := New(cfg, store)

	proposal := session.New()
	proposal.ID = "chosen-by-client"
	proposal.Quality.Latency = measure.Some(20)
	proposal.Quality.PacketLossUp = measure.Some(0.1)
	proposal.Addresses.ClientQ4SPorts = session.Ports{TCP: 2501, UDP: 2502}

	resp := srv.begin(beginRequest(proposal), &net.TCPAddr{IP: net.IPv4(192, 0, 2, 10), Port: 40000})
	if resp.StatusCode != message.StatusOK {
		t.Fatalf("BEGIN was answered with %v", resp)
	}

	id := resp.Headers.SessionID()
	if id == "" || id == proposal.ID {
		t.Fatalf("Session-Id is %q", id)
	}
	if ct := resp.Headers.ContentType(); ct != message.ContentTypeSDP {
		t.Fatalf("Content-Type is %q", ct)
	}

	s, err := session.Decode(string(resp.Body()))
	if err != nil {
		t.Fatal(err)
	}

	expectedQuality := measure.MeasurementSet{
		Latency:      measure.Some(50),
		PacketLossUp: measure.Some(0.1),
	}
	if diff := cmp.Diff(expectedQuality, s.Quality); diff != "" {
		t.Fatalf("quality mismatch (-want +got):\n%s", diff)
	}

	if s.ID != id {
		t.Fatalf("descriptor names session %q", s.ID)
	}
	if a := s.Addresses; a.ClientAddress != "192.0.2.10" || a.ServerAddress != "198.51.100.7" {
		t.Fatalf("unexpected addresses %v", a)
	}
	if p := s.Addresses.ClientQ4SPorts; p.TCP != 2501 || p.UDP != 2502 {
		t.Fatalf("client ports are %v", p)
	}
	if s.Procedure.NegotiationPingUp != 5 || s.Procedure.WindowUp != measure.DefaultProcedure().WindowUp {
		t.Fatalf("procedure is %v", s.Procedure)
	}
	if s.Alert.AlertPause != 500*time.Millisecond || s.Alert.RecoveryPause != alert.DefaultPause {
		t.Fatalf("alerting is %v", s.Alert)
	}

	stored, err := srv.Session(id)
	if err != nil {
		t.Fatal(err)
	}
	if stored.State != AwaitingConnection.String() {
		t.Fatalf("stored state is %q", stored.State)
	}
}

func TestServerBeginRejects(t *testing.T) {
	cfg := testConfig()
	cfg.HandshakeRate = 0.001
	cfg.HandshakeBurst = 1
	srv := New(cfg, storage.NewMemoryStore())

	remote := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)}

	ready := message.NewRequest(message.Ready, testURI)
	ready.Headers.SetStage(0)
	if resp := srv.begin(ready, remote); resp.StatusCode != message.StatusMethodNotAllowed {
		t.Fatalf("READY was answered with %v", resp)
	}

	// A BEGIN without a descriptor starts from the defaults.
	if resp := srv.begin(message.NewRequest(message.Begin, testURI), remote); !resp.IsOK() {
		t.Fatalf("first BEGIN was answered with %v", resp)
	}
	if resp := srv.begin(beginRequest(session.New()), remote); resp.StatusCode != message.StatusServiceUnavailable {
		t.Fatalf("second BEGIN was answered with %v", resp)
	}

	if sessions, err := srv.Sessions(); err != nil {
		t.Fatal(err)
	} else if len(sessions) != 1 {
		t.Fatalf("%d sessions are stored", len(sessions))
	}
}

func TestServerCancelUnbound(t *testing.T) {
	srv := New(testConfig(), storage.NewMemoryStore())

	resp := srv.begin(beginRequest(session.New()), &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)})
	id := resp.Headers.SessionID()

	if err := srv.Cancel(id); err != nil {
		t.Fatal(err)
	}
	if _, err := srv.Session(id); !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("expected ErrUnknownSession, got %v", err)
	}
	if err := srv.Cancel(id); !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("expected ErrUnknownSession, got %v", err)
	}
}

// pipeDialer connects a Client to a Server in memory.
type pipeDialer struct {
	srv   *Server
	delay time.Duration
}

func (d *pipeDialer) Handshake(_ context.Context, req *message.Request) (*message.Response, error) {
	return d.srv.begin(req, &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)}), nil
}

func (d *pipeDialer) Connect(_ context.Context, s *session.Session) (transport.Channel, error) {
	stored, err := d.srv.Session(s.ID)
	if err != nil {
		return nil, err
	}

	clientEnd, serverEnd := transport.NewPipe(d.delay)
	if err := d.srv.attach(stored, serverEnd); err != nil {
		return nil, err
	}
	return clientEnd, nil
}

func clientConfig() client.Config {
	s := session.New()
	s.Quality.Latency = measure.Some(200)
	s.Quality.PacketLossUp = measure.Some(0.5)
	s.Quality.PacketLossDown = measure.Some(0.5)

	return client.Config{
		Session:           s,
		URI:               testURI,
		PingCount:         20,
		PingFinalizeDelay: 100 * time.Millisecond,
	}
}

func expectClientEvent(t *testing.T, c *client.Client, kind client.EventKind) client.Event {
	t.Helper()

	for {
		select {
		case e, ok := <-c.Events():
			if !ok {
				t.Fatalf("Events closed before %v", kind)
			}
			if e.Kind == kind {
				return e
			}
		case <-time.After(10 * time.Second):
			t.Fatalf("no client %v Event", kind)
		}
	}
}

func expectServerEvent(t *testing.T, events <-chan Event, kind EventKind) Event {
	t.Helper()

	for {
		select {
		case e := <-events:
			if e.Kind == kind {
				return e
			}
		case <-time.After(10 * time.Second):
			t.Fatalf("no server %v Event", kind)
		}
	}
}

func TestServerClientInMemory(t *testing.T) {
	store := storage.NewMemoryStore()
	srv := New(testConfig(), store)

	events, unsubscribe := srv.Subscribe()
	defer unsubscribe()

	c := client.New(clientConfig(), &pipeDialer{srv: srv, delay: 10 * time.Millisecond})
	errChan := make(chan error, 1)
	go func() { errChan <- c.Run(context.Background()) }()

	connected := expectServerEvent(t, events, EventConnected)

	e := expectServerEvent(t, events, EventMeasure)
	if e.SessionID != connected.SessionID || e.Stage != 0 || !e.Met {
		t.Fatalf("unexpected server Event %v", e)
	}
	if l := e.Measured.Latency; !l.Valid || l.Value < 20 {
		t.Fatalf("server measured a latency of %v", l)
	}

	ce := expectClientEvent(t, c, client.EventMeasure)
	if ce.Stage != 0 || !ce.Met {
		t.Fatalf("unexpected client Event %v", ce)
	}
	if l := ce.Measured.Latency; !l.Valid || l.Value < 20 {
		t.Fatalf("client measured a latency of %v", l)
	}

	if ce := expectClientEvent(t, c, client.EventCompleted); ce.TriggerURI != "https://app.example.com/start" {
		t.Fatalf("trigger URI is %q", ce.TriggerURI)
	}
	expectServerEvent(t, events, EventCompleted)

	if s, err := srv.Session(connected.SessionID); err != nil {
		t.Fatal(err)
	} else if s.State != MeasuringContinuity.String() {
		t.Fatalf("stored state is %q", s.State)
	}

	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if err := <-errChan; err != nil {
		t.Fatalf("client returned %v", err)
	}

	expectServerEvent(t, events, EventEnd)
	if sessions, err := srv.Sessions(); err != nil {
		t.Fatal(err)
	} else if len(sessions) != 0 {
		t.Fatalf("%d sessions remain", len(sessions))
	}
}

func TestServerSockets(t *testing.T) {
	srv := New(testConfig(), storage.NewMemoryStore())
	if err := srv.Listen(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ctx) }()

	addrs := srv.Addrs()
	events, unsubscribe := srv.Subscribe()
	defer unsubscribe()

	// A control connection naming an unknown session is refused.
	conn, err := net.Dial("tcp", addrs.Control.String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	ready := message.NewRequest(message.Ready, testURI)
	ready.Headers.SetStage(0)
	ready.Headers.SetSessionID("unknown")
	if err := ready.Marshal(conn); err != nil {
		t.Fatal(err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if msg, err := message.ReadMessage(bufio.NewReader(conn)); err != nil {
		t.Fatal(err)
	} else if resp, ok := msg.(*message.Response); !ok || resp.StatusCode != message.StatusSessionDoesNotExist {
		t.Fatalf("READY of an unknown session was answered with %v", msg)
	}

	c := client.New(clientConfig(), &client.TCPDialer{HandshakeAddress: addrs.Handshake.String()})
	errChan := make(chan error, 1)
	go func() { errChan <- c.Run(context.Background()) }()

	expectClientEvent(t, c, client.EventCompleted)
	expectServerEvent(t, events, EventCompleted)

	// Shutting the server down cancels the session.
	cancel()

	select {
	case err := <-errChan:
		if err != nil {
			t.Fatalf("client returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("client was not cancelled")
	}

	select {
	case err := <-serveErr:
		if err != nil {
			t.Fatalf("Serve returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return")
	}
}
