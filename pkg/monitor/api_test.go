// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package monitor

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/q4s/q4s-go/pkg/measure"
	"github.com/q4s/q4s-go/pkg/server"
	"github.com/q4s/q4s-go/pkg/session"
)

// fakeSessions is a Sessions implementation with a single subscription.
type fakeSessions struct {
	mu        sync.Mutex
	sessions  map[string]*session.Session
	cancelled []string
	events    chan server.Event
}

func newFakeSessions() *fakeSessions {
	s := session.New()
	s.ID = "a"
	s.State = "MEASURING_CONTINUITY"
	s.Quality.Latency = measure.Some(40)
	s.Addresses.SetClientAddress("192.0.2.10")

	return &fakeSessions{
		sessions: map[string]*session.Session{"a": s},
		events:   make(chan server.Event, 16),
	}
}

func (f *fakeSessions) Sessions() ([]*session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var sessions []*session.Session
	for _, s := range f.sessions {
		sessions = append(sessions, s.Clone())
	}
	return sessions, nil
}

func (f *fakeSessions) Session(id string) (*session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if s, ok := f.sessions[id]; ok {
		return s.Clone(), nil
	}
	return nil, server.ErrUnknownSession
}

func (f *fakeSessions) Cancel(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.sessions[id]; !ok {
		return server.ErrUnknownSession
	}
	delete(f.sessions, id)
	f.cancelled = append(f.cancelled, id)
	return nil
}

func (f *fakeSessions) Subscribe() (<-chan server.Event, func()) {
	return f.events, func() {}
}

func get(t *testing.T, url string, status int) []byte {
	t.Helper()

	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != status {
		t.Fatalf("GET %s: expected %d, got %d: %s", url, status, resp.StatusCode, body)
	}
	return body
}

func TestAPISessions(t *testing.T) {
	sessions := newFakeSessions()
	ts := httptest.NewServer(New(sessions).Handler())
	defer ts.Close()

	var views []sessionView
	if err := json.Unmarshal(get(t, ts.URL+"/sessions", http.StatusOK), &views); err != nil {
		t.Fatal(err)
	}
	if len(views) != 1 || views[0].ID != "a" || views[0].ClientAddress != "192.0.2.10" {
		t.Fatalf("unexpected sessions %v", views)
	}
	if views[0].Quality.Latency != measure.Some(40) || views[0].Quality.JitterUp.Valid {
		t.Fatalf("unexpected quality %v", views[0].Quality)
	}

	var view sessionView
	if err := json.Unmarshal(get(t, ts.URL+"/sessions/a", http.StatusOK), &view); err != nil {
		t.Fatal(err)
	}
	if view.State != "MEASURING_CONTINUITY" || view.AlertingMode != "Reactive" {
		t.Fatalf("unexpected session %v", view)
	}

	get(t, ts.URL+"/sessions/b", http.StatusNotFound)
}

func TestAPICancel(t *testing.T) {
	sessions := newFakeSessions()
	ts := httptest.NewServer(New(sessions).Handler())
	defer ts.Close()

	for _, status := range []int{http.StatusNoContent, http.StatusNotFound} {
		req, err := http.NewRequest(http.MethodDelete, ts.URL+"/sessions/a", nil)
		if err != nil {
			t.Fatal(err)
		}

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		_ = resp.Body.Close()

		if resp.StatusCode != status {
			t.Fatalf("DELETE: expected %d, got %d", status, resp.StatusCode)
		}
	}

	if len(sessions.cancelled) != 1 || sessions.cancelled[0] != "a" {
		t.Fatalf("cancelled %v", sessions.cancelled)
	}
}

func TestAPIFeed(t *testing.T) {
	sessions := newFakeSessions()
	ts := httptest.NewServer(New(sessions).Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	measured := measure.MeasurementSet{Latency: measure.Some(12)}
	sessions.events <- server.Event{
		Kind:      server.EventAlert,
		SessionID: "a",
		Stage:     2,
		Measured:  &measured,
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var e server.Event
	if err := conn.ReadJSON(&e); err != nil {
		t.Fatal(err)
	}
	if e.Kind != server.EventAlert || e.SessionID != "a" || e.Measured == nil || e.Measured.Latency != measure.Some(12) {
		t.Fatalf("unexpected Event %v", e)
	}
}
