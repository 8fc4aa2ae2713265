// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package monitor exposes a Q4S server's sessions over HTTP: a REST API to list and cancel sessions, a WebSocket feed
// of all session Events and Prometheus metrics.
package monitor

import (
	"context"
	"errors"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/q4s/q4s-go/pkg/server"
	"github.com/q4s/q4s-go/pkg/session"
)

// Sessions is the part of a server.Server being monitored.
type Sessions interface {
	Sessions() ([]*session.Session, error)
	Session(id string) (*session.Session, error)
	Cancel(id string) error
	Subscribe() (<-chan server.Event, func())
}

// Monitor of a server's Sessions.
type Monitor struct {
	sessions Sessions
	metrics  *Metrics
	api      *API
}

// New Monitor for some Sessions.
func New(sessions Sessions) *Monitor {
	metrics := NewMetrics()
	return &Monitor{
		sessions: sessions,
		metrics:  metrics,
		api:      NewAPI(sessions, metrics),
	}
}

// Handler serves the REST API, the WebSocket feed and the metrics.
func (m *Monitor) Handler() http.Handler {
	return m.api
}

// Observe feeds all Events into the Metrics until the context is done.
func (m *Monitor) Observe(ctx context.Context) {
	events, unsubscribe := m.sessions.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return

		case e, ok := <-events:
			if !ok {
				return
			}
			m.metrics.Observe(e)
		}
	}
}

// ListenAndServe the Handler on an address until the context is done.
func (m *Monitor) ListenAndServe(ctx context.Context, address string) error {
	httpServer := &http.Server{
		Addr:              address,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go m.Observe(ctx)

	errChan := make(chan error, 1)
	go func() {
		log.WithField("address", address).Info("Monitor starts serving")
		errChan <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		return err

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errChan; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
