// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package monitor

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/q4s/q4s-go/pkg/server"
)

// errorResponse is the body of a failed request.
type errorResponse struct {
	Error string `json:"error"`
}

// API is the HTTP interface of a Monitor.
type API struct {
	router   *mux.Router
	sessions Sessions
	upgrader websocket.Upgrader
}

// NewAPI for some Sessions, exposing the Metrics.
func NewAPI(sessions Sessions, metrics *Metrics) (api *API) {
	api = &API{
		router:   mux.NewRouter(),
		sessions: sessions,
	}

	api.router.HandleFunc("/sessions", api.handleList).Methods(http.MethodGet)
	api.router.HandleFunc("/sessions/{id}", api.handleGet).Methods(http.MethodGet)
	api.router.HandleFunc("/sessions/{id}", api.handleCancel).Methods(http.MethodDelete)
	api.router.HandleFunc("/ws", api.handleFeed).Methods(http.MethodGet)
	api.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	return api
}

// ServeHTTP is a http.Handler to be bound to a HTTP endpoint.
func (api *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	api.router.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("Failed to write API response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, server.ErrUnknownSession) {
		status = http.StatusNotFound
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// handleList processes GET /sessions.
func (api *API) handleList(w http.ResponseWriter, _ *http.Request) {
	sessions, err := api.sessions.Sessions()
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, newSessionView(s))
	}
	writeJSON(w, http.StatusOK, views)
}

// handleGet processes GET /sessions/{id}.
func (api *API) handleGet(w http.ResponseWriter, r *http.Request) {
	s, err := api.sessions.Session(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionView(s))
}

// handleCancel processes DELETE /sessions/{id}.
func (api *API) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := api.sessions.Cancel(id); err != nil {
		writeError(w, err)
		return
	}

	log.WithField("session", id).Info("Session was cancelled through the API")
	w.WriteHeader(http.StatusNoContent)
}

// handleFeed upgrades GET /ws to a WebSocket, sending each Event as a JSON text message.
func (api *API) handleFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := api.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("Upgrading HTTP request to WebSocket errored")
		return
	}
	defer conn.Close()

	logger := log.WithField("feed client", conn.RemoteAddr().String())

	events, unsubscribe := api.sessions.Subscribe()
	defer unsubscribe()

	// Inbound messages are discarded, but reading is required to notice a closed connection.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			logger.Debug("Feed client disconnected")
			return

		case e, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(e); err != nil {
				logger.WithError(err).Debug("Writing an Event to the feed errored")
				return
			}
		}
	}
}
