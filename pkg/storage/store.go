// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package storage keeps the server's Sessions, either in memory or persisted
// in a badgerhold database.
package storage

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/q4s/q4s-go/pkg/session"
)

// ErrNotFound is returned for an unknown Session ID.
var ErrNotFound = errors.New("session not found")

// Store of Sessions. Each method operates on independent copies; modifying a
// returned Session requires an Update.
type Store interface {
	// Insert a new Session. An empty ID is replaced by a random UUID, which is
	// also set on the passed Session.
	Insert(s *session.Session) error

	// Get a Session by its ID.
	Get(id string) (*session.Session, error)

	// FindOne returns the first Session matching the predicate.
	FindOne(pred func(*session.Session) bool) (*session.Session, error)

	// All Sessions.
	All() ([]*session.Session, error)

	// Update an existing Session.
	Update(s *session.Session) error

	// Remove a Session. Removing an unknown Session is not an error.
	Remove(id string) error

	// Purge all Sessions in a given state created before a point in time and
	// return their number.
	Purge(state string, before time.Time) (int, error)

	// Close the Store. It must not be used afterwards.
	Close() error
}

// assignID sets a new random ID on a Session without one.
func assignID(s *session.Session) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
}
