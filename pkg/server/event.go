// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package server

import (
	"sync"
	"time"

	"github.com/q4s/q4s-go/pkg/measure"
)

// EventKind distinguishes Events.
type EventKind string

const (
	EventConnected EventKind = "connected"
	EventMeasure   EventKind = "measure"
	EventAlert     EventKind = "alert"
	EventRecovery  EventKind = "recovery"
	EventCompleted EventKind = "completed"
	EventEnd       EventKind = "end"
	EventError     EventKind = "error"
)

// Event of a server-side session.
type Event struct {
	Kind      EventKind `json:"kind"`
	SessionID string    `json:"session"`
	Time      time.Time `json:"time"`
	State     string    `json:"state,omitempty"`

	Stage    int                     `json:"stage"`
	Measured *measure.MeasurementSet `json:"measured,omitempty"`
	Met      bool                    `json:"met"`

	Error string `json:"error,omitempty"`
}

// subscriberBuffer is the capacity of each subscription.
const subscriberBuffer = 256

// broker distributes Events to its subscribers. Slow subscribers miss Events.
type broker struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func newBroker() *broker {
	return &broker{subs: make(map[chan Event]struct{})}
}

func (b *broker) publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *broker) subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}
