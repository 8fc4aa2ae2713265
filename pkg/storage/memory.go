// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package storage

import (
	"fmt"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/q4s/q4s-go/pkg/session"
)

// MemoryStore is a volatile Store.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*session.Session)}
}

func (ms *MemoryStore) Insert(s *session.Session) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	assignID(s)
	if _, ok := ms.sessions[s.ID]; ok {
		return fmt.Errorf("session %s already exists", s.ID)
	}

	log.WithField("session", s.ID).Debug("MemoryStore inserts Session")
	ms.sessions[s.ID] = s.Clone()
	return nil
}

func (ms *MemoryStore) Get(id string) (*session.Session, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if s, ok := ms.sessions[id]; ok {
		return s.Clone(), nil
	}
	return nil, ErrNotFound
}

// sorted Sessions by creation time and ID; the caller must hold the lock.
func (ms *MemoryStore) sorted() []*session.Session {
	all := make([]*session.Session, 0, len(ms.sessions))
	for _, s := range ms.sessions {
		all = append(all, s)
	}

	sort.Slice(all, func(i, j int) bool {
		if !all[i].Created.Equal(all[j].Created) {
			return all[i].Created.Before(all[j].Created)
		}
		return all[i].ID < all[j].ID
	})
	return all
}

func (ms *MemoryStore) FindOne(pred func(*session.Session) bool) (*session.Session, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	for _, s := range ms.sorted() {
		if c := s.Clone(); pred(c) {
			return c, nil
		}
	}
	return nil, ErrNotFound
}

func (ms *MemoryStore) All() ([]*session.Session, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	all := ms.sorted()
	for i, s := range all {
		all[i] = s.Clone()
	}
	return all, nil
}

func (ms *MemoryStore) Update(s *session.Session) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, ok := ms.sessions[s.ID]; !ok {
		return ErrNotFound
	}
	ms.sessions[s.ID] = s.Clone()
	return nil
}

func (ms *MemoryStore) Remove(id string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, ok := ms.sessions[id]; ok {
		log.WithField("session", id).Debug("MemoryStore removes Session")
		delete(ms.sessions, id)
	}
	return nil
}

func (ms *MemoryStore) Purge(state string, before time.Time) (n int, err error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	for id, s := range ms.sessions {
		if s.State == state && s.Created.Before(before) {
			delete(ms.sessions, id)
			n++
		}
	}
	return
}

func (ms *MemoryStore) Close() error {
	return nil
}
