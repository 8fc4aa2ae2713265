// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package storage

import (
	"errors"
	"os"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/timshannon/badgerhold"

	"github.com/q4s/q4s-go/pkg/session"
)

// sessionItem wraps a Session with indexed meta data. The BadgerStore operates
// on sessionItems instead of Sessions.
type sessionItem struct {
	ID      string    `badgerhold:"key"`
	State   string    `badgerholdIndex:"State"`
	Created time.Time `badgerholdIndex:"Created"`

	Session session.Session
}

func newSessionItem(s *session.Session) sessionItem {
	return sessionItem{
		ID:      s.ID,
		State:   s.State,
		Created: s.Created,
		Session: *s.Clone(),
	}
}

// BadgerStore is a persistent Store, backed by badgerhold.
type BadgerStore struct {
	bh *badgerhold.Store
}

// NewBadgerStore creates a new BadgerStore or opens an existing one from the given directory.
func NewBadgerStore(dir string) (s *BadgerStore, err error) {
	opts := badgerhold.DefaultOptions
	opts.Dir = dir
	opts.ValueDir = dir
	opts.Logger = log.StandardLogger()
	opts.Options.ValueLogFileSize = 1<<28 - 1

	if dirErr := os.MkdirAll(dir, 0700); dirErr != nil {
		err = dirErr
		return
	}

	if bh, bhErr := badgerhold.Open(opts); bhErr != nil {
		err = bhErr
	} else {
		s = &BadgerStore{bh: bh}
	}
	return
}

func (bs *BadgerStore) Insert(s *session.Session) error {
	assignID(s)

	log.WithField("session", s.ID).Debug("BadgerStore inserts Session")
	return bs.bh.Insert(s.ID, newSessionItem(s))
}

func (bs *BadgerStore) Get(id string) (*session.Session, error) {
	var item sessionItem
	if err := bs.bh.Get(id, &item); errors.Is(err, badgerhold.ErrNotFound) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	return &item.Session, nil
}

func (bs *BadgerStore) find(query *badgerhold.Query) ([]sessionItem, error) {
	var items []sessionItem
	if err := bs.bh.Find(&items, query); err != nil {
		return nil, err
	}

	sort.Slice(items, func(i, j int) bool {
		if !items[i].Created.Equal(items[j].Created) {
			return items[i].Created.Before(items[j].Created)
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

func (bs *BadgerStore) FindOne(pred func(*session.Session) bool) (*session.Session, error) {
	items, err := bs.find(nil)
	if err != nil {
		return nil, err
	}

	for i := range items {
		if s := &items[i].Session; pred(s) {
			return s, nil
		}
	}
	return nil, ErrNotFound
}

func (bs *BadgerStore) All() ([]*session.Session, error) {
	items, err := bs.find(nil)
	if err != nil {
		return nil, err
	}

	all := make([]*session.Session, len(items))
	for i := range items {
		all[i] = &items[i].Session
	}
	return all, nil
}

func (bs *BadgerStore) Update(s *session.Session) error {
	err := bs.bh.Update(s.ID, newSessionItem(s))
	if errors.Is(err, badgerhold.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func (bs *BadgerStore) Remove(id string) error {
	err := bs.bh.Delete(id, sessionItem{})
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil
	}

	if err == nil {
		log.WithField("session", id).Debug("BadgerStore removes Session")
	}
	return err
}

func (bs *BadgerStore) Purge(state string, before time.Time) (int, error) {
	items, err := bs.find(badgerhold.Where("State").Eq(state).And("Created").Lt(before))
	if err != nil {
		return 0, err
	}

	for _, item := range items {
		if err := bs.bh.Delete(item.ID, sessionItem{}); err != nil {
			log.WithError(err).WithField("session", item.ID).Warn("Failed to purge Session")
			return 0, err
		}
	}
	return len(items), nil
}

// Close the BadgerStore. It must not be used afterwards.
func (bs *BadgerStore) Close() error {
	return bs.bh.Close()
}
