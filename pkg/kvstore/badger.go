// SPDX-FileCopyrightText: 2026 The quicsock Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package kvstore

import (
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/timshannon/badgerhold"
)

// item is a stored value together with its meta data.
type item struct {
	Key     string    `badgerhold:"key"`
	Value   []byte
	Updated time.Time `badgerholdIndex:"Updated"`
}

// BadgerStore is a persistent Store backed by badgerhold.
type BadgerStore struct {
	bh  *badgerhold.Store
	dir string
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
		s = &BadgerStore{bh: bh, dir: dir}
	}
	return
}

func (s *BadgerStore) Get(key string) ([]byte, bool, error) {
	var i item
	switch err := s.bh.Get(key, &i); err {
	case nil:
		return i.Value, true, nil
	case badgerhold.ErrNotFound:
		return nil, false, nil
	default:
		return nil, false, err
	}
}

func (s *BadgerStore) Set(key string, value []byte) error {
	return s.bh.Upsert(key, item{
		Key:     key,
		Value:   value,
		Updated: time.Now(),
	})
}

func (s *BadgerStore) Delete(key string) error {
	if err := s.bh.Delete(key, item{}); err != nil && err != badgerhold.ErrNotFound {
		return err
	}
	return nil
}

// DeleteOlderThan removes every key not updated since the given time.
func (s *BadgerStore) DeleteOlderThan(t time.Time) (deleted int, err error) {
	var items []item
	if err = s.bh.Find(&items, badgerhold.Where("Updated").Lt(t)); err != nil {
		return
	}

	for _, i := range items {
		if delErr := s.Delete(i.Key); delErr != nil {
			log.WithFields(log.Fields{
				"key":   i.Key,
				"error": delErr,
			}).Warn("Failed to delete stale key")
			continue
		}
		deleted++
	}
	return
}

func (s *BadgerStore) Close() error {
	return s.bh.Close()
}
