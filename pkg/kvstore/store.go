// SPDX-FileCopyrightText: 2026 The quicsock Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package kvstore is a key/value application on top of quicsock. Values are
// read with requests and written with pushes.
package kvstore

import (
	"sync"
)

// Store is a key/value backend. Implementations must be safe for concurrent use.
type Store interface {
	// Get a key's value; found is false for unknown keys.
	Get(key string) (value []byte, found bool, err error)
	// Set a key's value, replacing any previous one.
	Set(key string, value []byte) error
	// Delete a key. Unknown keys are ignored.
	Delete(key string) error
	// Close the Store. It must not be used afterwards.
	Close() error
}

// MemoryStore is a volatile Store.
type MemoryStore struct {
	mutex sync.RWMutex
	items map[string][]byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string][]byte)}
}

func (ms *MemoryStore) Get(key string) ([]byte, bool, error) {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	value, found := ms.items[key]
	return value, found, nil
}

func (ms *MemoryStore) Set(key string, value []byte) error {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	ms.items[key] = append([]byte(nil), value...)
	return nil
}

func (ms *MemoryStore) Delete(key string) error {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	delete(ms.items, key)
	return nil
}

// Len is the number of stored keys.
func (ms *MemoryStore) Len() int {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	return len(ms.items)
}

func (ms *MemoryStore) Close() error {
	return nil
}
