// Copyright 2018 The go-ethereum Authors
// This file is part of the lsp61 library.
//
// The lsp61 library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The lsp61 library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the lsp61 library. If not, see <http://www.gnu.org/licenses/>.

package lsp

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"
)

// ReputationStore is a keyed map from (session, capability-name) to an
// opaque blob plus a sticky "rude" flag (spec.md §1, §6). lsp interprets
// the blob as a single unsigned integer: the ask override.
type ReputationStore interface {
	IsRude(session, name string) bool
	Data(session, name string) []byte
	SetData(session, name string, data []byte)
	NoteRude(session, name string)
}

type reputationEntry struct {
	data []byte
	rude bool
}

// lruReputationStore bounds memory with an LRU eviction policy, following
// the `lru.New(n)` pattern torrentfs/monitor.go uses elsewhere in the
// pack for similarly-shaped bounded caches.
type lruReputationStore struct {
	mu    sync.Mutex
	cache *lru.Cache
}

// NewReputationStore returns a ReputationStore retaining up to capacity
// distinct (session, name) entries.
func NewReputationStore(capacity int) ReputationStore {
	c, err := lru.New(capacity)
	if err != nil {
		// Only returns an error for capacity <= 0; fall back to a
		// single-entry cache rather than propagating a constructor error
		// through every call site that builds a Peer.
		c, _ = lru.New(1)
	}
	return &lruReputationStore{cache: c}
}

func repKey(session, name string) string { return session + "/" + name }

func (s *lruReputationStore) get(session, name string) reputationEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.cache.Get(repKey(session, name))
	if !ok {
		return reputationEntry{}
	}
	return v.(reputationEntry)
}

func (s *lruReputationStore) IsRude(session, name string) bool {
	return s.get(session, name).rude
}

func (s *lruReputationStore) Data(session, name string) []byte {
	return s.get(session, name).data
}

func (s *lruReputationStore) SetData(session, name string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := repKey(session, name)
	v, _ := s.cache.Get(key)
	e, _ := v.(reputationEntry)
	e.data = data
	s.cache.Add(key, e)
}

func (s *lruReputationStore) NoteRude(session, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := repKey(session, name)
	v, _ := s.cache.Get(key)
	e, _ := v.(reputationEntry)
	e.rude = true
	s.cache.Add(key, e)
}
