// Copyright 2019 The go-ethereum Authors
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

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
)

// knownCache bounds the set of hashes known to be held by a remote peer,
// used to avoid re-forwarding to the host blocks the remote has already
// announced to us. Ported
// from ctxc/peer_test.go's newKnownCache fixture (there backed by a
// mapset), reimplemented directly on golang-lru since this package
// otherwise has no use for a general-purpose set library.
type knownCache struct {
	mu    sync.Mutex
	cache *lru.Cache
}

func newKnownCache(max int) *knownCache {
	c, _ := lru.New(max)
	return &knownCache{cache: c}
}

// Add records hash(es) as known, evicting the oldest entries if the
// cache is at capacity.
func (k *knownCache) Add(hashes ...common.Hash) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, h := range hashes {
		k.cache.Add(h, struct{}{})
	}
}

// Has reports whether hash was previously recorded.
func (k *knownCache) Has(hash common.Hash) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.cache.Contains(hash)
}

// Cardinality reports the number of entries currently retained.
func (k *knownCache) Cardinality() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.cache.Len()
}
