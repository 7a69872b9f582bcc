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

	"github.com/ethereum/go-ethereum/common"
)

// DownloadCoordinator tracks which block hashes are outstanding across
// all peers and hands a given peer its next batch to fetch. It is an
// external collaborator (spec.md §1); lsp only needs a subscription
// handle into it.
type DownloadCoordinator interface {
	// Subscribe creates a scoped acquisition for one peer: DESIGN NOTES
	// §9, "the handle is created at handler construction and released on
	// all exit paths".
	Subscribe(peerName string) *DownloadSubscription
}

// DownloadSubscription is the opaque handle a Peer holds into the
// download coordinator.
type DownloadSubscription struct {
	peerName string
	man      *DownloadManager
}

// NextFetch asks the coordinator for up to n outstanding hashes disjoint
// from what it has already handed to other subscriptions.
func (s *DownloadSubscription) NextFetch(n int) []common.Hash {
	return s.man.nextFetch(s.peerName, n)
}

// NeedsSyncing reports whether the coordinator still wants data from
// this peer; used only for the "sync" session note (spec.md §4.1).
func (s *DownloadSubscription) NeedsSyncing() bool {
	return s.man.needsSyncing(s.peerName)
}

// Release returns any hashes outstanding against this subscription to the
// coordinator's pool, for other peers to pick up. Called on handler
// destruction (spec.md §5, Cancellation).
func (s *DownloadSubscription) Release() {
	s.man.release(s.peerName)
}

// DownloadManager is a minimal, internally-serialized DownloadCoordinator
// sufficient to exercise requestBlocks end to end: it hands out disjoint
// batches of an in-memory hash backlog (seeded at construction, extended
// by AddPending) across subscriptions (spec.md §5).
type DownloadManager struct {
	mu      sync.Mutex
	pending []common.Hash        // hashes not yet claimed by any peer
	claimed map[string][]common.Hash // peerName -> hashes currently out on loan
}

// NewDownloadManager seeds a coordinator with a backlog of hashes to
// distribute.
func NewDownloadManager(backlog []common.Hash) *DownloadManager {
	return &DownloadManager{
		pending: append([]common.Hash(nil), backlog...),
		claimed: make(map[string][]common.Hash),
	}
}

func (m *DownloadManager) Subscribe(peerName string) *DownloadSubscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.claimed[peerName]; !ok {
		m.claimed[peerName] = nil
	}
	return &DownloadSubscription{peerName: peerName, man: m}
}

func (m *DownloadManager) nextFetch(peerName string, n int) []common.Hash {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n <= 0 || len(m.pending) == 0 {
		return nil
	}
	if n > len(m.pending) {
		n = len(m.pending)
	}
	batch := append([]common.Hash(nil), m.pending[:n]...)
	m.pending = m.pending[n:]
	m.claimed[peerName] = append(m.claimed[peerName], batch...)
	return batch
}

func (m *DownloadManager) needsSyncing(peerName string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending) > 0 || len(m.claimed[peerName]) > 0
}

// release reassigns any hashes claimed by peerName back to the pending
// pool, for other peers' subscriptions to pick up.
func (m *DownloadManager) release(peerName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	outstanding := m.claimed[peerName]
	delete(m.claimed, peerName)
	m.pending = append(m.pending, outstanding...)
}

// PendingLen reports the size of the undistributed backlog, for tests and
// diagnostics.
func (m *DownloadManager) PendingLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// AddPending enqueues newly-discovered hashes for distribution, the way a
// host feeds a BlockHashes reply (OnPeerHashes) into the coordinator
// before calling RequestBlocks.
func (m *DownloadManager) AddPending(hashes ...common.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, hashes...)
}
