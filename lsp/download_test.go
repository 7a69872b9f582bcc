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
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func backlog(n int) []common.Hash {
	hashes := make([]common.Hash, n)
	for i := range hashes {
		hashes[i] = common.Hash{byte(i + 1)}
	}
	return hashes
}

func TestDownloadManagerNextFetchCapsAtPending(t *testing.T) {
	m := NewDownloadManager(backlog(3))
	sub := m.Subscribe("peer-1")

	got := sub.NextFetch(10)
	if len(got) != 3 {
		t.Fatalf("expected 3 hashes (capped by pending), got %d", len(got))
	}
	if m.PendingLen() != 0 {
		t.Fatalf("expected pending drained, got %d left", m.PendingLen())
	}
}

func TestDownloadManagerDisjointAcrossSubscriptions(t *testing.T) {
	m := NewDownloadManager(backlog(4))
	a := m.Subscribe("peer-a")
	b := m.Subscribe("peer-b")

	gotA := a.NextFetch(2)
	gotB := b.NextFetch(2)

	if len(gotA) != 2 || len(gotB) != 2 {
		t.Fatalf("expected 2+2 hashes, got %d+%d", len(gotA), len(gotB))
	}
	seen := map[common.Hash]bool{}
	for _, h := range append(gotA, gotB...) {
		if seen[h] {
			t.Fatalf("hash %x handed out to more than one subscription", h)
		}
		seen[h] = true
	}
}

func TestDownloadManagerNextFetchEmptyWhenDrained(t *testing.T) {
	m := NewDownloadManager(nil)
	sub := m.Subscribe("peer-1")
	if got := sub.NextFetch(5); got != nil {
		t.Fatalf("expected nil fetch with no backlog, got %v", got)
	}
}

func TestDownloadManagerReleaseReturnsToPool(t *testing.T) {
	m := NewDownloadManager(backlog(2))
	sub := m.Subscribe("peer-1")

	sub.NextFetch(2)
	if m.PendingLen() != 0 {
		t.Fatalf("expected pool drained before release")
	}

	sub.Release()
	if m.PendingLen() != 2 {
		t.Fatalf("expected both hashes returned to pool, got %d", m.PendingLen())
	}
}

func TestDownloadManagerNeedsSyncing(t *testing.T) {
	m := NewDownloadManager(backlog(1))
	sub := m.Subscribe("peer-1")

	if !sub.NeedsSyncing() {
		t.Fatalf("expected syncing needed while backlog is non-empty")
	}
	sub.NextFetch(1)
	if !sub.NeedsSyncing() {
		t.Fatalf("expected syncing still needed while this peer holds a claim")
	}
	sub.Release()
	// Release puts the hash back in the backlog; another peer claims it.
	m.Subscribe("peer-2").NextFetch(1)
	if sub.NeedsSyncing() {
		t.Fatalf("expected no syncing needed once backlog and claim are both empty")
	}
}
