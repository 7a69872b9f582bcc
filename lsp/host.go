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
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Host is the capability registry this Peer is parameterized over at
// construction time. It is a non-owning back-reference: the host owns
// handlers, handlers call upward through this narrow interface and never
// hold a cyclic owning pointer back (DESIGN NOTES §9).
type Host interface {
	// OnPeerStatus fires once, after a Status reply resets asking to
	// Nothing, regardless of whether the version was downgraded.
	OnPeerStatus(p *Peer)

	// OnPeerTransactions forwards unsolicited transaction gossip.
	OnPeerTransactions(p *Peer, payload []byte)

	// OnPeerHashes forwards a BlockHashes reply; lsp does not itself
	// clear asking on this call, the host decides the next transition.
	OnPeerHashes(p *Peer, hashes []common.Hash)

	// OnPeerBlocks forwards a Blocks reply.
	OnPeerBlocks(p *Peer, payload []byte)

	// OnPeerNewBlock forwards an unsolicited NewBlock announcement.
	OnPeerNewBlock(p *Peer, payload []byte)

	// OnPeerNewHashes forwards unsolicited NewBlockHashes announcements.
	OnPeerNewHashes(p *Peer, hashes []common.Hash)

	// OnPeerAborting notifies that the peer is being destroyed while a
	// request was outstanding, so the download coordinator can reassign
	// whatever work it had handed this peer.
	OnPeerAborting(p *Peer)

	// OnPeerRating is a supplemented upcall (see SPEC_FULL.md §4): the
	// interpreter calls it for every reputation-relevant event, including
	// the no-op addRating(0) call sites the original makes on every
	// successful hash/block query reply.
	OnPeerRating(p *Peer, delta int)

	// ProtocolVersion is the host's own negotiated protocol version,
	// used by requestStatus / Status interpretation for the parity
	// check against peerCapabilityVersion.
	ProtocolVersion() uint

	// NetworkID and Chain expose the data the Status handshake and the
	// query-answering half of the interpreter need.
	NetworkID() uint64
	Chain() ChainReader
}

// PeerSet is the live registry of connected peer handlers: "host
// capability registry" in spec.md §1's non-goal list, implemented here
// because a complete repo needs somewhere to register/look up handlers.
type PeerSet struct {
	mu     sync.RWMutex
	peers  map[string]*Peer
	closed bool
}

var errAlreadyRegistered = fmt.Errorf("peer already registered")
var errNotRegistered = fmt.Errorf("peer not registered")
var errClosed = fmt.Errorf("peer set closed")

// NewPeerSet returns an empty, open registry.
func NewPeerSet() *PeerSet {
	return &PeerSet{peers: make(map[string]*Peer)}
}

// Register adds p to the set, keyed by its session name.
func (ps *PeerSet) Register(p *Peer) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.closed {
		return errClosed
	}
	name := p.session.Name()
	if _, ok := ps.peers[name]; ok {
		return errAlreadyRegistered
	}
	ps.peers[name] = p
	return nil
}

// Unregister removes the named peer, if present.
func (ps *PeerSet) Unregister(name string) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if _, ok := ps.peers[name]; !ok {
		return errNotRegistered
	}
	delete(ps.peers, name)
	return nil
}

// Peer looks up a registered peer by session name.
func (ps *PeerSet) Peer(name string) *Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.peers[name]
}

// Len reports the number of registered peers.
func (ps *PeerSet) Len() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.peers)
}

// CriticalPeers returns the subset of registered peers the host must not
// evict under peer-table pressure: spec.md §4.1's isCriticalSyncing.
func (ps *PeerSet) CriticalPeers() []*Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	var out []*Peer
	for _, p := range ps.peers {
		if p.isCriticalSyncing() {
			out = append(out, p)
		}
	}
	return out
}

// Close marks the set closed; subsequent Register calls fail so sessions
// racing against shutdown exit instead of being half-registered.
func (ps *PeerSet) Close() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.closed = true
}
