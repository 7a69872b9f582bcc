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

import "time"

// Asking is the four-valued tag describing which reply, if any, a Peer is
// currently soliciting from its remote.
type Asking int

const (
	AskingNothing Asking = iota
	AskingState
	AskingHashes
	AskingBlocks
)

func (a Asking) String() string {
	switch a {
	case AskingNothing:
		return "nothing"
	case AskingState:
		return "state"
	case AskingHashes:
		return "hashes"
	case AskingBlocks:
		return "blocks"
	default:
		return "?"
	}
}

// setAsking records the new asking tag, stamps lastAskTime, and publishes
// the "ask"/"sync" notes on the session. It is the only place m.asking is
// ever mutated, so every transition goes through the same side effects.
func (p *Peer) setAsking(a Asking) {
	p.mu.Lock()
	p.asking = a
	p.lastAskTime = time.Now()
	p.mu.Unlock()

	sync := "holding"
	if p.isCriticalSyncing() {
		sync = "ONGOING"
	}
	if p.needsSyncing() {
		sync += " & needed"
	}
	p.session.AddNote("ask", a.String())
	p.session.AddNote("sync", sync)
}

func (p *Peer) setIdle() {
	p.setAsking(AskingNothing)
}

// isCriticalSyncing reports whether the host should refuse to evict this
// peer under peer-table pressure: spec.md §4.1.
func (p *Peer) isCriticalSyncing() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.asking == AskingHashes || p.asking == AskingState {
		return true
	}
	return p.asking == AskingBlocks && p.protocolVersion == c_oldProtocolVersion
}

// needsSyncing reports whether the download coordinator still wants data
// from this peer; used only to annotate the "sync" session note.
func (p *Peer) needsSyncing() bool {
	return p.sub.NeedsSyncing()
}

// IsConversing reports whether a request is currently outstanding.
// Supplemented from EthereumPeer.cpp's isConversing(): the distilled
// spec.md states the predicate implicitly via the asking!=Nothing
// invariant but never names it; lsp exposes it for the host registry.
func (p *Peer) IsConversing() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.asking != AskingNothing
}

// tick is driven by the host on a periodic timer. It is the sole hard
// failure path for a stuck peer: spec.md §4.1 and §7.
func (p *Peer) tick() {
	p.mu.RLock()
	asking := p.asking
	last := p.lastAskTime
	p.mu.RUnlock()

	if asking != AskingNothing && time.Since(last) > idleTimeout {
		p.session.Disconnect(DiscPingTimeout)
	}
}
