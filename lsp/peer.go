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
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
)

// Peer is the per-peer protocol handler: one instance per connected
// remote, owned exclusively by the host, destroyed when the session
// closes (spec.md §3). All mutation happens on the session's inbound
// delivery path plus the timer-tick path; mu exists so tests (and a host
// that does not itself fully serialize the two paths) observe a
// consistent snapshot rather than racing on plain fields.
type Peer struct {
	session    Session
	host       Host
	chain      ChainReader
	reputation ReputationStore
	sub        *DownloadSubscription

	mu          sync.RWMutex
	asking      Asking
	lastAskTime time.Time

	peerCapabilityVersion uint // advertised during handshake registration, immutable
	protocolVersion       uint // effective negotiated version, set on Status receipt

	networkID         uint64
	genesisHash       common.Hash
	latestHash        common.Hash
	latestBlockNumber uint64
	totalDifficulty   *big.Int

	syncHash       common.Hash
	syncHashNumber uint64

	requireTransactions bool

	known *knownCache

	destroyOnce sync.Once
}

// NewPeer constructs a handler for a newly-connected remote and
// immediately sends the opening Status request (spec.md §4.1's
// "construct --requestStatus--> State" transition).
//
// peerCapabilityVersion is the protocol version the remote advertised
// during capability negotiation, below the lsp layer.
func NewPeer(session Session, host Host, chain ChainReader, reputation ReputationStore, downloader DownloadCoordinator, peerCapabilityVersion uint) *Peer {
	p := &Peer{
		session:               session,
		host:                  host,
		chain:                 chain,
		reputation:            reputation,
		peerCapabilityVersion: peerCapabilityVersion,
		totalDifficulty:       new(big.Int),
		known:                 newKnownCache(4096),
		// Supplemented from EthereumPeer.cpp:58 — seed the number-anchor
		// to one past our own head so SyncAnchor reports a sane starting
		// point before the first hash request is sent.
		syncHashNumber: chain.Number() + 1,
	}
	p.sub = downloader.Subscribe(session.Name())
	p.session.AddNote("manners", mannersNote(p.isRude()))
	p.requestStatus()
	return p
}

func mannersNote(rude bool) string {
	if rude {
		return "RUDE"
	}
	return "nice"
}

// Close tears the handler down. If a request was outstanding, the peer
// is marked rude and the host is notified to reassign outstanding work
// (spec.md §3 invariant, §5 Cancellation). Safe to call more than once.
func (p *Peer) Close() {
	p.destroyOnce.Do(func() {
		p.mu.RLock()
		asking := p.asking
		p.mu.RUnlock()

		if asking != AskingNothing {
			log.Info("lsp: peer aborting while being asked", "peer", p.session.Name(), "asking", asking)
			p.setRude()
			p.host.OnPeerAborting(p)
		}
		p.sub.Release()
	})
}

// Tick drives the idle timeout; call it periodically from the host.
func (p *Peer) Tick() { p.tick() }

// Asking reports the current outstanding-request class.
func (p *Peer) Asking() Asking {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.asking
}

// ProtocolVersion reports the effective negotiated version.
func (p *Peer) ProtocolVersion() uint {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.protocolVersion
}

// Name forwards the session's identity.
func (p *Peer) Name() string { return p.session.Name() }

// RequiresTransactions reports whether this handler expects unsolicited
// transaction gossip, set once at the opening Status handshake.
func (p *Peer) RequiresTransactions() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.requireTransactions
}

// Head returns the remote's last-known chain head and total difficulty.
func (p *Peer) Head() (common.Hash, *big.Int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latestHash, new(big.Int).Set(p.totalDifficulty)
}

// SyncAnchor reports the origin of the most recent hash request: either
// a non-zero syncHash (requestHashesFrom) or a syncHashNumber (requestHashesByNumber),
// never both meaningfully set at once.
func (p *Peer) SyncAnchor() (hash common.Hash, number uint64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.syncHash, p.syncHashNumber
}

// ---- request builders (spec.md §4.2) ----
//
// All four share a framing discipline: a packet id followed by a
// heterogeneous list whose arity is fixed per request kind. The Status and
// hash builders panic unless asking == Nothing on entry and call setAsking
// just before sending, so lastAskTime reflects the moment the wire bytes
// leave. RequestBlocks does not check the current tag: it sets asking to
// Blocks first, then asks the download coordinator for a batch.

// requestStatus sends the single handshake request, exactly once, at
// construction. Arity is 5 or 6 depending on whether the remote's
// advertised capability version matches ours.
func (p *Peer) requestStatus() {
	p.mu.RLock()
	if p.asking != AskingNothing {
		p.mu.RUnlock()
		panic("lsp: requestStatus called while a request is outstanding")
	}
	p.mu.RUnlock()

	p.mu.Lock()
	p.requireTransactions = true
	p.mu.Unlock()

	latest := p.peerCapabilityVersion == p.host.ProtocolVersion()
	version := p.host.ProtocolVersion()
	if !latest {
		version = c_oldProtocolVersion
	}

	chain := p.chain
	details, _ := chain.Details(chain.CurrentHash())
	td := details.TotalDifficulty
	if td == nil {
		td = new(big.Int)
	}

	fields := []interface{}{
		uint32(version),
		p.host.NetworkID(),
		td,
		chain.CurrentHash(),
		chain.GenesisHash(),
	}
	if latest {
		fields = append(fields, chain.Number())
	}

	p.setAsking(AskingState)
	if err := p.session.Send(StatusPacket, fields); err != nil {
		log.Debug("lsp: failed to send Status", "peer", p.session.Name(), "err", err)
	}
}

// requestHashesByNumber issues a number-anchored GetBlockHashesByNumber
// request: spec.md §4.2, scenario S3.
func (p *Peer) requestHashesByNumber(start uint64, count uint64) {
	p.mu.Lock()
	if p.asking != AskingNothing {
		p.mu.Unlock()
		panic("lsp: requestHashesByNumber called while a request is outstanding")
	}
	p.syncHashNumber = start
	p.syncHash = common.Hash{}
	p.mu.Unlock()

	p.setAsking(AskingHashes)

	body := []interface{}{start, count}
	if err := p.session.Send(GetBlockHashesByNumberPacket, body); err != nil {
		log.Debug("lsp: failed to send GetBlockHashesByNumber", "peer", p.session.Name(), "err", err)
	}
}

// requestHashesFrom issues a hash-anchored, legacy GetBlockHashes
// request. count is the configured hash batch cap.
func (p *Peer) requestHashesFrom(anchor common.Hash) {
	p.mu.Lock()
	if p.asking != AskingNothing {
		p.mu.Unlock()
		panic("lsp: requestHashesFrom called while a request is outstanding")
	}
	p.mu.Unlock()

	p.setAsking(AskingHashes)

	p.mu.Lock()
	p.syncHash = anchor
	p.syncHashNumber = 0
	p.mu.Unlock()

	body := []interface{}{anchor, uint64(c_maxHashesAsk)}
	if err := p.session.Send(GetBlockHashesPacket, body); err != nil {
		log.Debug("lsp: failed to send GetBlockHashes", "peer", p.session.Name(), "err", err)
	}
}

// RequestHashesByNumber and RequestHashesFrom export the number- and
// hash-anchored builders respectively (spec.md §4.2's two requestHashes
// overloads).
func (p *Peer) RequestHashesByNumber(start, count uint64) { p.requestHashesByNumber(start, count) }
func (p *Peer) RequestHashesFrom(anchor common.Hash)      { p.requestHashesFrom(anchor) }

// RequestBlocks asks the download coordinator for the next batch (capped
// at the ask override) and sends GetBlocks, or transitions straight back
// to idle if the coordinator has nothing to offer (spec.md §4.1, §4.2).
func (p *Peer) RequestBlocks() {
	p.setAsking(AskingBlocks)

	override := p.askOverride()
	blocks := p.sub.NextFetch(int(override))
	if len(blocks) == 0 {
		p.setIdle()
		return
	}

	body := make([]interface{}, len(blocks))
	for i, h := range blocks {
		body[i] = h
	}
	if err := p.session.Send(GetBlocksPacket, body); err != nil {
		log.Debug("lsp: failed to send GetBlocks", "peer", p.session.Name(), "err", err)
	}
}

// statusFields is a decode-only helper for the variable-arity Status
// payload (5 or 6 items); see interpret.go's handling of StatusPacket.
type statusFields struct {
	ProtocolVersion uint32
	NetworkID       uint64
	TD              *big.Int
	Head            common.Hash
	Genesis         common.Hash
}
