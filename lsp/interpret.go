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
	"bytes"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"
)

// Interpret is the single dispatch entry point, parameterized by packet
// id and the still-encoded payload. It returns true if the id was
// recognised by this capability (whether or not the payload was
// well-formed), false to let an outer dispatcher try other capability
// handlers (spec.md §4.3).
//
// Every decode error is caught here, logged, and swallowed: the return
// stays true and the session is not disconnected on a single malformed
// payload. The idle timeout remains the sole hard failure path.
func (p *Peer) Interpret(packetID uint64, payload rlp.RawValue) bool {
	switch packetID {
	case StatusPacket:
		p.interpretStatus(payload)
	case TransactionsPacket:
		p.host.OnPeerTransactions(p, payload)
	case GetBlockHashesPacket:
		p.interpretGetBlockHashes(payload)
	case GetBlockHashesByNumberPacket:
		p.interpretGetBlockHashesByNumber(payload)
	case BlockHashesPacket:
		p.interpretBlockHashes(payload)
	case GetBlocksPacket:
		p.interpretGetBlocks(payload)
	case BlocksPacket:
		p.interpretBlocks(payload)
	case NewBlockPacket:
		p.host.OnPeerNewBlock(p, payload)
	case NewBlockHashesPacket:
		p.interpretNewBlockHashes(payload)
	default:
		return false
	}
	return true
}

// decodeHashList decodes payload as a plain RLP list of 32-byte hashes,
// the shape shared by BlockHashes, GetBlocks, and NewBlockHashes.
func decodeHashList(payload rlp.RawValue) ([]common.Hash, error) {
	var hashes []common.Hash
	err := rlp.DecodeBytes(payload, &hashes)
	return hashes, err
}

// interpretStatus decodes the handshake reply, performs the
// version-parity downgrade check, resets asking unconditionally, and
// upcalls the host. A Status reply always clears asking regardless of
// prior value (spec.md §3 invariant).
func (p *Peer) interpretStatus(payload rlp.RawValue) {
	s := rlp.NewStream(bytes.NewReader(payload), 0)
	if _, err := s.List(); err != nil {
		log.Warn("lsp: malformed Status payload", "peer", p.session.Name(), "err", err)
		p.setAsking(AskingNothing)
		p.host.OnPeerStatus(p)
		return
	}

	var fields statusFields
	decodeErr := func() error {
		if err := s.Decode(&fields.ProtocolVersion); err != nil {
			return err
		}
		if err := s.Decode(&fields.NetworkID); err != nil {
			return err
		}
		fields.TD = new(big.Int)
		if err := s.Decode(&fields.TD); err != nil {
			return err
		}
		if err := s.Decode(&fields.Head); err != nil {
			return err
		}
		return s.Decode(&fields.Genesis)
	}()
	if decodeErr != nil {
		log.Warn("lsp: malformed Status payload", "peer", p.session.Name(), "err", decodeErr)
		p.setAsking(AskingNothing)
		p.host.OnPeerStatus(p)
		return
	}

	p.mu.Lock()
	p.protocolVersion = uint(fields.ProtocolVersion)
	p.networkID = fields.NetworkID
	p.totalDifficulty = fields.TD
	p.latestHash = fields.Head
	p.genesisHash = fields.Genesis
	p.mu.Unlock()

	latest := p.peerCapabilityVersion == p.host.ProtocolVersion()
	if latest {
		var number uint64
		if err := s.Decode(&number); err != nil {
			// Missing optional field: the remote does not support the
			// PV61+ status extension. Note it impolite and downgrade.
			log.Debug("lsp: peer does not support PV61+ status extension", "peer", p.session.Name())
			p.mu.Lock()
			p.protocolVersion = c_oldProtocolVersion
			p.mu.Unlock()
		} else {
			p.mu.Lock()
			p.protocolVersion = p.host.ProtocolVersion()
			p.latestBlockNumber = number
			p.mu.Unlock()
		}
	}

	log.Debug("lsp: Status", "peer", p.session.Name(), "version", p.ProtocolVersion(),
		"network", fields.NetworkID, "genesis", fields.Genesis, "head", fields.Head, "td", fields.TD)

	p.setAsking(AskingNothing)
	p.host.OnPeerStatus(p)
}

// interpretGetBlockHashes answers a hash-anchored ancestor query: up to
// min(limit, depth) ancestor hashes, walking parent pointers from later
// (exclusive) toward genesis (spec.md §4.3, §8 tie-break rule).
func (p *Peer) interpretGetBlockHashes(payload rlp.RawValue) {
	var req struct {
		Later common.Hash
		Limit uint64
	}
	if err := rlp.DecodeBytes(payload, &req); err != nil {
		log.Warn("lsp: malformed GetBlockHashes", "peer", p.session.Name(), "err", err)
		return
	}

	var hashes []common.Hash
	details, ok := p.chain.Details(req.Later)
	if ok {
		parent := details.Parent
		for uint64(len(hashes)) < req.Limit && parent != (common.Hash{}) {
			hashes = append(hashes, parent)
			next, ok := p.chain.Details(parent)
			if !ok {
				break
			}
			parent = next.Parent
		}
	}
	// depth_of(later) is implicitly bounded by the walk above; an unknown
	// later_hash yields depth zero, i.e. an empty reply.

	if err := p.session.Send(BlockHashesPacket, hashesBody(hashes)); err != nil {
		log.Debug("lsp: failed to send BlockHashes", "peer", p.session.Name(), "err", err)
	}
	p.host.OnPeerRating(p, 0)
}

// interpretGetBlockHashesByNumber answers a height-anchored query: hashes
// at consecutive heights [start, start+min(limit, head-start+1)), or an
// empty reply if start is beyond the local head (spec.md §4.3, §8.8).
func (p *Peer) interpretGetBlockHashesByNumber(payload rlp.RawValue) {
	var req struct {
		Start uint64
		Limit uint64
	}
	if err := rlp.DecodeBytes(payload, &req); err != nil {
		log.Warn("lsp: malformed GetBlockHashesByNumber", "peer", p.session.Name(), "err", err)
		return
	}

	var hashes []common.Hash
	head := p.chain.Number()
	if req.Start <= head {
		count := head - req.Start + 1
		if req.Limit < count {
			count = req.Limit
		}
		for n := req.Start; n < req.Start+count; n++ {
			h, ok := p.chain.NumberHash(n)
			if !ok {
				break
			}
			hashes = append(hashes, h)
		}
	}

	if err := p.session.Send(BlockHashesPacket, hashesBody(hashes)); err != nil {
		log.Debug("lsp: failed to send BlockHashes", "peer", p.session.Name(), "err", err)
	}
	p.host.OnPeerRating(p, 0)
}

func hashesBody(hashes []common.Hash) []interface{} {
	body := make([]interface{}, len(hashes))
	for i, h := range hashes {
		body[i] = h
	}
	return body
}

// interpretBlockHashes forwards a solicited BlockHashes reply. If asking
// is not Hashes, the reply is a soft error: logged and dropped without
// invoking the host (invariant 2, spec.md §8). lsp does not itself clear
// asking on this call; the host decides the next transition.
func (p *Peer) interpretBlockHashes(payload rlp.RawValue) {
	if p.Asking() != AskingHashes {
		log.Warn("lsp: peer giving us hashes when we didn't ask for them", "peer", p.session.Name())
		return
	}
	hashes, err := decodeHashList(payload)
	if err != nil {
		log.Warn("lsp: malformed BlockHashes", "peer", p.session.Name(), "err", err)
		return
	}
	p.host.OnPeerHashes(p, hashes)
}

// interpretGetBlocks answers a GetBlocks query: walks the requested
// hashes, appending each known block's raw bytes to a cumulative reply
// until either c_maxBlocks or c_maxPayload would be exceeded. An empty
// request is answered by not replying and recorded as a minor
// reputation decrement (spec.md §4.3, open question in §9: the source
// chooses silence over an empty Blocks reply, and lsp preserves that
// choice).
func (p *Peer) interpretGetBlocks(payload rlp.RawValue) {
	hashes, err := decodeHashList(payload)
	if err != nil {
		log.Warn("lsp: malformed GetBlocks", "peer", p.session.Name(), "err", err)
		return
	}
	if len(hashes) == 0 {
		log.Warn("lsp: zero-entry GetBlocks, not replying", "peer", p.session.Name())
		p.host.OnPeerRating(p, -10)
		return
	}

	limit := len(hashes)
	if limit > c_maxBlocks {
		limit = c_maxBlocks
	}

	var (
		reply []rlp.RawValue
		size  int
	)
	for i := 0; i < limit && size < c_maxPayload; i++ {
		raw, ok := p.chain.Block(hashes[i])
		if !ok {
			continue
		}
		if size+len(raw) > c_maxPayload {
			break
		}
		reply = append(reply, rlp.RawValue(raw))
		size += len(raw)
	}

	if len(hashes) > 20 && len(reply) == 0 {
		log.Warn("lsp: all requested blocks unknown; peer on different chain?", "peer", p.session.Name(), "requested", len(hashes))
	}

	if err := p.session.Send(BlocksPacket, reply); err != nil {
		log.Debug("lsp: failed to send Blocks", "peer", p.session.Name(), "err", err)
	}
	p.host.OnPeerRating(p, 0)
}

// interpretBlocks forwards a solicited Blocks reply. If asking is not
// Blocks, the reply is a soft error (invariant 3, spec.md §8).
func (p *Peer) interpretBlocks(payload rlp.RawValue) {
	if p.Asking() != AskingBlocks {
		log.Warn("lsp: peer giving us blocks when we didn't ask for them", "peer", p.session.Name())
		return
	}
	p.host.OnPeerBlocks(p, payload)
}

// interpretNewBlockHashes forwards unsolicited block announcements;
// always accepted regardless of asking state. Hashes the remote has
// already announced before are suppressed rather than re-forwarded,
// using known to tell which is which.
func (p *Peer) interpretNewBlockHashes(payload rlp.RawValue) {
	hashes, err := decodeHashList(payload)
	if err != nil {
		log.Warn("lsp: malformed NewBlockHashes", "peer", p.session.Name(), "err", err)
		return
	}
	var fresh []common.Hash
	for _, h := range hashes {
		if !p.known.Has(h) {
			fresh = append(fresh, h)
		}
	}
	p.known.Add(hashes...)
	if len(fresh) > 0 {
		p.host.OnPeerNewHashes(p, fresh)
	}
}
