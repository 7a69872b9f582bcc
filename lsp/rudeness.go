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
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"
)

// askOverride reads the current per-peer GetBlocks batch cap. Absence of
// a blob means "use the configured default" (spec.md §4.4). It is read
// fresh on every requestBlocks call so a subsequent reset is observed
// immediately.
func (p *Peer) askOverride() uint64 {
	data := p.reputation.Data(p.session.Name(), ProtocolName)
	if len(data) == 0 {
		return c_maxBlocksAsk
	}
	var v uint64
	if err := rlp.DecodeBytes(data, &v); err != nil {
		return c_maxBlocksAsk
	}
	return v
}

// setRude persists a halved ask override, flags the peer rude, and
// annotates the session (spec.md §4.4). The +1 guarantees the override
// never collapses to zero (invariant 4, spec.md §8).
func (p *Peer) setRude() {
	old := p.askOverride()
	next := old/2 + 1

	enc, err := rlp.EncodeToBytes(next)
	if err != nil {
		log.Error("lsp: failed to encode ask override", "peer", p.session.Name(), "err", err)
		return
	}
	p.reputation.SetData(p.session.Name(), ProtocolName, enc)
	p.reputation.NoteRude(p.session.Name(), ProtocolName)
	p.session.AddNote("manners", "RUDE")
	log.Debug("lsp: rude behaviour", "peer", p.session.Name(), "askOverride", next, "was", old)
}

// isRude reports the sticky rudeness flag.
func (p *Peer) isRude() bool {
	return p.reputation.IsRude(p.session.Name(), ProtocolName)
}
