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

	"github.com/ethereum/go-ethereum/common"
)

// BlockDetails is the constant-time "details" lookup spec.md §1 asks the
// chain store to provide: a block's parent hash and cumulative
// difficulty, keyed by content hash.
type BlockDetails struct {
	Parent          common.Hash
	TotalDifficulty *big.Int
}

// ChainReader is the append-only canonical chain store this package
// treats as read-only (spec.md §5): O(1) lookup by height and by content
// hash, plus constant-time details. Chain validation is explicitly out
// of scope (spec.md §1); ChainReader never rejects a block, it only
// serves what has already been accepted.
type ChainReader interface {
	// Number is the current canonical head height.
	Number() uint64

	// CurrentHash is the canonical head's block hash.
	CurrentHash() common.Hash

	// GenesisHash is the hash of block 0.
	GenesisHash() common.Hash

	// Details returns the parent hash and total difficulty for a known
	// hash; ok is false for an unknown hash.
	Details(hash common.Hash) (BlockDetails, bool)

	// NumberHash returns the canonical hash at height n; ok is false if
	// n is beyond the current head.
	NumberHash(n uint64) (common.Hash, bool)

	// IsKnown reports whether hash names a block this chain holds.
	IsKnown(hash common.Hash) bool

	// Block returns the raw (RLP-encoded) bytes of a known block; ok is
	// false for an unknown hash.
	Block(hash common.Hash) ([]byte, bool)
}

// MemChain is a minimal in-memory ChainReader, sufficient to exercise
// the query-answering half of the interpreter (GetBlockHashes,
// GetBlockHashesByNumber, GetBlocks) in tests and the cmd/lsp61d demo.
// It is not a validating blockchain: appends are trusted by construction.
type MemChain struct {
	mu       sync.RWMutex
	genesis  common.Hash
	byNumber []common.Hash // index i == height i
	details  map[common.Hash]BlockDetails
	raw      map[common.Hash][]byte
}

// NewMemChain seeds a chain with just the genesis block.
func NewMemChain(genesis common.Hash) *MemChain {
	c := &MemChain{
		genesis:  genesis,
		byNumber: []common.Hash{genesis},
		details:  map[common.Hash]BlockDetails{genesis: {TotalDifficulty: big.NewInt(0)}},
		raw:      map[common.Hash][]byte{genesis: []byte("genesis")},
	}
	return c
}

// Append adds a new canonical head block on top of the current one.
func (c *MemChain) Append(hash common.Hash, raw []byte, td *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	parent := c.byNumber[len(c.byNumber)-1]
	c.byNumber = append(c.byNumber, hash)
	c.details[hash] = BlockDetails{Parent: parent, TotalDifficulty: new(big.Int).Set(td)}
	c.raw[hash] = raw
}

func (c *MemChain) Number() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return uint64(len(c.byNumber) - 1)
}

func (c *MemChain) CurrentHash() common.Hash {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.byNumber[len(c.byNumber)-1]
}

func (c *MemChain) GenesisHash() common.Hash { return c.genesis }

func (c *MemChain) Details(hash common.Hash) (BlockDetails, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.details[hash]
	return d, ok
}

func (c *MemChain) NumberHash(n uint64) (common.Hash, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if n >= uint64(len(c.byNumber)) {
		return common.Hash{}, false
	}
	return c.byNumber[n], true
}

func (c *MemChain) IsKnown(hash common.Hash) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.raw[hash]
	return ok
}

func (c *MemChain) Block(hash common.Hash) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.raw[hash]
	return b, ok
}
