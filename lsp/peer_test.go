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
	"bytes"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
)

// fakeHost is an in-process Host double recording every upcall, used
// across the scenario tests S1-S6.
type fakeHost struct {
	mu sync.Mutex

	protocolVersion uint
	networkID       uint64
	chain           ChainReader

	statusCalls    int
	hashesCalls    [][]common.Hash
	newHashesCalls [][]common.Hash
	blocksCalls    int
	abortCalls     int
	ratingDeltas   []int
}

func newFakeHost(version uint, network uint64, chain ChainReader) *fakeHost {
	return &fakeHost{protocolVersion: version, networkID: network, chain: chain}
}

func (h *fakeHost) OnPeerStatus(p *Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.statusCalls++
}

func (h *fakeHost) OnPeerTransactions(p *Peer, payload []byte) {}

func (h *fakeHost) OnPeerHashes(p *Peer, hashes []common.Hash) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hashesCalls = append(h.hashesCalls, hashes)
}

func (h *fakeHost) OnPeerBlocks(p *Peer, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.blocksCalls++
}

func (h *fakeHost) OnPeerNewBlock(p *Peer, payload []byte) {}

func (h *fakeHost) OnPeerNewHashes(p *Peer, hashes []common.Hash) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.newHashesCalls = append(h.newHashesCalls, hashes)
}

func (h *fakeHost) OnPeerAborting(p *Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.abortCalls++
}

func (h *fakeHost) OnPeerRating(p *Peer, delta int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ratingDeltas = append(h.ratingDeltas, delta)
}

func (h *fakeHost) ProtocolVersion() uint { return h.protocolVersion }
func (h *fakeHost) NetworkID() uint64     { return h.networkID }
func (h *fakeHost) Chain() ChainReader    { return h.chain }

func (h *fakeHost) StatusCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.statusCalls
}

func (h *fakeHost) AbortCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.abortCalls
}

// testFixture wires a Peer against fakes for the scenario tests.
type testFixture struct {
	peer  *Peer
	sess  *pipeSession
	host  *fakeHost
	chain *MemChain
	rep   ReputationStore
	dl    *DownloadManager
}

func newFixture(t *testing.T, peerCapVersion uint) *testFixture {
	t.Helper()
	chain := NewMemChain(common.Hash{0xaa})
	host := newFakeHost(ProtocolVersion61, 1337, chain)
	sess := newPipeSession("peer-1")
	rep := NewReputationStore(16)
	dl := NewDownloadManager(nil)

	peer := NewPeer(sess, host, chain, rep, dl, peerCapVersion)
	return &testFixture{peer: peer, sess: sess, host: host, chain: chain, rep: rep, dl: dl}
}

// decodeStatusSent decodes the fields of an outbound Status frame.
func decodeStatusSent(t *testing.T, frame Frame) (version uint32, number uint64, hasNumber bool) {
	t.Helper()
	if frame.Code != StatusPacket {
		t.Fatalf("expected Status packet, got code %d", frame.Code)
	}
	s := rlp.NewStream(bytes.NewReader(frame.Payload), 0)
	if _, err := s.List(); err != nil {
		t.Fatalf("bad status list: %v", err)
	}
	if err := s.Decode(&version); err != nil {
		t.Fatalf("decode version: %v", err)
	}
	// skip networkID, TD, head, genesis
	var skip interface{}
	for i := 0; i < 4; i++ {
		if err := s.Decode(&skip); err != nil {
			t.Fatalf("decode field %d: %v", i, err)
		}
	}
	if err := s.Decode(&number); err != nil {
		return version, 0, false
	}
	return version, number, true
}

func encodeStatusReply(version uint32, network uint64, td uint64, head, genesis common.Hash, number uint64, includeNumber bool) rlp.RawValue {
	fields := []interface{}{version, network, td, head, genesis}
	if includeNumber {
		fields = append(fields, number)
	}
	enc, _ := rlp.EncodeToBytes(fields)
	return enc
}

// S1: handshake at current version.
func TestScenarioS1HandshakeCurrentVersion(t *testing.T) {
	f := newFixture(t, ProtocolVersion61)

	frame := f.sess.Outbox()
	version, number, hasNumber := decodeStatusSent(t, frame)
	if version != ProtocolVersion61 {
		t.Fatalf("expected outbound version %d, got %d", ProtocolVersion61, version)
	}
	if !hasNumber || number != f.chain.Number() {
		t.Fatalf("expected 6-field status with head number %d, got hasNumber=%v number=%d", f.chain.Number(), hasNumber, number)
	}
	if f.peer.Asking() != AskingState {
		t.Fatalf("expected asking=State after construction, got %v", f.peer.Asking())
	}

	reply := encodeStatusReply(ProtocolVersion61, 1337, 100, common.Hash{0x01}, f.chain.GenesisHash(), 5, true)
	f.peer.Interpret(StatusPacket, reply)

	if f.peer.Asking() != AskingNothing {
		t.Fatalf("expected asking=Nothing after Status reply, got %v", f.peer.Asking())
	}
	if f.peer.ProtocolVersion() != ProtocolVersion61 {
		t.Fatalf("expected protocolVersion %d, got %d", ProtocolVersion61, f.peer.ProtocolVersion())
	}
	if f.host.StatusCalls() != 1 {
		t.Fatalf("expected 1 OnPeerStatus call, got %d", f.host.StatusCalls())
	}
}

// S2: handshake, legacy downgrade when the reply omits the head number.
func TestScenarioS2HandshakeLegacyDowngrade(t *testing.T) {
	f := newFixture(t, ProtocolVersion61)
	f.sess.Outbox() // drain the outbound Status

	reply := encodeStatusReply(c_oldProtocolVersion, 1337, 100, common.Hash{0x01}, f.chain.GenesisHash(), 0, false)
	f.peer.Interpret(StatusPacket, reply)

	if f.peer.ProtocolVersion() != c_oldProtocolVersion {
		t.Fatalf("expected downgrade to %d, got %d", c_oldProtocolVersion, f.peer.ProtocolVersion())
	}
	if f.peer.Asking() != AskingNothing {
		t.Fatalf("expected asking=Nothing, got %v", f.peer.Asking())
	}
	if f.host.StatusCalls() != 1 {
		t.Fatalf("expected 1 OnPeerStatus call, got %d", f.host.StatusCalls())
	}
}

// S3: number-anchored hash query.
func TestScenarioS3HashQueryNumberAnchored(t *testing.T) {
	f := newFixture(t, ProtocolVersion61)
	f.sess.Outbox() // drain Status
	reply := encodeStatusReply(ProtocolVersion61, 1337, 100, common.Hash{0x01}, f.chain.GenesisHash(), 0, true)
	f.peer.Interpret(StatusPacket, reply)

	f.peer.RequestHashesByNumber(1000, 256)

	frame := f.sess.Outbox()
	if frame.Code != GetBlockHashesByNumberPacket {
		t.Fatalf("expected GetBlockHashesByNumber, got code %d", frame.Code)
	}
	var req struct {
		Start uint64
		Count uint64
	}
	if err := rlp.DecodeBytes(frame.Payload, &req); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	if req.Start != 1000 || req.Count != 256 {
		t.Fatalf("expected (1000,256), got (%d,%d)", req.Start, req.Count)
	}
	if f.peer.Asking() != AskingHashes {
		t.Fatalf("expected asking=Hashes, got %v", f.peer.Asking())
	}

	hashes := make([]interface{}, 256)
	for i := range hashes {
		hashes[i] = common.Hash{byte(i)}
	}
	enc, _ := rlp.EncodeToBytes(hashes)
	f.peer.Interpret(BlockHashesPacket, enc)

	if len(f.host.hashesCalls) != 1 || len(f.host.hashesCalls[0]) != 256 {
		t.Fatalf("expected OnPeerHashes with 256 hashes, got %v", f.host.hashesCalls)
	}
}

// S4: unsolicited Blocks reply is dropped with no host callback.
func TestScenarioS4UnsolicitedBlocks(t *testing.T) {
	f := newFixture(t, ProtocolVersion61)
	f.sess.Outbox() // drain Status
	reply := encodeStatusReply(ProtocolVersion61, 1337, 100, common.Hash{0x01}, f.chain.GenesisHash(), 0, true)
	f.peer.Interpret(StatusPacket, reply)

	if f.peer.Asking() != AskingNothing {
		t.Fatalf("expected idle before unsolicited Blocks, got %v", f.peer.Asking())
	}

	enc, _ := rlp.EncodeToBytes([]rlp.RawValue{[]byte{0xc0}, []byte{0xc0}})
	handled := f.peer.Interpret(BlocksPacket, enc)

	if !handled {
		t.Fatalf("expected Interpret to report the packet id as recognised")
	}
	if f.host.blocksCalls != 0 {
		t.Fatalf("expected no OnPeerBlocks call, got %d", f.host.blocksCalls)
	}
	if f.peer.Asking() != AskingNothing {
		t.Fatalf("expected asking to remain Nothing, got %v", f.peer.Asking())
	}
}

// S5: idle timeout disconnects with PingTimeout.
func TestScenarioS5Timeout(t *testing.T) {
	f := newFixture(t, ProtocolVersion61)
	f.sess.Outbox() // drain Status
	reply := encodeStatusReply(ProtocolVersion61, 1337, 100, common.Hash{0x01}, f.chain.GenesisHash(), 0, true)
	f.peer.Interpret(StatusPacket, reply)

	f.dl.pending = []common.Hash{{0x01}, {0x02}}
	f.peer.RequestBlocks()
	f.sess.Outbox() // drain GetBlocks

	if f.peer.Asking() != AskingBlocks {
		t.Fatalf("expected asking=Blocks, got %v", f.peer.Asking())
	}

	f.peer.mu.Lock()
	f.peer.lastAskTime = time.Now().Add(-10*time.Second - time.Millisecond)
	f.peer.mu.Unlock()

	f.peer.Tick()

	disconnected, reason := f.sess.Disconnected()
	if !disconnected || reason != DiscPingTimeout {
		t.Fatalf("expected disconnect with PingTimeout, got disconnected=%v reason=%v", disconnected, reason)
	}
}

// S6: rudeness back-off on destruction while a request is outstanding.
func TestScenarioS6RudenessBackoff(t *testing.T) {
	f := newFixture(t, ProtocolVersion61)
	f.sess.Outbox() // drain Status
	reply := encodeStatusReply(ProtocolVersion61, 1337, 100, common.Hash{0x01}, f.chain.GenesisHash(), 0, true)
	f.peer.Interpret(StatusPacket, reply)

	enc, _ := rlp.EncodeToBytes(uint64(32))
	f.rep.SetData(f.sess.Name(), ProtocolName, enc)

	f.dl.pending = []common.Hash{{0x01}}
	f.peer.RequestBlocks()
	f.sess.Outbox() // drain GetBlocks
	if f.peer.Asking() != AskingBlocks {
		t.Fatalf("expected asking=Blocks before destruction, got %v", f.peer.Asking())
	}

	f.peer.Close()

	if !f.rep.IsRude(f.sess.Name(), ProtocolName) {
		t.Fatalf("expected peer marked rude")
	}
	var got uint64
	if err := rlp.DecodeBytes(f.rep.Data(f.sess.Name(), ProtocolName), &got); err != nil {
		t.Fatalf("decode persisted override: %v", err)
	}
	if got != 17 {
		t.Fatalf("expected ask override 17 (32/2+1), got %d", got)
	}
	if f.host.AbortCalls() != 1 {
		t.Fatalf("expected exactly one OnPeerAborting call, got %d", f.host.AbortCalls())
	}
}

func TestRequestBuildersPanicWhenAlreadyAsking(t *testing.T) {
	f := newFixture(t, ProtocolVersion61)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic calling requestHashesByNumber while asking=State")
		}
	}()
	f.peer.RequestHashesByNumber(1, 1)
}

func TestGetBlocksEmptyRequestRecordsRatingNoReply(t *testing.T) {
	f := newFixture(t, ProtocolVersion61)
	f.sess.Outbox() // drain Status
	reply := encodeStatusReply(ProtocolVersion61, 1337, 100, common.Hash{0x01}, f.chain.GenesisHash(), 0, true)
	f.peer.Interpret(StatusPacket, reply)

	enc, _ := rlp.EncodeToBytes([]common.Hash{})
	f.peer.Interpret(GetBlocksPacket, enc)

	select {
	case fr := <-f.sess.out:
		t.Fatalf("expected no reply to empty GetBlocks, got %v", fr)
	default:
	}
	if len(f.host.ratingDeltas) != 1 || f.host.ratingDeltas[0] != -10 {
		t.Fatalf("expected single -10 rating delta, got %v", f.host.ratingDeltas)
	}
}

func TestGetBlockHashesByNumberBeyondHead(t *testing.T) {
	f := newFixture(t, ProtocolVersion61)
	f.sess.Outbox() // drain Status
	reply := encodeStatusReply(ProtocolVersion61, 1337, 100, common.Hash{0x01}, f.chain.GenesisHash(), 0, true)
	f.peer.Interpret(StatusPacket, reply)

	req := []interface{}{f.chain.Number() + 1, uint64(10)}
	enc, _ := rlp.EncodeToBytes(req)
	f.peer.Interpret(GetBlockHashesByNumberPacket, enc)

	frame := f.sess.Outbox()
	var hashes []common.Hash
	if err := rlp.DecodeBytes(frame.Payload, &hashes); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if len(hashes) != 0 {
		t.Fatalf("expected zero hashes beyond head, got %d", len(hashes))
	}
}

func TestGetBlocksRoundTrip(t *testing.T) {
	f := newFixture(t, ProtocolVersion61)
	f.sess.Outbox()
	reply := encodeStatusReply(ProtocolVersion61, 1337, 100, common.Hash{0x01}, f.chain.GenesisHash(), 0, true)
	f.peer.Interpret(StatusPacket, reply)

	block := common.Hash{0x42}
	payload := []byte("a block of bytes")
	raw, _ := rlp.EncodeToBytes(payload)
	f.chain.Append(block, raw, big.NewInt(1))

	req := []common.Hash{block}
	enc, _ := rlp.EncodeToBytes(req)
	f.peer.Interpret(GetBlocksPacket, enc)

	frame := f.sess.Outbox()
	var got []rlp.RawValue
	if err := rlp.DecodeBytes(frame.Payload, &got); err != nil {
		t.Fatalf("decode Blocks reply: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 block in reply, got %d", len(got))
	}
	var gotRaw []byte
	if err := rlp.DecodeBytes(got[0], &gotRaw); err != nil {
		t.Fatalf("decode raw block: %v", err)
	}
	if string(gotRaw) != string(payload) {
		t.Fatalf("expected %q, got %q", payload, gotRaw)
	}
}
