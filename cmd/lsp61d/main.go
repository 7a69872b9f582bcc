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

// Command lsp61d is a thin demo binary: it wires two in-process Peer
// handlers against each other over a pair of channel-backed sessions,
// drives the Status handshake and a hash/block sync round, and logs
// what happened. There is no real transport; it exists to exercise the
// package end to end the way ctxc/handler_test.go's two-peer fixtures
// exercise ProtocolManager.
package main

import (
	"flag"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/tumf/lsp61/lsp"
)

var (
	networkID = flag.Uint64("network", 1337, "network id advertised in the Status handshake")
	height    = flag.Int("height", 8, "number of blocks to seed the local peer's chain with")
	verbosity = flag.Int("verbosity", 3, "log verbosity (0-5), see github.com/ethereum/go-ethereum/log")
	legacy    = flag.Bool("legacy", false, "advertise the legacy protocol version, forcing the hash-anchored GetBlockHashes fallback instead of the number-anchored request")
)

func main() {
	flag.Parse()
	log.Root().SetHandler(log.LvlFilterHandler(log.Lvl(*verbosity), log.StreamHandler(os.Stderr, log.TerminalFormat(false))))

	genesis := common.Hash{0x01}
	local := lsp.NewMemChain(genesis)
	remote := lsp.NewMemChain(genesis)
	for i := 1; i <= *height; i++ {
		h := common.Hash{byte(i)}
		raw, _ := rlp.EncodeToBytes([]byte{byte(i)})
		remote.Append(h, raw, big.NewInt(int64(i)))
	}

	localDL := lsp.NewDownloadManager(nil)
	remoteDL := lsp.NewDownloadManager(nil)

	localHost := newDemoHost("local", uint(lsp.ProtocolVersion61), *networkID, local, localDL)
	remoteHost := newDemoHost("remote", uint(lsp.ProtocolVersion61), *networkID, remote, remoteDL)

	localSess, remoteSess := newChannelPair("local", "remote")

	localRep := lsp.NewReputationStore(16)
	remoteRep := lsp.NewReputationStore(16)

	peerCapVersion := uint(lsp.ProtocolVersion61)
	if *legacy {
		peerCapVersion = uint(60) // advertise below current; forces the downgrade path
	}

	var localPeer, remotePeer *lsp.Peer
	localPeer = lsp.NewPeer(localSess, localHost, local, localRep, localDL, peerCapVersion)
	remotePeer = lsp.NewPeer(remoteSess, remoteHost, remote, remoteRep, remoteDL, peerCapVersion)

	localHost.peer = localPeer
	remoteHost.peer = remotePeer
	localHost.height = *height

	go pump(localSess, remotePeer)
	go pump(remoteSess, localPeer)

	// The sync request is issued from demoHost.OnPeerStatus once the
	// handshake settles, which picks the number- or hash-anchored builder
	// depending on what the handshake negotiated (spec.md §4.2).
	time.Sleep(250 * time.Millisecond)
	log.Info("demo: done", "local.asking", localPeer.Asking(), "remote.asking", remotePeer.Asking())
}

// pump relays every frame a channelSession sends to the counterpart
// Peer's Interpret, the way a real host's read loop would after framing
// bytes off a socket.
func pump(sess *channelSession, dst *lsp.Peer) {
	for frame := range sess.peerOut {
		lsp.MeterInbound(frame.Code, len(frame.Payload))
		dst.Interpret(frame.Code, frame.Payload)
	}
}

// channelSession is a minimal lsp.Session backed by a Go channel,
// standing in for a real socket the way lsp/session.go's unexported
// pipeSession stands in for one inside the package's own tests.
type channelSession struct {
	name    string
	peerOut chan lsp.Frame
}

func newChannelPair(a, b string) (*channelSession, *channelSession) {
	ab := make(chan lsp.Frame, 64)
	ba := make(chan lsp.Frame, 64)
	return &channelSession{name: a, peerOut: ab}, &channelSession{name: b, peerOut: ba}
}

func (s *channelSession) Send(packetID uint64, body interface{}) error {
	enc, err := rlp.EncodeToBytes(body)
	if err != nil {
		return err
	}
	s.peerOut <- lsp.Frame{Code: packetID, Payload: enc}
	return nil
}

func (s *channelSession) Disconnect(reason lsp.DisconnectReason) {
	log.Warn("demo: disconnect", "session", s.name, "reason", reason)
	close(s.peerOut)
}

func (s *channelSession) AddNote(key, value string) {
	log.Debug("demo: note", "session", s.name, "key", key, "value", value)
}

func (s *channelSession) Name() string { return s.name }

// demoHost is a minimal lsp.Host that just logs every upcall. Only the
// "local" side drives a sync request after the handshake; "remote" just
// answers queries.
type demoHost struct {
	name            string
	protocolVersion uint
	networkID       uint64
	chain           lsp.ChainReader
	dl              *lsp.DownloadManager
	peer            *lsp.Peer
	height          int
}

func newDemoHost(name string, version uint, networkID uint64, chain lsp.ChainReader, dl *lsp.DownloadManager) *demoHost {
	return &demoHost{name: name, protocolVersion: version, networkID: networkID, chain: chain, dl: dl}
}

// OnPeerStatus kicks off the sync request once the handshake settles.
// PV61+ peers get the number-anchored GetBlockHashesByNumber request;
// a peer that downgraded to the legacy protocol version falls back to
// the hash-anchored GetBlockHashes request instead, anchored on our own
// current head (spec.md §4.2's two requestHashes overloads).
func (h *demoHost) OnPeerStatus(p *lsp.Peer) {
	head, td := p.Head()
	log.Info("demo: status", "host", h.name, "protocolVersion", p.ProtocolVersion(), "head", head, "td", td)

	if h.name != "local" {
		return
	}
	if p.ProtocolVersion() == uint(lsp.ProtocolVersion61) {
		p.RequestHashesByNumber(h.chain.Number()+1, uint64(h.height))
	} else {
		p.RequestHashesFrom(h.chain.CurrentHash())
	}
}

func (h *demoHost) OnPeerTransactions(p *lsp.Peer, payload []byte) {}

func (h *demoHost) OnPeerHashes(p *lsp.Peer, hashes []common.Hash) {
	log.Info("demo: hashes", "host", h.name, "count", len(hashes))
	if len(hashes) > 0 {
		h.dl.AddPending(hashes...)
		p.RequestBlocks()
	}
}

func (h *demoHost) OnPeerBlocks(p *lsp.Peer, payload []byte) {
	log.Info("demo: blocks received", "host", h.name)
}

func (h *demoHost) OnPeerNewBlock(p *lsp.Peer, payload []byte) {}

func (h *demoHost) OnPeerNewHashes(p *lsp.Peer, hashes []common.Hash) {}

func (h *demoHost) OnPeerAborting(p *lsp.Peer) {
	log.Warn("demo: peer aborting", "host", h.name)
}

func (h *demoHost) OnPeerRating(p *lsp.Peer, delta int) {
	if delta != 0 {
		log.Debug("demo: rating", "host", h.name, "delta", delta)
	}
}

func (h *demoHost) ProtocolVersion() uint  { return h.protocolVersion }
func (h *demoHost) NetworkID() uint64      { return h.networkID }
func (h *demoHost) Chain() lsp.ChainReader { return h.chain }
