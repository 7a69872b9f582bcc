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
	"time"

	"github.com/ethereum/go-ethereum/common"
)

func TestAskingString(t *testing.T) {
	cases := map[Asking]string{
		AskingNothing: "nothing",
		AskingState:   "state",
		AskingHashes:  "hashes",
		AskingBlocks:  "blocks",
		Asking(99):    "?",
	}
	for a, want := range cases {
		if got := a.String(); got != want {
			t.Fatalf("Asking(%d).String() = %q, want %q", a, got, want)
		}
	}
}

// isCriticalSyncing is true while Hashes/State are outstanding, and true
// for Blocks only on the legacy protocol version (spec.md §4.1).
func TestIsCriticalSyncing(t *testing.T) {
	f := newFixture(t, ProtocolVersion61)
	f.sess.Outbox() // drain Status; asking is State at construction

	if !f.peer.isCriticalSyncing() {
		t.Fatalf("expected critical syncing while asking=State")
	}

	f.peer.setAsking(AskingBlocks)
	f.peer.mu.Lock()
	f.peer.protocolVersion = ProtocolVersion61
	f.peer.mu.Unlock()
	if f.peer.isCriticalSyncing() {
		t.Fatalf("expected not critical syncing for Blocks on current protocol version")
	}

	f.peer.mu.Lock()
	f.peer.protocolVersion = c_oldProtocolVersion
	f.peer.mu.Unlock()
	if !f.peer.isCriticalSyncing() {
		t.Fatalf("expected critical syncing for Blocks on legacy protocol version")
	}

	f.peer.setAsking(AskingNothing)
	if f.peer.isCriticalSyncing() {
		t.Fatalf("expected not critical syncing when idle")
	}
}

func TestIsConversing(t *testing.T) {
	f := newFixture(t, ProtocolVersion61)
	f.sess.Outbox()

	if !f.peer.IsConversing() {
		t.Fatalf("expected conversing while asking=State")
	}
	f.peer.setAsking(AskingNothing)
	if f.peer.IsConversing() {
		t.Fatalf("expected not conversing when idle")
	}
}

// setAsking publishes the new tag as the "ask" note.
func TestSetAskingPublishesNotes(t *testing.T) {
	f := newFixture(t, ProtocolVersion61)
	f.sess.Outbox()

	f.peer.setAsking(AskingHashes)
	if got := f.sess.Note("ask"); got != "hashes" {
		t.Fatalf("expected ask note %q, got %q", "hashes", got)
	}
}

// tick is a no-op while idle, regardless of how stale lastAskTime is.
func TestTickNoopWhenIdle(t *testing.T) {
	f := newFixture(t, ProtocolVersion61)
	f.sess.Outbox()
	reply := encodeStatusReply(ProtocolVersion61, 1337, 100, common.Hash{0x01}, f.chain.GenesisHash(), 0, true)
	f.peer.Interpret(StatusPacket, reply)

	f.peer.mu.Lock()
	f.peer.lastAskTime = time.Now().Add(-time.Hour)
	f.peer.mu.Unlock()

	f.peer.Tick()
	if disc, _ := f.sess.Disconnected(); disc {
		t.Fatalf("expected no disconnect while idle")
	}
}
