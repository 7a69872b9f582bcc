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
	"sync"

	"github.com/ethereum/go-ethereum/rlp"
)

// Session is the session transport contract a Peer is built on: it
// delivers framed message bodies and exposes a disconnect primitive with
// a typed reason. This is an external collaborator (spec.md §1); lsp
// never implements connection establishment, only this narrow surface.
type Session interface {
	// Send frames body (a heterogeneous RLP list) behind packetID and
	// enqueues it on the transport. It does not block on delivery.
	Send(packetID uint64, body interface{}) error

	// Disconnect tears down the session with a typed reason.
	Disconnect(reason DisconnectReason)

	// AddNote publishes a human-readable status note, keyed, for
	// diagnostics (peer lists, admin APIs). Best-effort; never blocks.
	AddNote(key, value string)

	// Name identifies the remote for logging and reputation-store keys.
	Name() string
}

// Frame is a decoded inbound message: a packet id plus a lazily-decoded
// RLP payload view, matching DESIGN NOTES §9's "borrowed view over the
// framed bytes plus a decoder cursor".
type Frame struct {
	Code    uint64
	Payload rlp.RawValue
}

// pipeSession is an in-memory Session double used by this package's tests
// to drive a Peer without a real socket (cmd/lsp61d has its own
// channelSession, since this type is unexported).
type pipeSession struct {
	name string

	mu    sync.Mutex
	notes map[string]string
	out   chan Frame

	disconnected bool
	lastReason   DisconnectReason
}

// newPipeSession builds a Session whose outbound frames are observable
// via Outbox(), for assertions in tests.
func newPipeSession(name string) *pipeSession {
	return &pipeSession{
		name:  name,
		notes: make(map[string]string),
		out:   make(chan Frame, 64),
	}
}

func (s *pipeSession) Send(packetID uint64, body interface{}) error {
	enc, err := rlp.EncodeToBytes(body)
	if err != nil {
		return err
	}
	s.out <- Frame{Code: packetID, Payload: enc}
	return nil
}

func (s *pipeSession) Disconnect(reason DisconnectReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnected = true
	s.lastReason = reason
}

func (s *pipeSession) AddNote(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes[key] = value
}

func (s *pipeSession) Note(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notes[key]
}

func (s *pipeSession) Name() string { return s.name }

func (s *pipeSession) Disconnected() (bool, DisconnectReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnected, s.lastReason
}

// Outbox drains the next outbound frame, blocking until one is sent.
func (s *pipeSession) Outbox() Frame {
	return <-s.out
}
