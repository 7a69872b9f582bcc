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

// Package lsp implements the per-peer protocol handler of a legacy,
// hash-based block-sync capability: one Peer per connected remote,
// mediating Status handshakes, hash-batch and block-batch downloads,
// and the inverse queries served on the remote's behalf.
package lsp

import (
	"fmt"
	"time"
)

// Protocol versions understood by this package. c_oldProtocolVersion is
// the legacy version a Status handshake downgrades to when the remote
// omits the optional head-number field.
const (
	ProtocolVersion61 = 61
	c_oldProtocolVersion = 60
)

// ProtocolName is the capability name registered with the host and used
// as the reputation store key component.
const ProtocolName = "ctxc61"

// protocolLength is the number of message codes this capability defines.
const protocolLength = 10

// Packet ids. Arity and direction are documented in spec.md §6.
const (
	StatusPacket = iota
	_ // 1: reserved, unused by this legacy capability
	TransactionsPacket
	GetBlockHashesPacket
	GetBlockHashesByNumberPacket
	BlockHashesPacket
	GetBlocksPacket
	BlocksPacket
	NewBlockPacket
	NewBlockHashesPacket
)

// Tunables carried by the host; defaults mirror the values the teacher
// capability hard-codes for its legacy hash-sync path.
const (
	c_maxHashesAsk = 256              // hashes requested per GetBlockHashes(ByNumber)
	c_maxBlocksAsk = 64               // default block-fetch batch size, absent an override
	c_maxBlocks    = 128              // hard ceiling on blocks served per GetBlocks
	c_maxPayload   = 2 * 1024 * 1024  // soft byte ceiling on a Blocks reply
	idleTimeout    = 10 * time.Second // spec.md §4.1 tick/timeout
)

type errCode int

const (
	ErrMsgTooLarge errCode = iota
	ErrDecode
	ErrInvalidMsgCode
	ErrProtocolVersionMismatch
	ErrNetworkIDMismatch
	ErrGenesisMismatch
	ErrNoStatusMsg
	ErrExtraStatusMsg
)

var errorToString = map[errCode]string{
	ErrMsgTooLarge:             "message too long",
	ErrDecode:                  "invalid message",
	ErrInvalidMsgCode:          "invalid message code",
	ErrProtocolVersionMismatch: "protocol version mismatch",
	ErrNetworkIDMismatch:       "network ID mismatch",
	ErrGenesisMismatch:         "genesis mismatch",
	ErrNoStatusMsg:             "no status message",
	ErrExtraStatusMsg:          "extra status message",
}

func (e errCode) String() string { return errorToString[e] }

func errResp(code errCode, format string, v ...interface{}) error {
	return fmt.Errorf("%v - %v", code, fmt.Sprintf(format, v...))
}

// DisconnectReason mirrors the subset of session disconnect reasons this
// capability ever triggers on its own. Session transports generally carry
// a richer set; lsp only ever requests PingTimeout.
type DisconnectReason int

const (
	DiscSubprotocolError DisconnectReason = iota
	DiscPingTimeout
	DiscUselessPeer
)

func (d DisconnectReason) String() string {
	switch d {
	case DiscPingTimeout:
		return "ping timeout"
	case DiscUselessPeer:
		return "useless peer"
	default:
		return "subprotocol error"
	}
}
