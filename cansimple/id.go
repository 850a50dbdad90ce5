// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package cansimple implements the CANSimple protocol: node and command
// ids packed into 11-bit CAN arbitration identifiers, the fixed
// little-endian payload layout of every command, and a dispatcher that
// correlates request and reply frames over a shared bus.
package cansimple

import (
	"fmt"

	"github.com/ffutop/cansimple-gateway/can"
)

// Field widths of the 11-bit arbitration identifier. The command id
// occupies the low 5 bits, the node id the 6 bits above it.
const (
	commandBits = 5
	nodeBits    = 6

	commandMask = 1<<commandBits - 1 // 0x1F
	nodeMask    = 1<<nodeBits - 1    // 0x3F
	rawMask     = 1<<(commandBits+nodeBits) - 1

	// MaxNode is the largest addressable node id (63).
	MaxNode = nodeMask
	// MaxCommand is the largest command id (31).
	MaxCommand = commandMask
)

// ID is a packed CANSimple arbitration identifier. The zero value
// addresses node 0, command 0.
type ID uint16

// NewID packs a node id and command id. It fails with a RangeError if
// either exceeds its field width; no other validation is performed.
func NewID(node uint8, command Command) (ID, error) {
	if node > MaxNode {
		return 0, &RangeError{Field: "node", Value: uint32(node), Max: MaxNode}
	}
	if command > MaxCommand {
		return 0, &RangeError{Field: "command", Value: uint32(command), Max: MaxCommand}
	}
	return ID(uint16(node)<<commandBits | uint16(command)), nil
}

// IDFromRaw unpacks a raw arbitration identifier. It always succeeds:
// only the low 11 bits ever appear on the wire, so wider input is
// truncated by masking rather than rejected.
func IDFromRaw(raw uint16) ID {
	return ID(raw & rawMask)
}

// IDFromFrame extracts the identifier of a standard frame.
func IDFromFrame(frame can.Frame) ID {
	return IDFromRaw(uint16(frame.ID & can.MaxStdID))
}

// Node returns the 6-bit node id.
func (id ID) Node() uint8 {
	return uint8(id>>commandBits) & nodeMask
}

// Command returns the 5-bit command id.
func (id ID) Command() Command {
	return Command(id & commandMask)
}

// Raw returns the packed 11-bit value used as the CAN arbitration
// identifier of a standard frame.
func (id ID) Raw() uint16 {
	return uint16(id) & rawMask
}

func (id ID) String() string {
	return fmt.Sprintf("0x%03x (node %d, %v)", id.Raw(), id.Node(), id.Command())
}
