// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package can

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Frame is one classical CAN frame. The same shape carries outbound
// commands and inbound responses or telemetry; a frame has no direction
// of its own.
//
// CAN FD is not supported.
type Frame struct {
	ID       uint32 // 11-bit (standard) or 29-bit (extended) identifier
	Extended bool   // 29-bit identifier format
	RTR      bool   // remote transmission request, carries no data
	Len      uint8  // 0..8
	Data     [8]byte
}

const (
	// MaxStdID is the largest 11-bit identifier.
	MaxStdID = 0x7FF
	// MaxExtID is the largest 29-bit identifier.
	MaxExtID = 0x1FFFFFFF
)

var (
	ErrInvalidID  = errors.New("can: invalid identifier")
	ErrInvalidLen = errors.New("can: invalid data length")
)

// NewFrame builds a standard data frame with the given identifier and up
// to 8 data bytes.
func NewFrame(id uint32, data []byte) (Frame, error) {
	if len(data) > 8 {
		return Frame{}, ErrInvalidLen
	}
	f := Frame{ID: id, Len: uint8(len(data))}
	copy(f.Data[:], data)
	if err := f.Validate(); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// NewRemoteFrame builds a standard RTR frame. The Len field advertises the
// data length the responder is expected to send back.
func NewRemoteFrame(id uint32, dlc uint8) (Frame, error) {
	f := Frame{ID: id, RTR: true, Len: dlc}
	if err := f.Validate(); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// Validate returns an error if the frame cannot appear on a CAN bus.
func (f Frame) Validate() error {
	if f.Len > 8 {
		return ErrInvalidLen
	}
	max := uint32(MaxStdID)
	if f.Extended {
		max = MaxExtID
	}
	if f.ID > max {
		return ErrInvalidID
	}
	return nil
}

// Payload returns the Len data bytes of a data frame. RTR frames carry
// none regardless of Len.
func (f Frame) Payload() []byte {
	if f.RTR {
		return nil
	}
	return f.Data[:f.Len]
}

// Flag bits of the can_id field in the Linux SocketCAN frame layout.
const (
	effFlag = 0x80000000
	rtrFlag = 0x40000000
)

// FrameSize is the encoded size of one frame: the 16-byte Linux SocketCAN
// "struct can_frame" layout. The TCP and WebSocket bridges stream frames
// as a sequence of these records.
const FrameSize = 16

// MarshalBinary encodes the frame into the 16-byte SocketCAN layout:
// little-endian can_id carrying the EFF/RTR flag bits, a length byte,
// three padding bytes, then 8 data bytes.
func (f Frame) MarshalBinary() ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	id := f.ID
	if f.Extended {
		id |= effFlag
	}
	if f.RTR {
		id |= rtrFlag
	}
	buf := make([]byte, FrameSize)
	binary.LittleEndian.PutUint32(buf[0:4], id)
	buf[4] = f.Len
	copy(buf[8:16], f.Data[:])
	return buf, nil
}

// UnmarshalBinary decodes a frame from the 16-byte SocketCAN layout.
func (f *Frame) UnmarshalBinary(data []byte) error {
	if len(data) < FrameSize {
		return fmt.Errorf("can: need %d bytes, got %d", FrameSize, len(data))
	}
	id := binary.LittleEndian.Uint32(data[0:4])
	f.Extended = id&effFlag != 0
	f.RTR = id&rtrFlag != 0
	if f.Extended {
		f.ID = id & MaxExtID
	} else {
		f.ID = id & MaxStdID
	}
	f.Len = data[4]
	copy(f.Data[:], data[8:16])
	return f.Validate()
}

// String formats the frame candump-style, e.g. "02f#b6f39d3f" or
// "0b#R" for an RTR frame.
func (f Frame) String() string {
	if f.RTR {
		return fmt.Sprintf("%03x#R%d", f.ID, f.Len)
	}
	return fmt.Sprintf("%03x#%x", f.ID, f.Data[:f.Len])
}
