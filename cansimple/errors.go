// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package cansimple

import (
	"errors"
	"fmt"
)

// ErrPending reports that a request for the same (node, command) pair is
// already awaiting its reply. The dispatcher rejects the newcomer rather
// than queueing it; callers serialize or retry as they see fit.
var ErrPending = errors.New("cansimple: request already pending")

// RangeError reports a node or command id that does not fit its
// identifier field.
type RangeError struct {
	Field string
	Value uint32
	Max   uint32
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("cansimple: %s id %d out of range (max %d)", e.Field, e.Value, e.Max)
}

// PayloadError reports a frame whose payload is too short for the fields
// its command id requires. Short payloads are never zero-padded.
type PayloadError struct {
	Command Command
	Len     int
	Need    int
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("cansimple: malformed %v payload: %d bytes, need %d", e.Command, e.Len, e.Need)
}

// UnknownCommandError reports a command id outside the fixed table.
type UnknownCommandError struct {
	Command Command
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("cansimple: unknown command 0x%02x", uint8(e.Command))
}
