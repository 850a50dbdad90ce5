// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package cansimple

import (
	"errors"
	"testing"

	"github.com/ffutop/cansimple-gateway/can"
)

func TestNewIDRoundTrip(t *testing.T) {
	for node := 0; node <= MaxNode; node++ {
		for cmd := 0; cmd <= MaxCommand; cmd++ {
			id, err := NewID(uint8(node), Command(cmd))
			if err != nil {
				t.Fatalf("NewID(%d, %d): %v", node, cmd, err)
			}
			if got := id.Node(); got != uint8(node) {
				t.Fatalf("NewID(%d, %d).Node() = %d", node, cmd, got)
			}
			if got := id.Command(); got != Command(cmd) {
				t.Fatalf("NewID(%d, %d).Command() = %d", node, cmd, got)
			}
		}
	}
}

func TestNewIDOutOfRange(t *testing.T) {
	tests := []struct {
		name  string
		node  uint8
		cmd   Command
		field string
	}{
		{"NodeAtLimit", 64, 0, "node"},
		{"NodeLarge", 255, 5, "node"},
		{"CommandAtLimit", 0, 32, "command"},
		{"CommandLarge", 63, 200, "command"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewID(tt.node, tt.cmd)
			var rerr *RangeError
			if !errors.As(err, &rerr) {
				t.Fatalf("NewID(%d, %d) err = %v, want RangeError", tt.node, tt.cmd, err)
			}
			if rerr.Field != tt.field {
				t.Errorf("RangeError.Field = %q, want %q", rerr.Field, tt.field)
			}
		})
	}
}

func TestIDFromRaw(t *testing.T) {
	for raw := uint16(0); raw < 2048; raw++ {
		id := IDFromRaw(raw)
		if id.Raw() != raw {
			t.Fatalf("IDFromRaw(%#x).Raw() = %#x", raw, id.Raw())
		}
		if id.Node() != uint8(raw>>5) {
			t.Fatalf("IDFromRaw(%#x).Node() = %d, want %d", raw, id.Node(), raw>>5)
		}
		if id.Command() != Command(raw&0x1F) {
			t.Fatalf("IDFromRaw(%#x).Command() = %d, want %d", raw, id.Command(), raw&0x1F)
		}
	}
}

func TestIDFromRawMasksTo11Bits(t *testing.T) {
	// Oversized raw input mirrors the wire: only 11 bits are ever
	// transmitted, the rest is truncated, never rejected.
	if got := IDFromRaw(0xF829).Raw(); got != 0x029 {
		t.Errorf("IDFromRaw(0xF829).Raw() = %#x, want 0x029", got)
	}
	if got := IDFromRaw(0xFFFF).Raw(); got != 0x7FF {
		t.Errorf("IDFromRaw(0xFFFF).Raw() = %#x, want 0x7FF", got)
	}
}

func TestIDBitLayout(t *testing.T) {
	// Command occupies the low 5 bits, node the 6 bits above. An
	// implementation that swaps field order is protocol-incompatible.
	id, err := NewID(1, 15)
	if err != nil {
		t.Fatalf("NewID(1, 15): %v", err)
	}
	if id.Raw() != 0x2F {
		t.Errorf("NewID(1, 15).Raw() = %#x, want 0x2F", id.Raw())
	}

	id = IDFromRaw(0x029)
	if id.Node() != 1 || id.Command() != 9 {
		t.Errorf("IDFromRaw(0x029) = node %d, command %d; want node 1, command 9", id.Node(), id.Command())
	}
}

func TestIDFromFrame(t *testing.T) {
	frame, err := can.NewFrame(0x2F, nil)
	if err != nil {
		t.Fatalf("NewFrame: %v", err)
	}
	id := IDFromFrame(frame)
	if id.Node() != 1 || id.Command() != 15 {
		t.Errorf("IDFromFrame = node %d, command %d; want node 1, command 15", id.Node(), id.Command())
	}
}
