// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package slcan

import (
	"bytes"
	"testing"

	"github.com/ffutop/cansimple-gateway/can"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name  string
		frame can.Frame
		want  string
	}{
		{
			name: "StandardData",
			frame: can.Frame{
				ID:   0x029,
				Len:  8,
				Data: [8]byte{0xB6, 0xF3, 0x9D, 0x3F, 0x00, 0x00, 0x80, 0x3F},
			},
			want: "t0298B6F39D3F0000803F\r",
		},
		{
			name:  "StandardRemote",
			frame: can.Frame{ID: 0x0B7, RTR: true, Len: 0},
			want:  "r0B70\r",
		},
		{
			name: "ExtendedData",
			frame: can.Frame{
				ID:       0x1ABCDEF0,
				Extended: true,
				Len:      2,
				Data:     [8]byte{0x12, 0x34},
			},
			want: "T1ABCDEF021234\r",
		},
		{
			name:  "ExtendedRemote",
			frame: can.Frame{ID: 0x100, Extended: true, RTR: true, Len: 4},
			want:  "R000001004\r",
		},
		{
			name:  "EmptyPayload",
			frame: can.Frame{ID: 0x022, Len: 0},
			want:  "t0220\r",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.frame)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Encode = %q, want %q", got, tt.want)
			}

			// Round-trip without the CR terminator.
			back, err := Decode(bytes.TrimSuffix(got, []byte{cr}))
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if back != tt.frame {
				t.Errorf("round-trip = %+v, want %+v", back, tt.frame)
			}
		})
	}
}

func TestEncodeInvalidFrame(t *testing.T) {
	if _, err := Encode(can.Frame{ID: 0x800}); err == nil {
		t.Error("expected error for 12-bit standard identifier")
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"Empty", ""},
		{"UnknownType", "x1230"},
		{"Truncated", "t12"},
		{"BadDLC", "t123X"},
		{"MissingData", "t123411"},
		{"BadHex", "t1231ZZ"},
		{"BadID", "t12Z0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode([]byte(tt.line)); err == nil {
				t.Errorf("Decode(%q) succeeded, want error", tt.line)
			}
		})
	}
}

func TestDecodeLowercaseHex(t *testing.T) {
	frame, err := Decode([]byte("t0298b6f39d3f0000803f"))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if frame.ID != 0x029 || frame.Len != 8 {
		t.Errorf("got id 0x%03x len %d", frame.ID, frame.Len)
	}
	want := [8]byte{0xB6, 0xF3, 0x9D, 0x3F, 0x00, 0x00, 0x80, 0x3F}
	if frame.Data != want {
		t.Errorf("data = %x, want %x", frame.Data, want)
	}
}

func TestBitrateCommand(t *testing.T) {
	cmd, err := BitrateCommand(500000)
	if err != nil {
		t.Fatalf("BitrateCommand failed: %v", err)
	}
	if string(cmd) != "S6\r" {
		t.Errorf("got %q, want S6\\r", cmd)
	}
	if _, err := BitrateCommand(123456); err == nil {
		t.Error("expected error for unsupported bitrate")
	}
}
