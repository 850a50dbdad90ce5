// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package can

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func TestFrameBinaryRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
	}{
		{
			name:  "StandardData",
			frame: Frame{ID: 0x02F, Len: 4, Data: [8]byte{0xb6, 0xf3, 0x9d, 0x3f}},
		},
		{
			name:  "StandardEmpty",
			frame: Frame{ID: 0x022},
		},
		{
			name:  "Remote",
			frame: Frame{ID: 0x0B7, RTR: true, Len: 8},
		},
		{
			name:  "Extended",
			frame: Frame{ID: 0x10FACE, Extended: true, Len: 2, Data: [8]byte{0xde, 0xad}},
		},
		{
			name:  "FullPayload",
			frame: Frame{ID: 0x7FF, Len: 8, Data: [8]byte{1, 2, 3, 4, 5, 6, 7, 8}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := tt.frame.MarshalBinary()
			if err != nil {
				t.Fatalf("MarshalBinary: %v", err)
			}
			if len(buf) != FrameSize {
				t.Fatalf("encoded size = %d, want %d", len(buf), FrameSize)
			}
			var got Frame
			if err := got.UnmarshalBinary(buf); err != nil {
				t.Fatalf("UnmarshalBinary: %v", err)
			}
			if got != tt.frame {
				t.Errorf("round trip mismatch: got %+v, want %+v", got, tt.frame)
			}
		})
	}
}

func TestFrameMarshalFlags(t *testing.T) {
	f := Frame{ID: 0x123, RTR: true, Len: 2}
	buf, err := f.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	id := binary.LittleEndian.Uint32(buf[0:4])
	if id&rtrFlag == 0 {
		t.Error("RTR flag bit not set in can_id")
	}
	if id&effFlag != 0 {
		t.Error("EFF flag bit set for a standard frame")
	}

	f = Frame{ID: 0x10FACE, Extended: true}
	buf, err = f.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	id = binary.LittleEndian.Uint32(buf[0:4])
	if id&effFlag == 0 {
		t.Error("EFF flag bit not set for an extended frame")
	}
}

func TestFrameValidate(t *testing.T) {
	tests := []struct {
		name    string
		frame   Frame
		wantErr error
	}{
		{"Valid", Frame{ID: 0x7FF, Len: 8}, nil},
		{"LenTooLarge", Frame{ID: 1, Len: 9}, ErrInvalidLen},
		{"StdIDTooLarge", Frame{ID: 0x800}, ErrInvalidID},
		{"ExtIDOK", Frame{ID: 0x800, Extended: true}, nil},
		{"ExtIDTooLarge", Frame{ID: 0x20000000, Extended: true}, ErrInvalidID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.frame.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewFrame(t *testing.T) {
	f, err := NewFrame(0x02F, []byte{0xb6, 0xf3, 0x9d, 0x3f})
	if err != nil {
		t.Fatalf("NewFrame: %v", err)
	}
	if f.Len != 4 || !bytes.Equal(f.Payload(), []byte{0xb6, 0xf3, 0x9d, 0x3f}) {
		t.Errorf("unexpected frame %+v", f)
	}
	if _, err := NewFrame(1, make([]byte, 9)); !errors.Is(err, ErrInvalidLen) {
		t.Errorf("oversized data: err = %v, want ErrInvalidLen", err)
	}
	if _, err := NewFrame(0x800, nil); !errors.Is(err, ErrInvalidID) {
		t.Errorf("oversized id: err = %v, want ErrInvalidID", err)
	}
}

func TestRemoteFramePayload(t *testing.T) {
	f, err := NewRemoteFrame(0x017, 8)
	if err != nil {
		t.Fatalf("NewRemoteFrame: %v", err)
	}
	if !f.RTR {
		t.Error("RTR not set")
	}
	if f.Payload() != nil {
		t.Errorf("RTR payload = %v, want nil", f.Payload())
	}
}

func TestUnmarshalShortBuffer(t *testing.T) {
	var f Frame
	if err := f.UnmarshalBinary(make([]byte, 15)); err == nil {
		t.Error("expected error for short buffer")
	}
}

func FuzzFrameBinary(f *testing.F) {
	seed, _ := Frame{ID: 0x02F, Len: 4, Data: [8]byte{0xb6, 0xf3, 0x9d, 0x3f}}.MarshalBinary()
	f.Add(seed)
	f.Add(make([]byte, FrameSize))
	f.Fuzz(func(t *testing.T, data []byte) {
		var fr Frame
		if err := fr.UnmarshalBinary(data); err != nil {
			return
		}
		buf, err := fr.MarshalBinary()
		if err != nil {
			t.Fatalf("MarshalBinary after successful decode: %v", err)
		}
		var again Frame
		if err := again.UnmarshalBinary(buf); err != nil {
			t.Fatalf("re-decode: %v", err)
		}
		if again != fr {
			t.Fatalf("unstable round trip: %+v vs %+v", fr, again)
		}
	})
}
