// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package slcan attaches to CAN through an SLCAN adapter: an ASCII
// line protocol spoken by USB serial dongles and by EBYTE-style
// CAN/Ethernet converters over a plain TCP socket.
package slcan

import (
	"fmt"
	"strings"

	"github.com/ffutop/cansimple-gateway/can"
)

// Line terminators and adapter responses.
const (
	cr  = '\r' // terminates every command and frame
	bel = 0x07 // adapter error response
)

// Encode renders a frame as one SLCAN line including the trailing CR.
// Standard data frames use 't', extended 'T'; remote frames use
// 'r'/'R' and carry the DLC but no data.
func Encode(frame can.Frame) ([]byte, error) {
	if err := frame.Validate(); err != nil {
		return nil, err
	}

	var b strings.Builder
	switch {
	case frame.RTR && frame.Extended:
		b.WriteByte('R')
	case frame.RTR:
		b.WriteByte('r')
	case frame.Extended:
		b.WriteByte('T')
	default:
		b.WriteByte('t')
	}

	if frame.Extended {
		fmt.Fprintf(&b, "%08X", frame.ID)
	} else {
		fmt.Fprintf(&b, "%03X", frame.ID)
	}

	b.WriteByte('0' + frame.Len)

	if !frame.RTR {
		for _, v := range frame.Data[:frame.Len] {
			fmt.Fprintf(&b, "%02X", v)
		}
	}

	b.WriteByte(cr)
	return []byte(b.String()), nil
}

// Decode parses one SLCAN line (without the trailing CR) into a frame.
// Lines that are not frames, such as the empty "\r" acknowledgement,
// fail with an error; the caller decides whether that is noise.
func Decode(line []byte) (can.Frame, error) {
	if len(line) == 0 {
		return can.Frame{}, fmt.Errorf("slcan: empty line")
	}

	var f can.Frame
	var idLen int
	switch line[0] {
	case 't':
		idLen = 3
	case 'T':
		idLen = 3 + 5
		f.Extended = true
	case 'r':
		idLen = 3
		f.RTR = true
	case 'R':
		idLen = 3 + 5
		f.Extended = true
		f.RTR = true
	default:
		return can.Frame{}, fmt.Errorf("slcan: unexpected line %q", line)
	}

	if len(line) < 1+idLen+1 {
		return can.Frame{}, fmt.Errorf("slcan: truncated frame %q", line)
	}

	id, err := parseHex(line[1 : 1+idLen])
	if err != nil {
		return can.Frame{}, fmt.Errorf("slcan: identifier in %q: %w", line, err)
	}
	f.ID = id

	dlc := line[1+idLen]
	if dlc < '0' || dlc > '8' {
		return can.Frame{}, fmt.Errorf("slcan: dlc %q in %q", dlc, line)
	}
	f.Len = dlc - '0'

	if !f.RTR {
		data := line[1+idLen+1:]
		if len(data) < int(f.Len)*2 {
			return can.Frame{}, fmt.Errorf("slcan: %d data nibbles for dlc %d in %q", len(data), f.Len, line)
		}
		for i := 0; i < int(f.Len); i++ {
			v, err := parseHex(data[i*2 : i*2+2])
			if err != nil {
				return can.Frame{}, fmt.Errorf("slcan: data in %q: %w", line, err)
			}
			f.Data[i] = byte(v)
		}
	}

	if err := f.Validate(); err != nil {
		return can.Frame{}, err
	}
	return f, nil
}

func parseHex(s []byte) (uint32, error) {
	var v uint32
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
			v = v<<4 | uint32(c-'0')
		case c >= 'A' && c <= 'F':
			v = v<<4 | uint32(c-'A'+10)
		case c >= 'a' && c <= 'f':
			v = v<<4 | uint32(c-'a'+10)
		default:
			return 0, fmt.Errorf("invalid hex digit %q", c)
		}
	}
	return v, nil
}

// bitrateCodes maps a bit rate in bit/s to the adapter's S command
// argument.
var bitrateCodes = map[int]byte{
	10000:   '0',
	20000:   '1',
	50000:   '2',
	100000:  '3',
	125000:  '4',
	250000:  '5',
	500000:  '6',
	800000:  '7',
	1000000: '8',
}

// BitrateCommand returns the "Sn\r" setup command for a bit rate.
func BitrateCommand(bitrate int) ([]byte, error) {
	code, ok := bitrateCodes[bitrate]
	if !ok {
		return nil, fmt.Errorf("slcan: unsupported bitrate %d", bitrate)
	}
	return []byte{'S', code, cr}, nil
}
