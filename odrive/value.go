// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package odrive

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
)

// ValueKind is the wire type of an arbitrary parameter.
type ValueKind uint8

const (
	KindBool ValueKind = iota
	KindUint8
	KindInt8
	KindUint16
	KindInt16
	KindUint32
	KindInt32
	KindFloat
)

// ParseValueKind maps the type strings used by the firmware's endpoint
// documents to a ValueKind.
func ParseValueKind(s string) (ValueKind, error) {
	switch s {
	case "bool":
		return KindBool, nil
	case "uint8":
		return KindUint8, nil
	case "int8":
		return KindInt8, nil
	case "uint16":
		return KindUint16, nil
	case "int16":
		return KindInt16, nil
	case "uint32":
		return KindUint32, nil
	case "int32":
		return KindInt32, nil
	case "float":
		return KindFloat, nil
	}
	return 0, fmt.Errorf("odrive: unknown value type %q", s)
}

func (k ValueKind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindUint8:
		return "uint8"
	case KindInt8:
		return "int8"
	case KindUint16:
		return "uint16"
	case KindInt16:
		return "int16"
	case KindUint32:
		return "uint32"
	case KindInt32:
		return "int32"
	case KindFloat:
		return "float"
	}
	return fmt.Sprintf("value_kind(%d)", uint8(k))
}

// Value is one arbitrary parameter value: a kind tag plus the 32-bit
// pattern that carries it. Parameters travel as 4 little-endian bytes,
// zero padded for the narrower kinds.
type Value struct {
	kind ValueKind
	bits uint32
}

func Bool(v bool) Value {
	var bits uint32
	if v {
		bits = 1
	}
	return Value{kind: KindBool, bits: bits}
}

func Uint8(v uint8) Value   { return Value{kind: KindUint8, bits: uint32(v)} }
func Int8(v int8) Value     { return Value{kind: KindInt8, bits: uint32(uint8(v))} }
func Uint16(v uint16) Value { return Value{kind: KindUint16, bits: uint32(v)} }
func Int16(v int16) Value   { return Value{kind: KindInt16, bits: uint32(uint16(v))} }
func Uint32(v uint32) Value { return Value{kind: KindUint32, bits: v} }
func Int32(v int32) Value   { return Value{kind: KindInt32, bits: uint32(v)} }
func Float32(v float32) Value {
	return Value{kind: KindFloat, bits: math.Float32bits(v)}
}

// Kind returns the value's wire type.
func (v Value) Kind() ValueKind { return v.kind }

// LEBytes encodes the value as 4 little-endian bytes; unused bytes are
// zero.
func (v Value) LEBytes() [4]byte {
	var b [4]byte
	switch v.kind {
	case KindBool, KindUint8, KindInt8:
		b[0] = byte(v.bits)
	case KindUint16, KindInt16:
		binary.LittleEndian.PutUint16(b[0:2], uint16(v.bits))
	default:
		binary.LittleEndian.PutUint32(b[:], v.bits)
	}
	return b
}

// ValueFromLE decodes 4 little-endian bytes as the given kind.
func ValueFromLE(kind ValueKind, b [4]byte) Value {
	switch kind {
	case KindBool:
		return Bool(b[0] == 1)
	case KindUint8:
		return Uint8(b[0])
	case KindInt8:
		return Int8(int8(b[0]))
	case KindUint16:
		return Uint16(binary.LittleEndian.Uint16(b[0:2]))
	case KindInt16:
		return Int16(int16(binary.LittleEndian.Uint16(b[0:2])))
	case KindInt32:
		return Int32(int32(binary.LittleEndian.Uint32(b[:])))
	case KindFloat:
		return Value{kind: KindFloat, bits: binary.LittleEndian.Uint32(b[:])}
	}
	return Uint32(binary.LittleEndian.Uint32(b[:]))
}

// AsBool returns the value as a bool; ok is false for other kinds.
func (v Value) AsBool() (value, ok bool) {
	return v.bits != 0, v.kind == KindBool
}

// AsFloat32 returns the value as a float32; ok is false for other kinds.
func (v Value) AsFloat32() (float32, bool) {
	return math.Float32frombits(v.bits), v.kind == KindFloat
}

// AsUint64 widens any integer kind; ok is false for bool and float.
func (v Value) AsUint64() (uint64, bool) {
	switch v.kind {
	case KindUint8, KindUint16, KindUint32:
		return uint64(v.bits), true
	case KindInt8:
		return uint64(int8(v.bits)), true
	case KindInt16:
		return uint64(int16(v.bits)), true
	case KindInt32:
		return uint64(int32(v.bits)), true
	}
	return 0, false
}

// Float64 converts any kind to float64 for display and coercion.
func (v Value) Float64() float64 {
	switch v.kind {
	case KindBool:
		if v.bits != 0 {
			return 1
		}
		return 0
	case KindInt8:
		return float64(int8(v.bits))
	case KindInt16:
		return float64(int16(v.bits))
	case KindInt32:
		return float64(int32(v.bits))
	case KindFloat:
		return float64(math.Float32frombits(v.bits))
	}
	return float64(v.bits)
}

// CoerceValue builds a Value of the given kind from a float64, the
// lowest common denominator of configuration files and CLI arguments.
func CoerceValue(kind ValueKind, v float64) Value {
	switch kind {
	case KindBool:
		return Bool(v != 0)
	case KindUint8:
		return Uint8(uint8(v))
	case KindInt8:
		return Int8(int8(v))
	case KindUint16:
		return Uint16(uint16(v))
	case KindInt16:
		return Int16(int16(v))
	case KindUint32:
		return Uint32(uint32(v))
	case KindInt32:
		return Int32(int32(v))
	}
	return Float32(float32(v))
}

// ParseValue parses a CLI argument as the given kind. Bools accept
// "true"/"false" as well as numbers.
func ParseValue(kind ValueKind, s string) (Value, error) {
	if kind == KindBool {
		if b, err := strconv.ParseBool(s); err == nil {
			return Bool(b), nil
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Value{}, fmt.Errorf("odrive: parsing %q as %v: %w", s, kind, err)
	}
	return CoerceValue(kind, v), nil
}

func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.bits != 0)
	case KindFloat:
		return strconv.FormatFloat(v.Float64(), 'g', -1, 32)
	case KindInt8, KindInt16, KindInt32:
		return strconv.FormatInt(int64(v.Float64()), 10)
	}
	return strconv.FormatUint(uint64(v.bits), 10)
}
