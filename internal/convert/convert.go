// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package convert is endianness- and sign-aware conversion between a
// measurement's raw wire bytes and Go's numeric/string types. The viewer
// uses the Decode* functions (receiver endianness -> host endianness); the
// writer uses the Encode* functions (host endianness -> a measurement's
// declared endianness, the layout every reader expects it in).
package convert

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/WillMerges/GSW-2021-sub000/internal/vcm"
)

// maxSize is the largest measurement this package will convert, matching
// MAX_CONVERSION_SIZE in the original.
const maxSize = 256

func reverse(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}

// reordered returns data with its bytes reversed if from != to, and a copy
// of data (never the same backing array) otherwise — callers mutate freely.
func reordered(data []byte, from, to vcm.Endianness) []byte {
	out := make([]byte, len(data))
	copy(out, data)
	if from != to {
		reverse(out)
	}
	return out
}

// widen places an up-to-8-byte value into a zero-extended 8-byte buffer
// positioned the way host byte order expects: low bytes first on a
// little-endian host, high bytes first on a big-endian one.
func widen(raw []byte, host vcm.Endianness) [8]byte {
	var buf [8]byte
	if host == vcm.LittleEndian {
		copy(buf[:len(raw)], raw)
	} else {
		copy(buf[8-len(raw):], raw)
	}
	return buf
}

func hostUint64(buf [8]byte, host vcm.Endianness) uint64 {
	if host == vcm.LittleEndian {
		return binary.LittleEndian.Uint64(buf[:])
	}
	return binary.BigEndian.Uint64(buf[:])
}

// DecodeInt decodes a raw, receiver-endian integer measurement into a
// sign-extended (or zero-extended, for Unsigned) int64 in host order.
func DecodeInt(hostEnd, recvEnd vcm.Endianness, sign vcm.Sign, size int, data []byte) (int64, error) {
	if size < 1 || size > 8 {
		return 0, fmt.Errorf("convert: int size %d out of range", size)
	}
	if len(data) != size {
		return 0, fmt.Errorf("convert: expected %d bytes, got %d", size, len(data))
	}

	raw := reordered(data, recvEnd, hostEnd)
	u := hostUint64(widen(raw, hostEnd), hostEnd)

	if sign == vcm.Unsigned {
		return int64(u), nil
	}
	shift := uint(64 - size*8)
	return int64(u<<shift) >> shift, nil
}

// DecodeFloat decodes a raw, receiver-endian float32 or float64 measurement
// into a float64.
func DecodeFloat(hostEnd, recvEnd vcm.Endianness, size int, data []byte) (float64, error) {
	if size != 4 && size != 8 {
		return 0, fmt.Errorf("convert: float size must be 4 or 8, got %d", size)
	}
	if len(data) != size {
		return 0, fmt.Errorf("convert: expected %d bytes, got %d", size, len(data))
	}

	raw := reordered(data, recvEnd, hostEnd)
	if size == 4 {
		var bits uint32
		if hostEnd == vcm.LittleEndian {
			bits = binary.LittleEndian.Uint32(raw)
		} else {
			bits = binary.BigEndian.Uint32(raw)
		}
		return float64(math.Float32frombits(bits)), nil
	}

	var bits uint64
	if hostEnd == vcm.LittleEndian {
		bits = binary.LittleEndian.Uint64(raw)
	} else {
		bits = binary.BigEndian.Uint64(raw)
	}
	return math.Float64frombits(bits), nil
}

// DecodeString returns a measurement's String-typed bytes as a Go string,
// truncated at the first NUL byte if one is present (the original
// null-terminates defensively when formatting for display).
func DecodeString(data []byte) (string, error) {
	if len(data) > maxSize-1 {
		return "", fmt.Errorf("convert: string measurement too large (%d bytes)", len(data))
	}
	if i := strings.IndexByte(string(data), 0); i >= 0 {
		return string(data[:i]), nil
	}
	return string(data), nil
}

// ToString renders a measurement's raw bytes as a string the way the
// original's convert_str does: decimal for int/uint, "%f"-style fixed
// notation for float, and the literal text for string measurements.
func ToString(hostEnd, recvEnd vcm.Endianness, m *vcm.Measurement, data []byte) (string, error) {
	switch m.Type {
	case vcm.Int:
		v, err := DecodeInt(hostEnd, recvEnd, m.Sign, m.Size, data)
		if err != nil {
			return "", err
		}
		if m.Sign == vcm.Unsigned {
			return strconv.FormatUint(uint64(v), 10), nil
		}
		return strconv.FormatInt(v, 10), nil
	case vcm.Float:
		v, err := DecodeFloat(hostEnd, recvEnd, m.Size, data)
		if err != nil {
			return "", err
		}
		return strconv.FormatFloat(v, 'f', 6, 64), nil
	case vcm.String:
		return DecodeString(data)
	default:
		return "", fmt.Errorf("convert: measurement %q has undefined type", m.Name)
	}
}

// EncodeInt serializes a host-order int64 into size bytes in dstEnd byte
// order (the measurement's declared endianness), the inverse of DecodeInt
// and the writer-side counterpart of the original's telemetry_copy.
func EncodeInt(hostEnd, dstEnd vcm.Endianness, size int, v int64) ([]byte, error) {
	if size < 1 || size > 8 {
		return nil, fmt.Errorf("convert: int size %d out of range", size)
	}
	var buf [8]byte
	if hostEnd == vcm.LittleEndian {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		return reordered(buf[:size], hostEnd, dstEnd), nil
	}
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	return reordered(buf[8-size:], hostEnd, dstEnd), nil
}

// EncodeFloat serializes a host-order float64 into a 4- or 8-byte measurement
// in dstEnd byte order.
func EncodeFloat(hostEnd, dstEnd vcm.Endianness, size int, v float64) ([]byte, error) {
	switch size {
	case 4:
		buf := make([]byte, 4)
		bits := math.Float32bits(float32(v))
		if hostEnd == vcm.LittleEndian {
			binary.LittleEndian.PutUint32(buf, bits)
		} else {
			binary.BigEndian.PutUint32(buf, bits)
		}
		return reordered(buf, hostEnd, dstEnd), nil
	case 8:
		buf := make([]byte, 8)
		bits := math.Float64bits(v)
		if hostEnd == vcm.LittleEndian {
			binary.LittleEndian.PutUint64(buf, bits)
		} else {
			binary.BigEndian.PutUint64(buf, bits)
		}
		return reordered(buf, hostEnd, dstEnd), nil
	default:
		return nil, fmt.Errorf("convert: float size must be 4 or 8, got %d", size)
	}
}

// EncodeString returns s as exactly size bytes: truncated if too long,
// zero-padded if shorter.
func EncodeString(size int, s string) []byte {
	buf := make([]byte, size)
	copy(buf, s)
	return buf
}
