// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package convert

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WillMerges/GSW-2021-sub000/internal/vcm"
)

func TestDecodeInt_SameEndianness_Unsigned(t *testing.T) {
	data := []byte{0x01, 0x00, 0x00, 0x00} // 1, little-endian
	v, err := DecodeInt(vcm.LittleEndian, vcm.LittleEndian, vcm.Unsigned, 4, data)
	require.NoError(t, err)
	assert.EqualValues(t, 1, v)
}

func TestDecodeInt_SwappedEndianness_Signed(t *testing.T) {
	// -1 as a 2-byte big-endian value is 0xFFFF regardless of sign, but a
	// meaningful negative example needs more than all-1 bits; use -2.
	data := []byte{0xFF, 0xFE} // -2 as big-endian int16
	v, err := DecodeInt(vcm.LittleEndian, vcm.BigEndian, vcm.Signed, 2, data)
	require.NoError(t, err)
	assert.EqualValues(t, -2, v)
}

func TestEncodeDecodeInt_RoundTrip(t *testing.T) {
	raw, err := EncodeInt(vcm.LittleEndian, vcm.BigEndian, 4, -12345)
	require.NoError(t, err)

	back, err := DecodeInt(vcm.LittleEndian, vcm.BigEndian, vcm.Signed, 4, raw)
	require.NoError(t, err)
	assert.EqualValues(t, -12345, back)
}

func TestDecodeFloat_RoundTrip(t *testing.T) {
	raw, err := EncodeFloat(vcm.LittleEndian, vcm.BigEndian, 8, 3.14159265)
	require.NoError(t, err)

	back, err := DecodeFloat(vcm.LittleEndian, vcm.BigEndian, 8, raw)
	require.NoError(t, err)
	assert.InDelta(t, 3.14159265, back, 1e-9)
}

func TestDecodeString_TruncatesAtNull(t *testing.T) {
	data := []byte("abc\x00garbage")
	s, err := DecodeString(data)
	require.NoError(t, err)
	assert.Equal(t, "abc", s)
}

func TestEncodeString_PadsAndTruncates(t *testing.T) {
	assert.Equal(t, []byte{'h', 'i', 0, 0}, EncodeString(4, "hi"))
	assert.Equal(t, []byte("tru"), EncodeString(3, "truncated"))
}

func TestToString_Int(t *testing.T) {
	m := &vcm.Measurement{Name: "M", Size: 4, Type: vcm.Int, Sign: vcm.Signed}
	raw, err := EncodeInt(vcm.LittleEndian, vcm.LittleEndian, 4, 42)
	require.NoError(t, err)

	s, err := ToString(vcm.LittleEndian, vcm.LittleEndian, m, raw)
	require.NoError(t, err)
	assert.Equal(t, "42", s)
}

func TestToString_Float(t *testing.T) {
	m := &vcm.Measurement{Name: "M", Size: 8, Type: vcm.Float}
	raw, err := EncodeFloat(vcm.LittleEndian, vcm.LittleEndian, 8, 1.5)
	require.NoError(t, err)

	s, err := ToString(vcm.LittleEndian, vcm.LittleEndian, m, raw)
	require.NoError(t, err)
	assert.Equal(t, "1.500000", s)
}

func TestDecodeInt_RejectsWrongLength(t *testing.T) {
	_, err := DecodeInt(vcm.LittleEndian, vcm.LittleEndian, vcm.Signed, 4, []byte{1, 2})
	assert.Error(t, err)
}
