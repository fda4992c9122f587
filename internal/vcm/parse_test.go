// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vcm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
protocol = udp
port     = 8081
multicast = 224.0.0.5
name     = rocket
triggers = triggers.txt
net WIRELESS auto 9000
MEAS_A 4 int little unsigned
MEAS_B 8 float big
MEAS_S 16 string
8081 {
  MEAS_A
  MEAS_B
}
virtual {
  MEAS_S
}
`

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoad_SampleConfig(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)

	v, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, v.Validate())

	assert.Equal(t, "rocket", v.Device)
	assert.Equal(t, "224.0.0.5", v.MulticastAddr)
	assert.Equal(t, 8081, v.Port)
	assert.Equal(t, UDP, v.Protocol)
	assert.Equal(t, "triggers.txt", v.TriggerFile)
	require.Len(t, v.NetDevices, 1)
	assert.Equal(t, "WIRELESS", v.NetDevices[0].Name)

	require.Len(t, v.Packets, 2)
	assert.Equal(t, 0, v.Packets[0].Index)
	assert.Equal(t, 8081, v.Packets[0].Port)
	assert.False(t, v.Packets[0].IsVirtual)
	assert.Equal(t, 12, v.Packets[0].Size) // MEAS_A(4) + MEAS_B(8)

	assert.True(t, v.Packets[1].IsVirtual)
	assert.Equal(t, 0, v.Packets[1].Port)
	assert.Equal(t, 16, v.Packets[1].Size)

	a := v.GetInfo("MEAS_A")
	require.NotNil(t, a)
	assert.Equal(t, Int, a.Type)
	assert.Equal(t, Unsigned, a.Sign)
	assert.Equal(t, LittleEndian, a.Endianness)
	require.Len(t, a.Locations, 1)
	assert.Equal(t, Location{PacketIndex: 0, Offset: 0}, a.Locations[0])

	b := v.GetInfo("MEAS_B")
	require.NotNil(t, b)
	assert.Equal(t, Float, b.Type)
	assert.Equal(t, BigEndian, b.Endianness)
	assert.Equal(t, Location{PacketIndex: 0, Offset: 4}, b.Locations[0])

	s := v.GetInfo("MEAS_S")
	require.NotNil(t, s)
	assert.Equal(t, String, s.Type)

	assert.Nil(t, v.GetInfo("NO_SUCH_MEASUREMENT"))
}

func TestLoad_DuplicatePortRejected(t *testing.T) {
	path := writeTempConfig(t, `
protocol = udp
MEAS_A 4 int
8081 {
  MEAS_A
}
8081 {
  MEAS_A
}
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_UndeclaredMeasurementInBlockRejected(t *testing.T) {
	path := writeTempConfig(t, `
protocol = udp
8081 {
  MEAS_NEVER_DECLARED
}
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingProtocolRejected(t *testing.T) {
	path := writeTempConfig(t, `
name = rocket
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_MeasurementSharedAcrossPackets(t *testing.T) {
	path := writeTempConfig(t, `
protocol = udp
MEAS_M 4 int
8081 {
  MEAS_M
}
virtual {
  MEAS_M
}
`)
	v, err := Load(path)
	require.NoError(t, err)

	m := v.GetInfo("MEAS_M")
	require.Len(t, m.Locations, 2)
	assert.Equal(t, 0, m.Locations[0].PacketIndex)
	assert.Equal(t, 1, m.Locations[1].PacketIndex)
}
