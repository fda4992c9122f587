// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package trigger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WillMerges/GSW-2021-sub000/internal/convert"
	"github.com/WillMerges/GSW-2021-sub000/internal/gswerr"
	"github.com/WillMerges/GSW-2021-sub000/internal/vcm"
	"github.com/WillMerges/GSW-2021-sub000/internal/viewer"
	"github.com/WillMerges/GSW-2021-sub000/internal/writer"
)

const sensorConfig = `
protocol = udp
name     = sensors
triggers = triggers.txt
RAW_ADC 4 int little signed
VOLTS 8 float little
RAW_TC 4 int little unsigned
TC_CONNECTED 1 int little unsigned
TC_REMOTE 8 float little
TC_AMBIENT 8 float little
TC_CORRECTED 8 float little
LOAD_V 8 float little
LOAD_FORCE 8 float little
PRESSURE_V 8 float little
PRESSURE_PSI 8 float little
STATE 2 int little unsigned
STATE_STR 8 string
8081 {
  RAW_ADC
  RAW_TC
  LOAD_V
  PRESSURE_V
  STATE
}
virtual {
  VOLTS
  TC_CONNECTED
  TC_REMOTE
  TC_AMBIENT
  TC_CORRECTED
  LOAD_FORCE
  PRESSURE_PSI
  STATE_STR
}
`

func sensorVehicle(t *testing.T) *vcm.Vehicle {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config")
	require.NoError(t, os.WriteFile(path, []byte(sensorConfig), 0o644))
	v, err := vcm.Load(path)
	require.NoError(t, err)
	v.TriggerFile = filepath.Join(dir, "triggers.txt")
	require.NoError(t, os.WriteFile(v.TriggerFile, nil, 0o644))
	return v
}

func fanOut(v *vcm.Vehicle, names ...string) []*vcm.Measurement {
	out := make([]*vcm.Measurement, len(names))
	for i, n := range names {
		out[i] = v.GetInfo(n)
	}
	return out
}

// setRawFloat/setRawUint encode a value directly into a non-virtual packet's
// raw byte buffer at the named measurement's (sole) location, standing in
// for what an ingest socket would have written.
func setRawFloat(t *testing.T, v *vcm.Vehicle, raw []byte, name string, val float64) {
	t.Helper()
	m := v.GetInfo(name)
	require.NotNil(t, m)
	b, err := convert.EncodeFloat(v.SysEndianness, m.Endianness, m.Size, val)
	require.NoError(t, err)
	copy(raw[m.Locations[0].Offset:], b)
}

func setRawUint(t *testing.T, v *vcm.Vehicle, raw []byte, name string, val uint64) {
	t.Helper()
	m := v.GetInfo(name)
	require.NotNil(t, m)
	b, err := convert.EncodeInt(v.SysEndianness, m.Endianness, m.Size, int64(val))
	require.NoError(t, err)
	copy(raw[m.Locations[0].Offset:], b)
}

func TestDAQADCScale(t *testing.T) {
	v := sensorVehicle(t)
	raw := make([]byte, v.Packets[0].Size)
	// RAW_ADC at offset 0, little-endian signed int32: exactly 1<<23 counts
	// should scale to exactly vref volts.
	raw[0], raw[1], raw[2], raw[3] = 0x00, 0x00, 0x80, 0x00

	shm := newOpenShm(t, v)
	require.Equal(t, gswerr.Success, shm.Write(0, raw))

	tv := viewer.New(v, shm)
	require.Equal(t, gswerr.Success, tv.AddAll())
	require.Equal(t, gswerr.Success, tv.Update(0))

	tw := writer.New(v, shm)
	require.Equal(t, gswerr.Success, tw.Lock(false))
	res := daqADCScale(tv, tw, fanOut(v, "RAW_ADC", "VOLTS"))
	require.Equal(t, gswerr.Success, res)
	require.Equal(t, gswerr.Success, tw.Flush())
	require.Equal(t, gswerr.Success, tw.Unlock())

	tv2 := viewer.New(v, shm)
	require.Equal(t, gswerr.Success, tv2.AddAll())
	require.Equal(t, gswerr.Success, tv2.Update(0))
	volts, res := tv2.GetFloat("VOLTS")
	require.Equal(t, gswerr.Success, res)
	assert.InDelta(t, daqADCScaleVref, volts, 1e-9)
}

func TestPCB1403CurrentExcite_PushIsPositive(t *testing.T) {
	v := sensorVehicle(t)
	raw := make([]byte, v.Packets[0].Size)
	setRawFloat(t, v, raw, "LOAD_V", -1.0) // negative voltage -> positive (push) force

	shm := newOpenShm(t, v)
	require.Equal(t, gswerr.Success, shm.Write(0, raw))

	tw := writer.New(v, shm)
	require.Equal(t, gswerr.Success, tw.Lock(false))

	tv := viewer.New(v, shm)
	require.Equal(t, gswerr.Success, tv.AddAll())
	require.Equal(t, gswerr.Success, tv.Update(0))

	res := pcb1403CurrentExcite(tv, tw, fanOut(v, "LOAD_V", "LOAD_FORCE"))
	require.Equal(t, gswerr.Success, res)
	require.Equal(t, gswerr.Success, tw.Flush())
	require.Equal(t, gswerr.Success, tw.Unlock())

	tv2 := viewer.New(v, shm)
	require.Equal(t, gswerr.Success, tv2.AddAll())
	require.Equal(t, gswerr.Success, tv2.Update(0))
	f, res := tv2.GetFloat("LOAD_FORCE")
	require.Equal(t, gswerr.Success, res)
	assert.Greater(t, f, 0.0)
}

func TestSolenoidStateToStr(t *testing.T) {
	v := sensorVehicle(t)
	raw := make([]byte, v.Packets[0].Size)
	setRawUint(t, v, raw, "STATE", 1)

	shm := newOpenShm(t, v)
	require.Equal(t, gswerr.Success, shm.Write(0, raw))

	tw := writer.New(v, shm)
	require.Equal(t, gswerr.Success, tw.Lock(false))

	tv := viewer.New(v, shm)
	require.Equal(t, gswerr.Success, tv.AddAll())
	require.Equal(t, gswerr.Success, tv.Update(0))

	res := solenoidStateToStr(tv, tw, fanOut(v, "STATE", "STATE_STR"))
	require.Equal(t, gswerr.Success, res)
	require.Equal(t, gswerr.Success, tw.Flush())
	require.Equal(t, gswerr.Success, tw.Unlock())

	tv2 := viewer.New(v, shm)
	require.Equal(t, gswerr.Success, tv2.AddAll())
	require.Equal(t, gswerr.Success, tv2.Update(0))
	raw2, res := tv2.GetRaw("STATE_STR")
	require.Equal(t, gswerr.Success, res)
	assert.Equal(t, "OPEN", string(raw2[:4]))
}

func TestMAX31855KThermocouple_Disconnected(t *testing.T) {
	v := sensorVehicle(t)
	raw := make([]byte, v.Packets[0].Size)
	setRawUint(t, v, raw, "RAW_TC", 1<<16) // fault bit set

	shm := newOpenShm(t, v)
	tw := writer.New(v, shm)
	require.Equal(t, gswerr.Success, shm.Write(0, raw))
	require.Equal(t, gswerr.Success, tw.Lock(false))

	tv := viewer.New(v, shm)
	require.Equal(t, gswerr.Success, tv.AddAll())
	require.Equal(t, gswerr.Success, tv.Update(0))

	res := max31855kThermocouple(tv, tw, fanOut(v, "RAW_TC", "TC_CONNECTED", "TC_REMOTE", "TC_AMBIENT", "TC_CORRECTED"))
	require.Equal(t, gswerr.Success, res) // reports disconnected, still "success"
	require.Equal(t, gswerr.Success, tw.Flush())
	require.Equal(t, gswerr.Success, tw.Unlock())

	tv2 := viewer.New(v, shm)
	require.Equal(t, gswerr.Success, tv2.AddAll())
	require.Equal(t, gswerr.Success, tv2.Update(0))
	connected, res := tv2.GetUint("TC_CONNECTED")
	require.Equal(t, gswerr.Success, res)
	assert.EqualValues(t, 0, connected)
}
