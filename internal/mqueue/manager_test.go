// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mqueue

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WillMerges/GSW-2021-sub000/internal/gswerr"
	"github.com/WillMerges/GSW-2021-sub000/internal/vcm"
)

const managerTestConfig = `
protocol = udp
port     = 8081
name     = rocket
net WIRELESS auto 9000
MEAS_A 4 int little unsigned
8081 {
  MEAS_A
}
`

func loadTestVehicle(t *testing.T) *vcm.Vehicle {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config")
	require.NoError(t, os.WriteFile(path, []byte(managerTestConfig), 0o644))
	v, err := vcm.Load(path)
	require.NoError(t, err)
	return v
}

func TestManager_BuildsLogQueueAndOneUplinkPerDevice(t *testing.T) {
	v := loadTestVehicle(t)
	m := NewManager(v)

	require.NotNil(t, m.LogQueue())
	assert.Equal(t, []string{"uplink.WIRELESS"}, m.UplinkDevices())

	uplink := m.UplinkQueue("WIRELESS")
	require.NotNil(t, uplink)
	assert.Nil(t, m.UplinkQueue("NOT_CONFIGURED"))
}

func TestManager_PushLogRecordEnqueuesEncodedBytes(t *testing.T) {
	v := loadTestVehicle(t)
	m := NewManager(v)

	rec := &LogRecord{Sec: 1, Usec: 2, Device: "rocket", Payload: []byte{9, 9}}
	require.Equal(t, gswerr.Success, m.PushLogRecord(rec))

	msg, ok := m.LogQueue().Receive()
	require.True(t, ok)
	assert.Equal(t, EncodeLogRecord(rec), msg)
}
