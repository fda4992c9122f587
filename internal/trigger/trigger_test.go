// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package trigger

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WillMerges/GSW-2021-sub000/internal/gswerr"
	"github.com/WillMerges/GSW-2021-sub000/internal/mqueue"
	"github.com/WillMerges/GSW-2021-sub000/internal/tshm"
	"github.com/WillMerges/GSW-2021-sub000/internal/vcm"
)

const baseConfig = `
protocol = udp
name     = rocket
triggers = triggers.txt
MEAS_X 4 int little unsigned
MEAS_Y 4 int little unsigned
MEAS_SUM 4 int little unsigned
MEAS_A 8 float little
MEAS_B 8 float little
MEAS_MAX 8 float little
8081 {
  MEAS_X
  MEAS_Y
  MEAS_A
  MEAS_B
}
virtual {
  MEAS_SUM
  MEAS_MAX
}
`

func loadVehicle(t *testing.T, configExtra, triggerFile string) *vcm.Vehicle {
	t.Helper()
	dir := t.TempDir()

	configPath := filepath.Join(dir, "config")
	require.NoError(t, os.WriteFile(configPath, []byte(baseConfig+configExtra), 0o644))

	v, err := vcm.Load(configPath)
	require.NoError(t, err)

	triggerPath := filepath.Join(dir, "triggers.txt")
	require.NoError(t, os.WriteFile(triggerPath, []byte(triggerFile), 0o644))
	v.TriggerFile = triggerPath

	return v
}

func newOpenShm(t *testing.T, v *vcm.Vehicle) *tshm.TShm {
	t.Helper()
	root := t.TempDir()

	creator := tshm.New(root, v)
	require.Equal(t, gswerr.Success, creator.Create())
	t.Cleanup(func() { creator.Destroy() })

	handle := tshm.New(root, v)
	require.Equal(t, gswerr.Success, handle.Open())
	t.Cleanup(func() { handle.Close() })

	return handle
}

func TestEngine_CopyTriggerFanOut(t *testing.T) {
	v := loadVehicle(t, "", "MEAS_X COPY MEAS_X MEAS_SUM\n")
	shm := newOpenShm(t, v)

	// seed packet 0 (contains MEAS_X at offset 0) directly via a raw write
	buf := make([]byte, v.Packets[0].Size)
	buf[0] = 42
	require.Equal(t, gswerr.Success, shm.Write(0, buf))

	e, err := Load(v, shm)
	require.NoError(t, err)

	require.Equal(t, gswerr.Success, e.RunOnce(2000))

	sumPacketIdx := 0
	for i, p := range v.Packets {
		if p.IsVirtual {
			sumPacketIdx = i
			break
		}
	}
	got := shm.GetBuffer(sumPacketIdx)
	require.NotNil(t, got)
	assert.EqualValues(t, 42, got[0])
}

func TestEngine_CopyTriggerPushesOneLogRecordPerFlushedPacket(t *testing.T) {
	v := loadVehicle(t, "", "MEAS_X COPY MEAS_X MEAS_SUM\n")
	shm := newOpenShm(t, v)

	buf := make([]byte, v.Packets[0].Size)
	buf[0] = 7
	require.Equal(t, gswerr.Success, shm.Write(0, buf))

	e, err := Load(v, shm)
	require.NoError(t, err)

	mgr := mqueue.NewManager(v)
	e.SetLogQueue(mgr)

	require.Equal(t, gswerr.Success, e.RunOnce(2000))

	msg, ok := mgr.LogQueue().Receive()
	require.True(t, ok, "flushing the virtual packet should have pushed exactly one log record")

	rec, err := mqueue.DecodeLogRecord(bufio.NewReader(bytes.NewReader(msg)))
	require.NoError(t, err)
	assert.Equal(t, v.Device, rec.Device)
	assert.EqualValues(t, 7, rec.Payload[0])
}

func TestEngine_SumUint(t *testing.T) {
	v := loadVehicle(t, "", "MEAS_X SUM_UINT MEAS_SUM MEAS_X MEAS_Y\n")
	shm := newOpenShm(t, v)

	buf := make([]byte, v.Packets[0].Size)
	buf[0] = 3  // MEAS_X = 3
	buf[4] = 4  // MEAS_Y = 4
	require.Equal(t, gswerr.Success, shm.Write(0, buf))

	e, err := Load(v, shm)
	require.NoError(t, err)

	require.Equal(t, gswerr.Success, e.RunOnce(2000))

	sumPacketIdx := -1
	for i, p := range v.Packets {
		if p.IsVirtual {
			sumPacketIdx = i
			break
		}
	}
	require.NotEqual(t, -1, sumPacketIdx)
	got := shm.GetBuffer(sumPacketIdx)
	assert.EqualValues(t, 7, got[0])
}

func TestEngine_MaxDouble_NoChangeDoesNotFlush(t *testing.T) {
	v := loadVehicle(t, "", "MEAS_A MAX_DOUBLE MEAS_A MEAS_MAX\n")
	shm := newOpenShm(t, v)

	buf := make([]byte, v.Packets[0].Size)
	require.Equal(t, gswerr.Success, shm.Write(0, buf)) // MEAS_A == 0.0, MEAS_MAX starts at 0.0 too: not greater

	e, err := Load(v, shm)
	require.NoError(t, err)

	mgr := mqueue.NewManager(v)
	e.SetLogQueue(mgr)

	require.Equal(t, gswerr.Success, e.RunOnce(2000))

	// a flush pushes a log record; none may be queued after a NoChange cycle
	mgr.Close()
	_, ok := mgr.LogQueue().Receive()
	assert.False(t, ok, "a cycle where every trigger returned NoChange should not flush")
}

func TestParseFile_RejectsUnknownFunction(t *testing.T) {
	v := loadVehicle(t, "", "MEAS_X NOT_A_REAL_FUNCTION MEAS_X MEAS_SUM\n")
	_, err := parseFile(v)
	assert.Error(t, err)
}

func TestParseFile_RejectsWrongArity(t *testing.T) {
	v := loadVehicle(t, "", "MEAS_X COPY MEAS_X\n") // COPY needs 2 args
	_, err := parseFile(v)
	assert.Error(t, err)
}

func TestParseFile_SkipsBlankAndCommentLines(t *testing.T) {
	v := loadVehicle(t, "", "# a comment\n\nMEAS_X COPY MEAS_X MEAS_SUM\n")
	triggers, err := parseFile(v)
	require.NoError(t, err)
	require.Len(t, triggers, 1)
	assert.Equal(t, "COPY", triggers[0].FuncName)
}

func TestParseFile_MissingFileIsFileNotFound(t *testing.T) {
	v := loadVehicle(t, "", "MEAS_X COPY MEAS_X MEAS_SUM\n")
	v.TriggerFile = filepath.Join(t.TempDir(), "does-not-exist.txt")

	_, err := parseFile(v)
	require.Error(t, err)
	var notFound errFileNotFound
	assert.ErrorAs(t, err, &notFound)
}
