// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ingest

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WillMerges/GSW-2021-sub000/internal/gswerr"
	"github.com/WillMerges/GSW-2021-sub000/internal/mqueue"
	"github.com/WillMerges/GSW-2021-sub000/internal/tshm"
	"github.com/WillMerges/GSW-2021-sub000/internal/vcm"
)

const ingestTestConfig = `
protocol = udp
name     = rocket
net WIRELESS auto 9000
MEAS_X 4 int little unsigned
8081 {
  MEAS_X
}
`

func loadIngestVehicle(t *testing.T, configExtra string) *vcm.Vehicle {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config")
	require.NoError(t, os.WriteFile(path, []byte(ingestTestConfig+configExtra), 0o644))
	v, err := vcm.Load(path)
	require.NoError(t, err)
	return v
}

func openIngestShm(t *testing.T, v *vcm.Vehicle) *tshm.TShm {
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

func TestPortBinding_LearnsAddressAndRefusesSendBeforeFirstRecv(t *testing.T) {
	b, err := Bind(":0")
	require.NoError(t, err)
	defer b.Close()

	assert.Nil(t, b.LastAddr())
	assert.Equal(t, gswerr.Failure, b.SendTo([]byte("x")))

	sender, err := net.DialUDP("udp", nil, b.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	defer sender.Close()

	_, err = sender.Write([]byte("hello"))
	require.NoError(t, err)

	buf := make([]byte, 16)
	n, err := b.RecvFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
	require.NotNil(t, b.LastAddr())

	require.NoError(t, sender.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.Equal(t, gswerr.Success, b.SendTo([]byte("reply")))
	reply := make([]byte, 16)
	n, err = sender.Read(reply)
	require.NoError(t, err)
	assert.Equal(t, "reply", string(reply[:n]))
}

func TestIngester_CorrectlySizedDatagramWritesSlotAndLogs(t *testing.T) {
	v := loadIngestVehicle(t, "")
	shm := openIngestShm(t, v)

	mgr := mqueue.NewManager(v)
	g := New(v, shm, mgr)

	binding, err := g.Binding(v.Packets[0].Port)
	require.NoError(t, err)
	localAddr := binding.LocalAddr().(*net.UDPAddr)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		g.Run(ctx)
		close(done)
	}()

	sender, err := net.DialUDP("udp", nil, localAddr)
	require.NoError(t, err)
	defer sender.Close()
	_, err = sender.Write([]byte{1, 2, 3, 4})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return shm.GetBuffer(0) != nil && shm.GetBuffer(0)[0] == 1
	}, 2*time.Second, 10*time.Millisecond)

	msg, ok := mgr.LogQueue().Receive()
	require.True(t, ok)
	rec, err := mqueue.DecodeLogRecord(bufio.NewReader(bytes.NewReader(msg)))
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, rec.Payload)

	cancel()
	<-done
}

func TestIngester_SizeMismatchClearsSlot(t *testing.T) {
	v := loadIngestVehicle(t, "")
	shm := openIngestShm(t, v)
	require.Equal(t, gswerr.Success, shm.Write(0, []byte{9, 9, 9, 9}))

	g := New(v, shm, nil)
	binding, err := g.Binding(v.Packets[0].Port)
	require.NoError(t, err)
	localAddr := binding.LocalAddr().(*net.UDPAddr)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		g.Run(ctx)
		close(done)
	}()

	sender, err := net.DialUDP("udp", nil, localAddr)
	require.NoError(t, err)
	defer sender.Close()
	_, err = sender.Write([]byte{1, 2, 3}) // wrong size

	require.Eventually(t, func() bool {
		buf := shm.GetBuffer(0)
		return buf != nil && buf[0] == 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestUplink_SendsToLastLearnedAddress(t *testing.T) {
	v := loadIngestVehicle(t, "")
	shm := openIngestShm(t, v)
	mgr := mqueue.NewManager(v)

	g := New(v, shm, nil)
	binding, err := g.Binding(func() int { p, err := devicePort(v.NetDevices[0]); require.NoError(t, err); return p }())
	require.NoError(t, err)

	receiver, err := net.DialUDP("udp", nil, binding.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	defer receiver.Close()
	_, err = receiver.Write([]byte("ping")) // teaches binding the receiver's address
	buf := make([]byte, 16)
	n, err := binding.RecvFrom(buf)
	require.NoError(t, err)
	require.Equal(t, "ping", string(buf[:n]))

	up := NewUplink(v, mgr, g)
	done := make(chan struct{})
	go func() {
		up.Run()
		close(done)
	}()

	q := mgr.UplinkQueue("WIRELESS")
	require.NotNil(t, q)
	require.Equal(t, gswerr.Success, q.Send([]byte("command")))

	require.NoError(t, receiver.SetReadDeadline(time.Now().Add(2*time.Second)))
	reply := make([]byte, 16)
	n, err = receiver.Read(reply)
	require.NoError(t, err)
	assert.Equal(t, "command", string(reply[:n]))

	mgr.Close()
	<-done
}
