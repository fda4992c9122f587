// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mqueue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WillMerges/GSW-2021-sub000/internal/gswerr"
)

func TestQueue_SendReceive_PreservesOrder(t *testing.T) {
	q := New("test")

	for i := byte(0); i < 3; i++ {
		require.Equal(t, gswerr.Success, q.Send([]byte{i}))
	}

	for i := byte(0); i < 3; i++ {
		msg, ok := q.Receive()
		require.True(t, ok)
		assert.Equal(t, []byte{i}, msg)
	}
}

func TestQueue_SendDropsWhenFull(t *testing.T) {
	q := New("test")

	for i := 0; i < Depth; i++ {
		require.Equal(t, gswerr.Success, q.Send([]byte{byte(i)}))
	}

	// queue is now at capacity: the next send must be dropped, not block
	assert.Equal(t, gswerr.Blocked, q.Send([]byte{0xFF}))

	// draining one slot makes room again
	_, ok := q.Receive()
	require.True(t, ok)
	assert.Equal(t, gswerr.Success, q.Send([]byte{0xFF}))
}

func TestQueue_SendRejectsOversizedMessage(t *testing.T) {
	q := New("test")
	big := make([]byte, MaxMessageSize+1)
	assert.Equal(t, gswerr.Failure, q.Send(big))
}

func TestQueue_ReceiveAfterCloseReturnsNotOk(t *testing.T) {
	q := New("test")
	require.Equal(t, gswerr.Success, q.Send([]byte("last")))
	q.Close()

	msg, ok := q.Receive()
	require.True(t, ok)
	assert.Equal(t, []byte("last"), msg)

	_, ok = q.Receive()
	assert.False(t, ok)
}

func TestRegistry_GetOrCreateIsStableByName(t *testing.T) {
	r := NewRegistry()
	a := r.GetOrCreate("uplink.WIRELESS")
	b := r.GetOrCreate("uplink.WIRELESS")
	assert.Same(t, a, b)
	assert.Nil(t, r.Get("never-created"))
}

func TestRegistry_SendNamedDropsAndReportsBlockedWhenFull(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < Depth; i++ {
		require.Equal(t, gswerr.Success, r.SendNamed("log", []byte{byte(i)}))
	}
	assert.Equal(t, gswerr.Blocked, r.SendNamed("log", []byte{0xFF}))
}
