// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tshm

import (
	"sync/atomic"
	"unsafe"

	"github.com/WillMerges/GSW-2021-sub000/internal/shmseg"
)

// masterBlockSize is the fixed layout size: master_nonce, readers, writers
// (uint32 each) followed by the four writer-preference semaphores (int32
// each, one cache line's worth of padding not bothered with since this
// block is touched behind locks, not on a hot path of its own).
const masterBlockSize = 7 * 4

// masterBlock overlays the {master_nonce, readers, writers, rmutex, wmutex,
// readTry, resource} layout of spec.md §3/§4.3 onto a mmap'd shared segment.
type masterBlock struct {
	seg *shmseg.Segment

	nonce   *uint32
	readers *uint32
	writers *uint32

	rmutex   sem
	wmutex   sem
	readTry  sem
	resource sem
}

func newMasterBlock(seg *shmseg.Segment) *masterBlock {
	b := seg.Data()
	return &masterBlock{
		seg:      seg,
		nonce:    (*uint32)(unsafe.Pointer(&b[0])),
		readers:  (*uint32)(unsafe.Pointer(&b[4])),
		writers:  (*uint32)(unsafe.Pointer(&b[8])),
		rmutex:   newSem(b, 12),
		wmutex:   newSem(b, 16),
		readTry:  newSem(b, 20),
		resource: newSem(b, 24),
	}
}

// initialize sets up a freshly-created master block: all four semaphores
// to 1, reader/writer counts to 0, and the master nonce to 1 — never 0,
// which is reserved for the signal escape hatch (§3 invariant 4).
func (m *masterBlock) initialize() {
	m.rmutex.init(1)
	m.wmutex.init(1)
	m.readTry.init(1)
	m.resource.init(1)
	atomic.StoreUint32(m.readers, 0)
	atomic.StoreUint32(m.writers, 0)
	atomic.StoreUint32(m.nonce, 1)
}

func (m *masterBlock) loadNonce() uint32 {
	return atomic.LoadUint32(m.nonce)
}

// bump atomically increments the master nonce (wrapping at u32, which a
// plain Go uint32 overflow already does) and returns the new value.
func (m *masterBlock) bump() uint32 {
	return atomic.AddUint32(m.nonce, 1)
}

// packetSlot is one packet's data buffer plus its 4-byte nonce slot.
type packetSlot struct {
	data  *shmseg.Segment
	info  *shmseg.Segment
	nonce *uint32
}

func newPacketSlot(data, info *shmseg.Segment) *packetSlot {
	return &packetSlot{
		data:  data,
		info:  info,
		nonce: (*uint32)(unsafe.Pointer(&info.Data()[0])),
	}
}

func (p *packetSlot) loadNonce() uint32 {
	return atomic.LoadUint32(p.nonce)
}

func (p *packetSlot) storeNonce(v uint32) {
	atomic.StoreUint32(p.nonce, v)
}
