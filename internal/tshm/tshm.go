// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package tshm is Telemetry Shared Memory — the core of the core. It
// implements the writer-preference readers/writers protocol, the
// futex-bitset blocking read, the overflow-safe recency rule, and the
// signal-safe escape hatch described by spec.md §4.3.
package tshm

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/WillMerges/GSW-2021-sub000/internal/gswerr"
	"github.com/WillMerges/GSW-2021-sub000/internal/metrics"
	"github.com/WillMerges/GSW-2021-sub000/internal/shmseg"
	"github.com/WillMerges/GSW-2021-sub000/internal/vcm"
)

// ReadMode selects the blocking behavior of ReadLock.
type ReadMode int

const (
	Standard ReadMode = iota
	Blocking
	Nonblocking
)

// TShm is a process's handle onto one vehicle's shared-memory telemetry
// fabric. It owns (2*N + 1) shared segments for N packets, plus one
// additional write-lock segment per virtual packet.
type TShm struct {
	root    string
	vehicle *vcm.Vehicle

	master *shmseg.Segment
	mb     *masterBlock

	slots      []*packetSlot
	dataSegs   []*shmseg.Segment
	infoSegs   []*shmseg.Segment
	writeLocks map[int]*shmseg.Segment
	writeSems  map[int]sem

	mu         sync.Mutex
	readMode   ReadMode
	readLocked bool
	lastNonce  uint32
	lastNonces []uint32
	updated    []bool
}

func tags(numPackets int) (master int, data, info func(i int) int, writeLock func(i int) int) {
	master = 0
	data = func(i int) int { return 2 * (i + 1) }
	info = func(i int) int { return 2*i + 1 }
	writeLock = func(i int) int { return 2*numPackets + 2 + i }
	return
}

// New returns an unattached TShm handle for vehicle, rooted at
// $GSW_HOME/shm (root). No shared memory is touched until Create or Open
// is called.
func New(root string, vehicle *vcm.Vehicle) *TShm {
	n := vehicle.NumPackets()
	masterTag, dataTag, infoTag, wlTag := tags(n)

	t := &TShm{
		root:       root,
		vehicle:    vehicle,
		writeLocks: map[int]*shmseg.Segment{},
		writeSems:  map[int]sem{},
		lastNonces: make([]uint32, n),
		updated:    make([]bool, n),
	}

	key := vehicle.ConfigFile
	t.master = shmseg.New(root, key, masterTag, masterBlockSize)
	t.dataSegs = make([]*shmseg.Segment, n)
	t.infoSegs = make([]*shmseg.Segment, n)
	for i, p := range vehicle.Packets {
		t.dataSegs[i] = shmseg.New(root, key, dataTag(i), p.Size)
		t.infoSegs[i] = shmseg.New(root, key, infoTag(i), 4)
		if p.IsVirtual {
			t.writeLocks[i] = shmseg.New(root, key, wlTag(i), 4)
		}
	}

	return t
}

// Create creates every shared segment for the vehicle and initializes the
// master block and write-lock semaphores. It does not attach the calling
// process to them (mirrors the original's "create does not attach").
func (t *TShm) Create() gswerr.Result {
	for i := range t.vehicle.Packets {
		if err := t.dataSegs[i].Create(); err != nil {
			return gswerr.Failure
		}
		if err := t.infoSegs[i].Create(); err != nil {
			return gswerr.Failure
		}
		if wl, ok := t.writeLocks[i]; ok {
			if err := wl.Create(); err != nil {
				return gswerr.Failure
			}
			if err := wl.Attach(); err != nil {
				return gswerr.Failure
			}
			newSem(wl.Data(), 0).init(1)
			wl.Detach()
		}
	}

	if err := t.master.Create(); err != nil {
		return gswerr.Failure
	}
	if err := t.master.Attach(); err != nil {
		return gswerr.Failure
	}
	newMasterBlock(t.master).initialize()
	if err := t.master.Detach(); err != nil {
		return gswerr.Failure
	}

	return gswerr.Success
}

// Destroy removes every shared segment for the vehicle. The handle need not
// be attached (Open) first; any segment this handle has mapped is unmapped
// before it is removed.
func (t *TShm) Destroy() gswerr.Result {
	for i := range t.vehicle.Packets {
		if err := t.dataSegs[i].Destroy(); err != nil {
			return gswerr.Failure
		}
		if err := t.infoSegs[i].Destroy(); err != nil {
			return gswerr.Failure
		}
		if wl, ok := t.writeLocks[i]; ok {
			if err := wl.Destroy(); err != nil {
				return gswerr.Failure
			}
		}
	}
	if err := t.master.Destroy(); err != nil {
		return gswerr.Failure
	}
	return gswerr.Success
}

// Open attaches this process to every shared segment of an already-created
// vehicle.
func (t *TShm) Open() gswerr.Result {
	t.slots = make([]*packetSlot, len(t.vehicle.Packets))
	for i := range t.vehicle.Packets {
		if err := t.dataSegs[i].Attach(); err != nil {
			return gswerr.Failure
		}
		if err := t.infoSegs[i].Attach(); err != nil {
			return gswerr.Failure
		}
		t.slots[i] = newPacketSlot(t.dataSegs[i], t.infoSegs[i])

		if wl, ok := t.writeLocks[i]; ok {
			if err := wl.Attach(); err != nil {
				return gswerr.Failure
			}
			t.writeSems[i] = newSem(wl.Data(), 0)
		}
	}

	if err := t.master.Attach(); err != nil {
		return gswerr.Failure
	}
	t.mb = newMasterBlock(t.master)
	t.lastNonce = 1

	return gswerr.Success
}

// Close detaches this process from every shared segment without destroying
// them.
func (t *TShm) Close() gswerr.Result {
	for i := range t.vehicle.Packets {
		if err := t.dataSegs[i].Detach(); err != nil {
			return gswerr.Failure
		}
		if err := t.infoSegs[i].Detach(); err != nil {
			return gswerr.Failure
		}
		if wl, ok := t.writeLocks[i]; ok {
			if err := wl.Detach(); err != nil {
				return gswerr.Failure
			}
		}
	}
	if err := t.master.Detach(); err != nil {
		return gswerr.Failure
	}
	return gswerr.Success
}

// Write copies packet size bytes of data into packetID's data slot, bumps
// the master and packet nonce, and wakes any blocked reader whose bitset
// intersects this packet's wake slot (§4.3 "Write operation").
func (t *TShm) Write(packetID int, data []byte) gswerr.Result {
	if packetID < 0 || packetID >= len(t.vehicle.Packets) {
		return gswerr.Failure
	}
	pkt := t.vehicle.Packets[packetID]
	if len(data) != pkt.Size {
		return gswerr.Failure
	}
	slot := t.slots[packetID]

	if err := t.mb.wmutex.wait(); err != nil {
		return gswerr.Failure
	}
	if err := t.mb.writersEnter(); err != nil {
		return gswerr.Failure
	}
	if err := t.mb.wmutex.post(); err != nil {
		return gswerr.Failure
	}

	if err := t.mb.resource.wait(); err != nil {
		return gswerr.Failure
	}

	copy(slot.data.Data(), data)
	n := t.mb.bump()
	slot.storeNonce(n)

	mask := uint32(1) << uint(packetID%32)
	_ = futexWakeBitset(t.mb.nonce, 1<<30, mask)
	metrics.FutexWakes.Inc()
	metrics.PacketsWritten.WithLabelValues(strconv.Itoa(packetID)).Inc()

	if err := t.mb.resource.post(); err != nil {
		return gswerr.Failure
	}

	if err := t.mb.wmutex.wait(); err != nil {
		return gswerr.Failure
	}
	if err := t.mb.writersExit(); err != nil {
		return gswerr.Failure
	}
	if err := t.mb.wmutex.post(); err != nil {
		return gswerr.Failure
	}

	return gswerr.Success
}

// writersEnter/writersExit implement the non-semaphore half of the
// writer-preference entry/exit sequence (the writers counter itself, and
// the one-time readTry gate). Must be called with wmutex already held.
func (m *masterBlock) writersEnter() error {
	if atomic.AddUint32(m.writers, 1) == 1 {
		return m.readTry.wait()
	}
	return nil
}

func (m *masterBlock) writersExit() error {
	if atomic.AddUint32(m.writers, ^uint32(0)) == 0 {
		return m.readTry.post()
	}
	return nil
}

// enterReader / exitReader implement the reader half of writer-preference
// (§4.3 "Reader entry"/"Reader exit").
func (t *TShm) enterReader() error {
	if err := t.mb.readTry.wait(); err != nil {
		return err
	}
	if err := t.mb.rmutex.wait(); err != nil {
		return err
	}
	if atomic.AddUint32(t.mb.readers, 1) == 1 {
		if err := t.mb.resource.wait(); err != nil {
			return err
		}
	}
	if err := t.mb.rmutex.post(); err != nil {
		return err
	}
	return t.mb.readTry.post()
}

func (t *TShm) exitReader() error {
	if err := t.mb.rmutex.wait(); err != nil {
		return err
	}
	if atomic.AddUint32(t.mb.readers, ^uint32(0)) == 0 {
		if err := t.mb.resource.post(); err != nil {
			return err
		}
	}
	return t.mb.rmutex.post()
}

// SetReadMode sets the mode used by subsequent ReadLock calls.
func (t *TShm) SetReadMode(mode ReadMode) {
	t.mu.Lock()
	t.readMode = mode
	t.mu.Unlock()
}

// ReadLock implements §4.3's read-lock algorithm over the given packet IDs.
// timeoutMs == 0 blocks forever in Blocking mode.
func (t *TShm) ReadLock(packetIDs []int, timeoutMs uint32) gswerr.Result {
	if t.readLocked {
		return gswerr.Locked
	}

	var deadline *deadlineHolder
	if timeoutMs > 0 {
		d := absDeadline(timeoutMs)
		deadline = &deadlineHolder{ts: d}
	}

	for {
		if err := t.enterReader(); err != nil {
			return gswerr.Failure
		}

		current := t.mb.loadNonce()
		if current == 0 {
			t.exitReader()
			return gswerr.Interrupted
		}

		var bitset uint32
		changed := false
		for _, id := range packetIDs {
			bitset |= 1 << uint(id%32)
			n := t.slots[id].loadNonce()
			if n != t.lastNonces[id] {
				t.lastNonces[id] = n
				t.updated[id] = true
				changed = true
				metrics.PacketsRead.WithLabelValues(strconv.Itoa(id)).Inc()
			} else {
				t.updated[id] = false
			}
		}

		if changed || t.readMode == Standard {
			t.lastNonce = current
			t.readLocked = true
			return gswerr.Success
		}

		// must not hold the lock while sleeping
		if err := t.exitReader(); err != nil {
			return gswerr.Failure
		}

		switch t.readMode {
		case Nonblocking:
			return gswerr.Blocked
		case Blocking:
			var ts *unixTimespec
			if deadline != nil {
				ts = &deadline.ts
			}
			metrics.FutexWaits.Inc()
			err := futexWaitBitset(t.mb.nonce, current, bitset, ts)
			if err != nil {
				if err == eTimedout {
					return gswerr.Timeout
				}
				if err != eagain && err != eintr {
					return gswerr.Failure
				}
				// EAGAIN/EINTR: nonce may have changed already, retry from top
			}
			if t.mb.loadNonce() == 0 {
				return gswerr.Interrupted
			}
		}
	}
}

// ReadUnlock releases the read lock taken by ReadLock. force releases even
// if not currently locked (used by the signal escape hatch / shutdown
// paths), matching the original's read_unlock(force).
func (t *TShm) ReadUnlock(force bool) gswerr.Result {
	if !t.readLocked && !force {
		return gswerr.Failure
	}
	if err := t.exitReader(); err != nil {
		return gswerr.Failure
	}
	t.readLocked = false
	return gswerr.Success
}

// GetBuffer returns the raw data slot for packetID. Only valid to read
// while read-locked.
func (t *TShm) GetBuffer(packetID int) []byte {
	if packetID < 0 || packetID >= len(t.slots) {
		return nil
	}
	return t.slots[packetID].data.Data()
}

// Updated reports whether packetID changed as of the last ReadLock — this
// reflects the last lock's result regardless of whether a lock is
// currently held, the same as the original's plain array read (a
// TelemetryWriter checks it after the TelemetryViewer sharing the same
// handle has already unlocked).
func (t *TShm) Updated(packetID int) (bool, gswerr.Result) {
	if packetID < 0 || packetID >= len(t.updated) {
		return false, gswerr.Failure
	}
	return t.updated[packetID], gswerr.Success
}

// UpdateValue returns how many master-nonce increments ago packetID was
// last written (0 == most recent). Must be called after ReadLock.
func (t *TShm) UpdateValue(packetID int) (uint32, gswerr.Result) {
	if packetID < 0 || packetID >= len(t.lastNonces) {
		return 0, gswerr.Failure
	}
	return t.lastNonce - t.lastNonces[packetID], gswerr.Success
}

// MoreRecentPacket returns, among packetIDs, the index (into packetIDs) of
// the most recently written packet (§4.3 "Recency comparison").
func (t *TShm) MoreRecentPacket(packetIDs []int) (int, gswerr.Result) {
	if len(packetIDs) == 0 {
		return -1, gswerr.Failure
	}
	best := -1
	var bestDiff uint32
	for i, id := range packetIDs {
		if id < 0 || id >= len(t.lastNonces) {
			return -1, gswerr.Failure
		}
		diff := t.lastNonce - t.lastNonces[id]
		if best == -1 || diff < bestDiff {
			best = i
			bestDiff = diff
		}
	}
	return best, gswerr.Success
}

// WriteLock acquires the write-lock semaphore for a virtual packet,
// serializing multiple producers writing the same virtual packet (§4.3:
// write-locks do not gate readers).
func (t *TShm) WriteLock(packetID int) gswerr.Result {
	s, ok := t.writeSems[packetID]
	if !ok {
		return gswerr.Failure
	}
	if err := s.wait(); err != nil {
		return gswerr.Failure
	}
	return gswerr.Success
}

// WriteUnlock releases the write-lock semaphore acquired by WriteLock.
func (t *TShm) WriteUnlock(packetID int) gswerr.Result {
	s, ok := t.writeSems[packetID]
	if !ok {
		return gswerr.Failure
	}
	if err := s.post(); err != nil {
		return gswerr.Failure
	}
	return gswerr.Success
}

// SigHandler is the signal-safe escape hatch of §4.3/§5: it detaches the
// master block and remaps the same virtual address to an anonymous
// zero-filled page, so a futex_wait_bitset already in flight (or about to
// be retried after EINTR) observes nonce == 0 and returns Interrupted
// instead of blocking forever. Must only be called from a signal handler
// or equivalent single-threaded shutdown path.
func (t *TShm) SigHandler() {
	if t.mb == nil {
		return
	}
	remapToAnonymousZero(t.master)
}

type deadlineHolder struct{ ts unixTimespec }

func (t *TShm) String() string {
	return fmt.Sprintf("tshm(%s, %d packets)", t.vehicle.Device, len(t.vehicle.Packets))
}
