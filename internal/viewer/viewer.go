// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package viewer is top-level read access to telemetry measurements: a
// thin, per-process cache over a tshm.TShm handle that tracks a subset of
// packets (or all of them), refreshes on Update, and answers typed
// get-value queries against whichever location of a shared measurement was
// written most recently.
package viewer

import (
	"fmt"

	"github.com/WillMerges/GSW-2021-sub000/internal/convert"
	"github.com/WillMerges/GSW-2021-sub000/internal/gswerr"
	"github.com/WillMerges/GSW-2021-sub000/internal/tshm"
	"github.com/WillMerges/GSW-2021-sub000/internal/vcm"
)

// Mode mirrors tshm.ReadMode, renamed to match this package's vocabulary
// (update, not read-lock).
type Mode int

const (
	Standard Mode = iota
	Blocking
	Nonblocking
)

func (m Mode) toReadMode() tshm.ReadMode {
	switch m {
	case Blocking:
		return tshm.Blocking
	case Nonblocking:
		return tshm.Nonblocking
	default:
		return tshm.Standard
	}
}

// Viewer tracks a set of packets and caches their most recently read
// contents locally, so callers can query measurement values without
// holding the shared memory read lock.
type Viewer struct {
	shm     *tshm.TShm
	vehicle *vcm.Vehicle
	mode    Mode

	checkAll  bool
	packetIDs []int
	buffers   map[int][]byte
	updated   map[int]bool
}

// New returns a Viewer over an already-Open'd TShm handle.
func New(vehicle *vcm.Vehicle, shm *tshm.TShm) *Viewer {
	return &Viewer{
		shm:     shm,
		vehicle: vehicle,
		buffers: map[int][]byte{},
		updated: map[int]bool{},
	}
}

// AddAll tracks every packet in the vehicle.
func (v *Viewer) AddAll() gswerr.Result {
	v.checkAll = true
	for i, p := range v.vehicle.Packets {
		if res := v.Add(i); res != gswerr.Success {
			return res
		}
		_ = p
	}
	return gswerr.Success
}

// RemoveAll stops tracking every packet.
func (v *Viewer) RemoveAll() {
	v.checkAll = false
	v.packetIDs = nil
}

// Add tracks a single packet by ID, allocating its local cache buffer. It's
// a no-op if the packet is already tracked.
func (v *Viewer) Add(packetID int) gswerr.Result {
	if packetID < 0 || packetID >= len(v.vehicle.Packets) {
		return gswerr.Failure
	}
	if _, ok := v.buffers[packetID]; ok {
		return gswerr.Success
	}

	size := v.vehicle.Packets[packetID].Size
	v.buffers[packetID] = make([]byte, size)
	v.packetIDs = append(v.packetIDs, packetID)
	return gswerr.Success
}

// AddMeasurement tracks every packet a named measurement appears in.
func (v *Viewer) AddMeasurement(name string) gswerr.Result {
	m := v.vehicle.GetInfo(name)
	if m == nil {
		return gswerr.Failure
	}
	for _, loc := range m.Locations {
		if res := v.Add(loc.PacketIndex); res != gswerr.Success {
			return res
		}
	}
	return gswerr.Success
}

// SetMode sets which update mode Update uses.
func (v *Viewer) SetMode(mode Mode) {
	v.mode = mode
	v.shm.SetReadMode(mode.toReadMode())
}

// Update refreshes the local cache with the latest telemetry, per the
// current mode: Standard always refreshes, Blocking sleeps (up to
// timeoutMs, 0 meaning forever) until something new arrives, Nonblocking
// returns gswerr.Blocked immediately if nothing is new.
func (v *Viewer) Update(timeoutMs uint32) gswerr.Result {
	var ids []int
	if v.checkAll {
		ids = make([]int, len(v.vehicle.Packets))
		for i := range ids {
			ids[i] = i
		}
	} else {
		ids = v.packetIDs
	}

	// the read mode lives on the TShm handle, which other viewers may share
	v.shm.SetReadMode(v.mode.toReadMode())
	res := v.shm.ReadLock(ids, timeoutMs)
	if res != gswerr.Success {
		return res
	}

	for _, id := range ids {
		updated, _ := v.shm.Updated(id)
		v.updated[id] = updated
		if updated {
			copy(v.buffers[id], v.shm.GetBuffer(id))
		}
	}

	return v.shm.ReadUnlock(false)
}

// SigHandler releases a blocking Update call from a signal handler, the way
// the underlying tshm.TShm's SigHandler does for ReadLock.
func (v *Viewer) SigHandler() {
	v.shm.SigHandler()
}

// Updated reports whether any packet containing the named measurement
// changed during the last Update.
func (v *Viewer) Updated(name string) bool {
	m := v.vehicle.GetInfo(name)
	if m == nil {
		return false
	}
	for _, loc := range m.Locations {
		if v.updated[loc.PacketIndex] {
			return true
		}
	}
	return false
}

// PacketUpdated reports whether packetID changed during the last Update,
// for callers (the trigger engine) that dispatch per packet rather than
// per measurement.
func (v *Viewer) PacketUpdated(packetID int) bool {
	return v.updated[packetID]
}

// latestData returns the cached bytes for whichever of meas's locations was
// most recently written, per shm.MoreRecentPacket.
func (v *Viewer) latestData(m *vcm.Measurement) ([]byte, gswerr.Result) {
	if len(m.Locations) == 0 {
		return nil, gswerr.Failure
	}

	ids := make([]int, len(m.Locations))
	for i, loc := range m.Locations {
		ids[i] = loc.PacketIndex
	}

	best, res := v.shm.MoreRecentPacket(ids)
	if res != gswerr.Success {
		return nil, res
	}

	loc := m.Locations[best]
	buf, ok := v.buffers[loc.PacketIndex]
	if !ok {
		return nil, gswerr.Failure
	}
	return buf[loc.Offset : loc.Offset+m.Size], gswerr.Success
}

func (v *Viewer) lookup(name string) (*vcm.Measurement, gswerr.Result) {
	m := v.vehicle.GetInfo(name)
	if m == nil {
		return nil, gswerr.Failure
	}
	return m, gswerr.Success
}

// GetString returns a measurement's value formatted as text, per
// convert.ToString.
func (v *Viewer) GetString(name string) (string, gswerr.Result) {
	m, res := v.lookup(name)
	if res != gswerr.Success {
		return "", res
	}
	data, res := v.latestData(m)
	if res != gswerr.Success {
		return "", res
	}
	s, err := convert.ToString(v.vehicle.SysEndianness, v.vehicle.RecvEndianness, m, data)
	if err != nil {
		return "", gswerr.Failure
	}
	return s, gswerr.Success
}

// GetInt returns an Int-typed measurement's value as a signed int64.
func (v *Viewer) GetInt(name string) (int64, gswerr.Result) {
	m, res := v.lookup(name)
	if res != gswerr.Success {
		return 0, res
	}
	data, res := v.latestData(m)
	if res != gswerr.Success {
		return 0, res
	}
	val, err := convert.DecodeInt(v.vehicle.SysEndianness, v.vehicle.RecvEndianness, m.Sign, m.Size, data)
	if err != nil {
		return 0, gswerr.Failure
	}
	return val, gswerr.Success
}

// GetUint returns an Int-typed, Unsigned measurement's value as a uint64.
func (v *Viewer) GetUint(name string) (uint64, gswerr.Result) {
	val, res := v.GetInt(name)
	return uint64(val), res
}

// GetFloat returns a Float-typed measurement's value as a float64.
func (v *Viewer) GetFloat(name string) (float64, gswerr.Result) {
	m, res := v.lookup(name)
	if res != gswerr.Success {
		return 0, res
	}
	data, res := v.latestData(m)
	if res != gswerr.Success {
		return 0, res
	}
	val, err := convert.DecodeFloat(v.vehicle.SysEndianness, v.vehicle.RecvEndianness, m.Size, data)
	if err != nil {
		return 0, gswerr.Failure
	}
	return val, gswerr.Success
}

// GetRaw returns a copy of a measurement's raw, unconverted bytes.
func (v *Viewer) GetRaw(name string) ([]byte, gswerr.Result) {
	m, res := v.lookup(name)
	if res != gswerr.Success {
		return nil, res
	}
	data, res := v.latestData(m)
	if res != gswerr.Success {
		return nil, res
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, gswerr.Success
}

func (v *Viewer) String() string {
	return fmt.Sprintf("viewer(%s, %d packets tracked)", v.vehicle.Device, len(v.packetIDs))
}
