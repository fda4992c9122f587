// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package writer is top-level write access to telemetry measurements:
// writes to virtual (derived) measurements are cached locally and only
// committed to shared memory on Flush, so a trigger that updates several
// measurements in one cycle produces one shared-memory write per packet
// instead of one per measurement.
package writer

import (
	"fmt"

	"github.com/WillMerges/GSW-2021-sub000/internal/convert"
	"github.com/WillMerges/GSW-2021-sub000/internal/gswerr"
	"github.com/WillMerges/GSW-2021-sub000/internal/tshm"
	"github.com/WillMerges/GSW-2021-sub000/internal/vcm"
)

// Writer caches writes to virtual packets locally and commits them to
// shared memory in a batch via Flush.
type Writer struct {
	shm     *tshm.TShm
	vehicle *vcm.Vehicle

	buffers map[int][]byte // virtual packet id -> local cache
	updated map[int]bool
}

// New returns a Writer over an already-Open'd TShm handle, with one
// zero-filled local buffer per virtual packet.
func New(vehicle *vcm.Vehicle, shm *tshm.TShm) *Writer {
	w := &Writer{
		shm:     shm,
		vehicle: vehicle,
		buffers: map[int][]byte{},
		updated: map[int]bool{},
	}
	for i, p := range vehicle.Packets {
		if p.IsVirtual {
			w.buffers[i] = make([]byte, p.Size)
		}
	}
	return w
}

// telemetryCopy is the writer-side counterpart of tshm's byte layout
// handling: it copies len(src) host-order bytes into dst, flipping byte
// order first if the measurement's declared endianness differs from the
// host's (mirrors TelemetryWriter::telemetry_copy).
func telemetryCopy(hostEnd, measEnd vcm.Endianness, dst, src []byte) {
	if hostEnd == measEnd {
		copy(dst, src)
		return
	}
	for i, b := range src {
		dst[len(src)-i-1] = b
	}
}

// Write copies data (host-order, len(data) == meas.Size) into every virtual
// packet location of the named measurement, flipping byte order to the
// measurement's declared endianness. Non-virtual locations are silently
// skipped — writing is only ever allowed into derived telemetry.
func (w *Writer) Write(name string, data []byte) gswerr.Result {
	m := w.vehicle.GetInfo(name)
	if m == nil {
		return gswerr.Failure
	}
	if len(data) != m.Size {
		return gswerr.Failure
	}

	wrote := false
	for _, loc := range m.Locations {
		if !w.vehicle.Packets[loc.PacketIndex].IsVirtual {
			continue
		}
		buf := w.buffers[loc.PacketIndex]
		telemetryCopy(w.vehicle.SysEndianness, m.Endianness, buf[loc.Offset:loc.Offset+m.Size], data)
		w.updated[loc.PacketIndex] = true
		wrote = true
	}
	if !wrote {
		return gswerr.Failure
	}
	return gswerr.Success
}

// WriteValue is a convenience wrapper that encodes a typed Go value via
// internal/convert before calling Write; it dispatches on the measurement's
// declared Type.
func (w *Writer) WriteValue(name string, value any) gswerr.Result {
	m := w.vehicle.GetInfo(name)
	if m == nil {
		return gswerr.Failure
	}

	var raw []byte
	var err error
	switch m.Type {
	case vcm.Int:
		iv, ok := toInt64(value)
		if !ok {
			return gswerr.Failure
		}
		raw, err = convert.EncodeInt(w.vehicle.SysEndianness, w.vehicle.SysEndianness, m.Size, iv)
	case vcm.Float:
		fv, ok := toFloat64(value)
		if !ok {
			return gswerr.Failure
		}
		raw, err = convert.EncodeFloat(w.vehicle.SysEndianness, w.vehicle.SysEndianness, m.Size, fv)
	case vcm.String:
		sv, ok := value.(string)
		if !ok {
			return gswerr.Failure
		}
		raw = convert.EncodeString(m.Size, sv)
	default:
		return gswerr.Failure
	}
	if err != nil {
		return gswerr.Failure
	}

	return w.Write(name, raw)
}

func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		return int64(x), true
	default:
		return 0, false
	}
}

func toFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float32:
		return float64(x), true
	case float64:
		return x, true
	default:
		return 0, false
	}
}

// WriteRaw copies data directly into every virtual location of the named
// measurement with no endianness conversion, for callers that already hold
// bytes in the measurement's declared layout.
func (w *Writer) WriteRaw(name string, data []byte) gswerr.Result {
	m := w.vehicle.GetInfo(name)
	if m == nil {
		return gswerr.Failure
	}
	if len(data) > m.Size {
		return gswerr.Failure
	}

	wrote := false
	for _, loc := range m.Locations {
		if !w.vehicle.Packets[loc.PacketIndex].IsVirtual {
			continue
		}
		copy(w.buffers[loc.PacketIndex][loc.Offset:], data)
		w.updated[loc.PacketIndex] = true
		wrote = true
	}
	if !wrote {
		return gswerr.Failure
	}
	return gswerr.Success
}

// Flush commits every virtual packet touched by Write/WriteRaw since the
// last Flush to shared memory.
func (w *Writer) Flush() gswerr.Result {
	res, _ := w.FlushTouched()
	return res
}

// FlushTouched is Flush, additionally returning the indices of the packets
// it actually wrote — for callers (the trigger engine) that need to know
// exactly which virtual packets changed this cycle, e.g. to emit a log
// record per flushed packet rather than per trigger.
func (w *Writer) FlushTouched() (gswerr.Result, []int) {
	overall := gswerr.Success
	var touched []int
	for i, buf := range w.buffers {
		if !w.updated[i] {
			continue
		}
		if res := w.shm.Write(i, buf); res != gswerr.Success {
			overall = res
		}
		touched = append(touched, i)
		w.updated[i] = false
	}
	return overall, touched
}

// Lock acquires the write lock on every virtual packet. If checkForUpdates
// is true, or the packet was updated by the last ReadLock on the shared
// handle, the local cache is refreshed from shared memory first so this
// writer doesn't clobber another writer's concurrent update.
func (w *Writer) Lock(checkForUpdates bool) gswerr.Result {
	for i, buf := range w.buffers {
		if res := w.shm.WriteLock(i); res != gswerr.Success {
			return res
		}
		updated, _ := w.shm.Updated(i)
		if checkForUpdates || updated {
			copy(buf, w.shm.GetBuffer(i))
		}
	}
	return gswerr.Success
}

// Unlock releases the write lock on every virtual packet.
func (w *Writer) Unlock() gswerr.Result {
	overall := gswerr.Success
	for i := range w.buffers {
		if res := w.shm.WriteUnlock(i); res != gswerr.Success {
			overall = res
		}
	}
	return overall
}

func (w *Writer) String() string {
	return fmt.Sprintf("writer(%s, %d virtual packets)", w.vehicle.Device, len(w.buffers))
}
