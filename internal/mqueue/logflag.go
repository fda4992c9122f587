// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mqueue

import (
	"sync/atomic"
	"unsafe"

	"github.com/WillMerges/GSW-2021-sub000/internal/gswerr"
	"github.com/WillMerges/GSW-2021-sub000/internal/shmseg"
)

// word reinterprets the first 4 bytes of a mapped segment as a *uint32, the
// same unsafe-pointer-over-mmap idiom internal/tshm uses for its counters.
func word(b []byte) *uint32 {
	return (*uint32)(unsafe.Pointer(&b[0]))
}

// logFlagTag distinguishes this segment from a vehicle's telemetry
// segments within the same GSW_HOME/shm root.
const logFlagTag = 0x32

// logFlagSize is one uint32, enough for an atomic flag; a bare byte isn't
// guaranteed aligned for atomic ops once mmap'd.
const logFlagSize = 4

// LogFlag is the one-word (uint32) "is telemetry logging enabled" switch kept in its
// own small shared-memory segment, so any process can flip it without
// touching the much larger telemetry segments.
type LogFlag struct {
	seg *shmseg.Segment
}

// NewLogFlag returns a LogFlag handle backed by root/path.
func NewLogFlag(root, path string) *LogFlag {
	return &LogFlag{seg: shmseg.New(root, path, logFlagTag, logFlagSize)}
}

// Create creates the segment and initializes logging to enabled, mirroring
// the original's DlShm::create.
func (f *LogFlag) Create() gswerr.Result {
	if err := f.seg.Create(); err != nil {
		return gswerr.Failure
	}
	atomic.StoreUint32(word(f.seg.Data()), 1)
	return gswerr.Success
}

// Attach opens a segment previously created by another process.
func (f *LogFlag) Attach() gswerr.Result {
	if err := f.seg.Attach(); err != nil {
		return gswerr.Failure
	}
	return gswerr.Success
}

// Detach unmaps the segment.
func (f *LogFlag) Detach() gswerr.Result {
	if err := f.seg.Detach(); err != nil {
		return gswerr.Failure
	}
	return gswerr.Success
}

// Destroy detaches and removes the segment.
func (f *LogFlag) Destroy() gswerr.Result {
	if err := f.seg.Destroy(); err != nil {
		return gswerr.Failure
	}
	return gswerr.Success
}

// Enabled reports whether telemetry logging is currently enabled.
func (f *LogFlag) Enabled() bool {
	return atomic.LoadUint32(word(f.seg.Data())) != 0
}

// SetEnabled flips the flag.
func (f *LogFlag) SetEnabled(enabled bool) {
	var v uint32
	if enabled {
		v = 1
	}
	atomic.StoreUint32(word(f.seg.Data()), v)
}
