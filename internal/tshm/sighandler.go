// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tshm

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/WillMerges/GSW-2021-sub000/internal/shmseg"
)

// remapToAnonymousZero overlays seg's mapped address with a fresh
// MAP_ANONYMOUS|MAP_PRIVATE page, same size, same address, zero-filled.
// Any futex_wait_bitset already asleep on the old address that gets
// retried after this call (EINTR from the signal delivery itself, or a
// spurious wake) will observe the expected nonce no longer matches
// (it's now 0) and return immediately rather than sleeping again — the
// kernel does not require the faulted-in replacement page to be the
// original mapping, only that the address is valid.
//
// The master block (nonce plus all four writer-preference semaphores) is
// smaller than a page, so this zeroes the semaphores along with the nonce.
// That's acceptable only because this is a terminal operation: it exists
// to unblock an in-flight wait during shutdown, not to leave the segment
// usable afterward.
//
// This must run on the thread that took the signal, between the signal
// being delivered and the interrupted syscall retrying, exactly as the
// original's sighandler() does it with mmap(..., MAP_FIXED, ...).
func remapToAnonymousZero(seg *shmseg.Segment) {
	data := seg.Data()
	if len(data) == 0 {
		return
	}
	addr := uintptr(unsafe.Pointer(&data[0]))
	size := uintptr(len(data))

	unix.Syscall6(unix.SYS_MMAP, addr, size,
		uintptr(unix.PROT_READ|unix.PROT_WRITE),
		uintptr(unix.MAP_FIXED|unix.MAP_ANONYMOUS|unix.MAP_PRIVATE),
		^uintptr(0), 0)
}
