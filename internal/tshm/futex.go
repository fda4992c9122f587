// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tshm

import (
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// nanosecPerMillisecond resolves the spec's open question: the original
// computed this constant with the XOR operator instead of exponentiation
// and got a wrong value. This implementation uses the corrected constant
// everywhere a millisecond deadline is converted to a timespec.
const nanosecPerMillisecond = 1_000_000

const (
	eagain    = unix.EAGAIN
	eintr     = unix.EINTR
	eTimedout = unix.ETIMEDOUT
)

// unixTimespec is an alias so callers elsewhere in this package don't need
// their own import of golang.org/x/sys/unix just to name the deadline type.
type unixTimespec = unix.Timespec

// futexWait blocks while *addr == expected, the ordinary (non-bitset) futex
// op used by the semaphore implementation in sem.go. timeout is relative,
// nil meaning wait forever.
func futexWait(addr *int32, expected int32, timeout *unix.Timespec) error {
	op := unix.FUTEX_WAIT // FUTEX_PRIVATE_FLAG intentionally not set: the
	// futex word lives in a MAP_SHARED mapping visible to other processes,
	// so the private-futex fast path (which assumes a single address space)
	// cannot be used.
	_, _, errno := unix.Syscall6(unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)), uintptr(op), uintptr(uint32(expected)),
		uintptr(unsafe.Pointer(timeout)), 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

// futexWake wakes up to n waiters blocked on addr via futexWait.
func futexWake(addr *int32, n int32) error {
	_, _, errno := unix.Syscall6(unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)), uintptr(unix.FUTEX_WAKE), uintptr(n), 0, 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

// futexWaitBitset blocks while *addr == expected and (wakeMask & mask) == 0
// for every wake, with an absolute wall-clock deadline. deadline == nil
// means wait forever. FUTEX_CLOCK_REALTIME is set so the absolute timespec
// is interpreted against the wall clock, matching the millisecond deadlines
// callers compute from time.Now().
func futexWaitBitset(addr *uint32, expected uint32, mask uint32, deadline *unix.Timespec) error {
	op := unix.FUTEX_WAIT_BITSET | unix.FUTEX_CLOCK_REALTIME
	_, _, errno := unix.Syscall6(unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)), uintptr(op), uintptr(expected),
		uintptr(unsafe.Pointer(deadline)), 0, uintptr(mask))
	if errno != 0 {
		return errno
	}
	return nil
}

// futexWakeBitset wakes up to n waiters blocked on addr whose mask
// intersects bitset.
func futexWakeBitset(addr *uint32, n int32, bitset uint32) error {
	_, _, errno := unix.Syscall6(unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)), uintptr(unix.FUTEX_WAKE_BITSET), uintptr(n), 0, 0, uintptr(bitset))
	if errno != 0 {
		return errno
	}
	return nil
}

// absDeadline converts a millisecond duration into an absolute CLOCK_REALTIME
// timespec suitable for futexWaitBitset. timeoutMs == 0 is handled by the
// caller (wait forever, deadline == nil); this is only called for
// timeoutMs > 0.
func absDeadline(timeoutMs uint32) unix.Timespec {
	deadline := time.Now().Add(time.Duration(timeoutMs) * nanosecPerMillisecond)
	return unix.Timespec{
		Sec:  deadline.Unix(),
		Nsec: int64(deadline.Nanosecond()),
	}
}
