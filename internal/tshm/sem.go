// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tshm

import (
	"sync/atomic"
	"unsafe"
)

// sem is a counting semaphore implemented directly over a shared-memory
// int32 word with futex-based blocking — the Go equivalent of the
// original's process-shared POSIX sem_t (sem_init(&s, 1, n)). Standard
// library primitives (sync.Mutex, x/sync/semaphore) are process-local; none
// of them can coordinate processes that only share an mmap'd region, which
// is why this is hand-rolled directly on the futex syscall rather than
// reached for a library (see DESIGN.md).
type sem struct {
	word *int32
}

func newSem(b []byte, offset int) sem {
	return sem{word: (*int32)(unsafe.Pointer(&b[offset]))}
}

// init sets the semaphore's initial count. Must only be called by the
// process that creates the segment, before any other process attaches.
func (s sem) init(v int32) {
	atomic.StoreInt32(s.word, v)
}

// wait is the P() operation: decrement, blocking while the count is <= 0.
func (s sem) wait() error {
	for {
		v := atomic.LoadInt32(s.word)
		if v > 0 {
			if atomic.CompareAndSwapInt32(s.word, v, v-1) {
				return nil
			}
			continue
		}

		// FUTEX_WAIT atomically checks *word == v before sleeping, so a
		// post() racing with this load cannot be missed: if the value
		// already changed, the syscall returns EAGAIN immediately and the
		// loop retries instead of sleeping on a stale expectation.
		if err := futexWait(s.word, v, nil); err != nil && err != eagain && err != eintr {
			return err
		}
	}
}

// post is the V() operation: increment and wake one waiter.
func (s sem) post() error {
	atomic.AddInt32(s.word, 1)
	return futexWake(s.word, 1)
}
