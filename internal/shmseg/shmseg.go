// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package shmseg is a thin wrapper around a named, fixed-size shared memory
// region identified by a (path, tag) pair, the Go analogue of POSIX
// shm_open+ftruncate+mmap+shm_unlink. A segment is realized as a file under
// $GSW_HOME/shm/ that every attaching process mmaps MAP_SHARED; varying the
// tag over a single stable filesystem anchor is how a vehicle's master
// block, packet data slots, and packet nonce slots are addressed as
// distinct segments without each needing its own filename.
package shmseg

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Segment is one mmap'd, file-backed shared memory region.
type Segment struct {
	path string
	tag  int
	size int

	file *os.File
	data []byte
}

// segPath returns the backing file path for (root, path, tag).
func segPath(root, path string, tag int) string {
	return filepath.Join(root, fmt.Sprintf("%s.%d", filepath.Base(path), tag))
}

// New returns a Segment handle for (root, path, tag) of the given size. No
// filesystem or mapping operation happens until Create or Attach is called.
func New(root, path string, tag int, size int) *Segment {
	return &Segment{path: segPath(root, path, tag), tag: tag, size: size}
}

// Create creates and maps the segment. It fails if the backing file already
// exists (mirrors shm_open's O_EXCL semantics).
func (s *Segment) Create() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("shmseg: mkdir: %w", err)
	}

	f, err := os.OpenFile(s.path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("shmseg: create %s: %w", s.path, err)
	}

	if err := f.Truncate(int64(s.size)); err != nil {
		f.Close()
		os.Remove(s.path)
		return fmt.Errorf("shmseg: truncate %s: %w", s.path, err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, s.size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		os.Remove(s.path)
		return fmt.Errorf("shmseg: mmap %s: %w", s.path, err)
	}

	s.file = f
	s.data = data
	return nil
}

// Attach opens and maps a segment that was previously created (possibly by
// another process).
func (s *Segment) Attach() error {
	f, err := os.OpenFile(s.path, os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("shmseg: attach %s: %w", s.path, err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, s.size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return fmt.Errorf("shmseg: mmap %s: %w", s.path, err)
	}

	s.file = f
	s.data = data
	return nil
}

// Detach unmaps the segment without removing its backing file.
func (s *Segment) Detach() error {
	if s.data != nil {
		if err := unix.Munmap(s.data); err != nil {
			return fmt.Errorf("shmseg: munmap %s: %w", s.path, err)
		}
		s.data = nil
	}
	if s.file != nil {
		if err := s.file.Close(); err != nil {
			return fmt.Errorf("shmseg: close %s: %w", s.path, err)
		}
		s.file = nil
	}
	return nil
}

// Destroy detaches (if attached) and removes the backing file, the Go
// analogue of shm_unlink.
func (s *Segment) Destroy() error {
	if err := s.Detach(); err != nil {
		return err
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("shmseg: remove %s: %w", s.path, err)
	}
	return nil
}

// Data returns the mapped byte slice. Valid only while attached.
func (s *Segment) Data() []byte {
	return s.data
}

// Size returns the segment's fixed size in bytes.
func (s *Segment) Size() int {
	return s.size
}

// Path returns the backing file path, for diagnostics.
func (s *Segment) Path() string {
	return s.path
}
