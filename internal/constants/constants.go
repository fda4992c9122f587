// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package constants provides lazy, cached access to a vehicle's constants
// file: a flat name->string map consumed by end-user tools. The file is
// not read until the first lookup; it is then parsed in full and the
// parsed map is kept in memory for the File's lifetime.
package constants

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/WillMerges/GSW-2021-sub000/pkg/lrucache"
)

// File is a lazily-parsed constants file. The whole file is parsed once on
// first access into a resident map, and lookups are memoized in an LRU
// cache in front of that map.
type File struct {
	path string

	mu     sync.Mutex
	loaded bool
	values map[string]string

	cache *lrucache.Cache
}

// noExpiry is the largest ttl; the cache treats a ttl of 0 as already
// expired.
const noExpiry = time.Duration(1<<63 - 1)

// New returns a File bound to path. Nothing is read until the first Get.
func New(path string) *File {
	return &File{
		path:  path,
		cache: lrucache.New(1 << 20), // each entry counts as size 1: room for 1<<20 entries
	}
}

// Get returns the value for name and true, or ("", false) if name is not
// present in the constants file (or the file could not be parsed).
func (f *File) Get(name string) (string, bool) {
	v := f.cache.Get(name, func() (interface{}, time.Duration, int) {
		f.ensureLoaded()
		val, ok := f.values[name]
		if !ok {
			return nil, 0, 1
		}
		return val, noExpiry, 1 // constants never expire
	})

	if v == nil {
		return "", false
	}
	return v.(string), true
}

func (f *File) ensureLoaded() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loaded {
		return
	}
	f.loaded = true
	f.values = map[string]string{}

	fh, err := os.Open(f.path)
	if err != nil {
		return
	}
	defer fh.Close()

	s := bufio.NewScanner(fh)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		f.values[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
}

// MustGet returns the value for name, or an error if it is absent. Intended
// for tools that treat a missing constant as fatal.
func (f *File) MustGet(name string) (string, error) {
	v, ok := f.Get(name)
	if !ok {
		return "", fmt.Errorf("constants: no such constant %q in %s", name, f.path)
	}
	return v, nil
}
