// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

import (
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// Extension of every recording file.
const Extension = ".mp4"

// PathAllocator hands out time-based output paths that never repeat within
// the process, even when two are requested in the same millisecond.
type PathAllocator struct {
	dir string

	mu   sync.Mutex
	last int64
}

func NewPathAllocator(dir string) *PathAllocator {
	return &PathAllocator{dir: dir}
}

// Next returns <dir>/<unix millis>.mp4 for now, bumped past the last issued stamp.
func (a *PathAllocator) Next(now time.Time) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	stamp := now.UnixMilli()
	if stamp <= a.last {
		stamp = a.last + 1
	}
	a.last = stamp
	return filepath.Join(a.dir, strconv.FormatInt(stamp, 10)+Extension)
}

func (a *PathAllocator) Dir() string { return a.dir }
