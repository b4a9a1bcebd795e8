// Package deviceio implements the source-device abstraction the
// acquisition pipeline reads through: open a device or contiguous file set,
// read sector-aligned chunks, and recover from read errors by retrying and
// then wiping according to policy.
package deviceio

import (
	"io"
	"sort"
	"sync"
)

// Seek whence values, aliased from io so callers of this package don't need
// a second import for them.
const (
	SeekStart   = io.SeekStart
	SeekCurrent = io.SeekCurrent
	SeekEnd     = io.SeekEnd
)

// Reader is the contract every component downstream of the source device
// uses; FileDeviceReader is the only production implementation.
type Reader interface {
	Open(paths []string) error
	MediaSize() uint64
	BytesPerSector() uint32
	MediaType() string
	Seek(offset uint64, whence int) (uint64, error)
	Read(buf []byte) (int, error)
	ReadErrors() []ReadError
	SignalAbort()
	Close() error
}

// ReadError records one span of sectors that could not be read and was
// wiped to zeros. Kept sorted and non-overlapping by errorList.
type ReadError struct {
	StartSector uint64
	SectorCount uint32
}

// errorList keeps ReadError records sorted and fuses adjacent or
// overlapping spans on insert, so repeated failures within the same
// granularity window collapse into one record.
type errorList struct {
	mu      sync.Mutex
	entries []ReadError
}

func newErrorList() *errorList {
	return &errorList{}
}

func (l *errorList) add(startSector uint64, sectorCount uint32) {
	if sectorCount == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	start := startSector
	end := startSector + uint64(sectorCount)

	merged := make([]ReadError, 0, len(l.entries)+1)
	for _, e := range l.entries {
		eEnd := e.StartSector + uint64(e.SectorCount)
		if e.StartSector > end || eEnd < start {
			merged = append(merged, e)
			continue
		}
		if e.StartSector < start {
			start = e.StartSector
		}
		if eEnd > end {
			end = eEnd
		}
	}
	merged = append(merged, ReadError{StartSector: start, SectorCount: uint32(end - start)})
	sort.Slice(merged, func(i, j int) bool { return merged[i].StartSector < merged[j].StartSector })
	l.entries = merged
}

func (l *errorList) snapshot() []ReadError {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ReadError, len(l.entries))
	copy(out, l.entries)
	return out
}

// blockSource is the low-level byte source FileDeviceReader reads through.
// Splitting it out lets tests drive the retry/wipe algorithm against a
// FaultInjectingSource instead of real device hardware.
type blockSource interface {
	ReadAt(p []byte, off int64) (int, error)
	Size() int64
}
