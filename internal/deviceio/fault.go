package deviceio

import "errors"

// ErrSimulatedReadFailure is returned by FaultInjectingSource for any read
// overlapping a configured fault range.
var ErrSimulatedReadFailure = errors.New("deviceio: simulated read failure")

// FaultInjectingSource wraps a blockSource and deterministically fails
// reads overlapping configured byte ranges, driving FileDeviceReader's
// retry/wipe recovery algorithm in tests without real faulty hardware.
// Test-only: production callers never construct one.
type FaultInjectingSource struct {
	inner  blockSource
	faults []fault
}

type fault struct {
	start, end int64 // half-open byte range, absolute device offset
	remaining  int   // attempts left to fail; ignored when permanent
	permanent  bool
	err        error // nil means ErrSimulatedReadFailure
}

func NewFaultInjectingSource(inner blockSource) *FaultInjectingSource {
	return &FaultInjectingSource{inner: inner}
}

// FailRange registers a fault: the next `times` reads overlapping
// [start, end) fail with ErrSimulatedReadFailure. times == 0 means every
// read overlapping the range fails, for permanent-failure scenarios (the
// "device vanished" or exhausted-retries case).
func (s *FaultInjectingSource) FailRange(start, end int64, times int) {
	s.faults = append(s.faults, fault{start: start, end: end, remaining: times, permanent: times == 0})
}

// FailRangeWith is FailRange but the fault returns err instead of
// ErrSimulatedReadFailure, used to simulate a vanished device.
func (s *FaultInjectingSource) FailRangeWith(start, end int64, times int, err error) {
	s.faults = append(s.faults, fault{start: start, end: end, remaining: times, permanent: times == 0})
	s.faults[len(s.faults)-1].err = err
}

func (s *FaultInjectingSource) ReadAt(p []byte, off int64) (int, error) {
	reqEnd := off + int64(len(p))
	for i := range s.faults {
		f := &s.faults[i]
		if !f.permanent && f.remaining <= 0 {
			continue
		}
		if off >= f.end || reqEnd <= f.start {
			continue
		}

		if !f.permanent {
			f.remaining--
		}

		failAt := f.start
		if failAt < off {
			failAt = off
		}
		n := int(failAt - off)
		if n < 0 {
			n = 0
		}
		err := f.err
		if err == nil {
			err = ErrSimulatedReadFailure
		}
		if n > 0 {
			// The bytes before the fault are readable: deliver them.
			if m, innerErr := s.inner.ReadAt(p[:n], off); innerErr != nil {
				return m, innerErr
			}
		}
		return n, err
	}
	return s.inner.ReadAt(p, off)
}

func (s *FaultInjectingSource) Size() int64 { return s.inner.Size() }
