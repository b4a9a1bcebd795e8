// Package acquire implements the chunked producer loop that streams a
// source device into an archive.
package acquire

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/libyal/ewfkit/internal/archive"
	"github.com/libyal/ewfkit/internal/deviceio"
	"github.com/libyal/ewfkit/internal/digest"
	"github.com/libyal/ewfkit/internal/ewferrors"
	"github.com/libyal/ewfkit/internal/mediabuffer"
	"github.com/libyal/ewfkit/internal/metrics"
	"github.com/libyal/ewfkit/internal/progress"
)

// Result is returned by Run on every path, success or failure, so callers
// always know how much was written even on an aborted or failed run.
type Result struct {
	BytesWritten  uint64
	ChunksWritten uint64
	Finalized     bool
	Hashes        map[string]string
}

// Pipeline wires one DeviceReader, one (already opened-for-write)
// ArchiveBackend and a digest.Stream together for a single acquisition run.
type Pipeline struct {
	Device       deviceio.Reader
	Backend      archive.Backend
	Mirror       archive.Backend // optional secondary target; nil if unset
	Digests      *digest.Stream
	ChunkSize    uint32
	AcquirySize  uint64
	ResumeOffset uint64
	SwapBytePairs bool
	Reporter     *progress.Reporter
	Logger       *zap.Logger
	Metrics      *metrics.Collector // optional; nil disables per-chunk recording

	aborted atomic.Bool
}

// SignalAbort requests cooperative cancellation; the pipeline unwinds at the
// next chunk boundary.
func (p *Pipeline) SignalAbort() {
	p.aborted.Store(true)
}

// Run drives the acquisition loop to completion, abort, or failure. It never
// calls Backend.Finalize itself on anything but the success path.
func (p *Pipeline) Run(now func() time.Time) (Result, error) {
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}

	buf := mediabuffer.New(int(p.ChunkSize))
	var acquiryCount uint64

	for acquiryCount < p.AcquirySize {
		if p.aborted.Load() {
			return p.abortResult(acquiryCount), ewferrors.New(ewferrors.KindAborted, "acquire.Run", "acquisition aborted")
		}

		n := p.ChunkSize
		if remaining := p.AcquirySize - acquiryCount; uint64(n) > remaining {
			n = uint32(remaining)
		}

		chunkStart := now()

		if acquiryCount < p.ResumeOffset {
			if err := p.replayFromBackend(buf, acquiryCount, n); err != nil {
				return p.failureResult(acquiryCount), err
			}
			acquiryCount += uint64(n)
			p.tick(now(), acquiryCount)
			p.recordChunk("ok", int(n), now().Sub(chunkStart))
			continue
		}

		if err := p.readChunk(buf, n); err != nil {
			return p.failureResult(acquiryCount), err
		}

		if p.SwapBytePairs {
			if err := buf.SwapBytePairs(); err != nil {
				return p.failureResult(acquiryCount), ewferrors.Wrap(ewferrors.KindInvalidArgument, "acquire.Run", err)
			}
		}

		if p.Digests != nil {
			p.Digests.Write(buf.AsLive()) //nolint:errcheck // Stream.Write never fails
		}

		if err := p.writeChunk(buf); err != nil {
			return p.failureResult(acquiryCount), err
		}

		acquiryCount += uint64(n)
		p.tick(now(), acquiryCount)
		p.recordChunk("ok", int(n), now().Sub(chunkStart))
	}

	return p.finalize(now, acquiryCount)
}

func (p *Pipeline) readChunk(buf *mediabuffer.Buffer, n uint32) error {
	view := buf.RawSlice()[:n]
	read, err := p.Device.Read(view)
	if err != nil {
		return err
	}
	buf.SetRawLen(read)
	return nil
}

func (p *Pipeline) writeChunk(buf *mediabuffer.Buffer) error {
	if err := p.Backend.WriteChunk(buf); err != nil {
		return err
	}
	if p.Mirror != nil {
		// Best-effort in the sense that the mirror needs no cross-target
		// transaction, but a write failure here still aborts the whole
		// pipeline -- both targets are left resumable, neither is silently
		// skipped.
		if err := p.Mirror.WriteChunk(buf); err != nil {
			return err
		}
	}
	return nil
}

// replayFromBackend re-reads an already-written chunk through the backend to
// feed the digests, for the fast-resume path.
func (p *Pipeline) replayFromBackend(buf *mediabuffer.Buffer, acquiryCount uint64, n uint32) error {
	index := acquiryCount / uint64(p.ChunkSize)
	if _, err := p.Backend.ReadChunk(buf, index, false); err != nil {
		return err
	}
	// Chunks on disk are already in post-swap order; replay must not swap
	// again even if SwapBytePairs is set for the live read path.
	if p.Digests != nil {
		p.Digests.Write(buf.AsRaw()[:n]) //nolint:errcheck
	}
	return nil
}

func (p *Pipeline) finalize(now func() time.Time, acquiryCount uint64) (Result, error) {
	for _, e := range p.Device.ReadErrors() {
		p.Backend.AppendChecksumError(e.StartSector, e.SectorCount)
		if p.Mirror != nil {
			p.Mirror.AppendChecksumError(e.StartSector, e.SectorCount)
		}
	}

	hashes := map[string]string{}
	if p.Digests != nil {
		for algo, hex := range p.Digests.Sums() {
			hashes[string(algo)] = hex
		}
	}

	if err := p.Backend.Finalize(hashes); err != nil {
		return p.failureResult(acquiryCount), err
	}
	if p.Mirror != nil {
		if err := p.Mirror.Finalize(hashes); err != nil {
			return p.failureResult(acquiryCount), err
		}
	}

	if p.Reporter != nil {
		p.Reporter.Finish(now(), progress.StatusCompleted)
	}
	return Result{
		BytesWritten:  acquiryCount,
		ChunksWritten: (acquiryCount + uint64(p.ChunkSize) - 1) / uint64(p.ChunkSize),
		Finalized:     true,
		Hashes:        hashes,
	}, nil
}

func (p *Pipeline) abortResult(acquiryCount uint64) Result {
	if p.Reporter != nil {
		p.Reporter.Finish(time.Now(), progress.StatusAborted)
	}
	return Result{BytesWritten: acquiryCount}
}

func (p *Pipeline) failureResult(acquiryCount uint64) Result {
	if p.Reporter != nil {
		p.Reporter.Finish(time.Now(), progress.StatusFailed)
	}
	return Result{BytesWritten: acquiryCount}
}

func (p *Pipeline) tick(now time.Time, bytesRead uint64) {
	if p.Reporter != nil {
		p.Reporter.Observe(now, bytesRead)
	}
}

func (p *Pipeline) recordChunk(outcome string, size int, d time.Duration) {
	if p.Metrics != nil {
		p.Metrics.RecordChunk("acquire", outcome, size, d)
	}
}
