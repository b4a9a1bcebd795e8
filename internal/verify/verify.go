// Package verify implements the verification mirror of the acquisition
// pipeline: it recomputes digests from the stored chunks and compares them
// against the hashes recorded at acquisition time.
package verify

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/libyal/ewfkit/internal/archive"
	"github.com/libyal/ewfkit/internal/digest"
	"github.com/libyal/ewfkit/internal/ewferrors"
	"github.com/libyal/ewfkit/internal/mediabuffer"
	"github.com/libyal/ewfkit/internal/metrics"
	"github.com/libyal/ewfkit/internal/progress"
)

// DigestComparison is one algorithm's stored-vs-computed outcome.
type DigestComparison struct {
	Algorithm string
	Stored    string
	Computed  string
	Match     bool
}

// ChecksumErrorReport maps one checksum-error sector span back to the
// segment filenames that contain it.
type ChecksumErrorReport struct {
	StartSector uint64
	SectorCount uint32
	Segments    []string
}

// Report is the outcome of a verification run.
type Report struct {
	StoredVsComputed  []DigestComparison
	NumChecksumErrors int
	SegmentsCorrupted bool
	ChecksumErrors    []ChecksumErrorReport
	Success           bool
}

// Pipeline wires an already opened-for-read ArchiveBackend through a
// digest.Stream to produce a Report.
type Pipeline struct {
	Backend             archive.Backend
	Digests              *digest.Stream
	NumChunks             uint64
	MediaSize             uint64
	SwapBytePairs         bool
	ZeroOnChecksumError   bool
	Reporter              *progress.Reporter
	Logger                *zap.Logger
	Metrics               *metrics.Collector // optional; nil disables per-chunk recording
}

// Run iterates every chunk, verifying per-chunk checksums and feeding the
// digest stream, then compares the result against the archive's stored
// global hashes.
func (p *Pipeline) Run(now func() time.Time) (Report, error) {
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}

	chunkSize := p.Backend.ChunkSize()
	buf := mediabuffer.New(int(chunkSize))

	var bytesVerified uint64
	for index := uint64(0); index < p.NumChunks; index++ {
		chunkStart := now()
		ok, err := p.Backend.ReadChunk(buf, index, p.ZeroOnChecksumError)
		if err != nil {
			return Report{}, err
		}
		outcome := "ok"
		if !ok {
			sectorStart := (index * uint64(chunkSize)) / uint64(p.Backend.BytesPerSector())
			sectorCount := chunkSize / p.Backend.BytesPerSector()
			p.Backend.AppendChecksumError(sectorStart, sectorCount)
			outcome = "mismatch"
		}

		if p.SwapBytePairs {
			if err := buf.SwapBytePairs(); err != nil {
				return Report{}, ewferrors.Wrap(ewferrors.KindInvalidArgument, "verify.Run", err)
			}
		}
		if p.Digests != nil {
			p.Digests.Write(buf.AsRaw()) //nolint:errcheck
		}

		bytesVerified += uint64(len(buf.AsRaw()))
		if p.Reporter != nil {
			p.Reporter.Observe(now(), bytesVerified)
		}
		if p.Metrics != nil {
			p.Metrics.RecordChunk("verify", outcome, len(buf.AsRaw()), now().Sub(chunkStart))
		}
	}

	report := p.buildReport()
	if p.Reporter != nil {
		status := progress.StatusCompleted
		if !report.Success {
			status = progress.StatusFailed
		}
		p.Reporter.Finish(now(), status)
	}
	return report, nil
}

func (p *Pipeline) buildReport() Report {
	var comparisons []DigestComparison
	allMatch := true
	if p.Digests != nil {
		computed := p.Digests.Sums()
		stored := p.Backend.StoredHashes()
		for _, algo := range p.Digests.Algorithms() {
			c := DigestComparison{
				Algorithm: string(algo),
				Stored:    stored[string(algo)],
				Computed:  computed[algo],
				Match:     stored[string(algo)] == computed[algo],
			}
			comparisons = append(comparisons, c)
			if !c.Match {
				allMatch = false
			}
		}
	}

	errs := p.Backend.StoredChecksumErrors()
	reports := make([]ChecksumErrorReport, 0, len(errs))
	for _, e := range errs {
		reports = append(reports, ChecksumErrorReport{
			StartSector: e.StartSector,
			SectorCount: e.SectorCount,
			Segments:    p.segmentsForErrorSpan(e),
		})
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].StartSector < reports[j].StartSector })

	corrupted := p.Backend.SegmentFilesCorrupted()
	success := allMatch && len(errs) == 0 && !corrupted

	return Report{
		StoredVsComputed:  comparisons,
		NumChecksumErrors: len(errs),
		SegmentsCorrupted: corrupted,
		ChecksumErrors:    reports,
		Success:           success,
	}
}

// segmentsForErrorSpan maps a sector range back to the segment file(s)
// containing it, byte offset by byte offset at chunk granularity, since
// FilenameForOffset works in byte offsets, not sectors.
func (p *Pipeline) segmentsForErrorSpan(e archive.ChecksumError) []string {
	bytesPerSector := p.Backend.BytesPerSector()
	chunkSize := p.Backend.ChunkSize()
	start := e.StartSector * uint64(bytesPerSector)
	end := start + uint64(e.SectorCount)*uint64(bytesPerSector)

	seen := map[string]bool{}
	var names []string
	for off := start; off < end; off += uint64(chunkSize) {
		name, ok := p.Backend.FilenameForOffset(off)
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

// Describe renders a ChecksumErrorReport as a human-readable form, e.g.
// "sector A-B in segment(s) X, Y".
func (r ChecksumErrorReport) Describe() string {
	end := r.StartSector + uint64(r.SectorCount) - 1
	if len(r.Segments) == 0 {
		return fmt.Sprintf("sector %d-%d in segment(s) <unknown>", r.StartSector, end)
	}
	return fmt.Sprintf("sector %d-%d in segment(s) %s", r.StartSector, end, strings.Join(r.Segments, ", "))
}
