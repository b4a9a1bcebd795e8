// Package archive implements the segmented, checksum-framed container an
// acquisition or verification session reads and writes through. The on-disk
// layout is this package's own invention, built around ascending chunk
// order, self-describing chunks, atomic segment completion, and a
// final-segment hash section.
package archive

import (
	"github.com/libyal/ewfkit/internal/mediabuffer"
)

// Format is one of the supported acquisition formats. The value drives both
// the segment extension scheme (filenames.go) and the per-format segment
// size bounds enforced at session validation time.
type Format string

const (
	FormatEwf      Format = "ewf"
	FormatEwfX     Format = "ewfx"
	FormatSmart    Format = "smart"
	FormatFtk      Format = "ftk"
	FormatEncase1  Format = "encase1"
	FormatEncase2  Format = "encase2"
	FormatEncase3  Format = "encase3"
	FormatEncase4  Format = "encase4"
	FormatEncase5  Format = "encase5"
	FormatEncase6  Format = "encase6"
	FormatLinen5   Format = "linen5"
	FormatLinen6   Format = "linen6"
)

// CompressionLevel is the compression profile applied to each chunk before
// it is written.
type CompressionLevel string

const (
	CompressionNone CompressionLevel = "none"
	CompressionFast CompressionLevel = "fast"
	CompressionBest CompressionLevel = "best"
)

// Profile is the archive-wide configuration negotiated once per session
// and compared verbatim on resume.
type Profile struct {
	Format             Format
	CompressionLevel   CompressionLevel
	CompressEmptyBlock bool
	SegmentSizeMax     uint64
	ChunkSize          uint32
	BytesPerSector     uint32
}

// Equal reports whether two profiles are identical in every field the
// resume contract requires to match.
func (p Profile) Equal(o Profile) bool {
	return p.Format == o.Format &&
		p.CompressionLevel == o.CompressionLevel &&
		p.CompressEmptyBlock == o.CompressEmptyBlock &&
		p.SegmentSizeMax == o.SegmentSizeMax &&
		p.ChunkSize == o.ChunkSize &&
		p.BytesPerSector == o.BytesPerSector
}

// ChecksumError records one verification-time per-chunk checksum mismatch,
// expressed at sector granularity like deviceio.ReadError.
type ChecksumError struct {
	StartSector uint64
	SectorCount uint32
}

// Backend is the contract the acquisition and verification pipelines use.
// LocalSegmentBackend is the only production implementation; S3MirrorBackend
// wraps one to additionally mirror writes to object storage.
type Backend interface {
	OpenWrite(targetStem string, profile Profile, resume bool) (resumeOffset uint64, err error)
	OpenRead(segmentPaths []string) error

	ChunkSize() uint32
	BytesPerSector() uint32

	WriteChunk(buf *mediabuffer.Buffer) error
	// ReadChunk decompresses chunk `index` into buf. ok reports whether the
	// stored per-chunk checksum matched; when it doesn't and
	// zeroOnChecksumError is set, buf arrives zeroed.
	ReadChunk(buf *mediabuffer.Buffer, index uint64, zeroOnChecksumError bool) (ok bool, err error)

	AppendChecksumError(startSector uint64, sectorCount uint32)
	StoredChecksumErrors() []ChecksumError

	// Finalize writes the global hash section and marks every segment
	// complete. It is only ever called after a fully successful
	// acquisition.
	Finalize(globalHashes map[string]string) error
	StoredHashes() map[string]string

	SegmentFilesCorrupted() bool
	FilenameForOffset(offset uint64) (string, bool)

	Close() error
}
