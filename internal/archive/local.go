package archive

import (
	"bufio"
	"crypto/crc32"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/libyal/ewfkit/internal/ewferrors"
	"github.com/libyal/ewfkit/internal/mediabuffer"
)

// chunkLocation is where one chunk's record lives on disk, recorded as
// segments are written or scanned back in.
type chunkLocation struct {
	segmentIndex int
	segmentPath  string
	fileOffset   int64
}

var _ Backend = (*LocalSegmentBackend)(nil)

// LocalSegmentBackend is the filesystem-backed ArchiveBackend: a set of
// segment files sharing a stem, framed per record.go.
type LocalSegmentBackend struct {
	mu sync.Mutex

	stem    string
	profile Profile

	writing         bool
	finalized       bool
	curFile         *os.File
	curWriter       *bufio.Writer
	curSegmentIndex int
	curSegmentSize  int64
	headerSize      int64

	chunks       []chunkLocation
	segmentPaths []string

	checksumErrors []ChecksumError
	storedHashes   map[string]string
	corrupted      bool

	logger *zap.Logger
}

// NewLocalSegmentBackend constructs an unopened backend. Call OpenWrite or
// OpenRead before using it.
func NewLocalSegmentBackend(logger *zap.Logger) *LocalSegmentBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalSegmentBackend{logger: logger}
}

// OpenWrite opens target_stem for writing, creating the first segment (or,
// with resume=true, scanning existing segments and reopening the last one
// for append.
func (b *LocalSegmentBackend) OpenWrite(targetStem string, profile Profile, resume bool) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stem = targetStem
	b.writing = true

	if !resume {
		b.profile = profile
		if err := b.createSegment(1); err != nil {
			return 0, err
		}
		return 0, nil
	}

	existing, err := discoverSegments(targetStem, profile.Format)
	if err != nil {
		return 0, err
	}
	if len(existing) == 0 {
		b.profile = profile
		if err := b.createSegment(1); err != nil {
			return 0, err
		}
		return 0, nil
	}

	scanned, err := b.scanExistingForResume(existing)
	if err != nil {
		return 0, err
	}
	if !scanned.profile.Equal(profile) {
		return 0, ewferrors.New(ewferrors.KindMismatchedProfile, "archive.OpenWrite", "resume profile does not match existing archive")
	}
	b.profile = scanned.profile
	b.chunks = scanned.chunks
	b.segmentPaths = scanned.segmentPaths

	lastIndex := len(existing)
	f, err := os.OpenFile(existing[lastIndex-1], os.O_RDWR, 0o600)
	if err != nil {
		return 0, ewferrors.Wrap(ewferrors.KindWriteFailed, "archive.OpenWrite", err)
	}
	// Truncate any incomplete trailing record so the next WriteChunk
	// appends cleanly after the last fully-written chunk.
	if err := f.Truncate(scanned.lastGoodOffset); err != nil {
		f.Close()
		return 0, ewferrors.Wrap(ewferrors.KindWriteFailed, "archive.OpenWrite", err)
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return 0, ewferrors.Wrap(ewferrors.KindSeekFailed, "archive.OpenWrite", err)
	}

	b.curFile = f
	b.curWriter = bufio.NewWriter(f)
	b.curSegmentIndex = lastIndex
	b.curSegmentSize = scanned.lastGoodOffset

	return uint64(len(b.chunks)) * uint64(b.profile.ChunkSize), nil
}

// OpenRead opens an existing archive read-only across the given segment
// paths, in order.
func (b *LocalSegmentBackend) OpenRead(segmentPaths []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(segmentPaths) == 0 {
		return ewferrors.New(ewferrors.KindInvalidPath, "archive.OpenRead", "no segment paths given")
	}

	scanned, err := b.scanExistingForResume(segmentPaths)
	if err != nil {
		return err
	}
	b.profile = scanned.profile
	b.chunks = scanned.chunks
	b.segmentPaths = scanned.segmentPaths
	b.storedHashes = scanned.hashes
	b.corrupted = scanned.corrupted
	return nil
}

func (b *LocalSegmentBackend) ChunkSize() uint32      { return b.profile.ChunkSize }
func (b *LocalSegmentBackend) BytesPerSector() uint32 { return b.profile.BytesPerSector }

// ChunkCount reports how many chunks are indexed after OpenRead, so a
// verification run knows how far to iterate without being re-told the
// original acquiry_size.
func (b *LocalSegmentBackend) ChunkCount() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return uint64(len(b.chunks))
}

// WriteChunk compresses (if the profile demands it), appends the chunk to
// the current segment, and rolls over to a new segment when the next write
// would exceed segment_size_max.
func (b *LocalSegmentBackend) WriteChunk(buf *mediabuffer.Buffer) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	raw := buf.AsRaw()
	stored, compressed, err := compressChunk(raw, b.profile.CompressionLevel, b.profile.CompressEmptyBlock)
	if err != nil {
		return ewferrors.Wrap(ewferrors.KindWriteFailed, "archive.WriteChunk", err)
	}

	hdr := chunkRecordHeader{
		RawLen:     uint32(len(raw)),
		StoredLen:  uint32(len(stored)),
		Compressed: boolToByte(compressed),
		Checksum:   crc32.ChecksumIEEE(raw),
	}
	recordSize := int64(1 + chunkRecordHeaderSize + len(stored))

	if b.curSegmentSize > b.headerSize && b.curSegmentSize+recordSize > int64(b.profile.SegmentSizeMax) {
		if err := b.rollSegment(); err != nil {
			return err
		}
	}

	offset := b.curSegmentSize
	n, err := writeChunkRecord(b.curWriter, hdr, stored)
	if err != nil {
		return ewferrors.Wrap(ewferrors.KindWriteFailed, "archive.WriteChunk", err)
	}
	if err := b.curWriter.Flush(); err != nil {
		return ewferrors.Wrap(ewferrors.KindWriteFailed, "archive.WriteChunk", err)
	}
	b.curSegmentSize += int64(n)

	b.chunks = append(b.chunks, chunkLocation{
		segmentIndex: b.curSegmentIndex,
		segmentPath:  b.segmentPaths[len(b.segmentPaths)-1],
		fileOffset:   offset,
	})
	return nil
}

// ReadChunk decompresses chunk index into buf.
func (b *LocalSegmentBackend) ReadChunk(buf *mediabuffer.Buffer, index uint64, zeroOnChecksumError bool) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if index >= uint64(len(b.chunks)) {
		return false, ewferrors.New(ewferrors.KindOffsetOutOfRange, "archive.ReadChunk", "chunk index beyond archive")
	}
	loc := b.chunks[index]

	f, err := os.Open(loc.segmentPath)
	if err != nil {
		return false, ewferrors.Wrap(ewferrors.KindReadFailed, "archive.ReadChunk", err)
	}
	defer f.Close()

	if _, err := f.Seek(loc.fileOffset, io.SeekStart); err != nil {
		return false, ewferrors.Wrap(ewferrors.KindSeekFailed, "archive.ReadChunk", err)
	}
	r := bufio.NewReader(f)
	tag, err := readByte(r)
	if err != nil || tag != recordChunk {
		return false, ewferrors.New(ewferrors.KindChecksumError, "archive.ReadChunk", "chunk record missing or malformed")
	}
	hdr, stored, err := readChunkRecord(r)
	if err != nil {
		return false, ewferrors.Wrap(ewferrors.KindReadFailed, "archive.ReadChunk", err)
	}

	raw, err := decompressChunk(stored, hdr.Compressed != 0, b.profile.CompressionLevel, hdr.RawLen)
	if err != nil {
		return false, ewferrors.Wrap(ewferrors.KindReadFailed, "archive.ReadChunk", err)
	}

	ok := crc32.ChecksumIEEE(raw) == hdr.Checksum
	if !ok {
		sectorStart := (index * uint64(b.profile.ChunkSize)) / uint64(b.profile.BytesPerSector)
		sectorCount := (b.profile.ChunkSize + b.profile.BytesPerSector - 1) / b.profile.BytesPerSector
		b.addChecksumError(sectorStart, sectorCount)
	}

	if !ok && zeroOnChecksumError {
		view := buf.RawSlice()[:hdr.RawLen]
		for i := range view {
			view[i] = 0
		}
		buf.SetRawLen(int(hdr.RawLen))
	} else {
		copy(buf.RawSlice(), raw)
		buf.SetRawLen(len(raw))
	}

	return ok, nil
}

func (b *LocalSegmentBackend) AppendChecksumError(startSector uint64, sectorCount uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.addChecksumError(startSector, sectorCount)
}

func (b *LocalSegmentBackend) addChecksumError(startSector uint64, sectorCount uint32) {
	if sectorCount == 0 {
		return
	}
	start := startSector
	end := startSector + uint64(sectorCount)
	merged := make([]ChecksumError, 0, len(b.checksumErrors)+1)
	for _, e := range b.checksumErrors {
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
	merged = append(merged, ChecksumError{StartSector: start, SectorCount: uint32(end - start)})
	sort.Slice(merged, func(i, j int) bool { return merged[i].StartSector < merged[j].StartSector })
	b.checksumErrors = merged
}

func (b *LocalSegmentBackend) StoredChecksumErrors() []ChecksumError {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]ChecksumError, len(b.checksumErrors))
	copy(out, b.checksumErrors)
	return out
}

// Finalize writes the global hash section to the final segment and marks
// every segment complete. Only called after a fully successful
// acquisition.
func (b *LocalSegmentBackend) Finalize(globalHashes map[string]string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.writing || b.curFile == nil {
		return ewferrors.New(ewferrors.KindInternalInvariant, "archive.Finalize", "Finalize called without an open write segment")
	}

	if _, err := b.curWriter.Write([]byte{recordSegmentDone}); err != nil {
		return ewferrors.Wrap(ewferrors.KindWriteFailed, "archive.Finalize", err)
	}
	if err := writeArchiveDone(b.curWriter, globalHashes); err != nil {
		return ewferrors.Wrap(ewferrors.KindWriteFailed, "archive.Finalize", err)
	}
	if err := b.curWriter.Flush(); err != nil {
		return ewferrors.Wrap(ewferrors.KindWriteFailed, "archive.Finalize", err)
	}
	if err := b.curFile.Sync(); err != nil {
		return ewferrors.Wrap(ewferrors.KindWriteFailed, "archive.Finalize", err)
	}

	b.storedHashes = globalHashes
	b.finalized = true
	return b.curFile.Close()
}

func (b *LocalSegmentBackend) StoredHashes() map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.storedHashes
}

func (b *LocalSegmentBackend) SegmentFilesCorrupted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.corrupted
}

func (b *LocalSegmentBackend) FilenameForOffset(offset uint64) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.profile.ChunkSize == 0 {
		return "", false
	}
	idx := offset / uint64(b.profile.ChunkSize)
	if idx >= uint64(len(b.chunks)) {
		return "", false
	}
	return b.chunks[idx].segmentPath, true
}

func (b *LocalSegmentBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.curFile != nil && !b.finalized {
		if b.curWriter != nil {
			b.curWriter.Flush()
		}
		return b.curFile.Close()
	}
	return nil
}

func (b *LocalSegmentBackend) createSegment(index int) error {
	path, err := SegmentPath(b.stem, b.profile.Format, index)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return ewferrors.Wrap(ewferrors.KindWriteFailed, "archive.createSegment", err)
	}
	w := bufio.NewWriter(f)
	if err := writeHeader(w, b.profile); err != nil {
		f.Close()
		return ewferrors.Wrap(ewferrors.KindWriteFailed, "archive.createSegment", err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return ewferrors.Wrap(ewferrors.KindWriteFailed, "archive.createSegment", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return ewferrors.Wrap(ewferrors.KindWriteFailed, "archive.createSegment", err)
	}

	b.curFile = f
	b.curWriter = w
	b.curSegmentIndex = index
	b.curSegmentSize = info.Size()
	b.headerSize = info.Size()
	b.segmentPaths = append(b.segmentPaths, path)
	return nil
}

func (b *LocalSegmentBackend) rollSegment() error {
	if _, err := b.curWriter.Write([]byte{recordSegmentDone}); err != nil {
		return ewferrors.Wrap(ewferrors.KindWriteFailed, "archive.rollSegment", err)
	}
	if err := b.curWriter.Flush(); err != nil {
		return ewferrors.Wrap(ewferrors.KindWriteFailed, "archive.rollSegment", err)
	}
	if err := b.curFile.Close(); err != nil {
		return ewferrors.Wrap(ewferrors.KindWriteFailed, "archive.rollSegment", err)
	}
	return b.createSegment(b.curSegmentIndex + 1)
}

// discoverSegments globs for a stem's existing segment files in index
// order, stopping at the first missing index.
func discoverSegments(stem string, format Format) ([]string, error) {
	var paths []string
	for i := 1; i <= maxSequentialSegments; i++ {
		path, err := SegmentPath(stem, format, i)
		if err != nil {
			return nil, err
		}
		if _, err := os.Stat(path); err != nil {
			break
		}
		paths = append(paths, path)
	}
	return paths, nil
}

type scanResult struct {
	profile        Profile
	chunks         []chunkLocation
	segmentPaths   []string
	hashes         map[string]string
	corrupted      bool
	lastGoodOffset int64 // byte offset in the last segment after the last complete record
}

// scanExistingForResume reads every segment in order, building the chunk
// index and detecting the resume point: the byte offset right after the
// last fully-written record in the last segment. A segment truncated
// mid-record (an incomplete write, e.g. from a crash) is not an error --
// it just marks where resume continues from -- but a segment that fails to
// parse its own header is reported as structural corruption.
func (b *LocalSegmentBackend) scanExistingForResume(paths []string) (scanResult, error) {
	var result scanResult
	result.hashes = map[string]string{}
	result.segmentPaths = append([]string{}, paths...)

	for i, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return result, ewferrors.Wrap(ewferrors.KindReadFailed, "archive.scanExistingForResume", err)
		}

		r := bufio.NewReader(f)
		profile, err := readHeader(r)
		if err != nil {
			f.Close()
			result.corrupted = true
			return result, ewferrors.Wrap(ewferrors.KindMismatchedProfile, "archive.scanExistingForResume", err)
		}
		if i == 0 {
			result.profile = profile
		}

		offset, err := currentStreamOffset(f, r)
		if err != nil {
			f.Close()
			return result, err
		}

		for {
			tag, err := r.ReadByte()
			if err == io.EOF {
				break
			}
			if err != nil {
				f.Close()
				return result, ewferrors.Wrap(ewferrors.KindReadFailed, "archive.scanExistingForResume", err)
			}

			switch tag {
			case recordChunk:
				recordStart := offset
				hdr, _, err := readChunkRecord(r)
				if err != nil {
					// Incomplete trailing record: stop here, this is the
					// resume point, not corruption.
					f.Close()
					result.lastGoodOffset = recordStart
					goto doneSegment
				}
				consumed := int64(1 + chunkRecordHeaderSize + int(hdr.StoredLen))
				offset += consumed
				result.chunks = append(result.chunks, chunkLocation{
					segmentIndex: i + 1,
					segmentPath:  path,
					fileOffset:   recordStart,
				})
			case recordSegmentDone:
				offset++
				continue
			case recordArchiveDone:
				hashes, err := readArchiveDone(r)
				if err != nil {
					f.Close()
					result.corrupted = true
					return result, ewferrors.Wrap(ewferrors.KindReadFailed, "archive.scanExistingForResume", err)
				}
				result.hashes = hashes
				// Archive already finalized; no further records expected in
				// this segment, and resuming a finalized archive isn't a
				// supported code path, so offset tracking stops mattering.
			default:
				f.Close()
				result.corrupted = true
				return result, ewferrors.New(ewferrors.KindReadFailed, "archive.scanExistingForResume", fmt.Sprintf("unknown record tag %d", tag))
			}
		}
		result.lastGoodOffset = offset
	doneSegment:
		f.Close()
	}

	return result, nil
}

// currentStreamOffset reports how many bytes have been consumed from f via
// r so far (the segment's header, when called right after readHeader).
func currentStreamOffset(f *os.File, r *bufio.Reader) (int64, error) {
	pos, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, ewferrors.Wrap(ewferrors.KindSeekFailed, "archive.currentStreamOffset", err)
	}
	return pos - int64(r.Buffered()), nil
}
