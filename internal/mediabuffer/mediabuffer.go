// Package mediabuffer implements the fixed-geometry chunk buffer with dual
// raw/compressed views that every component in the pipeline passes around
// by reference. One Buffer is allocated per pipeline at startup and reused
// for the lifetime of a session; nothing in this package allocates per
// chunk.
package mediabuffer

import (
	"github.com/libyal/ewfkit/internal/ewferrors"
)

// compressionOverhead is the scratch headroom reserved for the compressed
// view beyond chunk_size/1000, covering a worst-case (incompressible)
// deflate/zlib expansion.
const compressionOverhead = 64

// Buffer is a tagged two-view chunk buffer. Exactly one of the raw or
// compressed view is "live" (holds current data) at any moment; the other
// is scratch space reused across chunks to avoid per-chunk allocation.
type Buffer struct {
	raw    []byte
	rawLen int

	compressed    []byte
	compressedLen int

	dataInCompressionBuffer bool

	checksum        uint32
	checksumPresent bool
}

// New allocates a Buffer sized to chunkSize, with a compression scratch
// buffer sized chunkSize + chunkSize/1000 + compressionOverhead bytes.
func New(chunkSize int) *Buffer {
	scratch := chunkSize + chunkSize/1000 + compressionOverhead
	return &Buffer{
		raw:        make([]byte, chunkSize),
		compressed: make([]byte, scratch),
	}
}

// Reset clears live-data tracking so the buffer can be reused for the next
// chunk. The underlying slices are kept and overwritten in place.
func (b *Buffer) Reset() {
	b.rawLen = 0
	b.compressedLen = 0
	b.dataInCompressionBuffer = false
	b.checksum = 0
	b.checksumPresent = false
}

// RawSlice returns the full-capacity raw view for callers (DeviceReader)
// that need to fill it directly.
func (b *Buffer) RawSlice() []byte {
	return b.raw
}

// CompressedSlice returns the full-capacity compressed scratch view for
// callers (ArchiveBackend) that need to fill it directly.
func (b *Buffer) CompressedSlice() []byte {
	return b.compressed
}

// SetRawLen marks n bytes of the raw view as live, making the raw view the
// live side.
func (b *Buffer) SetRawLen(n int) {
	b.rawLen = n
	b.dataInCompressionBuffer = false
}

// SetCompressedLen marks n bytes of the compressed view as live, making the
// compressed view the live side.
func (b *Buffer) SetCompressedLen(n int) {
	b.compressedLen = n
	b.dataInCompressionBuffer = true
}

// AsRaw returns the raw view regardless of which side is live.
func (b *Buffer) AsRaw() []byte {
	return b.raw[:b.rawLen]
}

// AsCompressed returns the compressed view regardless of which side is
// live.
func (b *Buffer) AsCompressed() []byte {
	return b.compressed[:b.compressedLen]
}

// AsLive returns whichever view currently holds live data.
func (b *Buffer) AsLive() []byte {
	if b.dataInCompressionBuffer {
		return b.AsCompressed()
	}
	return b.AsRaw()
}

// IsCompressed reports whether the compressed view is the live side.
func (b *Buffer) IsCompressed() bool {
	return b.dataInCompressionBuffer
}

// SetChecksum records a per-chunk checksum read back from or computed for
// the archive, distinct from the session-wide digest.Stream.
func (b *Buffer) SetChecksum(c uint32) {
	b.checksum = c
	b.checksumPresent = true
}

// Checksum returns the stored per-chunk checksum and whether one is
// present.
func (b *Buffer) Checksum() (uint32, bool) {
	return b.checksum, b.checksumPresent
}

// SwapBytePairs swaps adjacent byte pairs in place on the live view (used
// for media recorded in the opposite sector byte order). It fails with
// InvalidArgument if the live length is odd, since a byte pair can't
// straddle the buffer's end.
func (b *Buffer) SwapBytePairs() error {
	live := b.rawViewForSwap()
	if len(live)%2 != 0 {
		return ewferrors.New(ewferrors.KindInvalidArgument, "mediabuffer.SwapBytePairs", "live buffer length is odd")
	}
	for i := 0; i+1 < len(live); i += 2 {
		live[i], live[i+1] = live[i+1], live[i]
	}
	return nil
}

// rawViewForSwap returns a mutable slice over whichever view is live; swap
// is only ever applied before compression, so in practice this is always
// the raw view, but the lookup is symmetric with AsLive for clarity.
func (b *Buffer) rawViewForSwap() []byte {
	if b.dataInCompressionBuffer {
		return b.compressed[:b.compressedLen]
	}
	return b.raw[:b.rawLen]
}
