package acquire

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/libyal/ewfkit/internal/archive"
	"github.com/libyal/ewfkit/internal/deviceio"
	"github.com/libyal/ewfkit/internal/digest"
	"github.com/libyal/ewfkit/internal/mediabuffer"
)

// fakeDevice is a minimal in-memory deviceio.Reader double.
type fakeDevice struct {
	data       []byte
	offset     uint64
	readErrors []deviceio.ReadError
}

func (d *fakeDevice) Open([]string) error          { return nil }
func (d *fakeDevice) MediaSize() uint64             { return uint64(len(d.data)) }
func (d *fakeDevice) BytesPerSector() uint32        { return 512 }
func (d *fakeDevice) MediaType() string             { return "fixed" }
func (d *fakeDevice) ReadErrors() []deviceio.ReadError { return d.readErrors }
func (d *fakeDevice) SignalAbort()                  {}
func (d *fakeDevice) Close() error                  { return nil }

func (d *fakeDevice) Seek(offset uint64, whence int) (uint64, error) {
	d.offset = offset
	return offset, nil
}

func (d *fakeDevice) Read(buf []byte) (int, error) {
	n := copy(buf, d.data[d.offset:])
	d.offset += uint64(n)
	return n, nil
}

// fakeBackend is a minimal in-memory archive.Backend double.
type fakeBackend struct {
	chunkSize      uint32
	bytesPerSector uint32
	chunks         [][]byte
	finalized      bool
	hashes         map[string]string
	checksumErrs   []archive.ChecksumError
}

func newFakeBackend(chunkSize, bytesPerSector uint32) *fakeBackend {
	return &fakeBackend{chunkSize: chunkSize, bytesPerSector: bytesPerSector}
}

func (b *fakeBackend) OpenWrite(string, archive.Profile, bool) (uint64, error) { return 0, nil }
func (b *fakeBackend) OpenRead([]string) error                                 { return nil }
func (b *fakeBackend) ChunkSize() uint32                                       { return b.chunkSize }
func (b *fakeBackend) BytesPerSector() uint32                                  { return b.bytesPerSector }

func (b *fakeBackend) WriteChunk(buf *mediabuffer.Buffer) error {
	cp := make([]byte, len(buf.AsRaw()))
	copy(cp, buf.AsRaw())
	b.chunks = append(b.chunks, cp)
	return nil
}

func (b *fakeBackend) ReadChunk(buf *mediabuffer.Buffer, index uint64, _ bool) (bool, error) {
	copy(buf.RawSlice(), b.chunks[index])
	buf.SetRawLen(len(b.chunks[index]))
	return true, nil
}

func (b *fakeBackend) AppendChecksumError(startSector uint64, sectorCount uint32) {
	b.checksumErrs = append(b.checksumErrs, archive.ChecksumError{StartSector: startSector, SectorCount: sectorCount})
}
func (b *fakeBackend) StoredChecksumErrors() []archive.ChecksumError { return b.checksumErrs }

func (b *fakeBackend) Finalize(hashes map[string]string) error {
	b.finalized = true
	b.hashes = hashes
	return nil
}
func (b *fakeBackend) StoredHashes() map[string]string      { return b.hashes }
func (b *fakeBackend) SegmentFilesCorrupted() bool           { return false }
func (b *fakeBackend) FilenameForOffset(uint64) (string, bool) { return "", false }
func (b *fakeBackend) Close() error                          { return nil }

func TestPipeline_CleanAcquisition(t *testing.T) {
	const chunkSize = 32 * 1024
	const total = 10 * 1024 * 1024

	data := make([]byte, total)
	for i := range data {
		data[i] = 0xA5
	}

	device := &fakeDevice{data: data}
	backend := newFakeBackend(chunkSize, 512)
	digests, err := digest.NewStream(digest.MD5, digest.SHA1)
	require.NoError(t, err)

	p := &Pipeline{
		Device:      device,
		Backend:     backend,
		Digests:     digests,
		ChunkSize:   chunkSize,
		AcquirySize: total,
	}

	result, err := p.Run(nil)
	require.NoError(t, err)
	require.True(t, result.Finalized)
	require.Equal(t, uint64(total), result.BytesWritten)
	require.Len(t, backend.chunks, total/chunkSize)
	require.NotEmpty(t, result.Hashes["md5"])
	require.NotEmpty(t, result.Hashes["sha1"])
}

func TestPipeline_AbortStopsBeforeFinalize(t *testing.T) {
	const chunkSize = 1024
	const total = 10 * 1024

	device := &fakeDevice{data: make([]byte, total)}
	backend := newFakeBackend(chunkSize, 512)

	p := &Pipeline{
		Device:      device,
		Backend:     backend,
		ChunkSize:   chunkSize,
		AcquirySize: total,
	}
	p.SignalAbort()

	result, err := p.Run(func() time.Time { return time.Now() })
	require.Error(t, err)
	require.False(t, result.Finalized)
	require.False(t, backend.finalized)
}

func TestPipeline_ResumeReplaysAlreadyWrittenChunks(t *testing.T) {
	const chunkSize = 1024
	const total = 4 * 1024

	data := make([]byte, total)
	for i := range data {
		data[i] = byte(i)
	}
	device := &fakeDevice{data: data}
	backend := newFakeBackend(chunkSize, 512)
	// Pre-seed the backend as if the first two chunks were already written.
	backend.chunks = [][]byte{data[0:chunkSize], data[chunkSize : 2*chunkSize]}

	digests, err := digest.NewStream(digest.MD5)
	require.NoError(t, err)

	p := &Pipeline{
		Device:       device,
		Backend:      backend,
		Digests:      digests,
		ChunkSize:    chunkSize,
		AcquirySize:  total,
		ResumeOffset: 2 * chunkSize,
	}
	device.offset = 2 * chunkSize

	result, err := p.Run(nil)
	require.NoError(t, err)
	require.True(t, result.Finalized)
	require.Len(t, backend.chunks, total/chunkSize)
}
