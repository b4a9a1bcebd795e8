package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/libyal/ewfkit/internal/mediabuffer"
)

// corruptByteAtEnd flips the last byte of the chunk payload -- the file
// ends with a single chunk record followed by segmentDone (1 byte),
// archiveDone's tag (1 byte) and its zero-length hash count (1 byte), so
// the payload's last byte sits 4 bytes from the end.
func corruptByteAtEnd(t *testing.T, path string) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	idx := len(data) - 4
	require.GreaterOrEqual(t, idx, 0)
	data[idx] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

func testProfile() Profile {
	return Profile{
		Format:             FormatEwf,
		CompressionLevel:   CompressionFast,
		CompressEmptyBlock: false,
		SegmentSizeMax:     1 << 20,
		ChunkSize:          64,
		BytesPerSector:     512,
	}
}

func TestLocalSegmentBackend_WriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	stem := filepath.Join(dir, "evidence")
	profile := testProfile()

	b := NewLocalSegmentBackend(nil)
	resumeOffset, err := b.OpenWrite(stem, profile, false)
	require.NoError(t, err)
	require.Zero(t, resumeOffset)

	chunks := [][]byte{
		bytesOf(profile.ChunkSize, 0xAA),
		bytesOf(profile.ChunkSize, 0x00),
		bytesOf(profile.ChunkSize, 0x42),
	}
	buf := mediabuffer.New(int(profile.ChunkSize))
	for _, c := range chunks {
		copy(buf.RawSlice(), c)
		buf.SetRawLen(len(c))
		require.NoError(t, b.WriteChunk(buf))
	}
	require.NoError(t, b.Finalize(map[string]string{"md5": "deadbeef"}))

	r := NewLocalSegmentBackend(nil)
	require.NoError(t, r.OpenRead(b.segmentPaths))
	require.Equal(t, map[string]string{"md5": "deadbeef"}, r.StoredHashes())
	require.False(t, r.SegmentFilesCorrupted())

	readBuf := mediabuffer.New(int(profile.ChunkSize))
	for i, want := range chunks {
		ok, err := r.ReadChunk(readBuf, uint64(i), true)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, want, readBuf.AsRaw())
	}
}

func TestLocalSegmentBackend_ResumeAfterPartialWrite(t *testing.T) {
	dir := t.TempDir()
	stem := filepath.Join(dir, "evidence")
	profile := testProfile()

	b := NewLocalSegmentBackend(nil)
	_, err := b.OpenWrite(stem, profile, false)
	require.NoError(t, err)

	buf := mediabuffer.New(int(profile.ChunkSize))
	copy(buf.RawSlice(), bytesOf(profile.ChunkSize, 0x11))
	buf.SetRawLen(int(profile.ChunkSize))
	require.NoError(t, b.WriteChunk(buf))
	copy(buf.RawSlice(), bytesOf(profile.ChunkSize, 0x22))
	require.NoError(t, b.WriteChunk(buf))
	require.NoError(t, b.Close())

	r := NewLocalSegmentBackend(nil)
	resumeOffset, err := r.OpenWrite(stem, profile, true)
	require.NoError(t, err)
	require.Equal(t, uint64(2*profile.ChunkSize), resumeOffset)

	copy(buf.RawSlice(), bytesOf(profile.ChunkSize, 0x33))
	require.NoError(t, r.WriteChunk(buf))
	require.NoError(t, r.Finalize(map[string]string{"md5": "abc"}))

	reader := NewLocalSegmentBackend(nil)
	require.NoError(t, reader.OpenRead(r.segmentPaths))
	require.Len(t, reader.chunks, 3)
}

func TestLocalSegmentBackend_ResumeRejectsMismatchedProfile(t *testing.T) {
	dir := t.TempDir()
	stem := filepath.Join(dir, "evidence")
	profile := testProfile()

	b := NewLocalSegmentBackend(nil)
	_, err := b.OpenWrite(stem, profile, false)
	require.NoError(t, err)
	buf := mediabuffer.New(int(profile.ChunkSize))
	buf.SetRawLen(int(profile.ChunkSize))
	require.NoError(t, b.WriteChunk(buf))
	require.NoError(t, b.Close())

	other := profile
	other.CompressionLevel = CompressionBest
	r := NewLocalSegmentBackend(nil)
	_, err = r.OpenWrite(stem, other, true)
	require.Error(t, err)
}

func TestLocalSegmentBackend_SegmentRollover(t *testing.T) {
	dir := t.TempDir()
	stem := filepath.Join(dir, "evidence")
	profile := testProfile()
	profile.SegmentSizeMax = 200 // small enough to force rollover across a few chunks

	b := NewLocalSegmentBackend(nil)
	_, err := b.OpenWrite(stem, profile, false)
	require.NoError(t, err)

	buf := mediabuffer.New(int(profile.ChunkSize))
	for i := 0; i < 10; i++ {
		copy(buf.RawSlice(), bytesOf(profile.ChunkSize, byte(i)))
		buf.SetRawLen(int(profile.ChunkSize))
		require.NoError(t, b.WriteChunk(buf))
	}
	require.NoError(t, b.Finalize(nil))
	require.Greater(t, len(b.segmentPaths), 1)

	r := NewLocalSegmentBackend(nil)
	require.NoError(t, r.OpenRead(b.segmentPaths))
	require.Len(t, r.chunks, 10)
}

func TestLocalSegmentBackend_ChecksumMismatchZeroesAndRecords(t *testing.T) {
	dir := t.TempDir()
	stem := filepath.Join(dir, "evidence")
	profile := testProfile()
	profile.CompressionLevel = CompressionNone

	b := NewLocalSegmentBackend(nil)
	_, err := b.OpenWrite(stem, profile, false)
	require.NoError(t, err)
	buf := mediabuffer.New(int(profile.ChunkSize))
	copy(buf.RawSlice(), bytesOf(profile.ChunkSize, 0x55))
	buf.SetRawLen(int(profile.ChunkSize))
	require.NoError(t, b.WriteChunk(buf))
	require.NoError(t, b.Finalize(nil))

	path := b.segmentPaths[0]
	corruptByteAtEnd(t, path)

	r := NewLocalSegmentBackend(nil)
	require.NoError(t, r.OpenRead(b.segmentPaths))
	readBuf := mediabuffer.New(int(profile.ChunkSize))
	ok, err := r.ReadChunk(readBuf, 0, true)
	require.NoError(t, err)
	require.False(t, ok)
	for _, c := range readBuf.AsRaw() {
		require.Zero(t, c)
	}
	require.Len(t, r.StoredChecksumErrors(), 1)
	_ = path
}

func bytesOf(n uint32, v byte) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = v
	}
	return out
}
