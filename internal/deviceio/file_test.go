package deviceio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memorySource is an in-memory blockSource used only by tests.
type memorySource struct {
	data []byte
}

func newMemorySource(data []byte) *memorySource {
	return &memorySource{data: data}
}

func (m *memorySource) Size() int64 { return int64(len(m.data)) }

func (m *memorySource) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(m.data)) {
		return 0, nil
	}
	n := copy(p, m.data[off:])
	return n, nil
}

func fullDevice(size int, fill byte) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = fill
	}
	return data
}

func TestFileDeviceReader_ReadWithoutErrors(t *testing.T) {
	data := fullDevice(4096, 0xAB)
	src := newMemorySource(data)

	r := NewFileDeviceReader(
		WithSource(src, uint64(len(data))),
		WithBytesPerSector(512),
	)
	require.NoError(t, r.Open(nil))

	buf := make([]byte, 4096)
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 4096, n)
	assert.Equal(t, data, buf)
	assert.Empty(t, r.ReadErrors())
}

func TestFileDeviceReader_RetrySucceeds(t *testing.T) {
	data := fullDevice(4096, 0xCD)
	src := newMemorySource(data)
	fi := NewFaultInjectingSource(src)
	// Fails the first read touching [512, 1024) exactly once; the retry
	// (second attempt) succeeds.
	fi.FailRange(512, 1024, 1)

	r := NewFileDeviceReader(
		WithSource(fi, uint64(len(data))),
		WithBytesPerSector(512),
		WithRetryPolicy(NewRetryPolicy(WithMaxRetries(2))),
	)
	require.NoError(t, r.Open(nil))

	buf := make([]byte, 4096)
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 4096, n)
	assert.Equal(t, data, buf)
	assert.Empty(t, r.ReadErrors(), "a retry that succeeds must not record a read error")
}

func TestFileDeviceReader_ExhaustedRetriesWipeGranularity(t *testing.T) {
	data := fullDevice(4096, 0xEF)
	src := newMemorySource(data)
	fi := NewFaultInjectingSource(src)
	// Permanent failure at [600, 700): inside granularity window
	// [512, 1024) for sector size 512, granularity 1 sector (512 bytes).
	fi.FailRange(600, 700, 0)

	r := NewFileDeviceReader(
		WithSource(fi, uint64(len(data))),
		WithBytesPerSector(512),
		WithErrorGranularitySectors(1),
		WithWipeOnError(true),
		WithRetryPolicy(NewRetryPolicy(WithMaxRetries(2))),
	)
	require.NoError(t, r.Open(nil))

	buf := make([]byte, 4096)
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 4096, n)

	// The whole granularity window [512,1024) must be zeroed.
	for i := 512; i < 1024; i++ {
		assert.Equalf(t, byte(0), buf[i], "byte %d should be wiped", i)
	}
	// Bytes outside the window are untouched.
	assert.Equal(t, data[:512], buf[:512])
	assert.Equal(t, data[1024:], buf[1024:])

	errs := r.ReadErrors()
	require.Len(t, errs, 1)
	assert.Equal(t, uint64(1), errs[0].StartSector)
	assert.Equal(t, uint32(1), errs[0].SectorCount)
}

func TestFileDeviceReader_WipeOffNarrowsToRemainder(t *testing.T) {
	data := fullDevice(4096, 0x11)
	src := newMemorySource(data)
	fi := NewFaultInjectingSource(src)
	fi.FailRange(600, 700, 0)

	r := NewFileDeviceReader(
		WithSource(fi, uint64(len(data))),
		WithBytesPerSector(512),
		WithErrorGranularitySectors(1),
		WithWipeOnError(false),
		WithRetryPolicy(NewRetryPolicy(WithMaxRetries(1))),
	)
	require.NoError(t, r.Open(nil))

	buf := make([]byte, 4096)
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 4096, n)

	// Only [k, k+(G-k%G)) is wiped: k==600 here, because the fault range
	// [600,700) begins 600 bytes into the [0,4096) request starting at
	// offset 0, so [600,1024) is wiped.
	assert.NotEqual(t, data, buf, "some bytes must have been wiped")
}

func TestFileDeviceReader_DeviceVanished(t *testing.T) {
	data := fullDevice(2048, 0x22)
	src := newMemorySource(data)
	fi := NewFaultInjectingSource(src)
	fi.FailRangeWith(0, 2048, 0, ErrDeviceVanished)

	r := NewFileDeviceReader(
		WithSource(fi, uint64(len(data))),
		WithBytesPerSector(512),
	)
	require.NoError(t, r.Open(nil))

	buf := make([]byte, 2048)
	_, err := r.Read(buf)
	require.Error(t, err)
}

func TestFileDeviceReader_SignalAbort(t *testing.T) {
	data := fullDevice(512, 0x33)
	r := NewFileDeviceReader(WithSource(newMemorySource(data), uint64(len(data))))
	require.NoError(t, r.Open(nil))

	r.SignalAbort()

	buf := make([]byte, 512)
	_, err := r.Read(buf)
	require.Error(t, err)
}

func TestFileDeviceReader_SeekRequiresSectorAlignment(t *testing.T) {
	data := fullDevice(4096, 0)
	r := NewFileDeviceReader(
		WithSource(newMemorySource(data), uint64(len(data))),
		WithBytesPerSector(512),
	)
	require.NoError(t, r.Open(nil))

	_, err := r.Seek(100, SeekStart)
	assert.Error(t, err)

	off, err := r.Seek(512, SeekStart)
	require.NoError(t, err)
	assert.Equal(t, uint64(512), off)
}

func TestFileDeviceReader_SeekBeyondMediaIsError(t *testing.T) {
	data := fullDevice(1024, 0)
	r := NewFileDeviceReader(
		WithSource(newMemorySource(data), uint64(len(data))),
		WithBytesPerSector(512),
	)
	require.NoError(t, r.Open(nil))

	_, err := r.Seek(2048, SeekStart)
	assert.Error(t, err)
}
