package mediabuffer

import (
	"testing"

	"github.com/libyal/ewfkit/internal/ewferrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Sizing(t *testing.T) {
	b := New(1000)
	assert.Len(t, b.RawSlice(), 1000)
	assert.Len(t, b.CompressedSlice(), 1000+1+64)
}

func TestBuffer_RawIsLiveByDefault(t *testing.T) {
	b := New(16)
	copy(b.RawSlice(), []byte("0123456789abcdef"))
	b.SetRawLen(16)

	assert.False(t, b.IsCompressed())
	assert.Equal(t, []byte("0123456789abcdef"), b.AsLive())
	assert.Equal(t, b.AsRaw(), b.AsLive())
}

func TestBuffer_CompressedBecomesLive(t *testing.T) {
	b := New(16)
	copy(b.CompressedSlice(), []byte("compressed-bytes"))
	b.SetCompressedLen(16)

	assert.True(t, b.IsCompressed())
	assert.Equal(t, []byte("compressed-bytes"), b.AsLive())
}

func TestBuffer_SwapBytePairs(t *testing.T) {
	b := New(4)
	copy(b.RawSlice(), []byte{0x01, 0x02, 0x03, 0x04})
	b.SetRawLen(4)

	require.NoError(t, b.SwapBytePairs())
	assert.Equal(t, []byte{0x02, 0x01, 0x04, 0x03}, b.AsLive())
}

func TestBuffer_SwapBytePairsOddLength(t *testing.T) {
	b := New(4)
	b.SetRawLen(3)

	err := b.SwapBytePairs()
	require.Error(t, err)
	assert.Equal(t, ewferrors.KindInvalidArgument, ewferrors.KindOf(err))
}

func TestBuffer_Checksum(t *testing.T) {
	b := New(16)
	_, present := b.Checksum()
	assert.False(t, present)

	b.SetChecksum(0xdeadbeef)
	c, present := b.Checksum()
	assert.True(t, present)
	assert.Equal(t, uint32(0xdeadbeef), c)
}

func TestBuffer_Reset(t *testing.T) {
	b := New(16)
	b.SetRawLen(10)
	b.SetChecksum(7)

	b.Reset()

	assert.Empty(t, b.AsRaw())
	_, present := b.Checksum()
	assert.False(t, present)
	assert.False(t, b.IsCompressed())
}
