package digest

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStream_UnsupportedAlgorithm(t *testing.T) {
	_, err := NewStream(Algorithm("crc32"))
	assert.Error(t, err)
}

func TestStream_MatchesStdlibHashes(t *testing.T) {
	payload := []byte("storage media chunk payload, pre-compression")

	s, err := NewStream(MD5, SHA1, SHA256)
	require.NoError(t, err)

	n, err := s.Write(payload)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)

	wantMD5 := md5.Sum(payload)
	wantSHA1 := sha1.Sum(payload)
	wantSHA256 := sha256.Sum256(payload)

	gotMD5, err := s.SumHex(MD5)
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(wantMD5[:]), gotMD5)

	gotSHA1, err := s.SumHex(SHA1)
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(wantSHA1[:]), gotSHA1)

	gotSHA256, err := s.SumHex(SHA256)
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(wantSHA256[:]), gotSHA256)
}

func TestStream_WriteAccumulatesAcrossCalls(t *testing.T) {
	s, err := NewStream(SHA256)
	require.NoError(t, err)

	_, _ = s.Write([]byte("chunk one "))
	_, _ = s.Write([]byte("chunk two"))

	oneShot, err := NewStream(SHA256)
	require.NoError(t, err)
	_, _ = oneShot.Write([]byte("chunk one chunk two"))

	got, err := s.SumHex(SHA256)
	require.NoError(t, err)
	want, err := oneShot.SumHex(SHA256)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestStream_SumOfUnconfiguredAlgorithm(t *testing.T) {
	s, err := NewStream(MD5)
	require.NoError(t, err)

	_, err = s.Sum(SHA256)
	assert.Error(t, err)
}

func TestStream_DuplicateAlgorithmsCollapse(t *testing.T) {
	s, err := NewStream(MD5, MD5, SHA1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []Algorithm{MD5, SHA1}, s.Algorithms())
}

func TestStream_EmptyIsNoOp(t *testing.T) {
	s, err := NewStream()
	require.NoError(t, err)

	n, err := s.Write([]byte("anything"))
	require.NoError(t, err)
	assert.Equal(t, len("anything"), n)
	assert.Empty(t, s.Sums())
}
