// Package digest computes the rolling checksums that accompany an
// acquisition or verification run. A Stream is an io.Writer: the
// acquisition pipeline feeds it the post-byte-swap, pre-compression chunk
// bytes, so the digest always covers the canonical media byte order
// regardless of what compression or segmentation does downstream.
package digest

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"hash"

	"github.com/libyal/ewfkit/internal/ewferrors"
)

// Algorithm identifies one of the digest algorithms a session can request.
type Algorithm string

const (
	MD5    Algorithm = "md5"
	SHA1   Algorithm = "sha1"
	SHA256 Algorithm = "sha256"
)

func newHash(a Algorithm) (hash.Hash, error) {
	switch a {
	case MD5:
		return md5.New(), nil
	case SHA1:
		return sha1.New(), nil
	case SHA256:
		return sha256.New(), nil
	default:
		return nil, ewferrors.New(ewferrors.KindInvalidArgument, "digest.New", "unsupported algorithm: "+string(a))
	}
}

// Stream accumulates one or more digests over a single ordered byte stream.
// It implements io.Writer and never returns a short write or an error from
// Write: hash.Hash.Write is documented to never fail.
type Stream struct {
	order  []Algorithm
	hashes map[Algorithm]hash.Hash
}

// NewStream builds a Stream computing every named algorithm. Duplicate
// algorithms are collapsed; an empty algorithm list is valid and produces a
// Stream whose Write is a no-op, since a session may request no digest at
// all.
func NewStream(algorithms ...Algorithm) (*Stream, error) {
	s := &Stream{hashes: make(map[Algorithm]hash.Hash, len(algorithms))}
	for _, a := range algorithms {
		if _, ok := s.hashes[a]; ok {
			continue
		}
		h, err := newHash(a)
		if err != nil {
			return nil, err
		}
		s.hashes[a] = h
		s.order = append(s.order, a)
	}
	return s, nil
}

// Write feeds p into every configured algorithm. It always returns
// len(p), nil.
func (s *Stream) Write(p []byte) (int, error) {
	for _, a := range s.order {
		s.hashes[a].Write(p) //nolint:errcheck // hash.Hash.Write never fails
	}
	return len(p), nil
}

// Algorithms returns the algorithms this Stream was constructed with, in
// the order they were requested.
func (s *Stream) Algorithms() []Algorithm {
	out := make([]Algorithm, len(s.order))
	copy(out, s.order)
	return out
}

// Sum returns the raw digest bytes for algo, or an error if the Stream
// wasn't configured with it.
func (s *Stream) Sum(algo Algorithm) ([]byte, error) {
	h, ok := s.hashes[algo]
	if !ok {
		return nil, ewferrors.New(ewferrors.KindInvalidArgument, "digest.Stream.Sum", "stream was not configured with algorithm: "+string(algo))
	}
	return h.Sum(nil), nil
}

// SumHex is Sum rendered as a lowercase hex string, the form persisted in a
// case file and compared at verification time.
func (s *Stream) SumHex(algo Algorithm) (string, error) {
	sum, err := s.Sum(algo)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sum), nil
}

// Sums returns every configured algorithm's digest as lowercase hex,
// keyed by algorithm.
func (s *Stream) Sums() map[Algorithm]string {
	out := make(map[Algorithm]string, len(s.order))
	for _, a := range s.order {
		out[a] = hex.EncodeToString(s.hashes[a].Sum(nil))
	}
	return out
}
