package archive

import (
	"bytes"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zlib"

	"github.com/libyal/ewfkit/internal/ewferrors"
)

// compressChunk compresses raw per level. It returns compressed=false when
// the level is None, or when CompressEmptyBlock is false and raw is all
// zero bytes -- the historical EWF optimization of storing empty sectors
// raw rather than spending a deflate pass on them.
func compressChunk(raw []byte, level CompressionLevel, compressEmptyBlock bool) (stored []byte, compressed bool, err error) {
	if level == CompressionNone {
		return raw, false, nil
	}
	if !compressEmptyBlock && isAllZero(raw) {
		return raw, false, nil
	}

	switch level {
	case CompressionFast:
		return snappy.Encode(nil, raw), true, nil
	case CompressionBest:
		var buf bytes.Buffer
		w, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
		if err != nil {
			return nil, false, err
		}
		if _, err := w.Write(raw); err != nil {
			return nil, false, err
		}
		if err := w.Close(); err != nil {
			return nil, false, err
		}
		return buf.Bytes(), true, nil
	default:
		return nil, false, ewferrors.New(ewferrors.KindUnsupportedFormat, "archive.compressChunk", "unknown compression level: "+string(level))
	}
}

// decompressChunk reverses compressChunk given the flag stored alongside
// the chunk record.
func decompressChunk(stored []byte, compressed bool, level CompressionLevel, rawLen uint32) ([]byte, error) {
	if !compressed {
		return stored, nil
	}
	switch level {
	case CompressionFast:
		return snappy.Decode(make([]byte, 0, rawLen), stored)
	case CompressionBest:
		r, err := zlib.NewReader(bytes.NewReader(stored))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		out := make([]byte, rawLen)
		if _, err := io.ReadFull(r, out); err != nil {
			return nil, err
		}
		return out, nil
	default:
		return nil, ewferrors.New(ewferrors.KindUnsupportedFormat, "archive.decompressChunk", "unknown compression level: "+string(level))
	}
}

func isAllZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
