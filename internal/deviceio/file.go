package deviceio

import (
	"errors"
	"os"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/libyal/ewfkit/internal/ewferrors"
)

// ErrDeviceVanished marks a blockSource error as the "device vanished"
// class (ESPIPE/EPERM/ENXIO/ENODEV or equivalent): no wipe is attempted,
// the whole pipeline aborts with DeviceLost.
var ErrDeviceVanished = errors.New("deviceio: device vanished")

var _ Reader = (*FileDeviceReader)(nil)

// FileDeviceReader backs a device with a contiguous set of files: a single
// block device node, a single raw image, or several files acting as one
// device.
type FileDeviceReader struct {
	source blockSource
	files  []*os.File

	mediaSize      uint64
	bytesPerSector uint32
	mediaType      string

	offset  uint64
	aborted atomic.Bool

	errs  *errorList
	retry *RetryPolicy

	wipeOnError        bool
	granularitySectors uint32
	onWipe             func(granularitySectors uint32)

	logger *zap.Logger
}

// Option configures a FileDeviceReader at construction time.
type Option func(*FileDeviceReader)

func WithBytesPerSector(n uint32) Option {
	return func(r *FileDeviceReader) { r.bytesPerSector = n }
}

func WithMediaSize(n uint64) Option {
	return func(r *FileDeviceReader) { r.mediaSize = n }
}

func WithMediaType(t string) Option {
	return func(r *FileDeviceReader) { r.mediaType = t }
}

func WithWipeOnError(b bool) Option {
	return func(r *FileDeviceReader) { r.wipeOnError = b }
}

func WithErrorGranularitySectors(n uint32) Option {
	return func(r *FileDeviceReader) { r.granularitySectors = n }
}

// WithWipeObserver attaches a callback invoked once per wiped granularity
// window, for counting wipes externally without this package depending on
// any particular metrics backend.
func WithWipeObserver(f func(granularitySectors uint32)) Option {
	return func(r *FileDeviceReader) { r.onWipe = f }
}

func WithRetryPolicy(p *RetryPolicy) Option {
	return func(r *FileDeviceReader) { r.retry = p }
}

func WithDeviceLogger(l *zap.Logger) Option {
	return func(r *FileDeviceReader) { r.logger = l }
}

// WithSource injects a blockSource directly, bypassing Open's file
// handling. Used by tests (FaultInjectingSource over an in-memory backing)
// and by callers that already hold an opened archive segment set.
func WithSource(s blockSource, mediaSize uint64) Option {
	return func(r *FileDeviceReader) {
		r.source = s
		r.mediaSize = mediaSize
	}
}

// NewFileDeviceReader builds a reader with the tool's defaults: 512-byte
// sectors, 2 retries, 64-sector error granularity, wipe-on-error enabled.
func NewFileDeviceReader(opts ...Option) *FileDeviceReader {
	r := &FileDeviceReader{
		bytesPerSector:     512,
		mediaType:          "fixed",
		errs:               newErrorList(),
		retry:              NewRetryPolicy(),
		wipeOnError:        true,
		granularitySectors: 64,
		logger:             zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open opens paths as one contiguous device. If a source was already
// injected via WithSource, Open is a no-op, so tests and resume/verify
// paths can reuse this Reader implementation without a real file set.
func (r *FileDeviceReader) Open(paths []string) error {
	if r.source != nil {
		return nil
	}
	if len(paths) == 0 {
		return ewferrors.New(ewferrors.KindInvalidPath, "deviceio.Open", "no paths given")
	}

	files := make([]*os.File, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			for _, opened := range files {
				opened.Close()
			}
			switch {
			case os.IsNotExist(err):
				return ewferrors.Wrap(ewferrors.KindNotFound, "deviceio.Open", err)
			case os.IsPermission(err):
				return ewferrors.Wrap(ewferrors.KindPermissionDenied, "deviceio.Open", err)
			default:
				return ewferrors.Wrap(ewferrors.KindInvalidPath, "deviceio.Open", err)
			}
		}
		files = append(files, f)
	}

	readerAts := make([]fileReaderAt, len(files))
	for i, f := range files {
		readerAts[i] = f
	}
	source, err := newMultiFileSource(readerAts)
	if err != nil {
		for _, f := range files {
			f.Close()
		}
		return ewferrors.Wrap(ewferrors.KindInvalidPath, "deviceio.Open", err)
	}

	r.files = files
	r.source = source
	if r.mediaSize == 0 {
		r.mediaSize = uint64(source.Size())
	}

	if sectorSize, size, ok := queryBlockDeviceGeometry(files[0]); ok {
		r.bytesPerSector = sectorSize
		if len(files) == 1 {
			r.mediaSize = size
		}
	}

	return nil
}

func (r *FileDeviceReader) MediaSize() uint64      { return r.mediaSize }
func (r *FileDeviceReader) BytesPerSector() uint32 { return r.bytesPerSector }
func (r *FileDeviceReader) MediaType() string      { return r.mediaType }

// Seek moves the logical read position; offsets must land on a sector
// boundary.
func (r *FileDeviceReader) Seek(offset uint64, whence int) (uint64, error) {
	var newOffset uint64
	switch whence {
	case SeekStart:
		newOffset = offset
	case SeekCurrent:
		newOffset = r.offset + offset
	case SeekEnd:
		newOffset = r.mediaSize + offset
	default:
		return 0, ewferrors.New(ewferrors.KindInvalidArgument, "deviceio.Seek", "invalid whence")
	}
	if r.bytesPerSector > 0 && newOffset%uint64(r.bytesPerSector) != 0 {
		return 0, ewferrors.New(ewferrors.KindOffsetOutOfRange, "deviceio.Seek", "offset not sector-aligned")
	}
	if newOffset > r.mediaSize {
		return 0, ewferrors.New(ewferrors.KindOffsetOutOfRange, "deviceio.Seek", "offset beyond media")
	}
	r.offset = newOffset
	return r.offset, nil
}

// Read attempts to fill buf, applying the retry/wipe recovery algorithm on
// any unrecoverable sector failure. It always returns a full, zero-padded
// buffer on success: a wiped region is recorded in ReadErrors, not surfaced
// as an error from Read itself.
func (r *FileDeviceReader) Read(buf []byte) (int, error) {
	if r.aborted.Load() {
		return 0, ewferrors.New(ewferrors.KindAborted, "deviceio.Read", "read aborted")
	}

	want := len(buf)
	k := 0
	startOffset := r.offset

	granularity := int(r.granularitySectors) * int(r.bytesPerSector)
	if granularity <= 0 {
		granularity = int(r.bytesPerSector)
	}
	if granularity <= 0 {
		granularity = 512
	}

	for k < want {
		n, err := r.readAtWithRetry(buf[k:], int64(startOffset)+int64(k))
		k += n
		if err == nil {
			continue
		}
		if isDeviceLost(err) {
			r.offset = startOffset + uint64(k)
			return k, ewferrors.Wrap(ewferrors.KindDeviceLost, "deviceio.Read", err)
		}

		// Unrecoverable at byte offset k within this chunk: compute the
		// granularity window and wipe it, or (when wipe_on_error is off)
		// just the remainder of the window from k.
		granularityOffset := (k / granularity) * granularity
		wipeStart, wipeEnd := k, k+(granularity-k%granularity)
		if r.wipeOnError {
			wipeStart, wipeEnd = granularityOffset, granularityOffset+granularity
		}
		if wipeEnd > want {
			wipeEnd = want
		}
		for i := wipeStart; i < wipeEnd; i++ {
			buf[i] = 0
		}

		sectorStart := (startOffset + uint64(wipeStart)) / uint64(r.bytesPerSector)
		sectorCount := uint32((wipeEnd - wipeStart) / int(r.bytesPerSector))
		if sectorCount == 0 {
			sectorCount = 1
		}
		r.errs.add(sectorStart, sectorCount)
		r.logger.Warn("sector read unrecoverable, wiped",
			zap.Uint64("startSector", sectorStart),
			zap.Uint32("sectorCount", sectorCount))
		if r.onWipe != nil {
			r.onWipe(r.granularitySectors)
		}

		k = wipeEnd
	}

	r.offset = startOffset + uint64(k)
	return k, nil
}

// readAtWithRetry reads p at off, retrying up to the policy's maxAttempts
// on transient failure. It returns the number of leading bytes of p that
// are valid even on final failure, so the caller knows exactly where the
// unrecoverable byte offset k falls.
func (r *FileDeviceReader) readAtWithRetry(p []byte, off int64) (int, error) {
	var n int
	var err error
	for attempt := 0; attempt <= r.retry.maxAttempts; attempt++ {
		n, err = r.source.ReadAt(p, off)
		if err == nil {
			return n, nil
		}
		if isDeviceLost(err) {
			return n, err
		}
		if attempt < r.retry.maxAttempts {
			r.retry.beforeRetry(attempt, err)
		}
	}
	return n, err
}

func (r *FileDeviceReader) ReadErrors() []ReadError {
	return r.errs.snapshot()
}

func (r *FileDeviceReader) SignalAbort() {
	r.aborted.Store(true)
}

func (r *FileDeviceReader) Close() error {
	var firstErr error
	for _, f := range r.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func isDeviceLost(err error) bool {
	if errors.Is(err, ErrDeviceVanished) {
		return true
	}
	return isPlatformDeviceLost(err)
}
