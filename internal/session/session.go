// Package session implements the parameter validation, defaulting and
// wiring that turns a set of raw CLI-ish parameters into a ready-to-run
// acquire.Pipeline or verify.Pipeline.
package session

import (
	"go.uber.org/zap"

	"github.com/libyal/ewfkit/internal/archive"
	"github.com/libyal/ewfkit/internal/deviceio"
	"github.com/libyal/ewfkit/internal/digest"
	"github.com/libyal/ewfkit/internal/ewferrors"
)

// defaultSegmentSize is used whenever the requested segment size falls
// below the floor for the chosen format.
const defaultSegmentSize = 1503238553 // "1.4 GiB"

const defaultErrorGranularitySectors = 64

// Geometry is the immutable-per-session sector and chunk geometry.
type Geometry struct {
	BytesPerSector          uint32
	SectorsPerChunk         uint32
	ErrorGranularitySectors uint32
}

// ChunkSize is bytes_per_sector * sectors_per_chunk.
func (g Geometry) ChunkSize() uint32 { return g.BytesPerSector * g.SectorsPerChunk }

// CaseMetadata is the optional, digest-independent case information.
// Examiner and evidence number are independent fields, never swapped.
type CaseMetadata struct {
	CaseNumber     string
	Description    string
	EvidenceNumber string
	Examiner       string
	Notes          string
}

// Params is the full, pre-validation parameter set a CLI front-end
// assembles from flags and config defaults.
type Params struct {
	TargetStem          string
	SecondaryStem       string // empty means no mirror
	Resume              bool
	AcquiryOffset        uint64
	AcquirySize          uint64
	Geometry             Geometry
	MediaSize            uint64
	MediaType            string
	Profile              archive.Profile
	SwapBytePairs        bool
	WipeOnError          bool
	MaxRetries           int
	Digests              []digest.Algorithm
	ZeroOnChecksumError  bool
	Case                 CaseMetadata
}

// Validated is Params after the validation-and-defaulting pass.
type Validated struct {
	Params
	ResumeOffset uint64
}

// Validate applies the session validation rules in order, returning the
// first violation as an ewferrors.Error, or a Validated set of parameters
// ready to build a pipeline.
func Validate(p Params) (Validated, error) {
	v := Validated{Params: p}

	if v.AcquirySize == 0 || v.AcquirySize > v.MediaSize-v.AcquiryOffset {
		v.AcquirySize = v.MediaSize - v.AcquiryOffset
	}
	if v.AcquiryOffset+v.AcquirySize > v.MediaSize {
		return Validated{}, ewferrors.New(ewferrors.KindOffsetOutOfRange, "session.Validate", "acquiry_offset+acquiry_size exceeds media_size")
	}

	if err := validateSegmentSize(&v); err != nil {
		return Validated{}, err
	}

	switch {
	case v.Geometry.ErrorGranularitySectors == 0:
		v.Geometry.ErrorGranularitySectors = defaultErrorGranularitySectors
	case v.Geometry.ErrorGranularitySectors > v.Geometry.SectorsPerChunk:
		// Rejected outright as SizeOutOfBounds rather than silently clamped:
		// a granularity wider than the chunk it's meant to subdivide can
		// never produce a meaningful wipe window. A CLI front-end may
		// choose to downgrade this to a warning and retry with the default
		// before surfacing it to the user.
		return Validated{}, ewferrors.New(ewferrors.KindSizeOutOfBounds, "session.Validate", "error_granularity_sectors exceeds sectors_per_chunk")
	}

	v.Profile.ChunkSize = v.Geometry.ChunkSize()
	v.Profile.BytesPerSector = v.Geometry.BytesPerSector

	return v, nil
}

// validateSegmentSize enforces the per-format segment-size bounds. A value
// below the 1 MiB floor (including zero/unset) is a soft default: the tool
// substitutes default_segment_size and the CLI front-end may warn. A value
// at or above the format's hard ceiling is rejected outright with
// SizeOutOfBounds before any I/O is attempted.
func validateSegmentSize(v *Validated) error {
	const oneMiB = 1 << 20
	const twoGiB = 1 << 31
	const eightEiB = 1<<63 - 1 // i64::MAX, the ceiling for wide formats

	wide := v.Profile.Format == archive.FormatEncase6 || v.Profile.Format == archive.FormatEwfX

	ceiling := uint64(twoGiB)
	if wide {
		ceiling = uint64(eightEiB)
	}

	if v.Profile.SegmentSizeMax >= ceiling {
		return ewferrors.New(ewferrors.KindSizeOutOfBounds, "session.validateSegmentSize", "segment_size_max exceeds the format's ceiling")
	}
	if v.Profile.SegmentSizeMax < oneMiB {
		v.Profile.SegmentSizeMax = defaultSegmentSize
	}

	const twoTiB = 2 << 40
	if v.AcquirySize > twoTiB && !wide {
		return ewferrors.New(ewferrors.KindSizeOutOfBounds, "session.validateSegmentSize", "acquiry_size exceeds 2 TiB; only encase6 or ewfx support that")
	}
	return nil
}

// OpenForAcquire validates params, opens the backend(s) (the device is
// opened by the caller and is not used here), and returns
// everything an acquire.Pipeline needs, including the resume offset
// negotiated with the backend (which may differ from the caller's naive
// expectation).
func OpenForAcquire(p Params, device deviceio.Reader, backend archive.Backend, mirror archive.Backend, logger *zap.Logger) (Validated, uint64, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	v, err := Validate(p)
	if err != nil {
		return Validated{}, 0, err
	}

	resumeOffset, err := backend.OpenWrite(v.TargetStem, v.Profile, v.Resume)
	if err != nil {
		return Validated{}, 0, err
	}
	if mirror != nil {
		mirrorOffset, err := mirror.OpenWrite(v.SecondaryStem, v.Profile, v.Resume)
		if err != nil {
			return Validated{}, 0, err
		}
		if mirrorOffset != resumeOffset {
			return Validated{}, 0, ewferrors.New(ewferrors.KindMismatchedProfile, "session.OpenForAcquire", "primary and secondary targets disagree on resume offset")
		}
	}

	if v.Resume && resumeOffset > v.AcquirySize {
		return Validated{}, 0, ewferrors.New(ewferrors.KindOffsetOutOfRange, "session.OpenForAcquire", "archive resume_offset exceeds requested acquiry_size")
	}

	v.ResumeOffset = resumeOffset
	return v, resumeOffset, nil
}
