package archive

import (
	"fmt"

	"github.com/libyal/ewfkit/internal/ewferrors"
)

// segmentFamily returns the one-letter-plus-case family a format's segment
// extensions are built from.
func segmentFamily(f Format) string {
	switch f {
	case FormatSmart:
		return "s"
	case FormatEwf, FormatEwfX:
		return "e"
	default:
		return "E"
	}
}

// maxSequentialSegments is the highest segment index this package numbers
// with the plain two-digit scheme ("E01".."E99"). The historical EWF tools
// continue numbering past 99 with a letter sequence ("EAA", "EAB", ...);
// that extended scheme has no bearing on any of this package's contracts
// (resume, finalize, read) and is out of scope here -- exceeding it is
// reported as SizeOutOfBounds rather than silently wrapping.
const maxSequentialSegments = 99

// SegmentExtension returns the on-disk extension for the 1-indexed segment
// number within an archive of the given format.
func SegmentExtension(f Format, index int) (string, error) {
	if index < 1 || index > maxSequentialSegments {
		return "", ewferrors.New(ewferrors.KindSizeOutOfBounds, "archive.SegmentExtension",
			fmt.Sprintf("segment index %d out of the supported 1-%d range", index, maxSequentialSegments))
	}
	return fmt.Sprintf("%s%02d", segmentFamily(f), index), nil
}

// SegmentPath joins a target stem with the segment extension for index.
func SegmentPath(stem string, f Format, index int) (string, error) {
	ext, err := SegmentExtension(f, index)
	if err != nil {
		return "", err
	}
	return stem + "." + ext, nil
}
