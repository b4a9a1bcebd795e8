package deviceio

import (
	"io"
	"os"
)

// multiFileSource presents a set of files as one contiguous block source,
// for the case where several files act as one device.
type multiFileSource struct {
	files   []fileReaderAt
	offsets []int64 // cumulative start offset of each file
	size    int64
}

// fileReaderAt is the slice of *os.File this package depends on, narrowed
// so tests can substitute an in-memory stand-in without opening real files.
type fileReaderAt interface {
	ReadAt(p []byte, off int64) (int, error)
	Stat() (os.FileInfo, error)
}

func newMultiFileSource(files []fileReaderAt) (*multiFileSource, error) {
	offsets := make([]int64, len(files))
	var cum int64
	for i, f := range files {
		info, err := f.Stat()
		if err != nil {
			return nil, err
		}
		offsets[i] = cum
		cum += info.Size()
	}
	return &multiFileSource{files: files, offsets: offsets, size: cum}, nil
}

func (s *multiFileSource) Size() int64 { return s.size }

func (s *multiFileSource) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= s.size {
		return 0, io.EOF
	}

	total := 0
	for total < len(p) {
		idx := s.fileIndexFor(off + int64(total))
		if idx < 0 {
			break
		}

		fileStart := s.offsets[idx]
		localOff := off + int64(total) - fileStart

		fileEnd := s.size
		if idx+1 < len(s.offsets) {
			fileEnd = s.offsets[idx+1]
		}

		want := len(p) - total
		if maxLocal := fileEnd - fileStart - localOff; int64(want) > maxLocal {
			want = int(maxLocal)
		}
		if want <= 0 {
			break
		}

		n, err := s.files[idx].ReadAt(p[total:total+want], localOff)
		total += n
		if err != nil && err != io.EOF {
			return total, err
		}
		if n < want {
			return total, io.ErrUnexpectedEOF
		}
	}

	if total < len(p) {
		return total, io.EOF
	}
	return total, nil
}

func (s *multiFileSource) fileIndexFor(off int64) int {
	for i := len(s.offsets) - 1; i >= 0; i-- {
		if off >= s.offsets[i] {
			return i
		}
	}
	return -1
}
