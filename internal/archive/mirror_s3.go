package archive

import (
	"context"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/libyal/ewfkit/internal/ewferrors"
	"github.com/libyal/ewfkit/internal/mediabuffer"
)

// S3Client is the subset of *s3.Client this package calls, so tests can
// substitute a fake without standing up real AWS infrastructure.
type S3Client interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

var _ Backend = (*S3MirrorBackend)(nil)

// S3MirrorBackend is a secondary/mirror acquisition target: it writes
// through a LocalSegmentBackend staged under a temporary directory, then
// uploads each finished segment object-for-object to S3. Read paths are not
// used in practice (verification reads the primary), but OpenRead is
// implemented for symmetry and tests by downloading every object first.
//
// The mirror is best-effort in the sense that no cross-target transaction
// is attempted, but a write failure on this target still aborts the whole
// acquisition, so failures are surfaced, never swallowed.
type S3MirrorBackend struct {
	local *LocalSegmentBackend

	client S3Client
	bucket string
	prefix string

	stagingDir string
	logger     *zap.Logger
}

// NewS3MirrorBackend builds a mirror backend uploading to bucket/prefix.
// stagingDir holds the local segment files while a session is open; the
// caller owns its lifetime (typically a temp dir removed after Close).
func NewS3MirrorBackend(ctx context.Context, bucket, prefix, stagingDir string, logger *zap.Logger) (*S3MirrorBackend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, ewferrors.Wrap(ewferrors.KindInvalidArgument, "archive.NewS3MirrorBackend", err)
	}
	return &S3MirrorBackend{
		local:      NewLocalSegmentBackend(logger),
		client:     s3.NewFromConfig(cfg),
		bucket:     bucket,
		prefix:     prefix,
		stagingDir: stagingDir,
		logger:     logger,
	}, nil
}

// NewS3MirrorBackendWithClient builds a mirror backend against an
// already-constructed S3Client, for tests and callers that manage their own
// AWS session.
func NewS3MirrorBackendWithClient(client S3Client, bucket, prefix, stagingDir string, logger *zap.Logger) *S3MirrorBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &S3MirrorBackend{
		local:      NewLocalSegmentBackend(logger),
		client:     client,
		bucket:     bucket,
		prefix:     prefix,
		stagingDir: stagingDir,
		logger:     logger,
	}
}

func (m *S3MirrorBackend) OpenWrite(targetStem string, profile Profile, resume bool) (uint64, error) {
	stagedStem := filepath.Join(m.stagingDir, filepath.Base(targetStem))
	if resume {
		if err := m.downloadExisting(stagedStem, profile.Format); err != nil {
			return 0, err
		}
	}
	return m.local.OpenWrite(stagedStem, profile, resume)
}

func (m *S3MirrorBackend) OpenRead(segmentPaths []string) error {
	var staged []string
	for _, p := range segmentPaths {
		local := filepath.Join(m.stagingDir, filepath.Base(p))
		if err := m.downloadObject(m.objectKey(filepath.Base(p)), local); err != nil {
			return err
		}
		staged = append(staged, local)
	}
	return m.local.OpenRead(staged)
}

func (m *S3MirrorBackend) ChunkSize() uint32      { return m.local.ChunkSize() }
func (m *S3MirrorBackend) BytesPerSector() uint32 { return m.local.BytesPerSector() }

func (m *S3MirrorBackend) WriteChunk(buf *mediabuffer.Buffer) error {
	priorSegments := len(m.local.segmentPaths)
	if err := m.local.WriteChunk(buf); err != nil {
		return err
	}
	if len(m.local.segmentPaths) > priorSegments {
		// A rollover happened inside WriteChunk: the segment that was
		// current before this call is now complete and can be uploaded.
		return m.uploadSegment(m.local.segmentPaths[priorSegments-1])
	}
	return nil
}

func (m *S3MirrorBackend) ReadChunk(buf *mediabuffer.Buffer, index uint64, zeroOnChecksumError bool) (bool, error) {
	return m.local.ReadChunk(buf, index, zeroOnChecksumError)
}

func (m *S3MirrorBackend) AppendChecksumError(startSector uint64, sectorCount uint32) {
	m.local.AppendChecksumError(startSector, sectorCount)
}

func (m *S3MirrorBackend) StoredChecksumErrors() []ChecksumError { return m.local.StoredChecksumErrors() }

func (m *S3MirrorBackend) Finalize(globalHashes map[string]string) error {
	if err := m.local.Finalize(globalHashes); err != nil {
		return err
	}
	if len(m.local.segmentPaths) == 0 {
		return nil
	}
	return m.uploadSegment(m.local.segmentPaths[len(m.local.segmentPaths)-1])
}

func (m *S3MirrorBackend) StoredHashes() map[string]string  { return m.local.StoredHashes() }
func (m *S3MirrorBackend) SegmentFilesCorrupted() bool      { return m.local.SegmentFilesCorrupted() }

func (m *S3MirrorBackend) FilenameForOffset(offset uint64) (string, bool) {
	path, ok := m.local.FilenameForOffset(offset)
	if !ok {
		return "", false
	}
	return m.objectKey(filepath.Base(path)), true
}

func (m *S3MirrorBackend) Close() error { return m.local.Close() }

func (m *S3MirrorBackend) objectKey(name string) string {
	if m.prefix == "" {
		return name
	}
	return m.prefix + "/" + name
}

func (m *S3MirrorBackend) uploadSegment(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return ewferrors.Wrap(ewferrors.KindWriteFailed, "archive.S3MirrorBackend.uploadSegment", err)
	}
	defer f.Close()

	ctx := context.Background()
	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(m.bucket),
		Key:          aws.String(m.objectKey(filepath.Base(path))),
		Body:         f,
		StorageClass: types.StorageClassStandard,
	})
	if err != nil {
		return ewferrors.Wrap(ewferrors.KindWriteFailed, "archive.S3MirrorBackend.uploadSegment", err)
	}
	m.logger.Debug("uploaded mirror segment", zap.String("path", path), zap.String("bucket", m.bucket))
	return nil
}

func (m *S3MirrorBackend) downloadObject(key, destPath string) error {
	getter, ok := m.client.(interface {
		GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	})
	if !ok {
		return ewferrors.New(ewferrors.KindUnsupportedFormat, "archive.S3MirrorBackend.downloadObject", "client does not support GetObject")
	}
	out, err := getter.GetObject(context.Background(), &s3.GetObjectInput{Bucket: aws.String(m.bucket), Key: aws.String(key)})
	if err != nil {
		return ewferrors.Wrap(ewferrors.KindReadFailed, "archive.S3MirrorBackend.downloadObject", err)
	}
	defer out.Body.Close()

	f, err := os.Create(destPath)
	if err != nil {
		return ewferrors.Wrap(ewferrors.KindWriteFailed, "archive.S3MirrorBackend.downloadObject", err)
	}
	defer f.Close()

	buf := make([]byte, 32*1024)
	for {
		n, readErr := out.Body.Read(buf)
		if n > 0 {
			if _, writeErr := f.Write(buf[:n]); writeErr != nil {
				return ewferrors.Wrap(ewferrors.KindWriteFailed, "archive.S3MirrorBackend.downloadObject", writeErr)
			}
		}
		if readErr != nil {
			break
		}
	}
	return nil
}

// downloadExisting repopulates the staging directory from S3 before a
// resume, mirroring discoverSegments' sequential-numbering scan.
func (m *S3MirrorBackend) downloadExisting(stagedStem string, format Format) error {
	for i := 1; i <= maxSequentialSegments; i++ {
		path, err := SegmentPath(stagedStem, format, i)
		if err != nil {
			return err
		}
		key := m.objectKey(filepath.Base(path))
		if err := m.downloadObject(key, path); err != nil {
			break // no more segments in S3; what's staged so far is the full set
		}
	}
	return nil
}
