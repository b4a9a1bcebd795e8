// Command ewfacquire streams a source device or file into a segmented,
// checksummed archive.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/libyal/ewfkit/internal/acquire"
	"github.com/libyal/ewfkit/internal/archive"
	"github.com/libyal/ewfkit/internal/config"
	"github.com/libyal/ewfkit/internal/deviceio"
	"github.com/libyal/ewfkit/internal/digest"
	"github.com/libyal/ewfkit/internal/ewferrors"
	"github.com/libyal/ewfkit/internal/logging"
	"github.com/libyal/ewfkit/internal/metrics"
	"github.com/libyal/ewfkit/internal/progress"
	"github.com/libyal/ewfkit/internal/session"
	"github.com/libyal/ewfkit/internal/sizestring"
	"github.com/libyal/ewfkit/internal/statusserver"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("ewfacquire", flag.ContinueOnError)

	sectorsPerChunk := fs.Uint("b", 64, "sectors per chunk")
	acquirySize := fs.String("B", "0", "bytes to acquire (0 = all)")
	compression := fs.String("c", "none", "compression: none, fast, best")
	caseNumber := fs.String("C", "", "case number")
	description := fs.String("D", "", "description")
	evidenceNumber := fs.String("E", "", "evidence number")
	examiner := fs.String("e", "", "examiner")
	notes := fs.String("N", "", "notes")
	digests := fs.String("d", "", "additional digests: sha1,sha256 (comma-separated)")
	formatName := fs.String("f", "encase6", "acquisition format")
	granularity := fs.Uint("g", 64, "sector error granularity")
	mediaType := fs.String("m", "fixed", "media type: fixed, removable, optical, memory")
	offset := fs.String("o", "0", "acquire offset")
	bytesPerSector := fs.Uint("P", 0, "bytes per sector override")
	quiet := fs.Bool("q", false, "quiet: suppress progress ticks")
	retries := fs.Uint("r", 2, "read retries (0-255)")
	resume := fs.Bool("R", false, "resume")
	swap := fs.Bool("s", false, "swap byte pairs")
	segmentSize := fs.String("S", "1.4 GiB", "segment file size")
	targetStem := fs.String("t", "", "target stem")
	secondaryStem := fs.String("2", "", "secondary target stem (mirror)")
	secondaryS3Bucket := fs.String("2-s3-bucket", "", "mirror to this S3 bucket instead of a local stem")
	secondaryS3Prefix := fs.String("2-s3-prefix", "", "key prefix within -2-s3-bucket")
	wipe := fs.Bool("w", false, "wipe sectors on read error")
	configPath := fs.String("config", "", "optional YAML defaults file")
	statusAddr := fs.String("status-addr", "", "optional status HTTP listen address")
	metricsAddr := fs.String("metrics-addr", "", "optional Prometheus metrics listen address")

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: ewfacquire [flags] <device-or-file>...")
		fs.PrintDefaults()
		return 1
	}

	logCfg := logging.Config{Quiet: *quiet}
	logger, err := logging.New(logCfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer logger.Sync() //nolint:errcheck

	defaults, err := config.Load(*configPath)
	if err != nil {
		logger.Error("loading config", zap.Error(err))
		return 1
	}

	params, err := buildParams(acquireFlags{
		sectorsPerChunk: uint32(*sectorsPerChunk),
		acquirySize:     *acquirySize,
		compression:     *compression,
		caseNumber:      *caseNumber,
		description:     *description,
		evidenceNumber:  *evidenceNumber,
		examiner:        *examiner,
		notes:           *notes,
		digests:         *digests,
		format:          *formatName,
		granularity:     uint32(*granularity),
		mediaType:       *mediaType,
		offset:          *offset,
		bytesPerSector:  uint32(*bytesPerSector),
		retries:         int(*retries),
		resume:          *resume,
		swap:            *swap,
		segmentSize:     *segmentSize,
		targetStem:      *targetStem,
		secondaryStem:   *secondaryStem,
		wipe:            *wipe,
	}, defaults)
	if err != nil {
		logger.Error("invalid parameters", zap.Error(err))
		return 1
	}

	collector := metrics.NewCollector()
	collector.SessionStarted()

	device := deviceio.NewFileDeviceReader(
		deviceio.WithBytesPerSector(params.Geometry.BytesPerSector),
		deviceio.WithMediaType(params.MediaType),
		deviceio.WithWipeOnError(params.WipeOnError),
		deviceio.WithErrorGranularitySectors(params.Geometry.ErrorGranularitySectors),
		deviceio.WithRetryPolicy(deviceio.NewRetryPolicy(
			deviceio.WithMaxRetries(params.MaxRetries),
			deviceio.WithRetryLogger(logger),
			deviceio.WithRetryObserver(collector.RecordRetry),
		)),
		deviceio.WithDeviceLogger(logger),
		deviceio.WithWipeObserver(func(granularitySectors uint32) {
			collector.RecordWipe(fmt.Sprintf("%d", granularitySectors))
		}),
	)
	if err := device.Open(fs.Args()); err != nil {
		logger.Error("opening device", zap.Error(err))
		collector.SessionEnded("acquire", "failed")
		return 1
	}
	defer device.Close() //nolint:errcheck

	if params.MediaSize == 0 {
		params.MediaSize = device.MediaSize()
	}

	backend := archive.NewLocalSegmentBackend(logger)
	var mirror archive.Backend
	switch {
	case *secondaryS3Bucket != "":
		stagingDir := params.SecondaryStem
		if stagingDir == "" {
			stagingDir = filepath.Join(os.TempDir(), "ewfacquire-s3-mirror")
		}
		if err := os.MkdirAll(stagingDir, 0o755); err != nil {
			logger.Error("preparing S3 mirror staging dir", zap.Error(err))
			collector.SessionEnded("acquire", "failed")
			return 1
		}
		s3Mirror, err := archive.NewS3MirrorBackend(context.Background(), *secondaryS3Bucket, *secondaryS3Prefix, stagingDir, logger)
		if err != nil {
			logger.Error("opening S3 mirror", zap.Error(err))
			collector.SessionEnded("acquire", "failed")
			return 1
		}
		mirror = s3Mirror
	case params.SecondaryStem != "":
		mirror = archive.NewLocalSegmentBackend(logger)
	}

	validated, resumeOffset, err := session.OpenForAcquire(params, device, backend, mirror, logger)
	if err != nil {
		logger.Error("opening session", zap.Error(err))
		collector.SessionEnded("acquire", "failed")
		return 1
	}
	defer backend.Close() //nolint:errcheck
	if mirror != nil {
		defer mirror.Close() //nolint:errcheck
	}

	digestAlgos := []digest.Algorithm{digest.MD5}
	digestAlgos = append(digestAlgos, validated.Digests...)
	stream, err := digest.NewStream(digestAlgos...)
	if err != nil {
		logger.Error("building digest stream", zap.Error(err))
		return 1
	}

	var statusSrv *statusserver.Server
	if statusAddr != nil && *statusAddr != "" {
		statusSrv = statusserver.New(*statusAddr, "acquire", logger)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go statusSrv.ListenAndServe(ctx) //nolint:errcheck
	}
	if metricsAddr != nil && *metricsAddr != "" {
		metricsSrv := &http.Server{Addr: *metricsAddr, Handler: collector.Handler()}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("metrics listener stopped", zap.Error(err))
			}
		}()
		defer metricsSrv.Close() //nolint:errcheck
	}

	reporterOpts := []progress.Option{}
	if statusSrv != nil {
		reporterOpts = append(reporterOpts, progress.WithSink(statusSrv.Sink()))
	}
	reporter := progress.New(true, validated.AcquirySize, reporterOpts...)

	pipeline := &acquire.Pipeline{
		Device:        device,
		Backend:       backend,
		Mirror:        mirror,
		Digests:       stream,
		ChunkSize:     validated.Profile.ChunkSize,
		AcquirySize:   validated.AcquirySize,
		ResumeOffset:  resumeOffset,
		SwapBytePairs: validated.SwapBytePairs,
		Reporter:      reporter,
		Logger:        logger,
		Metrics:       collector,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Warn("signal received, aborting acquisition")
		pipeline.SignalAbort()
	}()

	result, err := pipeline.Run(nil)
	if err != nil {
		if ewferrors.IsAborted(err) {
			logger.Warn("acquisition aborted", zap.Uint64("bytes_written", result.BytesWritten))
			collector.SessionEnded("acquire", "aborted")
			return 1
		}
		logger.Error("acquisition failed", zap.Error(err), zap.Uint64("bytes_written", result.BytesWritten))
		collector.SessionEnded("acquire", "failed")
		return 1
	}

	logger.Info("acquisition completed",
		zap.Uint64("bytes_written", result.BytesWritten),
		zap.Uint64("chunks_written", result.ChunksWritten),
		logging.SessionFields("", params.Case.CaseNumber, params.Case.EvidenceNumber)[0])
	collector.SessionEnded("acquire", "completed")
	return 0
}

type acquireFlags struct {
	sectorsPerChunk uint32
	acquirySize     string
	compression     string
	caseNumber      string
	description     string
	evidenceNumber  string
	examiner        string
	notes           string
	digests         string
	format          string
	granularity     uint32
	mediaType       string
	offset          string
	bytesPerSector  uint32
	retries         int
	resume          bool
	swap            bool
	segmentSize     string
	targetStem      string
	secondaryStem   string
	wipe            bool
}

func buildParams(f acquireFlags, defaults *config.Defaults) (session.Params, error) {
	acquirySize, err := sizestring.Parse(f.acquirySize, '.')
	if err != nil {
		return session.Params{}, err
	}
	offset, err := sizestring.Parse(f.offset, '.')
	if err != nil {
		return session.Params{}, err
	}
	segmentSize, err := sizestring.Parse(f.segmentSize, '.')
	if err != nil {
		return session.Params{}, err
	}

	format, err := parseFormat(f.format)
	if err != nil {
		return session.Params{}, err
	}
	level, err := parseCompression(f.compression)
	if err != nil {
		return session.Params{}, err
	}

	var algos []digest.Algorithm
	for _, name := range strings.Split(f.digests, ",") {
		name = strings.TrimSpace(name)
		switch name {
		case "sha1":
			algos = append(algos, digest.SHA1)
		case "sha256":
			algos = append(algos, digest.SHA256)
		case "":
		default:
			return session.Params{}, ewferrors.New(ewferrors.KindInvalidArgument, "ewfacquire.buildParams", "unknown digest: "+name)
		}
	}

	bytesPerSector := f.bytesPerSector
	if bytesPerSector == 0 {
		bytesPerSector = defaults.Geometry.BytesPerSector
	}

	return session.Params{
		TargetStem:    f.targetStem,
		SecondaryStem: f.secondaryStem,
		Resume:        f.resume,
		AcquiryOffset: offset,
		AcquirySize:   acquirySize,
		Geometry: session.Geometry{
			BytesPerSector:          bytesPerSector,
			SectorsPerChunk:         f.sectorsPerChunk,
			ErrorGranularitySectors: f.granularity,
		},
		MediaType: f.mediaType,
		Profile: archive.Profile{
			Format:             format,
			CompressionLevel:   level,
			CompressEmptyBlock: f.compression == "empty-block",
			SegmentSizeMax:     segmentSize,
		},
		SwapBytePairs: f.swap,
		WipeOnError:   f.wipe,
		MaxRetries:    f.retries,
		Digests:       algos,
		Case: session.CaseMetadata{
			CaseNumber:     f.caseNumber,
			Description:    f.description,
			EvidenceNumber: f.evidenceNumber,
			Examiner:       f.examiner,
			Notes:          f.notes,
		},
	}, nil
}

func parseFormat(s string) (archive.Format, error) {
	switch s {
	case "ewf":
		return archive.FormatEwf, nil
	case "ewfx":
		return archive.FormatEwfX, nil
	case "smart":
		return archive.FormatSmart, nil
	case "ftk":
		return archive.FormatFtk, nil
	case "encase1":
		return archive.FormatEncase1, nil
	case "encase2":
		return archive.FormatEncase2, nil
	case "encase3":
		return archive.FormatEncase3, nil
	case "encase4":
		return archive.FormatEncase4, nil
	case "encase5":
		return archive.FormatEncase5, nil
	case "encase6":
		return archive.FormatEncase6, nil
	case "linen5":
		return archive.FormatLinen5, nil
	case "linen6":
		return archive.FormatLinen6, nil
	default:
		return "", ewferrors.New(ewferrors.KindUnsupportedFormat, "ewfacquire.parseFormat", "unknown format: "+s)
	}
}

func parseCompression(s string) (archive.CompressionLevel, error) {
	switch s {
	case "none", "empty-block":
		return archive.CompressionNone, nil
	case "fast":
		return archive.CompressionFast, nil
	case "best":
		return archive.CompressionBest, nil
	default:
		return "", ewferrors.New(ewferrors.KindUnsupportedFormat, "ewfacquire.parseCompression", "unknown compression: "+s)
	}
}
