// Package progress implements the rate-limited progress reporter shared by
// the acquisition and verification pipelines.
package progress

import (
	"time"

	"golang.org/x/time/rate"
)

// Status is the terminal state of a pipeline run.
type Status int

const (
	StatusRunning Status = iota
	StatusCompleted
	StatusAborted
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusAborted:
		return "aborted"
	case StatusFailed:
		return "failed"
	default:
		return "running"
	}
}

// unknownTotalByteStep and unknownTotalTimeStep are the two thresholds that
// gate a tick when the total size isn't known.
const (
	unknownTotalByteStep = 10 * 1024 * 1024
	unknownTotalTimeStep = 30 * time.Second
)

// Tick is one rendered progress snapshot.
type Tick struct {
	BytesRead      uint64
	TotalKnown     bool
	TotalBytes     uint64
	Percent        int // only meaningful if TotalKnown
	ThroughputBps  float64
	ElapsedSeconds float64
	ETASeconds     float64 // only meaningful if TotalKnown; -1 otherwise
	Status         Status
}

// Reporter decides when to emit a Tick and renders it, following a
// percent-change (known total) or byte/time-step (unknown total) rule. A
// golang.org/x/time/rate.Limiter backstops the decision logic so a
// pathologically chatty caller (e.g. many small chunks) can never drive
// ticks faster than a sane wall-clock ceiling, independent of the
// percent/byte-delta rule below.
type Reporter struct {
	startedAt     time.Time
	lastTickAt    time.Time
	lastPercent   int
	lastBytesRead uint64
	totalKnown    bool
	totalBytes    uint64

	ceiling *rate.Limiter

	sink func(Tick)
}

// Option configures a Reporter at construction.
type Option func(*Reporter)

// WithSink registers a callback invoked for every emitted tick. Without one,
// ticks are computed but not delivered anywhere -- callers that only need
// the final report (e.g. tests) can omit it.
func WithSink(sink func(Tick)) Option {
	return func(r *Reporter) { r.sink = sink }
}

// WithTickCeiling caps the emission rate regardless of the percent/byte-delta
// rule, defaulting to 20 ticks/second.
func WithTickCeiling(perSecond float64) Option {
	return func(r *Reporter) { r.ceiling = rate.NewLimiter(rate.Limit(perSecond), 1) }
}

// New starts a reporter. totalBytes is ignored (totalKnown=false) when the
// caller doesn't know the final size up front.
func New(totalKnown bool, totalBytes uint64, opts ...Option) *Reporter {
	r := &Reporter{
		startedAt:   time.Now(),
		lastPercent: -1,
		totalKnown:  totalKnown,
		totalBytes:  totalBytes,
		ceiling:     rate.NewLimiter(rate.Limit(20), 1),
	}
	r.lastTickAt = r.startedAt
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Observe reports bytesRead so far and emits a tick if the rate rule fires.
// now is threaded through explicitly so callers (and tests) control time
// rather than this package calling time.Now() on every observation.
func (r *Reporter) Observe(now time.Time, bytesRead uint64) {
	if bytesRead < r.lastBytesRead {
		bytesRead = r.lastBytesRead
	}

	shouldTick := false
	percent := -1
	if r.totalKnown && r.totalBytes > 0 {
		percent = int(bytesRead * 100 / r.totalBytes)
		if percent > r.lastPercent {
			shouldTick = true
		}
	} else {
		if bytesRead-r.lastBytesRead >= unknownTotalByteStep {
			shouldTick = true
		}
		if now.Sub(r.lastTickAt) > unknownTotalTimeStep {
			shouldTick = true
		}
	}

	r.lastBytesRead = bytesRead
	if percent > r.lastPercent {
		r.lastPercent = percent
	}

	if !shouldTick {
		return
	}
	if !r.ceiling.AllowN(now, 1) {
		return
	}
	r.lastTickAt = now
	r.emit(now, bytesRead, StatusRunning)
}

// Finish emits a final tick carrying the terminal status.
func (r *Reporter) Finish(now time.Time, status Status) {
	if r.totalKnown {
		r.lastPercent = 100
	}
	r.emit(now, r.lastBytesRead, status)
}

func (r *Reporter) emit(now time.Time, bytesRead uint64, status Status) {
	elapsed := now.Sub(r.startedAt).Seconds()
	var throughput float64
	if elapsed > 0 {
		throughput = float64(bytesRead) / elapsed
	}

	eta := -1.0
	percent := r.lastPercent
	if r.totalKnown && percent > 0 {
		eta = elapsed*100/float64(percent) - elapsed
		if eta < 0 {
			eta = 0
		}
	}

	tick := Tick{
		BytesRead:      bytesRead,
		TotalKnown:     r.totalKnown,
		TotalBytes:     r.totalBytes,
		Percent:        percent,
		ThroughputBps:  throughput,
		ElapsedSeconds: elapsed,
		ETASeconds:     eta,
		Status:         status,
	}
	if r.sink != nil {
		r.sink(tick)
	}
}
