package segment

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"meetcap/internal/clock"
	"meetcap/internal/domain"
	"meetcap/internal/metrics"
	"meetcap/internal/ports"
)

const (
	MimeType = "audio/webm;codecs=opus"

	MicBitsPerSecond = 128000
	TabBitsPerSecond = 96000
)

var ErrAlreadyStarted = errors.New("segment recorder already started")

// BitrateFor returns the target bitrate for a source mode. Tab audio uses a
// lower rate to keep segments under the backend upload ceiling.
func BitrateFor(mode domain.SourceMode) int {
	if mode.UsesTab() {
		return TabBitsPerSecond
	}
	return MicBitsPerSecond
}

// Options configures one recording.
type Options struct {
	SessionID     string
	SegmentLength time.Duration
	BitsPerSecond int
	// NextSequence is called once per sealed segment to tag it.
	NextSequence func() int
	// OnError receives the first failed seal of a recording.
	OnError func(error)
}

// Recorder seals a live stream into fixed-length segments.
type Recorder struct {
	encoders ports.EncoderFactory
	clock    clock.Clock
	logger   zerolog.Logger

	mu        sync.Mutex
	encoder   ports.Encoder
	timer     clock.Timer
	opts      Options
	onSegment func(domain.AudioSegment)
	started   bool
	stopped   bool
	failed    bool

	stopOnce sync.Once
	stopErr  error
}

func NewRecorder(encoders ports.EncoderFactory, clk clock.Clock, logger zerolog.Logger) *Recorder {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Recorder{
		encoders: encoders,
		clock:    clk,
		logger:   logger.With().Str("component", "segment-recorder").Logger(),
	}
}

// Start begins encoding stream and sealing a segment every opts.SegmentLength.
// onSegment runs on the sealing goroutine and must hand work off quickly.
func (r *Recorder) Start(stream ports.MediaStream, opts Options, onSegment func(domain.AudioSegment)) error {
	if opts.SegmentLength <= 0 {
		return fmt.Errorf("segment length must be positive, got %s", opts.SegmentLength)
	}
	if opts.NextSequence == nil {
		return errors.New("segment recorder requires a sequence source")
	}
	if opts.BitsPerSecond <= 0 {
		opts.BitsPerSecond = MicBitsPerSecond
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return ErrAlreadyStarted
	}

	encoder, err := r.encoders.NewEncoder(stream, ports.EncoderOptions{
		MimeType:      MimeType,
		BitsPerSecond: opts.BitsPerSecond,
	})
	if err != nil {
		return fmt.Errorf("failed to create encoder: %w", err)
	}
	if err := encoder.Start(); err != nil {
		return fmt.Errorf("failed to start encoder: %w", err)
	}

	r.encoder = encoder
	r.opts = opts
	r.onSegment = onSegment
	r.started = true
	r.timer = r.clock.Every(opts.SegmentLength, r.sealTick)

	r.logger.Debug().
		Str("session_id", opts.SessionID).
		Dur("segment_length", opts.SegmentLength).
		Int("bits_per_second", opts.BitsPerSecond).
		Msg("Segment recorder started")
	return nil
}

func (r *Recorder) sealTick() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}

	data, err := r.encoder.Seal()
	r.emitLocked(data)
	if err == nil {
		return
	}
	r.logger.Error().Err(err).Str("session_id", r.opts.SessionID).Msg("Failed to seal segment")
	if !r.failed {
		r.failed = true
		if r.opts.OnError != nil {
			r.opts.OnError(err)
		}
	}
}

// Stop flushes the partial segment and stops sealing. No segment is emitted
// after Stop returns. Repeat calls return the first result.
func (r *Recorder) Stop() error {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		defer r.mu.Unlock()

		r.stopped = true
		if !r.started {
			return
		}
		r.timer.Stop()

		data, err := r.encoder.Stop()
		if err != nil {
			r.stopErr = fmt.Errorf("failed to flush final segment: %w", err)
		}
		r.emitLocked(data)
		r.logger.Debug().Str("session_id", r.opts.SessionID).Msg("Segment recorder stopped")
	})
	return r.stopErr
}

func (r *Recorder) emitLocked(data []byte) {
	if len(data) == 0 {
		return
	}

	segment := domain.AudioSegment{
		SessionID: r.opts.SessionID,
		Sequence:  r.opts.NextSequence(),
		Data:      data,
		MimeType:  MimeType,
		SealedAt:  r.clock.Now(),
	}
	metrics.SegmentsSealed.Inc()
	r.logger.Debug().
		Str("session_id", segment.SessionID).
		Int("sequence", segment.Sequence).
		Int("bytes", segment.Size()).
		Msg("Segment sealed")

	if r.onSegment != nil {
		r.onSegment(segment)
	}
}
