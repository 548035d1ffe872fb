package upload

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"meetcap/internal/domain"
	"meetcap/internal/metrics"
	"meetcap/internal/ports"
)

const (
	// DefaultMaxChunkBytes mirrors the transcription backend's per-file limit.
	DefaultMaxChunkBytes = 25 * 1024 * 1024

	DefaultTimeout = 2 * time.Minute
)

var (
	ErrChunkTooLarge = errors.New("chunk exceeds upload size limit")
	ErrNoSession     = errors.New("segment has no session id")
)

// Result is the outcome of one upload.
type Result struct {
	Sequence int
	ChunkID  string
	Err      error
}

// Config controls upload limits.
type Config struct {
	MaxChunkBytes int
	Timeout       time.Duration
}

// Uploader sends sealed segments to the backend, one goroutine per segment.
// Failures are logged and counted, never retried.
type Uploader struct {
	backend ports.SessionBackend
	cfg     Config
	logger  zerolog.Logger

	inFlight sync.WaitGroup
}

func NewUploader(backend ports.SessionBackend, cfg Config, logger zerolog.Logger) *Uploader {
	if cfg.MaxChunkBytes <= 0 {
		cfg.MaxChunkBytes = DefaultMaxChunkBytes
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Uploader{
		backend: backend,
		cfg:     cfg,
		logger:  logger.With().Str("component", "uploader").Logger(),
	}
}

// Send starts the upload and returns immediately. The returned channel
// receives exactly one Result; callers may ignore it.
func (u *Uploader) Send(ctx context.Context, segment domain.AudioSegment) <-chan Result {
	done := make(chan Result, 1)

	u.inFlight.Add(1)
	metrics.UploadsInFlight.Inc()
	go func() {
		defer u.inFlight.Done()
		defer metrics.UploadsInFlight.Dec()

		result := u.upload(ctx, segment)
		done <- result
		close(done)
	}()
	return done
}

// Wait blocks until every upload started so far has finished.
func (u *Uploader) Wait() {
	u.inFlight.Wait()
}

func (u *Uploader) upload(ctx context.Context, segment domain.AudioSegment) Result {
	result := Result{Sequence: segment.Sequence}
	log := u.logger.With().
		Str("session_id", segment.SessionID).
		Int("sequence", segment.Sequence).
		Int("bytes", segment.Size()).
		Logger()

	switch {
	case segment.SessionID == "":
		result.Err = ErrNoSession
	case segment.Size() > u.cfg.MaxChunkBytes:
		result.Err = fmt.Errorf("%w: %d > %d bytes", ErrChunkTooLarge, segment.Size(), u.cfg.MaxChunkBytes)
	}
	if result.Err != nil {
		metrics.ChunkUploadsTotal.WithLabelValues("rejected").Inc()
		log.Error().Err(result.Err).Msg("Chunk dropped before upload")
		return result
	}

	uploadCtx, cancel := context.WithTimeout(ctx, u.cfg.Timeout)
	defer cancel()

	started := time.Now()
	chunkID, err := u.backend.UploadChunk(uploadCtx, ports.ChunkUpload{
		SessionID: segment.SessionID,
		Sequence:  segment.Sequence,
		FileName:  FileName(segment.Sequence),
		MimeType:  "audio/webm",
		Data:      segment.Data,
	})
	metrics.ChunkUploadDuration.Observe(time.Since(started).Seconds())

	if err != nil {
		result.Err = err
		metrics.ChunkUploadsTotal.WithLabelValues("failure").Inc()
		log.Error().Err(err).Dur("took", time.Since(started)).Msg("Chunk upload failed")
		return result
	}

	result.ChunkID = chunkID
	metrics.ChunkUploadsTotal.WithLabelValues("success").Inc()
	metrics.ChunkUploadBytes.Observe(float64(segment.Size()))
	log.Info().Str("chunk_id", chunkID).Dur("took", time.Since(started)).Msg("Chunk uploaded")
	return result
}

// FileName is the multipart file name for a chunk.
func FileName(sequence int) string {
	return fmt.Sprintf("chunk_%d.webm", sequence)
}
