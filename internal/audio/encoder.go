package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"meetcap/internal/domain"
	"meetcap/internal/ports"
)

const (
	DefaultEncodeTimeout = 2 * time.Minute

	readChunkBytes = 32 * 1024
)

// EncoderConfig describes the PCM layout fed to the encoder.
type EncoderConfig struct {
	Command    string
	SampleRate int
	Channels   int
	Timeout    time.Duration
}

// FFMPEGEncoderFactory encodes buffered PCM into self-contained opus files.
type FFMPEGEncoderFactory struct {
	cfg    EncoderConfig
	logger zerolog.Logger
}

func NewFFMPEGEncoderFactory(cfg EncoderConfig, logger zerolog.Logger) *FFMPEGEncoderFactory {
	if cfg.Command == "" {
		cfg.Command = "ffmpeg"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.Channels <= 0 {
		cfg.Channels = DefaultChannels
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultEncodeTimeout
	}
	return &FFMPEGEncoderFactory{
		cfg:    cfg,
		logger: logger.With().Str("component", "ffmpeg-encoder").Logger(),
	}
}

func (f *FFMPEGEncoderFactory) NewEncoder(stream ports.MediaStream, opts ports.EncoderOptions) (ports.Encoder, error) {
	container, err := containerFor(opts.MimeType)
	if err != nil {
		return nil, err
	}
	if stream == nil {
		return nil, errors.New("encoder requires a stream")
	}
	return &ffmpegEncoder{
		cfg:       f.cfg,
		container: container,
		bitrate:   opts.BitsPerSecond,
		stream:    stream,
		logger:    f.logger,
	}, nil
}

func containerFor(mimeType string) (string, error) {
	base, params, _ := strings.Cut(strings.ToLower(mimeType), ";")
	if params != "" && !strings.Contains(params, "opus") {
		return "", fmt.Errorf("%w: codec in %q", domain.ErrUnsupportedCapability, mimeType)
	}
	switch strings.TrimSpace(base) {
	case "audio/webm":
		return "webm", nil
	case "audio/ogg":
		return "ogg", nil
	default:
		return "", fmt.Errorf("%w: mime type %q", domain.ErrUnsupportedCapability, mimeType)
	}
}

// ffmpegEncoder buffers PCM from its stream and encodes each sealed window
// with a separate ffmpeg run, so every output is independently decodable.
type ffmpegEncoder struct {
	cfg       EncoderConfig
	container string
	bitrate   int
	stream    ports.MediaStream
	logger    zerolog.Logger

	mu      sync.Mutex
	pending bytes.Buffer
	started bool
	stopped bool
	readErr error
}

func (e *ffmpegEncoder) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return errors.New("encoder already started")
	}
	e.started = true
	go e.pump()
	return nil
}

func (e *ffmpegEncoder) pump() {
	buf := make([]byte, readChunkBytes)
	for {
		n, err := e.stream.Read(buf)
		e.mu.Lock()
		if e.stopped {
			e.mu.Unlock()
			return
		}
		if n > 0 {
			e.pending.Write(buf[:n])
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				e.readErr = err
				e.logger.Warn().Err(err).Msg("Stream read failed")
			}
			e.mu.Unlock()
			return
		}
		e.mu.Unlock()
	}
}

func (e *ffmpegEncoder) Seal() ([]byte, error) {
	e.mu.Lock()
	pcm := e.takeLocked()
	readErr := e.takeReadErrLocked()
	e.mu.Unlock()
	return e.encodeWithReadErr(pcm, readErr)
}

// Stop ends buffering and encodes whatever remains. The stream itself is
// released by its owner.
func (e *ffmpegEncoder) Stop() ([]byte, error) {
	e.mu.Lock()
	e.stopped = true
	pcm := e.takeLocked()
	readErr := e.takeReadErrLocked()
	e.mu.Unlock()
	return e.encodeWithReadErr(pcm, readErr)
}

// takeReadErrLocked reports a capture failure once.
func (e *ffmpegEncoder) takeReadErrLocked() error {
	err := e.readErr
	e.readErr = nil
	return err
}

// encodeWithReadErr encodes what was captured before a stream failure and
// returns it together with the failure.
func (e *ffmpegEncoder) encodeWithReadErr(pcm []byte, readErr error) ([]byte, error) {
	data, err := e.encode(pcm)
	if readErr == nil {
		return data, err
	}
	return data, errors.Join(fmt.Errorf("%w: stream read failed: %w", domain.ErrDeviceUnavailable, readErr), err)
}

func (e *ffmpegEncoder) takeLocked() []byte {
	if e.pending.Len() == 0 {
		return nil
	}
	pcm := bytes.Clone(e.pending.Bytes())
	e.pending.Reset()
	return pcm
}

func (e *ffmpegEncoder) encode(pcm []byte) ([]byte, error) {
	if len(pcm) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.Timeout)
	defer cancel()

	args := encodeArgs(e.cfg, e.container, e.bitrate)
	cmd := exec.CommandContext(ctx, e.cfg.Command, args...)
	cmd.Stdin = bytes.NewReader(pcm)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg encode failed: %w: %s", err, stringsTrimSpaceSafe(stderr.String()))
	}
	e.logger.Debug().
		Int("pcm_bytes", len(pcm)).
		Int("encoded_bytes", stdout.Len()).
		Dur("took", time.Since(started)).
		Msg("Segment encoded")
	return stdout.Bytes(), nil
}

func encodeArgs(cfg EncoderConfig, container string, bitrate int) []string {
	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "error",
		"-f", "s16le",
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-ac", strconv.Itoa(cfg.Channels),
		"-i", "pipe:0",
		"-c:a", "libopus",
	}
	if bitrate > 0 {
		args = append(args, "-b:a", strconv.Itoa(bitrate))
	}
	return append(args, "-f", container, "pipe:1")
}
