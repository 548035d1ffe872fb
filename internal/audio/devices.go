package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
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
	DefaultSampleRate  = 48000
	DefaultChannels    = 1
	DefaultInputFormat = "pulse"
	DefaultMicDevice   = "default"

	startupGrace = 250 * time.Millisecond
	stopGrace    = 1200 * time.Millisecond
)

// DeviceConfig selects the ffmpeg inputs used for each source.
type DeviceConfig struct {
	Command     string
	InputFormat string
	MicDevice   string
	// EchoCancelDevice is an echo-cancelled microphone source, such as one
	// created by PulseAudio's module-echo-cancel. ffmpeg has no echo
	// canceller of its own.
	EchoCancelDevice string
	// TabDevice is the monitor source carrying shared application audio.
	// Tab capture is unsupported when empty.
	TabDevice  string
	SampleRate int
	Channels   int
}

func (c DeviceConfig) withDefaults() DeviceConfig {
	if c.Command == "" {
		c.Command = "ffmpeg"
	}
	if c.InputFormat == "" {
		c.InputFormat = DefaultInputFormat
	}
	if c.MicDevice == "" {
		c.MicDevice = DefaultMicDevice
	}
	if c.SampleRate <= 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.Channels <= 0 {
		c.Channels = DefaultChannels
	}
	return c
}

// FFMPEGDevices captures live sources as PCM through ffmpeg processes.
type FFMPEGDevices struct {
	cfg    DeviceConfig
	logger zerolog.Logger
}

func NewFFMPEGDevices(cfg DeviceConfig, logger zerolog.Logger) *FFMPEGDevices {
	return &FFMPEGDevices{
		cfg:    cfg.withDefaults(),
		logger: logger.With().Str("component", "ffmpeg-devices").Logger(),
	}
}

func (d *FFMPEGDevices) GetUserMedia(ctx context.Context, constraints ports.AudioConstraints) (ports.MediaStream, error) {
	track, err := d.startCapture(ctx, "mic", d.micDevice(constraints), constraints)
	if err != nil {
		return nil, err
	}
	return &pcmStream{reader: track, tracks: []ports.MediaTrack{track}}, nil
}

// GetDisplayMedia captures the configured monitor source. The video track is
// a placeholder; only audio is ever recorded.
func (d *FFMPEGDevices) GetDisplayMedia(ctx context.Context, constraints ports.DisplayConstraints) (ports.MediaStream, error) {
	if d.cfg.TabDevice == "" {
		return nil, fmt.Errorf("%w: no tab audio source configured", domain.ErrUnsupportedCapability)
	}

	stream := &pcmStream{}
	if constraints.Video {
		stream.tracks = append(stream.tracks, newVirtualTrack("tab-video", ports.TrackKindVideo))
	}
	if !constraints.Audio {
		stream.reader = eofReader{}
		return stream, nil
	}

	track, err := d.startCapture(ctx, "tab", d.cfg.TabDevice, ports.AudioConstraints{})
	if err != nil {
		stopAll(stream.tracks)
		return nil, err
	}
	stream.reader = track
	stream.tracks = append(stream.tracks, track)
	return stream, nil
}

func (d *FFMPEGDevices) startCapture(ctx context.Context, name string, device string, constraints ports.AudioConstraints) (*processTrack, error) {
	args := captureArgs(d.cfg, device, constraints)

	// Capture lifetime is bounded by Stop, not by the request context.
	cmd := exec.CommandContext(context.WithoutCancel(ctx), d.cfg.Command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: %v", domain.ErrUnsupportedCapability, err)
		}
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	select {
	case err := <-waitErr:
		detail := stringsTrimSpaceSafe(stderr.String())
		if err != nil {
			return nil, classifyStartErr(fmt.Errorf("ffmpeg exited before capture started: %w: %s", err, detail), detail)
		}
		return nil, classifyStartErr(errors.New("ffmpeg exited before capture started"), detail)
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-waitErr
		return nil, ctx.Err()
	case <-time.After(startupGrace):
	}

	d.logger.Debug().Str("source", name).Str("device", device).Strs("args", args).Msg("Capture started")
	return &processTrack{
		id:      name + "-" + strconv.Itoa(cmd.Process.Pid),
		stdout:  stdout,
		stderr:  &stderr,
		process: cmd.Process,
		waitErr: waitErr,
	}, nil
}

func captureArgs(cfg DeviceConfig, device string, constraints ports.AudioConstraints) []string {
	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", device,
	}

	var filters []string
	if constraints.NoiseSuppression {
		filters = append(filters, "afftdn")
	}
	if constraints.AutoGainControl {
		filters = append(filters, "dynaudnorm")
	}
	if len(filters) > 0 {
		args = append(args, "-af", strings.Join(filters, ","))
	}

	return append(args,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le",
		"-",
	)
}

func (d *FFMPEGDevices) micDevice(constraints ports.AudioConstraints) string {
	if !constraints.EchoCancellation {
		return d.cfg.MicDevice
	}
	if d.cfg.EchoCancelDevice == "" {
		d.logger.Debug().Msg("Echo cancellation requested without an echo-cancel source; using the raw microphone")
		return d.cfg.MicDevice
	}
	return d.cfg.EchoCancelDevice
}

func classifyStartErr(err error, stderr string) error {
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "permission denied"), strings.Contains(lower, "access denied"), strings.Contains(lower, "not allowed"):
		return errors.Join(domain.ErrPermissionDenied, err)
	case strings.Contains(lower, "unknown input format"):
		return errors.Join(domain.ErrUnsupportedCapability, err)
	default:
		return errors.Join(domain.ErrDeviceUnavailable, err)
	}
}

// processTrack is an audio track backed by one ffmpeg capture process.
type processTrack struct {
	id     string
	stdout io.ReadCloser
	stderr *bytes.Buffer

	process *os.Process
	waitErr <-chan error

	mu      sync.Mutex
	stopped bool

	stopOnce sync.Once
	stopErr  error
}

func (t *processTrack) ID() string            { return t.id }
func (t *processTrack) Kind() ports.TrackKind { return ports.TrackKindAudio }

func (t *processTrack) Read(p []byte) (int, error) {
	return t.stdout.Read(p)
}

func (t *processTrack) Live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.stopped
}

func (t *processTrack) Stop() error {
	t.stopOnce.Do(func() {
		t.mu.Lock()
		t.stopped = true
		t.mu.Unlock()

		if t.process != nil {
			_ = t.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-t.waitErr:
			if ok {
				t.stopErr = normalizeStopErr(err)
			}
		case <-time.After(stopGrace):
			if t.process != nil {
				_ = t.process.Kill()
			}
			err, ok := <-t.waitErr
			if ok {
				t.stopErr = normalizeStopErr(err)
			}
		}

		if closeErr := t.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
			if t.stopErr == nil {
				t.stopErr = closeErr
			}
		}

		if t.stopErr != nil && t.stderr != nil && t.stderr.Len() > 0 {
			t.stopErr = fmt.Errorf("%w: %s", t.stopErr, stringsTrimSpaceSafe(t.stderr.String()))
		}
	})

	return t.stopErr
}

type virtualTrack struct {
	id   string
	kind ports.TrackKind

	mu      sync.Mutex
	stopped bool
}

func newVirtualTrack(id string, kind ports.TrackKind) *virtualTrack {
	return &virtualTrack{id: id, kind: kind}
}

func (t *virtualTrack) ID() string            { return t.id }
func (t *virtualTrack) Kind() ports.TrackKind { return t.kind }

func (t *virtualTrack) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	return nil
}

func (t *virtualTrack) Live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.stopped
}

type pcmStream struct {
	reader io.Reader
	tracks []ports.MediaTrack
}

func (s *pcmStream) Read(p []byte) (int, error) { return s.reader.Read(p) }

func (s *pcmStream) Tracks() []ports.MediaTrack {
	return append([]ports.MediaTrack(nil), s.tracks...)
}

func (s *pcmStream) AudioTracks() []ports.MediaTrack {
	var out []ports.MediaTrack
	for _, track := range s.tracks {
		if track.Kind() == ports.TrackKindAudio {
			out = append(out, track)
		}
	}
	return out
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }

func stopAll(tracks []ports.MediaTrack) {
	for _, track := range tracks {
		_ = track.Stop()
	}
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func stringsTrimSpaceSafe(input string) string {
	if input == "" {
		return input
	}
	return string(bytes.TrimSpace([]byte(input)))
}
