package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"meetcap/internal/domain"
	"meetcap/internal/ports"
)

// MicConstraints are applied to every microphone request.
var MicConstraints = ports.AudioConstraints{
	EchoCancellation: true,
	NoiseSuppression: true,
	AutoGainControl:  true,
}

// Acquirer obtains live sources for a source mode. It does not check
// entitlements; callers gate tab modes before calling Acquire.
type Acquirer struct {
	devices ports.MediaDevices
	mixer   ports.Mixer
	logger  zerolog.Logger
}

func NewAcquirer(devices ports.MediaDevices, mixer ports.Mixer, logger zerolog.Logger) *Acquirer {
	return &Acquirer{
		devices: devices,
		mixer:   mixer,
		logger:  logger.With().Str("component", "acquirer").Logger(),
	}
}

// Acquire returns a handle owning every stream it opened. On failure nothing
// is left open.
func (a *Acquirer) Acquire(ctx context.Context, mode domain.SourceMode) (*SourceHandle, error) {
	switch mode {
	case domain.SourceModeMic:
		mic, err := a.devices.GetUserMedia(ctx, MicConstraints)
		if err != nil {
			return nil, fmt.Errorf("microphone: %w", classify(err))
		}
		a.logger.Debug().Int("tracks", len(mic.Tracks())).Msg("Microphone acquired")
		return newHandle(mode, mic, []ports.MediaStream{mic}, nil), nil

	case domain.SourceModeTab:
		tab, err := a.acquireTab(ctx)
		if err != nil {
			return nil, err
		}
		return newHandle(mode, tab, []ports.MediaStream{tab}, nil), nil

	case domain.SourceModeTabAndMic:
		return a.acquireMixed(ctx)

	default:
		return nil, fmt.Errorf("source mode %q: %w", mode, domain.ErrUnsupportedCapability)
	}
}

func (a *Acquirer) acquireTab(ctx context.Context) (ports.MediaStream, error) {
	tab, err := a.devices.GetDisplayMedia(ctx, ports.DisplayConstraints{Video: true, Audio: true})
	if err != nil {
		return nil, fmt.Errorf("tab audio: %w", classify(err))
	}
	if len(tab.AudioTracks()) == 0 {
		stopped := stopTracks(tab)
		a.logger.Warn().Int("stopped_tracks", stopped).Msg("Shared tab has no audio track")
		return nil, fmt.Errorf("tab audio: shared source carries no audio track: %w", domain.ErrDeviceUnavailable)
	}
	a.logger.Debug().Int("audio_tracks", len(tab.AudioTracks())).Msg("Tab audio acquired")
	return tab, nil
}

func (a *Acquirer) acquireMixed(ctx context.Context) (*SourceHandle, error) {
	tab, err := a.acquireTab(ctx)
	if err != nil {
		return nil, err
	}

	mic, err := a.devices.GetUserMedia(ctx, MicConstraints)
	if err != nil {
		stopTracks(tab)
		return nil, fmt.Errorf("microphone: %w", classify(err))
	}

	upstreams := []ports.MediaStream{tab, mic}
	graph, err := a.mixer.NewGraph()
	if err != nil {
		stopTracks(upstreams...)
		return nil, fmt.Errorf("mixing graph: %w", errors.Join(err, domain.ErrUnsupportedCapability))
	}
	for _, source := range upstreams {
		if err := graph.Connect(source); err != nil {
			_ = graph.Close()
			stopTracks(upstreams...)
			return nil, fmt.Errorf("mixing graph: %w", errors.Join(err, domain.ErrUnsupportedCapability))
		}
	}

	a.logger.Debug().Msg("Tab and microphone merged")
	return newHandle(domain.SourceModeTabAndMic, graph.Destination(), upstreams, graph), nil
}

// classify keeps known sentinels and treats anything else as an unavailable device.
func classify(err error) error {
	switch {
	case errors.Is(err, domain.ErrPermissionDenied),
		errors.Is(err, domain.ErrDeviceUnavailable),
		errors.Is(err, domain.ErrUnsupportedCapability):
		return err
	default:
		return errors.Join(err, domain.ErrDeviceUnavailable)
	}
}

func stopTracks(streams ...ports.MediaStream) int {
	stopped := 0
	for _, stream := range streams {
		if stream == nil {
			continue
		}
		for _, track := range stream.Tracks() {
			_ = track.Stop()
			stopped++
		}
	}
	return stopped
}

// SourceHandle owns the live streams of one session and, in mixed mode, the
// graph merging them.
type SourceHandle struct {
	mode      domain.SourceMode
	stream    ports.MediaStream
	upstreams []ports.MediaStream
	graph     ports.MixingGraph

	releaseOnce sync.Once
	releaseErr  error
}

func newHandle(mode domain.SourceMode, stream ports.MediaStream, upstreams []ports.MediaStream, graph ports.MixingGraph) *SourceHandle {
	return &SourceHandle{mode: mode, stream: stream, upstreams: upstreams, graph: graph}
}

// Mode returns the source mode the handle was acquired for.
func (h *SourceHandle) Mode() domain.SourceMode {
	return h.mode
}

// Stream is what downstream components record.
func (h *SourceHandle) Stream() ports.MediaStream {
	return h.stream
}

// Release stops every underlying track and closes the graph. Only the first
// call does any work.
func (h *SourceHandle) Release() error {
	h.releaseOnce.Do(func() {
		var errs []error
		for _, upstream := range h.upstreams {
			for _, track := range upstream.Tracks() {
				if err := track.Stop(); err != nil {
					errs = append(errs, fmt.Errorf("stop track %s: %w", track.ID(), err))
				}
			}
		}
		if h.graph != nil {
			if err := h.graph.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close mixing graph: %w", err))
			}
		}
		h.releaseErr = errors.Join(errs...)
	})
	return h.releaseErr
}

// LiveTracks counts underlying device tracks that are still open.
func (h *SourceHandle) LiveTracks() int {
	live := 0
	for _, upstream := range h.upstreams {
		for _, track := range upstream.Tracks() {
			if track.Live() {
				live++
			}
		}
	}
	return live
}
