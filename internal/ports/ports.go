package ports

import (
	"context"
	"io"

	"meetcap/internal/domain"
)

// TrackKind identifies the media carried by a track.
type TrackKind string

const (
	TrackKindAudio TrackKind = "audio"
	TrackKindVideo TrackKind = "video"
)

// MediaTrack is one live device or tab track.
type MediaTrack interface {
	ID() string
	Kind() TrackKind
	// Stop releases the underlying device. Repeat calls are no-ops.
	Stop() error
	Live() bool
}

// MediaStream is a set of tracks plus the PCM audio they produce.
// Audio is signed 16-bit little-endian at the configured rate/channels.
type MediaStream interface {
	io.Reader
	Tracks() []MediaTrack
	AudioTracks() []MediaTrack
}

// AudioConstraints describes how the microphone should be captured.
type AudioConstraints struct {
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// DisplayConstraints describes a tab/screen sharing request.
type DisplayConstraints struct {
	Video bool
	Audio bool
}

// MediaDevices grants access to live capture sources.
type MediaDevices interface {
	GetUserMedia(ctx context.Context, constraints AudioConstraints) (MediaStream, error)
	GetDisplayMedia(ctx context.Context, constraints DisplayConstraints) (MediaStream, error)
}

// MixingGraph merges several streams into one destination stream.
type MixingGraph interface {
	Connect(source MediaStream) error
	Destination() MediaStream
	// Close disconnects all nodes. Repeat calls are no-ops.
	Close() error
}

// Mixer creates mixing graphs.
type Mixer interface {
	NewGraph() (MixingGraph, error)
}

// EncoderOptions configures the compressed output.
type EncoderOptions struct {
	MimeType      string
	BitsPerSecond int
}

// Encoder buffers audio from a stream and seals it into compressed blobs.
type Encoder interface {
	Start() error
	// Seal encodes and discards everything buffered since the previous seal.
	// It returns nil data when nothing was captured. After a capture failure
	// it returns the audio captured before the failure along with the error.
	Seal() ([]byte, error)
	// Stop seals the remaining buffer and makes the encoder inactive.
	Stop() ([]byte, error)
}

// EncoderFactory wraps a stream in a new encoder.
type EncoderFactory interface {
	NewEncoder(stream MediaStream, opts EncoderOptions) (Encoder, error)
}

// ChunkUpload is one segment upload request.
type ChunkUpload struct {
	SessionID string
	Sequence  int
	FileName  string
	MimeType  string
	Data      []byte
}

// SessionBackend is the server-side collaborator.
type SessionBackend interface {
	StartSession(ctx context.Context, title string) (string, error)
	UploadChunk(ctx context.Context, chunk ChunkUpload) (string, error)
	EndSession(ctx context.Context, sessionID string) (string, error)
}

// EventSink emits session state/events to the UI.
type EventSink interface {
	SessionStateChanged(status domain.SessionStatus, reason domain.SessionStateReason)
	ElapsedChanged(elapsedSeconds int, maxDurationSeconds int)
	SessionError(code domain.ErrorCode, detail string)
}
