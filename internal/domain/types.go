package domain

import "time"

// SessionStatus models the recording session lifecycle.
type SessionStatus string

const (
	SessionStatusIdle      SessionStatus = "idle"
	SessionStatusActive    SessionStatus = "active"
	SessionStatusStopping  SessionStatus = "stopping"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusError     SessionStatus = "error"
)

// SessionStateReason provides a structured reason for state transitions.
type SessionStateReason string

const (
	SessionReasonReady            SessionStateReason = "ready"
	SessionReasonRecordingStarted SessionStateReason = "recording_started"
	SessionReasonStopRequested    SessionStateReason = "stop_requested"
	SessionReasonQuotaExhausted   SessionStateReason = "quota_exhausted"
	SessionReasonSessionCompleted SessionStateReason = "session_completed"
	SessionReasonRegisterFailed   SessionStateReason = "register_failed"
	SessionReasonAcquireFailed    SessionStateReason = "acquire_failed"
	SessionReasonRecorderFailed   SessionStateReason = "recorder_failed"
)

// ErrorCode identifies non-fatal and fatal session errors.
type ErrorCode string

const (
	ErrorCodeStartup      ErrorCode = "startup"
	ErrorCodeRegistration ErrorCode = "registration"
	ErrorCodeAcquisition  ErrorCode = "acquisition"
	ErrorCodeRecorder     ErrorCode = "recorder"
	ErrorCodeAudioStop    ErrorCode = "audio_stop"
	ErrorCodeRelease      ErrorCode = "release"
	ErrorCodeTermination  ErrorCode = "termination"
)

// SourceMode selects which live sources feed a recording.
type SourceMode string

const (
	SourceModeMic       SourceMode = "mic"
	SourceModeTab       SourceMode = "tab"
	SourceModeTabAndMic SourceMode = "tabAndMic"
)

// UsesTab reports whether the mode captures shared tab audio.
func (m SourceMode) UsesTab() bool {
	return m == SourceModeTab || m == SourceModeTabAndMic
}

// Valid reports whether m is a known source mode.
func (m SourceMode) Valid() bool {
	switch m {
	case SourceModeMic, SourceModeTab, SourceModeTabAndMic:
		return true
	default:
		return false
	}
}

// Tier is the account plan classification governing quota.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// QuotaProfile is resolved once per session and never re-evaluated.
type QuotaProfile struct {
	MaxDurationSeconds   int `json:"maxDurationSeconds"`
	SegmentLengthSeconds int `json:"segmentLengthSeconds"`
}

// AudioSegment is one sealed window of encoded audio.
type AudioSegment struct {
	SessionID string    `json:"sessionId"`
	Sequence  int       `json:"sequence"`
	Data      []byte    `json:"-"`
	MimeType  string    `json:"mimeType"`
	SealedAt  time.Time `json:"sealedAt"`
}

// Size returns the encoded payload length in bytes.
func (s AudioSegment) Size() int {
	return len(s.Data)
}

// RecordingSession is a snapshot of one meeting capture.
type RecordingSession struct {
	SessionID            string        `json:"sessionId,omitempty"`
	LocalID              string        `json:"localId,omitempty"`
	Title                string        `json:"title,omitempty"`
	Mode                 SourceMode    `json:"sourceMode,omitempty"`
	Tier                 Tier          `json:"tier,omitempty"`
	StartedAt            time.Time     `json:"startedAt,omitempty"`
	ElapsedSeconds       int           `json:"elapsedSeconds"`
	MaxDurationSeconds   int           `json:"maxDurationSeconds"`
	SegmentLengthSeconds int           `json:"segmentLengthSeconds"`
	Status               SessionStatus `json:"status"`
	NextChunkSequence    int           `json:"nextChunkSequence"`
}

// RemainingSeconds returns how much of the quota is left.
func (s RecordingSession) RemainingSeconds() int {
	remaining := s.MaxDurationSeconds - s.ElapsedSeconds
	if remaining < 0 {
		return 0
	}
	return remaining
}

// StartRequest asks the controller to begin a session.
type StartRequest struct {
	Title string
	Mode  SourceMode
	Tier  Tier
}

// StopResult summarizes a finished session.
type StopResult struct {
	SessionID      string             `json:"sessionId"`
	ElapsedSeconds int                `json:"elapsedSeconds"`
	Segments       int                `json:"segments"`
	Reason         SessionStateReason `json:"reason"`
	EndStatus      string             `json:"endStatus,omitempty"`
}
