package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"meetcap/internal/capture"
	"meetcap/internal/clock"
	"meetcap/internal/domain"
	"meetcap/internal/metrics"
	"meetcap/internal/ports"
	"meetcap/internal/quota"
	"meetcap/internal/segment"
	"meetcap/internal/upload"
)

var (
	ErrNoActiveSession = errors.New("no active recording session")
	ErrSessionActive   = errors.New("a recording session is already in progress")
	ErrPremiumRequired = errors.New("tab audio capture requires a premium plan")
)

const (
	DefaultTickInterval = time.Second
	DefaultEndTimeout   = 30 * time.Second

	titleLayout = "2006.01.02 15:04"
)

// Config controls session timing.
type Config struct {
	// TickInterval is the wall time represented by one elapsed second.
	TickInterval time.Duration
	EndTimeout   time.Duration
}

// SourceAcquirer obtains the live sources for a mode.
type SourceAcquirer interface {
	Acquire(ctx context.Context, mode domain.SourceMode) (*capture.SourceHandle, error)
}

// SegmentSender hands sealed segments to the upload path without blocking.
type SegmentSender interface {
	Send(ctx context.Context, segment domain.AudioSegment) <-chan upload.Result
}

// SessionController owns the recording lifecycle for one meeting at a time.
type SessionController struct {
	acquirer SourceAcquirer
	encoders ports.EncoderFactory
	backend  ports.SessionBackend
	uploader SegmentSender
	events   ports.EventSink
	clock    clock.Clock
	logger   zerolog.Logger
	cfg      Config

	mu       sync.Mutex
	current  *activeSession
	starting bool
	last     *domain.StopResult
}

func NewSessionController(
	acquirer SourceAcquirer,
	encoders ports.EncoderFactory,
	backend ports.SessionBackend,
	uploader SegmentSender,
	events ports.EventSink,
	clk clock.Clock,
	logger zerolog.Logger,
	cfg Config,
) *SessionController {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.EndTimeout <= 0 {
		cfg.EndTimeout = DefaultEndTimeout
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &SessionController{
		acquirer: acquirer,
		encoders: encoders,
		backend:  backend,
		uploader: uploader,
		events:   events,
		clock:    clk,
		logger:   logger.With().Str("component", "session-controller").Logger(),
		cfg:      cfg,
	}
}

// Start registers a session, acquires its sources and begins recording.
// Uploads started by the session outlive ctx cancellation.
func (c *SessionController) Start(ctx context.Context, req domain.StartRequest) (domain.RecordingSession, error) {
	c.mu.Lock()
	if c.current != nil || c.starting {
		c.mu.Unlock()
		return domain.RecordingSession{}, ErrSessionActive
	}
	c.starting = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.starting = false
		c.mu.Unlock()
	}()

	if !req.Mode.Valid() {
		return domain.RecordingSession{}, fmt.Errorf("%w: unknown source mode %q", domain.ErrUnsupportedCapability, req.Mode)
	}
	if req.Mode.UsesTab() && req.Tier != domain.TierPremium {
		return domain.RecordingSession{}, ErrPremiumRequired
	}
	profile, err := quota.Resolve(req.Tier)
	if err != nil {
		return domain.RecordingSession{}, err
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = c.clock.Now().Format(titleLayout)
	}
	log := c.logger.With().Str("mode", string(req.Mode)).Str("tier", string(req.Tier)).Logger()

	sessionID, err := c.backend.StartSession(ctx, title)
	if err != nil {
		log.Error().Err(err).Msg("Session registration failed")
		c.failStart(req.Mode, domain.ErrorCodeRegistration, domain.SessionReasonRegisterFailed, err.Error())
		return domain.RecordingSession{}, err
	}
	log = log.With().Str("session_id", sessionID).Logger()

	handle, err := c.acquirer.Acquire(ctx, req.Mode)
	if err != nil {
		log.Error().Err(err).Msg("Source acquisition failed")
		c.endQuietly(ctx, sessionID, log)
		c.failStart(req.Mode, domain.ErrorCodeAcquisition, domain.SessionReasonAcquireFailed, domain.UserMessage(err))
		return domain.RecordingSession{}, err
	}

	active := &activeSession{
		session: domain.RecordingSession{
			SessionID:            sessionID,
			LocalID:              uuid.NewString(),
			Title:                title,
			Mode:                 req.Mode,
			Tier:                 req.Tier,
			StartedAt:            c.clock.Now(),
			MaxDurationSeconds:   profile.MaxDurationSeconds,
			SegmentLengthSeconds: profile.SegmentLengthSeconds,
			Status:               domain.SessionStatusActive,
		},
		handle:   handle,
		recorder: segment.NewRecorder(c.encoders, c.clock, c.logger),
		done:     make(chan struct{}),
	}

	// The elapsed tick is scheduled before the seal timer so that quota
	// exhaustion on a segment boundary stops the session before the seal.
	uploadCtx := context.WithoutCancel(ctx)
	active.ticker = c.clock.Every(c.cfg.TickInterval, func() { c.onTick(uploadCtx, active) })

	err = active.recorder.Start(handle.Stream(), segment.Options{
		SessionID:     sessionID,
		SegmentLength: time.Duration(profile.SegmentLengthSeconds) * c.cfg.TickInterval,
		BitsPerSecond: segment.BitrateFor(req.Mode),
		NextSequence:  active.nextSequence,
		OnError:       func(err error) { c.onRecorderError(active, err) },
	}, func(seg domain.AudioSegment) { c.onSegment(uploadCtx, active, seg) })
	if err != nil {
		log.Error().Err(err).Msg("Recorder start failed")
		active.ticker.Stop()
		if releaseErr := handle.Release(); releaseErr != nil {
			log.Warn().Err(releaseErr).Msg("Source release failed")
		}
		c.endQuietly(ctx, sessionID, log)
		c.failStart(req.Mode, domain.ErrorCodeRecorder, domain.SessionReasonRecorderFailed, err.Error())
		return domain.RecordingSession{}, err
	}

	c.mu.Lock()
	c.current = active
	c.last = nil
	c.mu.Unlock()

	metrics.ActiveSessions.Inc()
	log.Info().Str("title", title).Int("max_seconds", profile.MaxDurationSeconds).Msg("Recording started")
	c.events.SessionStateChanged(domain.SessionStatusActive, domain.SessionReasonRecordingStarted)
	c.events.ElapsedChanged(0, profile.MaxDurationSeconds)
	return active.snapshot(), nil
}

// Stop ends the active session. Concurrent and repeated calls for the same
// session all return its single result.
func (c *SessionController) Stop(ctx context.Context) (domain.StopResult, error) {
	active, err := c.getCurrent()
	if err != nil {
		return domain.StopResult{}, err
	}
	return c.shutdown(ctx, active, domain.SessionReasonStopRequested), nil
}

// Status returns a snapshot of the current session, or an idle session.
func (c *SessionController) Status() domain.RecordingSession {
	c.mu.Lock()
	active := c.current
	c.mu.Unlock()
	if active == nil {
		return domain.RecordingSession{Status: domain.SessionStatusIdle}
	}
	return active.snapshot()
}

// LastResult returns the outcome of the most recently finished session.
func (c *SessionController) LastResult() (domain.StopResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return domain.StopResult{}, false
	}
	return *c.last, true
}

// Reset discards the last session result. It fails while a session is live.
func (c *SessionController) Reset() error {
	c.mu.Lock()
	if c.current != nil || c.starting {
		c.mu.Unlock()
		return ErrSessionActive
	}
	c.last = nil
	c.mu.Unlock()

	c.events.SessionStateChanged(domain.SessionStatusIdle, domain.SessionReasonReady)
	return nil
}

func (c *SessionController) onTick(ctx context.Context, active *activeSession) {
	active.mu.Lock()
	if active.session.Status != domain.SessionStatusActive {
		active.mu.Unlock()
		return
	}
	active.session.ElapsedSeconds++
	elapsed := active.session.ElapsedSeconds
	limit := active.session.MaxDurationSeconds
	exhausted := elapsed >= limit
	if exhausted {
		active.session.Status = domain.SessionStatusStopping
	}
	active.mu.Unlock()

	metrics.RecordedSeconds.Inc()
	c.events.ElapsedChanged(elapsed, limit)
	if exhausted {
		c.logger.Info().Str("session_id", active.sessionID()).Int("elapsed", elapsed).Msg("Quota exhausted")
		c.shutdown(ctx, active, domain.SessionReasonQuotaExhausted)
	}
}

func (c *SessionController) onSegment(ctx context.Context, active *activeSession, seg domain.AudioSegment) {
	if current := active.sessionID(); seg.SessionID != current {
		c.logger.Warn().
			Str("session_id", current).
			Str("segment_session_id", seg.SessionID).
			Int("sequence", seg.Sequence).
			Msg("Dropping segment from another session")
		return
	}
	c.uploader.Send(ctx, seg)
}

// onRecorderError reports a capture failure. The session keeps running so the
// user decides when to stop.
func (c *SessionController) onRecorderError(active *activeSession, err error) {
	c.logger.Error().Err(err).Str("session_id", active.sessionID()).Msg("Audio capture interrupted")
	c.events.SessionError(domain.ErrorCodeRecorder, fmt.Sprintf("audio capture interrupted: %v", err))
}

func (c *SessionController) shutdown(ctx context.Context, active *activeSession, reason domain.SessionStateReason) domain.StopResult {
	active.stopOnce.Do(func() {
		c.finish(ctx, active, reason)
		close(active.done)
	})
	<-active.done
	return active.result
}

func (c *SessionController) finish(ctx context.Context, active *activeSession, reason domain.SessionStateReason) {
	active.setStatus(domain.SessionStatusStopping)
	c.events.SessionStateChanged(domain.SessionStatusStopping, reason)

	snapshot := active.snapshot()
	log := c.logger.With().Str("session_id", snapshot.SessionID).Str("reason", string(reason)).Logger()

	active.ticker.Stop()
	if err := active.recorder.Stop(); err != nil {
		log.Error().Err(err).Msg("Recorder stop failed")
		c.events.SessionError(domain.ErrorCodeAudioStop, fmt.Sprintf("failed to flush final segment: %v", err))
	}
	if err := active.handle.Release(); err != nil {
		log.Warn().Err(err).Msg("Source release failed")
		c.events.SessionError(domain.ErrorCodeRelease, fmt.Sprintf("failed to release capture sources: %v", err))
	}

	endCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.EndTimeout)
	endStatus, err := c.backend.EndSession(endCtx, snapshot.SessionID)
	cancel()
	if err != nil {
		log.Warn().Err(err).Msg("End-of-session notification failed")
		c.events.SessionError(domain.ErrorCodeTermination, fmt.Sprintf("failed to end session: %v", err))
	}

	active.mu.Lock()
	active.session.Status = domain.SessionStatusCompleted
	active.result = domain.StopResult{
		SessionID:      active.session.SessionID,
		ElapsedSeconds: active.session.ElapsedSeconds,
		Segments:       active.segments,
		Reason:         reason,
		EndStatus:      endStatus,
	}
	result := active.result
	active.mu.Unlock()

	c.events.SessionStateChanged(domain.SessionStatusCompleted, domain.SessionReasonSessionCompleted)

	c.mu.Lock()
	if c.current == active {
		c.current = nil
	}
	c.last = &result
	c.mu.Unlock()

	metrics.ActiveSessions.Dec()
	metrics.SessionsTotal.WithLabelValues(string(snapshot.Mode), string(reason)).Inc()
	log.Info().Int("elapsed", result.ElapsedSeconds).Int("segments", result.Segments).Msg("Recording finished")
	c.events.SessionStateChanged(domain.SessionStatusIdle, domain.SessionReasonReady)
}

func (c *SessionController) failStart(mode domain.SourceMode, code domain.ErrorCode, reason domain.SessionStateReason, detail string) {
	metrics.SessionsTotal.WithLabelValues(string(mode), string(reason)).Inc()
	c.events.SessionError(code, detail)
	c.events.SessionStateChanged(domain.SessionStatusError, reason)
	c.events.SessionStateChanged(domain.SessionStatusIdle, domain.SessionReasonReady)
}

// endQuietly closes a registered session that never started recording.
func (c *SessionController) endQuietly(ctx context.Context, sessionID string, log zerolog.Logger) {
	endCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.EndTimeout)
	defer cancel()
	if _, err := c.backend.EndSession(endCtx, sessionID); err != nil {
		log.Warn().Err(err).Msg("Failed to end unused session")
	}
}

func (c *SessionController) getCurrent() (*activeSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil, ErrNoActiveSession
	}
	return c.current, nil
}
