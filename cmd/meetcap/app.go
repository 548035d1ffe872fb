package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"meetcap/internal/bootstrap"
	"meetcap/internal/config"
	"meetcap/internal/domain"
	"meetcap/internal/output"
	"meetcap/internal/usecase"
)

// App is the CLI application root. It receives controller events and
// renders them to the terminal.
type App struct {
	ctx       context.Context
	formatter *output.Formatter
	logger    zerolog.Logger

	services bootstrap.Services
	bootErr  error

	finishOnce sync.Once
	finished   chan struct{}
}

func NewApp(formatter *output.Formatter, logger zerolog.Logger) *App {
	return &App{
		formatter: formatter,
		logger:    logger,
		finished:  make(chan struct{}),
	}
}

func (a *App) startup(ctx context.Context, cfg *config.Config) {
	a.ctx = ctx

	services, err := bootstrap.Build(cfg, a, a.logger)
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}
	a.services = services
}

// StartRecording begins a session with the configured or requested options.
func (a *App) StartRecording(req domain.StartRequest) (domain.RecordingSession, error) {
	if err := a.requireReady(); err != nil {
		return domain.RecordingSession{}, err
	}
	session, err := a.services.Controller.Start(a.ctx, req)
	if err != nil {
		return domain.RecordingSession{}, err
	}
	a.formatter.RecordingStarted(session)
	return session, nil
}

// StopRecording ends the session, or returns the result of one that already
// ended on its own.
func (a *App) StopRecording(ctx context.Context) (domain.StopResult, error) {
	if err := a.requireReady(); err != nil {
		return domain.StopResult{}, err
	}
	result, err := a.services.Controller.Stop(ctx)
	if errors.Is(err, usecase.ErrNoActiveSession) {
		if last, ok := a.services.Controller.LastResult(); ok {
			return last, nil
		}
	}
	return result, err
}

// Finished is closed once the current session has completed.
func (a *App) Finished() <-chan struct{} {
	return a.finished
}

// WaitUploads blocks until in-flight chunk uploads finish.
func (a *App) WaitUploads() {
	if a.services.Uploader != nil {
		a.services.Uploader.Wait()
	}
}

// GetStatus returns the current session status.
func (a *App) GetStatus() domain.RecordingSession {
	if a.services.Controller == nil {
		return domain.RecordingSession{Status: domain.SessionStatusError}
	}
	return a.services.Controller.Status()
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.services.Controller == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// SessionStateChanged prints lifecycle updates.
func (a *App) SessionStateChanged(status domain.SessionStatus, reason domain.SessionStateReason) {
	a.formatter.State(status, sessionReasonMessage(reason))
	if status == domain.SessionStatusCompleted {
		a.finishOnce.Do(func() { close(a.finished) })
	}
}

// ElapsedChanged redraws the progress line.
func (a *App) ElapsedChanged(elapsed int, max int) {
	a.formatter.Elapsed(elapsed, max)
}

// SessionError prints backend errors.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	a.logger.Debug().Str("code", string(code)).Str("detail", detail).Msg("Session error")
	msg := errorMessage(code, detail)
	if msg != detail && detail != "" {
		msg = msg + ": " + detail
	}
	a.formatter.Error(msg)
}

func sessionReasonMessage(reason domain.SessionStateReason) string {
	switch reason {
	case domain.SessionReasonRecordingStarted:
		return "Recording started"
	case domain.SessionReasonStopRequested:
		return "Stopping. Uploading final segment..."
	case domain.SessionReasonQuotaExhausted:
		return "Recording limit reached. Uploading final segment..."
	case domain.SessionReasonSessionCompleted:
		return "Session completed"
	case domain.SessionReasonRegisterFailed:
		return "Could not register the session"
	case domain.SessionReasonAcquireFailed:
		return "Could not capture audio"
	case domain.SessionReasonRecorderFailed:
		return "Could not start the recorder"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeRegistration:
		return "Session registration failed"
	case domain.ErrorCodeAcquisition:
		return "Audio capture failed"
	case domain.ErrorCodeRecorder:
		return "Recorder failed"
	case domain.ErrorCodeAudioStop:
		return "Audio stop issue"
	case domain.ErrorCodeRelease:
		return "Device release issue"
	case domain.ErrorCodeTermination:
		return "Session end notification failed"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
