package usecase

import (
	"sync"

	"meetcap/internal/capture"
	"meetcap/internal/clock"
	"meetcap/internal/domain"
	"meetcap/internal/segment"
)

type activeSession struct {
	mu       sync.Mutex
	session  domain.RecordingSession
	segments int

	handle   *capture.SourceHandle
	recorder *segment.Recorder
	ticker   clock.Timer

	stopOnce sync.Once
	done     chan struct{}
	result   domain.StopResult
}

// nextSequence is handed to the recorder, which calls it once per sealed
// segment in seal order.
func (s *activeSession) nextSequence() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.session.NextChunkSequence
	s.session.NextChunkSequence++
	s.segments++
	return seq
}

func (s *activeSession) setStatus(status domain.SessionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.Status = status
}

func (s *activeSession) snapshot() domain.RecordingSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

func (s *activeSession) sessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.SessionID
}
