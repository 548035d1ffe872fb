package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"meetcap/internal/capture"
	"meetcap/internal/clock"
	"meetcap/internal/domain"
	"meetcap/internal/ports"
	"meetcap/internal/upload"
)

type harness struct {
	clock    *clock.Manual
	devices  *fakeDevices
	mixer    *fakeMixer
	encoders *fakeEncoderFactory
	backend  *fakeBackend
	uploader *upload.Uploader
	events   *fakeEventSink
	ctrl     *SessionController
}

func newHarness() *harness {
	clk := clock.NewManual(time.Date(2026, 3, 4, 9, 5, 0, 0, time.UTC))
	h := &harness{
		clock: clk,
		devices: &fakeDevices{
			mic:     newFakeStream("mic", ports.TrackKindAudio),
			display: newFakeStream("tab", ports.TrackKindVideo, ports.TrackKindAudio),
		},
		mixer:    &fakeMixer{},
		encoders: &fakeEncoderFactory{clock: clk},
		backend:  newFakeBackend(),
		events:   &fakeEventSink{},
	}
	h.uploader = upload.NewUploader(h.backend, upload.Config{}, zerolog.Nop())
	h.ctrl = NewSessionController(
		capture.NewAcquirer(h.devices, h.mixer, zerolog.Nop()),
		h.encoders,
		h.backend,
		h.uploader,
		h.events,
		clk,
		zerolog.Nop(),
		Config{},
	)
	return h
}

type fakeDevices struct {
	mu           sync.Mutex
	mic          *fakeStream
	display      *fakeStream
	micErr       error
	displayErr   error
	micCalls     int
	displayCalls int
}

func (f *fakeDevices) GetUserMedia(_ context.Context, _ ports.AudioConstraints) (ports.MediaStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.micCalls++
	if f.micErr != nil {
		return nil, f.micErr
	}
	return f.mic, nil
}

func (f *fakeDevices) GetDisplayMedia(_ context.Context, _ ports.DisplayConstraints) (ports.MediaStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.displayCalls++
	if f.displayErr != nil {
		return nil, f.displayErr
	}
	return f.display, nil
}

func (f *fakeDevices) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.micCalls + f.displayCalls
}

type fakeTrack struct {
	mu        sync.Mutex
	id        string
	kind      ports.TrackKind
	stopCalls int
}

func (f *fakeTrack) ID() string            { return f.id }
func (f *fakeTrack) Kind() ports.TrackKind { return f.kind }

func (f *fakeTrack) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	return nil
}

func (f *fakeTrack) Live() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopCalls == 0
}

type fakeStream struct {
	tracks []*fakeTrack
}

func newFakeStream(name string, kinds ...ports.TrackKind) *fakeStream {
	s := &fakeStream{}
	for i, kind := range kinds {
		s.tracks = append(s.tracks, &fakeTrack{id: fmt.Sprintf("%s-%s-%d", name, kind, i), kind: kind})
	}
	return s
}

func (f *fakeStream) Read(_ []byte) (int, error) { return 0, nil }

func (f *fakeStream) Tracks() []ports.MediaTrack {
	out := make([]ports.MediaTrack, 0, len(f.tracks))
	for _, track := range f.tracks {
		out = append(out, track)
	}
	return out
}

func (f *fakeStream) AudioTracks() []ports.MediaTrack {
	var out []ports.MediaTrack
	for _, track := range f.tracks {
		if track.kind == ports.TrackKindAudio {
			out = append(out, track)
		}
	}
	return out
}

func (f *fakeStream) liveCount() int {
	live := 0
	for _, track := range f.tracks {
		if track.Live() {
			live++
		}
	}
	return live
}

type fakeMixer struct {
	mu     sync.Mutex
	graphs []*fakeGraph
}

func (f *fakeMixer) NewGraph() (ports.MixingGraph, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	graph := &fakeGraph{destination: newFakeStream("mixed", ports.TrackKindAudio)}
	f.graphs = append(f.graphs, graph)
	return graph, nil
}

type fakeGraph struct {
	mu          sync.Mutex
	sources     int
	destination *fakeStream
	closeCalls  int
}

func (f *fakeGraph) Connect(_ ports.MediaStream) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sources++
	return nil
}

func (f *fakeGraph) Destination() ports.MediaStream { return f.destination }

func (f *fakeGraph) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	return nil
}

// fakeEncoder produces one byte per second of clock time since the last seal.
type fakeEncoderFactory struct {
	mu       sync.Mutex
	clock    *clock.Manual
	err      error
	sealErrs []error
	opts     []ports.EncoderOptions
	encoders []*fakeEncoder
}

func (f *fakeEncoderFactory) NewEncoder(_ ports.MediaStream, opts ports.EncoderOptions) (ports.Encoder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	encoder := &fakeEncoder{clock: f.clock, sealErrs: f.sealErrs}
	f.opts = append(f.opts, opts)
	f.encoders = append(f.encoders, encoder)
	return encoder, nil
}

type fakeEncoder struct {
	clock     *clock.Manual
	lastSeal  time.Time
	stopCalls int
	sealErrs  []error
}

func (f *fakeEncoder) Start() error {
	f.lastSeal = f.clock.Now()
	return nil
}

func (f *fakeEncoder) Seal() ([]byte, error) {
	now := f.clock.Now()
	n := int(now.Sub(f.lastSeal) / time.Second)
	f.lastSeal = now
	var err error
	if len(f.sealErrs) > 0 {
		err, f.sealErrs = f.sealErrs[0], f.sealErrs[1:]
	}
	if n == 0 {
		return nil, err
	}
	return make([]byte, n), err
}

func (f *fakeEncoder) Stop() ([]byte, error) {
	f.stopCalls++
	return f.Seal()
}

type fakeBackend struct {
	mu        sync.Mutex
	nextID    int
	startErr  error
	endErr    error
	failSeq   map[int]error
	gate      chan struct{}
	titles    []string
	chunks    []ports.ChunkUpload
	attempted int
	ended     []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{nextID: 100}
}

func (f *fakeBackend) StartSession(_ context.Context, title string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.titles = append(f.titles, title)
	if f.startErr != nil {
		return "", f.startErr
	}
	f.nextID++
	return fmt.Sprintf("%d", f.nextID), nil
}

func (f *fakeBackend) UploadChunk(_ context.Context, chunk ports.ChunkUpload) (string, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempted++
	if err := f.failSeq[chunk.Sequence]; err != nil {
		return "", err
	}
	f.chunks = append(f.chunks, chunk)
	return fmt.Sprintf("chunk-%d", chunk.Sequence), nil
}

func (f *fakeBackend) EndSession(_ context.Context, sessionID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, sessionID)
	if f.endErr != nil {
		return "", f.endErr
	}
	return "processing", nil
}

func (f *fakeBackend) uploadedSequences() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, 0, len(f.chunks))
	for _, chunk := range f.chunks {
		out = append(out, chunk.Sequence)
	}
	return out
}

func (f *fakeBackend) endedSessions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ended...)
}

type stateEvent struct {
	status domain.SessionStatus
	reason domain.SessionStateReason
}

type errorEvent struct {
	code   domain.ErrorCode
	detail string
}

type fakeEventSink struct {
	mu      sync.Mutex
	states  []stateEvent
	elapsed []int
	errors  []errorEvent
	// onState runs after each state change is recorded.
	onState func()
}

func (f *fakeEventSink) SessionStateChanged(status domain.SessionStatus, reason domain.SessionStateReason) {
	f.mu.Lock()
	f.states = append(f.states, stateEvent{status: status, reason: reason})
	onState := f.onState
	f.mu.Unlock()
	if onState != nil {
		onState()
	}
}

func (f *fakeEventSink) ElapsedChanged(elapsed int, _ int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.elapsed = append(f.elapsed, elapsed)
}

func (f *fakeEventSink) SessionError(code domain.ErrorCode, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, errorEvent{code: code, detail: detail})
}

func (f *fakeEventSink) snapshotStates() []stateEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]stateEvent(nil), f.states...)
}

func (f *fakeEventSink) snapshotElapsed() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.elapsed...)
}

func (f *fakeEventSink) snapshotErrors() []errorEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]errorEvent(nil), f.errors...)
}

func (f *fakeEventSink) hasError(code domain.ErrorCode) bool {
	for _, e := range f.snapshotErrors() {
		if e.code == code {
			return true
		}
	}
	return false
}

var errNetwork = errors.New("network down")
