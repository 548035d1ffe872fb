package audio

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
	"sync"

	"github.com/rs/zerolog"

	"meetcap/internal/ports"
)

var ErrGraphClosed = errors.New("mixing graph closed")

// PCMMixer sums s16le sources sample by sample, clipping at full scale.
type PCMMixer struct {
	logger zerolog.Logger
}

func NewPCMMixer(logger zerolog.Logger) *PCMMixer {
	return &PCMMixer{logger: logger.With().Str("component", "mixer").Logger()}
}

func (m *PCMMixer) NewGraph() (ports.MixingGraph, error) {
	g := &mixGraph{logger: m.logger}
	g.destination = &mixedStream{graph: g, track: newVirtualTrack("mixed-audio", ports.TrackKindAudio)}
	return g, nil
}

type mixSource struct {
	reader io.Reader
	done   bool
}

type mixGraph struct {
	logger      zerolog.Logger
	destination *mixedStream

	mu      sync.Mutex
	sources []*mixSource
	closed  bool

	closeOnce sync.Once
}

func (g *mixGraph) Connect(source ports.MediaStream) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrGraphClosed
	}
	g.sources = append(g.sources, &mixSource{reader: source})
	return nil
}

func (g *mixGraph) Destination() ports.MediaStream {
	return g.destination
}

func (g *mixGraph) Close() error {
	g.closeOnce.Do(func() {
		g.mu.Lock()
		g.closed = true
		count := len(g.sources)
		g.sources = nil
		g.mu.Unlock()

		_ = g.destination.track.Stop()
		g.logger.Debug().Int("sources", count).Msg("Mixing graph closed")
	})
	return nil
}

// read fills p with the sum of one equal-length read from every live source.
// Sources are read concurrently so one slow source does not serialize the rest.
func (g *mixGraph) read(p []byte) (int, error) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return 0, io.EOF
	}
	live := make([]*mixSource, 0, len(g.sources))
	for _, source := range g.sources {
		if !source.done {
			live = append(live, source)
		}
	}
	g.mu.Unlock()

	if len(live) == 0 {
		return 0, io.EOF
	}

	size := len(p) &^ 1
	if size == 0 {
		return 0, nil
	}

	buffers := make([][]byte, len(live))
	counts := make([]int, len(live))
	var wg sync.WaitGroup
	for i, source := range live {
		buffers[i] = make([]byte, size)
		wg.Add(1)
		go func(i int, source *mixSource) {
			defer wg.Done()
			n, err := io.ReadFull(source.reader, buffers[i])
			counts[i] = n &^ 1
			if err != nil {
				g.mu.Lock()
				source.done = true
				g.mu.Unlock()
			}
		}(i, source)
	}
	wg.Wait()

	longest := 0
	for _, n := range counts {
		if n > longest {
			longest = n
		}
	}
	if longest == 0 {
		return 0, io.EOF
	}

	mixInto(p[:longest], buffers, counts)
	return longest, nil
}

func mixInto(dst []byte, buffers [][]byte, counts []int) {
	for off := 0; off+1 < len(dst); off += 2 {
		sum := 0
		for i, buf := range buffers {
			if off+1 < counts[i] {
				sum += int(int16(binary.LittleEndian.Uint16(buf[off:])))
			}
		}
		if sum > math.MaxInt16 {
			sum = math.MaxInt16
		} else if sum < math.MinInt16 {
			sum = math.MinInt16
		}
		binary.LittleEndian.PutUint16(dst[off:], uint16(int16(sum)))
	}
}

type mixedStream struct {
	graph *mixGraph
	track *virtualTrack
}

func (s *mixedStream) Read(p []byte) (int, error) { return s.graph.read(p) }

func (s *mixedStream) Tracks() []ports.MediaTrack { return []ports.MediaTrack{s.track} }

func (s *mixedStream) AudioTracks() []ports.MediaTrack { return []ports.MediaTrack{s.track} }
