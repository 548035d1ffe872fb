package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Session metrics
	SessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meetcap_sessions_total",
			Help: "Recording sessions by outcome",
		},
		[]string{"mode", "outcome"},
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "meetcap_active_sessions",
			Help: "Number of sessions currently recording",
		},
	)

	RecordedSeconds = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "meetcap_recorded_seconds_total",
			Help: "Elapsed recording seconds across all sessions",
		},
	)

	// Segment metrics
	SegmentsSealed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "meetcap_segments_sealed_total",
			Help: "Audio segments sealed by the recorder",
		},
	)

	// Upload metrics
	ChunkUploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meetcap_chunk_uploads_total",
			Help: "Chunk uploads by result",
		},
		[]string{"result"},
	)

	ChunkUploadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "meetcap_chunk_upload_duration_seconds",
			Help:    "Chunk upload duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	ChunkUploadBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "meetcap_chunk_upload_bytes",
			Help:    "Size of uploaded chunks in bytes",
			Buckets: prometheus.ExponentialBuckets(64*1024, 2, 10),
		},
	)

	UploadsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "meetcap_chunk_uploads_in_flight",
			Help: "Chunk uploads not yet completed",
		},
	)
)

func init() {
	prometheus.MustRegister(
		SessionsTotal,
		ActiveSessions,
		RecordedSeconds,
		SegmentsSealed,
		ChunkUploadsTotal,
		ChunkUploadDuration,
		ChunkUploadBytes,
		UploadsInFlight,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Starting metrics server")

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.server.Addr
	}
	return s.listener.Addr().String()
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
