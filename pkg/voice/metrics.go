package voice

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus metrics of the voice pipeline. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Session metrics
	SessionsTotal  *prometheus.CounterVec
	SessionsActive prometheus.Gauge

	// Capture metrics
	FramesCaptured prometheus.Counter
	FramesSent     prometheus.Counter
	FramesDropped  prometheus.Counter
	QueueDepth     prometheus.Gauge

	// Playback metrics
	ChunksPlayed    prometheus.Counter
	ChunksMalformed prometheus.Counter
	Interruptions   prometheus.Counter

	AudioBytesTotal   *prometheus.CounterVec
	TranscriptEntries *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance with its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "nova"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SessionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "voice",
				Name:      "sessions_total",
				Help:      "Voice sessions by outcome",
			},
			[]string{"result"},
		),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "voice",
			Name:      "sessions_active",
			Help:      "Voice sessions currently connected",
		}),
		FramesCaptured: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "voice",
			Name:      "frames_captured_total",
			Help:      "Microphone frames encoded",
		}),
		FramesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "voice",
			Name:      "frames_sent_total",
			Help:      "Microphone frames sent to the service",
		}),
		FramesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "voice",
			Name:      "frames_dropped_total",
			Help:      "Microphone frames dropped by the outbound queue",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "voice",
			Name:      "queue_depth",
			Help:      "Frames waiting in the outbound queue",
		}),
		ChunksPlayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "voice",
			Name:      "chunks_played_total",
			Help:      "Inbound audio chunks scheduled for playback",
		}),
		ChunksMalformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "voice",
			Name:      "chunks_malformed_total",
			Help:      "Inbound audio chunks dropped because they could not be decoded",
		}),
		Interruptions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "voice",
			Name:      "interruptions_total",
			Help:      "Server interruptions that stopped playback",
		}),
		AudioBytesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "voice",
				Name:      "audio_bytes_total",
				Help:      "PCM16 bytes by direction",
			},
			[]string{"direction"},
		),
		TranscriptEntries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "voice",
				Name:      "transcript_entries_total",
				Help:      "Transcript fragments by speaker",
			},
			[]string{"speaker"},
		),
	}

	m.registry.MustRegister(
		m.SessionsTotal,
		m.SessionsActive,
		m.FramesCaptured,
		m.FramesSent,
		m.FramesDropped,
		m.QueueDepth,
		m.ChunksPlayed,
		m.ChunksMalformed,
		m.Interruptions,
		m.AudioBytesTotal,
		m.TranscriptEntries,
	)
	return m
}

// Registry returns the registry holding the metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) sessionStarted() {
	if m == nil {
		return
	}
	m.SessionsTotal.WithLabelValues("started").Inc()
	m.SessionsActive.Inc()
}

func (m *Metrics) sessionFailed() {
	if m == nil {
		return
	}
	m.SessionsTotal.WithLabelValues("failed").Inc()
}

func (m *Metrics) sessionEnded(result string) {
	if m == nil {
		return
	}
	m.SessionsTotal.WithLabelValues(result).Inc()
	m.SessionsActive.Dec()
}

func (m *Metrics) frameCaptured(bytes int, depth int, dropped int64) {
	if m == nil {
		return
	}
	m.FramesCaptured.Inc()
	m.AudioBytesTotal.WithLabelValues("in").Add(float64(bytes))
	m.QueueDepth.Set(float64(depth))
	if dropped > 0 {
		m.FramesDropped.Add(float64(dropped))
	}
}

func (m *Metrics) frameSent(depth int) {
	if m == nil {
		return
	}
	m.FramesSent.Inc()
	m.QueueDepth.Set(float64(depth))
}

func (m *Metrics) chunkPlayed(bytes int) {
	if m == nil {
		return
	}
	m.ChunksPlayed.Inc()
	m.AudioBytesTotal.WithLabelValues("out").Add(float64(bytes))
}

func (m *Metrics) chunkMalformed() {
	if m == nil {
		return
	}
	m.ChunksMalformed.Inc()
}

func (m *Metrics) interrupted() {
	if m == nil {
		return
	}
	m.Interruptions.Inc()
}

func (m *Metrics) transcript(speaker Speaker) {
	if m == nil {
		return
	}
	m.TranscriptEntries.WithLabelValues(string(speaker)).Inc()
}
