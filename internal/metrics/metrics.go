package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pipeline_requests_active",
		Help: "Currently active /process requests",
	})

	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_requests_total",
		Help: "Total /process requests by final status",
	}, []string{"status"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipeline_stage_duration_seconds",
		Help:    "Per-stage latency",
		Buckets: []float64{0.05, 0.1, 0.2, 0.5, 1.0, 2.0, 5.0, 15.0, 60.0, 300.0},
	}, []string{"stage"})

	E2EDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pipeline_e2e_duration_seconds",
		Help:    "End-to-end latency from request start to RETURN",
		Buckets: []float64{0.5, 1.0, 5.0, 15.0, 60.0, 300.0, 900.0},
	})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_errors_total",
		Help: "Error counts by stage and error kind",
	}, []string{"stage", "error_kind"})

	ASRDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "asr_audio_duration_seconds",
		Help:    "Duration of audio submitted to the ASR engine",
		Buckets: []float64{5, 30, 60, 300, 900, 3600, 7200},
	})

	DiarizedSpeakers = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "diarization_speaker_count",
		Help:    "Distinct speaker ids produced per request",
		Buckets: []float64{1, 2, 3, 4, 5, 8, 12},
	})

	VoiceMatchAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voiceprint_match_attempts_total",
		Help: "Voiceprint match attempts by outcome",
	}, []string{"outcome"})

	EmbeddingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pipeline_embedding_duration_seconds",
		Help:    "Embedding generation latency",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.2, 0.5, 1.0},
	})

	RAGDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pipeline_rag_duration_seconds",
		Help:    "History/RAG retrieval latency (embed + search)",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.2, 0.5, 1.0},
	})

	LLMRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_orchestrator_retries_total",
		Help: "LLM orchestrator retry attempts by error kind",
	}, []string{"error_kind"})

	ArchiveChunksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "archive_chunks_upserted_total",
		Help: "Total chunks upserted by the archive service",
	})

	HotwordReloadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hotword_reloads_total",
		Help: "Total hotword table reloads",
	})
)
