// Package metrics exposes the Prometheus collectors for conversion runs,
// pipeline stages, and the TTS worker pool. A process registers these once
// at startup (promauto does that at package init) and serves them over
// cmd/server/main.go's /metrics endpoint via promhttp.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsActive tracks conversions currently running (started, not yet
	// terminal).
	RunsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "narrationcast_runs_active",
		Help: "Conversions currently running",
	})

	// RunsTotal counts terminal conversions by outcome status.
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "narrationcast_runs_total",
		Help: "Conversions completed, by terminal status",
	}, []string{"status"})

	// StepDuration is per-step wall-clock latency within the pipeline.
	StepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "narrationcast_step_duration_seconds",
		Help:    "Pipeline step latency",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	}, []string{"step"})

	// StepErrors counts step failures by step name and error kind.
	StepErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "narrationcast_step_errors_total",
		Help: "Pipeline step failures, by step and error kind",
	}, []string{"step", "kind"})

	// LLMBlockDuration is per-block LLM call latency, split by pass
	// (extract/assign).
	LLMBlockDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "narrationcast_llm_block_duration_seconds",
		Help:    "LLM pass latency per block",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"pass"})

	// LLMRetries counts LLM retry attempts by pass.
	LLMRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "narrationcast_llm_retries_total",
		Help: "LLM call retry attempts, by pass",
	}, []string{"pass"})

	// TTSWorkersByState reports the current worker pool composition.
	TTSWorkersByState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "narrationcast_tts_workers",
		Help: "TTS workers currently in each state",
	}, []string{"state"})

	// TTSFragmentsTotal counts synthesized fragments delivered.
	TTSFragmentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "narrationcast_tts_fragments_total",
		Help: "Audio fragments produced by the TTS worker pool",
	})

	// TTSReconnectsTotal counts worker reconnect attempts after a
	// retriable send failure.
	TTSReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "narrationcast_tts_reconnects_total",
		Help: "TTS worker reconnect attempts after a retriable failure",
	})

	// TTSPlateauWarnings counts health-recovery warnings emitted when every
	// worker is simultaneously reconnecting at the backoff plateau.
	TTSPlateauWarnings = promauto.NewCounter(prometheus.CounterOpts{
		Name: "narrationcast_tts_plateau_warnings_total",
		Help: "All-workers-reconnecting health warnings at the backoff plateau",
	})

	// MergedFilesTotal counts output files written by the audio merger.
	MergedFilesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "narrationcast_merged_files_total",
		Help: "Merged output files written",
	})
)
