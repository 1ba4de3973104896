package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type ClientMetrics struct {
	RetryCount      *prometheus.GaugeVec
	FailureCount    *prometheus.CounterVec
	RequestCount    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

type EngineMetrics struct {
	JobsSubmittedCount    *prometheus.CounterVec
	JobDurationSec        *prometheus.SummaryVec
	StageDurationSec      *prometheus.SummaryVec
	QueueLength           prometheus.Gauge
	ClipsGeneratedCount   prometheus.Counter
	ClipEncodeDurationSec prometheus.Histogram
	JobsDeletedCount      *prometheus.CounterVec

	SourceClient ClientMetrics
	ModelClient  ClientMetrics
}

func NewMetrics() *EngineMetrics {
	m := &EngineMetrics{
		// Job lifecycle metrics
		JobsSubmittedCount: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "analysis_job_submitted_count",
			Help: "The total number of analysis jobs submitted, broken up by source type",
		}, []string{"source_type"}),
		JobDurationSec: promauto.NewSummaryVec(prometheus.SummaryOpts{
			Name: "analysis_job_duration_seconds",
			Help: "The time that analysis jobs take to run end to end, broken up by success and error code",
		}, []string{"success", "error_code"}),
		StageDurationSec: promauto.NewSummaryVec(prometheus.SummaryOpts{
			Name: "analysis_stage_duration_seconds",
			Help: "The time that each pipeline stage takes to run, broken up by stage and success",
		}, []string{"stage", "success"}),
		QueueLength: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "analysis_queue_length",
			Help: "The number of jobs waiting for the pipeline worker",
		}),
		ClipsGeneratedCount: promauto.NewCounter(prometheus.CounterOpts{
			Name: "clips_generated_count",
			Help: "The total number of clips encoded across all jobs",
		}),
		ClipEncodeDurationSec: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "clip_encode_duration_seconds",
			Help:    "Time taken to encode a single clip",
			Buckets: []float64{1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		JobsDeletedCount: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "analysis_job_deleted_count",
			Help: "The total number of jobs deleted, broken up by reason",
		}, []string{"reason"}),

		// Clients metrics

		SourceClient: ClientMetrics{
			RetryCount: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "source_client_retry_count",
				Help: "The number of retries of a successful source download request",
			}, []string{"host"}),
			FailureCount: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "source_client_failure_count",
				Help: "The total number of failed source download requests",
			}, []string{"host", "status_code"}),
			RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "source_client_request_duration",
				Help:    "Time taken for the source server to start the download response",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			}, []string{"host"}),
		},

		ModelClient: ClientMetrics{
			RetryCount: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "model_client_retry_count",
				Help: "The number of retries of a successful model API request",
			}, []string{"host"}),
			FailureCount: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "model_client_failure_count",
				Help: "The total number of failed model API requests",
			}, []string{"host", "status_code"}),
			RequestCount: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "model_client_request_count",
				Help: "The total number of successful model API requests",
			}, []string{"host"}),
			RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "model_client_request_duration",
				Help:    "Time taken for model API requests",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			}, []string{"host"}),
		},
	}

	return m
}

var Metrics = NewMetrics()
