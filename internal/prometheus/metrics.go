package prometheus

import "github.com/prometheus/client_golang/prometheus"

const (
	webhookDurationBucketStart  = 0.005
	webhookDurationBucketFactor = 2.0
	webhookDurationBucketCount  = 14
)

const (
	pipelineDurationBucketStart  = 1.0
	pipelineDurationBucketFactor = 2.0
	pipelineDurationBucketCount  = 10
)

const (
	synthesisDurationBucketStart  = 0.05
	synthesisDurationBucketFactor = 2.5
	synthesisDurationBucketCount  = 10
)

var WebhookEventDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name: "webhook_event_duration_seconds",
		Help: "Time taken to handle an inbound provider callback",
		Buckets: prometheus.ExponentialBuckets(
			webhookDurationBucketStart,
			webhookDurationBucketFactor,
			webhookDurationBucketCount,
		),
	},
	[]string{"event_kind"},
)

var TranscriptPipelineDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name: "transcript_pipeline_duration_seconds",
		Help: "End-to-end time of a transcript acquisition run",
		Buckets: prometheus.ExponentialBuckets(
			pipelineDurationBucketStart,
			pipelineDurationBucketFactor,
			pipelineDurationBucketCount,
		),
	},
	[]string{"outcome"},
)

var TranscriptPollAttempts = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "transcript_poll_attempts",
		Help:    "Poll attempts consumed before a transcript job settled",
		Buckets: prometheus.LinearBuckets(1, 2, 15),
	},
)

var InsightSynthesisDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name: "insight_synthesis_duration_seconds",
		Help: "Time taken to synthesize an insight",
		Buckets: prometheus.ExponentialBuckets(
			synthesisDurationBucketStart,
			synthesisDurationBucketFactor,
			synthesisDurationBucketCount,
		),
	},
	[]string{"strategy"},
)

var RecordingCoordinatorActions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "recording_coordinator_actions_total",
		Help: "Recording acquisition decisions by action taken",
	},
	[]string{"action"},
)

var MinioOperationDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "minio_operation_duration_seconds",
		Help:    "Time taken for object storage operations",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	},
	[]string{"operation"},
)

func init() {
	prometheus.MustRegister(WebhookEventDuration)
	prometheus.MustRegister(TranscriptPipelineDuration)
	prometheus.MustRegister(TranscriptPollAttempts)
	prometheus.MustRegister(InsightSynthesisDuration)
	prometheus.MustRegister(RecordingCoordinatorActions)
	prometheus.MustRegister(MinioOperationDuration)
}
