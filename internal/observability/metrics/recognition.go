package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// RecognitionMetrics contains Prometheus metrics for the detect and identify pipeline.
type RecognitionMetrics struct {
	requestsTotal        *prometheus.CounterVec
	requestDuration      *prometheus.HistogramVec
	operationsTotal      *prometheus.CounterVec
	operationDuration    *prometheus.HistogramVec
	operationErrors      *prometheus.CounterVec
	detectionsTotal      *prometheus.CounterVec
	classificationsTotal *prometheus.CounterVec
	confidence           *prometheus.HistogramVec
	inflight             prometheus.Gauge

	collectors []prometheus.Collector
}

// NewRecognitionMetrics creates and registers recognition metrics.
func NewRecognitionMetrics(registry prometheus.Registerer) (*RecognitionMetrics, error) {
	m := &RecognitionMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *RecognitionMetrics) initMetrics() {
	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fishnet_recognition_requests_total",
			Help: "Total number of recognition requests",
		},
		[]string{"endpoint", "status"}, // endpoint: detect_fish, identify_fish; status: success, failed
	)

	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fishnet_recognition_request_duration_seconds",
			Help:    "Time taken to handle a recognition request",
			Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount12), // 10ms to ~20s
		},
		[]string{"endpoint"},
	)

	m.operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fishnet_recognition_operations_total",
			Help: "Total number of pipeline operations",
		},
		[]string{"operation", "status"}, // operation: store, decode, detect, classify, annotate
	)

	m.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fishnet_recognition_operation_duration_seconds",
			Help:    "Time taken by pipeline operations",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount15), // 1ms to ~32s
		},
		[]string{"operation"},
	)

	m.operationErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fishnet_recognition_operation_errors_total",
			Help: "Total number of pipeline operation errors",
		},
		[]string{"operation", "error_type"},
	)

	m.detectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fishnet_detections_total",
			Help: "Total number of detector results",
		},
		[]string{"result"}, // result: found, not_found
	)

	m.classificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fishnet_classifications_total",
			Help: "Total number of classifications per species",
		},
		[]string{"label"},
	)

	m.confidence = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fishnet_confidence_score",
			Help:    "Distribution of reported confidence scores",
			Buckets: prometheus.LinearBuckets(ConfidenceBucket, ConfidenceBucket, ConfidenceCount),
		},
		[]string{"operation"},
	)

	m.inflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fishnet_recognition_inflight_requests",
		Help: "Number of recognition requests being processed",
	})

	m.collectors = []prometheus.Collector{
		m.requestsTotal,
		m.requestDuration,
		m.operationsTotal,
		m.operationDuration,
		m.operationErrors,
		m.detectionsTotal,
		m.classificationsTotal,
		m.confidence,
		m.inflight,
	}
}

// Describe implements the Collector interface
func (m *RecognitionMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *RecognitionMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RequestStarted increments the in-flight gauge; call RequestFinished when done.
func (m *RecognitionMetrics) RequestStarted() { m.inflight.Inc() }

// RequestFinished records a completed request.
func (m *RecognitionMetrics) RequestFinished(endpoint, status string, seconds float64) {
	m.inflight.Dec()
	m.requestsTotal.WithLabelValues(endpoint, status).Inc()
	m.requestDuration.WithLabelValues(endpoint).Observe(seconds)
}

// RecordOperation implements Recorder.
func (m *RecognitionMetrics) RecordOperation(operation, status string) {
	m.operationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordDuration implements Recorder.
func (m *RecognitionMetrics) RecordDuration(operation string, seconds float64) {
	m.operationDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordError implements Recorder.
func (m *RecognitionMetrics) RecordError(operation, errorType string) {
	m.operationErrors.WithLabelValues(operation, errorType).Inc()
}

// RecordDetection records whether the detector found a fish.
func (m *RecognitionMetrics) RecordDetection(found bool, confidence float64) {
	if !found {
		m.detectionsTotal.WithLabelValues(ResultNotFound).Inc()
		return
	}
	m.detectionsTotal.WithLabelValues(ResultFound).Inc()
	m.confidence.WithLabelValues(OpDetect).Observe(confidence)
}

// RecordClassification records the identified species.
func (m *RecognitionMetrics) RecordClassification(label string, confidence float64) {
	m.classificationsTotal.WithLabelValues(label).Inc()
	m.confidence.WithLabelValues(OpClassify).Observe(confidence)
}
