package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal общее количество запросов
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// RequestDuration продолжительность запросов
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// ReadingsReceived принятые показания по источнику (mqtt, http)
	ReadingsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "readings_received_total",
			Help: "Total number of sensor readings received",
		},
		[]string{"source"},
	)

	// ReadingsDropped показания, отброшенные из-за переполнения очереди или ошибки
	ReadingsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "readings_dropped_total",
			Help: "Total number of sensor readings dropped",
		},
		[]string{"reason"},
	)

	// AnomaliesDetected обнаруженные аномалии
	AnomaliesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anomalies_detected_total",
			Help: "Total number of anomalies detected",
		},
		[]string{"source", "device_id"},
	)

	// AlertsRaised алерты порогов
	AlertsRaised = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_raised_total",
			Help: "Total number of threshold and anomaly alerts",
		},
		[]string{"type", "severity"},
	)

	// PredictionsTotal запросы прогнозов по типу и результату
	PredictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "predictions_total",
			Help: "Total number of prediction requests",
		},
		[]string{"kind", "outcome"},
	)

	// PredictionLatency задержка расчета прогноза
	PredictionLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prediction_latency_seconds",
			Help:    "Prediction latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"kind"},
	)

	// IngestLatency задержка обработки показания
	IngestLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_latency_seconds",
			Help:    "Reading ingestion latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	// CurrentZScore текущий z-score температуры (gauge)
	CurrentZScore = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "current_zscore",
			Help: "Current temperature z-score for devices",
		},
		[]string{"device_id"},
	)

	// LastReading последнее принятое значение
	LastReading = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "last_reading",
			Help: "Last received value per device",
		},
		[]string{"device_id", "metric_type"},
	)

	// ActiveDevices известные устройства
	ActiveDevices = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_devices",
			Help: "Number of known devices",
		},
	)

	// QueueSize размер очереди обработки
	QueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "processing_queue_size",
			Help: "Current size of the processing queue",
		},
	)

	// RedisOperations операции с Redis
	RedisOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_operations_total",
			Help: "Total number of Redis operations",
		},
		[]string{"operation", "status"},
	)

	// SimulatorPublished публикации симулятора
	SimulatorPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simulator_publish_total",
			Help: "Total number of simulator publish attempts",
		},
		[]string{"device_id", "status"},
	)
)

// Status метка результата операции
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
