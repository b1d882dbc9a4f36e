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

	// ReadingsReceived показания, принятые на запись
	ReadingsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensor_readings_received_total",
			Help: "Total number of sensor readings written to the store",
		},
		[]string{"kind"},
	)

	// FeedUpdates доставленные снимки фида
	FeedUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_updates_total",
			Help: "Total number of feed snapshot deliveries",
		},
		[]string{"stream", "mode", "result"},
	)

	// FeedSnapshotSize размер последнего снимка
	FeedSnapshotSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "feed_snapshot_readings",
			Help: "Number of readings in the latest feed snapshot",
		},
		[]string{"stream"},
	)

	// FeedFetchLatency задержка выборки из хранилища
	FeedFetchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feed_fetch_latency_seconds",
			Help:    "Document store fetch latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"collection"},
	)

	// AlertTransitions переходы состояний правил
	AlertTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_transitions_total",
			Help: "Total number of alert rule transitions",
		},
		[]string{"kind", "metric", "priority"},
	)

	// AlertRules количество правил по статусу
	AlertRules = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "alert_rules",
			Help: "Number of alert rules by status",
		},
		[]string{"status"},
	)

	// EvaluationLatency задержка цикла оценки правил
	EvaluationLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "alert_evaluation_latency_seconds",
			Help:    "Alert evaluation cycle latency in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
	)

	// DerivedMetric текущее значение производной метрики
	DerivedMetric = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "derived_metric",
			Help: "Latest derived metric value per device",
		},
		[]string{"device_id", "metric"},
	)

	// DecimationRatio доля точек, оставленных прореживанием
	DecimationRatio = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "decimation_kept_ratio",
			Help:    "Share of input points kept by chart decimation",
			Buckets: []float64{.01, .05, .1, .25, .5, .75, 1},
		},
		[]string{"range"},
	)

	// RedisOperations операции с Redis
	RedisOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_operations_total",
			Help: "Total number of Redis operations",
		},
		[]string{"operation", "status"},
	)

	// EmailsSent отправленные письма
	EmailsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emails_sent_total",
			Help: "Total number of transactional emails by outcome",
		},
		[]string{"kind", "outcome"},
	)

	// AuthAttempts попытки входа
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_attempts_total",
			Help: "Total number of sign-in attempts",
		},
		[]string{"result"},
	)

	// WebsocketClients подключенные клиенты
	WebsocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_clients",
			Help: "Number of connected websocket clients",
		},
	)

	// StoreWrites записи в локальное хранилище
	StoreWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_writes_total",
			Help: "Total number of durable store writes",
		},
		[]string{"key", "status"},
	)
)
