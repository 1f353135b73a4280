package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	offline "github.com/PKTonmoy/cochin-sub004"
)

// Metrics implements offline.Observer on a private Prometheus registry.
type Metrics struct {
	registry           *prometheus.Registry
	cacheLookups       *prometheus.CounterVec
	cacheStoreErrors   *prometheus.CounterVec
	strategyResponses  *prometheus.CounterVec
	queueDepth         prometheus.Gauge
	queueRejected      prometheus.Counter
	replayResults      *prometheus.CounterVec
	pushReceived       *prometheus.CounterVec
	notificationClicks *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "offline_cache_lookups_total",
		Help: "Total cache lookups",
	}, []string{"role", "result"})

	cacheStoreErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "offline_cache_store_errors_total",
		Help: "Total cache store failures treated as misses",
	}, []string{"op"})

	strategyResponses := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "offline_strategy_responses_total",
		Help: "Total intercepted responses by strategy and source",
	}, []string{"strategy", "source"})

	queueDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "offline_sync_queue_depth",
		Help: "Entries waiting in the sync queue",
	})

	queueRejected := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "offline_sync_queue_rejected_total",
		Help: "Total writes rejected because the sync queue was full",
	})

	replayResults := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "offline_sync_replays_total",
		Help: "Total replay attempts by outcome",
	}, []string{"outcome"})

	pushReceived := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "offline_push_received_total",
		Help: "Total push messages received",
	}, []string{"decoded"})

	notificationClicks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "offline_notification_clicks_total",
		Help: "Total notification clicks by resolution",
	}, []string{"outcome"})

	registry.MustRegister(
		cacheLookups,
		cacheStoreErrors,
		strategyResponses,
		queueDepth,
		queueRejected,
		replayResults,
		pushReceived,
		notificationClicks,
	)

	return &Metrics{
		registry:           registry,
		cacheLookups:       cacheLookups,
		cacheStoreErrors:   cacheStoreErrors,
		strategyResponses:  strategyResponses,
		queueDepth:         queueDepth,
		queueRejected:      queueRejected,
		replayResults:      replayResults,
		pushReceived:       pushReceived,
		notificationClicks: notificationClicks,
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) CacheLookup(role offline.Role, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(string(role), result).Inc()
}

func (m *Metrics) CacheStoreError(op string) {
	m.cacheStoreErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) StrategyResponse(policy offline.Policy, source string) {
	m.strategyResponses.WithLabelValues(policy.String(), source).Inc()
}

func (m *Metrics) QueueDepth(n int) {
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) QueueRejected() {
	m.queueRejected.Inc()
}

func (m *Metrics) ReplayResult(outcome string) {
	m.replayResults.WithLabelValues(outcome).Inc()
}

func (m *Metrics) PushReceived(decoded bool) {
	label := "false"
	if decoded {
		label = "true"
	}
	m.pushReceived.WithLabelValues(label).Inc()
}

func (m *Metrics) NotificationClick(outcome offline.ClickOutcome) {
	m.notificationClicks.WithLabelValues(string(outcome)).Inc()
}

var _ offline.Observer = (*Metrics)(nil)
