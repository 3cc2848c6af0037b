package runtime

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	deliveryResultSuccess = "success"
	deliveryResultError   = "error"
	deliveryResultPanic   = "panic"
	deliveryResultDropped = "dropped"
)

// BusMetrics tracks publish and delivery statistics. A nil *BusMetrics is
// valid and records nothing, which is what a bus without metrics uses.
type BusMetrics struct {
	mu sync.RWMutex

	topicCounts map[string]*TopicMetrics
	fallbacks   uint64

	publishedTotal   *prometheus.CounterVec
	deliveriesTotal  *prometheus.CounterVec
	stagedFallbacks  prometheus.Counter
	deliveryDuration *prometheus.HistogramVec
	subscribers      prometheus.Gauge
	pendingMessages  prometheus.Gauge

	registerer prometheus.Registerer
	registered bool
}

// TopicMetrics holds the counters for one published topic.
type TopicMetrics struct {
	Published       uint64    `json:"published"`
	Delivered       uint64    `json:"delivered"`
	Failed          uint64    `json:"failed"`
	Dropped         uint64    `json:"dropped"`
	LastPublishedAt time.Time `json:"last_published_at,omitempty"`
}

// BusMetricsSnapshot provides a point-in-time view of bus metrics.
type BusMetricsSnapshot struct {
	TotalPublished  uint64                   `json:"total_published"`
	TotalDelivered  uint64                   `json:"total_delivered"`
	TotalFailed     uint64                   `json:"total_failed"`
	StagedFallbacks uint64                   `json:"staged_fallbacks"`
	TopicMetrics    map[string]*TopicMetrics `json:"topic_metrics"`
	CollectedAt     time.Time                `json:"collected_at"`
}

// NewBusMetrics creates the collectors. Call Register to expose them.
func NewBusMetrics(registerer prometheus.Registerer) *BusMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &BusMetrics{
		topicCounts: make(map[string]*TopicMetrics),
		registerer:  registerer,
		publishedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowbus",
			Name:      "published_total",
			Help:      "Total number of messages published, by topic",
		}, []string{"topic"}),
		deliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowbus",
			Name:      "deliveries_total",
			Help:      "Total number of handler invocations, by topic and result",
		}, []string{"topic", "result"}),
		stagedFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flowbus",
			Subsystem: "staging",
			Name:      "fallbacks_total",
			Help:      "Messages dispatched inline because the staging queue stayed full",
		}),
		deliveryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "flowbus",
			Name:      "delivery_duration_seconds",
			Help:      "Handler execution time",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
		}, []string{"topic"}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "flowbus",
			Name:      "subscribers_current",
			Help:      "Number of registered subscribers",
		}),
		pendingMessages: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "flowbus",
			Subsystem: "staging",
			Name:      "pending_messages",
			Help:      "Messages waiting in the staging queue",
		}),
	}
}

// Register registers the Prometheus collectors. Safe to call multiple times.
// When another bus already registered the same collectors on the registerer,
// the existing ones are shared.
func (m *BusMetrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	var err error
	if m.publishedTotal, err = registerCollector(m.registerer, m.publishedTotal); err != nil {
		return err
	}
	if m.deliveriesTotal, err = registerCollector(m.registerer, m.deliveriesTotal); err != nil {
		return err
	}
	if m.stagedFallbacks, err = registerCollector(m.registerer, m.stagedFallbacks); err != nil {
		return err
	}
	if m.deliveryDuration, err = registerCollector(m.registerer, m.deliveryDuration); err != nil {
		return err
	}
	if m.subscribers, err = registerCollector(m.registerer, m.subscribers); err != nil {
		return err
	}
	if m.pendingMessages, err = registerCollector(m.registerer, m.pendingMessages); err != nil {
		return err
	}

	m.registered = true
	return nil
}

func registerCollector[C prometheus.Collector](registerer prometheus.Registerer, c C) (C, error) {
	err := registerer.Register(c)
	if err == nil {
		return c, nil
	}
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		if existing, ok := already.ExistingCollector.(C); ok {
			return existing, nil
		}
	}
	return c, err
}

func (m *BusMetrics) recordPublished(topic string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	metrics := m.getOrCreateTopicMetrics(topic)
	metrics.Published++
	metrics.LastPublishedAt = time.Now()
	m.publishedTotal.WithLabelValues(topic).Inc()
}

func (m *BusMetrics) recordDelivery(topic, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	metrics := m.getOrCreateTopicMetrics(topic)
	switch result {
	case deliveryResultSuccess:
		metrics.Delivered++
	case deliveryResultDropped:
		metrics.Dropped++
	default:
		metrics.Failed++
	}
	m.deliveriesTotal.WithLabelValues(topic, result).Inc()
	if result != deliveryResultDropped {
		m.deliveryDuration.WithLabelValues(topic).Observe(d.Seconds())
	}
}

func (m *BusMetrics) recordStagedFallback() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.fallbacks++
	m.mu.Unlock()
	m.stagedFallbacks.Inc()
}

func (m *BusMetrics) setSubscribers(n int) {
	if m == nil {
		return
	}
	m.subscribers.Set(float64(n))
}

func (m *BusMetrics) setPending(n int) {
	if m == nil {
		return
	}
	m.pendingMessages.Set(float64(n))
}

// GetSnapshot returns a point-in-time snapshot of all topic metrics.
func (m *BusMetrics) GetSnapshot() BusMetricsSnapshot {
	snapshot := BusMetricsSnapshot{
		TopicMetrics: make(map[string]*TopicMetrics),
		CollectedAt:  time.Now(),
	}
	if m == nil {
		return snapshot
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for topic, metrics := range m.topicCounts {
		metricsCopy := *metrics
		snapshot.TopicMetrics[topic] = &metricsCopy
		snapshot.TotalPublished += metrics.Published
		snapshot.TotalDelivered += metrics.Delivered
		snapshot.TotalFailed += metrics.Failed
	}
	snapshot.StagedFallbacks = m.fallbacks
	return snapshot
}

// GetTopicMetrics returns a copy of the metrics for topic, or nil.
func (m *BusMetrics) GetTopicMetrics(topic string) *TopicMetrics {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if metrics, ok := m.topicCounts[topic]; ok {
		metricsCopy := *metrics
		return &metricsCopy
	}
	return nil
}

func (m *BusMetrics) getOrCreateTopicMetrics(topic string) *TopicMetrics {
	if metrics, ok := m.topicCounts[topic]; ok {
		return metrics
	}
	metrics := &TopicMetrics{}
	m.topicCounts[topic] = metrics
	return metrics
}

// Reset resets all metrics (useful for testing).
func (m *BusMetrics) Reset() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.topicCounts = make(map[string]*TopicMetrics)
	m.fallbacks = 0
	m.publishedTotal.Reset()
	m.deliveriesTotal.Reset()
	m.deliveryDuration.Reset()
	m.subscribers.Set(0)
	m.pendingMessages.Set(0)
}
