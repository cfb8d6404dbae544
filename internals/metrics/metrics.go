// Package metrics provides metrics collection and reporting for the delivery
// engine: an in-process snapshot usable from the control plane, mirrored
// onto Prometheus collectors for scraping.
package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks engine-wide and per-topic counters. Every mutation updates
// both the atomic/map bookkeeping backing Snapshot() and the corresponding
// Prometheus collector in the same call, so the two views never diverge.
// Global subscriber count is derived from the per-topic map at Snapshot time
// rather than tracked separately, since it is a live gauge, not a counter.
type Metrics struct {
	totalTopics   uint64
	totalMessages uint64
	totalDropped  uint64

	mu     sync.RWMutex
	topics map[string]*TopicMetrics

	published     *prometheus.CounterVec
	delivered     *prometheus.CounterVec
	dropped       *prometheus.CounterVec
	subscribers   *prometheus.GaugeVec
	queueDepth    *prometheus.GaugeVec
	flushLatency  *prometheus.HistogramVec
	topicsActive  prometheus.Gauge
}

// TopicMetrics tracks metrics for a specific topic.
type TopicMetrics struct {
	Name        string
	Published   uint64
	Delivered   uint64
	Dropped     uint64
	Subscribers uint64
	QueueDepth  uint64
}

// NewMetrics creates a Metrics instance and registers its Prometheus
// collectors against the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		topics: make(map[string]*TopicMetrics),

		published: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pubsubd_messages_published_total",
			Help: "Total number of messages published, by topic.",
		}, []string{"topic"}),
		delivered: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pubsubd_messages_delivered_total",
			Help: "Total number of message deliveries to subscribers, by topic.",
		}, []string{"topic"}),
		dropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pubsubd_messages_dropped_total",
			Help: "Total number of messages dropped by the drop-oldest ingress policy, by topic.",
		}, []string{"topic"}),
		subscribers: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pubsubd_topic_subscribers",
			Help: "Current number of subscribers joined to a topic.",
		}, []string{"topic"}),
		queueDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pubsubd_topic_queue_depth",
			Help: "Current number of messages buffered in a topic's ingress queue.",
		}, []string{"topic"}),
		flushLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pubsubd_flush_latency_seconds",
			Help:    "Time taken to fan a batch out to every subscriber of a topic.",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		}, []string{"topic"}),
		topicsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pubsubd_topics_active",
			Help: "Current number of topics registered with the broker.",
		}),
	}
}

// IncPublished increments the published message counter for a topic.
func (m *Metrics) IncPublished(topic string) {
	atomic.AddUint64(&m.totalMessages, 1)
	m.published.WithLabelValues(topic).Inc()

	m.mu.Lock()
	if m.topics[topic] == nil {
		m.topics[topic] = &TopicMetrics{Name: topic}
	}
	m.topics[topic].Published++
	m.mu.Unlock()
}

// IncDelivered increments the delivered message counter for a topic.
func (m *Metrics) IncDelivered(topic string, n int) {
	if n <= 0 {
		return
	}

	atomic.AddUint64(&m.totalMessages, uint64(n))
	m.delivered.WithLabelValues(topic).Add(float64(n))

	m.mu.Lock()
	if m.topics[topic] == nil {
		m.topics[topic] = &TopicMetrics{Name: topic}
	}
	m.topics[topic].Delivered += uint64(n)
	m.mu.Unlock()
}

// IncDropped increments the dropped message counter for a topic.
func (m *Metrics) IncDropped(topic string, n int) {
	if n <= 0 {
		return
	}

	atomic.AddUint64(&m.totalDropped, uint64(n))
	m.dropped.WithLabelValues(topic).Add(float64(n))

	m.mu.Lock()
	if m.topics[topic] == nil {
		m.topics[topic] = &TopicMetrics{Name: topic}
	}
	m.topics[topic].Dropped += uint64(n)
	m.mu.Unlock()
}

// IncTopics increments the total topics counter.
func (m *Metrics) IncTopics() {
	atomic.AddUint64(&m.totalTopics, 1)
	m.topicsActive.Inc()
}

// DecTopics decrements the total topics counter.
func (m *Metrics) DecTopics() {
	atomic.AddUint64(&m.totalTopics, ^uint64(0))
	m.topicsActive.Dec()
}

// SetSubscriberCount sets the current subscriber count for a topic.
func (m *Metrics) SetSubscriberCount(topic string, count int) {
	if count < 0 {
		count = 0
	}
	m.subscribers.WithLabelValues(topic).Set(float64(count))

	m.mu.Lock()
	if m.topics[topic] == nil {
		m.topics[topic] = &TopicMetrics{Name: topic}
	}
	m.topics[topic].Subscribers = uint64(count)
	m.mu.Unlock()
}

// SetQueueDepth sets the current ingress queue depth for a topic.
func (m *Metrics) SetQueueDepth(topic string, depth int) {
	if depth < 0 {
		depth = 0
	}
	m.queueDepth.WithLabelValues(topic).Set(float64(depth))

	m.mu.Lock()
	if m.topics[topic] == nil {
		m.topics[topic] = &TopicMetrics{Name: topic}
	}
	m.topics[topic].QueueDepth = uint64(depth)
	m.mu.Unlock()
}

// ObserveFlushLatency records the wall-clock time a single fan-out flush took.
func (m *Metrics) ObserveFlushLatency(topic string, seconds float64) {
	m.flushLatency.WithLabelValues(topic).Observe(seconds)
}

// RemoveTopic removes metrics for a specific topic, including its Prometheus
// label set, so a deleted topic stops appearing in scrapes.
func (m *Metrics) RemoveTopic(topic string) {
	m.mu.Lock()
	delete(m.topics, topic)
	m.mu.Unlock()

	m.published.DeleteLabelValues(topic)
	m.delivered.DeleteLabelValues(topic)
	m.dropped.DeleteLabelValues(topic)
	m.subscribers.DeleteLabelValues(topic)
	m.queueDepth.DeleteLabelValues(topic)
	m.flushLatency.DeleteLabelValues(topic)
}

// Snapshot returns a copy of the current metrics suitable for JSON serialization.
func (m *Metrics) Snapshot() map[string]interface{} {
	snapshot := make(map[string]interface{})

	m.mu.RLock()
	var totalSubscribers uint64
	topics := make(map[string]map[string]interface{})
	for name, tm := range m.topics {
		totalSubscribers += tm.Subscribers
		topics[name] = map[string]interface{}{
			"published":   tm.Published,
			"delivered":   tm.Delivered,
			"dropped":     tm.Dropped,
			"subscribers": tm.Subscribers,
			"queue_depth": tm.QueueDepth,
		}
	}
	m.mu.RUnlock()

	snapshot["global"] = map[string]interface{}{
		"topics":      atomic.LoadUint64(&m.totalTopics),
		"subscribers": totalSubscribers,
		"messages":    atomic.LoadUint64(&m.totalMessages),
		"dropped":     atomic.LoadUint64(&m.totalDropped),
	}
	snapshot["topics"] = topics
	return snapshot
}

// GetTopicMetrics returns metrics for a specific topic.
func (m *Metrics) GetTopicMetrics(topic string) *TopicMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if tm, exists := m.topics[topic]; exists {
		cp := *tm
		return &cp
	}
	return nil
}

// GetAllTopicMetrics returns all topic metrics.
func (m *Metrics) GetAllTopicMetrics() map[string]*TopicMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]*TopicMetrics)
	for name, tm := range m.topics {
		cp := *tm
		result[name] = &cp
	}
	return result
}
