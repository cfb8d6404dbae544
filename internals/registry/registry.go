// Package registry is the TopicManager backing store: it owns the set of
// live topics, creates and tears them down, and coordinates the broker-wide
// graceful shutdown sequence.
package registry

import (
	"context"
	"regexp"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/busline/pubsubd/internals/config"
	"github.com/busline/pubsubd/internals/metrics"
	"github.com/busline/pubsubd/internals/topic"
)

var topicNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,256}$`)

// ValidTopicName reports whether name satisfies the wire schema's topic name
// constraint, [A-Za-z0-9_-]{1,256}.
func ValidTopicName(name string) bool {
	return topicNamePattern.MatchString(name)
}

// TopicInfo summarizes a topic for listing endpoints.
type TopicInfo struct {
	Name            string `json:"name"`
	State           string `json:"state"`
	Subscribers     int    `json:"subscribers"`
	Published       uint64 `json:"published"`
	Delivered       uint64 `json:"delivered"`
	Dropped         uint64 `json:"dropped"`
	RingBufferSize  int    `json:"ring_buffer_size"`
	QueueDepth      int    `json:"queue_depth"`
}

// TopicStats is an alias of TopicInfo kept distinct for the stats endpoint's
// own JSON shape, in case the two diverge later.
type TopicStats = TopicInfo

// Registry owns every topic in the broker. CreateTopic is idempotent;
// DeleteTopic blocks until the topic has fully drained (bounded by the
// caller's context).
type Registry struct {
	mu     sync.RWMutex
	topics map[string]*topic.Topic

	cfg     *config.Config
	metrics *metrics.Metrics
	log     zerolog.Logger

	shuttingDown int32
}

// New creates an empty registry.
func New(cfg *config.Config, m *metrics.Metrics, logger zerolog.Logger) *Registry {
	return &Registry{
		topics:  make(map[string]*topic.Topic),
		cfg:     cfg,
		metrics: m,
		log:     logger,
	}
}

func (r *Registry) topicConfig() topic.Config {
	return topic.Config{
		QueueCapacity: r.cfg.IngressQueueCapacity,
		RingCapacity:  r.cfg.RingBufferCapacity,
		BatchSize:     r.cfg.BatchSize,
		BatchTimeout:  r.cfg.BatchTimeout,
		SendDeadline:  r.cfg.SendDeadline,
	}
}

// CreateTopic creates a topic named name if it doesn't already exist.
// Idempotent: calling it again for an existing topic returns created=false
// and no error, rather than failing.
func (r *Registry) CreateTopic(name string) (created bool, err error) {
	if !ValidTopicName(name) {
		return false, ErrInvalidTopicName
	}
	if r.IsShuttingDown() {
		return false, ErrShuttingDown
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.topics[name]; exists {
		return false, nil
	}

	t, err := topic.New(name, r.topicConfig(), r.metrics, r.log)
	if err != nil {
		return false, err
	}
	r.topics[name] = t
	r.metrics.IncTopics()
	r.log.Info().Str("topic", name).Msg("topic created")
	return true, nil
}

// DeleteTopic drains and removes a topic, blocking until the topic's worker
// has exited (bounded by ctx) and every remaining subscriber has been closed.
func (r *Registry) DeleteTopic(ctx context.Context, name string) error {
	r.mu.Lock()
	t, exists := r.topics[name]
	if !exists {
		r.mu.Unlock()
		return ErrTopicNotFound
	}
	delete(r.topics, name)
	r.mu.Unlock()

	t.Shutdown(ctx)
	r.metrics.DecTopics()
	r.metrics.RemoveTopic(name)
	r.log.Info().Str("topic", name).Msg("topic deleted")
	return nil
}

// GetTopic retrieves a topic by name.
func (r *Registry) GetTopic(name string) (*topic.Topic, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, exists := r.topics[name]
	return t, exists
}

// ListTopics returns a snapshot of every topic in the registry.
func (r *Registry) ListTopics() []TopicInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]TopicInfo, 0, len(r.topics))
	for name, t := range r.topics {
		out = append(out, topicInfo(name, t))
	}
	return out
}

// Stats returns per-topic statistics keyed by topic name.
func (r *Registry) Stats() map[string]TopicStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]TopicStats, len(r.topics))
	for name, t := range r.topics {
		out[name] = topicInfo(name, t)
	}
	return out
}

func topicInfo(name string, t *topic.Topic) TopicInfo {
	return TopicInfo{
		Name:           name,
		State:          t.State().String(),
		Subscribers:    t.SubscriberCount(),
		Published:      t.PublishedCount(),
		Delivered:      t.DeliveredCount(),
		Dropped:        t.DroppedCount(),
		RingBufferSize: t.RingCapacity(),
		QueueDepth:     t.QueueDepth(),
	}
}

// TopicCount returns the total number of topics in the registry.
func (r *Registry) TopicCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.topics)
}

// TotalSubscriberCount returns the total number of subscribers across all topics.
func (r *Registry) TotalSubscriberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, t := range r.topics {
		total += t.SubscriberCount()
	}
	return total
}

// IsShuttingDown reports whether ShutdownAll has been invoked, so the control
// plane can refuse new mutating requests with 503 instead of racing shutdown.
func (r *Registry) IsShuttingDown() bool {
	return atomic.LoadInt32(&r.shuttingDown) == 1
}

// ShutdownAll marks the registry as shutting down and drains every topic
// concurrently, bounded by ctx.
func (r *Registry) ShutdownAll(ctx context.Context) {
	atomic.StoreInt32(&r.shuttingDown, 1)

	r.mu.Lock()
	topics := make([]*topic.Topic, 0, len(r.topics))
	for _, t := range r.topics {
		topics = append(topics, t)
	}
	r.topics = make(map[string]*topic.Topic)
	r.mu.Unlock()

	r.log.Info().Int("topic_count", len(topics)).Msg("shutting down registry")

	var wg sync.WaitGroup
	for _, t := range topics {
		wg.Add(1)
		go func(t *topic.Topic) {
			defer wg.Done()
			t.Shutdown(ctx)
		}(t)
	}
	wg.Wait()

	r.log.Info().Msg("registry shutdown complete")
}
