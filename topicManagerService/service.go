package topicManagerService

import (
	"context"

	"github.com/busline/pubsubd/internals/config"
	"github.com/busline/pubsubd/internals/metrics"
	"github.com/busline/pubsubd/internals/registry"
	"github.com/busline/pubsubd/internals/topic"
)

// TopicManagerServiceImpl implements TopicManager on top of the registry.
type TopicManagerServiceImpl struct {
	registry     *registry.Registry
	cfg          *config.Config
	metrics      *metrics.Metrics
	processStats *metrics.ProcessStats
}

// NewTopicManagerService creates a topic manager service backed by registry.
func NewTopicManagerService(r *registry.Registry, cfg *config.Config, m *metrics.Metrics) *TopicManagerServiceImpl {
	return &TopicManagerServiceImpl{registry: r, cfg: cfg, metrics: m}
}

// NewTopicManagerServiceWithProcessStats is NewTopicManagerService plus a
// process-stats sampler, surfaced through ProcessSnapshot.
func NewTopicManagerServiceWithProcessStats(r *registry.Registry, cfg *config.Config, m *metrics.Metrics, ps *metrics.ProcessStats) *TopicManagerServiceImpl {
	return &TopicManagerServiceImpl{registry: r, cfg: cfg, metrics: m, processStats: ps}
}

func (s *TopicManagerServiceImpl) CreateTopic(name string) (bool, error) {
	return s.registry.CreateTopic(name)
}

func (s *TopicManagerServiceImpl) DeleteTopic(ctx context.Context, name string) error {
	return s.registry.DeleteTopic(ctx, name)
}

func (s *TopicManagerServiceImpl) ListTopics() []TopicInfo {
	rt := s.registry.ListTopics()
	out := make([]TopicInfo, len(rt))
	for i, t := range rt {
		out[i] = TopicInfo(t)
	}
	return out
}

func (s *TopicManagerServiceImpl) GetTopic(name string) (*topic.Topic, bool) {
	return s.registry.GetTopic(name)
}

func (s *TopicManagerServiceImpl) Stats() map[string]TopicStats {
	rs := s.registry.Stats()
	out := make(map[string]TopicStats, len(rs))
	for name, t := range rs {
		out[name] = TopicStats(t)
	}
	return out
}

func (s *TopicManagerServiceImpl) MetricsSnapshot() map[string]interface{} {
	return s.metrics.Snapshot()
}

func (s *TopicManagerServiceImpl) IsShuttingDown() bool {
	return s.registry.IsShuttingDown()
}

func (s *TopicManagerServiceImpl) ProcessSnapshot() (cpuPercent float64, rssBytes uint64) {
	if s.processStats == nil {
		return 0, 0
	}
	return s.processStats.Snapshot()
}
