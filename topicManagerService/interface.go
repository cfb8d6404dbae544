// Package topicManagerService is the out-of-core collaborator the control
// plane calls into: topic lifecycle management and broker-wide statistics.
package topicManagerService

import (
	"context"

	"github.com/busline/pubsubd/internals/topic"
)

// TopicInfo describes one topic for listing and monitoring.
type TopicInfo struct {
	Name           string `json:"name"`
	State          string `json:"state"`
	Subscribers    int    `json:"subscribers"`
	Published      uint64 `json:"published"`
	Delivered      uint64 `json:"delivered"`
	Dropped        uint64 `json:"dropped"`
	RingBufferSize int    `json:"ring_buffer_size"`
	QueueDepth     int    `json:"queue_depth"`
}

// TopicStats is the detailed-statistics shape; distinct from TopicInfo in
// case the two views diverge as the control plane grows.
type TopicStats = TopicInfo

// TopicManager is the interface the control plane uses to manage topic
// lifecycle and observe broker state. Mutating calls must be refused while
// IsShuttingDown reports true.
type TopicManager interface {
	// CreateTopic creates name if it doesn't exist. created is false when the
	// topic already existed; this makes create idempotent.
	CreateTopic(name string) (created bool, err error)

	// DeleteTopic drains and removes a topic, bounded by ctx.
	DeleteTopic(ctx context.Context, name string) error

	// ListTopics returns every topic currently registered.
	ListTopics() []TopicInfo

	// GetTopic retrieves a topic by name for the Dispatcher's use.
	GetTopic(name string) (*topic.Topic, bool)

	// Stats returns detailed per-topic statistics.
	Stats() map[string]TopicStats

	// MetricsSnapshot returns the engine-wide metrics snapshot for the
	// control plane's /metrics/snapshot endpoint.
	MetricsSnapshot() map[string]interface{}

	// ProcessSnapshot reports the broker process's own CPU percent and RSS
	// bytes, as last sampled by the background process-stats collector.
	ProcessSnapshot() (cpuPercent float64, rssBytes uint64)

	// IsShuttingDown reports whether the broker has begun graceful shutdown.
	IsShuttingDown() bool
}
