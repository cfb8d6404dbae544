package topicManagerService

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/busline/pubsubd/internals/config"
	"github.com/busline/pubsubd/internals/metrics"
	"github.com/busline/pubsubd/internals/registry"
)

func testService() *TopicManagerServiceImpl {
	cfg := &config.Config{
		IngressQueueCapacity: 100,
		RingBufferCapacity:   10,
		BatchSize:            5,
		BatchTimeout:         10 * time.Millisecond,
		SendDeadline:         500 * time.Millisecond,
	}
	m := metrics.NewMetrics()
	r := registry.New(cfg, m, zerolog.Nop())
	return NewTopicManagerService(r, cfg, m)
}

func TestTopicManagerInterface(t *testing.T) {
	var _ TopicManager = testService()
}

func TestService_CreateAndGetTopic(t *testing.T) {
	s := testService()

	created, err := s.CreateTopic("orders")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Error("expected created=true")
	}

	if _, exists := s.GetTopic("orders"); !exists {
		t.Error("expected topic 'orders' to exist")
	}
}

func TestService_DeleteTopic(t *testing.T) {
	s := testService()
	s.CreateTopic("orders")

	if err := s.DeleteTopic(context.Background(), "orders"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, exists := s.GetTopic("orders"); exists {
		t.Error("expected topic 'orders' to be gone")
	}
}

func TestService_ListAndStats(t *testing.T) {
	s := testService()
	s.CreateTopic("orders")

	if len(s.ListTopics()) != 1 {
		t.Errorf("expected 1 topic listed")
	}
	if _, ok := s.Stats()["orders"]; !ok {
		t.Error("expected stats entry for 'orders'")
	}
}

func TestService_MetricsSnapshot(t *testing.T) {
	s := testService()
	s.CreateTopic("orders")

	snap := s.MetricsSnapshot()
	if _, ok := snap["global"]; !ok {
		t.Error("expected 'global' key in metrics snapshot")
	}
}

func TestService_IsShuttingDown(t *testing.T) {
	s := testService()
	if s.IsShuttingDown() {
		t.Error("fresh service should not be shutting down")
	}
}

func TestService_ProcessSnapshot_NoSamplerIsZero(t *testing.T) {
	s := testService()
	cpuPercent, rssBytes := s.ProcessSnapshot()
	if cpuPercent != 0 || rssBytes != 0 {
		t.Errorf("expected zero values with no process-stats sampler wired, got cpu=%v rss=%v", cpuPercent, rssBytes)
	}
}
