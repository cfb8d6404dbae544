package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/busline/pubsubd/internals/config"
	"github.com/busline/pubsubd/internals/metrics"
)

func testRegistry() *Registry {
	cfg := &config.Config{
		IngressQueueCapacity: 100,
		RingBufferCapacity:   10,
		BatchSize:            5,
		BatchTimeout:         10 * time.Millisecond,
		SendDeadline:         500 * time.Millisecond,
	}
	return New(cfg, metrics.NewMetrics(), zerolog.Nop())
}

func TestNewRegistry(t *testing.T) {
	r := testRegistry()
	if r.TopicCount() != 0 {
		t.Errorf("expected empty registry, got %d topics", r.TopicCount())
	}
}

func TestRegistry_CreateTopic(t *testing.T) {
	r := testRegistry()

	created, err := r.CreateTopic("orders")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Error("expected created=true for a new topic")
	}
	if r.TopicCount() != 1 {
		t.Errorf("expected 1 topic, got %d", r.TopicCount())
	}
}

func TestRegistry_CreateTopic_Idempotent(t *testing.T) {
	r := testRegistry()

	r.CreateTopic("orders")
	created, err := r.CreateTopic("orders")
	if err != nil {
		t.Fatalf("unexpected error on duplicate create: %v", err)
	}
	if created {
		t.Error("expected created=false for an already-existing topic")
	}
	if r.TopicCount() != 1 {
		t.Errorf("expected still 1 topic, got %d", r.TopicCount())
	}
}

func TestRegistry_CreateTopic_InvalidName(t *testing.T) {
	r := testRegistry()

	if _, err := r.CreateTopic(""); err != ErrInvalidTopicName {
		t.Errorf("expected ErrInvalidTopicName for empty name, got %v", err)
	}
	if _, err := r.CreateTopic("has a space"); err != ErrInvalidTopicName {
		t.Errorf("expected ErrInvalidTopicName for a name with forbidden characters, got %v", err)
	}
}

func TestRegistry_DeleteTopic(t *testing.T) {
	r := testRegistry()
	r.CreateTopic("orders")

	if err := r.DeleteTopic(context.Background(), "orders"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.TopicCount() != 0 {
		t.Errorf("expected 0 topics after delete, got %d", r.TopicCount())
	}
}

func TestRegistry_DeleteTopic_NotFound(t *testing.T) {
	r := testRegistry()

	if err := r.DeleteTopic(context.Background(), "missing"); err != ErrTopicNotFound {
		t.Errorf("expected ErrTopicNotFound, got %v", err)
	}
}

func TestRegistry_GetTopic(t *testing.T) {
	r := testRegistry()
	r.CreateTopic("orders")

	if _, exists := r.GetTopic("orders"); !exists {
		t.Error("expected 'orders' to exist")
	}
	if _, exists := r.GetTopic("missing"); exists {
		t.Error("expected 'missing' to not exist")
	}
}

func TestRegistry_ListTopics(t *testing.T) {
	r := testRegistry()
	r.CreateTopic("orders")
	r.CreateTopic("payments")

	topics := r.ListTopics()
	if len(topics) != 2 {
		t.Fatalf("expected 2 topics, got %d", len(topics))
	}
}

func TestRegistry_Stats(t *testing.T) {
	r := testRegistry()
	r.CreateTopic("orders")

	stats := r.Stats()
	if _, ok := stats["orders"]; !ok {
		t.Error("expected stats entry for 'orders'")
	}
}

func TestRegistry_IsShuttingDown(t *testing.T) {
	r := testRegistry()
	if r.IsShuttingDown() {
		t.Error("fresh registry should not be shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r.ShutdownAll(ctx)

	if !r.IsShuttingDown() {
		t.Error("expected IsShuttingDown to be true after ShutdownAll")
	}
}

func TestRegistry_ShutdownAll_ClosesTopics(t *testing.T) {
	r := testRegistry()
	r.CreateTopic("orders")
	r.CreateTopic("payments")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r.ShutdownAll(ctx)

	if r.TopicCount() != 0 {
		t.Errorf("expected registry to be emptied by ShutdownAll, got %d topics", r.TopicCount())
	}

	if _, err := r.CreateTopic("new"); err != ErrShuttingDown {
		t.Errorf("expected ErrShuttingDown after ShutdownAll, got %v", err)
	}
}

func TestRegistry_Concurrency(t *testing.T) {
	r := testRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.CreateTopic("topic")
			r.GetTopic("topic")
			r.ListTopics()
			r.Stats()
		}(i)
	}
	wg.Wait()

	if r.TopicCount() != 1 {
		t.Errorf("expected exactly 1 topic from concurrent idempotent creates, got %d", r.TopicCount())
	}
}
