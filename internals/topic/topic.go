// Package topic implements the per-topic delivery engine: a bounded ingress
// queue, a replay ring buffer, the subscriber set, and the single delivery
// worker that batches and fans messages out.
package topic

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/busline/pubsubd/internals/metrics"
	"github.com/busline/pubsubd/internals/models"
	"github.com/busline/pubsubd/internals/ringbuffer"
	"github.com/busline/pubsubd/internals/subscriber"
)

// State is a topic's lifecycle stage.
type State int32

const (
	StateActive State = iota
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config holds the per-topic tunables. Zero values are replaced by the
// package defaults in New.
type Config struct {
	QueueCapacity int
	RingCapacity  int
	BatchSize     int
	BatchTimeout  time.Duration
	SendDeadline  time.Duration
}

const (
	DefaultQueueCapacity = 2000
	DefaultRingCapacity  = 100
	DefaultBatchSize     = 10
	DefaultBatchTimeout  = 20 * time.Millisecond
	DefaultSendDeadline  = 500 * time.Millisecond
)

func (c Config) withDefaults() Config {
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = DefaultQueueCapacity
	}
	if c.RingCapacity <= 0 {
		c.RingCapacity = DefaultRingCapacity
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = DefaultBatchTimeout
	}
	if c.SendDeadline <= 0 {
		c.SendDeadline = DefaultSendDeadline
	}
	return c
}

// Topic owns one named channel: its subscriber set, its replay ring, its
// bounded ingress queue, and the single worker goroutine that drains it.
type Topic struct {
	Name string
	cfg  Config

	mu    sync.Mutex // manager-lock > topic-lock > subscriber-lock
	state State
	subs  map[string]*subscriber.Subscriber

	ring    *ringbuffer.RingBuffer
	ingress chan models.Message

	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	workerDone   chan struct{}

	published uint64
	delivered uint64
	dropped   uint64

	metrics *metrics.Metrics
	log     zerolog.Logger
}

// New creates a topic in the Active state and starts its delivery worker.
// Returns an error only if cfg's ring capacity is invalid; New applies
// withDefaults to cfg first, which always substitutes a positive ring
// capacity, so callers never observe it.
func New(name string, cfg Config, m *metrics.Metrics, logger zerolog.Logger) (*Topic, error) {
	cfg = cfg.withDefaults()
	ring, err := ringbuffer.NewRingBuffer(cfg.RingCapacity)
	if err != nil {
		return nil, err
	}
	t := &Topic{
		Name:       name,
		cfg:        cfg,
		subs:       make(map[string]*subscriber.Subscriber),
		ring:       ring,
		ingress:    make(chan models.Message, cfg.QueueCapacity),
		shutdownCh: make(chan struct{}),
		workerDone: make(chan struct{}),
		metrics:    m,
		log:        logger.With().Str("topic", name).Logger(),
	}
	go t.run()
	return t, nil
}

// Publish appends msg to the replay ring and enqueues it for delivery.
// Never blocks: on a full ingress queue the oldest queued message is
// evicted to make room (drop-oldest policy), incrementing the dropped
// counter. Returns ErrDraining/ErrClosed if the topic is not Active.
func (t *Topic) Publish(msg models.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case StateDraining:
		return ErrDraining
	case StateClosed:
		return ErrClosed
	}

	if err := t.ring.Push(msg); err != nil {
		t.log.Warn().Err(err).Str("message_id", msg.ID).Msg("message rejected by replay ring")
	}
	atomic.AddUint64(&t.published, 1)
	if t.metrics != nil {
		t.metrics.IncPublished(t.Name)
	}

	// Drop-oldest on a full queue: each branch below increments t.dropped and
	// IncDropped together, exactly once per confirmed eviction, so the
	// atomic counter and the exported metric never diverge even when the
	// worker goroutine concurrently drains t.ingress between these selects.
	select {
	case t.ingress <- msg:
	default:
		select {
		case <-t.ingress:
			atomic.AddUint64(&t.dropped, 1)
			if t.metrics != nil {
				t.metrics.IncDropped(t.Name, 1)
			}
		default:
		}
		select {
		case t.ingress <- msg:
		default:
			atomic.AddUint64(&t.dropped, 1)
			if t.metrics != nil {
				t.metrics.IncDropped(t.Name, 1)
			}
		}
	}
	return nil
}

// Subscribe adds sub to the topic's live set and, if lastN > 0, sends it the
// last min(lastN, ring size) messages before returning. Replay happens
// outside the topic lock but strictly before sub can be handed a live batch,
// since the worker can only see sub in its next post-join snapshot.
func (t *Topic) Subscribe(sub *subscriber.Subscriber, lastN int) error {
	if lastN < 0 {
		lastN = 0
	}
	if lastN > 1000 {
		lastN = 1000
	}

	t.mu.Lock()
	if t.state != StateActive {
		t.mu.Unlock()
		if t.state == StateDraining {
			return ErrDraining
		}
		return ErrClosed
	}

	replay := t.ring.LastN(lastN)
	t.subs[sub.ClientID] = sub
	count := len(t.subs)
	t.mu.Unlock()

	if t.metrics != nil {
		t.metrics.SetSubscriberCount(t.Name, count)
	}

	if len(replay) > 0 {
		if !sub.SendBatch(t.Name, replay, t.cfg.SendDeadline) {
			t.removeSubscriber(sub.ClientID)
			return ErrClosed
		}
	}
	return nil
}

// Unsubscribe removes clientID from the topic's live set. A no-op if the
// client was not subscribed.
func (t *Topic) Unsubscribe(clientID string) {
	t.removeSubscriber(clientID)
}

func (t *Topic) removeSubscriber(clientID string) {
	t.mu.Lock()
	_, existed := t.subs[clientID]
	delete(t.subs, clientID)
	count := len(t.subs)
	t.mu.Unlock()

	if existed && t.metrics != nil {
		t.metrics.SetSubscriberCount(t.Name, count)
	}
}

func (t *Topic) snapshotSubscribers() []*subscriber.Subscriber {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*subscriber.Subscriber, 0, len(t.subs))
	for _, s := range t.subs {
		out = append(out, s)
	}
	return out
}

// State returns the topic's current lifecycle state.
func (t *Topic) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// SubscriberCount returns the number of currently joined subscribers.
func (t *Topic) SubscriberCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// PublishedCount, DeliveredCount and DroppedCount report the topic's running
// totals for metrics and control-plane stats.
func (t *Topic) PublishedCount() uint64 { return atomic.LoadUint64(&t.published) }
func (t *Topic) DeliveredCount() uint64 { return atomic.LoadUint64(&t.delivered) }
func (t *Topic) DroppedCount() uint64   { return atomic.LoadUint64(&t.dropped) }

// LastN returns the last n messages from the replay ring, oldest first.
func (t *Topic) LastN(n int) []models.Message { return t.ring.LastN(n) }

// RingCapacity returns the configured replay ring capacity.
func (t *Topic) RingCapacity() int { return t.ring.Capacity() }

// QueueDepth returns the number of messages currently buffered in the
// ingress queue, for gauge reporting.
func (t *Topic) QueueDepth() int { return len(t.ingress) }

// run is the topic's single delivery worker: batch by size-or-timeout,
// flush with a concurrent fan-out, drain-and-flush once on shutdown.
func (t *Topic) run() {
	defer close(t.workerDone)

	batch := make([]models.Message, 0, t.cfg.BatchSize)
	timer := time.NewTimer(t.cfg.BatchTimeout)
	defer timer.Stop()

	resetTimer := func() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(t.cfg.BatchTimeout)
	}

	for {
		select {
		case <-t.shutdownCh:
		drain:
			for {
				select {
				case m := <-t.ingress:
					batch = append(batch, m)
				default:
					break drain
				}
			}
			if len(batch) > 0 {
				t.flush(batch)
			}
			return

		case m := <-t.ingress:
			batch = append(batch, m)
			if len(batch) >= t.cfg.BatchSize {
				t.flush(batch)
				batch = make([]models.Message, 0, t.cfg.BatchSize)
				resetTimer()
			}

		case <-timer.C:
			if len(batch) > 0 {
				t.flush(batch)
				batch = make([]models.Message, 0, t.cfg.BatchSize)
			}
			timer.Reset(t.cfg.BatchTimeout)
		}
	}
}

// flush snapshots the subscriber set under the topic lock, releases it, and
// sends the batch to every subscriber concurrently. Subscribers whose send
// failed or exceeded the deadline are removed from the topic.
func (t *Topic) flush(batch []models.Message) {
	start := time.Now()
	subs := t.snapshotSubscribers()
	if t.metrics != nil {
		t.metrics.SetQueueDepth(t.Name, t.QueueDepth())
	}
	if len(subs) == 0 {
		return
	}

	var wg sync.WaitGroup
	var failedMu sync.Mutex
	failed := make([]string, 0)

	for _, s := range subs {
		wg.Add(1)
		go func(s *subscriber.Subscriber) {
			defer wg.Done()
			if !s.SendBatch(t.Name, batch, t.cfg.SendDeadline) {
				failedMu.Lock()
				failed = append(failed, s.ClientID)
				failedMu.Unlock()
			}
		}(s)
	}
	wg.Wait()

	okCount := len(subs) - len(failed)
	if okCount > 0 {
		atomic.AddUint64(&t.delivered, uint64(okCount*len(batch)))
		if t.metrics != nil {
			t.metrics.IncDelivered(t.Name, okCount*len(batch))
		}
	}
	if t.metrics != nil {
		t.metrics.ObserveFlushLatency(t.Name, time.Since(start).Seconds())
	}

	for _, id := range failed {
		t.log.Warn().Str("client_id", id).Msg("slow or failed subscriber disconnected")
		t.removeSubscriber(id)
	}
}

// Shutdown transitions the topic to Draining, signals the worker to do one
// final drain-and-flush, and waits for it to exit (bounded by ctx), then
// closes every remaining subscriber and marks the topic Closed.
func (t *Topic) Shutdown(ctx context.Context) {
	t.mu.Lock()
	if t.state == StateClosed {
		t.mu.Unlock()
		return
	}
	t.state = StateDraining
	t.mu.Unlock()

	t.shutdownOnce.Do(func() { close(t.shutdownCh) })

	select {
	case <-t.workerDone:
	case <-ctx.Done():
		t.log.Warn().Msg("shutdown deadline exceeded waiting for worker exit")
	}

	t.mu.Lock()
	subs := make([]*subscriber.Subscriber, 0, len(t.subs))
	for id, s := range t.subs {
		subs = append(subs, s)
		delete(t.subs, id)
	}
	t.state = StateClosed
	t.mu.Unlock()

	for _, s := range subs {
		s.SendControl(models.NewError("", "TOPIC_NOT_FOUND", "topic "+t.Name+" was deleted", nil))
		s.Close()
	}
}
