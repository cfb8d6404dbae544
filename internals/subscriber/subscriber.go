// Package subscriber wraps one streaming connection with the delivery
// contract a topic worker sends batches against.
package subscriber

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/busline/pubsubd/internals/models"
	"github.com/busline/pubsubd/internals/ratelimit"
)

// DefaultControlDeadline bounds writes of control frames (info/ack/error/pong)
// that do not go through the topic worker's batch send path.
const DefaultControlDeadline = 2 * time.Second

// Subscriber wraps one connection. It owns no send queue: the topic worker
// hands it a batch synchronously and blocks only up to the supplied
// deadline. Writes are serialised by mu, the subscriber's own lock in the
// manager-lock > topic-lock > subscriber-lock ordering.
type Subscriber struct {
	ClientID string

	conn    *websocket.Conn
	limiter *ratelimit.Limiter

	mu     sync.Mutex
	closed int32

	topicsMu sync.Mutex
	topics   map[string]struct{}
}

// New creates a subscriber bound to conn, with a token bucket of the given
// rate req/sec and burst capacity for its publish path.
func New(clientID string, conn *websocket.Conn, rate float64, burst int) *Subscriber {
	return &Subscriber{
		ClientID: clientID,
		conn:     conn,
		limiter:  ratelimit.New(rate, burst),
		topics:   make(map[string]struct{}),
	}
}

// SendBatch delivers an ordered batch of messages for topic, one frame per
// message, each write bounded by deadline. On the first failed or timed-out
// write it marks the subscriber closed and returns false; the caller is
// responsible for removing it from the topic.
func (s *Subscriber) SendBatch(topic string, batch []models.Message, deadline time.Duration) bool {
	for _, m := range batch {
		if !s.sendFrame(models.NewEvent(topic, m), deadline) {
			return false
		}
	}
	return true
}

// SendControl writes a single control frame (info/ack/error/pong) with the
// package's default control deadline.
func (s *Subscriber) SendControl(frame models.ServerFrame) bool {
	return s.sendFrame(frame, DefaultControlDeadline)
}

func (s *Subscriber) sendFrame(frame models.ServerFrame, deadline time.Duration) bool {
	if s.IsClosed() {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if atomic.LoadInt32(&s.closed) == 1 {
		return false
	}

	if err := s.conn.SetWriteDeadline(time.Now().Add(deadline)); err != nil {
		s.markClosedLocked()
		return false
	}
	if err := s.conn.WriteJSON(frame); err != nil {
		s.markClosedLocked()
		return false
	}
	return true
}

// CheckRate enforces the subscriber's token bucket against its publish path.
func (s *Subscriber) CheckRate(now time.Time) (allowed bool, retryAfter time.Duration) {
	return s.limiter.Check(now)
}

// JoinTopic records that this subscriber has joined topic name, so the
// connection handler can unwind every membership on disconnect without
// asking each Topic directly.
func (s *Subscriber) JoinTopic(name string) {
	s.topicsMu.Lock()
	s.topics[name] = struct{}{}
	s.topicsMu.Unlock()
}

// LeaveTopic removes name from the subscriber's joined-topic set.
func (s *Subscriber) LeaveTopic(name string) {
	s.topicsMu.Lock()
	delete(s.topics, name)
	s.topicsMu.Unlock()
}

// Topics returns a snapshot of the topic names this subscriber has joined.
func (s *Subscriber) Topics() []string {
	s.topicsMu.Lock()
	defer s.topicsMu.Unlock()

	out := make([]string, 0, len(s.topics))
	for name := range s.topics {
		out = append(out, name)
	}
	return out
}

// Close is idempotent: it marks the subscriber closed and closes the
// underlying connection. Safe to call more than once and from any goroutine.
func (s *Subscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markClosedLocked()
}

func (s *Subscriber) markClosedLocked() {
	if atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		s.conn.Close()
	}
}

// IsClosed reports whether the subscriber has been closed.
func (s *Subscriber) IsClosed() bool {
	return atomic.LoadInt32(&s.closed) == 1
}
