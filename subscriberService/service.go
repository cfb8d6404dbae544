package subscriberService

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/busline/pubsubd/internals/config"
	"github.com/busline/pubsubd/topicManagerService"
)

// SubscriberServiceImpl implements SubscriberService. It tracks every open
// connection so Shutdown can close them all without waiting on client
// cooperation.
type SubscriberServiceImpl struct {
	cfg      *config.Config
	topicMgr topicManagerService.TopicManager
	log      zerolog.Logger

	connsMu sync.Mutex
	conns   map[*websocket.Conn]struct{}
}

// NewSubscriberService creates a subscriber service backed by topicMgr.
func NewSubscriberService(cfg *config.Config, topicMgr topicManagerService.TopicManager, logger zerolog.Logger) *SubscriberServiceImpl {
	return &SubscriberServiceImpl{
		cfg:      cfg,
		topicMgr: topicMgr,
		log:      logger,
		conns:    make(map[*websocket.Conn]struct{}),
	}
}

func (s *SubscriberServiceImpl) Start() error {
	s.log.Info().Msg("subscriber service started")
	return nil
}

// Shutdown closes every tracked connection. Each connection's own handler
// goroutine is responsible for unwinding its subscriber's topic memberships
// when its read loop observes the close.
func (s *SubscriberServiceImpl) Shutdown(ctx context.Context) error {
	s.connsMu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.connsMu.Unlock()

	s.log.Info().Int("connections", len(conns)).Msg("closing subscriber connections")
	for _, c := range conns {
		c.Close()
	}
	return nil
}

func (s *SubscriberServiceImpl) GetTopicManager() topicManagerService.TopicManager {
	return s.topicMgr
}

func (s *SubscriberServiceImpl) ActiveConnectionCount() int {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	return len(s.conns)
}

// RegisterConnection tracks a newly accepted connection.
func (s *SubscriberServiceImpl) RegisterConnection(conn *websocket.Conn) {
	s.connsMu.Lock()
	s.conns[conn] = struct{}{}
	s.connsMu.Unlock()
}

// UnregisterConnection stops tracking a connection once its handler exits.
func (s *SubscriberServiceImpl) UnregisterConnection(conn *websocket.Conn) {
	s.connsMu.Lock()
	delete(s.conns, conn)
	s.connsMu.Unlock()
}
