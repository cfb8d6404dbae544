package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nuid"

	"github.com/busline/pubsubd/internals/config"
	"github.com/busline/pubsubd/internals/models"
	"github.com/busline/pubsubd/internals/registry"
	"github.com/busline/pubsubd/internals/subscriber"
	"github.com/busline/pubsubd/internals/topic"
	"github.com/busline/pubsubd/subscriberService"
)

const maxLastN = 1000

// WebSocketHandler upgrades incoming HTTP requests to the streaming
// connection and runs each connection's read loop.
type WebSocketHandler struct {
	svc      subscriberService.SubscriberService
	cfg      *config.Config
	upgrader websocket.Upgrader
}

// NewWebSocketHandler builds a handler serving connections on behalf of svc.
func NewWebSocketHandler(svc subscriberService.SubscriberService, cfg *config.Config) *WebSocketHandler {
	return &WebSocketHandler{
		svc: svc,
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// HandleWebSocket upgrades the request, assigns a client id, and drives the
// connection's read loop until it disconnects.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	clientID := nuid.Next()
	sub := subscriber.New(clientID, conn, h.cfg.RateLimitRPS, h.cfg.RateLimitBurst)

	h.svc.RegisterConnection(conn)
	sub.SendControl(models.NewInfo("connected as " + clientID))

	h.readLoop(conn, sub)

	h.cleanup(sub)
	h.svc.UnregisterConnection(conn)
}

// readLoop owns all reads off conn; writes go through sub, which serialises
// them independently, so no additional locking is needed here. A frame that
// fails to decode gets an INVALID_JSON error and the connection stays open;
// only a transport-level read failure (close, timeout) ends the loop.
func (h *WebSocketHandler) readLoop(conn *websocket.Conn, sub *subscriber.Subscriber) {
	for {
		if h.cfg.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var frame models.ClientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			sub.SendControl(models.NewError("", "INVALID_JSON", "frame is not valid JSON", nil))
			continue
		}

		h.dispatch(sub, frame)
	}
}

func (h *WebSocketHandler) dispatch(sub *subscriber.Subscriber, frame models.ClientFrame) {
	switch frame.Type {
	case "subscribe":
		h.handleSubscribe(sub, frame)
	case "unsubscribe":
		h.handleUnsubscribe(sub, frame)
	case "publish":
		h.handlePublish(sub, frame)
	case "ping":
		sub.SendControl(models.NewPong(frame.RequestID))
	default:
		sub.SendControl(models.NewError(frame.RequestID, "UNKNOWN_MESSAGE_TYPE",
			"unrecognized message type: "+frame.Type, nil))
	}
}

func (h *WebSocketHandler) handleSubscribe(sub *subscriber.Subscriber, frame models.ClientFrame) {
	if !registry.ValidTopicName(frame.Topic) {
		sub.SendControl(models.NewError(frame.RequestID, "VALIDATION_ERROR", "invalid topic name", nil))
		return
	}
	if frame.LastN < 0 || frame.LastN > maxLastN {
		sub.SendControl(models.NewError(frame.RequestID, "VALIDATION_ERROR",
			"last_n must be between 0 and 1000", nil))
		return
	}

	if alreadyJoined(sub, frame.Topic) {
		sub.SendControl(models.NewAck(frame.RequestID, "subscribe", frame.Topic, "already subscribed"))
		return
	}

	t, ok := h.svc.GetTopicManager().GetTopic(frame.Topic)
	if !ok {
		sub.SendControl(models.NewError(frame.RequestID, "TOPIC_NOT_FOUND",
			"topic does not exist: "+frame.Topic, nil))
		return
	}

	if err := t.Subscribe(sub, frame.LastN); err != nil {
		h.sendTopicError(sub, frame.RequestID, err)
		return
	}

	sub.JoinTopic(frame.Topic)
	sub.SendControl(models.NewAck(frame.RequestID, "subscribe", frame.Topic, "subscribed"))
}

func (h *WebSocketHandler) handleUnsubscribe(sub *subscriber.Subscriber, frame models.ClientFrame) {
	if !registry.ValidTopicName(frame.Topic) {
		sub.SendControl(models.NewError(frame.RequestID, "VALIDATION_ERROR", "invalid topic name", nil))
		return
	}

	if t, ok := h.svc.GetTopicManager().GetTopic(frame.Topic); ok {
		t.Unsubscribe(sub.ClientID)
	}
	sub.LeaveTopic(frame.Topic)

	sub.SendControl(models.NewAck(frame.RequestID, "unsubscribe", frame.Topic, "unsubscribed"))
}

func (h *WebSocketHandler) handlePublish(sub *subscriber.Subscriber, frame models.ClientFrame) {
	if !registry.ValidTopicName(frame.Topic) {
		sub.SendControl(models.NewError(frame.RequestID, "VALIDATION_ERROR", "invalid topic name", nil))
		return
	}
	if len(frame.Data) > h.cfg.MaxPayloadBytes {
		sub.SendControl(models.NewError(frame.RequestID, "VALIDATION_ERROR", "payload exceeds max size", nil))
		return
	}

	if allowed, retryAfter := sub.CheckRate(time.Now()); !allowed {
		sub.SendControl(models.NewError(frame.RequestID, "RATE_LIMITED", "publish rate exceeded", map[string]any{
			"retry_after_seconds": retryAfter.Seconds(),
		}))
		return
	}

	t, ok := h.svc.GetTopicManager().GetTopic(frame.Topic)
	if !ok {
		sub.SendControl(models.NewError(frame.RequestID, "TOPIC_NOT_FOUND",
			"topic does not exist: "+frame.Topic, nil))
		return
	}

	msg := models.Message{
		ID:          nuid.Next(),
		Topic:       frame.Topic,
		Payload:     frame.Data,
		PublishedAt: time.Now(),
	}

	if err := t.Publish(msg); err != nil {
		h.sendTopicError(sub, frame.RequestID, err)
		return
	}

	sub.SendControl(models.NewAck(frame.RequestID, "publish", frame.Topic, msg.ID))
}

func (h *WebSocketHandler) sendTopicError(sub *subscriber.Subscriber, requestID string, err error) {
	switch {
	case errors.Is(err, topic.ErrDraining), errors.Is(err, topic.ErrClosed):
		sub.SendControl(models.NewError(requestID, "SHUTTING_DOWN", "topic is shutting down", nil))
	default:
		sub.SendControl(models.NewError(requestID, "INTERNAL", "unexpected error", nil))
	}
}

func alreadyJoined(sub *subscriber.Subscriber, name string) bool {
	for _, t := range sub.Topics() {
		if t == name {
			return true
		}
	}
	return false
}

// cleanup unwinds every topic membership this connection accumulated.
func (h *WebSocketHandler) cleanup(sub *subscriber.Subscriber) {
	for _, name := range sub.Topics() {
		if t, ok := h.svc.GetTopicManager().GetTopic(name); ok {
			t.Unsubscribe(sub.ClientID)
		}
	}
	sub.Close()
}
