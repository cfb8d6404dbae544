// Package http hosts the WebSocket transport for the Dispatcher.
package http

import (
	"github.com/go-chi/chi/v5"

	"github.com/busline/pubsubd/internals/config"
	"github.com/busline/pubsubd/subscriberService"
)

// RegisterSubscriberRoutes mounts the streaming endpoint GET /ws on r.
func RegisterSubscriberRoutes(r chi.Router, svc subscriberService.SubscriberService, cfg *config.Config) {
	handler := NewWebSocketHandler(svc, cfg)
	r.Get("/ws", handler.HandleWebSocket)
}
