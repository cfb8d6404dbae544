// Package subscriberService is the Dispatcher: it terminates client
// connections, decodes the streaming wire schema, and routes each frame to
// the TopicManager.
package subscriberService

import (
	"context"

	"github.com/gorilla/websocket"

	"github.com/busline/pubsubd/topicManagerService"
)

// SubscriberService manages the lifetime of client connections and the
// subscribers created for them.
type SubscriberService interface {
	// Start initializes the service and prepares resources for operation.
	Start() error

	// Shutdown closes every active connection and cleans up the subscribers
	// they created. The context bounds how long cleanup may take.
	Shutdown(ctx context.Context) error

	// GetTopicManager returns the topic manager backing this service, so
	// transport-layer handlers can reach TopicManager operations.
	GetTopicManager() topicManagerService.TopicManager

	// ActiveConnectionCount reports the number of currently open connections.
	ActiveConnectionCount() int

	// RegisterConnection tracks a newly accepted connection so Shutdown can
	// close it later.
	RegisterConnection(conn *websocket.Conn)

	// UnregisterConnection stops tracking a connection once its handler exits.
	UnregisterConnection(conn *websocket.Conn)
}
