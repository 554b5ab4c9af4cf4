package service

import (
	"context"

	"github.com/gorilla/websocket"

	"github.com/roomcast-io/roomcast/internal/domain"
	"github.com/roomcast-io/roomcast/internal/hub"
)

// Coordinator is the room's sequencing authority: every accepted message is
// persisted before it is broadcast, and messages from all senders are
// serialized into one total order.
type Coordinator interface {
	// OnConnect replays recent history to the new connection, registers
	// it for live broadcasts, and returns the resulting client.
	OnConnect(ctx context.Context, conn *websocket.Conn) *hub.Client

	// OnMessage validates, persists, and broadcasts one inbound message.
	// Empty messages are silently discarded.
	OnMessage(ctx context.Context, c *hub.Client, raw string)

	// OnDisconnect removes the client from the live set.
	OnDisconnect(c *hub.Client)

	// Recent returns up to limit persisted entries in chronological
	// order, newest window first. limit <= 0 uses the configured history
	// window.
	Recent(ctx context.Context, limit int) ([]domain.ChatEntry, error)
}
