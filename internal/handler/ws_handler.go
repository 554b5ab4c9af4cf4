package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/roomcast-io/roomcast/internal/hub"
	"github.com/roomcast-io/roomcast/internal/log"
	"github.com/roomcast-io/roomcast/internal/service"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler upgrades inbound connections and hands them to the room
// coordinator. It performs no routing beyond the one fixed room.
type WSHandler struct {
	room service.Coordinator
}

func NewWSHandler(room service.Coordinator) *WSHandler {
	return &WSHandler{room: room}
}

func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l := log.Ctx(c.Request.Context())
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := h.room.OnConnect(c.Request.Context(), conn)

	go client.WritePump()
	go client.ReadPump(h.handleMessage, h.handleDisconnect)
}

func (h *WSHandler) handleMessage(client *hub.Client, message string) {
	// Deliberately not the request context: a sender disconnecting must
	// not cancel an in-flight persist.
	h.room.OnMessage(context.Background(), client, message)
}

func (h *WSHandler) handleDisconnect(client *hub.Client) {
	h.room.OnDisconnect(client)
}
