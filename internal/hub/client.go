package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roomcast-io/roomcast/internal/config"
	"github.com/roomcast-io/roomcast/internal/domain"
	"github.com/roomcast-io/roomcast/internal/log"
)

// Client binds one websocket connection to its session record. Frames for
// the client are queued on Send and drained by WritePump in order, which is
// what preserves per-session delivery order between history replay and live
// broadcasts.
type Client struct {
	Session *domain.Session
	Conn    *websocket.Conn
	Send    chan []byte
	config  config.WebSocketConfig

	mu     sync.Mutex
	closed bool
}

func NewClient(id string, conn *websocket.Conn, cfg config.WebSocketConfig) *Client {
	return &Client{
		Session: domain.NewSession(id),
		Conn:    conn,
		Send:    make(chan []byte, 256),
		config:  cfg,
	}
}

// Enqueue queues a frame for delivery without blocking. Reports false when
// the client's buffer is full or its send channel has been closed. The
// closed check and the send happen under the client mutex, so an enqueue
// racing an Unregister can never hit a closed channel.
func (c *Client) Enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.Send <- frame:
		return true
	default:
		return false
	}
}

// closeSend closes the send channel exactly once. Only the hub calls this,
// from Unregister.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}

// ReadPump reads text frames from the connection and hands them to
// onMessage. It exits on any read error, invoking onDisconnect exactly
// once.
func (c *Client) ReadPump(onMessage func(*Client, string), onDisconnect func(*Client)) {
	defer func() {
		onDisconnect(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				l := log.L()
				l.Warn().Err(err).
					Str(log.FieldSessionID, c.Session.ID).
					Msg("websocket read error")
			}
			break
		}

		c.Session.UpdateActivity()
		onMessage(c, string(message))
	}
}

// WritePump drains the send queue onto the connection and keeps the
// connection alive with periodic pings. It exits when the send channel is
// closed or a write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
