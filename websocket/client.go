package websocket

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/KBesada24/log-analyzer-plugins/models"
	"github.com/KBesada24/log-analyzer-plugins/utils"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Observers only send heartbeats
	maxMessageSize = 512
)

// Client is one observer connection. It receives process events and may
// send heartbeats; anything else it sends is ignored.
type Client struct {
	ID         string
	RemoteAddr string
	conn       *websocket.Conn
	send       chan models.WSMessage
	hub        *Hub
	lastSeen   atomic.Int64
	logger     *utils.LoggerWithContext
}

// NewClient creates a new WebSocket client
func NewClient(conn *websocket.Conn, hub *Hub) *Client {
	c := &Client{
		ID:     uuid.New().String(),
		conn:   conn,
		send:   make(chan models.WSMessage, 256),
		hub:    hub,
		logger: hub.logger.WithSource("websocket_client"),
	}
	if conn != nil {
		c.RemoteAddr = conn.RemoteAddr().String()
	}
	c.touch()
	return c
}

func (c *Client) touch() {
	c.lastSeen.Store(time.Now().UnixNano())
}

// LastSeen returns when the peer last sent a frame or pong
func (c *Client) LastSeen() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

// IsAlive checks if the client connection is still alive
func (c *Client) IsAlive() bool {
	return time.Since(c.LastSeen()) < pongWait
}

// ReadPump reads heartbeats from the peer until the connection fails
func (c *Client) ReadPump() {
	defer func() {
		c.hub.UnregisterClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.touch()
		return nil
	})

	for {
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket read error", err, map[string]interface{}{
					"client_id": c.ID,
				})
			}
			return
		}
		c.touch()

		var message models.WSMessage
		if err := json.Unmarshal(messageBytes, &message); err != nil {
			c.logger.Debug("Ignoring malformed WebSocket message", map[string]interface{}{
				"client_id": c.ID,
				"error":     err.Error(),
			})
			continue
		}
		c.handleMessage(message)
	}
}

// WritePump writes queued events and pings to the peer
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			messageBytes, err := json.Marshal(message)
			if err != nil {
				c.logger.Error("Failed to marshal WebSocket message", err, map[string]interface{}{
					"client_id":    c.ID,
					"message_type": message.Type,
				})
				continue
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, messageBytes); err != nil {
				c.logger.Warn("Failed to write WebSocket message", map[string]interface{}{
					"client_id": c.ID,
					"error":     err.Error(),
				})
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage answers heartbeats. Observers have nothing else to say.
func (c *Client) handleMessage(message models.WSMessage) {
	if message.Type != models.EventHeartbeat {
		c.logger.Debug("Ignoring WebSocket message from observer", map[string]interface{}{
			"client_id":    c.ID,
			"message_type": message.Type,
		})
		return
	}

	c.SendMessage(models.EventHeartbeat, map[string]interface{}{"status": "pong"})
}

// SendMessage queues a message for this client only. It reports false when
// the client is gone or the hub has stopped.
func (c *Client) SendMessage(msgType string, data interface{}) bool {
	return c.hub.SendToClient(c, models.WSMessage{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now(),
		ClientID:  c.ID,
	})
}
