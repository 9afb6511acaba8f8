package websocket

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/KBesada24/log-analyzer-plugins/models"
	"github.com/KBesada24/log-analyzer-plugins/utils"
)

// Hub fans plugin events out to connected observers. All client bookkeeping
// happens on the Run goroutine.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan models.WSMessage
	register   chan *Client
	unregister chan *Client
	direct     chan directMessage
	done       chan struct{}

	connected     atomic.Int64
	dropped       atomic.Int64
	onClientCount func(int)
	logger        *utils.Logger
}

type directMessage struct {
	client  *Client
	message models.WSMessage
	sent    chan bool
}

// NewHub creates a new WebSocket hub
func NewHub(logger *utils.Logger) *Hub {
	if logger == nil {
		logger = utils.GetLogger()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan models.WSMessage, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		direct:     make(chan directMessage),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// OnClientCount registers fn to be called with the client count after every
// connect and disconnect. It must be set before Run.
func (h *Hub) OnClientCount(fn func(int)) {
	h.onClientCount = fn
}

// Run serves registrations and broadcasts until ctx is done, then closes
// every client's send channel.
func (h *Hub) Run(ctx context.Context) {
	log := h.logger.WithSource("websocket_hub")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.remove(client)
			}
			log.Info("WebSocket hub stopped", nil)
			return

		case client := <-h.register:
			h.clients[client] = true
			h.countChanged()
			log.Info("WebSocket client connected", map[string]interface{}{
				"client_id":     client.ID,
				"remote_addr":   client.RemoteAddr,
				"total_clients": len(h.clients),
			})

			welcome := models.WSMessage{
				Type:      models.EventConnect,
				Data:      map[string]interface{}{"status": "connected", "client_id": client.ID},
				Timestamp: time.Now(),
				ClientID:  client.ID,
			}
			select {
			case client.send <- welcome:
			default:
				h.remove(client)
			}

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.remove(client)
				log.Info("WebSocket client disconnected", map[string]interface{}{
					"client_id":     client.ID,
					"total_clients": len(h.clients),
				})
			}

		case d := <-h.direct:
			if !h.clients[d.client] {
				d.sent <- false
				continue
			}
			select {
			case d.client.send <- d.message:
				d.sent <- true
			default:
				h.remove(d.client)
				d.sent <- false
			}

		case message := <-h.broadcast:
			log.Debug("Broadcasting WebSocket message", map[string]interface{}{
				"type":       message.Type,
				"recipients": len(h.clients),
			})
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					h.remove(client)
					log.Warn("Removed unresponsive WebSocket client", map[string]interface{}{
						"client_id": client.ID,
					})
				}
			}
		}
	}
}

// remove must only be called from Run
func (h *Hub) remove(client *Client) {
	delete(h.clients, client)
	close(client.send)
	h.countChanged()
}

func (h *Hub) countChanged() {
	n := len(h.clients)
	h.connected.Store(int64(n))
	if h.onClientCount != nil {
		h.onClientCount(n)
	}
}

// BroadcastToAll queues an event for every connected client. It never blocks;
// when the queue is full the event is dropped.
func (h *Hub) BroadcastToAll(msgType string, data interface{}) {
	message := models.WSMessage{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now(),
		ClientID:  "server",
	}

	select {
	case h.broadcast <- message:
	default:
		h.dropped.Add(1)
		h.logger.Warn("Broadcast channel is full, message dropped", map[string]interface{}{
			"type": msgType,
		})
	}
}

// ConnectedClients returns the number of connected clients
func (h *Hub) ConnectedClients() int {
	return int(h.connected.Load())
}

// DroppedMessages returns how many broadcasts were dropped on a full queue
func (h *Hub) DroppedMessages() int64 {
	return h.dropped.Load()
}

// RegisterClient registers a new client with the hub. It reports false if
// the hub has stopped.
func (h *Hub) RegisterClient(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// SendToClient queues message for one registered client. Sends to a client
// that has been removed are reported as false rather than panicking on its
// closed queue.
func (h *Hub) SendToClient(client *Client, message models.WSMessage) bool {
	d := directMessage{client: client, message: message, sent: make(chan bool, 1)}
	select {
	case h.direct <- d:
		return <-d.sent
	case <-h.done:
		return false
	}
}

// UnregisterClient unregisters a client from the hub
func (h *Hub) UnregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}
