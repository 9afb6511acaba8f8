package websocket

import (
	"github.com/KBesada24/log-analyzer-plugins/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// Upgrade rejects plain HTTP requests on the observer endpoint
func Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		c.Locals("allowed", true)
		return c.Next()
	}

	return utils.ErrorResponse(c, fiber.StatusUpgradeRequired, string(utils.FaultInvalidArgument),
		"WebSocket upgrade required", nil)
}

// Handler serves one observer connection on hub
func Handler(hub *Hub) fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		client := NewClient(conn, hub)
		if !hub.RegisterClient(client) {
			conn.Close()
			return
		}

		go client.WritePump()
		client.ReadPump()
	})
}

// Stats reports the observer feed state
func Stats(hub *Hub) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return utils.SuccessResponse(c, "WebSocket statistics retrieved", map[string]interface{}{
			"connected_clients": hub.ConnectedClients(),
			"dropped_messages":  hub.DroppedMessages(),
		})
	}
}
