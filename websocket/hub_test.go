package websocket

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/KBesada24/log-analyzer-plugins/models"
	"github.com/KBesada24/log-analyzer-plugins/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *utils.Logger {
	logger := utils.NewLogger("error", "json")
	logger.SetOutput(io.Discard)
	return logger
}

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	hub := NewHub(quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub, cancel
}

func newMockClient(hub *Hub, id string, buffer int) *Client {
	client := NewClient(nil, hub)
	client.ID = id
	client.send = make(chan models.WSMessage, buffer)
	return client
}

func waitForMessageType(t *testing.T, client *Client, expectedType string, timeout time.Duration) models.WSMessage {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case msg, ok := <-client.send:
			require.True(t, ok, "client channel closed while waiting for %s", expectedType)
			if msg.Type == expectedType {
				return msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s message", expectedType)
		}
	}
}

func TestHub_RegisterSendsWelcome(t *testing.T) {
	hub, _ := startHub(t)
	client := newMockClient(hub, "observer-1", 8)

	require.True(t, hub.RegisterClient(client))

	msg := waitForMessageType(t, client, models.EventConnect, time.Second)
	assert.Equal(t, "observer-1", msg.ClientID)
	data := msg.Data.(map[string]interface{})
	assert.Equal(t, "connected", data["status"])
	assert.Equal(t, 1, hub.ConnectedClients())
}

func TestHub_UnregisterClosesQueue(t *testing.T) {
	hub, _ := startHub(t)
	client := newMockClient(hub, "observer-1", 8)
	require.True(t, hub.RegisterClient(client))
	waitForMessageType(t, client, models.EventConnect, time.Second)

	hub.UnregisterClient(client)
	hub.UnregisterClient(client)

	require.Eventually(t, func() bool { return hub.ConnectedClients() == 0 }, time.Second, 5*time.Millisecond)
	_, open := <-client.send
	assert.False(t, open)
}

func TestHub_BroadcastToAll(t *testing.T) {
	hub, _ := startHub(t)
	clients := []*Client{
		newMockClient(hub, "a", 8),
		newMockClient(hub, "b", 8),
		newMockClient(hub, "c", 8),
	}
	for _, c := range clients {
		require.True(t, hub.RegisterClient(c))
	}

	event := models.ProcessEvent{Plugin: "error-aggregator", EntryCount: 3, ProcessedCount: 3, FindingCount: 1}
	hub.BroadcastToAll(models.EventProcessCompleted, event)

	for _, c := range clients {
		msg := waitForMessageType(t, c, models.EventProcessCompleted, time.Second)
		assert.Equal(t, "server", msg.ClientID)
		assert.Equal(t, event, msg.Data)
		assert.False(t, msg.Timestamp.IsZero())
	}
}

func TestHub_RemovesUnresponsiveClient(t *testing.T) {
	hub, _ := startHub(t)
	slow := newMockClient(hub, "slow", 1)
	fast := newMockClient(hub, "fast", 16)
	require.True(t, hub.RegisterClient(slow))
	require.True(t, hub.RegisterClient(fast))

	// slow's single slot holds the welcome message
	hub.BroadcastToAll(models.EventProcessFailed, models.ProcessEvent{Plugin: "p", FaultCode: "internal"})

	waitForMessageType(t, fast, models.EventProcessFailed, time.Second)
	assert.Eventually(t, func() bool { return hub.ConnectedClients() == 1 }, time.Second, 5*time.Millisecond)
}

func TestHub_ClientCountHook(t *testing.T) {
	hub := NewHub(quietLogger())
	var mu sync.Mutex
	var counts []int
	hub.OnClientCount(func(n int) {
		mu.Lock()
		counts = append(counts, n)
		mu.Unlock()
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	a := newMockClient(hub, "a", 8)
	b := newMockClient(hub, "b", 8)
	hub.RegisterClient(a)
	hub.RegisterClient(b)
	hub.UnregisterClient(a)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(counts) == 3
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Equal(t, []int{1, 2, 1}, counts)
	mu.Unlock()
}

func TestHub_StopClosesClientsAndRejectsNew(t *testing.T) {
	hub := NewHub(quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	client := newMockClient(hub, "a", 8)
	require.True(t, hub.RegisterClient(client))
	waitForMessageType(t, client, models.EventConnect, time.Second)

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}

	_, open := <-client.send
	assert.False(t, open)
	assert.Equal(t, 0, hub.ConnectedClients())

	late := newMockClient(hub, "late", 8)
	assert.False(t, hub.RegisterClient(late))
	hub.UnregisterClient(late)
	assert.False(t, hub.SendToClient(late, models.WSMessage{Type: models.EventHeartbeat}))
}

func TestHub_BroadcastDropsWhenQueueFull(t *testing.T) {
	hub := NewHub(quietLogger())

	// Run is not started, so nothing drains the queue
	for i := 0; i < cap(hub.broadcast)+5; i++ {
		hub.BroadcastToAll(models.EventProcessCompleted, nil)
	}

	assert.Equal(t, int64(5), hub.DroppedMessages())
}
