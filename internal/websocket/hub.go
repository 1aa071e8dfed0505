package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"curator/pkg/logging"
	"curator/pkg/models"

	"curator/internal/batch"
	"curator/internal/conflict"
	"curator/internal/publish"
)

// Channels clients may subscribe to
const (
	ChannelBatch    = "batch"
	ChannelCalendar = "calendar"
	ChannelPublish  = "publish"
)

// Hub maintains the set of active dashboard connections and fans out
// batch, calendar and publish-status events to subscribed clients
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	logger     logging.Logger
	mutex      sync.RWMutex
}

// Client represents one dashboard WebSocket connection
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	channels []string
	logger   logging.Logger
}

// Message is the envelope every event goes out in
type Message struct {
	Type      string                 `json:"type"`
	Channel   string                 `json:"channel"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}

// SubscriptionMessage is a subscription request from a client
type SubscriptionMessage struct {
	Action   string   `json:"action"`
	Channels []string `json:"channels"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewHub creates a new WebSocket hub
func NewHub(logger logging.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()
			h.logger.WithFields(logging.Fields{
				"client_count": len(h.clients),
			}).Info("Client connected")

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mutex.Unlock()
			h.logger.WithFields(logging.Fields{
				"client_count": len(h.clients),
			}).Info("Client disconnected")

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// broadcastMessage sends a message to every client subscribed to its channel
func (h *Hub) broadcastMessage(message []byte) {
	var msg Message
	if err := json.Unmarshal(message, &msg); err != nil {
		h.logger.WithError(err).Error("Failed to unmarshal broadcast message")
		return
	}

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	for client := range h.clients {
		subscribed := false
		for _, channel := range client.channels {
			if channel == msg.Channel || channel == "all" {
				subscribed = true
				break
			}
		}
		if !subscribed {
			continue
		}

		select {
		case client.send <- message:
		default:
			close(client.send)
			delete(h.clients, client)
		}
	}
}

// BroadcastEvent sends an event to all subscribed clients
func (h *Hub) BroadcastEvent(eventType, channel string, data map[string]interface{}) {
	message := Message{
		Type:      eventType,
		Channel:   channel,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}

	messageBytes, err := json.Marshal(message)
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal broadcast message")
		return
	}

	select {
	case h.broadcast <- messageBytes:
	default:
		h.logger.Warn("Broadcast channel full, dropping message")
	}
}

// BatchProgress forwards batch progress to the batch channel
func (h *Hub) BatchProgress(p batch.Progress) {
	h.BroadcastEvent("batch_progress", ChannelBatch, map[string]interface{}{
		"batch_id":  p.BatchID,
		"action":    string(p.Action),
		"processed": p.Processed,
		"total":     p.Total,
		"done":      p.Done,
	})
}

// BatchResult forwards a finished batch's accounting to the batch channel
func (h *Hub) BatchResult(result models.BatchActionResult, action batch.Action) {
	h.BroadcastEvent("batch_result", ChannelBatch, map[string]interface{}{
		"batch_id":         result.BatchID,
		"action":           string(action),
		"total_requested":  result.TotalRequested,
		"successful_count": result.SuccessfulCount,
		"failed_count":     result.FailedCount,
		"per_item_results": result.PerItemResults,
	})
}

// CalendarUpdated announces a fresh canonical snapshot to the calendar channel
func (h *Hub) CalendarUpdated(items []models.ScheduledItem, buckets map[time.Time]conflict.Bucket) {
	conflicts := make([]conflict.Bucket, 0, len(buckets))
	for _, b := range buckets {
		conflicts = append(conflicts, b)
	}
	h.BroadcastEvent("calendar_updated", ChannelCalendar, map[string]interface{}{
		"items":     items,
		"conflicts": conflicts,
	})
}

// PublishStatus sends a publish-readiness snapshot to the publish channel.
// Wired to the tracker's tick callback.
func (h *Hub) PublishStatus(snap publish.Snapshot) {
	h.BroadcastEvent("publish_status", ChannelPublish, map[string]interface{}{
		"generated_at": snap.GeneratedAt,
		"items":        snap.Items,
	})
}

// GetStats returns hub statistics
func (h *Hub) GetStats() map[string]interface{} {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	channelStats := make(map[string]int)
	for client := range h.clients {
		for _, channel := range client.channels {
			channelStats[channel]++
		}
	}

	return map[string]interface{}{
		"total_clients":         len(h.clients),
		"channel_subscriptions": channelStats,
	}
}

// ServeWS handles WebSocket requests from dashboard clients
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade WebSocket connection")
		return
	}

	client := &Client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, 256),
		channels: []string{},
		logger:   h.logger,
	}

	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512
)

// readPump pumps subscription messages from the connection to the hub
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.WithError(err).Error("WebSocket connection error")
			}
			break
		}

		var subMsg SubscriptionMessage
		if err := json.Unmarshal(message, &subMsg); err != nil {
			c.logger.WithError(err).Warn("Invalid subscription message")
			continue
		}

		c.handleSubscription(&subMsg)
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
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

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Drain any queued events into the same frame
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
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

// handleSubscription processes subscription/unsubscription requests
func (c *Client) handleSubscription(msg *SubscriptionMessage) {
	switch msg.Action {
	case "subscribe":
		c.channels = append(c.channels, msg.Channels...)
		c.logger.WithFields(logging.Fields{
			"channels": msg.Channels,
		}).Info("Client subscribed to channels")

		c.sendMessage(map[string]interface{}{
			"type":     "subscription_confirmed",
			"channels": c.channels,
		})

	case "unsubscribe":
		for _, channel := range msg.Channels {
			for i, existing := range c.channels {
				if existing == channel {
					c.channels = append(c.channels[:i], c.channels[i+1:]...)
					break
				}
			}
		}

		c.logger.WithFields(logging.Fields{
			"unsubscribed": msg.Channels,
			"remaining":    c.channels,
		}).Info("Client unsubscribed from channels")

		c.sendMessage(map[string]interface{}{
			"type":     "unsubscription_confirmed",
			"channels": c.channels,
		})
	}
}

// sendMessage sends a message to the client
func (c *Client) sendMessage(data map[string]interface{}) {
	message, err := json.Marshal(data)
	if err != nil {
		c.logger.WithError(err).Error("Failed to marshal client message")
		return
	}

	select {
	case c.send <- message:
	default:
		close(c.send)
	}
}
