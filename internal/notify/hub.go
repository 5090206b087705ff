package notify

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Outbound event names.
const (
	EventConnected     = "connected"
	EventNotification  = "notification"
	EventSubscribed    = "subscribed"
	EventUnsubscribed  = "unsubscribed"
	EventSubscriptions = "subscriptions"
	EventPong          = "pong"
	EventError         = "error"
)

// Envelope is every frame sent to a client.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Notification is the payload of an EventNotification frame.
type Notification struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
}

// ClientStats describes one connected client.
type ClientStats struct {
	ClientID      string    `json:"clientId"`
	Subscriptions []string  `json:"subscriptions"`
	ConnectedAt   time.Time `json:"connectedAt"`
}

// ConnectionStats summarizes the hub.
type ConnectionStats struct {
	TotalConnections   int            `json:"totalConnections"`
	TotalSubscriptions int            `json:"totalSubscriptions"`
	Subscriptions      map[string]int `json:"subscriptions"`
	Clients            []ClientStats  `json:"connectedClients"`
}

// Hub tracks connected clients and their subscription rooms. A hub serves
// one topic: clients subscribe with "subscribe_<topic>" and are grouped by
// room "<topic>:<id>".
type Hub struct {
	topic    string
	logger   *zap.Logger
	upgrader websocket.Upgrader
	now      func() time.Time

	mu      sync.RWMutex
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}
}

// NewHub creates a hub for topic
func NewHub(topic string, logger *zap.Logger) *Hub {
	return &Hub{
		topic:  topic,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		now:     time.Now,
		clients: make(map[*Client]struct{}),
		rooms:   make(map[string]map[*Client]struct{}),
	}
}

// Room returns the room name of an id
func (h *Hub) Room(id string) string {
	return h.topic + ":" + id
}

// ServeWS upgrades the request and starts the client pumps
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		id:          uuid.NewString(),
		hub:         h,
		conn:        conn,
		send:        make(chan []byte, sendBuffer),
		subs:        make(map[string]struct{}),
		connectedAt: h.now().UTC(),
	}
	h.register(client)

	go client.writePump()
	go client.readPump()

	client.enqueue(EventConnected, map[string]any{
		"clientId":  client.id,
		"topic":     h.topic,
		"timestamp": h.timestamp(),
	})
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Info("websocket client registered", zap.String("client_id", c.id), zap.String("topic", h.topic))
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	for id := range c.subs {
		h.leaveLocked(c, id)
	}
	close(c.send)
	h.mu.Unlock()
	h.logger.Info("websocket client unregistered", zap.String("client_id", c.id), zap.String("topic", h.topic))
}

func (h *Hub) subscribe(c *Client, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	room := h.Room(id)
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.subs[id] = struct{}{}
}

func (h *Hub) unsubscribe(c *Client, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, id)
}

func (h *Hub) leaveLocked(c *Client, id string) {
	room := h.Room(id)
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(c.subs, id)
}

func (h *Hub) subscriptions(c *Client) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (h *Hub) timestamp() string {
	return h.now().UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// Notify sends a notification to every client subscribed to id and returns
// how many clients it was queued for
func (h *Hub) Notify(id, eventType string, data any) int {
	msg, err := json.Marshal(Envelope{
		Event: EventNotification,
		Data: Notification{
			Type:      eventType,
			ID:        id,
			Data:      data,
			Timestamp: h.timestamp(),
		},
	})
	if err != nil {
		h.logger.Error("failed to marshal notification", zap.Error(err), zap.String("type", eventType))
		return 0
	}

	h.mu.RLock()
	members := h.rooms[h.Room(id)]
	targets := make([]*Client, 0, len(members))
	for c := range members {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	return h.deliver(targets, msg)
}

// Broadcast sends a notification to every connected client
func (h *Hub) Broadcast(eventType string, data any) int {
	msg, err := json.Marshal(Envelope{
		Event: EventNotification,
		Data: Notification{
			Type:      eventType,
			Data:      data,
			Timestamp: h.timestamp(),
		},
	})
	if err != nil {
		h.logger.Error("failed to marshal broadcast", zap.Error(err), zap.String("type", eventType))
		return 0
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	return h.deliver(targets, msg)
}

// Publish sends one notification about id to every client subscribed to it
// and to every client with no subscriptions at all. No client receives it
// twice.
func (h *Hub) Publish(id, eventType string, data any) int {
	msg, err := json.Marshal(Envelope{
		Event: EventNotification,
		Data: Notification{
			Type:      eventType,
			ID:        id,
			Data:      data,
			Timestamp: h.timestamp(),
		},
	})
	if err != nil {
		h.logger.Error("failed to marshal notification", zap.Error(err), zap.String("type", eventType))
		return 0
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		if _, ok := c.subs[id]; ok || len(c.subs) == 0 {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	return h.deliver(targets, msg)
}

func (h *Hub) deliver(targets []*Client, msg []byte) int {
	delivered := 0
	var slow []*Client

	h.mu.RLock()
	for _, c := range targets {
		if _, ok := h.clients[c]; !ok {
			continue
		}
		select {
		case c.send <- msg:
			delivered++
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("websocket client send buffer full, removing", zap.String("client_id", c.id))
		h.unregister(c)
	}
	return delivered
}

// SubscriberCount returns how many clients are subscribed to id
func (h *Hub) SubscriberCount(id string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[h.Room(id)])
}

// Stats returns a snapshot of connections and subscriptions
func (h *Hub) Stats() ConnectionStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := ConnectionStats{
		TotalConnections: len(h.clients),
		Subscriptions:    make(map[string]int),
		Clients:          make([]ClientStats, 0, len(h.clients)),
	}

	for c := range h.clients {
		subs := make([]string, 0, len(c.subs))
		for id := range c.subs {
			subs = append(subs, id)
			stats.Subscriptions[id]++
		}
		sort.Strings(subs)
		stats.Clients = append(stats.Clients, ClientStats{
			ClientID:      c.id,
			Subscriptions: subs,
			ConnectedAt:   c.connectedAt,
		})
	}
	stats.TotalSubscriptions = len(stats.Subscriptions)

	sort.Slice(stats.Clients, func(i, j int) bool {
		return stats.Clients[i].ConnectedAt.Before(stats.Clients[j].ConnectedAt)
	})
	return stats
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.unregister(c)
	}
}
