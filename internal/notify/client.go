package notify

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 64
)

// command is an inbound client frame, e.g.
// {"event":"subscribe_device","id":"dev-1"}
type command struct {
	Event string `json:"event"`
	ID    string `json:"id"`
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	id          string
	hub         *Hub
	conn        *websocket.Conn
	send        chan []byte
	subs        map[string]struct{}
	connectedAt time.Time
}

// enqueue queues a frame for this client only
func (c *Client) enqueue(event string, data any) {
	msg, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		c.hub.logger.Error("failed to marshal frame", zap.Error(err), zap.String("event", event))
		return
	}
	c.hub.deliver([]*Client{c}, msg)
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
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
				c.hub.logger.Warn("websocket read error", zap.Error(err), zap.String("client_id", c.id))
			}
			return
		}
		c.handle(message)
	}
}

func (c *Client) handle(message []byte) {
	var cmd command
	if err := json.Unmarshal(message, &cmd); err != nil {
		c.enqueue(EventError, map[string]string{"message": "invalid message"})
		return
	}

	topic := c.hub.topic
	switch cmd.Event {
	case "subscribe_" + topic:
		id := strings.TrimSpace(cmd.ID)
		if id == "" {
			c.enqueue(EventError, map[string]string{"message": "id is required"})
			return
		}
		c.hub.subscribe(c, id)
		c.enqueue(EventSubscribed, map[string]string{"id": id, "room": c.hub.Room(id)})

	case "unsubscribe_" + topic:
		id := strings.TrimSpace(cmd.ID)
		if id == "" {
			c.enqueue(EventError, map[string]string{"message": "id is required"})
			return
		}
		c.hub.unsubscribe(c, id)
		c.enqueue(EventUnsubscribed, map[string]string{"id": id})

	case "get_subscriptions":
		c.enqueue(EventSubscriptions, map[string][]string{"ids": c.hub.subscriptions(c)})

	case "ping":
		c.enqueue(EventPong, map[string]string{"timestamp": c.hub.timestamp()})

	default:
		c.enqueue(EventError, map[string]string{"message": "unknown event " + cmd.Event})
	}
}

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
				// hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.logger.Debug("websocket write failed", zap.Error(err), zap.String("client_id", c.id))
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
