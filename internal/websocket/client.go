package websocket

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/isdelr/signaldesk-be/internal/models"
	"github.com/rs/zerolog/log"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096

	sendBuffer = 32
)

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	// Identity is the authenticated user behind the connection.
	Identity models.Identity

	// Buffered channel of outbound messages.
	Send chan []byte
}

// NewClient creates a client for an authenticated connection.
func NewClient(hub *Hub, conn *websocket.Conn, identity models.Identity) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		Identity: identity,
		Send:     make(chan []byte, sendBuffer),
	}
}

func (c *Client) initialTopics() []string {
	topics := []string{TopicFeed, UserTopic(c.Identity.ID)}
	if c.Identity.Role == models.RoleAdmin {
		topics = append(topics, TopicAdmin)
	}
	return topics
}

// CanSubscribe reports whether the client may join topic.
func (c *Client) CanSubscribe(topic string) bool {
	switch topic {
	case TopicFeed, UserTopic(c.Identity.ID):
		return true
	case TopicAdmin:
		return c.Identity.Role == models.RoleAdmin
	}
	return false
}

// ReadPump pumps messages from the websocket connection to handle. It
// returns when the connection fails or is closed.
func (c *Client) ReadPump(handle func(*Client, []byte)) {
	defer c.conn.Close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("user_id", c.Identity.ID).Msg("Unexpected websocket close")
			}
			return
		}
		handle(c, message)
	}
}

// WritePump pumps messages from Send to the websocket connection. It returns
// when Send is closed by the hub or a write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
