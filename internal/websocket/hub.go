package websocket

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Topic names.
const (
	TopicFeed  = "feed"
	TopicAdmin = "admin"
)

// UserTopic is the private topic of a single user.
func UserTopic(userID string) string {
	return "user:" + userID
}

type publication struct {
	topics  []string
	client  *Client
	message []byte
}

type subscription struct {
	client *Client
	topic  string
	add    bool
}

// Hub maintains the set of active clients and fans messages out to the
// clients subscribed to a topic. All state is owned by the Run goroutine.
type Hub struct {
	// Registered clients.
	clients map[*Client]bool

	// Register requests from the clients.
	Register chan *Client

	// Unregister requests from clients.
	Unregister chan *Client

	publish   chan publication
	subscribe chan subscription
	counts    chan chan int
	done      chan struct{}

	// A map of topics to the set of clients subscribed to it.
	subscriptions map[string]map[*Client]bool
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		Register:      make(chan *Client),
		Unregister:    make(chan *Client),
		publish:       make(chan publication, 64),
		subscribe:     make(chan subscription),
		counts:        make(chan chan int),
		done:          make(chan struct{}),
		clients:       make(map[*Client]bool),
		subscriptions: make(map[string]map[*Client]bool),
	}
}

// Run starts the Hub's message processing loop. It returns when ctx is done,
// closing every client's send channel.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.drop(client)
			}
			return
		case client := <-h.Register:
			h.clients[client] = true
			for _, topic := range client.initialTopics() {
				h.addSubscription(client, topic)
			}
			log.Info().Int("total_clients", len(h.clients)).Str("user_id", client.Identity.ID).Msg("Client connected")
		case client := <-h.Unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				log.Info().Int("total_clients", len(h.clients)).Msg("Client disconnected")
			}
		case sub := <-h.subscribe:
			if _, ok := h.clients[sub.client]; !ok {
				continue
			}
			if sub.add {
				h.addSubscription(sub.client, sub.topic)
			} else {
				h.removeSubscription(sub.client, sub.topic)
			}
		case p := <-h.publish:
			if p.client != nil {
				if h.clients[p.client] {
					h.deliver(p.client, p.message)
				}
				continue
			}
			sent := make(map[*Client]bool)
			for _, topic := range p.topics {
				for client := range h.subscriptions[topic] {
					if !sent[client] {
						sent[client] = true
						h.deliver(client, p.message)
					}
				}
			}
		case reply := <-h.counts:
			reply <- len(h.clients)
		}
	}
}

// Publish queues a message for every client subscribed to any of topics.
// A client subscribed to several of them receives the message once. It
// never blocks the caller; messages are dropped when the hub is backed up.
func (h *Hub) Publish(message []byte, topics ...string) {
	select {
	case h.publish <- publication{topics: topics, message: message}:
	default:
		log.Warn().Strs("topics", topics).Msg("Websocket hub backlog full, dropping message")
	}
}

// Reply queues a message for a single client.
func (h *Hub) Reply(client *Client, message []byte) {
	select {
	case h.publish <- publication{client: client, message: message}:
	case <-h.done:
	}
}

// Join registers a client. It is a no-op once the hub has stopped.
func (h *Hub) Join(client *Client) {
	select {
	case h.Register <- client:
	case <-h.done:
		close(client.Send)
	}
}

// Leave unregisters a client. It is a no-op once the hub has stopped.
func (h *Hub) Leave(client *Client) {
	select {
	case h.Unregister <- client:
	case <-h.done:
	}
}

// Subscribe adds client to topic.
func (h *Hub) Subscribe(client *Client, topic string) {
	select {
	case h.subscribe <- subscription{client: client, topic: topic, add: true}:
	case <-h.done:
	}
}

// Unsubscribe removes client from topic.
func (h *Hub) Unsubscribe(client *Client, topic string) {
	select {
	case h.subscribe <- subscription{client: client, topic: topic}:
	case <-h.done:
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount(ctx context.Context) int {
	reply := make(chan int, 1)
	select {
	case h.counts <- reply:
	case <-h.done:
		return 0
	case <-ctx.Done():
		return 0
	}
	select {
	case n := <-reply:
		return n
	case <-ctx.Done():
		return 0
	}
}

func (h *Hub) deliver(client *Client, message []byte) {
	select {
	case client.Send <- message:
	default:
		log.Warn().Str("user_id", client.Identity.ID).Msg("Dropping slow websocket client")
		h.drop(client)
	}
}

func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.Send)
	for topic, subs := range h.subscriptions {
		if _, ok := subs[client]; ok {
			delete(subs, client)
			if len(subs) == 0 {
				delete(h.subscriptions, topic)
			}
		}
	}
}

func (h *Hub) addSubscription(client *Client, topic string) {
	if h.subscriptions[topic] == nil {
		h.subscriptions[topic] = make(map[*Client]bool)
	}
	h.subscriptions[topic][client] = true
}

func (h *Hub) removeSubscription(client *Client, topic string) {
	if subs, ok := h.subscriptions[topic]; ok {
		delete(subs, client)
		if len(subs) == 0 {
			delete(h.subscriptions, topic)
		}
	}
}
