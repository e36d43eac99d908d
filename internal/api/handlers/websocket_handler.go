package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/isdelr/signaldesk-be/internal/auth"
	"github.com/isdelr/signaldesk-be/internal/models"
	ws "github.com/isdelr/signaldesk-be/internal/websocket"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler upgrades authenticated HTTP connections to the live feed.
type WebSocketHandler struct {
	hub      *ws.Hub
	gate     *auth.Gate
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocketHandler. Browser connections
// are accepted only from allowedOrigins; an empty list allows any origin.
func NewWebSocketHandler(hub *ws.Hub, gate *auth.Gate, allowedOrigins []string) *WebSocketHandler {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}
	return &WebSocketHandler{
		hub:  hub,
		gate: gate,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(origins) == 0 || origins[origin] || origins["*"]
			},
		},
	}
}

type topicPayload struct {
	Topic string `json:"topic"`
}

// Serve authenticates the request (token query parameter or bearer header)
// and hands the connection to the hub.
func (h *WebSocketHandler) Serve(w http.ResponseWriter, r *http.Request) {
	id, err := h.authenticate(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade websocket connection")
		return
	}

	client := ws.NewClient(h.hub, conn, id)
	h.hub.Join(client)

	go client.WritePump()
	go func() {
		// Leaving closes Send, which stops WritePump.
		client.ReadPump(h.handleIncomingWSMessage)
		h.hub.Leave(client)
		log.Debug().Str("user_id", id.ID).Msg("Websocket connection closed")
	}()
}

func (h *WebSocketHandler) authenticate(r *http.Request) (models.Identity, error) {
	if token := r.URL.Query().Get("token"); token != "" {
		return h.gate.AuthenticateToken(r.Context(), token)
	}
	return h.gate.Authenticate(r.Context(), r.Header.Get("Authorization"))
}

// handleIncomingWSMessage processes messages received from a websocket client.
func (h *WebSocketHandler) handleIncomingWSMessage(client *ws.Client, message []byte) {
	var msg struct {
		Action  string          `json:"action"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(message, &msg); err != nil {
		log.Warn().Err(err).Bytes("message", message).Msg("Error decoding websocket message")
		h.hub.Reply(client, ws.NewErrorMessage("Invalid message"))
		return
	}

	switch msg.Action {
	case "ping":
		h.hub.Reply(client, ws.Encode("pong", nil))

	case "subscribe", "unsubscribe":
		var p topicPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil || p.Topic == "" {
			h.hub.Reply(client, ws.NewErrorMessage("Invalid payload for "+msg.Action))
			return
		}
		if msg.Action == "unsubscribe" {
			h.hub.Unsubscribe(client, p.Topic)
			h.hub.Reply(client, ws.Encode("unsubscribed", p))
			return
		}
		if !client.CanSubscribe(p.Topic) {
			h.hub.Reply(client, ws.NewErrorMessage("Not allowed to subscribe to "+p.Topic))
			return
		}
		h.hub.Subscribe(client, p.Topic)
		h.hub.Reply(client, ws.Encode("subscribed", p))

	default:
		log.Warn().Str("action", msg.Action).Msg("Unknown websocket action received")
		h.hub.Reply(client, ws.NewErrorMessage("Unknown action: "+msg.Action))
	}
}
