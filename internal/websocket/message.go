package websocket

import (
	"encoding/json"

	"github.com/rs/zerolog/log"
)

// Message defines the structure for websocket messages.
type Message struct {
	Action  string      `json:"action"`
	Payload interface{} `json:"payload"`
}

// Encode marshals a message with the given action and payload.
func Encode(action string, payload interface{}) []byte {
	b, err := json.Marshal(Message{Action: action, Payload: payload})
	if err != nil {
		log.Error().Err(err).Str("action", action).Msg("Failed to encode websocket message")
		return nil
	}
	return b
}

// NewErrorMessage builds an "error" message for a single client.
func NewErrorMessage(message string) []byte {
	return Encode("error", map[string]string{"message": message})
}
