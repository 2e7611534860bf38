// Package protocol defines the JSON wire envelopes exchanged over a session
// connection: the tagged server->client message union, the client->server
// command frame, and the room snapshot payload.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/playroom/server/internal/v1/errs"
	"github.com/playroom/server/internal/v1/types"
)

// ServerMessage is one frame of the tagged server->client union:
// {"type":"<Variant>","data":<payload>}.
type ServerMessage struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// PlayerState is one entry of the room snapshot.
type PlayerState struct {
	Username types.Username `json:"username"`
	Score    types.Score    `json:"score"`
	IsOnline bool           `json:"isOnline"`
}

// RoomState is the snapshot of a room as seen by a connecting player.
type RoomState struct {
	Code    types.RoomCode `json:"code"`
	Leader  types.Username `json:"leader"`
	Players []PlayerState  `json:"players"`
}

// RoomSync is the payload of the Sync message sent to a freshly connected
// player.
type RoomSync struct {
	You  types.Username `json:"you"`
	Room RoomState      `json:"room"`
}

// --- ServerMessage constructors ---

func Sync(sync RoomSync) ServerMessage {
	return ServerMessage{Type: "Sync", Data: sync}
}

func PlayerJoined(username types.Username) ServerMessage {
	return ServerMessage{Type: "PlayerJoined", Data: username}
}

func PlayerLeft(username types.Username) ServerMessage {
	return ServerMessage{Type: "PlayerLeft", Data: username}
}

func PlayerConnected(username types.Username) ServerMessage {
	return ServerMessage{Type: "PlayerConnected", Data: username}
}

func PlayerDisconnected(username types.Username) ServerMessage {
	return ServerMessage{Type: "PlayerDisconnected", Data: username}
}

func ErrorMessage(err error) ServerMessage {
	return ServerMessage{Type: "Error", Data: errs.ToResponse(err)}
}

func Result(value uint32) ServerMessage {
	return ServerMessage{Type: "Result", Data: value}
}

// Marshal serializes a message, injecting the ack correlation id when one
// is supplied and the serialized value is a JSON object. Non-object values
// are emitted unmodified; the ack is silently dropped.
func Marshal(msg any, ack string) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	if ack == "" {
		return data, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return data, nil
	}

	ackValue, err := json.Marshal(ack)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ack: %w", err)
	}
	obj["ack"] = ackValue

	return json.Marshal(obj)
}

// ClientMessage is a domain command sent by a client: a type discriminant
// and an opaque payload interpreted by the command handler.
type ClientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ExtractAck parses a text frame as a generic JSON object and pulls out the
// optional "ack" correlation id. A frame that is not valid JSON fails here,
// before any ack is known.
func ExtractAck(frame []byte) (string, error) {
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(frame, &generic); err != nil {
		return "", fmt.Errorf("invalid message: %w", err)
	}

	raw, ok := generic["ack"]
	if !ok {
		return "", nil
	}
	var ack string
	if err := json.Unmarshal(raw, &ack); err != nil {
		return "", nil
	}
	return ack, nil
}

// ParseClientMessage deserializes a text frame into a client command.
func ParseClientMessage(frame []byte) (*ClientMessage, error) {
	msg := &ClientMessage{}
	if err := json.Unmarshal(frame, msg); err != nil {
		return nil, fmt.Errorf("invalid client message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("invalid client message: missing type")
	}
	return msg, nil
}
