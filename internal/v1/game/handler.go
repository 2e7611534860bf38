// Package game implements the domain command set relayed by the session
// loop. The session core treats commands as opaque; this is the pluggable
// piece that gives them meaning.
package game

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/playroom/server/internal/v1/protocol"
	"github.com/playroom/server/internal/v1/room"
	"github.com/playroom/server/internal/v1/types"
)

// Handle routes a client command to its implementation and returns the
// reply to relay. Unknown or malformed commands become error frames; the
// session keeps running either way.
func Handle(_ context.Context, msg *protocol.ClientMessage, _ types.Username, _ *room.Room) protocol.ServerMessage {
	switch msg.Type {
	case "Add":
		return handleAdd(msg.Data)
	default:
		return protocol.ErrorMessage(fmt.Errorf("unknown command type %q", msg.Type))
	}
}

func handleAdd(data json.RawMessage) protocol.ServerMessage {
	var numbers []uint32
	if err := json.Unmarshal(data, &numbers); err != nil {
		return protocol.ErrorMessage(fmt.Errorf("invalid Add payload: %w", err))
	}

	var sum uint32
	for _, n := range numbers {
		sum += n
	}
	return protocol.Result(sum)
}
