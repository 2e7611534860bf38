package types

// --- Core Domain Types ---

// RoomCode is a fixed-width decimal string identifying a room. Codes are
// drawn from a pre-shuffled pool and returned to it when the room dies.
type RoomCode string

// Username identifies a player within a single room. Uniqueness is only
// enforced per room.
type Username string

// Score is a player's accumulated score, mutated by the domain handler.
type Score uint32

// Connection is the outbound side of one duplex text connection. A room
// never touches the read side; it only fans frames out through this
// interface. Implementations are identity-tagged so that reconnect races
// can tell "the handle I am tearing down" from "the handle that replaced
// me".
type Connection interface {
	// ID returns the opaque globally-unique id minted at creation.
	// Two handles are the same connection iff their IDs are equal.
	ID() string

	// Send serializes msg to JSON and enqueues it as a text frame. If ack
	// is non-empty and the serialized value is a JSON object, an "ack" key
	// carrying it is injected before emitting.
	Send(msg any, ack string) error

	// SendRaw enqueues a pre-serialized text frame. A non-nil error means
	// the connection is dead and must not be reused.
	SendRaw(frame []byte) error

	// SendAndClose best-effort sends msg, then enqueues a close frame.
	SendAndClose(msg any)

	// Close enqueues a close frame. Safe to call more than once.
	Close()
}
