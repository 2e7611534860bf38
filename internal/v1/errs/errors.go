// Package errs defines the closed error taxonomy shared by the HTTP edge
// and the WebSocket session loop, plus the wire representation every error
// takes on both surfaces.
package errs

import (
	"errors"
	"net/http"
	"time"

	"github.com/playroom/server/internal/v1/types"
)

// Kind discriminates the error taxonomy. The string value is what appears
// in the "error" field on the wire.
type Kind string

const (
	KindUnknown                    Kind = "Unknown"
	KindRoomNotFound               Kind = "RoomNotFound"
	KindOutOfRoomCodes             Kind = "OutOfRoomCodes"
	KindUsernameTaken              Kind = "UsernameTaken"
	KindPlayerNotInRoom            Kind = "PlayerNotInRoom"
	KindInvalidAuthorizationHeader Kind = "InvalidAuthorizationHeader"
	KindInvalidToken               Kind = "InvalidToken"
	KindConnectedInAnotherDevice   Kind = "ConnectedInAnotherDevice"
)

// Error is a taxonomy member with its kind-specific wire payload.
type Error struct {
	Kind  Kind
	Data  any // camelCase payload carried in the "data" field, nil if none
	cause error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindRoomNotFound:
		return "Room not found"
	case KindOutOfRoomCodes:
		return "Out of room codes"
	case KindUsernameTaken:
		return "Username taken"
	case KindPlayerNotInRoom:
		return "Player not in room"
	case KindInvalidAuthorizationHeader:
		return "Invalid authorization header"
	case KindInvalidToken:
		return "Invalid token"
	case KindConnectedInAnotherDevice:
		return "Connected in another device"
	default:
		if e.cause != nil {
			return e.cause.Error()
		}
		return "Unknown error"
	}
}

func (e *Error) Unwrap() error { return e.cause }

// Status maps the kind to its HTTP status code.
func (e *Error) Status() int {
	switch e.Kind {
	case KindRoomNotFound:
		return http.StatusNotFound
	case KindOutOfRoomCodes:
		return http.StatusServiceUnavailable
	case KindUsernameTaken:
		return http.StatusConflict
	case KindPlayerNotInRoom:
		return http.StatusGone
	case KindInvalidAuthorizationHeader:
		return http.StatusBadRequest
	case KindInvalidToken:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// --- Kind-specific payloads ---

// RoomData identifies a room in an error payload.
type RoomData struct {
	RoomCode types.RoomCode `json:"roomCode"`
}

// SeatData identifies a seat (room + username) in an error payload.
type SeatData struct {
	RoomCode types.RoomCode `json:"roomCode"`
	Username types.Username `json:"username"`
}

// PrefixData carries the expected authorization scheme prefix.
type PrefixData struct {
	ExpectedPrefix string `json:"expectedPrefix"`
}

// --- Constructors ---

func RoomNotFound(code types.RoomCode) *Error {
	return &Error{Kind: KindRoomNotFound, Data: RoomData{RoomCode: code}}
}

func OutOfRoomCodes() *Error {
	return &Error{Kind: KindOutOfRoomCodes}
}

func UsernameTaken(code types.RoomCode, username types.Username) *Error {
	return &Error{Kind: KindUsernameTaken, Data: SeatData{RoomCode: code, Username: username}}
}

func PlayerNotInRoom(code types.RoomCode, username types.Username) *Error {
	return &Error{Kind: KindPlayerNotInRoom, Data: SeatData{RoomCode: code, Username: username}}
}

func InvalidAuthorizationHeader(expectedPrefix string) *Error {
	return &Error{Kind: KindInvalidAuthorizationHeader, Data: PrefixData{ExpectedPrefix: expectedPrefix}}
}

func InvalidToken(cause error) *Error {
	return &Error{Kind: KindInvalidToken, cause: cause}
}

func ConnectedInAnotherDevice() *Error {
	return &Error{Kind: KindConnectedInAnotherDevice}
}

func Unknown(cause error) *Error {
	return &Error{Kind: KindUnknown, cause: cause}
}

// Response is the wire error body, shared by HTTP replies and the error
// frames sent over the transport.
type Response struct {
	Code      int    `json:"code"`
	Timestamp string `json:"timestamp"`
	Error     string `json:"error"`
	Message   string `json:"message"`
	Data      any    `json:"data"`
}

// ToResponse renders any error as the wire body. Errors outside the
// taxonomy collapse to Unknown.
func ToResponse(err error) Response {
	var e *Error
	if !errors.As(err, &e) {
		e = Unknown(err)
	}
	return Response{
		Code:      e.Status(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Error:     string(e.Kind),
		Message:   e.Error(),
		Data:      e.Data,
	}
}
