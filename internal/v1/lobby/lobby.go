// Package lobby orchestrates room admission: creating and joining rooms,
// authenticating live connections against seat tokens, and destroying
// rooms that stay empty past the grace period. It owns the registry of
// live rooms and the code pool; the canonical lock order is
// registry -> room -> pool.
package lobby

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/playroom/server/internal/v1/auth"
	"github.com/playroom/server/internal/v1/codes"
	"github.com/playroom/server/internal/v1/errs"
	"github.com/playroom/server/internal/v1/logging"
	"github.com/playroom/server/internal/v1/metrics"
	"github.com/playroom/server/internal/v1/protocol"
	"github.com/playroom/server/internal/v1/room"
	"github.com/playroom/server/internal/v1/types"
)

// JoinedRoom is the HTTP-facing result of a create or join.
type JoinedRoom struct {
	RoomCode types.RoomCode `json:"roomCode"`
	Token    string         `json:"token"`
}

// Lobby binds the registry, the code pool, and the token codec into one
// admission engine.
type Lobby struct {
	mu                  sync.RWMutex
	rooms               map[types.RoomCode]*room.Room
	pendingRoomCleanups map[types.RoomCode]*time.Timer

	pool  *codes.Pool
	codec *auth.Codec
	grace time.Duration
}

// New creates a Lobby. grace is the delay before an offline player is
// reaped and before an empty room is destroyed.
func New(pool *codes.Pool, codec *auth.Codec, grace time.Duration) *Lobby {
	metrics.AvailableRoomCodes.Set(float64(pool.Len()))
	return &Lobby{
		rooms:               make(map[types.RoomCode]*room.Room),
		pendingRoomCleanups: make(map[types.RoomCode]*time.Timer),
		pool:                pool,
		codec:               codec,
		grace:               grace,
	}
}

// CreateRoom pops a fresh code, builds a room led by username, and issues
// the leader's seat token. Any failure after the pop pushes the code back
// so the code universe stays whole.
func (l *Lobby) CreateRoom(username types.Username) (*JoinedRoom, error) {
	code, err := l.pool.Pop()
	if err != nil {
		logging.Warn(context.Background(), "Out of room codes")
		metrics.LobbyOperations.WithLabelValues("create", "error").Inc()
		return nil, err
	}
	logging.GetLogger().Debug("Popped room code",
		zap.String("roomCode", string(code)), zap.Int("remaining", l.pool.Len()))

	leader := room.NewPlayer(username)
	token, err := l.codec.Encode(leader.CreatedAt, code, username)
	if err != nil {
		l.pool.Push(code)
		logging.Error(context.Background(), "Failed to issue token, returned room code",
			zap.String("roomCode", string(code)), zap.Error(err))
		metrics.LobbyOperations.WithLabelValues("create", "error").Inc()
		return nil, err
	}

	r := room.New(code, leader, l.removeRoom)

	l.mu.Lock()
	l.rooms[code] = r
	total := len(l.rooms)
	l.mu.Unlock()

	metrics.ActiveRooms.Inc()
	metrics.AvailableRoomCodes.Set(float64(l.pool.Len()))
	metrics.RoomPlayers.WithLabelValues(string(code)).Set(1)
	metrics.LobbyOperations.WithLabelValues("create", "ok").Inc()

	logging.Info(context.Background(), "Room created",
		zap.String("roomCode", string(code)), zap.String("leader", string(username)),
		zap.Int("totalRooms", total))

	r.SchedulePlayerCleanup(username, l.grace)

	return &JoinedRoom{RoomCode: code, Token: token}, nil
}

// JoinRoom adds username to an existing room and issues its seat token.
func (l *Lobby) JoinRoom(code types.RoomCode, username types.Username) (*JoinedRoom, error) {
	r, err := l.lookupRoom(code)
	if err != nil {
		metrics.LobbyOperations.WithLabelValues("join", "error").Inc()
		return nil, err
	}

	token, err := r.Join(username, func(createdAt uint64) (string, error) {
		return l.codec.Encode(createdAt, code, username)
	})
	if err != nil {
		metrics.LobbyOperations.WithLabelValues("join", "error").Inc()
		return nil, err
	}

	// The room is occupied again; a pending destruction must not fire.
	l.cancelRoomCleanup(code)

	metrics.LobbyOperations.WithLabelValues("join", "ok").Inc()
	r.SchedulePlayerCleanup(username, l.grace)

	return &JoinedRoom{RoomCode: code, Token: token}, nil
}

// ConnectPlayer authenticates a live connection against its seat token and
// installs it in the room. The returned snapshot is for the connecting
// client only; everyone else has already been told PlayerConnected.
func (l *Lobby) ConnectPlayer(token string, conn types.Connection) (*room.Room, protocol.RoomSync, error) {
	claims, err := l.codec.Decode(token)
	if err != nil {
		metrics.LobbyOperations.WithLabelValues("connect", "error").Inc()
		return nil, protocol.RoomSync{}, err
	}

	r, err := l.lookupRoom(claims.RoomCode)
	if err != nil {
		metrics.LobbyOperations.WithLabelValues("connect", "error").Inc()
		return nil, protocol.RoomSync{}, err
	}

	sync, err := r.Connect(claims.Username, claims.Iat, conn)
	if err != nil {
		metrics.LobbyOperations.WithLabelValues("connect", "error").Inc()
		return nil, protocol.RoomSync{}, err
	}

	metrics.LobbyOperations.WithLabelValues("connect", "ok").Inc()
	return r, sync, nil
}

// DisconnectPlayer clears the seat's connection unless a newer connection
// already superseded the closing one, then arms the offline grace timer.
func (l *Lobby) DisconnectPlayer(r *room.Room, username types.Username, closing types.Connection) {
	if r.Disconnect(username, closing) {
		r.SchedulePlayerCleanup(username, l.grace)
	}
}

// lookupRoom clones a reference to a registered room under the read lock.
func (l *Lobby) lookupRoom(code types.RoomCode) (*room.Room, error) {
	l.mu.RLock()
	r, ok := l.rooms[code]
	l.mu.RUnlock()
	if !ok {
		return nil, errs.RoomNotFound(code)
	}
	return r, nil
}

// cancelRoomCleanup stops and forgets a pending destruction timer.
func (l *Lobby) cancelRoomCleanup(code types.RoomCode) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if timer, ok := l.pendingRoomCleanups[code]; ok {
		timer.Stop()
		delete(l.pendingRoomCleanups, code)
		logging.Info(context.Background(), "Cancelled pending room cleanup",
			zap.String("roomCode", string(code)))
	}
}

// removeRoom schedules destruction of a now-empty room after the grace
// period. Invoked by the room itself when its last player is reaped.
func (l *Lobby) removeRoom(code types.RoomCode) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.pendingRoomCleanups[code]; ok {
		existing.Stop()
	}

	l.pendingRoomCleanups[code] = time.AfterFunc(l.grace, func() {
		l.destroyRoom(code)
	})
	logging.Info(context.Background(), "Scheduled room cleanup",
		zap.String("roomCode", string(code)), zap.Duration("grace", l.grace))
}

// destroyRoom removes an empty room from the registry and returns its code
// to the pool. The emptiness precondition is re-checked under the registry
// and room locks; a join that won the race aborts the destruction.
func (l *Lobby) destroyRoom(code types.RoomCode) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.pendingRoomCleanups, code)

	r, ok := l.rooms[code]
	if !ok {
		return
	}
	if !r.IsEmpty() {
		logging.Info(context.Background(), "Aborted room cleanup, room is occupied again",
			zap.String("roomCode", string(code)))
		return
	}

	delete(l.rooms, code)
	l.pool.Push(code)

	metrics.ActiveRooms.Dec()
	metrics.AvailableRoomCodes.Set(float64(l.pool.Len()))
	metrics.RoomPlayers.DeleteLabelValues(string(code))

	logging.Info(context.Background(), "Destroyed empty room and returned code",
		zap.String("roomCode", string(code)), zap.Int("availableCodes", l.pool.Len()))
}

// RoomCount reports how many rooms are currently registered.
func (l *Lobby) RoomCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.rooms)
}

// Shutdown stops every pending timer and closes every live connection so
// no detached task outlives the process teardown window.
func (l *Lobby) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	for code, timer := range l.pendingRoomCleanups {
		timer.Stop()
		delete(l.pendingRoomCleanups, code)
	}
	rooms := make([]*room.Room, 0, len(l.rooms))
	for _, r := range l.rooms {
		rooms = append(rooms, r)
	}
	l.mu.Unlock()

	for _, r := range rooms {
		r.StopTimers()
		r.CloseAll()
	}

	logging.Info(ctx, "Lobby shut down", zap.Int("roomsClosed", len(rooms)))
	return nil
}
