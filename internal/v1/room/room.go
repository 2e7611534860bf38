// Package room holds the authoritative per-room state: the players, the
// leader, the fan-out bus, and the per-player offline grace timers.
package room

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/playroom/server/internal/v1/errs"
	"github.com/playroom/server/internal/v1/logging"
	"github.com/playroom/server/internal/v1/metrics"
	"github.com/playroom/server/internal/v1/protocol"
	"github.com/playroom/server/internal/v1/types"
)

// Player is one seat in a room. CreatedAt doubles as the seat version: a
// token is only valid while its iat equals the CreatedAt of the live
// player record.
type Player struct {
	Username  types.Username
	Score     types.Score
	CreatedAt uint64 // milliseconds since epoch, captured at construction

	// Conn is nil while the player is offline. cleanupTimer is armed iff
	// the player is offline and pending removal; both are guarded by the
	// owning room's lock.
	Conn         types.Connection
	cleanupTimer *time.Timer
}

// NewPlayer constructs an offline player with score zero.
func NewPlayer(username types.Username) *Player {
	return &Player{
		Username:  username,
		CreatedAt: uint64(time.Now().UnixMilli()),
	}
}

// CleanupPending reports whether an offline grace timer is armed. Caller
// must hold the room lock; exposed for the lobby and for invariant tests.
func (p *Player) CleanupPending() bool {
	return p.cleanupTimer != nil
}

// Room is an in-memory session. All mutation happens under mu; successive
// fan-outs on the same room are therefore observed in issue order by every
// recipient.
type Room struct {
	Code   types.RoomCode
	Leader types.Username

	mu      sync.RWMutex
	players map[types.Username]*Player

	// onEmpty is invoked (outside the lock) after the last player has been
	// reaped, so the owning lobby can schedule the room's own destruction.
	onEmpty func(types.RoomCode)
}

// New creates a room containing only its leader.
func New(code types.RoomCode, leader *Player, onEmpty func(types.RoomCode)) *Room {
	return &Room{
		Code:    code,
		Leader:  leader.Username,
		players: map[types.Username]*Player{leader.Username: leader},
		onEmpty: onEmpty,
	}
}

// Len returns the current number of players.
func (r *Room) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players)
}

// IsEmpty reports whether the room has no players left.
func (r *Room) IsEmpty() bool {
	return r.Len() == 0
}

// GetPlayer returns the player occupying the given seat.
func (r *Room) GetPlayer(username types.Username) (*Player, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.getPlayerLocked(username)
}

func (r *Room) getPlayerLocked(username types.Username) (*Player, error) {
	p, ok := r.players[username]
	if !ok {
		return nil, errs.PlayerNotInRoom(r.Code, username)
	}
	return p, nil
}

// Join inserts a new player under the given username. The mint callback
// issues the seat token for the new player's CreatedAt before the seat
// becomes visible, so a minting failure leaves the room untouched.
func (r *Room) Join(username types.Username, mint func(createdAt uint64) (string, error)) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.players[username]; taken {
		return "", errs.UsernameTaken(r.Code, username)
	}

	player := NewPlayer(username)
	token, err := mint(player.CreatedAt)
	if err != nil {
		return "", err
	}

	r.players[username] = player
	metrics.RoomPlayers.WithLabelValues(string(r.Code)).Set(float64(len(r.players)))
	r.sendLocked(protocol.PlayerJoined(username))

	logging.Info(context.Background(), "Player joined room",
		zap.String("roomCode", string(r.Code)), zap.String("username", string(username)))

	return token, nil
}

// Connect installs a connection on an existing seat. The seat version from
// the caller's token must match the live record; a mismatch means the seat
// was re-created under the same name since the token was issued. Any
// previous connection is told to close and is dispossessed.
func (r *Room) Connect(username types.Username, seatVersion uint64, conn types.Connection) (protocol.RoomSync, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	player, err := r.getPlayerLocked(username)
	if err != nil {
		return protocol.RoomSync{}, err
	}

	if seatVersion != player.CreatedAt {
		return protocol.RoomSync{}, errs.UsernameTaken(r.Code, username)
	}

	if old := player.Conn; old != nil {
		logging.Info(context.Background(), "Player connected in another device, closing old connection",
			zap.String("roomCode", string(r.Code)), zap.String("username", string(username)),
			zap.String("oldConnId", old.ID()), zap.String("newConnId", conn.ID()))
		old.SendAndClose(protocol.ErrorMessage(errs.ConnectedInAnotherDevice()))
	}

	player.Conn = conn
	if player.cleanupTimer != nil {
		player.cleanupTimer.Stop()
		player.cleanupTimer = nil
	}

	r.sendExceptLocked(protocol.PlayerConnected(username), username)

	logging.Info(context.Background(), "Player connected",
		zap.String("roomCode", string(r.Code)), zap.String("username", string(username)))

	return r.snapshotLocked(username), nil
}

// Disconnect clears the seat's connection if closing is still the installed
// handle. When a newer connection has already superseded it, nothing is
// mutated and no event is emitted. The returned flag tells the caller
// whether an offline grace timer should be armed.
func (r *Room) Disconnect(username types.Username, closing types.Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	player, err := r.getPlayerLocked(username)
	if err != nil {
		return false
	}

	if player.Conn != nil && player.Conn.ID() != closing.ID() {
		logging.GetLogger().Debug("Previous connection disconnected",
			zap.String("roomCode", string(r.Code)), zap.String("username", string(username)))
		return false
	}

	player.Conn = nil
	r.sendLocked(protocol.PlayerDisconnected(username))

	logging.Info(context.Background(), "Player disconnected",
		zap.String("roomCode", string(r.Code)), zap.String("username", string(username)))

	return true
}

// SchedulePlayerCleanup arms the offline grace timer for a seat, replacing
// any previously armed one. When the timer fires the seat is reaped only if
// it is still present and still offline.
func (r *Room) SchedulePlayerCleanup(username types.Username, grace time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	player, err := r.getPlayerLocked(username)
	if err != nil {
		return
	}

	if player.cleanupTimer != nil {
		player.cleanupTimer.Stop()
	}
	player.cleanupTimer = time.AfterFunc(grace, func() {
		r.reapPlayer(username)
	})
}

// reapPlayer removes an offline seat after its grace period elapsed. The
// precondition is re-checked under the lock: a connect or removal that won
// the race makes this a no-op.
func (r *Room) reapPlayer(username types.Username) {
	r.mu.Lock()

	player, ok := r.players[username]
	if !ok {
		r.mu.Unlock()
		return
	}
	if player.Conn != nil {
		player.cleanupTimer = nil
		r.mu.Unlock()
		return
	}

	delete(r.players, username)
	metrics.RoomPlayers.WithLabelValues(string(r.Code)).Set(float64(len(r.players)))
	r.sendLocked(protocol.PlayerLeft(username))
	empty := len(r.players) == 0

	logging.Info(context.Background(), "Reaped offline player",
		zap.String("roomCode", string(r.Code)), zap.String("username", string(username)),
		zap.Bool("roomNowEmpty", empty))

	r.mu.Unlock()

	if empty && r.onEmpty != nil {
		r.onEmpty(r.Code)
	}
}

// Send fans a message out to every online player. Serialization happens
// once; a per-recipient failure closes that connection without aborting the
// rest of the fan-out.
func (r *Room) Send(msg protocol.ServerMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sendLocked(msg)
}

// SendExcept fans a message out to every online player but one.
func (r *Room) SendExcept(msg protocol.ServerMessage, except types.Username) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sendExceptLocked(msg, except)
}

func (r *Room) sendLocked(msg protocol.ServerMessage) {
	frame, err := protocol.Marshal(msg, "")
	if err != nil {
		logging.Error(context.Background(), "Failed to serialize fan-out message",
			zap.String("roomCode", string(r.Code)), zap.Error(err))
		return
	}
	for _, player := range r.players {
		if player.Conn == nil {
			continue
		}
		if err := player.Conn.SendRaw(frame); err != nil {
			player.Conn.Close()
		}
	}
}

func (r *Room) sendExceptLocked(msg protocol.ServerMessage, except types.Username) {
	frame, err := protocol.Marshal(msg, "")
	if err != nil {
		logging.Error(context.Background(), "Failed to serialize fan-out message",
			zap.String("roomCode", string(r.Code)), zap.Error(err))
		return
	}
	for username, player := range r.players {
		if username == except || player.Conn == nil {
			continue
		}
		if err := player.Conn.SendRaw(frame); err != nil {
			player.Conn.Close()
		}
	}
}

// Snapshot builds the Sync payload for the given recipient.
func (r *Room) Snapshot(you types.Username) protocol.RoomSync {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked(you)
}

func (r *Room) snapshotLocked(you types.Username) protocol.RoomSync {
	players := make([]protocol.PlayerState, 0, len(r.players))
	for _, p := range r.players {
		players = append(players, protocol.PlayerState{
			Username: p.Username,
			Score:    p.Score,
			IsOnline: p.Conn != nil,
		})
	}
	return protocol.RoomSync{
		You: you,
		Room: protocol.RoomState{
			Code:    r.Code,
			Leader:  r.Leader,
			Players: players,
		},
	}
}

// CloseAll closes every online connection, used during server shutdown.
func (r *Room) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, player := range r.players {
		if player.Conn != nil {
			player.Conn.Close()
		}
	}
}

// StopTimers disarms every pending player cleanup timer, used during
// server shutdown so detached timer goroutines do not outlive the lobby.
func (r *Room) StopTimers() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, player := range r.players {
		if player.cleanupTimer != nil {
			player.cleanupTimer.Stop()
			player.cleanupTimer = nil
		}
	}
}
