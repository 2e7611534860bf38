package room

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playroom/server/internal/v1/errs"
	"github.com/playroom/server/internal/v1/types"
)

func staticMint(createdAt uint64) (string, error) {
	return "token", nil
}

// newTestRoom builds a room with a leader whose connection is installed,
// returning the room and the leader's mock connection.
func newTestRoom(t *testing.T) (*Room, *mockConn) {
	t.Helper()
	leader := NewPlayer("alice")
	r := New("0042", leader, nil)

	conn := newMockConn()
	_, err := r.Connect("alice", leader.CreatedAt, conn)
	require.NoError(t, err)
	return r, conn
}

func TestJoinFansOutToExistingPlayers(t *testing.T) {
	r, leaderConn := newTestRoom(t)

	_, err := r.Join("bob", staticMint)
	require.NoError(t, err)

	assert.Equal(t, 2, r.Len())
	assert.Contains(t, leaderConn.messageTypes(), "PlayerJoined")
}

func TestJoinRejectsDuplicateUsername(t *testing.T) {
	r, _ := newTestRoom(t)

	_, err := r.Join("alice", staticMint)
	require.Error(t, err)

	var e *errs.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, errs.KindUsernameTaken, e.Kind)
	assert.Equal(t, errs.SeatData{RoomCode: "0042", Username: "alice"}, e.Data)
	assert.Equal(t, 1, r.Len())
}

func TestJoinMintFailureLeavesRoomUntouched(t *testing.T) {
	r, leaderConn := newTestRoom(t)

	mintErr := errors.New("signing key unavailable")
	_, err := r.Join("bob", func(uint64) (string, error) { return "", mintErr })
	require.ErrorIs(t, err, mintErr)

	assert.Equal(t, 1, r.Len())
	assert.NotContains(t, leaderConn.messageTypes(), "PlayerJoined")
}

func TestConnectReturnsSnapshot(t *testing.T) {
	r, _ := newTestRoom(t)
	_, err := r.Join("bob", staticMint)
	require.NoError(t, err)

	bob, err := r.GetPlayer("bob")
	require.NoError(t, err)

	sync, err := r.Connect("bob", bob.CreatedAt, newMockConn())
	require.NoError(t, err)

	assert.Equal(t, types.Username("bob"), sync.You)
	assert.Equal(t, types.RoomCode("0042"), sync.Room.Code)
	assert.Equal(t, types.Username("alice"), sync.Room.Leader)
	require.Len(t, sync.Room.Players, 2)

	online := map[types.Username]bool{}
	for _, p := range sync.Room.Players {
		online[p.Username] = p.IsOnline
	}
	assert.True(t, online["alice"])
	assert.True(t, online["bob"])
}

func TestConnectUnknownSeat(t *testing.T) {
	r, _ := newTestRoom(t)

	_, err := r.Connect("ghost", 1, newMockConn())
	require.Error(t, err)

	var e *errs.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, errs.KindPlayerNotInRoom, e.Kind)
}

func TestConnectRejectsStaleSeatVersion(t *testing.T) {
	r, _ := newTestRoom(t)

	alice, err := r.GetPlayer("alice")
	require.NoError(t, err)

	_, err = r.Connect("alice", alice.CreatedAt+1, newMockConn())
	require.Error(t, err)

	var e *errs.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, errs.KindUsernameTaken, e.Kind)
}

func TestConnectDispossessesOldConnection(t *testing.T) {
	r, oldConn := newTestRoom(t)

	alice, err := r.GetPlayer("alice")
	require.NoError(t, err)

	newConn := newMockConn()
	_, err = r.Connect("alice", alice.CreatedAt, newConn)
	require.NoError(t, err)

	assert.True(t, oldConn.isClosed())
	assert.Contains(t, oldConn.messageTypes(), "Error")
	assert.Same(t, types.Connection(newConn), alice.Conn)
}

func TestConnectNotifiesOthersOnly(t *testing.T) {
	r, leaderConn := newTestRoom(t)
	_, err := r.Join("bob", staticMint)
	require.NoError(t, err)

	bob, err := r.GetPlayer("bob")
	require.NoError(t, err)

	bobConn := newMockConn()
	_, err = r.Connect("bob", bob.CreatedAt, bobConn)
	require.NoError(t, err)

	assert.Contains(t, leaderConn.messageTypes(), "PlayerConnected")
	assert.NotContains(t, bobConn.messageTypes(), "PlayerConnected")
}

func TestDisconnectClearsSeat(t *testing.T) {
	r, conn := newTestRoom(t)
	_, err := r.Join("bob", staticMint)
	require.NoError(t, err)
	bob, err := r.GetPlayer("bob")
	require.NoError(t, err)
	bobConn := newMockConn()
	_, err = r.Connect("bob", bob.CreatedAt, bobConn)
	require.NoError(t, err)

	assert.True(t, r.Disconnect("alice", conn))

	alice, err := r.GetPlayer("alice")
	require.NoError(t, err)
	assert.Nil(t, alice.Conn)
	assert.Contains(t, bobConn.messageTypes(), "PlayerDisconnected")
}

func TestDisconnectSupersededHandleIsNoOp(t *testing.T) {
	r, oldConn := newTestRoom(t)

	alice, err := r.GetPlayer("alice")
	require.NoError(t, err)
	newConn := newMockConn()
	_, err = r.Connect("alice", alice.CreatedAt, newConn)
	require.NoError(t, err)

	// The old handle's read loop winding down must not tear out the seat
	// the replacement just claimed.
	assert.False(t, r.Disconnect("alice", oldConn))
	assert.Same(t, types.Connection(newConn), alice.Conn)
}

func TestDisconnectUnknownSeat(t *testing.T) {
	r, _ := newTestRoom(t)
	assert.False(t, r.Disconnect("ghost", newMockConn()))
}

func TestFanOutFailureIsolation(t *testing.T) {
	r, leaderConn := newTestRoom(t)
	_, err := r.Join("bob", staticMint)
	require.NoError(t, err)
	bob, err := r.GetPlayer("bob")
	require.NoError(t, err)

	bobConn := newMockConn()
	bobConn.failSend = true
	_, err = r.Connect("bob", bob.CreatedAt, bobConn)
	require.NoError(t, err)

	_, err = r.Join("carol", staticMint)
	require.NoError(t, err)

	// Bob's dead connection gets closed; alice still receives the event.
	assert.True(t, bobConn.isClosed())
	assert.Contains(t, leaderConn.messageTypes(), "PlayerJoined")
}

func TestReapOfflinePlayerAfterGrace(t *testing.T) {
	r, leaderConn := newTestRoom(t)
	_, err := r.Join("bob", staticMint)
	require.NoError(t, err)

	r.SchedulePlayerCleanup("bob", 20*time.Millisecond)

	assert.Eventually(t, func() bool { return r.Len() == 1 },
		time.Second, 5*time.Millisecond)
	assert.Contains(t, leaderConn.messageTypes(), "PlayerLeft")

	_, err = r.GetPlayer("bob")
	var e *errs.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, errs.KindPlayerNotInRoom, e.Kind)
}

func TestReconnectCancelsCleanup(t *testing.T) {
	r, _ := newTestRoom(t)
	_, err := r.Join("bob", staticMint)
	require.NoError(t, err)
	bob, err := r.GetPlayer("bob")
	require.NoError(t, err)

	r.SchedulePlayerCleanup("bob", 30*time.Millisecond)
	_, err = r.Connect("bob", bob.CreatedAt, newMockConn())
	require.NoError(t, err)
	assert.False(t, bob.CleanupPending())

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 2, r.Len())
}

func TestReapSkipsReconnectedPlayer(t *testing.T) {
	r, _ := newTestRoom(t)
	_, err := r.Join("bob", staticMint)
	require.NoError(t, err)
	bob, err := r.GetPlayer("bob")
	require.NoError(t, err)

	r.SchedulePlayerCleanup("bob", 10*time.Millisecond)

	// A connect racing the timer: even if the fire slips through, the
	// precondition re-check under the lock must keep the online seat.
	_, err = r.Connect("bob", bob.CreatedAt, newMockConn())
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, 2, r.Len())
}

func TestOnEmptyFiresWhenLastPlayerReaped(t *testing.T) {
	emptied := make(chan types.RoomCode, 1)
	leader := NewPlayer("alice")
	r := New("0042", leader, func(code types.RoomCode) { emptied <- code })

	r.SchedulePlayerCleanup("alice", 10*time.Millisecond)

	select {
	case code := <-emptied:
		assert.Equal(t, types.RoomCode("0042"), code)
	case <-time.After(time.Second):
		t.Fatal("onEmpty was not invoked")
	}
	assert.True(t, r.IsEmpty())
}

func TestRescheduleReplacesTimer(t *testing.T) {
	r, _ := newTestRoom(t)
	_, err := r.Join("bob", staticMint)
	require.NoError(t, err)

	r.SchedulePlayerCleanup("bob", time.Hour)
	r.SchedulePlayerCleanup("bob", 10*time.Millisecond)

	assert.Eventually(t, func() bool { return r.Len() == 1 },
		time.Second, 5*time.Millisecond)
}

func TestSnapshotReflectsOnlineState(t *testing.T) {
	r, conn := newTestRoom(t)
	_, err := r.Join("bob", staticMint)
	require.NoError(t, err)

	r.Disconnect("alice", conn)

	sync := r.Snapshot("bob")
	online := map[types.Username]bool{}
	for _, p := range sync.Room.Players {
		online[p.Username] = p.IsOnline
	}
	assert.False(t, online["alice"])
	assert.False(t, online["bob"])
}

func TestCloseAllClosesOnlineConnections(t *testing.T) {
	r, conn := newTestRoom(t)
	r.CloseAll()
	assert.True(t, conn.isClosed())
}

func TestStopTimersDisarmsCleanups(t *testing.T) {
	r, _ := newTestRoom(t)
	_, err := r.Join("bob", staticMint)
	require.NoError(t, err)

	r.SchedulePlayerCleanup("bob", 20*time.Millisecond)
	r.StopTimers()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, r.Len())
}
