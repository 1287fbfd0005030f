package dispatcher

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caro-backend/internal/entity"
	"caro-backend/internal/registry"
	"caro-backend/internal/service"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type sentEvent struct {
	ClientID string
	RoomID   string
	ExceptID string
	Event    string
	Payload  any
}

// fakeMessenger records every delivery and group change.
type fakeMessenger struct {
	mu     sync.Mutex
	Sent   []sentEvent
	Groups map[string]map[string]struct{}
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{Groups: make(map[string]map[string]struct{})}
}

func (that *fakeMessenger) SendTo(clientID, event string, payload any) {
	that.mu.Lock()
	defer that.mu.Unlock()
	that.Sent = append(that.Sent, sentEvent{ClientID: clientID, Event: event, Payload: payload})
}

func (that *fakeMessenger) Broadcast(roomID, event string, payload any) {
	that.mu.Lock()
	defer that.mu.Unlock()
	that.Sent = append(that.Sent, sentEvent{RoomID: roomID, Event: event, Payload: payload})
}

func (that *fakeMessenger) BroadcastExcept(roomID, exceptID, event string, payload any) {
	that.mu.Lock()
	defer that.mu.Unlock()
	that.Sent = append(that.Sent, sentEvent{RoomID: roomID, ExceptID: exceptID, Event: event, Payload: payload})
}

func (that *fakeMessenger) JoinGroup(clientID, roomID string) {
	that.mu.Lock()
	defer that.mu.Unlock()
	if that.Groups[roomID] == nil {
		that.Groups[roomID] = make(map[string]struct{})
	}
	that.Groups[roomID][clientID] = struct{}{}
}

func (that *fakeMessenger) LeaveGroup(clientID, roomID string) {
	that.mu.Lock()
	defer that.mu.Unlock()
	delete(that.Groups[roomID], clientID)
}

func (that *fakeMessenger) eventsFor(clientID, event string) []sentEvent {
	that.mu.Lock()
	defer that.mu.Unlock()

	var matched []sentEvent
	for _, sent := range that.Sent {
		if sent.ClientID == clientID && sent.Event == event {
			matched = append(matched, sent)
		}
	}

	return matched
}

func (that *fakeMessenger) broadcasts(roomID, event string) []sentEvent {
	that.mu.Lock()
	defer that.mu.Unlock()

	var matched []sentEvent
	for _, sent := range that.Sent {
		if sent.RoomID == roomID && sent.Event == event {
			matched = append(matched, sent)
		}
	}

	return matched
}

type fakeArchive struct {
	saved chan *entity.GameResult
}

func (that *fakeArchive) Save(_ context.Context, result *entity.GameResult) error {
	that.saved <- result
	return nil
}

func newDispatcher(t *testing.T, cleanupTimeout time.Duration) (*Dispatcher, *fakeMessenger, *registry.SessionRegistry, *service.RoomService) {
	t.Helper()

	logger := newTestLogger()
	sessions := registry.NewSessionRegistry()
	rooms := service.NewRoomService(3, 3, cleanupTimeout)
	messenger := newFakeMessenger()

	return New(logger, sessions, rooms, messenger, nil), messenger, sessions, rooms
}

// pairPlayers connects a and b and pairs them through random matchmaking,
// returning the shared room id. a holds circle and moves first.
func pairPlayers(t *testing.T, disp *Dispatcher, sessions *registry.SessionRegistry) string {
	t.Helper()

	disp.HandleConnect("a")
	disp.HandleConnect("b")
	disp.HandleRequestToPlay("a", "Alice")
	disp.HandleRequestToPlay("b", "Bob")

	session, ok := sessions.Get("a")
	require.True(t, ok)
	require.NotEmpty(t, session.RoomID)

	return session.RoomID
}

// playOutTopRowWin drives the game to a circle win on cells 0,1,2.
func playOutTopRowWin(disp *Dispatcher, roomID string) {
	disp.HandlePlayerMove("a", roomID, 0, entity.SignCircle)
	disp.HandlePlayerMove("b", roomID, 3, entity.SignCross)
	disp.HandlePlayerMove("a", roomID, 1, entity.SignCircle)
	disp.HandlePlayerMove("b", roomID, 4, entity.SignCross)
	disp.HandlePlayerMove("a", roomID, 2, entity.SignCircle)
}

func TestDispatcher_Connect(t *testing.T) {
	// Given: a dispatcher
	disp, messenger, _, _ := newDispatcher(t, 5*time.Second)

	// When: a client connects
	disp.HandleConnect("a")

	// Then: it receives its server-assigned id
	events := messenger.eventsFor("a", EventConnected)
	require.Len(t, events, 1)
	assert.Equal(t, ConnectedPayload{ID: "a"}, events[0].Payload)
}

func TestDispatcher_RandomMatchmaking(t *testing.T) {
	t.Run("First requester waits, second pairs", func(t *testing.T) {
		// Given: two connected clients
		disp, messenger, sessions, _ := newDispatcher(t, 5*time.Second)
		disp.HandleConnect("a")
		disp.HandleConnect("b")

		// When: a requests play with nobody waiting
		disp.HandleRequestToPlay("a", "Alice")

		// Then: a is told no opponent was found
		require.Len(t, messenger.eventsFor("a", EventOpponentNotFound), 1)

		// When: b requests play
		disp.HandleRequestToPlay("b", "Bob")

		// Then: both receive opponent-found with complementary signs and a shared room
		eventsA := messenger.eventsFor("a", EventOpponentFound)
		eventsB := messenger.eventsFor("b", EventOpponentFound)
		require.Len(t, eventsA, 1)
		require.Len(t, eventsB, 1)

		payloadA, ok := eventsA[0].Payload.(OpponentFoundPayload)
		require.True(t, ok)
		payloadB, ok := eventsB[0].Payload.(OpponentFoundPayload)
		require.True(t, ok)

		assert.Equal(t, "Bob", payloadA.OpponentName)
		assert.Equal(t, "Alice", payloadB.OpponentName)
		assert.Equal(t, entity.SignCircle, payloadA.PlayingAs)
		assert.Equal(t, entity.SignCross, payloadB.PlayingAs)
		assert.Equal(t, payloadA.RoomName, payloadB.RoomName)

		// And: both joined the room's broadcast group
		sessionA, _ := sessions.Get("a")
		assert.Contains(t, messenger.Groups[sessionA.RoomID], "a")
		assert.Contains(t, messenger.Groups[sessionA.RoomID], "b")
	})

	t.Run("Waiting client disconnect clears the pool", func(t *testing.T) {
		// Given: a waiting in the pool
		disp, messenger, _, _ := newDispatcher(t, 5*time.Second)
		disp.HandleConnect("a")
		disp.HandleConnect("b")
		disp.HandleRequestToPlay("a", "Alice")

		// When: a disconnects and b requests play
		disp.HandleDisconnect("a")
		disp.HandleRequestToPlay("b", "Bob")

		// Then: b waits instead of being paired with a ghost
		assert.Len(t, messenger.eventsFor("b", EventOpponentNotFound), 1)
		assert.Empty(t, messenger.eventsFor("b", EventOpponentFound))
	})
}

func TestDispatcher_FriendRooms(t *testing.T) {
	t.Run("Wrong password reaches only the joiner", func(t *testing.T) {
		// Given: a room guarded by p1
		disp, messenger, _, rooms := newDispatcher(t, 5*time.Second)
		disp.HandleConnect("a")
		disp.HandleConnect("b")
		disp.HandleJoinRoomByID("a", "Alice", "friends", "p1", true)

		// When: b joins with p2
		disp.HandleJoinRoomByID("b", "Bob", "friends", "p2", false)

		// Then: b is told wrong password and the room still has one player
		assert.Len(t, messenger.eventsFor("b", EventWrongRoomPassword), 1)
		room, ok := rooms.Get("friends")
		require.True(t, ok)
		assert.Len(t, room.Players, 1)
	})

	t.Run("Successful join notifies both with their signs", func(t *testing.T) {
		// Given: a created room
		disp, messenger, _, _ := newDispatcher(t, 5*time.Second)
		disp.HandleConnect("a")
		disp.HandleConnect("b")
		disp.HandleJoinRoomByID("a", "Alice", "friends", "p1", true)

		// Then: the creator is told to wait, with the room id attached
		created := messenger.eventsFor("a", EventOpponentNotFound)
		require.Len(t, created, 1)
		assert.Equal(t, OpponentNotFoundPayload{RoomName: "friends"}, created[0].Payload)

		// When: b joins with the right password
		disp.HandleJoinRoomByID("b", "Bob", "friends", "p1", false)

		// Then: both receive opponent identity and assigned sign
		eventsA := messenger.eventsFor("a", EventOpponentFound)
		eventsB := messenger.eventsFor("b", EventOpponentFound)
		require.Len(t, eventsA, 1)
		require.Len(t, eventsB, 1)
		assert.Equal(t, OpponentFoundPayload{OpponentName: "Bob", PlayingAs: entity.SignCircle, RoomName: "friends"}, eventsA[0].Payload)
		assert.Equal(t, OpponentFoundPayload{OpponentName: "Alice", PlayingAs: entity.SignCross, RoomName: "friends"}, eventsB[0].Payload)
	})

	t.Run("Create against an existing room is rejected", func(t *testing.T) {
		// Given: an existing room
		disp, messenger, _, _ := newDispatcher(t, 5*time.Second)
		disp.HandleConnect("a")
		disp.HandleConnect("b")
		disp.HandleJoinRoomByID("a", "Alice", "friends", "p1", true)

		// When: b tries to create it again
		disp.HandleJoinRoomByID("b", "Bob", "friends", "p2", true)

		// Then: room already exists
		assert.Len(t, messenger.eventsFor("b", EventRoomAlreadyExists), 1)
	})

	t.Run("CheckRoomExists is a pure lookup", func(t *testing.T) {
		// Given: one created room
		disp, _, _, _ := newDispatcher(t, 5*time.Second)
		disp.HandleConnect("a")
		disp.HandleJoinRoomByID("a", "Alice", "friends", "p1", true)

		// Then: lookups answer without touching state
		assert.True(t, disp.HandleCheckRoomExists("friends"))
		assert.False(t, disp.HandleCheckRoomExists("nowhere"))
	})
}

func TestDispatcher_PlayerMove(t *testing.T) {
	t.Run("Accepted move is broadcast to the room", func(t *testing.T) {
		// Given: a paired game
		disp, messenger, sessions, _ := newDispatcher(t, 5*time.Second)
		roomID := pairPlayers(t, disp, sessions)

		// When: circle plays cell 0
		disp.HandlePlayerMove("a", roomID, 0, entity.SignCircle)

		// Then: the move is broadcast without result fields
		moves := messenger.broadcasts(roomID, EventPlayerMove)
		require.Len(t, moves, 1)
		payload, ok := moves[0].Payload.(MovePayload)
		require.True(t, ok)
		assert.Equal(t, MoveState{ID: 0, Sign: entity.SignCircle}, payload.State)
		assert.False(t, payload.Finished)
		assert.Empty(t, payload.Winner)
	})

	t.Run("Illegal move is silently dropped", func(t *testing.T) {
		// Given: a paired game with circle to move
		disp, messenger, sessions, _ := newDispatcher(t, 5*time.Second)
		roomID := pairPlayers(t, disp, sessions)

		// When: cross moves out of turn
		disp.HandlePlayerMove("b", roomID, 0, entity.SignCross)

		// Then: nothing is broadcast and nothing is sent back
		assert.Empty(t, messenger.broadcasts(roomID, EventPlayerMove))
	})

	t.Run("Winning move broadcasts the result and arms cleanup", func(t *testing.T) {
		// Given: a paired game
		disp, messenger, sessions, rooms := newDispatcher(t, 5*time.Second)
		roomID := pairPlayers(t, disp, sessions)

		// When: circle completes the top row
		playOutTopRowWin(disp, roomID)

		// Then: the final broadcast carries the result
		moves := messenger.broadcasts(roomID, EventPlayerMove)
		require.Len(t, moves, 5)
		final, ok := moves[4].Payload.(MovePayload)
		require.True(t, ok)
		assert.True(t, final.Finished)
		assert.Equal(t, entity.SignCircle, final.Winner)
		assert.Equal(t, []int{0, 1, 2}, final.WinArray)

		// And: the cleanup timer is armed on the finished room
		room, _ := rooms.Get(roomID)
		assert.True(t, room.IsFinished())
		assert.NotNil(t, room.CleanupTimer)
	})

	t.Run("Finished game archives its result", func(t *testing.T) {
		// Given: a dispatcher wired to an archive
		logger := newTestLogger()
		sessions := registry.NewSessionRegistry()
		rooms := service.NewRoomService(3, 3, 5*time.Second)
		messenger := newFakeMessenger()
		archive := &fakeArchive{saved: make(chan *entity.GameResult, 1)}
		disp := New(logger, sessions, rooms, messenger, archive)

		roomID := pairPlayers(t, disp, sessions)

		// When: the game finishes
		playOutTopRowWin(disp, roomID)

		// Then: the terminal outcome is recorded
		select {
		case record := <-archive.saved:
			assert.Equal(t, roomID, record.RoomID)
			assert.Equal(t, entity.SignCircle, record.Winner)
			assert.Equal(t, []int{0, 1, 2}, record.WinArray)
			assert.Len(t, record.Players, 2)
		case <-time.After(time.Second):
			t.Fatal("result was not archived")
		}
	})
}

func TestDispatcher_Rematch(t *testing.T) {
	t.Run("Single ballot pings only the other member", func(t *testing.T) {
		// Given: a finished game
		disp, messenger, sessions, _ := newDispatcher(t, 5*time.Second)
		roomID := pairPlayers(t, disp, sessions)
		playOutTopRowWin(disp, roomID)

		// When: a requests a rematch
		disp.HandleRequestRematch("a", roomID)

		// Then: the request reaches the room minus the sender, without a reset
		requests := messenger.broadcasts(roomID, EventRematchRequested)
		require.Len(t, requests, 1)
		assert.Equal(t, "a", requests[0].ExceptID)
		assert.Empty(t, messenger.broadcasts(roomID, EventRematchAccepted))
	})

	t.Run("Quorum restarts the game", func(t *testing.T) {
		// Given: a finished game with one ballot cast
		disp, messenger, sessions, rooms := newDispatcher(t, 5*time.Second)
		roomID := pairPlayers(t, disp, sessions)
		playOutTopRowWin(disp, roomID)
		disp.HandleRequestRematch("a", roomID)

		// When: the second member requests
		disp.HandleRequestRematch("b", roomID)

		// Then: rematch accepted is broadcast and the room is playing again
		assert.Len(t, messenger.broadcasts(roomID, EventRematchAccepted), 1)
		room, ok := rooms.Get(roomID)
		require.True(t, ok)
		assert.True(t, room.IsFull())
		assert.Equal(t, entity.SignCircle, room.Turn)
		assert.Nil(t, room.CleanupTimer)
		assert.False(t, room.Board.IsOccupied(0))
	})

	t.Run("Decline destroys the room", func(t *testing.T) {
		// Given: a finished game
		disp, messenger, sessions, rooms := newDispatcher(t, 5*time.Second)
		roomID := pairPlayers(t, disp, sessions)
		playOutTopRowWin(disp, roomID)

		// When: b declines
		disp.HandleRematchDeclined("b", roomID)

		// Then: a is notified and the room no longer exists
		declines := messenger.broadcasts(roomID, EventRematchDeclined)
		require.Len(t, declines, 1)
		assert.Equal(t, "b", declines[0].ExceptID)
		assert.False(t, rooms.Exists(roomID))

		// And: both sessions are idle again
		sessionA, _ := sessions.Get("a")
		sessionB, _ := sessions.Get("b")
		assert.True(t, sessionA.IsIdle())
		assert.True(t, sessionB.IsIdle())
	})

	t.Run("Cleanup timeout destroys the room when nobody answers", func(t *testing.T) {
		// Given: a finished game with a very short cleanup timeout
		disp, _, sessions, rooms := newDispatcher(t, 20*time.Millisecond)
		roomID := pairPlayers(t, disp, sessions)
		playOutTopRowWin(disp, roomID)
		require.True(t, rooms.Exists(roomID))

		// Then: the room expires without a rematch
		assert.Eventually(t, func() bool {
			return !disp.HandleCheckRoomExists(roomID)
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("Accepted rematch beats the cleanup timer", func(t *testing.T) {
		// Given: a finished game with a generous timeout
		disp, _, sessions, rooms := newDispatcher(t, time.Hour)
		roomID := pairPlayers(t, disp, sessions)
		playOutTopRowWin(disp, roomID)

		// When: both members request before the timer fires
		disp.HandleRequestRematch("a", roomID)
		disp.HandleRequestRematch("b", roomID)

		// Then: the room survives
		assert.True(t, rooms.Exists(roomID))
	})
}

func TestDispatcher_Disconnect(t *testing.T) {
	t.Run("Opponent is notified and the room destroyed", func(t *testing.T) {
		// Given: a paired game
		disp, messenger, sessions, rooms := newDispatcher(t, 5*time.Second)
		roomID := pairPlayers(t, disp, sessions)

		// When: a disconnects mid-game
		disp.HandleDisconnect("a")

		// Then: b is told the opponent left and the room is gone
		left := messenger.broadcasts(roomID, EventOpponentLeft)
		require.Len(t, left, 1)
		assert.Equal(t, "a", left[0].ExceptID)
		assert.False(t, rooms.Exists(roomID))

		// And: a's session is gone, b is idle
		_, ok := sessions.Get("a")
		assert.False(t, ok)
		sessionB, _ := sessions.Get("b")
		assert.True(t, sessionB.IsIdle())
	})

	t.Run("Room is destroyed whichever order players leave in", func(t *testing.T) {
		// Given: a paired game
		disp, _, sessions, rooms := newDispatcher(t, 5*time.Second)
		roomID := pairPlayers(t, disp, sessions)

		// When: both players disconnect
		disp.HandleDisconnect("b")
		disp.HandleDisconnect("a")

		// Then: the room is gone and so are both sessions
		assert.False(t, rooms.Exists(roomID))
		_, okA := sessions.Get("a")
		_, okB := sessions.Get("b")
		assert.False(t, okA)
		assert.False(t, okB)
	})

	t.Run("Disconnect purges the ballot of a finished room", func(t *testing.T) {
		// Given: a finished game with a's ballot cast
		disp, _, sessions, rooms := newDispatcher(t, 5*time.Second)
		roomID := pairPlayers(t, disp, sessions)
		playOutTopRowWin(disp, roomID)
		disp.HandleRequestRematch("a", roomID)

		// When: a disconnects
		disp.HandleDisconnect("a")

		// Then: the room and its ballot are gone
		assert.False(t, rooms.Exists(roomID))
	})
}
