package service

import (
	"fmt"
	"time"

	"caro-backend/internal/entity"
)

// RoomService owns the active room map and the finish-to-teardown timers.
// Callers serialize access; timer callbacks must re-enter through the same
// serialized context (see dispatcher).
type RoomService struct {
	rooms map[string]*entity.Room

	boardSize      int
	winLength      int
	cleanupTimeout time.Duration
}

func NewRoomService(boardSize, winLength int, cleanupTimeout time.Duration) *RoomService {
	return &RoomService{
		rooms:          make(map[string]*entity.Room),
		boardSize:      boardSize,
		winLength:      winLength,
		cleanupTimeout: cleanupTimeout,
	}
}

// Create registers a new room under the given id with a fresh board.
func (that *RoomService) Create(id, password string) *entity.Room {
	room := entity.NewRoom(id, password, entity.NewBoard(that.boardSize, that.winLength))
	that.rooms[id] = room

	return room
}

func (that *RoomService) Get(id string) (*entity.Room, bool) {
	room, ok := that.rooms[id]
	return room, ok
}

// Exists is a pure lookup with no side effects.
func (that *RoomService) Exists(id string) bool {
	_, ok := that.rooms[id]
	return ok
}

// Delete closes the room and removes it from the store.
func (that *RoomService) Delete(id string) {
	room, ok := that.rooms[id]
	if !ok {
		return
	}

	that.CancelCleanup(room)
	room.ClearBallot()
	_ = room.Transition(entity.StateClosed)

	delete(that.rooms, id)
}

// PairedRoomID derives a room id from both connection ids. Connection ids
// are unique, so the pair is too.
func (that *RoomService) PairedRoomID(firstID, secondID string) string {
	return fmt.Sprintf("room-%s-%s", firstID, secondID)
}

// ArmCleanup starts the teardown timer for a finished room. Arming is
// idempotent: an already armed timer is left running.
func (that *RoomService) ArmCleanup(room *entity.Room, expire func()) {
	if room.CleanupTimer != nil {
		return
	}

	room.CleanupTimer = time.AfterFunc(that.cleanupTimeout, expire)
}

// CancelCleanup stops a pending teardown timer, if armed.
func (that *RoomService) CancelCleanup(room *entity.Room) {
	if room.CleanupTimer == nil {
		return
	}

	room.CleanupTimer.Stop()
	room.CleanupTimer = nil
}
