package service

import (
	"fmt"

	"caro-backend/internal/apperror"
	"caro-backend/internal/entity"
)

// RematchService runs the per-room two-party rematch agreement: each member
// casts a ballot, quorum of two resets the room, a decline or the cleanup
// timeout tears it down.
type RematchService struct {
	rooms *RoomService
}

func NewRematchService(rooms *RoomService) *RematchService {
	return &RematchService{
		rooms: rooms,
	}
}

// Request casts the caller's ballot and reports whether quorum was reached.
// On quorum the room is reset for a fresh game and the pending cleanup timer
// is cancelled. Rematch requests against rooms that are not in the finished
// state are rejected outright.
func (that *RematchService) Request(sessionID, roomID string) (*entity.Room, bool, error) {
	room, ok := that.rooms.Get(roomID)
	if !ok {
		return nil, false, apperror.ErrRoomNotFound
	}

	if !room.IsFinished() {
		return nil, false, fmt.Errorf("%w: room %s", apperror.ErrGameFinished, roomID)
	}

	if !room.CastBallot(sessionID) {
		return room, false, nil
	}

	that.rooms.CancelCleanup(room)

	if err := room.ResetForRematch(); err != nil {
		return nil, false, fmt.Errorf("failed to reset room: %w", err)
	}

	return room, true, nil
}

// Decline cancels any pending cleanup timer and hands the room back for
// teardown. The room is destroyed unconditionally by the caller.
func (that *RematchService) Decline(roomID string) (*entity.Room, error) {
	room, ok := that.rooms.Get(roomID)
	if !ok {
		return nil, apperror.ErrRoomNotFound
	}

	that.rooms.CancelCleanup(room)

	return room, nil
}
