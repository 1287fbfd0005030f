package service

import (
	"fmt"

	"caro-backend/internal/apperror"
	"caro-backend/internal/entity"
)

// MoveUpdate describes an accepted move: the cell it landed on and, when the
// move ended the game, the terminal result.
type MoveUpdate struct {
	Cell   int
	Sign   string
	Result *entity.Result
}

func (that *MoveUpdate) Finished() bool {
	return that.Result != nil
}

// GamePlayService applies player moves to room boards. Stale or illegal
// moves come back as errors the caller is expected to swallow: they are
// race artifacts, not faults.
type GamePlayService struct {
	rooms *RoomService
}

func NewGamePlayService(rooms *RoomService) *GamePlayService {
	return &GamePlayService{
		rooms: rooms,
	}
}

// ApplyPlayerMove validates and applies one move. On a terminal result the
// room transitions to finished; otherwise the turn flips.
func (that *GamePlayService) ApplyPlayerMove(sessionID, roomID string, cell int, claimedSign string) (*MoveUpdate, error) {
	room, ok := that.rooms.Get(roomID)
	if !ok {
		return nil, apperror.ErrRoomNotFound
	}

	if err := room.ValidateMove(sessionID, claimedSign); err != nil {
		return nil, fmt.Errorf("rejected move: %w", err)
	}

	row := cell / room.Board.Size
	col := cell % room.Board.Size
	if err := room.Board.ApplyMove(row, col, claimedSign); err != nil {
		return nil, fmt.Errorf("rejected move: %w", err)
	}

	update := &MoveUpdate{Cell: cell, Sign: claimedSign}

	if result := room.Board.Evaluate(); result != nil {
		if err := room.Transition(entity.StateFinished); err != nil {
			return nil, fmt.Errorf("failed to finish game: %w", err)
		}
		update.Result = result

		return update, nil
	}

	room.ToggleTurn()

	return update, nil
}
