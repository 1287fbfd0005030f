package apperror

import "errors"

var (
	ErrGameFinished = errors.New("game is already finished")
	ErrNotYourTurn  = errors.New("it's not your turn")
	ErrCellOccupied = errors.New("cell is already occupied")
	ErrNotInRoom    = errors.New("player is not in this room")
	ErrSignMismatch = errors.New("sign does not belong to player")

	ErrRoomNotFound      = errors.New("room not found")
	ErrRoomAlreadyExists = errors.New("room already exists")
	ErrRoomFull          = errors.New("room is full")
	ErrWrongPassword     = errors.New("wrong room password")

	ErrSessionNotFound = errors.New("session not found")
)
