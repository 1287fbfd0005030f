package entity

import "time"

// GameResult is the archived record of a finished game.
type GameResult struct {
	RoomID     string       `json:"room_id"`
	Winner     string       `json:"winner"`
	WinArray   []int        `json:"winArray"`
	Players    []RoomPlayer `json:"players"`
	FinishedAt time.Time    `json:"finished_at"`
}
