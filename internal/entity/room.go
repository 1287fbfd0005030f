package entity

import (
	"fmt"
	"time"

	"caro-backend/internal/apperror"
)

const (
	// StateOpen - one player, waiting for an opponent.
	StateOpen = "open"
	// StateFull - two players, game in progress.
	StateFull = "full"
	// StateFinished - terminal board reached, rematch window open.
	StateFinished = "finished"
	// StateClosed - room torn down, no further transitions.
	StateClosed = "closed"
)

// validTransitions is the allowed room state graph. Finished → Full is the
// accepted-rematch path.
var validTransitions = map[string][]string{
	StateOpen:     {StateFull, StateClosed},
	StateFull:     {StateFinished, StateClosed},
	StateFinished: {StateFull, StateClosed},
	StateClosed:   {},
}

var ErrInvalidTransition = fmt.Errorf("invalid room state transition")

// RoomPlayer is a room member: the sign fixed at join time and a display name.
type RoomPlayer struct {
	Sign string `json:"sign"`
	Name string `json:"playerName"`
}

// Room pairs up to two clients with a board and a turn state.
type Room struct {
	ID       string
	Players  map[string]*RoomPlayer
	Board    *Board
	Turn     string
	State    string
	Password string
	Ballot   map[string]struct{}

	// CleanupTimer is the pending finish-to-teardown timer, nil when unarmed.
	CleanupTimer *time.Timer
}

func NewRoom(id, password string, board *Board) *Room {
	return &Room{
		ID:       id,
		Players:  make(map[string]*RoomPlayer),
		Board:    board,
		Turn:     SignCircle,
		State:    StateOpen,
		Password: password,
		Ballot:   make(map[string]struct{}),
	}
}

func (that *Room) IsOpen() bool     { return that.State == StateOpen }
func (that *Room) IsFull() bool     { return that.State == StateFull }
func (that *Room) IsFinished() bool { return that.State == StateFinished }
func (that *Room) IsClosed() bool   { return that.State == StateClosed }

// Transition moves the room to the given state, rejecting anything the
// transition table does not allow.
func (that *Room) Transition(to string) error {
	for _, allowed := range validTransitions[that.State] {
		if allowed == to {
			that.State = to
			return nil
		}
	}

	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, that.State, to)
}

// AddPlayer registers a room member with a fixed sign. The sign is never
// reassigned while the room exists.
func (that *Room) AddPlayer(sessionID, name, sign string) error {
	if len(that.Players) >= 2 {
		return apperror.ErrRoomFull
	}

	that.Players[sessionID] = &RoomPlayer{Sign: sign, Name: name}

	return nil
}

func (that *Room) RemovePlayer(sessionID string) {
	delete(that.Players, sessionID)
}

func (that *Room) Player(sessionID string) (*RoomPlayer, bool) {
	player, ok := that.Players[sessionID]
	return player, ok
}

// Opponent returns the other room member, if any.
func (that *Room) Opponent(sessionID string) (string, *RoomPlayer, bool) {
	for id, player := range that.Players {
		if id != sessionID {
			return id, player, true
		}
	}

	return "", nil, false
}

// ValidateMove checks everything an accepted move requires except occupancy:
// room state, membership, sign ownership and turn order.
func (that *Room) ValidateMove(sessionID, claimedSign string) error {
	if !that.IsFull() {
		return apperror.ErrGameFinished
	}

	player, ok := that.Players[sessionID]
	if !ok {
		return apperror.ErrNotInRoom
	}

	if player.Sign != claimedSign {
		return apperror.ErrSignMismatch
	}

	if that.Turn != claimedSign {
		return apperror.ErrNotYourTurn
	}

	return nil
}

func (that *Room) ToggleTurn() {
	if that.Turn == SignCircle {
		that.Turn = SignCross
	} else {
		that.Turn = SignCircle
	}
}

// CastBallot records a rematch request and reports whether quorum (both
// members) has been reached.
func (that *Room) CastBallot(sessionID string) bool {
	if _, ok := that.Players[sessionID]; !ok {
		return false
	}

	that.Ballot[sessionID] = struct{}{}

	return len(that.Ballot) == 2
}

func (that *Room) ClearBallot() {
	that.Ballot = make(map[string]struct{})
}

func (that *Room) PurgeBallot(sessionID string) {
	delete(that.Ballot, sessionID)
}

// ResetForRematch starts a fresh game on the same room: new board, circle to
// move, ballot cleared.
func (that *Room) ResetForRematch() error {
	if err := that.Transition(StateFull); err != nil {
		return fmt.Errorf("failed to reopen room: %w", err)
	}

	that.Board = NewBoard(that.Board.Size, that.Board.WinLength)
	that.Turn = SignCircle
	that.ClearBallot()

	return nil
}
