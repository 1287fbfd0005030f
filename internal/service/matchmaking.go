package service

import (
	"fmt"

	"caro-backend/internal/apperror"
	"caro-backend/internal/entity"
	"caro-backend/internal/registry"
)

// Pairing is the outcome of a successful random match: the freshly created
// room and the id of the previously waiting player.
type Pairing struct {
	Room      *entity.Room
	WaitingID string
}

// MatchmakingService pairs idle clients randomly through the single waiting
// slot and brokers join-by-code with password and capacity checks.
type MatchmakingService struct {
	sessions *registry.SessionRegistry
	rooms    *RoomService
}

func NewMatchmakingService(sessions *registry.SessionRegistry, rooms *RoomService) *MatchmakingService {
	return &MatchmakingService{
		sessions: sessions,
		rooms:    rooms,
	}
}

// RequestToPlay handles a random-mode play request. When another client is
// already waiting, both are paired into a new room: the waiting player keeps
// "circle" and moves first, the newcomer gets "cross". Otherwise the caller
// takes the waiting slot and a nil Pairing is returned.
func (that *MatchmakingService) RequestToPlay(sessionID, name string) (*Pairing, error) {
	session, ok := that.sessions.Get(sessionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperror.ErrSessionNotFound, sessionID)
	}
	session.Name = name

	waiting, ok := that.sessions.Waiting()
	if !ok || waiting.ID == sessionID {
		that.sessions.SetWaiting(sessionID)
		return nil, nil
	}

	that.sessions.ClearWaiting(waiting.ID)

	room := that.rooms.Create(that.rooms.PairedRoomID(waiting.ID, sessionID), "")
	if err := room.AddPlayer(waiting.ID, waiting.Name, entity.SignCircle); err != nil {
		return nil, fmt.Errorf("failed to seat waiting player: %w", err)
	}
	if err := room.AddPlayer(sessionID, name, entity.SignCross); err != nil {
		return nil, fmt.Errorf("failed to seat player: %w", err)
	}

	if err := room.Transition(entity.StateFull); err != nil {
		return nil, fmt.Errorf("failed to start game: %w", err)
	}

	that.sessions.SetRoom(waiting.ID, room.ID)
	that.sessions.SetRoom(sessionID, room.ID)

	return &Pairing{Room: room, WaitingID: waiting.ID}, nil
}

// CheckExists reports whether a room with the given id is active.
// Side-effect-free; clients use it to decide which password prompt to show.
func (that *MatchmakingService) CheckExists(roomID string) bool {
	return that.rooms.Exists(roomID)
}

// JoinOrCreate brokers friend-mode rooms.
//
// Create requests against an existing room are rejected: with roomFull when
// the room is already seated, with roomAlreadyExists otherwise - both
// distinct replies are kept deliberately. Join requests check existence,
// then password, then capacity.
func (that *MatchmakingService) JoinOrCreate(sessionID, name, roomID, password string, create bool) (*entity.Room, error) {
	session, ok := that.sessions.Get(sessionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperror.ErrSessionNotFound, sessionID)
	}
	session.Name = name

	if create {
		return that.createRoom(sessionID, name, roomID, password)
	}

	return that.joinRoom(sessionID, name, roomID, password)
}

func (that *MatchmakingService) createRoom(sessionID, name, roomID, password string) (*entity.Room, error) {
	if existing, ok := that.rooms.Get(roomID); ok {
		if len(existing.Players) >= 2 {
			return nil, apperror.ErrRoomFull
		}
		return nil, apperror.ErrRoomAlreadyExists
	}

	room := that.rooms.Create(roomID, password)
	if err := room.AddPlayer(sessionID, name, entity.SignCircle); err != nil {
		return nil, fmt.Errorf("failed to seat room creator: %w", err)
	}

	that.sessions.SetRoom(sessionID, room.ID)

	return room, nil
}

func (that *MatchmakingService) joinRoom(sessionID, name, roomID, password string) (*entity.Room, error) {
	room, ok := that.rooms.Get(roomID)
	if !ok {
		return nil, apperror.ErrRoomNotFound
	}

	if room.Password != password {
		return nil, apperror.ErrWrongPassword
	}

	if len(room.Players) >= 2 {
		return nil, apperror.ErrRoomFull
	}

	if err := room.AddPlayer(sessionID, name, entity.SignCross); err != nil {
		return nil, fmt.Errorf("failed to seat joining player: %w", err)
	}

	if err := room.Transition(entity.StateFull); err != nil {
		return nil, fmt.Errorf("failed to start game: %w", err)
	}

	that.sessions.SetRoom(sessionID, room.ID)

	return room, nil
}
