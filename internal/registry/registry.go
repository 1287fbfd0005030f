package registry

import (
	"caro-backend/internal/entity"
)

// SessionRegistry tracks every connected client and owns the single-slot
// waiting pool for random matchmaking. It is not safe for concurrent use;
// the dispatcher serializes access.
type SessionRegistry struct {
	sessions map[string]*entity.Session
	waiting  string
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*entity.Session),
	}
}

// Add registers a freshly connected client.
func (that *SessionRegistry) Add(sessionID string) *entity.Session {
	session := entity.NewSession(sessionID)
	that.sessions[sessionID] = session

	return session
}

func (that *SessionRegistry) Get(sessionID string) (*entity.Session, bool) {
	session, ok := that.sessions[sessionID]
	return session, ok
}

// Remove drops the session record. Waiting-pool and room associations must
// already be unwound by the caller.
func (that *SessionRegistry) Remove(sessionID string) {
	if that.waiting == sessionID {
		that.waiting = ""
	}

	delete(that.sessions, sessionID)
}

// SetWaiting places the session into the waiting pool, displacing nothing:
// the pool holds at most one client and the caller pairs before refilling.
func (that *SessionRegistry) SetWaiting(sessionID string) {
	if session, ok := that.sessions[sessionID]; ok {
		session.Status = entity.SessionWaiting
		that.waiting = sessionID
	}
}

// Waiting returns the pooled session, if any.
func (that *SessionRegistry) Waiting() (*entity.Session, bool) {
	if that.waiting == "" {
		return nil, false
	}

	session, ok := that.sessions[that.waiting]

	return session, ok
}

// ClearWaiting empties the pool if the given session occupies it.
func (that *SessionRegistry) ClearWaiting(sessionID string) {
	if that.waiting != sessionID {
		return
	}

	that.waiting = ""
	if session, ok := that.sessions[sessionID]; ok && session.IsWaiting() {
		session.Status = entity.SessionIdle
	}
}

// SetRoom marks the session as playing in the given room.
func (that *SessionRegistry) SetRoom(sessionID, roomID string) {
	if session, ok := that.sessions[sessionID]; ok {
		session.Status = entity.SessionInRoom
		session.RoomID = roomID
	}
}

// ClearRoom drops the room association, returning the session to idle.
func (that *SessionRegistry) ClearRoom(sessionID string) {
	if session, ok := that.sessions[sessionID]; ok {
		session.Status = entity.SessionIdle
		session.RoomID = ""
	}
}
