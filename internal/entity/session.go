package entity

const (
	SessionIdle    = "idle"
	SessionWaiting = "waiting"
	SessionInRoom  = "in-room"
)

// Session is one connected client: a server-assigned connection id, the
// display name from its first matchmaking request, and its room association.
type Session struct {
	ID     string `json:"id"`
	Name   string `json:"playerName,omitempty"`
	Status string `json:"status"`
	RoomID string `json:"room_id,omitempty"`
}

func NewSession(id string) *Session {
	return &Session{
		ID:     id,
		Status: SessionIdle,
	}
}

func (that *Session) IsIdle() bool    { return that.Status == SessionIdle }
func (that *Session) IsWaiting() bool { return that.Status == SessionWaiting }
func (that *Session) IsInRoom() bool  { return that.Status == SessionInRoom }
