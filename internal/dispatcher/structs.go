package dispatcher

// Outbound event names. They match the wire protocol the web client speaks,
// which is why the casing is uneven.
const (
	EventConnected         = "connected"
	EventOpponentFound     = "OpponentFound"
	EventOpponentNotFound  = "OpponentNotFound"
	EventRoomAlreadyExists = "roomAlreadyExists"
	EventRoomNotFound      = "roomNotFound"
	EventRoomFull          = "roomFull"
	EventWrongRoomPassword = "wrongRoomPassword"
	EventPlayerMove        = "playerMoveFromServer"
	EventRematchRequested  = "rematch_requested"
	EventRematchAccepted   = "rematch_accepted"
	EventRematchDeclined   = "rematch_declined_by_opponent"
	EventOpponentLeft      = "opponentLeftMatch"
)

type ConnectedPayload struct {
	ID string `json:"id"`
}

type OpponentFoundPayload struct {
	OpponentName string `json:"opponentName"`
	PlayingAs    string `json:"playingAs"`
	RoomName     string `json:"roomName"`
}

type OpponentNotFoundPayload struct {
	RoomName string `json:"roomName,omitempty"`
}

type MoveState struct {
	ID   int    `json:"id"`
	Sign string `json:"sign"`
}

type MovePayload struct {
	State    MoveState `json:"state"`
	Finished bool      `json:"finished"`
	Winner   string    `json:"winner,omitempty"`
	WinArray []int     `json:"winArray,omitempty"`
}

// Messenger is the abstract message-channel contract the transport layer
// provides: targeted sends, room-group broadcasts and group membership.
// Delivery is fire-and-forget.
type Messenger interface {
	SendTo(clientID, event string, payload any)
	Broadcast(roomID, event string, payload any)
	BroadcastExcept(roomID, exceptID, event string, payload any)
	JoinGroup(clientID, roomID string)
	LeaveGroup(clientID, roomID string)
}
