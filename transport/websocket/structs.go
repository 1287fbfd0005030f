package websocket

import "encoding/json"

// Message is the wire envelope: an action name and a structured payload.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type requestToPlayPayload struct {
	PlayerName string `json:"playerName"`
}

type checkRoomPayload struct {
	RoomName string `json:"roomName"`
}

type checkRoomReply struct {
	Exists bool `json:"exists"`
}

type joinRoomPayload struct {
	PlayerName string `json:"playerName"`
	RoomName   string `json:"roomName"`
	Password   string `json:"password"`
	Create     bool   `json:"create"`
}

type playerMovePayload struct {
	ID       int    `json:"id"`
	RoomName string `json:"roomName"`
	Sign     string `json:"sign"`
}

type roomPayload struct {
	RoomName string `json:"roomName"`
}
