package websocket

import (
	"encoding/json"
)

// Inbound action names, as the web client sends them.
const (
	actionRequestToPlay   = "request_to_play"
	actionCheckRoomExists = "check_room_exists"
	actionJoinRoomByID    = "join_room_by_id"
	actionPlayerMove      = "player_move"
	actionRequestRematch  = "request_rematch"
	actionRematchDeclined = "rematch_declined"
)

// routeMessage decodes the action payload and hands it to the coordinator.
// Malformed payloads are dropped; unknown actions only logged.
func (that *Server) routeMessage(cli *client, msg *Message) {
	log := that.logger.With("method", "routeMessage", "clientID", cli.id, "action", msg.Action)

	switch msg.Action {
	case actionRequestToPlay:
		var payload requestToPlayPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			log.Error("failed to unmarshal payload", "error", err)
			return
		}
		that.core.HandleRequestToPlay(cli.id, payload.PlayerName)

	case actionCheckRoomExists:
		var payload checkRoomPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			log.Error("failed to unmarshal payload", "error", err)
			return
		}

		exists := that.core.HandleCheckRoomExists(payload.RoomName)
		if err := cli.send(actionCheckRoomExists, checkRoomReply{Exists: exists}); err != nil {
			log.Error("failed to send reply", "error", err)
		}

	case actionJoinRoomByID:
		var payload joinRoomPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			log.Error("failed to unmarshal payload", "error", err)
			return
		}
		that.core.HandleJoinRoomByID(cli.id, payload.PlayerName, payload.RoomName, payload.Password, payload.Create)

	case actionPlayerMove:
		var payload playerMovePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			log.Error("failed to unmarshal payload", "error", err)
			return
		}
		that.core.HandlePlayerMove(cli.id, payload.RoomName, payload.ID, payload.Sign)

	case actionRequestRematch:
		var payload roomPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			log.Error("failed to unmarshal payload", "error", err)
			return
		}
		that.core.HandleRequestRematch(cli.id, payload.RoomName)

	case actionRematchDeclined:
		var payload roomPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			log.Error("failed to unmarshal payload", "error", err)
			return
		}
		that.core.HandleRematchDeclined(cli.id, payload.RoomName)

	default:
		log.Warn("unknown action")
	}
}
