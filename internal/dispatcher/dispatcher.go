package dispatcher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"caro-backend/internal/apperror"
	"caro-backend/internal/entity"
	"caro-backend/internal/registry"
	"caro-backend/internal/service"
)

type resultArchive interface {
	Save(ctx context.Context, result *entity.GameResult) error
}

// Dispatcher routes inbound client requests to the coordination core and
// translates outcomes into outbound events. Every handler, including cleanup
// timer firings, runs under one mutex, so all state transitions are short
// run-to-completion sections.
type Dispatcher struct {
	logger *slog.Logger

	mu        sync.Mutex
	sessions  *registry.SessionRegistry
	rooms     *service.RoomService
	matchmake *service.MatchmakingService
	gameplay  *service.GamePlayService
	rematch   *service.RematchService

	messenger Messenger
	archive   resultArchive
}

func New(logger *slog.Logger, sessions *registry.SessionRegistry, rooms *service.RoomService, messenger Messenger, archive resultArchive) *Dispatcher {
	return &Dispatcher{
		logger: logger,

		sessions:  sessions,
		rooms:     rooms,
		matchmake: service.NewMatchmakingService(sessions, rooms),
		gameplay:  service.NewGamePlayService(rooms),
		rematch:   service.NewRematchService(rooms),

		messenger: messenger,
		archive:   archive,
	}
}

// HandleConnect registers the freshly connected client and hands it its
// server-assigned id.
func (that *Dispatcher) HandleConnect(clientID string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.sessions.Add(clientID)
	that.messenger.SendTo(clientID, EventConnected, ConnectedPayload{ID: clientID})
}

// HandleRequestToPlay runs random matchmaking for the client.
func (that *Dispatcher) HandleRequestToPlay(clientID, playerName string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	log := that.logger.With("method", "HandleRequestToPlay", "clientID", clientID)

	pairing, err := that.matchmake.RequestToPlay(clientID, playerName)
	if err != nil {
		log.Error("matchmaking failed", "error", err)
		return
	}

	if pairing == nil {
		that.messenger.SendTo(clientID, EventOpponentNotFound, OpponentNotFoundPayload{})
		return
	}

	room := pairing.Room
	that.messenger.JoinGroup(pairing.WaitingID, room.ID)
	that.messenger.JoinGroup(clientID, room.ID)

	waiting := room.Players[pairing.WaitingID]
	newcomer := room.Players[clientID]

	that.messenger.SendTo(clientID, EventOpponentFound, OpponentFoundPayload{
		OpponentName: waiting.Name,
		PlayingAs:    newcomer.Sign,
		RoomName:     room.ID,
	})
	that.messenger.SendTo(pairing.WaitingID, EventOpponentFound, OpponentFoundPayload{
		OpponentName: newcomer.Name,
		PlayingAs:    waiting.Sign,
		RoomName:     room.ID,
	})

	log.Info("players paired", "roomID", room.ID)
}

// HandleCheckRoomExists answers the one request/response operation in the
// protocol; the transport relays the returned value to the caller.
func (that *Dispatcher) HandleCheckRoomExists(roomID string) bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.matchmake.CheckExists(roomID)
}

// HandleJoinRoomByID brokers friend-mode create and join requests.
func (that *Dispatcher) HandleJoinRoomByID(clientID, playerName, roomID, password string, create bool) {
	that.mu.Lock()
	defer that.mu.Unlock()

	log := that.logger.With("method", "HandleJoinRoomByID", "clientID", clientID, "roomID", roomID)

	room, err := that.matchmake.JoinOrCreate(clientID, playerName, roomID, password, create)
	if err != nil {
		that.messenger.SendTo(clientID, rejectionEvent(err), nil)
		log.Info("join rejected", "create", create, "reason", err)
		return
	}

	that.messenger.JoinGroup(clientID, room.ID)

	if create {
		that.messenger.SendTo(clientID, EventOpponentNotFound, OpponentNotFoundPayload{RoomName: room.ID})
		log.Info("room created, waiting for opponent")
		return
	}

	creatorID, creator, ok := room.Opponent(clientID)
	if !ok {
		log.Error("joined room has no creator")
		return
	}

	joiner := room.Players[clientID]

	that.messenger.SendTo(clientID, EventOpponentFound, OpponentFoundPayload{
		OpponentName: creator.Name,
		PlayingAs:    joiner.Sign,
		RoomName:     room.ID,
	})
	that.messenger.SendTo(creatorID, EventOpponentFound, OpponentFoundPayload{
		OpponentName: joiner.Name,
		PlayingAs:    creator.Sign,
		RoomName:     room.ID,
	})

	log.Info("player joined room")
}

// rejectionEvent maps user-facing rejections onto their outbound events.
func rejectionEvent(err error) string {
	switch {
	case errors.Is(err, apperror.ErrRoomFull):
		return EventRoomFull
	case errors.Is(err, apperror.ErrRoomAlreadyExists):
		return EventRoomAlreadyExists
	case errors.Is(err, apperror.ErrWrongPassword):
		return EventWrongRoomPassword
	default:
		return EventRoomNotFound
	}
}

// HandlePlayerMove applies a move and broadcasts the update to the room.
// Stale or illegal moves are dropped without a reply.
func (that *Dispatcher) HandlePlayerMove(clientID, roomID string, cell int, sign string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	log := that.logger.With("method", "HandlePlayerMove", "clientID", clientID, "roomID", roomID)

	update, err := that.gameplay.ApplyPlayerMove(clientID, roomID, cell, sign)
	if err != nil {
		log.Debug("move ignored", "cell", cell, "error", err)
		return
	}

	payload := MovePayload{
		State:    MoveState{ID: update.Cell, Sign: update.Sign},
		Finished: update.Finished(),
	}

	if update.Finished() {
		payload.Winner = update.Result.Winner
		payload.WinArray = update.Result.WinArray
	}

	that.messenger.Broadcast(roomID, EventPlayerMove, payload)

	if !update.Finished() {
		return
	}

	room, ok := that.rooms.Get(roomID)
	if !ok {
		return
	}

	that.rooms.ArmCleanup(room, func() { that.expireRoom(roomID) })
	that.archiveResult(room, update.Result)

	log.Info("game finished", "winner", update.Result.Winner)
}

// HandleRequestRematch casts the caller's ballot; quorum restarts the game,
// a single ballot only pings the other member.
func (that *Dispatcher) HandleRequestRematch(clientID, roomID string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	log := that.logger.With("method", "HandleRequestRematch", "clientID", clientID, "roomID", roomID)

	_, accepted, err := that.rematch.Request(clientID, roomID)
	if err != nil {
		log.Debug("rematch request ignored", "error", err)
		return
	}

	if accepted {
		that.messenger.Broadcast(roomID, EventRematchAccepted, nil)
		log.Info("rematch accepted")
		return
	}

	that.messenger.BroadcastExcept(roomID, clientID, EventRematchRequested, nil)
}

// HandleRematchDeclined notifies the other member and destroys the room
// unconditionally.
func (that *Dispatcher) HandleRematchDeclined(clientID, roomID string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	log := that.logger.With("method", "HandleRematchDeclined", "clientID", clientID, "roomID", roomID)

	room, err := that.rematch.Decline(roomID)
	if err != nil {
		log.Debug("decline ignored", "error", err)
		return
	}

	that.messenger.BroadcastExcept(roomID, clientID, EventRematchDeclined, nil)
	that.closeRoom(room)

	log.Info("rematch declined, room destroyed")
}

// HandleDisconnect unwinds everything the client owned: the waiting slot,
// room membership and ballots, then the session itself.
func (that *Dispatcher) HandleDisconnect(clientID string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	log := that.logger.With("method", "HandleDisconnect", "clientID", clientID)

	that.sessions.ClearWaiting(clientID)

	session, ok := that.sessions.Get(clientID)
	if !ok {
		return
	}

	if room, inRoom := that.rooms.Get(session.RoomID); inRoom {
		that.messenger.BroadcastExcept(room.ID, clientID, EventOpponentLeft, nil)
		that.messenger.LeaveGroup(clientID, room.ID)

		room.RemovePlayer(clientID)
		room.PurgeBallot(clientID)

		if len(room.Players) <= 1 {
			that.closeRoom(room)
		}
	}

	that.sessions.Remove(clientID)

	log.Info("client disconnected")
}

// expireRoom is the cleanup-timer callback. It re-enters the dispatcher
// mutex and re-checks the room, so a rematch accepted before the lock was
// taken wins the race.
func (that *Dispatcher) expireRoom(roomID string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	room, ok := that.rooms.Get(roomID)
	if !ok {
		return
	}

	if !room.IsFinished() {
		return
	}

	room.CleanupTimer = nil
	that.closeRoom(room)

	that.logger.Info("finished room expired without rematch", "roomID", roomID)
}

// closeRoom tears the room down fully: group membership, session
// associations, ballots and the store entry.
func (that *Dispatcher) closeRoom(room *entity.Room) {
	for playerID := range room.Players {
		that.messenger.LeaveGroup(playerID, room.ID)
		that.sessions.ClearRoom(playerID)
	}

	that.rooms.Delete(room.ID)
}

// archiveResult records the terminal outcome, fire-and-forget; a storage
// failure never reaches the clients.
func (that *Dispatcher) archiveResult(room *entity.Room, result *entity.Result) {
	if that.archive == nil {
		return
	}

	record := &entity.GameResult{
		RoomID:     room.ID,
		Winner:     result.Winner,
		WinArray:   result.WinArray,
		FinishedAt: time.Now().UTC(),
	}
	for _, player := range room.Players {
		record.Players = append(record.Players, *player)
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := that.archive.Save(ctx, record); err != nil {
			that.logger.Error("failed to archive game result", "roomID", record.RoomID, "error", err)
		}
	}()
}
