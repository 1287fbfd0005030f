package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// coordinator is the slice of the dispatcher this transport drives.
type coordinator interface {
	HandleConnect(clientID string)
	HandleDisconnect(clientID string)
	HandleRequestToPlay(clientID, playerName string)
	HandleCheckRoomExists(roomID string) bool
	HandleJoinRoomByID(clientID, playerName, roomID, password string, create bool)
	HandlePlayerMove(clientID, roomID string, cell int, sign string)
	HandleRequestRematch(clientID, roomID string)
	HandleRematchDeclined(clientID, roomID string)
}

// client is one websocket connection. Writes are serialized per client;
// delivery is fire-and-forget.
type client struct {
	id   string
	conn *websocket.Conn

	writeMu sync.Mutex
}

func (that *client) send(event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	that.writeMu.Lock()
	defer that.writeMu.Unlock()

	if err = that.conn.WriteJSON(Message{Action: event, Payload: raw}); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}

// Server upgrades connections, assigns connection ids, relays inbound
// actions to the coordinator and implements its Messenger contract.
type Server struct {
	logger *slog.Logger
	core   coordinator

	mu      sync.RWMutex
	clients map[string]*client
	groups  map[string]map[string]*client

	upgrader websocket.Upgrader
}

func New(logger *slog.Logger) *Server {
	return &Server{
		logger:  logger,
		clients: make(map[string]*client),
		groups:  make(map[string]map[string]*client),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Attach wires the coordinator in. Must be called before Start.
func (that *Server) Attach(core coordinator) {
	that.core = core
}

// Start - starts the WebSocket server.
func (that *Server) Start(ctx context.Context, port string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", that.handleWS)

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  0, // connections are long-lived
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  0,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

func (that *Server) handleWS(writer http.ResponseWriter, req *http.Request) {
	log := that.logger.With("method", "handleWS")

	conn, err := that.upgrader.Upgrade(writer, req, nil)
	if err != nil {
		log.Error("failed to upgrade connection", "error", err)
		return
	}

	cli := &client{
		id:   uuid.NewString(),
		conn: conn,
	}

	that.mu.Lock()
	that.clients[cli.id] = cli
	that.mu.Unlock()

	log = log.With("clientID", cli.id)
	log.Info("websocket connection established")

	that.core.HandleConnect(cli.id)

	defer func() {
		that.mu.Lock()
		delete(that.clients, cli.id)
		that.mu.Unlock()

		that.core.HandleDisconnect(cli.id)
		_ = conn.Close()

		log.Info("websocket connection closed")
	}()

	for {
		var msg Message
		if err = conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Error("error reading message", "error", err)
			}
			return
		}

		that.routeMessage(cli, &msg)
	}
}

// SendTo delivers an event to one specific client.
func (that *Server) SendTo(clientID, event string, payload any) {
	that.mu.RLock()
	cli, ok := that.clients[clientID]
	that.mu.RUnlock()

	if !ok {
		return
	}

	if err := cli.send(event, payload); err != nil {
		that.logger.Error("failed to send event", "clientID", clientID, "event", event, "error", err)
	}
}

// Broadcast delivers an event to every client in the room's group.
func (that *Server) Broadcast(roomID, event string, payload any) {
	that.BroadcastExcept(roomID, "", event, payload)
}

// BroadcastExcept delivers an event to the room's group, skipping exceptID.
func (that *Server) BroadcastExcept(roomID, exceptID, event string, payload any) {
	that.mu.RLock()
	members := make([]*client, 0, len(that.groups[roomID]))
	for id, cli := range that.groups[roomID] {
		if id != exceptID {
			members = append(members, cli)
		}
	}
	that.mu.RUnlock()

	for _, cli := range members {
		if err := cli.send(event, payload); err != nil {
			that.logger.Error("failed to broadcast event", "clientID", cli.id, "event", event, "error", err)
		}
	}
}

// JoinGroup adds the client to the room's broadcast group.
func (that *Server) JoinGroup(clientID, roomID string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	cli, ok := that.clients[clientID]
	if !ok {
		return
	}

	if that.groups[roomID] == nil {
		that.groups[roomID] = make(map[string]*client)
	}
	that.groups[roomID][clientID] = cli
}

// LeaveGroup removes the client from the room's broadcast group, dropping
// the group once empty.
func (that *Server) LeaveGroup(clientID, roomID string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	group, ok := that.groups[roomID]
	if !ok {
		return
	}

	delete(group, clientID)
	if len(group) == 0 {
		delete(that.groups, roomID)
	}
}
