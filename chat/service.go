package chat

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/rlaneuville/roomchat/auth"
	"github.com/rlaneuville/roomchat/config"
	"github.com/rlaneuville/roomchat/globals"
	"github.com/rlaneuville/roomchat/persistence"
	"github.com/rlaneuville/roomchat/types"
)

// Service is the protocol-facing facade of the chat. It dispatches inbound
// actions to the registry, session directory, router and history store and
// produces responses through the transport collaborator.
type Service struct {
	name      string
	store     persistence.Store
	registry  *RoomRegistry
	sessions  *SessionDirectory
	history   *HistoryStore
	router    *MessageRouter
	identity  auth.Identity
	transport Transport
}

func NewService(cfg *config.Config, store persistence.Store, identity auth.Identity, transport Transport) (*Service, error) {
	history, err := NewHistoryStore(store, cfg.ChatConfig.MaxMessagesPerFile, cfg.HistoryConfig.PageCacheSize)
	if err != nil {
		return nil, err
	}
	registry, err := NewRoomRegistry(store, history, cfg.ChatConfig.DefaultMaxUsers)
	if err != nil {
		return nil, err
	}
	return &Service{
		name:      cfg.ChatConfig.ServiceName,
		store:     store,
		registry:  registry,
		sessions:  NewSessionDirectory(),
		history:   history,
		router:    NewMessageRouter(transport, cfg.ChatConfig.ServiceName),
		identity:  identity,
		transport: transport,
	}, nil
}

// Registry exposes the room registry, mainly for the admin tooling and tests.
func (s *Service) Registry() *RoomRegistry {
	return s.registry
}

// History exposes the history store for "load more" pagination.
func (s *Service) History() *HistoryStore {
	return s.history
}

// HandleRaw decodes one raw client payload and dispatches it. Weak decoding
// tolerates numeric fields arriving as strings and vice versa.
func (s *Service) HandleRaw(conn types.Connection, raw []byte) {
	payload := make(map[string]interface{})
	if err := json.Unmarshal(raw, &payload); err != nil {
		s.fail(conn, "", ValidationError("malformed request: %s", err))
		return
	}
	req := &types.Request{}
	if err := mapstructure.WeakDecode(payload, req); err != nil {
		s.fail(conn, "", ValidationError("malformed request: %s", err))
		return
	}
	s.Handle(conn, req)
}

// Handle dispatches one decoded request. Unknown actions produce a failure
// response to the requester and are not fatal.
func (s *Service) Handle(conn types.Connection, req *types.Request) {
	switch req.Action {
	case types.ActionConnect:
		s.connect(conn, req)

	case types.ActionCreateRoom:
		s.createRoom(conn, req)

	case types.ActionSendMessage:
		s.sendMessage(conn, req)

	case types.ActionDisconnect:
		// also issued by the transport layer itself, no response required
		s.Disconnect(conn)

	default:
		s.fail(conn, req.Action, ValidationError("unknown action %q", req.Action))
	}
}

func (s *Service) connect(conn types.Connection, req *types.Request) {
	roomName := strings.TrimSpace(req.RoomName)
	if roomName == "" {
		roomName = types.DefaultRoomName
	}
	room, err := s.doConnect(conn, req, roomName)
	if err != nil {
		s.fail(conn, types.ActionConnect, err)
		return
	}
	s.respond(conn, &types.Response{
		Service:  s.name,
		Action:   types.ActionConnect,
		Success:  true,
		Text:     fmt.Sprintf("you are connected to the chat room %q", roomName),
		RoomName: roomName,
		Type:     room.Type,
		MaxUsers: room.MaxUsers,
	})
}

func (s *Service) doConnect(conn types.Connection, req *types.Request, roomName string) (*types.Room, error) {
	if !s.registry.IsKnown(roomName) {
		return nil, NotFoundError("the chat room %q does not exist", roomName)
	}
	for {
		room, err := s.registry.GetOrLoad(roomName)
		if err != nil {
			return nil, err
		}
		room.Lock()
		if room.Closed() {
			// lost the race against eviction, hydrate again
			room.Unlock()
			continue
		}
		defer room.Unlock()

		if room.IsFull() {
			return nil, CapacityError("the room %q is full", roomName)
		}
		member := types.Member{Conn: conn}
		if req.Login != "" || req.Password != "" {
			if s.identity == nil {
				return nil, AuthError("the authentication failed")
			}
			account, err := s.identity.Authenticate(req.Login, req.Password)
			if err != nil {
				return nil, AuthError("the authentication failed")
			}
			member.Identity = account.Id
			member.Pseudonym = s.identity.PseudonymFor(account)
		} else {
			pseudonym := strings.TrimSpace(req.Pseudonym)
			if pseudonym == "" {
				return nil, ValidationError("you must enter a pseudonym")
			}
			if room.PseudonymInUse(pseudonym) {
				return nil, ConflictError("the pseudonym %q is already used", pseudonym)
			}
			member.Pseudonym = pseudonym
		}
		if room.IsPrivate() && req.RoomPassword != room.Password {
			return nil, AuthError("you cannot access this room or the password is incorrect")
		}
		room.Members[conn.SessionId()] = member
		s.sessions.Track(conn.SessionId(), roomName)
		globals.AppLogger.Info("user connected",
			"pseudonym", member.Pseudonym, "room", roomName, "session_id", conn.SessionId())
		return room, nil
	}
}

func (s *Service) createRoom(conn types.Connection, req *types.Request) {
	roomName := strings.TrimSpace(req.RoomName)
	roomType := strings.TrimSpace(req.Type)
	room, err := s.doCreateRoom(conn, req, roomName, roomType)
	if err != nil {
		s.fail(conn, types.ActionCreateRoom, err)
		return
	}
	s.respond(conn, &types.Response{
		Service:  s.name,
		Action:   types.ActionCreateRoom,
		Success:  true,
		Text:     fmt.Sprintf("the chat room %q was successfully created", roomName),
		RoomName: roomName,
		Type:     room.Type,
		MaxUsers: room.MaxUsers,
	})
}

func (s *Service) doCreateRoom(conn types.Connection, req *types.Request, roomName, roomType string) (*types.Room, error) {
	// first failing check wins, deliberately sequential
	if roomName == "" {
		return nil, ValidationError("the room name is required")
	}
	if s.registry.IsKnown(roomName) {
		return nil, ConflictError("the chat room name %q already exists", roomName)
	}
	if roomType != types.RoomTypePublic && roomType != types.RoomTypePrivate {
		return nil, ValidationError("the room type must be %q or %q", types.RoomTypePublic, types.RoomTypePrivate)
	}
	if roomType == types.RoomTypePrivate && req.RoomPassword == "" {
		return nil, ValidationError("the password is required and must not be empty")
	}
	maxUsers, convErr := strconv.Atoi(strings.TrimSpace(req.MaxUsers))
	if convErr != nil || maxUsers < 2 {
		return nil, ValidationError("the max number of users must be a number and must not be less than 2")
	}
	if s.identity == nil {
		return nil, AuthError("the authentication failed")
	}
	account, err := s.identity.Authenticate(req.Login, req.Password)
	if err != nil {
		return nil, AuthError("the authentication failed")
	}
	room, err := s.registry.Create(roomName, roomType, maxUsers, req.RoomPassword, account.Id)
	if err != nil {
		return nil, err
	}
	pseudonym := s.identity.PseudonymFor(account)
	room.Lock()
	room.Members[conn.SessionId()] = types.Member{
		Pseudonym: pseudonym,
		Identity:  account.Id,
		Conn:      conn,
	}
	room.Unlock()
	s.sessions.Track(conn.SessionId(), roomName)
	globals.AppLogger.Info("room created",
		"room", roomName, "type", roomType, "max_users", maxUsers, "creator", pseudonym)
	return room, nil
}

func (s *Service) sendMessage(conn types.Connection, req *types.Request) {
	if err := s.doSendMessage(conn, req); err != nil {
		s.fail(conn, types.ActionSendMessage, err)
		return
	}
	s.respond(conn, &types.Response{
		Service: s.name,
		Action:  types.ActionSendMessage,
		Success: true,
		Text:    "message successfully sent",
	})
}

func (s *Service) doSendMessage(conn types.Connection, req *types.Request) error {
	text := strings.TrimSpace(req.Message)
	roomName := strings.TrimSpace(req.RoomName)
	recievers := strings.TrimSpace(req.Recievers)
	if text == "" {
		return ValidationError("the message cannot be empty")
	}
	if roomName == "" {
		return ValidationError("the chat room name cannot be empty")
	}
	room, ok := s.registry.Active(roomName)
	if !ok {
		if !s.registry.IsKnown(roomName) {
			return NotFoundError("the chat room %q does not exist", roomName)
		}
		return NotFoundError("you are not connected to the room %q", roomName)
	}
	room.Lock()
	defer room.Unlock()
	if room.Closed() {
		return NotFoundError("you are not connected to the room %q", roomName)
	}
	if room.IsPrivate() && req.Password != room.Password {
		return AuthError("incorrect password")
	}
	sender, ok := room.Members[conn.SessionId()]
	if !ok {
		return NotFoundError("you are not connected to the room %q", roomName)
	}
	if recievers == "" {
		return ValidationError("you must specify a receiver for your message (all or a pseudonym)")
	}
	if recievers != types.ReceiverAll && !room.PseudonymInUse(recievers) {
		return NotFoundError("the user %q is not connected to the room %q", recievers, roomName)
	}
	message := types.Message{
		Time: time.Now().UTC(),
		Text: text,
		From: sender.Pseudonym,
		To:   recievers,
	}
	if err := message.CreateId(); err != nil {
		globals.AppLogger.Error("could not hash message", "error", err)
	}
	if err := s.history.Append(room, message); err != nil {
		return err
	}
	if message.IsPublic() {
		if err := s.router.Broadcast(room, &message); err != nil {
			return err
		}
	} else {
		if err := s.router.Unicast(room, &message); err != nil {
			return err
		}
	}
	globals.AppLogger.Debug("message routed",
		"room", roomName, "from", sender.Pseudonym, "to", recievers)
	return nil
}

// Disconnect removes the connection from every room it belongs to and evicts
// rooms that end up empty. It is idempotent: the session directory hands out
// the membership set exactly once. Each room is processed as one atomic unit
// under its own lock.
func (s *Service) Disconnect(conn types.Connection) {
	rooms := s.sessions.Forget(conn.SessionId())
	for _, roomName := range rooms {
		room, ok := s.registry.Active(roomName)
		if !ok {
			continue
		}
		room.Lock()
		if room.Closed() {
			room.Unlock()
			continue
		}
		delete(room.Members, conn.SessionId())
		if err := s.registry.EvictIfEmpty(room); err != nil {
			globals.AppLogger.Error("could not evict room", "room", roomName, "error", err)
		}
		room.Unlock()
	}
	if len(rooms) > 0 {
		globals.AppLogger.Info("session disconnected", "session_id", conn.SessionId(), "rooms", rooms)
	}
}

// Checkpoint persists a snapshot of every active room. Scheduled periodically
// so room metadata survives a crash between eviction points.
func (s *Service) Checkpoint() {
	for _, room := range s.registry.ActiveRooms() {
		room.Lock()
		if !room.Closed() {
			if err := s.store.SaveSnapshot(room.Snapshot()); err != nil {
				globals.AppLogger.Error("could not checkpoint room", "room", room.Name, "error", err)
			}
		}
		room.Unlock()
	}
}

// Shutdown flushes the pending messages of every active room and snapshots
// it. Unflushed messages would otherwise be lost, so this must run before the
// process exits.
func (s *Service) Shutdown() {
	for _, room := range s.registry.ActiveRooms() {
		room.Lock()
		if !room.Closed() {
			if err := s.history.FlushPending(room); err != nil {
				globals.AppLogger.Error("could not flush room history", "room", room.Name, "error", err)
			}
			if err := s.store.SaveSnapshot(room.Snapshot()); err != nil {
				globals.AppLogger.Error("could not snapshot room", "room", room.Name, "error", err)
			}
		}
		room.Unlock()
	}
}

func (s *Service) respond(conn types.Connection, resp *types.Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		globals.AppLogger.Error("could not marshal response", "error", err)
		return
	}
	if err := s.transport.Send(conn, data); err != nil {
		globals.AppLogger.Warn("could not send response", "session_id", conn.SessionId(), "error", err)
	}
}

// fail reports a request-level failure to the requester only. Persistence
// failures and unclassified errors go to the server log with their full
// detail; the client gets a generic message instead of backend internals.
// Everything else is an expected outcome and is not logged as an error.
func (s *Service) fail(conn types.Connection, action string, err error) {
	text := err.Error()
	switch KindOf(err) {
	case 0:
		globals.AppLogger.Error("internal error", "action", action, "error", err)
		text = "internal error"

	case KindPersistence:
		globals.AppLogger.Error("persistence failure", "action", action, "error", err)
		text = "internal error"
	}
	s.respond(conn, &types.Response{
		Service: s.name,
		Action:  action,
		Success: false,
		Text:    text,
	})
}
