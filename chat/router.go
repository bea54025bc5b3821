package chat

import (
	"encoding/json"

	"github.com/rlaneuville/roomchat/globals"
	"github.com/rlaneuville/roomchat/types"
)

// Transport delivers encoded payloads to connections. Implementations are
// best-effort: a failed send must not affect other connections.
type Transport interface {
	Send(conn types.Connection, data []byte) error
}

const (
	deliveryTypePublic  = "public"
	deliveryTypePrivate = "private"
)

// MessageRouter resolves and delivers a message to one or many connections
// within a room. All methods expect the caller to hold the room lock.
type MessageRouter struct {
	transport   Transport
	serviceName string
}

func NewMessageRouter(transport Transport, serviceName string) *MessageRouter {
	return &MessageRouter{transport: transport, serviceName: serviceName}
}

func (r *MessageRouter) delivery(room *types.Room, message *types.Message, deliveryType string) ([]byte, error) {
	return json.Marshal(types.Delivery{
		Service:   r.serviceName,
		Action:    types.ActionRecieveMessage,
		Pseudonym: message.From,
		Time:      message.Time,
		RoomName:  room.Name,
		Type:      deliveryType,
		Text:      message.Text,
	})
}

// Broadcast delivers the message to every current member of the room,
// including the sender. A transport failure for one recipient is logged and
// skipped, never aborting delivery to the rest.
func (r *MessageRouter) Broadcast(room *types.Room, message *types.Message) error {
	data, err := r.delivery(room, message, deliveryTypePublic)
	if err != nil {
		return err
	}
	for sessionId, member := range room.Members {
		if err := r.transport.Send(member.Conn, data); err != nil {
			globals.AppLogger.Warn("could not deliver message",
				"room", room.Name, "session_id", sessionId, "error", err)
		}
	}
	return nil
}

// Unicast delivers the message to the single member whose pseudonym matches
// the message target.
func (r *MessageRouter) Unicast(room *types.Room, message *types.Message) error {
	member, ok := room.MemberByPseudonym(message.To)
	if !ok {
		return NotFoundError("the user %q is not connected to the room %q", message.To, room.Name)
	}
	data, err := r.delivery(room, message, deliveryTypePrivate)
	if err != nil {
		return err
	}
	if err := r.transport.Send(member.Conn, data); err != nil {
		globals.AppLogger.Warn("could not deliver private message",
			"room", room.Name, "to", message.To, "error", err)
	}
	return nil
}
