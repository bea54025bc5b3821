package types

import "time"

// The client-initiated actions.
const (
	ActionConnect     = "connect"
	ActionCreateRoom  = "createRoom"
	ActionSendMessage = "sendMessage"
	ActionDisconnect  = "disconnect"

	// ActionRecieveMessage is the server-initiated delivery of a chat
	// message. The spelling is part of the wire protocol.
	ActionRecieveMessage = "recieveMessage"
)

// Request is one decoded client request. The field set is the union over all
// actions; which fields are read depends on the action:
//
//	connect:     Login+Password (credentials) or Pseudonym (guest),
//	             RoomName (defaults to "default"), RoomPassword
//	createRoom:  RoomName, Type, MaxUsers, RoomPassword, Login+Password
//	sendMessage: RoomName, Message, Recievers, Password (room password)
//
// MaxUsers stays a string so that validation can report a non-numeric value
// in protocol order instead of failing the decode; mapstructure's weak
// decoding turns JSON numbers into it transparently.
type Request struct {
	Action       string `mapstructure:"action"`
	RoomName     string `mapstructure:"roomName"`
	Type         string `mapstructure:"type"`
	MaxUsers     string `mapstructure:"maxUsers"`
	Login        string `mapstructure:"login"`
	Password     string `mapstructure:"password"`
	Pseudonym    string `mapstructure:"pseudonym"`
	RoomPassword string `mapstructure:"roomPassword"`
	Message      string `mapstructure:"message"`
	Recievers    string `mapstructure:"recievers"`
}

// Response is the reply to a single request, sent only to the requester.
// Room metadata is filled on successful connect/createRoom; the room
// password is never echoed.
type Response struct {
	Service  string `json:"service"`
	Action   string `json:"action"`
	Success  bool   `json:"success"`
	Text     string `json:"text"`
	RoomName string `json:"roomName,omitempty"`
	Type     string `json:"type,omitempty"`
	MaxUsers int    `json:"maxUsers,omitempty"`
}

// Delivery is the server-initiated recieveMessage payload pushed to the
// recipients of a chat message. Type is "public" for broadcasts and
// "private" for direct messages.
type Delivery struct {
	Service   string    `json:"service"`
	Action    string    `json:"action"`
	Pseudonym string    `json:"pseudonym"`
	Time      time.Time `json:"time"`
	RoomName  string    `json:"roomName"`
	Type      string    `json:"type"`
	Text      string    `json:"text"`
}
