package types

import (
	"fmt"
	"time"

	"github.com/mitchellh/hashstructure/v2"
)

// ReceiverAll is the sentinel receiver for a public message.
const ReceiverAll = "all"

// Message is one chat message as kept in the pending buffer and in flushed
// history pages. Once a message is part of a flushed page it is immutable.
type Message struct {
	Id   string    `json:"id" hash:"ignore"`
	Time time.Time `json:"time"`
	Text string    `json:"text"`
	From string    `json:"from"` // sender pseudonym
	To   string    `json:"to"`   // ReceiverAll or a member pseudonym
	Part int       `json:"part" hash:"ignore"`
}

// IsPublic reports whether the message is addressed to the whole room.
func (m *Message) IsPublic() bool {
	return m.To == ReceiverAll
}

// CreateId computes a stable id from the hashable fields of the message.
func (m *Message) CreateId() error {
	hash, err := hashstructure.Hash(m, hashstructure.FormatV2, nil)
	if err != nil {
		return err
	}
	m.Id = fmt.Sprintf("%016x", hash)
	return nil
}
