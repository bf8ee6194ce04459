package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Collections named in change messages.
const (
	CollectionProjects = "projects"
	CollectionEntries  = "entries"
)

// Operations named in change messages.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
	// OpResync asks the worker to rebuild a user's mirror without a specific change.
	OpResync = "resync"
)

// ChangeMessage tells the mirror worker that a user's ledger changed. It
// carries only identifiers; the worker re-reads the ledger from the store.
type ChangeMessage struct {
	UID        string    `json:"uid"`
	Collection string    `json:"collection,omitempty"`
	Op         string    `json:"op"`
	ID         string    `json:"id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

func NewChangeMessage(uid, collection, op, id string) *ChangeMessage {
	return &ChangeMessage{
		UID:        uid,
		Collection: collection,
		Op:         op,
		ID:         id,
		Timestamp:  time.Now(),
	}
}

func (m *ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ChangeMessageFromJSON decodes a message and rejects one without a uid.
func ChangeMessageFromJSON(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.UID == "" {
		return nil, fmt.Errorf("change message without uid")
	}
	return &msg, nil
}
