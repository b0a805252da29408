package realtime

import (
	"encoding/json"

	"github.com/zeusync/boardsync/internal/core/model"
)

type CommandKind string

const (
	CommandAnnounce CommandKind = "announce"
	CommandLeave    CommandKind = "leave"
)

// Command is what a websocket client sends upstream. Events flow the other
// way as JSON-encoded Event frames.
type Command struct {
	Kind          CommandKind          `json:"kind"`
	Entry         *model.PresenceEntry `json:"entry,omitempty"`
	ParticipantID string               `json:"participant_id,omitempty"`
}

// UnmarshalJSON keeps the record raw so Decode can type it once the record
// type is known.
func (c *ChangeEvent) UnmarshalJSON(b []byte) error {
	var wire struct {
		RecordType model.RecordKind `json:"record_type"`
		RecordID   string           `json:"record_id"`
		Record     json.RawMessage  `json:"record"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	c.RecordType = wire.RecordType
	c.RecordID = wire.RecordID
	c.Record = wire.Record
	return nil
}
