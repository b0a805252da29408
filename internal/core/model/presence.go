package model

import "time"

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PresenceEntry is the ephemeral state of one participant on a board. Pointer
// is nil until the participant moves.
type PresenceEntry struct {
	ParticipantID string    `json:"participant_id"`
	DisplayLabel  string    `json:"display_label"`
	Color         string    `json:"color"`
	Pointer       *Point    `json:"pointer"`
	LastUpdate    time.Time `json:"last_update"`
}

// Participant identifies the local user of a board session.
type Participant struct {
	ID           string `json:"id"`
	DisplayLabel string `json:"display_label"`
	Color        string `json:"color"`
}
