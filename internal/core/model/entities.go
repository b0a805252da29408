package model

import "time"

type Task struct {
	ID          string    `json:"id"`
	BoardID     string    `json:"board_id"`
	StatusID    string    `json:"status_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Priority    int       `json:"priority,omitempty"`
	AssigneeID  string    `json:"assignee_id,omitempty"`
	DueDate     time.Time `json:"due_date,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Color       string    `json:"color,omitempty"`
	Order       int       `json:"order"`
	Deleted     bool      `json:"deleted,omitempty"`
}

// Column is a board status; it is the container of tasks and is itself
// ordered within its board.
type Column struct {
	ID      string `json:"id"`
	BoardID string `json:"board_id"`
	Name    string `json:"name"`
	Color   string `json:"color,omitempty"`
	Order   int    `json:"order"`
	Deleted bool   `json:"deleted,omitempty"`
}

type Board struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Color       string `json:"color,omitempty"`
	Deleted     bool   `json:"deleted,omitempty"`
}
