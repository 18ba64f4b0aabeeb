package models

import "time"

// Terminal is a vending terminal known to the source system.
type Terminal struct {
	ID        int64     `json:"id"`
	Title     *string   `json:"title,omitempty"`
	Comment   *string   `json:"comment,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UpdateTerminalRequest carries the mutable terminal fields. Nil fields are
// left unchanged.
type UpdateTerminalRequest struct {
	Title    *string `json:"title"`
	Comment  *string `json:"comment"`
	IsActive *bool   `json:"is_active"`
}
