package models

import "time"

// Channel is a logical alert source such as "Production Servers".
type Channel struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
