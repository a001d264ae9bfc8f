package models

import "time"

// Portfolio groups positions owned by one user
type Portfolio struct {
	ID        int       `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
